package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/livetree/livetree/internal/live"
	"github.com/livetree/livetree/pkg/dom"
)

func SetupRoutes(reg *live.Registry, doc *dom.Document) http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware)

	h := &Handlers{Doc: doc, Registry: reg}
	ws := &WSHandler{Doc: doc, Registry: reg}

	r.Route("/api", func(r chi.Router) {
		r.Post("/query", h.handleQuery)
		r.Post("/mutate", h.handleMutate)
		r.Get("/watches", h.handleWatches)
	})
	r.Get("/ws", ws.HandleWS)

	fs := http.FileServer(http.Dir("web"))
	r.Handle("/*", fs)

	return r
}
