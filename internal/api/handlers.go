package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/livetree/livetree/internal/live"
	"github.com/livetree/livetree/internal/script"
	"github.com/livetree/livetree/pkg/dom"
	"github.com/livetree/livetree/pkg/selector"
)

type Handlers struct {
	Doc      *dom.Document
	Registry *live.Registry
}

// handleQuery evaluates a selector once and returns the matches. The body
// is the raw selector string.
func (h *Handlers) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	src := strings.TrimSpace(string(body))

	sel, err := selector.Compile(src)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res := sel.Bind(h.Doc.Root).Evaluate()
	L(r.Context()).Info("one-shot query", zap.String("selector", src), zap.Int("matches", len(res)))

	out := make([]any, len(res))
	for i, v := range res {
		out[i] = live.View(v)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"selector": src, "matches": out})
}

// handleMutate applies a script envelope to the live document. Watches
// pick the changes up through their mutation triggers.
func (h *Handlers) handleMutate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	var env script.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	c := &script.Consumer{Doc: h.Doc}
	applied := 0
	var errs []string
	for _, op := range env.Ops {
		if err := c.Apply(op); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		applied++
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"applied": applied, "errors": errs})
}

func (h *Handlers) handleWatches(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Registry.SnapshotView())
}
