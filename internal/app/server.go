package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	faker "github.com/go-faker/faker/v4"
	"go.uber.org/zap"

	"github.com/livetree/livetree/internal/api"
	"github.com/livetree/livetree/internal/config"
	"github.com/livetree/livetree/internal/live"
	"github.com/livetree/livetree/pkg/dom"
	"github.com/livetree/livetree/pkg/prng"
)

type Server struct {
	httpServer *http.Server
	Registry   *live.Registry
	Doc        *dom.Document
	cfg        config.Config
	stopDemo   chan struct{}
}

func NewServer(cfg config.Config) *Server {
	doc := bootstrapDocument()
	reg := live.NewRegistry()
	mux := api.SetupRoutes(reg, doc)

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.Addr,
			Handler: mux,
		},
		Registry: reg,
		Doc:      doc,
		cfg:      cfg,
		stopDemo: make(chan struct{}),
	}
}

func (s *Server) Run() error {
	go func() {
		zap.L().Info("listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("HTTP server error", zap.Error(err))
		}
	}()

	if s.cfg.Demo {
		go s.runDemoMutator()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("shutting down")
	close(s.stopDemo)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// bootstrapDocument builds the initial tree: a feed of items plus a status
// bar, enough structure for selectors to bite on.
func bootstrapDocument() *dom.Document {
	doc := dom.NewDocument()

	feed := doc.NewElement("feed")
	feed.SetAttribute("id", "feed")
	doc.Root.AppendChild(feed)

	status := doc.NewElement("status")
	status.SetAttribute("id", "status")
	status.AppendChild(doc.NewText("ready"))
	doc.Root.AppendChild(status)

	for i := 0; i < 3; i++ {
		item := doc.NewElement("item")
		item.SetAttribute("id", fmt.Sprintf("item-%d", i))
		item.SetAttribute("class", "entry")
		item.AppendChild(doc.NewText(faker.Word()))
		feed.AppendChild(item)
	}
	return doc
}

// runDemoMutator plays the role of the third-party script: it rewrites the
// feed on a timer, outside any watcher's control. Structure choices are
// seeded for reproducible runs; faker only fills in text content.
func (s *Server) runDemoMutator() {
	rnd := prng.NewRand(s.cfg.Seed)
	nextID := 3
	tick := time.NewTicker(s.cfg.DemoInterval)
	defer tick.Stop()

	for {
		select {
		case <-s.stopDemo:
			return
		case <-tick.C:
		}

		feed := s.findFeed()
		if feed == nil {
			continue
		}
		items := feed.Children()

		switch op := rnd.Intn(4); {
		case op == 0 || len(items) == 0:
			item := s.Doc.NewElement("item")
			item.SetAttribute("id", fmt.Sprintf("item-%d", nextID))
			nextID++
			item.SetAttribute("class", "entry")
			item.AppendChild(s.Doc.NewText(faker.Word()))
			feed.AppendChild(item)
		case op == 1:
			items[rnd.Intn(len(items))].Detach()
		case op == 2:
			// replace: same id lands on a fresh node, exercising rebinds
			victim := items[rnd.Intn(len(items))]
			repl := s.Doc.NewElement("item")
			repl.SetAttribute("id", victim.ID())
			repl.SetAttribute("class", "entry")
			repl.AppendChild(s.Doc.NewText(faker.Word()))
			feed.InsertBefore(repl, victim)
			victim.Detach()
		default:
			n := items[rnd.Intn(len(items))]
			n.SetAttribute("class", strings.TrimSpace("entry "+faker.Word()))
		}
	}
}

func (s *Server) findFeed() *dom.Node {
	var feed *dom.Node
	s.Doc.Root.Walk(func(n *dom.Node) bool {
		if n.Type() == dom.ElementNode && n.ID() == "feed" {
			feed = n
			return false
		}
		return true
	})
	return feed
}
