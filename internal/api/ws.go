package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/livetree/livetree/internal/live"
	"github.com/livetree/livetree/internal/protocol"
	"github.com/livetree/livetree/pkg/dom"
	"github.com/livetree/livetree/pkg/selector"
	"github.com/livetree/livetree/pkg/watch"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler holds shared resources injected from app.Server.
type WSHandler struct {
	Doc      *dom.Document
	Registry *live.Registry
}

// HandleWS upgrades the connection and handles subscribe/unsubscribe
// messages. Engine events for subscribed watches are pushed as Delta
// messages.
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Error("ws upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	wsSend := func(msgType string, payload any) error {
		out := map[string]any{"type": msgType, "data": payload}
		return conn.WriteJSON(out)
	}

	cl := &live.Client{Send: wsSend}
	var active []*live.Watch

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			zap.L().Debug("ws read error", zap.Error(err))
			break
		}

		head, err := protocol.DecodeMessage(msg)
		if err != nil {
			wsSend("error", map[string]string{"error": "invalid JSON"})
			continue
		}

		switch strings.ToLower(head.Type) {
		case "ping":
			wsSend("pong", nil)

		case "subscribe":
			var sub protocol.Subscribe
			if err := json.Unmarshal(msg, &sub); err != nil || sub.Selector == "" {
				wsSend("error", map[string]string{"error": "missing selector"})
				continue
			}
			lw, err := h.registerWatch(sub.Selector, sub.Single, cl)
			if err != nil {
				wsSend("error", map[string]string{"error": err.Error()})
				continue
			}
			active = append(active, lw)
			wsSend("subscribed", map[string]any{
				"id":       lw.ID,
				"selector": lw.Selector,
				"single":   lw.Single,
			})

		case "unsubscribe":
			for _, lw := range active {
				h.Registry.Unregister(lw.ID)
			}
			active = nil
			wsSend("unsubscribed", "ok")

		default:
			wsSend("error", map[string]string{"error": "unknown message type"})
		}
	}

	// cleanup on disconnect
	for _, lw := range active {
		lw.Mu.Lock()
		delete(lw.Clients, cl)
		empty := len(lw.Clients) == 0
		lw.Mu.Unlock()
		if empty {
			h.Registry.Unregister(lw.ID)
		}
	}
}

// registerWatch compiles the selector, builds an engine triggered by
// document mutation, wires event broadcasting, and starts watching.
func (h *WSHandler) registerWatch(src string, single bool, cl *live.Client) (*live.Watch, error) {
	sel, err := selector.Compile(src)
	if err != nil {
		return nil, err
	}
	q := sel.Bind(h.Doc.Root)

	eng := watch.New(watch.Options{
		Query:    q,
		Single:   single,
		Triggers: []watch.Trigger{watch.NewMutationTrigger(h.Doc.Root)},
	})

	lw := &live.Watch{
		ID:       uuid.NewString(),
		Selector: src,
		Single:   single,
		Engine:   eng,
		Query:    q,
		Clients:  map[*live.Client]struct{}{cl: {}},
	}

	live.Wire(lw, live.Deps{
		Broadcast: func(w *live.Watch, event string, payload any) {
			w.Mu.RLock()
			defer w.Mu.RUnlock()
			for c := range w.Clients {
				if err := c.Send(event, payload); err != nil {
					zap.L().Warn("failed to send to client",
						zap.String("watch", w.ID), zap.Error(err))
				}
			}
		},
	})

	h.Registry.Register(lw)
	eng.StartWatch()
	return lw, nil
}
