package watch

import (
	"sync"
	"time"

	"github.com/livetree/livetree/pkg/dom"
)

// MutationTrigger requests a check whenever anything under root mutates.
type MutationTrigger struct {
	root *dom.Node
	obs  *dom.Observer
}

func NewMutationTrigger(root *dom.Node) *MutationTrigger {
	return &MutationTrigger{root: root}
}

func (t *MutationTrigger) Start(check func()) {
	if t.obs != nil {
		return
	}
	t.obs = t.root.Document().Observe(t.root, func(dom.MutationRecord) {
		check()
	})
}

func (t *MutationTrigger) Stop() {
	if t.obs != nil {
		t.obs.Disconnect()
		t.obs = nil
	}
}

// IntervalTrigger requests a check at a fixed interval.
type IntervalTrigger struct {
	every time.Duration

	mu   sync.Mutex
	done chan struct{}
}

func NewIntervalTrigger(every time.Duration) *IntervalTrigger {
	return &IntervalTrigger{every: every}
}

func (t *IntervalTrigger) Start(check func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		return
	}
	done := make(chan struct{})
	t.done = done
	go func() {
		tick := time.NewTicker(t.every)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				check()
			case <-done:
				return
			}
		}
	}()
}

func (t *IntervalTrigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
}

// EventTrigger requests a check when a named event fires on (or bubbles to)
// a node.
type EventTrigger struct {
	node *dom.Node
	typ  string
	l    *dom.Listener
}

func NewEventTrigger(node *dom.Node, typ string) *EventTrigger {
	return &EventTrigger{node: node, typ: typ}
}

func (t *EventTrigger) Start(check func()) {
	if t.l != nil {
		return
	}
	t.l = t.node.AddEventListener(t.typ, func(dom.Event) {
		check()
	})
}

func (t *EventTrigger) Stop() {
	if t.l != nil {
		t.node.RemoveEventListener(t.l)
		t.l = nil
	}
}
