package watch

// EventKind names the four subscribable event kinds.
type EventKind string

const (
	EventIteration EventKind = "iteration"
	EventAdd       EventKind = "add"
	EventRemove    EventKind = "remove"
	EventChange    EventKind = "change"
)

// IterationEvent is the full delta snapshot of one reconciliation pass.
// Emitted at most once per pass, and only when the pass changed something.
type IterationEvent struct {
	CurrentKeys   []any
	CurrentValues []any
	NewKeys       []any
	NewValues     []any
	RemovedKeys   []any
	RemovedValues []any
}

type AddEvent struct {
	Key   any
	Value any
}

type RemoveEvent struct {
	Key   any
	Value any
}

type ChangeEvent struct {
	OldKey   any
	NewKey   any
	OldValue any
	NewValue any
}

// Subscription is the registration token for a listener; removal is by
// token since Go funcs are not comparable.
type Subscription struct {
	kind EventKind
	fn   any
}

func (s *Subscription) Kind() EventKind { return s.kind }

func (e *Engine) addListener(kind EventKind, fn any) *Subscription {
	sub := &Subscription{kind: kind, fn: fn}
	e.mu.Lock()
	if e.listeners[kind] == nil {
		e.listeners[kind] = make(map[*Subscription]struct{})
	}
	e.listeners[kind][sub] = struct{}{}
	e.mu.Unlock()
	return sub
}

// OnIteration subscribes to per-pass delta snapshots. Unavailable in
// single-cardinality mode: diagnoses and returns nil.
func (e *Engine) OnIteration(fn func(IterationEvent)) *Subscription {
	if e.single {
		e.diags.fire(DiagKeyAPIInSingle, "iteration events are unavailable in single-cardinality mode")
		return nil
	}
	return e.addListener(EventIteration, fn)
}

func (e *Engine) OnAdd(fn func(AddEvent)) *Subscription {
	return e.addListener(EventAdd, fn)
}

func (e *Engine) OnRemove(fn func(RemoveEvent)) *Subscription {
	return e.addListener(EventRemove, fn)
}

func (e *Engine) OnChange(fn func(ChangeEvent)) *Subscription {
	return e.addListener(EventChange, fn)
}

// RemoveListener detaches a subscription. Safe with nil or already-removed
// tokens.
func (e *Engine) RemoveListener(sub *Subscription) {
	if sub == nil {
		return
	}
	e.mu.Lock()
	delete(e.listeners[sub.kind], sub)
	e.mu.Unlock()
}

func (e *Engine) hasListeners(kind EventKind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[kind]) > 0
}

// emit snapshots the listener set under lock and invokes callbacks outside
// it, so listeners may call back into the engine.
func (e *Engine) emit(kind EventKind, payload any) {
	e.mu.Lock()
	subs := make([]*Subscription, 0, len(e.listeners[kind]))
	for s := range e.listeners[kind] {
		subs = append(subs, s)
	}
	e.mu.Unlock()
	for _, s := range subs {
		switch fn := s.fn.(type) {
		case func(IterationEvent):
			fn(payload.(IterationEvent))
		case func(AddEvent):
			fn(payload.(AddEvent))
		case func(RemoveEvent):
			fn(payload.(RemoveEvent))
		case func(ChangeEvent):
			fn(payload.(ChangeEvent))
		}
	}
}
