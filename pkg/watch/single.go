package watch

import (
	"github.com/livetree/livetree/pkg/dom"
)

// runSinglePass is the reduced algorithm for exactly-one-expected-target
// use: no key bookkeeping, one tracked value, FirstHandle doubles as the
// value's handle.
func (e *Engine) runSinglePass() {
	res := e.q.Evaluate()
	var v any
	if len(res) > 0 {
		v = res[0]
	}

	e.mu.Lock()
	factory := e.factory
	valEq := e.valEq
	last, has := e.lastValue, e.hasLast
	cbs := e.singleCbs
	e.mu.Unlock()

	switch {
	case v == nil && has:
		// present -> absent
		if e.singleObs != nil {
			e.singleObs.Disconnect()
		}
		if cbs.OnRemove != nil {
			cbs.OnRemove(last)
		}
		e.first.SetRealCurrent(nil)
		e.mu.Lock()
		e.lastValue, e.hasLast = nil, false
		e.singleCbs = Callbacks{}
		e.singleObs = nil
		e.mu.Unlock()
		e.emit(EventRemove, RemoveEvent{Value: last})

	case v != nil && !has:
		// absent -> present
		var newCbs Callbacks
		if n, ok := v.(*dom.Node); ok {
			e.first.SetRealCurrent(n)
			if factory != nil {
				newCbs = factory(Match{Handle: e.first, Key: v, Value: v})
			}
			if newCbs.OnNodeMutation != nil {
				e.observeSingle(n, &newCbs)
			}
		} else {
			if factory != nil {
				newCbs = factory(Match{Value: v})
			}
			if newCbs.OnNodeMutation != nil {
				e.diags.fire(DiagMutationHookPlain, "OnNodeMutation declared for a non-bindable value; the hook will never fire")
			}
		}
		e.mu.Lock()
		e.lastValue, e.hasLast = v, true
		e.singleCbs = newCbs
		e.mu.Unlock()
		e.emit(EventAdd, AddEvent{Value: v})

	case v != nil && has && !valEq(v, last):
		// present -> present, value changed
		if n, ok := v.(*dom.Node); ok {
			e.first.SetRealCurrent(n)
			if cbs.OnNodeMutation != nil {
				e.observeSingle(n, &cbs)
			}
		}
		if cbs.OnTargetChanged != nil {
			cbs.OnTargetChanged(v, last)
		}
		e.mu.Lock()
		e.lastValue = v
		e.mu.Unlock()
		e.emit(EventChange, ChangeEvent{OldValue: last, NewValue: v})
	}
}

func (e *Engine) observeSingle(n *dom.Node, cbs *Callbacks) {
	if e.singleObs != nil {
		e.singleObs.Disconnect()
	}
	fn := cbs.OnNodeMutation
	e.singleObs = n.Document().Observe(n, func(rec dom.MutationRecord) {
		fn(rec)
	})
}
