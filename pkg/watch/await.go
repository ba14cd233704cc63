package watch

import (
	"context"
)

// WaitOpts tunes Wait. MinResults 0 means the default of 1; a negative
// value is a configuration error. Transform maps the resolved values;
// Start replaces the default StartWatch when the threshold is not yet met.
type WaitOpts struct {
	MinResults int
	Transform  func(values []any) []any
	Start      func()
}

// Wait suspends the caller until a reconciliation pass yields at least
// MinResults targets, resolving synchronously when the query already does.
// In single-cardinality mode it resolves as soon as any value is present
// (a threshold above one is diagnosed and ignored). There is no engine-side
// timeout: cancellation is the caller's, via ctx.
func (e *Engine) Wait(ctx context.Context, opts WaitOpts) ([]any, error) {
	min := opts.MinResults
	if min == 0 {
		min = 1
	}
	if min < 1 {
		return nil, ErrBadThreshold
	}
	if e.single && min > 1 {
		e.diags.fire(DiagWaitThreshold, "Wait threshold above 1 requested in single-cardinality mode; resolving on any value")
		min = 1
	}
	apply := func(vals []any) []any {
		if opts.Transform != nil {
			return opts.Transform(vals)
		}
		return vals
	}

	if vals := e.q.Evaluate(); len(vals) >= min {
		return apply(vals), nil
	}

	ch := make(chan []any, 1)
	offer := func(vals []any) {
		if len(vals) >= min {
			select {
			case ch <- vals:
			default:
			}
		}
	}
	var subs []*Subscription
	if e.single {
		subs = append(subs,
			e.OnAdd(func(ev AddEvent) { offer([]any{ev.Value}) }),
			e.OnChange(func(ev ChangeEvent) { offer([]any{ev.NewValue}) }))
	} else {
		subs = append(subs, e.addListener(EventIteration, func(it IterationEvent) {
			offer(it.CurrentValues)
		}))
	}
	defer func() {
		for _, s := range subs {
			e.RemoveListener(s)
		}
		e.StopWatch()
	}()

	if opts.Start != nil {
		opts.Start()
	} else {
		e.StartWatch()
	}
	// A pass may have crossed the threshold between the synchronous probe
	// and the listener attach; probe once more before suspending.
	offer(e.q.Evaluate())

	select {
	case vals := <-ch:
		return apply(vals), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
