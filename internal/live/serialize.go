package live

import (
	"github.com/livetree/livetree/pkg/dom"
	"github.com/livetree/livetree/pkg/watch"
)

// View converts an engine value into a JSON-able shape. Matched tree nodes
// are flattened to their identifying surface; plain values pass through.
func View(v any) any {
	n, ok := v.(*dom.Node)
	if !ok {
		return v
	}
	item := map[string]any{"tag": n.Tag()}
	if id := n.ID(); id != "" {
		item["id"] = id
	}
	if cls, ok := n.Attribute("class"); ok {
		item["class"] = cls
	}
	if txt := n.Text(); txt != "" {
		item["text"] = txt
	}
	return item
}

func views(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = View(v)
	}
	return out
}

// Wire attaches engine listeners that forward every event kind to the
// watch's subscribed clients through deps.Broadcast.
func Wire(w *Watch, deps Deps) {
	e := w.Engine
	if !w.Single {
		w.subs = append(w.subs, e.OnIteration(func(it watch.IterationEvent) {
			deps.Broadcast(w, "iteration", map[string]any{
				"current": views(it.CurrentValues),
				"new":     views(it.NewValues),
				"removed": views(it.RemovedValues),
			})
		}))
	}
	w.subs = append(w.subs, e.OnAdd(func(ev watch.AddEvent) {
		deps.Broadcast(w, "add", map[string]any{"key": View(ev.Key), "value": View(ev.Value)})
	}))
	w.subs = append(w.subs, e.OnRemove(func(ev watch.RemoveEvent) {
		deps.Broadcast(w, "remove", map[string]any{"key": View(ev.Key), "value": View(ev.Value)})
	}))
	w.subs = append(w.subs, e.OnChange(func(ev watch.ChangeEvent) {
		deps.Broadcast(w, "change", map[string]any{
			"oldValue": View(ev.OldValue),
			"newValue": View(ev.NewValue),
		})
	}))
}
