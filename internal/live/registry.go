package live

import (
	"sync"
)

type Registry struct {
	mu   sync.RWMutex
	data map[string]*Watch
}

func NewRegistry() *Registry {
	return &Registry{data: make(map[string]*Watch)}
}

func (r *Registry) Register(w *Watch) {
	r.mu.Lock()
	r.data[w.ID] = w
	r.mu.Unlock()
}

// Unregister stops the watch's engine and drops it from the registry.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	w, ok := r.data[id]
	delete(r.data, id)
	r.mu.Unlock()
	if ok {
		w.teardown()
	}
}

func (w *Watch) teardown() {
	w.Engine.StopWatch()
	for _, s := range w.subs {
		w.Engine.RemoveListener(s)
	}
	w.subs = nil
}

func (r *Registry) Get(id string) (*Watch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.data[id]
	return w, ok
}

func (r *Registry) Snapshot() []*Watch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Watch, 0, len(r.data))
	for _, w := range r.data {
		out = append(out, w)
	}
	return out
}

func (r *Registry) ForEach(fn func(*Watch) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.data {
		if !fn(w) {
			break
		}
	}
}

func (r *Registry) SnapshotView() []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]map[string]any, 0, len(r.data))
	for _, w := range r.data {
		w.Mu.RLock()
		item := map[string]any{
			"id":       w.ID,
			"selector": w.Selector,
			"single":   w.Single,
			"matches":  len(w.Engine.CurrentKeys()),
			"clients":  len(w.Clients),
		}
		w.Mu.RUnlock()
		out = append(out, item)
	}
	return out
}

// CleanupOrphans removes watches with no subscribed clients.
func (r *Registry) CleanupOrphans() int {
	r.mu.Lock()
	var orphans []*Watch
	for id, w := range r.data {
		w.Mu.RLock()
		noClients := len(w.Clients) == 0
		w.Mu.RUnlock()
		if noClients {
			delete(r.data, id)
			orphans = append(orphans, w)
		}
	}
	r.mu.Unlock()
	for _, w := range orphans {
		w.teardown()
	}
	return len(orphans)
}
