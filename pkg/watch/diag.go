package watch

import (
	"sync"

	"go.uber.org/zap"
)

// Diagnostic sites. Each is per-instance, rate-limited, and individually
// suppressible via Suppress.
const (
	DiagDuplicateKeys     = "duplicate-keys"
	DiagSingleSuggestion  = "single-mode-suggestion"
	DiagKeyAPIInSingle    = "key-api-in-single-mode"
	DiagMutationHookPlain = "mutation-hook-on-plain-value"
	DiagFactoryReplaced   = "factory-replaced"
	DiagWaitThreshold     = "wait-threshold-in-single-mode"
	DiagAnchorConfigLate  = "anchor-config-after-use"
)

// diagnostic tracks rate-limit state for one warning site.
type diagnostic struct {
	limit      int
	fired      int
	suppressed bool
}

type diagSet struct {
	mu    sync.Mutex
	sites map[string]*diagnostic
	log   *zap.Logger
}

func newDiagSet(log *zap.Logger) *diagSet {
	return &diagSet{sites: make(map[string]*diagnostic), log: log}
}

func (ds *diagSet) site(name string) *diagnostic {
	d, ok := ds.sites[name]
	if !ok {
		d = &diagnostic{limit: 1}
		ds.sites[name] = d
	}
	return d
}

// fire logs the diagnostic unless its rate limit is spent or it was
// suppressed. Returns whether it actually fired.
func (ds *diagSet) fire(name, msg string, fields ...zap.Field) bool {
	ds.mu.Lock()
	d := ds.site(name)
	if d.suppressed || d.fired >= d.limit {
		ds.mu.Unlock()
		return false
	}
	d.fired++
	ds.mu.Unlock()
	ds.log.Warn(msg, append(fields, zap.String("diagnostic", name))...)
	return true
}

func (ds *diagSet) suppress(name string) {
	ds.mu.Lock()
	ds.site(name).suppressed = true
	ds.mu.Unlock()
}

func (ds *diagSet) count(name string) int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.site(name).fired
}
