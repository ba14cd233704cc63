package watch

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/livetree/livetree/pkg/dom"
)

// Query is the collaborator producing the ordered target sequence; one
// evaluation is one generation. Targets that are *dom.Node are bindable and
// get a stable handle; anything else is tracked as a plain value.
type Query interface {
	Evaluate() []any
	EnableSingleMode()
}

// Callbacks is the per-key lifecycle hook set returned by the factory. The
// zero value installs no hooks.
type Callbacks struct {
	OnRemove        func(old any)
	OnTargetChanged func(newVal, oldVal any)
	OnNodeMutation  func(rec dom.MutationRecord)
}

// Match is what the factory is called with when a key first appears. Handle
// is nil for non-bindable targets.
type Match struct {
	Handle *Handle
	Key    any
	Value  any
}

// Factory is invoked exactly once per newly appearing key.
type Factory func(m Match) Callbacks

// Trigger requests reconciliation checks; Start hands it the engine's check
// routine.
type Trigger interface {
	Start(check func())
	Stop()
}

var (
	ErrNilFactory   = errors.New("watch: callback factory must not be nil")
	ErrBadThreshold = errors.New("watch: MinResults must be at least 1")
)

const defaultRemoveTimeout = 4 * time.Second

// Options configures an Engine. Query is required.
type Options struct {
	Query         Query
	Single        bool // single-cardinality mode: at most one tracked value, no key concept
	Triggers      []Trigger
	Scheduler     IdleScheduler
	Anchors       AnchorConfig
	Logger        *zap.Logger
	RemoveTimeout time.Duration // idle budget for deferred removal callbacks
}

// entry is the engine's per-key state carried between generations.
type entry struct {
	key    any
	val    any
	node   *dom.Node // nil for plain values
	cbs    Callbacks
	handle *Handle
	obs    *dom.Observer
}

func (en *entry) observe(n *dom.Node) {
	if en.obs != nil {
		en.obs.Disconnect()
	}
	en.obs = n.Document().Observe(n, func(rec dom.MutationRecord) {
		en.cbs.OnNodeMutation(rec)
	})
}

// Engine diffs successive query evaluations and drives handle lifecycles.
// Checks are serialized by a coalescing guard: a check requested while a
// pass runs is folded into exactly one follow-up pass.
type Engine struct {
	q             Query
	single        bool
	sched         IdleScheduler
	anchorCfg     AnchorConfig
	logger        *zap.Logger
	diags         *diagSet
	removeTimeout time.Duration
	triggers      []Trigger

	mu            sync.Mutex
	running       bool
	pending       bool
	watching      bool
	factory       Factory
	keyFn         KeyFunc
	keyEq         EqualFunc
	valEq         EqualFunc
	entries       []*entry
	listeners     map[EventKind]map[*Subscription]struct{}
	observedMulti bool

	first *Handle

	// single-cardinality state
	lastValue any
	hasLast   bool
	singleCbs Callbacks
	singleObs *dom.Observer
}

func New(opts Options) *Engine {
	if opts.Query == nil {
		panic("watch: Options.Query is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.L()
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = &DefaultIdle{}
	}
	timeout := opts.RemoveTimeout
	if timeout <= 0 {
		timeout = defaultRemoveTimeout
	}
	e := &Engine{
		q:             opts.Query,
		single:        opts.Single,
		sched:         sched,
		anchorCfg:     opts.Anchors,
		logger:        logger,
		diags:         newDiagSet(logger),
		removeTimeout: timeout,
		triggers:      opts.Triggers,
		keyFn:         IdentityKey,
		keyEq:         StrictEqual,
		valEq:         StrictEqual,
		listeners:     make(map[EventKind]map[*Subscription]struct{}),
	}
	e.first = NewHandle(nil, nil, opts.Anchors, logger)
	if e.single {
		e.q.EnableSingleMode()
	}
	return e
}

// RegisterForEach installs the callback factory. A nil factory is a fatal
// configuration error; re-registration replaces the factory and warns.
func (e *Engine) RegisterForEach(f Factory) error {
	if f == nil {
		return ErrNilFactory
	}
	e.mu.Lock()
	replaced := e.factory != nil
	e.factory = f
	e.mu.Unlock()
	if replaced {
		e.diags.fire(DiagFactoryReplaced, "callback factory re-registered; previous factory replaced")
	}
	return nil
}

// AssignKeys sets the key mapper. Diagnosed no-op in single mode, which has
// no key concept.
func (e *Engine) AssignKeys(fn KeyFunc) {
	if e.single {
		e.diags.fire(DiagKeyAPIInSingle, "AssignKeys called on a single-cardinality engine")
		return
	}
	if fn == nil {
		fn = IdentityKey
	}
	e.mu.Lock()
	e.keyFn = fn
	e.mu.Unlock()
}

// SetComparers sets key and value equality. Nil arguments keep the current
// comparer. A key comparer on a single-mode engine is a diagnosed no-op;
// the value comparer applies in both modes.
func (e *Engine) SetComparers(keyEq, valEq EqualFunc) {
	e.mu.Lock()
	if keyEq != nil {
		if e.single {
			e.mu.Unlock()
			e.diags.fire(DiagKeyAPIInSingle, "key comparer set on a single-cardinality engine")
			e.mu.Lock()
		} else {
			e.keyEq = keyEq
		}
	}
	if valEq != nil {
		e.valEq = valEq
	}
	e.mu.Unlock()
}

// HandleByKey returns the live stable handle for a currently present key,
// or nil. Unsupported in single mode.
func (e *Engine) HandleByKey(key any) *Handle {
	if e.single {
		e.diags.fire(DiagKeyAPIInSingle, "HandleByKey called on a single-cardinality engine")
		return nil
	}
	e.mu.Lock()
	keyEq := e.keyEq
	entries := e.entries
	e.mu.Unlock()
	for _, en := range entries {
		if en != nil && keyEq(en.key, key) {
			return en.handle
		}
	}
	return nil
}

// First returns the singleton handle bound to the current top match (or
// unbound while the generation is empty).
func (e *Engine) First() *Handle { return e.first }

// CurrentKeys snapshots the retained generation's keys in order.
func (e *Engine) CurrentKeys() []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]any, 0, len(e.entries))
	for _, en := range e.entries {
		if en != nil {
			out = append(out, en.key)
		}
	}
	return out
}

// CurrentValues snapshots the retained generation's values in order.
func (e *Engine) CurrentValues() []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]any, 0, len(e.entries))
	for _, en := range e.entries {
		if en != nil {
			out = append(out, en.val)
		}
	}
	return out
}

// SuppressDiagnostic silences one diagnostic site for this instance.
func (e *Engine) SuppressDiagnostic(name string) { e.diags.suppress(name) }

// StartWatch starts the configured triggers and immediately runs one check.
func (e *Engine) StartWatch() {
	e.mu.Lock()
	if e.watching {
		e.mu.Unlock()
		return
	}
	e.watching = true
	e.mu.Unlock()
	for _, t := range e.triggers {
		t.Start(e.Check)
	}
	e.Check()
}

// StopWatch stops the triggers. Retained generation state stays in place so
// a later StartWatch diffs against it.
func (e *Engine) StopWatch() {
	e.mu.Lock()
	if !e.watching {
		e.mu.Unlock()
		return
	}
	e.watching = false
	e.mu.Unlock()
	for _, t := range e.triggers {
		t.Stop()
	}
}

// Check runs one reconciliation pass. Re-entrant requests coalesce into at
// most one follow-up pass; callers never interleave mid-pass.
func (e *Engine) Check() {
	e.mu.Lock()
	if e.running {
		e.pending = true
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()
	for {
		if e.single {
			e.runSinglePass()
		} else {
			e.runPass()
		}
		e.mu.Lock()
		if !e.pending {
			e.running = false
			e.mu.Unlock()
			return
		}
		e.pending = false
		e.mu.Unlock()
	}
}

// runPass is the multi-target diff algorithm: evaluate, partition keys into
// gone/new/same, process gone then new then changed, swap generations,
// maintain FirstHandle, then emit events.
func (e *Engine) runPass() {
	current := e.q.Evaluate()

	e.mu.Lock()
	keyFn, keyEq, valEq := e.keyFn, e.keyEq, e.valEq
	prev := e.entries
	factory := e.factory
	e.mu.Unlock()

	keys := make([]any, len(current))
	nodes := make([]*dom.Node, len(current))
	for i, v := range current {
		keys[i] = keyFn(v)
		if n, ok := v.(*dom.Node); ok {
			nodes[i] = n
		}
	}

	if hasDuplicate(keys, keyEq) {
		e.diags.fire(DiagDuplicateKeys, "duplicate keys within one generation; first match wins on lookup",
			zap.Int("targets", len(current)))
	}

	// Partition previous keys against the current generation. Claiming
	// matched indices keeps the partition exact even with duplicate keys.
	claimed := make([]bool, len(current))
	type pair struct {
		old *entry
		idx int
	}
	var gone []*entry
	var same []pair
	for _, en := range prev {
		found := -1
		for i := range keys {
			if !claimed[i] && keyEq(en.key, keys[i]) {
				found = i
				break
			}
		}
		if found < 0 {
			gone = append(gone, en)
			continue
		}
		claimed[found] = true
		same = append(same, pair{old: en, idx: found})
	}
	var added []int
	for i := range keys {
		if !claimed[i] {
			added = append(added, i)
		}
	}
	var changed []pair
	for _, p := range same {
		if !valEq(p.old.val, current[p.idx]) {
			changed = append(changed, p)
		}
	}

	// Gone keys: removal is not latency-sensitive, so the callback and the
	// handle teardown are deferred. Mutation forwarding stops now.
	for _, en := range gone {
		en := en
		if en.obs != nil {
			en.obs.Disconnect()
			en.obs = nil
		}
		e.sched.ScheduleIdle(func() {
			if en.cbs.OnRemove != nil {
				en.cbs.OnRemove(en.val)
			}
			if en.handle != nil {
				en.handle.Destroy()
			}
		}, e.removeTimeout)
	}

	// New keys: handles are created synchronously, the factory runs once.
	next := make([]*entry, len(current))
	for _, i := range added {
		en := &entry{key: keys[i], val: current[i], node: nodes[i]}
		if nodes[i] != nil {
			en.handle = NewHandle(nodes[i].Document(), nodes[i], e.anchorCfg, e.logger)
			if factory != nil {
				en.cbs = factory(Match{Handle: en.handle, Key: en.key, Value: current[i]})
			}
			if en.cbs.OnNodeMutation != nil {
				en.observe(nodes[i])
			}
		} else {
			if factory != nil {
				en.cbs = factory(Match{Key: en.key, Value: current[i]})
			}
			if en.cbs.OnNodeMutation != nil {
				e.diags.fire(DiagMutationHookPlain, "OnNodeMutation declared for a non-bindable value; the hook will never fire")
			}
		}
		next[i] = en
	}

	// Changed pairs, strictly in list order: each rebind plus its
	// OnTargetChanged completes before the next pair starts.
	var changes []ChangeEvent
	for _, p := range changed {
		oldKey, oldVal := p.old.key, p.old.val
		newVal := current[p.idx]
		if nodes[p.idx] != nil && p.old.handle != nil {
			p.old.handle.SetRealCurrent(nodes[p.idx])
			if p.old.cbs.OnNodeMutation != nil {
				p.old.observe(nodes[p.idx])
			}
		}
		if p.old.cbs.OnTargetChanged != nil {
			p.old.cbs.OnTargetChanged(newVal, oldVal)
		}
		p.old.key = keys[p.idx]
		p.old.val = newVal
		p.old.node = nodes[p.idx]
		changes = append(changes, ChangeEvent{OldKey: oldKey, NewKey: keys[p.idx], OldValue: oldVal, NewValue: newVal})
	}

	// Unchanged keys carry handle and callbacks forward untouched.
	for _, p := range same {
		next[p.idx] = p.old
	}

	e.mu.Lock()
	e.entries = next
	e.mu.Unlock()

	// FirstHandle follows generation[0] when bindable, unbinds when empty,
	// and is otherwise left alone.
	if len(current) == 0 {
		e.first.SetRealCurrent(nil)
	} else if nodes[0] != nil {
		e.first.SetRealCurrent(nodes[0])
	}

	if len(changed)+len(gone)+len(added) > 0 && e.hasListeners(EventIteration) {
		it := IterationEvent{
			CurrentKeys:   append([]any(nil), keys...),
			CurrentValues: append([]any(nil), current...),
		}
		for _, i := range added {
			it.NewKeys = append(it.NewKeys, keys[i])
			it.NewValues = append(it.NewValues, current[i])
		}
		for _, en := range gone {
			it.RemovedKeys = append(it.RemovedKeys, en.key)
			it.RemovedValues = append(it.RemovedValues, en.val)
		}
		e.emit(EventIteration, it)
	}
	if e.hasListeners(EventRemove) {
		for _, en := range gone {
			e.emit(EventRemove, RemoveEvent{Key: en.key, Value: en.val})
		}
	}
	if e.hasListeners(EventAdd) {
		for _, i := range added {
			e.emit(EventAdd, AddEvent{Key: keys[i], Value: current[i]})
		}
	}
	if e.hasListeners(EventChange) {
		for _, ev := range changes {
			e.emit(EventChange, ev)
		}
	}

	// Heuristic: suggest single-cardinality mode while only zero-or-one
	// targets have ever been observed. Any multi-target pass silences it
	// for good.
	e.mu.Lock()
	multi := e.observedMulti
	if len(current) > 1 {
		e.observedMulti = true
	}
	e.mu.Unlock()
	if !multi && len(current) == 1 {
		e.diags.fire(DiagSingleSuggestion, "query has only ever yielded one target; consider single-cardinality mode")
	}
}

func hasDuplicate(keys []any, eq EqualFunc) bool {
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if eq(keys[i], keys[j]) {
				return true
			}
		}
	}
	return false
}
