package watch

import (
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/livetree/livetree/pkg/dom"
)

// stubQuery lets tests feed the engine arbitrary generations.
type stubQuery struct {
	mu     sync.Mutex
	vals   []any
	single bool
	evals  int
}

func (q *stubQuery) Evaluate() []any {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.evals++
	out := append([]any(nil), q.vals...)
	if q.single && len(out) > 1 {
		out = out[:1]
	}
	return out
}

func (q *stubQuery) EnableSingleMode() {
	q.mu.Lock()
	q.single = true
	q.mu.Unlock()
}

func (q *stubQuery) set(vals ...any) {
	q.mu.Lock()
	q.vals = vals
	q.mu.Unlock()
}

func (q *stubQuery) evalCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evals
}

func newTestEngine(q Query, single bool) *Engine {
	return New(Options{
		Query:     q,
		Single:    single,
		Scheduler: ImmediateIdle{},
		Logger:    zap.NewNop(),
	})
}

func nodeWithID(doc *dom.Document, id string) *dom.Node {
	n := doc.NewElement("item")
	n.SetAttribute("id", id)
	doc.Root.AppendChild(n)
	return n
}

func byID(v any) any { return v.(*dom.Node).ID() }

func TestStableInputProducesEmptyDelta(t *testing.T) {
	doc := dom.NewDocument()
	q := &stubQuery{vals: []any{nodeWithID(doc, "x"), nodeWithID(doc, "y")}}
	e := newTestEngine(q, false)

	iterations := 0
	e.OnIteration(func(IterationEvent) { iterations++ })

	e.Check()
	if iterations != 1 {
		t.Fatalf("first pass iterations = %d, want 1", iterations)
	}
	e.Check()
	e.Check()
	if iterations != 1 {
		t.Fatalf("unchanged generations emitted extra iterations: %d", iterations)
	}
}

func TestPartitionCompleteness(t *testing.T) {
	q := &stubQuery{vals: []any{"a", "b", "c"}}
	e := newTestEngine(q, false)

	var it IterationEvent
	e.OnIteration(func(ev IterationEvent) { it = ev })
	e.Check()

	q.set("b", "c", "d")
	e.Check()

	if len(it.CurrentKeys) != 3 {
		t.Fatalf("current keys = %v", it.CurrentKeys)
	}
	if len(it.NewKeys) != 1 || it.NewKeys[0] != "d" {
		t.Fatalf("new keys = %v, want [d]", it.NewKeys)
	}
	if len(it.RemovedKeys) != 1 || it.RemovedKeys[0] != "a" {
		t.Fatalf("removed keys = %v, want [a]", it.RemovedKeys)
	}
	// gone ∪ new ∪ same covers the union of both generations exactly
	covered := map[any]bool{}
	for _, k := range it.RemovedKeys {
		covered[k] = true
	}
	for _, k := range it.CurrentKeys {
		if covered[k] {
			t.Fatalf("key %v in more than one partition", k)
		}
		covered[k] = true
	}
	for _, k := range []any{"a", "b", "c", "d"} {
		if !covered[k] {
			t.Fatalf("key %v not covered by any partition", k)
		}
	}
}

func TestHandleIdentityStableAcrossRebinds(t *testing.T) {
	doc := dom.NewDocument()
	gen1 := nodeWithID(doc, "x")
	q := &stubQuery{vals: []any{gen1}}
	e := newTestEngine(q, false)
	e.AssignKeys(byID)

	var changes []string
	if err := e.RegisterForEach(func(m Match) Callbacks {
		return Callbacks{
			OnTargetChanged: func(newVal, oldVal any) {
				changes = append(changes, oldVal.(*dom.Node).ID()+"->"+newVal.(*dom.Node).ID())
			},
		}
	}); err != nil {
		t.Fatal(err)
	}

	e.Check()
	h := e.HandleByKey("x")
	if h == nil {
		t.Fatal("no handle for key x")
	}
	if h.RealCurrent() != gen1 {
		t.Fatal("handle not bound to first generation's node")
	}

	for i := 0; i < 3; i++ {
		repl := nodeWithID(doc, "x")
		q.set(repl)
		e.Check()
		if got := e.HandleByKey("x"); got != h {
			t.Fatalf("handle identity changed on pass %d", i)
		}
		if h.RealCurrent() != repl {
			t.Fatalf("handle not rebound on pass %d", i)
		}
	}
	if len(changes) != 3 {
		t.Fatalf("OnTargetChanged calls = %d, want 3", len(changes))
	}
}

func TestChangedPairsProcessedInOrder(t *testing.T) {
	doc := dom.NewDocument()
	q := &stubQuery{vals: []any{nodeWithID(doc, "1"), nodeWithID(doc, "2"), nodeWithID(doc, "3")}}
	e := newTestEngine(q, false)
	e.AssignKeys(byID)

	var order []string
	e.RegisterForEach(func(m Match) Callbacks {
		return Callbacks{
			OnTargetChanged: func(newVal, _ any) {
				order = append(order, newVal.(*dom.Node).ID())
			},
		}
	})
	e.Check()

	q.set(nodeWithID(doc, "1"), nodeWithID(doc, "2"), nodeWithID(doc, "3"))
	e.Check()
	if len(order) != 3 || order[0] != "1" || order[1] != "2" || order[2] != "3" {
		t.Fatalf("changed pairs out of order: %v", order)
	}
}

func TestRemovalRunsCallbackThenDestroysHandle(t *testing.T) {
	doc := dom.NewDocument()
	n := nodeWithID(doc, "x")
	q := &stubQuery{vals: []any{n}}
	e := newTestEngine(q, false)
	e.AssignKeys(byID)

	removed := []any{}
	e.RegisterForEach(func(m Match) Callbacks {
		h := m.Handle
		return Callbacks{
			OnRemove: func(old any) {
				if h.Destroyed() {
					t.Fatal("handle destroyed before OnRemove ran")
				}
				removed = append(removed, old)
			},
		}
	})
	e.Check()
	h := e.HandleByKey("x")

	q.set()
	e.Check() // ImmediateIdle runs the deferred removal inline

	if len(removed) != 1 || removed[0] != any(n) {
		t.Fatalf("OnRemove calls = %v", removed)
	}
	if !h.Destroyed() {
		t.Fatal("handle not destroyed after removal")
	}
	if e.HandleByKey("x") != nil {
		t.Fatal("gone key still resolvable")
	}
}

func TestFactoryInvokedOncePerKey(t *testing.T) {
	q := &stubQuery{vals: []any{"a"}}
	e := newTestEngine(q, false)

	calls := 0
	e.RegisterForEach(func(m Match) Callbacks {
		calls++
		if m.Handle != nil {
			t.Fatal("plain value got a handle")
		}
		return Callbacks{}
	})
	e.Check()
	e.Check()
	q.set("a", "b")
	e.Check()
	if calls != 2 {
		t.Fatalf("factory calls = %d, want 2", calls)
	}
}

func TestRegisterForEachValidation(t *testing.T) {
	q := &stubQuery{}
	e := newTestEngine(q, false)

	if err := e.RegisterForEach(nil); err != ErrNilFactory {
		t.Fatalf("nil factory error = %v", err)
	}
	e.RegisterForEach(func(Match) Callbacks { return Callbacks{} })
	e.RegisterForEach(func(Match) Callbacks { return Callbacks{} })
	if got := e.diags.count(DiagFactoryReplaced); got != 1 {
		t.Fatalf("factory-replaced diagnostic count = %d", got)
	}
}

func TestDuplicateKeyDiagnosticFiresOnce(t *testing.T) {
	q := &stubQuery{vals: []any{"x", "x"}}
	e := newTestEngine(q, false)

	e.Check()
	if got := e.diags.count(DiagDuplicateKeys); got != 1 {
		t.Fatalf("duplicate-key diagnostic count = %d, want 1", got)
	}
	e.Check()
	q.set("x", "x", "y", "y")
	e.Check()
	if got := e.diags.count(DiagDuplicateKeys); got != 1 {
		t.Fatalf("diagnostic re-fired: %d", got)
	}
}

func TestSingleModeSuggestionHeuristic(t *testing.T) {
	q := &stubQuery{vals: []any{"only"}}
	e := newTestEngine(q, false)
	e.Check()
	if got := e.diags.count(DiagSingleSuggestion); got != 1 {
		t.Fatalf("suggestion count = %d, want 1", got)
	}

	// an engine that has seen more than one target never suggests
	q2 := &stubQuery{vals: []any{"a", "b"}}
	e2 := newTestEngine(q2, false)
	e2.Check()
	q2.set("a")
	e2.Check()
	if got := e2.diags.count(DiagSingleSuggestion); got != 0 {
		t.Fatalf("suggestion fired after multi-target pass: %d", got)
	}
}

func TestFirstHandleTracksTopMatch(t *testing.T) {
	doc := dom.NewDocument()
	n1 := nodeWithID(doc, "1")
	n2 := nodeWithID(doc, "2")
	q := &stubQuery{}
	e := newTestEngine(q, false)

	e.Check()
	if e.First().RealCurrent() != nil {
		t.Fatal("FirstHandle bound on empty generation")
	}

	q.set(n1, n2)
	e.Check()
	if e.First().RealCurrent() != n1 {
		t.Fatal("FirstHandle not bound to generation[0]")
	}

	q.set(n2)
	e.Check()
	if e.First().RealCurrent() != n2 {
		t.Fatal("FirstHandle did not follow new top match")
	}

	q.set()
	e.Check()
	if e.First().RealCurrent() != nil {
		t.Fatal("FirstHandle still bound after empty generation")
	}
}

func TestAddRemoveChangeEvents(t *testing.T) {
	q := &stubQuery{vals: []any{"a"}}
	e := newTestEngine(q, false)
	e.AssignKeys(func(v any) any { return string(v.(string)[0]) })

	var log []string
	e.OnAdd(func(ev AddEvent) { log = append(log, "add:"+ev.Value.(string)) })
	e.OnRemove(func(ev RemoveEvent) { log = append(log, "remove:"+ev.Value.(string)) })
	e.OnChange(func(ev ChangeEvent) {
		log = append(log, "change:"+ev.OldValue.(string)+">"+ev.NewValue.(string))
	})

	e.Check()
	q.set("a2", "b") // same key 'a', new value; new key 'b'
	e.Check()
	q.set("b")
	e.Check()

	want := []string{"add:a", "add:b", "change:a>a2", "remove:a2"}
	if len(log) != len(want) {
		t.Fatalf("event log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("event log = %v, want %v", log, want)
		}
	}
}

func TestOnNodeMutationForwarding(t *testing.T) {
	doc := dom.NewDocument()
	n := nodeWithID(doc, "x")
	q := &stubQuery{vals: []any{n}}
	e := newTestEngine(q, false)
	e.AssignKeys(byID)

	var recs []dom.MutationRecord
	e.RegisterForEach(func(m Match) Callbacks {
		return Callbacks{OnNodeMutation: func(rec dom.MutationRecord) { recs = append(recs, rec) }}
	})
	e.Check()

	n.SetAttribute("state", "open")
	if len(recs) != 1 {
		t.Fatalf("mutation hook calls = %d, want 1", len(recs))
	}

	// the hook follows the rebind to the replacement node
	repl := nodeWithID(doc, "x")
	q.set(repl)
	e.Check()
	repl.SetStyle("color", "red")
	if len(recs) != 2 {
		t.Fatalf("mutation hook did not follow rebind: %d", len(recs))
	}

	// gone keys stop forwarding
	q.set()
	e.Check()
	repl.SetAttribute("state", "closed")
	if len(recs) != 2 {
		t.Fatalf("mutation hook fired after removal: %d", len(recs))
	}
}

func TestMutationHookOnPlainValueDiagnosed(t *testing.T) {
	q := &stubQuery{vals: []any{"plain"}}
	e := newTestEngine(q, false)
	e.RegisterForEach(func(Match) Callbacks {
		return Callbacks{OnNodeMutation: func(dom.MutationRecord) {}}
	})
	e.Check()
	if got := e.diags.count(DiagMutationHookPlain); got != 1 {
		t.Fatalf("plain-value hook diagnostic count = %d", got)
	}
}

func TestReentrantCheckCoalesces(t *testing.T) {
	q := &stubQuery{vals: []any{"a"}}
	e := newTestEngine(q, false)

	e.OnAdd(func(AddEvent) {
		e.Check() // requested mid-pass: folded into one follow-up
		e.Check()
	})
	e.Check()
	if q.evalCount() != 2 {
		t.Fatalf("evaluations = %d, want 2 (original pass + one coalesced follow-up)", q.evalCount())
	}
}

func TestCustomComparers(t *testing.T) {
	q := &stubQuery{vals: []any{"A"}}
	e := newTestEngine(q, false)
	e.SetComparers(
		func(a, b any) bool { return true }, // everything is the same key
		func(a, b any) bool { return a == b },
	)

	changes := 0
	e.OnChange(func(ChangeEvent) { changes++ })
	adds := 0
	e.OnAdd(func(AddEvent) { adds++ })

	e.Check()
	q.set("B")
	e.Check()
	if adds != 1 || changes != 1 {
		t.Fatalf("adds=%d changes=%d, want 1/1", adds, changes)
	}
}
