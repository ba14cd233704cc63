package selector

import (
	"github.com/livetree/livetree/pkg/dom"
)

// Query binds a compiled selector to a subtree root so it can be evaluated
// repeatedly. It satisfies the watch engine's query contract.
type Query struct {
	sel    *Selector
	root   *dom.Node
	single bool
}

// Bind returns a repeatable query over root's subtree (root itself excluded).
func (s *Selector) Bind(root *dom.Node) *Query {
	return &Query{sel: s, root: root}
}

func (q *Query) Selector() *Selector { return q.sel }
func (q *Query) Root() *dom.Node     { return q.root }

// EnableSingleMode makes Evaluate stop at the first match.
func (q *Query) EnableSingleMode() { q.single = true }

// Evaluate walks the subtree in document order and returns the matched nodes.
// Results are boxed as any per the watch engine's target contract.
func (q *Query) Evaluate() []any {
	var out []any
	q.root.Walk(func(n *dom.Node) bool {
		if n == q.root {
			return true
		}
		if q.sel.Matches(n) {
			out = append(out, n)
			if q.single {
				return false
			}
		}
		return true
	})
	return out
}
