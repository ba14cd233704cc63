package dom

type MutationKind int

const (
	MutationChildList MutationKind = iota
	MutationAttributes
	MutationStyle
	MutationCharacterData
)

func (k MutationKind) String() string {
	switch k {
	case MutationChildList:
		return "childList"
	case MutationAttributes:
		return "attributes"
	case MutationStyle:
		return "style"
	case MutationCharacterData:
		return "characterData"
	default:
		return "unknown"
	}
}

// MutationRecord describes one tree mutation. Target is the node whose
// attribute/style/data changed, or the parent whose child list changed.
type MutationRecord struct {
	Kind     MutationKind
	Target   *Node
	AttrName string // attribute name or style property
	OldValue string
	Added    []*Node
	Removed  []*Node
}

// Observer receives mutation records for the subtree under its root,
// including mutations of the root itself.
type Observer struct {
	doc  *Document
	root *Node
	fn   func(MutationRecord)
}

// Observe registers fn for every mutation in root's subtree. Callbacks run
// synchronously on the mutating goroutine, after the document lock is
// released, so they may mutate the tree again.
func (d *Document) Observe(root *Node, fn func(MutationRecord)) *Observer {
	d.mu.Lock()
	defer d.mu.Unlock()
	o := &Observer{doc: d, root: root, fn: fn}
	d.observers[o] = struct{}{}
	return o
}

func (o *Observer) Disconnect() {
	o.doc.mu.Lock()
	defer o.doc.mu.Unlock()
	delete(o.doc.observers, o)
}

type delivery struct {
	fn  func(MutationRecord)
	rec MutationRecord
}

// record matches rec against registered observers. Called with d.mu held;
// the resulting deliveries are dispatched by the caller after unlocking.
func (d *Document) record(rec MutationRecord) []delivery {
	if len(d.observers) == 0 {
		return nil
	}
	var out []delivery
	for o := range d.observers {
		for p := rec.Target; p != nil; p = p.parent {
			if p == o.root {
				out = append(out, delivery{fn: o.fn, rec: rec})
				break
			}
		}
	}
	return out
}

func deliver(recs []delivery) {
	for _, dl := range recs {
		dl.fn(dl.rec)
	}
}
