package dom

// Event is dispatched to listeners registered on a node and bubbles to its
// ancestors.
type Event struct {
	Type   string
	Target *Node
	Data   any
}

// Listener is the registration token returned by AddEventListener; removal
// is by token since Go funcs are not comparable.
type Listener struct {
	node *Node
	typ  string
	fn   func(Event)
}

func (l *Listener) Type() string { return l.typ }

func (n *Node) AddEventListener(typ string, fn func(Event)) *Listener {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	if n.listeners == nil {
		n.listeners = make(map[string][]*Listener)
	}
	l := &Listener{node: n, typ: typ, fn: fn}
	n.listeners[typ] = append(n.listeners[typ], l)
	return l
}

func (n *Node) RemoveEventListener(l *Listener) {
	if l == nil || l.node != n {
		return
	}
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	ls := n.listeners[l.typ]
	for i, x := range ls {
		if x == l {
			n.listeners[l.typ] = append(ls[:i], ls[i+1:]...)
			return
		}
	}
}

// ListenerCount reports registered listeners for an event type.
func (n *Node) ListenerCount(typ string) int {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	return len(n.listeners[typ])
}

// Dispatch fires an event at n and bubbles it through n's ancestors.
// Listener callbacks run outside the document lock, in registration order.
func (n *Node) Dispatch(typ string, data any) {
	ev := Event{Type: typ, Target: n, Data: data}
	n.doc.mu.Lock()
	var fns []func(Event)
	for p := n; p != nil; p = p.parent {
		for _, l := range p.listeners[typ] {
			fns = append(fns, l.fn)
		}
	}
	n.doc.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
