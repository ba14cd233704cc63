package watch

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/livetree/livetree/pkg/dom"
)

// ErrDestroyed is the panic value raised when a destroyed handle's
// forwarding reference or anchors are used. Destroy itself stays safe to
// call repeatedly.
var ErrDestroyed = errors.New("watch: handle used after destroy")

type opKind int

const (
	opRead opKind = iota
	opSetAttr
	opRemoveAttr
	opSetStyle
	opSetData
	opAppendChild
	opInsertBefore
	opAddListener
	opDispatch
)

// effect is one entry of the handle's ordered mutation log. The log is
// replayed (redo) onto the new target on rebind and walked for undo against
// the old one; opRead and opDispatch entries have no undo or redo action.
type effect struct {
	kind     opKind
	name     string // attr name, style prop, or event type
	value    string
	prior    string // overwritten style value, for exact undo
	priorSet bool
	child    *dom.Node
	ref      *dom.Node
	fn       func(dom.Event)
	listener *dom.Listener // live registration on the current target
	data     any           // dispatch payload
}

// AnchorConfig configures how anchor placeholders and their shadow roots are
// created. The zero value uses plain comment nodes and uninitialized shadows.
type AnchorConfig struct {
	CreateBefore     func(d *dom.Document) *dom.Node
	CreateAfter      func(d *dom.Document) *dom.Node
	BeforeShadowInit func(root *dom.Node)
	AfterShadowInit  func(root *dom.Node)
}

// Handle is a long-lived reference to a tree node that the engine may rebind
// to a different node between generations. Side effects applied through its
// forwarding reference are logged and replayed across rebinds, so callbacks
// holding the handle keep working unmodified.
type Handle struct {
	mu          sync.Mutex
	doc         *dom.Document
	cfg         AnchorConfig
	bound       *dom.Node
	placeholder *dom.Node
	log         []*effect
	before      *Anchor
	after       *Anchor
	destroyed   bool
	used        bool
	diags       *diagSet
}

// NewHandle creates a handle bound to node (nil for unbound). doc may be nil
// when node is not; it is then taken from the node.
func NewHandle(doc *dom.Document, node *dom.Node, cfg AnchorConfig, logger *zap.Logger) *Handle {
	if logger == nil {
		logger = zap.L()
	}
	if doc == nil && node != nil {
		doc = node.Document()
	}
	h := &Handle{doc: doc, cfg: cfg, diags: newDiagSet(logger)}
	if node != nil {
		h.SetRealCurrent(node)
	}
	return h
}

// Configure replaces the anchor configuration. Diagnoses when anchors were
// already created; existing anchors are not rebuilt.
func (h *Handle) Configure(cfg AnchorConfig) {
	h.mu.Lock()
	late := h.used
	h.cfg = cfg
	h.mu.Unlock()
	if late {
		h.diags.fire(DiagAnchorConfigLate, "anchor configuration changed after the handle was used; existing anchors keep the old configuration")
	}
}

// SuppressDiagnostic silences one of the handle's diagnostic sites.
func (h *Handle) SuppressDiagnostic(name string) { h.diags.suppress(name) }

// checkAlive must be called immediately after locking h.mu, with no unlock
// deferred: it releases the lock before panicking so a caller that recovers
// the panic does not strand the mutex.
func (h *Handle) checkAlive() {
	if h.destroyed {
		h.mu.Unlock()
		panic(ErrDestroyed)
	}
}

func (h *Handle) ensureDoc() *dom.Document {
	if h.doc == nil {
		h.doc = dom.NewDocument()
	}
	return h.doc
}

// forward returns the node that currently receives forwarded operations:
// the bound target, or an inert detached placeholder while unbound.
func (h *Handle) forward() *dom.Node {
	if h.bound != nil {
		return h.bound
	}
	if h.placeholder == nil {
		h.placeholder = h.ensureDoc().NewElement("#inert")
	}
	return h.placeholder
}

// RealCurrent returns the actual bound node; nil when unbound or destroyed.
func (h *Handle) RealCurrent() *dom.Node {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return nil
	}
	return h.bound
}

// SetRealCurrent runs the rebinding protocol: undo the mutation log against
// the old target, swap, then replay the log onto the new one. A nil target
// unbinds: forwards land on an inert placeholder and anchors detach.
// State swaps under h.mu; the tree mutations themselves run after unlocking,
// because mutation delivery is synchronous and an observer callback may
// re-enter the handle.
func (h *Handle) SetRealCurrent(n *dom.Node) {
	h.mu.Lock()
	h.checkAlive()
	if n == h.bound {
		h.mu.Unlock()
		return
	}
	old := h.forward()
	log := h.log
	h.bound = n
	if n != nil && h.doc == nil {
		h.doc = n.Document()
	}
	before, after := h.before, h.after
	h.mu.Unlock()

	undoEffects(log, old, n == nil)
	if n == nil {
		detachAnchors(before, after)
		return
	}
	redoEffects(log, n)
	attachAnchorsTo(n, before, after)
}

// undoEffects reverses logged effects against target, in recorded order.
// Children appended through the ref are detached only when fully unbinding;
// on a rebind they travel to the new target during redo instead.
func undoEffects(log []*effect, target *dom.Node, unbinding bool) {
	for _, eff := range log {
		switch eff.kind {
		case opAddListener:
			if eff.listener != nil {
				target.RemoveEventListener(eff.listener)
				eff.listener = nil
			}
		case opAppendChild, opInsertBefore:
			if unbinding && eff.child.Parent() == target {
				eff.child.Detach()
			}
		case opSetStyle:
			if eff.priorSet {
				target.SetStyle(eff.name, eff.prior)
			} else {
				target.RemoveStyle(eff.name)
			}
		}
	}
}

// redoEffects replays the log onto the new target in original order.
func redoEffects(log []*effect, target *dom.Node) {
	for _, eff := range log {
		switch eff.kind {
		case opSetAttr:
			target.SetAttribute(eff.name, eff.value)
		case opRemoveAttr:
			target.RemoveAttribute(eff.name)
		case opSetStyle:
			// re-capture the overwritten value so a later undo restores
			// this target, not the previous one
			eff.prior, eff.priorSet = target.Style(eff.name)
			target.SetStyle(eff.name, eff.value)
		case opSetData:
			target.SetData(eff.value)
		case opAppendChild:
			target.AppendChild(eff.child)
		case opInsertBefore:
			target.InsertBefore(eff.child, eff.ref)
		case opAddListener:
			eff.listener = target.AddEventListener(eff.name, eff.fn)
		}
	}
}

// Destroy invalidates the handle: undoes the log against the bound target,
// detaches anchors, and drops the log. Idempotent. The destroyed flag flips
// under h.mu before the undo runs outside it, so re-entrant observer
// callbacks see a consistently dead handle.
func (h *Handle) Destroy() {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.destroyed = true
	old := h.forward()
	log := h.log
	before, after := h.before, h.after
	h.before, h.after = nil, nil
	h.bound = nil
	h.placeholder = nil
	h.log = nil
	h.mu.Unlock()

	undoEffects(log, old, true)
	detachAnchors(before, after)
}

func (h *Handle) Destroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

// Current returns the forwarding reference. Every operation performed
// through it is applied to the currently bound target and appended to the
// mutation log first.
func (h *Handle) Current() *Ref {
	h.mu.Lock()
	h.checkAlive()
	h.mu.Unlock()
	return &Ref{h: h}
}

// record appends eff and returns the current forward target, marking the
// handle used. Panics when destroyed.
func (h *Handle) record(eff *effect) *dom.Node {
	h.mu.Lock()
	h.checkAlive()
	h.used = true
	h.log = append(h.log, eff)
	n := h.forward()
	h.mu.Unlock()
	return n
}

// Ref is the forwarding reference of a handle. It stays valid across
// rebinds; using it after Destroy panics with ErrDestroyed.
type Ref struct {
	h *Handle
}

func (r *Ref) Handle() *Handle { return r.h }

// Attribute reads through to the bound target. Reads are logged but carry
// no undo or redo action.
func (r *Ref) Attribute(name string) (string, bool) {
	n := r.h.record(&effect{kind: opRead, name: "attribute:" + name})
	return n.Attribute(name)
}

func (r *Ref) Style(prop string) (string, bool) {
	n := r.h.record(&effect{kind: opRead, name: "style:" + prop})
	return n.Style(prop)
}

func (r *Ref) Text() string {
	n := r.h.record(&effect{kind: opRead, name: "text"})
	return n.Text()
}

func (r *Ref) Tag() string {
	n := r.h.record(&effect{kind: opRead, name: "tag"})
	return n.Tag()
}

func (r *Ref) Children() []*dom.Node {
	n := r.h.record(&effect{kind: opRead, name: "children"})
	return n.Children()
}

func (r *Ref) SetAttribute(name, value string) {
	n := r.h.record(&effect{kind: opSetAttr, name: name, value: value})
	n.SetAttribute(name, value)
}

func (r *Ref) RemoveAttribute(name string) {
	n := r.h.record(&effect{kind: opRemoveAttr, name: name})
	n.RemoveAttribute(name)
}

// SetStyle records the overwritten value so a later undo can restore it
// exactly.
func (r *Ref) SetStyle(prop, value string) {
	r.h.mu.Lock()
	r.h.checkAlive()
	r.h.used = true
	n := r.h.forward()
	prior, priorSet := n.Style(prop)
	r.h.log = append(r.h.log, &effect{kind: opSetStyle, name: prop, value: value, prior: prior, priorSet: priorSet})
	r.h.mu.Unlock()
	n.SetStyle(prop, value)
}

func (r *Ref) SetData(data string) {
	n := r.h.record(&effect{kind: opSetData, value: data})
	n.SetData(data)
}

func (r *Ref) AppendChild(c *dom.Node) {
	n := r.h.record(&effect{kind: opAppendChild, child: c})
	n.AppendChild(c)
}

func (r *Ref) InsertBefore(c, ref *dom.Node) {
	n := r.h.record(&effect{kind: opInsertBefore, child: c, ref: ref})
	n.InsertBefore(c, ref)
}

// RefListener is the stable registration token for a listener added through
// a Ref; the underlying dom registration is rewritten on every rebind.
type RefListener struct {
	r   *Ref
	eff *effect
}

func (r *Ref) AddEventListener(typ string, fn func(dom.Event)) *RefListener {
	eff := &effect{kind: opAddListener, name: typ, fn: fn}
	n := r.h.record(eff)
	r.h.mu.Lock()
	eff.listener = n.AddEventListener(typ, fn)
	r.h.mu.Unlock()
	return &RefListener{r: r, eff: eff}
}

// RemoveEventListener detaches a listener added through this ref and removes
// its log entry, so it is neither replayed nor undone again.
func (r *Ref) RemoveEventListener(rl *RefListener) {
	if rl == nil || rl.r != r {
		return
	}
	h := r.h
	h.mu.Lock()
	h.checkAlive()
	n := h.forward()
	if rl.eff.listener != nil {
		n.RemoveEventListener(rl.eff.listener)
		rl.eff.listener = nil
	}
	for i, eff := range h.log {
		if eff == rl.eff {
			h.log = append(h.log[:i], h.log[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
}

// Dispatch fires an event through the bound target. Applied once, never
// replayed on rebind.
func (r *Ref) Dispatch(typ string, data any) {
	n := r.h.record(&effect{kind: opDispatch, name: typ, data: data})
	n.Dispatch(typ, data)
}

// Call invokes a forwarded operation by name. Structural operations go
// through the same logged path as the typed methods; unknown names error.
func (r *Ref) Call(method string, args ...any) error {
	switch method {
	case "SetAttribute":
		r.SetAttribute(args[0].(string), args[1].(string))
	case "RemoveAttribute":
		r.RemoveAttribute(args[0].(string))
	case "SetStyle":
		r.SetStyle(args[0].(string), args[1].(string))
	case "SetData":
		r.SetData(args[0].(string))
	case "AppendChild":
		r.AppendChild(args[0].(*dom.Node))
	case "InsertBefore":
		ref, _ := args[1].(*dom.Node)
		r.InsertBefore(args[0].(*dom.Node), ref)
	case "Dispatch":
		var data any
		if len(args) > 1 {
			data = args[1]
		}
		r.Dispatch(args[0].(string), data)
	default:
		return fmt.Errorf("watch: method %q is not forwardable", method)
	}
	return nil
}

// LogLen reports the length of the mutation log.
func (h *Handle) LogLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.log)
}
