package watch

import (
	"github.com/livetree/livetree/pkg/dom"
)

// Anchor is a placeholder node kept immediately adjacent to the handle's
// bound target, independent of the target's identity. Anchors survive
// rebinds: they are detached while the handle is unbound and re-attached
// next to the new target.
type Anchor struct {
	h    *Handle
	node *dom.Node
	init func(root *dom.Node)
}

func (a *Anchor) Node() *dom.Node { return a.node }

// Shadow lazily attaches the anchor's shadow root, running the configured
// init policy exactly once on creation.
func (a *Anchor) Shadow() *dom.Node {
	a.h.mu.Lock()
	a.h.checkAlive()
	a.h.mu.Unlock()
	if s := a.node.Shadow(); s != nil {
		return s
	}
	s := a.node.AttachShadow()
	if a.init != nil {
		a.init(s)
	}
	return s
}

// WeakShadow returns the shadow root without forcing its creation.
func (a *Anchor) WeakShadow() *dom.Node { return a.node.Shadow() }

// Before returns the anchor positioned immediately before the bound target,
// creating and attaching it on first use.
func (h *Handle) Before() *Anchor {
	h.mu.Lock()
	h.checkAlive()
	if h.before == nil {
		node := h.makeAnchor(h.cfg.CreateBefore, "anchor:before")
		h.before = &Anchor{h: h, node: node, init: h.cfg.BeforeShadowInit}
		h.used = true
	}
	a := h.before
	h.mu.Unlock()
	h.attachAnchors()
	return a
}

// After returns the anchor positioned immediately after the bound target,
// creating and attaching it on first use.
func (h *Handle) After() *Anchor {
	h.mu.Lock()
	h.checkAlive()
	if h.after == nil {
		node := h.makeAnchor(h.cfg.CreateAfter, "anchor:after")
		h.after = &Anchor{h: h, node: node, init: h.cfg.AfterShadowInit}
		h.used = true
	}
	a := h.after
	h.mu.Unlock()
	h.attachAnchors()
	return a
}

// WeakBefore returns the before-anchor without forcing creation.
func (h *Handle) WeakBefore() *Anchor {
	h.mu.Lock()
	h.checkAlive()
	a := h.before
	h.mu.Unlock()
	return a
}

// WeakAfter returns the after-anchor without forcing creation.
func (h *Handle) WeakAfter() *Anchor {
	h.mu.Lock()
	h.checkAlive()
	a := h.after
	h.mu.Unlock()
	return a
}

func (h *Handle) makeAnchor(create func(*dom.Document) *dom.Node, label string) *dom.Node {
	doc := h.ensureDoc()
	if create != nil {
		return create(doc)
	}
	return doc.NewComment(label)
}

// attachAnchors positions existing anchors adjacent to the bound target.
// No-ops while unbound, while the target is detached, or when an anchor is
// already in place (so steady-state passes do not churn mutation observers).
// Tree insertion happens outside h.mu: mutation delivery is synchronous and
// may re-enter the handle through a triggered pass.
func (h *Handle) attachAnchors() {
	h.mu.Lock()
	bound := h.bound
	before, after := h.before, h.after
	h.mu.Unlock()
	attachAnchorsTo(bound, before, after)
}

func attachAnchorsTo(bound *dom.Node, before, after *Anchor) {
	if bound == nil {
		return
	}
	parent := bound.Parent()
	if parent == nil {
		return
	}
	if before != nil && before.node.NextSibling() != bound {
		parent.InsertBefore(before.node, bound)
	}
	if after != nil && after.node.PrevSibling() != bound {
		parent.InsertBefore(after.node, bound.NextSibling())
	}
}

func detachAnchors(before, after *Anchor) {
	if before != nil {
		before.node.Detach()
	}
	if after != nil {
		after.node.Detach()
	}
}
