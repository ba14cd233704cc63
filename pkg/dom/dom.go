// Package dom implements the mutable live tree that watchers observe: a small
// document model with elements, text and comment nodes, attributes, inline
// styles, event listeners, shadow roots, and mutation observers. All mutation
// goes through the owning Document so observers see a consistent stream of
// records.
package dom

import (
	"fmt"
	"strings"
	"sync"
)

type NodeType int

const (
	ElementNode NodeType = iota
	TextNode
	CommentNode
)

// Document owns every node created from it. A single mutex serializes
// mutation; observer and event callbacks run after the lock is released so
// they may freely read or mutate the tree again.
type Document struct {
	mu        sync.Mutex
	Root      *Node
	observers map[*Observer]struct{}
	nextSeq   uint64
}

func NewDocument() *Document {
	d := &Document{observers: make(map[*Observer]struct{})}
	d.Root = d.newNode(ElementNode, "root", "")
	return d
}

// Node is one tree node. Nodes compare by pointer identity.
type Node struct {
	doc       *Document
	seq       uint64 // creation order, used for stable document-order sorts
	typ       NodeType
	tag       string
	data      string // text/comment payload
	attrs     map[string]string
	style     map[string]string
	parent    *Node
	children  []*Node
	listeners map[string][]*Listener
	shadow    *Node
}

func (d *Document) newNode(typ NodeType, tag, data string) *Node {
	d.nextSeq++
	return &Node{
		doc:  d,
		seq:  d.nextSeq,
		typ:  typ,
		tag:  tag,
		data: data,
	}
}

func (d *Document) NewElement(tag string) *Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.newNode(ElementNode, tag, "")
}

func (d *Document) NewText(text string) *Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.newNode(TextNode, "", text)
}

func (d *Document) NewComment(data string) *Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.newNode(CommentNode, "", data)
}

func (n *Node) Document() *Document { return n.doc }
func (n *Node) Type() NodeType      { return n.typ }
func (n *Node) Tag() string         { return n.tag }

func (n *Node) Data() string {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	return n.data
}

// SetData replaces the payload of a text or comment node.
func (n *Node) SetData(data string) {
	n.doc.mu.Lock()
	old := n.data
	n.data = data
	recs := n.doc.record(MutationRecord{Kind: MutationCharacterData, Target: n, OldValue: old})
	n.doc.mu.Unlock()
	deliver(recs)
}

func (n *Node) Parent() *Node {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	return n.parent
}

func (n *Node) Children() []*Node {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	return append([]*Node(nil), n.children...)
}

func (n *Node) FirstChild() *Node {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	if len(n.children) == 0 {
		return nil
	}
	return n.children[0]
}

func (n *Node) NextSibling() *Node {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	return n.sibling(+1)
}

func (n *Node) PrevSibling() *Node {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	return n.sibling(-1)
}

func (n *Node) sibling(dir int) *Node {
	if n.parent == nil {
		return nil
	}
	for i, c := range n.parent.children {
		if c == n {
			j := i + dir
			if j < 0 || j >= len(n.parent.children) {
				return nil
			}
			return n.parent.children[j]
		}
	}
	return nil
}

// AppendChild attaches c as the last child of n, detaching it from any
// previous parent first.
func (n *Node) AppendChild(c *Node) {
	n.InsertBefore(c, nil)
}

// InsertBefore attaches c immediately before ref among n's children. A nil
// ref appends. Panics if c is an ancestor of n or a node of another document.
func (n *Node) InsertBefore(c, ref *Node) {
	if c.doc != n.doc {
		panic("dom: node belongs to a different document")
	}
	n.doc.mu.Lock()
	for p := n; p != nil; p = p.parent {
		if p == c {
			n.doc.mu.Unlock()
			panic("dom: cannot insert a node under itself")
		}
	}
	var recs []delivery
	if c.parent != nil {
		old := c.parent
		old.removeChildLocked(c)
		recs = append(recs, n.doc.record(MutationRecord{Kind: MutationChildList, Target: old, Removed: []*Node{c}})...)
	}
	idx := len(n.children)
	if ref != nil {
		for i, ch := range n.children {
			if ch == ref {
				idx = i
				break
			}
		}
	}
	n.children = append(n.children, nil)
	copy(n.children[idx+1:], n.children[idx:])
	n.children[idx] = c
	c.parent = n
	recs = append(recs, n.doc.record(MutationRecord{Kind: MutationChildList, Target: n, Added: []*Node{c}})...)
	n.doc.mu.Unlock()
	deliver(recs)
}

// Detach removes n from its parent. Detached subtrees stay alive and can be
// re-inserted later.
func (n *Node) Detach() {
	n.doc.mu.Lock()
	p := n.parent
	if p == nil {
		n.doc.mu.Unlock()
		return
	}
	p.removeChildLocked(n)
	recs := n.doc.record(MutationRecord{Kind: MutationChildList, Target: p, Removed: []*Node{n}})
	n.doc.mu.Unlock()
	deliver(recs)
}

func (n *Node) removeChildLocked(c *Node) {
	for i, ch := range n.children {
		if ch == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			c.parent = nil
			return
		}
	}
}

// Attached reports whether n is reachable from its document root.
func (n *Node) Attached() bool {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	for p := n; p != nil; p = p.parent {
		if p == n.doc.Root {
			return true
		}
	}
	return false
}

func (n *Node) Attribute(name string) (string, bool) {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	v, ok := n.attrs[name]
	return v, ok
}

func (n *Node) SetAttribute(name, value string) {
	n.doc.mu.Lock()
	old := n.attrs[name]
	if n.attrs == nil {
		n.attrs = make(map[string]string)
	}
	n.attrs[name] = value
	recs := n.doc.record(MutationRecord{Kind: MutationAttributes, Target: n, AttrName: name, OldValue: old})
	n.doc.mu.Unlock()
	deliver(recs)
}

func (n *Node) RemoveAttribute(name string) {
	n.doc.mu.Lock()
	old, ok := n.attrs[name]
	if !ok {
		n.doc.mu.Unlock()
		return
	}
	delete(n.attrs, name)
	recs := n.doc.record(MutationRecord{Kind: MutationAttributes, Target: n, AttrName: name, OldValue: old})
	n.doc.mu.Unlock()
	deliver(recs)
}

// ID returns the id attribute, empty when unset.
func (n *Node) ID() string {
	v, _ := n.Attribute("id")
	return v
}

func (n *Node) HasClass(class string) bool {
	v, _ := n.Attribute("class")
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

func (n *Node) Style(prop string) (string, bool) {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	v, ok := n.style[prop]
	return v, ok
}

func (n *Node) SetStyle(prop, value string) {
	n.doc.mu.Lock()
	old := n.style[prop]
	if n.style == nil {
		n.style = make(map[string]string)
	}
	n.style[prop] = value
	recs := n.doc.record(MutationRecord{Kind: MutationStyle, Target: n, AttrName: prop, OldValue: old})
	n.doc.mu.Unlock()
	deliver(recs)
}

func (n *Node) RemoveStyle(prop string) {
	n.doc.mu.Lock()
	old, ok := n.style[prop]
	if !ok {
		n.doc.mu.Unlock()
		return
	}
	delete(n.style, prop)
	recs := n.doc.record(MutationRecord{Kind: MutationStyle, Target: n, AttrName: prop, OldValue: old})
	n.doc.mu.Unlock()
	deliver(recs)
}

// Text concatenates the payloads of all text descendants in document order.
func (n *Node) Text() string {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	var b strings.Builder
	n.collectText(&b)
	return b.String()
}

func (n *Node) collectText(b *strings.Builder) {
	if n.typ == TextNode {
		b.WriteString(n.data)
		return
	}
	for _, c := range n.children {
		c.collectText(b)
	}
}

// AttachShadow creates (or returns) the node's shadow root: an isolated
// element subtree that does not participate in document-order traversal.
func (n *Node) AttachShadow() *Node {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	if n.shadow == nil {
		n.shadow = n.doc.newNode(ElementNode, "#shadow-root", "")
	}
	return n.shadow
}

func (n *Node) Shadow() *Node {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	return n.shadow
}

// Walk visits the subtree rooted at n in document order (pre-order). The walk
// runs over a snapshot of the tree, so fn may mutate freely.
func (n *Node) Walk(fn func(*Node) bool) {
	n.doc.mu.Lock()
	var flat []*Node
	n.flatten(&flat)
	n.doc.mu.Unlock()
	for _, node := range flat {
		if !fn(node) {
			return
		}
	}
}

func (n *Node) flatten(out *[]*Node) {
	*out = append(*out, n)
	for _, c := range n.children {
		c.flatten(out)
	}
}

func (n *Node) String() string {
	switch n.typ {
	case TextNode:
		return fmt.Sprintf("#text(%q)", n.data)
	case CommentNode:
		return fmt.Sprintf("#comment(%q)", n.data)
	default:
		if id := n.ID(); id != "" {
			return fmt.Sprintf("<%s#%s>", n.tag, id)
		}
		return fmt.Sprintf("<%s>", n.tag)
	}
}
