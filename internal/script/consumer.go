// Package script applies externally supplied mutation commands to the live
// document — the stand-in for third-party code rewriting the tree outside
// the watchers' control.
package script

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/livetree/livetree/pkg/dom"
	"github.com/livetree/livetree/pkg/selector"
)

// Op is one mutation command. Target and Parent are selector strings
// resolved against the document; the first match is used.
type Op struct {
	Op     string `json:"op"` // append|remove|set-attr|remove-attr|set-style|set-text|dispatch
	Target string `json:"target,omitempty"`
	Parent string `json:"parent,omitempty"`
	Tag    string `json:"tag,omitempty"`
	Name   string `json:"name,omitempty"`
	Value  string `json:"value,omitempty"`
	Text   string `json:"text,omitempty"`
	Event  string `json:"event,omitempty"`
}

type Envelope struct {
	Ops []Op `json:"ops"`
}

type Consumer struct {
	Doc *dom.Document
}

// OnMessage decodes one JSON envelope and applies its ops in order. Bad ops
// are logged and skipped; the rest of the envelope still applies.
func (c *Consumer) OnMessage(line []byte) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		zap.L().Error("script decode error", zap.Error(err))
		return
	}
	if len(env.Ops) == 0 {
		zap.L().Warn("script envelope with no ops")
		return
	}
	for i, op := range env.Ops {
		if err := c.Apply(op); err != nil {
			zap.L().Warn("script op skipped",
				zap.Int("index", i), zap.String("op", op.Op), zap.Error(err))
		}
	}
}

// Apply executes a single op against the document.
func (c *Consumer) Apply(op Op) error {
	switch op.Op {
	case "append":
		parent := c.Doc.Root
		if op.Parent != "" {
			p, err := c.resolve(op.Parent)
			if err != nil {
				return err
			}
			parent = p
		}
		if op.Tag == "" {
			return fmt.Errorf("append needs a tag")
		}
		n := c.Doc.NewElement(op.Tag)
		if op.Name != "" {
			n.SetAttribute(op.Name, op.Value)
		}
		if op.Text != "" {
			n.AppendChild(c.Doc.NewText(op.Text))
		}
		parent.AppendChild(n)
	case "remove":
		n, err := c.resolve(op.Target)
		if err != nil {
			return err
		}
		n.Detach()
	case "set-attr":
		n, err := c.resolve(op.Target)
		if err != nil {
			return err
		}
		n.SetAttribute(op.Name, op.Value)
	case "remove-attr":
		n, err := c.resolve(op.Target)
		if err != nil {
			return err
		}
		n.RemoveAttribute(op.Name)
	case "set-style":
		n, err := c.resolve(op.Target)
		if err != nil {
			return err
		}
		n.SetStyle(op.Name, op.Value)
	case "set-text":
		n, err := c.resolve(op.Target)
		if err != nil {
			return err
		}
		for _, ch := range n.Children() {
			if ch.Type() == dom.TextNode {
				ch.Detach()
			}
		}
		n.AppendChild(c.Doc.NewText(op.Text))
	case "dispatch":
		n, err := c.resolve(op.Target)
		if err != nil {
			return err
		}
		n.Dispatch(op.Event, op.Value)
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
	return nil
}

func (c *Consumer) resolve(sel string) (*dom.Node, error) {
	if sel == "" {
		return nil, fmt.Errorf("missing target selector")
	}
	s, err := selector.Compile(sel)
	if err != nil {
		return nil, err
	}
	q := s.Bind(c.Doc.Root)
	q.EnableSingleMode()
	res := q.Evaluate()
	if len(res) == 0 {
		return nil, fmt.Errorf("no match for %q", sel)
	}
	return res[0].(*dom.Node), nil
}
