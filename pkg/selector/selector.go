// Package selector compiles declarative selector strings into matchers over a
// dom tree. Supported syntax: tag names, `*`, `#id`, `.class`, `[attr]`,
// `[attr=value]` (value optionally double-quoted), descendant combinator
// (whitespace), and `,` for alternation.
package selector

import (
	"fmt"
	"strings"

	"github.com/livetree/livetree/pkg/dom"
)

// compound is one simple-selector sequence, e.g. `item.active[state=open]`.
type compound struct {
	tag     string // empty or "*" matches any element
	id      string
	classes []string
	attrs   []attrCond
}

type attrCond struct {
	name     string
	value    string
	hasValue bool
}

// complexSel is a descendant chain of compounds, rightmost is the subject.
type complexSel []compound

// Selector is a compiled selector list.
type Selector struct {
	raw  string
	alts []complexSel
}

func (s *Selector) String() string { return s.raw }

// Compile parses a selector string. An empty selector is an error.
func Compile(src string) (*Selector, error) {
	sel := &Selector{raw: src}
	for _, part := range splitTop(src, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("selector: empty alternative in %q", src)
		}
		var chain complexSel
		for _, tok := range strings.Fields(part) {
			c, err := parseCompound(tok)
			if err != nil {
				return nil, fmt.Errorf("selector: %q: %w", src, err)
			}
			chain = append(chain, c)
		}
		sel.alts = append(sel.alts, chain)
	}
	if len(sel.alts) == 0 {
		return nil, fmt.Errorf("selector: empty selector")
	}
	return sel, nil
}

// MustCompile is Compile that panics, for selectors fixed at authoring time.
func MustCompile(src string) *Selector {
	s, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return s
}

// splitTop splits on sep outside bracket and quote context.
func splitTop(s string, sep byte) []string {
	var parts []string
	depth := 0
	quoted := false
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case '[':
			if !quoted {
				depth++
			}
		case ']':
			if !quoted && depth > 0 {
				depth--
			}
		case sep:
			if !quoted && depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	return append(parts, s[last:])
}

func parseCompound(tok string) (compound, error) {
	var c compound
	i := 0
	readName := func() string {
		start := i
		for i < len(tok) {
			ch := tok[i]
			if ch == '#' || ch == '.' || ch == '[' {
				break
			}
			i++
		}
		return tok[start:i]
	}
	if i < len(tok) && tok[i] != '#' && tok[i] != '.' && tok[i] != '[' {
		c.tag = readName()
	}
	for i < len(tok) {
		switch tok[i] {
		case '#':
			i++
			name := readName()
			if name == "" {
				return c, fmt.Errorf("missing id after '#' in %q", tok)
			}
			c.id = name
		case '.':
			i++
			name := readName()
			if name == "" {
				return c, fmt.Errorf("missing class after '.' in %q", tok)
			}
			c.classes = append(c.classes, name)
		case '[':
			end := strings.IndexByte(tok[i:], ']')
			if end < 0 {
				return c, fmt.Errorf("unclosed '[' in %q", tok)
			}
			body := tok[i+1 : i+end]
			i += end + 1
			cond := attrCond{name: body}
			if eq := strings.IndexByte(body, '='); eq >= 0 {
				cond.name = body[:eq]
				cond.value = strings.Trim(body[eq+1:], `"`)
				cond.hasValue = true
			}
			if cond.name == "" {
				return c, fmt.Errorf("empty attribute name in %q", tok)
			}
			c.attrs = append(c.attrs, cond)
		default:
			return c, fmt.Errorf("unexpected %q in %q", tok[i], tok)
		}
	}
	if c.tag == "" && c.id == "" && len(c.classes) == 0 && len(c.attrs) == 0 {
		return c, fmt.Errorf("empty compound %q", tok)
	}
	return c, nil
}

func (c compound) matches(n *dom.Node) bool {
	if n.Type() != dom.ElementNode {
		return false
	}
	if c.tag != "" && c.tag != "*" && n.Tag() != c.tag {
		return false
	}
	if c.id != "" && n.ID() != c.id {
		return false
	}
	for _, cl := range c.classes {
		if !n.HasClass(cl) {
			return false
		}
	}
	for _, a := range c.attrs {
		v, ok := n.Attribute(a.name)
		if !ok {
			return false
		}
		if a.hasValue && v != a.value {
			return false
		}
	}
	return true
}

func (cs complexSel) matches(n *dom.Node) bool {
	if !cs[len(cs)-1].matches(n) {
		return false
	}
	// remaining compounds must match ancestors, right to left
	idx := len(cs) - 2
	for p := n.Parent(); p != nil && idx >= 0; p = p.Parent() {
		if cs[idx].matches(p) {
			idx--
		}
	}
	return idx < 0
}

// Matches reports whether n is a subject of the selector.
func (s *Selector) Matches(n *dom.Node) bool {
	for _, alt := range s.alts {
		if alt.matches(n) {
			return true
		}
	}
	return false
}
