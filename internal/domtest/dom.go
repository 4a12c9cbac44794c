// Package domtest provides an in-memory DOM that implements the domain capability
// interfaces, for tests of the detection, matching and blocking logic.
package domtest

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// Node is a fake DOM element.
type Node struct {
	Tag          string
	Attrs        map[string]string
	Classes      []string
	Text         string
	Val          string
	Rect         domain.Rect
	ClickHandler bool
	Editable     bool

	parent   *Node
	children []*Node
}

// El creates a node with tag and "key=value" attribute pairs.
// The "class" key populates Classes.
func El(tag string, attrs ...string) *Node {
	n := &Node{Tag: strings.ToLower(tag), Attrs: make(map[string]string)}
	for _, kv := range attrs {
		k, v, _ := strings.Cut(kv, "=")
		if k == "class" {
			n.Classes = append(n.Classes, strings.Fields(v)...)
			continue
		}
		n.Attrs[k] = v
	}
	return n
}

// Append adds children and returns n for chaining.
func (n *Node) Append(children ...*Node) *Node {
	for _, c := range children {
		c.parent = n
		n.children = append(n.children, c)
	}
	return n
}

// WithText sets the text content.
func (n *Node) WithText(text string) *Node {
	n.Text = text
	return n
}

// WithRect sets the bounding rectangle.
func (n *Node) WithRect(left, top, width, height float64) *Node {
	n.Rect = domain.Rect{Left: left, Top: top, Width: width, Height: height}
	return n
}

func (n *Node) TagName() string { return n.Tag }

func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.Attrs[name]
	return v, ok
}

func (n *Node) HasClass(class string) bool {
	for _, c := range n.Classes {
		if c == class {
			return true
		}
	}
	return false
}

func (n *Node) Parent() domain.Element {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *Node) TextContent() string {
	var b strings.Builder
	b.WriteString(n.Text)
	for _, c := range n.children {
		b.WriteString(c.TextContent())
	}
	return b.String()
}

func (n *Node) Value() string             { return n.Val }
func (n *Node) BoundingRect() domain.Rect { return n.Rect }
func (n *Node) HasClickHandler() bool     { return n.ClickHandler }
func (n *Node) IsContentEditable() bool   { return n.Editable }
func (n *Node) String() string            { return fmt.Sprintf("<%s %v>", n.Tag, n.Attrs) }

func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.walk(fn)
	}
}

// Document is a fake page rooted at Root.
type Document struct {
	Root   *Node
	Active *Node
}

// NewDocument wraps root (typically a <body>) as a document.
func NewDocument(root *Node) *Document {
	return &Document{Root: root}
}

// QuerySelectorAll supports comma lists of compound selectors built from
// tag, #id, .class and [attr], [attr=v], [attr^=v], [attr$=v], [attr*=v].
func (d *Document) QuerySelectorAll(selector string) ([]domain.Element, error) {
	sels, err := parseSelectorList(selector)
	if err != nil {
		return nil, err
	}
	var out []domain.Element
	d.Root.walk(func(n *Node) {
		for _, s := range sels {
			if s.matches(n) {
				out = append(out, n)
				return
			}
		}
	})
	return out, nil
}

func (d *Document) ActiveElement() domain.Element {
	if d.Active == nil {
		return nil
	}
	return d.Active
}

// EventSource is a fake capture-phase listener registry.
type EventSource struct {
	mu       sync.Mutex
	nextID   int
	handlers map[domain.EventType]map[int]domain.EventHandler
	Now      func() time.Time
}

// NewEventSource creates an empty listener registry.
func NewEventSource() *EventSource {
	return &EventSource{
		handlers: make(map[domain.EventType]map[int]domain.EventHandler),
		Now:      time.Now,
	}
}

func (s *EventSource) Listen(t domain.EventType, h domain.EventHandler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers[t] == nil {
		s.handlers[t] = make(map[int]domain.EventHandler)
	}
	id := s.nextID
	s.nextID++
	s.handlers[t][id] = h
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers[t], id)
	}
}

// ListenerCount returns the number of registered handlers for t.
func (s *EventSource) ListenerCount(t domain.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers[t])
}

// Fire delivers ev to every handler registered for its type.
func (s *EventSource) Fire(ev domain.DOMEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.Now()
	}
	s.mu.Lock()
	hs := make([]domain.EventHandler, 0, len(s.handlers[ev.Type]))
	for _, h := range s.handlers[ev.Type] {
		hs = append(hs, h)
	}
	s.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

// Click fires a click on n at the centre of its rect.
func (s *EventSource) Click(n *Node) {
	r := n.Rect
	s.Fire(domain.DOMEvent{
		Type:    domain.EventClick,
		Target:  n,
		Pointer: &domain.Point{X: r.Left + r.Width/2, Y: r.Top + r.Height/2},
	})
}

// Type sets n's value and fires an input event.
func (s *EventSource) Type(n *Node, value string) {
	n.Val = value
	s.Fire(domain.DOMEvent{Type: domain.EventInput, Target: n})
}

// Key fires a keydown on n.
func (s *EventSource) Key(n *Node, key string) {
	s.Fire(domain.DOMEvent{Type: domain.EventKeyDown, Target: n, Key: key})
}

var (
	_ domain.Element     = (*Node)(nil)
	_ domain.Document    = (*Document)(nil)
	_ domain.EventSource = (*EventSource)(nil)
)
