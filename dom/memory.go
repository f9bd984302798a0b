package dom

import (
	"context"
	"fmt"
)

const (
	EventClick  = "click"
	EventChange = "change"
)

type Event struct {
	Type string
	// Target is the node the event was dispatched on.
	Target *Node
	// Current is the node whose listener is running.
	Current *Node
}

type Listener func(Event)

// Memory is an in-memory document tree. Events dispatched on a node bubble
// up through its ancestors to the root. Listeners may add or remove nodes
// while an event is running. Memory is not safe for concurrent use.
type Memory struct {
	root  *Node
	nodes map[string]*Node
}

type Node struct {
	ID string

	doc       *Memory
	parent    *Node
	options   []Option
	value     string
	listeners map[string][]Listener
}

func NewMemory() *Memory {
	m := &Memory{nodes: make(map[string]*Node)}
	m.root = &Node{doc: m}
	return m
}

// Root is the document node. It has no id and cannot be looked up.
func (m *Memory) Root() *Node {
	return m.root
}

// Add attaches a plain element under parent, or under the root when parent
// is nil. An existing element with the same id is replaced.
func (m *Memory) Add(id string, parent *Node) *Node {
	if parent == nil {
		parent = m.root
	}
	n := &Node{ID: id, doc: m, parent: parent}
	m.nodes[id] = n
	return n
}

// AddSelect attaches a select control. The first option starts selected,
// as a browser does.
func (m *Memory) AddSelect(id string, parent *Node, opts ...Option) *Node {
	n := m.Add(id, parent)
	n.options = append([]Option{}, opts...)
	if len(n.options) > 0 {
		n.value = n.options[0].Value
	}
	return n
}

// Remove detaches id and every element below it.
func (m *Memory) Remove(id string) {
	target, ok := m.nodes[id]
	if !ok {
		return
	}
	for key, n := range m.nodes {
		for p := n; p != nil; p = p.parent {
			if p == target {
				delete(m.nodes, key)
				break
			}
		}
	}
}

func (m *Memory) Node(id string) (*Node, bool) {
	n, ok := m.nodes[id]
	return n, ok
}

func (m *Memory) Clickable(_ context.Context, key string) (Clickable, error) {
	n, ok := m.nodes[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return n, nil
}

func (m *Memory) Selectable(_ context.Context, key string) (Selectable, error) {
	n, ok := m.nodes[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if n.options == nil {
		return nil, fmt.Errorf("%s: %w", key, ErrNotSelectable)
	}
	return n, nil
}

func (n *Node) On(eventType string, l Listener) {
	if n.listeners == nil {
		n.listeners = make(map[string][]Listener)
	}
	n.listeners[eventType] = append(n.listeners[eventType], l)
}

func (n *Node) Value() string {
	return n.value
}

// SetValue changes the selection without notifying anyone, like assigning
// .value before any listener is attached.
func (n *Node) SetValue(v string) {
	n.value = v
}

func (n *Node) attached() bool {
	if n == n.doc.root {
		return true
	}
	cur, ok := n.doc.nodes[n.ID]
	return ok && cur == n
}

func (n *Node) Click(context.Context) error {
	if !n.attached() {
		return fmt.Errorf("%s: %w", n.ID, ErrNotFound)
	}
	n.dispatch(EventClick)
	return nil
}

func (n *Node) Options(context.Context) ([]Option, error) {
	if n.options == nil {
		return nil, fmt.Errorf("%s: %w", n.ID, ErrNotSelectable)
	}
	return append([]Option{}, n.options...), nil
}

// Select follows HTMLSelectElement: a value no option carries clears the
// selection.
func (n *Node) Select(_ context.Context, value string) error {
	if n.options == nil {
		return fmt.Errorf("%s: %w", n.ID, ErrNotSelectable)
	}
	n.value = ""
	for _, o := range n.options {
		if o.Value == value {
			n.value = value
			break
		}
	}
	n.dispatch(EventChange)
	return nil
}

func (n *Node) dispatch(eventType string) {
	ev := Event{Type: eventType, Target: n}
	for cur := n; cur != nil; cur = cur.parent {
		ev.Current = cur
		for _, l := range cur.listeners[eventType] {
			l(ev)
		}
	}
}
