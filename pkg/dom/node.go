package dom

import (
	"slices"
	"sort"
)

// Props holds opaque node attributes and style values.
// The coordinator never interprets them except through a Layouter.
type Props map[string]any

// LayoutResult is a computed box relative to the parent node.
type LayoutResult struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// EventCallback receives events dispatched to a listener.
type EventCallback func(event *Event)

type listener struct {
	id      uint32
	capture bool
	cb      EventCallback
}

// Node is an element of a managed tree.
//
// Apart from ID, node state is owned by the manager's runner. Read it only
// from runner tasks, listener callbacks, render-layer calls, or after Sync
// while no other work is posted.
type Node struct {
	id    uint32
	pid   uint32
	index int
	tag   string
	props Props
	diff  Props

	parent   *Node
	children []*Node

	layout     LayoutResult // Computed by the last layout pass
	recorded   LayoutResult // Last box forwarded to the render layer
	hasRecords bool

	listeners map[string][]listener
	wired     map[string]bool // Event names announced to the render layer
}

// NewNode returns a detached node. pid and index locate the node under its
// parent when it is created or moved; props are copied.
func NewNode(id, pid uint32, index int, tag string, props Props) *Node {
	return &Node{
		id:    id,
		pid:   pid,
		index: index,
		tag:   tag,
		props: copyProps(props),
	}
}

func copyProps(p Props) Props {
	if len(p) == 0 {
		return Props{}
	}
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ID returns the node identifier.
func (n *Node) ID() uint32 { return n.id }

// PID returns the parent identifier.
func (n *Node) PID() uint32 { return n.pid }

// Tag returns the view name.
func (n *Node) Tag() string { return n.tag }

// Index returns the node's position among its parent's children, or the
// requested index for a detached node.
func (n *Node) Index() int {
	if n.parent != nil {
		if i := n.parent.indexOf(n); i >= 0 {
			return i
		}
	}
	return n.index
}

// Props returns the node's props. Callers must not modify the map.
func (n *Node) Props() Props { return n.props }

// Prop returns a single prop value.
func (n *Node) Prop(key string) (any, bool) {
	v, ok := n.props[key]
	return v, ok
}

// Diff returns the props changed by the most recent update. A nil value
// means the key was removed.
func (n *Node) Diff() Props { return n.diff }

// Parent returns the parent node, or nil for a root or detached node.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the child list.
func (n *Node) Children() []*Node { return slices.Clone(n.children) }

// ChildCount returns the number of children.
func (n *Node) ChildCount() int { return len(n.children) }

// Layout returns the box computed by the last layout pass.
func (n *Node) Layout() LayoutResult { return n.layout }

// SetLayout records a computed box. Layouters call it during a layout pass.
func (n *Node) SetLayout(r LayoutResult) { n.layout = r }

// ListenerCount returns the number of listeners registered for name.
func (n *Node) ListenerCount(name string) int { return len(n.listeners[name]) }

// HasEventListener reports whether any listener is registered for name.
func (n *Node) HasEventListener(name string) bool { return len(n.listeners[name]) > 0 }

// EventNames returns the sorted names that have at least one listener.
func (n *Node) EventNames() []string {
	names := make([]string, 0, len(n.listeners))
	for name, ls := range n.listeners {
		if len(ls) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (n *Node) indexOf(child *Node) int {
	return slices.Index(n.children, child)
}

// addChildAt inserts child at index, clamped to the valid range.
func (n *Node) addChildAt(child *Node, index int) {
	if index < 0 || index > len(n.children) {
		index = len(n.children)
	}
	n.children = slices.Insert(n.children, index, child)
	child.parent = n
	child.pid = n.id
	child.index = index
}

func (n *Node) removeChild(child *Node) bool {
	i := n.indexOf(child)
	if i < 0 {
		return false
	}
	n.children = slices.Delete(n.children, i, i+1)
	child.parent = nil
	return true
}

// detach removes n from its parent.
func (n *Node) detach() {
	if n.parent != nil {
		n.parent.removeChild(n)
	}
}

// isAncestorOf reports whether n is other or one of its ancestors.
func (n *Node) isAncestorOf(other *Node) bool {
	for p := other; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// applyUpdate merges an update into n and records the diff.
func (n *Node) applyUpdate(u *Node) {
	if u.tag != "" {
		n.tag = u.tag
	}
	diff := make(Props, len(u.props))
	for k, v := range u.props {
		if v == nil {
			if _, ok := n.props[k]; ok {
				delete(n.props, k)
				diff[k] = nil
			}
			continue
		}
		n.props[k] = v
		diff[k] = v
	}
	n.diff = diff
}

// walk visits n and its descendants in pre-order.
func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.walk(fn)
	}
}

// layoutChanged reports whether the computed box differs from the box last
// forwarded to the render layer.
func (n *Node) layoutChanged() bool {
	return !n.hasRecords || n.layout != n.recorded
}

func (n *Node) recordLayout() {
	n.recorded = n.layout
	n.hasRecords = true
}

func (n *Node) addListener(name string, l listener) {
	if n.listeners == nil {
		n.listeners = make(map[string][]listener)
	}
	n.listeners[name] = append(n.listeners[name], l)
}

// removeListener removes the listener with id under name.
func (n *Node) removeListener(name string, id uint32) bool {
	ls := n.listeners[name]
	for i, l := range ls {
		if l.id == id {
			ls = slices.Delete(ls, i, i+1)
			if len(ls) == 0 {
				delete(n.listeners, name)
			} else {
				n.listeners[name] = ls
			}
			return true
		}
	}
	return false
}

// matching returns a copy of the listeners for name in the given phase, in
// registration order.
func (n *Node) matching(name string, capture bool) []listener {
	var out []listener
	for _, l := range n.listeners[name] {
		if l.capture == capture {
			out = append(out, l)
		}
	}
	return out
}
