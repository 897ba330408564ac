package dom

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
)

// Layouter computes boxes for a tree. Implementations set each node's box
// with Node.SetLayout; the coordinator compares them to the previously
// forwarded boxes.
type Layouter interface {
	Layout(root *Node, width, height float64)
}

// LayouterFunc adapts a function to the Layouter interface.
type LayouterFunc func(root *Node, width, height float64)

// Layout calls f(root, width, height).
func (f LayouterFunc) Layout(root *Node, width, height float64) {
	f(root, width, height)
}

// AbsoluteLayout places the root at the full root size and every other node
// at the numeric "left", "top", "width" and "height" props it carries,
// relative to its parent. Missing props are zero.
type AbsoluteLayout struct{}

// Layout implements Layouter.
func (AbsoluteLayout) Layout(root *Node, width, height float64) {
	root.SetLayout(LayoutResult{Width: width, Height: height})
	for _, c := range root.children {
		c.walk(func(n *Node) {
			n.SetLayout(LayoutResult{
				Left:   numberProp(n, "left"),
				Top:    numberProp(n, "top"),
				Width:  numberProp(n, "width"),
				Height: numberProp(n, "height"),
			})
		})
	}
}

func numberProp(n *Node, key string) float64 {
	v, ok := n.props[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint32:
		return float64(x)
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// SetRootSize stores the root dimensions used by the next layout pass.
// Both values must be finite and non-negative; otherwise the stored size is
// left unchanged.
func (m *Manager) SetRootSize(width, height float64) error {
	if !validDimension(width) || !validDimension(height) {
		return m.opError("set_root_size", 0,
			fmt.Errorf("%w: got %vx%v", ErrInvalidRootSize, width, height))
	}
	m.sizeMu.Lock()
	m.width, m.height = width, height
	m.sizeMu.Unlock()
	return nil
}

func validDimension(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// GetRootSize returns the stored root dimensions.
func (m *Manager) GetRootSize() (width, height float64) {
	m.sizeMu.RLock()
	defer m.sizeMu.RUnlock()
	return m.width, m.height
}

// SetRootNode installs node as the tree root, replacing any previous root.
// The new root adopts the previous root's children when it has none of its
// own. The root id follows the node.
//
// The swap is committed immediately: the render layer sees the previous
// root's event names withdrawn, the new root created, adopted children moved
// under it, the previous root deleted, and a layout pass, closed by EndBatch.
func (m *Manager) SetRootNode(node *Node) error {
	if node == nil {
		return m.opError("set_root_node", 0, ErrNilNode)
	}
	if _, err := nodeKey(node.id); err != nil {
		return m.opError("set_root_node", node.id, err)
	}
	return m.post("set_root_node", node.id, func() {
		old := m.root
		if old == node {
			return
		}
		rm, hasRender := m.GetRenderManager()

		var adopted []*Node
		if old != nil {
			if hasRender {
				for _, name := range old.EventNames() {
					if old.wired[name] {
						rm.RemoveEventListener(old, name)
					}
				}
			}
			oldChildren := old.Children()
			m.replace(old, node)
			for _, c := range oldChildren {
				if c.parent == node {
					adopted = append(adopted, c)
				}
			}
			if key, err := nodeKey(old.id); err == nil && m.registry.GetNode(key) == old {
				m.registry.RemoveNode(key)
			}
			old.listeners = nil
			old.wired = nil
		}
		node.detach()
		if err := m.registry.AddNode(node); err != nil {
			m.logger.Warn("operation failed", "op", "set_root_node", "node_id", node.id, "error", err)
			return
		}
		m.root = node
		m.rootID.Store(node.id)

		if !hasRender {
			return
		}
		rm.CreateRenderNode([]*Node{node})
		if len(adopted) > 0 {
			rm.MoveRenderNode(adopted)
		}
		if old != nil {
			rm.DeleteRenderNode([]*Node{old})
		}
		m.layoutPass(context.Background())
		rm.EndBatch()
	})
}

// Root returns the tree root, or nil. Runner-owned.
func (m *Manager) Root() *Node { return m.root }

// DoLayout stages a layout pass for the current batch.
func (m *Manager) DoLayout() error {
	return m.enqueue(Operation{Kind: OpLayout})
}

// AddLayoutChangedNode marks node as changed in the current layout pass.
// Marking the same node twice has no effect.
func (m *Manager) AddLayoutChangedNode(node *Node) {
	if node == nil {
		return
	}
	if m.layoutChangedSet == nil {
		m.layoutChangedSet = make(map[*Node]struct{})
	}
	if _, ok := m.layoutChangedSet[node]; ok {
		return
	}
	m.layoutChangedSet[node] = struct{}{}
	m.layoutChanged = append(m.layoutChanged, node)
}

// LayoutChangedNodes returns the nodes forwarded by the last layout pass, in
// tree order. Runner-owned.
func (m *Manager) LayoutChangedNodes() []*Node {
	out := make([]*Node, len(m.layoutChanged))
	copy(out, m.layoutChanged)
	return out
}

// layoutPass computes layout for the current tree and forwards the nodes
// whose box changed. It returns the number of forwarded nodes.
func (m *Manager) layoutPass(ctx context.Context) int {
	m.layoutChanged = m.layoutChanged[:0]
	clear(m.layoutChangedSet)

	root := m.root
	if root == nil {
		return 0
	}

	_, span := m.tracer.Start(ctx, "dom.Layout")
	defer span.End()

	width, height := m.GetRootSize()
	if !m.runLayouter(root, width, height) {
		return 0
	}

	root.walk(func(n *Node) {
		if n.layoutChanged() {
			m.AddLayoutChangedNode(n)
			n.recordLayout()
		}
	})

	changed := len(m.layoutChanged)
	span.SetAttributes(
		attribute.Float64("dom.root.width", width),
		attribute.Float64("dom.root.height", height),
		attribute.Int("dom.layout.changed", changed),
	)
	m.metrics.ObserveLayout(changed)

	if changed > 0 {
		if rm, ok := m.GetRenderManager(); ok {
			rm.UpdateLayout(m.LayoutChangedNodes())
		}
	}
	return changed
}

// runLayouter invokes the layouter, recovering panics.
func (m *Manager) runLayouter(root *Node, width, height float64) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("layout panic", "panic", r, "stack", string(debug.Stack()))
			ok = false
		}
	}()

	m.layouter.Layout(root, width, height)
	return true
}

// Traverse visits the committed tree in pre-order. Runner-owned; call it from
// a posted task.
func (m *Manager) Traverse(fn func(*Node)) {
	if m.root == nil || fn == nil {
		return
	}
	m.root.walk(fn)
}
