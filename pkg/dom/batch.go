package dom

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CreateDomNodes stages one create operation for nodes. Each node is
// registered under its id and inserted under the node named by its PID at
// its index. A node whose id equals the root id becomes the tree root.
func (m *Manager) CreateDomNodes(nodes []*Node) error {
	return m.enqueue(Operation{Kind: OpCreate, Nodes: nodes})
}

// UpdateDomNodes stages one update operation. Each node carries the id of a
// registered node and the props to merge into it; a nil prop value removes
// the key.
func (m *Manager) UpdateDomNodes(nodes []*Node) error {
	return m.enqueue(Operation{Kind: OpUpdate, Nodes: nodes})
}

// MoveDomNodes stages one move operation. Each node carries the id of a
// registered node and its new PID and index.
func (m *Manager) MoveDomNodes(nodes []*Node) error {
	return m.enqueue(Operation{Kind: OpMove, Nodes: nodes})
}

// DeleteDomNodes stages one delete operation. Each node carries the id of a
// registered node; the node and its subtree are removed.
func (m *Manager) DeleteDomNodes(nodes []*Node) error {
	return m.enqueue(Operation{Kind: OpDelete, Nodes: nodes})
}

// EndBatch commits everything staged so far. Work posted after EndBatch
// belongs to the next batch.
func (m *Manager) EndBatch() error {
	return m.post("end_batch", 0, m.commit)
}

// commit drains the structural, listener and layout queues in that order,
// then runs one layout pass if anything asked for it. Runs on the runner.
func (m *Manager) commit() {
	if m.pending.empty() {
		return
	}

	start := time.Now()
	b := m.pending.take()
	ctx, span := m.tracer.Start(context.Background(), "dom.EndBatch",
		trace.WithAttributes(
			attribute.Int("dom.manager_id", int(m.id)),
			attribute.Int("dom.ops.structural", len(b.structural)),
			attribute.Int("dom.ops.listener", len(b.listener)),
			attribute.Int("dom.ops.layout", len(b.layout)),
		))
	defer span.End()

	var failures, dropped int
	needLayout := false
	for q, queue := range [][]Operation{b.structural, b.listener, b.layout} {
		for _, op := range queue {
			if opQueue(q) == queueStructural {
				var keep bool
				if op, keep = m.intercept(op); !keep {
					dropped++
					continue
				}
			}
			changed, err := m.apply(op)
			if err != nil {
				failures++
			}
			needLayout = needLayout || changed
		}
	}

	var forwarded int
	if needLayout {
		forwarded = m.layoutPass(ctx)
	}

	if rm, ok := m.GetRenderManager(); ok {
		rm.EndBatch()
	}

	span.SetAttributes(
		attribute.Int("dom.failures", failures),
		attribute.Int("dom.intercepted", dropped),
		attribute.Int("dom.layout.changed", forwarded),
	)
	if failures > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d operations failed", failures))
	}
	m.metrics.ObserveCommit(time.Since(start))
	m.logger.Debug("batch committed",
		"ops", b.len(),
		"failures", failures,
		"dropped", dropped,
		"layout_changed", forwarded,
		"nodes", m.registry.Len())
}

// intercept passes op through the interceptors in order. A panicking
// interceptor drops the operation.
func (m *Manager) intercept(op Operation) (out Operation, keep bool) {
	if len(m.interceptors) == 0 {
		return op, true
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("interceptor panic",
				"op", op.Kind.String(),
				"panic", r,
				"stack", string(debug.Stack()))
			m.metrics.OperationApplied(op.Kind.String(), ErrOperationPanic)
			keep = false
		}
	}()

	kind := op.Kind
	for _, i := range m.interceptors {
		if op, keep = i(op); !keep {
			m.logger.Debug("operation dropped by interceptor", "op", kind.String())
			return op, false
		}
		// Rewrites stay within the structural queue.
		if op.Kind.queue() != queueStructural {
			m.logger.Warn("interceptor changed operation kind", "op", kind.String(), "to", op.Kind.String())
			return op, false
		}
	}
	return op, true
}

// apply runs a single operation in isolation. It reports whether the tree
// needs a layout pass afterwards. Failures and panics are logged and
// returned; they never propagate further.
func (m *Manager) apply(op Operation) (changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("operation panic",
				"op", op.Kind.String(),
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrOperationPanic, r)
		}
		m.metrics.OperationApplied(op.Kind.String(), err)
		if err != nil {
			m.logger.Warn("operation failed", "op", op.Kind.String(), "node_id", op.NodeID, "error", err)
		}
	}()

	switch op.Kind {
	case OpCreate:
		return m.createNodes(op.Nodes)
	case OpUpdate:
		return m.updateNodes(op.Nodes)
	case OpMove:
		return m.moveNodes(op.Nodes)
	case OpDelete:
		return m.deleteNodes(op.Nodes)
	case OpAddListener:
		return false, m.wireListener(op)
	case OpRemoveListener:
		return false, m.unwireListener(op)
	case OpLayout:
		return true, nil
	default:
		return false, m.opError(op.Kind.String(), 0, ErrInvalidArgument)
	}
}

func (m *Manager) createNodes(nodes []*Node) (bool, error) {
	var created []*Node
	var errs []error
	rootID := m.GetRootID()

	for _, n := range nodes {
		if n == nil {
			errs = append(errs, m.opError("create", 0, ErrNilNode))
			continue
		}
		if _, err := nodeKey(n.id); err != nil {
			errs = append(errs, m.opError("create", n.id, err))
			continue
		}

		var parent *Node
		if n.id != rootID {
			parent = m.registry.lookup(n.pid)
			if parent == nil {
				errs = append(errs, m.opError("create", n.id, ErrParentNotFound))
				continue
			}
		}

		if old := m.registry.lookup(n.id); old != nil && old != n {
			m.replace(old, n)
		}
		if err := m.registry.AddNode(n); err != nil {
			errs = append(errs, m.opError("create", n.id, err))
			continue
		}
		if parent != nil {
			if n.parent != parent {
				n.detach()
				parent.addChildAt(n, n.index)
			}
		} else {
			m.root = n
		}
		created = append(created, n)
	}

	if len(created) > 0 {
		if rm, ok := m.GetRenderManager(); ok {
			rm.CreateRenderNode(created)
		}
	}
	return len(created) > 0, errors.Join(errs...)
}

// replace hands old's place in the tree to n, which adopts old's children.
func (m *Manager) replace(old, n *Node) {
	if len(n.children) == 0 {
		n.children = old.children
		for _, c := range n.children {
			c.parent = n
			c.pid = n.id
		}
		old.children = nil
	}
	old.detach()
	if m.root == old {
		m.root = n
	}
}

func (m *Manager) updateNodes(nodes []*Node) (bool, error) {
	var updated []*Node
	var errs []error

	for _, u := range nodes {
		if u == nil {
			errs = append(errs, m.opError("update", 0, ErrNilNode))
			continue
		}
		n := m.registry.lookup(u.id)
		if n == nil {
			errs = append(errs, m.opError("update", u.id, ErrNodeNotFound))
			continue
		}
		n.applyUpdate(u)
		updated = append(updated, n)
	}

	if len(updated) > 0 {
		if rm, ok := m.GetRenderManager(); ok {
			rm.UpdateRenderNode(updated)
		}
	}
	return len(updated) > 0, errors.Join(errs...)
}

func (m *Manager) moveNodes(nodes []*Node) (bool, error) {
	var moved []*Node
	var errs []error

	for _, mv := range nodes {
		if mv == nil {
			errs = append(errs, m.opError("move", 0, ErrNilNode))
			continue
		}
		n := m.registry.lookup(mv.id)
		if n == nil {
			errs = append(errs, m.opError("move", mv.id, ErrNodeNotFound))
			continue
		}
		parent := m.registry.lookup(mv.pid)
		if parent == nil {
			errs = append(errs, m.opError("move", mv.id, ErrParentNotFound))
			continue
		}
		if n.isAncestorOf(parent) {
			errs = append(errs, m.opError("move", mv.id,
				fmt.Errorf("%w: node %d cannot move under its own subtree", ErrInvalidArgument, mv.id)))
			continue
		}
		n.detach()
		parent.addChildAt(n, mv.index)
		moved = append(moved, n)
	}

	if len(moved) > 0 {
		if rm, ok := m.GetRenderManager(); ok {
			rm.MoveRenderNode(moved)
		}
	}
	return len(moved) > 0, errors.Join(errs...)
}

func (m *Manager) deleteNodes(nodes []*Node) (bool, error) {
	var deleted []*Node
	var errs []error

	for _, d := range nodes {
		if d == nil {
			errs = append(errs, m.opError("delete", 0, ErrNilNode))
			continue
		}
		n := m.registry.lookup(d.id)
		if n == nil {
			errs = append(errs, m.opError("delete", d.id, ErrNodeNotFound))
			continue
		}
		n.detach()
		m.removeSubtree(n)
		if m.root == n {
			m.root = nil
		}
		deleted = append(deleted, n)
	}

	if len(deleted) > 0 {
		if rm, ok := m.GetRenderManager(); ok {
			rm.DeleteRenderNode(deleted)
		}
	}
	return len(deleted) > 0, errors.Join(errs...)
}

// removeSubtree erases n and its descendants from the registry, children
// first, and drops their listeners.
func (m *Manager) removeSubtree(n *Node) {
	for _, c := range n.children {
		m.removeSubtree(c)
	}
	if key, err := nodeKey(n.id); err == nil && m.registry.GetNode(key) == n {
		m.registry.RemoveNode(key)
	}
	n.listeners = nil
	n.wired = nil
}
