package dom

import (
	"context"
	"time"
)

// TreeSnapshot is a serializable copy of a committed tree.
type TreeSnapshot struct {
	ManagerID  int32          `json:"manager_id"`
	RootID     uint32         `json:"root_id"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	CapturedAt time.Time      `json:"captured_at"`
	Nodes      []NodeSnapshot `json:"nodes"`
}

// NodeSnapshot is one node of a TreeSnapshot, in pre-order.
type NodeSnapshot struct {
	ID       uint32       `json:"id"`
	PID      uint32       `json:"pid"`
	Index    int          `json:"index"`
	Tag      string       `json:"tag"`
	Props    Props        `json:"props,omitempty"`
	Layout   LayoutResult `json:"layout"`
	Events   []string     `json:"events,omitempty"`
	Children []uint32     `json:"children,omitempty"`
}

// Snapshot captures the committed tree on the runner and waits for the
// result. Staged but uncommitted operations are not reflected.
func (m *Manager) Snapshot(ctx context.Context) (*TreeSnapshot, error) {
	result := make(chan *TreeSnapshot, 1)
	if err := m.post("snapshot", 0, func() {
		result <- m.Capture()
	}); err != nil {
		return nil, err
	}

	select {
	case snap := <-result:
		return snap, nil
	case <-m.Done():
		select {
		case snap := <-result:
			return snap, nil
		default:
			return nil, m.opError("snapshot", 0, ErrManagerClosed)
		}
	case <-ctx.Done():
		return nil, m.opError("snapshot", 0, ctx.Err())
	}
}

// Capture returns a snapshot of the committed tree. Runner-owned; call it
// from a posted task.
func (m *Manager) Capture() *TreeSnapshot {
	width, height := m.GetRootSize()
	snap := &TreeSnapshot{
		ManagerID:  m.id,
		RootID:     m.GetRootID(),
		Width:      width,
		Height:     height,
		CapturedAt: time.Now().UTC(),
	}
	m.Traverse(func(n *Node) {
		ns := NodeSnapshot{
			ID:     n.id,
			PID:    n.pid,
			Index:  n.Index(),
			Tag:    n.tag,
			Props:  copyProps(n.props),
			Layout: n.layout,
			Events: n.EventNames(),
		}
		if n.parent == nil {
			ns.PID = 0
		}
		for _, c := range n.children {
			ns.Children = append(ns.Children, c.id)
		}
		snap.Nodes = append(snap.Nodes, ns)
	})
	return snap
}
