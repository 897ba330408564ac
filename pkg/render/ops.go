package render

import (
	"maps"

	"github.com/vango-dev/domcore/pkg/dom"
	"github.com/vango-dev/domcore/pkg/protocol"
)

// Render-layer node pointers are only valid for the duration of a call, so
// every helper here copies what it needs into a protocol.RenderOp.

func appendNodes(ops []protocol.RenderOp, nodes []*dom.Node, fn func(*dom.Node) protocol.RenderOp) []protocol.RenderOp {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		ops = append(ops, fn(n))
	}
	return ops
}

func createOp(n *dom.Node) protocol.RenderOp {
	return protocol.RenderOp{
		Op:    protocol.RenderCreate,
		ID:    n.ID(),
		PID:   n.PID(),
		Index: n.Index(),
		Tag:   n.Tag(),
		Props: cloneProps(n.Props()),
	}
}

func updateOp(n *dom.Node) protocol.RenderOp {
	return protocol.RenderOp{
		Op:    protocol.RenderUpdate,
		ID:    n.ID(),
		Tag:   n.Tag(),
		Props: cloneProps(n.Diff()),
	}
}

func moveOp(n *dom.Node) protocol.RenderOp {
	return protocol.RenderOp{
		Op:    protocol.RenderMove,
		ID:    n.ID(),
		PID:   n.PID(),
		Index: n.Index(),
	}
}

func deleteOp(n *dom.Node) protocol.RenderOp {
	return protocol.RenderOp{Op: protocol.RenderDelete, ID: n.ID()}
}

func appendLayouts(ops []protocol.RenderOp, nodes []*dom.Node) []protocol.RenderOp {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		ops = append(ops, protocol.RenderOp{
			Op:  protocol.RenderLayout,
			ID:  n.ID(),
			Box: toBox(n.Layout()),
		})
	}
	return ops
}

func listenerOp(code protocol.RenderOpCode, n *dom.Node, name string) protocol.RenderOp {
	return protocol.RenderOp{Op: code, ID: n.ID(), Event: name}
}

// SnapshotOps converts a captured tree into the operations that rebuild it
// on a fresh renderer: creates in pre-order, then layouts, then listeners.
// The result does not include the closing RenderEndBatch.
func SnapshotOps(snap *dom.TreeSnapshot) []protocol.RenderOp {
	if snap == nil || len(snap.Nodes) == 0 {
		return nil
	}

	ops := make([]protocol.RenderOp, 0, 2*len(snap.Nodes))
	for _, ns := range snap.Nodes {
		ops = append(ops, protocol.RenderOp{
			Op:    protocol.RenderCreate,
			ID:    ns.ID,
			PID:   ns.PID,
			Index: ns.Index,
			Tag:   ns.Tag,
			Props: cloneProps(ns.Props),
		})
	}
	for _, ns := range snap.Nodes {
		ops = append(ops, protocol.RenderOp{
			Op:  protocol.RenderLayout,
			ID:  ns.ID,
			Box: toBox(ns.Layout),
		})
	}
	for _, ns := range snap.Nodes {
		for _, name := range ns.Events {
			ops = append(ops, protocol.RenderOp{
				Op:    protocol.RenderAddListener,
				ID:    ns.ID,
				Event: name,
			})
		}
	}
	return ops
}

func cloneProps(p dom.Props) map[string]any {
	if len(p) == 0 {
		return nil
	}
	return maps.Clone(map[string]any(p))
}

func toBox(r dom.LayoutResult) protocol.Box {
	return protocol.Box{Left: r.Left, Top: r.Top, Width: r.Width, Height: r.Height}
}
