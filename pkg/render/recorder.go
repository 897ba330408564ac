package render

import (
	"sync"

	"github.com/vango-dev/domcore/pkg/dom"
	"github.com/vango-dev/domcore/pkg/protocol"
)

// CallHandler answers CallFunction requests made to a Recorder.
type CallHandler func(nodeID uint32, name string, arg any) (any, error)

// Recorder is an in-memory render layer. It groups operations into batches
// terminated by EndBatch.
type Recorder struct {
	mu      sync.Mutex
	pending []protocol.RenderOp
	batches []protocol.Batch
	calls   CallHandler
}

// NewRecorder creates a Recorder. handler may be nil, in which case every
// call succeeds with a nil value.
func NewRecorder(handler CallHandler) *Recorder {
	return &Recorder{calls: handler}
}

var _ dom.RenderManager = (*Recorder)(nil)

func (r *Recorder) push(fn func([]protocol.RenderOp) []protocol.RenderOp) {
	r.mu.Lock()
	r.pending = fn(r.pending)
	r.mu.Unlock()
}

// CreateRenderNode implements dom.RenderManager.
func (r *Recorder) CreateRenderNode(nodes []*dom.Node) {
	r.push(func(ops []protocol.RenderOp) []protocol.RenderOp { return appendNodes(ops, nodes, createOp) })
}

// UpdateRenderNode implements dom.RenderManager.
func (r *Recorder) UpdateRenderNode(nodes []*dom.Node) {
	r.push(func(ops []protocol.RenderOp) []protocol.RenderOp { return appendNodes(ops, nodes, updateOp) })
}

// MoveRenderNode implements dom.RenderManager.
func (r *Recorder) MoveRenderNode(nodes []*dom.Node) {
	r.push(func(ops []protocol.RenderOp) []protocol.RenderOp { return appendNodes(ops, nodes, moveOp) })
}

// DeleteRenderNode implements dom.RenderManager.
func (r *Recorder) DeleteRenderNode(nodes []*dom.Node) {
	r.push(func(ops []protocol.RenderOp) []protocol.RenderOp { return appendNodes(ops, nodes, deleteOp) })
}

// UpdateLayout implements dom.RenderManager.
func (r *Recorder) UpdateLayout(nodes []*dom.Node) {
	r.push(func(ops []protocol.RenderOp) []protocol.RenderOp { return appendLayouts(ops, nodes) })
}

// AddEventListener implements dom.RenderManager.
func (r *Recorder) AddEventListener(node *dom.Node, name string) {
	r.push(func(ops []protocol.RenderOp) []protocol.RenderOp {
		return append(ops, listenerOp(protocol.RenderAddListener, node, name))
	})
}

// RemoveEventListener implements dom.RenderManager.
func (r *Recorder) RemoveEventListener(node *dom.Node, name string) {
	r.push(func(ops []protocol.RenderOp) []protocol.RenderOp {
		return append(ops, listenerOp(protocol.RenderRemoveListener, node, name))
	})
}

// CallFunction implements dom.RenderManager. The handler runs synchronously.
func (r *Recorder) CallFunction(node *dom.Node, name string, arg any, cb dom.CallFunctionCallback) {
	var value any
	var err error
	if r.calls != nil {
		value, err = r.calls(node.ID(), name, arg)
	}
	cb(dom.CallResult{Value: value, Err: err})
}

// EndBatch implements dom.RenderManager.
func (r *Recorder) EndBatch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, protocol.Batch{
		Seq: uint64(len(r.batches) + 1),
		Ops: r.pending,
	})
	r.pending = nil
}

// Batches returns the completed batches.
func (r *Recorder) Batches() []protocol.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.Batch, len(r.batches))
	copy(out, r.batches)
	return out
}

// Last returns the most recent batch, if any.
func (r *Recorder) Last() (protocol.Batch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return protocol.Batch{}, false
	}
	return r.batches[len(r.batches)-1], true
}

// Reset discards recorded batches and pending operations.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.pending = nil
	r.batches = nil
	r.mu.Unlock()
}
