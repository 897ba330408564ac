package render

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/domcore/internal/ref"
	"github.com/vango-dev/domcore/pkg/dom"
	"github.com/vango-dev/domcore/pkg/protocol"
)

// Bridge errors.
var (
	// ErrBridgeClosed is reported to calls still pending when the bridge closes.
	ErrBridgeClosed = errors.New("render: bridge closed")

	// ErrRemoteCall wraps an error reported by the native renderer.
	ErrRemoteCall = errors.New("render: remote call failed")
)

// Conn is the subset of *websocket.Conn used by Bridge.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Target receives traffic from the native renderer. *dom.Manager satisfies it.
type Target interface {
	HandleEvent(event *dom.Event) error
	SetRootSize(width, height float64) error
	DoLayout() error
	EndBatch() error
	PostTask(fn func()) error
}

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	// ReadTimeout bounds the wait for the next frame. Zero disables it.
	ReadTimeout time.Duration

	// WriteTimeout bounds each frame write. Default: 10s.
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Bridge is a render layer that streams committed operations to a native
// renderer over a websocket connection.
type Bridge struct {
	conn   Conn
	target Target
	config BridgeConfig
	logger *slog.Logger
	handle *ref.Handle[dom.RenderManager]

	// Touched on the manager's runner only.
	pending []protocol.RenderOp

	seq atomic.Uint64

	writeMu sync.Mutex

	callMu     sync.Mutex
	calls      map[uint64]dom.CallFunctionCallback
	nextCallID uint64

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	framesSent atomic.Uint64
	bytesSent  atomic.Uint64
}

var _ dom.RenderManager = (*Bridge)(nil)

// NewBridge creates a bridge over conn delivering native traffic to target.
func NewBridge(conn Conn, target Target, config BridgeConfig) *Bridge {
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		conn:   conn,
		target: target,
		config: config,
		logger: logger.With("component", "render_bridge"),
		calls:  make(map[uint64]dom.CallFunctionCallback),
		done:   make(chan struct{}),
	}
	b.handle = ref.New[dom.RenderManager](b)
	return b
}

// Handle returns the lifetime-tracked handle to install with
// dom.Manager.SetRenderManager. It is released when the bridge closes.
func (b *Bridge) Handle() *ref.Handle[dom.RenderManager] {
	return b.handle
}

// Done returns a channel closed when the bridge closes.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// FramesSent returns the number of frames written.
func (b *Bridge) FramesSent() uint64 { return b.framesSent.Load() }

// BytesSent returns the number of bytes written.
func (b *Bridge) BytesSent() uint64 { return b.bytesSent.Load() }

// CreateRenderNode implements dom.RenderManager.
func (b *Bridge) CreateRenderNode(nodes []*dom.Node) {
	b.pending = appendNodes(b.pending, nodes, createOp)
}

// UpdateRenderNode implements dom.RenderManager.
func (b *Bridge) UpdateRenderNode(nodes []*dom.Node) {
	b.pending = appendNodes(b.pending, nodes, updateOp)
}

// MoveRenderNode implements dom.RenderManager.
func (b *Bridge) MoveRenderNode(nodes []*dom.Node) {
	b.pending = appendNodes(b.pending, nodes, moveOp)
}

// DeleteRenderNode implements dom.RenderManager.
func (b *Bridge) DeleteRenderNode(nodes []*dom.Node) {
	b.pending = appendNodes(b.pending, nodes, deleteOp)
}

// UpdateLayout implements dom.RenderManager.
func (b *Bridge) UpdateLayout(nodes []*dom.Node) {
	b.pending = appendLayouts(b.pending, nodes)
}

// AddEventListener implements dom.RenderManager.
func (b *Bridge) AddEventListener(node *dom.Node, name string) {
	b.pending = append(b.pending, listenerOp(protocol.RenderAddListener, node, name))
}

// RemoveEventListener implements dom.RenderManager.
func (b *Bridge) RemoveEventListener(node *dom.Node, name string) {
	b.pending = append(b.pending, listenerOp(protocol.RenderRemoveListener, node, name))
}

// EndBatch implements dom.RenderManager. It sends the pending operations as
// one FrameBatch.
func (b *Bridge) EndBatch() {
	ops := append(b.pending, protocol.RenderOp{Op: protocol.RenderEndBatch})
	b.pending = nil
	b.sendBatch(ops)
}

// SendSnapshot sends the operations that rebuild snap as one batch. Use it
// to bring a freshly attached renderer up to date; calling it from the
// manager's runner keeps it ordered with committed batches.
func (b *Bridge) SendSnapshot(snap *dom.TreeSnapshot) error {
	ops := append(SnapshotOps(snap), protocol.RenderOp{Op: protocol.RenderEndBatch})
	return b.sendBatch(ops)
}

func (b *Bridge) sendBatch(ops []protocol.RenderOp) error {
	seq := b.seq.Add(1)
	payload := protocol.EncodeBatch(&protocol.Batch{Seq: seq, Ops: ops})
	if err := b.write(protocol.NewFrame(protocol.FrameBatch, payload)); err != nil {
		return err
	}
	b.logger.Debug("sent batch", "seq", seq, "ops", len(ops), "bytes", len(payload))
	return nil
}

// CallFunction implements dom.RenderManager. cb runs on the target's runner
// when the renderer answers, or with ErrBridgeClosed if it never does.
func (b *Bridge) CallFunction(node *dom.Node, name string, arg any, cb dom.CallFunctionCallback) {
	b.callMu.Lock()
	if b.closed.Load() {
		b.callMu.Unlock()
		cb(dom.CallResult{Err: ErrBridgeClosed})
		return
	}
	b.nextCallID++
	id := b.nextCallID
	b.calls[id] = cb
	b.callMu.Unlock()

	call := &protocol.Call{CallID: id, NodeID: node.ID(), Name: name, Arg: arg}
	if err := b.write(protocol.NewFrame(protocol.FrameCall, protocol.EncodeCall(call))); err != nil {
		if cb := b.takeCall(id); cb != nil {
			cb(dom.CallResult{Err: err})
		}
	}
}

func (b *Bridge) takeCall(id uint64) dom.CallFunctionCallback {
	b.callMu.Lock()
	defer b.callMu.Unlock()
	cb, ok := b.calls[id]
	if !ok {
		return nil
	}
	delete(b.calls, id)
	return cb
}

// write sends one frame. A failed write closes the bridge.
func (b *Bridge) write(f *protocol.Frame) error {
	if b.closed.Load() {
		return ErrBridgeClosed
	}
	data := f.Encode()

	b.writeMu.Lock()
	b.conn.SetWriteDeadline(time.Now().Add(b.config.WriteTimeout))
	err := b.conn.WriteMessage(websocket.BinaryMessage, data)
	b.writeMu.Unlock()

	if err != nil {
		b.logger.Error("write error", "frame", f.Type.String(), "error", err)
		b.Close()
		return fmt.Errorf("render: write %s: %w", f.Type, err)
	}
	b.framesSent.Add(1)
	b.bytesSent.Add(uint64(len(data)))
	return nil
}

// sendError reports a problem to the renderer. Best effort.
func (b *Bridge) sendError(code protocol.ErrorCode, message string) {
	em := &protocol.ErrorMessage{Code: code, Message: message}
	_ = b.write(protocol.NewFrame(protocol.FrameError, protocol.EncodeErrorMessage(em)))
}

// ReadLoop reads frames until the connection fails or the bridge closes.
// It closes the bridge on return.
func (b *Bridge) ReadLoop() {
	defer b.Close()

	for {
		if b.config.ReadTimeout > 0 {
			b.conn.SetReadDeadline(time.Now().Add(b.config.ReadTimeout))
		}
		_, msg, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				b.logger.Error("read error", "error", err)
			}
			return
		}

		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			b.logger.Warn("frame decode error", "error", err)
			b.sendError(protocol.ErrInvalidFrame, err.Error())
			continue
		}
		b.handleFrame(frame)
	}
}

func (b *Bridge) handleFrame(frame *protocol.Frame) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("frame handler panic",
				"frame", frame.Type.String(),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	switch frame.Type {
	case protocol.FrameEvent:
		b.handleEvent(frame.Payload)
	case protocol.FrameCallResult:
		b.handleCallResult(frame.Payload)
	case protocol.FrameRootSize:
		b.handleRootSize(frame.Payload)
	case protocol.FrameError:
		if em, err := protocol.DecodeErrorMessage(frame.Payload); err == nil {
			b.logger.Warn("renderer error", "code", em.Code.String(), "message", em.Message, "fatal", em.Fatal)
			if em.Fatal {
				b.Close()
			}
		}
	default:
		b.logger.Warn("unexpected frame type", "type", frame.Type.String())
	}
}

func (b *Bridge) handleEvent(payload []byte) {
	pe, err := protocol.DecodeEvent(payload)
	if err != nil {
		b.logger.Warn("event decode error", "error", err)
		b.sendError(protocol.ErrInvalidEvent, "invalid event format")
		return
	}
	ev := dom.NewEvent(pe.NodeID, pe.Name, pe.Payload)
	ev.Capture = pe.Capture
	if err := b.target.HandleEvent(ev); err != nil {
		b.logger.Warn("event rejected", "node_id", pe.NodeID, "event", pe.Name, "error", err)
		b.sendError(protocol.ErrManagerClosed, err.Error())
	}
}

func (b *Bridge) handleCallResult(payload []byte) {
	res, err := protocol.DecodeCallResult(payload)
	if err != nil {
		b.logger.Warn("call result decode error", "error", err)
		return
	}
	cb := b.takeCall(res.CallID)
	if cb == nil {
		b.logger.Debug("call result for unknown call", "call_id", res.CallID)
		return
	}

	result := dom.CallResult{Value: res.Value}
	if res.Error != "" {
		result.Err = fmt.Errorf("%w: %s", ErrRemoteCall, res.Error)
	}
	b.deliver(cb, result)
}

// deliver runs cb on the target's runner, or inline once the runner is gone.
func (b *Bridge) deliver(cb dom.CallFunctionCallback, result dom.CallResult) {
	if err := b.target.PostTask(func() { cb(result) }); err != nil {
		cb(result)
	}
}

// handleRootSize applies a native resize and commits a layout pass.
func (b *Bridge) handleRootSize(payload []byte) {
	size, err := protocol.DecodeRootSize(payload)
	if err != nil {
		b.logger.Warn("root size decode error", "error", err)
		return
	}
	if err := b.target.SetRootSize(size.Width, size.Height); err != nil {
		b.logger.Warn("root size rejected", "width", size.Width, "height", size.Height, "error", err)
		return
	}
	if err := b.target.DoLayout(); err != nil {
		b.logger.Warn("layout rejected", "error", err)
		return
	}
	if err := b.target.EndBatch(); err != nil {
		b.logger.Warn("end batch rejected", "error", err)
	}
}

// Close releases the render handle, fails pending calls with
// ErrBridgeClosed and closes the connection. It is safe to call more than once.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.handle.Release()

		b.callMu.Lock()
		b.closed.Store(true)
		pending := b.calls
		b.calls = make(map[uint64]dom.CallFunctionCallback)
		b.callMu.Unlock()

		for _, cb := range pending {
			b.deliver(cb, dom.CallResult{Err: ErrBridgeClosed})
		}

		b.writeMu.Lock()
		b.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		b.conn.Close()
		b.writeMu.Unlock()

		close(b.done)
		b.logger.Info("bridge closed", "frames_sent", b.framesSent.Load())
	})
}
