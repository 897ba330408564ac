package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/domcore/internal/ref"
	"github.com/vango-dev/domcore/pkg/dom"
	"github.com/vango-dev/domcore/pkg/protocol"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager(t *testing.T) *dom.Manager {
	t.Helper()
	m := dom.NewManager(1, dom.WithLogger(quietLogger()))
	if err := m.StartTaskRunner(); err != nil {
		t.Fatalf("StartTaskRunner() error = %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func mustSync(t *testing.T, m *dom.Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
}

func commitTree(t *testing.T, m *dom.Manager) {
	t.Helper()
	if err := m.SetRootSize(200, 100); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateDomNodes([]*dom.Node{
		dom.NewNode(1, 0, 0, "View", nil),
		dom.NewNode(2, 1, 0, "Text", dom.Props{"text": "hello", "width": 50, "height": 10}),
	}); err != nil {
		t.Fatal(err)
	}
	if err := m.EndBatch(); err != nil {
		t.Fatal(err)
	}
	mustSync(t, m)
}

func opCodes(ops []protocol.RenderOp) []protocol.RenderOpCode {
	out := make([]protocol.RenderOpCode, len(ops))
	for i, op := range ops {
		out[i] = op.Op
	}
	return out
}

func equalCodes(a, b []protocol.RenderOpCode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRecorderCapturesBatches(t *testing.T) {
	m := newManager(t)
	rec := NewRecorder(func(id uint32, name string, arg any) (any, error) {
		if name == "fail" {
			return nil, errors.New("nope")
		}
		return id, nil
	})
	m.SetRenderManager(ref.New[dom.RenderManager](rec))
	commitTree(t, m)

	batches := rec.Batches()
	if len(batches) != 1 {
		t.Fatalf("len(Batches()) = %d, want 1", len(batches))
	}
	want := []protocol.RenderOpCode{protocol.RenderCreate, protocol.RenderCreate, protocol.RenderLayout, protocol.RenderLayout}
	if got := opCodes(batches[0].Ops); !equalCodes(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
	create := batches[0].Ops[1]
	if create.ID != 2 || create.PID != 1 || create.Tag != "Text" || create.Props["text"] != "hello" {
		t.Errorf("create op = %+v", create)
	}
	if box := batches[0].Ops[3].Box; box.Width != 50 || box.Height != 10 {
		t.Errorf("layout box = %+v", box)
	}

	if err := m.UpdateDomNodes([]*dom.Node{dom.NewNode(2, 0, 0, "", dom.Props{"text": "bye"})}); err != nil {
		t.Fatal(err)
	}
	if err := m.EndBatch(); err != nil {
		t.Fatal(err)
	}
	mustSync(t, m)
	last, ok := rec.Last()
	if !ok || last.Seq != 2 || len(last.Ops) != 1 || last.Ops[0].Props["text"] != "bye" {
		t.Errorf("Last() = %+v, %v", last, ok)
	}

	results := make(chan dom.CallResult, 2)
	m.CallFunction(2, "measure", nil, func(r dom.CallResult) { results <- r })
	m.CallFunction(2, "fail", nil, func(r dom.CallResult) { results <- r })
	if r := <-results; r.Value != uint32(2) {
		t.Errorf("measure result = %+v", r)
	}
	if r := <-results; r.Err == nil {
		t.Error("fail result should carry the handler error")
	}

	rec.Reset()
	if len(rec.Batches()) != 0 {
		t.Error("Reset() should drop batches")
	}
}

// fakeConn is an in-memory websocket connection.
type fakeConn struct {
	mu       sync.Mutex
	frames   []*protocol.Frame
	closes   int
	writeErr error

	reads     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.reads:
		return websocket.BinaryMessage, msg, nil
	case <-c.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	if mt == websocket.CloseMessage {
		c.closes++
		return nil
	}
	f, err := protocol.DecodeFrame(data)
	if err != nil {
		return err
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(f *protocol.Frame) {
	c.reads <- f.Encode()
}

// waitFrames polls until at least n frames were written.
func (c *fakeConn) waitFrames(t *testing.T, n int) []*protocol.Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.frames) >= n {
			out := append([]*protocol.Frame(nil), c.frames...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames", n)
	return nil
}

func newBridge(t *testing.T, m *dom.Manager) (*Bridge, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	b := NewBridge(conn, m, BridgeConfig{Logger: quietLogger()})
	m.SetRenderManager(b.Handle())
	go b.ReadLoop()
	t.Cleanup(b.Close)
	return b, conn
}

func TestBridgeSendsBatches(t *testing.T) {
	m := newManager(t)
	b, conn := newBridge(t, m)
	commitTree(t, m)

	frames := conn.waitFrames(t, 1)
	if frames[0].Type != protocol.FrameBatch {
		t.Fatalf("frame type = %v, want Batch", frames[0].Type)
	}
	batch, err := protocol.DecodeBatch(frames[0].Payload)
	if err != nil {
		t.Fatalf("DecodeBatch() error = %v", err)
	}
	want := []protocol.RenderOpCode{
		protocol.RenderCreate, protocol.RenderCreate,
		protocol.RenderLayout, protocol.RenderLayout,
		protocol.RenderEndBatch,
	}
	if got := opCodes(batch.Ops); !equalCodes(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
	if batch.Seq != 1 {
		t.Errorf("Seq = %d, want 1", batch.Seq)
	}
	if b.FramesSent() != 1 || b.BytesSent() == 0 {
		t.Errorf("FramesSent() = %d, BytesSent() = %d", b.FramesSent(), b.BytesSent())
	}
}

func TestBridgeRoutesEvents(t *testing.T) {
	m := newManager(t)
	_, conn := newBridge(t, m)
	commitTree(t, m)

	got := make(chan *dom.Event, 1)
	done := make(chan dom.CallResult, 1)
	m.AddEventListener(2, "click", false, func(e *dom.Event) { got <- e }, func(r dom.CallResult) { done <- r })
	<-done

	conn.send(protocol.NewFrame(protocol.FrameEvent,
		protocol.EncodeEvent(&protocol.Event{NodeID: 2, Name: "click", Payload: map[string]any{"x": 3.0}})))

	select {
	case e := <-got:
		if e.TargetID != 2 || e.Payload.(map[string]any)["x"] != 3.0 {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener was not called")
	}
}

func TestBridgeRootSize(t *testing.T) {
	m := newManager(t)
	_, conn := newBridge(t, m)
	commitTree(t, m)
	conn.waitFrames(t, 1)

	conn.send(protocol.NewFrame(protocol.FrameRootSize,
		protocol.EncodeRootSize(&protocol.RootSize{Width: 320, Height: 640})))

	frames := conn.waitFrames(t, 2)
	batch, err := protocol.DecodeBatch(frames[1].Payload)
	if err != nil {
		t.Fatalf("DecodeBatch() error = %v", err)
	}
	if len(batch.Ops) != 2 || batch.Ops[0].Op != protocol.RenderLayout || batch.Ops[0].ID != 1 {
		t.Errorf("resize batch = %+v, want root layout then end", batch.Ops)
	}
	if w, h := m.GetRootSize(); w != 320 || h != 640 {
		t.Errorf("GetRootSize() = (%v, %v)", w, h)
	}
}

func TestBridgeCallFunction(t *testing.T) {
	m := newManager(t)
	_, conn := newBridge(t, m)
	commitTree(t, m)

	results := make(chan dom.CallResult, 2)
	m.CallFunction(2, "focus", "now", func(r dom.CallResult) { results <- r })

	frames := conn.waitFrames(t, 2)
	if frames[1].Type != protocol.FrameCall {
		t.Fatalf("frame type = %v, want Call", frames[1].Type)
	}
	call, err := protocol.DecodeCall(frames[1].Payload)
	if err != nil {
		t.Fatalf("DecodeCall() error = %v", err)
	}
	if call.NodeID != 2 || call.Name != "focus" || call.Arg != "now" {
		t.Errorf("call = %+v", call)
	}

	conn.send(protocol.NewFrame(protocol.FrameCallResult,
		protocol.EncodeCallResult(&protocol.CallResult{CallID: call.CallID, Value: true})))
	select {
	case r := <-results:
		if !r.OK() || r.Value != true {
			t.Errorf("result = %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call result was not delivered")
	}

	m.CallFunction(2, "blur", nil, func(r dom.CallResult) { results <- r })
	frames = conn.waitFrames(t, 3)
	call, _ = protocol.DecodeCall(frames[2].Payload)
	conn.send(protocol.NewFrame(protocol.FrameCallResult,
		protocol.EncodeCallResult(&protocol.CallResult{CallID: call.CallID, Error: "no focus"})))
	if r := <-results; !errors.Is(r.Err, ErrRemoteCall) {
		t.Errorf("remote error result = %+v, want ErrRemoteCall", r)
	}
}

func TestBridgeCloseFailsPendingCalls(t *testing.T) {
	m := newManager(t)
	b, conn := newBridge(t, m)
	commitTree(t, m)

	results := make(chan dom.CallResult, 1)
	m.CallFunction(2, "focus", nil, func(r dom.CallResult) { results <- r })
	conn.waitFrames(t, 2)

	b.Close()
	<-b.Done()

	select {
	case r := <-results:
		if !errors.Is(r.Err, ErrBridgeClosed) {
			t.Errorf("result = %+v, want ErrBridgeClosed", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending call was not failed on close")
	}
	if _, ok := m.GetRenderManager(); ok {
		t.Error("closing the bridge should release the render handle")
	}

	m.CallFunction(2, "focus", nil, func(r dom.CallResult) { results <- r })
	if r := <-results; !errors.Is(r.Err, dom.ErrRenderReleased) {
		t.Errorf("call after close = %+v, want ErrRenderReleased", r)
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.closes != 1 {
		t.Errorf("close messages = %d, want 1", conn.closes)
	}
}

func TestBridgeWriteFailureCloses(t *testing.T) {
	m := newManager(t)
	b, conn := newBridge(t, m)
	conn.mu.Lock()
	conn.writeErr = errors.New("broken pipe")
	conn.mu.Unlock()

	commitTree(t, m)
	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("bridge should close after a failed write")
	}
}

func TestBridgeRejectsGarbage(t *testing.T) {
	m := newManager(t)
	_, conn := newBridge(t, m)

	conn.reads <- []byte{0x10, 0x00}
	frames := conn.waitFrames(t, 1)
	if frames[0].Type != protocol.FrameError {
		t.Fatalf("frame type = %v, want Error", frames[0].Type)
	}
	em, err := protocol.DecodeErrorMessage(frames[0].Payload)
	if err != nil || em.Code != protocol.ErrInvalidFrame {
		t.Errorf("error message = %+v, %v", em, err)
	}
}

func TestSendSnapshot(t *testing.T) {
	m := newManager(t)
	commitTree(t, m)
	done := make(chan struct{})
	m.AddEventListener(2, "click", false, func(*dom.Event) {}, func(dom.CallResult) { close(done) })
	<-done

	conn := newFakeConn()
	b := NewBridge(conn, m, BridgeConfig{Logger: quietLogger()})
	t.Cleanup(b.Close)

	errc := make(chan error, 1)
	m.PostTask(func() {
		m.SetRenderManager(b.Handle())
		errc <- b.SendSnapshot(m.Capture())
	})
	if err := <-errc; err != nil {
		t.Fatalf("SendSnapshot() error = %v", err)
	}

	frames := conn.waitFrames(t, 1)
	batch, err := protocol.DecodeBatch(frames[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	want := []protocol.RenderOpCode{
		protocol.RenderCreate, protocol.RenderCreate,
		protocol.RenderLayout, protocol.RenderLayout,
		protocol.RenderAddListener, protocol.RenderEndBatch,
	}
	if got := opCodes(batch.Ops); !equalCodes(got, want) {
		t.Errorf("snapshot ops = %v, want %v", got, want)
	}
}
