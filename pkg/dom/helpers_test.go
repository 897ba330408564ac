package dom

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/domcore/internal/ref"
)

// fakeRender records render-layer calls.
type fakeRender struct {
	mu      sync.Mutex
	calls   []string
	layouts [][]uint32
	batches int

	// callValue is returned by CallFunction. callTwice makes the fake
	// report twice.
	callValue any
	callTwice bool
}

func ids(nodes []*Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = fmt.Sprint(n.ID())
	}
	return strings.Join(parts, ",")
}

func (f *fakeRender) record(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fakeRender) CreateRenderNode(nodes []*Node) { f.record("create:" + ids(nodes)) }
func (f *fakeRender) UpdateRenderNode(nodes []*Node) { f.record("update:" + ids(nodes)) }
func (f *fakeRender) MoveRenderNode(nodes []*Node)   { f.record("move:" + ids(nodes)) }
func (f *fakeRender) DeleteRenderNode(nodes []*Node) { f.record("delete:" + ids(nodes)) }

func (f *fakeRender) UpdateLayout(nodes []*Node) {
	out := make([]uint32, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	f.mu.Lock()
	f.layouts = append(f.layouts, out)
	f.mu.Unlock()
	f.record("layout:" + ids(nodes))
}

func (f *fakeRender) AddEventListener(node *Node, name string) {
	f.record(fmt.Sprintf("listen:%d:%s", node.ID(), name))
}

func (f *fakeRender) RemoveEventListener(node *Node, name string) {
	f.record(fmt.Sprintf("unlisten:%d:%s", node.ID(), name))
}

func (f *fakeRender) CallFunction(node *Node, name string, arg any, cb CallFunctionCallback) {
	f.record(fmt.Sprintf("call:%d:%s", node.ID(), name))
	cb(CallResult{Value: f.callValue})
	if f.callTwice {
		cb(CallResult{Value: "again"})
	}
}

func (f *fakeRender) EndBatch() {
	f.mu.Lock()
	f.batches++
	f.mu.Unlock()
	f.record("end")
}

func (f *fakeRender) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRender) Layouts() [][]uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]uint32(nil), f.layouts...)
}

func (f *fakeRender) Batches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches
}

func (f *fakeRender) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.layouts = nil
	f.batches = 0
	f.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestManager returns a started manager with root id 1 and a fake render layer.
func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeRender, *ref.Handle[RenderManager]) {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	m := NewManager(1, opts...)
	rec := &fakeRender{}
	h := ref.New[RenderManager](rec)
	m.SetRenderManager(h)
	if err := m.StartTaskRunner(); err != nil {
		t.Fatalf("StartTaskRunner() error = %v", err)
	}
	t.Cleanup(m.Close)
	return m, rec, h
}

func mustSync(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
}

// commit stages ops through fn, ends the batch and waits for it.
func commit(t *testing.T, m *Manager, fn func() error) {
	t.Helper()
	if err := fn(); err != nil {
		t.Fatalf("staging error = %v", err)
	}
	if err := m.EndBatch(); err != nil {
		t.Fatalf("EndBatch() error = %v", err)
	}
	mustSync(t, m)
}

// buildTree commits root 1 with children 2 and 3.
func buildTree(t *testing.T, m *Manager) {
	t.Helper()
	commit(t, m, func() error {
		return m.CreateDomNodes([]*Node{
			NewNode(1, 0, 0, "View", nil),
			NewNode(2, 1, 0, "Text", Props{"left": 10, "top": 5, "width": 40, "height": 20}),
			NewNode(3, 1, 1, "Image", Props{"width": 30.0, "height": 30.0}),
		})
	})
}

func waitResult(t *testing.T, ch <-chan CallResult) CallResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion callback")
		return CallResult{}
	}
}

func childIDs(n *Node) []uint32 {
	var out []uint32
	for _, c := range n.Children() {
		out = append(out, c.ID())
	}
	return out
}
