package dom

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/vango-dev/domcore/pkg/taskrunner"
)

func TestCreateThenDeleteScenario(t *testing.T) {
	m, _, _ := newTestManager(t)
	buildTree(t, m)

	for _, id := range []uint32{1, 2, 3} {
		if m.GetNode(id) == nil {
			t.Fatalf("GetNode(%d) = nil after commit", id)
		}
	}
	if got := childIDs(m.GetNode(1)); !slices.Equal(got, []uint32{2, 3}) {
		t.Errorf("children of 1 = %v, want [2 3]", got)
	}

	commit(t, m, func() error {
		return m.DeleteDomNodes([]*Node{NewNode(2, 0, 0, "", nil)})
	})

	if m.GetNode(2) != nil {
		t.Error("GetNode(2) should be absent after delete")
	}
	if m.GetNode(1) == nil || m.GetNode(3) == nil {
		t.Error("nodes 1 and 3 should survive deleting 2")
	}
	if got := childIDs(m.GetNode(1)); !slices.Equal(got, []uint32{3}) {
		t.Errorf("children of 1 = %v, want [3]", got)
	}
}

func TestStagedOperationsWaitForEndBatch(t *testing.T) {
	m, rec, _ := newTestManager(t)

	if err := m.CreateDomNodes([]*Node{NewNode(1, 0, 0, "View", nil)}); err != nil {
		t.Fatalf("CreateDomNodes() error = %v", err)
	}
	mustSync(t, m)

	if m.GetNode(1) != nil {
		t.Error("node should not be registered before EndBatch")
	}
	if len(rec.Calls()) != 0 {
		t.Errorf("render calls before commit = %v", rec.Calls())
	}

	if err := m.EndBatch(); err != nil {
		t.Fatalf("EndBatch() error = %v", err)
	}
	mustSync(t, m)
	if m.GetNode(1) == nil {
		t.Error("node should be registered after EndBatch")
	}
}

func TestEmptyEndBatchIsNoop(t *testing.T) {
	m, rec, _ := newTestManager(t)

	for i := 0; i < 3; i++ {
		if err := m.EndBatch(); err != nil {
			t.Fatalf("EndBatch() error = %v", err)
		}
	}
	mustSync(t, m)

	if rec.Batches() != 0 {
		t.Errorf("render EndBatch calls = %d, want 0", rec.Batches())
	}

	buildTree(t, m)
	rec.Reset()
	if err := m.EndBatch(); err != nil {
		t.Fatalf("EndBatch() error = %v", err)
	}
	mustSync(t, m)
	if len(rec.Calls()) != 0 {
		t.Errorf("second EndBatch produced render calls %v", rec.Calls())
	}
}

func TestCommitOrder(t *testing.T) {
	m, rec, _ := newTestManager(t)
	buildTree(t, m)
	rec.Reset()

	lid := make(chan CallResult, 1)
	if err := m.AddEventListener(3, "click", false, func(*Event) {}, func(r CallResult) { lid <- r }); err != nil {
		t.Fatalf("AddEventListener() error = %v", err)
	}
	commit(t, m, func() error {
		if err := m.DoLayout(); err != nil {
			return err
		}
		if err := m.DeleteDomNodes([]*Node{NewNode(2, 0, 0, "", nil)}); err != nil {
			return err
		}
		return m.CreateDomNodes([]*Node{NewNode(4, 1, 5, "View", Props{"width": 1})})
	})
	waitResult(t, lid)

	want := []string{"delete:2", "create:4", "listen:3:click", "layout:4", "end"}
	if got := rec.Calls(); !slices.Equal(got, want) {
		t.Errorf("render calls = %v, want %v", got, want)
	}
}

func TestSubmissionOrderWithinStructuralQueue(t *testing.T) {
	m, _, _ := newTestManager(t)
	buildTree(t, m)

	commit(t, m, func() error {
		if err := m.CreateDomNodes([]*Node{NewNode(4, 2, 0, "Text", nil)}); err != nil {
			return err
		}
		if err := m.UpdateDomNodes([]*Node{NewNode(4, 0, 0, "", Props{"text": "hi"})}); err != nil {
			return err
		}
		return m.DeleteDomNodes([]*Node{NewNode(4, 0, 0, "", nil)})
	})

	if m.GetNode(4) != nil {
		t.Error("create/update/delete in one batch should leave node 4 absent")
	}
}

func TestFailureIsolation(t *testing.T) {
	m, rec, _ := newTestManager(t)
	buildTree(t, m)
	rec.Reset()

	commit(t, m, func() error {
		if err := m.UpdateDomNodes([]*Node{NewNode(99, 0, 0, "", Props{"a": 1})}); err != nil {
			return err
		}
		if err := m.CreateDomNodes([]*Node{
			nil,
			NewNode(5, 42, 0, "Orphan", nil),
			NewNode(6, 3, 0, "Text", nil),
		}); err != nil {
			return err
		}
		return m.DeleteDomNodes([]*Node{NewNode(77, 0, 0, "", nil)})
	})

	if m.GetNode(6) == nil {
		t.Error("valid node 6 should be created despite failures around it")
	}
	if m.GetNode(5) != nil {
		t.Error("node 5 names an unknown parent and should not be registered")
	}
	if !slices.Contains(rec.Calls(), "create:6") {
		t.Errorf("render calls = %v, want create:6", rec.Calls())
	}
	if rec.Batches() != 1 {
		t.Errorf("render EndBatch calls = %d, want 1", rec.Batches())
	}
}

func TestRecursiveDelete(t *testing.T) {
	m, rec, _ := newTestManager(t)
	buildTree(t, m)
	commit(t, m, func() error {
		return m.CreateDomNodes([]*Node{
			NewNode(4, 2, 0, "Text", nil),
			NewNode(5, 4, 0, "Text", nil),
		})
	})
	rec.Reset()

	commit(t, m, func() error {
		return m.DeleteDomNodes([]*Node{NewNode(2, 0, 0, "", nil)})
	})

	for _, id := range []uint32{2, 4, 5} {
		if m.GetNode(id) != nil {
			t.Errorf("GetNode(%d) should be absent after deleting its ancestor", id)
		}
	}
	if got := m.NodeCount(); got != 2 {
		t.Errorf("NodeCount() = %d, want 2", got)
	}
	if !slices.Contains(rec.Calls(), "delete:2") {
		t.Errorf("render calls = %v, want a single delete:2", rec.Calls())
	}
}

func TestUpdateMergesProps(t *testing.T) {
	m, rec, _ := newTestManager(t)
	buildTree(t, m)
	rec.Reset()

	commit(t, m, func() error {
		return m.UpdateDomNodes([]*Node{
			NewNode(2, 0, 0, "", Props{"text": "hello", "left": nil}),
		})
	})

	n := m.GetNode(2)
	if v, _ := n.Prop("text"); v != "hello" {
		t.Errorf("text = %v, want hello", v)
	}
	if _, ok := n.Prop("left"); ok {
		t.Error("nil update value should delete the prop")
	}
	if v, _ := n.Prop("width"); v != 40 {
		t.Errorf("width = %v, want untouched 40", v)
	}
	diff := n.Diff()
	if len(diff) != 2 || diff["text"] != "hello" {
		t.Errorf("Diff() = %v", diff)
	}
	if n.Tag() != "Text" {
		t.Errorf("Tag() = %q, an empty update tag should keep the old one", n.Tag())
	}
	if !slices.Contains(rec.Calls(), "update:2") {
		t.Errorf("render calls = %v, want update:2", rec.Calls())
	}
}

func TestMoveNodes(t *testing.T) {
	m, rec, _ := newTestManager(t)
	buildTree(t, m)
	rec.Reset()

	commit(t, m, func() error {
		return m.MoveDomNodes([]*Node{NewNode(3, 1, 0, "", nil)})
	})
	if got := childIDs(m.GetNode(1)); !slices.Equal(got, []uint32{3, 2}) {
		t.Errorf("children after reorder = %v, want [3 2]", got)
	}

	commit(t, m, func() error {
		return m.MoveDomNodes([]*Node{NewNode(3, 2, 0, "", nil)})
	})
	n3 := m.GetNode(3)
	if n3.Parent() != m.GetNode(2) || n3.PID() != 2 || n3.Index() != 0 {
		t.Errorf("node 3 parent=%v pid=%d index=%d, want under 2 at 0", n3.Parent(), n3.PID(), n3.Index())
	}
	if !slices.Contains(rec.Calls(), "move:3") {
		t.Errorf("render calls = %v, want move:3", rec.Calls())
	}
}

func TestMoveRejectsCycle(t *testing.T) {
	m, _, _ := newTestManager(t)
	buildTree(t, m)

	commit(t, m, func() error {
		return m.MoveDomNodes([]*Node{NewNode(1, 2, 0, "", nil)})
	})

	if m.GetNode(1).Parent() != nil {
		t.Error("root must not move under its own child")
	}
	if got := childIDs(m.GetNode(1)); !slices.Equal(got, []uint32{2, 3}) {
		t.Errorf("children = %v, want [2 3]", got)
	}
}

func TestOutOfRangeIDs(t *testing.T) {
	m, _, _ := newTestManager(t)
	buildTree(t, m)

	big := uint32(math.MaxInt32) + 1
	if m.GetNode(big) != nil {
		t.Error("GetNode(out of range) should be nil")
	}
	if m.GetNode(math.MaxUint32) != nil {
		t.Error("GetNode(MaxUint32) should be nil")
	}

	commit(t, m, func() error {
		return m.CreateDomNodes([]*Node{NewNode(big, 1, 0, "View", nil), NewNode(8, 1, 0, "View", nil)})
	})
	if m.GetNode(8) == nil {
		t.Error("in-range node in the same operation should still be created")
	}
	if got := m.NodeCount(); got != 4 {
		t.Errorf("NodeCount() = %d, want 4", got)
	}

	if _, err := nodeKey(big); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nodeKey(%d) error = %v, want ErrInvalidArgument", big, err)
	}
}

func TestReleasedRenderManager(t *testing.T) {
	m, rec, h := newTestManager(t)
	h.Release()

	buildTree(t, m)
	if m.NodeCount() != 3 {
		t.Errorf("NodeCount() = %d, want 3 with render layer released", m.NodeCount())
	}
	if len(rec.Calls()) != 0 {
		t.Errorf("released render layer received %v", rec.Calls())
	}
}

func TestPostAfterTerminate(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.TerminateTaskRunner()

	err := m.CreateDomNodes([]*Node{NewNode(1, 0, 0, "View", nil)})
	if !errors.Is(err, ErrManagerClosed) {
		t.Errorf("CreateDomNodes() error = %v, want ErrManagerClosed", err)
	}
	if !errors.Is(err, taskrunner.ErrTerminated) {
		t.Errorf("CreateDomNodes() error = %v, want taskrunner.ErrTerminated", err)
	}
	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Op != "create" {
		t.Errorf("error = %#v, want OperationError for create", err)
	}

	ran := false
	if err := m.PostTask(func() { ran = true }); err == nil {
		t.Error("PostTask() after terminate should fail")
	}
	<-m.Done()
	if ran {
		t.Error("task posted after terminate must not run")
	}
}

func TestReplaceNodeKeepsChildren(t *testing.T) {
	m, _, _ := newTestManager(t)
	buildTree(t, m)

	commit(t, m, func() error {
		return m.CreateDomNodes([]*Node{NewNode(1, 0, 0, "ScrollView", nil)})
	})

	root := m.GetNode(1)
	if root.Tag() != "ScrollView" {
		t.Errorf("Tag() = %q, want ScrollView", root.Tag())
	}
	if got := childIDs(root); !slices.Equal(got, []uint32{2, 3}) {
		t.Errorf("replacement root children = %v, want [2 3]", got)
	}
	if m.GetNode(2).Parent() != root {
		t.Error("children should point at the replacement root")
	}
}

func TestInterceptorDropsAndRewrites(t *testing.T) {
	var seen []string
	intercept := func(op Operation) (Operation, bool) {
		seen = append(seen, op.Kind.String())
		switch op.Kind {
		case OpDelete:
			return op, false
		case OpUpdate:
			op.Nodes = []*Node{NewNode(op.Nodes[0].ID(), 0, 0, "", Props{"text": "rewritten"})}
		}
		return op, true
	}
	m, rec, _ := newTestManager(t, WithInterceptor(intercept))
	buildTree(t, m)
	rec.Reset()

	lid := make(chan CallResult, 1)
	if err := m.AddEventListener(3, "click", false, func(*Event) {}, func(r CallResult) { lid <- r }); err != nil {
		t.Fatalf("AddEventListener() error = %v", err)
	}
	commit(t, m, func() error {
		if err := m.UpdateDomNodes([]*Node{NewNode(2, 0, 0, "", Props{"text": "original"})}); err != nil {
			return err
		}
		return m.DeleteDomNodes([]*Node{NewNode(3, 0, 0, "", nil)})
	})
	waitResult(t, lid)

	if m.GetNode(3) == nil {
		t.Error("dropped delete should leave node 3 registered")
	}
	if v, _ := m.GetNode(2).Prop("text"); v != "rewritten" {
		t.Errorf("node 2 text = %v, want rewritten", v)
	}
	if want := []string{"create", "update", "delete"}; !slices.Equal(seen, want) {
		t.Errorf("intercepted kinds = %v, want %v", seen, want)
	}
	want := []string{"update:2", "listen:3:click", "end"}
	if got := rec.Calls(); !slices.Equal(got, want) {
		t.Errorf("render calls = %v, want %v", got, want)
	}
}

func TestInterceptorPanicDropsOperation(t *testing.T) {
	m, _, _ := newTestManager(t, WithInterceptor(func(op Operation) (Operation, bool) {
		if op.Kind == OpMove {
			panic("boom")
		}
		return op, true
	}))
	buildTree(t, m)

	commit(t, m, func() error {
		if err := m.MoveDomNodes([]*Node{NewNode(3, 2, 0, "", nil)}); err != nil {
			return err
		}
		return m.CreateDomNodes([]*Node{NewNode(4, 1, 0, "View", nil)})
	})

	if m.GetNode(3).Parent() != m.GetNode(1) {
		t.Error("move dropped by a panicking interceptor should not apply")
	}
	if m.GetNode(4) == nil {
		t.Error("operations after the panic should still apply")
	}
}
