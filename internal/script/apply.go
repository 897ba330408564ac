package script

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vango-dev/domcore/internal/errors"
	"github.com/vango-dev/domcore/pkg/dom"
)

// EventRecord is one listener invocation observed during a replay.
type EventRecord struct {
	Batch      int
	ListenerID uint32
	NodeID     uint32
	TargetID   uint32
	Event      string
	Payload    any
}

// CallRecord is the completion of a scripted call.
type CallRecord struct {
	Batch    int
	NodeID   uint32
	Function string
	Result   dom.CallResult
}

// Result summarizes a replay.
type Result struct {
	Batches int
	Steps   int
	Events  []EventRecord
	Calls   []CallRecord
}

type listenerKey struct {
	id    uint32
	event string
}

// replay holds the state of one Apply call. Callbacks run on the manager's
// runner, hence the mutex.
type replay struct {
	m      *dom.Manager
	logger *slog.Logger
	batch  int

	mu        sync.Mutex
	result    Result
	listeners map[listenerKey][]uint32
}

// Apply replays s against m, committing each batch and waiting for it to
// run before starting the next. The manager must be started. A step that the
// manager rejects aborts the replay; failures of committed operations are
// isolated by the manager and only logged.
func Apply(ctx context.Context, m *dom.Manager, s *Script) (*Result, error) {
	r := &replay{
		m:         m,
		logger:    m.Logger().With("component", "script", "script", s.Name),
		listeners: make(map[listenerKey][]uint32),
	}

	if s.Root != nil {
		if err := m.SetRootSize(s.Root.Width, s.Root.Height); err != nil {
			return r.snapshot(), errors.New("D023").WithDetail("root size rejected").Wrap(err)
		}
	}

	for i, b := range s.Batches {
		r.batch = i + 1
		for _, st := range b.Steps {
			if err := ctx.Err(); err != nil {
				return r.snapshot(), err
			}
			if err := r.step(ctx, st); err != nil {
				return r.snapshot(), errors.New("D023").
					WithDetail(fmt.Sprintf("Batch %d, op %q (line %d)", r.batch, st.Op, st.line)).
					Wrap(err)
			}
			r.mu.Lock()
			r.result.Steps++
			r.mu.Unlock()
		}
		if err := m.EndBatch(); err != nil {
			return r.snapshot(), errors.New("D023").WithDetail(fmt.Sprintf("Batch %d: end batch", r.batch)).Wrap(err)
		}
		if err := m.Sync(ctx); err != nil {
			return r.snapshot(), err
		}
		r.mu.Lock()
		r.result.Batches++
		r.mu.Unlock()
		r.logger.Debug("batch replayed", "batch", r.batch, "steps", len(b.Steps))
	}
	return r.snapshot(), nil
}

func (r *replay) snapshot() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.result
	res.Events = append([]EventRecord(nil), r.result.Events...)
	res.Calls = append([]CallRecord(nil), r.result.Calls...)
	return &res
}

func nodes(specs []NodeSpec) []*dom.Node {
	out := make([]*dom.Node, len(specs))
	for i, s := range specs {
		out[i] = dom.NewNode(s.ID, s.PID, s.Index, s.Tag, dom.Props(s.Props))
	}
	return out
}

func (r *replay) step(ctx context.Context, st Step) error {
	m := r.m
	switch st.Op {
	case OpCreate:
		return m.CreateDomNodes(nodes(st.Nodes))
	case OpUpdate:
		return m.UpdateDomNodes(nodes(st.Nodes))
	case OpMove:
		return m.MoveDomNodes(nodes(st.Nodes))
	case OpDelete:
		return m.DeleteDomNodes(nodes(st.Nodes))
	case OpListen:
		return r.listen(st)
	case OpUnlisten:
		return r.unlisten(ctx, st)
	case OpEvent:
		ev := dom.NewEvent(st.ID, st.Event, st.Payload)
		ev.Capture = st.Capture
		return m.HandleEvent(ev)
	case OpSize:
		return m.SetRootSize(st.Width, st.Height)
	case OpLayout:
		return m.DoLayout()
	case OpCall:
		return r.call(st)
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
}

func (r *replay) listen(st Step) error {
	batch := r.batch
	key := listenerKey{st.ID, st.Event}
	var listenerID uint32

	cb := func(ev *dom.Event) {
		r.mu.Lock()
		r.result.Events = append(r.result.Events, EventRecord{
			Batch:      batch,
			ListenerID: listenerID,
			NodeID:     st.ID,
			TargetID:   ev.TargetID,
			Event:      ev.Name,
			Payload:    ev.Payload,
		})
		r.mu.Unlock()
	}
	done := func(res dom.CallResult) {
		if !res.OK() {
			r.logger.Warn("listener not added", "node_id", st.ID, "event", st.Event, "error", res.Err)
			return
		}
		r.mu.Lock()
		listenerID = res.ListenerID
		r.listeners[key] = append(r.listeners[key], res.ListenerID)
		r.mu.Unlock()
	}
	return r.m.AddEventListener(st.ID, st.Event, st.Capture, cb, done)
}

// unlisten removes every listener the script added for (id, event). It
// waits for pending registrations so their ids are known.
func (r *replay) unlisten(ctx context.Context, st Step) error {
	if err := r.m.Sync(ctx); err != nil {
		return err
	}
	key := listenerKey{st.ID, st.Event}
	r.mu.Lock()
	ids := r.listeners[key]
	delete(r.listeners, key)
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.m.RemoveEventListener(st.ID, st.Event, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *replay) call(st Step) error {
	batch := r.batch
	return r.m.CallFunction(st.ID, st.Function, st.Arg, func(res dom.CallResult) {
		r.mu.Lock()
		r.result.Calls = append(r.result.Calls, CallRecord{
			Batch:    batch,
			NodeID:   st.ID,
			Function: st.Function,
			Result:   res,
		})
		r.mu.Unlock()
	})
}
