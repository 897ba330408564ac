package dom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vango-dev/domcore/internal/ref"
	"github.com/vango-dev/domcore/pkg/metrics"
	"github.com/vango-dev/domcore/pkg/taskrunner"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vango-dev/domcore/pkg/dom"

// managerIDs issues process-unique manager ids.
var managerIDs atomic.Int32

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithLayouter sets the layout computation. Default: AbsoluteLayout.
func WithLayouter(l Layouter) Option {
	return func(m *Manager) {
		if l != nil {
			m.layouter = l
		}
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(mtr *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mtr
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
// Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) {
		if tp != nil {
			m.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithDirectory registers the manager in dir on construction and erases it
// on Close.
func WithDirectory(dir *Directory) Option {
	return func(m *Manager) {
		m.directory = dir
	}
}

// WithInterceptor adds a hook that sees every create, update, move and
// delete operation at commit time, before it is applied. Interceptors run in
// the order they were added.
func WithInterceptor(i Interceptor) Option {
	return func(m *Manager) {
		if i != nil {
			m.interceptors = append(m.interceptors, i)
		}
	}
}

// Manager owns one DOM tree rooted at a root id.
type Manager struct {
	id     int32
	rootID atomic.Uint32

	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	layouter     Layouter
	directory    *Directory
	interceptors []Interceptor

	runner *taskrunner.Runner

	// Non-owning references, resolved at each use.
	refMu    sync.RWMutex
	render   *ref.Handle[RenderManager]
	delegate *ref.Handle[Scheduler]

	sizeMu sync.RWMutex
	width  float64
	height float64

	registry *registry

	// Owned by the runner goroutine.
	root               *Node
	pending            batch
	layoutChanged      []*Node
	layoutChangedSet   map[*Node]struct{}
	lastListenerID     uint32
	listenerIDsWrapped bool
	closeOnce          sync.Once
}

// NewManager creates a manager for the tree rooted at rootID. The runner is
// created but not started; call StartTaskRunner.
func NewManager(rootID uint32, opts ...Option) *Manager {
	m := &Manager{
		id:       managerIDs.Add(1),
		logger:   slog.Default(),
		layouter: AbsoluteLayout{},
		registry: newRegistry(),
	}
	m.rootID.Store(rootID)
	for _, opt := range opts {
		opt(m)
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	m.logger = m.logger.With("component", "dom_manager", "manager_id", m.id, "root_id", rootID)

	m.runner = taskrunner.New(fmt.Sprintf("dom-%d", m.id), m.logger)
	m.runner.SetHooks(taskrunner.Hooks{
		OnReject: m.metrics.TaskRejected,
		OnPanic:  func(any) { m.metrics.TaskPanicked() },
	})

	if m.directory != nil {
		m.directory.Insert(m)
	}
	return m
}

// ID returns the process-unique manager id.
func (m *Manager) ID() int32 { return m.id }

// GetRootID returns the id of the tree root.
func (m *Manager) GetRootID() uint32 { return m.rootID.Load() }

// Logger returns the manager's logger.
func (m *Manager) Logger() *slog.Logger { return m.logger }

// GetNode returns the registered node for id, or nil. Ids that do not fit
// the registry key type yield nil.
func (m *Manager) GetNode(id uint32) *Node {
	return m.registry.lookup(id)
}

// NodeCount returns the number of registered nodes.
func (m *Manager) NodeCount() int {
	return m.registry.Len()
}

// SetRenderManager installs the render layer handle. The handle's owner
// controls its lifetime.
func (m *Manager) SetRenderManager(h *ref.Handle[RenderManager]) {
	m.refMu.Lock()
	m.render = h
	m.refMu.Unlock()
}

// GetRenderManager resolves the render layer.
func (m *Manager) GetRenderManager() (RenderManager, bool) {
	m.refMu.RLock()
	h := m.render
	m.refMu.RUnlock()
	return h.Get()
}

// SetDelegateTaskRunner installs the delegating scheduler handle. Completion
// callbacks are posted to it while it is alive.
func (m *Manager) SetDelegateTaskRunner(h *ref.Handle[Scheduler]) {
	m.refMu.Lock()
	m.delegate = h
	m.refMu.Unlock()
}

func (m *Manager) delegateRunner() (Scheduler, bool) {
	m.refMu.RLock()
	h := m.delegate
	m.refMu.RUnlock()
	return h.Get()
}

// StartTaskRunner starts the manager's runner.
func (m *Manager) StartTaskRunner() error {
	return m.runner.Start()
}

// TerminateTaskRunner irreversibly stops the runner. Committed state is kept;
// queued work is dropped and later posts fail with taskrunner.ErrTerminated.
func (m *Manager) TerminateTaskRunner() {
	m.runner.Terminate()
}

// PostTask runs fn on the manager's runner.
func (m *Manager) PostTask(fn func()) error {
	return m.post("post_task", 0, fn)
}

// Sync waits until all work posted before the call has run. It must not be
// called from the runner.
func (m *Manager) Sync(ctx context.Context) error {
	if err := m.runner.Sync(ctx); err != nil {
		return m.opError("sync", 0, err)
	}
	return nil
}

// Done returns a channel closed once the runner has exited.
func (m *Manager) Done() <-chan struct{} {
	return m.runner.Done()
}

// Close terminates the runner and removes the manager from its directory.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.TerminateTaskRunner()
		if m.directory != nil {
			m.directory.EraseManager(m)
		}
		m.logger.Info("manager closed", "nodes", m.registry.Len())
	})
}

// post queues fn on the runner, wrapping rejection with op context.
func (m *Manager) post(op string, nodeID uint32, fn func()) error {
	if err := m.runner.PostTask(fn); err != nil {
		m.logger.Debug("operation rejected", "op", op, "error", err)
		if errors.Is(err, taskrunner.ErrTerminated) {
			err = fmt.Errorf("%w: %w", ErrManagerClosed, err)
		}
		return m.opError(op, nodeID, err)
	}
	return nil
}

// enqueue stages op into the current batch.
func (m *Manager) enqueue(op Operation) error {
	return m.post(op.Kind.String(), op.NodeID, func() {
		m.pending.push(op)
	})
}

// complete delivers a completion result exactly once, through the delegate
// scheduler when it is alive and accepts the work, otherwise inline. If the
// delegate stops before running the accepted work, the result is delivered
// on the manager's runner instead.
func (m *Manager) complete(cb CallFunctionCallback, result CallResult) {
	if cb == nil {
		return
	}

	var once sync.Once
	delivered := make(chan struct{})
	deliver := func() {
		once.Do(func() {
			close(delivered)
			cb(result)
		})
	}

	d, ok := m.delegateRunner()
	if !ok || d.PostTask(deliver) != nil {
		deliver()
		return
	}
	if s, ok := d.(stoppable); ok {
		go m.recoverCompletion(s.Done(), delivered, deliver)
	}
}

// recoverCompletion waits until a completion was delivered or the delegate
// stopped, and delivers it in the latter case.
func (m *Manager) recoverCompletion(stopped, delivered <-chan struct{}, deliver func()) {
	select {
	case <-delivered:
	case <-stopped:
		select {
		case <-delivered:
			return
		default:
		}
		m.logger.Debug("delegate stopped before completion ran")
		if err := m.runner.PostTask(deliver); err != nil {
			deliver()
		}
	}
}
