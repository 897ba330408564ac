// Package taskrunner provides a dedicated single-goroutine execution context.
//
// A Runner owns one goroutine that executes posted tasks strictly one at a
// time. Tasks posted by a single producer run in the order they were posted.
// Tasks may be posted before Start; they wait in the queue until the loop
// begins. After Terminate, PostTask rejects work with ErrTerminated and any
// tasks still queued are dropped.
package taskrunner

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Sentinel errors for runner lifecycle conditions.
var (
	// ErrTerminated is returned when work is posted to a terminated runner.
	ErrTerminated = errors.New("taskrunner: terminated")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("taskrunner: already started")

	// ErrNilTask is returned when a nil task is posted.
	ErrNilTask = errors.New("taskrunner: nil task")
)

type state uint8

const (
	stateIdle state = iota
	stateRunning
	stateTerminated
)

// Hooks observe runner activity. All fields are optional.
type Hooks struct {
	// OnReject is called when PostTask rejects a task after termination.
	OnReject func()

	// OnPanic is called after a task panic has been recovered and logged.
	OnPanic func(recovered any)
}

// Runner serializes tasks onto a single goroutine.
type Runner struct {
	name   string
	logger *slog.Logger
	hooks  Hooks

	mu    sync.Mutex
	queue []func()
	state state

	wake    chan struct{} // Signal that the queue is non-empty
	done    chan struct{} // Closed by Terminate
	stopped chan struct{} // Closed when the loop goroutine exits
}

// New creates a runner. The loop does not start until Start is called.
func New(name string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		name:    name,
		logger:  logger.With("component", "taskrunner", "runner", name),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// SetHooks installs activity hooks. It must be called before Start.
func (r *Runner) SetHooks(h Hooks) {
	r.mu.Lock()
	r.hooks = h
	r.mu.Unlock()
}

// Name returns the runner name.
func (r *Runner) Name() string {
	return r.name
}

// Start launches the loop goroutine.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateTerminated:
		return ErrTerminated
	}
	r.state = stateRunning
	go r.loop()
	if len(r.queue) > 0 {
		r.signal()
	}
	return nil
}

// PostTask queues fn for execution on the runner goroutine.
// It never blocks. After Terminate the task is rejected with ErrTerminated.
func (r *Runner) PostTask(fn func()) error {
	if fn == nil {
		return ErrNilTask
	}

	r.mu.Lock()
	if r.state == stateTerminated {
		onReject := r.hooks.OnReject
		r.mu.Unlock()
		r.logger.Debug("task rejected after termination")
		if onReject != nil {
			onReject()
		}
		return ErrTerminated
	}
	r.queue = append(r.queue, fn)
	r.signal()
	r.mu.Unlock()
	return nil
}

// signal wakes the loop. Caller holds r.mu.
func (r *Runner) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Sync blocks until every task posted before the call has run.
// It must not be called from a task running on this runner.
func (r *Runner) Sync(ctx context.Context) error {
	barrier := make(chan struct{})
	if err := r.PostTask(func() { close(barrier) }); err != nil {
		return err
	}
	select {
	case <-barrier:
		return nil
	case <-r.done:
		// The barrier may have run just before termination.
		select {
		case <-barrier:
			return nil
		default:
			return ErrTerminated
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Terminate irreversibly stops the runner. The task currently executing is
// allowed to finish; queued tasks are dropped. Terminate does not wait for
// the loop to exit, so it is safe to call from a task; use Done for that.
func (r *Runner) Terminate() {
	r.mu.Lock()
	if r.state == stateTerminated {
		r.mu.Unlock()
		return
	}
	wasRunning := r.state == stateRunning
	dropped := len(r.queue)
	r.queue = nil
	r.state = stateTerminated
	close(r.done)
	if !wasRunning {
		close(r.stopped)
	}
	r.mu.Unlock()

	r.logger.Info("runner terminated", "dropped_tasks", dropped)
}

// Done returns a channel that is closed once the loop goroutine has exited.
func (r *Runner) Done() <-chan struct{} {
	return r.stopped
}

// IsTerminated reports whether Terminate has been called.
func (r *Runner) IsTerminated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateTerminated
}

// Pending returns the number of queued tasks not yet started.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// loop drains the queue until terminated.
func (r *Runner) loop() {
	defer close(r.stopped)

	for {
		select {
		case <-r.done:
			return
		case <-r.wake:
		}

		for {
			fn, ok := r.next()
			if !ok {
				break
			}
			r.execute(fn)
		}
	}
}

// next pops the head of the queue, or reports false when the queue is empty
// or the runner was terminated.
func (r *Runner) next() (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateTerminated || len(r.queue) == 0 {
		return nil, false
	}
	fn := r.queue[0]
	r.queue[0] = nil
	r.queue = r.queue[1:]
	return fn, true
}

// execute runs fn with panic recovery.
func (r *Runner) execute(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("task panic",
				"panic", rec,
				"stack", string(debug.Stack()))
			r.mu.Lock()
			onPanic := r.hooks.OnPanic
			r.mu.Unlock()
			if onPanic != nil {
				onPanic(rec)
			}
		}
	}()

	fn()
}
