package dom

// RenderManager materializes committed tree state. All methods are called on
// the manager's runner and must not block; they are fire-and-forget except
// for CallFunction, which reports through its callback.
//
// Node pointers are only valid for the duration of the call. Implementations
// that defer work must copy what they need.
type RenderManager interface {
	CreateRenderNode(nodes []*Node)
	UpdateRenderNode(nodes []*Node)
	MoveRenderNode(nodes []*Node)
	DeleteRenderNode(nodes []*Node)
	UpdateLayout(nodes []*Node)
	AddEventListener(node *Node, name string)
	RemoveEventListener(node *Node, name string)
	CallFunction(node *Node, name string, arg any, cb CallFunctionCallback)
	EndBatch()
}

// Scheduler is an execution context that accepts work from any goroutine.
// *taskrunner.Runner satisfies it.
//
// A Scheduler may drop accepted work when it stops. If it also has a
// Done() <-chan struct{} method, closed once it runs no more work, completions
// it dropped are delivered on the manager's runner instead.
type Scheduler interface {
	PostTask(fn func()) error
}

type stoppable interface {
	Done() <-chan struct{}
}

// CallResult is delivered to completion callbacks.
type CallResult struct {
	// ListenerID is set by AddEventListener on success. Zero means failure.
	ListenerID uint32

	// Value is the result payload of CallFunction.
	Value any

	// Err is non-nil on failure.
	Err error
}

// OK reports whether the call succeeded.
func (r CallResult) OK() bool { return r.Err == nil }

// CallFunctionCallback receives the outcome of AddEventListener or CallFunction.
type CallFunctionCallback func(result CallResult)
