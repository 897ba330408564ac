package dom

// OpKind identifies a staged operation.
type OpKind uint8

const (
	OpCreate         OpKind = iota + 1 // Register nodes and attach them to parents
	OpUpdate                           // Merge props into registered nodes
	OpMove                             // Re-parent or re-index registered nodes
	OpDelete                           // Remove nodes and their subtrees
	OpAddListener                      // Announce a listener to the render layer
	OpRemoveListener                   // Drop a listener
	OpLayout                           // Request a layout pass
)

// String returns the string representation of the OpKind.
func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpMove:
		return "move"
	case OpDelete:
		return "delete"
	case OpAddListener:
		return "add_listener"
	case OpRemoveListener:
		return "remove_listener"
	case OpLayout:
		return "layout"
	default:
		return "unknown"
	}
}

// queue returns which commit queue the operation belongs to.
func (k OpKind) queue() opQueue {
	switch k {
	case OpAddListener, OpRemoveListener:
		return queueListener
	case OpLayout:
		return queueLayout
	default:
		return queueStructural
	}
}

type opQueue uint8

const (
	queueStructural opQueue = iota
	queueListener
	queueLayout
)

// Operation is a staged unit of work applied at commit time.
type Operation struct {
	Kind OpKind

	// Nodes is the node list of a structural operation.
	Nodes []*Node

	// NodeID, Name and ListenerID address a listener operation.
	NodeID     uint32
	Name       string
	ListenerID uint32
}

// Interceptor sees a create, update, move or delete operation at commit
// time, before it is applied. It returns the operation to apply, which may
// be rewritten, or false to drop it. Interceptors run on the runner.
type Interceptor func(op Operation) (Operation, bool)

// batch holds the three ordered queues between commits.
type batch struct {
	structural []Operation
	listener   []Operation
	layout     []Operation
}

func (b *batch) push(op Operation) {
	switch op.Kind.queue() {
	case queueListener:
		b.listener = append(b.listener, op)
	case queueLayout:
		b.layout = append(b.layout, op)
	default:
		b.structural = append(b.structural, op)
	}
}

func (b *batch) empty() bool {
	return len(b.structural) == 0 && len(b.listener) == 0 && len(b.layout) == 0
}

func (b *batch) len() int {
	return len(b.structural) + len(b.listener) + len(b.layout)
}

// take returns the queued operations and resets the batch.
func (b *batch) take() batch {
	out := *b
	*b = batch{}
	return out
}
