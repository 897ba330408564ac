package dom

import (
	"errors"
	"fmt"
)

// Sentinel errors for DOM operations.
var (
	// ErrNodeNotFound is returned when an operation references an unknown node id.
	ErrNodeNotFound = errors.New("dom: node not found")

	// ErrParentNotFound is returned when a created or moved node names an unknown parent.
	ErrParentNotFound = errors.New("dom: parent node not found")

	// ErrInvalidArgument is returned for out-of-range ids, empty names and similar input errors.
	ErrInvalidArgument = errors.New("dom: invalid argument")

	// ErrInvalidRootSize is returned when a root dimension is negative, NaN or infinite.
	ErrInvalidRootSize = fmt.Errorf("%w: root size must be finite and non-negative", ErrInvalidArgument)

	// ErrRenderReleased is reported when the render layer has been torn down.
	ErrRenderReleased = errors.New("dom: render manager released")

	// ErrNilNode is returned when a node list contains nil.
	ErrNilNode = errors.New("dom: nil node")

	// ErrManagerClosed is returned when work is posted to a terminated manager.
	ErrManagerClosed = errors.New("dom: manager closed")

	// ErrOperationPanic wraps a panic recovered while applying an operation.
	ErrOperationPanic = errors.New("dom: operation panicked")
)

// OperationError wraps an error with manager and node context.
type OperationError struct {
	ManagerID int32
	Op        string // Operation that failed
	NodeID    uint32
	Err       error // Underlying error
}

// Error returns the error message with manager context.
func (e *OperationError) Error() string {
	if e.NodeID == 0 {
		return fmt.Sprintf("dom: manager %d: %s: %v", e.ManagerID, e.Op, e.Err)
	}
	return fmt.Sprintf("dom: manager %d: %s node %d: %v", e.ManagerID, e.Op, e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *OperationError) Unwrap() error {
	return e.Err
}

func (m *Manager) opError(op string, nodeID uint32, err error) *OperationError {
	return &OperationError{
		ManagerID: m.id,
		Op:        op,
		NodeID:    nodeID,
		Err:       err,
	}
}
