package dom

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/vango-dev/domcore/pkg/metrics"
)

// Event is a native event routed to the listeners of one node.
type Event struct {
	// TargetID is the id of the node the event fired on.
	TargetID uint32

	// Name is the event name (e.g. "click").
	Name string

	// Payload is the opaque event data.
	Payload any

	// Capture is true while dispatching the capture phase. Only listeners
	// registered with the same use-capture flag receive the event.
	Capture bool

	target  *Node
	stopped bool
}

// NewEvent creates an event for the bubble/target phase.
func NewEvent(targetID uint32, name string, payload any) *Event {
	return &Event{TargetID: targetID, Name: name, Payload: payload}
}

// Target returns the resolved target node during dispatch.
func (e *Event) Target() *Node { return e.target }

// StopImmediatePropagation prevents the remaining listeners of this
// dispatch from running.
func (e *Event) StopImmediatePropagation() { e.stopped = true }

// IsStopped reports whether StopImmediatePropagation was called.
func (e *Event) IsStopped() bool { return e.stopped }

// AddEventListener registers cb for (id, name, useCapture). The node is
// resolved on the runner; done receives the new listener id, or ListenerID 0
// and an error when the node is unknown. The render layer learns about the
// listener when the current batch commits.
func (m *Manager) AddEventListener(id uint32, name string, useCapture bool, cb EventCallback, done CallFunctionCallback) error {
	return m.post("add_listener", id, func() {
		if name == "" || cb == nil {
			m.complete(done, CallResult{Err: m.opError("add_listener", id,
				fmt.Errorf("%w: listener needs a name and a callback", ErrInvalidArgument))})
			return
		}
		node := m.registry.lookup(id)
		if node == nil {
			m.complete(done, CallResult{Err: m.opError("add_listener", id, ErrNodeNotFound)})
			return
		}

		lid := m.nextListenerID()
		node.addListener(name, listener{id: lid, capture: useCapture, cb: cb})
		m.pending.push(Operation{Kind: OpAddListener, NodeID: id, Name: name, ListenerID: lid})
		m.complete(done, CallResult{ListenerID: lid})
	})
}

// nextListenerID returns a fresh non-zero listener id. Once the counter has
// wrapped, ids still held by a registered listener are skipped.
func (m *Manager) nextListenerID() uint32 {
	for {
		m.lastListenerID++
		if m.lastListenerID == 0 {
			m.lastListenerID = 1
			m.listenerIDsWrapped = true
		}
		if !m.listenerIDsWrapped || !m.listenerIDLive(m.lastListenerID) {
			return m.lastListenerID
		}
	}
}

func (m *Manager) listenerIDLive(id uint32) bool {
	live := false
	m.registry.each(func(n *Node) {
		for _, ls := range n.listeners {
			for _, l := range ls {
				if l.id == id {
					live = true
				}
			}
		}
	})
	return live
}

// RemoveEventListener stages removal of listener listenerID from (id, name).
// Removing an unknown triple is a no-op.
func (m *Manager) RemoveEventListener(id uint32, name string, listenerID uint32) error {
	return m.enqueue(Operation{Kind: OpRemoveListener, NodeID: id, Name: name, ListenerID: listenerID})
}

// wireListener announces the first listener for (node, name) to the render layer.
func (m *Manager) wireListener(op Operation) error {
	node := m.registry.lookup(op.NodeID)
	if node == nil {
		return m.opError("add_listener", op.NodeID, ErrNodeNotFound)
	}
	if !node.HasEventListener(op.Name) || node.wired[op.Name] {
		return nil
	}
	if node.wired == nil {
		node.wired = make(map[string]bool)
	}
	node.wired[op.Name] = true
	if rm, ok := m.GetRenderManager(); ok {
		rm.AddEventListener(node, op.Name)
	}
	return nil
}

// unwireListener drops the listener and withdraws the event name from the
// render layer once no listener for it remains.
func (m *Manager) unwireListener(op Operation) error {
	node := m.registry.lookup(op.NodeID)
	if node == nil {
		return nil
	}
	if !node.removeListener(op.Name, op.ListenerID) {
		return nil
	}
	if node.HasEventListener(op.Name) || !node.wired[op.Name] {
		return nil
	}
	delete(node.wired, op.Name)
	if rm, ok := m.GetRenderManager(); ok {
		rm.RemoveEventListener(node, op.Name)
	}
	return nil
}

// HandleEvent dispatches event on the runner to the listeners registered on
// its target for its name and phase, synchronously and in registration
// order. Tree propagation is the render layer's job.
func (m *Manager) HandleEvent(event *Event) error {
	if event == nil {
		return m.opError("handle_event", 0, fmt.Errorf("%w: nil event", ErrInvalidArgument))
	}
	return m.post("handle_event", event.TargetID, func() {
		m.dispatch(event)
	})
}

func (m *Manager) dispatch(event *Event) {
	node := m.registry.lookup(event.TargetID)
	if node == nil {
		m.metrics.EventHandled(metrics.EventNoTarget)
		m.logger.Debug("event target not found", "node_id", event.TargetID, "event", event.Name)
		return
	}
	event.target = node

	listeners := node.matching(event.Name, event.Capture)
	if len(listeners) == 0 {
		m.metrics.EventHandled(metrics.EventNoListener)
		return
	}
	for _, l := range listeners {
		m.invoke(l, event)
		if event.stopped {
			break
		}
	}
	m.metrics.EventHandled(metrics.EventDispatched)
}

// invoke runs a listener callback with panic recovery.
func (m *Manager) invoke(l listener, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("listener panic",
				"panic", r,
				"node_id", event.TargetID,
				"event", event.Name,
				"listener_id", l.id,
				"stack", string(debug.Stack()))
		}
	}()

	l.cb(event)
}

// CallFunction forwards an imperative call on node id to the render layer.
// cb is invoked exactly once: with the render layer's result, or with
// ErrNodeNotFound / ErrRenderReleased.
func (m *Manager) CallFunction(id uint32, name string, arg any, cb CallFunctionCallback) error {
	return m.post("call_function", id, func() {
		node := m.registry.lookup(id)
		if node == nil {
			m.complete(cb, CallResult{Err: m.opError("call_function", id, ErrNodeNotFound)})
			return
		}
		rm, ok := m.GetRenderManager()
		if !ok {
			m.complete(cb, CallResult{Err: m.opError("call_function", id, ErrRenderReleased)})
			return
		}

		var once sync.Once
		rm.CallFunction(node, name, arg, func(result CallResult) {
			once.Do(func() { m.complete(cb, result) })
		})
	})
}
