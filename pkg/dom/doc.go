// Package dom coordinates a tree of logical UI nodes for one UI root.
//
// A Manager owns a node registry, batches structural mutations, manages
// event listeners and drives layout passes. Committed results are forwarded
// to a RenderManager, which materializes them natively.
//
// # Threading
//
// Every Manager owns a dedicated taskrunner.Runner. All public mutation
// methods (CreateDomNodes, UpdateDomNodes, MoveDomNodes, DeleteDomNodes,
// AddEventListener, RemoveEventListener, CallFunction, HandleEvent,
// SetRootNode, DoLayout, EndBatch) only post work to that runner, so they are
// safe to call from any goroutine. The registry, operation queues, listener
// tables and layout cache are written exclusively on the runner.
//
// # Batching
//
// Structural mutations are staged as Operation values and applied only when
// EndBatch commits. A commit applies structural operations in submission
// order, then listener operations, then layout operations, then runs one
// layout pass and forwards the nodes whose box changed:
//
//	m.CreateDomNodes([]*dom.Node{
//	    dom.NewNode(1, 0, 0, "View", nil),
//	    dom.NewNode(2, 1, 0, "Text", dom.Props{"text": "hello"}),
//	})
//	m.DoLayout()
//	m.EndBatch()
//
// A failing operation is logged and counted; it never aborts the rest of the
// commit.
//
// # Lifetimes
//
// The render layer and the optional delegating scheduler are held through
// ref.Handle values owned elsewhere. A released handle turns the
// corresponding notifications into no-ops.
package dom
