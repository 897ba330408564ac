// Package render provides render-layer implementations for dom.Manager.
//
// Recorder keeps committed operations in memory, batch by batch. Bridge
// streams them to a native renderer over a websocket using the protocol
// package and routes native events, call results and root resizes back into
// the manager.
//
// Both translate manager callbacks into protocol.RenderOp values while the
// call is in progress, since node pointers are only valid during the call.
//
// Renderer is not a render layer. It turns a dom.TreeSnapshot into
// absolutely positioned HTML so a committed tree can be looked at in a
// browser.
package render
