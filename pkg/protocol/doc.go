// Package protocol implements the binary wire format spoken between the DOM
// coordinator and a native renderer.
//
// Every message is a frame with a 5-byte header:
//
//	┌─────────────┬───────────────────────────────┐
//	│ Frame Type  │ Payload Length                │
//	│ (1 byte)    │ (4 bytes, big-endian)         │
//	└─────────────┴───────────────────────────────┘
//
// Coordinator → renderer:
//
//   - FrameBatch (0x01): committed render operations, in commit order
//   - FrameCall (0x02): an imperative function call on a node
//
// Renderer → coordinator:
//
//   - FrameEvent (0x10): a native event targeted at a node
//   - FrameCallResult (0x11): the outcome of a FrameCall
//   - FrameRootSize (0x12): the root view was resized
//
// Either direction:
//
//   - FrameError (0x7F): an error report
//
// # Encoding
//
// Integers use protobuf-style varints (ZigZag for signed values); strings
// and byte slices are varint length-prefixed; floats are IEEE 754
// big-endian. Opaque values (props, call arguments, event payloads) use a
// tagged encoding of null, bool, int, float, string, array and object, with
// object keys written in sorted order so encodings are deterministic.
//
// Decoding enforces allocation, collection and nesting limits so a hostile
// peer cannot exhaust memory or the stack.
package protocol
