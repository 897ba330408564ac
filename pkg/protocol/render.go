package protocol

import (
	"errors"
	"fmt"
)

// RenderOpCode identifies a render operation.
type RenderOpCode uint8

const (
	RenderCreate         RenderOpCode = 0x01 // Create a node under PID at Index
	RenderUpdate         RenderOpCode = 0x02 // Merge Props (nil deletes) and Tag
	RenderMove           RenderOpCode = 0x03 // Re-parent a node under PID at Index
	RenderDelete         RenderOpCode = 0x04 // Delete a node and its subtree
	RenderLayout         RenderOpCode = 0x05 // Apply a computed box
	RenderAddListener    RenderOpCode = 0x06 // Start delivering Event for a node
	RenderRemoveListener RenderOpCode = 0x07 // Stop delivering Event for a node
	RenderEndBatch       RenderOpCode = 0x08 // All operations of a commit were sent
)

// String returns the operation name.
func (op RenderOpCode) String() string {
	switch op {
	case RenderCreate:
		return "createNode"
	case RenderUpdate:
		return "updateNode"
	case RenderMove:
		return "moveNode"
	case RenderDelete:
		return "deleteNode"
	case RenderLayout:
		return "updateLayout"
	case RenderAddListener:
		return "addEventListener"
	case RenderRemoveListener:
		return "removeEventListener"
	case RenderEndBatch:
		return "endBatch"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(op))
	}
}

// ErrInvalidRenderOp is returned when a batch contains an unknown op code.
var ErrInvalidRenderOp = errors.New("protocol: invalid render operation")

// Box is a computed layout box.
type Box struct {
	Left, Top, Width, Height float64
}

// RenderOp is one committed change sent to the renderer. Which fields are
// meaningful depends on Op.
type RenderOp struct {
	Op    RenderOpCode
	ID    uint32
	PID   uint32
	Index int
	Tag   string
	Props map[string]any
	Box   Box
	Event string
}

// Batch is the payload of a FrameBatch.
type Batch struct {
	// Seq increases by one per batch on a connection.
	Seq uint64
	Ops []RenderOp
}

// EncodeBatch encodes a batch payload.
func EncodeBatch(b *Batch) []byte {
	e := NewEncoder()
	EncodeBatchTo(e, b)
	return e.Bytes()
}

// EncodeBatchTo encodes a batch payload using e.
//
// Format: [Seq:varint][Count:varint][Op...]
func EncodeBatchTo(e *Encoder, b *Batch) {
	e.WriteUvarint(b.Seq)
	e.WriteUvarint(uint64(len(b.Ops)))
	for i := range b.Ops {
		encodeRenderOp(e, &b.Ops[i])
	}
}

// Each op starts with [Op:byte][ID:varint].
func encodeRenderOp(e *Encoder, op *RenderOp) {
	e.WriteByte(byte(op.Op))
	e.WriteUvarint(uint64(op.ID))

	switch op.Op {
	case RenderCreate:
		e.WriteUvarint(uint64(op.PID))
		e.WriteSvarint(int64(op.Index))
		e.WriteString(op.Tag)
		e.WriteObject(op.Props)
	case RenderUpdate:
		e.WriteString(op.Tag)
		e.WriteObject(op.Props)
	case RenderMove:
		e.WriteUvarint(uint64(op.PID))
		e.WriteSvarint(int64(op.Index))
	case RenderLayout:
		e.WriteFloat64(op.Box.Left)
		e.WriteFloat64(op.Box.Top)
		e.WriteFloat64(op.Box.Width)
		e.WriteFloat64(op.Box.Height)
	case RenderAddListener, RenderRemoveListener:
		e.WriteString(op.Event)
	}
}

// DecodeBatch decodes a batch payload.
func DecodeBatch(data []byte) (*Batch, error) {
	d := NewDecoder(data)
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}

	b := &Batch{Seq: seq, Ops: make([]RenderOp, count)}
	for i := range b.Ops {
		if err := decodeRenderOp(d, &b.Ops[i]); err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
	}
	if !d.EOF() {
		return nil, ErrTrailingBytes
	}
	return b, nil
}

func decodeRenderOp(d *Decoder, op *RenderOp) error {
	code, err := d.ReadByte()
	if err != nil {
		return err
	}
	op.Op = RenderOpCode(code)
	if op.ID, err = d.ReadUint32Varint(); err != nil {
		return err
	}

	switch op.Op {
	case RenderCreate:
		if err := decodePlacement(d, op); err != nil {
			return err
		}
		if op.Tag, err = d.ReadString(); err != nil {
			return err
		}
		op.Props, err = d.ReadObject()
		return err
	case RenderUpdate:
		if op.Tag, err = d.ReadString(); err != nil {
			return err
		}
		op.Props, err = d.ReadObject()
		return err
	case RenderMove:
		return decodePlacement(d, op)
	case RenderDelete, RenderEndBatch:
		return nil
	case RenderLayout:
		for _, f := range []*float64{&op.Box.Left, &op.Box.Top, &op.Box.Width, &op.Box.Height} {
			if *f, err = d.ReadFloat64(); err != nil {
				return err
			}
		}
		return nil
	case RenderAddListener, RenderRemoveListener:
		op.Event, err = d.ReadString()
		return err
	default:
		return fmt.Errorf("%w: 0x%02x", ErrInvalidRenderOp, code)
	}
}

func decodePlacement(d *Decoder, op *RenderOp) error {
	var err error
	if op.PID, err = d.ReadUint32Varint(); err != nil {
		return err
	}
	index, err := d.ReadSvarint()
	if err != nil {
		return err
	}
	op.Index = int(index)
	return nil
}
