package protocol

import (
	"errors"
	"reflect"
	"testing"
)

func TestBatchEncoding(t *testing.T) {
	in := &Batch{
		Seq: 7,
		Ops: []RenderOp{
			{Op: RenderCreate, ID: 1, PID: 0, Index: 0, Tag: "View", Props: map[string]any{}},
			{Op: RenderCreate, ID: 2, PID: 1, Index: -1, Tag: "Text", Props: map[string]any{"text": "hi", "size": int64(12)}},
			{Op: RenderUpdate, ID: 2, Props: map[string]any{"text": nil}},
			{Op: RenderMove, ID: 2, PID: 1, Index: 3},
			{Op: RenderLayout, ID: 2, Box: Box{Left: 1, Top: 2, Width: 30.5, Height: 40}},
			{Op: RenderAddListener, ID: 2, Event: "click"},
			{Op: RenderRemoveListener, ID: 2, Event: "click"},
			{Op: RenderDelete, ID: 2},
			{Op: RenderEndBatch},
		},
	}

	got, err := DecodeBatch(EncodeBatch(in))
	if err != nil {
		t.Fatalf("DecodeBatch() error = %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("DecodeBatch() = %+v\nwant %+v", got, in)
	}
}

func TestDecodeBatchRejectsUnknownOp(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(1)
	e.WriteUvarint(1)
	e.WriteByte(0x42)
	e.WriteUvarint(5)

	if _, err := DecodeBatch(e.Bytes()); !errors.Is(err, ErrInvalidRenderOp) {
		t.Errorf("DecodeBatch() error = %v, want ErrInvalidRenderOp", err)
	}
}

func TestCallEncoding(t *testing.T) {
	in := &Call{CallID: 99, NodeID: 4, Name: "scrollTo", Arg: map[string]any{"y": 120.0}}
	got, err := DecodeCall(EncodeCall(in))
	if err != nil {
		t.Fatalf("DecodeCall() error = %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("DecodeCall() = %+v, want %+v", got, in)
	}

	res := &CallResult{CallID: 99, Value: "done", Error: ""}
	gotRes, err := DecodeCallResult(EncodeCallResult(res))
	if err != nil {
		t.Fatalf("DecodeCallResult() error = %v", err)
	}
	if !reflect.DeepEqual(gotRes, res) {
		t.Errorf("DecodeCallResult() = %+v, want %+v", gotRes, res)
	}
}

func TestEventEncoding(t *testing.T) {
	in := &Event{NodeID: 12, Name: "touchstart", Capture: true, Payload: map[string]any{"x": 1.5, "y": int64(2)}}
	got, err := DecodeEvent(EncodeEvent(in))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("DecodeEvent() = %+v, want %+v", got, in)
	}

	if _, err := DecodeEvent(EncodeEvent(in)[:3]); err == nil {
		t.Error("DecodeEvent() on truncated input should fail")
	}
}

func TestRootSizeAndErrorEncoding(t *testing.T) {
	size, err := DecodeRootSize(EncodeRootSize(&RootSize{Width: 375, Height: 812}))
	if err != nil || size.Width != 375 || size.Height != 812 {
		t.Errorf("DecodeRootSize() = %+v, %v", size, err)
	}

	em := &ErrorMessage{Code: ErrNodeNotFound, Message: "node 9", Fatal: false}
	got, err := DecodeErrorMessage(EncodeErrorMessage(em))
	if err != nil {
		t.Fatalf("DecodeErrorMessage() error = %v", err)
	}
	if *got != *em {
		t.Errorf("DecodeErrorMessage() = %+v, want %+v", got, em)
	}
	if ErrManagerClosed.String() != "ManagerClosed" {
		t.Errorf("String() = %q", ErrManagerClosed.String())
	}
}
