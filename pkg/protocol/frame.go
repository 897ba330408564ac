package protocol

import (
	"errors"
	"fmt"
	"io"
)

// FrameHeaderSize is the size of the frame header in bytes.
const FrameHeaderSize = 5

// MaxPayloadSize is the largest accepted frame payload.
const MaxPayloadSize = MaxAllocation

// FrameType identifies the payload of a frame.
type FrameType uint8

const (
	FrameBatch      FrameType = 0x01 // Coordinator → renderer: committed operations
	FrameCall       FrameType = 0x02 // Coordinator → renderer: function call
	FrameEvent      FrameType = 0x10 // Renderer → coordinator: native event
	FrameCallResult FrameType = 0x11 // Renderer → coordinator: call outcome
	FrameRootSize   FrameType = 0x12 // Renderer → coordinator: root resized
	FrameError      FrameType = 0x7F // Error report
)

// String returns the frame type name.
func (ft FrameType) String() string {
	switch ft {
	case FrameBatch:
		return "Batch"
	case FrameCall:
		return "Call"
	case FrameEvent:
		return "Event"
	case FrameCallResult:
		return "CallResult"
	case FrameRootSize:
		return "RootSize"
	case FrameError:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(ft))
	}
}

// Frame errors.
var (
	ErrFrameTooLarge   = errors.New("protocol: frame payload too large")
	ErrTrailingBytes   = errors.New("protocol: trailing bytes after frame payload")
	ErrUnexpectedFrame = errors.New("protocol: unexpected frame type")
)

// Frame is a typed payload.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// NewFrame creates a frame.
func NewFrame(ft FrameType, payload []byte) *Frame {
	return &Frame{Type: ft, Payload: payload}
}

// Encode returns the header followed by the payload.
func (f *Frame) Encode() []byte {
	length := len(f.Payload)
	buf := make([]byte, FrameHeaderSize+length)
	buf[0] = byte(f.Type)
	buf[1] = byte(length >> 24)
	buf[2] = byte(length >> 16)
	buf[3] = byte(length >> 8)
	buf[4] = byte(length)
	copy(buf[FrameHeaderSize:], f.Payload)
	return buf
}

func decodeHeader(h []byte) (FrameType, int, error) {
	length := int(h[1])<<24 | int(h[2])<<16 | int(h[3])<<8 | int(h[4])
	if length > MaxPayloadSize {
		return 0, 0, ErrFrameTooLarge
	}
	return FrameType(h[0]), length, nil
}

// DecodeFrame decodes exactly one frame from data. The payload is copied.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < FrameHeaderSize {
		return nil, io.ErrUnexpectedEOF
	}
	ft, length, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	switch {
	case len(data) < FrameHeaderSize+length:
		return nil, io.ErrUnexpectedEOF
	case len(data) > FrameHeaderSize+length:
		return nil, ErrTrailingBytes
	}

	payload := make([]byte, length)
	copy(payload, data[FrameHeaderSize:])
	return &Frame{Type: ft, Payload: payload}, nil
}

// ReadFrame reads one frame from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	ft, length, err := decodeHeader(header)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	return &Frame{Type: ft, Payload: payload}, nil
}

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, f *Frame) error {
	if len(f.Payload) > MaxPayloadSize {
		return ErrFrameTooLarge
	}
	_, err := w.Write(f.Encode())
	return err
}
