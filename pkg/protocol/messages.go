package protocol

// Call asks the renderer to run a function on a node.
type Call struct {
	// CallID correlates the CallResult.
	CallID uint64
	NodeID uint32
	Name   string
	Arg    any
}

// EncodeCall encodes a call payload.
//
// Format: [CallID:varint][NodeID:varint][Name:string][Arg:value]
func EncodeCall(c *Call) []byte {
	e := NewEncoder()
	e.WriteUvarint(c.CallID)
	e.WriteUvarint(uint64(c.NodeID))
	e.WriteString(c.Name)
	e.WriteValue(c.Arg)
	return e.Bytes()
}

// DecodeCall decodes a call payload.
func DecodeCall(data []byte) (*Call, error) {
	d := NewDecoder(data)
	c := &Call{}
	var err error
	if c.CallID, err = d.ReadUvarint(); err != nil {
		return nil, err
	}
	if c.NodeID, err = d.ReadUint32Varint(); err != nil {
		return nil, err
	}
	if c.Name, err = d.ReadString(); err != nil {
		return nil, err
	}
	if c.Arg, err = d.ReadValue(); err != nil {
		return nil, err
	}
	return c, nil
}

// CallResult reports the outcome of a Call. Error is empty on success.
type CallResult struct {
	CallID uint64
	Value  any
	Error  string
}

// EncodeCallResult encodes a call result payload.
//
// Format: [CallID:varint][Value:value][Error:string]
func EncodeCallResult(r *CallResult) []byte {
	e := NewEncoder()
	e.WriteUvarint(r.CallID)
	e.WriteValue(r.Value)
	e.WriteString(r.Error)
	return e.Bytes()
}

// DecodeCallResult decodes a call result payload.
func DecodeCallResult(data []byte) (*CallResult, error) {
	d := NewDecoder(data)
	r := &CallResult{}
	var err error
	if r.CallID, err = d.ReadUvarint(); err != nil {
		return nil, err
	}
	if r.Value, err = d.ReadValue(); err != nil {
		return nil, err
	}
	if r.Error, err = d.ReadString(); err != nil {
		return nil, err
	}
	return r, nil
}

// Event is a native event targeted at a node.
type Event struct {
	NodeID  uint32
	Name    string
	Capture bool
	Payload any
}

// EncodeEvent encodes an event payload.
//
// Format: [NodeID:varint][Name:string][Capture:bool][Payload:value]
func EncodeEvent(ev *Event) []byte {
	e := NewEncoder()
	e.WriteUvarint(uint64(ev.NodeID))
	e.WriteString(ev.Name)
	e.WriteBool(ev.Capture)
	e.WriteValue(ev.Payload)
	return e.Bytes()
}

// DecodeEvent decodes an event payload.
func DecodeEvent(data []byte) (*Event, error) {
	d := NewDecoder(data)
	ev := &Event{}
	var err error
	if ev.NodeID, err = d.ReadUint32Varint(); err != nil {
		return nil, err
	}
	if ev.Name, err = d.ReadString(); err != nil {
		return nil, err
	}
	if ev.Capture, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if ev.Payload, err = d.ReadValue(); err != nil {
		return nil, err
	}
	return ev, nil
}

// RootSize reports new root view dimensions.
type RootSize struct {
	Width, Height float64
}

// EncodeRootSize encodes a root size payload.
func EncodeRootSize(s *RootSize) []byte {
	e := NewEncoder()
	e.WriteFloat64(s.Width)
	e.WriteFloat64(s.Height)
	return e.Bytes()
}

// DecodeRootSize decodes a root size payload.
func DecodeRootSize(data []byte) (*RootSize, error) {
	d := NewDecoder(data)
	s := &RootSize{}
	var err error
	if s.Width, err = d.ReadFloat64(); err != nil {
		return nil, err
	}
	if s.Height, err = d.ReadFloat64(); err != nil {
		return nil, err
	}
	return s, nil
}
