package protocol

// WireError reports a fatal session error to the peer. Code carries the
// engine's error code (e.g. "E004") when one exists, otherwise a
// transport-level code. EventSeq is the client event that triggered the
// failure, zero when none did.
type WireError struct {
	Code     string
	Message  string
	EventSeq uint64
}

func (we *WireError) Error() string {
	if we.Code == "" {
		return "protocol: " + we.Message
	}
	return "protocol: [" + we.Code + "] " + we.Message
}

// EncodePayload serializes the error without the frame header.
func (we *WireError) EncodePayload() []byte {
	e := NewEncoder()
	e.WriteString(we.Code)
	e.WriteString(we.Message)
	e.WriteUvarint(we.EventSeq)
	return e.Bytes()
}

// Frame wraps the error in a FrameError frame.
func (we *WireError) Frame() *Frame {
	return &Frame{Type: FrameError, Payload: we.EncodePayload()}
}

// DecodeWireError parses a FrameError payload.
func DecodeWireError(payload []byte) (*WireError, error) {
	d := NewDecoder(payload)
	we := &WireError{}
	var err error
	if we.Code, err = d.ReadString(); err != nil {
		return nil, err
	}
	if we.Message, err = d.ReadString(); err != nil {
		return nil, err
	}
	if we.EventSeq, err = d.ReadUvarint(); err != nil {
		return nil, err
	}
	return we, nil
}
