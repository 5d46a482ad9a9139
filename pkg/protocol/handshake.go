package protocol

import (
	"errors"
	"fmt"
)

// Version is the protocol revision this package speaks. A server rejects
// hellos with a different version; there is no negotiation.
const Version uint8 = 1

var ErrVersionMismatch = errors.New("protocol: version mismatch")

// Hello opens a connection. An empty SessionID requests a fresh session; a
// non-empty one asks to resume, with AckedSeq naming the last patch batch
// the client applied.
type Hello struct {
	Version   uint8
	SessionID string
	AckedSeq  uint64
}

// EncodePayload serializes the hello without the frame header.
func (h *Hello) EncodePayload() []byte {
	e := NewEncoder()
	e.WriteByte(h.Version)
	e.WriteString(h.SessionID)
	e.WriteUvarint(h.AckedSeq)
	return e.Bytes()
}

// Frame wraps the hello in a FrameHello frame.
func (h *Hello) Frame() *Frame {
	return &Frame{Type: FrameHello, Payload: h.EncodePayload()}
}

// DecodeHello parses a FrameHello payload, rejecting foreign versions.
func DecodeHello(payload []byte) (*Hello, error) {
	d := NewDecoder(payload)
	h := &Hello{}
	v, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	if v != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, v, Version)
	}
	h.Version = v
	if h.SessionID, err = d.ReadString(); err != nil {
		return nil, err
	}
	if h.AckedSeq, err = d.ReadUvarint(); err != nil {
		return nil, err
	}
	return h, nil
}

// Welcome answers a hello. Resumed reports whether the server honored a
// resume request; when false the client must drop its retained tree and
// treat the next patch batch as the initial render.
type Welcome struct {
	Version   uint8
	SessionID string
	Resumed   bool
}

// EncodePayload serializes the welcome without the frame header.
func (w *Welcome) EncodePayload() []byte {
	e := NewEncoder()
	e.WriteByte(w.Version)
	e.WriteString(w.SessionID)
	e.WriteBool(w.Resumed)
	return e.Bytes()
}

// Frame wraps the welcome in a FrameWelcome frame.
func (w *Welcome) Frame() *Frame {
	return &Frame{Type: FrameWelcome, Payload: w.EncodePayload()}
}

// DecodeWelcome parses a FrameWelcome payload.
func DecodeWelcome(payload []byte) (*Welcome, error) {
	d := NewDecoder(payload)
	w := &Welcome{}
	v, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	if v != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, v, Version)
	}
	w.Version = v
	if w.SessionID, err = d.ReadString(); err != nil {
		return nil, err
	}
	if w.Resumed, err = d.ReadBool(); err != nil {
		return nil, err
	}
	return w, nil
}
