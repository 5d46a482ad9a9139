package protocol

import (
	"errors"
	"time"
)

// ControlOp identifies a control message.
type ControlOp uint8

const (
	ControlPing     ControlOp = 0x01 // liveness probe, expects a pong
	ControlPong     ControlOp = 0x02 // reply echoing the ping timestamp
	ControlShutdown ControlOp = 0x03 // server is closing the session cleanly
)

func (op ControlOp) String() string {
	switch op {
	case ControlPing:
		return "Ping"
	case ControlPong:
		return "Pong"
	case ControlShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

var ErrUnknownControlOp = errors.New("protocol: unknown control op")

// Control is a ping, pong, or shutdown notice. Timestamp is the sender's
// clock in Unix milliseconds; a pong echoes the ping's timestamp so the
// pinger can measure round-trip time without keeping state.
type Control struct {
	Op        ControlOp
	Timestamp int64
}

// Ping returns a ping control stamped with the current time.
func Ping() *Control {
	return &Control{Op: ControlPing, Timestamp: time.Now().UnixMilli()}
}

// Pong returns the reply to ping, echoing its timestamp.
func (c *Control) Pong() *Control {
	return &Control{Op: ControlPong, Timestamp: c.Timestamp}
}

// EncodePayload serializes the control message without the frame header.
func (c *Control) EncodePayload() []byte {
	e := NewEncoder()
	e.WriteByte(byte(c.Op))
	e.WriteSvarint(c.Timestamp)
	return e.Bytes()
}

// Frame wraps the control message in a FrameControl frame.
func (c *Control) Frame() *Frame {
	return &Frame{Type: FrameControl, Payload: c.EncodePayload()}
}

// DecodeControl parses a FrameControl payload.
func DecodeControl(payload []byte) (*Control, error) {
	d := NewDecoder(payload)
	op, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	c := &Control{Op: ControlOp(op)}
	if c.Op < ControlPing || c.Op > ControlShutdown {
		return nil, ErrUnknownControlOp
	}
	if c.Timestamp, err = d.ReadSvarint(); err != nil {
		return nil, err
	}
	return c, nil
}
