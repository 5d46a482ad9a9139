package protocol

import (
	"errors"
	"io"
)

const (
	// FrameHeaderSize is the fixed header length in bytes.
	FrameHeaderSize = 4

	// MaxPayloadSize is the largest payload a single frame can carry.
	MaxPayloadSize = 65535
)

// FrameType identifies what a frame's payload contains.
type FrameType uint8

const (
	FrameHello   FrameType = 0x00 // client → server connection setup
	FrameWelcome FrameType = 0x01 // server → client handshake reply
	FramePatches FrameType = 0x02 // server → client mutation batch
	FrameEvent   FrameType = 0x03 // client → server input event
	FrameAck     FrameType = 0x04 // client → server batch acknowledgment
	FrameControl FrameType = 0x05 // ping/pong/shutdown
	FrameError   FrameType = 0x06 // fatal error, connection closes after
)

func (ft FrameType) String() string {
	switch ft {
	case FrameHello:
		return "Hello"
	case FrameWelcome:
		return "Welcome"
	case FramePatches:
		return "Patches"
	case FrameEvent:
		return "Event"
	case FrameAck:
		return "Ack"
	case FrameControl:
		return "Control"
	case FrameError:
		return "Error"
	default:
		return "Unknown"
	}
}

// FrameFlags modify how a frame is processed.
type FrameFlags uint8

const (
	// FlagResumed marks the first patch frame after a session resume; the
	// client must reconcile against its retained tree instead of a blank one.
	FlagResumed FrameFlags = 0x01

	// FlagUrgent asks the client to apply the frame before coalescing.
	FlagUrgent FrameFlags = 0x02
)

// Has reports whether flag is set.
func (ff FrameFlags) Has(flag FrameFlags) bool { return ff&flag != 0 }

var (
	ErrFrameTooLarge    = errors.New("protocol: frame payload too large")
	ErrUnknownFrameType = errors.New("protocol: unknown frame type")
)

// Frame is one wire message: a 4-byte header plus payload.
type Frame struct {
	Type    FrameType
	Flags   FrameFlags
	Payload []byte
}

// Encode serializes the frame, header included.
func (f *Frame) Encode() ([]byte, error) {
	n := len(f.Payload)
	if n > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, FrameHeaderSize+n)
	buf[0] = byte(f.Type)
	buf[1] = byte(f.Flags)
	buf[2] = byte(n >> 8)
	buf[3] = byte(n)
	copy(buf[FrameHeaderSize:], f.Payload)
	return buf, nil
}

// DecodeFrame parses one frame from data. The payload slice aliases data.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < FrameHeaderSize {
		return nil, io.ErrUnexpectedEOF
	}
	ft := FrameType(data[0])
	if ft > FrameError {
		return nil, ErrUnknownFrameType
	}
	n := int(data[2])<<8 | int(data[3])
	if len(data) < FrameHeaderSize+n {
		return nil, io.ErrUnexpectedEOF
	}
	return &Frame{
		Type:    ft,
		Flags:   FrameFlags(data[1]),
		Payload: data[FrameHeaderSize : FrameHeaderSize+n],
	}, nil
}
