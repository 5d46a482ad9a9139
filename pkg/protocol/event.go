package protocol

import "github.com/loomui/loom/pkg/host"

// Event is client input aimed at a handler prop on a live node: "node 17,
// onClick" or "node 42, onInput with {value: ...}". The engine looks up the
// real handler server-side; nothing executable crosses the wire.
type Event struct {
	// Seq is the client's own counter, echoed in error frames so the
	// client can correlate rejections.
	Seq uint64

	// Node is the target host node.
	Node host.NodeID

	// Prop names the handler prop, e.g. "onClick".
	Prop string

	// Payload carries event data, nil for bare events like clicks.
	Payload map[string]any
}

// EncodePayload serializes the event without the frame header.
func (ev *Event) EncodePayload() ([]byte, error) {
	e := NewEncoder()
	e.WriteUvarint(ev.Seq)
	e.WriteUvarint(uint64(ev.Node))
	e.WriteString(ev.Prop)
	e.WriteUvarint(uint64(len(ev.Payload)))
	for k, v := range ev.Payload {
		e.WriteString(k)
		if err := WriteValue(e, v); err != nil {
			return nil, err
		}
	}
	return e.Bytes(), nil
}

// Frame wraps the event in a FrameEvent frame.
func (ev *Event) Frame() (*Frame, error) {
	payload, err := ev.EncodePayload()
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}
	return &Frame{Type: FrameEvent, Payload: payload}, nil
}

// DecodeEvent parses a FrameEvent payload.
func DecodeEvent(payload []byte) (*Event, error) {
	d := NewDecoder(payload)
	ev := &Event{}
	var err error
	if ev.Seq, err = d.ReadUvarint(); err != nil {
		return nil, err
	}
	node, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	ev.Node = host.NodeID(node)
	if ev.Prop, err = d.ReadString(); err != nil {
		return nil, err
	}
	n, err := d.ReadCount()
	if err != nil {
		return nil, err
	}
	if n > 0 {
		ev.Payload = make(map[string]any, n)
		for i := 0; i < n; i++ {
			k, err := d.ReadString()
			if err != nil {
				return nil, err
			}
			v, err := ReadValue(d)
			if err != nil {
				return nil, err
			}
			ev.Payload[k] = v
		}
	}
	return ev, nil
}
