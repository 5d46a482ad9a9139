package protocol

// Ack confirms the client has applied every patch batch up to and
// including Seq. The server may discard retained batches at or below the
// acked sequence; anything above it is replayed on resume.
type Ack struct {
	Seq uint64
}

// EncodePayload serializes the ack without the frame header.
func (a *Ack) EncodePayload() []byte {
	e := NewEncoder()
	e.WriteUvarint(a.Seq)
	return e.Bytes()
}

// Frame wraps the ack in a FrameAck frame.
func (a *Ack) Frame() *Frame {
	return &Frame{Type: FrameAck, Payload: a.EncodePayload()}
}

// DecodeAck parses a FrameAck payload.
func DecodeAck(payload []byte) (*Ack, error) {
	d := NewDecoder(payload)
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	return &Ack{Seq: seq}, nil
}
