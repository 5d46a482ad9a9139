package protocol

import (
	"errors"
	"fmt"

	"github.com/loomui/loom/pkg/host"
)

// PatchOp identifies one host mutation inside a patch batch.
type PatchOp uint8

const (
	OpCreateNode   PatchOp = 0x01 // new element node: tag + initial props
	OpCreateText   PatchOp = 0x02 // new text node
	OpSetText      PatchOp = 0x03 // replace text content
	OpSetProp      PatchOp = 0x04 // set or change one prop
	OpRemoveProp   PatchOp = 0x05 // delete one prop
	OpAppendChild  PatchOp = 0x06 // attach as last child
	OpInsertBefore PatchOp = 0x07 // attach before a sibling
	OpRemoveChild  PatchOp = 0x08 // detach and discard subtree
)

func (op PatchOp) String() string {
	switch op {
	case OpCreateNode:
		return "CreateNode"
	case OpCreateText:
		return "CreateText"
	case OpSetText:
		return "SetText"
	case OpSetProp:
		return "SetProp"
	case OpRemoveProp:
		return "RemoveProp"
	case OpAppendChild:
		return "AppendChild"
	case OpInsertBefore:
		return "InsertBefore"
	case OpRemoveChild:
		return "RemoveChild"
	default:
		return "Unknown"
	}
}

var ErrUnknownPatchOp = errors.New("protocol: unknown patch op")

// Patch is one mutation. Which fields are meaningful depends on Op; unused
// fields stay zero and cost one varint byte at most on the wire.
type Patch struct {
	Op     PatchOp
	Node   host.NodeID
	Parent host.NodeID    // AppendChild, InsertBefore, RemoveChild
	Before host.NodeID    // InsertBefore
	Tag    string         // CreateNode
	Text   string         // CreateText, SetText
	Key    string         // SetProp, RemoveProp
	Value  any            // SetProp
	Props  map[string]any // CreateNode initial props
}

// Constructors for each op, so call sites read like the mutation they ship.

func CreateNode(id host.NodeID, tag string, props map[string]any) Patch {
	return Patch{Op: OpCreateNode, Node: id, Tag: tag, Props: props}
}

func CreateText(id host.NodeID, text string) Patch {
	return Patch{Op: OpCreateText, Node: id, Text: text}
}

func SetText(id host.NodeID, text string) Patch {
	return Patch{Op: OpSetText, Node: id, Text: text}
}

func SetProp(id host.NodeID, key string, value any) Patch {
	return Patch{Op: OpSetProp, Node: id, Key: key, Value: value}
}

func RemoveProp(id host.NodeID, key string) Patch {
	return Patch{Op: OpRemoveProp, Node: id, Key: key}
}

func AppendChild(parent, child host.NodeID) Patch {
	return Patch{Op: OpAppendChild, Parent: parent, Node: child}
}

func InsertBefore(parent, child, before host.NodeID) Patch {
	return Patch{Op: OpInsertBefore, Parent: parent, Node: child, Before: before}
}

func RemoveChild(parent, child host.NodeID) Patch {
	return Patch{Op: OpRemoveChild, Parent: parent, Node: child}
}

func (p *Patch) encode(e *Encoder) error {
	e.WriteByte(byte(p.Op))
	e.WriteUvarint(uint64(p.Node))
	switch p.Op {
	case OpCreateNode:
		e.WriteString(p.Tag)
		e.WriteUvarint(uint64(len(p.Props)))
		for k, v := range p.Props {
			e.WriteString(k)
			if err := WriteValue(e, v); err != nil {
				return err
			}
		}
	case OpCreateText, OpSetText:
		e.WriteString(p.Text)
	case OpSetProp:
		e.WriteString(p.Key)
		if err := WriteValue(e, p.Value); err != nil {
			return err
		}
	case OpRemoveProp:
		e.WriteString(p.Key)
	case OpAppendChild, OpRemoveChild:
		e.WriteUvarint(uint64(p.Parent))
	case OpInsertBefore:
		e.WriteUvarint(uint64(p.Parent))
		e.WriteUvarint(uint64(p.Before))
	default:
		return fmt.Errorf("%w: 0x%02x", ErrUnknownPatchOp, byte(p.Op))
	}
	return nil
}

func decodePatch(d *Decoder) (Patch, error) {
	var p Patch
	op, err := d.ReadByte()
	if err != nil {
		return p, err
	}
	p.Op = PatchOp(op)
	node, err := d.ReadUvarint()
	if err != nil {
		return p, err
	}
	p.Node = host.NodeID(node)

	switch p.Op {
	case OpCreateNode:
		if p.Tag, err = d.ReadString(); err != nil {
			return p, err
		}
		n, err := d.ReadCount()
		if err != nil {
			return p, err
		}
		if n > 0 {
			p.Props = make(map[string]any, n)
			for i := 0; i < n; i++ {
				k, err := d.ReadString()
				if err != nil {
					return p, err
				}
				v, err := ReadValue(d)
				if err != nil {
					return p, err
				}
				p.Props[k] = v
			}
		}
	case OpCreateText, OpSetText:
		if p.Text, err = d.ReadString(); err != nil {
			return p, err
		}
	case OpSetProp:
		if p.Key, err = d.ReadString(); err != nil {
			return p, err
		}
		if p.Value, err = ReadValue(d); err != nil {
			return p, err
		}
	case OpRemoveProp:
		if p.Key, err = d.ReadString(); err != nil {
			return p, err
		}
	case OpAppendChild, OpRemoveChild:
		parent, err := d.ReadUvarint()
		if err != nil {
			return p, err
		}
		p.Parent = host.NodeID(parent)
	case OpInsertBefore:
		parent, err := d.ReadUvarint()
		if err != nil {
			return p, err
		}
		before, err := d.ReadUvarint()
		if err != nil {
			return p, err
		}
		p.Parent = host.NodeID(parent)
		p.Before = host.NodeID(before)
	default:
		return p, fmt.Errorf("%w: 0x%02x", ErrUnknownPatchOp, op)
	}
	return p, nil
}

// PatchBatch is one committed render's worth of mutations, applied
// atomically by the client. Seq increases by one per batch within a
// session and is echoed back in acks.
type PatchBatch struct {
	Seq     uint64
	Patches []Patch
}

// EncodePayload serializes the batch without the frame header.
func (b *PatchBatch) EncodePayload() ([]byte, error) {
	e := NewEncoder()
	e.WriteUvarint(b.Seq)
	e.WriteUvarint(uint64(len(b.Patches)))
	for i := range b.Patches {
		if err := b.Patches[i].encode(e); err != nil {
			return nil, err
		}
	}
	return e.Bytes(), nil
}

// Frame wraps the batch in a FramePatches frame.
func (b *PatchBatch) Frame(flags FrameFlags) (*Frame, error) {
	payload, err := b.EncodePayload()
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}
	return &Frame{Type: FramePatches, Flags: flags, Payload: payload}, nil
}

// DecodePatchBatch parses a FramePatches payload.
func DecodePatchBatch(payload []byte) (*PatchBatch, error) {
	d := NewDecoder(payload)
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	n, err := d.ReadCount()
	if err != nil {
		return nil, err
	}
	b := &PatchBatch{Seq: seq, Patches: make([]Patch, 0, n)}
	for i := 0; i < n; i++ {
		p, err := decodePatch(d)
		if err != nil {
			return nil, err
		}
		b.Patches = append(b.Patches, p)
	}
	return b, nil
}
