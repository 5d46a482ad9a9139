package protocol

import (
	"errors"
	"reflect"
	"testing"

	"github.com/loomui/loom/pkg/host"
)

func samplePatchBatch() *PatchBatch {
	return &PatchBatch{
		Seq: 7,
		Patches: []Patch{
			CreateNode(1, "div", map[string]any{"class": "panel", "onClick": Handler{}}),
			CreateText(2, "hello"),
			AppendChild(1, 2),
			AppendChild(0, 1),
			SetText(2, "goodbye"),
			SetProp(1, "class", "panel open"),
			RemoveProp(1, "title"),
			InsertBefore(1, 3, 2),
			RemoveChild(1, 3),
		},
	}
}

func TestPatchBatchRoundTrip(t *testing.T) {
	in := samplePatchBatch()
	payload, err := in.EncodePayload()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodePatchBatch(payload)
	if err != nil {
		t.Fatal(err)
	}
	if got.Seq != 7 {
		t.Errorf("Seq = %d, want 7", got.Seq)
	}
	if len(got.Patches) != len(in.Patches) {
		t.Fatalf("patch count = %d, want %d", len(got.Patches), len(in.Patches))
	}
	for i := range in.Patches {
		if !reflect.DeepEqual(got.Patches[i], in.Patches[i]) {
			t.Errorf("patch %d (%s):\n got %#v\nwant %#v",
				i, in.Patches[i].Op, got.Patches[i], in.Patches[i])
		}
	}
}

func TestPatchBatchFrame(t *testing.T) {
	f, err := samplePatchBatch().Frame(FlagResumed)
	if err != nil {
		t.Fatal(err)
	}
	if f.Type != FramePatches {
		t.Errorf("Type = %v", f.Type)
	}
	if !f.Flags.Has(FlagResumed) {
		t.Error("flags lost")
	}
	got, err := DecodePatchBatch(f.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if got.Seq != 7 {
		t.Errorf("Seq = %d", got.Seq)
	}
}

func TestPatchBatchEmpty(t *testing.T) {
	payload, err := (&PatchBatch{Seq: 1}).EncodePayload()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodePatchBatch(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Patches) != 0 {
		t.Errorf("patches = %v, want none", got.Patches)
	}
}

func TestPatchUnknownOpRejected(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(1) // seq
	e.WriteUvarint(1) // count
	e.WriteByte(0x7f) // bogus op
	e.WriteUvarint(5) // node
	if _, err := DecodePatchBatch(e.Bytes()); !errors.Is(err, ErrUnknownPatchOp) {
		t.Errorf("err = %v, want ErrUnknownPatchOp", err)
	}
}

// Every truncated prefix of a valid batch must fail cleanly, never panic
// or succeed.
func TestPatchBatchTruncationSweep(t *testing.T) {
	payload, err := samplePatchBatch().EncodePayload()
	if err != nil {
		t.Fatal(err)
	}
	for n := 0; n < len(payload); n++ {
		if _, err := DecodePatchBatch(payload[:n]); err == nil {
			t.Errorf("prefix %d decoded successfully", n)
		}
	}
}

func TestPatchBatchFrameTooLarge(t *testing.T) {
	big := &PatchBatch{Seq: 1}
	text := make([]byte, 3000)
	for i := range text {
		text[i] = 'x'
	}
	for i := 0; i < 30; i++ {
		big.Patches = append(big.Patches, CreateText(host.NodeID(i+1), string(text)))
	}
	if _, err := big.Frame(0); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestPatchOpStrings(t *testing.T) {
	if OpInsertBefore.String() != "InsertBefore" {
		t.Errorf("got %q", OpInsertBefore.String())
	}
	if PatchOp(0xee).String() != "Unknown" {
		t.Errorf("got %q", PatchOp(0xee).String())
	}
}
