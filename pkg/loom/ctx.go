package loom

import (
	"fmt"

	"github.com/loomui/loom/internal/errors"
	"github.com/loomui/loom/pkg/element"
)

// Ctx is the engine's render context. One is created for every render call
// of every instance and invalidated when that render returns; hooks reject
// anything else.
type Ctx struct {
	root   *Root
	pass   *pass
	instID NodeID
	cursor int
	done   bool
}

var _ element.Context = (*Ctx)(nil)

// ID returns a stable identifier for the instance being rendered.
func (c *Ctx) ID() string {
	in := c.root.arena.at(c.instID)
	if in == nil {
		return ""
	}
	return fmt.Sprintf("loom-%d", in.serial)
}

// ctxOf asserts the engine context behind the public interface.
func ctxOf(c element.Context) *Ctx {
	rc, ok := c.(*Ctx)
	if !ok || rc == nil {
		panic(errors.New("E001").WithSuggestion(
			"pass the ctx argument your component received; do not construct or wrap render contexts").Format())
	}
	if rc.done {
		panic(errors.New("E007").Format())
	}
	return rc
}

// nextSlot advances the hook cursor and returns the slot for this call
// position, creating it on the instance's first render. A kind mismatch or a
// count overrun against the sealed layout is the fatal order violation.
func (c *Ctx) nextSlot(kind slotKind) (*slot, bool) {
	in := c.root.arena.at(c.instID)
	idx := c.cursor
	c.cursor++

	if idx < len(in.slots) {
		s := &in.slots[idx]
		if s.kind != kind {
			panic(errors.New("E002").WithDetail(
				"hook %d changed from %s to %s between renders", idx, s.kind, kind).Format())
		}
		return s, false
	}

	if in.sealed {
		panic(errors.New("E002").WithDetail(
			"extra %s hook at index %d; previous renders made %d hook calls", kind, idx, len(in.slots)).Format())
	}

	in.slots = append(in.slots, slot{kind: kind})
	return &in.slots[idx], true
}

// finishRender seals the slot layout and validates the final cursor.
func (c *Ctx) finishRender() {
	in := c.root.arena.at(c.instID)
	if in.sealed && c.cursor != len(in.slots) {
		panic(errors.New("E002").WithDetail(
			"expected %d hook calls, got %d", len(in.slots), c.cursor).Format())
	}
	in.sealed = true
	c.done = true
}
