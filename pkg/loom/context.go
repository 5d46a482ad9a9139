package loom

import (
	"sync/atomic"

	"github.com/loomui/loom/pkg/element"
)

// ctxIDCounter hands out process-unique context identities.
var ctxIDCounter atomic.Uint64

// Context is a shared-value channel between a Provider element and any
// descendant reader. The value in force for a reader is always the one
// pushed by the nearest enclosing Provider during that same render pass, or
// the default if none encloses it.
type Context[T any] struct {
	id  uint64
	def T
}

// NewContext creates a context with a default value.
func NewContext[T any](def T) *Context[T] {
	return &Context[T]{id: ctxIDCounter.Add(1), def: def}
}

// Provider returns an element that makes value visible to every descendant
// for the duration of its subtree's render.
func (c *Context[T]) Provider(value T, children ...*element.Element) *element.Element {
	return element.MustNew(&element.ProviderType{ContextID: c.id, Value: value}, nil, children...)
}

// Consumer returns an element whose child is produced from the current
// context value.
func (c *Context[T]) Consumer(render func(value T) *element.Element) *element.Element {
	return element.MustNew(&element.ConsumerType{
		ContextID: c.id,
		Default:   c.def,
		Render: func(v any) *element.Element {
			return render(v.(T))
		},
	}, nil)
}

// ReadContext reads the current value without occupying a hook slot, so it
// is usable from stateful Render methods as well as function components.
func ReadContext[T any](c element.Context, ctx *Context[T]) T {
	rc := ctxOf(c)
	if v, ok := rc.pass.contextValue(ctx.id); ok {
		return v.(T)
	}
	return ctx.def
}

// contextValue looks up the top of a context's per-pass value stack.
// The stack lives on the pass, never on the root: concurrent or interleaved
// passes cannot observe each other's pushed values.
func (p *pass) contextValue(id uint64) (any, bool) {
	stack := p.ctxStack[id]
	if len(stack) == 0 {
		return nil, false
	}
	return stack[len(stack)-1], true
}

// pushContext enters a Provider's subtree.
func (p *pass) pushContext(id uint64, v any) {
	if p.ctxStack == nil {
		p.ctxStack = make(map[uint64][]any)
	}
	p.ctxStack[id] = append(p.ctxStack[id], v)
}

// popContext leaves a Provider's subtree. Push and pop are strictly nested.
func (p *pass) popContext(id uint64) {
	stack := p.ctxStack[id]
	p.ctxStack[id] = stack[:len(stack)-1]
}
