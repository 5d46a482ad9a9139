package element

import (
	"reflect"
	"sync"
)

// MemoType wraps a component so reconciliation can skip its subtree when
// props are equal under the comparator.
type MemoType struct {
	// Inner is the wrapped component type (Func or StatefulCtor).
	Inner any

	// AreEqual decides whether old and new props are equal. Nil means the
	// default shallow identity comparison.
	AreEqual func(old, new Props) bool
}

// Memo wraps a component type. With no comparator, props are compared
// shallowly per key by identity.
func Memo(inner any, areEqual ...func(old, new Props) bool) *MemoType {
	m := &MemoType{Inner: inner}
	if len(areEqual) > 0 {
		m.AreEqual = areEqual[0]
	}
	return m
}

// Equal applies the comparator, defaulting to shallow identity.
func (m *MemoType) Equal(old, new Props) bool {
	if m.AreEqual != nil {
		return m.AreEqual(old, new)
	}
	return ShallowEqual(old, new)
}

// ForwardRefType forwards the element's ref into the render function instead
// of binding it to a host node.
type ForwardRefType struct {
	// Render receives the forwarded ref target (a *Ref[T] or RefFunc).
	Render func(ctx Context, props Props, ref any) *Element
}

// ForwardRef wraps a render function that accepts the forwarded ref.
func ForwardRef(render func(ctx Context, props Props, ref any) *Element) *ForwardRefType {
	return &ForwardRefType{Render: render}
}

// LazyType defers loading a component type until first render. The loader
// runs at most once; its result, success or failure, is cached for the
// lifetime of the value.
type LazyType struct {
	load func() (any, error)

	once    sync.Once
	started sync.Once
	ready   chan struct{}

	mu       sync.Mutex
	resolved any
	err      error
}

// Lazy wraps a loader producing a component type (Func or StatefulCtor).
func Lazy(load func() (any, error)) *LazyType {
	return &LazyType{
		load:  load,
		ready: make(chan struct{}),
	}
}

// Start kicks off the loader on its own goroutine if it has not run yet.
func (l *LazyType) Start() {
	l.started.Do(func() {
		go l.resolve()
	})
}

// resolve runs the loader exactly once.
func (l *LazyType) resolve() {
	l.once.Do(func() {
		typ, err := l.load()
		l.mu.Lock()
		l.resolved = typ
		l.err = err
		l.mu.Unlock()
		close(l.ready)
	})
}

// Ready returns a channel closed when the loader has finished.
func (l *LazyType) Ready() <-chan struct{} {
	return l.ready
}

// Resolved returns the loaded component type, whether loading finished, and
// the loader error if any.
func (l *LazyType) Resolved() (any, bool, error) {
	select {
	case <-l.ready:
	default:
		return nil, false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolved, true, l.err
}

// SuspenseType marks a suspense boundary element. The boundary's fallback is
// carried in props under "fallback".
type SuspenseType struct{}

// Suspense creates a boundary that shows fallback while any descendant is
// suspended on an unresolved dependency.
func Suspense(fallback *Element, children ...*Element) *Element {
	return MustNew(SuspenseType{}, Props{"fallback": fallback}, children...)
}

// ProviderType identifies a context provider element. Value is the boxed
// provided value for the context with the given ID.
type ProviderType struct {
	ContextID uint64
	Value     any
}

// ConsumerType identifies a context consumer element.
type ConsumerType struct {
	ContextID uint64
	Default   any
	Render    func(value any) *Element
}

// ShallowEqual compares two prop maps key by key using identity semantics.
// Values of incomparable dynamic types fall back to deep equality.
func ShallowEqual(a, b Props) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !ValueEqual(av, bv) {
			return false
		}
	}
	return true
}

// ValueEqual compares two prop values. Common scalar types use ==, functions
// compare by code pointer, everything else falls back to reflect.DeepEqual.
func ValueEqual(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case int:
		bv, ok := b.(int)
		return ok && av == bv
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case uint64:
		bv, ok := b.(uint64)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}

	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() == reflect.Func || rb.Kind() == reflect.Func {
		return ra.Kind() == rb.Kind() && ra.Pointer() == rb.Pointer()
	}
	if ra.Comparable() && rb.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// funcID returns a comparable identity for function-typed component types.
// Closures created from the same function literal share identity, which
// keeps instances stable when callers rebuild component values per render.
func funcID(typ any) uintptr {
	v := reflect.ValueOf(typ)
	if v.Kind() != reflect.Func {
		return 0
	}
	return v.Pointer()
}
