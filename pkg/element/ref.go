package element

import "sync"

// Binder-side contract for ref targets. The engine binds a ref exactly when
// the instance attaches and unbinds it on detach; application code only
// reads.
type RefBinder interface {
	BindCurrent(v any)
	UnbindCurrent()
}

// Ref is a mutable single-owner cell written by the engine on attach and
// detach. For host elements the bound value is the backend's node handle;
// for forwarded refs it is whatever the inner component exposes.
type Ref[T any] struct {
	mu      sync.RWMutex
	current T
	set     bool
}

// NewRef creates an empty ref.
func NewRef[T any]() *Ref[T] {
	return &Ref[T]{}
}

// Current returns the bound value, or the zero value while detached.
func (r *Ref[T]) Current() T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Set writes the cell directly. UseRef uses it for the initial value;
// application code may use it for arbitrary mutable per-instance storage.
func (r *Ref[T]) Set(v T) {
	r.mu.Lock()
	r.current = v
	r.set = true
	r.mu.Unlock()
}

// IsSet reports whether the ref is currently bound.
func (r *Ref[T]) IsSet() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set
}

// BindCurrent implements RefBinder. Values of the wrong type are ignored.
func (r *Ref[T]) BindCurrent(v any) {
	tv, ok := v.(T)
	if !ok {
		return
	}
	r.mu.Lock()
	r.current = tv
	r.set = true
	r.mu.Unlock()
}

// UnbindCurrent implements RefBinder.
func (r *Ref[T]) UnbindCurrent() {
	r.mu.Lock()
	var zero T
	r.current = zero
	r.set = false
	r.mu.Unlock()
}

// RefFunc is the callback form of a ref. It is invoked with the value on
// attach and with nil on detach.
type RefFunc func(v any)

// BindCurrent implements RefBinder.
func (f RefFunc) BindCurrent(v any) {
	f(v)
}

// UnbindCurrent implements RefBinder.
func (f RefFunc) UnbindCurrent() {
	f(nil)
}
