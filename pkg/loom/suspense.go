package loom

import (
	"sync"

	"github.com/loomui/loom/pkg/element"
)

// SuspendOn marks the current render as waiting on ready. The nearest
// enclosing Suspense boundary shows its fallback (or, inside a transition
// over already-visible content, the whole pass is deferred) and the
// component re-renders after ready closes. The component should return nil
// for the render that suspends; whatever it returns is discarded.
func SuspendOn(c element.Context, ready <-chan struct{}) {
	rc := ctxOf(c)
	rc.pass.suspendOn(ready)
}

// Resource is an async value a component can read during render. The first
// Read starts the loader and suspends; once the loader finishes, Read
// returns the value or panics the error into the nearest error boundary.
type Resource[T any] struct {
	load func() (T, error)

	started sync.Once
	done    chan struct{}

	mu    sync.Mutex
	value T
	err   error
}

// NewResource wraps a loader. The loader runs at most once, on its own
// goroutine, the first time any component reads the resource.
func NewResource[T any](load func() (T, error)) *Resource[T] {
	return &Resource[T]{load: load, done: make(chan struct{})}
}

// Read returns the loaded value, suspending the current render while the
// loader is still running.
func (res *Resource[T]) Read(c element.Context) T {
	res.start()
	select {
	case <-res.done:
	default:
		SuspendOn(c, res.done)
		var zero T
		return zero
	}
	res.mu.Lock()
	defer res.mu.Unlock()
	if res.err != nil {
		panic(res.err)
	}
	return res.value
}

// Ready reports whether the loader has finished, without starting it.
func (res *Resource[T]) Ready() bool {
	select {
	case <-res.done:
		return true
	default:
		return false
	}
}

func (res *Resource[T]) start() {
	res.started.Do(func() {
		go func() {
			v, err := res.load()
			res.mu.Lock()
			res.value = v
			res.err = err
			res.mu.Unlock()
			close(res.done)
		}()
	})
}
