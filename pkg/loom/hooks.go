package loom

import (
	"fmt"

	"github.com/loomui/loom/pkg/element"
)

// UseState returns the current value for this call position and a setter.
// The setter is stable across renders and safe to call from any goroutine;
// calling it after unmount logs and drops the update.
//
// Setting a value that is identical to the current one still re-renders the
// instance; memo wrappers and ShouldUpdate may short-circuit downstream.
func UseState[T any](c element.Context, initial T) (T, func(T)) {
	rc := ctxOf(c)
	s, first := rc.nextSlot(slotState)
	if first {
		s.committed = initial
	}
	value := rc.pass.resolveState(s)

	root, instID, serial := rc.root, rc.instID, rc.root.arena.at(rc.instID).serial
	idx := rc.cursor - 1
	set := func(v T) {
		root.enqueueUpdate(instID, serial, idx, v)
	}
	return value.(T), set
}

// UseReducer is UseState with an explicit transition function. The dispatch
// function enqueues the action; the reducer runs during the next render
// pass, against that pass's view of the state.
func UseReducer[S, A any](c element.Context, reducer func(S, A) S, initial S) (S, func(A)) {
	rc := ctxOf(c)
	s, first := rc.nextSlot(slotReducer)
	if first {
		s.committed = initial
		s.reducer = func(state, action any) any {
			return reducer(state.(S), action.(A))
		}
	}
	value := rc.pass.resolveState(s)

	root, instID, serial := rc.root, rc.instID, rc.root.arena.at(rc.instID).serial
	idx := rc.cursor - 1
	dispatch := func(a A) {
		root.enqueueUpdate(instID, serial, idx, a)
	}
	return value.(S), dispatch
}

// UseRef returns a mutable cell created on the first render and
// reference-identical on every subsequent render of the instance.
func UseRef[T any](c element.Context, initial T) *element.Ref[T] {
	rc := ctxOf(c)
	s, first := rc.nextSlot(slotRef)
	if first {
		r := element.NewRef[T]()
		r.Set(initial)
		s.ref = r
	}
	return s.ref.(*element.Ref[T])
}

// UseMemo recomputes only when deps differ elementwise by identity from the
// previous render's deps, or on the first render. A nil deps slice means
// recompute on every render.
func UseMemo[T any](c element.Context, compute func() T, deps []any) T {
	rc := ctxOf(c)
	s, first := rc.nextSlot(slotMemo)
	if first || !s.hasDeps || deps == nil || !depsEqual(s.deps, deps) {
		s.value = compute()
		s.deps = deps
		s.hasDeps = deps != nil
	}
	return s.value.(T)
}

// UseCallback memoizes a function value under the same deps policy as
// UseMemo.
func UseCallback[F any](c element.Context, fn F, deps []any) F {
	rc := ctxOf(c)
	s, first := rc.nextSlot(slotCallback)
	if first || !s.hasDeps || deps == nil || !depsEqual(s.deps, deps) {
		s.value = fn
		s.deps = deps
		s.hasDeps = deps != nil
	}
	return s.value.(F)
}

// UseEffect schedules fn to run after commit, deferred with the passive
// batch. It runs after the first render and whenever deps differ from the
// previous render; a nil deps slice means after every render. The previous
// cleanup, if any, runs before the next invocation and at unmount.
func UseEffect(c element.Context, fn func() Cleanup, deps []any) {
	useEffectSlot(c, slotEffect, fn, deps)
}

// UseLayoutEffect is UseEffect but synchronous: it runs during commit,
// after host mutations and before control returns to the update's caller.
func UseLayoutEffect(c element.Context, fn func() Cleanup, deps []any) {
	useEffectSlot(c, slotLayoutEffect, fn, deps)
}

// UseInsertionEffect runs during commit before host mutations are applied.
func UseInsertionEffect(c element.Context, fn func() Cleanup, deps []any) {
	useEffectSlot(c, slotInsertionEffect, fn, deps)
}

func useEffectSlot(c element.Context, kind slotKind, fn func() Cleanup, deps []any) {
	rc := ctxOf(c)
	s, first := rc.nextSlot(kind)
	changed := first || !s.hasDeps || deps == nil || !depsEqual(s.deps, deps)
	s.fn = fn
	s.deps = deps
	s.hasDeps = deps != nil
	if changed {
		s.needsRun = true
	}
}

// UseContext returns the value provided by the nearest enclosing Provider
// for ctx, or the context's default.
func UseContext[T any](c element.Context, ctx *Context[T]) T {
	rc := ctxOf(c)
	s, _ := rc.nextSlot(slotContext)
	s.ctxID = ctx.id
	return ReadContext(c, ctx)
}

// UseImperativeHandle binds ref to the value built by create, rebuilding
// when deps change. The binding is applied with layout timing and cleared
// at unmount.
func UseImperativeHandle[T any](c element.Context, ref element.RefBinder, create func() T, deps []any) {
	rc := ctxOf(c)
	s, first := rc.nextSlot(slotImperative)
	changed := first || !s.hasDeps || deps == nil || !depsEqual(s.deps, deps)
	s.deps = deps
	s.hasDeps = deps != nil
	if changed && ref != nil {
		s.fn = func() Cleanup {
			ref.BindCurrent(create())
			return ref.UnbindCurrent
		}
		s.needsRun = true
	}
}

// UseDebugValue records a label for the instance, surfaced in debug dumps.
func UseDebugValue(c element.Context, v any) {
	rc := ctxOf(c)
	s, _ := rc.nextSlot(slotDebug)
	s.value = v
}

// UseID returns an identifier unique within the root and stable across
// renders of the instance.
func UseID(c element.Context) string {
	rc := ctxOf(c)
	s, first := rc.nextSlot(slotID)
	if first {
		in := rc.root.arena.at(rc.instID)
		s.id = fmt.Sprintf("loom-%d-%d", in.serial, rc.cursor-1)
	}
	return s.id
}

// UseSyncExternalStore subscribes the instance to an external store. The
// subscription is established once; when the store signals a change, the
// snapshot is re-read on the root's loop and the instance re-renders if it
// differs.
func UseSyncExternalStore[T any](c element.Context, subscribe func(onChange func()) func(), getSnapshot func() T) T {
	rc := ctxOf(c)
	s, first := rc.nextSlot(slotSyncStore)
	if first {
		s.getSnapshot = func() any { return getSnapshot() }
		root, instID, serial := rc.root, rc.instID, rc.root.arena.at(rc.instID).serial
		idx := rc.cursor - 1
		s.unsubscribe = subscribe(func() {
			root.storeChanged(instID, serial, idx)
		})
	}
	snap := getSnapshot()
	s.lastSnap = snap
	return snap
}

// UseTransition returns whether a transition started here is still pending,
// and a function that runs its argument with state updates marked
// deferrable.
func UseTransition(c element.Context) (bool, func(func())) {
	rc := ctxOf(c)
	s, first := rc.nextSlot(slotTransition)
	if first {
		s.committed = false
	}
	pending := rc.pass.resolveState(s).(bool)

	root, instID, serial := rc.root, rc.instID, rc.root.arena.at(rc.instID).serial
	idx := rc.cursor - 1
	start := func(scope func()) {
		root.startTransition(func(p bool) {
			root.enqueueUpdate(instID, serial, idx, p)
		}, scope)
	}
	return pending, start
}

// UseDeferredValue returns the previous value until a deferred re-render
// catches up with the new one. During sync passes a changed value schedules
// the catch-up pass and the stale value is returned.
func UseDeferredValue[T any](c element.Context, v T) T {
	rc := ctxOf(c)
	s, first := rc.nextSlot(slotDeferred)
	if first {
		s.committed = v
		return v
	}
	if element.ValueEqual(s.committed, v) {
		return s.committed.(T)
	}
	if rc.pass.lane == laneSync {
		rc.root.ensureDeferredPass(rc.instID)
		return s.committed.(T)
	}
	s.pending = v
	s.hasPending = true
	return v
}

// depsEqual compares dependency lists elementwise by identity.
func depsEqual(old, new []any) bool {
	if len(old) != len(new) {
		return false
	}
	for i := range new {
		if !element.ValueEqual(old[i], new[i]) {
			return false
		}
	}
	return true
}
