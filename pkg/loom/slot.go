package loom

// slotKind identifies the hook stored in a slot. Hook identity is call
// position plus kind; a changed kind at a position is a fatal order
// violation.
type slotKind uint8

const (
	slotState slotKind = iota + 1
	slotReducer
	slotRef
	slotMemo
	slotCallback
	slotEffect
	slotLayoutEffect
	slotInsertionEffect
	slotContext
	slotSyncStore
	slotTransition
	slotDeferred
	slotID
	slotImperative
	slotDebug
)

// String returns the string representation of the slotKind.
func (k slotKind) String() string {
	switch k {
	case slotState:
		return "UseState"
	case slotReducer:
		return "UseReducer"
	case slotRef:
		return "UseRef"
	case slotMemo:
		return "UseMemo"
	case slotCallback:
		return "UseCallback"
	case slotEffect:
		return "UseEffect"
	case slotLayoutEffect:
		return "UseLayoutEffect"
	case slotInsertionEffect:
		return "UseInsertionEffect"
	case slotContext:
		return "UseContext"
	case slotSyncStore:
		return "UseSyncExternalStore"
	case slotTransition:
		return "UseTransition"
	case slotDeferred:
		return "UseDeferredValue"
	case slotID:
		return "UseID"
	case slotImperative:
		return "UseImperativeHandle"
	case slotDebug:
		return "UseDebugValue"
	default:
		return "Unknown"
	}
}

// stateUpdate is one queued state or reducer update, tagged with the lane it
// belongs to. Updates survive in the queue until a pass of a covering lane
// commits them.
type stateUpdate struct {
	lane   lane
	action any
}

// Cleanup undoes an effect's work. Effects may return nil.
type Cleanup func()

// slot is one unit of per-instance hook state, a tagged union over the hook
// kinds. Only the fields for the slot's kind are meaningful.
type slot struct {
	kind slotKind

	// State/reducer: committed is the value as of the last commit; pending
	// holds the value computed by an in-flight pass; queue holds updates
	// not yet committed by a covering lane.
	committed  any
	pending    any
	hasPending bool
	queue      []stateUpdate
	reducer    func(state, action any) any

	// Memo/callback/deferred value storage.
	value   any
	deps    []any
	hasDeps bool

	// Ref cell (also reused for the imperative-handle target).
	ref any

	// Effect state.
	fn       func() Cleanup
	cleanup  Cleanup
	needsRun bool

	// Context read bookkeeping.
	ctxID uint64

	// External store subscription.
	unsubscribe func()
	getSnapshot func() any
	lastSnap    any

	// UseID assigned identifier.
	id string
}
