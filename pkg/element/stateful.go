package element

// Stateful is a component with instance state. Constructors are element
// types; the engine calls the constructor once when the instance mounts and
// keeps the value alive until unmount.
//
// Embed StateBase to get SetState. Optional lifecycle behavior is declared by
// implementing the capability interfaces below; the engine resolves which of
// them a component implements once, at mount.
type Stateful interface {
	Render(ctx Context) *Element
}

// StatefulCtor constructs a Stateful instance.
type StatefulCtor func() Stateful

// Mounter runs after the instance and its subtree are attached to the host.
// Children are notified before parents.
type Mounter interface {
	DidMount()
}

// Updater runs after a committed update. snapshot is the value returned by
// SnapshotBeforeUpdate, or nil.
type Updater interface {
	DidUpdate(oldProps Props, snapshot any)
}

// Unmounter runs before the instance is detached. Parents are notified
// before children.
type Unmounter interface {
	WillUnmount()
}

// ShouldUpdater can veto re-rendering. Returning false skips the subtree
// entirely for that pass.
type ShouldUpdater interface {
	ShouldUpdate(oldProps, newProps Props) bool
}

// PropsDeriver adjusts instance state from incoming props before render.
// Implementing it suppresses the legacy WillReceiveProps/WillUpdate pair.
type PropsDeriver interface {
	DeriveState(nextProps Props)
}

// SnapshotTaker captures a value after render but before host mutations are
// applied; the value is handed to DidUpdate. Implementing it suppresses the
// legacy WillReceiveProps/WillUpdate pair.
type SnapshotTaker interface {
	SnapshotBeforeUpdate(oldProps Props) any
}

// LegacyReceiver is the deprecated pre-render props notification. Ignored
// when the component implements PropsDeriver or SnapshotTaker.
type LegacyReceiver interface {
	WillReceiveProps(nextProps Props)
}

// LegacyUpdater is the deprecated pre-commit update notification. Ignored
// when the component implements PropsDeriver or SnapshotTaker.
type LegacyUpdater interface {
	WillUpdate(nextProps Props)
}

// ErrorDeriver lets a component adopt recovery state when a descendant's
// render or effect fails. Implementing it makes the component an error
// boundary: its subtree is re-rendered instead of unwinding further.
type ErrorDeriver interface {
	DeriveErrorState(err error)
}

// Catcher receives the error and a captured stack after a boundary absorbs
// a descendant failure. Implementing it alone also marks a boundary.
type Catcher interface {
	CatchError(err error, stack string)
}

// StateBase wires SetState into the engine. Embed it by pointer-receiver
// convention in stateful components.
type StateBase struct {
	invalidate func()
	props      Props
}

// SetState applies the mutation and schedules a re-render of the instance.
// Calling it on an unmounted instance is a no-op.
func (b *StateBase) SetState(apply func()) {
	if apply != nil {
		apply()
	}
	if b.invalidate != nil {
		b.invalidate()
	}
}

// Props returns the instance's committed props.
func (b *StateBase) Props() Props {
	return b.props
}

// Bind is called by the engine at mount to connect SetState to the
// scheduler. Application code never calls it.
func (b *StateBase) Bind(invalidate func()) {
	b.invalidate = invalidate
}

// SetProps is called by the engine when props change. Application code
// never calls it.
func (b *StateBase) SetProps(p Props) {
	b.props = p
}

// Binder is the engine-side hook StateBase satisfies.
type Binder interface {
	Bind(invalidate func())
	SetProps(p Props)
}
