package loom

import (
	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/host"
)

// effectTag records what a reconciliation pass decided for an instance.
type effectTag uint8

const (
	tagNone effectTag = iota
	tagCreate
	tagUpdate
	tagDelete
)

// lifecycleCaps is the capability bitset for a stateful component, resolved
// once at mount instead of re-asserting interfaces per call.
type lifecycleCaps uint16

const (
	capMounter lifecycleCaps = 1 << iota
	capUpdater
	capUnmounter
	capShouldUpdate
	capDeriveProps
	capSnapshot
	capLegacyReceive
	capLegacyUpdate
	capErrorDerive
	capCatch
	capBinder
)

func (c lifecycleCaps) has(cap lifecycleCaps) bool {
	return c&cap != 0
}

// resolveCaps inspects a stateful value once.
func resolveCaps(s element.Stateful) lifecycleCaps {
	var caps lifecycleCaps
	if _, ok := s.(element.Mounter); ok {
		caps |= capMounter
	}
	if _, ok := s.(element.Updater); ok {
		caps |= capUpdater
	}
	if _, ok := s.(element.Unmounter); ok {
		caps |= capUnmounter
	}
	if _, ok := s.(element.ShouldUpdater); ok {
		caps |= capShouldUpdate
	}
	if _, ok := s.(element.PropsDeriver); ok {
		caps |= capDeriveProps
	}
	if _, ok := s.(element.SnapshotTaker); ok {
		caps |= capSnapshot
	}
	if _, ok := s.(element.LegacyReceiver); ok {
		caps |= capLegacyReceive
	}
	if _, ok := s.(element.LegacyUpdater); ok {
		caps |= capLegacyUpdate
	}
	if _, ok := s.(element.ErrorDeriver); ok {
		caps |= capErrorDerive
	}
	if _, ok := s.(element.Catcher); ok {
		caps |= capCatch
	}
	if _, ok := s.(element.Binder); ok {
		caps |= capBinder
	}
	return caps
}

// isBoundary reports whether the caps mark an error boundary.
func (c lifecycleCaps) isBoundary() bool {
	return c.has(capErrorDerive) || c.has(capCatch)
}

// instance is one node of the persistent tree: the live counterpart of an
// Element at a tree position.
type instance struct {
	id     NodeID
	kind   element.Kind
	key    string
	depth  int
	serial uint64 // stable per-mount serial for Ctx.ID / UseID

	parent   NodeID
	children []NodeID

	// el/committedProps are the committed view; pendingEl/pendingProps are
	// written by an in-flight pass and promoted at commit.
	el             *element.Element
	pendingEl      *element.Element
	committedProps element.Props
	pendingProps   element.Props

	tag     effectTag
	mounted bool
	dirty   bool

	// Host linkage. hostID is set for KindHost/KindText instances;
	// hostParent is the nearest ancestor host node for everything.
	hostID     host.NodeID
	hostParent host.NodeID

	// Stateful component state.
	state element.Stateful
	caps  lifecycleCaps

	// Hook slots, ordered by call position. sealed is set after the first
	// completed render; afterwards the slot count and kinds are fixed.
	slots  []slot
	sealed bool

	// Suspense boundary bookkeeping: true while the boundary shows its
	// fallback instead of content.
	fallbackShown bool

	// text content for KindText.
	text string

	// ref currently bound for this instance, if any.
	boundRef element.RefBinder

	// snapshot holds the SnapshotBeforeUpdate result between the
	// pre-mutation read and the post-mutation DidUpdate call.
	snapshot any
}

// typeOf returns the committed element type, falling back to the pending one
// during the instance's first pass.
func (in *instance) typeOf() *element.Element {
	if in.el != nil {
		return in.el
	}
	return in.pendingEl
}
