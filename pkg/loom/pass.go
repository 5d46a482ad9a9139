package loom

import (
	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/host"
)

// lane classifies the urgency of queued state updates.
type lane uint8

const (
	laneSync       lane = 1 << iota // urgent, committed by every pass
	laneTransition                  // deferrable, committed only by transition passes
)

// covers reports whether a pass of lane l applies updates of lane u.
// Transition passes see sync updates too so the background tree never lags
// behind what is already visible.
func (l lane) covers(u lane) bool {
	if l == laneTransition {
		return true
	}
	return u == laneSync
}

// mutKind enumerates the host mutations a pass can record.
type mutKind uint8

const (
	mutCreateNode mutKind = iota
	mutCreateText
	mutSetText
	mutUpdateNode
	mutInsertBefore
	mutAppendChild
	mutRemoveChild
	mutAttachRef
	mutDetachRef
)

// mutation is one deferred host operation. Mutations are recorded during the
// render phase and applied, in order, during the atomic commit phase.
type mutation struct {
	kind     mutKind
	id       host.NodeID
	parent   host.NodeID
	before   host.NodeID
	tag      string
	text     string
	oldProps element.Props
	newProps element.Props
	ref      element.RefBinder
}

// entryKind classifies a commit-phase work item.
type entryKind uint8

const (
	entryEffect entryKind = iota // slot-based effect (layout/passive/insertion)
	entryDidMount
	entryDidUpdate
	entryBindRef   // bind a component ref to its stateful value
	entryUnbindRef // engine-side ref unbind at unmount
)

// workEntry is one commit-phase callback, resolved against the arena at run
// time so entries survive arena growth.
type workEntry struct {
	kind     entryKind
	instID   NodeID
	slotIdx  int
	oldProps element.Props
	ref      element.RefBinder
}

// suspension records a pending async dependency encountered mid-render.
type suspension struct {
	boundary NodeID
	ready    <-chan struct{}
}

// passMark is a rollback checkpoint into the pass's append-only queues, used
// when a boundary absorbs an error or suspension below it.
type passMark struct {
	mutations  int
	layout     int
	insertion  int
	passive    int
	created    int
	touched    int
	deletions  int
	snapshots  int
	suspension int
	children   int
}

// deletion schedules an instance subtree for teardown at commit.
type deletion struct {
	instID    NodeID
	container host.NodeID
}

// pass is one render pass over (part of) the tree. All queues are local to
// the pass: nothing escapes into the committed tree until commit, and an
// aborted pass is discarded wholesale.
type pass struct {
	root  *Root
	lane  lane
	epoch uint64

	// ctxStack maps context ID to its per-pass value stack.
	ctxStack map[uint64][]any

	// changedCtx counts enclosing Providers whose value changed this pass.
	// While positive, memo and ShouldUpdate short-circuits are disabled so
	// context changes always reach their readers.
	changedCtx int

	// boundaryStack is the chain of enclosing suspense boundaries.
	boundaryStack []NodeID

	mutations   []mutation
	insertionQ  []workEntry
	layoutQ     []workEntry
	passiveQ    []workEntry
	snapshotQ   []NodeID
	deletions   []deletion
	created     []NodeID
	touched     []NodeID
	suspensions []suspension

	// Pass-local child lists and boundary fallback flips, promoted at
	// commit. childLog allows rollback to restore overwritten entries.
	childOverride map[NodeID][]NodeID
	childLog      []childUndo
	fallbackSet   map[NodeID]bool

	aborted bool
}

func newPass(r *Root, l lane) *pass {
	return &pass{root: r, lane: l, epoch: r.transitionEpoch}
}

func (p *pass) at(id NodeID) *instance {
	return p.root.arena.at(id)
}

func (p *pass) mark() passMark {
	return passMark{
		mutations:  len(p.mutations),
		layout:     len(p.layoutQ),
		insertion:  len(p.insertionQ),
		passive:    len(p.passiveQ),
		created:    len(p.created),
		touched:    len(p.touched),
		deletions:  len(p.deletions),
		snapshots:  len(p.snapshotQ),
		suspension: len(p.suspensions),
		children:   len(p.childLog),
	}
}

// rollback discards everything recorded after the mark, releasing instances
// allocated in the rolled-back span.
//
// Renders in that span also stamped instances with an effect tag, a pending
// element, and pending slot values. Those live on the instance, not the
// pass, so they are cleared here; a stale tag would make a later pass
// mistake the instance for one it already reconciled.
func (p *pass) rollback(m passMark) {
	for _, id := range p.touched[m.touched:] {
		in := p.root.arena.at(id)
		if in == nil {
			continue
		}
		in.tag = tagNone
		in.pendingEl = nil
		in.pendingProps = nil
		for i := range in.slots {
			s := &in.slots[i]
			s.pending = nil
			s.hasPending = false
		}
	}
	for _, d := range p.deletions[m.deletions:] {
		if in := p.root.arena.at(d.instID); in != nil {
			in.tag = tagNone
		}
	}
	for _, id := range p.created[m.created:] {
		p.root.arena.release(id)
	}
	p.mutations = p.mutations[:m.mutations]
	p.layoutQ = p.layoutQ[:m.layout]
	p.insertionQ = p.insertionQ[:m.insertion]
	p.passiveQ = p.passiveQ[:m.passive]
	p.created = p.created[:m.created]
	p.touched = p.touched[:m.touched]
	p.deletions = p.deletions[:m.deletions]
	p.snapshotQ = p.snapshotQ[:m.snapshots]
	p.suspensions = p.suspensions[:m.suspension]
	for i := len(p.childLog) - 1; i >= m.children; i-- {
		u := p.childLog[i]
		if u.had {
			p.childOverride[u.id] = u.prev
		} else {
			delete(p.childOverride, u.id)
		}
	}
	p.childLog = p.childLog[:m.children]
}

func (p *pass) mutate(m mutation) {
	p.mutations = append(p.mutations, m)
}

func (p *pass) touch(id NodeID) {
	p.touched = append(p.touched, id)
}

// suspendOn records a pending dependency against the innermost boundary.
func (p *pass) suspendOn(ready <-chan struct{}) {
	boundary := nilNode
	if n := len(p.boundaryStack); n > 0 {
		boundary = p.boundaryStack[n-1]
	}
	p.suspensions = append(p.suspensions, suspension{boundary: boundary, ready: ready})
}

// takeSuspensions removes and returns the suspensions recorded for the given
// boundary.
func (p *pass) takeSuspensions(boundary NodeID) []suspension {
	var taken []suspension
	rest := p.suspensions[:0]
	for _, s := range p.suspensions {
		if s.boundary == boundary {
			taken = append(taken, s)
		} else {
			rest = append(rest, s)
		}
	}
	p.suspensions = rest
	return taken
}

// resolveState reduces a state slot's queue for this pass's lane on top of
// its committed value, caching the result as the slot's pending value.
func (p *pass) resolveState(s *slot) any {
	v := s.committed
	for _, u := range s.queue {
		if !p.lane.covers(u.lane) {
			continue
		}
		if s.reducer != nil {
			v = s.reducer(v, u.action)
		} else {
			v = u.action
		}
	}
	s.pending = v
	s.hasPending = true
	return v
}

// seedContext replays the provider chain above an instance so targeted
// re-renders deep in the tree observe the same context values a full render
// would. Values come from the providers' committed elements.
func (p *pass) seedContext(id NodeID) {
	var chain []NodeID
	for cur := p.at(id).parent; cur != nilNode; cur = p.at(cur).parent {
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		in := p.at(chain[i])
		switch in.kind {
		case element.KindProvider:
			if el := in.typeOf(); el != nil {
				pt := el.Type.(*element.ProviderType)
				p.pushContext(pt.ContextID, pt.Value)
			}
		case element.KindSuspense:
			p.boundaryStack = append(p.boundaryStack, chain[i])
		}
	}
}
