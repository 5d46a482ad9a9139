package loom

import (
	"bytes"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	stderrors "errors"

	"github.com/loomui/loom/internal/errors"
	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/host"
)

// maxUpdateDepth caps the number of consecutive flush rounds in one tick
// before the engine gives up on a tree that never settles.
const maxUpdateDepth = 1000

// Root owns one instance tree mounted against one host backend. All tree
// work runs single-threaded: calls arriving from other goroutines are
// serialized through the root's lock, calls made from inside a flush (event
// handlers, effects, lifecycle methods) are absorbed into the running tick.
type Root struct {
	mu    sync.Mutex
	owner atomic.Int64 // goroutine id currently running the loop

	backend host.Backend
	logger  *slog.Logger

	arena  arena
	rootID NodeID // anchors the tree; never rendered itself

	serialCounter uint64
	hostCounter   uint64

	dirty          dirtySet
	pendingPassive []workEntry

	// effectFailures collects panics captured during effect and lifecycle
	// execution, routed to error boundaries once the commit loop finishes.
	effectFailures []*renderFailure

	// Lane applied to state updates enqueued right now. Flipped to
	// laneTransition for the duration of a transition scope.
	updateLane lane

	// transitionEpoch increments per started transition; a pass or retry
	// carrying an older epoch is superseded and discarded.
	transitionEpoch uint64

	// transitionParked is set when a transition pass suspended over visible
	// content; the work stays queued until a retry unparks it.
	transitionParked bool

	fatal bool

	stats Stats
}

// Option configures a Root.
type Option func(*Root)

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Root) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a root rendering into backend.
func New(backend host.Backend, opts ...Option) *Root {
	r := &Root{
		backend:    backend,
		logger:     slog.Default(),
		updateLane: laneSync,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.rootID = r.arena.alloc()
	shell := r.arena.at(r.rootID)
	shell.kind = element.KindFragment
	shell.parent = nilNode
	shell.hostParent = host.None
	shell.mounted = true
	return r
}

// Mount renders el as the tree's single top-level child, replacing whatever
// was mounted before. Blocks until the tree and its synchronous effects have
// settled.
func (r *Root) Mount(el *element.Element) error {
	var err error
	r.run(func() { err = r.renderRoot(el) })
	return err
}

// Unmount tears the whole tree down, running unmount lifecycles and
// detaching every host node.
func (r *Root) Unmount() {
	r.run(func() {
		shell := r.arena.at(r.rootID)
		kids := append([]NodeID(nil), shell.children...)
		for _, c := range kids {
			var roots []host.NodeID
			r.committedRoots(c, &roots)
			for _, h := range roots {
				r.backend.RemoveChild(host.None, h)
			}
			r.teardown(c)
		}
		r.arena.at(r.rootID).children = nil
		r.dirty.clear()
		r.pendingPassive = nil
	})
}

// Dispatch runs fn on the root's loop and flushes all updates it caused.
// Event handlers delivered from other goroutines come through here.
func (r *Root) Dispatch(fn func()) {
	r.run(fn)
}

// StartTransition runs scope with its state updates marked deferrable. The
// committed tree keeps showing the previous state until the transition's
// pass completes as a whole.
func (r *Root) StartTransition(scope func()) {
	r.startTransition(nil, scope)
}

// Act runs fn and then flushes every render, layout effect and passive
// effect it triggered. Test helper.
func Act(r *Root, fn func()) {
	r.run(fn)
}

// Stats returns a snapshot of the root's counters.
func (r *Root) Stats() StatsSnapshot {
	return r.stats.snapshot(r.arena.Live())
}

// run serializes fn onto the loop. Called from the loop itself it just runs
// fn inline; the surrounding tick picks up any work it queued.
func (r *Root) run(fn func()) {
	if r.onLoop() {
		fn()
		return
	}
	r.mu.Lock()
	r.owner.Store(goid())
	defer func() {
		r.owner.Store(0)
		r.mu.Unlock()
	}()
	fn()
	r.tick()
}

func (r *Root) onLoop() bool {
	id := r.owner.Load()
	return id != 0 && id == goid()
}

// tick drains dirty work: sync renders first, then transition work, then
// passive effects, repeating until nothing is left.
func (r *Root) tick() {
	for round := 0; ; round++ {
		if round > maxUpdateDepth {
			panic(errors.New("E008").Format())
		}
		if r.fatal {
			return
		}
		if r.flushSync() {
			continue
		}
		if r.flushTransition() {
			continue
		}
		if len(r.pendingPassive) > 0 {
			r.flushPassive()
			continue
		}
		return
	}
}

// renderRoot reconciles the top-level element.
func (r *Root) renderRoot(el *element.Element) error {
	if r.fatal {
		return errors.New("E004")
	}
	p := newPass(r, laneSync)
	var kids []*element.Element
	if el != nil {
		kids = []*element.Element{el}
	}
	err := p.reconcileChildren(r.rootID, kids)
	if err == nil && len(p.suspensions) > 0 {
		err = &renderFailure{
			err:    stderrors.New("component suspended with no suspense boundary above it"),
			origin: r.rootID,
		}
	}
	if err != nil {
		return r.fatalError(err)
	}
	p.syncContainer(r.rootID)
	r.commit(p)
	return nil
}

// flushSync renders every sync-dirty instance, shallowest first, into one
// pass and commits it. Returns whether any work ran.
func (r *Root) flushSync() bool {
	ids := r.dirty.take(laneSync, &r.arena)
	if len(ids) == 0 {
		return false
	}
	p := newPass(r, laneSync)
	for _, id := range ids {
		r.renderTargeted(p, id)
		if r.fatal {
			return true
		}
	}
	r.commit(p)
	return true
}

// flushTransition renders transition-dirty instances in a deferrable pass.
// The pass commits atomically or not at all: suspending over visible
// content parks the work until a retry.
func (r *Root) flushTransition() bool {
	if r.transitionParked {
		return false
	}
	ids := r.dirty.take(laneTransition, &r.arena)
	if len(ids) == 0 {
		return false
	}
	p := newPass(r, laneTransition)
	for _, id := range ids {
		r.renderTargeted(p, id)
		if p.aborted || r.fatal {
			break
		}
	}
	if r.fatal {
		return true
	}
	if p.aborted {
		// Discard the pass wholesale: release instances it created and
		// clear the tags and pending values it stamped, or sync renders
		// of those instances would be skipped while the work is parked.
		p.rollback(passMark{})
		for _, id := range ids {
			if in := r.arena.at(id); in != nil && in.mounted {
				in.dirty = true
				r.dirty.add(id, laneTransition)
			}
		}
		r.transitionParked = true
		return false
	}
	r.commit(p)
	return true
}

// renderTargeted re-renders one instance in place, replaying ancestor
// context and boundary state so the render observes what a full top-down
// pass would.
func (r *Root) renderTargeted(p *pass, id NodeID) {
	in := r.arena.at(id)
	if in == nil || !in.mounted || in.el == nil {
		return
	}
	if in.tag != tagNone {
		// Already reconciled this pass as a descendant of an earlier
		// target.
		return
	}

	mark := p.mark()
	p.ctxStack = nil
	p.boundaryStack = p.boundaryStack[:0]
	p.changedCtx = 0
	p.seedContext(id)

	err := p.updateInstance(id, in.el, true)
	if err == nil && len(p.suspensions) > mark.suspension {
		// Suspended below a boundary whose frame was not on this render's
		// stack. Redo the render from the boundary so it can show its
		// fallback.
		pending := append([]suspension(nil), p.suspensions[mark.suspension:]...)
		p.rollback(mark)
		seen := make(map[NodeID]bool)
		for _, s := range pending {
			if s.boundary == nilNode {
				r.fatalError(&renderFailure{
					err:    stderrors.New("component suspended with no suspense boundary above it"),
					origin: id,
				})
				return
			}
			if !seen[s.boundary] {
				seen[s.boundary] = true
				r.renderTargeted(p, s.boundary)
			}
		}
		p.syncNearestContainer(id)
		return
	}
	if err != nil {
		if stderrors.Is(err, errPassAborted) {
			return
		}
		var fail *renderFailure
		if !stderrors.As(err, &fail) {
			r.fatalError(err)
			return
		}
		p.rollback(mark)
		b := r.nearestErrorBoundary(fail.origin)
		if b == nilNode {
			r.fatalError(fail)
			return
		}
		r.absorbTargeted(p, b, fail)
		return
	}

	p.syncNearestContainer(id)
}

// syncNearestContainer re-syncs the host container holding a targeted
// instance's roots, since no container frame was on the render stack.
func (p *pass) syncNearestContainer(id NodeID) {
	p.syncContainer(p.nearestContainer(id))
}

// absorbTargeted lets boundary b adopt a failure raised by a targeted
// render below it.
func (r *Root) absorbTargeted(p *pass, b NodeID, fail *renderFailure) {
	in := r.arena.at(b)
	r.stats.ErrorsAbsorbed.Add(1)
	if in.caps.has(capErrorDerive) {
		in.state.(element.ErrorDeriver).DeriveErrorState(fail.err)
	}
	if in.caps.has(capCatch) {
		in.state.(element.Catcher).CatchError(fail.err, captureStack())
	}
	in.dirty = true
	// Also queue the boundary in case it already rendered this pass and the
	// in-place re-render below gets skipped.
	r.dirty.add(b, laneSync)
	r.renderTargeted(p, b)
}

// nearestErrorBoundary walks up from the failure origin's parent.
func (r *Root) nearestErrorBoundary(below NodeID) NodeID {
	in := r.arena.at(below)
	if in == nil {
		return nilNode
	}
	for cur := in.parent; cur != nilNode; cur = r.arena.at(cur).parent {
		a := r.arena.at(cur)
		if a.kind == element.KindStateful && a.caps.isBoundary() {
			return cur
		}
	}
	return nilNode
}

// fatalError unmounts the whole tree and reports through the backend. Per
// the error contract, a render failure with no boundary leaves nothing on
// screen rather than a half-updated tree.
func (r *Root) fatalError(err error) error {
	coded := errors.New("E004").Wrap(err)
	r.logger.Error("unhandled render error", slog.Any("err", err))
	shell := r.arena.at(r.rootID)
	kids := append([]NodeID(nil), shell.children...)
	for _, c := range kids {
		var roots []host.NodeID
		r.committedRoots(c, &roots)
		for _, h := range roots {
			r.backend.RemoveChild(host.None, h)
		}
		r.teardown(c)
	}
	r.arena.at(r.rootID).children = nil
	r.dirty.clear()
	r.pendingPassive = nil
	r.effectFailures = nil
	r.fatal = true
	r.backend.ReportError(coded)
	return coded
}

// committedRoots collects a committed subtree's top-level host nodes.
func (r *Root) committedRoots(id NodeID, out *[]host.NodeID) {
	in := r.arena.at(id)
	if in == nil {
		return
	}
	if in.kind == element.KindHost || in.kind == element.KindText {
		*out = append(*out, in.hostID)
		return
	}
	for _, c := range in.children {
		r.committedRoots(c, out)
	}
}

// enqueueUpdate is the landing point for UseState/UseReducer setters. A
// stale serial means the instance unmounted and the update is dropped.
func (r *Root) enqueueUpdate(instID NodeID, serial uint64, idx int, action any) {
	r.run(func() {
		in := r.arena.at(instID)
		if in == nil || !in.mounted || in.serial != serial {
			r.logger.Warn("dropped state update on unmounted instance",
				slog.String("code", "E006"))
			return
		}
		if idx < 0 || idx >= len(in.slots) {
			return
		}
		in.slots[idx].queue = append(in.slots[idx].queue, stateUpdate{
			lane:   r.updateLane,
			action: action,
		})
		in.dirty = true
		r.dirty.add(instID, r.updateLane)
		r.stats.Updates.Add(1)
	})
}

// invalidate is the landing point for StateBase.SetState. Class state
// mutates in place, so it always renders on the sync lane.
func (r *Root) invalidate(instID NodeID, serial uint64) {
	r.run(func() {
		in := r.arena.at(instID)
		if in == nil || !in.mounted || in.serial != serial {
			r.logger.Warn("dropped SetState on unmounted instance",
				slog.String("code", "E006"))
			return
		}
		in.dirty = true
		r.dirty.add(instID, laneSync)
		r.stats.Updates.Add(1)
	})
}

// storeChanged re-renders a UseSyncExternalStore subscriber when the
// snapshot actually moved.
func (r *Root) storeChanged(instID NodeID, serial uint64, idx int) {
	r.run(func() {
		in := r.arena.at(instID)
		if in == nil || !in.mounted || in.serial != serial {
			return
		}
		if idx < 0 || idx >= len(in.slots) {
			return
		}
		s := &in.slots[idx]
		if s.getSnapshot == nil {
			return
		}
		if element.ValueEqual(s.getSnapshot(), s.lastSnap) {
			return
		}
		in.dirty = true
		r.dirty.add(instID, laneSync)
	})
}

// startTransition marks a scope's updates deferrable. markPending, when
// set, flips the UseTransition pending flag: true urgently before the
// scope, false with the transition itself.
func (r *Root) startTransition(markPending func(bool), scope func()) {
	r.run(func() {
		r.transitionEpoch++
		r.transitionParked = false
		if markPending != nil {
			markPending(true)
		}
		prev := r.updateLane
		r.updateLane = laneTransition
		defer func() { r.updateLane = prev }()
		if scope != nil {
			scope()
		}
		if markPending != nil {
			markPending(false)
		}
	})
}

// ensureDeferredPass queues the catch-up render for a UseDeferredValue
// consumer.
func (r *Root) ensureDeferredPass(instID NodeID) {
	in := r.arena.at(instID)
	if in == nil || !in.mounted {
		return
	}
	in.dirty = true
	r.dirty.add(instID, laneTransition)
}

// addRetry arms a re-render of boundary once ready fires. Transition
// retries carry the epoch they were scheduled under and are dropped when a
// newer transition superseded them.
func (r *Root) addRetry(boundary NodeID, ready <-chan struct{}, ln lane) {
	if boundary == nilNode || ready == nil {
		return
	}
	epoch := r.transitionEpoch
	serial := r.arena.at(boundary).serial
	go func() {
		<-ready
		r.mu.Lock()
		r.owner.Store(goid())
		defer func() {
			r.owner.Store(0)
			r.mu.Unlock()
		}()
		if ln == laneTransition && epoch != r.transitionEpoch {
			return
		}
		in := r.arena.at(boundary)
		if in == nil || !in.mounted || in.serial != serial {
			return
		}
		r.transitionParked = false
		in.dirty = true
		r.dirty.add(boundary, ln)
		r.tick()
	}()
}

func (r *Root) nextSerial() uint64 {
	r.serialCounter++
	return r.serialCounter
}

func (r *Root) nextHostID() host.NodeID {
	r.hostCounter++
	return host.NodeID(r.hostCounter)
}

// liftPanic normalizes a recovered value to an error.
func (r *Root) liftPanic(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", rec)
}

// dirtySet tracks instances awaiting a render, per lane.
type dirtySet struct {
	m map[NodeID]lane
}

func (d *dirtySet) add(id NodeID, l lane) {
	if d.m == nil {
		d.m = make(map[NodeID]lane)
	}
	d.m[id] |= l
}

func (d *dirtySet) remove(id NodeID) {
	delete(d.m, id)
}

func (d *dirtySet) clear() {
	d.m = nil
}

// take removes and returns the instances dirty in lane l, shallowest first
// so ancestor renders can subsume descendants.
func (d *dirtySet) take(l lane, a *arena) []NodeID {
	var ids []NodeID
	for id, lanes := range d.m {
		if lanes&l == 0 {
			continue
		}
		ids = append(ids, id)
		if rest := lanes &^ l; rest != 0 {
			d.m[id] = rest
		} else {
			delete(d.m, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		di, dj := a.at(ids[i]).depth, a.at(ids[j]).depth
		if di != dj {
			return di < dj
		}
		return a.at(ids[i]).serial < a.at(ids[j]).serial
	})
	return ids
}

// goid extracts the current goroutine's id from the runtime stack header.
// Used only to tell loop-reentrant calls from cross-goroutine ones.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
