package loom

import (
	"log/slog"

	"github.com/loomui/loom/pkg/element"
)

// commit applies a completed pass to the committed tree and the host
// backend. Phases, in order:
//
//  1. snapshot reads (SnapshotBeforeUpdate, against the pre-mutation host)
//  2. insertion effects
//  3. promotion of pending elements, props, state queues and child lists
//  4. teardown of deleted subtrees
//  5. host mutations, applied as one batch
//  6. layout work: layout effects, imperative handles, DidMount/DidUpdate,
//     ref binds (child entries before parent entries)
//  7. passive effects, deferred to the end of the tick
func (r *Root) commit(p *pass) {
	if p.aborted {
		return
	}

	for _, id := range p.snapshotQ {
		in := r.arena.at(id)
		if !in.mounted || !in.caps.has(capSnapshot) {
			continue
		}
		in.snapshot = in.state.(element.SnapshotTaker).SnapshotBeforeUpdate(in.committedProps)
	}

	for _, e := range p.insertionQ {
		r.runWorkEntry(e)
	}

	r.promote(p)

	for _, d := range p.deletions {
		r.teardown(d.instID)
	}

	for _, m := range p.mutations {
		r.applyMutation(m)
	}
	r.stats.Mutations.Add(int64(len(p.mutations)))

	for _, e := range p.layoutQ {
		r.runWorkEntry(e)
	}

	r.pendingPassive = append(r.pendingPassive, p.passiveQ...)
	r.stats.Commits.Add(1)
	r.routeEffectFailures()
}

// promote moves every touched instance's pending view into the committed
// view and drains the state-update queues this pass consumed.
func (r *Root) promote(p *pass) {
	for _, id := range p.touched {
		in := r.arena.at(id)
		if in.pendingEl != nil {
			in.el = in.pendingEl
			in.committedProps = in.pendingProps
		}
		in.pendingEl = nil
		in.pendingProps = nil
		in.tag = tagNone

		for i := range in.slots {
			s := &in.slots[i]
			if !s.hasPending {
				continue
			}
			s.committed = s.pending
			s.pending = nil
			s.hasPending = false
			rest := s.queue[:0]
			for _, u := range s.queue {
				if !p.lane.covers(u.lane) {
					rest = append(rest, u)
				}
			}
			s.queue = rest
		}
	}
	for id, kids := range p.childOverride {
		in := r.arena.at(id)
		if in.mounted {
			in.children = kids
		}
	}
	for id, shown := range p.fallbackSet {
		in := r.arena.at(id)
		if in.mounted {
			in.fallbackShown = shown
		}
	}
}

// teardown unmounts a subtree. WillUnmount runs parent-first; effect
// cleanups run child-first. Host refs detach from the backend before the
// node's removal mutation lands.
func (r *Root) teardown(id NodeID) {
	in := r.arena.at(id)
	if !in.mounted {
		return
	}
	in.mounted = false

	if in.state != nil && in.caps.has(capUnmounter) {
		r.safeCall(id, "WillUnmount", func() {
			in.state.(element.Unmounter).WillUnmount()
		})
	}
	if in.boundRef != nil {
		if in.kind == element.KindHost {
			r.backend.DetachRef(in.boundRef, in.hostID)
		} else {
			in.boundRef.UnbindCurrent()
		}
		in.boundRef = nil
	}

	for _, c := range in.children {
		r.teardown(c)
	}

	for i := range in.slots {
		s := &in.slots[i]
		if s.cleanup != nil {
			cl := s.cleanup
			s.cleanup = nil
			r.safeCall(id, "effect cleanup", func() { cl() })
		}
		if s.kind == slotSyncStore && s.unsubscribe != nil {
			s.unsubscribe()
			s.unsubscribe = nil
		}
	}

	r.dirty.remove(id)
	r.arena.release(id)
}

// runWorkEntry executes one queued commit-phase entry, skipping entries
// whose instance was unmounted earlier in the same commit.
func (r *Root) runWorkEntry(e workEntry) {
	in := r.arena.at(e.instID)
	if !in.mounted {
		return
	}

	switch e.kind {
	case entryEffect:
		s := &in.slots[e.slotIdx]
		if !s.needsRun {
			return
		}
		s.needsRun = false
		if s.cleanup != nil {
			cl := s.cleanup
			s.cleanup = nil
			r.captureCall(e.instID, "effect cleanup", func() { cl() })
		}
		if s.fn != nil {
			r.captureCall(e.instID, "effect", func() { s.cleanup = s.fn() })
		}
		r.stats.Effects.Add(1)

	case entryDidMount:
		r.captureCall(e.instID, "DidMount", func() {
			in.state.(element.Mounter).DidMount()
		})

	case entryDidUpdate:
		snap := in.snapshot
		in.snapshot = nil
		r.captureCall(e.instID, "DidUpdate", func() {
			in.state.(element.Updater).DidUpdate(e.oldProps, snap)
		})

	case entryBindRef:
		e.ref.BindCurrent(in.state)

	case entryUnbindRef:
		e.ref.UnbindCurrent()
	}
}

// safeCall shields teardown from panics in user lifecycle code. The panic
// is surfaced through the backend rather than aborting the teardown
// half-applied; the instance is going away either way.
func (r *Root) safeCall(id NodeID, phase string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			err := r.liftPanic(rec)
			r.logger.Error("lifecycle panic",
				slog.String("phase", phase),
				slog.Int("instance", int(id)),
				slog.Any("err", err))
			r.backend.ReportError(err)
		}
	}()
	fn()
}

// captureCall runs effect or mount/update lifecycle code. A panic is
// recorded as a failure and, once the commit loop finishes, routed to the
// nearest error boundary like a render panic would be.
func (r *Root) captureCall(id NodeID, phase string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			err := r.liftPanic(rec)
			r.logger.Error("lifecycle panic",
				slog.String("phase", phase),
				slog.Int("instance", int(id)),
				slog.Any("err", err))
			r.effectFailures = append(r.effectFailures, &renderFailure{err: err, origin: id})
		}
	}()
	fn()
}

// routeEffectFailures delivers captured effect panics to their nearest
// error boundary, queueing the boundary's re-render into the current tick.
// With no boundary above the origin the tree is unmounted, matching the
// render-path contract.
func (r *Root) routeEffectFailures() {
	for len(r.effectFailures) > 0 && !r.fatal {
		fails := r.effectFailures
		r.effectFailures = nil
		for _, fail := range fails {
			if r.fatal {
				return
			}
			b := r.nearestErrorBoundary(fail.origin)
			if b == nilNode {
				r.fatalError(fail)
				return
			}
			in := r.arena.at(b)
			r.stats.ErrorsAbsorbed.Add(1)
			if in.caps.has(capErrorDerive) {
				in.state.(element.ErrorDeriver).DeriveErrorState(fail.err)
			}
			if in.caps.has(capCatch) {
				in.state.(element.Catcher).CatchError(fail.err, captureStack())
			}
			in.dirty = true
			r.dirty.add(b, laneSync)
		}
	}
}

func (r *Root) applyMutation(m mutation) {
	switch m.kind {
	case mutCreateNode:
		r.backend.CreateNode(m.id, m.tag, m.newProps)
	case mutCreateText:
		r.backend.CreateText(m.id, m.text)
	case mutSetText:
		r.backend.SetText(m.id, m.text)
	case mutUpdateNode:
		r.backend.UpdateNode(m.id, m.oldProps, m.newProps)
	case mutInsertBefore:
		r.backend.InsertBefore(m.parent, m.id, m.before)
	case mutAppendChild:
		r.backend.AppendChild(m.parent, m.id)
	case mutRemoveChild:
		r.backend.RemoveChild(m.parent, m.id)
	case mutAttachRef:
		r.backend.AttachRef(m.ref, m.id)
	case mutDetachRef:
		r.backend.DetachRef(m.ref, m.id)
	}
}

// flushPassive runs the passive effects accumulated by the tick's commits.
func (r *Root) flushPassive() {
	for len(r.pendingPassive) > 0 {
		batch := r.pendingPassive
		r.pendingPassive = nil
		for _, e := range batch {
			r.runWorkEntry(e)
		}
	}
	r.routeEffectFailures()
}
