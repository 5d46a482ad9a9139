package loom

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/host"
)

// errPassAborted unwinds a pass that must be discarded wholesale: a
// transition superseded mid-render or suspended over already-visible
// content.
var errPassAborted = errors.New("loom: render pass aborted")

// renderFailure carries a render/effect error up the instance chain until an
// error boundary absorbs it.
type renderFailure struct {
	err    error
	origin NodeID
}

func (f *renderFailure) Error() string {
	return fmt.Sprintf("loom: render failed: %v", f.err)
}

func (f *renderFailure) Unwrap() error {
	return f.err
}

// reconcileChildren diffs the new child element list against parentID's
// current children: reuse by (type, key), create what is unmatched, delete
// what is unclaimed, then bring host order in line.
func (p *pass) reconcileChildren(parentID NodeID, newEls []*element.Element) error {
	oldKids := p.childrenOf(parentID)

	keyed := false
	for _, el := range newEls {
		if el.Key != "" {
			keyed = true
			break
		}
	}
	if !keyed {
		for _, id := range oldKids {
			if p.at(id).key != "" {
				keyed = true
				break
			}
		}
	}

	// Map old children for matching. Key presence in the sibling group
	// disables positional matching for the whole group.
	oldByKey := make(map[string]NodeID)
	claimed := make(map[NodeID]bool, len(oldKids))
	for _, id := range oldKids {
		if k := p.at(id).key; k != "" {
			oldByKey[k] = id
		}
	}

	seenKeys := make(map[string]bool)
	newKids := make([]NodeID, 0, len(newEls))
	depth := p.at(parentID).depth + 1
	hostParent := p.hostContainerOf(parentID)

	for i, el := range newEls {
		if el.Key != "" {
			if seenKeys[el.Key] {
				p.root.logger.Warn("duplicate sibling key",
					slog.String("code", "E005"), slog.String("key", el.Key))
			}
			seenKeys[el.Key] = true
		}

		var match NodeID = nilNode
		if keyed {
			if el.Key != "" {
				if id, ok := oldByKey[el.Key]; ok && !claimed[id] {
					match = id
				}
			}
		} else if i < len(oldKids) {
			match = oldKids[i]
		}

		if match != nilNode {
			old := p.at(match)
			if old.key == el.Key && element.SameType(old.typeOf(), el) {
				claimed[match] = true
				if err := p.updateInstance(match, el, false); err != nil {
					return err
				}
				newKids = append(newKids, match)
				continue
			}
		}

		id, err := p.mountInstance(parentID, el, hostParent, depth)
		if err != nil {
			return err
		}
		newKids = append(newKids, id)
	}

	// Unclaimed old instances are deleted.
	for _, id := range oldKids {
		if !claimed[id] {
			p.deleteInstance(id, hostParent)
		}
	}

	p.setChildren(parentID, newKids)
	return nil
}

// mountInstance creates an instance subtree for an element.
func (p *pass) mountInstance(parentID NodeID, el *element.Element, hostParent host.NodeID, depth int) (NodeID, error) {
	id := p.root.arena.alloc()
	in := p.at(id)
	in.kind = el.Kind
	in.key = el.Key
	in.depth = depth
	in.serial = p.root.nextSerial()
	in.parent = parentID
	in.pendingEl = el
	in.pendingProps = el.Props
	in.hostParent = hostParent
	in.tag = tagCreate
	in.mounted = true
	p.created = append(p.created, id)
	p.touch(id)

	switch el.Kind {
	case element.KindText:
		in.hostID = p.root.nextHostID()
		in.text = el.Text
		p.mutate(mutation{kind: mutCreateText, id: in.hostID, text: el.Text})
		return id, nil

	case element.KindHost:
		in.hostID = p.root.nextHostID()
		p.mutate(mutation{kind: mutCreateNode, id: in.hostID, tag: el.Type.(string), newProps: el.Props})
		if err := p.reconcileChildren(id, el.Children); err != nil {
			return id, err
		}
		p.syncContainer(id)
		in = p.at(id)
		if ref, ok := el.Ref.(element.RefBinder); ok {
			in.boundRef = ref
			p.mutate(mutation{kind: mutAttachRef, id: in.hostID, ref: ref})
		}
		return id, nil

	case element.KindStateful:
		ctor := element.CtorOf(el.Type)
		state := ctor()
		in.state = state
		in.caps = resolveCaps(state)
		if in.caps.has(capBinder) {
			root := p.root
			serial := in.serial
			state.(element.Binder).Bind(func() {
				root.invalidate(id, serial)
			})
			state.(element.Binder).SetProps(el.Props)
		}
		if in.caps.has(capDeriveProps) {
			state.(element.PropsDeriver).DeriveState(el.Props)
		}
		err := p.renderChildren(id)
		err = p.absorbFailure(id, err)
		if err != nil {
			return id, err
		}
		in = p.at(id)
		if in.caps.has(capMounter) {
			p.layoutQ = append(p.layoutQ, workEntry{kind: entryDidMount, instID: id})
		}
		if ref, ok := el.Ref.(element.RefBinder); ok {
			in.boundRef = ref
			p.layoutQ = append(p.layoutQ, workEntry{kind: entryBindRef, instID: id, ref: ref})
		}
		return id, nil

	default:
		err := p.renderChildren(id)
		if p.at(id).kind == element.KindSuspense {
			// suspense handles its own failures and suspensions in
			// renderChildren; anything left bubbles.
			return id, err
		}
		if err != nil {
			return id, err
		}
		p.collectEffects(id)
		return id, nil
	}
}

// updateInstance reconciles a kept instance against its new element.
// force bypasses memo and ShouldUpdate short-circuits, used for targeted
// re-renders triggered by the instance's own state.
func (p *pass) updateInstance(id NodeID, el *element.Element, force bool) error {
	in := p.at(id)
	oldProps := in.committedProps
	in.pendingEl = el
	in.pendingProps = el.Props
	in.tag = tagUpdate
	p.touch(id)

	switch in.kind {
	case element.KindText:
		if in.text != el.Text {
			in.text = el.Text
			p.mutate(mutation{kind: mutSetText, id: in.hostID, text: el.Text})
		}
		return nil

	case element.KindHost:
		if !element.ShallowEqual(oldProps, el.Props) {
			p.mutate(mutation{kind: mutUpdateNode, id: in.hostID, oldProps: oldProps, newProps: el.Props})
		}
		p.updateRef(id, el)
		if err := p.reconcileChildren(id, el.Children); err != nil {
			return err
		}
		p.syncContainer(id)
		return nil

	case element.KindMemo:
		mt := el.Type.(*element.MemoType)
		if !force && !in.dirty && p.changedCtx == 0 && mt.Equal(oldProps, el.Props) {
			// Subtree untouched this pass.
			return nil
		}
		return p.renderChildren(id)

	case element.KindStateful:
		state := in.state
		if in.caps.has(capBinder) {
			state.(element.Binder).SetProps(el.Props)
		}
		if in.caps.has(capDeriveProps) {
			state.(element.PropsDeriver).DeriveState(el.Props)
		} else if !in.caps.has(capSnapshot) {
			// Legacy notifications run only when the modern pair is absent.
			if in.caps.has(capLegacyReceive) && !element.ShallowEqual(oldProps, el.Props) {
				state.(element.LegacyReceiver).WillReceiveProps(el.Props)
			}
		}
		if !force && p.changedCtx == 0 && in.caps.has(capShouldUpdate) {
			if !state.(element.ShouldUpdater).ShouldUpdate(oldProps, el.Props) {
				return nil
			}
		}
		if !in.caps.has(capDeriveProps) && !in.caps.has(capSnapshot) && in.caps.has(capLegacyUpdate) {
			state.(element.LegacyUpdater).WillUpdate(el.Props)
		}
		err := p.renderChildren(id)
		err = p.absorbFailure(id, err)
		if err != nil {
			return err
		}
		in = p.at(id)
		if in.caps.has(capSnapshot) {
			p.snapshotQ = append(p.snapshotQ, id)
		}
		if in.caps.has(capUpdater) {
			p.layoutQ = append(p.layoutQ, workEntry{kind: entryDidUpdate, instID: id, oldProps: oldProps})
		}
		p.updateRef(id, el)
		return nil

	default:
		err := p.renderChildren(id)
		if p.at(id).kind == element.KindSuspense {
			return err
		}
		if err != nil {
			return err
		}
		p.collectEffects(id)
		return nil
	}
}

// renderChildren produces and reconciles an instance's child elements
// according to its kind.
func (p *pass) renderChildren(id NodeID) error {
	in := p.at(id)
	el := in.pendingEl

	switch in.kind {
	case element.KindFragment:
		return p.reconcileChildren(id, el.Children)

	case element.KindFunc:
		out, err := p.runRender(id, func(c *Ctx) *element.Element {
			return element.FuncOf(el.Type)(c, el.Props)
		})
		if err != nil {
			return err
		}
		return p.reconcileChildren(id, childList(out))

	case element.KindForwardRef:
		frt := el.Type.(*element.ForwardRefType)
		out, err := p.runRender(id, func(c *Ctx) *element.Element {
			return frt.Render(c, el.Props, el.Ref)
		})
		if err != nil {
			return err
		}
		return p.reconcileChildren(id, childList(out))

	case element.KindMemo:
		mt := el.Type.(*element.MemoType)
		inner, err := element.New(mt.Inner, el.Props, el.Children...)
		if err != nil {
			return &renderFailure{err: err, origin: id}
		}
		return p.reconcileChildren(id, []*element.Element{inner})

	case element.KindStateful:
		out, err := p.runRender(id, func(c *Ctx) *element.Element {
			return p.at(id).state.Render(c)
		})
		if err != nil {
			return err
		}
		return p.reconcileChildren(id, childList(out))

	case element.KindProvider:
		pt := el.Type.(*element.ProviderType)
		changed := false
		if in.el != nil {
			old := in.el.Type.(*element.ProviderType)
			changed = !element.ValueEqual(old.Value, pt.Value)
		}
		p.pushContext(pt.ContextID, pt.Value)
		if changed {
			p.changedCtx++
		}
		err := p.reconcileChildren(id, el.Children)
		if changed {
			p.changedCtx--
		}
		p.popContext(pt.ContextID)
		return err

	case element.KindConsumer:
		ct := el.Type.(*element.ConsumerType)
		value := ct.Default
		if v, ok := p.contextValue(ct.ContextID); ok {
			value = v
		}
		out, err := p.runRender(id, func(*Ctx) *element.Element {
			return ct.Render(value)
		})
		if err != nil {
			return err
		}
		return p.reconcileChildren(id, childList(out))

	case element.KindLazy:
		lt := el.Type.(*element.LazyType)
		lt.Start()
		typ, done, err := lt.Resolved()
		if !done {
			p.suspendOn(lt.Ready())
			return nil
		}
		if err != nil {
			return &renderFailure{err: err, origin: id}
		}
		inner, err := element.New(typ, el.Props, el.Children...)
		if err != nil {
			return &renderFailure{err: err, origin: id}
		}
		return p.reconcileChildren(id, []*element.Element{inner})

	case element.KindSuspense:
		return p.renderSuspense(id)

	default:
		return nil
	}
}

// renderSuspense renders a boundary's content, falling back when a
// descendant suspends.
func (p *pass) renderSuspense(id NodeID) error {
	in := p.at(id)
	el := in.pendingEl
	fallback, _ := el.Props["fallback"].(*element.Element)

	mark := p.mark()
	p.boundaryStack = append(p.boundaryStack, id)
	err := p.reconcileChildren(id, el.Children)
	p.boundaryStack = p.boundaryStack[:len(p.boundaryStack)-1]
	if err != nil {
		return err
	}

	pending := p.takeSuspensions(id)
	if len(pending) == 0 {
		p.setFallbackShown(id, false)
		return nil
	}

	// Something below is waiting. Retry from this boundary when ready.
	for _, s := range pending {
		p.root.addRetry(id, s.ready, p.lane)
	}

	in = p.at(id)
	if p.lane == laneTransition && in.mounted && in.el != nil && !in.fallbackShown {
		// Content is already on screen; a transition never replaces it
		// with a fallback. Abandon the pass and keep the committed tree.
		p.aborted = true
		return errPassAborted
	}

	p.rollback(mark)
	p.setFallbackShown(id, true)
	var kids []*element.Element
	if fallback != nil {
		kids = []*element.Element{fallback}
	}
	return p.reconcileChildren(id, kids)
}

// runRender executes a component render with a fresh hook context and panic
// recovery. A panic becomes a renderFailure routed to the nearest boundary.
func (p *pass) runRender(id NodeID, render func(*Ctx) *element.Element) (out *element.Element, err error) {
	c := &Ctx{root: p.root, pass: p, instID: id}
	p.root.stats.Renders.Add(1)

	defer func() {
		if r := recover(); r != nil {
			if isHookViolation(r) {
				// Hook order violations are fatal, never absorbed.
				panic(r)
			}
			perr, ok := r.(error)
			if !ok {
				perr = fmt.Errorf("%v", r)
			}
			err = &renderFailure{err: perr, origin: id}
		}
	}()

	out = render(c)
	c.finishRender()
	p.at(id).dirty = false
	return out, nil
}

// absorbFailure lets a stateful boundary adopt a descendant failure. The
// boundary derives its recovery state and renders once more; a second
// failure propagates.
func (p *pass) absorbFailure(id NodeID, err error) error {
	if err == nil {
		return nil
	}
	var fail *renderFailure
	if !errors.As(err, &fail) {
		return err
	}
	in := p.at(id)
	if !in.caps.isBoundary() || fail.origin == id {
		return err
	}

	p.root.stats.ErrorsAbsorbed.Add(1)
	if in.caps.has(capErrorDerive) {
		in.state.(element.ErrorDeriver).DeriveErrorState(fail.err)
	}
	if in.caps.has(capCatch) {
		in.state.(element.Catcher).CatchError(fail.err, captureStack())
	}

	// Drop the partial subtree and re-render this boundary in its
	// error state against its previous children.
	return p.renderChildren(id)
}

// updateRef rebinds an instance's ref when the element carries a different
// target.
func (p *pass) updateRef(id NodeID, el *element.Element) {
	in := p.at(id)
	newRef, _ := el.Ref.(element.RefBinder)
	if in.boundRef == newRef {
		return
	}
	if in.kind == element.KindHost {
		if in.boundRef != nil {
			p.mutate(mutation{kind: mutDetachRef, id: in.hostID, ref: in.boundRef})
		}
		if newRef != nil {
			p.mutate(mutation{kind: mutAttachRef, id: in.hostID, ref: newRef})
		}
	} else {
		if in.boundRef != nil {
			p.layoutQ = append(p.layoutQ, workEntry{kind: entryUnbindRef, instID: id, ref: in.boundRef})
		}
		if newRef != nil {
			p.layoutQ = append(p.layoutQ, workEntry{kind: entryBindRef, instID: id, ref: newRef})
		}
	}
	in.boundRef = newRef
}

// collectEffects appends the instance's scheduled effects to the pass
// queues. Called after the instance's children completed, so queue order is
// child-then-parent.
func (p *pass) collectEffects(id NodeID) {
	in := p.at(id)
	for i := range in.slots {
		s := &in.slots[i]
		if !s.needsRun {
			continue
		}
		entry := workEntry{kind: entryEffect, instID: id, slotIdx: i}
		switch s.kind {
		case slotEffect:
			p.passiveQ = append(p.passiveQ, entry)
		case slotLayoutEffect, slotImperative:
			p.layoutQ = append(p.layoutQ, entry)
		case slotInsertionEffect:
			p.insertionQ = append(p.insertionQ, entry)
		}
	}
}

// deleteInstance schedules a subtree for removal: host roots detach now (in
// mutation order), lifecycle teardown runs at commit.
func (p *pass) deleteInstance(id NodeID, container host.NodeID) {
	for _, root := range p.hostRootsOf(id) {
		p.mutate(mutation{kind: mutRemoveChild, parent: container, id: root})
	}
	p.at(id).tag = tagDelete
	p.deletions = append(p.deletions, deletion{instID: id, container: container})
}

// childList wraps a possibly-nil render output.
func childList(out *element.Element) []*element.Element {
	if out == nil {
		return nil
	}
	return []*element.Element{out}
}

// isHookViolation recognizes the coded panics raised by the hook store.
// Those are programmer errors and must surface, never be absorbed by a
// boundary.
func isHookViolation(r any) bool {
	s, ok := r.(string)
	return ok && strings.HasPrefix(s, "[LOOM E")
}

func captureStack() string {
	return string(debug.Stack())
}
