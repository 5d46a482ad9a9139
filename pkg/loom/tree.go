package loom

import (
	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/host"
)

// childUndo is one entry of the pass's child-list undo log.
type childUndo struct {
	id   NodeID
	prev []NodeID
	had  bool
}

// childrenOf returns the instance's child list as this pass sees it: the
// pass override when the instance was reconciled already, otherwise the
// committed list.
func (p *pass) childrenOf(id NodeID) []NodeID {
	if kids, ok := p.childOverride[id]; ok {
		return kids
	}
	return p.at(id).children
}

// setChildren records a new child list for the pass. The committed list is
// untouched until commit, so an abandoned pass leaves the tree as it was.
func (p *pass) setChildren(id NodeID, kids []NodeID) {
	if p.childOverride == nil {
		p.childOverride = make(map[NodeID][]NodeID)
	}
	prev, had := p.childOverride[id]
	p.childLog = append(p.childLog, childUndo{id: id, prev: prev, had: had})
	p.childOverride[id] = kids
}

// setFallbackShown records a boundary's fallback state for commit.
func (p *pass) setFallbackShown(id NodeID, shown bool) {
	if p.fallbackSet == nil {
		p.fallbackSet = make(map[NodeID]bool)
	}
	p.fallbackSet[id] = shown
}

// hostContainerOf returns the host node that an instance's children attach
// under.
func (p *pass) hostContainerOf(id NodeID) host.NodeID {
	in := p.at(id)
	if in.kind == element.KindHost {
		return in.hostID
	}
	return in.hostParent
}

// hostRootsOf collects the top-level host nodes of a subtree as this pass
// sees it, flattening through non-host instances.
func (p *pass) hostRootsOf(id NodeID) []host.NodeID {
	var out []host.NodeID
	p.appendHostRoots(id, &out)
	return out
}

func (p *pass) appendHostRoots(id NodeID, out *[]host.NodeID) {
	in := p.at(id)
	if in.kind == element.KindHost || in.kind == element.KindText {
		*out = append(*out, in.hostID)
		return
	}
	for _, c := range p.childrenOf(id) {
		p.appendHostRoots(c, out)
	}
}

// committedHostRoots is hostRootsOf against the committed tree only, used to
// recover a container's pre-pass order.
func (p *pass) committedHostRoots(id NodeID, out *[]host.NodeID) {
	in := p.at(id)
	if in.kind == element.KindHost || in.kind == element.KindText {
		*out = append(*out, in.hostID)
		return
	}
	for _, c := range in.children {
		p.committedHostRoots(c, out)
	}
}

// syncContainer brings a host container's child order in line with the
// reconciled logical subtree. Called after the container's whole subtree has
// been reconciled. New nodes are inserted; a kept node is moved whenever its
// index among the surviving nodes changed.
func (p *pass) syncContainer(id NodeID) {
	in := p.at(id)
	container := host.None
	if in.kind == element.KindHost {
		container = in.hostID
	}

	var want []host.NodeID
	for _, c := range p.childrenOf(id) {
		p.appendHostRoots(c, &want)
	}

	wantSet := make(map[host.NodeID]int, len(want))
	for i, h := range want {
		wantSet[h] = i
	}

	// Committed order, filtered to nodes that survive this pass. A freshly
	// created container has no committed children, so everything inserts.
	oldPos := make(map[host.NodeID]int)
	var old []host.NodeID
	for _, c := range in.children {
		p.committedHostRoots(c, &old)
	}
	i := 0
	for _, h := range old {
		if _, ok := wantSet[h]; ok {
			oldPos[h] = i
			i++
		}
	}

	var anchor host.NodeID = host.None
	for i := len(want) - 1; i >= 0; i-- {
		h := want[i]
		pos, kept := oldPos[h]
		if kept && pos == i {
			anchor = h
			continue
		}
		if anchor == host.None {
			p.mutate(mutation{kind: mutAppendChild, parent: container, id: h})
		} else {
			p.mutate(mutation{kind: mutInsertBefore, parent: container, id: h, before: anchor})
		}
		anchor = h
	}
}

// nearestContainer walks up from an instance to the host instance (or the
// root shell) whose container holds its host roots. Used after targeted
// re-renders, where no container frame is on the render stack.
func (p *pass) nearestContainer(id NodeID) NodeID {
	cur := p.at(id).parent
	for cur != nilNode {
		in := p.at(cur)
		if in.kind == element.KindHost || in.parent == nilNode {
			return cur
		}
		cur = in.parent
	}
	return id
}
