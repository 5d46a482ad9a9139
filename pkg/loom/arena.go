package loom

// NodeID is a stable handle into the instance arena. Handles stay valid for
// the lifetime of the instance and are recycled after unmount.
type NodeID int32

// nilNode means "no instance".
const nilNode NodeID = -1

// arena backs the instance tree with index-based storage. Reconciliation
// passes hold NodeIDs, never *instance pointers, so releasing a subtree can
// never leave a dangling reference with stale identity: released slots are
// zeroed before reuse.
type arena struct {
	nodes []instance
	free  []NodeID
	live  int
}

// alloc returns a zeroed instance slot.
func (a *arena) alloc() NodeID {
	a.live++
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		a.nodes[id] = instance{}
		a.nodes[id].id = id
		return id
	}
	id := NodeID(len(a.nodes))
	a.nodes = append(a.nodes, instance{id: id})
	return id
}

// at returns the instance for a handle. The pointer is valid until the next
// alloc, which may grow the backing slice; callers re-fetch across
// allocations.
func (a *arena) at(id NodeID) *instance {
	if id < 0 || int(id) >= len(a.nodes) {
		return nil
	}
	return &a.nodes[id]
}

// release returns a slot to the free list. The instance must already be
// detached from its parent.
func (a *arena) release(id NodeID) {
	if id < 0 || int(id) >= len(a.nodes) {
		return
	}
	a.nodes[id] = instance{id: id}
	a.free = append(a.free, id)
	a.live--
}

// Live returns the number of mounted instances, for stats and tests.
func (a *arena) Live() int {
	return a.live
}
