// Package host declares the backend contract the engine drives during
// commit. The engine never touches screen, DOM, or wire state itself; every
// host-level mutation goes through a Backend.
//
// Backends must tolerate being called only from the engine's commit phase,
// which is single-threaded and atomic: once a commit starts, the full
// mutation sequence is delivered before anything else happens.
package host

import "github.com/loomui/loom/pkg/element"

// NodeID is an engine-assigned handle for a live host node. IDs are unique
// within a root for the lifetime of the node and never reused while the node
// is mounted.
type NodeID uint64

// None is the zero NodeID, meaning "no node".
const None NodeID = 0

// Backend applies committed mutations to the real UI surface.
type Backend interface {
	// CreateNode instantiates a host node for the tag with initial props.
	// Event-handler props (func values) are included; backends that ship
	// mutations elsewhere replace them with handler references.
	CreateNode(id NodeID, tag string, props element.Props)

	// CreateText instantiates a text node.
	CreateText(id NodeID, text string)

	// SetText replaces a text node's content.
	SetText(id NodeID, text string)

	// UpdateNode applies the prop delta between old and new.
	UpdateNode(id NodeID, oldProps, newProps element.Props)

	// AppendChild attaches child as the last child of parent. A parent of
	// None means the root container.
	AppendChild(parent, child NodeID)

	// InsertBefore attaches child immediately before the given sibling.
	InsertBefore(parent, child, before NodeID)

	// RemoveChild detaches child from parent and releases the subtree.
	RemoveChild(parent, child NodeID)

	// AttachRef binds a ref target to the backend's handle for the node.
	AttachRef(ref element.RefBinder, id NodeID)

	// DetachRef clears a previously attached ref.
	DetachRef(ref element.RefBinder, id NodeID)

	// ReportError receives fatal engine errors that no boundary absorbed.
	// The engine has already torn the tree down when this is called.
	ReportError(err error)
}
