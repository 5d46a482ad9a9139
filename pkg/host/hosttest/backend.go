// Package hosttest provides an in-memory Backend that records every mutation
// and mirrors the host tree, for deterministic engine tests.
package hosttest

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/host"
)

// OpKind identifies a recorded mutation.
type OpKind uint8

const (
	OpCreateNode OpKind = iota
	OpCreateText
	OpSetText
	OpUpdateNode
	OpAppendChild
	OpInsertBefore
	OpRemoveChild
	OpAttachRef
	OpDetachRef
	OpReportError
)

// String returns the string representation of the OpKind.
func (k OpKind) String() string {
	switch k {
	case OpCreateNode:
		return "CreateNode"
	case OpCreateText:
		return "CreateText"
	case OpSetText:
		return "SetText"
	case OpUpdateNode:
		return "UpdateNode"
	case OpAppendChild:
		return "AppendChild"
	case OpInsertBefore:
		return "InsertBefore"
	case OpRemoveChild:
		return "RemoveChild"
	case OpAttachRef:
		return "AttachRef"
	case OpDetachRef:
		return "DetachRef"
	case OpReportError:
		return "ReportError"
	default:
		return "Unknown"
	}
}

// Op is one recorded backend call.
type Op struct {
	Kind   OpKind
	ID     host.NodeID
	Parent host.NodeID
	Before host.NodeID
	Tag    string
	Text   string
	Err    error
}

// Node mirrors one live host node.
type Node struct {
	ID       host.NodeID
	Tag      string
	Text     string
	IsText   bool
	Props    element.Props
	Parent   host.NodeID
	Children []host.NodeID
}

// Backend records mutations and keeps a queryable tree mirror.
type Backend struct {
	mu    sync.Mutex
	nodes map[host.NodeID]*Node
	roots []host.NodeID
	ops   []Op
	errs  []error
}

var _ host.Backend = (*Backend)(nil)

// New creates an empty recording backend.
func New() *Backend {
	return &Backend{nodes: make(map[host.NodeID]*Node)}
}

// CreateNode implements host.Backend.
func (b *Backend) CreateNode(id host.NodeID, tag string, props element.Props) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes[id] = &Node{ID: id, Tag: tag, Props: cloneProps(props)}
	b.ops = append(b.ops, Op{Kind: OpCreateNode, ID: id, Tag: tag})
}

// CreateText implements host.Backend.
func (b *Backend) CreateText(id host.NodeID, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes[id] = &Node{ID: id, Text: text, IsText: true}
	b.ops = append(b.ops, Op{Kind: OpCreateText, ID: id, Text: text})
}

// SetText implements host.Backend.
func (b *Backend) SetText(id host.NodeID, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := b.nodes[id]; n != nil {
		n.Text = text
	}
	b.ops = append(b.ops, Op{Kind: OpSetText, ID: id, Text: text})
}

// UpdateNode implements host.Backend.
func (b *Backend) UpdateNode(id host.NodeID, oldProps, newProps element.Props) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := b.nodes[id]; n != nil {
		n.Props = cloneProps(newProps)
	}
	b.ops = append(b.ops, Op{Kind: OpUpdateNode, ID: id})
}

// AppendChild implements host.Backend.
func (b *Backend) AppendChild(parent, child host.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detachLocked(child)
	if parent == host.None {
		b.roots = append(b.roots, child)
	} else if p := b.nodes[parent]; p != nil {
		p.Children = append(p.Children, child)
	}
	if c := b.nodes[child]; c != nil {
		c.Parent = parent
	}
	b.ops = append(b.ops, Op{Kind: OpAppendChild, ID: child, Parent: parent})
}

// InsertBefore implements host.Backend.
func (b *Backend) InsertBefore(parent, child, before host.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detachLocked(child)
	list := &b.roots
	if parent != host.None {
		p := b.nodes[parent]
		if p == nil {
			return
		}
		list = &p.Children
	}
	inserted := false
	out := make([]host.NodeID, 0, len(*list)+1)
	for _, id := range *list {
		if id == before && !inserted {
			out = append(out, child)
			inserted = true
		}
		out = append(out, id)
	}
	if !inserted {
		out = append(out, child)
	}
	*list = out
	if c := b.nodes[child]; c != nil {
		c.Parent = parent
	}
	b.ops = append(b.ops, Op{Kind: OpInsertBefore, ID: child, Parent: parent, Before: before})
}

// RemoveChild implements host.Backend.
func (b *Backend) RemoveChild(parent, child host.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detachLocked(child)
	b.releaseLocked(child)
	b.ops = append(b.ops, Op{Kind: OpRemoveChild, ID: child, Parent: parent})
}

// AttachRef implements host.Backend. The bound value is the mirrored *Node.
func (b *Backend) AttachRef(ref element.RefBinder, id host.NodeID) {
	b.mu.Lock()
	n := b.nodes[id]
	b.ops = append(b.ops, Op{Kind: OpAttachRef, ID: id})
	b.mu.Unlock()
	if n != nil {
		ref.BindCurrent(n)
	}
}

// DetachRef implements host.Backend.
func (b *Backend) DetachRef(ref element.RefBinder, id host.NodeID) {
	b.mu.Lock()
	b.ops = append(b.ops, Op{Kind: OpDetachRef, ID: id})
	b.mu.Unlock()
	ref.UnbindCurrent()
}

// ReportError implements host.Backend.
func (b *Backend) ReportError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = append(b.errs, err)
	b.ops = append(b.ops, Op{Kind: OpReportError, Err: err})
}

// Ops returns a copy of the recorded mutation log.
func (b *Backend) Ops() []Op {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Op, len(b.ops))
	copy(out, b.ops)
	return out
}

// ResetOps clears the mutation log but keeps the tree mirror.
func (b *Backend) ResetOps() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = nil
}

// CountOps returns how many recorded ops match the kind.
func (b *Backend) CountOps(kind OpKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, op := range b.ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Errors returns errors reported through ReportError.
func (b *Backend) Errors() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]error, len(b.errs))
	copy(out, b.errs)
	return out
}

// Node returns the mirrored node, or nil.
func (b *Backend) Node(id host.NodeID) *Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nodes[id]
}

// FindByTag returns the IDs of mounted nodes with the tag, in tree order.
func (b *Backend) FindByTag(tag string) []host.NodeID {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []host.NodeID
	var walk func(ids []host.NodeID)
	walk = func(ids []host.NodeID) {
		for _, id := range ids {
			n := b.nodes[id]
			if n == nil {
				continue
			}
			if n.Tag == tag {
				out = append(out, id)
			}
			walk(n.Children)
		}
	}
	walk(b.roots)
	return out
}

// Render serializes the mounted tree to a stable HTML-ish string for
// assertions.
func (b *Backend) Render() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sb strings.Builder
	for _, id := range b.roots {
		b.renderLocked(&sb, id)
	}
	return sb.String()
}

// Text returns the concatenated text content of the mounted tree.
func (b *Backend) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sb strings.Builder
	var walk func(ids []host.NodeID)
	walk = func(ids []host.NodeID) {
		for _, id := range ids {
			n := b.nodes[id]
			if n == nil {
				continue
			}
			if n.IsText {
				sb.WriteString(n.Text)
			}
			walk(n.Children)
		}
	}
	walk(b.roots)
	return sb.String()
}

// Invoke calls the func prop with the given name on the node, simulating a
// host event. Supported shapes: func() and func(element.Props).
func (b *Backend) Invoke(id host.NodeID, prop string, payload ...element.Props) bool {
	b.mu.Lock()
	n := b.nodes[id]
	var v any
	if n != nil {
		v = n.Props[prop]
	}
	b.mu.Unlock()

	switch fn := v.(type) {
	case func():
		fn()
		return true
	case func(element.Props):
		var p element.Props
		if len(payload) > 0 {
			p = payload[0]
		}
		fn(p)
		return true
	default:
		return false
	}
}

func (b *Backend) renderLocked(sb *strings.Builder, id host.NodeID) {
	n := b.nodes[id]
	if n == nil {
		return
	}
	if n.IsText {
		sb.WriteString(n.Text)
		return
	}
	sb.WriteByte('<')
	sb.WriteString(n.Tag)
	keys := make([]string, 0, len(n.Props))
	for k, v := range n.Props {
		if _, isFn := v.(func()); isFn {
			continue
		}
		if _, isFn := v.(func(element.Props)); isFn {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(sb, " %s=%q", k, fmt.Sprintf("%v", n.Props[k]))
	}
	sb.WriteByte('>')
	for _, c := range n.Children {
		b.renderLocked(sb, c)
	}
	sb.WriteString("</" + n.Tag + ">")
}

func (b *Backend) detachLocked(child host.NodeID) {
	c := b.nodes[child]
	if c == nil {
		return
	}
	if c.Parent == host.None {
		b.roots = removeID(b.roots, child)
		return
	}
	if p := b.nodes[c.Parent]; p != nil {
		p.Children = removeID(p.Children, child)
	}
}

func (b *Backend) releaseLocked(id host.NodeID) {
	n := b.nodes[id]
	if n == nil {
		return
	}
	for _, c := range n.Children {
		b.releaseLocked(c)
	}
	delete(b.nodes, id)
}

func removeID(list []host.NodeID, id host.NodeID) []host.NodeID {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func cloneProps(p element.Props) element.Props {
	if p == nil {
		return nil
	}
	out := make(element.Props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
