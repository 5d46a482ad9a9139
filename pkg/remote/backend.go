package remote

import (
	"reflect"
	"sync"

	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/host"
	"github.com/loomui/loom/pkg/protocol"
)

// wireBackend implements host.Backend by translating mutations into patch
// ops. It keeps a shadow copy of every live node's props so client events
// can be routed to the right handler func, and so prop updates ship as
// minimal set/remove deltas.
//
// The engine calls mutation methods only during commit, which is
// single-threaded, but Invoke and TakeBatch run from connection goroutines;
// the mutex covers that overlap.
type wireBackend struct {
	mu      sync.Mutex
	nodes   map[host.NodeID]*wireNode
	pending []protocol.Patch
	seq     uint64

	// onFatal receives engine errors no boundary absorbed.
	onFatal func(error)
}

type wireNode struct {
	tag    string
	text   string
	isText bool
	props  element.Props
}

func newWireBackend(onFatal func(error)) *wireBackend {
	return &wireBackend{
		nodes:   make(map[host.NodeID]*wireNode),
		onFatal: onFatal,
	}
}

// TakeBatch drains the mutations buffered since the last call, numbered
// with the next sequence. Returns nil when nothing changed.
func (b *wireBackend) TakeBatch() *protocol.PatchBatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	b.seq++
	batch := &protocol.PatchBatch{Seq: b.seq, Patches: b.pending}
	b.pending = nil
	return batch
}

// Handler looks up the func value behind a node's prop, or nil.
func (b *wireBackend) Handler(id host.NodeID, prop string) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.nodes[id]
	if n == nil {
		return nil
	}
	v := n.props[prop]
	if v == nil || reflect.TypeOf(v).Kind() != reflect.Func {
		return nil
	}
	return v
}

func (b *wireBackend) CreateNode(id host.NodeID, tag string, props element.Props) {
	b.mu.Lock()
	defer b.mu.Unlock()
	stored := make(element.Props, len(props))
	wire := make(map[string]any, len(props))
	for k, v := range props {
		stored[k] = v
		wire[k] = wireValue(v)
	}
	b.nodes[id] = &wireNode{tag: tag, props: stored}
	b.pending = append(b.pending, protocol.CreateNode(id, tag, wire))
}

func (b *wireBackend) CreateText(id host.NodeID, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes[id] = &wireNode{isText: true, text: text}
	b.pending = append(b.pending, protocol.CreateText(id, text))
}

func (b *wireBackend) SetText(id host.NodeID, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := b.nodes[id]; n != nil {
		n.text = text
	}
	b.pending = append(b.pending, protocol.SetText(id, text))
}

func (b *wireBackend) UpdateNode(id host.NodeID, oldProps, newProps element.Props) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.nodes[id]
	for k, nv := range newProps {
		ov, had := oldProps[k]
		if had && element.ValueEqual(ov, nv) {
			if n != nil {
				n.props[k] = nv // refresh handler identity without a patch
			}
			continue
		}
		if n != nil {
			n.props[k] = nv
		}
		b.pending = append(b.pending, protocol.SetProp(id, k, wireValue(nv)))
	}
	for k := range oldProps {
		if _, ok := newProps[k]; !ok {
			if n != nil {
				delete(n.props, k)
			}
			b.pending = append(b.pending, protocol.RemoveProp(id, k))
		}
	}
}

func (b *wireBackend) AppendChild(parent, child host.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, protocol.AppendChild(parent, child))
}

func (b *wireBackend) InsertBefore(parent, child, before host.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, protocol.InsertBefore(parent, child, before))
}

func (b *wireBackend) RemoveChild(parent, child host.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.nodes, child)
	b.pending = append(b.pending, protocol.RemoveChild(parent, child))
}

// AttachRef binds the node's wire ID; remote refs expose the handle, not a
// live object.
func (b *wireBackend) AttachRef(ref element.RefBinder, id host.NodeID) {
	ref.BindCurrent(id)
}

func (b *wireBackend) DetachRef(ref element.RefBinder, id host.NodeID) {
	ref.UnbindCurrent()
}

func (b *wireBackend) ReportError(err error) {
	if b.onFatal != nil {
		b.onFatal(err)
	}
}

// wireValue converts a prop value for the wire. Funcs become handler
// markers; everything else passes through and is validated at encode time.
func wireValue(v any) any {
	if v == nil {
		return nil
	}
	if reflect.TypeOf(v).Kind() == reflect.Func {
		return protocol.Handler{}
	}
	return v
}
