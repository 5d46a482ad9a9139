package remote

import (
	"testing"

	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/protocol"
)

func TestBackendBuffersMutationsIntoBatches(t *testing.T) {
	b := newWireBackend(nil)
	b.CreateNode(1, "div", element.Props{"class": "panel"})
	b.CreateText(2, "hello")
	b.AppendChild(1, 2)
	b.AppendChild(0, 1)

	batch := b.TakeBatch()
	if batch == nil {
		t.Fatal("no batch")
	}
	if batch.Seq != 1 {
		t.Errorf("Seq = %d, want 1", batch.Seq)
	}
	if len(batch.Patches) != 4 {
		t.Fatalf("patches = %d, want 4", len(batch.Patches))
	}
	if batch.Patches[0].Op != protocol.OpCreateNode || batch.Patches[0].Tag != "div" {
		t.Errorf("patch 0 = %#v", batch.Patches[0])
	}
	if batch.Patches[1].Op != protocol.OpCreateText || batch.Patches[1].Text != "hello" {
		t.Errorf("patch 1 = %#v", batch.Patches[1])
	}

	if b.TakeBatch() != nil {
		t.Error("second TakeBatch not nil on empty buffer")
	}

	b.SetText(2, "bye")
	next := b.TakeBatch()
	if next.Seq != 2 {
		t.Errorf("Seq = %d, want 2", next.Seq)
	}
}

func TestBackendHandlerPropsBecomeMarkers(t *testing.T) {
	b := newWireBackend(nil)
	called := false
	b.CreateNode(1, "button", element.Props{
		"onClick": func() { called = true },
		"label":   "go",
	})

	batch := b.TakeBatch()
	props := batch.Patches[0].Props
	if _, ok := props["onClick"].(protocol.Handler); !ok {
		t.Errorf("onClick on the wire = %#v, want Handler marker", props["onClick"])
	}
	if props["label"] != "go" {
		t.Errorf("label = %#v", props["label"])
	}

	h := b.Handler(1, "onClick")
	if h == nil {
		t.Fatal("handler not retained server-side")
	}
	h.(func())()
	if !called {
		t.Error("retained handler is not the original func")
	}
	if b.Handler(1, "label") != nil {
		t.Error("non-func prop returned as handler")
	}
	if b.Handler(99, "onClick") != nil {
		t.Error("unknown node returned a handler")
	}
}

func TestBackendUpdateNodeEmitsDeltas(t *testing.T) {
	b := newWireBackend(nil)
	mkHandler := func() func() { return func() {} }
	old := element.Props{"class": "a", "title": "t", "onClick": mkHandler()}
	b.CreateNode(1, "div", old)
	b.TakeBatch()

	b.UpdateNode(1, old, element.Props{"class": "b", "onClick": mkHandler()})
	batch := b.TakeBatch()
	if batch == nil {
		t.Fatal("no batch")
	}

	var setClass, removeTitle, handlerPatches int
	for _, p := range batch.Patches {
		switch {
		case p.Op == protocol.OpSetProp && p.Key == "class":
			setClass++
			if p.Value != "b" {
				t.Errorf("class = %#v", p.Value)
			}
		case p.Op == protocol.OpRemoveProp && p.Key == "title":
			removeTitle++
		case p.Key == "onClick":
			handlerPatches++
		}
	}
	if setClass != 1 || removeTitle != 1 {
		t.Errorf("patches = %#v", batch.Patches)
	}
	if handlerPatches != 0 {
		t.Error("unchanged handler produced a patch")
	}
}

func TestBackendRemoveChildDropsHandlers(t *testing.T) {
	b := newWireBackend(nil)
	b.CreateNode(1, "button", element.Props{"onClick": func() {}})
	b.RemoveChild(0, 1)
	if b.Handler(1, "onClick") != nil {
		t.Error("removed node still resolves handlers")
	}
}
