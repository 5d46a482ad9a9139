package loom_test

import (
	"errors"
	"testing"

	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/host/hosttest"
	"github.com/loomui/loom/pkg/loom"
	"github.com/loomui/loom/pkg/loomtest"
)

// list renders one li per entry, keyed by the entry itself.
func keyedList(items []string) *element.Element {
	kids := make([]*element.Element, len(items))
	for i, it := range items {
		kids[i] = element.MustNew("li", element.Props{"key": it}, element.Text(it))
	}
	return element.MustNew("ul", nil, kids...)
}

func TestKeyedReorderMovesInsteadOfRemounting(t *testing.T) {
	items := []string{"a", "b", "c"}
	comp := func(c element.Context, _ element.Props) *element.Element {
		order, setOrder := loom.UseState(c, items)
		return element.MustNew("div", nil,
			element.MustNew("button", element.Props{
				"onClick": func() { setOrder([]string{"c", "a", "b"}) },
			}),
			keyedList(order),
		)
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))
	if got := h.Text(); got != "abc" {
		t.Fatalf("initial order = %q, want abc", got)
	}

	h.ResetOps()
	h.Click("button")

	if got := h.Text(); got != "cab" {
		t.Errorf("order after reorder = %q, want cab", got)
	}
	if n := h.Backend.CountOps(hosttest.OpCreateNode); n != 0 {
		t.Errorf("reorder created %d nodes, want 0", n)
	}
	if n := h.Backend.CountOps(hosttest.OpRemoveChild); n != 0 {
		t.Errorf("reorder removed %d nodes, want 0", n)
	}
	moves := h.Backend.CountOps(hosttest.OpInsertBefore) + h.Backend.CountOps(hosttest.OpAppendChild)
	if moves != 3 {
		t.Errorf("reorder moved %d nodes, want 3 (every kept child changed index)", moves)
	}
}

func TestKeyedChildrenKeepStateAcrossReorder(t *testing.T) {
	mounts := 0
	item := func(c element.Context, props element.Props) *element.Element {
		loom.UseEffect(c, func() loom.Cleanup {
			mounts++
			return nil
		}, []any{})
		return element.MustNew("li", nil, element.Text(props["label"].(string)))
	}

	comp := func(c element.Context, _ element.Props) *element.Element {
		order, setOrder := loom.UseState(c, []string{"x", "y", "z"})
		kids := make([]*element.Element, len(order))
		for i, l := range order {
			kids[i] = element.MustNew(item, element.Props{"key": l, "label": l})
		}
		return element.MustNew("div", nil,
			element.MustNew("button", element.Props{
				"onClick": func() { setOrder([]string{"z", "y", "x"}) },
			}),
			element.MustNew("ul", nil, kids...),
		)
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))
	if mounts != 3 {
		t.Fatalf("mounts after initial render = %d, want 3", mounts)
	}

	h.Click("button")
	if got := h.Text(); got != "zyx" {
		t.Errorf("order = %q, want zyx", got)
	}
	if mounts != 3 {
		t.Errorf("mounts after reorder = %d, want 3 (no remounts)", mounts)
	}
}

func TestKeyedRemovalOnlyTouchesRemoved(t *testing.T) {
	comp := func(c element.Context, _ element.Props) *element.Element {
		order, setOrder := loom.UseState(c, []string{"a", "b", "c"})
		return element.MustNew("div", nil,
			element.MustNew("button", element.Props{
				"onClick": func() { setOrder([]string{"a", "c"}) },
			}),
			keyedList(order),
		)
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))
	h.ResetOps()
	h.Click("button")

	if got := h.Text(); got != "ac" {
		t.Errorf("order = %q, want ac", got)
	}
	if n := h.Backend.CountOps(hosttest.OpRemoveChild); n != 1 {
		t.Errorf("removed %d nodes, want 1", n)
	}
	if n := h.Backend.CountOps(hosttest.OpCreateNode); n != 0 {
		t.Errorf("created %d nodes, want 0", n)
	}
}

func TestUnkeyedChildrenMatchByPosition(t *testing.T) {
	comp := func(c element.Context, _ element.Props) *element.Element {
		labels, setLabels := loom.UseState(c, []string{"one", "two"})
		kids := make([]*element.Element, len(labels)+1)
		kids[0] = element.MustNew("button", element.Props{
			"onClick": func() { setLabels([]string{"uno", "dos"}) },
		})
		for i, l := range labels {
			kids[i+1] = element.MustNew("li", nil, element.Text(l))
		}
		return element.MustNew("ul", nil, kids...)
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))
	h.ResetOps()
	h.Click("button")

	h.ExpectText("unodos")
	// Positional reuse: text nodes update in place, nothing remounts.
	if n := h.Backend.CountOps(hosttest.OpCreateNode); n != 0 {
		t.Errorf("created %d element nodes, want 0", n)
	}
	if n := h.Backend.CountOps(hosttest.OpSetText); n != 2 {
		t.Errorf("set text on %d nodes, want 2", n)
	}
}

func TestTagChangeRemounts(t *testing.T) {
	comp := func(c element.Context, _ element.Props) *element.Element {
		big, setBig := loom.UseState(c, false)
		tag := "span"
		if big {
			tag = "h1"
		}
		return element.MustNew("div", nil,
			element.MustNew("button", element.Props{"onClick": func() { setBig(true) }}),
			element.MustNew(tag, nil, element.Text("title")),
		)
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))
	h.ExpectNodeCount("span", 1)

	h.Click("button")
	h.ExpectNodeCount("span", 0)
	h.ExpectNodeCount("h1", 1)
	h.ExpectText("title")
}

func TestTextOnlyUpdateEmitsSetText(t *testing.T) {
	comp := func(c element.Context, _ element.Props) *element.Element {
		n, setN := loom.UseState(c, 0)
		return element.MustNew("button", element.Props{
			"onClick": func() { setN(n + 1) },
		}, element.Textf("%d", n))
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))
	h.ResetOps()
	h.Click("button")

	if n := h.Backend.CountOps(hosttest.OpSetText); n != 1 {
		t.Errorf("SetText ops = %d, want 1", n)
	}
	if n := h.Backend.CountOps(hosttest.OpCreateNode); n != 0 {
		t.Errorf("CreateNode ops = %d, want 0", n)
	}
}

func TestFragmentChildrenShareContainer(t *testing.T) {
	pair := func(c element.Context, props element.Props) *element.Element {
		p := props["prefix"].(string)
		return element.Fragment(
			element.MustNew("li", nil, element.Text(p+"1")),
			element.MustNew("li", nil, element.Text(p+"2")),
		)
	}
	root := element.MustNew("ul", nil,
		element.MustNew(pair, element.Props{"prefix": "a"}),
		element.MustNew(pair, element.Props{"prefix": "b"}),
	)

	h := loomtest.Mount(t, root)
	if got := h.Text(); got != "a1a2b1b2" {
		t.Errorf("flattened order = %q, want a1a2b1b2", got)
	}
	ul := h.Backend.FindByTag("ul")
	if len(ul) != 1 {
		t.Fatalf("ul count = %d", len(ul))
	}
	if n := h.Backend.Node(ul[0]); n == nil || len(n.Children) != 4 {
		t.Errorf("ul should hold all 4 li nodes directly")
	}
}

func TestDuplicateKeysStillRender(t *testing.T) {
	root := element.MustNew("ul", nil,
		element.MustNew("li", element.Props{"key": "dup"}, element.Text("first")),
		element.MustNew("li", element.Props{"key": "dup"}, element.Text("second")),
	)

	h := loomtest.Mount(t, root)
	h.ExpectNodeCount("li", 2)
	if got := h.Text(); got != "firstsecond" {
		t.Errorf("text = %q, want firstsecond", got)
	}
}

func TestMemoSkipsRenderForEqualProps(t *testing.T) {
	renders := 0
	child := func(c element.Context, props element.Props) *element.Element {
		renders++
		return element.MustNew("span", nil, element.Textf("a=%v", props["a"]))
	}
	memoChild := element.Memo(child)

	comp := func(c element.Context, _ element.Props) *element.Element {
		n, setN := loom.UseState(c, 0)
		a := 1
		if n > 1 {
			a = 2
		}
		return element.MustNew("div", nil,
			element.MustNew("button", element.Props{"onClick": func() { setN(n + 1) }}),
			// Fresh map every render; the default comparator matches on value.
			element.MustNew(memoChild, element.Props{"a": a}),
		)
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))
	h.ExpectText("a=1")
	if renders != 1 {
		t.Fatalf("renders after mount = %d, want 1", renders)
	}

	h.Click("button")
	h.ExpectText("a=1")
	if renders != 1 {
		t.Errorf("renders after equal-props update = %d, want 1", renders)
	}

	h.Click("button")
	h.ExpectText("a=2")
	if renders != 2 {
		t.Errorf("renders after prop change = %d, want 2", renders)
	}
}

func TestCloneMergesProps(t *testing.T) {
	base := element.MustNew("div", element.Props{"class": "card", "id": "x"})
	got, err := element.Clone(base, element.Props{"class": "card wide"})
	if err != nil {
		t.Fatalf("clone failed: %v", err)
	}

	if got.Props["class"] != "card wide" {
		t.Errorf("class = %v, want overridden", got.Props["class"])
	}
	if got.Props["id"] != "x" {
		t.Errorf("id = %v, want preserved", got.Props["id"])
	}
	if base.Props["class"] != "card" {
		t.Error("clone mutated the source element")
	}
}

func TestInvalidElementTypeRejected(t *testing.T) {
	_, err := element.New(42, nil)
	if err == nil {
		t.Fatal("expected error for invalid element type")
	}
	if !errors.Is(err, element.ErrInvalidType) {
		t.Errorf("error %v is not ErrInvalidType", err)
	}
}
