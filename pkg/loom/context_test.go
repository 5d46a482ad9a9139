package loom_test

import (
	"testing"

	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/loom"
	"github.com/loomui/loom/pkg/loomtest"
)

var themeCtx = loom.NewContext[string]("light")

func TestUseContextDefaultWithoutProvider(t *testing.T) {
	comp := func(c element.Context, _ element.Props) *element.Element {
		theme := loom.UseContext(c, themeCtx)
		return element.MustNew("span", nil, element.Text(theme))
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))
	h.ExpectText("light")
}

func TestProviderOverridesDefault(t *testing.T) {
	leaf := func(c element.Context, _ element.Props) *element.Element {
		theme := loom.UseContext(c, themeCtx)
		return element.MustNew("span", nil, element.Text(theme))
	}

	h := loomtest.Mount(t, themeCtx.Provider("dark", element.MustNew(leaf, nil)))
	h.ExpectText("dark")
}

func TestNestedProvidersShadow(t *testing.T) {
	leaf := func(c element.Context, _ element.Props) *element.Element {
		theme := loom.UseContext(c, themeCtx)
		return element.MustNew("span", nil, element.Text(theme))
	}

	tree := themeCtx.Provider("outer",
		element.MustNew(leaf, nil),
		themeCtx.Provider("inner", element.MustNew(leaf, nil)),
	)

	h := loomtest.Mount(t, element.MustNew("div", nil, tree))
	if got := h.Text(); got != "outerinner" {
		t.Errorf("text = %q, want outerinner", got)
	}
}

func TestProviderValueChangeReachesConsumerThroughMemo(t *testing.T) {
	leafRenders := 0
	leaf := func(c element.Context, _ element.Props) *element.Element {
		leafRenders++
		theme := loom.UseContext(c, themeCtx)
		return element.MustNew("span", nil, element.Text(theme))
	}

	// The intermediate component never re-renders on its own; Memo with
	// equal props would normally skip the whole subtree.
	middle := func(c element.Context, _ element.Props) *element.Element {
		return element.MustNew("section", nil, element.MustNew(leaf, nil))
	}
	memoMiddle := element.Memo(middle)

	app := func(c element.Context, _ element.Props) *element.Element {
		theme, setTheme := loom.UseState(c, "dark")
		return element.MustNew("div", nil,
			element.MustNew("button", element.Props{"onClick": func() { setTheme("solar") }}),
			themeCtx.Provider(theme, element.MustNew(memoMiddle, nil)),
		)
	}

	h := loomtest.Mount(t, element.MustNew(app, nil))
	h.ExpectText("dark")
	if leafRenders != 1 {
		t.Fatalf("leaf renders after mount = %d, want 1", leafRenders)
	}

	h.Click("button")
	h.ExpectText("solar")
	if leafRenders != 2 {
		t.Errorf("leaf renders after provider change = %d, want exactly 2", leafRenders)
	}
}

func TestConsumerElement(t *testing.T) {
	tree := themeCtx.Provider("dark",
		themeCtx.Consumer(func(theme string) *element.Element {
			return element.MustNew("span", nil, element.Text("theme: "+theme))
		}),
	)

	h := loomtest.Mount(t, element.MustNew("div", nil, tree))
	h.ExpectText("theme: dark")
}

func TestTargetedRenderSeesAncestorContext(t *testing.T) {
	leaf := func(c element.Context, _ element.Props) *element.Element {
		n, setN := loom.UseState(c, 0)
		theme := loom.UseContext(c, themeCtx)
		return element.MustNew("button", element.Props{
			"onClick": func() { setN(n + 1) },
		}, element.Textf("%s-%d", theme, n))
	}

	h := loomtest.Mount(t, themeCtx.Provider("dark", element.MustNew(leaf, nil)))
	h.ExpectText("dark-0")

	// The leaf re-renders alone; the provider frame is not on the stack.
	h.Click("button")
	h.ExpectText("dark-1")
}
