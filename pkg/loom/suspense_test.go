package loom_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/loom"
	"github.com/loomui/loom/pkg/loomtest"
)

func TestSuspenseShowsFallbackThenContent(t *testing.T) {
	gate := make(chan struct{})
	res := loom.NewResource(func() (string, error) {
		<-gate
		return "user 42", nil
	})

	profile := func(c element.Context, _ element.Props) *element.Element {
		name := res.Read(c)
		return element.MustNew("p", nil, element.Text(name))
	}

	h := loomtest.Mount(t, element.MustNew("div", nil,
		element.Suspense(
			element.MustNew("p", nil, element.Text("loading...")),
			element.MustNew(profile, nil),
		),
	))
	h.ExpectText("loading...")
	h.ExpectNotText("user 42")

	close(gate)
	h.WaitFor(func() bool { return strings.Contains(h.Text(), "user 42") })
	h.ExpectNotText("loading...")
	h.ExpectNoErrors()
}

func TestLazyComponentShowsFallbackWhileLoading(t *testing.T) {
	gate := make(chan struct{})
	widget := element.Lazy(func() (any, error) {
		<-gate
		return element.Func(func(c element.Context, props element.Props) *element.Element {
			return element.MustNew("p", nil, element.Textf("hello %s", props["name"]))
		}), nil
	})

	h := loomtest.Mount(t, element.MustNew("div", nil,
		element.Suspense(
			element.MustNew("p", nil, element.Text("loading module")),
			element.MustNew(widget, element.Props{"name": "ada"}),
		),
	))
	h.ExpectText("loading module")

	close(gate)
	h.WaitFor(func() bool { return strings.Contains(h.Text(), "hello ada") })
	h.ExpectNoErrors()
}

func TestTransitionKeepsContentVisibleWhileSuspended(t *testing.T) {
	gates := map[string]chan struct{}{
		"a": make(chan struct{}),
		"b": make(chan struct{}),
	}
	resources := map[string]*loom.Resource[string]{}
	for tab, gate := range gates {
		tab, gate := tab, gate
		resources[tab] = loom.NewResource(func() (string, error) {
			<-gate
			return "content " + tab, nil
		})
	}
	close(gates["a"])

	panel := func(c element.Context, props element.Props) *element.Element {
		body := resources[props["tab"].(string)].Read(c)
		return element.MustNew("p", nil, element.Text(body))
	}

	app := func(c element.Context, _ element.Props) *element.Element {
		tab, setTab := loom.UseState(c, "a")
		pending, start := loom.UseTransition(c)
		return element.MustNew("div", nil,
			element.MustNew("button", element.Props{"onClick": func() {
				start(func() { setTab("b") })
			}}),
			element.MustNew("span", nil, element.Textf("pending=%v", pending)),
			element.Suspense(
				element.MustNew("p", nil, element.Text("loading...")),
				element.MustNew(panel, element.Props{"tab": tab}),
			),
		)
	}

	h := loomtest.Mount(t, element.MustNew(app, nil))
	h.WaitFor(func() bool { return strings.Contains(h.Text(), "content a") })

	h.Click("button")

	// The deferred pass suspended, so the old content stays on screen
	// instead of the fallback, and the transition reports pending.
	h.ExpectText("content a")
	h.ExpectText("pending=true")
	h.ExpectNotText("loading...")

	close(gates["b"])
	h.WaitFor(func() bool { return strings.Contains(h.Text(), "content b") })
	h.ExpectText("pending=false")
	h.ExpectNoErrors()
}

func TestSuspenseWithoutBoundaryFailsMount(t *testing.T) {
	res := loom.NewResource(func() (string, error) {
		select {} // never resolves
	})
	app := func(c element.Context, _ element.Props) *element.Element {
		return element.MustNew("p", nil, element.Text(res.Read(c)))
	}

	h := loomtest.New(t)
	err := h.Root.Mount(element.MustNew("div", nil, element.MustNew(app, nil)))
	if err == nil {
		t.Fatal("mount succeeded despite suspension with no boundary")
	}
	if got := h.Render(); got != "" {
		t.Errorf("tree not empty after failed mount:\n%s", got)
	}
}

func TestResourceErrorReachesErrorBoundary(t *testing.T) {
	gate := make(chan struct{})
	res := loom.NewResource(func() (string, error) {
		<-gate
		return "", errors.New("fetch failed")
	})
	reader := func(c element.Context, _ element.Props) *element.Element {
		return element.MustNew("p", nil, element.Text(res.Read(c)))
	}

	h := loomtest.Mount(t, element.MustNew(element.StatefulCtor(newGuard), element.Props{
		"child": element.Suspense(
			element.MustNew("p", nil, element.Text("loading...")),
			element.MustNew(reader, nil),
		),
	}))
	h.ExpectText("loading...")

	close(gate)
	h.WaitFor(func() bool { return strings.Contains(h.Text(), "failed: fetch failed") })
	h.ExpectNoErrors()
}
