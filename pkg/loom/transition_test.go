package loom_test

import (
	"testing"

	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/loom"
	"github.com/loomui/loom/pkg/loomtest"
)

func TestUseTransitionPendingSequence(t *testing.T) {
	var pendings []bool
	app := func(c element.Context, _ element.Props) *element.Element {
		tab, setTab := loom.UseState(c, "home")
		pending, start := loom.UseTransition(c)
		pendings = append(pendings, pending)
		return element.MustNew("div", nil,
			element.MustNew("button", element.Props{"onClick": func() {
				start(func() { setTab("search") })
			}}),
			element.MustNew("span", nil, element.Textf("tab=%s pending=%v", tab, pending)),
		)
	}

	h := loomtest.Mount(t, element.MustNew(app, nil))
	h.ExpectText("tab=home pending=false")

	h.Click("button")
	h.ExpectText("tab=search pending=false")

	// Mount, then the synchronous pending flip, then the deferred pass
	// that applies the update and clears the flag.
	want := []bool{false, true, false}
	if len(pendings) != len(want) {
		t.Fatalf("pending sequence = %v, want %v", pendings, want)
	}
	for i := range want {
		if pendings[i] != want[i] {
			t.Fatalf("pending sequence = %v, want %v", pendings, want)
		}
	}
}

func TestStartTransitionDefersUpdates(t *testing.T) {
	app := func(c element.Context, _ element.Props) *element.Element {
		q, setQ := loom.UseState(c, "")
		return element.MustNew("div", nil,
			element.MustNew("button", element.Props{"onClick": func() {
				setQ("next")
			}}),
			element.MustNew("span", nil, element.Textf("page=%s", q)),
		)
	}

	h := loomtest.Mount(t, element.MustNew(app, nil))

	h.Act(func() {
		h.Root.StartTransition(func() {
			h.Backend.Invoke(h.Backend.FindByTag("button")[0], "onClick")
		})
	})
	h.ExpectText("page=next")
	h.ExpectNoErrors()
}

func TestUseDeferredValueLagsBehindSource(t *testing.T) {
	var deferredSeen []string
	display := func(c element.Context, props element.Props) *element.Element {
		v := loom.UseDeferredValue(c, props["q"].(string))
		deferredSeen = append(deferredSeen, v)
		return element.MustNew("p", nil, element.Textf("results for %q", v))
	}

	app := func(c element.Context, _ element.Props) *element.Element {
		q, setQ := loom.UseState(c, "go")
		return element.MustNew("div", nil,
			element.MustNew("input", element.Props{"onInput": func(ev element.Props) {
				setQ(ev["value"].(string))
			}}),
			element.MustNew("span", nil, element.Textf("typing %s", q)),
			element.MustNew(display, element.Props{"q": q}),
		)
	}

	h := loomtest.Mount(t, element.MustNew(app, nil))
	h.ExpectText(`results for "go"`)

	h.Invoke("input", "onInput", element.Props{"value": "gop"})
	h.ExpectText("typing gop")
	h.ExpectText(`results for "gop"`)

	// The urgent pass keeps the stale value; the deferred pass catches up.
	want := []string{"go", "go", "gop"}
	if len(deferredSeen) != len(want) {
		t.Fatalf("deferred values = %v, want %v", deferredSeen, want)
	}
	for i := range want {
		if deferredSeen[i] != want[i] {
			t.Fatalf("deferred values = %v, want %v", deferredSeen, want)
		}
	}
}

func TestSyncUpdatesCommitWhileTransitionParked(t *testing.T) {
	blocked := loom.NewResource(func() (string, error) {
		select {} // never resolves
	})

	panel := func(c element.Context, props element.Props) *element.Element {
		if props["tab"] == "slow" {
			return element.MustNew("p", nil, element.Text(blocked.Read(c)))
		}
		return element.MustNew("p", nil, element.Text("ready"))
	}

	app := func(c element.Context, _ element.Props) *element.Element {
		tab, setTab := loom.UseState(c, "fast")
		n, setN := loom.UseState(c, 0)
		_, start := loom.UseTransition(c)
		return element.MustNew("div", nil,
			element.MustNew("switch", element.Props{"onClick": func() {
				start(func() { setTab("slow") })
			}}),
			element.MustNew("bump", element.Props{"onClick": func() {
				setN(n + 1)
			}}),
			element.MustNew("span", nil, element.Textf("n=%d", n)),
			element.Suspense(
				element.MustNew("p", nil, element.Text("loading...")),
				element.MustNew(panel, element.Props{"tab": tab}),
			),
		)
	}

	h := loomtest.Mount(t, element.MustNew(app, nil))
	h.ExpectText("n=0")
	h.ExpectText("ready")

	// Park a transition over the visible content.
	h.Invoke("switch", "onClick")
	h.ExpectText("ready")
	h.ExpectNotText("loading...")

	// Urgent updates must keep committing while the transition waits.
	h.Invoke("bump", "onClick")
	h.ExpectText("n=1")
	h.ExpectText("ready")

	h.Invoke("bump", "onClick")
	h.ExpectText("n=2")
	h.ExpectNoErrors()
}
