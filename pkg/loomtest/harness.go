package loomtest

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/host"
	"github.com/loomui/loom/pkg/host/hosttest"
	"github.com/loomui/loom/pkg/loom"
)

// Harness owns a root mounted against a recording backend.
type Harness struct {
	tb      testing.TB
	Root    *loom.Root
	Backend *hosttest.Backend
}

// New creates an unmounted harness. Most tests use Mount instead.
func New(tb testing.TB) *Harness {
	tb.Helper()
	backend := hosttest.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := loom.New(backend, loom.WithLogger(logger))
	h := &Harness{tb: tb, Root: root, Backend: backend}
	tb.Cleanup(root.Unmount)
	return h
}

// Mount creates a harness and mounts el, failing the test on a mount error.
//
// Example:
//
//	h := loomtest.Mount(t, element.MustNew(App, nil))
func Mount(tb testing.TB, el *element.Element) *Harness {
	tb.Helper()
	h := New(tb)
	if err := h.Root.Mount(el); err != nil {
		tb.Fatalf("mount failed: %v", err)
	}
	return h
}

// Remount replaces the mounted tree with el.
func (h *Harness) Remount(el *element.Element) {
	h.tb.Helper()
	if err := h.Root.Mount(el); err != nil {
		h.tb.Fatalf("remount failed: %v", err)
	}
}

// Act runs fn and flushes every update it caused.
func (h *Harness) Act(fn func()) {
	loom.Act(h.Root, fn)
}

// Click invokes the "onClick" prop of the first host node with the given
// tag, failing the test when no such handler exists.
//
// Example:
//
//	h.Click("button")
func (h *Harness) Click(tag string) {
	h.tb.Helper()
	h.Invoke(tag, "onClick")
}

// Invoke calls a func-valued prop on the first host node with the given
// tag, synchronously flushing the updates it triggers.
func (h *Harness) Invoke(tag, prop string, payload ...element.Props) {
	h.tb.Helper()
	ids := h.Backend.FindByTag(tag)
	if len(ids) == 0 {
		h.tb.Fatalf("no %q node in tree:\n%s", tag, h.Backend.Render())
	}
	h.InvokeAt(ids[0], prop, payload...)
}

// InvokeAt is Invoke against a specific backend node.
func (h *Harness) InvokeAt(id host.NodeID, prop string, payload ...element.Props) {
	h.tb.Helper()
	var ok bool
	h.Act(func() {
		ok = h.Backend.Invoke(id, prop, payload...)
	})
	if !ok {
		h.tb.Fatalf("node %d has no callable prop %q", id, prop)
	}
}

// Render returns the current tree as an HTML-ish string.
func (h *Harness) Render() string {
	return h.Backend.Render()
}

// Text returns the concatenated text content of the tree.
func (h *Harness) Text() string {
	return h.Backend.Text()
}

// ExpectText asserts that the tree's text content contains want.
//
// Example:
//
//	h.ExpectText("count: 1")
func (h *Harness) ExpectText(want string) {
	h.tb.Helper()
	if got := h.Backend.Text(); !strings.Contains(got, want) {
		h.tb.Errorf("text %q does not contain %q\ntree:\n%s", got, want, h.Backend.Render())
	}
}

// ExpectNotText asserts that the tree's text content does not contain s.
func (h *Harness) ExpectNotText(s string) {
	h.tb.Helper()
	if got := h.Backend.Text(); strings.Contains(got, s) {
		h.tb.Errorf("text %q unexpectedly contains %q", got, s)
	}
}

// ExpectRender asserts that the rendered tree contains want.
func (h *Harness) ExpectRender(want string) {
	h.tb.Helper()
	if got := h.Backend.Render(); !strings.Contains(got, want) {
		h.tb.Errorf("render does not contain %q, got:\n%s", want, got)
	}
}

// ExpectNodeCount asserts the number of live host nodes with the given tag.
func (h *Harness) ExpectNodeCount(tag string, want int) {
	h.tb.Helper()
	if got := len(h.Backend.FindByTag(tag)); got != want {
		h.tb.Errorf("want %d %q nodes, got %d\ntree:\n%s", want, tag, got, h.Backend.Render())
	}
}

// ExpectOps asserts how many operations of a kind the backend received
// since the last ResetOps.
func (h *Harness) ExpectOps(kind hosttest.OpKind, want int) {
	h.tb.Helper()
	if got := h.Backend.CountOps(kind); got != want {
		h.tb.Errorf("want %d %s ops, got %d\nops: %v", want, kind, got, h.Backend.Ops())
	}
}

// ResetOps clears the backend's op log, scoping later ExpectOps calls to
// the updates under test.
func (h *Harness) ResetOps() {
	h.Backend.ResetOps()
}

// WaitFor polls until cond is true, flushing pending work between polls.
// Use it to await suspense retries and other cross-goroutine completions.
//
// Example:
//
//	h.WaitFor(func() bool { return strings.Contains(h.Text(), "loaded") })
func (h *Harness) WaitFor(cond func() bool) {
	h.tb.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		var ok bool
		h.Act(func() { ok = cond() })
		if ok {
			return
		}
		if time.Now().After(deadline) {
			h.tb.Fatalf("condition not met before deadline\ntree:\n%s", h.Backend.Render())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// ExpectNoErrors fails the test when the backend received any reported
// errors.
func (h *Harness) ExpectNoErrors() {
	h.tb.Helper()
	if errs := h.Backend.Errors(); len(errs) > 0 {
		h.tb.Errorf("backend received errors: %v", errs)
	}
}
