// Package loomtest provides test helpers for components and engine
// behavior: a harness that mounts a tree against the recording backend,
// drives events, and asserts on the rendered output.
//
// Basic usage:
//
//	h := loomtest.Mount(t, element.MustNew(Counter, nil))
//	h.ExpectText("count: 0")
//	h.Click("button")
//	h.ExpectText("count: 1")
//
// Updates triggered inside the harness's own calls (Click, Act, Dispatch)
// are flushed synchronously, including layout and passive effects, so every
// assertion observes a settled tree. Asynchronous work such as suspense
// retries is awaited with WaitFor.
package loomtest
