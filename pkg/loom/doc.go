// Package loom is the engine: it turns element trees from pkg/element into a
// persistent instance tree, reconciles the minimal set of changes on every
// update, runs hooks and lifecycle logic, and drives a host backend with the
// resulting mutations.
//
// A Root owns one instance tree and one backend. All rendering and commit
// work happens on a single logical thread: whichever goroutine holds the
// root's lock runs the update loop to completion. State setters and Dispatch
// are safe from any goroutine; calls made from inside a flush are absorbed
// into the running loop.
//
// # Components
//
// Function components receive the render context and props:
//
//	func Counter(c element.Context, props element.Props) *element.Element {
//	    count, setCount := loom.UseState(c, 0)
//	    return element.MustNew("button", element.Props{
//	        "onClick": func() { setCount(count + 1) },
//	    }, element.Textf("count: %d", count))
//	}
//
// Stateful components implement element.Stateful and embed element.StateBase;
// lifecycle behavior is declared through the capability interfaces in
// pkg/element and resolved once at mount.
//
// # Hooks
//
// Hooks are keyed by call position, not name: a component must call the same
// hooks in the same order on every render. Violations panic with a coded
// error ([LOOM E002]) on the render that differs.
package loom
