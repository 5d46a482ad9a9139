// Package element defines the immutable element descriptors that components
// return from render, and the closed set of component types the engine
// understands.
//
// An Element describes what to render: a host tag, plain text, a function or
// stateful component, or one of the exotic wrappers (memo, forward-ref, lazy,
// suspense, context provider/consumer). Elements are cheap values created on
// every render; the engine in pkg/loom turns them into a persistent instance
// tree.
//
// Element identity for reconciliation is (type, key), never deep equality.
// Once created an Element must not be mutated; Clone produces a merged copy.
package element
