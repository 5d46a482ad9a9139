package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Runtime errors (E001-E099)
	// ============================================

	"E001": {
		Category: CategoryRuntime,
		Message:  "Hook called outside render",
		Detail:   "Hooks may only be called during a component's render, with the render context the engine passed in.",
	},
	"E002": {
		Category: CategoryRuntime,
		Message:  "Hook order changed between renders",
		Detail:   "A component must call the same hooks, in the same order, on every render. Conditional or loop-dependent hook calls break slot identity.",
	},
	"E003": {
		Category: CategoryRuntime,
		Message:  "Invalid element type",
		Detail:   "Element types must be a host tag string, a function component, a stateful constructor, or an exotic wrapper (memo, forwardRef, lazy, suspense, provider).",
	},
	"E004": {
		Category: CategoryRuntime,
		Message:  "Unhandled render error",
		Detail:   "A render or effect failed and no ancestor error boundary absorbed it. The whole tree has been unmounted.",
	},
	"E005": {
		Category: CategoryRuntime,
		Message:  "Duplicate sibling keys",
		Detail:   "Two children of the same parent share a reconciliation key. Only one keeps its identity across renders; the others remount.",
	},
	"E006": {
		Category: CategoryRuntime,
		Message:  "Update on unmounted instance",
		Detail:   "A state setter or SetState was called after the instance unmounted. The update was dropped.",
	},
	"E007": {
		Category: CategoryRuntime,
		Message:  "Render context reused outside its pass",
		Detail:   "Render contexts are valid only for the render call they were passed into. Do not retain them in closures that outlive the render.",
	},
	"E008": {
		Category: CategoryRuntime,
		Message:  "Update loop did not settle",
		Detail:   "Layout effects or lifecycle methods kept scheduling new updates. This usually means an effect sets state unconditionally.",
	},

	// ============================================
	// Protocol errors (P001-P099)
	// ============================================

	"P001": {
		Category: CategoryProtocol,
		Message:  "Frame payload too large",
		Detail:   "The frame exceeds the maximum payload size and was rejected.",
	},
	"P002": {
		Category: CategoryProtocol,
		Message:  "Malformed frame",
		Detail:   "The frame payload could not be decoded.",
	},
	"P003": {
		Category: CategoryProtocol,
		Message:  "Unknown event target",
		Detail:   "The event names a node or handler the server no longer knows. The client may be out of sync; a resync has been scheduled.",
	},

	// ============================================
	// Session errors (S001-S099)
	// ============================================

	"S001": {
		Category: CategorySession,
		Message:  "Session limit reached",
		Detail:   "The server is at its configured maximum number of live sessions.",
	},
	"S002": {
		Category: CategorySession,
		Message:  "Snapshot not found",
		Detail:   "No snapshot exists for the session ID; the session cannot be resumed.",
	},

	// ============================================
	// Config errors (C001-C099)
	// ============================================

	"C001": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "Neither loom.json nor loom.yaml exists at the given path.",
	},
	"C002": {
		Category: CategoryConfig,
		Message:  "Invalid config",
		Detail:   "The configuration file was parsed but failed validation.",
	},
}
