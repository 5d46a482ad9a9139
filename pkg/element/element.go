package element

import (
	"errors"
	"fmt"
)

// Kind is the resolved component type discriminator.
type Kind uint8

const (
	KindInvalid    Kind = iota
	KindHost            // "div", "row", any backend tag
	KindText            // plain text node
	KindFragment        // grouping without a host node
	KindFunc            // function component
	KindStateful        // stateful component (constructor)
	KindMemo            // memoized wrapper
	KindForwardRef      // ref-forwarding wrapper
	KindLazy            // lazily loaded component
	KindSuspense        // suspense boundary
	KindProvider        // context provider
	KindConsumer        // context consumer
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindHost:
		return "Host"
	case KindText:
		return "Text"
	case KindFragment:
		return "Fragment"
	case KindFunc:
		return "Func"
	case KindStateful:
		return "Stateful"
	case KindMemo:
		return "Memo"
	case KindForwardRef:
		return "ForwardRef"
	case KindLazy:
		return "Lazy"
	case KindSuspense:
		return "Suspense"
	case KindProvider:
		return "Provider"
	case KindConsumer:
		return "Consumer"
	default:
		return "Invalid"
	}
}

// Props holds the attributes, event handlers, and component inputs of an
// element. Values are compared by identity during reconciliation.
type Props map[string]any

// Context is the engine-supplied render context handed to function and
// stateful components. Hooks in pkg/loom require the engine's concrete
// implementation; any other implementation is rejected at the first hook call.
type Context interface {
	// ID returns a stable identifier for the instance being rendered.
	// It is unique within the root and constant across renders.
	ID() string
}

// Func is a function component: render context and props in, subtree out.
// Returning nil renders nothing.
type Func func(ctx Context, props Props) *Element

// ErrInvalidType reports a value that is not a renderable component type.
var ErrInvalidType = errors.New("element: invalid element type")

// Element is an immutable descriptor of what to render.
type Element struct {
	// Type is the component type as passed to New: a host tag string, a
	// Func, a StatefulCtor, or one of the exotic wrapper types.
	Type any

	// Kind is Type resolved into the closed variant, fixed at construction.
	Kind Kind

	// Props are the element's inputs. Never mutated after construction.
	Props Props

	// Key is the reconciliation key, extracted from props at construction.
	// Empty means unkeyed.
	Key string

	// Ref is the ref target to bind on attach, or nil. Either a *Ref[T]
	// or a RefFunc.
	Ref any

	// Children are the child elements, in render order.
	Children []*Element

	// Text is the content for KindText elements.
	Text string
}

// New constructs an element of the given type. The type must be a host tag
// string, a Func, a StatefulCtor, or an exotic wrapper; anything else returns
// an error wrapping ErrInvalidType.
//
// "key" and "ref" entries in props are extracted onto the element and removed
// from the props map seen by the component.
func New(typ any, props Props, children ...*Element) (*Element, error) {
	kind := resolveKind(typ)
	if kind == KindInvalid {
		return nil, fmt.Errorf("%w: %T", ErrInvalidType, typ)
	}

	el := &Element{
		Type:     typ,
		Kind:     kind,
		Children: compactChildren(children),
	}
	el.Props, el.Key, el.Ref = splitProps(props)
	return el, nil
}

// MustNew is New for statically known types. It panics on an invalid type.
func MustNew(typ any, props Props, children ...*Element) *Element {
	el, err := New(typ, props, children...)
	if err != nil {
		panic(err)
	}
	return el
}

// Text creates a text element.
func Text(text string) *Element {
	return &Element{Kind: KindText, Type: textType{}, Text: text}
}

// Textf creates a text element from a format string.
func Textf(format string, args ...any) *Element {
	return Text(fmt.Sprintf(format, args...))
}

// Fragment groups children without introducing a host node.
func Fragment(children ...*Element) *Element {
	return &Element{Kind: KindFragment, Type: fragmentType{}, Children: compactChildren(children)}
}

// Clone returns a copy of el with overrides shallow-merged into its props.
// Override entries win; entries whose value is nil are dropped from the
// result. Key and ref are preserved unless the overrides carry new ones.
// If children are given they replace the original children entirely.
func Clone(el *Element, overrides Props, children ...*Element) (*Element, error) {
	if el == nil {
		return nil, fmt.Errorf("%w: cannot clone nil element", ErrInvalidType)
	}

	merged := make(Props, len(el.Props)+len(overrides))
	for k, v := range el.Props {
		merged[k] = v
	}
	for k, v := range overrides {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	out := &Element{
		Type:     el.Type,
		Kind:     el.Kind,
		Key:      el.Key,
		Ref:      el.Ref,
		Text:     el.Text,
		Children: el.Children,
	}
	var key string
	var ref any
	out.Props, key, ref = splitProps(merged)
	if key != "" {
		out.Key = key
	}
	if ref != nil {
		out.Ref = ref
	}
	if len(children) > 0 {
		out.Children = compactChildren(children)
	}
	return out, nil
}

// IsValid reports whether v is an *Element produced by this package.
// It is a structural predicate with no side effects.
func IsValid(v any) bool {
	el, ok := v.(*Element)
	return ok && el != nil && el.Kind != KindInvalid
}

// internal marker types for Text and Fragment so every element carries a Type.
type (
	textType     struct{}
	fragmentType struct{}
)

// resolveKind maps a raw type value onto the closed Kind variant.
// Resolution happens exactly once, at element construction.
func resolveKind(typ any) Kind {
	switch typ.(type) {
	case string:
		return KindHost
	case Func, func(Context, Props) *Element:
		return KindFunc
	case StatefulCtor, func() Stateful:
		return KindStateful
	case *MemoType:
		return KindMemo
	case *ForwardRefType:
		return KindForwardRef
	case *LazyType:
		return KindLazy
	case SuspenseType:
		return KindSuspense
	case *ProviderType:
		return KindProvider
	case *ConsumerType:
		return KindConsumer
	case textType:
		return KindText
	case fragmentType:
		return KindFragment
	default:
		return KindInvalid
	}
}

// splitProps copies props minus the "key" and "ref" entries, returning those
// separately. The input map is never retained.
func splitProps(props Props) (Props, string, any) {
	if len(props) == 0 {
		return nil, "", nil
	}
	out := make(Props, len(props))
	var key string
	var ref any
	for k, v := range props {
		switch k {
		case "key":
			if s, ok := v.(string); ok {
				key = s
			} else if v != nil {
				key = fmt.Sprintf("%v", v)
			}
		case "ref":
			ref = v
		default:
			out[k] = v
		}
	}
	if len(out) == 0 {
		out = nil
	}
	return out, key, ref
}

// compactChildren drops nil children so callers can splice conditionals.
func compactChildren(children []*Element) []*Element {
	n := 0
	for _, c := range children {
		if c != nil {
			n++
		}
	}
	if n == len(children) {
		return children
	}
	out := make([]*Element, 0, n)
	for _, c := range children {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// FuncOf normalizes the two spellings of a function component type.
func FuncOf(typ any) Func {
	switch fn := typ.(type) {
	case Func:
		return fn
	case func(Context, Props) *Element:
		return fn
	default:
		return nil
	}
}

// CtorOf normalizes the two spellings of a stateful constructor type.
func CtorOf(typ any) StatefulCtor {
	switch fn := typ.(type) {
	case StatefulCtor:
		return fn
	case func() Stateful:
		return fn
	default:
		return nil
	}
}

// SameType reports whether two elements share reconciliation identity by
// type. Host elements compare by tag; components compare by type value.
func SameType(a, b *Element) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindHost:
		return a.Type.(string) == b.Type.(string)
	case KindText, KindFragment, KindSuspense:
		return true
	case KindFunc:
		// Func values are not comparable with ==; compare code pointers.
		return funcID(a.Type) == funcID(b.Type)
	case KindStateful:
		return funcID(a.Type) == funcID(b.Type)
	case KindProvider:
		return a.Type.(*ProviderType).ContextID == b.Type.(*ProviderType).ContextID
	case KindConsumer:
		return a.Type.(*ConsumerType).ContextID == b.Type.(*ConsumerType).ContextID
	default:
		// Exotic wrappers are identified by pointer.
		return a.Type == b.Type
	}
}
