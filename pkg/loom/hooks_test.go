package loom_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/loom"
	"github.com/loomui/loom/pkg/loomtest"
)

func Counter(c element.Context, _ element.Props) *element.Element {
	count, setCount := loom.UseState(c, 0)
	return element.MustNew("button", element.Props{
		"onClick": func() { setCount(count + 1) },
	}, element.Textf("count: %d", count))
}

func TestUseStateClickIncrements(t *testing.T) {
	h := loomtest.Mount(t, element.MustNew(Counter, nil))
	h.ExpectText("count: 0")

	h.Click("button")
	h.ExpectText("count: 1")

	h.Click("button")
	h.ExpectText("count: 2")
}

func TestUseStateBatchesWithinHandler(t *testing.T) {
	renders := 0
	comp := func(c element.Context, _ element.Props) *element.Element {
		renders++
		n, setN := loom.UseState(c, 0)
		return element.MustNew("button", element.Props{
			"onClick": func() {
				setN(n + 1)
				setN(n + 2)
			},
		}, element.Textf("%d", n))
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))
	if renders != 1 {
		t.Fatalf("renders after mount = %d, want 1", renders)
	}

	h.Click("button")
	if renders != 2 {
		t.Errorf("renders after one handler with two setters = %d, want 2", renders)
	}
	h.ExpectText("2")
}

func TestUseReducer(t *testing.T) {
	type action struct{ delta int }
	comp := func(c element.Context, _ element.Props) *element.Element {
		n, dispatch := loom.UseReducer(c, func(s int, a action) int {
			return s + a.delta
		}, 10)
		return element.MustNew("button", element.Props{
			"onClick": func() { dispatch(action{delta: 5}) },
		}, element.Textf("%d", n))
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))
	h.ExpectText("10")
	h.Click("button")
	h.ExpectText("15")
	h.Click("button")
	h.ExpectText("20")
}

func TestUseRefIdentityStable(t *testing.T) {
	var seen []*element.Ref[int]
	comp := func(c element.Context, _ element.Props) *element.Element {
		n, setN := loom.UseState(c, 0)
		r := loom.UseRef(c, 42)
		seen = append(seen, r)
		return element.MustNew("button", element.Props{
			"onClick": func() { setN(n + 1) },
		}, element.Textf("%d", r.Current()))
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))
	h.ExpectText("42")
	h.Click("button")
	h.Click("button")

	if len(seen) != 3 {
		t.Fatalf("expected 3 renders, got %d", len(seen))
	}
	if seen[0] != seen[1] || seen[1] != seen[2] {
		t.Error("UseRef returned different cells across renders")
	}
}

func TestUseMemoRecomputesOnlyOnDepChange(t *testing.T) {
	computes := 0
	comp := func(c element.Context, _ element.Props) *element.Element {
		a, setA := loom.UseState(c, 1)
		_, setB := loom.UseState(c, 0)
		doubled := loom.UseMemo(c, func() int {
			computes++
			return a * 2
		}, []any{a})
		return element.MustNew("div", nil,
			element.MustNew("button", element.Props{"onClick": func() { setA(a + 1) }},
				element.Text("bump a")),
			element.MustNew("span", element.Props{"onClick": func() { setB(99) }},
				element.Textf("%d", doubled)),
		)
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))
	if computes != 1 {
		t.Fatalf("computes after mount = %d, want 1", computes)
	}

	// Unrelated state change re-renders but keeps the memo.
	h.Invoke("span", "onClick")
	if computes != 1 {
		t.Errorf("computes after unrelated update = %d, want 1", computes)
	}

	h.Click("button")
	if computes != 2 {
		t.Errorf("computes after dep change = %d, want 2", computes)
	}
	h.ExpectText("4")
}

func TestUseMemoNilDepsRecomputesEveryRender(t *testing.T) {
	computes := 0
	comp := func(c element.Context, _ element.Props) *element.Element {
		n, setN := loom.UseState(c, 0)
		loom.UseMemo(c, func() int {
			computes++
			return n
		}, nil)
		return element.MustNew("button", element.Props{
			"onClick": func() { setN(n + 1) },
		})
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))
	h.Click("button")
	h.Click("button")
	if computes != 3 {
		t.Errorf("computes = %d, want 3 (one per render)", computes)
	}
}

func TestUseCallbackStableUnderSameDeps(t *testing.T) {
	var fns []func()
	comp := func(c element.Context, _ element.Props) *element.Element {
		n, setN := loom.UseState(c, 0)
		fn := loom.UseCallback(c, func() {}, []any{})
		fns = append(fns, fn)
		return element.MustNew("button", element.Props{
			"onClick": func() { setN(n + 1) },
		})
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))
	h.Click("button")

	if len(fns) != 2 {
		t.Fatalf("expected 2 renders, got %d", len(fns))
	}
	if fmt.Sprintf("%p", fns[0]) != fmt.Sprintf("%p", fns[1]) {
		t.Error("UseCallback returned a new function despite unchanged deps")
	}
}

func TestHookOrderViolationPanics(t *testing.T) {
	comp := func(c element.Context, _ element.Props) *element.Element {
		n, setN := loom.UseState(c, 0)
		if n > 0 {
			loom.UseRef(c, 0) // conditional hook: illegal
		}
		return element.MustNew("button", element.Props{
			"onClick": func() { setN(n + 1) },
		})
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on hook order change")
		}
		if !strings.Contains(fmt.Sprint(r), "E002") {
			t.Errorf("panic %v does not carry code E002", r)
		}
	}()
	h.Click("button")
}

func TestUseIDStableAndUnique(t *testing.T) {
	var ids []string
	comp := func(c element.Context, _ element.Props) *element.Element {
		n, setN := loom.UseState(c, 0)
		a := loom.UseID(c)
		b := loom.UseID(c)
		ids = append(ids, a, b)
		return element.MustNew("button", element.Props{
			"onClick": func() { setN(n + 1) },
		})
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))
	h.Click("button")

	if len(ids) != 4 {
		t.Fatalf("expected 4 recorded ids, got %d", len(ids))
	}
	if ids[0] == ids[1] {
		t.Error("two UseID calls in one component returned the same id")
	}
	if ids[0] != ids[2] || ids[1] != ids[3] {
		t.Error("UseID changed across renders")
	}
}

type intStore struct {
	mu   sync.Mutex
	v    int
	subs []func()
}

func (s *intStore) Get() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

func (s *intStore) Set(v int) {
	s.mu.Lock()
	s.v = v
	subs := append([]func(){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func (s *intStore) Subscribe(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
	return func() {}
}

func TestUseSyncExternalStore(t *testing.T) {
	store := &intStore{v: 7}
	comp := func(c element.Context, _ element.Props) *element.Element {
		v := loom.UseSyncExternalStore(c, store.Subscribe, store.Get)
		return element.MustNew("span", nil, element.Textf("%d", v))
	}

	h := loomtest.Mount(t, element.MustNew(comp, nil))
	h.ExpectText("7")

	h.Act(func() { store.Set(8) })
	h.ExpectText("8")
}

func TestUseImperativeHandle(t *testing.T) {
	type api struct{ Ping func() string }

	ref := element.NewRef[api]()
	inner := element.ForwardRef(func(c element.Context, _ element.Props, fwd any) *element.Element {
		loom.UseImperativeHandle(c, fwd.(element.RefBinder), func() api {
			return api{Ping: func() string { return "pong" }}
		}, []any{})
		return element.MustNew("span", nil, element.Text("inner"))
	})

	el := element.MustNew(inner, element.Props{"ref": ref})
	loomtest.Mount(t, el)

	if !ref.IsSet() {
		t.Fatal("imperative handle not bound after mount")
	}
	if got := ref.Current().Ping(); got != "pong" {
		t.Errorf("Ping() = %q, want pong", got)
	}
}
