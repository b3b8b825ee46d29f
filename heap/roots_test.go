package heap

import "testing"

func TestBindAndPopFrame(t *testing.T) {
	h := newTestHeap()
	tid := h.RegisterType("node", 1)

	h.PushFrame()
	r, _ := h.Alloc(tid)
	h.Bind("x", FromRef(r))
	if h.Refcount(r) != 2 {
		t.Errorf("refcount after bind = %d, want 2", h.Refcount(r))
	}
	h.Release(r) // the binding holds the only count now

	v, ok := h.Lookup("x")
	if !ok || v.Ref() != r {
		t.Fatalf("Lookup(x) = %v, %v", v, ok)
	}

	h.PopFrame()
	if h.Alive(r) {
		t.Error("binding survived frame pop")
	}
}

func TestRebindReleasesOld(t *testing.T) {
	h := newTestHeap()
	tid := h.RegisterType("node", 1)

	h.PushFrame()
	defer h.PopFrame()

	a, _ := h.Alloc(tid)
	b, _ := h.Alloc(tid)
	h.Bind("x", FromRef(a))
	h.Release(a)

	h.Bind("x", FromRef(b))
	h.Release(b)
	if h.Alive(a) {
		t.Error("rebinding kept the old value alive")
	}
	if !h.Alive(b) {
		t.Error("rebinding freed the new value")
	}
}

func TestUnbindUnknownName(t *testing.T) {
	h := newTestHeap()
	h.PushFrame()
	defer h.PopFrame()

	expectViolation(t, "unbind unknown", func() { h.Unbind("nope") })
}

func TestPinTempKeepsFreshObjectAlive(t *testing.T) {
	h := newTestHeap()
	tid := h.RegisterType("node", 1)

	h.PushFrame()
	r, _ := h.Alloc(tid)
	h.PinTemp(FromRef(r))
	h.Release(r) // the pin holds the only count

	// A collection triggered mid-expression must treat the temp as a root.
	h.CollectMinor()
	if !h.Alive(r) {
		t.Fatal("pinned temporary swept by minor collection")
	}

	h.PopFrame()
	if h.Alive(r) {
		t.Error("temporary survived frame pop")
	}
}

func TestGlobals(t *testing.T) {
	h := newTestHeap()
	tid := h.RegisterType("node", 1)

	g, _ := h.Alloc(tid)
	h.BindGlobal("g", FromRef(g))
	h.Release(g)

	v, ok := h.Global("g")
	if !ok || v.Ref() != g {
		t.Fatalf("Global(g) = %v, %v", v, ok)
	}

	// Globals survive collections with no frame on the stack.
	h.Collect()
	if !h.Alive(g) {
		t.Fatal("global swept by major collection")
	}

	h.UnbindGlobal("g")
	if h.Alive(g) {
		t.Error("unbound global still alive")
	}
}

func TestRootSnapshotOrder(t *testing.T) {
	h := newTestHeap()
	tid := h.RegisterType("node", 1)

	g, _ := h.Alloc(tid)
	h.BindGlobal("g", FromRef(g))

	h.PushFrame()
	outer, _ := h.Alloc(tid)
	h.Bind("a", FromRef(outer))

	h.PushFrame()
	inner, _ := h.Alloc(tid)
	h.Bind("b", FromRef(inner))
	tmp, _ := h.Alloc(tid)
	h.PinTemp(FromRef(tmp))

	want := []Ref{g, outer, inner, tmp}
	got := h.RootSnapshot()
	if len(got) != len(want) {
		t.Fatalf("RootSnapshot has %d roots, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("root %d = index %d, want index %d", i, got[i].Index(), want[i].Index())
		}
	}

	h.PopFrame()
	h.PopFrame()
	if h.FrameDepth() != 0 {
		t.Errorf("FrameDepth = %d, want 0", h.FrameDepth())
	}
}

func TestPopFrameUnderflow(t *testing.T) {
	h := newTestHeap()
	expectViolation(t, "pop without push", func() { h.PopFrame() })
}
