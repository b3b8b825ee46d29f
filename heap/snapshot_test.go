package heap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotCapturesLiveGraph(t *testing.T) {
	h := newTestHeap()
	tid := h.RegisterType("node", 2)

	h.PushFrame()
	defer h.PopFrame()

	a, _ := h.Alloc(tid)
	b, _ := h.Alloc(tid)
	h.Bind("a", FromRef(a))
	h.SetSlot(a, 0, FromRef(b))
	h.Release(a)
	h.Release(b)

	tr, _ := h.NewTensor([]int{2, 3}, Float64)
	h.Bind("t", FromRef(tr))
	h.Release(tr)

	snap := h.Snapshot()
	if len(snap.Objects) != 3 {
		t.Fatalf("snapshot has %d objects, want 3", len(snap.Objects))
	}
	if len(snap.Roots) != 2 {
		t.Errorf("snapshot has %d roots, want 2", len(snap.Roots))
	}

	var sawEdge, sawTensor bool
	for _, o := range snap.Objects {
		if o.Index == a.Index() && len(o.Refs) == 1 && o.Refs[0] == b.Index() {
			sawEdge = true
		}
		if o.Index == tr.Index() {
			sawTensor = true
			if o.Type != "tensor" {
				t.Errorf("tensor object type = %q, want tensor", o.Type)
			}
			if len(o.TensorShape) != 2 || o.TensorShape[0] != 2 || o.TensorShape[1] != 3 {
				t.Errorf("tensor shape = %v, want [2 3]", o.TensorShape)
			}
			if o.BufferBytes != 48 {
				t.Errorf("buffer bytes = %d, want 48", o.BufferBytes)
			}
		}
	}
	if !sawEdge {
		t.Error("snapshot missing a->b edge")
	}
	if !sawTensor {
		t.Error("snapshot missing tensor object")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	h := newTestHeap()
	tid := h.RegisterType("node", 1)

	h.PushFrame()
	defer h.PopFrame()
	r, _ := h.Alloc(tid)
	h.Bind("x", FromRef(r))
	h.Release(r)

	data, err := MarshalSnapshot(h.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Objects) != 1 || got.Objects[0].Index != r.Index() {
		t.Errorf("round-tripped objects = %+v", got.Objects)
	}
	if got.Stats.Allocations != 1 {
		t.Errorf("round-tripped allocations = %d, want 1", got.Stats.Allocations)
	}
}

func TestSnapshotDeterministic(t *testing.T) {
	build := func() *Heap {
		h := newTestHeap()
		tid := h.RegisterType("node", 1)
		h.PushFrame()
		a, _ := h.Alloc(tid)
		b, _ := h.Alloc(tid)
		h.Bind("a", FromRef(a))
		h.SetSlot(a, 0, FromRef(b))
		h.Release(a)
		h.Release(b)
		return h
	}

	d1, err := MarshalSnapshot(build().Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	d2, err := MarshalSnapshot(build().Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	if string(d1) != string(d2) {
		t.Error("identical heaps produced different snapshot encodings")
	}
}

func TestWriteSnapshot(t *testing.T) {
	h := newTestHeap()
	path := filepath.Join(t.TempDir(), "heap.cbor")
	if err := h.WriteSnapshot(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := UnmarshalSnapshot(data); err != nil {
		t.Errorf("written snapshot does not parse: %v", err)
	}
}
