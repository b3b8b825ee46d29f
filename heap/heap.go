// Package heap implements the memory core of the pluspy runtime: a
// size-class pool allocator, an eager reference-count engine, and a
// generational tracing collector that reclaims the cycles refcounting
// cannot see. Tensors are buffer-owning objects allocated through the same
// pool with bulk (whole-buffer) ownership.
//
// The heap is an explicitly constructed context: every component hangs off
// a *Heap built by New, never off package-level state, so independent
// runtime instances coexist and tests stay deterministic.
//
// The runtime is single-threaded and cooperative. Collections are atomic
// with respect to the rest of the runtime: they run to completion at
// allocation-threshold checkpoints or explicit requests, and a reentrancy
// guard keeps an allocation made during a collection from triggering
// another one.
package heap

import (
	"github.com/tliron/commonlog"
)

// Options configures a Heap. Zero fields take defaults.
type Options struct {
	// PoolCeilingBytes bounds total pool growth (small objects plus the
	// direct large-allocation path). Allocations past it fail with
	// ErrOutOfMemory. <=0 means DefaultPoolCeiling.
	PoolCeilingBytes int

	// MinorThresholdBytes is the young-generation allocation volume since
	// the last minor collection that triggers the next one.
	MinorThresholdBytes int

	// MajorThresholdBytes is the old-generation volume that triggers a
	// major collection.
	MajorThresholdBytes int

	// PromoteAfter is the number of minor collections an object must
	// survive before promotion to Old. The default is 1.
	PromoteAfter int

	// OnLayoutChange is invoked when RedefineType bumps the layout
	// generation; the JIT cache hooks this to drop stale entries.
	OnLayoutChange func(TypeID)
}

// Defaults for Options.
const (
	DefaultPoolCeiling    = 64 << 20
	DefaultMinorThreshold = 256 << 10
	DefaultMajorThreshold = 4 << 20
	DefaultPromoteAfter   = 1
)

// Heap is a single runtime instance's memory context.
type Heap struct {
	opts  Options
	pool  pool
	types *typeTable

	roots   rootSet
	barrier barrierLog

	// Generation accounting, in the pool's byte units.
	youngBytes      int
	oldBytes        int
	youngSinceMinor int // young allocation volume since the last minor

	layoutGen      uint64
	onLayoutChange func(TypeID)

	collecting bool // reentrancy guard; see gc.go

	stats Stats
	log   commonlog.Logger
}

// New constructs a Heap with the given options.
func New(opts Options) *Heap {
	if opts.PoolCeilingBytes <= 0 {
		opts.PoolCeilingBytes = DefaultPoolCeiling
	}
	if opts.MinorThresholdBytes <= 0 {
		opts.MinorThresholdBytes = DefaultMinorThreshold
	}
	if opts.MajorThresholdBytes <= 0 {
		opts.MajorThresholdBytes = DefaultMajorThreshold
	}
	if opts.PromoteAfter <= 0 {
		opts.PromoteAfter = DefaultPromoteAfter
	}

	h := &Heap{
		opts:           opts,
		types:          newTypeTable(),
		onLayoutChange: opts.OnLayoutChange,
		log:            commonlog.GetLogger("pluspy.heap"),
	}
	h.pool.ceiling = opts.PoolCeilingBytes
	h.roots.init()
	h.barrier.init()
	return h
}

// obj dereferences a handle, validating it against the header. A handle
// whose entry died or was reused is a dangling reference: an
// InvariantViolation, never a silent alias.
func (h *Heap) obj(r Ref, op string) *object {
	idx := r.Index()
	if int(idx) >= len(h.pool.objects) {
		violate(op, "handle index %d out of range", idx)
	}
	o := &h.pool.objects[idx]
	if !o.hdr.alive || o.hdr.tag != r.Tag() {
		violate(op, "dangling handle to object %d (tag %d, header tag %d)",
			idx, r.Tag(), o.hdr.tag)
	}
	return o
}

// Alloc allocates a plain object of the registered type, returning a handle
// the caller owns (refcount 1). Every allocation is a collection
// checkpoint.
func (h *Heap) Alloc(typeID TypeID) (Ref, error) {
	info := h.TypeInfo(typeID)
	if info.ID == invalidType || typeID == TypeTensor {
		violate("Alloc", "allocation of unregistered type %d", typeID)
	}

	h.MaybeCollect()

	r, err := h.pool.allocate(typeID, info.Slots)
	if err != nil {
		// One forced major collection before giving up: the pool may be
		// full of unreachable cycles.
		h.Collect()
		if r, err = h.pool.allocate(typeID, info.Slots); err != nil {
			return 0, err
		}
	}

	size := h.pool.sizeOf(r.Index())
	h.youngBytes += size
	h.youngSinceMinor += size
	h.stats.Allocations++
	return r, nil
}

// Generation returns which heap partition an object currently lives in.
func (h *Heap) Generation(r Ref) Generation {
	return h.obj(r, "Generation").hdr.gen
}

// Refcount returns an object's current reference count. Intended for tests
// and diagnostics.
func (h *Heap) Refcount(r Ref) uint32 {
	return h.obj(r, "Refcount").hdr.refcount
}

// Alive reports whether a handle still refers to the object it was created
// for. Unlike obj, it never panics; it is the safe probe for tests and
// diagnostics.
func (h *Heap) Alive(r Ref) bool {
	idx := r.Index()
	if int(idx) >= len(h.pool.objects) {
		return false
	}
	o := &h.pool.objects[idx]
	return o.hdr.alive && o.hdr.tag == r.Tag()
}

// NumSlots returns the slot count of an object's storage.
func (h *Heap) NumSlots(r Ref) int {
	return len(h.obj(r, "NumSlots").slots)
}

// TypeOf returns an object's type ID.
func (h *Heap) TypeOf(r Ref) TypeID {
	return h.obj(r, "TypeOf").hdr.typeID
}
