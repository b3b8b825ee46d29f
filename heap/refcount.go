package heap

// ---------------------------------------------------------------------------
// Reference-count engine
// ---------------------------------------------------------------------------
//
// The eager half of the hybrid scheme: retain on every store and parameter
// binding, release on overwrite and scope exit, immediate reclamation at
// count zero. Cycles never reach zero through this engine alone; they are
// the collector's job (gc.go). The counters and the mark bits are kept
// strictly separate.

// Retain increments an object's reference count.
func (h *Heap) Retain(r Ref) {
	h.obj(r, "Retain").hdr.refcount++
}

// Release decrements an object's reference count and, at zero, recursively
// releases its owned references and returns its storage to the pool. A
// release on a count already at zero is an InvariantViolation.
func (h *Heap) Release(r Ref) {
	o := h.obj(r, "Release")
	if o.hdr.refcount == 0 {
		violate("Release", "release on zero refcount (object %d)", r.Index())
	}
	o.hdr.refcount--
	if o.hdr.refcount == 0 {
		h.destroy(r.Index())
	}
}

// retainValue / releaseValue apply the refcount contract to boxed values,
// ignoring scalars.
func (h *Heap) retainValue(v Value) {
	if v.IsRef() {
		h.Retain(v.Ref())
	}
}

func (h *Heap) releaseValue(v Value) {
	if v.IsRef() {
		h.Release(v.Ref())
	}
}

// destroy frees an object whose count reached zero, cascading into owned
// references. The worklist keeps the cascade iterative; a long ownership
// chain must not overflow the Go stack.
func (h *Heap) destroy(idx uint32) {
	work := []uint32{idx}
	for len(work) > 0 {
		n := len(work) - 1
		cur := work[n]
		work = work[:n]

		o := &h.pool.objects[cur]
		for i := range o.slots {
			v := o.slots[i]
			if !v.IsRef() {
				continue
			}
			t := &h.pool.objects[v.Ref().Index()]
			if t.hdr.condemned {
				// Already on the collector's free list for this sweep;
				// the sweep frees it exactly once (tie-break policy:
				// refcount-zero free wins, double bookkeeping loses).
				continue
			}
			if t.hdr.refcount == 0 {
				violate("Release", "owned reference with zero refcount (object %d)", v.Ref().Index())
			}
			t.hdr.refcount--
			if t.hdr.refcount == 0 {
				work = append(work, v.Ref().Index())
			}
		}
		if o.tensor != nil {
			h.releaseBuffer(o.tensor.buf)
		}
		h.accountFree(cur)
		h.pool.release(cur)
		h.stats.Frees++
	}
}

// accountFree moves an object's volume out of its generation's tally.
func (h *Heap) accountFree(idx uint32) {
	size := h.pool.sizeOf(idx)
	if h.pool.objects[idx].hdr.gen == Old {
		h.oldBytes -= size
	} else {
		h.youngBytes -= size
	}
}

// ---------------------------------------------------------------------------
// Store contract
// ---------------------------------------------------------------------------

// Slot reads an object slot. The returned value is borrowed: the caller
// must Retain it to hold it past the owner's lifetime.
func (h *Heap) Slot(r Ref, i int) Value {
	o := h.obj(r, "Slot")
	if i < 0 || i >= len(o.slots) {
		violate("Slot", "slot %d out of range for object %d", i, r.Index())
	}
	return o.slots[i]
}

// SetSlot stores a value into an object slot, retaining the new value and
// releasing the previous occupant in that order, so self-referential
// reassignment is safe. An Old object receiving a Young reference is
// recorded in the write-barrier log.
func (h *Heap) SetSlot(r Ref, i int, v Value) {
	o := h.obj(r, "SetSlot")
	if i < 0 || i >= len(o.slots) {
		violate("SetSlot", "slot %d out of range for object %d", i, r.Index())
	}

	h.retainValue(v)
	old := o.slots[i]
	o.slots[i] = v
	if v.IsRef() && o.hdr.gen == Old {
		if h.obj(v.Ref(), "SetSlot").hdr.gen == Young {
			h.barrier.add(r, i)
		}
	}
	h.releaseValue(old)
}
