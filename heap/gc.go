package heap

import "time"

// ---------------------------------------------------------------------------
// Generational collector
// ---------------------------------------------------------------------------
//
// The tracing half of the hybrid scheme. Minor collections scan the young
// generation using the root set plus the write-barrier log; major
// collections do a full tri-color mark of the whole heap and free
// everything left White, which is the only way a cycle dies. Collections
// are stop-the-world relative to the single execution stream: they run to
// completion inside MaybeCollect/Collect and nothing observes the heap
// mid-collection. The collecting flag guards against an allocation made
// during a sweep (e.g. by a finalizing cascade) re-entering the collector.

// MaybeCollect is the allocation-threshold checkpoint: it runs a minor
// collection when young allocation volume since the last one crossed the
// minor threshold, then a major collection when old-generation volume has
// crossed the major threshold.
func (h *Heap) MaybeCollect() {
	if h.collecting {
		return
	}
	if h.youngSinceMinor >= h.opts.MinorThresholdBytes {
		h.minor()
	}
	if h.oldBytes >= h.opts.MajorThresholdBytes {
		h.major()
	}
}

// CollectMinor runs a minor collection immediately.
func (h *Heap) CollectMinor() {
	if !h.collecting {
		h.minor()
	}
}

// Collect runs a full (major) collection immediately. This is the explicit
// full-collection request: cycles disconnected from the root set are
// reclaimed here and nowhere else.
func (h *Heap) Collect() {
	if !h.collecting {
		h.major()
	}
}

// ---------------------------------------------------------------------------
// Minor collection
// ---------------------------------------------------------------------------

func (h *Heap) minor() {
	h.collecting = true
	defer func() { h.collecting = false }()
	start := time.Now()

	// Mark phase: roots plus barrier log, descending only into Young.
	// Old objects are never scanned here; every Old→Young edge is in the
	// log, maintained by the store contract, the promotion-time rescan
	// and the post-sweep rebuild below.
	var stack []uint32
	markYoung := func(r Ref) {
		idx := r.Index()
		if int(idx) >= len(h.pool.objects) {
			return
		}
		o := &h.pool.objects[idx]
		if !o.hdr.alive || o.hdr.tag != r.Tag() {
			return // source died since the entry was logged
		}
		if o.hdr.gen != Young || o.hdr.mark != white {
			return
		}
		o.hdr.mark = black
		stack = append(stack, idx)
	}

	for _, r := range h.RootSnapshot() {
		markYoung(r)
	}
	for _, e := range h.barrier.entries {
		idx := e.src.Index()
		if int(idx) >= len(h.pool.objects) {
			continue
		}
		src := &h.pool.objects[idx]
		if !src.hdr.alive || src.hdr.tag != e.src.Tag() || src.hdr.gen != Old {
			continue
		}
		if e.slot >= len(src.slots) {
			continue
		}
		if v := src.slots[e.slot]; v.IsRef() {
			markYoung(v.Ref())
		}
	}

	scanned := 0
	for len(stack) > 0 {
		n := len(stack) - 1
		idx := stack[n]
		stack = stack[:n]
		scanned++
		o := &h.pool.objects[idx]
		for _, v := range o.slots {
			if v.IsRef() {
				markYoung(v.Ref())
			}
		}
	}

	// Sweep phase: free unmarked Young objects, promote survivors that
	// already survived a prior minor collection.
	var victims []uint32
	promoted := 0
	for idx := range h.pool.objects {
		o := &h.pool.objects[idx]
		if !o.hdr.alive || o.hdr.gen != Young {
			continue
		}
		if o.hdr.mark != black {
			victims = append(victims, uint32(idx))
			continue
		}
		o.hdr.mark = white
		o.hdr.survivals++
		if int(o.hdr.survivals) >= h.opts.PromoteAfter {
			h.promote(uint32(idx))
			promoted++
		}
	}
	freed := h.collectorFree(victims)
	h.rebuildBarrier()
	h.youngSinceMinor = 0

	h.stats.MinorCollections++
	h.stats.LastMinorFreed = freed
	h.stats.LastMinorDuration = time.Since(start)
	h.stats.Promotions += uint64(promoted)
	h.log.Debugf("minor collection: scanned=%d freed=%d promoted=%d young=%dB old=%dB (%s)",
		scanned, freed, promoted, h.youngBytes, h.oldBytes, h.stats.LastMinorDuration)
}

// promote moves a surviving Young object to the old generation. Its slots
// are rescanned for references to still-Young objects: those edges become
// Old→Young the moment the object moves and must enter the barrier log, or
// the next minor collection would free their targets out from under it.
func (h *Heap) promote(idx uint32) {
	o := &h.pool.objects[idx]
	size := h.pool.sizeOf(idx)
	o.hdr.gen = Old
	h.youngBytes -= size
	h.oldBytes += size

	self := makeRef(idx, o.hdr.tag)
	for i, v := range o.slots {
		if !v.IsRef() {
			continue
		}
		t := &h.pool.objects[v.Ref().Index()]
		if t.hdr.alive && t.hdr.gen == Young {
			h.barrier.add(self, i)
		}
	}
}

// ---------------------------------------------------------------------------
// Major collection
// ---------------------------------------------------------------------------

func (h *Heap) major() {
	h.collecting = true
	defer func() { h.collecting = false }()
	start := time.Now()

	// Full tri-color mark: White = unvisited, Gray = discovered/pending,
	// Black = fully scanned. Generations are ignored.
	for idx := range h.pool.objects {
		if h.pool.objects[idx].hdr.alive {
			h.pool.objects[idx].hdr.mark = white
		}
	}

	var queue []uint32
	shade := func(r Ref) {
		idx := r.Index()
		if int(idx) >= len(h.pool.objects) {
			return
		}
		o := &h.pool.objects[idx]
		if !o.hdr.alive || o.hdr.tag != r.Tag() || o.hdr.mark != white {
			return
		}
		o.hdr.mark = gray
		queue = append(queue, idx)
	}

	for _, r := range h.RootSnapshot() {
		shade(r)
	}

	scanned := 0
	for len(queue) > 0 {
		n := len(queue) - 1
		idx := queue[n]
		queue = queue[:n]
		o := &h.pool.objects[idx]
		if o.hdr.mark != gray {
			continue // freed or already blackened; stale queue entry
		}
		for _, v := range o.slots {
			if v.IsRef() {
				shade(v.Ref())
			}
		}
		o.hdr.mark = black
		scanned++
	}

	// Sweep the whole heap: everything still White is unreachable, cycles
	// included, regardless of refcount.
	var victims []uint32
	for idx := range h.pool.objects {
		o := &h.pool.objects[idx]
		if o.hdr.alive && o.hdr.mark == white {
			victims = append(victims, uint32(idx))
		}
	}
	freed := h.collectorFree(victims)

	for idx := range h.pool.objects {
		if h.pool.objects[idx].hdr.alive {
			h.pool.objects[idx].hdr.mark = white
		}
	}

	// The barrier log survives a major collection (only a minor that
	// processes it may clear it), but entries whose source died are gone
	// for good and can be dropped now.
	h.purgeBarrier()

	h.stats.MajorCollections++
	h.stats.LastMajorFreed = freed
	h.stats.LastMajorDuration = time.Since(start)
	h.log.Infof("major collection: scanned=%d freed=%d young=%dB old=%dB (%s)",
		scanned, freed, h.youngBytes, h.oldBytes, h.stats.LastMajorDuration)
}

// rebuildBarrier re-derives the log after a minor sweep. An entry survives
// only while its source is a live Old object whose slot still holds a live
// Young reference: a target that stayed Young without being promoted keeps
// its entry for the next cycle. Dead sources, promoted or freed targets and
// overwritten slots leave no Old->Young edge to remember. Entries appended
// by the promotion rescan pass the same filter.
func (h *Heap) rebuildBarrier() {
	kept := h.barrier.entries[:0]
	clear(h.barrier.seen)
	for _, e := range h.barrier.entries {
		idx := e.src.Index()
		if int(idx) >= len(h.pool.objects) {
			continue
		}
		src := &h.pool.objects[idx]
		if !src.hdr.alive || src.hdr.tag != e.src.Tag() || src.hdr.gen != Old {
			continue
		}
		if e.slot >= len(src.slots) {
			continue
		}
		v := src.slots[e.slot]
		if !v.IsRef() {
			continue
		}
		t := &h.pool.objects[v.Ref().Index()]
		if !t.hdr.alive || t.hdr.tag != v.Ref().Tag() || t.hdr.gen != Young {
			continue
		}
		h.barrier.seen[e] = struct{}{}
		kept = append(kept, e)
	}
	h.barrier.entries = kept
}

// purgeBarrier drops log entries whose source object no longer exists.
func (h *Heap) purgeBarrier() {
	kept := h.barrier.entries[:0]
	for _, e := range h.barrier.entries {
		idx := e.src.Index()
		if int(idx) >= len(h.pool.objects) {
			continue
		}
		src := &h.pool.objects[idx]
		if src.hdr.alive && src.hdr.tag == e.src.Tag() {
			kept = append(kept, e)
			continue
		}
		delete(h.barrier.seen, e)
	}
	h.barrier.entries = kept
}

// ---------------------------------------------------------------------------
// Collector free
// ---------------------------------------------------------------------------

// collectorFree frees a batch of unreachable objects. Victims are condemned
// first so that releasing the references they hold never double-frees a
// fellow victim through the refcount engine; references leaving the victim
// set are released normally, which may cascade into ordinary refcount
// frees.
func (h *Heap) collectorFree(victims []uint32) int {
	for _, idx := range victims {
		h.pool.objects[idx].hdr.condemned = true
	}
	for _, idx := range victims {
		o := &h.pool.objects[idx]
		for _, v := range o.slots {
			if !v.IsRef() {
				continue
			}
			tIdx := v.Ref().Index()
			t := &h.pool.objects[tIdx]
			if t.hdr.condemned || !t.hdr.alive {
				continue
			}
			if t.hdr.refcount == 0 {
				violate("collect", "referenced object %d has zero refcount", tIdx)
			}
			t.hdr.refcount--
			if t.hdr.refcount == 0 {
				h.destroy(tIdx)
			}
		}
		if o.tensor != nil {
			h.releaseBuffer(o.tensor.buf)
		}
		h.accountFree(idx)
		h.pool.release(idx)
		h.stats.Frees++
	}
	return len(victims)
}
