package heap

// ---------------------------------------------------------------------------
// Pool: size-class segregated free-list allocator
// ---------------------------------------------------------------------------

// sizeClasses are the slot counts the pool hands out. An allocation is
// rounded up to the smallest class that fits. Power-of-two spacing keeps
// internal fragmentation bounded at 2x while keeping the class count small.
var sizeClasses = [...]int{4, 8, 16, 32, 64, 128}

const (
	numClasses = len(sizeClasses)

	// classLarge marks entries whose slot array exceeds the largest size
	// class. Those bypass the free lists and are tracked with the tensor
	// buffers on the direct path.
	classLarge int8 = -1

	// bytesPerSlot and headerBytes are the accounting units for heap
	// volume. They reflect the logical object model, not Go's own layout.
	bytesPerSlot = 8
	headerBytes  = 16
)

// classFor returns the index of the smallest size class holding nslots, or
// classLarge if the request exceeds the largest class.
func classFor(nslots int) int8 {
	for i, c := range sizeClasses {
		if nslots <= c {
			return int8(i)
		}
	}
	return classLarge
}

// classBytes returns the accounted size of an object in the given class.
func classBytes(class int8, nslots int) int {
	if class == classLarge {
		return headerBytes + nslots*bytesPerSlot
	}
	return headerBytes + sizeClasses[class]*bytesPerSlot
}

// pool owns the object table and all free lists. It is the only component
// that touches object storage; everything else goes through handles.
type pool struct {
	objects []object

	// Per-class free lists of table indices. Freed entries keep their slot
	// arrays, so reuse within a class costs no allocation and no zeroing at
	// release time (zeroing is deferred to the next allocate).
	free [numClasses][]uint32

	// freeLarge holds freed table indices whose slot storage was oversize
	// or tensor-backed; their payloads are dropped, only headers reused.
	freeLarge []uint32

	heapBytes  int // small-object bytes currently live
	largeBytes int // direct-path bytes (tensor buffers, oversize arrays)
	ceiling    int // growth bound; 0 means unbounded

	allocs uint64
	frees  uint64
}

// canGrow reports whether adding n bytes stays under the ceiling.
func (p *pool) canGrow(n int) bool {
	return p.ceiling <= 0 || p.heapBytes+p.largeBytes+n <= p.ceiling
}

// allocate returns a zeroed table entry sized for nslots. The entry comes
// from the class's free list when possible, growing the table otherwise.
func (p *pool) allocate(typeID TypeID, nslots int) (Ref, error) {
	class := classFor(nslots)
	size := classBytes(class, nslots)
	if !p.canGrow(size) {
		return 0, ErrOutOfMemory
	}

	var idx uint32
	switch {
	case class != classLarge && len(p.free[class]) > 0:
		n := len(p.free[class]) - 1
		idx = p.free[class][n]
		p.free[class] = p.free[class][:n]
	case class == classLarge && len(p.freeLarge) > 0:
		n := len(p.freeLarge) - 1
		idx = p.freeLarge[n]
		p.freeLarge = p.freeLarge[:n]
		p.objects[idx].slots = make([]Value, nslots)
	default:
		idx = uint32(len(p.objects))
		width := nslots
		if class != classLarge {
			width = sizeClasses[class]
		}
		p.objects = append(p.objects, object{slots: make([]Value, width)})
	}

	obj := &p.objects[idx]
	// Deferred zeroing: storage still holds the previous occupant's values.
	for i := range obj.slots {
		obj.slots[i] = Nil
	}
	obj.tensor = nil
	obj.hdr = header{
		refcount: 1,
		tag:      obj.hdr.tag, // survives free/reuse; bumped at release
		typeID:   typeID,
		gen:      Young,
		mark:     white,
		class:    class,
	}
	obj.hdr.alive = true

	if class == classLarge {
		p.largeBytes += size
	} else {
		p.heapBytes += size
	}
	p.allocs++
	return makeRef(idx, obj.hdr.tag), nil
}

// allocateTensor returns a table entry carrying a tensor payload instead of
// slots. The buffer itself is tracked on the direct path by the caller.
func (p *pool) allocateTensor(meta *tensorMeta) (Ref, error) {
	if !p.canGrow(headerBytes) {
		return 0, ErrOutOfMemory
	}

	var idx uint32
	if n := len(p.freeLarge); n > 0 {
		idx = p.freeLarge[n-1]
		p.freeLarge = p.freeLarge[:n-1]
	} else {
		idx = uint32(len(p.objects))
		p.objects = append(p.objects, object{})
	}

	obj := &p.objects[idx]
	obj.slots = nil
	obj.tensor = meta
	obj.hdr = header{
		refcount: 1,
		tag:      obj.hdr.tag,
		typeID:   TypeTensor,
		gen:      Young,
		mark:     white,
		class:    classLarge,
	}
	obj.hdr.alive = true

	p.largeBytes += headerBytes
	p.allocs++
	return makeRef(idx, obj.hdr.tag), nil
}

// release returns a table entry to its class's free list. Storage is not
// zeroed here; the next allocate does that. The handle tag is bumped so any
// handle still pointing at the entry dangles detectably.
func (p *pool) release(idx uint32) {
	obj := &p.objects[idx]
	if !obj.hdr.alive {
		violate("pool.release", "double free of object %d", idx)
	}

	class := obj.hdr.class
	if class == classLarge {
		if obj.tensor != nil {
			p.largeBytes -= headerBytes
		} else {
			p.largeBytes -= classBytes(class, len(obj.slots))
			obj.slots = nil
		}
		p.freeLarge = append(p.freeLarge, idx)
	} else {
		p.heapBytes -= classBytes(class, 0)
		p.free[class] = append(p.free[class], idx)
	}

	obj.tensor = nil
	obj.hdr.alive = false
	obj.hdr.condemned = false
	obj.hdr.refcount = 0
	obj.hdr.tag++
	p.frees++
}

// sizeOf returns the accounted byte size of a live entry.
func (p *pool) sizeOf(idx uint32) int {
	obj := &p.objects[idx]
	if obj.tensor != nil {
		return headerBytes
	}
	return classBytes(obj.hdr.class, len(obj.slots))
}
