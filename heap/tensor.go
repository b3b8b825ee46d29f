package heap

import "fmt"

// ---------------------------------------------------------------------------
// Tensor objects
// ---------------------------------------------------------------------------
//
// A tensor is an object variant owning one contiguous buffer plus
// shape/stride/dtype metadata. The object header goes through the pool like
// any other object; the buffer takes the direct large-allocation path and
// is tracked separately so the collector accounts for it without scanning
// its contents. Ownership of the buffer is bulk, not per-element: views
// share it, and the whole-buffer free happens exactly once, when the last
// owning tensor (original or view) dies.

// DType is a tensor element type.
type DType uint8

const (
	Float64 DType = iota
	Float32
	Int64
	Int32
)

// ElemSize returns the element width in bytes.
func (d DType) ElemSize() int {
	switch d {
	case Float64, Int64:
		return 8
	case Float32, Int32:
		return 4
	}
	return 0
}

func (d DType) String() string {
	switch d {
	case Float64:
		return "float64"
	case Float32:
		return "float32"
	case Int64:
		return "int64"
	case Int32:
		return "int32"
	}
	return "?"
}

// DTypeByName resolves a dtype name; ok is false for unknown names.
func DTypeByName(name string) (DType, bool) {
	switch name {
	case "float64":
		return Float64, true
	case "float32":
		return Float32, true
	case "int64":
		return Int64, true
	case "int32":
		return Int32, true
	}
	return Float64, false
}

// buffer is the shared backing store. owners counts the tensors (original
// plus views) holding it; the data is freed when the count reaches zero.
type buffer struct {
	data   []byte
	owners uint32
}

// tensorMeta is the per-tensor view of a buffer: shape, element strides and
// dtype. Strides are in elements, row-major by default.
type tensorMeta struct {
	buf     *buffer
	shape   []int
	strides []int
	dtype   DType
	offset  int // element offset of this view into the buffer
}

// elemCount returns the number of elements a shape addresses.
func elemCount(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// rowMajorStrides builds default strides for a shape.
func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// checkBounds verifies that a shape/stride combination stays inside a
// buffer of n elements starting at offset.
func checkBounds(shape, strides []int, offset, n int) error {
	if len(shape) != len(strides) {
		return fmt.Errorf("%w: %d dims with %d strides", ErrShapeMismatch, len(shape), len(strides))
	}
	lo, hi := offset, offset
	for i, d := range shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension %d", ErrShapeMismatch, d)
		}
		if d == 0 {
			return nil // empty tensor addresses nothing
		}
		span := (d - 1) * strides[i]
		if span > 0 {
			hi += span
		} else {
			lo += span
		}
	}
	if lo < 0 || hi >= n {
		return fmt.Errorf("%w: view addresses [%d,%d] outside buffer of %d elements", ErrShapeMismatch, lo, hi, n)
	}
	return nil
}

// releaseBuffer drops one bulk ownership reference, freeing the data on the
// last one.
func (h *Heap) releaseBuffer(b *buffer) {
	if b.owners == 0 {
		violate("releaseBuffer", "buffer freed twice")
	}
	b.owners--
	if b.owners == 0 {
		h.pool.largeBytes -= len(b.data)
		b.data = nil
		h.stats.BufferFrees++
	}
}

// ---------------------------------------------------------------------------
// Creation and views
// ---------------------------------------------------------------------------

// NewTensor allocates a tensor with the given shape and dtype. The buffer
// is zeroed and sized to the product of the dimensions times the element
// width. The caller owns the returned handle.
func (h *Heap) NewTensor(shape []int, dtype DType) (Ref, error) {
	h.MaybeCollect()

	size := elemCount(shape) * dtype.ElemSize()
	if !h.pool.canGrow(size + headerBytes) {
		h.Collect()
		if !h.pool.canGrow(size + headerBytes) {
			return 0, ErrOutOfMemory
		}
	}

	buf := &buffer{data: make([]byte, size), owners: 1}
	meta := &tensorMeta{
		buf:     buf,
		shape:   append([]int(nil), shape...),
		strides: rowMajorStrides(shape),
		dtype:   dtype,
	}
	r, err := h.pool.allocateTensor(meta)
	if err != nil {
		return 0, err
	}
	h.pool.largeBytes += size
	h.youngBytes += headerBytes
	h.youngSinceMinor += headerBytes + size
	h.stats.Allocations++
	return r, nil
}

// NewView creates a tensor sharing the backing buffer of t under a new
// shape and strides, without copying data. Ownership of the buffer is
// shared: the buffer lives as long as the longest-living view. The offset
// is in elements relative to t's own origin, so views of views compose. A
// nil strides argument means row-major over the new shape. Fails with
// ErrShapeMismatch when the combination would address outside the buffer.
func (h *Heap) NewView(t Ref, offset int, shape, strides []int) (Ref, error) {
	src := h.tensorOf(t, "NewView")
	if strides == nil {
		strides = rowMajorStrides(shape)
	}
	n := len(src.buf.data) / src.dtype.ElemSize()
	if err := checkBounds(shape, strides, src.offset+offset, n); err != nil {
		return 0, err
	}

	h.MaybeCollect()
	// Retake src: the checkpoint may have collected t when the caller's
	// reference was the only one left. The deref turns that into an
	// invariant violation instead of resurrecting a freed buffer.
	src = h.tensorOf(t, "NewView")

	meta := &tensorMeta{
		buf:     src.buf,
		shape:   append([]int(nil), shape...),
		strides: append([]int(nil), strides...),
		dtype:   src.dtype,
		offset:  src.offset + offset,
	}
	r, err := h.pool.allocateTensor(meta)
	if err != nil {
		return 0, err
	}
	meta.buf.owners++
	h.youngBytes += headerBytes
	h.youngSinceMinor += headerBytes
	h.stats.Allocations++
	return r, nil
}

// tensorOf dereferences a handle and asserts it is a tensor.
func (h *Heap) tensorOf(r Ref, op string) *tensorMeta {
	o := h.obj(r, op)
	if o.tensor == nil {
		violate(op, "object %d is not a tensor", r.Index())
	}
	return o.tensor
}

// ---------------------------------------------------------------------------
// Metadata and element access
// ---------------------------------------------------------------------------

// TensorShape returns a copy of the tensor's shape.
func (h *Heap) TensorShape(r Ref) []int {
	return append([]int(nil), h.tensorOf(r, "TensorShape").shape...)
}

// TensorStrides returns a copy of the tensor's element strides.
func (h *Heap) TensorStrides(r Ref) []int {
	return append([]int(nil), h.tensorOf(r, "TensorStrides").strides...)
}

// TensorDType returns the tensor's element type.
func (h *Heap) TensorDType(r Ref) DType {
	return h.tensorOf(r, "TensorDType").dtype
}

// elemOffset computes the flat element offset for an index.
func (t *tensorMeta) elemOffset(index []int) (int, error) {
	if len(index) != len(t.shape) {
		return 0, fmt.Errorf("%w: %d indices for %d dims", ErrShapeMismatch, len(index), len(t.shape))
	}
	off := t.offset
	for i, ix := range index {
		if ix < 0 || ix >= t.shape[i] {
			return 0, fmt.Errorf("%w: index %d out of range for dim %d", ErrShapeMismatch, ix, t.shape[i])
		}
		off += ix * t.strides[i]
	}
	return off, nil
}

func (t *tensorMeta) load(off int) float64 {
	switch t.dtype {
	case Float64:
		return bytesToFloat64(t.buf.data[off*8:])
	case Float32:
		return float64(bytesToFloat32(t.buf.data[off*4:]))
	case Int64:
		return float64(bytesToInt64(t.buf.data[off*8:]))
	case Int32:
		return float64(bytesToInt32(t.buf.data[off*4:]))
	}
	return 0
}

func (t *tensorMeta) store(off int, v float64) {
	switch t.dtype {
	case Float64:
		float64ToBytes(t.buf.data[off*8:], v)
	case Float32:
		float32ToBytes(t.buf.data[off*4:], float32(v))
	case Int64:
		int64ToBytes(t.buf.data[off*8:], int64(v))
	case Int32:
		int32ToBytes(t.buf.data[off*4:], int32(v))
	}
}

// TensorAt reads one element, converted to float64.
func (h *Heap) TensorAt(r Ref, index ...int) (float64, error) {
	t := h.tensorOf(r, "TensorAt")
	off, err := t.elemOffset(index)
	if err != nil {
		return 0, err
	}
	return t.load(off), nil
}

// TensorSetAt writes one element, converting from float64.
func (h *Heap) TensorSetAt(r Ref, v float64, index ...int) error {
	t := h.tensorOf(r, "TensorSetAt")
	off, err := t.elemOffset(index)
	if err != nil {
		return err
	}
	t.store(off, v)
	return nil
}

// TensorFill sets every element to a scalar.
func (h *Heap) TensorFill(r Ref, v float64) {
	t := h.tensorOf(r, "TensorFill")
	t.forEach(func(off int) {
		t.store(off, v)
	})
}

// forEach walks every element offset of the view in row-major index order.
func (t *tensorMeta) forEach(fn func(off int)) {
	if elemCount(t.shape) == 0 {
		return
	}
	index := make([]int, len(t.shape))
	for {
		off := t.offset
		for i, ix := range index {
			off += ix * t.strides[i]
		}
		fn(off)
		// odometer increment
		i := len(index) - 1
		for ; i >= 0; i-- {
			index[i]++
			if index[i] < t.shape[i] {
				break
			}
			index[i] = 0
		}
		if i < 0 {
			return
		}
	}
}
