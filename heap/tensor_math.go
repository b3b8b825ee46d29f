package heap

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pluslang/pluspy/ir"
)

// ---------------------------------------------------------------------------
// Tensor arithmetic
// ---------------------------------------------------------------------------
//
// The interpreted execution path needs element-wise arithmetic and matrix
// multiplication over tensors. Operations allocate a fresh result tensor;
// operands are borrowed and never mutated, so views stay consistent.

// Raw element codecs. Little-endian, matching the interop layer's fixed
// C-compatible convention.

func bytesToFloat64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func float64ToBytes(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

func bytesToFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func float32ToBytes(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func bytesToInt64(b []byte) int64 {
	return int64(binary.LittleEndian.Uint64(b))
}

func int64ToBytes(b []byte, v int64) {
	binary.LittleEndian.PutUint64(b, uint64(v))
}

func bytesToInt32(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b))
}

func int32ToBytes(b []byte, v int32) {
	binary.LittleEndian.PutUint32(b, uint32(v))
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TensorBinOp applies an element-wise operator to two tensors of identical
// shape and dtype, or a matrix multiplication for OpMatMul, returning a new
// tensor. Shape or dtype disagreement fails with ErrShapeMismatch.
func (h *Heap) TensorBinOp(op ir.Op, a, b Ref) (Ref, error) {
	ta := h.tensorOf(a, "TensorBinOp")
	tb := h.tensorOf(b, "TensorBinOp")
	if ta.dtype != tb.dtype {
		return 0, fmt.Errorf("%w: dtype %s vs %s", ErrShapeMismatch, ta.dtype, tb.dtype)
	}
	if op == ir.OpMatMul {
		return h.matmul(a, b)
	}
	if !shapeEqual(ta.shape, tb.shape) {
		return 0, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, ta.shape, tb.shape)
	}

	var fn func(x, y float64) float64
	switch op {
	case ir.OpAdd:
		fn = func(x, y float64) float64 { return x + y }
	case ir.OpSub:
		fn = func(x, y float64) float64 { return x - y }
	case ir.OpMul:
		fn = func(x, y float64) float64 { return x * y }
	case ir.OpDiv:
		fn = func(x, y float64) float64 { return x / y }
	default:
		return 0, fmt.Errorf("heap: operator %s not defined on tensors", op)
	}

	out, err := h.NewTensor(ta.shape, ta.dtype)
	if err != nil {
		return 0, err
	}
	// Reacquire metadata: NewTensor may have run a collection and grown
	// the object table underneath earlier pointers.
	ta, tb = h.tensorOf(a, "TensorBinOp"), h.tensorOf(b, "TensorBinOp")
	to := h.tensorOf(out, "TensorBinOp")

	offsB := make([]int, 0, elemCount(ta.shape))
	tb.forEach(func(off int) { offsB = append(offsB, off) })
	i := 0
	var outOffs []int
	to.forEach(func(off int) { outOffs = append(outOffs, off) })
	ta.forEach(func(off int) {
		to.store(outOffs[i], fn(ta.load(off), tb.load(offsB[i])))
		i++
	})
	return out, nil
}

// matmul multiplies two 2-D tensors.
func (h *Heap) matmul(a, b Ref) (Ref, error) {
	ta := h.tensorOf(a, "matmul")
	tb := h.tensorOf(b, "matmul")
	if len(ta.shape) != 2 || len(tb.shape) != 2 || ta.shape[1] != tb.shape[0] {
		return 0, fmt.Errorf("%w: matmul %v @ %v", ErrShapeMismatch, ta.shape, tb.shape)
	}
	m, k, n := ta.shape[0], ta.shape[1], tb.shape[1]

	out, err := h.NewTensor([]int{m, n}, ta.dtype)
	if err != nil {
		return 0, err
	}
	ta, tb = h.tensorOf(a, "matmul"), h.tensorOf(b, "matmul")
	to := h.tensorOf(out, "matmul")

	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			sum := 0.0
			for x := 0; x < k; x++ {
				av := ta.load(ta.offset + i*ta.strides[0] + x*ta.strides[1])
				bv := tb.load(tb.offset + x*tb.strides[0] + j*tb.strides[1])
				sum += av * bv
			}
			to.store(to.offset+i*to.strides[0]+j*to.strides[1], sum)
		}
	}
	return out, nil
}
