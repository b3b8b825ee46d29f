// Package jit implements the function cache: it maps a function's identity
// plus its argument specialization to a previously compiled entry point,
// guaranteeing at most one compilation in flight per key, and evicts
// entries on layout invalidation or memory pressure (LRU). Compilation
// itself is closure compilation of the supported IR subset; anything else
// reports ErrCompilationUnsupported and the execution engine falls back to
// interpretation.
package jit

import (
	"fmt"
	"strings"

	"github.com/pluslang/pluspy/heap"
	"github.com/pluslang/pluspy/ir"
)

// Key uniquely identifies a compiled-code entry: the function plus the
// argument shape/type specialization its code is valid for. A key
// determines at most one in-flight compilation and at most one cached
// entry at a time.
type Key struct {
	Fn   ir.FuncID
	Spec string
}

func (k Key) String() string {
	return fmt.Sprintf("fn%d(%s)", k.Fn, k.Spec)
}

// SpecOf derives the specialization string for an argument list. Scalars
// contribute their kind; tensors contribute dtype and shape (compiled code
// may assume both); plain objects contribute their type name, whose layout
// the compiled code may assume static.
func SpecOf(h *heap.Heap, args []heap.Value) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, len(args))
	for i, a := range args {
		switch {
		case a.IsSmallInt():
			parts[i] = "i"
		case a.IsFloat():
			parts[i] = "f"
		case a.IsBool():
			parts[i] = "b"
		case a.IsNil():
			parts[i] = "n"
		case a.IsRef():
			r := a.Ref()
			if h.TypeOf(r) == heap.TypeTensor {
				dims := make([]string, 0, 4)
				for _, d := range h.TensorShape(r) {
					dims = append(dims, fmt.Sprintf("%d", d))
				}
				parts[i] = fmt.Sprintf("t:%s[%s]", h.TensorDType(r), strings.Join(dims, "x"))
			} else {
				parts[i] = "o:" + h.TypeInfo(h.TypeOf(r)).Name
			}
		}
	}
	return strings.Join(parts, ",")
}
