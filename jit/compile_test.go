package jit

import (
	"errors"
	"testing"

	"github.com/pluslang/pluspy/heap"
	"github.com/pluslang/pluspy/ir"
)

func compileAndRun(t *testing.T, fn *ir.Function, args ...heap.Value) heap.Value {
	t.Helper()
	compiled, err := Compile(fn, Key{Fn: fn.ID})
	if err != nil {
		t.Fatalf("compile %s: %v", fn.Name, err)
	}
	out, err := compiled(args)
	if err != nil {
		t.Fatalf("run %s: %v", fn.Name, err)
	}
	return out
}

func TestCompileSumLoop(t *testing.T) {
	fn := &ir.Function{
		ID:     1,
		Name:   "sum",
		Params: []string{"n"},
		Body: ir.Seq{Exprs: []ir.Node{
			ir.Assign{Name: "acc", Expr: ir.IntLit{Value: 0}},
			ir.Assign{Name: "i", Expr: ir.IntLit{Value: 0}},
			ir.While{
				Cond: ir.BinOp{Op: ir.OpLt, Left: ir.Local{Name: "i"}, Right: ir.Local{Name: "n"}},
				Body: ir.Seq{Exprs: []ir.Node{
					ir.Assign{Name: "acc", Expr: ir.BinOp{Op: ir.OpAdd, Left: ir.Local{Name: "acc"}, Right: ir.Local{Name: "i"}}},
					ir.Assign{Name: "i", Expr: ir.BinOp{Op: ir.OpAdd, Left: ir.Local{Name: "i"}, Right: ir.IntLit{Value: 1}}},
				}},
			},
			ir.Local{Name: "acc"},
		}},
	}

	out := compileAndRun(t, fn, heap.FromSmallInt(10))
	if !out.IsSmallInt() || out.SmallInt() != 45 {
		t.Errorf("sum(10) = %v, want 45", out)
	}
}

func TestCompileBranch(t *testing.T) {
	fn := &ir.Function{
		ID:     2,
		Name:   "abs",
		Params: []string{"x"},
		Body: ir.If{
			Cond: ir.BinOp{Op: ir.OpLt, Left: ir.Local{Name: "x"}, Right: ir.IntLit{Value: 0}},
			Then: ir.BinOp{Op: ir.OpSub, Left: ir.IntLit{Value: 0}, Right: ir.Local{Name: "x"}},
			Else: ir.Local{Name: "x"},
		},
	}

	if out := compileAndRun(t, fn, heap.FromSmallInt(-5)); out.SmallInt() != 5 {
		t.Errorf("abs(-5) = %v, want 5", out)
	}
	if out := compileAndRun(t, fn, heap.FromSmallInt(5)); out.SmallInt() != 5 {
		t.Errorf("abs(5) = %v, want 5", out)
	}
}

func TestCompileIfWithoutElse(t *testing.T) {
	fn := &ir.Function{
		ID:     3,
		Name:   "gate",
		Params: []string{"b"},
		Body: ir.If{
			Cond: ir.Local{Name: "b"},
			Then: ir.IntLit{Value: 1},
		},
	}
	if out := compileAndRun(t, fn, heap.True); out.SmallInt() != 1 {
		t.Errorf("gate(true) = %v, want 1", out)
	}
	if out := compileAndRun(t, fn, heap.False); !out.IsNil() {
		t.Errorf("gate(false) = %v, want nil", out)
	}
}

func TestCompileArgCountChecked(t *testing.T) {
	fn := &ir.Function{ID: 4, Name: "id", Params: []string{"x"}, Body: ir.Local{Name: "x"}}
	compiled, err := Compile(fn, Key{Fn: 4})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := compiled(nil); err == nil {
		t.Error("missing argument did not error")
	}
	if _, err := compiled([]heap.Value{heap.FromSmallInt(1), heap.FromSmallInt(2)}); err == nil {
		t.Error("extra argument did not error")
	}
}

func TestCompileRejectsReadBeforeAssign(t *testing.T) {
	fn := &ir.Function{ID: 5, Name: "bad", Body: ir.Local{Name: "ghost"}}
	if _, err := Compile(fn, Key{Fn: 5}); !errors.Is(err, ErrCompilationUnsupported) {
		t.Errorf("error = %v, want ErrCompilationUnsupported", err)
	}
}

func TestCompileUnsupportedConstructs(t *testing.T) {
	cases := map[string]ir.Node{
		"global":     ir.Global{Name: "g"},
		"set-global": ir.SetGlobal{Name: "g", Expr: ir.IntLit{Value: 1}},
		"call":       ir.Call{Fn: 9},
		"new-object": ir.NewObject{Type: "point"},
		"get-field":  ir.GetField{Obj: ir.NilLit{}, Slot: 0},
		"set-field":  ir.SetField{Obj: ir.NilLit{}, Slot: 0, Val: ir.IntLit{Value: 1}},
		"new-tensor": ir.NewTensor{Shape: []int{2}, Dtype: "float64"},
		"matmul":     ir.BinOp{Op: ir.OpMatMul, Left: ir.NilLit{}, Right: ir.NilLit{}},
	}
	for name, body := range cases {
		fn := &ir.Function{ID: 6, Name: name, Body: body}
		if _, err := Compile(fn, Key{Fn: 6}); !errors.Is(err, ErrCompilationUnsupported) {
			t.Errorf("%s: error = %v, want ErrCompilationUnsupported", name, err)
		}
	}
}

func TestCompileGuestErrorsPropagate(t *testing.T) {
	fn := &ir.Function{
		ID:     7,
		Name:   "div",
		Params: []string{"x"},
		Body:   ir.BinOp{Op: ir.OpDiv, Left: ir.Local{Name: "x"}, Right: ir.IntLit{Value: 0}},
	}
	compiled, err := Compile(fn, Key{Fn: 7})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := compiled([]heap.Value{heap.FromSmallInt(1)}); err == nil {
		t.Error("division by zero did not error")
	}

	cond := &ir.Function{
		ID:   8,
		Name: "badcond",
		Body: ir.If{Cond: ir.IntLit{Value: 1}, Then: ir.IntLit{Value: 2}},
	}
	compiled, err = Compile(cond, Key{Fn: 8})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := compiled(nil); err == nil {
		t.Error("non-boolean condition did not error")
	}
}

func TestSpecOf(t *testing.T) {
	h := heap.New(heap.Options{
		MinorThresholdBytes: 1 << 30,
		MajorThresholdBytes: 1 << 30,
	})
	pointID := h.RegisterType("point", 2)

	tr, err := h.NewTensor([]int{2, 3}, heap.Float64)
	if err != nil {
		t.Fatal(err)
	}
	obj, err := h.Alloc(pointID)
	if err != nil {
		t.Fatal(err)
	}

	spec := SpecOf(h, []heap.Value{
		heap.FromSmallInt(1),
		heap.FromFloat(1.5),
		heap.True,
		heap.Nil,
		heap.FromRef(tr),
		heap.FromRef(obj),
	})
	want := "i,f,b,n,t:float64[2x3],o:point"
	if spec != want {
		t.Errorf("SpecOf = %q, want %q", spec, want)
	}

	if got := SpecOf(h, nil); got != "" {
		t.Errorf("SpecOf(no args) = %q, want empty", got)
	}
}
