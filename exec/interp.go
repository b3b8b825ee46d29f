package exec

import (
	"fmt"

	"github.com/pluslang/pluspy/heap"
	"github.com/pluslang/pluspy/ir"
)

// ---------------------------------------------------------------------------
// Interpreter
// ---------------------------------------------------------------------------
//
// The tree-walking path. It handles the full IR, including everything the
// closure compiler refuses. Fresh references produced mid-expression are
// adopted into the current frame's temporaries, so a collection triggered
// by a later allocation in the same expression cannot sweep them.

// adopt transfers ownership of a fresh reference (refcount 1 from its
// constructor) to the current frame: pinned until PopFrame, then released.
func (e *Engine) adopt(r heap.Ref) heap.Value {
	v := heap.FromRef(r)
	e.heap.PinTemp(v)
	e.heap.Release(r)
	return v
}

func (e *Engine) eval(n ir.Node) (heap.Value, error) {
	switch n := n.(type) {
	case ir.IntLit:
		return heap.FromSmallInt(n.Value), nil
	case ir.FloatLit:
		return heap.FromFloat(n.Value), nil
	case ir.BoolLit:
		return heap.FromBool(n.Value), nil
	case ir.NilLit:
		return heap.Nil, nil

	case ir.Local:
		v, ok := e.heap.Lookup(n.Name)
		if !ok {
			return heap.Nil, fmt.Errorf("exec: undefined local %q", n.Name)
		}
		return v, nil

	case ir.Global:
		v, ok := e.heap.Global(n.Name)
		if !ok {
			return heap.Nil, fmt.Errorf("exec: undefined global %q", n.Name)
		}
		return v, nil

	case ir.Assign:
		v, err := e.eval(n.Expr)
		if err != nil {
			return heap.Nil, err
		}
		e.heap.Bind(n.Name, v)
		return v, nil

	case ir.SetGlobal:
		v, err := e.eval(n.Expr)
		if err != nil {
			return heap.Nil, err
		}
		e.heap.BindGlobal(n.Name, v)
		return v, nil

	case ir.BinOp:
		l, err := e.eval(n.Left)
		if err != nil {
			return heap.Nil, err
		}
		r, err := e.eval(n.Right)
		if err != nil {
			return heap.Nil, err
		}
		if l.IsRef() || r.IsRef() {
			return e.evalRefBinOp(n.Op, l, r)
		}
		return heap.ScalarBinOp(n.Op, l, r)

	case ir.If:
		cv, err := e.eval(n.Cond)
		if err != nil {
			return heap.Nil, err
		}
		if !cv.IsBool() {
			return heap.Nil, fmt.Errorf("exec: non-boolean condition")
		}
		if cv.Bool() {
			return e.eval(n.Then)
		}
		if n.Else == nil {
			return heap.Nil, nil
		}
		return e.eval(n.Else)

	case ir.While:
		for {
			cv, err := e.eval(n.Cond)
			if err != nil {
				return heap.Nil, err
			}
			if !cv.IsBool() {
				return heap.Nil, fmt.Errorf("exec: non-boolean condition")
			}
			if !cv.Bool() {
				return heap.Nil, nil
			}
			if _, err := e.eval(n.Body); err != nil {
				return heap.Nil, err
			}
		}

	case ir.Seq:
		last := heap.Nil
		for _, sub := range n.Exprs {
			v, err := e.eval(sub)
			if err != nil {
				return heap.Nil, err
			}
			last = v
		}
		return last, nil

	case ir.Call:
		args := make([]heap.Value, len(n.Args))
		for i, a := range n.Args {
			v, err := e.eval(a)
			if err != nil {
				return heap.Nil, err
			}
			args[i] = v
		}
		res, err := e.Call(n.Fn, args)
		if err != nil {
			return heap.Nil, err
		}
		// Call hands back an owned reference; adopt it like any other
		// fresh result.
		if res.IsRef() {
			return e.adopt(res.Ref()), nil
		}
		return res, nil

	case ir.NewObject:
		id := e.heap.TypeByName(n.Type)
		if id == 0 || id == heap.TypeTensor {
			return heap.Nil, fmt.Errorf("exec: unknown type %q", n.Type)
		}
		r, err := e.heap.Alloc(id)
		if err != nil {
			return heap.Nil, err
		}
		return e.adopt(r), nil

	case ir.GetField:
		obj, err := e.evalRef(n.Obj, "field access")
		if err != nil {
			return heap.Nil, err
		}
		if n.Slot < 0 || n.Slot >= e.heap.NumSlots(obj) {
			return heap.Nil, fmt.Errorf("exec: field %d out of range", n.Slot)
		}
		return e.heap.Slot(obj, n.Slot), nil

	case ir.SetField:
		obj, err := e.evalRef(n.Obj, "field store")
		if err != nil {
			return heap.Nil, err
		}
		v, err := e.eval(n.Val)
		if err != nil {
			return heap.Nil, err
		}
		if n.Slot < 0 || n.Slot >= e.heap.NumSlots(obj) {
			return heap.Nil, fmt.Errorf("exec: field %d out of range", n.Slot)
		}
		e.heap.SetSlot(obj, n.Slot, v)
		return v, nil

	case ir.NewTensor:
		dtype, ok := heap.DTypeByName(n.Dtype)
		if !ok {
			return heap.Nil, fmt.Errorf("exec: unknown dtype %q", n.Dtype)
		}
		r, err := e.heap.NewTensor(n.Shape, dtype)
		if err != nil {
			return heap.Nil, err
		}
		return e.adopt(r), nil

	case ir.TensorFill:
		t, err := e.evalRef(n.Tensor, "tensor fill")
		if err != nil {
			return heap.Nil, err
		}
		fv, err := e.eval(n.Value)
		if err != nil {
			return heap.Nil, err
		}
		var f float64
		switch {
		case fv.IsFloat():
			f = fv.Float()
		case fv.IsSmallInt():
			f = float64(fv.SmallInt())
		default:
			return heap.Nil, fmt.Errorf("exec: non-numeric fill value")
		}
		if e.heap.TypeOf(t) != heap.TypeTensor {
			return heap.Nil, fmt.Errorf("exec: fill target is not a tensor")
		}
		e.heap.TensorFill(t, f)
		return heap.FromRef(t), nil
	}
	return heap.Nil, fmt.Errorf("exec: unhandled node %T", n)
}

// evalRef evaluates an expression that must yield a reference.
func (e *Engine) evalRef(n ir.Node, what string) (heap.Ref, error) {
	v, err := e.eval(n)
	if err != nil {
		return 0, err
	}
	if !v.IsRef() {
		return 0, fmt.Errorf("exec: %s on a non-reference value", what)
	}
	return v.Ref(), nil
}

// evalRefBinOp handles operators with at least one reference operand:
// elementwise tensor arithmetic, matrix multiply, and reference
// (in)equality.
func (e *Engine) evalRefBinOp(op ir.Op, l, r heap.Value) (heap.Value, error) {
	if op == ir.OpEq || op == ir.OpNe {
		same := l.IsRef() && r.IsRef() && l.Ref() == r.Ref()
		if op == ir.OpNe {
			same = !same
		}
		return heap.FromBool(same), nil
	}
	if !l.IsRef() || !r.IsRef() {
		return heap.Nil, fmt.Errorf("exec: operator %s mixes a reference and a scalar", op)
	}
	lr, rr := l.Ref(), r.Ref()
	if e.heap.TypeOf(lr) != heap.TypeTensor || e.heap.TypeOf(rr) != heap.TypeTensor {
		return heap.Nil, fmt.Errorf("exec: operator %s on non-tensor objects", op)
	}
	res, err := e.heap.TensorBinOp(op, lr, rr)
	if err != nil {
		return heap.Nil, err
	}
	return e.adopt(res), nil
}
