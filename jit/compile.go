package jit

import (
	"fmt"

	"github.com/pluslang/pluspy/heap"
	"github.com/pluslang/pluspy/ir"
)

// ---------------------------------------------------------------------------
// Closure compiler
// ---------------------------------------------------------------------------
//
// The compiler lowers the scalar subset of the IR (literals, locals,
// arithmetic, branches and loops) to trees of Go closures with local
// variables resolved to flat slot indexes at compile time. Calls, globals,
// object fields and tensor constructors touch the heap's root set and
// refcount bookkeeping and stay on the interpreted path; compiling them is
// reported as unsupported, never attempted halfway.

// compiledNode evaluates one expression against the flat local
// environment.
type compiledNode func(env []heap.Value) (heap.Value, error)

type compiler struct {
	slots map[string]int // local name -> env index
}

func (c *compiler) slot(name string) int {
	if i, ok := c.slots[name]; ok {
		return i
	}
	i := len(c.slots)
	c.slots[name] = i
	return i
}

// Compile lowers a function to a native entry point for the given key.
func Compile(fn *ir.Function, key Key) (CompiledFn, error) {
	c := &compiler{slots: make(map[string]int)}
	for _, p := range fn.Params {
		c.slot(p)
	}
	nParams := len(fn.Params)

	body, err := c.compileNode(fn.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrCompilationUnsupported, fn.Name, err)
	}
	nSlots := len(c.slots)

	return func(args []heap.Value) (heap.Value, error) {
		if len(args) != nParams {
			return heap.Nil, fmt.Errorf("jit: %s called with %d args, want %d", fn.Name, len(args), nParams)
		}
		env := make([]heap.Value, nSlots)
		copy(env, args)
		return body(env)
	}, nil
}

func (c *compiler) compileNode(n ir.Node) (compiledNode, error) {
	switch n := n.(type) {
	case ir.IntLit:
		v := heap.FromSmallInt(n.Value)
		return func([]heap.Value) (heap.Value, error) { return v, nil }, nil

	case ir.FloatLit:
		v := heap.FromFloat(n.Value)
		return func([]heap.Value) (heap.Value, error) { return v, nil }, nil

	case ir.BoolLit:
		v := heap.FromBool(n.Value)
		return func([]heap.Value) (heap.Value, error) { return v, nil }, nil

	case ir.NilLit:
		return func([]heap.Value) (heap.Value, error) { return heap.Nil, nil }, nil

	case ir.Local:
		i, ok := c.slots[n.Name]
		if !ok {
			return nil, fmt.Errorf("local %q read before assignment", n.Name)
		}
		return func(env []heap.Value) (heap.Value, error) { return env[i], nil }, nil

	case ir.Assign:
		expr, err := c.compileNode(n.Expr)
		if err != nil {
			return nil, err
		}
		i := c.slot(n.Name)
		return func(env []heap.Value) (heap.Value, error) {
			v, err := expr(env)
			if err != nil {
				return heap.Nil, err
			}
			env[i] = v
			return v, nil
		}, nil

	case ir.BinOp:
		if n.Op == ir.OpMatMul {
			return nil, fmt.Errorf("tensor operator %s", n.Op)
		}
		left, err := c.compileNode(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := c.compileNode(n.Right)
		if err != nil {
			return nil, err
		}
		op := n.Op
		return func(env []heap.Value) (heap.Value, error) {
			l, err := left(env)
			if err != nil {
				return heap.Nil, err
			}
			r, err := right(env)
			if err != nil {
				return heap.Nil, err
			}
			if l.IsRef() || r.IsRef() {
				return heap.Nil, fmt.Errorf("jit: compiled code reached a reference operand")
			}
			return heap.ScalarBinOp(op, l, r)
		}, nil

	case ir.If:
		cond, err := c.compileNode(n.Cond)
		if err != nil {
			return nil, err
		}
		then, err := c.compileNode(n.Then)
		if err != nil {
			return nil, err
		}
		var els compiledNode
		if n.Else != nil {
			if els, err = c.compileNode(n.Else); err != nil {
				return nil, err
			}
		}
		return func(env []heap.Value) (heap.Value, error) {
			cv, err := cond(env)
			if err != nil {
				return heap.Nil, err
			}
			if !cv.IsBool() {
				return heap.Nil, fmt.Errorf("jit: non-boolean condition")
			}
			if cv.Bool() {
				return then(env)
			}
			if els == nil {
				return heap.Nil, nil
			}
			return els(env)
		}, nil

	case ir.While:
		cond, err := c.compileNode(n.Cond)
		if err != nil {
			return nil, err
		}
		body, err := c.compileNode(n.Body)
		if err != nil {
			return nil, err
		}
		return func(env []heap.Value) (heap.Value, error) {
			for {
				cv, err := cond(env)
				if err != nil {
					return heap.Nil, err
				}
				if !cv.IsBool() {
					return heap.Nil, fmt.Errorf("jit: non-boolean condition")
				}
				if !cv.Bool() {
					return heap.Nil, nil
				}
				if _, err := body(env); err != nil {
					return heap.Nil, err
				}
			}
		}, nil

	case ir.Seq:
		exprs := make([]compiledNode, len(n.Exprs))
		for i, sub := range n.Exprs {
			e, err := c.compileNode(sub)
			if err != nil {
				return nil, err
			}
			exprs[i] = e
		}
		return func(env []heap.Value) (heap.Value, error) {
			last := heap.Nil
			for _, e := range exprs {
				v, err := e(env)
				if err != nil {
					return heap.Nil, err
				}
				last = v
			}
			return last, nil
		}, nil

	case ir.Global:
		return nil, fmt.Errorf("global %q", n.Name)
	case ir.SetGlobal:
		return nil, fmt.Errorf("global %q", n.Name)
	case ir.Call:
		return nil, fmt.Errorf("call to fn%d", n.Fn)
	case ir.NewObject:
		return nil, fmt.Errorf("allocation of %q", n.Type)
	case ir.GetField, ir.SetField:
		return nil, fmt.Errorf("object field access")
	case ir.NewTensor, ir.TensorFill:
		return nil, fmt.Errorf("tensor constructor")
	}
	return nil, fmt.Errorf("node %T", n)
}
