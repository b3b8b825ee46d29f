package heap

import (
	"fmt"

	"github.com/pluslang/pluspy/ir"
)

// ScalarBinOp applies a binary operator to two boxed scalars. Integer
// operands stay integral (truncating division); mixing an integer with a
// float widens to float. Comparisons yield booleans. Both the interpreter
// and compiled code route scalar arithmetic through here so the two paths
// cannot drift apart.
func ScalarBinOp(op ir.Op, a, b Value) (Value, error) {
	switch {
	case a.IsSmallInt() && b.IsSmallInt():
		return intBinOp(op, a.SmallInt(), b.SmallInt())
	case (a.IsFloat() || a.IsSmallInt()) && (b.IsFloat() || b.IsSmallInt()):
		return floatBinOp(op, numToFloat(a), numToFloat(b))
	case a.IsBool() && b.IsBool():
		switch op {
		case ir.OpEq:
			return FromBool(a == b), nil
		case ir.OpNe:
			return FromBool(a != b), nil
		}
	}
	return Nil, fmt.Errorf("heap: operator %s not defined for operands", op)
}

func numToFloat(v Value) float64 {
	if v.IsSmallInt() {
		return float64(v.SmallInt())
	}
	return v.Float()
}

func intBinOp(op ir.Op, x, y int64) (Value, error) {
	switch op {
	case ir.OpAdd:
		return FromSmallInt(x + y), nil
	case ir.OpSub:
		return FromSmallInt(x - y), nil
	case ir.OpMul:
		return FromSmallInt(x * y), nil
	case ir.OpDiv:
		if y == 0 {
			return Nil, fmt.Errorf("heap: integer division by zero")
		}
		return FromSmallInt(x / y), nil
	case ir.OpMod:
		if y == 0 {
			return Nil, fmt.Errorf("heap: integer modulo by zero")
		}
		return FromSmallInt(x % y), nil
	case ir.OpEq:
		return FromBool(x == y), nil
	case ir.OpNe:
		return FromBool(x != y), nil
	case ir.OpLt:
		return FromBool(x < y), nil
	case ir.OpLe:
		return FromBool(x <= y), nil
	case ir.OpGt:
		return FromBool(x > y), nil
	case ir.OpGe:
		return FromBool(x >= y), nil
	}
	return Nil, fmt.Errorf("heap: operator %s not defined for integers", op)
}

func floatBinOp(op ir.Op, x, y float64) (Value, error) {
	switch op {
	case ir.OpAdd:
		return FromFloat(x + y), nil
	case ir.OpSub:
		return FromFloat(x - y), nil
	case ir.OpMul:
		return FromFloat(x * y), nil
	case ir.OpDiv:
		return FromFloat(x / y), nil
	case ir.OpEq:
		return FromBool(x == y), nil
	case ir.OpNe:
		return FromBool(x != y), nil
	case ir.OpLt:
		return FromBool(x < y), nil
	case ir.OpLe:
		return FromBool(x <= y), nil
	case ir.OpGt:
		return FromBool(x > y), nil
	case ir.OpGe:
		return FromBool(x >= y), nil
	}
	return Nil, fmt.Errorf("heap: operator %s not defined for floats", op)
}
