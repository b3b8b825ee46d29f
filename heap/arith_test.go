package heap

import (
	"testing"

	"github.com/pluslang/pluspy/ir"
)

func TestScalarIntOps(t *testing.T) {
	tests := []struct {
		op   ir.Op
		x, y int64
		want int64
	}{
		{ir.OpAdd, 7, 3, 10},
		{ir.OpSub, 7, 3, 4},
		{ir.OpMul, 7, 3, 21},
		{ir.OpDiv, 7, 3, 2}, // truncating
		{ir.OpDiv, -7, 3, -2},
		{ir.OpMod, 7, 3, 1},
	}
	for _, tt := range tests {
		got, err := ScalarBinOp(tt.op, FromSmallInt(tt.x), FromSmallInt(tt.y))
		if err != nil {
			t.Fatalf("%d %s %d: %v", tt.x, tt.op, tt.y, err)
		}
		if !got.IsSmallInt() || got.SmallInt() != tt.want {
			t.Errorf("%d %s %d = %v, want %d", tt.x, tt.op, tt.y, got, tt.want)
		}
	}

	if _, err := ScalarBinOp(ir.OpDiv, FromSmallInt(1), FromSmallInt(0)); err == nil {
		t.Error("integer division by zero did not error")
	}
	if _, err := ScalarBinOp(ir.OpMod, FromSmallInt(1), FromSmallInt(0)); err == nil {
		t.Error("integer modulo by zero did not error")
	}
}

func TestScalarMixedWidensToFloat(t *testing.T) {
	got, err := ScalarBinOp(ir.OpAdd, FromSmallInt(1), FromFloat(0.5))
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsFloat() || got.Float() != 1.5 {
		t.Errorf("1 + 0.5 = %v, want 1.5 float", got)
	}

	// Float division never errors; it follows IEEE semantics.
	got, err = ScalarBinOp(ir.OpDiv, FromFloat(1), FromFloat(0))
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsFloat() {
		t.Errorf("1.0/0.0 = %v, want +Inf float", got)
	}
}

func TestScalarComparisons(t *testing.T) {
	tests := []struct {
		op   ir.Op
		want bool
	}{
		{ir.OpEq, false},
		{ir.OpNe, true},
		{ir.OpLt, true},
		{ir.OpLe, true},
		{ir.OpGt, false},
		{ir.OpGe, false},
	}
	for _, tt := range tests {
		got, err := ScalarBinOp(tt.op, FromSmallInt(2), FromSmallInt(5))
		if err != nil {
			t.Fatal(err)
		}
		if !got.IsBool() || got.Bool() != tt.want {
			t.Errorf("2 %s 5 = %v, want %v", tt.op, got, tt.want)
		}
	}
}

func TestScalarBoolEquality(t *testing.T) {
	got, err := ScalarBinOp(ir.OpEq, True, True)
	if err != nil || got != True {
		t.Errorf("true == true = %v, %v", got, err)
	}
	if _, err := ScalarBinOp(ir.OpAdd, True, False); err == nil {
		t.Error("bool arithmetic did not error")
	}
	if _, err := ScalarBinOp(ir.OpAdd, Nil, FromSmallInt(1)); err == nil {
		t.Error("nil arithmetic did not error")
	}
}
