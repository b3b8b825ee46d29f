// Package ir defines the intermediate program representation the compiler
// front end emits and the runtime core consumes.
//
// The representation is intentionally small: the runtime is responsible for
// memory and compiled-function identity, not for grammar coverage. A front
// end lowers its AST to these nodes; the execution engine interprets them or
// hands them to the JIT function cache.
package ir

// FuncID identifies a function across the runtime. The front end assigns IDs;
// the runtime treats them as opaque.
type FuncID uint32

// Function is a single callable unit of the guest program.
type Function struct {
	ID     FuncID
	Name   string
	Params []string
	Body   Node
}

// Op enumerates binary operators.
type Op uint8

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpMatMul // tensor-only: matrix multiplication
)

// String returns the source-level spelling of the operator.
func (op Op) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpMatMul:
		return "@"
	}
	return "?"
}

// Node is an expression in the intermediate representation. Statements are
// expressions too; a statement's value is simply discarded by Seq.
type Node interface {
	node()
}

// IntLit is an integer literal.
type IntLit struct {
	Value int64
}

// FloatLit is a floating-point literal.
type FloatLit struct {
	Value float64
}

// BoolLit is a boolean literal.
type BoolLit struct {
	Value bool
}

// NilLit is the nil literal.
type NilLit struct{}

// Local reads a local binding in the current frame.
type Local struct {
	Name string
}

// Global reads a module-level binding.
type Global struct {
	Name string
}

// Assign binds a local in the current frame, rebinding if it exists.
type Assign struct {
	Name string
	Expr Node
}

// SetGlobal binds a module-level name.
type SetGlobal struct {
	Name string
	Expr Node
}

// BinOp applies a binary operator.
type BinOp struct {
	Op    Op
	Left  Node
	Right Node
}

// If evaluates Then or Else depending on Cond. Else may be nil.
type If struct {
	Cond Node
	Then Node
	Else Node
}

// While evaluates Body as long as Cond holds; its value is nil.
type While struct {
	Cond Node
	Body Node
}

// Seq evaluates expressions in order and yields the last one's value.
// An empty Seq yields nil.
type Seq struct {
	Exprs []Node
}

// Call invokes another function through the execution engine.
type Call struct {
	Fn   FuncID
	Args []Node
}

// NewObject allocates a plain object of the named runtime type.
type NewObject struct {
	Type string
}

// GetField reads an object slot.
type GetField struct {
	Obj  Node
	Slot int
}

// SetField stores into an object slot (retain-new, release-old semantics
// are the heap's responsibility). Its value is the stored value.
type SetField struct {
	Obj  Node
	Slot int
	Val  Node
}

// NewTensor allocates a tensor with a static shape. Dtype is the element
// type name understood by the heap ("float64", "int64", ...).
type NewTensor struct {
	Shape []int
	Dtype string
}

// TensorFill sets every element of a tensor to a scalar. Yields the tensor.
type TensorFill struct {
	Tensor Node
	Value  Node
}

func (IntLit) node()     {}
func (FloatLit) node()   {}
func (BoolLit) node()    {}
func (NilLit) node()     {}
func (Local) node()      {}
func (Global) node()     {}
func (Assign) node()     {}
func (SetGlobal) node()  {}
func (BinOp) node()      {}
func (If) node()         {}
func (While) node()      {}
func (Seq) node()        {}
func (Call) node()       {}
func (NewObject) node()  {}
func (GetField) node()   {}
func (SetField) node()   {}
func (NewTensor) node()  {}
func (TensorFill) node() {}
