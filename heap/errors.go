package heap

import (
	"errors"
	"fmt"
)

// Recoverable allocation and tensor errors. These propagate to the immediate
// caller; the runtime stays usable after them.
var (
	// ErrOutOfMemory is returned when the pool cannot satisfy an allocation
	// without growing past its configured ceiling.
	ErrOutOfMemory = errors.New("heap: out of memory")

	// ErrShapeMismatch is returned when a tensor shape/stride combination
	// would address outside its backing buffer, or when an element-wise
	// operation is applied to incompatible shapes.
	ErrShapeMismatch = errors.New("heap: shape mismatch")
)

// InvariantViolation reports heap corruption: a double release, a dangling
// handle, or a damaged header. It is a defect, not a recoverable condition;
// low-level accessors panic with it rather than continuing with a
// possibly-corrupt heap, and the execution engine refuses further calls
// after catching one.
type InvariantViolation struct {
	Op     string // the operation that detected the violation
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("heap: invariant violation in %s: %s", e.Op, e.Detail)
}

// violate panics with an InvariantViolation.
func violate(op, format string, args ...any) {
	panic(&InvariantViolation{Op: op, Detail: fmt.Sprintf(format, args...)})
}
