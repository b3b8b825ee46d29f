package heap

import "math"

// Value represents a runtime value using NaN-boxing.
//
// All values are 64-bit IEEE 754 doubles. Non-float values are encoded in
// the quiet-NaN space using tag bits:
//   - Float: native IEEE 754 double (anything that is not a tagged NaN)
//   - SmallInt: quiet NaN + tagInt + 48-bit signed payload
//   - Ref: quiet NaN + tagRef + packed object handle (32-bit table index
//     and 16-bit handle tag, see Ref)
//   - Special: quiet NaN + tagSpecial + nil/true/false
//
// Unlike a pointer-based encoding, object references here are handles into
// the heap's object table; the pool owns the storage and handles stay valid
// across Go's own garbage collector.
type Value uint64

const (
	// Quiet NaN prefix: exponent all 1s, quiet bit set, sign bit 0.
	nanBits uint64 = 0x7FF8000000000000

	// Tag bits within the NaN mantissa space.
	tagMask uint64 = 0x0007000000000000

	tagRef     uint64 = 0x0001000000000000 // heap object handle
	tagInt     uint64 = 0x0002000000000000 // 48-bit signed integer
	tagSpecial uint64 = 0x0003000000000000 // nil, true, false

	// 48-bit payload.
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	// Sign bit and extension mask for 48-bit integers.
	intSignBit    uint64 = 0x0000800000000000
	intSignExtend uint64 = 0xFFFF000000000000
)

const (
	specialNil   uint64 = 0
	specialTrue  uint64 = 1
	specialFalse uint64 = 2
)

// Pre-defined special values.
const (
	Nil   Value = Value(nanBits | tagSpecial | specialNil)
	True  Value = Value(nanBits | tagSpecial | specialTrue)
	False Value = Value(nanBits | tagSpecial | specialFalse)
)

// SmallInt range (48-bit signed).
const (
	MaxSmallInt int64 = (1 << 47) - 1
	MinSmallInt int64 = -(1 << 47)
)

// ---------------------------------------------------------------------------
// Ref: object handle
// ---------------------------------------------------------------------------

// Ref is a handle to a pool-allocated object: a 32-bit index into the
// object table plus a 16-bit tag. The tag is bumped every time a table
// entry is freed, so a stale handle dereferenced after its object died is
// detected as an InvariantViolation instead of silently aliasing whatever
// object reused the slot.
type Ref uint64

// makeRef packs an index and a tag into a Ref.
func makeRef(index uint32, tag uint16) Ref {
	return Ref(uint64(index) | uint64(tag)<<32)
}

// Index returns the object-table index of the handle.
func (r Ref) Index() uint32 { return uint32(r) }

// Tag returns the handle tag recorded when the handle was created.
func (r Ref) Tag() uint16 { return uint16(r >> 32) }

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// FromFloat boxes a float64.
func FromFloat(f float64) Value {
	return Value(math.Float64bits(f))
}

// FromSmallInt boxes an integer. Values outside the 48-bit range are
// truncated; the front end is responsible for overflow handling.
func FromSmallInt(i int64) Value {
	return Value(nanBits | tagInt | (uint64(i) & payloadMask))
}

// FromBool boxes a boolean.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromRef boxes an object handle.
func FromRef(r Ref) Value {
	return Value(nanBits | tagRef | (uint64(r) & payloadMask))
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsFloat returns true if v is a float64: any value that is not one of our
// tagged quiet NaNs, including infinities and "real" NaNs.
func (v Value) IsFloat() bool {
	bits := uint64(v)
	if (bits & nanBits) != nanBits {
		return true
	}
	return bits&tagMask == 0
}

// IsSmallInt returns true if v is a boxed integer.
func (v Value) IsSmallInt() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagInt)
}

// IsRef returns true if v is an object handle.
func (v Value) IsRef() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagRef)
}

// IsNil returns true if v is the nil value.
func (v Value) IsNil() bool { return v == Nil }

// IsBool returns true if v is true or false.
func (v Value) IsBool() bool { return v == True || v == False }

// ---------------------------------------------------------------------------
// Extraction
// ---------------------------------------------------------------------------

// Float returns the float64 payload. Only valid when IsFloat.
func (v Value) Float() float64 {
	return math.Float64frombits(uint64(v))
}

// SmallInt returns the sign-extended integer payload. Only valid when
// IsSmallInt.
func (v Value) SmallInt() int64 {
	payload := uint64(v) & payloadMask
	if payload&intSignBit != 0 {
		payload |= intSignExtend
	}
	return int64(payload)
}

// Bool returns the boolean payload. Only valid when IsBool.
func (v Value) Bool() bool { return v == True }

// Ref returns the object handle payload. Only valid when IsRef.
func (v Value) Ref() Ref {
	return Ref(uint64(v) & payloadMask)
}
