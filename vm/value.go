package vm

import "math"

// Value represents a Nebula value using NaN-boxing.
//
// All values are 64-bit words. A word whose bits form anything other
// than a quiet NaN is a float64. Non-float values live in the quiet-NaN
// space, distinguished by tag bits above a 48-bit payload.
//
// Encoding scheme:
//   - Number: native IEEE 754 double (anything that is not a quiet NaN)
//   - Nil / False / True: quiet NaN + singleton tag
//   - Integer: quiet NaN + tagInt + 48-bit signed payload
//   - Heap value: quiet NaN + tagPtr + 48-bit handle into the VM heap
type Value uint64

// NaN-boxing constants
const (
	// Quiet NaN prefix with two mantissa bits set, so tagged words can
	// never collide with an ordinary float NaN or infinity.
	qNaN uint64 = 0x7FFC000000000000

	tagNil   uint64 = 0x0001 << 48
	tagFalse uint64 = 0x0002 << 48
	tagTrue  uint64 = 0x0003 << 48
	tagInt   uint64 = 0x0004 << 48
	tagPtr   uint64 = 0x0005 << 48

	// Payload mask: 48 bits for integer or handle
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	// Sign bit for 48-bit integer sign extension
	intSignBit uint64 = 0x0000800000000000

	intSignExtend uint64 = 0xFFFF000000000000
)

// Singleton values
const (
	Nil   Value = Value(qNaN | tagNil)
	False Value = Value(qNaN | tagFalse)
	True  Value = Value(qNaN | tagTrue)
)

// Integer range (48-bit signed payload)
const (
	MaxInteger int64 = (1 << 47) - 1
	MinInteger int64 = -(1 << 47)
)

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Number creates a float value from its IEEE 754 bits.
func Number(f float64) Value {
	return Value(math.Float64bits(f))
}

// Integer creates an integer value. The payload is the low 48 bits of
// n in two's complement; values outside the 48-bit range wrap.
func Integer(n int64) Value {
	return Value(qNaN | tagInt | (uint64(n) & payloadMask))
}

// Boolean creates True or False.
func Boolean(b bool) Value {
	if b {
		return True
	}
	return False
}

// fromHandle creates a heap value from a handle.
func fromHandle(h Handle) Value {
	return Value(qNaN | tagPtr | (uint64(h) & payloadMask))
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsNumber reports whether v is a float. Any word outside the quiet-NaN
// space is a float, including infinities and real NaNs.
func (v Value) IsNumber() bool {
	return (uint64(v) & qNaN) != qNaN
}

// IsInteger reports whether v is a 48-bit integer. The ptr tag shares
// the int bit, so it must be explicitly excluded.
func (v Value) IsInteger() bool {
	bits := uint64(v)
	return (bits&(qNaN|tagInt)) == (qNaN|tagInt) && (bits&tagPtr) != tagPtr
}

// IsPtr reports whether v holds a heap handle.
func (v Value) IsPtr() bool {
	return (uint64(v) & (qNaN | tagPtr)) == (qNaN | tagPtr)
}

// IsNil reports whether v is the nil value.
func (v Value) IsNil() bool {
	return v == Nil
}

// IsBool reports whether v is True or False.
func (v Value) IsBool() bool {
	return v == True || v == False
}

// IsNumeric reports whether v is a float or an integer.
func (v Value) IsNumeric() bool {
	return v.IsNumber() || v.IsInteger()
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// AsNumber returns v's bits as a float64.
func (v Value) AsNumber() float64 {
	return math.Float64frombits(uint64(v))
}

// AsInteger returns the 48-bit payload sign-extended to an int64.
func (v Value) AsInteger() int64 {
	payload := uint64(v) & payloadMask
	if (payload & intSignBit) != 0 {
		payload |= intSignExtend
	}
	return int64(payload)
}

// AsNumeric returns v as a float64: floats directly, integers
// converted. Non-numeric values yield 0.
func (v Value) AsNumeric() float64 {
	if v.IsNumber() {
		return v.AsNumber()
	}
	if v.IsInteger() {
		return float64(v.AsInteger())
	}
	return 0
}

// AsBool returns v as a bool; anything but True is false.
func (v Value) AsBool() bool {
	return v == True
}

// handle returns the heap handle encoded in v.
func (v Value) handle() Handle {
	return Handle(uint64(v) & payloadMask)
}

// ---------------------------------------------------------------------------
// Truthiness
// ---------------------------------------------------------------------------

// IsTruthy reports whether v counts as true in conditionals: nil and
// false are falsy, booleans are themselves, numerics compare against
// zero, and every heap value is truthy.
func (v Value) IsTruthy() bool {
	switch {
	case v == Nil || v == False:
		return false
	case v == True:
		return true
	case v.IsNumber():
		return v.AsNumber() != 0.0
	case v.IsInteger():
		return v.AsInteger() != 0
	default:
		return true
	}
}

// IsFalsy reports whether v counts as false in conditionals.
func (v Value) IsFalsy() bool {
	return !v.IsTruthy()
}
