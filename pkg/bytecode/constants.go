package bytecode

import (
	"math"
	"strconv"
)

// FloatEpsilon is the tolerance used when comparing float constants and
// runtime numbers. It matches IEEE-754 double machine epsilon.
const FloatEpsilon = 2.220446049250313e-16

// ConstKind discriminates constant pool entries.
type ConstKind uint8

const (
	ConstNil ConstKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstString
)

// Const is a constant pool entry. The zero value is the nil constant.
type Const struct {
	Kind ConstKind `cbor:"k"`
	Bool bool      `cbor:"b,omitempty"`
	Int  int64     `cbor:"i,omitempty"`
	Num  float64   `cbor:"n,omitempty"`
	Str  string    `cbor:"s,omitempty"`
}

func NilConst() Const            { return Const{Kind: ConstNil} }
func BoolConst(b bool) Const     { return Const{Kind: ConstBool, Bool: b} }
func IntConst(i int64) Const     { return Const{Kind: ConstInt, Int: i} }
func FloatConst(f float64) Const { return Const{Kind: ConstFloat, Num: f} }
func StringConst(s string) Const { return Const{Kind: ConstString, Str: s} }

// Equal reports whether two constants are interchangeable in the pool.
// Floats compare within FloatEpsilon; everything else compares exactly.
func (c Const) Equal(o Const) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ConstNil:
		return true
	case ConstBool:
		return c.Bool == o.Bool
	case ConstInt:
		return c.Int == o.Int
	case ConstFloat:
		return math.Abs(c.Num-o.Num) < FloatEpsilon
	case ConstString:
		return c.Str == o.Str
	}
	return false
}

// String renders the constant for disassembly listings.
func (c Const) String() string {
	switch c.Kind {
	case ConstNil:
		return "nil"
	case ConstBool:
		if c.Bool {
			return "yes"
		}
		return "no"
	case ConstInt:
		return strconv.FormatInt(c.Int, 10)
	case ConstFloat:
		return strconv.FormatFloat(c.Num, 'g', -1, 64)
	case ConstString:
		return strconv.Quote(c.Str)
	}
	return "?"
}
