package vm

import (
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// NaN-boxing round trips
// ---------------------------------------------------------------------------

func TestNumberRoundTrip(t *testing.T) {
	cases := []float64{0, 1, -1, 3.14159, 1e300, -1e300, 0.5, math.Inf(1), math.Inf(-1)}
	for _, f := range cases {
		v := Number(f)
		if !v.IsNumber() {
			t.Errorf("Number(%v).IsNumber() = false", f)
		}
		if got := v.AsNumber(); got != f {
			t.Errorf("Number(%v).AsNumber() = %v", f, got)
		}
	}
}

func TestNumberNaN(t *testing.T) {
	v := Number(math.NaN())
	if !v.IsNumber() {
		t.Fatal("NaN payload should still be a number")
	}
	if !math.IsNaN(v.AsNumber()) {
		t.Errorf("AsNumber() = %v, want NaN", v.AsNumber())
	}
	// A real NaN must never collide with the tagged singletons.
	if v == Nil || v == True || v == False {
		t.Error("NaN collides with a singleton tag")
	}
}

func TestIntegerRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 42, -42, 1 << 40, -(1 << 40), (1 << 47) - 1, -(1 << 47)}
	for _, n := range cases {
		v := Integer(n)
		if !v.IsInteger() {
			t.Errorf("Integer(%d).IsInteger() = false", n)
		}
		if got := v.AsInteger(); got != n {
			t.Errorf("Integer(%d).AsInteger() = %d", n, got)
		}
	}
}

func TestIntegerWraps48Bits(t *testing.T) {
	// Values beyond 48 bits wrap through the payload mask.
	v := Integer(1 << 47) // most negative 48-bit value after sign extension
	if got := v.AsInteger(); got != -(1 << 47) {
		t.Errorf("Integer(1<<47).AsInteger() = %d, want %d", got, -(int64(1) << 47))
	}
}

func TestBooleanAndNil(t *testing.T) {
	if Boolean(true) != True || Boolean(false) != False {
		t.Error("Boolean() does not map to the singletons")
	}
	if !True.IsBool() || !False.IsBool() || !Nil.IsNil() {
		t.Error("singleton predicates broken")
	}
	if True.AsBool() != true || False.AsBool() != false {
		t.Error("AsBool() broken")
	}
}

func TestPredicatesExclusive(t *testing.T) {
	h := newHeap()
	values := []Value{
		Nil, True, False,
		Number(1.5), Number(0),
		Integer(7), Integer(0),
		h.AllocString("s"),
		h.AllocList(nil),
	}
	for _, v := range values {
		n := 0
		if v.IsNil() {
			n++
		}
		if v.IsBool() {
			n++
		}
		if v.IsNumber() {
			n++
		}
		if v.IsInteger() {
			n++
		}
		if v.IsPtr() {
			n++
		}
		if n != 1 {
			t.Errorf("value %#x matches %d predicates, want exactly 1", uint64(v), n)
		}
	}
}

func TestAsNumericBridgesIntAndFloat(t *testing.T) {
	if Integer(5).AsNumeric() != 5.0 {
		t.Error("AsNumeric() on integer")
	}
	if Number(2.5).AsNumeric() != 2.5 {
		t.Error("AsNumeric() on float")
	}
	if !Integer(5).IsNumeric() || !Number(2.5).IsNumeric() || Nil.IsNumeric() {
		t.Error("IsNumeric() classification")
	}
}

// ---------------------------------------------------------------------------
// Truthiness
// ---------------------------------------------------------------------------

func TestTruthiness(t *testing.T) {
	h := newHeap()
	cases := []struct {
		v    Value
		want bool
	}{
		{Nil, false},
		{False, false},
		{True, true},
		{Number(0), false},
		{Number(0.1), true},
		{Integer(0), false},
		{Integer(-3), true},
		{h.AllocString(""), true}, // heap values are always truthy
		{h.AllocString("x"), true},
		{h.AllocList(nil), true},
		{h.AllocMap(NewMapObject()), true},
	}
	for _, tc := range cases {
		if got := tc.v.IsTruthy(); got != tc.want {
			t.Errorf("IsTruthy(%s) = %v, want %v", h.Format(tc.v), got, tc.want)
		}
		if tc.v.IsFalsy() == tc.want {
			t.Errorf("IsFalsy(%s) should be the negation", h.Format(tc.v))
		}
	}
}
