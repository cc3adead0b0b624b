package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nebula-lang/nebula/pkg/bytecode"
	"github.com/nebula-lang/nebula/pkg/diag"
)

// callBuiltinProgram assembles "builtin(args...)" through the global-slot
// call path and returns the result.
func callBuiltinProgram(t *testing.T, cfg Config, slot int, args ...bytecode.Const) (Value, *VM, error) {
	t.Helper()
	c := bytecode.NewChunk()
	c.EmitWithOperand(bytecode.OpLoadGlobal, 1, byte(slot))
	for _, a := range args {
		c.EmitConstant(a, 1)
	}
	c.EmitWithOperand(bytecode.OpCall, 1, byte(len(args)))
	c.Emit(bytecode.OpReturn, 1)
	vm := New(cfg)
	v, err := vm.Run(testProgram(c))
	return v, vm, err
}

func TestBuiltinSlotOrder(t *testing.T) {
	want := []string{
		"log", "typeof", "sqrt", "abs", "len", "floor", "ceil", "round",
		"pow", "sin", "cos", "tan", "exp", "ln", "get", "rnd", "dbg",
		"now", "sleep", "str", "num",
	}
	s := StandardBuiltins()
	if s.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", s.Len(), len(want))
	}
	for i, name := range want {
		if s.At(i).Name != name {
			t.Errorf("slot %d = %q, want %q", i, s.At(i).Name, name)
		}
		if idx, ok := s.Index(name); !ok || idx != i {
			t.Errorf("Index(%q) = %d, %v", name, idx, ok)
		}
	}
	if s.At(100) != nil {
		t.Error("At out of range should be nil")
	}
	if _, ok := s.Index("nope"); ok {
		t.Error("Index of unknown name should report false")
	}
}

func TestLogJoinsAndNewlines(t *testing.T) {
	var out bytes.Buffer
	v, _, err := callBuiltinProgram(t, Config{Stdout: &out}, 0,
		bytecode.StringConst("hi"), bytecode.IntConst(42), bytecode.BoolConst(true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != Nil {
		t.Error("log should return nil")
	}
	if got := out.String(); got != "hi 42 yes\n" {
		t.Errorf("output = %q, want %q", got, "hi 42 yes\n")
	}
}

func TestLogNoArgs(t *testing.T) {
	var out bytes.Buffer
	_, _, err := callBuiltinProgram(t, Config{Stdout: &out}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out.String(); got != "\n" {
		t.Errorf("output = %q, want bare newline", got)
	}
}

func TestTypeof(t *testing.T) {
	cases := []struct {
		arg  bytecode.Const
		want string
	}{
		{bytecode.NilConst(), "nil"},
		{bytecode.BoolConst(true), "bool"},
		{bytecode.FloatConst(1.5), "nb"},
		{bytecode.IntConst(3), "int"},
		{bytecode.StringConst("w"), "wrd"},
	}
	for _, tc := range cases {
		v, vm, err := callBuiltinProgram(t, Config{}, 1, tc.arg)
		if err != nil {
			t.Fatalf("typeof error: %v", err)
		}
		if got := vm.Format(v); got != tc.want {
			t.Errorf("typeof = %q, want %q", got, tc.want)
		}
	}
}

func TestTypeofFunction(t *testing.T) {
	f := makeFunction("f", 0, func(c *bytecode.Chunk) {
		c.Emit(bytecode.OpPushNil, 1)
		c.Emit(bytecode.OpReturn, 1)
	})
	main := bytecode.NewChunk()
	main.EmitWithOperand(bytecode.OpLoadGlobal, 1, 1) // typeof
	main.EmitWithOperand(bytecode.OpClosure, 1, 0)
	main.EmitWithOperand(bytecode.OpCall, 1, 1)
	main.Emit(bytecode.OpReturn, 1)

	vm := New(Config{})
	v, err := vm.Run(testProgram(main, f))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := vm.Format(v); got != "fn" {
		t.Errorf("typeof fn = %q", got)
	}
}

func TestAbsKeepsIntegers(t *testing.T) {
	v, vm, err := callBuiltinProgram(t, Config{}, 3, bytecode.IntConst(-7))
	wantValue(t, v, vm, err, Integer(7))

	v, vm, err = callBuiltinProgram(t, Config{}, 3, bytecode.FloatConst(-2.5))
	wantValue(t, v, vm, err, Number(2.5))

	_, _, err = callBuiltinProgram(t, Config{}, 3, bytecode.StringConst("x"))
	wantError(t, err, diag.ErrNotANumber, "abs")
}

func TestRoundingBuiltinsReturnIntegers(t *testing.T) {
	cases := []struct {
		slot int
		arg  float64
		want int64
	}{
		{5, 2.7, 2},   // floor
		{5, -2.1, -3}, // floor
		{6, 2.1, 3},   // ceil
		{6, -2.9, -2}, // ceil
		{7, 2.5, 3},   // round (half away from zero)
		{7, -2.5, -3}, // round
		{7, 2.4, 2},   // round
	}
	for _, tc := range cases {
		v, vm, err := callBuiltinProgram(t, Config{}, tc.slot, bytecode.FloatConst(tc.arg))
		wantValue(t, v, vm, err, Integer(tc.want))
	}
}

func TestMathBuiltins(t *testing.T) {
	v, vm, err := callBuiltinProgram(t, Config{}, 2, bytecode.FloatConst(2.25)) // sqrt
	wantValue(t, v, vm, err, Number(1.5))

	v, vm, err = callBuiltinProgram(t, Config{}, 8, // pow
		bytecode.IntConst(2), bytecode.IntConst(8))
	wantValue(t, v, vm, err, Number(256))

	v, vm, err = callBuiltinProgram(t, Config{}, 9, bytecode.FloatConst(0)) // sin
	wantValue(t, v, vm, err, Number(0))

	v, vm, err = callBuiltinProgram(t, Config{}, 12, bytecode.FloatConst(0)) // exp
	wantValue(t, v, vm, err, Number(1))

	v, vm, err = callBuiltinProgram(t, Config{}, 13, bytecode.FloatConst(1)) // ln
	wantValue(t, v, vm, err, Number(0))
}

func TestLenBuiltin(t *testing.T) {
	v, vm, err := callBuiltinProgram(t, Config{}, 4, bytecode.StringConst("héllo"))
	wantValue(t, v, vm, err, Integer(6)) // bytes, not runes

	_, _, err = callBuiltinProgram(t, Config{}, 4, bytecode.IntConst(5))
	wantError(t, err, diag.ErrTypeMismatch, "len")
}

func TestGetReadsLine(t *testing.T) {
	v, vm, err := callBuiltinProgram(t, Config{Stdin: strings.NewReader("  hello  \nrest")}, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := vm.Format(v); got != "hello" {
		t.Errorf("get() = %q, want trimmed hello", got)
	}
}

func TestGetAtEOF(t *testing.T) {
	v, vm, err := callBuiltinProgram(t, Config{Stdin: strings.NewReader("")}, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := vm.Format(v); got != "" {
		t.Errorf("get() at EOF = %q, want empty string", got)
	}
}

func TestRndRange(t *testing.T) {
	for i := 0; i < 4; i++ {
		v, _, err := callBuiltinProgram(t, Config{}, 15)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !v.IsNumber() || v.AsNumber() < 0 || v.AsNumber() >= 1 {
			t.Errorf("rnd() = %v, want [0,1)", v.AsNumber())
		}
	}
}

func TestNowIsEpochMillis(t *testing.T) {
	v, _, err := callBuiltinProgram(t, Config{}, 17)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Any moment after 2020 is > 1.5e12 ms.
	if !v.IsNumber() || v.AsNumber() < 1.5e12 {
		t.Errorf("now() = %v, want epoch millis", v.AsNumber())
	}
}

func TestSleepZero(t *testing.T) {
	v, _, err := callBuiltinProgram(t, Config{}, 18, bytecode.IntConst(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != Nil {
		t.Error("sleep should return nil")
	}
}

func TestStrRendersDisplayForm(t *testing.T) {
	cases := []struct {
		arg  bytecode.Const
		want string
	}{
		{bytecode.IntConst(42), "42"},
		{bytecode.FloatConst(2.5), "2.5"},
		{bytecode.BoolConst(true), "yes"},
		{bytecode.NilConst(), "nil"},
		{bytecode.StringConst("already"), "already"},
	}
	for _, tc := range cases {
		v, vm, err := callBuiltinProgram(t, Config{}, 19, tc.arg)
		if err != nil {
			t.Fatalf("str error: %v", err)
		}
		if got := vm.Format(v); got != tc.want || !v.IsPtr() {
			t.Errorf("str = %q (ptr=%v), want %q", got, v.IsPtr(), tc.want)
		}
	}
}

func TestNumConversions(t *testing.T) {
	v, vm, err := callBuiltinProgram(t, Config{}, 20, bytecode.StringConst("3.5"))
	wantValue(t, v, vm, err, Number(3.5))

	// Numbers pass through unchanged, keeping their kind.
	v, vm, err = callBuiltinProgram(t, Config{}, 20, bytecode.IntConst(42))
	wantValue(t, v, vm, err, Integer(42))

	v, vm, err = callBuiltinProgram(t, Config{}, 20, bytecode.BoolConst(true))
	wantValue(t, v, vm, err, Number(1))

	v, vm, err = callBuiltinProgram(t, Config{}, 20, bytecode.BoolConst(false))
	wantValue(t, v, vm, err, Number(0))

	_, _, err = callBuiltinProgram(t, Config{}, 20, bytecode.StringConst("not a number"))
	wantError(t, err, diag.ErrNotANumber, "")

	_, _, err = callBuiltinProgram(t, Config{}, 20, bytecode.NilConst())
	wantError(t, err, diag.ErrNotANumber, "")
}

func TestDbgReturnsNil(t *testing.T) {
	v, _, err := callBuiltinProgram(t, Config{}, 16, bytecode.StringConst("probe"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != Nil {
		t.Error("dbg should return nil")
	}
}

func TestVariadicBuiltinsSkipArityCheck(t *testing.T) {
	var out bytes.Buffer
	for _, n := range []int{0, 1, 5} {
		args := make([]bytecode.Const, n)
		for i := range args {
			args[i] = bytecode.IntConst(int64(i))
		}
		if _, _, err := callBuiltinProgram(t, Config{Stdout: &out}, 0, args...); err != nil {
			t.Errorf("log with %d args: %v", n, err)
		}
	}
}

func TestBuiltinSlotsAreRebindable(t *testing.T) {
	// Overwriting slot 0 makes "log" no longer reach the builtin.
	c := bytecode.NewChunk()
	c.EmitConstant(bytecode.IntConst(1), 1)
	c.EmitWithOperand(bytecode.OpStoreGlobal, 1, 0)
	c.Emit(bytecode.OpPop, 1)
	c.EmitWithOperand(bytecode.OpLoadGlobal, 1, 0)
	c.EmitWithOperand(bytecode.OpCall, 1, 0)

	vm := New(Config{})
	_, err := vm.Run(testProgram(c))
	wantError(t, err, diag.ErrNotCallable, "")
}
