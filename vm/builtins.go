package vm

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nebula-lang/nebula/pkg/diag"
)

// Builtin is one native function. Arity is checked by the VM before Fn runs
// unless Variadic is set, so Fn can assume len(args) == Arity.
type Builtin struct {
	Name     string
	Arity    int
	Variadic bool
	Fn       func(vm *VM, args []Value) (Value, error)
}

// BuiltinSet is the ordered builtin registry. The entry order is the
// global-slot contract: entry i occupies global slot i, and user globals
// start right after the last entry. The compiler seeds its global table
// from the same set, so both sides agree on slot numbers by construction.
type BuiltinSet struct {
	entries []Builtin
	byName  map[string]int
}

// NewBuiltinSet builds a set from entries. Order is preserved.
func NewBuiltinSet(entries []Builtin) *BuiltinSet {
	s := &BuiltinSet{
		entries: entries,
		byName:  make(map[string]int, len(entries)),
	}
	for i, b := range entries {
		s.byName[b.Name] = i
	}
	return s
}

// Len returns the number of builtins.
func (s *BuiltinSet) Len() int {
	return len(s.entries)
}

// At returns the builtin at table index i, or nil when out of range.
func (s *BuiltinSet) At(i int) *Builtin {
	if i < 0 || i >= len(s.entries) {
		return nil
	}
	return &s.entries[i]
}

// Index looks up a builtin's table index by name.
func (s *BuiltinSet) Index(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// Names returns the builtin names in slot order.
func (s *BuiltinSet) Names() []string {
	names := make([]string, len(s.entries))
	for i, b := range s.entries {
		names[i] = b.Name
	}
	return names
}

// numericArg coerces one argument to float64 or fails with E031.
func numericArg(name string, v Value) (float64, error) {
	if !v.IsNumeric() {
		return 0, diag.New(diag.ErrNotANumber, name)
	}
	return v.AsNumeric(), nil
}

// mathBuiltin wraps a float->float function as a 1-argument builtin.
func mathBuiltin(name string, f func(float64) float64) Builtin {
	return Builtin{Name: name, Arity: 1, Fn: func(vm *VM, args []Value) (Value, error) {
		n, err := numericArg(name, args[0])
		if err != nil {
			return Nil, err
		}
		return Number(f(n)), nil
	}}
}

// intMathBuiltin is mathBuiltin with the result truncated to an integer
// value (floor, ceil, round).
func intMathBuiltin(name string, f func(float64) float64) Builtin {
	return Builtin{Name: name, Arity: 1, Fn: func(vm *VM, args []Value) (Value, error) {
		n, err := numericArg(name, args[0])
		if err != nil {
			return Nil, err
		}
		return Integer(int64(f(n))), nil
	}}
}

// StandardBuiltins returns the default builtin set. The order here fixes
// the global slots 0..20.
func StandardBuiltins() *BuiltinSet {
	return NewBuiltinSet([]Builtin{
		{Name: "log", Variadic: true, Fn: func(vm *VM, args []Value) (Value, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = vm.heap.Format(a)
			}
			fmt.Fprintln(vm.stdout, strings.Join(parts, " "))
			return Nil, nil
		}},
		{Name: "typeof", Arity: 1, Fn: func(vm *VM, args []Value) (Value, error) {
			return vm.heap.Intern(vm.heap.TypeName(args[0])), nil
		}},
		mathBuiltin("sqrt", math.Sqrt),
		{Name: "abs", Arity: 1, Fn: func(vm *VM, args []Value) (Value, error) {
			switch {
			case args[0].IsInteger():
				n := args[0].AsInteger()
				if n < 0 {
					n = -n
				}
				return Integer(n), nil
			case args[0].IsNumber():
				return Number(math.Abs(args[0].AsNumber())), nil
			default:
				return Nil, diag.New(diag.ErrNotANumber, "abs")
			}
		}},
		{Name: "len", Arity: 1, Fn: func(vm *VM, args []Value) (Value, error) {
			obj := vm.heap.object(args[0])
			if obj == nil {
				return Nil, diag.New(diag.ErrTypeMismatch, "len")
			}
			switch obj.Kind {
			case KindString:
				return Integer(int64(len(obj.Str))), nil
			case KindList:
				return Integer(int64(len(obj.Elems))), nil
			case KindMap:
				return Integer(int64(obj.Map.Len())), nil
			default:
				return Nil, diag.New(diag.ErrTypeMismatch, "len")
			}
		}},
		intMathBuiltin("floor", math.Floor),
		intMathBuiltin("ceil", math.Ceil),
		intMathBuiltin("round", math.Round),
		{Name: "pow", Arity: 2, Fn: func(vm *VM, args []Value) (Value, error) {
			base, err := numericArg("pow", args[0])
			if err != nil {
				return Nil, err
			}
			exp, err := numericArg("pow", args[1])
			if err != nil {
				return Nil, err
			}
			return Number(math.Pow(base, exp)), nil
		}},
		mathBuiltin("sin", math.Sin),
		mathBuiltin("cos", math.Cos),
		mathBuiltin("tan", math.Tan),
		mathBuiltin("exp", math.Exp),
		mathBuiltin("ln", math.Log),
		{Name: "get", Arity: 0, Fn: func(vm *VM, args []Value) (Value, error) {
			line, err := vm.stdin.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return Nil, diag.New(diag.ErrIOFailed, err.Error())
			}
			return vm.heap.AllocString(strings.TrimSpace(line)), nil
		}},
		{Name: "rnd", Arity: 0, Fn: func(vm *VM, args []Value) (Value, error) {
			return Number(rand.Float64()), nil
		}},
		{Name: "dbg", Variadic: true, Fn: func(vm *VM, args []Value) (Value, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = vm.heap.Format(a)
			}
			fmt.Fprintln(os.Stderr, "[dbg] "+strings.Join(parts, " "))
			return Nil, nil
		}},
		{Name: "now", Arity: 0, Fn: func(vm *VM, args []Value) (Value, error) {
			return Number(float64(time.Now().UnixMilli())), nil
		}},
		{Name: "sleep", Arity: 1, Fn: func(vm *VM, args []Value) (Value, error) {
			ms, err := numericArg("sleep", args[0])
			if err != nil {
				return Nil, err
			}
			time.Sleep(time.Duration(ms * float64(time.Millisecond)))
			return Nil, nil
		}},
		{Name: "str", Arity: 1, Fn: func(vm *VM, args []Value) (Value, error) {
			return vm.heap.AllocString(vm.heap.Format(args[0])), nil
		}},
		{Name: "num", Arity: 1, Fn: func(vm *VM, args []Value) (Value, error) {
			v := args[0]
			switch {
			case v.IsNumber() || v.IsInteger():
				return v, nil
			case v.IsBool():
				if v.AsBool() {
					return Number(1), nil
				}
				return Number(0), nil
			default:
				if s, ok := vm.heap.stringContent(v); ok {
					f, err := strconv.ParseFloat(s, 64)
					if err != nil {
						return Nil, diag.New(diag.ErrNotANumber, s)
					}
					return Number(f), nil
				}
				return Nil, diag.New(diag.ErrNotANumber, "num")
			}
		}},
	})
}
