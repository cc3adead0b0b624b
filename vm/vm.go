package vm

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/tliron/commonlog"

	"github.com/nebula-lang/nebula/pkg/bytecode"
	"github.com/nebula-lang/nebula/pkg/diag"
)

// Default execution limits. A zero Config field falls back to these.
const (
	DefaultStackSize     = 256
	DefaultMaxFrames     = 64
	DefaultMaxGlobals    = 256
	DefaultMaxIterations = 1_000_000
)

// epsilon is the IEEE 754 double machine epsilon. Two numerics closer
// than this compare equal.
const epsilon = 2.220446049250313e-16

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// Config tunes a VM instance. Zero-valued limits take the defaults;
// nil Stdout/Stdin take os.Stdout/os.Stdin; a nil Builtins takes
// StandardBuiltins.
type Config struct {
	StackSize     int
	MaxFrames     int
	MaxGlobals    int
	MaxIterations int
	Stdout        io.Writer
	Stdin         io.Reader
	Builtins      *BuiltinSet
	Trace         bool
}

// DefaultConfig returns the default limits with standard streams.
func DefaultConfig() Config {
	return Config{
		StackSize:     DefaultStackSize,
		MaxFrames:     DefaultMaxFrames,
		MaxGlobals:    DefaultMaxGlobals,
		MaxIterations: DefaultMaxIterations,
	}
}

func (c Config) normalized() Config {
	if c.StackSize <= 0 {
		c.StackSize = DefaultStackSize
	}
	if c.MaxFrames <= 0 {
		c.MaxFrames = DefaultMaxFrames
	}
	if c.MaxGlobals <= 0 {
		c.MaxGlobals = DefaultMaxGlobals
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stdin == nil {
		c.Stdin = os.Stdin
	}
	if c.Builtins == nil {
		c.Builtins = StandardBuiltins()
	}
	return c
}

// ---------------------------------------------------------------------------
// frame: one suspended caller
// ---------------------------------------------------------------------------

// frame saves a caller while a callee runs. The executing frame lives in
// the VM fields (chunk, ip, base); Call pushes those here and Return
// restores them.
type frame struct {
	chunk *bytecode.Chunk
	retIP int
	base  int
}

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM executes compiled programs. One dispatch loop runs both top-level
// and function code; calls push a frame and continue in the same loop.
//
// A VM is stateful across Run calls: globals and the heap persist, which
// is what makes the REPL work. The stack, frames, and iteration budget
// reset on every Run.
type VM struct {
	cfg Config
	log commonlog.Logger

	stack []Value
	sp    int

	frames []frame

	// Executing frame.
	chunk *bytecode.Chunk
	ip    int
	base  int

	globals     []Value
	globalNames []string
	functions   []*bytecode.Function

	heap     *heap
	builtins *BuiltinSet
	stdout   io.Writer
	stdin    *bufio.Reader

	iterations int
	trace      bool
}

// New creates a VM. Globals 0 through builtins.Len()-1 are seeded with
// the interned builtin-name strings so calling through those slots
// dispatches natively; user globals occupy the slots above.
func New(cfg Config) *VM {
	cfg = cfg.normalized()
	vm := &VM{
		cfg:      cfg,
		log:      commonlog.GetLogger("nebula.vm"),
		stack:    make([]Value, cfg.StackSize),
		frames:   make([]frame, 0, cfg.MaxFrames),
		globals:  make([]Value, cfg.MaxGlobals),
		heap:     newHeap(),
		builtins: cfg.Builtins,
		stdout:   cfg.Stdout,
		stdin:    bufio.NewReader(cfg.Stdin),
		trace:    cfg.Trace,
	}
	for i := range vm.globals {
		vm.globals[i] = Nil
	}
	for i := 0; i < vm.builtins.Len() && i < len(vm.globals); i++ {
		vm.globals[i] = vm.heap.Intern(vm.builtins.At(i).Name)
	}
	return vm
}

// Run executes a program and returns the program result: the value of an
// explicit top-level return, or nil. Globals and heap objects survive
// into the next Run on the same VM.
func (vm *VM) Run(prog *bytecode.Program) (Value, error) {
	if prog == nil || prog.Main == nil {
		return Nil, diag.New(diag.ErrInvalidExpr, "empty program")
	}
	vm.sp = 0
	vm.frames = vm.frames[:0]
	vm.iterations = 0
	vm.functions = prog.Functions
	vm.globalNames = prog.GlobalNames
	vm.chunk = prog.Main
	vm.ip = 0
	vm.base = 0
	vm.log.Debugf("run: %d bytes main, %d functions, %d globals",
		prog.Main.CodeLen(), len(prog.Functions), len(prog.GlobalNames))
	return vm.run()
}

// Format renders a value using the language's display rules.
func (vm *VM) Format(v Value) string {
	return vm.heap.Format(v)
}

// TypeName returns the typeof name for a value.
func (vm *VM) TypeName(v Value) string {
	return vm.heap.TypeName(v)
}

// Global looks up a global by name. Used by the REPL and tests.
func (vm *VM) Global(name string) (Value, bool) {
	for i, n := range vm.globalNames {
		if n == name && i < len(vm.globals) {
			return vm.globals[i], true
		}
	}
	return Nil, false
}

// HeapStats reports live object counts by kind.
func (vm *VM) HeapStats() map[string]int {
	return vm.heap.Stats()
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (vm *VM) push(v Value) error {
	if vm.sp >= len(vm.stack) {
		return diag.New(diag.ErrStackOverflow, "stack")
	}
	vm.stack[vm.sp] = v
	vm.sp++
	return nil
}

func (vm *VM) pop() (Value, error) {
	if vm.sp <= 0 {
		return Nil, diag.New(diag.ErrNilAccess, "empty stack")
	}
	vm.sp--
	return vm.stack[vm.sp], nil
}

func (vm *VM) peek(distance int) (Value, error) {
	if vm.sp <= distance {
		return Nil, diag.New(diag.ErrNilAccess, "stack underflow")
	}
	return vm.stack[vm.sp-1-distance], nil
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// fail attaches the source line of the failing instruction to a
// diagnostic error. WithLine keeps an already-set location.
func (vm *VM) fail(err error, pc int) error {
	if de, ok := err.(*diag.Error); ok {
		return de.WithLine(vm.chunk.Line(pc))
	}
	return err
}

// run is the unified dispatch loop. It executes the current frame's
// chunk and keeps going through calls and returns until the outermost
// frame returns or falls off the end of its code.
func (vm *VM) run() (Value, error) {
	for {
		if vm.ip >= vm.chunk.CodeLen() {
			// Falling off the end behaves as "return nil".
			done, result, err := vm.returnValue(Nil)
			if err != nil {
				return Nil, vm.fail(err, vm.ip)
			}
			if done {
				return result, nil
			}
			continue
		}

		pc := vm.ip
		op := bytecode.Opcode(vm.chunk.Code[vm.ip])
		vm.ip++

		if vm.trace {
			vm.traceInstruction(pc, op)
		}

		switch op {

		// --- Constants and stack shuffling -----------------------------

		case bytecode.OpPushConst:
			idx := int(vm.readByte())
			if idx >= vm.chunk.ConstantCount() {
				return Nil, vm.fail(diag.Newf(diag.ErrInvalidExpr, "constant index %d out of bounds", idx), pc)
			}
			if err := vm.push(vm.boxConst(vm.chunk.Constants[idx])); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpPushNil:
			if err := vm.push(Nil); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpPushTrue:
			if err := vm.push(True); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpPushFalse:
			if err := vm.push(False); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpPop:
			if _, err := vm.pop(); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpDup:
			v, err := vm.peek(0)
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			if err := vm.push(v); err != nil {
				return Nil, vm.fail(err, pc)
			}

		// --- Locals ----------------------------------------------------

		case bytecode.OpLoadLocal:
			slot := int(vm.readByte())
			if err := vm.loadLocal(slot); err != nil {
				return Nil, vm.fail(err, pc)
			}
		case bytecode.OpLoadLocal0:
			if err := vm.loadLocal(0); err != nil {
				return Nil, vm.fail(err, pc)
			}
		case bytecode.OpLoadLocal1:
			if err := vm.loadLocal(1); err != nil {
				return Nil, vm.fail(err, pc)
			}
		case bytecode.OpLoadLocal2:
			if err := vm.loadLocal(2); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpStoreLocal:
			slot := int(vm.readByte())
			if err := vm.storeLocal(slot); err != nil {
				return Nil, vm.fail(err, pc)
			}
		case bytecode.OpStoreLocal0:
			if err := vm.storeLocal(0); err != nil {
				return Nil, vm.fail(err, pc)
			}
		case bytecode.OpStoreLocal1:
			if err := vm.storeLocal(1); err != nil {
				return Nil, vm.fail(err, pc)
			}
		case bytecode.OpStoreLocal2:
			if err := vm.storeLocal(2); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpIncLocal:
			slot := int(vm.readByte())
			if err := vm.bumpLocal(slot, 1); err != nil {
				return Nil, vm.fail(err, pc)
			}
		case bytecode.OpDecLocal:
			slot := int(vm.readByte())
			if err := vm.bumpLocal(slot, -1); err != nil {
				return Nil, vm.fail(err, pc)
			}

		// --- Globals ---------------------------------------------------

		case bytecode.OpLoadGlobal:
			idx := int(vm.readByte())
			if idx >= len(vm.globals) {
				return Nil, vm.fail(diag.Newf(diag.ErrNilAccess, "global index %d out of bounds", idx), pc)
			}
			if err := vm.push(vm.globals[idx]); err != nil {
				return Nil, vm.fail(err, pc)
			}
		case bytecode.OpLoadGlobal0, bytecode.OpLoadGlobal1, bytecode.OpLoadGlobal2:
			idx := firstUserGlobal + int(op-bytecode.OpLoadGlobal0)
			if idx >= len(vm.globals) {
				return Nil, vm.fail(diag.Newf(diag.ErrNilAccess, "global index %d out of bounds", idx), pc)
			}
			if err := vm.push(vm.globals[idx]); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpStoreGlobal:
			idx := int(vm.readByte())
			if err := vm.storeGlobal(idx, false); err != nil {
				return Nil, vm.fail(err, pc)
			}
		case bytecode.OpStoreGlobal0, bytecode.OpStoreGlobal1, bytecode.OpStoreGlobal2:
			idx := firstUserGlobal + int(op-bytecode.OpStoreGlobal0)
			if err := vm.storeGlobal(idx, false); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpDefineGlobal:
			idx := int(vm.readByte())
			if err := vm.storeGlobal(idx, true); err != nil {
				return Nil, vm.fail(err, pc)
			}

		// --- Arithmetic ------------------------------------------------

		case bytecode.OpAdd, bytecode.OpAddInt:
			if err := vm.binaryArith(opAdd); err != nil {
				return Nil, vm.fail(err, pc)
			}
		case bytecode.OpSub, bytecode.OpSubInt:
			if err := vm.binaryArith(opSub); err != nil {
				return Nil, vm.fail(err, pc)
			}
		case bytecode.OpMul, bytecode.OpMulInt:
			if err := vm.binaryArith(opMul); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpDiv:
			b, a, err := vm.popNumericPair("/")
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			if b == 0 {
				return Nil, vm.fail(diag.New(diag.ErrDivideByZero, "division by zero"), pc)
			}
			if err := vm.push(Number(a / b)); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpMod:
			b, a, err := vm.popNumericPair("%")
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			if b == 0 {
				return Nil, vm.fail(diag.New(diag.ErrDivideByZero, "modulo by zero"), pc)
			}
			if err := vm.push(Number(math.Mod(a, b))); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpPow:
			b, a, err := vm.popNumericPair("^")
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			if err := vm.push(Number(math.Pow(a, b))); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpNeg:
			v, err := vm.pop()
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			switch {
			case v.IsInteger():
				err = vm.push(Integer(-v.AsInteger()))
			case v.IsNumber():
				err = vm.push(Number(-v.AsNumber()))
			default:
				err = diag.New(diag.ErrNotANumber, "operand of unary -")
			}
			if err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpInc:
			if err := vm.bumpTop(1); err != nil {
				return Nil, vm.fail(err, pc)
			}
		case bytecode.OpDec:
			if err := vm.bumpTop(-1); err != nil {
				return Nil, vm.fail(err, pc)
			}

		// --- Comparison ------------------------------------------------

		case bytecode.OpEq:
			b, errB := vm.pop()
			a, errA := vm.pop()
			if errB != nil || errA != nil {
				return Nil, vm.fail(firstErr(errB, errA), pc)
			}
			if err := vm.push(Boolean(vm.valuesEqual(a, b))); err != nil {
				return Nil, vm.fail(err, pc)
			}
		case bytecode.OpNe:
			b, errB := vm.pop()
			a, errA := vm.pop()
			if errB != nil || errA != nil {
				return Nil, vm.fail(firstErr(errB, errA), pc)
			}
			if err := vm.push(Boolean(!vm.valuesEqual(a, b))); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpLt:
			if err := vm.compare(func(a, b float64) bool { return a < b }); err != nil {
				return Nil, vm.fail(err, pc)
			}
		case bytecode.OpGt:
			if err := vm.compare(func(a, b float64) bool { return a > b }); err != nil {
				return Nil, vm.fail(err, pc)
			}
		case bytecode.OpLe:
			if err := vm.compare(func(a, b float64) bool { return a <= b }); err != nil {
				return Nil, vm.fail(err, pc)
			}
		case bytecode.OpGe:
			if err := vm.compare(func(a, b float64) bool { return a >= b }); err != nil {
				return Nil, vm.fail(err, pc)
			}

		// --- Logic -----------------------------------------------------

		case bytecode.OpNot:
			v, err := vm.pop()
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			if err := vm.push(Boolean(v.IsFalsy())); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpAnd:
			dist := int(vm.readU16())
			v, err := vm.peek(0)
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			if v.IsFalsy() {
				vm.ip += dist
			} else if _, err := vm.pop(); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpOr:
			dist := int(vm.readU16())
			v, err := vm.peek(0)
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			if v.IsTruthy() {
				vm.ip += dist
			} else if _, err := vm.pop(); err != nil {
				return Nil, vm.fail(err, pc)
			}

		// --- Jumps -----------------------------------------------------

		case bytecode.OpJump:
			vm.ip += int(vm.readU16())

		case bytecode.OpJumpIfFalse:
			dist := int(vm.readU16())
			v, err := vm.peek(0)
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			if v.IsFalsy() {
				vm.ip += dist
			}

		case bytecode.OpJumpIfTrue:
			dist := int(vm.readU16())
			v, err := vm.peek(0)
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			if v.IsTruthy() {
				vm.ip += dist
			}

		case bytecode.OpLoop:
			vm.ip -= int(vm.readU16())

		// --- Calls and returns -----------------------------------------

		case bytecode.OpCall:
			argc := int(vm.readByte())
			if err := vm.call(argc); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpCallBuiltin:
			idx := int(vm.readByte())
			argc := int(vm.readByte())
			b := vm.builtins.At(idx)
			if b == nil {
				return Nil, vm.fail(diag.Newf(diag.ErrVarNotFound, "builtin index %d", idx), pc)
			}
			if err := vm.callBuiltin(b, argc, false); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpReturn:
			result, err := vm.pop()
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			done, final, err := vm.returnValue(result)
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			if done {
				return final, nil
			}

		case bytecode.OpClosure:
			idx := int(vm.readByte())
			if idx >= len(vm.functions) {
				return Nil, vm.fail(diag.Newf(diag.ErrInvalidExpr, "invalid function index %d", idx), pc)
			}
			if err := vm.push(vm.heap.AllocFunction(vm.functions[idx])); err != nil {
				return Nil, vm.fail(err, pc)
			}

		// --- Containers ------------------------------------------------

		case bytecode.OpList:
			n := int(vm.readByte())
			if err := vm.makeList(n); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpMap:
			n := int(vm.readByte())
			if err := vm.makeMap(n); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpIndex:
			if err := vm.index(); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpStoreIndex:
			if err := vm.storeIndex(); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpLen:
			v, err := vm.pop()
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			n, err := vm.lengthOf(v)
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			if err := vm.push(Integer(n)); err != nil {
				return Nil, vm.fail(err, pc)
			}

		// --- Iteration -------------------------------------------------

		case bytecode.OpIterInit:
			v, err := vm.pop()
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			it, err := vm.makeIterator(v)
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			if err := vm.push(it); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpIterNext:
			dist := int(vm.readU16())
			if err := vm.iterNext(dist); err != nil {
				return Nil, vm.fail(err, pc)
			}

		case bytecode.OpCheckIterLimit:
			vm.iterations++
			if vm.iterations > vm.cfg.MaxIterations {
				return Nil, vm.fail(diag.Newf(diag.ErrIterationLimit, "iteration limit exceeded (%d)", vm.cfg.MaxIterations), pc)
			}

		case bytecode.OpCheckRecursion:
			if len(vm.frames) >= vm.cfg.MaxFrames {
				return Nil, vm.fail(diag.Newf(diag.ErrStackOverflow, "max %d frames", vm.cfg.MaxFrames), pc)
			}

		// --- Errors ----------------------------------------------------

		case bytecode.OpThrow:
			codeByte := int(vm.readByte())
			v, err := vm.pop()
			if err != nil {
				return Nil, vm.fail(err, pc)
			}
			code := diag.Code(fmt.Sprintf("E%03d", codeByte))
			return Nil, vm.fail(diag.New(code, vm.heap.Format(v)), pc)

		default:
			return Nil, vm.fail(diag.Newf(diag.ErrInvalidExpr, "unknown opcode %d", byte(op)), pc)
		}
	}
}

// firstUserGlobal is the slot the specialized global opcodes address:
// LoadGlobal0 is the first slot after the builtin block.
const firstUserGlobal = 21

// readByte consumes a one-byte operand.
func (vm *VM) readByte() byte {
	if vm.ip >= vm.chunk.CodeLen() {
		return 0
	}
	b := vm.chunk.Code[vm.ip]
	vm.ip++
	return b
}

// readU16 consumes a big-endian two-byte operand.
func (vm *VM) readU16() uint16 {
	u := vm.chunk.ReadU16(vm.ip)
	vm.ip += 2
	return u
}

// boxConst converts a pool constant into a runtime value. Strings go
// through the interner so repeated executions share one heap object.
func (vm *VM) boxConst(c bytecode.Const) Value {
	switch c.Kind {
	case bytecode.ConstNil:
		return Nil
	case bytecode.ConstBool:
		return Boolean(c.Bool)
	case bytecode.ConstInt:
		return Integer(c.Int)
	case bytecode.ConstFloat:
		return Number(c.Num)
	case bytecode.ConstString:
		return vm.heap.Intern(c.Str)
	default:
		return Nil
	}
}

// ---------------------------------------------------------------------------
// Locals and globals
// ---------------------------------------------------------------------------

func (vm *VM) loadLocal(slot int) error {
	at := vm.base + slot
	if at >= vm.sp {
		return diag.Newf(diag.ErrNilAccess, "local slot %d out of frame", slot)
	}
	return vm.push(vm.stack[at])
}

// storeLocal writes the top of stack into a slot, leaving the value in
// place for the statement's trailing Pop.
func (vm *VM) storeLocal(slot int) error {
	v, err := vm.peek(0)
	if err != nil {
		return err
	}
	at := vm.base + slot
	if at >= vm.sp {
		return diag.Newf(diag.ErrNilAccess, "local slot %d out of frame", slot)
	}
	vm.stack[at] = v
	return nil
}

// bumpLocal adds delta to a numeric local in place. Matches the
// Load/Add/Store sequence bit for bit, including the type error.
func (vm *VM) bumpLocal(slot, delta int) error {
	at := vm.base + slot
	if at >= vm.sp {
		return diag.Newf(diag.ErrNilAccess, "local slot %d out of frame", slot)
	}
	v := vm.stack[at]
	switch {
	case v.IsInteger():
		vm.stack[at] = Integer(v.AsInteger() + int64(delta))
	case v.IsNumber():
		vm.stack[at] = Number(v.AsNumber() + float64(delta))
	default:
		return diag.Newf(diag.ErrNotANumber, "operand of %s", incDecName(delta))
	}
	return nil
}

// bumpTop adds delta to the numeric top of stack.
func (vm *VM) bumpTop(delta int) error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	switch {
	case v.IsInteger():
		return vm.push(Integer(v.AsInteger() + int64(delta)))
	case v.IsNumber():
		return vm.push(Number(v.AsNumber() + float64(delta)))
	default:
		return diag.Newf(diag.ErrNotANumber, "operand of %s", incDecName(delta))
	}
}

func incDecName(delta int) string {
	if delta > 0 {
		return "increment"
	}
	return "decrement"
}

// storeGlobal writes to a global slot. Define pops the value;
// plain stores peek, leaving it for the statement's Pop.
func (vm *VM) storeGlobal(idx int, define bool) error {
	if idx >= len(vm.globals) {
		return diag.Newf(diag.ErrNilAccess, "global index %d out of bounds", idx)
	}
	if define {
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.globals[idx] = v
		return nil
	}
	v, err := vm.peek(0)
	if err != nil {
		return err
	}
	vm.globals[idx] = v
	return nil
}

// ---------------------------------------------------------------------------
// Arithmetic and comparison
// ---------------------------------------------------------------------------

type arithOp int

const (
	opAdd arithOp = iota
	opSub
	opMul
)

// binaryArith implements Add/Sub/Mul and their Int-specialized twins:
// integer pairs stay integers (wrapping in 48 bits through the boxing),
// anything else numeric goes through float64.
func (vm *VM) binaryArith(kind arithOp) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	if a.IsInteger() && b.IsInteger() {
		x, y := a.AsInteger(), b.AsInteger()
		switch kind {
		case opAdd:
			return vm.push(Integer(x + y))
		case opSub:
			return vm.push(Integer(x - y))
		default:
			return vm.push(Integer(x * y))
		}
	}
	if !a.IsNumeric() || !b.IsNumeric() {
		return diag.Newf(diag.ErrNotANumber, "operands of %s", [...]string{"+", "-", "*"}[kind])
	}
	x, y := a.AsNumeric(), b.AsNumeric()
	switch kind {
	case opAdd:
		return vm.push(Number(x + y))
	case opSub:
		return vm.push(Number(x - y))
	default:
		return vm.push(Number(x * y))
	}
}

// popNumericPair pops divisor then dividend for /, % and ^.
func (vm *VM) popNumericPair(opName string) (b, a float64, err error) {
	bv, err := vm.pop()
	if err != nil {
		return 0, 0, err
	}
	av, err := vm.pop()
	if err != nil {
		return 0, 0, err
	}
	if !av.IsNumeric() || !bv.IsNumeric() {
		return 0, 0, diag.Newf(diag.ErrNotANumber, "operands of %s", opName)
	}
	return bv.AsNumeric(), av.AsNumeric(), nil
}

func (vm *VM) compare(cmp func(a, b float64) bool) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	if !a.IsNumeric() || !b.IsNumeric() {
		return diag.Newf(diag.ErrTypeMismatch, "comparison needs numbers, got %s and %s",
			vm.heap.TypeName(a), vm.heap.TypeName(b))
	}
	return vm.push(Boolean(cmp(a.AsNumeric(), b.AsNumeric())))
}

// valuesEqual is the == relation: identical bits are equal (covers nil,
// booleans, and shared handles); numerics compare within machine
// epsilon; strings compare by content. Other heap kinds only compare
// equal through handle identity, which the bit check already covered.
func (vm *VM) valuesEqual(a, b Value) bool {
	if a == b {
		return true
	}
	if a.IsNumeric() && b.IsNumeric() {
		return math.Abs(a.AsNumeric()-b.AsNumeric()) < epsilon
	}
	as, aok := vm.heap.stringContent(a)
	bs, bok := vm.heap.stringContent(b)
	if aok && bok {
		return as == bs
	}
	return false
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// call dispatches OpCall: the callee sits under argc arguments. A string
// naming a builtin dispatches natively; a function object pushes a frame.
func (vm *VM) call(argc int) error {
	callee, err := vm.peek(argc)
	if err != nil {
		return err
	}
	obj := vm.heap.object(callee)
	if obj == nil {
		return diag.Newf(diag.ErrNotCallable, "cannot call %s", vm.heap.TypeName(callee))
	}
	switch obj.Kind {
	case KindString:
		if idx, ok := vm.builtins.Index(obj.Str); ok {
			return vm.callBuiltin(vm.builtins.At(idx), argc, true)
		}
		return diag.Newf(diag.ErrNotCallable, "%q is not a function", obj.Str)
	case KindFunction:
		return vm.callFunction(obj.Fn, argc)
	default:
		return diag.Newf(diag.ErrNotCallable, "cannot call %s", vm.heap.TypeName(callee))
	}
}

// callBuiltin runs a native function on the top argc stack values.
// When named is set the callee string sits under the arguments and is
// replaced by the result; CallBuiltin has no callee on the stack.
func (vm *VM) callBuiltin(b *Builtin, argc int, named bool) error {
	if !b.Variadic && argc != b.Arity {
		return diag.Newf(diag.ErrWrongArgCount, "%s: expected %d args, got %d", b.Name, b.Arity, argc)
	}
	if vm.sp < argc {
		return diag.New(diag.ErrNilAccess, "stack underflow")
	}
	args := make([]Value, argc)
	copy(args, vm.stack[vm.sp-argc:vm.sp])
	result, err := b.Fn(vm, args)
	if err != nil {
		return err
	}
	vm.sp -= argc
	if named {
		vm.sp-- // drop the callee string
	}
	return vm.push(result)
}

// callFunction pushes a frame for a compiled function and jumps to its
// chunk. The arguments already sit where the callee's locals begin.
func (vm *VM) callFunction(fn *bytecode.Function, argc int) error {
	if argc != int(fn.Arity) {
		return diag.Newf(diag.ErrWrongArgCount, "%s: expected %d args, got %d", fn.Name, fn.Arity, argc)
	}
	if len(vm.frames) >= vm.cfg.MaxFrames {
		return diag.Newf(diag.ErrStackOverflow, "max %d frames", vm.cfg.MaxFrames)
	}
	vm.frames = append(vm.frames, frame{chunk: vm.chunk, retIP: vm.ip, base: vm.base})
	vm.chunk = fn.Chunk
	vm.ip = 0
	vm.base = vm.sp - argc
	return nil
}

// returnValue unwinds one frame. The callee's window (callee + args +
// locals + temporaries) is discarded and the result takes its place.
// With no caller left the program is done and the result is final.
func (vm *VM) returnValue(result Value) (done bool, final Value, err error) {
	if len(vm.frames) == 0 {
		return true, result, nil
	}
	f := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.sp = vm.base - 1 // drop callee and everything above it
	vm.chunk = f.chunk
	vm.ip = f.retIP
	vm.base = f.base
	return false, Nil, vm.push(result)
}

// ---------------------------------------------------------------------------
// Containers
// ---------------------------------------------------------------------------

func (vm *VM) makeList(n int) error {
	if vm.sp < n {
		return diag.New(diag.ErrNilAccess, "stack underflow")
	}
	elems := make([]Value, n)
	copy(elems, vm.stack[vm.sp-n:vm.sp])
	vm.sp -= n
	return vm.push(vm.heap.AllocList(elems))
}

// makeMap builds a map from n key/value pairs pushed in source order.
// Keys are rendered to their display strings.
func (vm *VM) makeMap(n int) error {
	if vm.sp < 2*n {
		return diag.New(diag.ErrNilAccess, "stack underflow")
	}
	m := NewMapObject()
	start := vm.sp - 2*n
	for i := 0; i < n; i++ {
		key := vm.stack[start+2*i]
		val := vm.stack[start+2*i+1]
		m.Set(vm.heap.Format(key), val)
	}
	vm.sp = start
	return vm.push(vm.heap.AllocMap(m))
}

// index implements container[key].
func (vm *VM) index() error {
	key, err := vm.pop()
	if err != nil {
		return err
	}
	container, err := vm.pop()
	if err != nil {
		return err
	}
	v, err := vm.indexValue(container, key)
	if err != nil {
		return err
	}
	return vm.push(v)
}

func (vm *VM) indexValue(container, key Value) (Value, error) {
	obj := vm.heap.object(container)
	if obj == nil {
		return Nil, diag.Newf(diag.ErrInvalidIndex, "cannot index %s", vm.heap.TypeName(container))
	}
	switch obj.Kind {
	case KindList:
		if !key.IsInteger() {
			return Nil, diag.Newf(diag.ErrInvalidIndex, "list index must be an integer, got %s", vm.heap.TypeName(key))
		}
		i := key.AsInteger()
		if i < 0 || i >= int64(len(obj.Elems)) {
			return Nil, diag.Newf(diag.ErrOutOfBounds, "list index %d out of bounds (len %d)", i, len(obj.Elems))
		}
		return obj.Elems[i], nil
	case KindString:
		if !key.IsInteger() {
			return Nil, diag.Newf(diag.ErrInvalidIndex, "string index must be an integer, got %s", vm.heap.TypeName(key))
		}
		i := key.AsInteger()
		runes := []rune(obj.Str)
		if i < 0 || i >= int64(len(runes)) {
			return Nil, diag.Newf(diag.ErrOutOfBounds, "string index %d out of bounds (len %d)", i, len(runes))
		}
		return vm.heap.Intern(string(runes[i])), nil
	case KindMap:
		k := vm.heap.Format(key)
		v, ok := obj.Map.Get(k)
		if !ok {
			return Nil, diag.Newf(diag.ErrOutOfBounds, "key %q not found", k)
		}
		return v, nil
	default:
		return Nil, diag.Newf(diag.ErrInvalidIndex, "cannot index %s", vm.heap.TypeName(container))
	}
}

// storeIndex implements container[key] = value; the stored value is
// pushed back as the expression result.
func (vm *VM) storeIndex() error {
	value, err := vm.pop()
	if err != nil {
		return err
	}
	key, err := vm.pop()
	if err != nil {
		return err
	}
	container, err := vm.pop()
	if err != nil {
		return err
	}
	obj := vm.heap.object(container)
	if obj == nil {
		return diag.Newf(diag.ErrInvalidIndex, "cannot index %s", vm.heap.TypeName(container))
	}
	switch obj.Kind {
	case KindList:
		if !key.IsInteger() {
			return diag.Newf(diag.ErrInvalidIndex, "list index must be an integer, got %s", vm.heap.TypeName(key))
		}
		i := key.AsInteger()
		if i < 0 || i >= int64(len(obj.Elems)) {
			return diag.Newf(diag.ErrOutOfBounds, "list index %d out of bounds (len %d)", i, len(obj.Elems))
		}
		obj.Elems[i] = value
	case KindMap:
		obj.Map.Set(vm.heap.Format(key), value)
	default:
		return diag.Newf(diag.ErrInvalidIndex, "cannot index %s", vm.heap.TypeName(container))
	}
	return vm.push(value)
}

// lengthOf implements OpLen and the len builtin: strings count bytes.
func (vm *VM) lengthOf(v Value) (int64, error) {
	obj := vm.heap.object(v)
	if obj == nil {
		return 0, diag.Newf(diag.ErrTypeMismatch, "len of %s", vm.heap.TypeName(v))
	}
	switch obj.Kind {
	case KindString:
		return int64(len(obj.Str)), nil
	case KindList:
		return int64(len(obj.Elems)), nil
	case KindMap:
		return int64(obj.Map.Len()), nil
	default:
		return 0, diag.Newf(diag.ErrTypeMismatch, "len of %s", vm.heap.TypeName(v))
	}
}

// ---------------------------------------------------------------------------
// Iteration
// ---------------------------------------------------------------------------

// makeIterator builds the cursor for an each-loop. Lists iterate live
// (appends during the loop are visible); strings yield their runes as
// one-character strings and maps yield their keys, both from a snapshot
// taken here.
func (vm *VM) makeIterator(v Value) (Value, error) {
	obj := vm.heap.object(v)
	if obj == nil {
		return Nil, diag.Newf(diag.ErrNotIterable, "cannot iterate %s", vm.heap.TypeName(v))
	}
	switch obj.Kind {
	case KindList:
		return vm.heap.AllocIterator(&iterator{src: v.handle(), live: true}), nil
	case KindString:
		runes := []rune(obj.Str)
		snapshot := make([]Value, len(runes))
		for i, r := range runes {
			snapshot[i] = vm.heap.Intern(string(r))
		}
		return vm.heap.AllocIterator(&iterator{snapshot: snapshot}), nil
	case KindMap:
		keys := obj.Map.Keys()
		snapshot := make([]Value, len(keys))
		for i, k := range keys {
			snapshot[i] = vm.heap.Intern(k)
		}
		return vm.heap.AllocIterator(&iterator{snapshot: snapshot}), nil
	default:
		return Nil, diag.Newf(diag.ErrNotIterable, "cannot iterate %s", vm.heap.TypeName(v))
	}
}

// iterNext advances the iterator at the top of the stack: pushes the
// next element, or jumps dist forward when exhausted.
func (vm *VM) iterNext(dist int) error {
	v, err := vm.peek(0)
	if err != nil {
		return err
	}
	obj := vm.heap.object(v)
	if obj == nil || obj.Kind != KindIterator {
		return diag.Newf(diag.ErrNotIterable, "expected iterator, got %s", vm.heap.TypeName(v))
	}
	it := obj.Iter
	if it.live {
		src := vm.heap.Get(it.src)
		if src == nil || it.idx >= len(src.Elems) {
			vm.ip += dist
			return nil
		}
		next := src.Elems[it.idx]
		it.idx++
		return vm.push(next)
	}
	if it.idx >= len(it.snapshot) {
		vm.ip += dist
		return nil
	}
	next := it.snapshot[it.idx]
	it.idx++
	return vm.push(next)
}

// ---------------------------------------------------------------------------
// Trace
// ---------------------------------------------------------------------------

// traceInstruction prints one line per executed instruction to stderr.
func (vm *VM) traceInstruction(pc int, op bytecode.Opcode) {
	top := "-"
	if vm.sp > 0 {
		top = vm.heap.Format(vm.stack[vm.sp-1])
	}
	fmt.Fprintf(os.Stderr, "[trace] %04d %-16s sp=%d top=%s\n", pc, op.String(), vm.sp, top)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
