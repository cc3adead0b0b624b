package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into decimal ranges by category; the byte values
// are part of the serialized program format and must not change.
type Opcode byte

const (
	// ========================================================================
	// Stack and constants (0-9)
	// ========================================================================

	OpPushConst Opcode = 0 // Push constant from pool: OpPushConst <index:u8>
	OpPushNil   Opcode = 1 // Push nil
	OpPushTrue  Opcode = 2 // Push true
	OpPushFalse Opcode = 3 // Push false
	OpPop       Opcode = 4 // Pop top of stack
	OpDup       Opcode = 5 // Duplicate top of stack

	// ========================================================================
	// Variables (10-19)
	// ========================================================================

	OpLoadLocal    Opcode = 10 // Push local: OpLoadLocal <slot:u8>
	OpStoreLocal   Opcode = 11 // Store top to local without popping: OpStoreLocal <slot:u8>
	OpLoadUpvalue  Opcode = 12 // Reserved for closure capture (not emitted)
	OpStoreUpvalue Opcode = 13 // Reserved for closure capture (not emitted)
	OpLoadGlobal   Opcode = 14 // Push global: OpLoadGlobal <slot:u8>
	OpStoreGlobal  Opcode = 15 // Store top to global without popping: OpStoreGlobal <slot:u8>
	OpDefineGlobal Opcode = 16 // Pop and define global: OpDefineGlobal <slot:u8>
	OpLoadLocal0   Opcode = 17 // Push local slot 0
	OpLoadLocal1   Opcode = 18 // Push local slot 1
	OpLoadLocal2   Opcode = 19 // Push local slot 2

	// ========================================================================
	// Arithmetic (20-29)
	// ========================================================================

	OpAdd         Opcode = 20 // Pop two, push sum (int+int stays int)
	OpSub         Opcode = 21 // Pop two, push difference
	OpMul         Opcode = 22 // Pop two, push product
	OpDiv         Opcode = 23 // Pop two, push float quotient
	OpMod         Opcode = 24 // Pop two, push float remainder
	OpPow         Opcode = 25 // Pop two, push float power
	OpNeg         Opcode = 26 // Negate top of stack
	OpStoreLocal0 Opcode = 27 // Store top to local slot 0 (no pop)
	OpStoreLocal1 Opcode = 28 // Store top to local slot 1 (no pop)
	OpStoreLocal2 Opcode = 29 // Store top to local slot 2 (no pop)

	// ========================================================================
	// Comparison (30-39)
	// ========================================================================

	OpEq Opcode = 30 // Pop two, push equality
	OpNe Opcode = 31 // Pop two, push inequality
	OpLt Opcode = 32 // Pop two numerics, push a < b
	OpGt Opcode = 33 // Pop two numerics, push a > b
	OpLe Opcode = 34 // Pop two numerics, push a <= b
	OpGe Opcode = 35 // Pop two numerics, push a >= b

	// ========================================================================
	// Logical (40-49)
	// ========================================================================

	OpNot Opcode = 40 // Pop, push logical negation of truthiness
	OpAnd Opcode = 41 // Short-circuit: jump keeping falsy top, else pop: OpAnd <offset:u16>
	OpOr  Opcode = 42 // Short-circuit: jump keeping truthy top, else pop: OpOr <offset:u16>

	// ========================================================================
	// Control flow (50-59)
	// ========================================================================

	OpJump        Opcode = 50 // Unconditional forward jump: OpJump <offset:u16>
	OpJumpIfFalse Opcode = 51 // Jump if top is falsy (peek): OpJumpIfFalse <offset:u16>
	OpJumpIfTrue  Opcode = 52 // Jump if top is truthy (peek): OpJumpIfTrue <offset:u16>
	OpLoop        Opcode = 53 // Backward jump: OpLoop <offset:u16>

	// ========================================================================
	// Calls (60-69)
	// ========================================================================

	OpCall    Opcode = 60 // Call value at stack depth argc: OpCall <argc:u8>
	OpReturn  Opcode = 61 // Return from frame with top of stack (or nil)
	OpClosure Opcode = 62 // Push function object: OpClosure <fn_index:u8>

	// ========================================================================
	// Containers (70-79)
	// ========================================================================

	OpList       Opcode = 70 // Pop n values, push list: OpList <count:u8>
	OpMap        Opcode = 71 // Pop n key/value pairs, push map: OpMap <pairs:u8>
	OpIndex      Opcode = 72 // Pop index and container, push element
	OpStoreIndex Opcode = 73 // Pop value, index, container; store; push value
	OpLen        Opcode = 74 // Pop container, push length

	// ========================================================================
	// Iteration (80-89)
	// ========================================================================

	OpIterInit Opcode = 80 // Pop iterable, push iterator
	OpIterNext Opcode = 81 // Push next element, or jump when exhausted: OpIterNext <offset:u16>

	// ========================================================================
	// Guards (90-99)
	// ========================================================================

	OpCheckIterLimit Opcode = 90 // Count a loop back-edge against the iteration budget
	OpCheckRecursion Opcode = 91 // Fail if the frame stack is at capacity

	// ========================================================================
	// Errors (100-109)
	// ========================================================================

	OpThrow Opcode = 100 // Pop value, raise coded error: OpThrow <code:u8>

	// ========================================================================
	// Specialized variants (110-129)
	// ========================================================================

	OpAddInt   Opcode = 110 // OpAdd with an integer fast path
	OpSubInt   Opcode = 111 // OpSub with an integer fast path
	OpMulInt   Opcode = 112 // OpMul with an integer fast path
	OpIncLocal Opcode = 113 // Increment local in place: OpIncLocal <slot:u8>
	OpDecLocal Opcode = 114 // Decrement local in place: OpDecLocal <slot:u8>
	OpInc      Opcode = 115 // Pop, push value + 1
	OpDec      Opcode = 116 // Pop, push value - 1

	OpLoadGlobal0  Opcode = 120 // Push global slot 21 (first user global)
	OpLoadGlobal1  Opcode = 121 // Push global slot 22
	OpLoadGlobal2  Opcode = 122 // Push global slot 23
	OpStoreGlobal0 Opcode = 123 // Store top to global slot 21 (no pop)
	OpStoreGlobal1 Opcode = 124 // Store top to global slot 22 (no pop)
	OpStoreGlobal2 Opcode = 125 // Store top to global slot 23 (no pop)

	// ========================================================================
	// Builtins (130)
	// ========================================================================

	OpCallBuiltin Opcode = 130 // Direct builtin dispatch: OpCallBuiltin <index:u8> <argc:u8>
)

// OpcodeInfo provides metadata about each opcode for the disassembler,
// the peephole pass, and validation.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // How many values popped from stack (-1 = variable)
	StackPush  int    // How many values pushed to stack
	OperandLen int    // Number of operand bytes following the opcode
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack and constants
	OpPushConst: {"PUSH_CONST", 0, 1, 1},
	OpPushNil:   {"PUSH_NIL", 0, 1, 0},
	OpPushTrue:  {"PUSH_TRUE", 0, 1, 0},
	OpPushFalse: {"PUSH_FALSE", 0, 1, 0},
	OpPop:       {"POP", 1, 0, 0},
	OpDup:       {"DUP", 1, 2, 0},

	// Variables
	OpLoadLocal:    {"LOAD_LOCAL", 0, 1, 1},
	OpStoreLocal:   {"STORE_LOCAL", 0, 0, 1}, // peeks, does not pop
	OpLoadUpvalue:  {"LOAD_UPVALUE", 0, 1, 1},
	OpStoreUpvalue: {"STORE_UPVALUE", 0, 0, 1},
	OpLoadGlobal:   {"LOAD_GLOBAL", 0, 1, 1},
	OpStoreGlobal:  {"STORE_GLOBAL", 0, 0, 1},
	OpDefineGlobal: {"DEFINE_GLOBAL", 1, 0, 1},
	OpLoadLocal0:   {"LOAD_LOCAL_0", 0, 1, 0},
	OpLoadLocal1:   {"LOAD_LOCAL_1", 0, 1, 0},
	OpLoadLocal2:   {"LOAD_LOCAL_2", 0, 1, 0},

	// Arithmetic
	OpAdd:         {"ADD", 2, 1, 0},
	OpSub:         {"SUB", 2, 1, 0},
	OpMul:         {"MUL", 2, 1, 0},
	OpDiv:         {"DIV", 2, 1, 0},
	OpMod:         {"MOD", 2, 1, 0},
	OpPow:         {"POW", 2, 1, 0},
	OpNeg:         {"NEG", 1, 1, 0},
	OpStoreLocal0: {"STORE_LOCAL_0", 0, 0, 0},
	OpStoreLocal1: {"STORE_LOCAL_1", 0, 0, 0},
	OpStoreLocal2: {"STORE_LOCAL_2", 0, 0, 0},

	// Comparison
	OpEq: {"EQ", 2, 1, 0},
	OpNe: {"NE", 2, 1, 0},
	OpLt: {"LT", 2, 1, 0},
	OpGt: {"GT", 2, 1, 0},
	OpLe: {"LE", 2, 1, 0},
	OpGe: {"GE", 2, 1, 0},

	// Logical
	OpNot: {"NOT", 1, 1, 0},
	OpAnd: {"AND", -1, 1, 2}, // pops only when not short-circuiting
	OpOr:  {"OR", -1, 1, 2},

	// Control flow
	OpJump:        {"JUMP", 0, 0, 2},
	OpJumpIfFalse: {"JUMP_IF_FALSE", 0, 0, 2}, // peeks
	OpJumpIfTrue:  {"JUMP_IF_TRUE", 0, 0, 2},
	OpLoop:        {"LOOP", 0, 0, 2},

	// Calls
	OpCall:    {"CALL", -1, 1, 1}, // pops callee + argc args
	OpReturn:  {"RETURN", -1, 0, 0},
	OpClosure: {"CLOSURE", 0, 1, 1},

	// Containers
	OpList:       {"LIST", -1, 1, 1},
	OpMap:        {"MAP", -1, 1, 1},
	OpIndex:      {"INDEX", 2, 1, 0},
	OpStoreIndex: {"STORE_INDEX", 3, 1, 0},
	OpLen:        {"LEN", 1, 1, 0},

	// Iteration
	OpIterInit: {"ITER_INIT", 1, 1, 0},
	OpIterNext: {"ITER_NEXT", 0, 1, 2}, // pushes unless it jumps

	// Guards
	OpCheckIterLimit: {"CHECK_ITER_LIMIT", 0, 0, 0},
	OpCheckRecursion: {"CHECK_RECURSION", 0, 0, 0},

	// Errors
	OpThrow: {"THROW", 1, 0, 1},

	// Specialized variants
	OpAddInt:   {"ADD_INT", 2, 1, 0},
	OpSubInt:   {"SUB_INT", 2, 1, 0},
	OpMulInt:   {"MUL_INT", 2, 1, 0},
	OpIncLocal: {"INC_LOCAL", 0, 0, 1},
	OpDecLocal: {"DEC_LOCAL", 0, 0, 1},
	OpInc:      {"INC", 1, 1, 0},
	OpDec:      {"DEC", 1, 1, 0},

	OpLoadGlobal0:  {"LOAD_GLOBAL_0", 0, 1, 0},
	OpLoadGlobal1:  {"LOAD_GLOBAL_1", 0, 1, 0},
	OpLoadGlobal2:  {"LOAD_GLOBAL_2", 0, 1, 0},
	OpStoreGlobal0: {"STORE_GLOBAL_0", 0, 0, 0},
	OpStoreGlobal1: {"STORE_GLOBAL_1", 0, 0, 0},
	OpStoreGlobal2: {"STORE_GLOBAL_2", 0, 0, 0},

	// Builtins
	OpCallBuiltin: {"CALL_BUILTIN", -1, 1, 2},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(%d)", byte(op))}
}

// Valid reports whether the byte value is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump reports whether this opcode carries a 2-byte jump offset operand.
func (op Opcode) IsJump() bool {
	switch op {
	case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpLoop, OpAnd, OpOr, OpIterNext:
		return true
	}
	return false
}

// IsForwardJump reports whether the jump offset moves the instruction
// pointer forward (everything but OpLoop).
func (op Opcode) IsForwardJump() bool {
	return op.IsJump() && op != OpLoop
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
