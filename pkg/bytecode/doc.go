// Package bytecode defines the compiled form of Nebula programs: the
// opcode set, chunks, the constant pool, and the peephole optimizer.
//
// The format is designed for:
//   - Compact representation (most instructions are 1-2 bytes)
//   - Fast decoding (fixed-width opcodes, at most two operand bytes)
//   - Easy serialization (chunks carry no pointers into the VM heap,
//     so a Program can be stored as a CBOR image or cached in SQLite)
//
// # Instruction encoding
//
// Every instruction is an opcode byte followed by zero, one, or two
// operand bytes. Single-byte operands are constant-pool indices, local
// or global slots, argument counts, or function indices. Two-byte
// operands are big-endian and are either jump distances (patched after
// the target is known) or, for OpCallBuiltin, an index/argc pair.
//
// Jump distances are relative to the instruction pointer after the
// operand has been consumed: forward jumps add the distance, OpLoop
// subtracts it.
//
// # Constant pool
//
// Each chunk carries up to 256 constants, deduplicated on insertion.
// Values are plain tagged Go structs (Const); the VM boxes them into
// NaN-boxed runtime values at OpPushConst, interning string constants
// so repeated executions share one heap object.
//
// # Specialized opcodes
//
// The variants above 110 (OpAddInt, OpLoadLocal0, OpIncLocal, ...) are
// pure performance encodings of general instructions and must stay
// semantically identical to their general counterparts.
package bytecode
