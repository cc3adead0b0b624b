package bytecode

import "encoding/binary"

// MaxConstants caps the constant pool. OpPushConst carries a single
// index byte, so the pool can never address more than 256 entries.
const MaxConstants = 256

// maxJumpOffset is the largest encodable jump distance (u16 operand).
const maxJumpOffset = 0xFFFF

// Chunk is a compiled unit of bytecode: the instruction stream, its
// constant pool, and a byte-parallel line table for diagnostics.
type Chunk struct {
	Code      []byte  `cbor:"code"`
	Constants []Const `cbor:"consts"`
	Lines     []int   `cbor:"lines"`
}

// NewChunk creates a new empty chunk.
func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 64),
		Constants: make([]Const, 0, 8),
	}
}

func (c *Chunk) appendByte(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// Emit appends a single opcode and returns its offset.
func (c *Chunk) Emit(op Opcode, line int) int {
	offset := len(c.Code)
	c.appendByte(byte(op), line)
	return offset
}

// EmitWithOperand appends an opcode with operand bytes and returns the
// opcode's offset.
func (c *Chunk) EmitWithOperand(op Opcode, line int, operands ...byte) int {
	offset := c.Emit(op, line)
	for _, b := range operands {
		c.appendByte(b, line)
	}
	return offset
}

// AddConstant adds a constant to the pool and returns its index,
// reusing an existing entry when one compares Equal. At capacity the
// index saturates at the last slot rather than growing the pool.
func (c *Chunk) AddConstant(v Const) int {
	for i, existing := range c.Constants {
		if existing.Equal(v) {
			return i
		}
	}
	if len(c.Constants) >= MaxConstants {
		return MaxConstants - 1
	}
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// EmitConstant emits OpPushConst for the given value, adding it to the
// pool if not already present. Returns the constant's pool index.
func (c *Chunk) EmitConstant(v Const, line int) int {
	idx := c.AddConstant(v)
	c.EmitWithOperand(OpPushConst, line, byte(idx))
	return idx
}

// EmitJump emits a jump instruction with a placeholder offset and
// returns the offset of the placeholder for later patching.
func (c *Chunk) EmitJump(op Opcode, line int) int {
	c.Emit(op, line)
	at := len(c.Code)
	c.appendByte(0xFF, line)
	c.appendByte(0xFF, line)
	return at
}

// PatchJump rewrites the placeholder at the given offset so the jump
// lands at the current end of code. Distances saturate at the u16 max.
func (c *Chunk) PatchJump(at int) {
	dist := len(c.Code) - at - 2
	if dist < 0 {
		dist = 0
	}
	if dist > maxJumpOffset {
		dist = maxJumpOffset
	}
	c.Code[at] = byte(dist >> 8)
	c.Code[at+1] = byte(dist)
}

// EmitLoop emits a backward jump to loopStart.
func (c *Chunk) EmitLoop(loopStart, line int) {
	c.Emit(OpLoop, line)
	offset := len(c.Code) - loopStart + 2
	if offset > maxJumpOffset {
		offset = maxJumpOffset
	}
	c.appendByte(byte(offset>>8), line)
	c.appendByte(byte(offset), line)
}

// ReadU16 reads a big-endian u16 operand at the given code offset.
func (c *Chunk) ReadU16(offset int) uint16 {
	if offset < 0 || offset+1 >= len(c.Code) {
		return 0
	}
	return binary.BigEndian.Uint16(c.Code[offset:])
}

// Line returns the source line for a code offset, or 0 when unknown.
func (c *Chunk) Line(offset int) int {
	if offset >= 0 && offset < len(c.Lines) {
		return c.Lines[offset]
	}
	return 0
}

// CodeLen returns the length of the code section.
func (c *Chunk) CodeLen() int {
	return len(c.Code)
}

// ConstantCount returns the number of constants in the pool.
func (c *Chunk) ConstantCount() int {
	return len(c.Constants)
}
