package bytecode

// Peephole optimization. Every rewrite replaces an instruction window
// with a sequence of identical byte length and identical net stack
// effect, so jump offsets elsewhere in the chunk stay valid. Windows
// that contain a jump target are left alone.

// Optimize runs the peephole pass over the main chunk and every
// function chunk. Returns the total number of rewrites.
func Optimize(p *Program) int {
	n := OptimizeChunk(p.Main)
	for _, fn := range p.Functions {
		n += OptimizeChunk(fn.Chunk)
	}
	return n
}

// OptimizeChunk rewrites dead push/pop windows in place and returns the
// number of rewrites applied. Chunks containing unknown opcodes are
// left untouched.
func OptimizeChunk(c *Chunk) int {
	targets, ok := jumpTargets(c)
	if !ok {
		return 0
	}

	rewrites := 0
	i := 0
	for i < len(c.Code) {
		op := Opcode(c.Code[i])

		// [PushConst idx, Pop] -> [PushNil, Not, Pop]
		// Drops the constant-table read (and the string boxing it
		// would cause) without changing length or depth.
		if op == OpPushConst && i+2 < len(c.Code) &&
			Opcode(c.Code[i+2]) == OpPop &&
			!targets[i+1] && !targets[i+2] {
			c.Code[i] = byte(OpPushNil)
			c.Code[i+1] = byte(OpNot)
			c.Code[i+2] = byte(OpPop)
			rewrites++
			i += 3
			continue
		}

		// [PushTrue|PushFalse|Dup, Pop] -> [PushNil, Pop]
		// Canonical dead pair.
		if (op == OpPushTrue || op == OpPushFalse || op == OpDup) &&
			i+1 < len(c.Code) && Opcode(c.Code[i+1]) == OpPop &&
			!targets[i+1] {
			c.Code[i] = byte(OpPushNil)
			rewrites++
			i += 2
			continue
		}

		i += op.InstructionLen()
	}
	return rewrites
}

// jumpTargets walks the instruction stream and marks every offset some
// jump can land on. Returns ok=false if the stream contains an unknown
// opcode, in which case the caller must not rewrite anything.
func jumpTargets(c *Chunk) (map[int]bool, bool) {
	targets := make(map[int]bool)
	i := 0
	for i < len(c.Code) {
		op := Opcode(c.Code[i])
		if !op.Valid() {
			return nil, false
		}
		if op.IsJump() {
			offset := int(c.ReadU16(i + 1))
			after := i + 3
			if op == OpLoop {
				targets[after-offset] = true
			} else {
				targets[after+offset] = true
			}
		}
		i += op.InstructionLen()
	}
	return targets, true
}
