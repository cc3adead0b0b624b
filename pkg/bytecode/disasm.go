package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable bytecode listing for the chunk.
func (c *Chunk) Disassemble(name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}

	if len(c.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, v := range c.Constants {
			display := v.String()
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, display))
		}
	}

	sb.WriteString("; Code:\n")
	offset := 0
	for offset < len(c.Code) {
		text, instrLen := c.disassembleInstruction(offset)
		sb.WriteString(fmt.Sprintf("%04X  %4d  %s\n", offset, c.Line(offset), text))
		if instrLen <= 0 {
			break
		}
		offset += instrLen
	}

	return sb.String()
}

// DisassembleProgram lists the main chunk followed by every function.
func DisassembleProgram(p *Program) string {
	var sb strings.Builder
	sb.WriteString(p.Main.Disassemble("main"))
	for i, fn := range p.Functions {
		sb.WriteString("\n")
		sb.WriteString(fn.Chunk.Disassemble(fmt.Sprintf("fn %s (#%d, arity %d)", fn.Name, i, fn.Arity)))
	}
	return sb.String()
}

// disassembleInstruction renders a single instruction at the given
// offset. Returns the formatted string and the instruction length.
func (c *Chunk) disassembleInstruction(offset int) (string, int) {
	if offset >= len(c.Code) {
		return "<end of code>", 0
	}

	op := Opcode(c.Code[offset])
	info := GetOpcodeInfo(op)

	switch {
	case op == OpPushConst:
		idx := int(c.operandByte(offset + 1))
		constVal := "?"
		if idx < len(c.Constants) {
			constVal = c.Constants[idx].String()
			if len(constVal) > 20 {
				constVal = constVal[:17] + "..."
			}
		}
		return fmt.Sprintf("%s %d ; %s", info.Name, idx, constVal), 2

	case op.IsJump():
		dist := int(c.ReadU16(offset + 1))
		target := offset + 3 + dist
		if op == OpLoop {
			target = offset + 3 - dist
		}
		return fmt.Sprintf("%s %d (-> %04X)", info.Name, dist, target), 3

	case op == OpCallBuiltin:
		idx := c.operandByte(offset + 1)
		argc := c.operandByte(offset + 2)
		return fmt.Sprintf("%s %d argc=%d", info.Name, idx, argc), 3

	case info.OperandLen == 1:
		return fmt.Sprintf("%s %d", info.Name, c.operandByte(offset+1)), 2

	default:
		return info.Name, op.InstructionLen()
	}
}

func (c *Chunk) operandByte(offset int) byte {
	if offset >= len(c.Code) {
		return 0
	}
	return c.Code[offset]
}
