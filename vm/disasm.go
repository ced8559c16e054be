package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable bytecode listing for the chunk.
func (c *Chunk) Disassemble() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("; === %s ===\n", c.Name))
	sb.WriteString(fmt.Sprintf("; Tycho Bytecode v%d\n", c.Version))
	if c.IsAsync {
		sb.WriteString(fmt.Sprintf("; Async: %d await sites\n", c.AwaitSites))
	}

	if c.ParamCount > 0 {
		sb.WriteString(fmt.Sprintf("; Parameters (%d): %s\n",
			c.ParamCount, strings.Join(c.ParamNames, ", ")))
	}
	if c.LocalCount > 0 {
		sb.WriteString(fmt.Sprintf("; Locals: %d slots\n", c.LocalCount))
	}

	if len(c.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, v := range c.Constants {
			display := v.ToDisplayString()
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			display = strings.ReplaceAll(display, "\n", "\\n")
			display = strings.ReplaceAll(display, "\t", "\\t")
			sb.WriteString(fmt.Sprintf(";   [%3d] %s %q\n", i, v.Kind, display))
		}
	}

	if len(c.Handlers) > 0 {
		sb.WriteString("; Handlers:\n")
		for i, h := range c.Handlers {
			sb.WriteString(fmt.Sprintf(";   [%d] try [%04d,%04d) -> catch %04d slot %d\n",
				i, h.Start, h.End, h.Handler, h.CatchSlot))
		}
	}

	sb.WriteString("\n")

	ip := 0
	for ip < len(c.Code) {
		ip = c.disassembleInstruction(&sb, ip)
	}
	return sb.String()
}

// disassembleInstruction appends one instruction and returns the next
// offset.
func (c *Chunk) disassembleInstruction(sb *strings.Builder, ip int) int {
	op := Opcode(c.Code[ip])
	sb.WriteString(fmt.Sprintf("%04d  %-14s", ip, op.String()))

	width := OperandWidth(op)
	next := ip + 1 + width

	switch op {
	case OpConst, OpLoadGlobal, OpGetMember, OpSetMember:
		idx := c.ReadU16(ip + 1)
		sb.WriteString(fmt.Sprintf(" %d", idx))
		if int(idx) < len(c.Constants) {
			sb.WriteString(fmt.Sprintf(" ; %s", c.Constants[idx].ToDisplayString()))
		}

	case OpJump, OpJumpTrue, OpJumpFalse, OpJumpDefined:
		delta := int(c.ReadI16(ip + 1))
		sb.WriteString(fmt.Sprintf(" %+d ; -> %04d", delta, next+delta))

	case OpCallMethod, OpCallSuper:
		idx := c.ReadU16(ip + 1)
		argc := c.Code[ip+3]
		sb.WriteString(fmt.Sprintf(" %s/%d", c.Constants[idx].ToDisplayString(), argc))

	case OpNew:
		idx := c.ReadU16(ip + 1)
		argc := c.Code[ip+3]
		sb.WriteString(fmt.Sprintf(" %s/%d", c.Constants[idx].ToDisplayString(), argc))

	case OpAwait:
		sb.WriteString(fmt.Sprintf(" site %d", c.ReadU16(ip+1)))

	case OpArray, OpObject, OpMakeFn:
		sb.WriteString(fmt.Sprintf(" %d", c.ReadU16(ip+1)))

	default:
		if width == 1 {
			sb.WriteString(fmt.Sprintf(" %d", c.Code[ip+1]))
		}
	}

	sb.WriteString("\n")
	return next
}
