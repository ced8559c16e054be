package vm

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop Opcode = 0x00 // No operation
	OpPop Opcode = 0x01 // Pop top of stack
	OpDup Opcode = 0x02 // Duplicate top of stack

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpConst     Opcode = 0x10 // Push constant from pool: OpConst <index:u16>
	OpUndefined Opcode = 0x11 // Push undefined
	OpNull      Opcode = 0x12 // Push null
	OpTrue      Opcode = 0x13 // Push true
	OpFalse     Opcode = 0x14 // Push false
	OpZero      Opcode = 0x15 // Push 0
	OpOne       Opcode = 0x16 // Push 1

	// ========================================================================
	// Locals and captures (0x20-0x2F)
	// ========================================================================

	OpLoadLocal  Opcode = 0x20 // Push local: OpLoadLocal <slot:u8>
	OpStoreLocal Opcode = 0x21 // Pop and store to local: OpStoreLocal <slot:u8>
	OpLoadThis   Opcode = 0x22 // Push the receiver
	OpMakeCell   Opcode = 0x23 // Box local into a capture cell: OpMakeCell <slot:u8>
	OpLoadCell   Opcode = 0x24 // Push value of cell in local slot: OpLoadCell <slot:u8>
	OpStoreCell  Opcode = 0x25 // Pop into cell in local slot: OpStoreCell <slot:u8>
	OpLoadCap    Opcode = 0x26 // Push value of captured cell: OpLoadCap <index:u8>
	OpStoreCap   Opcode = 0x27 // Pop into captured cell: OpStoreCap <index:u8>

	// ========================================================================
	// Globals (0x30-0x3F)
	// ========================================================================

	OpLoadGlobal Opcode = 0x30 // Push global by name: OpLoadGlobal <name:u16>

	// ========================================================================
	// Members and indexing (0x40-0x4F)
	// ========================================================================

	OpGetMember Opcode = 0x40 // Pop obj, push obj.name: OpGetMember <name:u16>
	OpSetMember Opcode = 0x41 // Pop value, obj; store; push value: OpSetMember <name:u16>
	OpGetIndex  Opcode = 0x42 // Pop key, obj; push obj[key]
	OpSetIndex  Opcode = 0x43 // Pop value, key, obj; store; push value

	// ========================================================================
	// Arithmetic and logic (0x50-0x5F)
	// ========================================================================

	OpAdd Opcode = 0x50 // Pop two, push sum (string concat when either is a string)
	OpSub Opcode = 0x51 // Pop two, push difference
	OpMul Opcode = 0x52 // Pop two, push product
	OpDiv Opcode = 0x53 // Pop two, push quotient
	OpMod Opcode = 0x54 // Pop two, push remainder
	OpNeg Opcode = 0x55 // Negate top of stack
	OpNot Opcode = 0x56 // Logical NOT of top of stack

	// ========================================================================
	// Comparison (0x60-0x6F)
	// ========================================================================

	OpEq       Opcode = 0x60 // Loose equality
	OpNe       Opcode = 0x61 // Loose inequality
	OpStrictEq Opcode = 0x62 // Strict equality
	OpStrictNe Opcode = 0x63 // Strict inequality
	OpLt       Opcode = 0x64 // Pop two, push a < b
	OpLe       Opcode = 0x65 // Pop two, push a <= b
	OpGt       Opcode = 0x66 // Pop two, push a > b
	OpGe       Opcode = 0x67 // Pop two, push a >= b

	// ========================================================================
	// Control flow (0x80-0x8F)
	// ========================================================================

	OpJump        Opcode = 0x80 // Unconditional jump: OpJump <offset:i16>
	OpJumpTrue    Opcode = 0x81 // Pop; jump if truthy: OpJumpTrue <offset:i16>
	OpJumpFalse   Opcode = 0x82 // Pop; jump if falsy: OpJumpFalse <offset:i16>
	OpJumpDefined Opcode = 0x83 // Pop; jump if not undefined: OpJumpDefined <offset:i16>

	// ========================================================================
	// Calls and construction (0x90-0x9F)
	// ========================================================================

	OpCall       Opcode = 0x90 // Call closure: callee, args on stack: OpCall <argc:u8>
	OpCallMethod Opcode = 0x91 // Virtual call: OpCallMethod <name:u16> <argc:u8>
	OpCallSuper  Opcode = 0x92 // Super method call: OpCallSuper <name:u16> <argc:u8>
	OpSuperCtor  Opcode = 0x93 // Super constructor call: OpSuperCtor <argc:u8>
	OpNew        Opcode = 0x94 // Instantiate: OpNew <class:u16> <argc:u8>
	OpReturn     Opcode = 0x95 // Return top of stack
	OpMakeFn     Opcode = 0x96 // Build closure from function table: OpMakeFn <fn:u16>

	// ========================================================================
	// Aggregates (0xA0-0xAF)
	// ========================================================================

	OpArray  Opcode = 0xA0 // Build array from top n values: OpArray <n:u16>
	OpObject Opcode = 0xA1 // Build object from top n key/value pairs: OpObject <n:u16>

	// ========================================================================
	// Strings (0xB0-0xBF)
	// ========================================================================

	OpToString Opcode = 0xB0 // Replace top with its display string

	// ========================================================================
	// Exceptions (0xC0-0xCF)
	// ========================================================================

	OpThrow Opcode = 0xC0 // Pop and raise as an exception

	// ========================================================================
	// Async (0xD0-0xDF)
	// ========================================================================

	OpAwait Opcode = 0xD0 // Await top of stack: OpAwait <site:u16>
)

// operandWidths maps opcodes to the total byte width of their operands.
var operandWidths = map[Opcode]int{
	OpConst:       2,
	OpLoadLocal:   1,
	OpStoreLocal:  1,
	OpMakeCell:    1,
	OpLoadCell:    1,
	OpStoreCell:   1,
	OpLoadCap:     1,
	OpStoreCap:    1,
	OpLoadGlobal:  2,
	OpGetMember:   2,
	OpSetMember:   2,
	OpJump:        2,
	OpJumpTrue:    2,
	OpJumpFalse:   2,
	OpJumpDefined: 2,
	OpCall:        1,
	OpCallMethod:  3,
	OpCallSuper:   3,
	OpSuperCtor:   1,
	OpNew:         3,
	OpMakeFn:      2,
	OpArray:       2,
	OpObject:      2,
	OpAwait:       2,
}

// OperandWidth returns the operand byte count for an opcode.
func OperandWidth(op Opcode) int {
	return operandWidths[op]
}

// opcodeNames maps opcodes to mnemonics for disassembly.
var opcodeNames = map[Opcode]string{
	OpNop:         "nop",
	OpPop:         "pop",
	OpDup:         "dup",
	OpConst:       "const",
	OpUndefined:   "undefined",
	OpNull:        "null",
	OpTrue:        "true",
	OpFalse:       "false",
	OpZero:        "zero",
	OpOne:         "one",
	OpLoadLocal:   "load_local",
	OpStoreLocal:  "store_local",
	OpLoadThis:    "load_this",
	OpMakeCell:    "make_cell",
	OpLoadCell:    "load_cell",
	OpStoreCell:   "store_cell",
	OpLoadCap:     "load_cap",
	OpStoreCap:    "store_cap",
	OpLoadGlobal:  "load_global",
	OpGetMember:   "get_member",
	OpSetMember:   "set_member",
	OpGetIndex:    "get_index",
	OpSetIndex:    "set_index",
	OpAdd:         "add",
	OpSub:         "sub",
	OpMul:         "mul",
	OpDiv:         "div",
	OpMod:         "mod",
	OpNeg:         "neg",
	OpNot:         "not",
	OpEq:          "eq",
	OpNe:          "ne",
	OpStrictEq:    "seq",
	OpStrictNe:    "sne",
	OpLt:          "lt",
	OpLe:          "le",
	OpGt:          "gt",
	OpGe:          "ge",
	OpJump:        "jump",
	OpJumpTrue:    "jump_true",
	OpJumpFalse:   "jump_false",
	OpJumpDefined: "jump_defined",
	OpCall:        "call",
	OpCallMethod:  "call_method",
	OpCallSuper:   "call_super",
	OpSuperCtor:   "super_ctor",
	OpNew:         "new",
	OpReturn:      "return",
	OpMakeFn:      "make_fn",
	OpArray:       "array",
	OpObject:      "object",
	OpToString:    "to_string",
	OpThrow:       "throw",
	OpAwait:       "await",
}

// String returns the mnemonic for an opcode.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(0x%02X)", byte(op))
}
