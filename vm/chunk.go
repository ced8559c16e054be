package vm

// BytecodeVersion is the current bytecode format version.
// Increment when making incompatible changes to the format.
const BytecodeVersion uint16 = 1

// CaptureSource indicates where a captured variable originates in the
// enclosing frame.
type CaptureSource uint8

const (
	// CaptureLocal captures a cell held in an enclosing local slot.
	CaptureLocal CaptureSource = 0

	// CaptureOuter re-captures a cell from the enclosing closure's
	// capture list.
	CaptureOuter CaptureSource = 1
)

// CaptureDescriptor describes one captured variable of a closure.
type CaptureDescriptor struct {
	Name   string
	Source CaptureSource
	Slot   uint8 // local slot or outer capture index
}

// HandlerEntry is one row of a chunk's exception handler table.
// An exception raised while ip is in [Start, End) transfers control to
// Handler with the thrown value stored in CatchSlot.
type HandlerEntry struct {
	Start     int
	End       int
	Handler   int
	CatchSlot uint8
}

// Chunk is the compiled body of a method, function, or arrow function.
type Chunk struct {
	Version uint16

	// Code section
	Code []byte

	// Constant pool
	Constants []Value

	// Frame layout
	ParamCount int
	LocalCount int
	ParamNames []string

	// Exception handler table, ordered innermost-first
	Handlers []HandlerEntry

	// Await site count. Site k corresponds to the k-th OpAwait emitted,
	// numbered from 0 in emission order.
	AwaitSites int

	// Capture information when this chunk is an arrow function
	CaptureInfo []CaptureDescriptor

	// IsAsync marks bodies compiled from async methods and functions.
	// Only async chunks may contain OpAwait.
	IsAsync bool

	// Names for diagnostics
	Name string
}

// NewChunk creates an empty chunk with the current version.
func NewChunk(name string) *Chunk {
	return &Chunk{
		Version: BytecodeVersion,
		Name:    name,
		Code:    make([]byte, 0, 64),
	}
}

// AddConstant interns a constant and returns its pool index.
// Only number and string constants are deduplicated; reference values
// always get a fresh slot.
func (c *Chunk) AddConstant(v Value) uint16 {
	if v.Kind == KindNumber || v.Kind == KindString {
		for i, existing := range c.Constants {
			if existing.Kind == v.Kind && StrictEquals(existing, v) {
				return uint16(i)
			}
		}
	}
	idx := uint16(len(c.Constants))
	c.Constants = append(c.Constants, v)
	return idx
}

// Emit appends a single-byte opcode and returns its offset.
func (c *Chunk) Emit(op Opcode) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	return offset
}

// EmitWithOperand appends an opcode with operand bytes.
func (c *Chunk) EmitWithOperand(op Opcode, operands ...byte) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	c.Code = append(c.Code, operands...)
	return offset
}

// EmitU16 appends an opcode with one 16-bit operand.
func (c *Chunk) EmitU16(op Opcode, operand uint16) int {
	return c.EmitWithOperand(op, byte(operand>>8), byte(operand))
}

// EmitConstant pushes a constant, interning it in the pool.
func (c *Chunk) EmitConstant(v Value) int {
	switch {
	case v.Kind == KindUndefined:
		return c.Emit(OpUndefined)
	case v.Kind == KindNull:
		return c.Emit(OpNull)
	case v.Kind == KindBool && v.Bool():
		return c.Emit(OpTrue)
	case v.Kind == KindBool:
		return c.Emit(OpFalse)
	case v.Kind == KindNumber && v.Num == 0:
		return c.Emit(OpZero)
	case v.Kind == KindNumber && v.Num == 1:
		return c.Emit(OpOne)
	}
	return c.EmitU16(OpConst, c.AddConstant(v))
}

// EmitJump emits a jump instruction with a placeholder offset.
// Returns the offset of the placeholder for later patching.
func (c *Chunk) EmitJump(op Opcode) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op), 0xFF, 0xFF)
	return offset + 1
}

// PatchJump patches a jump placeholder to target the current position.
func (c *Chunk) PatchJump(placeholderOffset int) {
	c.PatchJumpTo(placeholderOffset, len(c.Code))
}

// PatchJumpTo patches a jump placeholder to target a specific offset.
// Offsets are relative to the instruction following the operand.
func (c *Chunk) PatchJumpTo(placeholderOffset, target int) {
	jumpFrom := placeholderOffset + 2
	delta := target - jumpFrom
	c.Code[placeholderOffset] = byte(delta >> 8)
	c.Code[placeholderOffset+1] = byte(delta)
}

// EmitLoop emits a backward jump to loopStart.
func (c *Chunk) EmitLoop(loopStart int) {
	jumpFrom := len(c.Code) + 3
	delta := loopStart - jumpFrom
	c.Code = append(c.Code, byte(OpJump), byte(delta>>8), byte(delta))
}

// CurrentOffset returns the current offset in the code section.
func (c *Chunk) CurrentOffset() int {
	return len(c.Code)
}

// AddHandler appends an exception handler table entry.
func (c *Chunk) AddHandler(start, end, handler int, catchSlot uint8) {
	c.Handlers = append(c.Handlers, HandlerEntry{
		Start:     start,
		End:       end,
		Handler:   handler,
		CatchSlot: catchSlot,
	})
}

// HandlerFor returns the innermost handler covering ip, or nil.
// Entries are recorded innermost-first by the code generator.
func (c *Chunk) HandlerFor(ip int) *HandlerEntry {
	for i := range c.Handlers {
		h := &c.Handlers[i]
		if ip >= h.Start && ip < h.End {
			return h
		}
	}
	return nil
}

// NextAwaitSite allocates the next await site number.
func (c *Chunk) NextAwaitSite() uint16 {
	site := uint16(c.AwaitSites)
	c.AwaitSites++
	return site
}

// AddCapture records a capture descriptor and returns its index.
func (c *Chunk) AddCapture(name string, source CaptureSource, slot uint8) uint8 {
	idx := uint8(len(c.CaptureInfo))
	c.CaptureInfo = append(c.CaptureInfo, CaptureDescriptor{
		Name:   name,
		Source: source,
		Slot:   slot,
	})
	return idx
}

// ReadU16 decodes a big-endian u16 operand at offset.
func (c *Chunk) ReadU16(offset int) uint16 {
	return uint16(c.Code[offset])<<8 | uint16(c.Code[offset+1])
}

// ReadI16 decodes a big-endian signed 16-bit operand at offset.
func (c *Chunk) ReadI16(offset int) int16 {
	return int16(uint16(c.Code[offset])<<8 | uint16(c.Code[offset+1]))
}
