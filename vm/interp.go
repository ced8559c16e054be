package vm

import (
	"math"
)

// ---------------------------------------------------------------------------
// Interpreter: stack-machine execution of compiled chunks
// ---------------------------------------------------------------------------

// Frame is one activation of a chunk. For async bodies the frame
// outlives individual runFrame calls: it is parked at an await site
// and resumed by the state machine, so every local and the operand
// stack survive suspension.
type Frame struct {
	Chunk    *Chunk
	IP       int
	Stack    []Value
	Locals   []Value
	This     Value
	Captures []*Cell
	Owner    *Class // class owning the executing method; nil for functions

	// pending holds the awaiter whose result must be consumed when
	// the frame resumes after a suspension.
	pending   Awaiter
	suspended bool
}

// NewFrame creates a frame for a chunk with args bound to the first
// parameter slots.
func NewFrame(chunk *Chunk, this Value, args []Value) *Frame {
	f := &Frame{
		Chunk:  chunk,
		This:   this,
		Stack:  make([]Value, 0, 16),
		Locals: make([]Value, chunk.LocalCount),
	}
	for i := range f.Locals {
		f.Locals[i] = Undefined
	}
	for i := 0; i < chunk.ParamCount && i < len(args); i++ {
		f.Locals[i] = args[i]
	}
	return f
}

func (f *Frame) push(v Value) {
	f.Stack = append(f.Stack, v)
}

func (f *Frame) pop() Value {
	v := f.Stack[len(f.Stack)-1]
	f.Stack = f.Stack[:len(f.Stack)-1]
	return v
}

func (f *Frame) popN(n int) []Value {
	vals := make([]Value, n)
	copy(vals, f.Stack[len(f.Stack)-n:])
	f.Stack = f.Stack[:len(f.Stack)-n]
	return vals
}

// execResult is the outcome of running a frame: either a return value
// or a suspension at an await site.
type execResult struct {
	Value   Value
	Suspend bool
	Awaiter Awaiter
	Site    uint16
}

// Interp executes chunks against a program image.
type Interp struct {
	Program *Program
}

// NewInterp creates an interpreter for a program.
func NewInterp(p *Program) *Interp {
	return &Interp{Program: p}
}

// raise routes an exception to the innermost handler covering ip, or
// returns it to the caller. On a catch, the operand stack unwinds to
// empty: try is a statement, so no partial expression spans it.
func (in *Interp) raise(f *Frame, err error) (bool, error) {
	v, ok := Thrown(err)
	if !ok {
		return false, err
	}
	h := f.Chunk.HandlerFor(f.IP)
	if h == nil {
		return false, err
	}
	f.Stack = f.Stack[:0]
	f.Locals[h.CatchSlot] = v
	f.IP = h.Handler
	return true, nil
}

// runFrame executes a frame until it returns, suspends at an await
// site, or raises an unhandled exception.
func (in *Interp) runFrame(f *Frame) (execResult, error) {
	// Consume the settled awaiter when resuming from a suspension.
	// A rejected awaiter re-raises here, at the resume point, so a
	// try/catch enclosing the await site observes it.
	if f.suspended {
		f.suspended = false
		v, err := f.pending.GetResult()
		if err != nil {
			handled, err := in.raise(f, err)
			if !handled {
				return execResult{}, err
			}
		} else {
			f.push(v)
		}
	}

	chunk := f.Chunk
	code := chunk.Code

	for f.IP < len(code) {
		op := Opcode(code[f.IP])
		opIP := f.IP
		f.IP++

		var stepErr error

		switch op {
		case OpNop:

		case OpPop:
			f.pop()

		case OpDup:
			f.push(f.Stack[len(f.Stack)-1])

		case OpConst:
			idx := chunk.ReadU16(f.IP)
			f.IP += 2
			f.push(chunk.Constants[idx])

		case OpUndefined:
			f.push(Undefined)
		case OpNull:
			f.push(Null)
		case OpTrue:
			f.push(True)
		case OpFalse:
			f.push(False)
		case OpZero:
			f.push(NumberValue(0))
		case OpOne:
			f.push(NumberValue(1))

		case OpLoadLocal:
			f.push(f.Locals[code[f.IP]])
			f.IP++
		case OpStoreLocal:
			f.Locals[code[f.IP]] = f.pop()
			f.IP++
		case OpLoadThis:
			f.push(f.This)

		case OpMakeCell:
			slot := code[f.IP]
			f.IP++
			f.Locals[slot] = ObjectValue(&Cell{Value: f.Locals[slot]})
		case OpLoadCell:
			slot := code[f.IP]
			f.IP++
			f.push(f.Locals[slot].Obj.(*Cell).Value)
		case OpStoreCell:
			slot := code[f.IP]
			f.IP++
			f.Locals[slot].Obj.(*Cell).Value = f.pop()
		case OpLoadCap:
			f.push(f.Captures[code[f.IP]].Value)
			f.IP++
		case OpStoreCap:
			f.Captures[code[f.IP]].Value = f.pop()
			f.IP++

		case OpLoadGlobal:
			name := chunk.Constants[chunk.ReadU16(f.IP)].Str
			f.IP += 2
			v, ok := in.Program.Globals[name]
			if !ok {
				stepErr = ThrowString(in, "%s is not defined", name)
				break
			}
			f.push(v)

		case OpGetMember:
			name := chunk.Constants[chunk.ReadU16(f.IP)].Str
			f.IP += 2
			recv := f.pop()
			v, err := in.GetMember(recv, name)
			if err != nil {
				stepErr = err
				break
			}
			f.push(v)

		case OpSetMember:
			name := chunk.Constants[chunk.ReadU16(f.IP)].Str
			f.IP += 2
			val := f.pop()
			recv := f.pop()
			if err := in.SetMember(recv, name, val); err != nil {
				stepErr = err
				break
			}
			f.push(val)

		case OpGetIndex:
			key := f.pop()
			recv := f.pop()
			v, err := in.getIndex(recv, key)
			if err != nil {
				stepErr = err
				break
			}
			f.push(v)

		case OpSetIndex:
			val := f.pop()
			key := f.pop()
			recv := f.pop()
			if err := in.setIndex(recv, key, val); err != nil {
				stepErr = err
				break
			}
			f.push(val)

		case OpAdd:
			b := f.pop()
			a := f.pop()
			if a.Kind == KindString || b.Kind == KindString {
				f.push(StringValue(a.ToDisplayString() + b.ToDisplayString()))
			} else {
				f.push(NumberValue(toNumber(a) + toNumber(b)))
			}
		case OpSub:
			b := f.pop()
			a := f.pop()
			f.push(NumberValue(toNumber(a) - toNumber(b)))
		case OpMul:
			b := f.pop()
			a := f.pop()
			f.push(NumberValue(toNumber(a) * toNumber(b)))
		case OpDiv:
			b := f.pop()
			a := f.pop()
			f.push(NumberValue(toNumber(a) / toNumber(b)))
		case OpMod:
			b := f.pop()
			a := f.pop()
			f.push(NumberValue(math.Mod(toNumber(a), toNumber(b))))
		case OpNeg:
			f.push(NumberValue(-toNumber(f.pop())))
		case OpNot:
			f.push(BoolValue(!f.pop().Truthy()))

		case OpEq:
			b := f.pop()
			a := f.pop()
			f.push(BoolValue(LooseEquals(a, b)))
		case OpNe:
			b := f.pop()
			a := f.pop()
			f.push(BoolValue(!LooseEquals(a, b)))
		case OpStrictEq:
			b := f.pop()
			a := f.pop()
			f.push(BoolValue(StrictEquals(a, b)))
		case OpStrictNe:
			b := f.pop()
			a := f.pop()
			f.push(BoolValue(!StrictEquals(a, b)))
		case OpLt:
			stepErr = in.compare(f, func(c int) bool { return c < 0 })
		case OpLe:
			stepErr = in.compare(f, func(c int) bool { return c <= 0 })
		case OpGt:
			stepErr = in.compare(f, func(c int) bool { return c > 0 })
		case OpGe:
			stepErr = in.compare(f, func(c int) bool { return c >= 0 })

		case OpJump:
			delta := int(chunk.ReadI16(f.IP))
			f.IP += 2 + delta
		case OpJumpTrue:
			delta := int(chunk.ReadI16(f.IP))
			f.IP += 2
			if f.pop().Truthy() {
				f.IP += delta
			}
		case OpJumpFalse:
			delta := int(chunk.ReadI16(f.IP))
			f.IP += 2
			if !f.pop().Truthy() {
				f.IP += delta
			}
		case OpJumpDefined:
			delta := int(chunk.ReadI16(f.IP))
			f.IP += 2
			if !f.pop().IsUndefined() {
				f.IP += delta
			}

		case OpCall:
			argc := int(code[f.IP])
			f.IP++
			args := f.popN(argc)
			callee := f.pop()
			v, err := in.CallValue(callee, Undefined, args)
			if err != nil {
				stepErr = err
				break
			}
			f.push(v)

		case OpCallMethod:
			name := chunk.Constants[chunk.ReadU16(f.IP)].Str
			argc := int(code[f.IP+2])
			f.IP += 3
			args := f.popN(argc)
			recv := f.pop()
			v, err := in.CallMember(recv, name, args)
			if err != nil {
				stepErr = err
				break
			}
			f.push(v)

		case OpCallSuper:
			name := chunk.Constants[chunk.ReadU16(f.IP)].Str
			argc := int(code[f.IP+2])
			f.IP += 3
			args := f.popN(argc)
			v, err := in.callSuperMethod(f, name, args)
			if err != nil {
				stepErr = err
				break
			}
			f.push(v)

		case OpSuperCtor:
			argc := int(code[f.IP])
			f.IP++
			args := f.popN(argc)
			if err := in.callSuperConstructor(f, args); err != nil {
				stepErr = err
				break
			}
			f.push(Undefined)

		case OpNew:
			name := chunk.Constants[chunk.ReadU16(f.IP)].Str
			argc := int(code[f.IP+2])
			f.IP += 3
			args := f.popN(argc)
			v, err := in.Construct(name, args)
			if err != nil {
				stepErr = err
				break
			}
			f.push(v)

		case OpReturn:
			return execResult{Value: f.pop()}, nil

		case OpMakeFn:
			idx := chunk.ReadU16(f.IP)
			f.IP += 2
			f.push(in.makeClosure(f, in.Program.FnTable[idx]))

		case OpArray:
			n := int(chunk.ReadU16(f.IP))
			f.IP += 2
			f.push(ObjectValue(&Array{Elements: f.popN(n)}))

		case OpObject:
			n := int(chunk.ReadU16(f.IP))
			f.IP += 2
			pairs := f.popN(2 * n)
			obj := NewObject()
			for i := 0; i < n; i++ {
				obj.Set(pairs[2*i].Str, pairs[2*i+1])
			}
			f.push(ObjectValue(obj))

		case OpToString:
			f.push(StringValue(f.pop().ToDisplayString()))

		case OpThrow:
			stepErr = Throw(f.pop())

		case OpAwait:
			site := chunk.ReadU16(f.IP)
			f.IP += 2
			v := f.pop()
			task := v.AsTask()
			if task == nil {
				// Awaiting a settled plain value yields it directly.
				f.push(v)
				break
			}
			aw := task.GetAwaiter()
			if aw.IsCompleted() {
				// Synchronous fast path: no suspension.
				res, err := aw.GetResult()
				if err != nil {
					stepErr = err
					break
				}
				f.push(res)
				break
			}
			f.pending = aw
			f.suspended = true
			return execResult{Suspend: true, Awaiter: aw, Site: site}, nil

		default:
			stepErr = ThrowString(in, "invalid opcode 0x%02X at %d", byte(op), opIP)
		}

		if stepErr != nil {
			handled, err := in.raise(f, stepErr)
			if !handled {
				return execResult{}, err
			}
		}
	}

	return execResult{Value: Undefined}, nil
}

// compare pops two values and pushes the relational result. Strings
// compare lexicographically, everything else numerically.
func (in *Interp) compare(f *Frame, test func(int) bool) error {
	b := f.pop()
	a := f.pop()
	if a.Kind == KindString && b.Kind == KindString {
		c := 0
		if a.Str < b.Str {
			c = -1
		} else if a.Str > b.Str {
			c = 1
		}
		f.push(BoolValue(test(c)))
		return nil
	}
	x, y := toNumber(a), toNumber(b)
	if math.IsNaN(x) || math.IsNaN(y) {
		f.push(False)
		return nil
	}
	c := 0
	if x < y {
		c = -1
	} else if x > y {
		c = 1
	}
	f.push(BoolValue(test(c)))
	return nil
}

// makeClosure builds a closure for a function-table chunk, resolving
// its capture descriptors against the current frame.
func (in *Interp) makeClosure(f *Frame, chunk *Chunk) Value {
	captures := make([]*Cell, len(chunk.CaptureInfo))
	for i, desc := range chunk.CaptureInfo {
		switch desc.Source {
		case CaptureLocal:
			captures[i] = f.Locals[desc.Slot].Obj.(*Cell)
		case CaptureOuter:
			captures[i] = f.Captures[desc.Slot]
		}
	}
	return ObjectValue(&Closure{
		Chunk:    chunk,
		Captures: captures,
		This:     f.This,
		Name:     chunk.Name,
	})
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

// CallValue invokes a callable value: a closure or a bound builtin.
func (in *Interp) CallValue(callee, this Value, args []Value) (Value, error) {
	fn := callee.AsClosure()
	if fn == nil {
		return Undefined, ThrowType(in, "%s is not a function", callee.TypeOf())
	}
	if fn.Builtin != nil {
		if !fn.This.IsUndefined() {
			this = fn.This
		}
		return fn.Builtin(in, this, args)
	}
	if !fn.This.IsUndefined() || fn.Chunk.CaptureInfo != nil {
		this = fn.This
	}
	return in.runChunk(fn.Chunk, this, args, fn.Captures, nil)
}

// runChunk executes a chunk to completion. Async chunks return a task
// driven by a state machine; sync chunks run on the caller's stack.
func (in *Interp) runChunk(chunk *Chunk, this Value, args []Value, captures []*Cell, owner *Class) (Value, error) {
	frame := NewFrame(chunk, this, args)
	frame.Captures = captures
	frame.Owner = owner

	if chunk.IsAsync {
		machine := NewMachine(in, frame)
		machine.Builder.Start(machine)
		return ObjectValue(machine.Builder.Task()), nil
	}

	res, err := in.runFrame(frame)
	if err != nil {
		return Undefined, err
	}
	return res.Value, nil
}

// invokeMethod runs a class member on a receiver, trapping abstract
// slots.
func (in *Interp) invokeMethod(m *Method, this Value, args []Value) (Value, error) {
	if m.IsAbstract {
		return Undefined, ThrowType(in, "cannot invoke abstract %s %s.%s",
			m.Kind, m.Owner.Name, m.Name)
	}
	if m.Builtin != nil {
		return m.Builtin(in, this, args)
	}
	return in.runChunk(m.Chunk, this, args, nil, m.Owner)
}

// callSuperMethod dispatches name against the superclass of the class
// owning the currently executing method. The receiver stays the same.
func (in *Interp) callSuperMethod(f *Frame, name string, args []Value) (Value, error) {
	if f.Owner == nil || f.Owner.Superclass == nil {
		return Undefined, ThrowType(in, "no superclass for super.%s", name)
	}
	m := f.Owner.Superclass.ResolveMethod(name)
	if m == nil {
		return Undefined, ThrowType(in, "super.%s is not a method", name)
	}
	return in.invokeMethod(m, f.This, args)
}

// callSuperConstructor runs the superclass constructor chain for the
// instance under construction.
func (in *Interp) callSuperConstructor(f *Frame, args []Value) error {
	if f.Owner == nil || f.Owner.Superclass == nil {
		return ThrowType(in, "super called outside a subclass constructor")
	}
	return in.runConstructor(f.Owner.Superclass, f.This, args)
}

// runConstructor executes the declared or synthesized constructor of
// exactly cls against an already-allocated instance.
func (in *Interp) runConstructor(cls *Class, this Value, args []Value) error {
	ctor := cls.Constructor
	if ctor == nil {
		// No synthesized chunk: run the superclass chain directly,
		// then this class's field initializers.
		if cls.Superclass != nil {
			if err := in.runConstructor(cls.Superclass, this, args); err != nil {
				return err
			}
		}
		return in.initFields(cls, this)
	}
	if ctor.Builtin != nil {
		if cls.Superclass != nil {
			if err := in.runConstructor(cls.Superclass, this, args); err != nil {
				return err
			}
		}
		_, err := ctor.Builtin(in, this, args)
		return err
	}
	_, err := in.runChunk(ctor.Chunk, this, args, nil, cls)
	return err
}

// initFields runs cls's own field initializers in declaration order.
func (in *Interp) initFields(cls *Class, this Value) error {
	inst := this.AsInstance()
	for _, field := range cls.Fields {
		v := Undefined
		if field.Init != nil {
			var err error
			v, err = in.runChunk(field.Init, this, nil, nil, cls)
			if err != nil {
				return err
			}
		}
		inst.Fields.Set(field.Name, v)
	}
	return nil
}

// Construct instantiates a class by name: allocate, then run the
// constructor protocol.
func (in *Interp) Construct(name string, args []Value) (Value, error) {
	cls := in.Program.Classes.Lookup(name)
	if cls == nil {
		return Undefined, ThrowType(in, "%s is not a class", name)
	}
	return in.ConstructClass(cls, args)
}

// ConstructClass instantiates cls with args.
func (in *Interp) ConstructClass(cls *Class, args []Value) (Value, error) {
	if cls.IsAbstract {
		return Undefined, ThrowType(in, "cannot instantiate abstract class %s", cls.Name)
	}
	inst := NewInstance(cls)
	this := ObjectValue(inst)
	if err := in.runConstructor(cls, this, args); err != nil {
		return Undefined, err
	}
	return this, nil
}

// EnsureStaticInit lazily runs a class's static field initializers.
// Superclass statics initialize first.
func (in *Interp) EnsureStaticInit(cls *Class) error {
	if cls.staticsReady {
		return nil
	}
	cls.staticsReady = true
	if cls.Superclass != nil {
		if err := in.EnsureStaticInit(cls.Superclass); err != nil {
			return err
		}
	}
	for _, field := range cls.StaticFields {
		v := Undefined
		if field.Init != nil {
			var err error
			v, err = in.runChunk(field.Init, ObjectValue(cls), nil, nil, cls)
			if err != nil {
				return err
			}
		}
		cls.Statics.Set(field.Name, v)
	}
	return nil
}
