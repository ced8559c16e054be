package vm

import (
	"strings"
)

// ---------------------------------------------------------------------------
// Member access: fields, accessors, bound methods, builtin members
// ---------------------------------------------------------------------------

// GetMember reads receiver.name: accessor and field lookup for
// instances, static lookup for classes, builtin members for strings,
// arrays and plain objects.
func (in *Interp) GetMember(recv Value, name string) (Value, error) {
	switch recv.Kind {
	case KindUndefined, KindNull:
		return Undefined, ThrowType(in, "cannot read property %q of %s", name, recv.Kind)

	case KindString:
		return in.stringMember(recv.Str, name)

	case KindObject:
		switch o := recv.Obj.(type) {
		case *Instance:
			return in.instanceMember(o, recv, name)
		case *Object:
			return o.Get(name), nil
		case *Array:
			return in.arrayMember(o, recv, name)
		case *Class:
			return in.classMember(o, name)
		case *Task:
			return Undefined, nil
		}
	}
	return Undefined, nil
}

// SetMember writes receiver.name = value, routing through setters.
func (in *Interp) SetMember(recv Value, name string, v Value) error {
	switch recv.Kind {
	case KindUndefined, KindNull:
		return ThrowType(in, "cannot set property %q of %s", name, recv.Kind)
	case KindObject:
		switch o := recv.Obj.(type) {
		case *Instance:
			if setter := o.Class.ResolveSetter(name); setter != nil {
				_, err := in.invokeMethod(setter, recv, []Value{v})
				return err
			}
			if o.Class.ResolveGetter(name) != nil {
				return ThrowType(in, "cannot set property %s: it only has a getter", name)
			}
			o.Fields.Set(name, v)
			return nil
		case *Object:
			o.Set(name, v)
			return nil
		case *Class:
			if err := in.EnsureStaticInit(o); err != nil {
				return err
			}
			o.Statics.Set(name, v)
			return nil
		}
	}
	return ThrowType(in, "cannot set property %q of %s", name, recv.TypeOf())
}

// CallMember invokes receiver.name(args), preferring direct method
// dispatch over property lookup.
func (in *Interp) CallMember(recv Value, name string, args []Value) (Value, error) {
	if inst := recv.AsInstance(); inst != nil {
		if m := inst.Class.ResolveMethod(name); m != nil {
			return in.invokeMethod(m, recv, args)
		}
	}
	if cls := recv.AsClass(); cls != nil {
		if m := cls.ResolveStatic(name); m != nil {
			if err := in.EnsureStaticInit(cls); err != nil {
				return Undefined, err
			}
			return in.invokeMethod(m, ObjectValue(cls), args)
		}
	}
	member, err := in.GetMember(recv, name)
	if err != nil {
		return Undefined, err
	}
	if member.AsClosure() == nil {
		return Undefined, ThrowType(in, "%s.%s is not a function", recv.TypeOf(), name)
	}
	return in.CallValue(member, recv, args)
}

// instanceMember resolves getters, fields, then bound methods.
func (in *Interp) instanceMember(inst *Instance, recv Value, name string) (Value, error) {
	if getter := inst.Class.ResolveGetter(name); getter != nil {
		return in.invokeMethod(getter, recv, nil)
	}
	if inst.Fields.Has(name) {
		return inst.Fields.Get(name), nil
	}
	if m := inst.Class.ResolveMethod(name); m != nil {
		method := m
		return ObjectValue(&Closure{
			Name: inst.Class.Name + "." + name,
			This: recv,
			Builtin: func(in *Interp, this Value, args []Value) (Value, error) {
				return in.invokeMethod(method, this, args)
			},
		}), nil
	}
	return Undefined, nil
}

// classMember resolves static fields and bound static methods.
func (in *Interp) classMember(cls *Class, name string) (Value, error) {
	if name == "name" {
		return StringValue(cls.Name), nil
	}
	if err := in.EnsureStaticInit(cls); err != nil {
		return Undefined, err
	}
	if cls.Statics.Has(name) {
		return cls.Statics.Get(name), nil
	}
	for cur := cls.Superclass; cur != nil; cur = cur.Superclass {
		if err := in.EnsureStaticInit(cur); err != nil {
			return Undefined, err
		}
		if cur.Statics.Has(name) {
			return cur.Statics.Get(name), nil
		}
	}
	if m := cls.ResolveStatic(name); m != nil {
		method := m
		return ObjectValue(&Closure{
			Name: cls.Name + "." + name,
			This: ObjectValue(cls),
			Builtin: func(in *Interp, this Value, args []Value) (Value, error) {
				return in.invokeMethod(method, this, args)
			},
		}), nil
	}
	return Undefined, nil
}

// ---------------------------------------------------------------------------
// Indexing
// ---------------------------------------------------------------------------

func (in *Interp) getIndex(recv, key Value) (Value, error) {
	switch {
	case recv.AsArray() != nil:
		return recv.AsArray().Get(int(toNumber(key))), nil
	case recv.Kind == KindString:
		i := int(toNumber(key))
		runes := []rune(recv.Str)
		if i < 0 || i >= len(runes) {
			return Undefined, nil
		}
		return StringValue(string(runes[i])), nil
	case recv.AsObject() != nil:
		return recv.AsObject().Get(key.ToDisplayString()), nil
	case recv.AsInstance() != nil:
		return in.GetMember(recv, key.ToDisplayString())
	case recv.IsNullish():
		return Undefined, ThrowType(in, "cannot index %s", recv.Kind)
	}
	return Undefined, nil
}

func (in *Interp) setIndex(recv, key, v Value) error {
	switch {
	case recv.AsArray() != nil:
		recv.AsArray().Set(int(toNumber(key)), v)
		return nil
	case recv.AsObject() != nil:
		recv.AsObject().Set(key.ToDisplayString(), v)
		return nil
	case recv.AsInstance() != nil:
		return in.SetMember(recv, key.ToDisplayString(), v)
	}
	return ThrowType(in, "cannot index-assign %s", recv.TypeOf())
}

// ---------------------------------------------------------------------------
// String members
// ---------------------------------------------------------------------------

func (in *Interp) stringMember(s, name string) (Value, error) {
	switch name {
	case "length":
		return NumberValue(float64(len([]rune(s)))), nil
	case "message":
		// Thrown strings expose themselves as their own message, so
		// catch blocks can read e.message uniformly.
		return StringValue(s), nil
	}

	bind := func(fn BuiltinFn) (Value, error) {
		return ObjectValue(&Closure{Name: "String." + name, This: StringValue(s), Builtin: fn}), nil
	}

	switch name {
	case "toUpperCase":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			return StringValue(strings.ToUpper(this.Str)), nil
		})
	case "toLowerCase":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			return StringValue(strings.ToLower(this.Str)), nil
		})
	case "includes":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			return BoolValue(strings.Contains(this.Str, argString(args, 0))), nil
		})
	case "indexOf":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			return NumberValue(float64(strings.Index(this.Str, argString(args, 0)))), nil
		})
	case "startsWith":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			return BoolValue(strings.HasPrefix(this.Str, argString(args, 0))), nil
		})
	case "endsWith":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			return BoolValue(strings.HasSuffix(this.Str, argString(args, 0))), nil
		})
	case "trim":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			return StringValue(strings.TrimSpace(this.Str)), nil
		})
	case "split":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			parts := strings.Split(this.Str, argString(args, 0))
			arr := NewArray()
			for _, p := range parts {
				arr.Elements = append(arr.Elements, StringValue(p))
			}
			return ObjectValue(arr), nil
		})
	case "slice":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			runes := []rune(this.Str)
			start, end := sliceBounds(len(runes), args)
			return StringValue(string(runes[start:end])), nil
		})
	case "charAt":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			runes := []rune(this.Str)
			i := 0
			if len(args) > 0 {
				i = int(toNumber(args[0]))
			}
			if i < 0 || i >= len(runes) {
				return StringValue(""), nil
			}
			return StringValue(string(runes[i])), nil
		})
	case "repeat":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			n := int(toNumber(argValue(args, 0)))
			if n < 0 {
				return Undefined, ThrowString(in, "invalid repeat count")
			}
			return StringValue(strings.Repeat(this.Str, n)), nil
		})
	}
	return Undefined, nil
}

// ---------------------------------------------------------------------------
// Array members
// ---------------------------------------------------------------------------

func (in *Interp) arrayMember(arr *Array, recv Value, name string) (Value, error) {
	if name == "length" {
		return NumberValue(float64(arr.Len())), nil
	}

	bind := func(fn BuiltinFn) (Value, error) {
		return ObjectValue(&Closure{Name: "Array." + name, This: recv, Builtin: fn}), nil
	}

	switch name {
	case "push":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			a := this.AsArray()
			a.Elements = append(a.Elements, args...)
			return NumberValue(float64(a.Len())), nil
		})
	case "pop":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			a := this.AsArray()
			if a.Len() == 0 {
				return Undefined, nil
			}
			v := a.Elements[a.Len()-1]
			a.Elements = a.Elements[:a.Len()-1]
			return v, nil
		})
	case "indexOf":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			a := this.AsArray()
			target := argValue(args, 0)
			for i, el := range a.Elements {
				if StrictEquals(el, target) {
					return NumberValue(float64(i)), nil
				}
			}
			return NumberValue(-1), nil
		})
	case "includes":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			a := this.AsArray()
			target := argValue(args, 0)
			for _, el := range a.Elements {
				if StrictEquals(el, target) {
					return True, nil
				}
			}
			return False, nil
		})
	case "join":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			sep := ","
			if len(args) > 0 {
				sep = args[0].ToDisplayString()
			}
			a := this.AsArray()
			parts := make([]string, a.Len())
			for i, el := range a.Elements {
				if !el.IsNullish() {
					parts[i] = el.ToDisplayString()
				}
			}
			return StringValue(strings.Join(parts, sep)), nil
		})
	case "slice":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			a := this.AsArray()
			start, end := sliceBounds(a.Len(), args)
			out := make([]Value, end-start)
			copy(out, a.Elements[start:end])
			return ObjectValue(&Array{Elements: out}), nil
		})
	case "concat":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			a := this.AsArray()
			out := make([]Value, 0, a.Len())
			out = append(out, a.Elements...)
			for _, arg := range args {
				if other := arg.AsArray(); other != nil {
					out = append(out, other.Elements...)
				} else {
					out = append(out, arg)
				}
			}
			return ObjectValue(&Array{Elements: out}), nil
		})
	case "map":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			a := this.AsArray()
			fn := argValue(args, 0)
			out := make([]Value, a.Len())
			for i, el := range a.Elements {
				v, err := in.CallValue(fn, Undefined, []Value{el, NumberValue(float64(i))})
				if err != nil {
					return Undefined, err
				}
				out[i] = v
			}
			return ObjectValue(&Array{Elements: out}), nil
		})
	case "filter":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			a := this.AsArray()
			fn := argValue(args, 0)
			out := []Value{}
			for i, el := range a.Elements {
				v, err := in.CallValue(fn, Undefined, []Value{el, NumberValue(float64(i))})
				if err != nil {
					return Undefined, err
				}
				if v.Truthy() {
					out = append(out, el)
				}
			}
			return ObjectValue(&Array{Elements: out}), nil
		})
	case "forEach":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			a := this.AsArray()
			fn := argValue(args, 0)
			for i, el := range a.Elements {
				if _, err := in.CallValue(fn, Undefined, []Value{el, NumberValue(float64(i))}); err != nil {
					return Undefined, err
				}
			}
			return Undefined, nil
		})
	case "reduce":
		return bind(func(in *Interp, this Value, args []Value) (Value, error) {
			a := this.AsArray()
			fn := argValue(args, 0)
			acc := argValue(args, 1)
			start := 0
			if len(args) < 2 {
				if a.Len() == 0 {
					return Undefined, ThrowType(in, "reduce of empty array with no initial value")
				}
				acc = a.Elements[0]
				start = 1
			}
			for i := start; i < a.Len(); i++ {
				v, err := in.CallValue(fn, Undefined, []Value{acc, a.Elements[i], NumberValue(float64(i))})
				if err != nil {
					return Undefined, err
				}
				acc = v
			}
			return acc, nil
		})
	}
	return Undefined, nil
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

func argValue(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}

func argString(args []Value, i int) string {
	return argValue(args, i).ToDisplayString()
}

// sliceBounds clamps slice(start, end) arguments to [0, length],
// resolving negative indexes from the end.
func sliceBounds(length int, args []Value) (int, int) {
	start, end := 0, length
	if len(args) > 0 && !args[0].IsUndefined() {
		start = clampIndex(int(toNumber(args[0])), length)
	}
	if len(args) > 1 && !args[1].IsUndefined() {
		end = clampIndex(int(toNumber(args[1])), length)
	}
	if end < start {
		end = start
	}
	return start, end
}

func clampIndex(i, length int) int {
	if i < 0 {
		i += length
	}
	if i < 0 {
		return 0
	}
	if i > length {
		return length
	}
	return i
}
