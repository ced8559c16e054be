package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Value: the runtime representation of every Tycho value
// ---------------------------------------------------------------------------

// ValueKind discriminates the payload of a Value.
type ValueKind uint8

const (
	KindUndefined ValueKind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindObject // plain object, array, instance, function, task
)

// String returns a human-readable name for the kind.
func (k ValueKind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("ValueKind(%d)", uint8(k))
	}
}

// Value is a tagged union. Numbers are IEEE-754 doubles; reference
// kinds carry their payload in Obj.
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
	Obj  interface{}
}

// Undefined is the undefined value.
var Undefined = Value{Kind: KindUndefined}

// Null is the null value.
var Null = Value{Kind: KindNull}

// True and False are the boolean values.
var (
	True  = Value{Kind: KindBool, Num: 1}
	False = Value{Kind: KindBool}
)

// NumberValue wraps a float64.
func NumberValue(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}

// StringValue wraps a string.
func StringValue(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// BoolValue wraps a bool.
func BoolValue(b bool) Value {
	if b {
		return True
	}
	return False
}

// ObjectValue wraps a reference payload (Object, Array, Instance,
// Closure, Task, Class).
func ObjectValue(obj interface{}) Value {
	return Value{Kind: KindObject, Obj: obj}
}

// IsUndefined reports whether v is undefined.
func (v Value) IsUndefined() bool { return v.Kind == KindUndefined }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// IsNullish reports whether v is null or undefined.
func (v Value) IsNullish() bool { return v.Kind == KindUndefined || v.Kind == KindNull }

// Bool returns the boolean payload.
func (v Value) Bool() bool { return v.Kind == KindBool && v.Num != 0 }

// AsArray returns the array payload, or nil.
func (v Value) AsArray() *Array {
	if v.Kind != KindObject {
		return nil
	}
	arr, _ := v.Obj.(*Array)
	return arr
}

// AsObject returns the plain-object payload, or nil.
func (v Value) AsObject() *Object {
	if v.Kind != KindObject {
		return nil
	}
	obj, _ := v.Obj.(*Object)
	return obj
}

// AsInstance returns the class-instance payload, or nil.
func (v Value) AsInstance() *Instance {
	if v.Kind != KindObject {
		return nil
	}
	inst, _ := v.Obj.(*Instance)
	return inst
}

// AsClosure returns the closure payload, or nil.
func (v Value) AsClosure() *Closure {
	if v.Kind != KindObject {
		return nil
	}
	fn, _ := v.Obj.(*Closure)
	return fn
}

// AsTask returns the task payload, or nil.
func (v Value) AsTask() *Task {
	if v.Kind != KindObject {
		return nil
	}
	t, _ := v.Obj.(*Task)
	return t
}

// AsClass returns the class payload, or nil.
func (v Value) AsClass() *Class {
	if v.Kind != KindObject {
		return nil
	}
	c, _ := v.Obj.(*Class)
	return c
}

// Truthy implements the usual truthiness rules: false, 0, NaN, "",
// null and undefined are falsy; everything else is truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindUndefined, KindNull:
		return false
	case KindBool:
		return v.Num != 0
	case KindNumber:
		return v.Num != 0 && !math.IsNaN(v.Num)
	case KindString:
		return v.Str != ""
	default:
		return true
	}
}

// StrictEquals implements === semantics: no coercion, reference
// identity for objects, NaN !== NaN.
func StrictEquals(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return a.Bool() == b.Bool()
	case KindNumber:
		return a.Num == b.Num
	case KindString:
		return a.Str == b.Str
	default:
		return a.Obj == b.Obj
	}
}

// LooseEquals implements == semantics over the subset: null and
// undefined equal each other, number/string coercion, otherwise
// strict.
func LooseEquals(a, b Value) bool {
	if a.Kind == b.Kind {
		return StrictEquals(a, b)
	}
	if a.IsNullish() && b.IsNullish() {
		return true
	}
	if a.Kind == KindNumber && b.Kind == KindString {
		return a.Num == toNumber(b)
	}
	if a.Kind == KindString && b.Kind == KindNumber {
		return toNumber(a) == b.Num
	}
	if a.Kind == KindBool {
		return LooseEquals(NumberValue(a.Num), b)
	}
	if b.Kind == KindBool {
		return LooseEquals(a, NumberValue(b.Num))
	}
	return false
}

// toNumber coerces a value to a number for arithmetic and loose
// comparison.
func toNumber(v Value) float64 {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Num
	case KindNull:
		return 0
	case KindString:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// FormatNumber renders a float64 the way scripts expect: integral
// values without a fraction, NaN and infinities spelled out.
func FormatNumber(n float64) string {
	if math.IsNaN(n) {
		return "NaN"
	}
	if math.IsInf(n, 1) {
		return "Infinity"
	}
	if math.IsInf(n, -1) {
		return "-Infinity"
	}
	if n == math.Trunc(n) && math.Abs(n) < 1e21 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// ToDisplayString renders a value for console output and template
// interpolation.
func (v Value) ToDisplayString() string {
	switch v.Kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		if v.Bool() {
			return "true"
		}
		return "false"
	case KindNumber:
		return FormatNumber(v.Num)
	case KindString:
		return v.Str
	default:
		return v.displayObject()
	}
}

func (v Value) displayObject() string {
	switch o := v.Obj.(type) {
	case *Array:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, el := range o.Elements {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(el.ToDisplayString())
		}
		sb.WriteByte(']')
		return sb.String()
	case *Object:
		var sb strings.Builder
		sb.WriteByte('{')
		for i, k := range o.Keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			sb.WriteString(o.Fields[k].ToDisplayString())
		}
		sb.WriteByte('}')
		return sb.String()
	case *Instance:
		return "[object " + o.Class.Name + "]"
	case *Closure:
		return "[function]"
	case *Task:
		return "[task]"
	case *Class:
		return "[class " + o.Name + "]"
	default:
		return "[object]"
	}
}

// TypeOf returns the typeof-style name of a value.
func (v Value) TypeOf() string {
	switch v.Kind {
	case KindObject:
		if _, ok := v.Obj.(*Closure); ok {
			return "function"
		}
		return "object"
	default:
		return v.Kind.String()
	}
}
