package vm

import "fmt"

// ---------------------------------------------------------------------------
// Exceptions: thrown values and runtime errors
// ---------------------------------------------------------------------------

// ThrownError wraps a language-level thrown value as a Go error so it
// can propagate through call frames and task continuations. Any value
// may be thrown; Error instances are the common case.
type ThrownError struct {
	Value Value
}

// Error implements the error interface.
func (e *ThrownError) Error() string {
	return "uncaught exception: " + ErrorMessage(e.Value)
}

// Throw wraps a value as a ThrownError.
func Throw(v Value) error {
	return &ThrownError{Value: v}
}

// ThrowString throws a fresh Error instance with the given message.
func ThrowString(interp *Interp, format string, args ...interface{}) error {
	return Throw(interp.NewError("Error", fmt.Sprintf(format, args...)))
}

// ThrowType throws a TypeError with the given message.
func ThrowType(interp *Interp, format string, args ...interface{}) error {
	return Throw(interp.NewError("TypeError", fmt.Sprintf(format, args...)))
}

// Thrown extracts the thrown value from an error, when it carries one.
func Thrown(err error) (Value, bool) {
	if te, ok := err.(*ThrownError); ok {
		return te.Value, true
	}
	return Undefined, false
}

// ErrorMessage renders the message of a thrown value: the message
// field of an Error instance, the string itself for thrown strings,
// the display string otherwise.
func ErrorMessage(v Value) string {
	if inst := v.AsInstance(); inst != nil {
		if msg := inst.Fields.Get("message"); msg.Kind == KindString {
			return msg.Str
		}
	}
	return v.ToDisplayString()
}

// NewError constructs an instance of one of the builtin error classes.
// Unknown names fall back to Error.
func (in *Interp) NewError(className, message string) Value {
	cls := in.Program.Classes.Lookup(className)
	if cls == nil {
		cls = in.Program.Classes.Lookup("Error")
	}
	inst := NewInstance(cls)
	inst.Fields.Set("message", StringValue(message))
	inst.Fields.Set("name", StringValue(cls.Name))
	return ObjectValue(inst)
}

// registerErrorClasses installs the builtin Error hierarchy into a
// class table: Error with message/name fields, TypeError extending it.
func registerErrorClasses(t *ClassTable) {
	errCls := t.Declare("Error")
	errCls.Constructor = &Method{
		Name: "constructor",
		Kind: KindConstructorMethod,
		Builtin: func(interp *Interp, this Value, args []Value) (Value, error) {
			inst := this.AsInstance()
			msg := ""
			if len(args) > 0 && args[0].Kind == KindString {
				msg = args[0].Str
			} else if len(args) > 0 {
				msg = args[0].ToDisplayString()
			}
			inst.Fields.Set("message", StringValue(msg))
			inst.Fields.Set("name", StringValue(inst.Class.Name))
			return Undefined, nil
		},
	}
	errCls.Constructor.Owner = errCls

	typeErr := t.Declare("TypeError")
	typeErr.Superclass = errCls
}
