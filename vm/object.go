package vm

// ---------------------------------------------------------------------------
// Heap objects: plain objects, arrays, instances, closures, cells
// ---------------------------------------------------------------------------

// Object is a plain key/value object. Keys preserve insertion order so
// enumeration and display are deterministic.
type Object struct {
	Keys   []string
	Fields map[string]Value
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{Fields: map[string]Value{}}
}

// Get returns the value for key, or undefined.
func (o *Object) Get(key string) Value {
	if v, ok := o.Fields[key]; ok {
		return v
	}
	return Undefined
}

// Has reports whether the key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Fields[key]
	return ok
}

// Set stores a value, appending the key on first write.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.Fields[key]; !ok {
		o.Keys = append(o.Keys, key)
	}
	o.Fields[key] = v
}

// Array is a growable sequence of values.
type Array struct {
	Elements []Value
}

// NewArray creates an array with the given elements.
func NewArray(elements ...Value) *Array {
	return &Array{Elements: elements}
}

// Get returns the element at index, or undefined when out of range.
func (a *Array) Get(i int) Value {
	if i < 0 || i >= len(a.Elements) {
		return Undefined
	}
	return a.Elements[i]
}

// Set stores at index, growing with undefined holes as needed.
func (a *Array) Set(i int, v Value) {
	if i < 0 {
		return
	}
	for len(a.Elements) <= i {
		a.Elements = append(a.Elements, Undefined)
	}
	a.Elements[i] = v
}

// Len returns the element count.
func (a *Array) Len() int {
	return len(a.Elements)
}

// Instance is an object created from a class. Fields live in an
// ordered map shared with plain objects so dynamic access works the
// same way.
type Instance struct {
	Class  *Class
	Fields *Object
}

// NewInstance allocates an instance of cls with an empty field map.
// Field initializers run later, during construction.
func NewInstance(cls *Class) *Instance {
	return &Instance{Class: cls, Fields: NewObject()}
}

// Cell boxes a variable captured by a closure so that writes on
// either side of the capture stay visible.
type Cell struct {
	Value Value
}

// Closure is a compiled arrow function bound to its captured
// environment and receiver.
type Closure struct {
	Chunk    *Chunk
	Captures []*Cell
	This     Value // receiver captured lexically; Undefined outside methods

	// Builtin, when set, bypasses the chunk and calls into Go.
	Builtin BuiltinFn
	Name    string
}

// BuiltinFn is the signature of native functions exposed to scripts.
// It returns a result or a thrown value wrapped in *ThrownError.
type BuiltinFn func(interp *Interp, this Value, args []Value) (Value, error)

// NewBuiltin wraps a Go function as a callable closure.
func NewBuiltin(name string, fn BuiltinFn) *Closure {
	return &Closure{Name: name, Builtin: fn}
}
