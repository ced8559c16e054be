package vm

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Class: runtime class representation and registration
// ---------------------------------------------------------------------------

// MethodKind distinguishes the dispatch tables a member lives in.
type MethodKind uint8

const (
	KindInstanceMethod MethodKind = iota
	KindStaticMethod
	KindGetter
	KindSetter
	KindConstructorMethod
)

// String returns a human-readable name for the kind.
func (k MethodKind) String() string {
	switch k {
	case KindInstanceMethod:
		return "method"
	case KindStaticMethod:
		return "static method"
	case KindGetter:
		return "getter"
	case KindSetter:
		return "setter"
	case KindConstructorMethod:
		return "constructor"
	default:
		return fmt.Sprintf("MethodKind(%d)", uint8(k))
	}
}

// Method is a class member: a compiled body, or an abstract slot that
// traps on invocation.
type Method struct {
	Name       string
	Kind       MethodKind
	Chunk      *Chunk // nil while declared but not yet defined, and for abstract members
	Builtin    BuiltinFn
	IsAbstract bool
	IsAsync    bool
	IsOverride bool
	Owner      *Class
}

// FieldInfo describes a declared field and its initializer.
type FieldInfo struct {
	Name string
	Init *Chunk // compiled initializer expression; nil means undefined
}

// GenericInfo carries an erased generic parameter descriptor for
// diagnostics and reflection.
type GenericInfo struct {
	Name       string
	Constraint string
}

// Class is the runtime representation of a declared class.
type Class struct {
	Name       string
	Superclass *Class
	IsAbstract bool
	Generics   []GenericInfo

	// Declared instance members, local to this class
	Fields  []FieldInfo
	Methods map[string]*Method // instance methods
	Getters map[string]*Method
	Setters map[string]*Method

	// Constructor; nil means the implicit constructor
	Constructor *Method

	// Static members
	StaticFields  []FieldInfo
	StaticMethods map[string]*Method
	Statics       *Object // static field storage, lazily initialized
	staticsReady  bool
}

// NewClass creates an empty class shell. Members are attached during
// definition.
func NewClass(name string) *Class {
	return &Class{
		Name:          name,
		Methods:       map[string]*Method{},
		Getters:       map[string]*Method{},
		Setters:       map[string]*Method{},
		StaticMethods: map[string]*Method{},
		Statics:       NewObject(),
	}
}

// IsSubclassOf reports whether c is other or a subclass of other.
func (c *Class) IsSubclassOf(other *Class) bool {
	for cur := c; cur != nil; cur = cur.Superclass {
		if cur == other {
			return true
		}
	}
	return false
}

// ResolveMethod finds an instance method by name, walking the
// superclass chain. Returns nil when not found.
func (c *Class) ResolveMethod(name string) *Method {
	for cur := c; cur != nil; cur = cur.Superclass {
		if m, ok := cur.Methods[name]; ok {
			return m
		}
	}
	return nil
}

// ResolveGetter finds a getter by name up the chain.
func (c *Class) ResolveGetter(name string) *Method {
	for cur := c; cur != nil; cur = cur.Superclass {
		if m, ok := cur.Getters[name]; ok {
			return m
		}
	}
	return nil
}

// ResolveSetter finds a setter by name up the chain.
func (c *Class) ResolveSetter(name string) *Method {
	for cur := c; cur != nil; cur = cur.Superclass {
		if m, ok := cur.Setters[name]; ok {
			return m
		}
	}
	return nil
}

// ResolveStatic finds a static method by name up the chain.
func (c *Class) ResolveStatic(name string) *Method {
	for cur := c; cur != nil; cur = cur.Superclass {
		if m, ok := cur.StaticMethods[name]; ok {
			return m
		}
	}
	return nil
}

// ResolveConstructor returns the nearest declared constructor up the
// chain, or nil when every class in the chain uses the implicit one.
func (c *Class) ResolveConstructor() *Method {
	for cur := c; cur != nil; cur = cur.Superclass {
		if cur.Constructor != nil {
			return cur.Constructor
		}
	}
	return nil
}

// AllFields returns declared fields from the root of the hierarchy
// down to c, in initialization order.
func (c *Class) AllFields() []FieldInfo {
	if c.Superclass == nil {
		return c.Fields
	}
	inherited := c.Superclass.AllFields()
	out := make([]FieldInfo, 0, len(inherited)+len(c.Fields))
	out = append(out, inherited...)
	out = append(out, c.Fields...)
	return out
}

// AbstractMembers returns names of abstract members not overridden by
// a concrete implementation at or below c.
func (c *Class) AbstractMembers() []string {
	concrete := map[string]bool{}
	missing := map[string]bool{}
	for cur := c; cur != nil; cur = cur.Superclass {
		check := func(key string, m *Method) {
			if m.IsAbstract {
				if !concrete[key] {
					missing[key] = true
				}
			} else {
				concrete[key] = true
			}
		}
		for name, m := range cur.Methods {
			check(name, m)
		}
		for name, m := range cur.Getters {
			check("get "+name, m)
		}
		for name, m := range cur.Setters {
			check("set "+name, m)
		}
	}
	names := make([]string, 0, len(missing))
	for k := range missing {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// ClassTable: two-phase registration
// ---------------------------------------------------------------------------

// ClassTable holds every class declared in a program. Registration is
// two-phase: Declare creates handles for all class names first, so
// bodies and superclass references can be cyclic-safe; Define then
// attaches members and validates the hierarchy.
type ClassTable struct {
	classes map[string]*Class
	order   []string
}

// NewClassTable creates an empty class table.
func NewClassTable() *ClassTable {
	return &ClassTable{classes: map[string]*Class{}}
}

// Declare creates (or returns) the handle for a class name.
func (t *ClassTable) Declare(name string) *Class {
	if c, ok := t.classes[name]; ok {
		return c
	}
	c := NewClass(name)
	t.classes[name] = c
	t.order = append(t.order, name)
	return c
}

// Lookup returns the class by name, or nil.
func (t *ClassTable) Lookup(name string) *Class {
	return t.classes[name]
}

// Names returns class names in declaration order.
func (t *ClassTable) Names() []string {
	return t.order
}

// DefineMethod attaches a member to a class, validating override and
// abstract rules against what is already registered.
func (t *ClassTable) DefineMethod(c *Class, m *Method) error {
	m.Owner = c
	switch m.Kind {
	case KindConstructorMethod:
		if c.Constructor != nil {
			return fmt.Errorf("class %s: duplicate constructor", c.Name)
		}
		c.Constructor = m
		return nil
	case KindStaticMethod:
		if _, dup := c.StaticMethods[m.Name]; dup {
			return fmt.Errorf("class %s: duplicate static method %s", c.Name, m.Name)
		}
		c.StaticMethods[m.Name] = m
		return nil
	case KindGetter:
		if _, dup := c.Getters[m.Name]; dup {
			return fmt.Errorf("class %s: duplicate getter %s", c.Name, m.Name)
		}
		c.Getters[m.Name] = m
		return nil
	case KindSetter:
		if _, dup := c.Setters[m.Name]; dup {
			return fmt.Errorf("class %s: duplicate setter %s", c.Name, m.Name)
		}
		c.Setters[m.Name] = m
		return nil
	}

	if _, dup := c.Methods[m.Name]; dup {
		return fmt.Errorf("class %s: duplicate method %s", c.Name, m.Name)
	}
	c.Methods[m.Name] = m
	return nil
}

// checkOverride enforces the override contract: override requires a
// superclass member of the same name, and shadowing a superclass
// member requires the override marker. Runs from Validate, once every
// class has its members registered, so declaration order between a
// class and its superclass does not matter.
func (t *ClassTable) checkOverride(c *Class, m *Method) error {
	var inherited *Method
	if c.Superclass != nil {
		inherited = c.Superclass.ResolveMethod(m.Name)
	}
	if m.IsOverride {
		if inherited == nil {
			return fmt.Errorf("class %s: method %s marked override but no superclass method exists",
				c.Name, m.Name)
		}
		return nil
	}
	if inherited != nil {
		return fmt.Errorf("class %s: method %s shadows %s.%s without override",
			c.Name, m.Name, inherited.Owner.Name, m.Name)
	}
	return nil
}

// Validate runs whole-hierarchy checks after all classes are defined:
// superclass links resolve, no inheritance cycles, override contracts
// hold, and every concrete class implements its inherited abstract
// members.
func (t *ClassTable) Validate() error {
	for _, name := range t.order {
		c := t.classes[name]

		seen := map[*Class]bool{}
		for cur := c; cur != nil; cur = cur.Superclass {
			if seen[cur] {
				return fmt.Errorf("class %s: inheritance cycle through %s", name, cur.Name)
			}
			seen[cur] = true
		}

		for _, mname := range sortedMethodNames(c.Methods) {
			if err := t.checkOverride(c, c.Methods[mname]); err != nil {
				return err
			}
		}

		if !c.IsAbstract {
			if missing := c.AbstractMembers(); len(missing) > 0 {
				return fmt.Errorf("class %s must implement abstract member %s",
					name, missing[0])
			}
		}
	}
	return nil
}
