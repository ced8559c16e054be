package compiler

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Semantic Analyzer: Pre-codegen semantic checks
// ---------------------------------------------------------------------------

// SemanticAnalyzer performs semantic analysis on a parsed program before
// code generation. It checks for undefined variables, const reassignment,
// and duplicate declarations.
type SemanticAnalyzer struct {
	errors   []string
	warnings []string

	// Known globals that are always defined
	knownGlobals map[string]bool

	// Classes declared in this program
	classes map[string]*ClassDecl

	// Scope tracking for the body currently being analyzed
	scopes []scopeFrame

	currentClass *ClassDecl
}

// scopeFrame represents a lexical scope for variable lookup.
type scopeFrame struct {
	vars   map[string]bool
	consts map[string]bool
}

// NewSemanticAnalyzer creates a new semantic analyzer.
func NewSemanticAnalyzer() *SemanticAnalyzer {
	return &SemanticAnalyzer{
		knownGlobals: defaultKnownGlobals(),
		classes:      map[string]*ClassDecl{},
	}
}

// defaultKnownGlobals returns the set of always-defined global names.
func defaultKnownGlobals() map[string]bool {
	return map[string]bool{
		"console":   true,
		"Promise":   true,
		"Math":      true,
		"JSON":      true,
		"Error":     true,
		"TypeError": true,
		"Object":    true,
		"Array":     true,
		"String":    true,
		"Number":    true,
		"Boolean":   true,
		"NaN":       true,
		"Infinity":  true,
	}
}

// AddKnownGlobal adds a global to the known globals set.
func (s *SemanticAnalyzer) AddKnownGlobal(name string) {
	s.knownGlobals[name] = true
}

// Analyze runs all checks over a program. It returns hard errors;
// advisory findings are available through Warnings.
func (s *SemanticAnalyzer) Analyze(prog *Program) []string {
	for _, cls := range prog.Classes {
		if _, dup := s.classes[cls.Name]; dup {
			s.errorf("class %s declared more than once", cls.Name)
		}
		s.classes[cls.Name] = cls
		s.knownGlobals[cls.Name] = true
	}
	for _, fn := range prog.Functions {
		s.knownGlobals[fn.Name] = true
	}

	for _, cls := range prog.Classes {
		s.analyzeClass(cls)
	}
	for _, fn := range prog.Functions {
		s.pushScope()
		s.declareParams(fn.Params)
		s.analyzeStmts(fn.Body)
		s.popScope()
	}
	if len(prog.Statements) > 0 {
		s.pushScope()
		s.analyzeStmts(prog.Statements)
		s.popScope()
	}
	return s.errors
}

// Warnings returns advisory findings from the last Analyze call.
func (s *SemanticAnalyzer) Warnings() []string {
	return s.warnings
}

func (s *SemanticAnalyzer) errorf(format string, args ...interface{}) {
	s.errors = append(s.errors, fmt.Sprintf(format, args...))
}

func (s *SemanticAnalyzer) warnf(format string, args ...interface{}) {
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Class checks
// ---------------------------------------------------------------------------

func (s *SemanticAnalyzer) analyzeClass(cls *ClassDecl) {
	s.currentClass = cls
	defer func() { s.currentClass = nil }()

	if cls.Superclass != "" {
		if _, ok := s.classes[cls.Superclass]; !ok {
			s.warnf("class %s extends %s, which is not declared in this program",
				cls.Name, cls.Superclass)
		}
	}

	seen := map[string]string{}
	declare := func(name, kind string) {
		if prev, dup := seen[name]; dup {
			s.errorf("class %s: %s %s conflicts with %s of the same name",
				cls.Name, kind, name, prev)
			return
		}
		seen[name] = kind
	}
	for _, f := range cls.Fields {
		declare(f.Name, "field")
	}
	for _, m := range cls.Methods {
		declare(m.Name, "method")
	}
	getters := map[string]bool{}
	setters := map[string]bool{}
	for _, a := range cls.Accessors {
		if a.Kind == GetterAccessor {
			if getters[a.Name] {
				s.errorf("class %s: duplicate getter %s", cls.Name, a.Name)
			}
			getters[a.Name] = true
		} else {
			if setters[a.Name] {
				s.errorf("class %s: duplicate setter %s", cls.Name, a.Name)
			}
			setters[a.Name] = true
		}
		if kind, clash := seen[a.Name]; clash {
			s.errorf("class %s: accessor %s conflicts with %s of the same name",
				cls.Name, a.Name, kind)
		}
	}

	// Unimplemented inherited abstract members only fail when the
	// class is itself concrete.
	if !cls.IsAbstract {
		for _, m := range s.unimplementedAbstract(cls) {
			s.errorf("class %s must implement inherited abstract member %s", cls.Name, m)
		}
	}

	for _, f := range cls.Fields {
		if f.Init != nil {
			s.pushScope()
			s.analyzeExpr(f.Init)
			s.popScope()
		}
	}
	if cls.Constructor != nil {
		s.analyzeBody(cls.Constructor.Params, cls.Constructor.Body)
	}
	for _, m := range cls.Methods {
		if m.Body != nil {
			s.analyzeBody(m.Params, m.Body)
		}
	}
	for _, a := range cls.Accessors {
		if a.Body == nil {
			continue
		}
		var params []Param
		if a.Kind == SetterAccessor {
			params = []Param{{Name: a.SetterParam}}
		}
		s.analyzeBody(params, a.Body)
	}
}

// unimplementedAbstract walks the superclass chain declared in this
// program and collects abstract members without a concrete
// implementation at or below cls.
func (s *SemanticAnalyzer) unimplementedAbstract(cls *ClassDecl) []string {
	implemented := map[string]bool{}
	var missing []string
	for c := cls; c != nil; c = s.classes[c.Superclass] {
		for _, m := range c.Methods {
			if m.IsAbstract {
				if !implemented[m.Name] {
					missing = append(missing, c.Name+"."+m.Name)
				}
			} else {
				implemented[m.Name] = true
			}
		}
		for _, a := range c.Accessors {
			key := accessorKey(a.Kind, a.Name)
			if a.IsAbstract {
				if !implemented[key] {
					missing = append(missing, c.Name+"."+a.Name)
				}
			} else {
				implemented[key] = true
			}
		}
		if c.Superclass == "" {
			break
		}
	}
	return missing
}

func accessorKey(kind AccessorKind, name string) string {
	if kind == GetterAccessor {
		return "get " + name
	}
	return "set " + name
}

// ---------------------------------------------------------------------------
// Body checks
// ---------------------------------------------------------------------------

func (s *SemanticAnalyzer) analyzeBody(params []Param, body []Stmt) {
	s.pushScope()
	s.declareParams(params)
	s.analyzeStmts(body)
	s.popScope()
}

func (s *SemanticAnalyzer) pushScope() {
	s.scopes = append(s.scopes, scopeFrame{
		vars:   map[string]bool{},
		consts: map[string]bool{},
	})
}

func (s *SemanticAnalyzer) popScope() {
	s.scopes = s.scopes[:len(s.scopes)-1]
}

func (s *SemanticAnalyzer) declareParams(params []Param) {
	top := &s.scopes[len(s.scopes)-1]
	for _, p := range params {
		top.vars[p.Name] = true
		if p.Default != nil {
			s.analyzeExpr(p.Default)
		}
	}
}

func (s *SemanticAnalyzer) declareVar(name string, isConst bool) {
	top := &s.scopes[len(s.scopes)-1]
	if top.vars[name] {
		s.errorf("variable %s redeclared in the same scope", name)
	}
	top.vars[name] = true
	if isConst {
		top.consts[name] = true
	}
}

// resolve reports whether name is visible in a scope or as a known
// global.
func (s *SemanticAnalyzer) resolve(name string) bool {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if s.scopes[i].vars[name] {
			return true
		}
	}
	return s.knownGlobals[name]
}

// isConst reports whether name resolves to a const binding.
func (s *SemanticAnalyzer) isConst(name string) bool {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if s.scopes[i].vars[name] {
			return s.scopes[i].consts[name]
		}
	}
	return false
}

func (s *SemanticAnalyzer) analyzeStmts(stmts []Stmt) {
	for _, stmt := range stmts {
		s.analyzeStmt(stmt)
	}
}

func (s *SemanticAnalyzer) analyzeStmt(stmt Stmt) {
	switch n := stmt.(type) {
	case *ExprStmt:
		s.analyzeExpr(n.Expr)
	case *VarDecl:
		if n.Init != nil {
			s.analyzeExpr(n.Init)
		}
		s.declareVar(n.Name, n.Const)
	case *Return:
		if n.Value != nil {
			s.analyzeExpr(n.Value)
		}
	case *If:
		s.analyzeExpr(n.Cond)
		s.pushScope()
		s.analyzeStmts(n.Then)
		s.popScope()
		if n.Else != nil {
			s.pushScope()
			s.analyzeStmts(n.Else)
			s.popScope()
		}
	case *While:
		s.analyzeExpr(n.Cond)
		s.pushScope()
		s.analyzeStmts(n.Body)
		s.popScope()
	case *For:
		s.pushScope()
		if n.Init != nil {
			s.analyzeStmt(n.Init)
		}
		if n.Cond != nil {
			s.analyzeExpr(n.Cond)
		}
		if n.Post != nil {
			s.analyzeExpr(n.Post)
		}
		s.analyzeStmts(n.Body)
		s.popScope()
	case *ForOf:
		s.analyzeExpr(n.Iterable)
		s.pushScope()
		s.declareVar(n.VarName, false)
		s.analyzeStmts(n.Body)
		s.popScope()
	case *Try:
		s.pushScope()
		s.analyzeStmts(n.Body)
		s.popScope()
		s.pushScope()
		if n.CatchVar != "" {
			s.declareVar(n.CatchVar, false)
		}
		s.analyzeStmts(n.CatchBody)
		s.popScope()
	case *Throw:
		s.analyzeExpr(n.Value)
	case *Block:
		s.pushScope()
		s.analyzeStmts(n.Body)
		s.popScope()
	}
}

func (s *SemanticAnalyzer) analyzeExpr(expr Expr) {
	switch n := expr.(type) {
	case *Identifier:
		if !s.resolve(n.Name) {
			s.warnf("variable '%s' may be undefined", n.Name)
		}
	case *TemplateLiteral:
		for _, e := range n.Exprs {
			s.analyzeExpr(e)
		}
	case *ArrayLiteral:
		for _, e := range n.Elements {
			s.analyzeExpr(e)
		}
	case *ObjectLiteral:
		for _, v := range n.Values {
			s.analyzeExpr(v)
		}
	case *Binary:
		s.analyzeExpr(n.Left)
		s.analyzeExpr(n.Right)
	case *Unary:
		s.analyzeExpr(n.Operand)
	case *Assign:
		if id, ok := n.Target.(*Identifier); ok {
			if s.isConst(id.Name) {
				s.errorf("cannot assign to const %s", id.Name)
			}
			if !s.resolve(id.Name) {
				s.warnf("assignment to undeclared variable '%s'", id.Name)
			}
		} else {
			s.analyzeExpr(n.Target)
		}
		s.analyzeExpr(n.Value)
	case *Call:
		s.analyzeExpr(n.Callee)
		for _, a := range n.Args {
			s.analyzeExpr(a)
		}
	case *MemberAccess:
		s.analyzeExpr(n.Receiver)
	case *Index:
		s.analyzeExpr(n.Receiver)
		s.analyzeExpr(n.Key)
	case *Await:
		s.analyzeExpr(n.Operand)
	case *New:
		if cls, ok := s.classes[n.ClassName]; ok && cls.IsAbstract {
			s.errorf("cannot instantiate abstract class %s", n.ClassName)
		} else if !ok && !s.knownGlobals[n.ClassName] {
			s.warnf("class '%s' may be undefined", n.ClassName)
		}
		for _, a := range n.Args {
			s.analyzeExpr(a)
		}
	case *SuperCall:
		for _, a := range n.Args {
			s.analyzeExpr(a)
		}
	case *SuperMethodCall:
		for _, a := range n.Args {
			s.analyzeExpr(a)
		}
	case *ArrowFn:
		s.pushScope()
		s.declareParams(n.Params)
		s.analyzeStmts(n.Body)
		s.popScope()
	case *Cast:
		s.analyzeExpr(n.Operand)
	case *NonNull:
		s.analyzeExpr(n.Operand)
	}
}
