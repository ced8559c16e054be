package vm

import (
	"fmt"

	"github.com/tycholang/tycho/compiler"
)

// ---------------------------------------------------------------------------
// Codegen: AST to bytecode lowering
// ---------------------------------------------------------------------------

// Codegen lowers a parsed program into a runnable Program image:
// class table, function table, and the top-level script chunk.
type Codegen struct {
	prog    *Program
	classes map[string]*compiler.ClassDecl
	errors  []string
}

// CompileError aggregates code generation failures.
type CompileError struct {
	Messages []string
}

func (e *CompileError) Error() string {
	if len(e.Messages) == 1 {
		return e.Messages[0]
	}
	return fmt.Sprintf("%s (and %d more errors)", e.Messages[0], len(e.Messages)-1)
}

// Generate lowers an AST program into a Program image.
func Generate(src *compiler.Program) (*Program, error) {
	g := &Codegen{
		prog:    NewProgram(),
		classes: map[string]*compiler.ClassDecl{},
	}

	// Phase one: declare every class so bodies can reference any
	// class regardless of declaration order.
	for _, decl := range src.Classes {
		g.classes[decl.Name] = decl
		cls := g.prog.Classes.Declare(decl.Name)
		cls.IsAbstract = decl.IsAbstract
		for _, gp := range decl.GenericParams {
			cls.Generics = append(cls.Generics, GenericInfo{
				Name:       gp.Name,
				Constraint: gp.Constraint,
			})
		}
	}

	// Phase two: link superclasses, then define members.
	for _, decl := range src.Classes {
		cls := g.prog.Classes.Lookup(decl.Name)
		if decl.Superclass != "" {
			super := g.prog.Classes.Lookup(decl.Superclass)
			if super == nil {
				g.errorf("class %s extends unknown class %s", decl.Name, decl.Superclass)
				continue
			}
			cls.Superclass = super
		}
	}
	for _, decl := range src.Classes {
		g.defineClass(g.prog.Classes.Lookup(decl.Name), decl)
	}
	if err := g.prog.Classes.Validate(); err != nil {
		g.errors = append(g.errors, err.Error())
	}

	for _, name := range g.prog.Classes.Names() {
		g.prog.Globals[name] = ObjectValue(g.prog.Classes.Lookup(name))
	}

	for _, fn := range src.Functions {
		chunk := g.compileBody(fn.Name, fn.Params, fn.Body, fn.IsAsync, nil, nil)
		g.prog.Globals[fn.Name] = ObjectValue(&Closure{Chunk: chunk, Name: fn.Name})
	}

	if len(src.Statements) > 0 {
		g.prog.Script = g.compileBody("(script)", nil, src.Statements, false, nil, nil)
	}

	if len(g.errors) > 0 {
		return nil, &CompileError{Messages: g.errors}
	}
	return g.prog, nil
}

func (g *Codegen) errorf(format string, args ...interface{}) {
	g.errors = append(g.errors, fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Class lowering
// ---------------------------------------------------------------------------

func (g *Codegen) defineClass(cls *Class, decl *compiler.ClassDecl) {
	for _, f := range decl.Fields {
		if f.IsStatic {
			info := FieldInfo{Name: f.Name}
			if f.Init != nil {
				info.Init = g.compileInitExpr(decl.Name+"."+f.Name, f.Init)
			}
			cls.StaticFields = append(cls.StaticFields, info)
		} else {
			cls.Fields = append(cls.Fields, FieldInfo{Name: f.Name})
		}
	}

	ctor := g.buildConstructor(cls, decl)
	if err := g.prog.Classes.DefineMethod(cls, ctor); err != nil {
		g.errors = append(g.errors, err.Error())
	}

	for _, m := range decl.Methods {
		kind := KindInstanceMethod
		if m.IsStatic {
			kind = KindStaticMethod
		}
		method := &Method{
			Name:       m.Name,
			Kind:       kind,
			IsAbstract: m.IsAbstract,
			IsAsync:    m.IsAsync,
			IsOverride: m.IsOverride,
		}
		if !m.IsAbstract {
			method.Chunk = g.compileBody(decl.Name+"."+m.Name, m.Params, m.Body, m.IsAsync, cls, nil)
		}
		if err := g.prog.Classes.DefineMethod(cls, method); err != nil {
			g.errors = append(g.errors, err.Error())
		}
	}

	for _, a := range decl.Accessors {
		kind := KindGetter
		var params []compiler.Param
		name := decl.Name + ".get " + a.Name
		if a.Kind == compiler.SetterAccessor {
			kind = KindSetter
			params = []compiler.Param{{Name: a.SetterParam}}
			name = decl.Name + ".set " + a.Name
		}
		method := &Method{Name: a.Name, Kind: kind, IsAbstract: a.IsAbstract}
		if !a.IsAbstract {
			method.Chunk = g.compileBody(name, params, a.Body, false, cls, nil)
		}
		if err := g.prog.Classes.DefineMethod(cls, method); err != nil {
			g.errors = append(g.errors, err.Error())
		}
	}
}

// buildConstructor compiles the declared constructor, or synthesizes
// one that forwards its arguments to the superclass and runs field
// initializers.
func (g *Codegen) buildConstructor(cls *Class, decl *compiler.ClassDecl) *Method {
	ctor := &Method{Name: "constructor", Kind: KindConstructorMethod}

	if decl.Constructor != nil {
		ctor.IsAsync = decl.Constructor.IsAsync
		ctor.Chunk = g.compileBody(
			decl.Name+".constructor",
			decl.Constructor.Params,
			decl.Constructor.Body,
			decl.Constructor.IsAsync,
			cls,
			decl.Fields,
		)
		return ctor
	}

	// Synthesized: forward as many parameters as the inherited
	// constructor declares, then initialize fields.
	paramCount := g.inheritedParamCount(decl)
	var params []compiler.Param
	var body []compiler.Stmt
	if decl.Superclass != "" {
		var args []compiler.Expr
		for i := 0; i < paramCount; i++ {
			p := compiler.Param{Name: fmt.Sprintf("arg%d", i)}
			params = append(params, p)
			args = append(args, &compiler.Identifier{Name: p.Name})
		}
		body = []compiler.Stmt{
			&compiler.ExprStmt{Expr: &compiler.SuperCall{Args: args}},
		}
	}
	ctor.Chunk = g.compileBody(decl.Name+".constructor", params, body, false, cls, decl.Fields)
	return ctor
}

// inheritedParamCount walks up the declared hierarchy to the nearest
// explicit constructor. Classes rooted at the builtin Error take one
// argument.
func (g *Codegen) inheritedParamCount(decl *compiler.ClassDecl) int {
	for cur := decl; cur != nil; {
		if cur.Constructor != nil {
			return len(cur.Constructor.Params)
		}
		if cur.Superclass == "" {
			return 0
		}
		next, ok := g.classes[cur.Superclass]
		if !ok {
			if cur.Superclass == "Error" || cur.Superclass == "TypeError" {
				return 1
			}
			return 0
		}
		cur = next
	}
	return 0
}

// compileInitExpr compiles a bare expression into a chunk returning
// its value. Used for static field initializers.
func (g *Codegen) compileInitExpr(name string, expr compiler.Expr) *Chunk {
	body := []compiler.Stmt{&compiler.Return{Value: expr}}
	return g.compileBody(name, nil, body, false, nil, nil)
}

// ---------------------------------------------------------------------------
// Function body lowering
// ---------------------------------------------------------------------------

// fnCompiler compiles one body into one chunk. Arrow functions get
// their own fnCompiler linked through enclosing for capture
// resolution.
type fnCompiler struct {
	g         *Codegen
	chunk     *Chunk
	enclosing *fnCompiler

	scopes    []map[string]uint8
	celled    map[string]bool // names whose slots hold capture cells
	arrowFree map[string]bool // names referenced inside nested arrows
	captures  map[string]uint8
	nextSlot  int

	owner      *Class
	fieldInits []*compiler.FieldDecl // pending constructor field initializers
}

// compileBody compiles params and statements into a chunk.
// fieldInits, when non-nil, marks a constructor body: field
// initializers run after the super call, or at entry when the class
// has no superclass.
func (g *Codegen) compileBody(name string, params []compiler.Param, body []compiler.Stmt, isAsync bool, owner *Class, fieldInits []*compiler.FieldDecl) *Chunk {
	fc := &fnCompiler{
		g:         g,
		chunk:     NewChunk(name),
		celled:    map[string]bool{},
		arrowFree: map[string]bool{},
		captures:  map[string]uint8{},
		owner:     owner,
	}
	fc.chunk.IsAsync = isAsync
	collectArrowFree(body, fc.arrowFree)
	for _, p := range params {
		collectExprArrowFree(p.Default, fc.arrowFree)
	}
	fc.compile(params, body, fieldInits)
	return fc.chunk
}

func (fc *fnCompiler) compile(params []compiler.Param, body []compiler.Stmt, fieldInits []*compiler.FieldDecl) {
	fc.pushScope()

	for _, p := range params {
		fc.chunk.ParamNames = append(fc.chunk.ParamNames, p.Name)
		fc.declare(p.Name)
	}
	fc.chunk.ParamCount = len(params)

	// Default parameters: fill any slot left undefined, in
	// declaration order so later defaults can use earlier parameters.
	for _, p := range params {
		if p.Default == nil {
			continue
		}
		slot, _, _ := fc.resolveLocal(p.Name)
		fc.chunk.EmitWithOperand(OpLoadLocal, slot)
		skip := fc.chunk.EmitJump(OpJumpDefined)
		fc.compileExpr(p.Default)
		fc.chunk.EmitWithOperand(OpStoreLocal, slot)
		fc.chunk.PatchJump(skip)
	}

	// Box parameters captured by nested arrows.
	for _, p := range params {
		if fc.arrowFree[p.Name] {
			slot, _, _ := fc.resolveLocal(p.Name)
			fc.celled[p.Name] = true
			fc.chunk.EmitWithOperand(OpMakeCell, slot)
		}
	}

	if fieldInits != nil {
		hasSuper := fc.owner != nil && fc.owner.Superclass != nil
		switch {
		case !hasSuper:
			fc.emitFieldInits(fieldInits)
		case containsSuperCall(body):
			// Field initializers run right after the super call; the
			// ExprStmt case below emits them at that point.
			fc.fieldInits = fieldInits
		default:
			// The superclass constructor runs exactly once even when
			// the body never calls super: implicit zero-arg call.
			fc.chunk.EmitWithOperand(OpSuperCtor, 0)
			fc.emitFieldInits(fieldInits)
		}
	}

	fc.compileStmts(body)

	// Implicit return undefined.
	fc.chunk.Emit(OpUndefined)
	fc.chunk.Emit(OpReturn)

	fc.popScope()
	if fc.nextSlot > 255 {
		fc.g.errorf("%s: too many locals", fc.chunk.Name)
	}
	fc.chunk.LocalCount = fc.nextSlot
}

// containsSuperCall reports whether a constructor body has a super(...)
// statement anywhere compileStmt would reach one.
func containsSuperCall(stmts []compiler.Stmt) bool {
	for _, s := range stmts {
		switch n := s.(type) {
		case *compiler.ExprStmt:
			if _, ok := n.Expr.(*compiler.SuperCall); ok {
				return true
			}
		case *compiler.If:
			if containsSuperCall(n.Then) || containsSuperCall(n.Else) {
				return true
			}
		case *compiler.While:
			if containsSuperCall(n.Body) {
				return true
			}
		case *compiler.For:
			if containsSuperCall(n.Body) {
				return true
			}
		case *compiler.ForOf:
			if containsSuperCall(n.Body) {
				return true
			}
		case *compiler.Try:
			if containsSuperCall(n.Body) || containsSuperCall(n.CatchBody) {
				return true
			}
		case *compiler.Block:
			if containsSuperCall(n.Body) {
				return true
			}
		}
	}
	return false
}

// emitFieldInits emits this.field = <init> for each declared field in
// declaration order.
func (fc *fnCompiler) emitFieldInits(fields []*compiler.FieldDecl) {
	for _, f := range fields {
		if f.IsStatic {
			continue
		}
		fc.chunk.Emit(OpLoadThis)
		if f.Init != nil {
			fc.compileExpr(f.Init)
		} else {
			fc.chunk.Emit(OpUndefined)
		}
		fc.chunk.EmitU16(OpSetMember, fc.nameConst(f.Name))
		fc.chunk.Emit(OpPop)
	}
}

// ---------------------------------------------------------------------------
// Scopes
// ---------------------------------------------------------------------------

func (fc *fnCompiler) pushScope() {
	fc.scopes = append(fc.scopes, map[string]uint8{})
}

func (fc *fnCompiler) popScope() {
	fc.scopes = fc.scopes[:len(fc.scopes)-1]
}

// declare allocates a slot for a name in the innermost scope.
func (fc *fnCompiler) declare(name string) uint8 {
	slot := uint8(fc.nextSlot)
	fc.nextSlot++
	fc.scopes[len(fc.scopes)-1][name] = slot
	return slot
}

// resolveLocal finds a name in this function's scopes.
func (fc *fnCompiler) resolveLocal(name string) (slot uint8, celled bool, ok bool) {
	for i := len(fc.scopes) - 1; i >= 0; i-- {
		if s, found := fc.scopes[i][name]; found {
			return s, fc.celled[name], true
		}
	}
	return 0, false, false
}

// resolveCapture finds a name in enclosing functions, registering a
// capture descriptor chain as needed.
func (fc *fnCompiler) resolveCapture(name string) (uint8, bool) {
	if idx, ok := fc.captures[name]; ok {
		return idx, true
	}
	if fc.enclosing == nil {
		return 0, false
	}
	if slot, celled, ok := fc.enclosing.resolveLocal(name); ok {
		if !celled {
			// The pre-pass cells everything arrows reference; a miss
			// here is a compiler bug, surfaced as an error.
			fc.g.errorf("%s: captured variable %s is not boxed", fc.chunk.Name, name)
		}
		idx := fc.chunk.AddCapture(name, CaptureLocal, slot)
		fc.captures[name] = idx
		return idx, true
	}
	if outerIdx, ok := fc.enclosing.resolveCapture(name); ok {
		idx := fc.chunk.AddCapture(name, CaptureOuter, outerIdx)
		fc.captures[name] = idx
		return idx, true
	}
	return 0, false
}

// nameConst interns a string constant and returns its index.
func (fc *fnCompiler) nameConst(name string) uint16 {
	return fc.chunk.AddConstant(StringValue(name))
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (fc *fnCompiler) compileStmts(stmts []compiler.Stmt) {
	for _, s := range stmts {
		fc.compileStmt(s)
	}
}

func (fc *fnCompiler) compileStmt(stmt compiler.Stmt) {
	switch n := stmt.(type) {
	case *compiler.ExprStmt:
		fc.compileExpr(n.Expr)
		fc.chunk.Emit(OpPop)
		// Constructor field initializers run right after the
		// top-level super call.
		if _, isSuper := n.Expr.(*compiler.SuperCall); isSuper && fc.fieldInits != nil {
			inits := fc.fieldInits
			fc.fieldInits = nil
			fc.emitFieldInits(inits)
		}

	case *compiler.VarDecl:
		if n.Init != nil {
			fc.compileExpr(n.Init)
		} else {
			fc.chunk.Emit(OpUndefined)
		}
		slot := fc.declare(n.Name)
		fc.chunk.EmitWithOperand(OpStoreLocal, slot)
		if fc.arrowFree[n.Name] {
			fc.celled[n.Name] = true
			fc.chunk.EmitWithOperand(OpMakeCell, slot)
		}

	case *compiler.Return:
		if n.Value != nil {
			fc.compileExpr(n.Value)
		} else {
			fc.chunk.Emit(OpUndefined)
		}
		fc.chunk.Emit(OpReturn)

	case *compiler.If:
		fc.compileExpr(n.Cond)
		elseJump := fc.chunk.EmitJump(OpJumpFalse)
		fc.pushScope()
		fc.compileStmts(n.Then)
		fc.popScope()
		if n.Else != nil {
			endJump := fc.chunk.EmitJump(OpJump)
			fc.chunk.PatchJump(elseJump)
			fc.pushScope()
			fc.compileStmts(n.Else)
			fc.popScope()
			fc.chunk.PatchJump(endJump)
		} else {
			fc.chunk.PatchJump(elseJump)
		}

	case *compiler.While:
		loopStart := fc.chunk.CurrentOffset()
		fc.compileExpr(n.Cond)
		exitJump := fc.chunk.EmitJump(OpJumpFalse)
		fc.pushScope()
		fc.compileStmts(n.Body)
		fc.popScope()
		fc.chunk.EmitLoop(loopStart)
		fc.chunk.PatchJump(exitJump)

	case *compiler.For:
		fc.pushScope()
		if n.Init != nil {
			fc.compileStmt(n.Init)
		}
		loopStart := fc.chunk.CurrentOffset()
		exitJump := -1
		if n.Cond != nil {
			fc.compileExpr(n.Cond)
			exitJump = fc.chunk.EmitJump(OpJumpFalse)
		}
		fc.compileStmts(n.Body)
		if n.Post != nil {
			fc.compileExpr(n.Post)
			fc.chunk.Emit(OpPop)
		}
		fc.chunk.EmitLoop(loopStart)
		if exitJump >= 0 {
			fc.chunk.PatchJump(exitJump)
		}
		fc.popScope()

	case *compiler.ForOf:
		fc.compileForOf(n)

	case *compiler.Try:
		fc.compileTry(n)

	case *compiler.Throw:
		fc.compileExpr(n.Value)
		fc.chunk.Emit(OpThrow)

	case *compiler.Block:
		fc.pushScope()
		fc.compileStmts(n.Body)
		fc.popScope()

	default:
		fc.g.errorf("%s: cannot compile statement %T", fc.chunk.Name, stmt)
	}
}

// compileForOf lowers for-of to an index loop over hidden slots.
func (fc *fnCompiler) compileForOf(n *compiler.ForOf) {
	fc.pushScope()

	fc.compileExpr(n.Iterable)
	seqSlot := fc.declare("(seq)")
	fc.chunk.EmitWithOperand(OpStoreLocal, seqSlot)
	fc.chunk.Emit(OpZero)
	idxSlot := fc.declare("(idx)")
	fc.chunk.EmitWithOperand(OpStoreLocal, idxSlot)

	loopStart := fc.chunk.CurrentOffset()
	fc.chunk.EmitWithOperand(OpLoadLocal, idxSlot)
	fc.chunk.EmitWithOperand(OpLoadLocal, seqSlot)
	fc.chunk.EmitU16(OpGetMember, fc.nameConst("length"))
	fc.chunk.Emit(OpLt)
	exitJump := fc.chunk.EmitJump(OpJumpFalse)

	fc.chunk.EmitWithOperand(OpLoadLocal, seqSlot)
	fc.chunk.EmitWithOperand(OpLoadLocal, idxSlot)
	fc.chunk.Emit(OpGetIndex)
	varSlot := fc.declare(n.VarName)
	fc.chunk.EmitWithOperand(OpStoreLocal, varSlot)
	if fc.arrowFree[n.VarName] {
		fc.celled[n.VarName] = true
		fc.chunk.EmitWithOperand(OpMakeCell, varSlot)
	}

	fc.compileStmts(n.Body)

	fc.chunk.EmitWithOperand(OpLoadLocal, idxSlot)
	fc.chunk.Emit(OpOne)
	fc.chunk.Emit(OpAdd)
	fc.chunk.EmitWithOperand(OpStoreLocal, idxSlot)
	fc.chunk.EmitLoop(loopStart)
	fc.chunk.PatchJump(exitJump)

	fc.popScope()
}

// compileTry emits the protected region and its handler, recording
// the range in the chunk's handler table. Inner handlers register
// first, so lookup finds the innermost covering entry.
func (fc *fnCompiler) compileTry(n *compiler.Try) {
	start := fc.chunk.CurrentOffset()
	fc.pushScope()
	fc.compileStmts(n.Body)
	fc.popScope()
	end := fc.chunk.CurrentOffset()
	endJump := fc.chunk.EmitJump(OpJump)

	handler := fc.chunk.CurrentOffset()
	fc.pushScope()
	catchName := n.CatchVar
	if catchName == "" {
		catchName = "(caught)"
	}
	catchSlot := fc.declare(catchName)
	if n.CatchVar != "" && fc.arrowFree[n.CatchVar] {
		fc.celled[n.CatchVar] = true
		fc.chunk.EmitWithOperand(OpMakeCell, catchSlot)
	}
	fc.compileStmts(n.CatchBody)
	fc.popScope()

	fc.chunk.PatchJump(endJump)
	fc.chunk.AddHandler(start, end, handler, catchSlot)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (fc *fnCompiler) compileExpr(expr compiler.Expr) {
	switch n := expr.(type) {
	case *compiler.NumberLiteral:
		fc.chunk.EmitConstant(NumberValue(n.Value))
	case *compiler.StringLiteral:
		fc.chunk.EmitConstant(StringValue(n.Value))
	case *compiler.BoolLiteral:
		fc.chunk.EmitConstant(BoolValue(n.Value))
	case *compiler.NullLiteral:
		fc.chunk.Emit(OpNull)
	case *compiler.UndefinedLiteral:
		fc.chunk.Emit(OpUndefined)

	case *compiler.TemplateLiteral:
		fc.compileTemplate(n)

	case *compiler.ArrayLiteral:
		for _, el := range n.Elements {
			fc.compileExpr(el)
		}
		fc.chunk.EmitU16(OpArray, uint16(len(n.Elements)))

	case *compiler.ObjectLiteral:
		for i, k := range n.Keys {
			fc.chunk.EmitConstant(StringValue(k))
			fc.compileExpr(n.Values[i])
		}
		fc.chunk.EmitU16(OpObject, uint16(len(n.Keys)))

	case *compiler.Identifier:
		fc.compileLoad(n.Name)

	case *compiler.ThisExpr:
		fc.chunk.Emit(OpLoadThis)

	case *compiler.Binary:
		fc.compileBinary(n)

	case *compiler.Unary:
		fc.compileExpr(n.Operand)
		if n.Op == "-" {
			fc.chunk.Emit(OpNeg)
		} else {
			fc.chunk.Emit(OpNot)
		}

	case *compiler.Assign:
		fc.compileAssign(n)

	case *compiler.Call:
		fc.compileCall(n)

	case *compiler.MemberAccess:
		fc.compileExpr(n.Receiver)
		fc.chunk.EmitU16(OpGetMember, fc.nameConst(n.Name))

	case *compiler.Index:
		fc.compileExpr(n.Receiver)
		fc.compileExpr(n.Key)
		fc.chunk.Emit(OpGetIndex)

	case *compiler.Await:
		fc.compileExpr(n.Operand)
		site := fc.chunk.NextAwaitSite()
		fc.chunk.EmitU16(OpAwait, site)

	case *compiler.New:
		for _, a := range n.Args {
			fc.compileExpr(a)
		}
		fc.chunk.EmitWithOperand(OpNew,
			byte(fc.nameConst(n.ClassName)>>8), byte(fc.nameConst(n.ClassName)),
			byte(len(n.Args)))

	case *compiler.SuperCall:
		for _, a := range n.Args {
			fc.compileExpr(a)
		}
		fc.chunk.EmitWithOperand(OpSuperCtor, byte(len(n.Args)))

	case *compiler.SuperMethodCall:
		for _, a := range n.Args {
			fc.compileExpr(a)
		}
		fc.chunk.EmitWithOperand(OpCallSuper,
			byte(fc.nameConst(n.Name)>>8), byte(fc.nameConst(n.Name)),
			byte(len(n.Args)))

	case *compiler.ArrowFn:
		fc.compileArrow(n)

	case *compiler.Cast:
		// Type assertions are erased.
		fc.compileExpr(n.Operand)

	case *compiler.NonNull:
		fc.compileExpr(n.Operand)

	default:
		fc.g.errorf("%s: cannot compile expression %T", fc.chunk.Name, expr)
	}
}

// compileLoad emits the correct load for an identifier: local, cell,
// capture, or global.
func (fc *fnCompiler) compileLoad(name string) {
	if slot, celled, ok := fc.resolveLocal(name); ok {
		if celled {
			fc.chunk.EmitWithOperand(OpLoadCell, slot)
		} else {
			fc.chunk.EmitWithOperand(OpLoadLocal, slot)
		}
		return
	}
	if idx, ok := fc.resolveCapture(name); ok {
		fc.chunk.EmitWithOperand(OpLoadCap, idx)
		return
	}
	fc.chunk.EmitU16(OpLoadGlobal, fc.nameConst(name))
}

func (fc *fnCompiler) compileBinary(n *compiler.Binary) {
	// Short-circuit forms keep the left value as the result when it
	// decides the outcome.
	if n.Op == "&&" {
		fc.compileExpr(n.Left)
		fc.chunk.Emit(OpDup)
		end := fc.chunk.EmitJump(OpJumpFalse)
		fc.chunk.Emit(OpPop)
		fc.compileExpr(n.Right)
		fc.chunk.PatchJump(end)
		return
	}
	if n.Op == "||" {
		fc.compileExpr(n.Left)
		fc.chunk.Emit(OpDup)
		end := fc.chunk.EmitJump(OpJumpTrue)
		fc.chunk.Emit(OpPop)
		fc.compileExpr(n.Right)
		fc.chunk.PatchJump(end)
		return
	}

	fc.compileExpr(n.Left)
	fc.compileExpr(n.Right)
	switch n.Op {
	case "+":
		fc.chunk.Emit(OpAdd)
	case "-":
		fc.chunk.Emit(OpSub)
	case "*":
		fc.chunk.Emit(OpMul)
	case "/":
		fc.chunk.Emit(OpDiv)
	case "%":
		fc.chunk.Emit(OpMod)
	case "==":
		fc.chunk.Emit(OpEq)
	case "!=":
		fc.chunk.Emit(OpNe)
	case "===":
		fc.chunk.Emit(OpStrictEq)
	case "!==":
		fc.chunk.Emit(OpStrictNe)
	case "<":
		fc.chunk.Emit(OpLt)
	case "<=":
		fc.chunk.Emit(OpLe)
	case ">":
		fc.chunk.Emit(OpGt)
	case ">=":
		fc.chunk.Emit(OpGe)
	default:
		fc.g.errorf("%s: unknown binary operator %s", fc.chunk.Name, n.Op)
	}
}

func (fc *fnCompiler) compileAssign(n *compiler.Assign) {
	value := n.Value
	if n.Op != "=" {
		// Compound assignment desugars to target = target op value.
		op := "+"
		if n.Op == "-=" {
			op = "-"
		}
		value = &compiler.Binary{Op: op, Left: n.Target, Right: n.Value}
	}

	switch target := n.Target.(type) {
	case *compiler.Identifier:
		fc.compileExpr(value)
		fc.chunk.Emit(OpDup)
		if slot, celled, ok := fc.resolveLocal(target.Name); ok {
			if celled {
				fc.chunk.EmitWithOperand(OpStoreCell, slot)
			} else {
				fc.chunk.EmitWithOperand(OpStoreLocal, slot)
			}
			return
		}
		if idx, ok := fc.resolveCapture(target.Name); ok {
			fc.chunk.EmitWithOperand(OpStoreCap, idx)
			return
		}
		fc.g.errorf("%s: assignment to undeclared variable %s", fc.chunk.Name, target.Name)

	case *compiler.MemberAccess:
		fc.compileExpr(target.Receiver)
		fc.compileExpr(value)
		fc.chunk.EmitU16(OpSetMember, fc.nameConst(target.Name))

	case *compiler.Index:
		fc.compileExpr(target.Receiver)
		fc.compileExpr(target.Key)
		fc.compileExpr(value)
		fc.chunk.Emit(OpSetIndex)

	default:
		fc.g.errorf("%s: invalid assignment target %T", fc.chunk.Name, n.Target)
	}
}

func (fc *fnCompiler) compileCall(n *compiler.Call) {
	// Method-style call sites dispatch virtually on the receiver.
	if member, ok := n.Callee.(*compiler.MemberAccess); ok {
		fc.compileExpr(member.Receiver)
		for _, a := range n.Args {
			fc.compileExpr(a)
		}
		fc.chunk.EmitWithOperand(OpCallMethod,
			byte(fc.nameConst(member.Name)>>8), byte(fc.nameConst(member.Name)),
			byte(len(n.Args)))
		return
	}

	fc.compileExpr(n.Callee)
	for _, a := range n.Args {
		fc.compileExpr(a)
	}
	fc.chunk.EmitWithOperand(OpCall, byte(len(n.Args)))
}

func (fc *fnCompiler) compileTemplate(n *compiler.TemplateLiteral) {
	fc.chunk.EmitConstant(StringValue(n.Quasis[0]))
	for i, e := range n.Exprs {
		fc.compileExpr(e)
		fc.chunk.Emit(OpToString)
		fc.chunk.Emit(OpAdd)
		if i+1 < len(n.Quasis) && n.Quasis[i+1] != "" {
			fc.chunk.EmitConstant(StringValue(n.Quasis[i+1]))
			fc.chunk.Emit(OpAdd)
		}
	}
}

// compileArrow compiles a nested function and emits the closure
// construction against the current frame.
func (fc *fnCompiler) compileArrow(n *compiler.ArrowFn) {
	child := &fnCompiler{
		g:         fc.g,
		chunk:     NewChunk(fc.chunk.Name + ".(arrow)"),
		enclosing: fc,
		celled:    map[string]bool{},
		arrowFree: map[string]bool{},
		captures:  map[string]uint8{},
		owner:     fc.owner,
	}
	collectArrowFree(n.Body, child.arrowFree)
	child.compile(n.Params, n.Body, nil)

	idx := uint16(len(fc.g.prog.FnTable))
	fc.g.prog.FnTable = append(fc.g.prog.FnTable, child.chunk)
	fc.chunk.EmitU16(OpMakeFn, idx)
}

// ---------------------------------------------------------------------------
// Arrow capture pre-pass
// ---------------------------------------------------------------------------

// collectArrowFree records every identifier referenced inside any
// arrow function nested in stmts. Names in the set are boxed into
// cells when declared, so closures share mutations with the enclosing
// frame.
func collectArrowFree(stmts []compiler.Stmt, out map[string]bool) {
	for _, s := range stmts {
		collectStmtArrowFree(s, out)
	}
}

func collectStmtArrowFree(stmt compiler.Stmt, out map[string]bool) {
	switch n := stmt.(type) {
	case *compiler.ExprStmt:
		collectExprArrowFree(n.Expr, out)
	case *compiler.VarDecl:
		collectExprArrowFree(n.Init, out)
	case *compiler.Return:
		collectExprArrowFree(n.Value, out)
	case *compiler.If:
		collectExprArrowFree(n.Cond, out)
		collectArrowFree(n.Then, out)
		collectArrowFree(n.Else, out)
	case *compiler.While:
		collectExprArrowFree(n.Cond, out)
		collectArrowFree(n.Body, out)
	case *compiler.For:
		if n.Init != nil {
			collectStmtArrowFree(n.Init, out)
		}
		collectExprArrowFree(n.Cond, out)
		collectExprArrowFree(n.Post, out)
		collectArrowFree(n.Body, out)
	case *compiler.ForOf:
		collectExprArrowFree(n.Iterable, out)
		collectArrowFree(n.Body, out)
	case *compiler.Try:
		collectArrowFree(n.Body, out)
		collectArrowFree(n.CatchBody, out)
	case *compiler.Throw:
		collectExprArrowFree(n.Value, out)
	case *compiler.Block:
		collectArrowFree(n.Body, out)
	}
}

func collectExprArrowFree(expr compiler.Expr, out map[string]bool) {
	switch n := expr.(type) {
	case nil:
	case *compiler.ArrowFn:
		declared := map[string]bool{}
		for _, p := range n.Params {
			declared[p.Name] = true
		}
		free := map[string]bool{}
		collectReferences(n.Body, free)
		for name := range free {
			if !declared[name] {
				out[name] = true
			}
		}
	case *compiler.TemplateLiteral:
		for _, e := range n.Exprs {
			collectExprArrowFree(e, out)
		}
	case *compiler.ArrayLiteral:
		for _, e := range n.Elements {
			collectExprArrowFree(e, out)
		}
	case *compiler.ObjectLiteral:
		for _, e := range n.Values {
			collectExprArrowFree(e, out)
		}
	case *compiler.Binary:
		collectExprArrowFree(n.Left, out)
		collectExprArrowFree(n.Right, out)
	case *compiler.Unary:
		collectExprArrowFree(n.Operand, out)
	case *compiler.Assign:
		collectExprArrowFree(n.Target, out)
		collectExprArrowFree(n.Value, out)
	case *compiler.Call:
		collectExprArrowFree(n.Callee, out)
		for _, a := range n.Args {
			collectExprArrowFree(a, out)
		}
	case *compiler.MemberAccess:
		collectExprArrowFree(n.Receiver, out)
	case *compiler.Index:
		collectExprArrowFree(n.Receiver, out)
		collectExprArrowFree(n.Key, out)
	case *compiler.Await:
		collectExprArrowFree(n.Operand, out)
	case *compiler.New:
		for _, a := range n.Args {
			collectExprArrowFree(a, out)
		}
	case *compiler.SuperCall:
		for _, a := range n.Args {
			collectExprArrowFree(a, out)
		}
	case *compiler.SuperMethodCall:
		for _, a := range n.Args {
			collectExprArrowFree(a, out)
		}
	case *compiler.Cast:
		collectExprArrowFree(n.Operand, out)
	case *compiler.NonNull:
		collectExprArrowFree(n.Operand, out)
	}
}

// collectReferences gathers every identifier read or written in a
// body, including through nested arrows.
func collectReferences(stmts []compiler.Stmt, out map[string]bool) {
	for _, s := range stmts {
		collectStmtRefs(s, out)
	}
}

func collectStmtRefs(stmt compiler.Stmt, out map[string]bool) {
	switch n := stmt.(type) {
	case *compiler.ExprStmt:
		collectExprRefs(n.Expr, out)
	case *compiler.VarDecl:
		collectExprRefs(n.Init, out)
	case *compiler.Return:
		collectExprRefs(n.Value, out)
	case *compiler.If:
		collectExprRefs(n.Cond, out)
		collectReferences(n.Then, out)
		collectReferences(n.Else, out)
	case *compiler.While:
		collectExprRefs(n.Cond, out)
		collectReferences(n.Body, out)
	case *compiler.For:
		if n.Init != nil {
			collectStmtRefs(n.Init, out)
		}
		collectExprRefs(n.Cond, out)
		collectExprRefs(n.Post, out)
		collectReferences(n.Body, out)
	case *compiler.ForOf:
		collectExprRefs(n.Iterable, out)
		collectReferences(n.Body, out)
	case *compiler.Try:
		collectReferences(n.Body, out)
		collectReferences(n.CatchBody, out)
	case *compiler.Throw:
		collectExprRefs(n.Value, out)
	case *compiler.Block:
		collectReferences(n.Body, out)
	}
}

func collectExprRefs(expr compiler.Expr, out map[string]bool) {
	switch n := expr.(type) {
	case nil:
	case *compiler.Identifier:
		out[n.Name] = true
	case *compiler.TemplateLiteral:
		for _, e := range n.Exprs {
			collectExprRefs(e, out)
		}
	case *compiler.ArrayLiteral:
		for _, e := range n.Elements {
			collectExprRefs(e, out)
		}
	case *compiler.ObjectLiteral:
		for _, e := range n.Values {
			collectExprRefs(e, out)
		}
	case *compiler.Binary:
		collectExprRefs(n.Left, out)
		collectExprRefs(n.Right, out)
	case *compiler.Unary:
		collectExprRefs(n.Operand, out)
	case *compiler.Assign:
		collectExprRefs(n.Target, out)
		collectExprRefs(n.Value, out)
	case *compiler.Call:
		collectExprRefs(n.Callee, out)
		for _, a := range n.Args {
			collectExprRefs(a, out)
		}
	case *compiler.MemberAccess:
		collectExprRefs(n.Receiver, out)
	case *compiler.Index:
		collectExprRefs(n.Receiver, out)
		collectExprRefs(n.Key, out)
	case *compiler.Await:
		collectExprRefs(n.Operand, out)
	case *compiler.New:
		for _, a := range n.Args {
			collectExprRefs(a, out)
		}
	case *compiler.SuperCall:
		for _, a := range n.Args {
			collectExprRefs(a, out)
		}
	case *compiler.SuperMethodCall:
		for _, a := range n.Args {
			collectExprRefs(a, out)
		}
	case *compiler.ArrowFn:
		collectReferences(n.Body, out)
	case *compiler.Cast:
		collectExprRefs(n.Operand, out)
	case *compiler.NonNull:
		collectExprRefs(n.Operand, out)
	}
}
