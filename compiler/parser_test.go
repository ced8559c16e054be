package compiler

import (
	"strings"
	"testing"
)

// mustParse parses input and fails the test on any parse error.
func mustParse(t *testing.T, input string) *Program {
	t.Helper()
	prog, errs := Parse(input)
	if len(errs) > 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	return prog
}

// expectParseError parses input and asserts at least one error
// containing the given substring.
func expectParseError(t *testing.T, input, substr string) {
	t.Helper()
	_, errs := Parse(input)
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return
		}
	}
	t.Fatalf("expected error containing %q, got: %v", substr, errs)
}

func TestParseClassBasics(t *testing.T) {
	prog := mustParse(t, `
class Point {
    x: number = 0;
    y: number = 0;
    static origin: Point;

    constructor(x: number, y: number) {
        this.x = x;
        this.y = y;
    }

    dist(): number {
        return this.x * this.x + this.y * this.y;
    }

    static make(): Point {
        return new Point(0, 0);
    }
}`)

	if len(prog.Classes) != 1 {
		t.Fatalf("expected 1 class, got %d", len(prog.Classes))
	}
	cls := prog.Classes[0]
	if cls.Name != "Point" {
		t.Errorf("class name: %s", cls.Name)
	}
	if len(cls.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(cls.Fields))
	}
	if !cls.Fields[2].IsStatic {
		t.Errorf("origin should be static")
	}
	if cls.Constructor == nil {
		t.Fatalf("constructor missing")
	}
	if len(cls.Constructor.Params) != 2 {
		t.Errorf("constructor params: %d", len(cls.Constructor.Params))
	}
	if len(cls.Methods) != 2 {
		t.Fatalf("expected 2 methods, got %d", len(cls.Methods))
	}
	if !cls.Methods[1].IsStatic {
		t.Errorf("make should be static")
	}
}

func TestParseInheritanceModifiers(t *testing.T) {
	prog := mustParse(t, `
abstract class Shape {
    abstract area(): number;
    describe(): string {
        return "shape";
    }
}
class Circle extends Shape {
    r: number = 1;
    override area(): number {
        return 3.14159 * this.r * this.r;
    }
    override describe(): string {
        return "circle: " + super.describe();
    }
}`)

	shape := prog.Classes[0]
	if !shape.IsAbstract {
		t.Errorf("Shape should be abstract")
	}
	if !shape.Methods[0].IsAbstract || shape.Methods[0].Body != nil {
		t.Errorf("area should be abstract with no body")
	}
	circle := prog.Classes[1]
	if circle.Superclass != "Shape" {
		t.Errorf("superclass: %s", circle.Superclass)
	}
	for _, m := range circle.Methods {
		if !m.IsOverride {
			t.Errorf("method %s should be override", m.Name)
		}
	}
}

func TestParseAccessors(t *testing.T) {
	prog := mustParse(t, `
class Temp {
    celsius: number = 0;
    get fahrenheit(): number {
        return this.celsius * 1.8 + 32;
    }
    set fahrenheit(v: number) {
        this.celsius = (v - 32) / 1.8;
    }
}`)

	cls := prog.Classes[0]
	if len(cls.Accessors) != 2 {
		t.Fatalf("expected 2 accessors, got %d", len(cls.Accessors))
	}
	if cls.Accessors[0].Kind != GetterAccessor || cls.Accessors[0].Name != "fahrenheit" {
		t.Errorf("getter mismatch: %+v", cls.Accessors[0])
	}
	if cls.Accessors[1].Kind != SetterAccessor || cls.Accessors[1].SetterParam != "v" {
		t.Errorf("setter mismatch: %+v", cls.Accessors[1])
	}
}

func TestParseGenerics(t *testing.T) {
	prog := mustParse(t, `
class Box<T> {
    value: T;
    constructor(v: T) {
        this.value = v;
    }
    map<U>(f: Fn): Box<U> {
        return new Box<U>(f(this.value));
    }
}
class NumBox extends Box<number> {
}`)

	box := prog.Classes[0]
	if len(box.GenericParams) != 1 || box.GenericParams[0].Name != "T" {
		t.Fatalf("generic params: %+v", box.GenericParams)
	}
	if prog.Classes[1].Superclass != "Box" {
		t.Errorf("superclass with type args: %s", prog.Classes[1].Superclass)
	}
}

func TestParseGenericConstraint(t *testing.T) {
	prog := mustParse(t, `class Sorted<T extends Comparable> { }`)
	gp := prog.Classes[0].GenericParams
	if len(gp) != 1 || gp[0].Constraint != "Comparable" {
		t.Fatalf("constraint: %+v", gp)
	}
}

func TestParseAsyncAndAwait(t *testing.T) {
	prog := mustParse(t, `
class Fetcher {
    async load(url: string) {
        let a = await this.get(url);
        return a;
    }
}
async function main() {
    let f = new Fetcher();
    await f.load("x");
}`)

	if !prog.Classes[0].Methods[0].IsAsync {
		t.Errorf("load should be async")
	}
	if !prog.Functions[0].IsAsync {
		t.Errorf("main should be async")
	}
}

func TestAwaitOutsideAsyncRejected(t *testing.T) {
	expectParseError(t, `
function f() {
    let x = await g();
}`, "await is only permitted inside async bodies")
}

func TestAwaitInsideArrowRejected(t *testing.T) {
	expectParseError(t, `
class C {
    async m() {
        let f = (x) => await x;
    }
}`, "await is only permitted inside async bodies")
}

func TestAwaitInsideExpressionArrowRejected(t *testing.T) {
	expectParseError(t, `
async function f(t) {
    const g = (x) => await t;
    return g(0);
}`, "await is only permitted inside async bodies")
}

func TestOverrideWithoutSuperclassRejected(t *testing.T) {
	expectParseError(t, `
class A {
    override m() { }
}`, "no superclass")
}

func TestOverrideOnStaticRejected(t *testing.T) {
	expectParseError(t, `
class B extends A {
    static override m() { }
}`, "static")
}

func TestOverrideOnConstructorRejected(t *testing.T) {
	expectParseError(t, `
class B extends A {
    override constructor() { }
}`, "constructor")
}

func TestAbstractMethodInConcreteClassRejected(t *testing.T) {
	expectParseError(t, `
class C {
    abstract m(): void;
}`, "non-abstract")
}

func TestParseDefaultParams(t *testing.T) {
	prog := mustParse(t, `
class Greeter {
    greet(name: string = "world", punct: string = "!") {
        return "hello " + name + punct;
    }
}`)
	params := prog.Classes[0].Methods[0].Params
	if len(params) != 2 {
		t.Fatalf("params: %d", len(params))
	}
	if params[0].Default == nil || params[1].Default == nil {
		t.Errorf("defaults not parsed")
	}
	if lit, ok := params[0].Default.(*StringLiteral); !ok || lit.Value != "world" {
		t.Errorf("default value: %+v", params[0].Default)
	}
}

func TestParseStatements(t *testing.T) {
	prog := mustParse(t, `
function f(n: number) {
    let total = 0;
    const limit = 10;
    for (let i = 0; i < n; i += 1) {
        total += i;
    }
    for (let v of [1, 2, 3]) {
        total += v;
    }
    while (total > limit) {
        total -= 1;
    }
    if (total === limit) {
        return total;
    } else {
        return 0;
    }
}`)

	body := prog.Functions[0].Body
	if len(body) != 6 {
		t.Fatalf("expected 6 statements, got %d", len(body))
	}
	if _, ok := body[2].(*For); !ok {
		t.Errorf("statement 2 should be For, got %T", body[2])
	}
	if fo, ok := body[3].(*ForOf); !ok || fo.VarName != "v" {
		t.Errorf("statement 3 should be ForOf over v, got %T", body[3])
	}
	if _, ok := body[4].(*While); !ok {
		t.Errorf("statement 4 should be While, got %T", body[4])
	}
	if ifStmt, ok := body[5].(*If); !ok || ifStmt.Else == nil {
		t.Errorf("statement 5 should be If with else, got %T", body[5])
	}
}

func TestParseTryCatchThrow(t *testing.T) {
	prog := mustParse(t, `
function f() {
    try {
        throw new Error("boom");
    } catch (e) {
        return e.message;
    }
}`)

	tryStmt, ok := prog.Functions[0].Body[0].(*Try)
	if !ok {
		t.Fatalf("expected Try, got %T", prog.Functions[0].Body[0])
	}
	if tryStmt.CatchVar != "e" {
		t.Errorf("catch var: %s", tryStmt.CatchVar)
	}
	if _, ok := tryStmt.Body[0].(*Throw); !ok {
		t.Errorf("expected Throw in try body")
	}
}

func TestConstWithoutInitializerRejected(t *testing.T) {
	expectParseError(t, `const x;`, "requires an initializer")
}

func TestParseExpressionPrecedence(t *testing.T) {
	prog := mustParse(t, `let r = 1 + 2 * 3 === 7 && !false;`)
	decl := prog.Statements[0].(*VarDecl)

	// Top node is &&
	and, ok := decl.Init.(*Binary)
	if !ok || and.Op != "&&" {
		t.Fatalf("expected && at top, got %+v", decl.Init)
	}
	eq, ok := and.Left.(*Binary)
	if !ok || eq.Op != "===" {
		t.Fatalf("expected === below &&, got %+v", and.Left)
	}
	add, ok := eq.Left.(*Binary)
	if !ok || add.Op != "+" {
		t.Fatalf("expected + below ===, got %+v", eq.Left)
	}
	if mul, ok := add.Right.(*Binary); !ok || mul.Op != "*" {
		t.Fatalf("expected * below +, got %+v", add.Right)
	}
}

func TestParseArrowFunctions(t *testing.T) {
	prog := mustParse(t, `
let inc = (x) => x + 1;
let add = (a, b) => { return a + b; };
let id = v => v;`)

	for i, s := range prog.Statements {
		decl := s.(*VarDecl)
		if _, ok := decl.Init.(*ArrowFn); !ok {
			t.Errorf("statement %d: expected ArrowFn, got %T", i, decl.Init)
		}
	}
	inc := prog.Statements[0].(*VarDecl).Init.(*ArrowFn)
	if len(inc.Body) != 1 {
		t.Fatalf("expression arrow body: %d statements", len(inc.Body))
	}
	if _, ok := inc.Body[0].(*Return); !ok {
		t.Errorf("expression arrow should desugar to return")
	}
}

func TestParseParenthesizedExpr(t *testing.T) {
	prog := mustParse(t, `let x = (1 + 2) * 3;`)
	mul := prog.Statements[0].(*VarDecl).Init.(*Binary)
	if mul.Op != "*" {
		t.Fatalf("expected * at top, got %s", mul.Op)
	}
	if add, ok := mul.Left.(*Binary); !ok || add.Op != "+" {
		t.Fatalf("parenthesized + not grouped: %+v", mul.Left)
	}
}

func TestParseTemplateLiteral(t *testing.T) {
	prog := mustParse(t, "let s = `a is ${a}, b is ${b + 1}`;")
	lit := prog.Statements[0].(*VarDecl).Init.(*TemplateLiteral)
	if len(lit.Quasis) != 3 || len(lit.Exprs) != 2 {
		t.Fatalf("quasis=%d exprs=%d", len(lit.Quasis), len(lit.Exprs))
	}
	if _, ok := lit.Exprs[0].(*Identifier); !ok {
		t.Errorf("first expr should be Identifier, got %T", lit.Exprs[0])
	}
	if bin, ok := lit.Exprs[1].(*Binary); !ok || bin.Op != "+" {
		t.Errorf("second expr should be +, got %+v", lit.Exprs[1])
	}
}

func TestParseObjectAndArrayLiterals(t *testing.T) {
	prog := mustParse(t, `let o = {a: 1, "b c": [2, 3], nested: {x: true}};`)
	obj := prog.Statements[0].(*VarDecl).Init.(*ObjectLiteral)
	if len(obj.Keys) != 3 {
		t.Fatalf("keys: %v", obj.Keys)
	}
	if obj.Keys[0] != "a" || obj.Keys[1] != "b c" || obj.Keys[2] != "nested" {
		t.Errorf("key order not preserved: %v", obj.Keys)
	}
	if _, ok := obj.Values[1].(*ArrayLiteral); !ok {
		t.Errorf("expected array value, got %T", obj.Values[1])
	}
}

func TestParseSuperForms(t *testing.T) {
	prog := mustParse(t, `
class B extends A {
    constructor() {
        super(1, 2);
    }
    override m() {
        return super.m() + 1;
    }
}`)

	ctor := prog.Classes[0].Constructor
	call, ok := ctor.Body[0].(*ExprStmt).Expr.(*SuperCall)
	if !ok || len(call.Args) != 2 {
		t.Fatalf("super call: %+v", ctor.Body[0])
	}
	ret := prog.Classes[0].Methods[0].Body[0].(*Return)
	bin := ret.Value.(*Binary)
	if _, ok := bin.Left.(*SuperMethodCall); !ok {
		t.Errorf("expected super.m(), got %T", bin.Left)
	}
}

func TestParseCastAndNonNull(t *testing.T) {
	prog := mustParse(t, `let x = (v as Shape).area()!;`)
	nn, ok := prog.Statements[0].(*VarDecl).Init.(*NonNull)
	if !ok {
		t.Fatalf("expected NonNull, got %T", prog.Statements[0].(*VarDecl).Init)
	}
	call := nn.Operand.(*Call)
	member := call.Callee.(*MemberAccess)
	if cast, ok := member.Receiver.(*Cast); !ok || cast.TypeName != "Shape" {
		t.Errorf("cast receiver: %+v", member.Receiver)
	}
}

func TestParseChainedMemberIndexCall(t *testing.T) {
	prog := mustParse(t, `let y = a.b[0].c(1)(2);`)
	// outermost is a call of a call
	outer := prog.Statements[0].(*VarDecl).Init.(*Call)
	inner, ok := outer.Callee.(*Call)
	if !ok {
		t.Fatalf("expected nested call, got %T", outer.Callee)
	}
	if _, ok := inner.Callee.(*MemberAccess); !ok {
		t.Errorf("expected member callee, got %T", inner.Callee)
	}
}

func TestParseTopLevelScript(t *testing.T) {
	prog := mustParse(t, `
let p = new Point(1, 2);
console.log(p.dist());`)
	if len(prog.Statements) != 2 {
		t.Fatalf("statements: %d", len(prog.Statements))
	}
}
