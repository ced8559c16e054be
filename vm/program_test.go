package vm

import (
	"bytes"
	"strings"
	"testing"
)

func compileProgram(t *testing.T, source string) *Program {
	t.Helper()
	p, err := Compile(source)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return p
}

func runScript(t *testing.T, source string) string {
	t.Helper()
	p := compileProgram(t, source)
	var buf bytes.Buffer
	p.Stdout = &buf
	if _, err := p.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	return buf.String()
}

func invokeString(t *testing.T, p *Program, name string, args ...Value) string {
	t.Helper()
	v, err := p.Invoke(name, args...)
	if err != nil {
		t.Fatalf("Invoke %s: %v", name, err)
	}
	return v.ToDisplayString()
}

func TestProgram_ConsoleOutput(t *testing.T) {
	out := runScript(t, `
		console.log("hello", 1 + 2, true);
	`)
	if out != "hello 3 true\n" {
		t.Errorf("output: got %q, want %q", out, "hello 3 true\n")
	}
}

func TestProgram_ConstructorRunsFieldInitsAfterSuper(t *testing.T) {
	out := runScript(t, `
		class Animal {
			name: string;
			constructor(name: string) {
				this.name = name;
				console.log("animal:" + name);
			}
			speak(): string {
				return this.name + " makes a sound";
			}
		}

		class Dog extends Animal {
			tricks: number = 2;
			constructor(name: string) {
				super(name);
				console.log("dog:" + this.tricks);
			}
			override speak(): string {
				return this.name + " barks";
			}
		}

		const d = new Dog("Rex");
		console.log(d.speak());
	`)
	want := "animal:Rex\ndog:2\nRex barks\n"
	if out != want {
		t.Errorf("output:\ngot  %q\nwant %q", out, want)
	}
}

func TestProgram_ImplicitSuperCallRunsCtorAndFieldInits(t *testing.T) {
	p := compileProgram(t, `
		class A {
			a: number = 0;
			constructor() {
				this.a = 1;
			}
		}

		class B extends A {
			x: number = 5;
			y: number = 0;
			constructor() {
				this.y = 2;
			}
		}

		function snapshot(): string {
			const b = new B();
			return b.a + "," + b.x + "," + b.y;
		}
	`)
	if got := invokeString(t, p, "snapshot"); got != "1,5,2" {
		t.Errorf("got %q, want %q", got, "1,5,2")
	}
}

func TestProgram_ImplicitSuperRunsBeforeCtorBody(t *testing.T) {
	out := runScript(t, `
		class Base {
			constructor() {
				console.log("base");
			}
		}
		class Leaf extends Base {
			tag: string = "leaf";
			constructor() {
				console.log("body:" + this.tag);
			}
		}
		new Leaf();
	`)
	want := "base\nbody:leaf\n"
	if out != want {
		t.Errorf("output: got %q, want %q", out, want)
	}
}

func TestProgram_SubclassDeclaredBeforeSuperclass(t *testing.T) {
	p := compileProgram(t, `
		class C extends B {
			override label(): string {
				return "c";
			}
		}
		class B extends A {
			override label(): string {
				return "b";
			}
		}
		class A {
			label(): string {
				return "a";
			}
		}
		function pick(): string {
			return new C().label() + new B().label() + new A().label();
		}
	`)
	if got := invokeString(t, p, "pick"); got != "cba" {
		t.Errorf("got %q, want %q", got, "cba")
	}
}

func TestProgram_ThreeLevelOverrideChain(t *testing.T) {
	p := compileProgram(t, `
		class A {
			getValue(): number {
				return 1;
			}
		}
		class B extends A {
			override getValue(): number {
				return 2;
			}
		}
		class C extends B {
			override getValue(): number {
				return 3;
			}
		}
		function leaf(): number {
			return new C().getValue();
		}
		function mid(): number {
			return new B().getValue();
		}
	`)
	v, err := p.Invoke("leaf")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if v.Num != 3 {
		t.Errorf("leaf: got %v, want 3", v.Num)
	}
	v, err = p.Invoke("mid")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if v.Num != 2 {
		t.Errorf("mid: got %v, want 2", v.Num)
	}
}

func TestProgram_SkipLevelOverride(t *testing.T) {
	p := compileProgram(t, `
		class A {
			label(): string {
				return "a";
			}
		}
		class B extends A {
		}
		class C extends B {
			override label(): string {
				return "c";
			}
		}
		function viaGrandchild(): string {
			return new C().label();
		}
		function viaMiddle(): string {
			return new B().label();
		}
	`)
	if got := invokeString(t, p, "viaGrandchild"); got != "c" {
		t.Errorf("grandchild: got %q, want %q", got, "c")
	}
	if got := invokeString(t, p, "viaMiddle"); got != "a" {
		t.Errorf("middle: got %q, want %q", got, "a")
	}
}

func TestProgram_VirtualDispatchFromBaseMethod(t *testing.T) {
	p := compileProgram(t, `
		class Shape {
			describe(): string {
				return "shape with area " + this.area();
			}
			area(): number {
				return 0;
			}
		}

		class Square extends Shape {
			side: number;
			constructor(side: number) {
				super();
				this.side = side;
			}
			override area(): number {
				return this.side * this.side;
			}
		}

		function describeSquare(n: number): string {
			const s = new Square(n);
			return s.describe();
		}
	`)
	if got := invokeString(t, p, "describeSquare", NumberValue(3)); got != "shape with area 9" {
		t.Errorf("got %q, want %q", got, "shape with area 9")
	}
}

func TestProgram_AccessorsRoundTrip(t *testing.T) {
	p := compileProgram(t, `
		class Temperature {
			celsius: number = 0;
			get fahrenheit(): number {
				return this.celsius * 9 / 5 + 32;
			}
			set fahrenheit(v: number) {
				this.celsius = (v - 32) * 5 / 9;
			}
		}

		function boiling(): number {
			const t = new Temperature();
			t.fahrenheit = 212;
			return t.celsius;
		}

		function freezing(): number {
			const t = new Temperature();
			return t.fahrenheit;
		}
	`)
	v, err := p.Invoke("boiling")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if v.Num != 100 {
		t.Errorf("boiling: got %v, want 100", v.Num)
	}
	v, err = p.Invoke("freezing")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if v.Num != 32 {
		t.Errorf("freezing: got %v, want 32", v.Num)
	}
}

func TestProgram_WriteToGetterOnlyPropertyThrows(t *testing.T) {
	p := compileProgram(t, `
		class ReadOnly {
			get x(): number {
				return 1;
			}
		}
		function poke() {
			const r = new ReadOnly();
			r.x = 2;
		}
	`)
	_, err := p.Invoke("poke")
	if err == nil {
		t.Fatal("writing a getter-only property should throw")
	}
	if reason, ok := Thrown(err); !ok || !strings.Contains(ErrorMessage(reason), "only has a getter") {
		t.Errorf("got %v, want getter-only TypeError", err)
	}
}

func TestProgram_StaticStateSharedAcrossCalls(t *testing.T) {
	p := compileProgram(t, `
		class Counter {
			static count: number = 0;
			static next(): number {
				Counter.count = Counter.count + 1;
				return Counter.count;
			}
		}
		function bump(): number {
			return Counter.next();
		}
	`)
	for want := 1; want <= 3; want++ {
		v, err := p.Invoke("bump")
		if err != nil {
			t.Fatalf("Invoke: %v", err)
		}
		if int(v.Num) != want {
			t.Errorf("call %d: got %v, want %d", want, v.Num, want)
		}
	}
}

func TestProgram_StaticInitRunsOnce(t *testing.T) {
	out := runScript(t, `
		function expensive(): number {
			console.log("init");
			return 7;
		}
		class Config {
			static seed: number = expensive();
		}
		console.log(Config.seed);
		console.log(Config.seed);
	`)
	want := "init\n7\n7\n"
	if out != want {
		t.Errorf("output: got %q, want %q", out, want)
	}
}

func TestProgram_AbstractMethodDispatch(t *testing.T) {
	p := compileProgram(t, `
		abstract class Vehicle {
			abstract wheels(): number;
			describe(): string {
				return "vehicle with " + this.wheels() + " wheels";
			}
		}
		class Car extends Vehicle {
			wheels(): number {
				return 4;
			}
		}
		function go(): string {
			const c = new Car();
			return c.describe();
		}
	`)
	if got := invokeString(t, p, "go"); got != "vehicle with 4 wheels" {
		t.Errorf("got %q, want %q", got, "vehicle with 4 wheels")
	}

	// Direct construction of the abstract class traps at runtime.
	in := NewInterp(p)
	if _, err := in.ConstructClass(p.Classes.Lookup("Vehicle"), nil); err == nil {
		t.Error("instantiating an abstract class should throw")
	}
}

func TestProgram_AbstractInstantiationRejectedAtCompileTime(t *testing.T) {
	_, err := Compile(`
		abstract class Base {
			abstract run(): void;
		}
		function make() {
			return new Base();
		}
	`)
	if err == nil {
		t.Fatal("new on an abstract class should fail to compile")
	}
}

func TestProgram_MissingAbstractImplementationRejected(t *testing.T) {
	_, err := Compile(`
		abstract class Base {
			abstract run(): void;
		}
		class Impl extends Base {
		}
	`)
	if err == nil {
		t.Fatal("concrete subclass missing an abstract member should fail to compile")
	}
}

func TestProgram_ShadowWithoutOverrideRejected(t *testing.T) {
	_, err := Compile(`
		class Base {
			run(): void {}
		}
		class Sub extends Base {
			run(): void {}
		}
	`)
	if err == nil {
		t.Fatal("shadowing a superclass method without override should fail to compile")
	}
	if !strings.Contains(err.Error(), "override") {
		t.Errorf("error should mention override, got %v", err)
	}
}

func TestProgram_ClosuresShareCapturedState(t *testing.T) {
	p := compileProgram(t, `
		function counter(): number {
			let n = 0;
			const inc = () => {
				n = n + 1;
				return n;
			};
			inc();
			inc();
			return n;
		}
	`)
	v, err := p.Invoke("counter")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if v.Num != 2 {
		t.Errorf("got %v, want 2", v.Num)
	}
}

func TestProgram_ArrowCapturesThis(t *testing.T) {
	p := compileProgram(t, `
		class Greeter {
			name: string;
			constructor(name: string) {
				this.name = name;
			}
			greeter() {
				return () => "hi " + this.name;
			}
		}
		function greet(): string {
			const g = new Greeter("Ada");
			const f = g.greeter();
			return f();
		}
	`)
	if got := invokeString(t, p, "greet"); got != "hi Ada" {
		t.Errorf("got %q, want %q", got, "hi Ada")
	}
}

func TestProgram_DefaultParameters(t *testing.T) {
	p := compileProgram(t, `
		function greet(name: string = "world"): string {
			return "hello " + name;
		}
	`)
	if got := invokeString(t, p, "greet"); got != "hello world" {
		t.Errorf("no args: got %q, want %q", got, "hello world")
	}
	if got := invokeString(t, p, "greet", StringValue("go")); got != "hello go" {
		t.Errorf("with arg: got %q, want %q", got, "hello go")
	}
}

func TestProgram_TemplateLiterals(t *testing.T) {
	p := compileProgram(t, "function fmt(a, b) { return `sum of ${a} and ${b} is ${a + b}`; }")
	if got := invokeString(t, p, "fmt", NumberValue(2), NumberValue(3)); got != "sum of 2 and 3 is 5" {
		t.Errorf("got %q, want %q", got, "sum of 2 and 3 is 5")
	}
}

func TestProgram_TryCatchSync(t *testing.T) {
	p := compileProgram(t, `
		function safeDiv(a: number, b: number) {
			try {
				if (b === 0) {
					throw new TypeError("division by zero");
				}
				return a / b;
			} catch (e) {
				return "error: " + e.message;
			}
		}
	`)
	v, err := p.Invoke("safeDiv", NumberValue(6), NumberValue(2))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if v.Num != 3 {
		t.Errorf("6/2: got %v, want 3", v.Num)
	}
	if got := invokeString(t, p, "safeDiv", NumberValue(1), NumberValue(0)); got != "error: division by zero" {
		t.Errorf("1/0: got %q, want %q", got, "error: division by zero")
	}
}

func TestProgram_UncaughtThrowEscapesInvoke(t *testing.T) {
	p := compileProgram(t, `
		function explode() {
			throw new Error("kaboom");
		}
	`)
	_, err := p.Invoke("explode")
	if err == nil {
		t.Fatal("uncaught throw should surface as an error")
	}
	reason, ok := Thrown(err)
	if !ok || ErrorMessage(reason) != "kaboom" {
		t.Errorf("got %v, want thrown Error(kaboom)", err)
	}
}

func TestProgram_ForOfAndArrayMethods(t *testing.T) {
	p := compileProgram(t, `
		function total(xs) {
			let s = 0;
			for (const x of xs) {
				s = s + x;
			}
			return s;
		}
		function evensDoubled(xs) {
			return xs.filter((x) => x % 2 === 0).map((x) => x * 2).join(",");
		}
	`)
	nums := ObjectValue(NewArray(NumberValue(1), NumberValue(2), NumberValue(3), NumberValue(4)))
	v, err := p.Invoke("total", nums)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if v.Num != 10 {
		t.Errorf("total: got %v, want 10", v.Num)
	}
	if got := invokeString(t, p, "evensDoubled", nums); got != "4,8" {
		t.Errorf("evensDoubled: got %q, want %q", got, "4,8")
	}
}

func TestProgram_StringMembers(t *testing.T) {
	p := compileProgram(t, `
		function shout(s: string): string {
			return s.toUpperCase() + "!";
		}
		function initials(s: string): string {
			return s.split(" ").map((w) => w.charAt(0)).join("");
		}
	`)
	if got := invokeString(t, p, "shout", StringValue("hey")); got != "HEY!" {
		t.Errorf("shout: got %q, want %q", got, "HEY!")
	}
	if got := invokeString(t, p, "initials", StringValue("ada king lovelace")); got != "akl" {
		t.Errorf("initials: got %q, want %q", got, "akl")
	}
}

func TestProgram_PromiseAllPreservesOrder(t *testing.T) {
	p := compileProgram(t, `
		async function gather(tasks) {
			const results = await Promise.all(tasks);
			return results.join(",");
		}
	`)
	a, b := NewCompleter(), NewCompleter()
	v, err := p.Invoke("gather", ObjectValue(NewArray(
		ObjectValue(a.Task()),
		ObjectValue(b.Task()),
		NumberValue(3),
	)))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	task := v.AsTask()

	b.Resolve(NumberValue(2))
	a.Resolve(NumberValue(1))

	if task.State() != TaskFulfilled {
		t.Fatalf("task: got %v, want fulfilled", task.State())
	}
	if task.Result().Str != "1,2,3" {
		t.Errorf("got %q, want %q", task.Result().Str, "1,2,3")
	}
}

func TestProgram_PromiseAllSettledFromScript(t *testing.T) {
	p := compileProgram(t, `
		async function report(tasks) {
			const outcomes = await Promise.allSettled(tasks);
			let parts = [];
			for (const o of outcomes) {
				if (o.status === "fulfilled") {
					parts.push(o.status + ":" + o.value);
				} else {
					parts.push(o.status + ":" + o.reason);
				}
			}
			return parts.join(" ");
		}
	`)
	tasks := ObjectValue(NewArray(
		ObjectValue(FulfilledTask(NumberValue(1))),
		ObjectValue(RejectedTask(StringValue("no"))),
	))
	v, err := p.InvokeAsync("report", tasks)
	if err != nil {
		t.Fatalf("InvokeAsync: %v", err)
	}
	want := "fulfilled:1 rejected:no"
	if v.Str != want {
		t.Errorf("got %q, want %q", v.Str, want)
	}
}

func TestProgram_AllSettledErrorRejectionReportsMessage(t *testing.T) {
	p := compileProgram(t, `
		async function outcome() {
			const results = await Promise.allSettled([
				Promise.resolve(1),
				Promise.reject(new Error("bad")),
			]);
			const r = results[1];
			return r.status + ":" + r.reason;
		}
	`)
	v, err := p.InvokeAsync("outcome")
	if err != nil {
		t.Fatalf("InvokeAsync: %v", err)
	}
	if v.Str != "rejected:bad" {
		t.Errorf("got %q, want %q", v.Str, "rejected:bad")
	}
}

func TestProgram_ConstReassignmentRejected(t *testing.T) {
	_, err := Compile(`
		function f() {
			const x = 1;
			x = 2;
		}
	`)
	if err == nil {
		t.Fatal("const reassignment should fail to compile")
	}
}

func TestProgram_DuplicateClassRejected(t *testing.T) {
	_, err := Compile(`
		class A {}
		class A {}
	`)
	if err == nil {
		t.Fatal("duplicate class declaration should fail to compile")
	}
}

func TestProgram_MathBuiltins(t *testing.T) {
	p := compileProgram(t, `
		function calc(x: number): number {
			return Math.max(Math.floor(x), Math.abs(-2), Math.sqrt(16));
		}
	`)
	v, err := p.Invoke("calc", NumberValue(2.9))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if v.Num != 4 {
		t.Errorf("got %v, want 4", v.Num)
	}
}
