package vm

import (
	"testing"
)

// awaitParamChunk builds the smallest async body: await the first
// parameter and return its result.
func awaitParamChunk() *Chunk {
	c := NewChunk("awaitParam")
	c.IsAsync = true
	c.ParamCount = 1
	c.LocalCount = 1
	c.EmitWithOperand(OpLoadLocal, 0)
	c.EmitU16(OpAwait, c.NextAwaitSite())
	c.Emit(OpReturn)
	return c
}

func TestMachine_CompletedAwaiterNeverSuspends(t *testing.T) {
	p := NewProgram()
	in := NewInterp(p)

	frame := NewFrame(awaitParamChunk(), Undefined, []Value{ObjectValue(FulfilledTask(NumberValue(9)))})
	m := NewMachine(in, frame)
	m.Builder.Start(m)

	if m.State != StateDone {
		t.Fatalf("State: got %d, want done (%d)", m.State, StateDone)
	}
	task := m.Builder.Task()
	if task.State() != TaskFulfilled || task.Result().Num != 9 {
		t.Errorf("task: got %v %v, want fulfilled 9", task.State(), task.Result().Num)
	}
}

func TestMachine_ParksAtAwaitSiteAndResumes(t *testing.T) {
	p := NewProgram()
	in := NewInterp(p)

	c := NewCompleter()
	frame := NewFrame(awaitParamChunk(), Undefined, []Value{ObjectValue(c.Task())})
	m := NewMachine(in, frame)
	m.Builder.Start(m)

	if m.State != 0 {
		t.Fatalf("State: got %d, want parked at site 0", m.State)
	}
	out := m.Builder.Task()
	if out.State() != TaskPending {
		t.Fatal("output task should be pending while parked")
	}

	c.Resolve(NumberValue(11))

	if m.State != StateDone {
		t.Fatalf("State after resume: got %d, want done", m.State)
	}
	if out.State() != TaskFulfilled || out.Result().Num != 11 {
		t.Errorf("task: got %v %v, want fulfilled 11", out.State(), out.Result().Num)
	}
}

func TestMachine_RejectionBecomesTaskRejection(t *testing.T) {
	p := NewProgram()
	in := NewInterp(p)

	c := NewCompleter()
	frame := NewFrame(awaitParamChunk(), Undefined, []Value{ObjectValue(c.Task())})
	m := NewMachine(in, frame)
	m.Builder.Start(m)

	c.RejectWith(StringValue("broken"))

	out := m.Builder.Task()
	if out.State() != TaskRejected {
		t.Fatalf("task: got %v, want rejected", out.State())
	}
	if out.Reason().Str != "broken" {
		t.Errorf("reason: got %q, want %q", out.Reason().Str, "broken")
	}
	if m.State != StateDone {
		t.Errorf("State: got %d, want done", m.State)
	}
}

func TestMachine_MoveNextAfterDoneIsNoop(t *testing.T) {
	p := NewProgram()
	in := NewInterp(p)

	frame := NewFrame(awaitParamChunk(), Undefined, []Value{ObjectValue(FulfilledTask(NumberValue(1)))})
	m := NewMachine(in, frame)
	m.Builder.Start(m)
	m.MoveNext()
	m.MoveNext()

	out := m.Builder.Task()
	if out.State() != TaskFulfilled || out.Result().Num != 1 {
		t.Error("extra MoveNext calls must not disturb the settled task")
	}
}

func TestMachine_AwaitPlainValueYieldsIt(t *testing.T) {
	p := NewProgram()
	in := NewInterp(p)

	frame := NewFrame(awaitParamChunk(), Undefined, []Value{NumberValue(5)})
	m := NewMachine(in, frame)
	m.Builder.Start(m)

	out := m.Builder.Task()
	if out.State() != TaskFulfilled || out.Result().Num != 5 {
		t.Errorf("task: got %v %v, want fulfilled 5", out.State(), out.Result().Num)
	}
}

// ---------------------------------------------------------------------------
// Compiled async functions
// ---------------------------------------------------------------------------

func TestAsync_SyncCompletionReturnsSettledTask(t *testing.T) {
	p := compileProgram(t, `
		async function fetchValue(): Promise<number> {
			return await Promise.resolve(5);
		}
	`)
	v, err := p.Invoke("fetchValue")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	task := v.AsTask()
	if task == nil {
		t.Fatal("async function should return a task")
	}
	if task.State() != TaskFulfilled || task.Result().Num != 5 {
		t.Errorf("task: got %v %v, want fulfilled 5", task.State(), task.Result().Num)
	}
}

func TestAsync_LocalsSurviveSuspension(t *testing.T) {
	p := compileProgram(t, `
		async function add(t) {
			let a = 10;
			let b = await t;
			let c = a + b;
			return c;
		}
	`)
	comp := NewCompleter()
	v, err := p.Invoke("add", ObjectValue(comp.Task()))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	task := v.AsTask()
	if task.State() != TaskPending {
		t.Fatal("task should be pending before the awaited input settles")
	}

	comp.Resolve(NumberValue(32))

	if task.State() != TaskFulfilled {
		t.Fatalf("task: got %v, want fulfilled", task.State())
	}
	if task.Result().Num != 42 {
		t.Errorf("result: got %v, want 42", task.Result().Num)
	}
}

func TestAsync_SequentialAwaits(t *testing.T) {
	p := compileProgram(t, `
		async function seq(t1, t2) {
			let a = await t1;
			let b = await t2;
			return a + b;
		}
	`)
	c1, c2 := NewCompleter(), NewCompleter()
	v, err := p.Invoke("seq", ObjectValue(c1.Task()), ObjectValue(c2.Task()))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	task := v.AsTask()

	c1.Resolve(NumberValue(1))
	if task.State() != TaskPending {
		t.Fatal("task should still be pending at the second await")
	}
	c2.Resolve(NumberValue(2))

	if task.State() != TaskFulfilled || task.Result().Num != 3 {
		t.Errorf("task: got %v %v, want fulfilled 3", task.State(), task.Result().Num)
	}
}

func TestAsync_ThrowRejectsTask(t *testing.T) {
	p := compileProgram(t, `
		async function boom() {
			throw new Error("bad input");
		}
	`)
	v, err := p.Invoke("boom")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	task := v.AsTask()
	if task.State() != TaskRejected {
		t.Fatalf("task: got %v, want rejected", task.State())
	}
	if msg := ErrorMessage(task.Reason()); msg != "bad input" {
		t.Errorf("reason: got %q, want %q", msg, "bad input")
	}
}

func TestAsync_TryCatchSpansAwait(t *testing.T) {
	p := compileProgram(t, `
		async function guarded(t) {
			try {
				let v = await t;
				return "ok:" + v;
			} catch (e) {
				return "caught:" + e;
			}
		}
	`)
	comp := NewCompleter()
	v, err := p.Invoke("guarded", ObjectValue(comp.Task()))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	task := v.AsTask()

	comp.RejectWith(StringValue("oops"))

	if task.State() != TaskFulfilled {
		t.Fatalf("task: got %v, want fulfilled (catch swallowed the rejection)", task.State())
	}
	if task.Result().Str != "caught:oops" {
		t.Errorf("result: got %q, want %q", task.Result().Str, "caught:oops")
	}
}

func TestAsync_UncaughtRejectionPropagates(t *testing.T) {
	p := compileProgram(t, `
		async function inner(t) {
			return await t;
		}
		async function outer(t) {
			return await inner(t);
		}
	`)
	comp := NewCompleter()
	v, err := p.Invoke("outer", ObjectValue(comp.Task()))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	task := v.AsTask()

	comp.RejectWith(StringValue("deep failure"))

	if task.State() != TaskRejected {
		t.Fatalf("task: got %v, want rejected", task.State())
	}
	if task.Reason().Str != "deep failure" {
		t.Errorf("reason: got %q, want %q", task.Reason().Str, "deep failure")
	}
}

func TestAsync_AwaitInLoop(t *testing.T) {
	p := compileProgram(t, `
		async function sum(tasks) {
			let total = 0;
			for (const t of tasks) {
				total = total + await t;
			}
			return total;
		}
	`)
	arr := NewArray(
		ObjectValue(FulfilledTask(NumberValue(1))),
		ObjectValue(FulfilledTask(NumberValue(2))),
		ObjectValue(FulfilledTask(NumberValue(3))),
	)
	v, err := p.InvokeAsync("sum", ObjectValue(arr))
	if err != nil {
		t.Fatalf("InvokeAsync: %v", err)
	}
	if v.Num != 6 {
		t.Errorf("got %v, want 6", v.Num)
	}
}

func TestAsync_InvokeAsyncUnwrapsRejection(t *testing.T) {
	p := compileProgram(t, `
		async function fail() {
			throw "plain reason";
		}
	`)
	_, err := p.InvokeAsync("fail")
	if err == nil {
		t.Fatal("InvokeAsync on a rejecting function should return an error")
	}
	reason, ok := Thrown(err)
	if !ok || reason.Str != "plain reason" {
		t.Errorf("got %v, want thrown %q", err, "plain reason")
	}
}
