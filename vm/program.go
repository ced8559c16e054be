package vm

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/tycholang/tycho/compiler"
)

var log = commonlog.GetLogger("tycho.vm")

// ---------------------------------------------------------------------------
// Program: a compiled image and its runtime environment
// ---------------------------------------------------------------------------

// Program is a compiled Tycho image: class table, arrow-function
// table, globals, and the top-level script chunk.
type Program struct {
	Classes *ClassTable
	FnTable []*Chunk
	Globals map[string]Value
	Script  *Chunk

	// Stdout receives console output.
	Stdout io.Writer
}

// NewProgram creates an empty program with the builtin environment
// installed.
func NewProgram() *Program {
	p := &Program{
		Classes: NewClassTable(),
		Globals: map[string]Value{},
		Stdout:  os.Stdout,
	}
	registerErrorClasses(p.Classes)
	p.Globals["Error"] = ObjectValue(p.Classes.Lookup("Error"))
	p.Globals["TypeError"] = ObjectValue(p.Classes.Lookup("TypeError"))
	p.installConsole()
	p.installPromise()
	p.installMath()
	return p
}

// Compile parses, analyzes and lowers source code into a program.
func Compile(source string) (*Program, error) {
	ast, parseErrs := compiler.Parse(source)
	if len(parseErrs) > 0 {
		return nil, &CompileError{Messages: parseErrs}
	}

	sa := compiler.NewSemanticAnalyzer()
	if errs := sa.Analyze(ast); len(errs) > 0 {
		return nil, &CompileError{Messages: errs}
	}
	for _, w := range sa.Warnings() {
		log.Warning(w)
	}

	return Generate(ast)
}

// Run executes the top-level script, if any. The returned value is
// the script's result.
func (p *Program) Run() (Value, error) {
	in := NewInterp(p)
	if p.Script == nil {
		return Undefined, nil
	}
	return in.runChunk(p.Script, Undefined, nil, nil, nil)
}

// Invoke calls a global function by name.
func (p *Program) Invoke(name string, args ...Value) (Value, error) {
	in := NewInterp(p)
	fn, ok := p.Globals[name]
	if !ok {
		return Undefined, fmt.Errorf("no such function: %s", name)
	}
	return in.CallValue(fn, Undefined, args)
}

// InvokeAsync calls a global async function and waits for its task to
// settle, returning the fulfillment value or the rejection as a
// ThrownError. In this cooperative runtime all continuations run
// inline, so a task that is still pending after the call has no way
// to make progress and reports an error.
func (p *Program) InvokeAsync(name string, args ...Value) (Value, error) {
	v, err := p.Invoke(name, args...)
	if err != nil {
		return Undefined, err
	}
	return AwaitResult(v)
}

// AwaitResult unwraps a settled task value.
func AwaitResult(v Value) (Value, error) {
	task := v.AsTask()
	if task == nil {
		return v, nil
	}
	switch task.State() {
	case TaskFulfilled:
		return task.Result(), nil
	case TaskRejected:
		return Undefined, Throw(task.Reason())
	default:
		return Undefined, fmt.Errorf("task still pending: no external completion arrived")
	}
}

// ---------------------------------------------------------------------------
// Builtin globals
// ---------------------------------------------------------------------------

func (p *Program) installConsole() {
	console := NewObject()
	logFn := func(in *Interp, this Value, args []Value) (Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.ToDisplayString()
		}
		fmt.Fprintln(p.Stdout, strings.Join(parts, " "))
		return Undefined, nil
	}
	console.Set("log", ObjectValue(NewBuiltin("console.log", logFn)))
	console.Set("error", ObjectValue(NewBuiltin("console.error", logFn)))
	console.Set("warn", ObjectValue(NewBuiltin("console.warn", logFn)))
	p.Globals["console"] = ObjectValue(console)
}

func (p *Program) installPromise() {
	promise := NewObject()

	promise.Set("resolve", ObjectValue(NewBuiltin("Promise.resolve",
		func(in *Interp, this Value, args []Value) (Value, error) {
			v := argValue(args, 0)
			if v.AsTask() != nil {
				return v, nil
			}
			return ObjectValue(FulfilledTask(v)), nil
		})))

	promise.Set("reject", ObjectValue(NewBuiltin("Promise.reject",
		func(in *Interp, this Value, args []Value) (Value, error) {
			return ObjectValue(RejectedTask(argValue(args, 0))), nil
		})))

	promise.Set("all", ObjectValue(NewBuiltin("Promise.all",
		func(in *Interp, this Value, args []Value) (Value, error) {
			tasks, err := taskArgs(in, args)
			if err != nil {
				return Undefined, err
			}
			return ObjectValue(WhenAll(tasks)), nil
		})))

	promise.Set("allSettled", ObjectValue(NewBuiltin("Promise.allSettled",
		func(in *Interp, this Value, args []Value) (Value, error) {
			tasks, err := taskArgs(in, args)
			if err != nil {
				return Undefined, err
			}
			return ObjectValue(AllSettled(tasks)), nil
		})))

	p.Globals["Promise"] = ObjectValue(promise)
}

// taskArgs adapts an array argument into tasks, wrapping plain values
// as already-fulfilled tasks.
func taskArgs(in *Interp, args []Value) ([]*Task, error) {
	arr := argValue(args, 0).AsArray()
	if arr == nil {
		return nil, ThrowType(in, "expected an array of tasks")
	}
	tasks := make([]*Task, arr.Len())
	for i, el := range arr.Elements {
		if t := el.AsTask(); t != nil {
			tasks[i] = t
		} else {
			tasks[i] = FulfilledTask(el)
		}
	}
	return tasks, nil
}

func (p *Program) installMath() {
	obj := NewObject()
	obj.Set("floor", ObjectValue(NewBuiltin("Math.floor",
		func(in *Interp, this Value, args []Value) (Value, error) {
			return NumberValue(math.Floor(toNumber(argValue(args, 0)))), nil
		})))
	obj.Set("ceil", ObjectValue(NewBuiltin("Math.ceil",
		func(in *Interp, this Value, args []Value) (Value, error) {
			return NumberValue(math.Ceil(toNumber(argValue(args, 0)))), nil
		})))
	obj.Set("round", ObjectValue(NewBuiltin("Math.round",
		func(in *Interp, this Value, args []Value) (Value, error) {
			return NumberValue(math.Round(toNumber(argValue(args, 0)))), nil
		})))
	obj.Set("abs", ObjectValue(NewBuiltin("Math.abs",
		func(in *Interp, this Value, args []Value) (Value, error) {
			return NumberValue(math.Abs(toNumber(argValue(args, 0)))), nil
		})))
	obj.Set("sqrt", ObjectValue(NewBuiltin("Math.sqrt",
		func(in *Interp, this Value, args []Value) (Value, error) {
			return NumberValue(math.Sqrt(toNumber(argValue(args, 0)))), nil
		})))
	obj.Set("max", ObjectValue(NewBuiltin("Math.max",
		func(in *Interp, this Value, args []Value) (Value, error) {
			return reduceNumbers(args, math.Max), nil
		})))
	obj.Set("min", ObjectValue(NewBuiltin("Math.min",
		func(in *Interp, this Value, args []Value) (Value, error) {
			return reduceNumbers(args, math.Min), nil
		})))
	p.Globals["Math"] = ObjectValue(obj)
}

func reduceNumbers(args []Value, pick func(a, b float64) float64) Value {
	if len(args) == 0 {
		return Undefined
	}
	acc := toNumber(args[0])
	for _, a := range args[1:] {
		acc = pick(acc, toNumber(a))
	}
	return NumberValue(acc)
}
