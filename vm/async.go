package vm

// ---------------------------------------------------------------------------
// Async lowering: builder and resumable state machine
// ---------------------------------------------------------------------------
//
// An async body compiles to an ordinary chunk whose OpAwait sites are
// numbered in emission order. At runtime the body runs inside a
// Machine: a resumable activation whose frame (instruction pointer,
// operand stack, locals) persists across suspensions, so every local
// is preserved without per-site liveness analysis. The machine's state
// field tracks where execution stands: running, done, or parked at a
// numbered await site.

// Machine states. Non-negative states are await site numbers.
const (
	StateRunning int32 = -1
	StateDone    int32 = -2
)

// TaskBuilder couples a machine to the task it settles. The builder
// owns the machine's output: exactly one SetResult or SetException
// settles the task, and AwaitUnsafeOnCompleted schedules resumption.
type TaskBuilder struct {
	completer *Completer
}

// NewTaskBuilder creates a builder with a fresh pending task.
func NewTaskBuilder() *TaskBuilder {
	return &TaskBuilder{completer: NewCompleter()}
}

// Task returns the task this builder settles.
func (b *TaskBuilder) Task() *Task {
	return b.completer.Task()
}

// Start runs the machine until its first suspension or completion.
// The caller observes a task that is already settled when the body
// never suspended.
func (b *TaskBuilder) Start(m *Machine) {
	m.MoveNext()
}

// SetResult fulfills the builder's task with the body's return value.
func (b *TaskBuilder) SetResult(v Value) {
	b.completer.Resolve(v)
}

// SetException rejects the builder's task with a thrown value.
func (b *TaskBuilder) SetException(reason Value) {
	b.completer.RejectWith(reason)
}

// AwaitUnsafeOnCompleted registers the machine's MoveNext as the
// awaiter's continuation. When the awaited task settles, the machine
// resumes at its parked site.
func (b *TaskBuilder) AwaitUnsafeOnCompleted(aw Awaiter, m *Machine) {
	aw.OnCompleted(m.MoveNext)
}

// Machine drives one async activation.
type Machine struct {
	State   int32
	Builder *TaskBuilder
	Frame   *Frame
	interp  *Interp
}

// NewMachine creates a machine for an async frame.
func NewMachine(in *Interp, frame *Frame) *Machine {
	return &Machine{
		State:   StateRunning,
		Builder: NewTaskBuilder(),
		Frame:   frame,
		interp:  in,
	}
}

// MoveNext advances the body to its next suspension or completion.
//
// Exceptions never escape MoveNext: an unhandled throw from the body,
// including a rejection re-raised by a resumed awaiter, transitions
// the machine to done and rejects the task. A rejection re-raised at
// resume time is routed through the frame's handler table first, so a
// try/catch spanning the await site catches it exactly as if the
// throw were synchronous.
func (m *Machine) MoveNext() {
	if m.State == StateDone {
		return
	}
	m.State = StateRunning

	res, err := m.interp.runFrame(m.Frame)
	if err != nil {
		m.State = StateDone
		if v, ok := Thrown(err); ok {
			m.Builder.SetException(v)
		} else {
			m.Builder.SetException(StringValue(err.Error()))
		}
		return
	}
	if res.Suspend {
		m.State = int32(res.Site)
		m.Builder.AwaitUnsafeOnCompleted(res.Awaiter, m)
		return
	}

	m.State = StateDone
	m.Builder.SetResult(res.Value)
}
