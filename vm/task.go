package vm

// ---------------------------------------------------------------------------
// Task: single-threaded cooperative futures
// ---------------------------------------------------------------------------

// TaskState is the lifecycle state of a task.
type TaskState uint8

const (
	TaskPending TaskState = iota
	TaskFulfilled
	TaskRejected
)

// String returns a human-readable state name.
func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskFulfilled:
		return "fulfilled"
	case TaskRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Task is a single-assignment future. Settling is sticky: the first
// Fulfill or Reject wins and later settlements are ignored.
// Continuations registered before settlement run in registration
// order when the task settles; continuations registered after
// settlement run immediately. All dispatch is inline on the caller's
// goroutine, matching a single-threaded event-loop model.
type Task struct {
	state         TaskState
	result        Value
	reason        Value
	continuations []func()
}

// NewTask creates a pending task.
func NewTask() *Task {
	return &Task{}
}

// FulfilledTask creates a task already fulfilled with v.
func FulfilledTask(v Value) *Task {
	return &Task{state: TaskFulfilled, result: v}
}

// RejectedTask creates a task already rejected with reason.
func RejectedTask(reason Value) *Task {
	return &Task{state: TaskRejected, reason: reason}
}

// State returns the current lifecycle state.
func (t *Task) State() TaskState {
	return t.state
}

// Result returns the fulfillment value. Only meaningful when
// fulfilled.
func (t *Task) Result() Value {
	return t.result
}

// Reason returns the rejection reason. Only meaningful when rejected.
func (t *Task) Reason() Value {
	return t.reason
}

// Fulfill settles the task with a value. No-op if already settled.
func (t *Task) Fulfill(v Value) {
	if t.state != TaskPending {
		return
	}
	t.state = TaskFulfilled
	t.result = v
	t.drain()
}

// Reject settles the task with a reason. No-op if already settled.
func (t *Task) Reject(reason Value) {
	if t.state != TaskPending {
		return
	}
	t.state = TaskRejected
	t.reason = reason
	t.drain()
}

// OnSettled registers a continuation. Runs immediately when already
// settled.
func (t *Task) OnSettled(fn func()) {
	if t.state != TaskPending {
		fn()
		return
	}
	t.continuations = append(t.continuations, fn)
}

func (t *Task) drain() {
	conts := t.continuations
	t.continuations = nil
	for _, fn := range conts {
		fn()
	}
}

// GetAwaiter returns the awaiter for this task.
func (t *Task) GetAwaiter() Awaiter {
	return Awaiter{task: t}
}

// Completer is the producer half of a task: it exposes settlement
// without handing consumers the right to settle.
type Completer struct {
	task *Task
}

// NewCompleter creates a completer with a fresh pending task.
func NewCompleter() *Completer {
	return &Completer{task: NewTask()}
}

// Task returns the consumer half.
func (c *Completer) Task() *Task {
	return c.task
}

// Resolve fulfills the underlying task.
func (c *Completer) Resolve(v Value) {
	c.task.Fulfill(v)
}

// RejectWith rejects the underlying task.
func (c *Completer) RejectWith(reason Value) {
	c.task.Reject(reason)
}

// ---------------------------------------------------------------------------
// Awaiter
// ---------------------------------------------------------------------------

// Awaiter is the await protocol over a task: completion test, result
// extraction that re-raises rejections, and continuation scheduling.
type Awaiter struct {
	task *Task
}

// IsCompleted reports whether the task has settled. When true at an
// await site the state machine takes the synchronous fast path and
// never suspends.
func (a Awaiter) IsCompleted() bool {
	return a.task.state != TaskPending
}

// GetResult returns the fulfillment value, or a ThrownError carrying
// the rejection reason. Must only be called once the task settled.
func (a Awaiter) GetResult() (Value, error) {
	if a.task.state == TaskRejected {
		return Undefined, Throw(a.task.reason)
	}
	return a.task.result, nil
}

// OnCompleted schedules fn to run when the task settles.
func (a Awaiter) OnCompleted(fn func()) {
	a.task.OnSettled(fn)
}

// ---------------------------------------------------------------------------
// Combinators
// ---------------------------------------------------------------------------

// WhenAll returns a task that fulfills with the results of all input
// tasks in input order once every task fulfills, or rejects with the
// reason of the first task (in settlement order) to reject.
// An empty input fulfills immediately with an empty array.
func WhenAll(tasks []*Task) *Task {
	out := NewTask()
	n := len(tasks)
	if n == 0 {
		out.Fulfill(ObjectValue(NewArray()))
		return out
	}

	results := make([]Value, n)
	remaining := n
	for i, t := range tasks {
		i, t := i, t
		t.OnSettled(func() {
			if out.state != TaskPending {
				return
			}
			if t.state == TaskRejected {
				out.Reject(t.reason)
				return
			}
			results[i] = t.result
			remaining--
			if remaining == 0 {
				out.Fulfill(ObjectValue(&Array{Elements: results}))
			}
		})
	}
	return out
}
