package vm

// ---------------------------------------------------------------------------
// allSettled: hand-written state machines over the task runtime
// ---------------------------------------------------------------------------
//
// AllSettled is built from two machine shapes rather than compiled
// bytecode. A settleOne machine adapts a single task into one that
// always fulfills, with an outcome record; the aggregate machine
// awaits the adapted tasks through WhenAll, which preserves input
// order regardless of settlement order.

// settleOne adapts one task: its output task fulfills with
// {status: "fulfilled", value} or {status: "rejected", reason} and
// never rejects.
type settleOne struct {
	state   int32
	builder *TaskBuilder
	awaiter Awaiter
}

func newSettleOne(t *Task) *settleOne {
	return &settleOne{
		state:   StateRunning,
		builder: NewTaskBuilder(),
		awaiter: t.GetAwaiter(),
	}
}

// MoveNext mirrors the compiled machine protocol: park on the awaiter
// until it settles, then convert either outcome into a fulfillment.
func (m *settleOne) MoveNext() {
	if m.state == StateDone {
		return
	}
	if m.state == StateRunning && !m.awaiter.IsCompleted() {
		m.state = 0
		m.awaiter.OnCompleted(m.MoveNext)
		return
	}
	m.state = StateDone

	record := NewObject()
	if v, err := m.awaiter.GetResult(); err != nil {
		reason, _ := Thrown(err)
		record.Set("status", StringValue("rejected"))
		// Only the message crosses into data; the thrown value itself
		// does not.
		record.Set("reason", StringValue(ErrorMessage(reason)))
	} else {
		record.Set("status", StringValue("fulfilled"))
		record.Set("value", v)
	}
	m.builder.SetResult(ObjectValue(record))
}

// allSettledAggregate awaits the combined adapted task and forwards
// its (always fulfilled) result array.
type allSettledAggregate struct {
	state   int32
	builder *TaskBuilder
	awaiter Awaiter
}

func (m *allSettledAggregate) MoveNext() {
	if m.state == StateDone {
		return
	}
	if m.state == StateRunning && !m.awaiter.IsCompleted() {
		m.state = 0
		m.awaiter.OnCompleted(m.MoveNext)
		return
	}
	m.state = StateDone

	v, err := m.awaiter.GetResult()
	if err != nil {
		// Adapted tasks never reject, so neither does WhenAll over
		// them.
		reason, _ := Thrown(err)
		m.builder.SetException(reason)
		return
	}
	m.builder.SetResult(v)
}

// AllSettled returns a task that fulfills with an array of outcome
// records, one per input task in input order, once every input has
// settled. The result task never rejects.
func AllSettled(tasks []*Task) *Task {
	adapted := make([]*Task, len(tasks))
	for i, t := range tasks {
		one := newSettleOne(t)
		one.MoveNext()
		adapted[i] = one.builder.Task()
	}

	agg := &allSettledAggregate{
		state:   StateRunning,
		builder: NewTaskBuilder(),
		awaiter: WhenAll(adapted).GetAwaiter(),
	}
	agg.MoveNext()
	return agg.builder.Task()
}
