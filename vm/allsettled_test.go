package vm

import (
	"testing"
)

func settledRecord(t *testing.T, v Value) (status string, payload Value) {
	t.Helper()
	obj := v.AsObject()
	if obj == nil {
		t.Fatalf("outcome record should be an object, got %s", v.TypeOf())
	}
	st := obj.Get("status")
	if st.Str == "fulfilled" {
		return st.Str, obj.Get("value")
	}
	return st.Str, obj.Get("reason")
}

func TestAllSettled_EmptyInput(t *testing.T) {
	out := AllSettled(nil)
	if out.State() != TaskFulfilled {
		t.Fatalf("State: got %v, want fulfilled", out.State())
	}
	if arr := out.Result().AsArray(); arr == nil || arr.Len() != 0 {
		t.Error("empty input should fulfill with an empty array")
	}
}

func TestAllSettled_MixedOutcomes(t *testing.T) {
	out := AllSettled([]*Task{
		FulfilledTask(NumberValue(1)),
		RejectedTask(StringValue("nope")),
		FulfilledTask(NumberValue(3)),
	})

	if out.State() != TaskFulfilled {
		t.Fatalf("State: got %v, want fulfilled (allSettled never rejects)", out.State())
	}
	arr := out.Result().AsArray()
	if arr == nil || arr.Len() != 3 {
		t.Fatal("result should be a three-element array")
	}

	status, v := settledRecord(t, arr.Elements[0])
	if status != "fulfilled" || v.Num != 1 {
		t.Errorf("record 0: got %s %v, want fulfilled 1", status, v.Num)
	}
	status, v = settledRecord(t, arr.Elements[1])
	if status != "rejected" || v.Str != "nope" {
		t.Errorf("record 1: got %s %q, want rejected %q", status, v.Str, "nope")
	}
	status, v = settledRecord(t, arr.Elements[2])
	if status != "fulfilled" || v.Num != 3 {
		t.Errorf("record 2: got %s %v, want fulfilled 3", status, v.Num)
	}
}

func TestAllSettled_OrderIndependentOfSettlement(t *testing.T) {
	a, b, c := NewTask(), NewTask(), NewTask()
	out := AllSettled([]*Task{a, b, c})

	if out.State() != TaskPending {
		t.Fatal("should stay pending until every input settles")
	}

	c.Reject(StringValue("last slot"))
	b.Fulfill(NumberValue(20))
	if out.State() != TaskPending {
		t.Fatal("should stay pending with one input outstanding")
	}
	a.Fulfill(NumberValue(10))

	if out.State() != TaskFulfilled {
		t.Fatalf("State: got %v, want fulfilled", out.State())
	}
	arr := out.Result().AsArray()

	status, v := settledRecord(t, arr.Elements[0])
	if status != "fulfilled" || v.Num != 10 {
		t.Errorf("record 0: got %s %v, want fulfilled 10", status, v.Num)
	}
	status, v = settledRecord(t, arr.Elements[1])
	if status != "fulfilled" || v.Num != 20 {
		t.Errorf("record 1: got %s %v, want fulfilled 20", status, v.Num)
	}
	status, v = settledRecord(t, arr.Elements[2])
	if status != "rejected" || v.Str != "last slot" {
		t.Errorf("record 2: got %s %q, want rejected %q", status, v.Str, "last slot")
	}
}

func TestAllSettled_ErrorRejectionReasonIsMessage(t *testing.T) {
	in := NewInterp(NewProgram())
	out := AllSettled([]*Task{
		RejectedTask(in.NewError("Error", "bad")),
	})

	if out.State() != TaskFulfilled {
		t.Fatalf("State: got %v, want fulfilled", out.State())
	}
	status, reason := settledRecord(t, out.Result().AsArray().Elements[0])
	if status != "rejected" {
		t.Fatalf("status: got %s, want rejected", status)
	}
	if reason.Kind != KindString || reason.Str != "bad" {
		t.Errorf("reason: got %s %q, want the error message string %q",
			reason.TypeOf(), reason.Str, "bad")
	}
}

func TestAllSettled_AllRejectionsStillFulfill(t *testing.T) {
	out := AllSettled([]*Task{
		RejectedTask(StringValue("a")),
		RejectedTask(StringValue("b")),
	})
	if out.State() != TaskFulfilled {
		t.Fatalf("State: got %v, want fulfilled", out.State())
	}
	arr := out.Result().AsArray()
	for i, want := range []string{"a", "b"} {
		status, v := settledRecord(t, arr.Elements[i])
		if status != "rejected" || v.Str != want {
			t.Errorf("record %d: got %s %q, want rejected %q", i, status, v.Str, want)
		}
	}
}
