package runtime

import (
	"testing"

	"github.com/petal-labs/algoviz/core"
)

func TestNewEvent_Defaults(t *testing.T) {
	e := NewEvent(EventHighlight, "r1")
	if e.Step.Pivot != -1 || e.Step.Line != -1 {
		t.Fatalf("step defaults = %+v", e.Step)
	}
	if e.Time.IsZero() {
		t.Fatal("Time not set")
	}
}

func TestEvent_BuildersCopy(t *testing.T) {
	idx := []int{1, 2}
	e := NewEvent(EventHighlight, "r1").WithIndices(idx...).WithAlgorithm(core.QuickSort)
	idx[0] = 9
	if e.Step.Indices[0] != 1 {
		t.Fatal("WithIndices aliases its argument")
	}
	if e.Algorithm != core.QuickSort {
		t.Fatalf("algorithm = %v", e.Algorithm)
	}
}

func TestEvent_Status(t *testing.T) {
	e := NewEvent(EventRunFinished, "r1").WithPayload("status", StatusNotFound)
	if e.Status() != StatusNotFound {
		t.Fatalf("status = %q", e.Status())
	}
	e = NewEvent(EventRunFinished, "r1").WithPayload("status", "completed")
	if e.Status() != StatusCompleted {
		t.Fatalf("status = %q", e.Status())
	}
}

func TestMultiEventHandler_SkipsNil(t *testing.T) {
	var n int
	h := MultiEventHandler(nil, func(Event) { n++ }, func(Event) { n++ })
	h(Event{})
	if n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestChannelEventHandler_DropsWhenFull(t *testing.T) {
	ch := make(chan Event, 1)
	h := ChannelEventHandler(ch)
	h(Event{Seq: 1})
	h(Event{Seq: 2})
	if got := (<-ch).Seq; got != 1 {
		t.Fatalf("seq = %d, want 1", got)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %+v", e)
	default:
	}
}

func TestBlockingChannelEventHandler_StopsOnDone(t *testing.T) {
	ch := make(chan Event)
	done := make(chan struct{})
	close(done)
	h := BlockingChannelEventHandler(ch, done)
	h(Event{}) // must not block
}

func TestSinks_Merge(t *testing.T) {
	var a, b []int
	merged := Sinks{Line: func(l int) { a = append(a, l) }}.Merge(Sinks{Line: func(l int) { b = append(b, l) }})
	merged.Line(2)
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("a=%v b=%v", a, b)
	}
	if (Sinks{}).Merge(Sinks{}).Sound != nil {
		t.Fatal("merging empty sinks produced a non-nil callback")
	}
}
