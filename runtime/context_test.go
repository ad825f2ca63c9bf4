package runtime

import (
	"context"
	"testing"

	"github.com/petal-labs/algoviz/core"
)

func TestEmitterFromContext(t *testing.T) {
	var got []EventKind
	ctx := ContextWithEmitter(context.Background(), func(e Event) { got = append(got, e.Kind) })

	EmitterFromContext(ctx)(NewEvent(EventCue, "r1"))
	if len(got) != 1 || got[0] != EventCue {
		t.Fatalf("got %v, want [%s]", got, EventCue)
	}

	// No emitter: a no-op comes back.
	EmitterFromContext(context.Background())(NewEvent(EventCue, "r1"))
}

func TestRunIDFromContext(t *testing.T) {
	if got := RunIDFromContext(context.Background()); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
	ctx := ContextWithRunID(context.Background(), "run-9")
	if got := RunIDFromContext(ctx); got != "run-9" {
		t.Fatalf("got %q, want run-9", got)
	}
}

func TestNewStepper_FallsBackToContext(t *testing.T) {
	var kinds []EventKind
	ctx := ContextWithEmitter(context.Background(), func(e Event) { kinds = append(kinds, e.Kind) })
	ctx = ContextWithRunID(ctx, "run-ctx")

	s := NewStepper(ctx, StepperConfig{})
	if s.RunID() != "run-ctx" {
		t.Fatalf("RunID = %q, want run-ctx", s.RunID())
	}
	s.Cue(core.CueVisit)
	if len(kinds) != 1 || kinds[0] != EventCue {
		t.Fatalf("kinds = %v", kinds)
	}
}
