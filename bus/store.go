package bus

import (
	"context"
	"time"

	"github.com/petal-labs/algoviz/runtime"
)

// EventStore persists events for replay.
type EventStore interface {
	// Append stores an event.
	Append(ctx context.Context, event runtime.Event) error

	// List returns events for a run, optionally filtered.
	// afterSeq: return events with Seq > afterSeq (0 means all)
	// limit: max events to return (0 means no limit)
	List(ctx context.Context, runID string, afterSeq uint64, limit int) ([]runtime.Event, error)

	// LatestSeq returns the highest Seq for a run (0 if no events).
	LatestSeq(ctx context.Context, runID string) (uint64, error)
}

// Pruner is implemented by stores that can drop old events. The server's
// maintenance schedule calls it.
type Pruner interface {
	// PruneBefore deletes events recorded before cutoff and returns how many
	// were removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
