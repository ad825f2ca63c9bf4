package bus

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/petal-labs/algoviz/runtime"
)

// MemEventStore is a thread-safe in-memory event store.
type MemEventStore struct {
	mu     sync.RWMutex
	events map[string][]runtime.Event // runID -> events in Seq order
}

// NewMemEventStore creates a new in-memory event store.
func NewMemEventStore() *MemEventStore {
	return &MemEventStore{
		events: make(map[string][]runtime.Event),
	}
}

// Append implements EventStore. Events are kept sorted by Seq even when
// they arrive out of order.
func (s *MemEventStore) Append(_ context.Context, event runtime.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.events[event.RunID]
	i, _ := slices.BinarySearchFunc(run, event.Seq, func(e runtime.Event, seq uint64) int {
		switch {
		case e.Seq < seq:
			return -1
		case e.Seq > seq:
			return 1
		}
		return 0
	})
	// Equal sequence numbers keep arrival order.
	for i < len(run) && run[i].Seq == event.Seq {
		i++
	}
	s.events[event.RunID] = slices.Insert(run, i, event)
	return nil
}

// List implements EventStore.
func (s *MemEventStore) List(_ context.Context, runID string, afterSeq uint64, limit int) ([]runtime.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []runtime.Event
	for _, e := range s.events[runID] {
		if e.Seq <= afterSeq {
			continue
		}
		result = append(result, e)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// LatestSeq implements EventStore.
func (s *MemEventStore) LatestSeq(_ context.Context, runID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[runID]
	if len(events) == 0 {
		return 0, nil
	}
	return events[len(events)-1].Seq, nil
}

// PruneBefore implements Pruner.
func (s *MemEventStore) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for runID, events := range s.events {
		kept := slices.DeleteFunc(events, func(e runtime.Event) bool {
			return e.Time.Before(cutoff)
		})
		removed += int64(len(events) - len(kept))
		if len(kept) == 0 {
			delete(s.events, runID)
			continue
		}
		s.events[runID] = kept
	}
	return removed, nil
}

// Compile-time interface checks.
var _ EventStore = (*MemEventStore)(nil)
var _ Pruner = (*MemEventStore)(nil)
