package bus

import (
	"context"
	"log/slog"
	"time"

	"github.com/petal-labs/algoviz/runtime"
)

// StoreSubscriber writes events to an EventStore. Failures are logged and
// dropped; a run never sees them.
type StoreSubscriber struct {
	store   EventStore
	logger  *slog.Logger
	timeout time.Duration
}

// NewStoreSubscriber creates a new StoreSubscriber.
func NewStoreSubscriber(store EventStore, logger *slog.Logger) *StoreSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSubscriber{
		store:   store,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Handle persists a single event to the store.
func (s *StoreSubscriber) Handle(event runtime.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.store.Append(ctx, event); err != nil {
		s.logger.Error("failed to persist event",
			"run_id", event.RunID,
			"kind", event.Kind,
			"seq", event.Seq,
			"error", err,
		)
	}
}

// Drain persists every event of sub until its channel closes or ctx is
// done.
func (s *StoreSubscriber) Drain(ctx context.Context, sub Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			s.Handle(e)
		}
	}
}
