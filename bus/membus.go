package bus

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/petal-labs/algoviz/runtime"
)

// allRuns is the subscriber key for SubscribeAll.
const allRuns = ""

// MemBusConfig configures an in-memory event bus.
type MemBusConfig struct {
	// SubscriberBufferSize is the channel buffer size per subscriber (default: 1024).
	// A sorting run of 40 bars emits a few thousand events, so slow readers
	// should keep up or expect drops.
	SubscriberBufferSize int
}

// MemBus is an in-memory event bus. A subscriber whose buffer is full
// misses events rather than slowing the run down.
type MemBus struct {
	mu      sync.RWMutex
	subs    map[string][]*memSub // runID -> subscribers; allRuns for global
	bufSize int
	closed  bool
	dropped atomic.Uint64
}

// NewMemBus creates a new in-memory event bus with the given configuration.
func NewMemBus(config MemBusConfig) *MemBus {
	bufSize := config.SubscriberBufferSize
	if bufSize <= 0 {
		bufSize = 1024
	}
	return &MemBus{
		subs:    make(map[string][]*memSub),
		bufSize: bufSize,
	}
}

// Publish sends an event to the subscribers of its run and to every global
// subscriber. Events published after Close are dropped.
func (b *MemBus) Publish(event runtime.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs[event.RunID] {
		if !sub.send(event) {
			b.dropped.Add(1)
		}
	}
	if event.RunID == allRuns {
		return
	}
	for _, sub := range b.subs[allRuns] {
		if !sub.send(event) {
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber for a specific run.
func (b *MemBus) Subscribe(runID string) Subscription {
	return b.add(runID)
}

// SubscribeAll registers a subscriber that receives events from all runs.
func (b *MemBus) SubscribeAll() Subscription {
	return b.add(allRuns)
}

func (b *MemBus) add(key string) *memSub {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &memSub{bus: b, key: key, ch: make(chan runtime.Event, b.bufSize)}
	if b.closed {
		sub.close()
		return sub
	}
	b.subs[key] = append(b.subs[key], sub)
	return sub
}

func (b *MemBus) remove(sub *memSub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := slices.DeleteFunc(b.subs[sub.key], func(s *memSub) bool { return s == sub })
	if len(subs) == 0 {
		delete(b.subs, sub.key)
		return
	}
	b.subs[sub.key] = subs
}

// Subscribers returns the number of open subscriptions for a run.
func (b *MemBus) Subscribers(runID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[runID])
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *MemBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close shuts down the bus and all active subscriptions.
func (b *MemBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.close()
		}
	}
	b.subs = make(map[string][]*memSub)
	return nil
}

// memSub is an in-memory subscription.
type memSub struct {
	bus *MemBus
	key string

	mu     sync.Mutex
	ch     chan runtime.Event
	closed bool
}

// Events returns a channel of events for this subscription.
func (s *memSub) Events() <-chan runtime.Event {
	return s.ch
}

// Close unsubscribes and releases resources.
func (s *memSub) Close() error {
	s.bus.remove(s)
	s.close()
	return nil
}

// close performs the actual channel close, guarded against double-close.
func (s *memSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// send delivers an event without blocking. It reports false when the event
// was dropped.
func (s *memSub) send(event runtime.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}
	select {
	case s.ch <- event:
		return true
	default:
		return false
	}
}

// Compile-time interface checks.
var _ EventBus = (*MemBus)(nil)
var _ Subscription = (*memSub)(nil)
var _ runtime.EventPublisher = (*MemBus)(nil)
