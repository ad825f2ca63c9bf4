package bus

import (
	"sync"
	"time"

	"github.com/petal-labs/algoviz/runtime"
)

// ThrottleConfig controls the behavior of ThrottledEmitter.
type ThrottleConfig struct {
	// CoalesceInterval is how often to flush coalesced render events.
	// Default: 50ms
	CoalesceInterval time.Duration
}

// ThrottledEmitter wraps a runtime.EventEmitter and coalesces step.render
// events, which carry a full copy of the sequence. Within each interval only
// the latest render per run is kept. Every other kind passes through
// immediately, after any pending render of the same run, so a subscriber
// never sees a render out of order with the highlights and cues around it.
type ThrottledEmitter struct {
	emit     runtime.EventEmitter
	interval time.Duration

	// mu also serialises calls into emit.
	mu      sync.Mutex
	pending map[string]runtime.Event // runID -> latest render event
	closed  bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewThrottledEmitter creates a new ThrottledEmitter that wraps the given
// emitter and starts its flush goroutine. Call Close to stop it.
func NewThrottledEmitter(emit runtime.EventEmitter, cfg ThrottleConfig) *ThrottledEmitter {
	interval := cfg.CoalesceInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	te := &ThrottledEmitter{
		emit:     emit,
		interval: interval,
		pending:  make(map[string]runtime.Event),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	go te.run()

	return te
}

// Emit sends an event through the throttled emitter. After Close, every
// event passes straight through.
func (te *ThrottledEmitter) Emit(e runtime.Event) {
	te.mu.Lock()
	defer te.mu.Unlock()

	if te.closed {
		te.emit(e)
		return
	}

	if e.Kind == runtime.EventRender {
		te.pending[e.RunID] = e
		return
	}

	if p, ok := te.pending[e.RunID]; ok {
		delete(te.pending, e.RunID)
		te.emit(p)
	}
	te.emit(e)
}

// Publish implements runtime.EventPublisher so the emitter can stand in for
// a bus.
func (te *ThrottledEmitter) Publish(e runtime.Event) {
	te.Emit(e)
}

// Close flushes any pending render events and stops the background ticker.
// It is safe to call Close multiple times.
func (te *ThrottledEmitter) Close() {
	te.stopOnce.Do(func() { close(te.stopCh) })
	<-te.doneCh
}

// run is the background goroutine that periodically flushes coalesced renders.
func (te *ThrottledEmitter) run() {
	defer close(te.doneCh)

	ticker := time.NewTicker(te.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			te.flush(false)
		case <-te.stopCh:
			te.flush(true)
			return
		}
	}
}

// flush sends all pending render events to the wrapped emitter. With final
// set, the emitter switches to pass-through in the same critical section.
func (te *ThrottledEmitter) flush(final bool) {
	te.mu.Lock()
	defer te.mu.Unlock()

	for runID, e := range te.pending {
		delete(te.pending, runID)
		te.emit(e)
	}
	if final {
		te.closed = true
	}
}

var _ runtime.EventPublisher = (*ThrottledEmitter)(nil)
