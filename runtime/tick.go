package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRunCanceled is returned by a Ticker whose context was canceled while it
// waited. Step functions return it unchanged so the controller can tell a
// canceled run from a failed one.
var ErrRunCanceled = errors.New("run canceled")

// MinDelay is the floor applied to every live tick, so a speed of zero or
// less still yields to the host between steps.
const MinDelay = time.Millisecond

// Ticker suspends a step function between observable steps.
type Ticker interface {
	Tick(ctx context.Context) error
}

// TickerFunc adapts a function to the Ticker interface.
type TickerFunc func(ctx context.Context) error

// Tick implements Ticker.
func (f TickerFunc) Tick(ctx context.Context) error { return f(ctx) }

func canceled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrRunCanceled, context.Cause(ctx))
}

// Speed is a live delay setting. The host may change it at any time,
// including while a run is suspended; the next tick picks up the new value.
type Speed struct {
	nanos atomic.Int64
}

// NewSpeed returns a Speed initialised to d.
func NewSpeed(d time.Duration) *Speed {
	s := &Speed{}
	s.Set(d)
	return s
}

// Set changes the delay.
func (s *Speed) Set(d time.Duration) {
	s.nanos.Store(int64(d))
}

// Delay returns the current delay.
func (s *Speed) Delay() time.Duration {
	return time.Duration(s.nanos.Load())
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return canceled(ctx)
	}
}

// DelayTicker waits max(MinDelay, speed) on every tick, reading the speed at
// the moment Tick is called. It can be paused between steps.
type DelayTicker struct {
	speed *Speed
	sleep SleepFunc

	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
}

// NewDelayTicker creates a ticker driven by a live speed setting.
func NewDelayTicker(speed *Speed) *DelayTicker {
	if speed == nil {
		speed = NewSpeed(0)
	}
	return &DelayTicker{
		speed: speed,
		sleep: sleepContext,
	}
}

// NewFixedTicker creates a ticker with a constant delay. The path trace
// uses one so that tracing speed does not follow the exploration speed.
func NewFixedTicker(d time.Duration) *DelayTicker {
	return NewDelayTicker(NewSpeed(d))
}

// WithSleep replaces the wait primitive.
func (t *DelayTicker) WithSleep(fn SleepFunc) *DelayTicker {
	if fn != nil {
		t.sleep = fn
	}
	return t
}

// Speed returns the live setting the ticker reads.
func (t *DelayTicker) Speed() *Speed {
	return t.speed
}

// Tick implements Ticker.
func (t *DelayTicker) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return canceled(ctx)
	}

	t.mu.Lock()
	wait := t.resumeCh
	isPaused := t.paused
	t.mu.Unlock()

	if isPaused {
		select {
		case <-wait:
		case <-ctx.Done():
			return canceled(ctx)
		}
	}

	return t.sleep(ctx, max(MinDelay, t.speed.Delay()))
}

// Pause blocks subsequent ticks until Resume is called.
func (t *DelayTicker) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		return
	}
	t.paused = true
	t.resumeCh = make(chan struct{})
}

// Resume releases a paused ticker.
func (t *DelayTicker) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.paused {
		return
	}
	t.paused = false
	close(t.resumeCh)
}

// IsPaused reports whether the ticker is paused.
func (t *DelayTicker) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// ManualTicker hands control of every step to the host: Tick blocks until
// Advance grants one step, or until Release lets the run finish freely.
type ManualTicker struct {
	permits  chan struct{}
	waiting  chan struct{}
	released chan struct{}
	once     sync.Once
}

// NewManualTicker creates a ticker that buffers up to capacity unconsumed
// advances.
func NewManualTicker(capacity int) *ManualTicker {
	if capacity < 1 {
		capacity = 1
	}
	return &ManualTicker{
		permits:  make(chan struct{}, capacity),
		waiting:  make(chan struct{}, 1),
		released: make(chan struct{}),
	}
}

// Tick implements Ticker.
func (t *ManualTicker) Tick(ctx context.Context) error {
	select {
	case t.waiting <- struct{}{}:
	default:
	}
	select {
	case <-t.permits:
		return nil
	case <-t.released:
		return nil
	case <-ctx.Done():
		return canceled(ctx)
	}
}

// Advance grants one step. It returns false when the permit buffer is full.
func (t *ManualTicker) Advance() bool {
	select {
	case t.permits <- struct{}{}:
		return true
	default:
		return false
	}
}

// Waiting signals when a step function is blocked in Tick.
func (t *ManualTicker) Waiting() <-chan struct{} {
	return t.waiting
}

// Release makes every current and future Tick return immediately.
func (t *ManualTicker) Release() {
	t.once.Do(func() { close(t.released) })
}

// CountingTicker never waits. It counts ticks and still honours
// cancellation, which makes it suitable for tests and headless runs.
type CountingTicker struct {
	n atomic.Int64
}

// Tick implements Ticker.
func (t *CountingTicker) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return canceled(ctx)
	}
	t.n.Add(1)
	return nil
}

// Count returns the number of successful ticks.
func (t *CountingTicker) Count() int64 {
	return t.n.Load()
}
