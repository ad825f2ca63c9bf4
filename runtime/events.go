// Package runtime provides the step machinery the algorithm functions run on:
// step notifications, the tick scheduler and the Stepper that ties the
// host's sinks together.
package runtime

import (
	"slices"
	"time"

	"github.com/petal-labs/algoviz/core"
)

// EventKind identifies the type of event emitted during a run.
type EventKind string

const (
	// EventRunStarted is emitted when a run begins.
	EventRunStarted EventKind = "run.started"

	// EventRunFinished is emitted when a run ends, whatever the outcome.
	// Payload "status" carries the RunStatus.
	EventRunFinished EventKind = "run.finished"

	// EventHighlight replaces the set of highlighted indices or cells.
	EventHighlight EventKind = "step.highlight"

	// EventPivot sets or clears (-1) the pivot marker.
	EventPivot EventKind = "step.pivot"

	// EventLine marks the pseudocode line being executed.
	EventLine EventKind = "step.line"

	// EventCue reports a sound cue.
	EventCue EventKind = "step.cue"

	// EventRender carries a snapshot of the sequence after a mutation.
	EventRender EventKind = "step.render"

	// EventVisit reports a grid cell becoming visited.
	EventVisit EventKind = "step.visit"

	// EventPath reports a grid cell joining the final path.
	EventPath EventKind = "step.path"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// RunStatus is the terminal state reported with EventRunFinished.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusNotFound  RunStatus = "not_found"
	StatusCanceled  RunStatus = "canceled"
	StatusFailed    RunStatus = "failed"
)

// Step is the observable part of a step notification. Pivot and Line are
// -1 when the event does not carry them.
type Step struct {
	Indices []int      `json:"indices,omitempty"`
	Cells   []core.Pos `json:"cells,omitempty"`
	Pivot   int        `json:"pivot"`
	Line    int        `json:"line"`
	Cue     core.Cue   `json:"cue,omitempty"`
	Values  []int      `json:"values,omitempty"`
}

// Event is a structured, streamable record of one step of a run.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind

	// RunID is the unique identifier for this run.
	RunID string

	// Algorithm is the algorithm being animated.
	Algorithm core.Algorithm

	// Time is when the event occurred.
	Time time.Time

	// Elapsed is the duration since the run started.
	Elapsed time.Duration

	// Step carries the highlight, line, cue or snapshot data.
	Step Step

	// Payload contains run-level data such as status and counters.
	Payload map[string]any

	// Seq is a monotonic sequence number per run (1-indexed).
	Seq uint64

	// TraceID is the OpenTelemetry trace ID (hex-encoded, empty when OTel inactive).
	TraceID string

	// SpanID is the OpenTelemetry span ID (hex-encoded, empty when OTel inactive).
	SpanID string
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(kind EventKind, runID string) Event {
	return Event{
		Kind:  kind,
		RunID: runID,
		Time:  time.Now(),
		Step:  Step{Pivot: -1, Line: -1},
	}
}

// WithAlgorithm sets the algorithm on the event.
func (e Event) WithAlgorithm(a core.Algorithm) Event {
	e.Algorithm = a
	return e
}

// WithElapsed sets the elapsed duration on the event.
func (e Event) WithElapsed(elapsed time.Duration) Event {
	e.Elapsed = elapsed
	return e
}

// WithIndices sets the highlighted indices. The slice is copied.
func (e Event) WithIndices(indices ...int) Event {
	e.Step.Indices = slices.Clone(indices)
	return e
}

// WithCells sets the highlighted or affected cells. The slice is copied.
func (e Event) WithCells(cells ...core.Pos) Event {
	e.Step.Cells = slices.Clone(cells)
	return e
}

// WithPivot sets the pivot index.
func (e Event) WithPivot(pivot int) Event {
	e.Step.Pivot = pivot
	return e
}

// WithLine sets the pseudocode line id.
func (e Event) WithLine(line int) Event {
	e.Step.Line = line
	return e
}

// WithCue sets the sound cue.
func (e Event) WithCue(cue core.Cue) Event {
	e.Step.Cue = cue
	return e
}

// WithValues sets the sequence snapshot. The slice is copied.
func (e Event) WithValues(values []int) Event {
	e.Step.Values = slices.Clone(values)
	return e
}

// WithPayload adds a key-value pair to the event payload.
func (e Event) WithPayload(key string, value any) Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}

// Status returns the run status carried by a run.finished event.
func (e Event) Status() RunStatus {
	switch s := e.Payload["status"].(type) {
	case RunStatus:
		return s
	case string:
		return RunStatus(s)
	}
	return ""
}

// EventEmitter is a function type for emitting events.
// The Stepper emits through one of these for every observable step.
type EventEmitter func(Event)

// EventEmitterDecorator wraps an emitter to add cross-cutting behavior.
// Typical uses include enriching emitted events (for example with trace metadata).
type EventEmitterDecorator func(EventEmitter) EventEmitter

// EventPublisher can publish events to external subscribers.
// This interface is satisfied by bus.EventBus, allowing the controller
// to distribute events without importing the bus package directly.
type EventPublisher interface {
	Publish(event Event)
}

// EventHandler is a function type for handling events.
// Implementations can log, store, or forward events as needed.
type EventHandler func(Event)

// MultiEventHandler combines multiple handlers into one.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}

// ChannelEventHandler returns a handler that sends events to a channel.
// Events are dropped if the channel is full.
func ChannelEventHandler(ch chan<- Event) EventHandler {
	return func(e Event) {
		select {
		case ch <- e:
		default:
		}
	}
}

// BlockingChannelEventHandler returns a handler that waits for room in the
// channel. Hosts that must not miss a frame, such as a terminal renderer,
// use it together with a buffered channel.
func BlockingChannelEventHandler(ch chan<- Event, done <-chan struct{}) EventHandler {
	return func(e Event) {
		select {
		case ch <- e:
		case <-done:
		}
	}
}
