package sse

import (
	"time"

	"github.com/petal-labs/algoviz/core"
	"github.com/petal-labs/algoviz/runtime"
)

// Message is the JSON form of a runtime event on the wire. The SSE stream,
// the live websocket and the plain CLI output all use it.
type Message struct {
	Kind      string         `json:"kind"`
	RunID     string         `json:"run_id"`
	Algorithm string         `json:"algorithm,omitempty"`
	Time      time.Time      `json:"time"`
	ElapsedMs int64          `json:"elapsed_ms"`
	Seq       uint64         `json:"seq"`
	Indices   []int          `json:"indices,omitempty"`
	Cells     []core.Pos     `json:"cells,omitempty"`
	Pivot     *int           `json:"pivot,omitempty"`
	Line      *int           `json:"line,omitempty"`
	Cue       string         `json:"cue,omitempty"`
	Values    []int          `json:"values,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	SpanID    string         `json:"span_id,omitempty"`
}

// FromEvent converts a runtime event. Pivot and Line are only set on the
// kinds that carry them, so that -1 ("cleared") is not confused with
// "absent".
func FromEvent(e runtime.Event) Message {
	m := Message{
		Kind:      string(e.Kind),
		RunID:     e.RunID,
		Algorithm: e.Algorithm.Slug(),
		Time:      e.Time,
		ElapsedMs: e.Elapsed.Milliseconds(),
		Seq:       e.Seq,
		Indices:   e.Step.Indices,
		Cells:     e.Step.Cells,
		Cue:       string(e.Step.Cue),
		Values:    e.Step.Values,
		Payload:   e.Payload,
		TraceID:   e.TraceID,
		SpanID:    e.SpanID,
	}
	switch e.Kind {
	case runtime.EventHighlight, runtime.EventPivot:
		pivot := e.Step.Pivot
		m.Pivot = &pivot
	case runtime.EventLine:
		line := e.Step.Line
		m.Line = &line
	}
	return m
}

// Event converts the message back into a runtime event.
func (m Message) Event() runtime.Event {
	e := runtime.Event{
		Kind:    runtime.EventKind(m.Kind),
		RunID:   m.RunID,
		Time:    m.Time,
		Elapsed: time.Duration(m.ElapsedMs) * time.Millisecond,
		Seq:     m.Seq,
		Step: runtime.Step{
			Indices: m.Indices,
			Cells:   m.Cells,
			Pivot:   -1,
			Line:    -1,
			Cue:     core.Cue(m.Cue),
			Values:  m.Values,
		},
		Payload: m.Payload,
		TraceID: m.TraceID,
		SpanID:  m.SpanID,
	}
	if m.Algorithm != "" {
		if alg, err := core.ParseAlgorithm(m.Algorithm); err == nil {
			e.Algorithm = alg
		}
	}
	if m.Pivot != nil {
		e.Step.Pivot = *m.Pivot
	}
	if m.Line != nil {
		e.Step.Line = *m.Line
	}
	return e
}
