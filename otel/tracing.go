// Package otel provides OpenTelemetry integration for algorithm runs.
package otel

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/algoviz/core"
	"github.com/petal-labs/algoviz/runtime"
)

// TracingHandler translates step notifications into OpenTelemetry spans.
// Every run gets a root span. Pathfinding runs additionally get a child
// "trace" span covering the path reconstruction phase, opened by the first
// step.path event.
type TracingHandler struct {
	tracer trace.Tracer

	mu         sync.RWMutex
	runSpans   map[string]trace.Span
	runCtxs    map[string]context.Context
	traceSpans map[string]trace.Span
}

// NewTracingHandler creates a TracingHandler using tracer.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer:     tracer,
		runSpans:   make(map[string]trace.Span),
		runCtxs:    make(map[string]context.Context),
		traceSpans: make(map[string]trace.Span),
	}
}

// Handle creates or ends spans for the event. It has runtime.EventHandler
// semantics.
func (h *TracingHandler) Handle(e runtime.Event) {
	switch e.Kind {
	case runtime.EventRunStarted:
		h.handleRunStarted(e)
	case runtime.EventPath:
		h.handlePath(e)
	case runtime.EventCue:
		h.handleCue(e)
	case runtime.EventRunFinished:
		h.handleRunFinished(e)
	}
}

func (h *TracingHandler) handleRunStarted(e runtime.Event) {
	attrs := []attribute.KeyValue{
		attribute.String("algoviz.run_id", e.RunID),
		attribute.String("algoviz.algorithm", e.Algorithm.Slug()),
		attribute.String("algoviz.category", e.Algorithm.Category().String()),
	}
	if target, ok := e.Payload["target"].(int); ok {
		attrs = append(attrs, attribute.Int("algoviz.target", target))
	}

	ctx, span := h.tracer.Start(context.Background(), "run:"+e.Algorithm.Slug(),
		trace.WithAttributes(attrs...),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.runSpans[e.RunID] = span
	h.runCtxs[e.RunID] = ctx
	h.mu.Unlock()
}

func (h *TracingHandler) handlePath(e runtime.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.traceSpans[e.RunID]; ok {
		return
	}
	parent, ok := h.runCtxs[e.RunID]
	if !ok {
		parent = context.Background()
	}
	_, span := h.tracer.Start(parent, "trace:"+e.Algorithm.Slug(),
		trace.WithAttributes(attribute.String("algoviz.run_id", e.RunID)),
		trace.WithTimestamp(e.Time),
	)
	h.traceSpans[e.RunID] = span
}

// handleCue records the terminal cues as span events. Per-step cues would
// flood the span.
func (h *TracingHandler) handleCue(e runtime.Event) {
	if e.Step.Cue != core.CueDone && e.Step.Cue != core.CueFail {
		return
	}
	h.mu.RLock()
	span, ok := h.runSpans[e.RunID]
	h.mu.RUnlock()
	if ok {
		span.AddEvent("cue."+e.Step.Cue.String(), trace.WithTimestamp(e.Time))
	}
}

func (h *TracingHandler) handleRunFinished(e runtime.Event) {
	h.mu.Lock()
	span, ok := h.runSpans[e.RunID]
	traceSpan, traced := h.traceSpans[e.RunID]
	delete(h.runSpans, e.RunID)
	delete(h.runCtxs, e.RunID)
	delete(h.traceSpans, e.RunID)
	h.mu.Unlock()

	if traced {
		traceSpan.End(trace.WithTimestamp(e.Time))
	}
	if !ok {
		return
	}

	status := e.Status()
	attrs := []attribute.KeyValue{
		attribute.String("algoviz.duration", e.Elapsed.String()),
		attribute.String("algoviz.status", string(status)),
	}
	if stats, ok := e.Payload["stats"].(runtime.Stats); ok {
		attrs = append(attrs,
			attribute.Int("algoviz.stats.compares", stats.Compares),
			attribute.Int("algoviz.stats.swaps", stats.Swaps),
			attribute.Int("algoviz.stats.visits", stats.Visits),
			attribute.Int("algoviz.stats.ticks", stats.Ticks),
		)
	}
	span.SetAttributes(attrs...)

	if status == runtime.StatusFailed {
		errMsg := "run failed"
		if s, ok := e.Payload["error"].(string); ok {
			errMsg = s
		}
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg), trace.WithTimestamp(e.Time))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(e.Time))
}

// ActiveSpanContext returns the innermost active span of the run: the path
// trace span when open, otherwise the run span. It returns an empty
// SpanContext if the run has no open span.
func (h *TracingHandler) ActiveSpanContext(runID string) trace.SpanContext {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if span, ok := h.traceSpans[runID]; ok {
		return span.SpanContext()
	}
	if span, ok := h.runSpans[runID]; ok {
		return span.SpanContext()
	}
	return trace.SpanContext{}
}
