package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/algoviz/runtime"
)

// MetricsHandler translates step notifications into OpenTelemetry metrics.
// It counts steps by kind, sound cues by cue, finished runs by status and
// records run durations.
type MetricsHandler struct {
	steps       metric.Int64Counter
	cues        metric.Int64Counter
	runs        metric.Int64Counter
	runDuration metric.Float64Histogram
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to
// create its instruments.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	steps, err := meter.Int64Counter("algoviz.steps",
		metric.WithDescription("Number of step notifications emitted"),
	)
	if err != nil {
		return nil, err
	}

	cues, err := meter.Int64Counter("algoviz.cues",
		metric.WithDescription("Number of sound cues emitted"),
	)
	if err != nil {
		return nil, err
	}

	runs, err := meter.Int64Counter("algoviz.runs",
		metric.WithDescription("Number of finished runs"),
	)
	if err != nil {
		return nil, err
	}

	runDur, err := meter.Float64Histogram("algoviz.run.duration",
		metric.WithDescription("Duration of a run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		steps:       steps,
		cues:        cues,
		runs:        runs,
		runDuration: runDur,
	}, nil
}

// Handle records the metrics for one event. It has runtime.EventHandler
// semantics.
func (h *MetricsHandler) Handle(e runtime.Event) {
	ctx := context.Background()
	switch e.Kind {
	case runtime.EventRunStarted:
	case runtime.EventRunFinished:
		h.handleRunFinished(ctx, e)
	case runtime.EventCue:
		h.cues.Add(ctx, 1, metric.WithAttributes(
			attribute.String("algorithm", e.Algorithm.Slug()),
			attribute.String("cue", e.Step.Cue.String()),
		))
		h.countStep(ctx, e)
	default:
		h.countStep(ctx, e)
	}
}

func (h *MetricsHandler) countStep(ctx context.Context, e runtime.Event) {
	h.steps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("algorithm", e.Algorithm.Slug()),
		attribute.String("kind", e.Kind.String()),
	))
}

func (h *MetricsHandler) handleRunFinished(ctx context.Context, e runtime.Event) {
	attrs := metric.WithAttributes(
		attribute.String("algorithm", e.Algorithm.Slug()),
		attribute.String("category", e.Algorithm.Category().String()),
		attribute.String("status", string(e.Status())),
	)
	h.runs.Add(ctx, 1, attrs)
	h.runDuration.Record(ctx, e.Elapsed.Seconds(), attrs)
}
