package otel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TelemetryConfig configures Setup.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string

	// OTLPEndpoint is the host:port of an OTLP/HTTP trace receiver. Empty
	// keeps spans in process.
	OTLPEndpoint string
	OTLPInsecure bool
}

// Telemetry owns the SDK providers of one process.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider

	reader *sdkmetric.ManualReader
}

// Setup builds the tracer and meter providers and installs them as the
// global providers. Metrics are read on demand through SnapshotHandler.
func Setup(ctx context.Context, cfg TelemetryConfig) (*Telemetry, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "algoviz"
	}
	res := resource.NewWithAttributes("",
		attribute.String("service.name", name),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.OTLPEndpoint != "" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	otelapi.SetTracerProvider(tp)
	otelapi.SetMeterProvider(mp)
	return &Telemetry{TracerProvider: tp, MeterProvider: mp, reader: reader}, nil
}

// Tracer returns the algoviz tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.TracerProvider.Tracer("algoviz/run")
}

// Meter returns the algoviz meter.
func (t *Telemetry) Meter() metric.Meter {
	return t.MeterProvider.Meter("algoviz/run")
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.TracerProvider.Shutdown(ctx),
		t.MeterProvider.Shutdown(ctx),
	)
}

// MetricPoint is one data point of a metric snapshot.
type MetricPoint struct {
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      float64           `json:"value"`
	Count      uint64            `json:"count,omitempty"`
}

// MetricSnapshot is one instrument in a metric snapshot.
type MetricSnapshot struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Points      []MetricPoint `json:"points"`
}

// Collect reads the current value of every instrument.
func (t *Telemetry) Collect(ctx context.Context) ([]MetricSnapshot, error) {
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	var out []MetricSnapshot
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			snap := MetricSnapshot{Name: m.Name, Description: m.Description}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					snap.Points = append(snap.Points, MetricPoint{Attributes: attrMap(dp.Attributes), Value: float64(dp.Value)})
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					snap.Points = append(snap.Points, MetricPoint{Attributes: attrMap(dp.Attributes), Value: dp.Value})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					snap.Points = append(snap.Points, MetricPoint{Attributes: attrMap(dp.Attributes), Value: dp.Sum, Count: dp.Count})
				}
			default:
				continue
			}
			out = append(out, snap)
		}
	}
	return out, nil
}

// SnapshotHandler serves Collect as JSON.
func (t *Telemetry) SnapshotHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snaps, err := t.Collect(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if snaps == nil {
			snaps = []MetricSnapshot{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snaps)
	})
}

func attrMap(set attribute.Set) map[string]string {
	if set.Len() == 0 {
		return nil
	}
	out := make(map[string]string, set.Len())
	iter := set.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}
