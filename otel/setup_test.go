package otel_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/petal-labs/algoviz/core"
	vizotel "github.com/petal-labs/algoviz/otel"
	"github.com/petal-labs/algoviz/runtime"
)

func TestSetup_CollectsRunMetrics(t *testing.T) {
	tel, err := vizotel.Setup(context.Background(), vizotel.TelemetryConfig{ServiceName: "algoviz-test"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})

	h, err := vizotel.NewMetricsHandler(tel.Meter())
	if err != nil {
		t.Fatalf("NewMetricsHandler: %v", err)
	}
	h.Handle(stepEvent(runtime.EventHighlight, core.QuickSort).WithIndices(0, 1))
	h.Handle(stepEvent(runtime.EventCue, core.QuickSort).WithCue(core.CueSwap))

	snaps, err := tel.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var steps *vizotel.MetricSnapshot
	for i := range snaps {
		if snaps[i].Name == "algoviz.steps" {
			steps = &snaps[i]
		}
	}
	if steps == nil {
		t.Fatalf("algoviz.steps missing from %+v", snaps)
	}
	var total float64
	for _, p := range steps.Points {
		total += p.Value
	}
	if total != 2 {
		t.Fatalf("steps total = %v, want 2", total)
	}

	rec := httptest.NewRecorder()
	tel.SnapshotHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var served []vizotel.MetricSnapshot
	if err := json.NewDecoder(rec.Body).Decode(&served); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(served) == 0 {
		t.Fatal("snapshot handler returned no metrics")
	}
}

func TestSetup_TracerRecordsSpans(t *testing.T) {
	tel, err := vizotel.Setup(context.Background(), vizotel.TelemetryConfig{})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	tracing := vizotel.NewTracingHandler(tel.Tracer())
	tracing.Handle(stepEvent(runtime.EventRunStarted, core.BFS))
	if sc := tracing.ActiveSpanContext("run-1"); !sc.IsValid() {
		t.Fatal("run span has no valid context")
	}
}
