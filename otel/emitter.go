package otel

import (
	"github.com/petal-labs/algoviz/runtime"
)

// EnrichEmitter wraps an EventEmitter so that emitted events carry the
// TraceID and SpanID of the run's active span. Events pass through unchanged
// when no span is active.
func EnrichEmitter(emit runtime.EventEmitter, tracing *TracingHandler) runtime.EventEmitter {
	return func(e runtime.Event) {
		if e.RunID != "" {
			sc := tracing.ActiveSpanContext(e.RunID)
			if sc.IsValid() {
				e.TraceID = sc.TraceID().String()
				e.SpanID = sc.SpanID().String()
			}
		}
		emit(e)
	}
}

// Decorator adapts EnrichEmitter to runtime.EventEmitterDecorator.
func Decorator(tracing *TracingHandler) runtime.EventEmitterDecorator {
	return func(next runtime.EventEmitter) runtime.EventEmitter {
		return EnrichEmitter(next, tracing)
	}
}
