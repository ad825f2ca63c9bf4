// Package sse streams the step notifications of a run to HTTP clients as
// Server-Sent Events. Stored events are replayed first, then live events are
// forwarded from the bus until the run finishes.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/petal-labs/algoviz/bus"
	"github.com/petal-labs/algoviz/runtime"
)

// HeartbeatInterval is the default interval between SSE heartbeat comments.
const HeartbeatInterval = 15 * time.Second

// Handler serves an SSE stream of step notifications for a given run.
// It first replays stored events from the EventStore, then subscribes to live
// events via the EventBus. Duplicate events (by sequence number) are skipped.
//
// The handler expects a "run_id" path value and an optional "after" query
// parameter holding the last-seen sequence number.
//
// SSE format:
//
//	id: {seq}
//	event: {kind}
//	data: {json}
//
// A heartbeat comment ": ping\n\n" is sent every heartbeat interval.
// The stream closes when a "run.finished" event is sent or the client disconnects.
type Handler struct {
	store     bus.EventStore
	bus       bus.EventBus
	heartbeat time.Duration
}

// NewHandler creates a Handler with the given EventStore and EventBus.
func NewHandler(store bus.EventStore, eb bus.EventBus) *Handler {
	return &Handler{
		store:     store,
		bus:       eb,
		heartbeat: HeartbeatInterval,
	}
}

// WithHeartbeat overrides the heartbeat interval.
func (h *Handler) WithHeartbeat(d time.Duration) *Handler {
	if d > 0 {
		h.heartbeat = d
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if runID == "" {
		http.Error(w, "missing run_id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var afterSeq uint64
	if afterStr := r.URL.Query().Get("after"); afterStr != "" {
		parsed, err := strconv.ParseUint(afterStr, 10, 64)
		if err != nil {
			http.Error(w, "invalid after parameter", http.StatusBadRequest)
			return
		}
		afterSeq = parsed
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()

	// Subscribe before replaying so nothing published in between is lost.
	sub := h.bus.Subscribe(runID)
	defer sub.Close()

	lastSeq := afterSeq
	finished, err := h.replayStored(ctx, w, flusher, runID, &lastSeq)
	if err != nil || finished {
		return
	}

	h.streamLive(ctx, w, flusher, sub, &lastSeq)
}

// replayStored writes stored events after *lastSeq. It reports true when
// run.finished was among them.
func (h *Handler) replayStored(
	ctx context.Context,
	w http.ResponseWriter,
	flusher http.Flusher,
	runID string,
	lastSeq *uint64,
) (finished bool, err error) {
	events, err := h.store.List(ctx, runID, *lastSeq, 0)
	if err != nil {
		return false, err
	}

	for _, evt := range events {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err := writeEvent(w, evt); err != nil {
			return false, err
		}
		flusher.Flush()

		if evt.Seq > *lastSeq {
			*lastSeq = evt.Seq
		}
		if evt.Kind == runtime.EventRunFinished {
			return true, nil
		}
	}
	return false, nil
}

// streamLive forwards live events, skipping sequence numbers already sent.
func (h *Handler) streamLive(
	ctx context.Context,
	w http.ResponseWriter,
	flusher http.Flusher,
	sub bus.Subscription,
	lastSeq *uint64,
) {
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			if evt.Seq <= *lastSeq {
				continue
			}
			if err := writeEvent(w, evt); err != nil {
				return
			}
			flusher.Flush()
			*lastSeq = evt.Seq

			if evt.Kind == runtime.EventRunFinished {
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes a single event in SSE format.
func writeEvent(w http.ResponseWriter, evt runtime.Event) error {
	data, err := json.Marshal(FromEvent(evt))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.Seq, evt.Kind, data)
	return err
}
