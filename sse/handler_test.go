package sse_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/petal-labs/algoviz/bus"
	"github.com/petal-labs/algoviz/core"
	"github.com/petal-labs/algoviz/runtime"
	"github.com/petal-labs/algoviz/sse"
)

func testEvent(runID string, seq uint64, kind runtime.EventKind) runtime.Event {
	e := runtime.NewEvent(kind, runID).
		WithAlgorithm(core.QuickSort).
		WithElapsed(time.Duration(seq) * time.Millisecond)
	e.Time = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e.Seq = seq
	switch kind {
	case runtime.EventHighlight:
		e = e.WithIndices(int(seq), int(seq)+1)
	case runtime.EventCue:
		e = e.WithCue(core.CueCompare)
	case runtime.EventRunFinished:
		e = e.WithPayload("status", string(runtime.StatusCompleted))
	}
	return e
}

type sseMessage struct {
	ID    string
	Event string
	Data  string
}

func parseSSEMessages(body string) []sseMessage {
	var msgs []sseMessage
	scanner := bufio.NewScanner(strings.NewReader(body))

	var current sseMessage
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if current.ID != "" || current.Event != "" || current.Data != "" {
				msgs = append(msgs, current)
				current = sseMessage{}
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			current.ID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			current.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.Data = strings.TrimPrefix(line, "data: ")
		}
	}
	return msgs
}

func setupTestServer(store bus.EventStore, eb bus.EventBus, heartbeat time.Duration) *httptest.Server {
	handler := sse.NewHandler(store, eb).WithHeartbeat(heartbeat)
	mux := http.NewServeMux()
	mux.Handle("GET /api/runs/{run_id}/events", handler)
	return httptest.NewServer(mux)
}

// openStream starts a request and returns a channel that yields the whole
// body once the server closes the stream.
func openStream(t *testing.T, ctx context.Context, url string) <-chan string {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	out := make(chan string, 1)
	go func() {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		out <- string(data)
	}()
	return out
}

func waitBody(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case body := <-ch:
		return body
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close")
		return ""
	}
}

func waitSubscribed(t *testing.T, eb *bus.MemBus, runID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for eb.Subscribers(runID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandler_ReplayFromStore(t *testing.T) {
	store := bus.NewMemEventStore()
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()

	runID := "run-replay"
	kinds := []runtime.EventKind{
		runtime.EventRunStarted,
		runtime.EventHighlight,
		runtime.EventCue,
		runtime.EventRunFinished,
	}
	for i, k := range kinds {
		if err := store.Append(context.Background(), testEvent(runID, uint64(i+1), k)); err != nil {
			t.Fatal(err)
		}
	}

	ts := setupTestServer(store, eb, time.Minute)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msgs := parseSSEMessages(waitBody(t, openStream(t, ctx, ts.URL+"/api/runs/"+runID+"/events")))

	var got []string
	for _, m := range msgs {
		got = append(got, m.ID+" "+m.Event)
	}
	want := []string{"1 run.started", "2 step.highlight", "3 step.cue", "4 run.finished"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}

	var hl sse.Message
	if err := json.Unmarshal([]byte(msgs[1].Data), &hl); err != nil {
		t.Fatal(err)
	}
	if hl.Algorithm != "quick" || hl.Pivot == nil || *hl.Pivot != -1 || hl.Line != nil {
		t.Fatalf("highlight message = %+v", hl)
	}
	if diff := cmp.Diff([]int{2, 3}, hl.Indices); diff != "" {
		t.Fatalf("indices mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler_LiveSubscription(t *testing.T) {
	store := bus.NewMemEventStore()
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()

	runID := "run-live"
	ts := setupTestServer(store, eb, time.Minute)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	body := openStream(t, ctx, ts.URL+"/api/runs/"+runID+"/events")
	waitSubscribed(t, eb, runID)

	eb.Publish(testEvent(runID, 1, runtime.EventRunStarted))
	eb.Publish(testEvent(runID, 2, runtime.EventCue))
	eb.Publish(testEvent(runID, 3, runtime.EventRunFinished))
	// Not delivered: the stream is closed by run.finished.
	eb.Publish(testEvent(runID, 4, runtime.EventCue))

	msgs := parseSSEMessages(waitBody(t, body))
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3: %+v", len(msgs), msgs)
	}
	var fin sse.Message
	if err := json.Unmarshal([]byte(msgs[2].Data), &fin); err != nil {
		t.Fatal(err)
	}
	if fin.Payload["status"] != "completed" {
		t.Fatalf("status = %v", fin.Payload["status"])
	}
}

func TestHandler_AfterCursor(t *testing.T) {
	store := bus.NewMemEventStore()
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()

	runID := "run-after"
	for i := uint64(1); i <= 4; i++ {
		kind := runtime.EventHighlight
		if i == 4 {
			kind = runtime.EventRunFinished
		}
		if err := store.Append(context.Background(), testEvent(runID, i, kind)); err != nil {
			t.Fatal(err)
		}
	}

	ts := setupTestServer(store, eb, time.Minute)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msgs := parseSSEMessages(waitBody(t, openStream(t, ctx, ts.URL+"/api/runs/"+runID+"/events?after=2")))
	if len(msgs) != 2 || msgs[0].ID != "3" || msgs[1].ID != "4" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestHandler_SequenceDedup(t *testing.T) {
	store := bus.NewMemEventStore()
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()

	runID := "run-dedup"
	for i := uint64(1); i <= 2; i++ {
		if err := store.Append(context.Background(), testEvent(runID, i, runtime.EventHighlight)); err != nil {
			t.Fatal(err)
		}
	}

	ts := setupTestServer(store, eb, time.Minute)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	body := openStream(t, ctx, ts.URL+"/api/runs/"+runID+"/events")
	waitSubscribed(t, eb, runID)

	// Already replayed from the store.
	eb.Publish(testEvent(runID, 2, runtime.EventHighlight))
	eb.Publish(testEvent(runID, 3, runtime.EventRunFinished))

	msgs := parseSSEMessages(waitBody(t, body))
	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	if diff := cmp.Diff([]string{"1", "2", "3"}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler_Heartbeat(t *testing.T) {
	store := bus.NewMemEventStore()
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()

	runID := "run-heartbeat"
	ts := setupTestServer(store, eb, 20*time.Millisecond)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	body := openStream(t, ctx, ts.URL+"/api/runs/"+runID+"/events")
	waitSubscribed(t, eb, runID)

	time.Sleep(80 * time.Millisecond)
	eb.Publish(testEvent(runID, 1, runtime.EventRunFinished))

	raw := waitBody(t, body)
	if !strings.Contains(raw, ": ping") {
		t.Fatalf("expected heartbeat in body, got %q", raw)
	}
	if msgs := parseSSEMessages(raw); len(msgs) != 1 || msgs[0].Event != "run.finished" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestHandler_ClientDisconnect(t *testing.T) {
	store := bus.NewMemEventStore()
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()

	runID := "run-disconnect"
	ts := setupTestServer(store, eb, time.Minute)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	body := openStream(t, ctx, ts.URL+"/api/runs/"+runID+"/events")
	waitSubscribed(t, eb, runID)

	cancel()
	waitBody(t, body)

	deadline := time.Now().Add(2 * time.Second)
	for eb.Subscribers(runID) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not released after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandler_BadRequests(t *testing.T) {
	store := bus.NewMemEventStore()
	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer eb.Close()

	ts := setupTestServer(store, eb, time.Minute)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/runs/r1/events?after=abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestMessage_RoundTripsEvent(t *testing.T) {
	e := testEvent("r1", 7, runtime.EventLine).WithLine(4)
	got := sse.FromEvent(e).Event()
	if diff := cmp.Diff(e, got); diff != "" {
		t.Fatalf("event mismatch (-want +got):\n%s", diff)
	}

	v := testEvent("r1", 8, runtime.EventVisit).WithCells(core.Pos{Row: 1, Col: 2})
	if diff := cmp.Diff(v, sse.FromEvent(v).Event()); diff != "" {
		t.Fatalf("visit mismatch (-want +got):\n%s", diff)
	}
}
