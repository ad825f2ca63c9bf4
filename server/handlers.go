package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/petal-labs/algoviz/core"
	"github.com/petal-labs/algoviz/runtime"
)

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AlgorithmInfo describes one entry of the algorithm catalog.
type AlgorithmInfo struct {
	Slug       string   `json:"slug"`
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	Pseudocode []string `json:"pseudocode"`
}

// handleAlgorithms returns the catalog, optionally filtered by ?category.
func (s *Server) handleAlgorithms(w http.ResponseWriter, r *http.Request) {
	algs := core.Algorithms()
	if raw := strings.TrimSpace(r.URL.Query().Get("category")); raw != "" {
		cat, ok := core.ParseCategory(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "INVALID_CATEGORY", fmt.Sprintf("unknown category %q", raw))
			return
		}
		algs = core.ByCategory(cat)
	}

	out := make([]AlgorithmInfo, 0, len(algs))
	for _, a := range algs {
		out = append(out, AlgorithmInfo{
			Slug:       a.Slug(),
			Name:       a.String(),
			Category:   a.Category().String(),
			Pseudocode: a.Pseudocode(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// StartRunRequest is the JSON body for POST /api/runs.
type StartRunRequest struct {
	Algorithm string `json:"algorithm"`
	UserID    string `json:"user_id,omitempty"`

	// Values is the sequence to sort or search. When empty, Size values are
	// generated (sorted for binary search).
	Values []int `json:"values,omitempty"`
	Size   int   `json:"size,omitempty"`

	// Target defaults to a random value of the sequence.
	Target *int `json:"target,omitempty"`

	// SpeedMs is the step delay. Nil means the configured default for the
	// algorithm's category.
	SpeedMs *int `json:"speed_ms,omitempty"`

	Grid *GridRequest `json:"grid,omitempty"`
}

// GridRequest describes a pathfinding board.
type GridRequest struct {
	Rows  int        `json:"rows"`
	Cols  int        `json:"cols"`
	Start *core.Pos  `json:"start,omitempty"`
	End   *core.Pos  `json:"end,omitempty"`
	Walls []core.Pos `json:"walls,omitempty"`
}

// StartRunResponse is returned by POST /api/runs.
type StartRunResponse struct {
	RunID     string `json:"run_id"`
	Algorithm string `json:"algorithm"`
	Status    string `json:"status"`
	EventsURL string `json:"events_url"`
}

// RunSummary is the history view of a run, rebuilt from its events.
type RunSummary struct {
	RunID       string         `json:"run_id"`
	Algorithm   string         `json:"algorithm,omitempty"`
	Category    string         `json:"category,omitempty"`
	Origin      string         `json:"origin,omitempty"`
	Status      string         `json:"status"`
	Found       bool           `json:"found"`
	Stats       *runtime.Stats `json:"stats,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationMs  int64          `json:"duration_ms,omitempty"`
}

type runIDLister interface {
	RunIDs(ctx context.Context) ([]string, error)
}

// handleStartRun launches a server-side run and answers immediately.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}

	plan, err := s.planRun(req)
	if err != nil {
		writeRunAPIError(w, err)
		return
	}
	if err := s.launchRun(plan, originAPI); err != nil {
		writeRunAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, StartRunResponse{
		RunID:     plan.runID,
		Algorithm: plan.alg.Slug(),
		Status:    statusRunning,
		EventsURL: "/api/runs/" + plan.runID + "/events",
	})
}

// handleListRuns returns run summaries, newest first. Filters: ?status,
// ?algorithm.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.eventStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "event store not configured")
		return
	}

	runIDStore, ok := s.eventStore.(runIDLister)
	if !ok {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "event store does not support run listing")
		return
	}

	runIDs, err := runIDStore.RunIDs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	statusFilter := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	algorithmFilter := ""
	if raw := strings.TrimSpace(r.URL.Query().Get("algorithm")); raw != "" {
		alg, err := core.ParseAlgorithm(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ALGORITHM", err.Error())
			return
		}
		algorithmFilter = alg.Slug()
	}

	runs := make([]RunSummary, 0, len(runIDs))
	for _, runID := range runIDs {
		events, err := s.eventStore.List(r.Context(), runID, 0, 0)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
			return
		}
		summary, ok := summarizeRunEvents(runID, events)
		if !ok {
			continue
		}
		summary = s.reconcileRunSummary(summary, events)

		if statusFilter != "" && strings.ToLower(summary.Status) != statusFilter {
			continue
		}
		if algorithmFilter != "" && summary.Algorithm != algorithmFilter {
			continue
		}

		runs = append(runs, summary)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].RunID > runs[j].RunID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	writeJSON(w, http.StatusOK, runs)
}

// handleGetRun returns a run summary by run ID.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.eventStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "event store not configured")
		return
	}

	runID := strings.TrimSpace(r.PathValue("run_id"))
	events, err := s.eventStore.List(r.Context(), runID, 0, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	summary, ok := summarizeRunEvents(runID, events)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("run %q not found", runID))
		return
	}

	writeJSON(w, http.StatusOK, s.reconcileRunSummary(summary, events))
}

// handleCancelRun stops an active server-side run.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("run_id"))
	if ctrl, ok := s.activeRun(runID); ok && ctrl != nil && ctrl.Cancel() {
		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "canceling"})
		return
	}

	if s.eventStore != nil {
		seq, err := s.eventStore.LatestSeq(r.Context(), runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
			return
		}
		if seq > 0 {
			writeError(w, http.StatusConflict, "RUN_NOT_ACTIVE", fmt.Sprintf("run %q is not active", runID))
			return
		}
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("run %q not found", runID))
}

// handleRunEvents streams the events of a run as Server-Sent Events.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "event store not configured")
		return
	}
	s.events.ServeHTTP(w, r)
}

func summarizeRunEvents(runID string, events []runtime.Event) (RunSummary, bool) {
	if len(events) == 0 {
		return RunSummary{}, false
	}

	summary := RunSummary{
		RunID:     runID,
		Status:    statusRunning,
		StartedAt: events[0].Time.UTC(),
	}

	for _, event := range events {
		if summary.Algorithm == "" && event.Algorithm.Valid() {
			summary.Algorithm = event.Algorithm.Slug()
			summary.Category = event.Algorithm.Category().String()
		}

		switch event.Kind {
		case runtime.EventRunStarted:
			if event.Time.Before(summary.StartedAt) {
				summary.StartedAt = event.Time.UTC()
			}
			if summary.Origin == "" {
				summary.Origin = stringFromPayload(event.Payload, "origin")
			}

		case runtime.EventRunFinished:
			completedAt := event.Time.UTC()
			summary.CompletedAt = &completedAt
			summary.Status = string(runtime.StatusCompleted)
			if st := event.Status(); st != "" {
				summary.Status = string(st)
			}
			if found, ok := event.Payload["found"].(bool); ok {
				summary.Found = found
			}
			if st, ok := statsFromPayload(event.Payload["stats"]); ok {
				summary.Stats = &st
			}
			if event.Elapsed > 0 {
				summary.DurationMs = event.Elapsed.Milliseconds()
			}
		}
	}

	if summary.CompletedAt != nil && summary.DurationMs == 0 {
		if delta := summary.CompletedAt.Sub(summary.StartedAt); delta > 0 {
			summary.DurationMs = delta.Milliseconds()
		}
	}
	return summary, true
}

func stringFromPayload(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return strings.TrimSpace(v)
}

// statsFromPayload accepts the in-process struct and its decoded JSON form.
func statsFromPayload(v any) (runtime.Stats, bool) {
	switch st := v.(type) {
	case runtime.Stats:
		return st, true
	case map[string]any:
		data, err := json.Marshal(st)
		if err != nil {
			return runtime.Stats{}, false
		}
		var out runtime.Stats
		if err := json.Unmarshal(data, &out); err != nil {
			return runtime.Stats{}, false
		}
		return out, true
	}
	return runtime.Stats{}, false
}

// --- helpers ---

// isMaxBytesError checks if the error is from http.MaxBytesReader.
func isMaxBytesError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

func writeRunAPIError(w http.ResponseWriter, err error) {
	var runErr *runAPIError
	if errors.As(err, &runErr) {
		writeError(w, runErr.Status, runErr.Code, runErr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "RUNTIME_ERROR", err.Error())
}
