package server

import (
	"strings"
	"time"

	"github.com/google/uuid"

	algoviz "github.com/petal-labs/algoviz"
	"github.com/petal-labs/algoviz/runtime"
)

func newRunID() string {
	return uuid.NewString()
}

func (s *Server) markRunActive(runID string, ctrl *algoviz.Controller) {
	id := strings.TrimSpace(runID)
	if id == "" {
		return
	}
	s.activeRunsMu.Lock()
	s.activeRuns[id] = ctrl
	s.activeRunsMu.Unlock()
}

func (s *Server) markRunInactive(runID string) {
	id := strings.TrimSpace(runID)
	if id == "" {
		return
	}
	s.activeRunsMu.Lock()
	delete(s.activeRuns, id)
	s.activeRunsMu.Unlock()
}

func (s *Server) activeRun(runID string) (*algoviz.Controller, bool) {
	id := strings.TrimSpace(runID)
	if id == "" {
		return nil, false
	}
	s.activeRunsMu.RLock()
	ctrl, ok := s.activeRuns[id]
	s.activeRunsMu.RUnlock()
	return ctrl, ok
}

func (s *Server) isRunActive(runID string) bool {
	_, ok := s.activeRun(runID)
	return ok
}

// reconcileRunSummary marks runs that never finished and are no longer
// owned by this process (for example after a restart) as failed.
func (s *Server) reconcileRunSummary(summary RunSummary, events []runtime.Event) RunSummary {
	if !strings.EqualFold(strings.TrimSpace(summary.Status), statusRunning) {
		return summary
	}
	if s.isRunActive(summary.RunID) {
		return summary
	}

	summary.Status = string(runtime.StatusFailed)
	if summary.CompletedAt == nil {
		last := latestEventTime(events)
		if last.IsZero() {
			last = summary.StartedAt
		}
		completedAt := last.UTC()
		summary.CompletedAt = &completedAt
	}
	if summary.DurationMs == 0 && summary.CompletedAt != nil {
		if delta := summary.CompletedAt.Sub(summary.StartedAt); delta > 0 {
			summary.DurationMs = delta.Milliseconds()
		}
	}
	return summary
}

func latestEventTime(events []runtime.Event) time.Time {
	var latest time.Time
	for _, event := range events {
		if event.Time.After(latest) {
			latest = event.Time
		}
	}
	return latest
}
