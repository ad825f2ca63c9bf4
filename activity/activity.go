// Package activity records which algorithms a user runs and reads back the
// per-user statistics shown on the dashboard.
//
// Logging is fire-and-forget: a failed write is logged and dropped and never
// reaches the run that triggered it.
package activity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/petal-labs/algoviz/core"
	"github.com/petal-labs/algoviz/runtime"
)

// NoFavorite is reported when a user has no history.
const NoFavorite = "None"

// HistoryLimit is the number of entries returned with Stats.
const HistoryLimit = 20

// ErrUserRequired is returned when an entry or query has no user id.
var ErrUserRequired = errors.New("user id is required")

// Entry is one started run.
type Entry struct {
	UserID    string         `json:"user_id"`
	Category  core.Category  `json:"category"`
	Algorithm core.Algorithm `json:"algorithm"`
	Time      time.Time      `json:"time"`
}

// NewEntry builds an entry for alg stamped with the current time.
func NewEntry(userID string, alg core.Algorithm) Entry {
	return Entry{
		UserID:    userID,
		Category:  alg.Category(),
		Algorithm: alg,
		Time:      time.Now().UTC(),
	}
}

// HistoryItem is one row of a user's history.
type HistoryItem struct {
	Category  string    `json:"category"`
	Algorithm string    `json:"algorithm"`
	Time      time.Time `json:"time"`
}

// Stats summarises a user's activity.
type Stats struct {
	Total    int           `json:"total"`
	Favorite string        `json:"favorite"`
	History  []HistoryItem `json:"history"`
}

// Logger accepts activity entries. It never reports failure to the caller.
type Logger interface {
	Log(ctx context.Context, e Entry)
}

// LoggerFunc adapts a function to the Logger interface.
type LoggerFunc func(ctx context.Context, e Entry)

// Log implements Logger.
func (f LoggerFunc) Log(ctx context.Context, e Entry) { f(ctx, e) }

// StatsSource reads a user's statistics.
type StatsSource interface {
	Stats(ctx context.Context, userID string) (Stats, error)
}

// Recorder is the write side of an activity store.
type Recorder interface {
	RecordActivity(ctx context.Context, e Entry) error
}

// StoreLogger writes entries straight into an in-process Recorder on a
// background goroutine.
type StoreLogger struct {
	rec     Recorder
	logger  *slog.Logger
	timeout time.Duration
}

// NewStoreLogger creates a logger backed by rec.
func NewStoreLogger(rec Recorder, logger *slog.Logger) *StoreLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreLogger{rec: rec, logger: logger, timeout: 5 * time.Second}
}

// Log implements Logger.
func (l *StoreLogger) Log(ctx context.Context, e Entry) {
	if e.UserID == "" {
		return
	}
	go func() {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		if err := l.rec.RecordActivity(wctx, e); err != nil {
			l.logger.Warn("activity log failed",
				"run_id", runtime.RunIDFromContext(ctx),
				"user_id", e.UserID,
				"algorithm", e.Algorithm.String(),
				"error", err,
			)
		}
	}()
}

// Discard drops every entry.
var Discard Logger = LoggerFunc(func(context.Context, Entry) {})
