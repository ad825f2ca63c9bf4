package bus

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/petal-labs/algoviz/core"
	"github.com/petal-labs/algoviz/runtime"

	_ "modernc.org/sqlite"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteStoreConfig configures the SQLite event store.
type SQLiteStoreConfig struct {
	// DSN is the database connection string.
	DSN string

	// RetentionCount keeps at most this many events per run when pruning
	// (0 = no count pruning).
	RetentionCount int
}

// SQLiteEventStore persists events to a SQLite database in WAL mode.
// Pruning is driven from outside through PruneBefore.
type SQLiteEventStore struct {
	db  *sql.DB
	cfg SQLiteStoreConfig
}

// NewSQLiteEventStore opens (or creates) a SQLite event store.
func NewSQLiteEventStore(cfg SQLiteStoreConfig) (*SQLiteEventStore, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: create schema: %w", err)
	}

	return &SQLiteEventStore{db: db, cfg: cfg}, nil
}

// Append stores an event in the database.
func (s *SQLiteEventStore) Append(ctx context.Context, event runtime.Event) error {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal payload: %w", err)
	}
	stepJSON, err := json.Marshal(event.Step)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal step: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (run_id, seq, kind, algorithm, time_ns, elapsed, step, payload, trace_id, span_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.RunID,
		event.Seq,
		string(event.Kind),
		event.Algorithm.Slug(),
		event.Time.UnixNano(),
		int64(event.Elapsed),
		string(stepJSON),
		string(payloadJSON),
		event.TraceID,
		event.SpanID,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: append: %w", err)
	}
	return nil
}

// List returns events for a run, optionally filtered by afterSeq and limit.
func (s *SQLiteEventStore) List(ctx context.Context, runID string, afterSeq uint64, limit int) ([]runtime.Event, error) {
	query := `SELECT run_id, seq, kind, algorithm, time_ns, elapsed, step, payload, trace_id, span_id
	           FROM events WHERE run_id = ? AND seq > ? ORDER BY seq ASC, id ASC`
	args := []any{runID, afterSeq}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// LatestSeq returns the highest Seq for a run (0 if no events).
func (s *SQLiteEventStore) LatestSeq(ctx context.Context, runID string) (uint64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM events WHERE run_id = ?`, runID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: latest seq: %w", err)
	}
	if !seq.Valid || seq.Int64 < 0 {
		return 0, nil
	}
	return uint64(seq.Int64), nil // #nosec G115 -- seq is never negative
}

// RunIDs returns distinct run IDs from the store.
func (s *SQLiteEventStore) RunIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT run_id FROM events ORDER BY run_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: run ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteEventStore) Close() error {
	return s.db.Close()
}

// PruneBefore deletes events older than cutoff, then trims every run to
// RetentionCount events when that is set.
func (s *SQLiteEventStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE time_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: prune by age: %w", err)
	}
	removed, _ := res.RowsAffected()

	if s.cfg.RetentionCount <= 0 {
		return removed, nil
	}

	runIDs, err := s.RunIDs(ctx)
	if err != nil {
		return removed, err
	}
	for _, runID := range runIDs {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM events WHERE run_id = ? AND id NOT IN (
				SELECT id FROM events WHERE run_id = ? ORDER BY seq DESC LIMIT ?
			)`, runID, runID, s.cfg.RetentionCount,
		)
		if err != nil {
			return removed, fmt.Errorf("sqlitestore: prune by count for %s: %w", runID, err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}

func scanEvents(rows *sql.Rows) ([]runtime.Event, error) {
	var events []runtime.Event
	for rows.Next() {
		var (
			e           runtime.Event
			kind        string
			algorithm   string
			timeNano    int64
			elapsedNano int64
			stepJSON    string
			payloadJSON string
		)
		err := rows.Scan(
			&e.RunID,
			&e.Seq,
			&kind,
			&algorithm,
			&timeNano,
			&elapsedNano,
			&stepJSON,
			&payloadJSON,
			&e.TraceID,
			&e.SpanID,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: scan event: %w", err)
		}

		e.Kind = runtime.EventKind(kind)
		e.Time = time.Unix(0, timeNano)
		e.Elapsed = time.Duration(elapsedNano)
		if algorithm != "" {
			alg, err := core.ParseAlgorithm(algorithm)
			if err != nil {
				return nil, fmt.Errorf("sqlitestore: %w", err)
			}
			e.Algorithm = alg
		}

		e.Step = runtime.Step{Pivot: -1, Line: -1}
		if err := json.Unmarshal([]byte(stepJSON), &e.Step); err != nil {
			return nil, fmt.Errorf("sqlitestore: unmarshal step: %w", err)
		}

		e.Payload = map[string]any{}
		if payloadJSON != "" && payloadJSON != "{}" {
			if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
				return nil, fmt.Errorf("sqlitestore: unmarshal payload: %w", err)
			}
		}

		events = append(events, e)
	}
	return events, rows.Err()
}

// Compile-time interface checks.
var _ EventStore = (*SQLiteEventStore)(nil)
var _ Pruner = (*SQLiteEventStore)(nil)
