package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/petal-labs/algoviz/activity"
)

// ActivityStore persists the activity log and answers dashboard queries.
type ActivityStore interface {
	activity.Recorder
	activity.StatsSource
}

// RecordActivity appends one entry to the activity log. The category and
// algorithm are stored by display name.
func (s *SQLiteStore) RecordActivity(ctx context.Context, e activity.Entry) error {
	if e.UserID == "" {
		return activity.ErrUserRequired
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO activity_logs (user_id, category, algorithm, created_at)
VALUES (?, ?, ?, ?)`,
		e.UserID,
		e.Category.Label(),
		e.Algorithm.String(),
		e.Time.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite store record activity: %w", err)
	}
	return nil
}

// Stats returns the total number of runs, the most used algorithm and the
// most recent entries for userID. Ties for favorite go to the algorithm used
// most recently.
func (s *SQLiteStore) Stats(ctx context.Context, userID string) (activity.Stats, error) {
	if userID == "" {
		return activity.Stats{}, activity.ErrUserRequired
	}

	st := activity.Stats{Favorite: activity.NoFavorite, History: []activity.HistoryItem{}}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activity_logs WHERE user_id = ?`, userID,
	).Scan(&st.Total); err != nil {
		return activity.Stats{}, fmt.Errorf("sqlite store count activity: %w", err)
	}
	if st.Total == 0 {
		return st, nil
	}

	var favorite string
	err := s.db.QueryRowContext(ctx, `
SELECT algorithm
FROM activity_logs
WHERE user_id = ?
GROUP BY algorithm
ORDER BY COUNT(*) DESC, MAX(id) DESC
LIMIT 1`, userID).Scan(&favorite)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return activity.Stats{}, fmt.Errorf("sqlite store favorite algorithm: %w", err)
	default:
		st.Favorite = favorite
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT category, algorithm, created_at
FROM activity_logs
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`, userID, activity.HistoryLimit)
	if err != nil {
		return activity.Stats{}, fmt.Errorf("sqlite store activity history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item activity.HistoryItem
			at   int64
		)
		if err := rows.Scan(&item.Category, &item.Algorithm, &at); err != nil {
			return activity.Stats{}, fmt.Errorf("sqlite store scan activity: %w", err)
		}
		item.Time = time.Unix(0, at).UTC()
		st.History = append(st.History, item)
	}
	if err := rows.Err(); err != nil {
		return activity.Stats{}, fmt.Errorf("sqlite store activity rows: %w", err)
	}
	return st, nil
}
