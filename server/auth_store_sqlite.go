package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateUser adds a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, rec UserRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, username, password_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`,
		rec.ID,
		strings.TrimSpace(rec.Username),
		rec.PasswordHash,
		rec.CreatedAt.UnixNano(),
		rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("sqlite store create user: %w", err)
	}
	return nil
}

// GetUserByUsername retrieves a user by username, ignoring case.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (UserRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, username, password_hash, created_at, updated_at
FROM users
WHERE username = ?`, strings.TrimSpace(username))
	return userOrMissing(scanUserRecord(row))
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (UserRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, username, password_hash, created_at, updated_at
FROM users
WHERE id = ?`, id)
	return userOrMissing(scanUserRecord(row))
}

func userOrMissing(rec UserRecord, err error) (UserRecord, bool, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserRecord{}, false, nil
		}
		return UserRecord{}, false, err
	}
	return rec, true, nil
}

// CreateSession creates a new session for a user.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess SessionRecord) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (id, user_id, token, expires_at, created_at)
VALUES (?, ?, ?, ?, ?)`,
		sess.ID,
		sess.UserID,
		sess.Token,
		sess.ExpiresAt.UnixNano(),
		sess.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite store create session: %w", err)
	}
	return nil
}

// GetSessionByToken retrieves a session by token.
func (s *SQLiteStore) GetSessionByToken(ctx context.Context, token string) (SessionRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, token, expires_at, created_at
FROM sessions
WHERE token = ?`, token)

	var (
		sess               SessionRecord
		expires, createdAt int64
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.Token, &expires, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionRecord{}, false, nil
		}
		return SessionRecord{}, false, fmt.Errorf("sqlite store get session: %w", err)
	}
	sess.ExpiresAt = time.Unix(0, expires).UTC()
	sess.CreatedAt = time.Unix(0, createdAt).UTC()

	if sess.ExpiresAt.Before(time.Now()) {
		return SessionRecord{}, false, ErrSessionExpired
	}
	return sess, true, nil
}

// DeleteSession removes a session by ID.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite store delete session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store delete session affected rows: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteUserSessions removes all sessions for a user.
func (s *SQLiteStore) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite store delete user sessions: %w", err)
	}
	return nil
}

// CleanExpiredSessions removes all expired sessions.
func (s *SQLiteStore) CleanExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite store clean expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite store clean expired sessions affected rows: %w", err)
	}
	return n, nil
}

func scanUserRecord(row *sql.Row) (UserRecord, error) {
	var (
		rec                UserRecord
		created, updatedAt int64
	)
	if err := row.Scan(&rec.ID, &rec.Username, &rec.PasswordHash, &created, &updatedAt); err != nil {
		return UserRecord{}, err
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return rec, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
