package server

import (
	"context"
	"errors"
	"time"
)

// UserRecord represents a stored user account.
type UserRecord struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionRecord represents an active user session.
type SessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Sentinel errors for auth store operations.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// AuthStore defines the interface for user and session persistence.
type AuthStore interface {
	// CreateUser adds a new user record. Usernames are unique, ignoring
	// case.
	CreateUser(ctx context.Context, rec UserRecord) error

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (UserRecord, bool, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (UserRecord, bool, error)

	// CreateSession creates a new session for a user.
	CreateSession(ctx context.Context, sess SessionRecord) error

	// GetSessionByToken retrieves a session by token. It returns
	// ErrSessionExpired for a known but expired token.
	GetSessionByToken(ctx context.Context, token string) (SessionRecord, bool, error)

	// DeleteSession removes a session by ID.
	DeleteSession(ctx context.Context, id string) error

	// DeleteUserSessions removes all sessions for a user.
	DeleteUserSessions(ctx context.Context, userID string) error

	// CleanExpiredSessions removes all expired sessions and reports how many
	// were removed.
	CleanExpiredSessions(ctx context.Context) (int64, error)
}
