package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// SessionDuration defines how long a session is valid.
	SessionDuration = 24 * time.Hour

	// AuthCookieName is the name of the session cookie.
	AuthCookieName = "algoviz_session"

	minPasswordLength = 8
	maxUsernameLength = 64
)

// LoginRequest is the JSON body for POST /api/auth/login and
// POST /api/auth/register.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the JSON response for login and registration.
type LoginResponse struct {
	User  *UserResponse `json:"user"`
	Token string        `json:"token"`
}

// UserResponse is the public user data returned in auth responses.
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func userResponse(u UserRecord) *UserResponse {
	return &UserResponse{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt}
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (LoginRequest, bool) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", err.Error())
			return req, false
		}
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return req, false
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "username is required")
		return req, false
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "password is required")
		return req, false
	}
	return req, true
}

// handleLogin authenticates a user and creates a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.authStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "auth store not configured")
		return
	}

	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	user, ok, err := s.authStore.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
		return
	}

	sess, err := s.newSession(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	setSessionCookie(w, sess)

	writeJSON(w, http.StatusOK, LoginResponse{User: userResponse(user), Token: sess.Token})
}

// handleRegister creates a new user account and logs it in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.authStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "auth store not configured")
		return
	}

	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	if len(req.Username) > maxUsernameLength {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "username is too long")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "HASH_ERROR", "failed to hash password")
		return
	}

	now := time.Now().UTC()
	user := UserRecord{
		ID:           uuid.New().String(),
		Username:     req.Username,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.authStore.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, ErrUserExists) {
			writeError(w, http.StatusConflict, "USER_EXISTS", "username already taken")
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	resp := LoginResponse{User: userResponse(user)}
	sess, err := s.newSession(r.Context(), user.ID)
	if err != nil {
		s.logger.Warn("failed to create session after registration", "user_id", user.ID, "error", err)
	} else {
		setSessionCookie(w, sess)
		resp.Token = sess.Token
	}

	writeJSON(w, http.StatusCreated, resp)
}

// handleLogout invalidates the current session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.authStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "auth store not configured")
		return
	}

	if token := extractSessionToken(r); token != "" {
		sess, ok, err := s.authStore.GetSessionByToken(r.Context(), token)
		if err != nil && !errors.Is(err, ErrSessionExpired) {
			s.logger.Warn("logout session lookup failed", "error", err)
		}
		if ok {
			if err := s.authStore.DeleteSession(r.Context(), sess.ID); err != nil {
				s.logger.Warn("logout session delete failed", "error", err)
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the current authenticated user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if s.authStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "auth store not configured")
		return
	}

	user, status, code, msg := s.currentUser(r)
	if status != http.StatusOK {
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, userResponse(user))
}

// currentUser resolves the session of r. On failure it returns the status,
// code and message to answer with.
func (s *Server) currentUser(r *http.Request) (UserRecord, int, string, string) {
	token := extractSessionToken(r)
	if token == "" {
		return UserRecord{}, http.StatusUnauthorized, "UNAUTHORIZED", "no session token provided"
	}

	sess, ok, err := s.authStore.GetSessionByToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return UserRecord{}, http.StatusUnauthorized, "SESSION_EXPIRED", "session has expired"
		}
		return UserRecord{}, http.StatusInternalServerError, "STORE_ERROR", err.Error()
	}
	if !ok {
		return UserRecord{}, http.StatusUnauthorized, "UNAUTHORIZED", "invalid session token"
	}

	user, ok, err := s.authStore.GetUserByID(r.Context(), sess.UserID)
	if err != nil {
		return UserRecord{}, http.StatusInternalServerError, "STORE_ERROR", err.Error()
	}
	if !ok {
		return UserRecord{}, http.StatusUnauthorized, "UNAUTHORIZED", "user not found"
	}
	return user, http.StatusOK, "", ""
}

func (s *Server) newSession(ctx context.Context, userID string) (SessionRecord, error) {
	token, err := generateSessionToken()
	if err != nil {
		return SessionRecord{}, err
	}
	now := time.Now().UTC()
	sess := SessionRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: now.Add(SessionDuration),
		CreatedAt: now,
	}
	if err := s.authStore.CreateSession(ctx, sess); err != nil {
		return SessionRecord{}, err
	}
	return sess, nil
}

func setSessionCookie(w http.ResponseWriter, sess SessionRecord) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// extractSessionToken reads the bearer token, falling back to the cookie.
func extractSessionToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	cookie, err := r.Cookie(AuthCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// generateSessionToken creates a cryptographically secure random token.
func generateSessionToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
