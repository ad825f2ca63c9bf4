package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/petal-labs/algoviz/activity"
	"github.com/petal-labs/algoviz/core"
)

// LogActivityRequest is the JSON body for POST /api/activity. The camelCase
// userId/type/name fields are accepted as aliases.
type LogActivityRequest struct {
	UserID    string `json:"user_id"`
	Category  string `json:"category"`
	Algorithm string `json:"algorithm"`

	LegacyUserID    string `json:"userId"`
	LegacyType      string `json:"type"`
	LegacyAlgorithm string `json:"name"`
}

func (req LogActivityRequest) normalize() LogActivityRequest {
	pick := func(a, b string) string {
		if a = strings.TrimSpace(a); a != "" {
			return a
		}
		return strings.TrimSpace(b)
	}
	return LogActivityRequest{
		UserID:    pick(req.UserID, req.LegacyUserID),
		Category:  pick(req.Category, req.LegacyType),
		Algorithm: pick(req.Algorithm, req.LegacyAlgorithm),
	}
}

// entry validates the request. The category, when given, must match the
// algorithm's.
func (req LogActivityRequest) entry() (activity.Entry, error) {
	if req.UserID == "" {
		return activity.Entry{}, activity.ErrUserRequired
	}
	alg, err := core.ParseAlgorithm(req.Algorithm)
	if err != nil {
		return activity.Entry{}, err
	}
	if req.Category != "" {
		cat, ok := core.ParseCategory(req.Category)
		if !ok || cat != alg.Category() {
			return activity.Entry{}, errors.New("category does not match algorithm")
		}
	}
	return activity.NewEntry(req.UserID, alg), nil
}

// handleLogActivity records that a user started an algorithm. When the
// body has no user, the session user is used.
func (s *Server) handleLogActivity(w http.ResponseWriter, r *http.Request) {
	if s.activityStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "activity store not configured")
		return
	}

	var raw LogActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}
	req := raw.normalize()
	if req.UserID == "" && s.authStore != nil && extractSessionToken(r) != "" {
		if user, status, _, _ := s.currentUser(r); status == http.StatusOK {
			req.UserID = user.ID
		}
	}

	e, err := req.entry()
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if err := s.activityStore.RecordActivity(r.Context(), e); err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "logged"})
}

// handleStats returns the dashboard statistics of a user.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.activityStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "activity store not configured")
		return
	}

	userID := strings.TrimSpace(r.PathValue("user_id"))
	st, err := s.activityStore.Stats(r.Context(), userID)
	if err != nil {
		if errors.Is(err, activity.ErrUserRequired) {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}
