package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arisumika/dormlock-core/internal/entity"
	"github.com/arisumika/dormlock-core/internal/infrastructure/mqtt"
	"github.com/arisumika/dormlock-core/internal/store"
)

// loginRequest is the body for POST /session/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin authenticates against the vendor API and persists the
// resulting user session.
//
// The login username is also remembered in memory for the lifetime of
// the session: lock discovery derives per-lock credentials from it, and
// the vendor API never echoes it back.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	user, err := s.currentSession().Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.store.SaveUser(r.Context(), user); err != nil {
		s.logger.Warn("persisting user failed", "error", err)
	}

	s.sessMu.Lock()
	s.loginName = req.Username
	s.sessMu.Unlock()

	s.announceSessionEvent("login", user.UserID)

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  user,
		"state": s.currentSession().State(),
	})
}

// handleGetSession reports the live session state and the persisted
// user, if any.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"state": s.currentSession().State(),
	}

	user, err := s.store.LoadUser(r.Context())
	switch {
	case err == nil:
		resp["user"] = user
	case errors.Is(err, store.ErrNoUser):
		resp["user"] = nil
	default:
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleLogout drops the persisted user and starts a fresh session.
//
// Stored locks survive logout: unlocking is a pure BLE operation and
// needs no vendor session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteUser(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}

	s.resetSession()
	s.sessMu.Lock()
	s.loginName = ""
	s.sessMu.Unlock()

	s.announceSessionEvent("logout", "")

	w.WriteHeader(http.StatusNoContent)
}

// handleListSchools fetches the account's school memberships from the
// vendor API.
func (s *Server) handleListSchools(w http.ResponseWriter, r *http.Request) {
	schools, err := s.currentSession().Schools(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if schools == nil {
		schools = []entity.School{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"schools": schools})
}

// announceSessionEvent publishes a session lifecycle event to MQTT,
// best effort.
func (s *Server) announceSessionEvent(kind, userID string) {
	event := map[string]string{"event": kind, "user_id": userID}
	s.hub.Broadcast("session.event", event)

	if s.mqtt == nil || !s.mqtt.IsConnected() {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.mqtt.PublishEvent(mqtt.Topics{}.SessionEvent(kind), payload); err != nil {
		s.logger.Debug("mqtt session publish failed", "error", err)
	}
}
