package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arisumika/dormlock-core/internal/entity"
	"github.com/arisumika/dormlock-core/internal/infrastructure/mqtt"
	"github.com/arisumika/dormlock-core/internal/session"
)

// defaultUnlockHistoryLimit caps GET /unlocks when no limit is given.
const defaultUnlockHistoryLimit = 50

// handleListLocks returns all persisted locks.
func (s *Server) handleListLocks(w http.ResponseWriter, r *http.Request) {
	locks, err := s.store.ListLocks(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if locks == nil {
		locks = []entity.Lock{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"locks": locks})
}

// refreshRequest is the body for POST /locks/refresh.
type refreshRequest struct {
	SchoolNo string `json:"schoolNo"`
}

// handleRefreshLocks re-discovers the lock set for one school from the
// vendor API and replaces the persisted set for that school.
//
// Requires a live login in this process: per-lock credentials are
// derived from the login username, which is never persisted.
func (s *Server) handleRefreshLocks(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.SchoolNo == "" {
		writeBadRequest(w, "schoolNo is required")
		return
	}

	s.sessMu.RLock()
	username := s.loginName
	s.sessMu.RUnlock()
	if username == "" {
		writeDomainError(w, session.ErrNotAuthenticated)
		return
	}

	sess := s.currentSession()
	schools, err := sess.Schools(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var school entity.School
	found := false
	for _, sch := range schools {
		if sch.SchoolNo == req.SchoolNo {
			school = sch
			found = true
			break
		}
	}
	if !found {
		writeNotFound(w, "school not found: "+req.SchoolNo)
		return
	}

	locks, err := sess.Locks(r.Context(), school, username)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.store.ReplaceLocks(r.Context(), school.SchoolNo, locks); err != nil {
		writeDomainError(w, err)
		return
	}

	if locks == nil {
		locks = []entity.Lock{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"locks": locks})
}

// importRequest is the body for POST /locks/import.
type importRequest struct {
	Share string `json:"share"`
}

// handleImportLock adds a lock received as a share link or bare share
// string, no vendor session needed.
func (s *Server) handleImportLock(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Share == "" {
		writeBadRequest(w, "share is required")
		return
	}

	lock, err := entity.LockFromShareURL(req.Share)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.store.AddLock(r.Context(), lock); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"lock": lock})
}

// handleGetLock returns one persisted lock by ID.
func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	lock, err := s.store.GetLock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lock": lock})
}

// handleDeleteLock removes one persisted lock by ID.
func (s *Server) handleDeleteLock(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveLock(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleShareLock returns the share string for one lock.
//
// Query parameters:
//   - origin: base URL to embed, producing a clickable link
//   - headless: "true" for the bare base64 payload without the origin
func (s *Server) handleShareLock(w http.ResponseWriter, r *http.Request) {
	lock, err := s.store.GetLock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	origin := r.URL.Query().Get("origin")
	headless := r.URL.Query().Get("headless") == "true"

	writeJSON(w, http.StatusOK, map[string]any{
		"share": lock.ShareString(origin, headless),
	})
}

// handleUnlock starts an unlock attempt for one lock.
//
// The attempt runs in the background; the handler returns 202 and
// progress streams over the WebSocket "unlock.progress" channel with
// the final outcome on "unlock.result". A second attempt while one is
// in flight is rejected with 409.
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if s.unlocker == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeBLEUnavailable, "no bluetooth adapter available")
		return
	}

	lock, err := s.store.GetLock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.unlockMu.Lock()
	if s.unlocking {
		busy := s.unlockingLock
		s.unlockMu.Unlock()
		writeError(w, http.StatusConflict, ErrCodeUnlockBusy, "unlock already in progress for "+busy)
		return
	}
	s.unlocking = true
	s.unlockingLock = lock.ID()
	s.unlockMu.Unlock()

	go s.runUnlock(lock)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"lock_id": lock.ID(),
	})
}

// runUnlock drives one unlock attempt to completion in the background
// and fans the outcome out to the audit trail, WebSocket, and MQTT.
func (s *Server) runUnlock(lock entity.Lock) {
	defer func() {
		s.unlockMu.Lock()
		s.unlocking = false
		s.unlockingLock = ""
		s.unlockMu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), unlockAttemptTimeout)
	defer cancel()

	err := s.unlocker.Unlock(ctx, lock)

	result := map[string]any{
		"lock_id": lock.ID(),
		"success": err == nil,
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
		result["error"] = errMsg
	}

	recordCtx, recordCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer recordCancel()
	if recErr := s.store.RecordUnlock(recordCtx, lock.ID(), err == nil, errMsg); recErr != nil {
		s.logger.Warn("recording unlock event failed", "error", recErr)
	}

	s.hub.Broadcast("unlock.result", result)
	s.announceResult(lock.ID(), result)
}

// announceResult publishes the final unlock outcome to MQTT, retained
// so late subscribers see the last result per lock.
func (s *Server) announceResult(lockID string, result map[string]any) {
	if s.mqtt == nil || !s.mqtt.IsConnected() {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.mqtt.PublishRetained(mqtt.Topics{}.UnlockResult(lockID), data); err != nil {
		s.logger.Debug("mqtt result publish failed", "error", err)
	}
}

// handleRecentUnlocks returns the newest unlock audit events.
func (s *Server) handleRecentUnlocks(w http.ResponseWriter, r *http.Request) {
	limit := defaultUnlockHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := s.store.RecentUnlocks(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
