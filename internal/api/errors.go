package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arisumika/dormlock-core/internal/entity"
	"github.com/arisumika/dormlock-core/internal/proxy"
	"github.com/arisumika/dormlock-core/internal/session"
	"github.com/arisumika/dormlock-core/internal/store"
	"github.com/arisumika/dormlock-core/internal/unlock"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeUnauthorized     = "unauthorised"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeNotAuthenticated = "not_authenticated"
	ErrCodeAuthFailed       = "auth_failed"
	ErrCodeProxyFailure     = "proxy_failure"
	ErrCodeProxyTimeout     = "proxy_timeout"
	ErrCodeUnlockBusy       = "unlock_busy"
	ErrCodeBLEUnavailable   = "ble_unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps errors from the core packages onto HTTP
// responses. Vendor-reported auth failures keep their message verbatim;
// everything else gets the sentinel's text.
func writeDomainError(w http.ResponseWriter, err error) {
	var authErr *session.AuthError
	var proxyErr *proxy.Error

	switch {
	case errors.As(err, &authErr):
		writeError(w, http.StatusUnauthorized, ErrCodeAuthFailed, authErr.Msg)
	case errors.Is(err, session.ErrNotAuthenticated):
		writeError(w, http.StatusPreconditionFailed, ErrCodeNotAuthenticated, err.Error())
	case errors.Is(err, proxy.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, ErrCodeProxyFailure, err.Error())
	case errors.Is(err, proxy.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeProxyTimeout, err.Error())
	case errors.Is(err, proxy.ErrEndpointNotFound),
		errors.Is(err, proxy.ErrRequestFailed),
		errors.Is(err, session.ErrUnexpectedResponse),
		errors.As(err, &proxyErr):
		writeError(w, http.StatusBadGateway, ErrCodeProxyFailure, err.Error())
	case errors.Is(err, entity.ErrInvalidShareLink),
		errors.Is(err, entity.ErrIncompleteLock):
		writeBadRequest(w, err.Error())
	case errors.Is(err, store.ErrNoUser),
		errors.Is(err, store.ErrLockNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, store.ErrLockExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, unlock.ErrBusy):
		writeError(w, http.StatusConflict, ErrCodeUnlockBusy, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
