package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Vendor session endpoints
			r.Route("/session", func(r chi.Router) {
				r.Post("/login", s.handleLogin)
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleLogout)
			})

			r.Get("/schools", s.handleListSchools)

			// Lock endpoints
			r.Route("/locks", func(r chi.Router) {
				r.Get("/", s.handleListLocks)
				r.Post("/refresh", s.handleRefreshLocks)
				r.Post("/import", s.handleImportLock)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetLock)
					r.Delete("/", s.handleDeleteLock)
					r.Get("/share", s.handleShareLock)
					r.Post("/unlock", s.handleUnlock)
				})
			})

			// Unlock audit trail
			r.Get("/unlocks", s.handleRecentUnlocks)

			// WebSocket (key validated by middleware, query param allowed)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"ble":     s.unlocker != nil,
	})
}
