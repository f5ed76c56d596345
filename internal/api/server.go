// Package api provides the HTTP REST API and WebSocket server for the
// dormlock gateway.
//
// It exposes the vendor session (login, school and lock discovery),
// the persisted lock set, and the BLE unlock pipeline to local clients
// (CLI tools, home-automation hooks, a web frontend). Unlock progress
// streams over WebSocket.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/arisumika/dormlock-core/internal/infrastructure/config"
	"github.com/arisumika/dormlock-core/internal/infrastructure/logging"
	"github.com/arisumika/dormlock-core/internal/infrastructure/mqtt"
	"github.com/arisumika/dormlock-core/internal/session"
	"github.com/arisumika/dormlock-core/internal/store"
	"github.com/arisumika/dormlock-core/internal/unlock"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// unlockAttemptTimeout bounds one full unlock sequence, discovery
// through write. Generous so slow GATT stacks still complete.
const unlockAttemptTimeout = 90 * time.Second

// SessionFactory creates a fresh vendor session. Session state only
// moves forward, so logout swaps in a new session rather than rewinding
// the old one.
type SessionFactory func() *session.Session

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Sessions SessionFactory
	Store    *store.Store
	Unlocker *unlock.Orchestrator // nil when no BLE adapter is available
	MQTT     *mqtt.Client         // optional announcer
	Version  string
}

// Server is the HTTP API server for the dormlock gateway.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	sessions SessionFactory
	store    *store.Store
	unlocker *unlock.Orchestrator
	mqtt     *mqtt.Client
	version  string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc // cancels background goroutines on Close()

	// sessMu guards the current session; logout replaces it. The login
	// name is kept alongside because lock discovery hashes it and the
	// vendor API never echoes it back.
	sessMu    sync.RWMutex
	sess      *session.Session
	loginName string

	// unlockMu guards the in-flight unlock bookkeeping.
	unlockMu      sync.Mutex
	unlocking     bool
	unlockingLock string
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, session factory, store)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("session factory is required")
	}
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	// Unlocker is optional — without a BLE adapter the vendor session
	// and lock management still work; only unlocking is unavailable.

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		sessions: deps.Sessions,
		store:    deps.Store,
		unlocker: deps.Unlocker,
		mqtt:     deps.MQTT,
		version:  deps.Version,
		sess:     deps.Sessions(),
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, launches the unlock
// progress relay, and starts the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	if s.unlocker != nil {
		go s.relayProgress(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("api server not started")
	}

	return nil
}

// currentSession returns the active vendor session.
func (s *Server) currentSession() *session.Session {
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()
	return s.sess
}

// resetSession discards the active session and starts a fresh one.
func (s *Server) resetSession() {
	s.sessMu.Lock()
	s.sess = s.sessions()
	s.sessMu.Unlock()
}

// relayProgress fans unlock progress out to WebSocket subscribers and,
// when an announcer is connected, to MQTT.
func (s *Server) relayProgress(ctx context.Context) {
	events := s.unlocker.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			payload := progressPayload(ev)
			s.hub.Broadcast("unlock.progress", payload)
			s.announceProgress(payload)
		}
	}
}

// progressPayload flattens a progress snapshot. The snapshot carries
// its own lock ID, so a late-relayed final event stays correctly
// tagged even after the attempt's bookkeeping is reset.
func progressPayload(ev unlock.Progress) map[string]any {
	return map[string]any{
		"lock_id": ev.LockID,
		"state":   ev.State,
		"percent": ev.Percent,
		"message": ev.Message,
		"error":   ev.Error,
	}
}

// announceProgress publishes a progress snapshot to MQTT, best effort.
func (s *Server) announceProgress(payload map[string]any) {
	if s.mqtt == nil || !s.mqtt.IsConnected() {
		return
	}
	lockID, _ := payload["lock_id"].(string) //nolint:errcheck // empty topic segment is harmless
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	topic := mqtt.Topics{}.UnlockProgress(lockID)
	if err := s.mqtt.PublishEvent(topic, data); err != nil {
		s.logger.Debug("mqtt progress publish failed", "error", err)
	}
}
