// dormlock - Dormitory Door Lock Gateway
//
// This is the main entry point for the dormlock gateway daemon. It
// bridges the vendor's dormitory-access cloud API and the BLE door
// locks themselves, exposing both over a local HTTP/WebSocket API:
//   - Vendor session: login, school membership, lock discovery
//   - Lock storage: persisted lock credentials, share links
//   - BLE unlock: the challenge-packet write, with live progress
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arisumika/dormlock-core/internal/api"
	"github.com/arisumika/dormlock-core/internal/ble"
	"github.com/arisumika/dormlock-core/internal/infrastructure/config"
	"github.com/arisumika/dormlock-core/internal/infrastructure/database"
	"github.com/arisumika/dormlock-core/internal/infrastructure/logging"
	"github.com/arisumika/dormlock-core/internal/infrastructure/mqtt"
	"github.com/arisumika/dormlock-core/internal/proxy"
	"github.com/arisumika/dormlock-core/internal/session"
	"github.com/arisumika/dormlock-core/internal/store"
	"github.com/arisumika/dormlock-core/internal/unlock"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// healthCheckTimeout bounds the startup health check.
const healthCheckTimeout = 5 * time.Second

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting dormlock gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	st := store.New(db.DB)
	if err := st.Init(ctx); err != nil {
		return fmt.Errorf("initialising store: %w", err)
	}

	// Proxy transport to the vendor API
	transport, err := proxy.New(cfg.Proxy)
	if err != nil {
		return fmt.Errorf("configuring proxy transport: %w", err)
	}
	log.Info("proxy transport ready",
		"variant", cfg.Proxy.Variant,
		"base_url", cfg.Proxy.BaseURL,
	)

	// BLE central; without an adapter the gateway still serves the
	// vendor session and lock storage, it just cannot unlock.
	var unlocker *unlock.Orchestrator
	central, err := ble.NewHostCentral(cfg.BLE)
	switch {
	case errors.Is(err, ble.ErrUnsupported):
		log.Warn("no bluetooth adapter available, unlock disabled", "error", err)
	case err != nil:
		return fmt.Errorf("initialising bluetooth: %w", err)
	default:
		unlocker = unlock.New(central, cfg.BLE.GetDisconnectGrace(), log)
		log.Info("bluetooth adapter ready")
	}

	// MQTT announcer (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT announcer disabled")
	}

	// API server
	server, err := api.New(api.Deps{
		Config: cfg.API,
		WS:     cfg.WebSocket,
		Logger: log,
		Sessions: func() *session.Session {
			return session.New(transport, cfg.Proxy.BaseURL, log)
		},
		Store:    st,
		Unlocker: unlocker,
		MQTT:     mqttClient,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, server, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. MQTT (if enabled)
	// 3. Database

	log.Info("dormlock gateway stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DORMLOCK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DORMLOCK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - server: API server to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, server *api.Server, mqttClient *mqtt.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := server.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	return nil
}
