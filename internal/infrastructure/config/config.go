package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the dormlock gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	BLE       BLEConfig       `yaml:"ble"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// ProxyConfig contains settings for the CORS-bypass proxy that relays
// requests to the vendor API.
type ProxyConfig struct {
	// URL is the proxy endpoint. Required: the vendor API rejects
	// direct cross-origin calls, so every request is relayed.
	URL string `yaml:"url"`

	// Variant selects the proxy wire format: "query" (target URL and
	// method as query parameters) or "envelope" (everything in one body).
	Variant string `yaml:"variant"`

	// BaseURL is the account-level vendor API base.
	BaseURL string `yaml:"base_url"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Key      string           `yaml:"key"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings for the optional
// unlock-event announcer.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// BLEConfig contains Bluetooth Low Energy settings.
type BLEConfig struct {
	// ScanTimeout bounds device discovery in seconds. The OS scan can
	// otherwise run forever when the lock is out of range.
	ScanTimeout int `yaml:"scan_timeout"`

	// ConnectTimeout bounds the GATT connection attempt in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`

	// DisconnectGrace is the delay in seconds between a successful
	// write and radio teardown. The lock processes the command after
	// the write completes; dropping the link immediately can abort it.
	DisconnectGrace int `yaml:"disconnect_grace"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// A .env file in the working directory is loaded first, if present, so
// deployments can keep the proxy URL and API key out of the YAML file.
//
// Environment variables follow the pattern: DORMLOCK_SECTION_KEY
// For example: DORMLOCK_PROXY_URL, DORMLOCK_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Best effort: absence of a .env file is the normal case
	_ = godotenv.Load()

	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Database: DatabaseConfig{
			Path:        "./data/dormlock.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Proxy: ProxyConfig{
			Variant: "query",
			BaseURL: "https://base.yunmeitech.com",
			Timeout: 15,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8675,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "dormlock-gateway",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		BLE: BLEConfig{
			ScanTimeout:     20,
			ConnectTimeout:  15,
			DisconnectGrace: 1,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DORMLOCK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("DORMLOCK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Proxy
	if v := os.Getenv("DORMLOCK_PROXY_URL"); v != "" {
		cfg.Proxy.URL = v
	}
	if v := os.Getenv("DORMLOCK_PROXY_VARIANT"); v != "" {
		cfg.Proxy.Variant = v
	}
	if v := os.Getenv("DORMLOCK_PROXY_BASE_URL"); v != "" {
		cfg.Proxy.BaseURL = v
	}

	// API
	if v := os.Getenv("DORMLOCK_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("DORMLOCK_API_KEY"); v != "" {
		cfg.API.Key = v
	}

	// MQTT
	if v := os.Getenv("DORMLOCK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DORMLOCK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DORMLOCK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
}

// Validate checks the configuration for errors.
//
// A missing proxy URL is a deployment mistake, not a runtime fault, so
// the message spells out how to fix it.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Proxy.URL == "" {
		errs = append(errs, "proxy.url is required: the vendor API cannot be called directly; "+
			"set proxy.url in the config file or the DORMLOCK_PROXY_URL environment variable "+
			"(e.g. DORMLOCK_PROXY_URL=https://yunmei.arisumika.top/proxy)")
	}

	switch c.Proxy.Variant {
	case "query", "envelope":
	default:
		errs = append(errs, `proxy.variant must be "query" or "envelope"`)
	}

	if c.Proxy.BaseURL == "" {
		errs = append(errs, "proxy.base_url is required")
	}
	if c.Proxy.Timeout <= 0 {
		errs = append(errs, "proxy.timeout must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.BLE.ScanTimeout <= 0 {
		errs = append(errs, "ble.scan_timeout must be positive")
	}
	if c.BLE.ConnectTimeout <= 0 {
		errs = append(errs, "ble.connect_timeout must be positive")
	}
	if c.BLE.DisconnectGrace < 0 {
		errs = append(errs, "ble.disconnect_grace must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetProxyTimeout returns the proxy request timeout as a Duration.
func (c *ProxyConfig) GetProxyTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// GetScanTimeout returns the BLE scan timeout as a Duration.
func (c *BLEConfig) GetScanTimeout() time.Duration {
	return time.Duration(c.ScanTimeout) * time.Second
}

// GetConnectTimeout returns the BLE connect timeout as a Duration.
func (c *BLEConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// GetDisconnectGrace returns the post-write disconnect delay as a Duration.
func (c *BLEConfig) GetDisconnectGrace() time.Duration {
	return time.Duration(c.DisconnectGrace) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
