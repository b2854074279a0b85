// Package config provides configuration structures and loading logic for the
// collector.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the global configuration for the collector.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Live        LiveConfig        `yaml:"live"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds configuration for the ingest listeners.
type ServerConfig struct {
	HTTPAddress string `yaml:"http_address"`
	GRPCAddress string `yaml:"grpc_address"`
}

// StorageConfig selects and configures the telemetry store backend.
type StorageConfig struct {
	// Backend is "memory" or "clickhouse".
	Backend        string           `yaml:"backend"`
	RetentionHours int              `yaml:"retention_hours"`
	ClickHouse     ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig locates the analytical storage engine.
type ClickHouseConfig struct {
	Addrs    []string `yaml:"addrs"`
	Database string   `yaml:"database"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

// AggregationConfig bounds the in-memory session and trace aggregators.
type AggregationConfig struct {
	MaxSessions     int `yaml:"max_sessions"`
	MaxTraces       int `yaml:"max_traces"`
	SessionTTLHours int `yaml:"session_ttl_hours"`
}

// LiveConfig configures the live-streaming broadcaster.
type LiveConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// TelemetryConfig holds configuration for the collector's own traces.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file or overrides are given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddress: ":4318",
			GRPCAddress: ":4317",
		},
		Storage: StorageConfig{
			Backend:        "memory",
			RetentionHours: 24,
		},
		Aggregation: AggregationConfig{
			MaxSessions:     10000,
			MaxTraces:       10000,
			SessionTTLHours: 24,
		},
		Live: LiveConfig{
			QueueSize: 1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("COLLECTOR_HTTP_ADDR"); val != "" {
		cfg.Server.HTTPAddress = val
	}
	if val := os.Getenv("COLLECTOR_GRPC_ADDR"); val != "" {
		cfg.Server.GRPCAddress = val
	}

	if val := os.Getenv("COLLECTOR_STORAGE_BACKEND"); val != "" {
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("COLLECTOR_CLICKHOUSE_ADDRS"); val != "" {
		cfg.Storage.ClickHouse.Addrs = strings.Split(val, ",")
	}
	if val := os.Getenv("COLLECTOR_CLICKHOUSE_DATABASE"); val != "" {
		cfg.Storage.ClickHouse.Database = val
	}
	if val := os.Getenv("COLLECTOR_CLICKHOUSE_USERNAME"); val != "" {
		cfg.Storage.ClickHouse.Username = val
	}
	if val := os.Getenv("COLLECTOR_CLICKHOUSE_PASSWORD"); val != "" {
		cfg.Storage.ClickHouse.Password = val
	}
	if val := os.Getenv("COLLECTOR_RETENTION_HOURS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Storage.RetentionHours = n
		}
	}

	if val := os.Getenv("COLLECTOR_MAX_SESSIONS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Aggregation.MaxSessions = n
		}
	}
	if val := os.Getenv("COLLECTOR_MAX_TRACES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Aggregation.MaxTraces = n
		}
	}

	if val := os.Getenv("COLLECTOR_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("COLLECTOR_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}

	if val := os.Getenv("COLLECTOR_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.HTTPAddress == "" {
		return fmt.Errorf("server.http_address must not be empty")
	}

	switch c.Storage.Backend {
	case "memory":
	case "clickhouse":
		if len(c.Storage.ClickHouse.Addrs) == 0 {
			return fmt.Errorf("storage.clickhouse.addrs required for the clickhouse backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (want memory or clickhouse)", c.Storage.Backend)
	}

	if c.Storage.RetentionHours < 0 {
		return fmt.Errorf("storage.retention_hours must not be negative")
	}
	if c.Aggregation.MaxSessions <= 0 {
		return fmt.Errorf("aggregation.max_sessions must be positive")
	}
	if c.Aggregation.MaxTraces <= 0 {
		return fmt.Errorf("aggregation.max_traces must be positive")
	}
	if c.Live.QueueSize <= 0 {
		return fmt.Errorf("live.queue_size must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}

	return nil
}
