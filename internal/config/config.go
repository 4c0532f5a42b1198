package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the agent
type Config struct {
	// Job store
	JobDBPath string // Path to the BoltDB file holding job records

	// Flush daemon
	FlushIntervalSeconds int // How often cached positions are flushed to the job store

	// Standalone mode
	JobsConfigPath string // Optional YAML file with job definitions to seed at startup

	// Progress mirror
	ProgressMirror bool // Mirror flushed positions to ClickHouse
	ClickHouseHost string
	ClickHousePort int
	ClickHouseDB   string

	// Observability
	LogLevel       string
	LogFile        string
	TracingEnabled bool
	OTLPEndpoint   string
	OTLPProtocol   string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		JobDBPath: getEnv("JOB_DB_PATH", "data/jobs.db"),

		FlushIntervalSeconds: getEnvInt("FLUSH_INTERVAL_SECONDS", 30),

		JobsConfigPath: getEnv("JOBS_CONFIG_PATH", ""),

		ProgressMirror: getEnvBool("PROGRESS_MIRROR", false),
		ClickHouseHost: getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort: getEnvInt("CLICKHOUSE_PORT", 9000),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "ingest"),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFile:        getEnv("LOG_FILE", ""),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", ""),
		OTLPProtocol:   getEnv("OTLP_PROTOCOL", "grpc"),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.JobDBPath == "" {
		return fmt.Errorf("JOB_DB_PATH is required")
	}
	if c.FlushIntervalSeconds < 1 {
		return fmt.Errorf("FLUSH_INTERVAL_SECONDS must be at least 1")
	}
	if c.ProgressMirror {
		if c.ClickHouseHost == "" {
			return fmt.Errorf("CLICKHOUSE_HOST is required when PROGRESS_MIRROR is enabled")
		}
		if c.ClickHousePort <= 0 || c.ClickHousePort > 65535 {
			return fmt.Errorf("CLICKHOUSE_PORT must be between 1 and 65535")
		}
		if c.ClickHouseDB == "" {
			return fmt.Errorf("CLICKHOUSE_DB is required when PROGRESS_MIRROR is enabled")
		}
	}

	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
