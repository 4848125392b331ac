// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Identities
	OwnerAddress  string // policy owner; may issue overrides and registry changes
	OracleAddress string // analysis oracle identity
	AdminSecret   string // shared secret for owner endpoints
	OracleSecret  string // shared secret for oracle endpoints

	// Detector
	PolicyFile string // optional YAML detector policy (selector sets + thresholds)

	// Freeze
	FreezeDuration uint64 // ordering units a frozen call stays resolvable

	// Ordering
	OrderingTick uint64 // seconds between ordering unit advances

	// Audit sinks
	KafkaBrokers []string // optional Kafka audit sink
	KafkaTopic   string

	// Tracing
	OTLPEndpoint string
}

// Defaults.
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultFreezeDuration = 30
	DefaultOrderingTick   = 12
	DefaultKafkaTopic     = "cordon_audit"
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", DefaultPort),
		Env:            getEnv("ENV", DefaultEnv),
		LogLevel:       getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:      getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		OwnerAddress:   os.Getenv("OWNER_ADDRESS"),
		OracleAddress:  os.Getenv("ORACLE_ADDRESS"),
		AdminSecret:    os.Getenv("ADMIN_SECRET"),
		OracleSecret:   os.Getenv("ORACLE_SECRET"),
		PolicyFile:     os.Getenv("POLICY_FILE"),
		FreezeDuration: getEnvUint64("FREEZE_DURATION", DefaultFreezeDuration),
		OrderingTick:   getEnvUint64("ORDERING_TICK", DefaultOrderingTick),
		KafkaTopic:     getEnv("KAFKA_TOPIC", DefaultKafkaTopic),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present and well-formed.
func (c *Config) Validate() error {
	if c.OwnerAddress == "" {
		return fmt.Errorf("OWNER_ADDRESS is required")
	}
	if !isHexAddress(c.OwnerAddress) {
		return fmt.Errorf("OWNER_ADDRESS must be a 0x-prefixed 40-hex-char address")
	}
	if c.OracleAddress != "" && !isHexAddress(c.OracleAddress) {
		return fmt.Errorf("ORACLE_ADDRESS must be a 0x-prefixed 40-hex-char address")
	}
	if c.FreezeDuration == 0 {
		return fmt.Errorf("FREEZE_DURATION must be positive")
	}
	if c.OrderingTick == 0 {
		return fmt.Errorf("ORDERING_TICK must be positive")
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvUint64(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
