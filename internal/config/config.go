// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Anomaly model service
	ClassifierURL     string // Base URL of the model service; empty enables the local detector
	ClassifierTimeout int    // Request timeout in seconds

	// Scoring
	AmountFloor float64 // Purchases below this bypass the classifier entirely
	ScoreCurve  string  // "standard" or "velocity"

	// Feature derivation
	SyntheticSeed int64 // Seed for placeholder behavioral counters (0 = time-based)

	// Banking sandbox (customer/account/merchant CRUD passthrough)
	SandboxBaseURL string
	SandboxAPIKey  string

	// Security
	RateLimitRPM int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing
}

// Defaults for local development.
const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultAmountFloor       = 5.0
	DefaultScoreCurve        = "standard"
	DefaultRateLimit         = 60
	DefaultClassifierTimeout = 5
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		ClassifierURL:     os.Getenv("CLASSIFIER_URL"),
		ClassifierTimeout: int(getEnvInt64("CLASSIFIER_TIMEOUT", DefaultClassifierTimeout)),
		AmountFloor:       getEnvFloat("AMOUNT_FLOOR", DefaultAmountFloor),
		ScoreCurve:        getEnv("SCORE_CURVE", DefaultScoreCurve),
		SyntheticSeed:     getEnvInt64("SYNTHETIC_SEED", 0),
		SandboxBaseURL:    os.Getenv("SANDBOX_BASE_URL"),
		SandboxAPIKey:     os.Getenv("SANDBOX_API_KEY"),
		RateLimitRPM:      int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.AmountFloor < 0 {
		return fmt.Errorf("AMOUNT_FLOOR must not be negative")
	}

	if c.ScoreCurve != "standard" && c.ScoreCurve != "velocity" {
		return fmt.Errorf("SCORE_CURVE must be %q or %q", "standard", "velocity")
	}

	if c.ClassifierTimeout <= 0 {
		return fmt.Errorf("CLASSIFIER_TIMEOUT must be positive")
	}

	// The sandbox bank rejects unauthenticated requests, so a base URL
	// without a key is a misconfiguration rather than a degraded mode.
	if c.SandboxBaseURL != "" && c.SandboxAPIKey == "" {
		return fmt.Errorf("SANDBOX_API_KEY is required when SANDBOX_BASE_URL is set")
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

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
