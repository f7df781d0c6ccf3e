// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/crossmarket/admincore/internal/security"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Escrow gateway
	EscrowGatewayURL     string        // HTTP escrow service base URL
	EscrowGatewayKey     string        // bearer token for the escrow service
	EscrowTimeout        time.Duration // per-attempt timeout for escrow calls
	EscrowRetryAttempts  int
	EscrowRetryBaseDelay time.Duration

	// Stripe (alternative escrow gateway backend)
	StripeAPIKey string

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; tracing disabled if empty
	RateLimitRPS int
}

const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultEscrowTimeout = 5 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 200 * time.Millisecond
	DefaultRateLimit     = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		EscrowGatewayURL:     os.Getenv("ESCROW_GATEWAY_URL"),
		EscrowGatewayKey:     os.Getenv("ESCROW_GATEWAY_KEY"),
		EscrowTimeout:        getEnvDuration("ESCROW_TIMEOUT", DefaultEscrowTimeout),
		EscrowRetryAttempts:  int(getEnvInt64("ESCROW_RETRY_ATTEMPTS", DefaultRetryAttempts)),
		EscrowRetryBaseDelay: getEnvDuration("ESCROW_RETRY_BASE_DELAY", DefaultRetryDelay),
		StripeAPIKey:         os.Getenv("STRIPE_API_KEY"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPS:         int(getEnvInt64("RATE_LIMIT_RPS", DefaultRateLimit)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is coherent
func (c *Config) Validate() error {
	if c.EscrowGatewayURL != "" && c.StripeAPIKey != "" {
		return fmt.Errorf("ESCROW_GATEWAY_URL and STRIPE_API_KEY are mutually exclusive")
	}

	if c.EscrowGatewayURL != "" {
		if err := security.ValidateEndpointURL(c.EscrowGatewayURL); err != nil {
			return fmt.Errorf("ESCROW_GATEWAY_URL: %w", err)
		}
	}

	if c.EscrowTimeout <= 0 {
		return fmt.Errorf("ESCROW_TIMEOUT must be positive")
	}
	if c.EscrowRetryAttempts <= 0 {
		return fmt.Errorf("ESCROW_RETRY_ATTEMPTS must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
