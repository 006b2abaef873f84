// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultURL is the public remote store endpoint.
const DefaultURL = "https://api.rotur.dev"

// Client holds configuration for the originfs CLI.
type Client struct {
	// Remote store
	URL           string
	Token         string
	Timeout       time.Duration
	RetryAttempts int

	// Logging
	LogLevel  string
	LogFormat string
}

// Server holds configuration for the development remote store.
type Server struct {
	ListenAddr  string
	MetricsAddr string

	LogLevel  string
	LogFormat string

	// Empty selects the in-memory store.
	DatabaseURL string

	JWTSecret string
	TokenTTL  time.Duration
}

// LoadClient reads client configuration from environment variables with defaults.
// The token may also come from a saved token file, so it is not required here.
func LoadClient() (*Client, error) {
	cfg := &Client{
		URL:           envOr("ORIGINFS_URL", DefaultURL),
		Token:         envOr("ORIGINFS_TOKEN", ""),
		Timeout:       envDuration("ORIGINFS_TIMEOUT", 30*time.Second),
		RetryAttempts: envInt("ORIGINFS_RETRY_ATTEMPTS", 3),
		LogLevel:      envOr("LOG_LEVEL", "warn"),
		LogFormat:     envOr("LOG_FORMAT", "console"),
	}

	if cfg.RetryAttempts < 1 {
		return nil, fmt.Errorf("ORIGINFS_RETRY_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

// LoadServer reads dev server configuration from environment variables with defaults.
func LoadServer() (*Server, error) {
	cfg := &Server{
		ListenAddr:  envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr: envOr("METRICS_ADDR", ":9090"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),
		DatabaseURL: envOr("DATABASE_URL", ""),
		JWTSecret:   envOr("JWT_SECRET", ""),
		TokenTTL:    envDuration("TOKEN_TTL", 24*time.Hour),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
