// Package config provides configuration for the discovery service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the discovery service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Optional durable store. Empty means memory-only operation; resolution
	// behavior is identical either way, only restart durability changes.
	DatabaseURL string

	// Embedding collaborator. Empty disables the semantic matching tier.
	EmbedderURL string

	// Signing
	SigningKey string

	// Timeouts for outbound collaborator calls
	EmbedTimeout time.Duration
	FactsTimeout time.Duration

	// Relevance matching
	DefaultMinScore float64

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:        getEnvInt("HTTP_PORT", 6900),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		EmbedderURL:     getEnv("EMBEDDER_URL", ""),
		SigningKey:      getEnv("SIGNING_KEY", "dev-signing-key"),
		EmbedTimeout:    time.Duration(getEnvInt("EMBED_TIMEOUT_MS", 5000)) * time.Millisecond,
		FactsTimeout:    time.Duration(getEnvInt("FACTS_TIMEOUT_MS", 10000)) * time.Millisecond,
		DefaultMinScore: getEnvFloat("DEFAULT_MIN_SCORE", 0.65),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
