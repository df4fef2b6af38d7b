// Package config loads the application configuration from environment
// variables with CLI-flag overrides applied by the cmd layer.
package config

import (
	"fmt"
	"os"
)

// Config holds the application configuration.
type Config struct {
	// Path to the SQLite database file (":memory:" for ephemeral use).
	DBPath string

	// HTTP listen port.
	Port int

	// Secret for signing bearer tokens. Required outside development.
	JWTSecret string

	// Root directory of the file store.
	StorageDir string

	// Development toggles error-message exposure and relaxes the JWT
	// secret requirement.
	Development bool

	// Debug enables SQL query logging on the database handle.
	Debug bool

	// SMTP settings passed through to the mail sender. Optional.
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
}

// Defaults.
const (
	DefaultPort       = 8090
	DefaultDBPath     = "bunbase.db"
	DefaultStorageDir = "./data/storage"
)

// Load reads configuration from environment variables with fallback
// defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:      getEnv("BUNBASE_DB", DefaultDBPath),
		Port:        getEnvInt("PORT", DefaultPort),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		StorageDir:  getEnv("STORAGE_DIR", DefaultStorageDir),
		Development: getEnv("ENV", "") == "development",
		Debug:       getEnvBool("DEBUG", false),
		SMTPHost:    getEnv("SMTP_HOST", ""),
		SMTPPort:    getEnvInt("SMTP_PORT", 587),
		SMTPUser:    getEnv("SMTP_USER", ""),
		SMTPPass:    getEnv("SMTP_PASS", ""),
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}

	if cfg.JWTSecret == "" {
		if !cfg.Development {
			return nil, fmt.Errorf("JWT_SECRET is required outside development mode")
		}
		// Stable throwaway secret for local development only.
		cfg.JWTSecret = "bunbase-dev-secret"
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a
// default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a
// default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
