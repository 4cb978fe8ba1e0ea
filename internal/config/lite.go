// Package config provides configuration for the HTTP server and the
// standalone MCP server. This file holds the standalone configuration.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LiteConfig configures the standalone MCP server. It needs no external
// services: reasoning records go to SQLite unless DatabaseURL is set.
type LiteConfig struct {
	// Data storage
	DataDir     string // Base directory for data files
	DatabaseURL string // Optional: PostgreSQL URL replacing the SQLite file

	// Cache settings
	CacheMaxItems int
	CacheTTL      time.Duration

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()

	return &LiteConfig{
		DataDir:       filepath.Join(homeDir, ".clinical-case-trainer"),
		CacheMaxItems: 512,
		CacheTTL:      time.Hour,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from CASE_TRAINER_* environment
// variables, falling back to defaults.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("CASE_TRAINER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	cfg.DatabaseURL = os.Getenv("CASE_TRAINER_DATABASE_URL")

	if v := os.Getenv("CASE_TRAINER_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("CASE_TRAINER_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("CASE_TRAINER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CASE_TRAINER_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// ReasoningDBPath returns the path to the reasoning SQLite database.
func (c *LiteConfig) ReasoningDBPath() string {
	return filepath.Join(c.DataDir, "reasoning.db")
}

// UsesPostgres reports whether records go to PostgreSQL instead of SQLite.
func (c *LiteConfig) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}
