package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, ".clinical-case-trainer", filepath.Base(cfg.DataDir))
	assert.Equal(t, 512, cfg.CacheMaxItems)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.UsesPostgres())
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CASE_TRAINER_DATA_DIR", "/tmp/test-trainer")
	t.Setenv("CASE_TRAINER_DATABASE_URL", "postgres://localhost/trainer")
	t.Setenv("CASE_TRAINER_CACHE_MAX_ITEMS", "64")
	t.Setenv("CASE_TRAINER_CACHE_TTL", "5m")
	t.Setenv("CASE_TRAINER_LOG_LEVEL", "debug")
	t.Setenv("CASE_TRAINER_LOG_FORMAT", "text")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-trainer", cfg.DataDir)
	assert.Equal(t, 64, cfg.CacheMaxItems)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.True(t, cfg.UsesPostgres())
}

func TestLoadLiteConfig_IgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("CASE_TRAINER_CACHE_MAX_ITEMS", "-3")
	t.Setenv("CASE_TRAINER_CACHE_TTL", "soon")

	cfg := LoadLiteConfig()

	assert.Equal(t, 512, cfg.CacheMaxItems)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
}

func TestLiteConfig_ReasoningDBPath(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.clinical-case-trainer"}
	assert.Equal(t, "/home/user/.clinical-case-trainer/reasoning.db", cfg.ReasoningDBPath())
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: filepath.Join(t.TempDir(), "trainer", "data")}

	require.NoError(t, cfg.EnsureDataDir())
	assert.DirExists(t, cfg.DataDir)
}
