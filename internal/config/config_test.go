package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Defaults(t *testing.T) {
	m, err := NewManagerWithPaths(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	cfg := m.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "clinical_case_trainer", m.GetDatabaseConfig().Database)
	assert.Equal(t, "migrations", cfg.Database.MigrationsPath)
	assert.Equal(t, 512, m.GetCacheConfig().MaxItems)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, 20.0, cfg.RateLimit.RequestsPerSecond)
	assert.True(t, m.IsDevelopment())
	assert.False(t, m.IsProduction())
	assert.Equal(t, "postgres://postgres:@localhost:5432/clinical_case_trainer?sslmode=disable", m.GetDatabaseURL())
}

func TestManager_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	yaml := `
environment: production
server:
  port: 9090
database:
  host: db.internal
  password: secret
cache:
  redis_url: redis://cache:6379/0
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("CASE_TRAINER_SERVER_PORT", "7070")

	m, err := NewManagerWithPaths(dir)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	assert.Equal(t, 7070, m.GetServerConfig().Port, "environment overrides the file")
	assert.Equal(t, "db.internal", m.GetDatabaseConfig().Host)
	assert.Equal(t, "redis://cache:6379/0", m.GetRedisConnectionString())
	assert.Contains(t, m.GetDatabaseConnectionString(), "password=secret")
	assert.True(t, m.IsProduction())
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Manager)
	}{
		{"bad port", func(m *Manager) { m.config.Server.Port = 70000 }},
		{"tls without cert", func(m *Manager) { m.config.Server.TLSEnabled = true }},
		{"missing database host", func(m *Manager) { m.config.Database.Host = "" }},
		{"zero pool", func(m *Manager) { m.config.Database.MaxOpenConns = 0 }},
		{"bad rate limit", func(m *Manager) { m.config.RateLimit.Burst = 0 }},
		{"bad metrics path", func(m *Manager) { m.config.Metrics.Path = "metrics" }},
		{"bad log level", func(m *Manager) { m.config.Logging.Level = "verbose" }},
		{"bad log format", func(m *Manager) { m.config.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManagerWithPaths(t.TempDir())
			require.NoError(t, err)
			tt.mutate(m)
			assert.Error(t, m.Validate())
		})
	}
}

func TestManager_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8081\n"), 0o644))

	m, err := NewManagerWithPaths(dir)
	require.NoError(t, err)
	assert.Equal(t, 8081, m.GetServerConfig().Port)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8082\n"), 0o644))
	require.NoError(t, m.Reload())
	assert.Equal(t, 8082, m.GetServerConfig().Port)
}
