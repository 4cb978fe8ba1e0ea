package database

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMigrationRunner_MissingSource(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	runner, err := NewMigrationRunner("postgres://localhost:1/trainer?sslmode=disable", missing, logrus.New())
	require.Error(t, err)
	assert.Nil(t, runner)
	assert.Contains(t, err.Error(), "opening migrations at "+missing)
}

func TestMigrateLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.InfoLevel)

	l := migrateLogger{logger}
	assert.False(t, l.Verbose())
	l.Printf("applied %d", 1)
	assert.Empty(t, buf.String())

	logger.SetLevel(logrus.DebugLevel)
	assert.True(t, l.Verbose())
	l.Printf("applied %d", 1)
	assert.Contains(t, buf.String(), "migrate: applied 1")
}
