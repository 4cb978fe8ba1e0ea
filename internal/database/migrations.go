package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultMigrationsPath is used when the configuration names no path
	DefaultMigrationsPath = "migrations"

	// SchemaVersion is the migration the repositories are written against
	SchemaVersion uint = 1
)

var (
	// ErrSchemaOutdated means the database is behind SchemaVersion
	ErrSchemaOutdated = errors.New("database schema is outdated")
	// ErrSchemaDirty means a previous migration failed halfway
	ErrSchemaDirty = errors.New("database schema is dirty")
)

// SchemaStatus describes the applied migration state
type SchemaStatus struct {
	Version  uint
	Expected uint
	Dirty    bool
}

// MigrationRunner applies the trainer schema (cases, attempts, quiz
// submissions, reflections and clinical reasoning)
type MigrationRunner struct {
	m      *migrate.Migrate
	source string
	log    *logrus.Logger
}

// NewMigrationRunner opens the migration source and the target database
func NewMigrationRunner(databaseURL, migrationsPath string, logger *logrus.Logger) (*MigrationRunner, error) {
	if migrationsPath == "" {
		migrationsPath = DefaultMigrationsPath
	}
	source := "file://" + migrationsPath

	m, err := migrate.New(source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening migrations at %s: %w", migrationsPath, err)
	}
	m.Log = migrateLogger{logger}

	return &MigrationRunner{m: m, source: source, log: logger}, nil
}

// Up applies every pending migration. Cancelling ctx stops after the
// migration in flight.
func (r *MigrationRunner) Up(ctx context.Context) error {
	before := r.Status()
	err := r.withContext(ctx, r.m.Up)
	if errors.Is(err, migrate.ErrNoChange) {
		r.log.WithField("version", before.Version).Debug("Trainer schema already current")
		return nil
	}
	if err != nil {
		return fmt.Errorf("applying trainer schema: %w", err)
	}

	after := r.Status()
	r.log.WithFields(logrus.Fields{
		"from":   before.Version,
		"to":     after.Version,
		"source": r.source,
	}).Info("Trainer schema migrated")
	return nil
}

// Down rolls back the most recent migration
func (r *MigrationRunner) Down(ctx context.Context) error {
	before := r.Status()
	err := r.withContext(ctx, func() error { return r.m.Steps(-1) })
	if errors.Is(err, migrate.ErrNoChange) || errors.Is(err, migrate.ErrNilVersion) {
		r.log.Info("No trainer schema migration to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("rolling back trainer schema: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"from": before.Version,
		"to":   r.Status().Version,
	}).Warn("Trainer schema rolled back")
	return nil
}

// Status reports the applied version. A database with no migrations
// applied reports version 0.
func (r *MigrationRunner) Status() SchemaStatus {
	status := SchemaStatus{Expected: SchemaVersion}
	version, dirty, err := r.m.Version()
	if err != nil {
		if !errors.Is(err, migrate.ErrNilVersion) {
			r.log.WithError(err).Warn("Could not read trainer schema version")
		}
		return status
	}
	status.Version = version
	status.Dirty = dirty
	return status
}

// CheckSchema fails when the database cannot serve the repositories
func (r *MigrationRunner) CheckSchema() error {
	status := r.Status()
	switch {
	case status.Dirty:
		return fmt.Errorf("version %d: %w", status.Version, ErrSchemaDirty)
	case status.Version < SchemaVersion:
		return fmt.Errorf("version %d, want %d: %w", status.Version, SchemaVersion, ErrSchemaOutdated)
	}
	return nil
}

// Close releases the source and database handles
func (r *MigrationRunner) Close() error {
	sourceErr, dbErr := r.m.Close()
	return errors.Join(sourceErr, dbErr)
}

func (r *MigrationRunner) withContext(ctx context.Context, run func() error) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			select {
			case r.m.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	return run()
}

// migrateLogger routes golang-migrate's output through logrus
type migrateLogger struct {
	log *logrus.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debugf("migrate: "+format, v...)
}

func (l migrateLogger) Verbose() bool {
	return l.log.IsLevelEnabled(logrus.DebugLevel)
}
