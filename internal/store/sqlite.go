package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clinical-case-trainer/internal/domain"
)

// SQLiteStore implements domain.ReasoningStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens the database at dbPath, creating the file and schema
// if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for concurrent readers
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS clinical_reasoning (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id INTEGER NOT NULL UNIQUE,
		student_id INTEGER NOT NULL,
		case_id TEXT NOT NULL,
		problem_representation TEXT,
		differential_diagnoses TEXT,
		decision_justification TEXT,
		evidence_references TEXT,
		reasoning_score TEXT,
		score_breakdown TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_reasoning_student ON clinical_reasoning(student_id);
	CREATE INDEX IF NOT EXISTS idx_reasoning_case ON clinical_reasoning(case_id);
	`

	_, err := db.Exec(schema)
	return err
}

// FindByAttempt returns the record of an attempt, or nil if none exists.
func (s *SQLiteStore) FindByAttempt(ctx context.Context, attemptID int64) (*domain.ClinicalReasoning, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+reasoningColumns+" FROM clinical_reasoning WHERE attempt_id = ? LIMIT 1",
		attemptID,
	)

	r, err := scanReasoning(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return r, nil
}

// Insert stores a new record and sets its ID.
func (s *SQLiteStore) Insert(ctx context.Context, record *domain.ClinicalReasoning) error {
	row, err := encodeReasoning(record)
	if err != nil {
		return err
	}
	stampTimes(record)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO clinical_reasoning (
			attempt_id, student_id, case_id,
			problem_representation, differential_diagnoses,
			decision_justification, evidence_references,
			reasoning_score, score_breakdown, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.AttemptID,
		record.StudentID,
		record.CaseID,
		row.problemRepresentation,
		row.differentials,
		row.justification,
		row.references,
		row.score,
		row.breakdown,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	record.ID = id
	return nil
}

// Update overwrites the sections and updated_at of an existing record.
func (s *SQLiteStore) Update(ctx context.Context, record *domain.ClinicalReasoning) error {
	row, err := encodeReasoning(record)
	if err != nil {
		return err
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE clinical_reasoning SET
			problem_representation = ?,
			differential_diagnoses = ?,
			decision_justification = ?,
			evidence_references = ?,
			updated_at = ?
		WHERE id = ?
	`,
		row.problemRepresentation,
		row.differentials,
		row.justification,
		row.references,
		record.UpdatedAt,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update: %w", err)
	}
	return requireRow(result, record.ID)
}

// UpdateScore overwrites the stored total and breakdown.
func (s *SQLiteStore) UpdateScore(ctx context.Context, id int64, total string, breakdown domain.ReasoningScoreBreakdown) error {
	payload, err := marshalJSON(breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal score breakdown: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE clinical_reasoning SET reasoning_score = ?, score_breakdown = ?, updated_at = ? WHERE id = ?",
		total, payload, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update score: %w", err)
	}
	return requireRow(result, id)
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM clinical_reasoning").Scan(&count)
	return count, err
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func stampTimes(record *domain.ClinicalReasoning) {
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
}

func requireRow(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("clinical reasoning %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
