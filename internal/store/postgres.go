package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/clinical-case-trainer/internal/domain"
)

// PostgresStore implements domain.ReasoningStore using PostgreSQL.
// It expects the schema to exist already (created via migrations).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL opens a store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// FindByAttempt returns the record of an attempt, or nil if none exists.
func (s *PostgresStore) FindByAttempt(ctx context.Context, attemptID int64) (*domain.ClinicalReasoning, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+reasoningColumns+" FROM clinical_reasoning WHERE attempt_id = $1 LIMIT 1",
		attemptID,
	)

	r, err := scanReasoning(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clinical reasoning: %w", err)
	}
	return r, nil
}

// Insert stores a new record and sets its ID.
func (s *PostgresStore) Insert(ctx context.Context, record *domain.ClinicalReasoning) error {
	row, err := encodeReasoning(record)
	if err != nil {
		return err
	}
	stampTimes(record)

	query := `
		INSERT INTO clinical_reasoning (
			attempt_id, student_id, case_id,
			problem_representation, differential_diagnoses,
			decision_justification, evidence_references,
			reasoning_score, score_breakdown, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err = s.db.QueryRowContext(ctx, query,
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
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to insert clinical reasoning: %w", err)
	}
	return nil
}

// Update overwrites the sections and updated_at of an existing record.
func (s *PostgresStore) Update(ctx context.Context, record *domain.ClinicalReasoning) error {
	row, err := encodeReasoning(record)
	if err != nil {
		return err
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE clinical_reasoning SET
			problem_representation = $1,
			differential_diagnoses = $2,
			decision_justification = $3,
			evidence_references = $4,
			updated_at = $5
		WHERE id = $6
	`,
		row.problemRepresentation,
		row.differentials,
		row.justification,
		row.references,
		record.UpdatedAt,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update clinical reasoning: %w", err)
	}
	return requireRow(result, record.ID)
}

// UpdateScore overwrites the stored total and breakdown.
func (s *PostgresStore) UpdateScore(ctx context.Context, id int64, total string, breakdown domain.ReasoningScoreBreakdown) error {
	payload, err := marshalJSON(breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal score breakdown: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE clinical_reasoning SET reasoning_score = $1, score_breakdown = $2, updated_at = $3 WHERE id = $4",
		total, payload, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update reasoning score: %w", err)
	}
	return requireRow(result, id)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
