package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/clinical-case-trainer/internal/domain"
)

// ReasoningRepository persists clinical reasoning records in PostgreSQL
type ReasoningRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewReasoningRepository creates a new reasoning repository
func NewReasoningRepository(db *pgxpool.Pool, logger *logrus.Logger) *ReasoningRepository {
	return &ReasoningRepository{
		db:  db,
		log: logger,
	}
}

// FindByAttempt returns the record of an attempt, or nil if none exists
func (r *ReasoningRepository) FindByAttempt(ctx context.Context, attemptID int64) (*domain.ClinicalReasoning, error) {
	query := `
		SELECT id, attempt_id, student_id, case_id,
			   problem_representation, differential_diagnoses,
			   decision_justification, evidence_references,
			   reasoning_score::text, score_breakdown, created_at, updated_at
		FROM clinical_reasoning
		WHERE attempt_id = $1
		LIMIT 1`

	var (
		record                     domain.ClinicalReasoning
		pr, ddx, refs, breakdown   []byte
		justification, scoreString *string
	)

	err := r.db.QueryRow(ctx, query, attemptID).Scan(
		&record.ID,
		&record.AttemptID,
		&record.StudentID,
		&record.CaseID,
		&pr,
		&ddx,
		&justification,
		&refs,
		&scoreString,
		&breakdown,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.log.WithFields(logrus.Fields{
			"attempt_id": attemptID,
			"error":      err,
		}).Error("Failed to get clinical reasoning")
		return nil, fmt.Errorf("getting clinical reasoning: %w", err)
	}

	if pr != nil {
		record.ProblemRepresentation = &domain.ProblemRepresentation{}
		if err := json.Unmarshal(pr, record.ProblemRepresentation); err != nil {
			return nil, fmt.Errorf("unmarshaling problem representation: %w", err)
		}
	}
	if ddx != nil {
		record.DifferentialDiagnoses = []domain.DifferentialDiagnosis{}
		if err := json.Unmarshal(ddx, &record.DifferentialDiagnoses); err != nil {
			return nil, fmt.Errorf("unmarshaling differential diagnoses: %w", err)
		}
	}
	if refs != nil {
		record.EvidenceReferences = []domain.EvidenceReference{}
		if err := json.Unmarshal(refs, &record.EvidenceReferences); err != nil {
			return nil, fmt.Errorf("unmarshaling evidence references: %w", err)
		}
	}
	if breakdown != nil {
		record.ScoreBreakdown = &domain.ReasoningScoreBreakdown{}
		if err := json.Unmarshal(breakdown, record.ScoreBreakdown); err != nil {
			return nil, fmt.Errorf("unmarshaling score breakdown: %w", err)
		}
	}
	record.DecisionJustification = justification
	record.ReasoningScore = scoreString

	return &record, nil
}

// Insert stores a new record and sets its ID
func (r *ReasoningRepository) Insert(ctx context.Context, record *domain.ClinicalReasoning) error {
	sections, err := encodeSections(record)
	if err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}

	query := `
		INSERT INTO clinical_reasoning (
			attempt_id, student_id, case_id,
			problem_representation, differential_diagnoses,
			decision_justification, evidence_references,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		RETURNING id`

	err = r.db.QueryRow(ctx, query,
		record.AttemptID,
		record.StudentID,
		record.CaseID,
		sections.problemRepresentation,
		sections.differentials,
		record.DecisionJustification,
		sections.references,
		record.CreatedAt,
		record.UpdatedAt,
	).Scan(&record.ID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"attempt_id": record.AttemptID,
			"case_id":    record.CaseID,
			"error":      err,
		}).Error("Failed to create clinical reasoning")
		return fmt.Errorf("creating clinical reasoning: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"reasoning_id": record.ID,
		"attempt_id":   record.AttemptID,
	}).Debug("Clinical reasoning created")

	return nil
}

// Update overwrites the sections of an existing record
func (r *ReasoningRepository) Update(ctx context.Context, record *domain.ClinicalReasoning) error {
	sections, err := encodeSections(record)
	if err != nil {
		return err
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now()
	}

	query := `
		UPDATE clinical_reasoning SET
			problem_representation = $1,
			differential_diagnoses = $2,
			decision_justification = $3,
			evidence_references = $4,
			updated_at = $5
		WHERE id = $6`

	tag, err := r.db.Exec(ctx, query,
		sections.problemRepresentation,
		sections.differentials,
		record.DecisionJustification,
		sections.references,
		record.UpdatedAt,
		record.ID,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"reasoning_id": record.ID,
			"error":        err,
		}).Error("Failed to update clinical reasoning")
		return fmt.Errorf("updating clinical reasoning: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("clinical reasoning %d: %w", record.ID, domain.ErrNotFound)
	}
	return nil
}

// UpdateScore overwrites the stored total and breakdown
func (r *ReasoningRepository) UpdateScore(ctx context.Context, id int64, total string, breakdown domain.ReasoningScoreBreakdown) error {
	payload, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("marshaling score breakdown: %w", err)
	}

	query := `
		UPDATE clinical_reasoning SET
			reasoning_score = $1::text::numeric,
			score_breakdown = $2,
			updated_at = NOW()
		WHERE id = $3`

	tag, err := r.db.Exec(ctx, query, total, payload, id)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"reasoning_id": id,
			"error":        err,
		}).Error("Failed to update reasoning score")
		return fmt.Errorf("updating reasoning score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("clinical reasoning %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Close is a no-op; the pool is owned by database.DB
func (r *ReasoningRepository) Close() error {
	return nil
}

type encodedSections struct {
	problemRepresentation []byte
	differentials         []byte
	references            []byte
}

// encodeSections marshals the JSONB sections; nil sections stay NULL
func encodeSections(record *domain.ClinicalReasoning) (encodedSections, error) {
	var out encodedSections
	var err error

	if record.ProblemRepresentation != nil {
		if out.problemRepresentation, err = json.Marshal(record.ProblemRepresentation); err != nil {
			return out, fmt.Errorf("marshaling problem representation: %w", err)
		}
	}
	if record.DifferentialDiagnoses != nil {
		if out.differentials, err = json.Marshal(record.DifferentialDiagnoses); err != nil {
			return out, fmt.Errorf("marshaling differential diagnoses: %w", err)
		}
	}
	if record.EvidenceReferences != nil {
		if out.references, err = json.Marshal(record.EvidenceReferences); err != nil {
			return out, fmt.Errorf("marshaling evidence references: %w", err)
		}
	}
	return out, nil
}
