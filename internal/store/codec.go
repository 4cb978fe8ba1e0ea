// Package store persists clinical reasoning records through database/sql,
// backed by SQLite for single-user installs or PostgreSQL.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/clinical-case-trainer/internal/domain"
)

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const reasoningColumns = `id, attempt_id, student_id, case_id,
	problem_representation, differential_diagnoses,
	decision_justification, evidence_references,
	reasoning_score, score_breakdown, created_at, updated_at`

// reasoningRow holds the serialized sections of a record
type reasoningRow struct {
	problemRepresentation interface{}
	differentials         interface{}
	justification         interface{}
	references            interface{}
	score                 interface{}
	breakdown             interface{}
}

// encodeReasoning serializes the JSON sections. Absent sections become NULL.
func encodeReasoning(r *domain.ClinicalReasoning) (reasoningRow, error) {
	var row reasoningRow
	var err error

	if r.ProblemRepresentation != nil {
		if row.problemRepresentation, err = marshalJSON(r.ProblemRepresentation); err != nil {
			return row, fmt.Errorf("failed to marshal problem representation: %w", err)
		}
	}
	if r.DifferentialDiagnoses != nil {
		if row.differentials, err = marshalJSON(r.DifferentialDiagnoses); err != nil {
			return row, fmt.Errorf("failed to marshal differential diagnoses: %w", err)
		}
	}
	if r.EvidenceReferences != nil {
		if row.references, err = marshalJSON(r.EvidenceReferences); err != nil {
			return row, fmt.Errorf("failed to marshal evidence references: %w", err)
		}
	}
	if r.ScoreBreakdown != nil {
		if row.breakdown, err = marshalJSON(r.ScoreBreakdown); err != nil {
			return row, fmt.Errorf("failed to marshal score breakdown: %w", err)
		}
	}
	if r.DecisionJustification != nil {
		row.justification = *r.DecisionJustification
	}
	if r.ReasoningScore != nil {
		row.score = *r.ReasoningScore
	}
	return row, nil
}

func marshalJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// scanReasoning scans a row selected with reasoningColumns
func scanReasoning(s scanner) (*domain.ClinicalReasoning, error) {
	r := &domain.ClinicalReasoning{}
	var pr, ddx, justification, refs, score, breakdown sql.NullString

	err := s.Scan(
		&r.ID, &r.AttemptID, &r.StudentID, &r.CaseID,
		&pr, &ddx, &justification, &refs,
		&score, &breakdown, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if pr.Valid {
		r.ProblemRepresentation = &domain.ProblemRepresentation{}
		if err := json.Unmarshal([]byte(pr.String), r.ProblemRepresentation); err != nil {
			return nil, fmt.Errorf("failed to unmarshal problem representation: %w", err)
		}
	}
	if ddx.Valid {
		r.DifferentialDiagnoses = []domain.DifferentialDiagnosis{}
		if err := json.Unmarshal([]byte(ddx.String), &r.DifferentialDiagnoses); err != nil {
			return nil, fmt.Errorf("failed to unmarshal differential diagnoses: %w", err)
		}
	}
	if refs.Valid {
		r.EvidenceReferences = []domain.EvidenceReference{}
		if err := json.Unmarshal([]byte(refs.String), &r.EvidenceReferences); err != nil {
			return nil, fmt.Errorf("failed to unmarshal evidence references: %w", err)
		}
	}
	if breakdown.Valid {
		r.ScoreBreakdown = &domain.ReasoningScoreBreakdown{}
		if err := json.Unmarshal([]byte(breakdown.String), r.ScoreBreakdown); err != nil {
			return nil, fmt.Errorf("failed to unmarshal score breakdown: %w", err)
		}
	}
	if justification.Valid {
		r.DecisionJustification = &justification.String
	}
	if score.Valid {
		r.ReasoningScore = &score.String
	}
	return r, nil
}
