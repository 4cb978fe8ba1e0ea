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

// AttemptRepository persists attempts, quiz submissions and reflections
type AttemptRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAttemptRepository creates a new attempt repository
func NewAttemptRepository(db *pgxpool.Pool, logger *logrus.Logger) *AttemptRepository {
	return &AttemptRepository{
		db:  db,
		log: logger,
	}
}

// CreateAttempt inserts a new attempt and sets its ID
func (r *AttemptRepository) CreateAttempt(ctx context.Context, attempt *domain.Attempt) error {
	query := `
		INSERT INTO student_case_attempts (student_id, case_id, started_at, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		attempt.StudentID,
		attempt.CaseID,
		attempt.StartedAt,
		string(attempt.Status),
	).Scan(&attempt.ID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"student_id": attempt.StudentID,
			"case_id":    attempt.CaseID,
			"error":      err,
		}).Error("Failed to create attempt")
		return fmt.Errorf("creating attempt: %w", err)
	}
	return nil
}

// CreateQuizSubmission inserts a quiz submission and sets its ID
func (r *AttemptRepository) CreateQuizSubmission(ctx context.Context, submission *domain.QuizSubmission) error {
	answers, err := json.Marshal(submission.Answers)
	if err != nil {
		return fmt.Errorf("marshaling quiz answers: %w", err)
	}

	query := `
		INSERT INTO quiz_submissions (
			attempt_id, student_id, case_id, answers, score, max_score, submitted_at
		) VALUES (
			$1, $2, $3, $4, $5::text::numeric, $6, $7
		)
		RETURNING id`

	err = r.db.QueryRow(ctx, query,
		submission.AttemptID,
		submission.StudentID,
		submission.CaseID,
		answers,
		submission.Score,
		submission.MaxScore,
		submission.SubmittedAt,
	).Scan(&submission.ID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"attempt_id": submission.AttemptID,
			"error":      err,
		}).Error("Failed to create quiz submission")
		return fmt.Errorf("creating quiz submission: %w", err)
	}
	return nil
}

// CompleteAttempt marks an attempt completed
func (r *AttemptRepository) CompleteAttempt(ctx context.Context, attemptID int64, completedAt time.Time, timeSpentSeconds *int) error {
	query := `
		UPDATE student_case_attempts
		SET status = $1, completed_at = $2, time_spent_seconds = $3
		WHERE id = $4`

	tag, err := r.db.Exec(ctx, query, string(domain.AttemptCompleted), completedAt, timeSpentSeconds, attemptID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"attempt_id": attemptID,
			"error":      err,
		}).Error("Failed to complete attempt")
		return fmt.Errorf("completing attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attempt %d: %w", attemptID, domain.ErrNotFound)
	}
	return nil
}

const reflectionColumns = `id, student_id, case_id, attempt_id,
	COALESCE(what, ''), COALESCE(so_what, ''), COALESCE(now_what, ''),
	created_at, updated_at`

func scanReflection(row pgx.Row) (*domain.Reflection, error) {
	var reflection domain.Reflection
	err := row.Scan(
		&reflection.ID,
		&reflection.StudentID,
		&reflection.CaseID,
		&reflection.AttemptID,
		&reflection.What,
		&reflection.SoWhat,
		&reflection.NowWhat,
		&reflection.CreatedAt,
		&reflection.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &reflection, nil
}

// FindReflection returns the reflection of a student on a case, or nil
func (r *AttemptRepository) FindReflection(ctx context.Context, studentID int64, caseID string) (*domain.Reflection, error) {
	query := `SELECT ` + reflectionColumns + `
		FROM student_reflections
		WHERE student_id = $1 AND case_id = $2
		LIMIT 1`

	reflection, err := scanReflection(r.db.QueryRow(ctx, query, studentID, caseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting reflection: %w", err)
	}
	return reflection, nil
}

// CreateReflection inserts a reflection and sets its ID
func (r *AttemptRepository) CreateReflection(ctx context.Context, reflection *domain.Reflection) error {
	query := `
		INSERT INTO student_reflections (
			student_id, case_id, attempt_id, what, so_what, now_what, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		reflection.StudentID,
		reflection.CaseID,
		reflection.AttemptID,
		reflection.What,
		reflection.SoWhat,
		reflection.NowWhat,
		reflection.CreatedAt,
		reflection.UpdatedAt,
	).Scan(&reflection.ID)
	if err != nil {
		return fmt.Errorf("creating reflection: %w", err)
	}
	return nil
}

// UpdateReflection overwrites the text of an existing reflection
func (r *AttemptRepository) UpdateReflection(ctx context.Context, reflection *domain.Reflection) error {
	query := `
		UPDATE student_reflections
		SET attempt_id = $1, what = $2, so_what = $3, now_what = $4, updated_at = $5
		WHERE id = $6`

	tag, err := r.db.Exec(ctx, query,
		reflection.AttemptID,
		reflection.What,
		reflection.SoWhat,
		reflection.NowWhat,
		reflection.UpdatedAt,
		reflection.ID,
	)
	if err != nil {
		return fmt.Errorf("updating reflection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reflection %d: %w", reflection.ID, domain.ErrNotFound)
	}
	return nil
}

// ListAttemptSummaries returns a student's attempts joined with their quiz
// scores, newest first
func (r *AttemptRepository) ListAttemptSummaries(ctx context.Context, studentID int64) ([]domain.AttemptSummary, error) {
	query := `
		SELECT a.id, a.case_id, a.status, a.started_at, a.completed_at,
			   a.time_spent_seconds, q.score::text, q.max_score
		FROM student_case_attempts a
		LEFT JOIN quiz_submissions q ON q.attempt_id = a.id
		WHERE a.student_id = $1
		ORDER BY a.started_at DESC`

	rows, err := r.db.Query(ctx, query, studentID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"student_id": studentID,
			"error":      err,
		}).Error("Failed to list attempts")
		return nil, fmt.Errorf("listing attempts: %w", err)
	}
	defer rows.Close()

	var summaries []domain.AttemptSummary
	for rows.Next() {
		var s domain.AttemptSummary
		var status string
		if err := rows.Scan(
			&s.AttemptID,
			&s.CaseID,
			&status,
			&s.StartedAt,
			&s.CompletedAt,
			&s.TimeSpentSeconds,
			&s.Score,
			&s.MaxScore,
		); err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		s.Status = domain.AttemptStatus(status)
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// ListReflections returns every reflection of a student
func (r *AttemptRepository) ListReflections(ctx context.Context, studentID int64) ([]domain.Reflection, error) {
	query := `SELECT ` + reflectionColumns + `
		FROM student_reflections
		WHERE student_id = $1`

	rows, err := r.db.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("listing reflections: %w", err)
	}
	defer rows.Close()

	var reflections []domain.Reflection
	for rows.Next() {
		reflection, err := scanReflection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reflection: %w", err)
		}
		reflections = append(reflections, *reflection)
	}

	return reflections, rows.Err()
}
