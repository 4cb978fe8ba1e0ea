package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/clinical-case-trainer/internal/domain"
)

// CaseRepository persists the clinical case catalogue
type CaseRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewCaseRepository creates a new case repository
func NewCaseRepository(db *pgxpool.Pool, logger *logrus.Logger) *CaseRepository {
	return &CaseRepository{
		db:  db,
		log: logger,
	}
}

const caseColumns = `id, case_id, department, skdi_diagnosis,
	COALESCE(icd10, ''), COALESCE(skdi_level, ''), COALESCE(difficulty, ''),
	case_data, created_at`

func scanCase(row pgx.Row) (*domain.Case, error) {
	var c domain.Case
	var data []byte
	err := row.Scan(
		&c.ID,
		&c.CaseID,
		&c.Department,
		&c.SKDIDiagnosis,
		&c.ICD10,
		&c.SKDILevel,
		&c.Difficulty,
		&data,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Data = data
	return &c, nil
}

// ListCases returns the cases matching every non-empty filter field
func (r *CaseRepository) ListCases(ctx context.Context, filter domain.CaseFilter) ([]*domain.Case, error) {
	var (
		conditions []string
		args       []interface{}
	)

	if filter.Department != "" {
		args = append(args, filter.Department)
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(case_id ILIKE $%d OR skdi_diagnosis ILIKE $%d)", len(args), len(args)))
	}
	if filter.SKDILevel != "" {
		args = append(args, filter.SKDILevel)
		conditions = append(conditions, fmt.Sprintf("skdi_level = $%d", len(args)))
	}

	query := "SELECT " + caseColumns + " FROM cases"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY case_id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"filter": filter,
			"error":  err,
		}).Error("Failed to list cases")
		return nil, fmt.Errorf("listing cases: %w", err)
	}
	defer rows.Close()

	var cases []*domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning case: %w", err)
		}
		cases = append(cases, c)
	}

	return cases, rows.Err()
}

// GetCase retrieves a case by its catalogue ID
func (r *CaseRepository) GetCase(ctx context.Context, caseID string) (*domain.Case, error) {
	query := "SELECT " + caseColumns + " FROM cases WHERE case_id = $1"

	c, err := scanCase(r.db.QueryRow(ctx, query, caseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("case not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting case: %w", err)
	}
	return c, nil
}

// ListDepartments returns the distinct departments of the catalogue
func (r *CaseRepository) ListDepartments(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, "SELECT DISTINCT department FROM cases ORDER BY department")
	if err != nil {
		r.log.WithError(err).Error("Failed to list departments")
		return nil, fmt.Errorf("listing departments: %w", err)
	}
	defer rows.Close()

	departments, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning departments: %w", err)
	}
	return departments, nil
}

// UpsertCase inserts a case or replaces the stored one with the same case ID
func (r *CaseRepository) UpsertCase(ctx context.Context, c *domain.Case) error {
	query := `
		INSERT INTO cases (
			case_id, department, skdi_diagnosis, icd10, skdi_level, difficulty, case_data
		) VALUES (
			$1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7
		)
		ON CONFLICT (case_id) DO UPDATE SET
			department = EXCLUDED.department,
			skdi_diagnosis = EXCLUDED.skdi_diagnosis,
			icd10 = EXCLUDED.icd10,
			skdi_level = EXCLUDED.skdi_level,
			difficulty = EXCLUDED.difficulty,
			case_data = EXCLUDED.case_data
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		c.CaseID,
		c.Department,
		c.SKDIDiagnosis,
		c.ICD10,
		c.SKDILevel,
		c.Difficulty,
		[]byte(c.Data),
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"case_id": c.CaseID,
			"error":   err,
		}).Error("Failed to upsert case")
		return fmt.Errorf("upserting case: %w", err)
	}
	return nil
}
