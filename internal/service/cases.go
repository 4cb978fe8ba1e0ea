package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clinical-case-trainer/internal/domain"
	"github.com/clinical-case-trainer/internal/metrics"
)

// CaseService serves the clinical case catalogue
type CaseService struct {
	store   domain.CaseStore
	cache   domain.CaseCache
	logger  *logrus.Logger
	metrics *metrics.Manager
}

// NewCaseService creates a case service. cache and m may be nil.
func NewCaseService(store domain.CaseStore, cache domain.CaseCache, logger *logrus.Logger, m *metrics.Manager) *CaseService {
	return &CaseService{
		store:   store,
		cache:   cache,
		logger:  logger,
		metrics: m,
	}
}

// ListCases returns the cases matching filter
func (s *CaseService) ListCases(ctx context.Context, filter domain.CaseFilter) ([]*domain.Case, error) {
	filter = NormalizeCaseFilter(filter)

	cases, err := s.store.ListCases(ctx, filter)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"department": filter.Department,
			"search":     filter.Search,
			"skdi_level": filter.SKDILevel,
		}).WithError(err).Error("Error fetching cases")
		return nil, domain.NewOperationError("fetch cases", err)
	}
	return cases, nil
}

// ListDepartments returns the department filter options, "all" first
func (s *CaseService) ListDepartments(ctx context.Context) ([]string, error) {
	departments, err := s.store.ListDepartments(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Error fetching departments")
		return nil, domain.NewOperationError("fetch departments", err)
	}
	return append([]string{"all"}, departments...), nil
}

// GetCase returns one case, reading through the cache
func (s *CaseService) GetCase(ctx context.Context, caseID string) (*domain.Case, error) {
	logger := s.logger.WithField("case_id", caseID)

	if s.cache != nil {
		c, found, err := s.cache.GetCase(ctx, caseID)
		switch {
		case err != nil:
			logger.WithError(err).Warn("Case cache lookup failed")
			s.metrics.RecordCacheLookup(metrics.CacheError)
		case found:
			s.metrics.RecordCacheLookup(metrics.CacheHit)
			return c, nil
		default:
			s.metrics.RecordCacheLookup(metrics.CacheMiss)
		}
	}

	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.WithError(err).Error("Error fetching case")
		}
		return nil, domain.NewOperationError("fetch case", err)
	}

	if s.cache != nil {
		if err := s.cache.SetCase(ctx, c); err != nil {
			logger.WithError(err).Warn("Failed to cache case")
		}
	}
	return c, nil
}

// ImportCases loads every *.json file in dir and upserts the cases it holds.
// A file may contain a single case document or an array of them.
func (s *CaseService) ImportCases(ctx context.Context, dir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("failed to list case files: %w", err)
	}
	sort.Strings(files)

	imported := 0
	for _, file := range files {
		cases, err := ReadCaseFile(file)
		if err != nil {
			return imported, err
		}

		for _, c := range cases {
			if err := s.store.UpsertCase(ctx, c); err != nil {
				s.logger.WithFields(logrus.Fields{
					"file":    file,
					"case_id": c.CaseID,
				}).WithError(err).Error("Error importing case")
				return imported, domain.NewOperationError("import cases", err)
			}
			if s.cache != nil {
				if err := s.cache.Invalidate(ctx, c.CaseID); err != nil {
					s.logger.WithField("case_id", c.CaseID).WithError(err).Warn("Failed to invalidate cached case")
				}
			}
			imported++
		}

		s.logger.WithFields(logrus.Fields{
			"file":  filepath.Base(file),
			"cases": len(cases),
		}).Info("Imported case file")
	}

	return imported, nil
}

// NormalizeCaseFilter clears filters set to "all" and trims whitespace
func NormalizeCaseFilter(filter domain.CaseFilter) domain.CaseFilter {
	norm := func(v string) string {
		v = strings.TrimSpace(v)
		if strings.EqualFold(v, "all") {
			return ""
		}
		return v
	}
	return domain.CaseFilter{
		Department: norm(filter.Department),
		Search:     strings.TrimSpace(filter.Search),
		SKDILevel:  norm(filter.SKDILevel),
	}
}

// caseHeader holds the indexed columns of a case document
type caseHeader struct {
	CaseID        string `json:"case_id"`
	Department    string `json:"department"`
	SKDIDiagnosis string `json:"skdi_diagnosis"`
	ICD10         string `json:"icd10"`
	SKDILevel     string `json:"skdi_level"`
	Difficulty    string `json:"difficulty"`
}

// ReadCaseFile parses a case corpus file
func ReadCaseFile(path string) ([]*domain.Case, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case file %s: %w", path, err)
	}

	var docs []json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, fmt.Errorf("failed to parse case file %s: %w", path, err)
		}
	} else {
		docs = []json.RawMessage{trimmed}
	}

	cases := make([]*domain.Case, 0, len(docs))
	for i, doc := range docs {
		var header caseHeader
		if err := json.Unmarshal(doc, &header); err != nil {
			return nil, fmt.Errorf("failed to parse case %d in %s: %w", i, path, err)
		}
		if header.CaseID == "" || header.Department == "" || header.SKDIDiagnosis == "" {
			return nil, fmt.Errorf("case %d in %s: %w", i, path,
				domain.NewValidationError("case_id", "case_id, department and skdi_diagnosis are required", header.CaseID))
		}
		cases = append(cases, &domain.Case{
			CaseID:        header.CaseID,
			Department:    header.Department,
			SKDIDiagnosis: header.SKDIDiagnosis,
			ICD10:         header.ICD10,
			SKDILevel:     header.SKDILevel,
			Difficulty:    header.Difficulty,
			Data:          doc,
		})
	}
	return cases, nil
}
