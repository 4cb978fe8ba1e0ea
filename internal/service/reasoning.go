package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clinical-case-trainer/internal/domain"
	"github.com/clinical-case-trainer/internal/metrics"
)

// Operation names used in the generic error messages
const (
	opSaveReasoning      = "save clinical reasoning"
	opGetReasoning       = "fetch clinical reasoning"
	opCalculateReasoning = "calculate reasoning score"
)

// ReasoningService implements the clinical reasoning workspace operations
type ReasoningService struct {
	store   domain.ReasoningStore
	logger  *logrus.Logger
	metrics *metrics.Manager
	now     func() time.Time
}

// ReasoningOption configures a ReasoningService
type ReasoningOption func(*ReasoningService)

// WithReasoningMetrics records saves and computations on m
func WithReasoningMetrics(m *metrics.Manager) ReasoningOption {
	return func(s *ReasoningService) {
		s.metrics = m
	}
}

// WithReasoningClock overrides the time source used for timestamps
func WithReasoningClock(now func() time.Time) ReasoningOption {
	return func(s *ReasoningService) {
		s.now = now
	}
}

// NewReasoningService creates a new reasoning service
func NewReasoningService(store domain.ReasoningStore, logger *logrus.Logger, opts ...ReasoningOption) *ReasoningService {
	s := &ReasoningService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveReasoning creates the reasoning record of an attempt or overwrites the
// sections provided in the input. Concurrent saves for the same attempt are
// last-write-wins.
func (s *ReasoningService) SaveReasoning(ctx context.Context, input *domain.SaveReasoningInput) (*domain.ClinicalReasoning, error) {
	fields := logrus.Fields{
		"attempt_id": input.AttemptID,
		"student_id": input.StudentID,
		"case_id":    input.CaseID,
	}

	assignDiagnosisIDs(input.DifferentialDiagnoses)

	existing, err := s.store.FindByAttempt(ctx, input.AttemptID)
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Error("Error saving clinical reasoning")
		s.metrics.RecordReasoningSave(metrics.OutcomeError, false)
		return nil, domain.NewOperationError(opSaveReasoning, err)
	}

	now := s.now()

	if existing != nil {
		input.Apply(existing)
		existing.UpdatedAt = now
		if err := s.store.Update(ctx, existing); err != nil {
			s.logger.WithFields(fields).WithError(err).Error("Error saving clinical reasoning")
			s.metrics.RecordReasoningSave(metrics.OutcomeError, false)
			return nil, domain.NewOperationError(opSaveReasoning, err)
		}

		s.logger.WithFields(fields).WithField("reasoning_id", existing.ID).Debug("Clinical reasoning updated")
		s.metrics.RecordReasoningSave(metrics.OutcomeSuccess, false)
		return existing, nil
	}

	record := &domain.ClinicalReasoning{
		AttemptID: input.AttemptID,
		StudentID: input.StudentID,
		CaseID:    input.CaseID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	input.Apply(record)

	if err := s.store.Insert(ctx, record); err != nil {
		s.logger.WithFields(fields).WithError(err).Error("Error saving clinical reasoning")
		s.metrics.RecordReasoningSave(metrics.OutcomeError, true)
		return nil, domain.NewOperationError(opSaveReasoning, err)
	}

	s.logger.WithFields(fields).WithField("reasoning_id", record.ID).Info("Clinical reasoning created")
	s.metrics.RecordReasoningSave(metrics.OutcomeSuccess, true)
	return record, nil
}

// GetReasoning returns the reasoning record of an attempt, or nil if none was saved
func (s *ReasoningService) GetReasoning(ctx context.Context, attemptID int64) (*domain.ClinicalReasoning, error) {
	record, err := s.store.FindByAttempt(ctx, attemptID)
	if err != nil {
		s.logger.WithField("attempt_id", attemptID).WithError(err).Error("Error fetching clinical reasoning")
		return nil, domain.NewOperationError(opGetReasoning, err)
	}
	return record, nil
}

// CalculateScore scores the stored reasoning of an attempt and overwrites the
// stored breakdown. It never creates a record.
func (s *ReasoningService) CalculateScore(ctx context.Context, attemptID int64) (*domain.ReasoningScoreBreakdown, error) {
	logger := s.logger.WithField("attempt_id", attemptID)

	record, err := s.store.FindByAttempt(ctx, attemptID)
	if err == nil && record == nil {
		err = fmt.Errorf("clinical reasoning for attempt %d: %w", attemptID, domain.ErrNotFound)
	}
	if err != nil {
		logger.WithError(err).Error("Error calculating reasoning score")
		s.metrics.RecordScoreComputation(outcomeOf(err), 0)
		return nil, domain.NewOperationError(opCalculateReasoning, err)
	}

	breakdown := CalculateReasoningScore(record)
	total := strconv.Itoa(breakdown.Total)

	if err := s.store.UpdateScore(ctx, record.ID, total, breakdown); err != nil {
		logger.WithError(err).Error("Error calculating reasoning score")
		s.metrics.RecordScoreComputation(outcomeOf(err), 0)
		return nil, domain.NewOperationError(opCalculateReasoning, err)
	}

	logger.WithFields(logrus.Fields{
		"problem_rep":   breakdown.ProblemRep,
		"ddx":           breakdown.DDx,
		"justification": breakdown.Justification,
		"total":         breakdown.Total,
	}).Info("Reasoning score calculated")
	s.metrics.RecordScoreComputation(metrics.OutcomeSuccess, breakdown.Total)

	return &breakdown, nil
}

// assignDiagnosisIDs gives new differentials an id so the UI can reorder them
func assignDiagnosisIDs(ddx []domain.DifferentialDiagnosis) {
	for i := range ddx {
		if ddx[i].ID == "" {
			ddx[i].ID = uuid.NewString()
		}
	}
}

func outcomeOf(err error) string {
	if errors.Is(err, domain.ErrNotFound) {
		return metrics.OutcomeNotFound
	}
	return metrics.OutcomeError
}
