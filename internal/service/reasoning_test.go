package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-case-trainer/internal/domain"
	"github.com/clinical-case-trainer/internal/metrics"
)

// memReasoningStore is an in-memory domain.ReasoningStore for service tests
type memReasoningStore struct {
	mu        sync.Mutex
	nextID    int64
	byAttempt map[int64]*domain.ClinicalReasoning
	failWith  error
	inserts   int
	updates   int
}

func newMemReasoningStore() *memReasoningStore {
	return &memReasoningStore{byAttempt: make(map[int64]*domain.ClinicalReasoning)}
}

func (m *memReasoningStore) FindByAttempt(_ context.Context, attemptID int64) (*domain.ClinicalReasoning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	r, ok := m.byAttempt[attemptID]
	if !ok {
		return nil, nil
	}
	clone := *r
	return &clone, nil
}

func (m *memReasoningStore) Insert(_ context.Context, record *domain.ClinicalReasoning) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	record.ID = m.nextID
	clone := *record
	m.byAttempt[record.AttemptID] = &clone
	m.inserts++
	return nil
}

func (m *memReasoningStore) Update(_ context.Context, record *domain.ClinicalReasoning) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *record
	m.byAttempt[record.AttemptID] = &clone
	m.updates++
	return nil
}

func (m *memReasoningStore) UpdateScore(_ context.Context, id int64, total string, breakdown domain.ReasoningScoreBreakdown) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byAttempt {
		if r.ID == id {
			r.ReasoningScore = &total
			b := breakdown
			r.ScoreBreakdown = &b
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memReasoningStore) Close() error { return nil }

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestReasoningService_SaveCreatesRecord(t *testing.T) {
	store := newMemReasoningStore()
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := NewReasoningService(store, newTestLogger(), WithReasoningClock(func() time.Time { return fixed }))

	record, err := svc.SaveReasoning(context.Background(), &domain.SaveReasoningInput{
		AttemptID:             11,
		StudentID:             4,
		CaseID:                "IPD-PNEU-001",
		ProblemRepresentation: fullProblemRepresentation(),
	})
	require.NoError(t, err)

	assert.NotZero(t, record.ID)
	assert.Equal(t, "IPD-PNEU-001", record.CaseID)
	assert.Nil(t, record.DifferentialDiagnoses)
	assert.Nil(t, record.DecisionJustification)
	assert.Nil(t, record.EvidenceReferences)
	assert.Equal(t, fixed, record.CreatedAt)
	assert.Equal(t, 1, store.inserts)
}

func TestReasoningService_SaveMergesSections(t *testing.T) {
	store := newMemReasoningStore()
	svc := NewReasoningService(store, newTestLogger())
	ctx := context.Background()

	_, err := svc.SaveReasoning(ctx, &domain.SaveReasoningInput{
		AttemptID:             21,
		StudentID:             4,
		CaseID:                "IPD-PNEU-001",
		ProblemRepresentation: fullProblemRepresentation(),
	})
	require.NoError(t, err)

	justification := "Focal crackles with fever favour pneumonia over bronchitis."
	second, err := svc.SaveReasoning(ctx, &domain.SaveReasoningInput{
		AttemptID:             21,
		StudentID:             4,
		CaseID:                "IPD-PNEU-001",
		DecisionJustification: &justification,
		EvidenceReferences:    []domain.EvidenceReference{{Source: "BTS guideline"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, store.inserts)
	assert.Equal(t, 1, store.updates)
	require.NotNil(t, second.ProblemRepresentation)
	assert.Equal(t, "45 y/o male", second.ProblemRepresentation.Demographics)
	require.NotNil(t, second.DecisionJustification)
	assert.Equal(t, justification, *second.DecisionJustification)
	assert.Len(t, second.EvidenceReferences, 1)

	stored, err := svc.GetReasoning(ctx, 21)
	require.NoError(t, err)
	assert.Equal(t, second.ProblemRepresentation, stored.ProblemRepresentation)
	assert.Equal(t, second.EvidenceReferences, stored.EvidenceReferences)
}

func TestReasoningService_SaveAssignsDiagnosisIDs(t *testing.T) {
	svc := NewReasoningService(newMemReasoningStore(), newTestLogger())

	record, err := svc.SaveReasoning(context.Background(), &domain.SaveReasoningInput{
		AttemptID: 5,
		DifferentialDiagnoses: []domain.DifferentialDiagnosis{
			{Diagnosis: "Community-acquired pneumonia", Rank: 1},
			{ID: "keep-me", Diagnosis: "Acute bronchitis", Rank: 2},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, record.DifferentialDiagnoses[0].ID)
	assert.Equal(t, "keep-me", record.DifferentialDiagnoses[1].ID)
}

func TestReasoningService_GetMissingReturnsNil(t *testing.T) {
	svc := NewReasoningService(newMemReasoningStore(), newTestLogger())

	record, err := svc.GetReasoning(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestReasoningService_CalculateScore(t *testing.T) {
	store := newMemReasoningStore()
	m := metrics.NewManager()
	svc := NewReasoningService(store, newTestLogger(), WithReasoningMetrics(m))
	ctx := context.Background()

	_, err := svc.SaveReasoning(ctx, &domain.SaveReasoningInput{
		AttemptID:             31,
		ProblemRepresentation: &domain.ProblemRepresentation{Summary: strings.Repeat("s", 21)},
	})
	require.NoError(t, err)

	breakdown, err := svc.CalculateScore(ctx, 31)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasoningScoreBreakdown{ProblemRep: 25, Total: 8}, *breakdown)

	stored, err := svc.GetReasoning(ctx, 31)
	require.NoError(t, err)
	require.NotNil(t, stored.ReasoningScore)
	assert.Equal(t, "8", *stored.ReasoningScore)
	assert.Equal(t, breakdown, stored.ScoreBreakdown)

	// Editing and recomputing overwrites the previous breakdown
	_, err = svc.SaveReasoning(ctx, &domain.SaveReasoningInput{
		AttemptID:             31,
		ProblemRepresentation: fullProblemRepresentation(),
	})
	require.NoError(t, err)

	breakdown, err = svc.CalculateScore(ctx, 31)
	require.NoError(t, err)
	assert.Equal(t, 33, breakdown.Total)

	stored, err = svc.GetReasoning(ctx, 31)
	require.NoError(t, err)
	assert.Equal(t, "33", *stored.ReasoningScore)
}

func TestReasoningService_CalculateScoreNotFound(t *testing.T) {
	store := newMemReasoningStore()
	svc := NewReasoningService(store, newTestLogger())

	breakdown, err := svc.CalculateScore(context.Background(), 99)
	require.Error(t, err)
	assert.Nil(t, breakdown)
	assert.Equal(t, "failed to calculate reasoning score", err.Error())
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	assert.Equal(t, 0, store.inserts, "scoring must not create a record")
	record, err := svc.GetReasoning(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestReasoningService_StorageFailure(t *testing.T) {
	store := newMemReasoningStore()
	store.failWith = errors.New("connection refused")
	svc := NewReasoningService(store, newTestLogger())
	ctx := context.Background()

	_, err := svc.SaveReasoning(ctx, &domain.SaveReasoningInput{AttemptID: 1})
	require.Error(t, err)
	assert.Equal(t, "failed to save clinical reasoning", err.Error())
	assert.False(t, errors.Is(err, domain.ErrNotFound))

	_, err = svc.GetReasoning(ctx, 1)
	assert.EqualError(t, err, "failed to fetch clinical reasoning")

	_, err = svc.CalculateScore(ctx, 1)
	assert.EqualError(t, err, "failed to calculate reasoning score")
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}
