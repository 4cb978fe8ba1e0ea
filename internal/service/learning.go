package service

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-case-trainer/internal/domain"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

// LearningService tracks attempts, quiz submissions, reflections and the
// progress derived from them
type LearningService struct {
	store  domain.AttemptStore
	logger *logrus.Logger
	now    func() time.Time
}

// NewLearningService creates a new learning service. now may be nil.
func NewLearningService(store domain.AttemptStore, logger *logrus.Logger, now func() time.Time) *LearningService {
	if now == nil {
		now = time.Now
	}
	return &LearningService{store: store, logger: logger, now: now}
}

// StartAttempt opens a new in-progress attempt
func (s *LearningService) StartAttempt(ctx context.Context, studentID int64, caseID string) (*domain.Attempt, error) {
	attempt := &domain.Attempt{
		StudentID: studentID,
		CaseID:    caseID,
		StartedAt: s.now(),
		Status:    domain.AttemptInProgress,
	}

	if err := s.store.CreateAttempt(ctx, attempt); err != nil {
		s.logger.WithFields(logrus.Fields{
			"student_id": studentID,
			"case_id":    caseID,
		}).WithError(err).Error("Error starting case attempt")
		return nil, domain.NewOperationError("start case attempt", err)
	}
	return attempt, nil
}

// SubmitQuiz stores the quiz answers and completes the attempt
func (s *LearningService) SubmitQuiz(ctx context.Context, input *domain.SubmitQuizInput) (*domain.QuizSubmission, error) {
	fields := logrus.Fields{
		"attempt_id": input.AttemptID,
		"student_id": input.StudentID,
		"case_id":    input.CaseID,
	}

	now := s.now()
	submission := &domain.QuizSubmission{
		AttemptID:   input.AttemptID,
		StudentID:   input.StudentID,
		CaseID:      input.CaseID,
		Answers:     input.Answers,
		Score:       strconv.FormatFloat(input.Score, 'f', -1, 64),
		MaxScore:    input.MaxScore,
		SubmittedAt: now,
	}
	if submission.Answers == nil {
		submission.Answers = map[string]int{}
	}

	if err := s.store.CreateQuizSubmission(ctx, submission); err != nil {
		s.logger.WithFields(fields).WithError(err).Error("Error submitting quiz")
		return nil, domain.NewOperationError("submit quiz", err)
	}

	var timeSpent *int
	if input.TimeSpentSeconds != nil && *input.TimeSpentSeconds != 0 {
		rounded := roundHalfUp(*input.TimeSpentSeconds)
		timeSpent = &rounded
	}

	if err := s.store.CompleteAttempt(ctx, input.AttemptID, now, timeSpent); err != nil {
		s.logger.WithFields(fields).WithError(err).Error("Error submitting quiz")
		return nil, domain.NewOperationError("submit quiz", err)
	}

	s.logger.WithFields(fields).WithField("score", submission.Score).Info("Quiz submitted")
	return submission, nil
}

// SaveReflection creates or overwrites the reflection of a student on a case
func (s *LearningService) SaveReflection(ctx context.Context, reflection *domain.Reflection) (*domain.Reflection, error) {
	logger := s.logger.WithFields(logrus.Fields{
		"student_id": reflection.StudentID,
		"case_id":    reflection.CaseID,
	})

	existing, err := s.store.FindReflection(ctx, reflection.StudentID, reflection.CaseID)
	if err != nil {
		logger.WithError(err).Error("Error saving reflection")
		return nil, domain.NewOperationError("save reflection", err)
	}

	now := s.now()
	if existing != nil {
		existing.What = reflection.What
		existing.SoWhat = reflection.SoWhat
		existing.NowWhat = reflection.NowWhat
		existing.AttemptID = reflection.AttemptID
		existing.UpdatedAt = now
		if err := s.store.UpdateReflection(ctx, existing); err != nil {
			logger.WithError(err).Error("Error saving reflection")
			return nil, domain.NewOperationError("save reflection", err)
		}
		return existing, nil
	}

	created := *reflection
	created.CreatedAt = now
	created.UpdatedAt = now
	if err := s.store.CreateReflection(ctx, &created); err != nil {
		logger.WithError(err).Error("Error saving reflection")
		return nil, domain.NewOperationError("save reflection", err)
	}
	return &created, nil
}

// GetStudentProgress groups a student's attempts by case
func (s *LearningService) GetStudentProgress(ctx context.Context, studentID int64) (map[string]*domain.CaseProgress, error) {
	attempts, reflections, err := s.load(ctx, studentID)
	if err != nil {
		s.logger.WithField("student_id", studentID).WithError(err).Error("Error fetching student progress")
		return nil, domain.NewOperationError("fetch student progress", err)
	}
	return AggregateProgress(attempts, reflections), nil
}

// GetDashboardStats summarises a student's activity
func (s *LearningService) GetDashboardStats(ctx context.Context, studentID int64) (*domain.DashboardStats, error) {
	attempts, reflections, err := s.load(ctx, studentID)
	if err != nil {
		s.logger.WithField("student_id", studentID).WithError(err).Error("Error fetching dashboard stats")
		return nil, domain.NewOperationError("fetch dashboard statistics", err)
	}
	stats := ComputeDashboardStats(attempts, len(reflections), s.now())
	return &stats, nil
}

func (s *LearningService) load(ctx context.Context, studentID int64) ([]domain.AttemptSummary, []domain.Reflection, error) {
	attempts, err := s.store.ListAttemptSummaries(ctx, studentID)
	if err != nil {
		return nil, nil, err
	}
	reflections, err := s.store.ListReflections(ctx, studentID)
	if err != nil {
		return nil, nil, err
	}
	return attempts, reflections, nil
}

// AggregateProgress folds newest-first attempt rows into per-case progress.
// lastScore takes the value of the last scored row visited.
func AggregateProgress(attempts []domain.AttemptSummary, reflections []domain.Reflection) map[string]*domain.CaseProgress {
	progress := make(map[string]*domain.CaseProgress)

	for _, attempt := range attempts {
		p, ok := progress[attempt.CaseID]
		if !ok {
			p = &domain.CaseProgress{}
			progress[attempt.CaseID] = p
		}

		p.Attempts++

		if score, ok := parseScore(attempt.Score); ok {
			p.LastScore = score
			p.BestScore = math.Max(p.BestScore, score)
		}

		if attempt.CompletedAt != nil {
			if p.LastAttemptDate == nil || attempt.CompletedAt.After(*p.LastAttemptDate) {
				completed := *attempt.CompletedAt
				p.LastAttemptDate = &completed
			}
		}
	}

	for _, reflection := range reflections {
		p, ok := progress[reflection.CaseID]
		if !ok {
			continue
		}
		p.Reflection = &domain.ReflectionText{
			What:    reflection.What,
			SoWhat:  reflection.SoWhat,
			NowWhat: reflection.NowWhat,
		}
		if !reflection.UpdatedAt.IsZero() {
			p.ReflectionLastSaved = reflection.UpdatedAt.UTC().Format(isoMillis)
		}
	}

	return progress
}

// ComputeDashboardStats derives dashboard statistics relative to now
func ComputeDashboardStats(attempts []domain.AttemptSummary, reflectionCount int, now time.Time) domain.DashboardStats {
	stats := domain.DashboardStats{
		TotalAttempts:    len(attempts),
		TotalReflections: reflectionCount,
	}

	completed := make(map[string]struct{})
	scoreSum, scored := 0.0, 0
	withTime := 0

	for _, attempt := range attempts {
		if attempt.Status == domain.AttemptCompleted {
			completed[attempt.CaseID] = struct{}{}
		}

		if score, ok := parseScore(attempt.Score); ok {
			scoreSum += score
			scored++
		}

		stats.TotalStudySeconds += studySeconds(attempt)

		if attempt.CompletedAt != nil && sameDay(attempt.CompletedAt.In(now.Location()), now) {
			stats.TimeSpentTodaySeconds += studySeconds(attempt)
		}

		if (attempt.TimeSpentSeconds != nil && *attempt.TimeSpentSeconds != 0) || attempt.CompletedAt != nil {
			withTime++
		}
	}

	stats.CompletedCases = len(completed)
	if scored > 0 {
		stats.AverageScore = roundHalfUp(scoreSum / float64(scored))
	}
	if withTime > 0 {
		stats.AverageTimeSeconds = roundHalfUp(float64(stats.TotalStudySeconds) / float64(withTime))
	}

	return stats
}

// studySeconds prefers the recorded time and falls back to the wall clock span
func studySeconds(attempt domain.AttemptSummary) int {
	if attempt.TimeSpentSeconds != nil {
		return *attempt.TimeSpentSeconds
	}
	if attempt.CompletedAt == nil || attempt.StartedAt.IsZero() {
		return 0
	}
	elapsed := float64(attempt.CompletedAt.Sub(attempt.StartedAt).Milliseconds()) / 1000
	return max(0, roundHalfUp(elapsed))
}

func parseScore(score *string) (float64, bool) {
	if score == nil || *score == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(*score, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
