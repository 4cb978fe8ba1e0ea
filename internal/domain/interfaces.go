package domain

import (
	"context"
	"time"
)

// ReasoningStore persists one reasoning record per attempt.
// FindByAttempt returns nil, nil when no record exists.
type ReasoningStore interface {
	FindByAttempt(ctx context.Context, attemptID int64) (*ClinicalReasoning, error)
	Insert(ctx context.Context, record *ClinicalReasoning) error
	Update(ctx context.Context, record *ClinicalReasoning) error
	UpdateScore(ctx context.Context, id int64, total string, breakdown ReasoningScoreBreakdown) error
	Close() error
}

// AttemptStore persists attempts, quiz submissions and reflections
type AttemptStore interface {
	CreateAttempt(ctx context.Context, attempt *Attempt) error
	CreateQuizSubmission(ctx context.Context, submission *QuizSubmission) error
	CompleteAttempt(ctx context.Context, attemptID int64, completedAt time.Time, timeSpentSeconds *int) error
	FindReflection(ctx context.Context, studentID int64, caseID string) (*Reflection, error)
	CreateReflection(ctx context.Context, reflection *Reflection) error
	UpdateReflection(ctx context.Context, reflection *Reflection) error
	ListAttemptSummaries(ctx context.Context, studentID int64) ([]AttemptSummary, error)
	ListReflections(ctx context.Context, studentID int64) ([]Reflection, error)
}

// CaseStore persists the clinical case catalogue
type CaseStore interface {
	ListCases(ctx context.Context, filter CaseFilter) ([]*Case, error)
	GetCase(ctx context.Context, caseID string) (*Case, error)
	ListDepartments(ctx context.Context) ([]string, error)
	UpsertCase(ctx context.Context, c *Case) error
}

// CaseCache caches catalogue lookups. A miss is reported as found == false.
type CaseCache interface {
	GetCase(ctx context.Context, caseID string) (c *Case, found bool, err error)
	SetCase(ctx context.Context, c *Case) error
	Invalidate(ctx context.Context, caseID string) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetCacheConfig() *CacheConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
