package domain

import (
	"encoding/json"
	"time"
)

// AttemptStatus tracks the lifecycle of a case attempt
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// Case is one entry of the clinical case catalogue. Data holds the full case
// document exactly as imported.
type Case struct {
	ID            int64           `json:"id,omitempty"`
	CaseID        string          `json:"case_id"`
	Department    string          `json:"department"`
	SKDIDiagnosis string          `json:"skdi_diagnosis"`
	ICD10         string          `json:"icd10,omitempty"`
	SKDILevel     string          `json:"skdi_level,omitempty"`
	Difficulty    string          `json:"difficulty,omitempty"`
	Data          json.RawMessage `json:"data"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CaseFilter narrows a catalogue listing. Empty or "all" disables a filter.
type CaseFilter struct {
	Department string `form:"department" json:"department,omitempty"`
	Search     string `form:"search" json:"search,omitempty"`
	SKDILevel  string `form:"skdiLevel" json:"skdiLevel,omitempty"`
}

// Attempt is one student's timed engagement with one case
type Attempt struct {
	ID               int64         `json:"id"`
	StudentID        int64         `json:"studentId"`
	CaseID           string        `json:"caseId"`
	StartedAt        time.Time     `json:"startedAt"`
	CompletedAt      *time.Time    `json:"completedAt"`
	TimeSpentSeconds *int          `json:"timeSpentSeconds"`
	Status           AttemptStatus `json:"status"`
}

// QuizSubmission stores the answers given at the end of an attempt
type QuizSubmission struct {
	ID          int64          `json:"id"`
	AttemptID   int64          `json:"attemptId"`
	StudentID   int64          `json:"studentId"`
	CaseID      string         `json:"caseId"`
	Answers     map[string]int `json:"answers"`
	Score       string         `json:"score"`
	MaxScore    int            `json:"maxScore"`
	SubmittedAt time.Time      `json:"submittedAt"`
}

// SubmitQuizInput is the payload of a quiz submission
type SubmitQuizInput struct {
	AttemptID        int64          `json:"attemptId"`
	StudentID        int64          `json:"studentId"`
	CaseID           string         `json:"caseId"`
	Answers          map[string]int `json:"answers"`
	Score            float64        `json:"score"`
	MaxScore         int            `json:"maxScore"`
	TimeSpentSeconds *float64       `json:"timeSpentSeconds,omitempty"`
}

// Reflection holds the What / So what / Now what reflection for a case
type Reflection struct {
	ID        int64     `json:"id"`
	StudentID int64     `json:"studentId"`
	CaseID    string    `json:"caseId"`
	AttemptID *int64    `json:"attemptId"`
	What      string    `json:"what"`
	SoWhat    string    `json:"soWhat"`
	NowWhat   string    `json:"nowWhat"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AttemptSummary is an attempt joined with its quiz score, if any
type AttemptSummary struct {
	AttemptID        int64
	CaseID           string
	Status           AttemptStatus
	StartedAt        time.Time
	CompletedAt      *time.Time
	TimeSpentSeconds *int
	Score            *string
	MaxScore         *int
}

// ReflectionText is the reflection as reported in progress
type ReflectionText struct {
	What    string `json:"what"`
	SoWhat  string `json:"so_what"`
	NowWhat string `json:"now_what"`
}

// CaseProgress aggregates a student's attempts at one case
type CaseProgress struct {
	Attempts            int             `json:"attempts"`
	LastScore           float64         `json:"lastScore"`
	BestScore           float64         `json:"bestScore"`
	LastAttemptDate     *time.Time      `json:"lastAttemptDate"`
	Reflection          *ReflectionText `json:"reflection,omitempty"`
	ReflectionLastSaved string          `json:"reflection_last_saved,omitempty"`
}

// DashboardStats summarises a student's overall activity
type DashboardStats struct {
	TotalAttempts         int `json:"totalAttempts"`
	CompletedCases        int `json:"completedCases"`
	AverageScore          int `json:"averageScore"`
	TotalReflections      int `json:"totalReflections"`
	TotalStudySeconds     int `json:"totalStudySeconds"`
	AverageTimeSeconds    int `json:"averageTimeSeconds"`
	TimeSpentTodaySeconds int `json:"timeSpentTodaySeconds"`
}
