package domain

import (
	"time"
)

// Acuity qualifies the temporal course of the presenting problem
type Acuity string

const (
	AcuityUnset    Acuity = ""
	AcuityAcute    Acuity = "acute"
	AcuitySubacute Acuity = "subacute"
	AcuityChronic  Acuity = "chronic"
)

// Severity qualifies how ill the patient is
type Severity string

const (
	SeverityUnset    Severity = ""
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Likelihood is the 5-point ordinal scale a student assigns to a differential
type Likelihood string

const (
	LikelihoodVeryLow  Likelihood = "very-low"
	LikelihoodLow      Likelihood = "low"
	LikelihoodModerate Likelihood = "moderate"
	LikelihoodHigh     Likelihood = "high"
	LikelihoodVeryHigh Likelihood = "very-high"
)

// IsValid reports whether the acuity is one of the known qualifiers
func (a Acuity) IsValid() bool {
	switch a {
	case AcuityUnset, AcuityAcute, AcuitySubacute, AcuityChronic:
		return true
	default:
		return false
	}
}

// IsValid reports whether the severity is one of the known qualifiers
func (s Severity) IsValid() bool {
	switch s {
	case SeverityUnset, SeverityMild, SeverityModerate, SeveritySevere:
		return true
	default:
		return false
	}
}

// ProblemRepresentation is the structured one-line summary of a case
type ProblemRepresentation struct {
	Summary        string   `json:"summary"`
	Demographics   string   `json:"demographics"`
	ChiefComplaint string   `json:"chiefComplaint"`
	Timeline       string   `json:"timeline"`
	Context        string   `json:"context"`
	Acuity         Acuity   `json:"acuity"`
	Severity       Severity `json:"severity"`
	Pattern        string   `json:"pattern"`
}

// DifferentialDiagnosis is one ranked candidate diagnosis with evidence for and against
type DifferentialDiagnosis struct {
	ID                 string     `json:"id"`
	Diagnosis          string     `json:"diagnosis"`
	Likelihood         Likelihood `json:"likelihood"`
	SupportingEvidence []string   `json:"supportingEvidence"`
	AgainstEvidence    []string   `json:"againstEvidence"`
	Rank               int        `json:"rank"`
}

// EvidenceReference cites a source backing the decision justification
type EvidenceReference struct {
	Source      string `json:"source"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description"`
}

// ReasoningScoreBreakdown is the derived completeness score of a reasoning record
type ReasoningScoreBreakdown struct {
	ProblemRep    int `json:"problemRep"`
	DDx           int `json:"ddx"`
	Justification int `json:"justification"`
	Total         int `json:"total"`
}

// ClinicalReasoning is the stored reasoning workspace of a single attempt.
// Nil sections were never provided.
type ClinicalReasoning struct {
	ID                    int64                    `json:"id"`
	AttemptID             int64                    `json:"attemptId"`
	StudentID             int64                    `json:"studentId"`
	CaseID                string                   `json:"caseId"`
	ProblemRepresentation *ProblemRepresentation   `json:"problemRepresentation"`
	DifferentialDiagnoses []DifferentialDiagnosis  `json:"differentialDiagnoses"`
	DecisionJustification *string                  `json:"decisionJustification"`
	EvidenceReferences    []EvidenceReference      `json:"evidenceReferences"`
	ReasoningScore        *string                  `json:"reasoningScore"`
	ScoreBreakdown        *ReasoningScoreBreakdown `json:"scoreBreakdown"`
	CreatedAt             time.Time                `json:"createdAt"`
	UpdatedAt             time.Time                `json:"updatedAt"`
}

// SaveReasoningInput carries a partial update of a reasoning record.
// A nil section is left as stored; a non-nil section replaces the stored one.
// A provided empty justification clears the stored one.
type SaveReasoningInput struct {
	AttemptID             int64                   `json:"attemptId"`
	StudentID             int64                   `json:"studentId"`
	CaseID                string                  `json:"caseId"`
	ProblemRepresentation *ProblemRepresentation  `json:"problemRepresentation,omitempty"`
	DifferentialDiagnoses []DifferentialDiagnosis `json:"differentialDiagnoses,omitempty"`
	DecisionJustification *string                 `json:"decisionJustification,omitempty"`
	EvidenceReferences    []EvidenceReference     `json:"evidenceReferences,omitempty"`
}

// Apply merges the provided sections of the input into the record
func (in *SaveReasoningInput) Apply(record *ClinicalReasoning) {
	if in.ProblemRepresentation != nil {
		pr := *in.ProblemRepresentation
		record.ProblemRepresentation = &pr
	}
	if in.DifferentialDiagnoses != nil {
		record.DifferentialDiagnoses = in.DifferentialDiagnoses
	}
	if in.DecisionJustification != nil {
		if justification := *in.DecisionJustification; justification != "" {
			record.DecisionJustification = &justification
		} else {
			record.DecisionJustification = nil
		}
	}
	if in.EvidenceReferences != nil {
		record.EvidenceReferences = in.EvidenceReferences
	}
}
