package service

import (
	"math"
	"unicode/utf16"

	"github.com/clinical-case-trainer/internal/domain"
)

// Scoring weights for the reasoning completeness heuristic
const (
	summaryMinLength         = 20
	summaryWeight            = 25
	demographicsWeight       = 15
	chiefComplaintWeight     = 15
	timelineWeight           = 15
	contextWeight            = 10
	acuityWeight             = 10
	severityWeight           = 10
	ddxPresentWeight         = 20
	ddxBreadthWeight         = 20
	ddxBreadthMinimum        = 3
	ddxEvidenceWeight        = 30
	justificationShortLength = 50
	justificationLongLength  = 150
	justificationShortWeight = 30
	justificationLongWeight  = 30
	justificationRefsWeight  = 40
	reasoningScoreDimensions = 3
)

// RawReasoningScore holds the unrounded sub-scores of a reasoning record
type RawReasoningScore struct {
	ProblemRep    float64
	DDx           float64
	Justification float64
}

// Breakdown rounds each sub-score independently and derives the total from
// the unrounded sum.
func (r RawReasoningScore) Breakdown() domain.ReasoningScoreBreakdown {
	return domain.ReasoningScoreBreakdown{
		ProblemRep:    roundHalfUp(r.ProblemRep),
		DDx:           roundHalfUp(r.DDx),
		Justification: roundHalfUp(r.Justification),
		Total:         roundHalfUp((r.ProblemRep + r.DDx + r.Justification) / reasoningScoreDimensions),
	}
}

// ScoreReasoning computes the raw completeness score of a reasoning record.
// Absent sections contribute zero. Nothing is clamped.
func ScoreReasoning(record *domain.ClinicalReasoning) RawReasoningScore {
	if record == nil {
		return RawReasoningScore{}
	}
	return RawReasoningScore{
		ProblemRep:    scoreProblemRepresentation(record.ProblemRepresentation),
		DDx:           scoreDifferentials(record.DifferentialDiagnoses),
		Justification: scoreJustification(record.DecisionJustification, record.EvidenceReferences),
	}
}

// CalculateReasoningScore is ScoreReasoning followed by rounding
func CalculateReasoningScore(record *domain.ClinicalReasoning) domain.ReasoningScoreBreakdown {
	return ScoreReasoning(record).Breakdown()
}

func scoreProblemRepresentation(pr *domain.ProblemRepresentation) float64 {
	if pr == nil {
		return 0
	}

	score := 0.0
	if textLength(pr.Summary) > summaryMinLength {
		score += summaryWeight
	}
	if pr.Demographics != "" {
		score += demographicsWeight
	}
	if pr.ChiefComplaint != "" {
		score += chiefComplaintWeight
	}
	if pr.Timeline != "" {
		score += timelineWeight
	}
	if pr.Context != "" {
		score += contextWeight
	}
	if pr.Acuity != domain.AcuityUnset {
		score += acuityWeight
	}
	if pr.Severity != domain.SeverityUnset {
		score += severityWeight
	}
	return score
}

func scoreDifferentials(ddx []domain.DifferentialDiagnosis) float64 {
	if ddx == nil {
		return 0
	}

	score := 0.0
	if len(ddx) > 0 {
		score += ddxPresentWeight
	}
	if len(ddx) >= ddxBreadthMinimum {
		score += ddxBreadthWeight
	}

	withSupporting, withAgainst := 0, 0
	for _, d := range ddx {
		if len(d.SupportingEvidence) > 0 {
			withSupporting++
		}
		if len(d.AgainstEvidence) > 0 {
			withAgainst++
		}
	}

	denominator := float64(max(len(ddx), 1))
	score += float64(withSupporting) / denominator * ddxEvidenceWeight
	score += float64(withAgainst) / denominator * ddxEvidenceWeight
	return score
}

// scoreJustification only credits references alongside a non-empty justification
func scoreJustification(justification *string, refs []domain.EvidenceReference) float64 {
	if justification == nil || *justification == "" {
		return 0
	}

	score := 0.0
	length := textLength(*justification)
	if length > justificationShortLength {
		score += justificationShortWeight
	}
	if length > justificationLongLength {
		score += justificationLongWeight
	}
	if len(refs) > 0 {
		score += justificationRefsWeight
	}
	return score
}

// textLength counts UTF-16 code units, the unit students' editors report
func textLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// roundHalfUp rounds .5 towards positive infinity
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
