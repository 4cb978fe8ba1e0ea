package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/clinical-case-trainer/internal/domain"
)

const (
	toolSaveReasoning = "save_reasoning"
	toolGetReasoning  = "get_reasoning"
	toolComputeScore  = "compute_reasoning_score"
)

// ProblemRepresentationParams is the problem representation as sent by a client
type ProblemRepresentationParams struct {
	Summary        string `json:"summary,omitempty" jsonschema:"one-line summary of the case"`
	Demographics   string `json:"demographics,omitempty"`
	ChiefComplaint string `json:"chief_complaint,omitempty"`
	Timeline       string `json:"timeline,omitempty"`
	Context        string `json:"context,omitempty"`
	Acuity         string `json:"acuity,omitempty" jsonschema:"acute, subacute or chronic"`
	Severity       string `json:"severity,omitempty" jsonschema:"mild, moderate or severe"`
	Pattern        string `json:"pattern,omitempty"`
}

// DifferentialParams is one differential diagnosis as sent by a client
type DifferentialParams struct {
	ID                 string   `json:"id,omitempty"`
	Diagnosis          string   `json:"diagnosis"`
	Likelihood         string   `json:"likelihood,omitempty" jsonschema:"very-low, low, moderate, high or very-high"`
	SupportingEvidence []string `json:"supporting_evidence,omitempty"`
	AgainstEvidence    []string `json:"against_evidence,omitempty"`
	Rank               int      `json:"rank,omitempty"`
}

// ReferenceParams is one evidence reference as sent by a client
type ReferenceParams struct {
	Source      string `json:"source"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
}

// SaveReasoningParams defines parameters for the save_reasoning tool.
// Omitted sections keep their stored value.
type SaveReasoningParams struct {
	AttemptID             int64                        `json:"attempt_id" jsonschema:"id of the case attempt"`
	StudentID             int64                        `json:"student_id,omitempty"`
	CaseID                string                       `json:"case_id,omitempty"`
	ProblemRepresentation *ProblemRepresentationParams `json:"problem_representation,omitempty"`
	DifferentialDiagnoses []DifferentialParams         `json:"differential_diagnoses,omitempty"`
	DecisionJustification *string                      `json:"decision_justification,omitempty"`
	EvidenceReferences    []ReferenceParams            `json:"evidence_references,omitempty"`
}

// AttemptParams identifies the attempt a tool acts on
type AttemptParams struct {
	AttemptID int64 `json:"attempt_id" jsonschema:"id of the case attempt"`
}

func (s *LiteServer) handleSaveReasoning(ctx context.Context, _ *mcp.CallToolRequest, params SaveReasoningParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": toolSaveReasoning, "attempt_id": params.AttemptID}).Info("Tool invoked")

	if params.AttemptID <= 0 {
		return errorResult("attempt_id must be a positive integer"), nil, nil
	}

	record, err := s.reasoning.SaveReasoning(ctx, params.toInput())
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	return jsonResult(record)
}

func (s *LiteServer) handleGetReasoning(ctx context.Context, _ *mcp.CallToolRequest, params AttemptParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": toolGetReasoning, "attempt_id": params.AttemptID}).Info("Tool invoked")

	record, err := s.reasoning.GetReasoning(ctx, params.AttemptID)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	return jsonResult(record)
}

func (s *LiteServer) handleComputeScore(ctx context.Context, _ *mcp.CallToolRequest, params AttemptParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": toolComputeScore, "attempt_id": params.AttemptID}).Info("Tool invoked")

	breakdown, err := s.reasoning.CalculateScore(ctx, params.AttemptID)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	return jsonResult(breakdown)
}

// toInput converts the tool parameters to a service input, keeping nil for omitted sections
func (p SaveReasoningParams) toInput() *domain.SaveReasoningInput {
	input := &domain.SaveReasoningInput{
		AttemptID:             p.AttemptID,
		StudentID:             p.StudentID,
		CaseID:                p.CaseID,
		DecisionJustification: p.DecisionJustification,
	}

	if pr := p.ProblemRepresentation; pr != nil {
		input.ProblemRepresentation = &domain.ProblemRepresentation{
			Summary:        pr.Summary,
			Demographics:   pr.Demographics,
			ChiefComplaint: pr.ChiefComplaint,
			Timeline:       pr.Timeline,
			Context:        pr.Context,
			Acuity:         domain.Acuity(pr.Acuity),
			Severity:       domain.Severity(pr.Severity),
			Pattern:        pr.Pattern,
		}
	}

	if p.DifferentialDiagnoses != nil {
		input.DifferentialDiagnoses = make([]domain.DifferentialDiagnosis, len(p.DifferentialDiagnoses))
		for i, d := range p.DifferentialDiagnoses {
			input.DifferentialDiagnoses[i] = domain.DifferentialDiagnosis{
				ID:                 d.ID,
				Diagnosis:          d.Diagnosis,
				Likelihood:         domain.Likelihood(d.Likelihood),
				SupportingEvidence: d.SupportingEvidence,
				AgainstEvidence:    d.AgainstEvidence,
				Rank:               d.Rank,
			}
		}
	}

	if p.EvidenceReferences != nil {
		input.EvidenceReferences = make([]domain.EvidenceReference, len(p.EvidenceReferences))
		for i, ref := range p.EvidenceReferences {
			input.EvidenceReferences[i] = domain.EvidenceReference{
				Source:      ref.Source,
				URL:         ref.URL,
				Description: ref.Description,
			}
		}
	}

	return input
}

// jsonResult renders v as the text content of a tool result
func jsonResult(v interface{}) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}

// errorResult creates a standardized error result for tool calls
func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + message},
		},
		IsError: true,
	}
}
