package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	litecfg "github.com/clinical-case-trainer/internal/config"
	"github.com/clinical-case-trainer/internal/domain"
)

func newTestLiteServer(t *testing.T) *LiteServer {
	t.Helper()

	cfg := &litecfg.LiteConfig{
		DataDir:       t.TempDir(),
		CacheMaxItems: 16,
		CacheTTL:      time.Minute,
		LogLevel:      "warn",
		LogFormat:     "text",
	}
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	server, err := NewLiteServer(cfg, WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })
	return server
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewLiteServer_CreatesSQLiteStore(t *testing.T) {
	server := newTestLiteServer(t)

	assert.NotNil(t, server.mcpServer)
	assert.FileExists(t, server.config.ReasoningDBPath())
}

func TestLiteServer_ReasoningTools(t *testing.T) {
	server := newTestLiteServer(t)
	ctx := context.Background()

	result, _, err := server.handleGetReasoning(ctx, nil, AttemptParams{AttemptID: 8})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "null", resultText(t, result))

	result, _, err = server.handleComputeScore(ctx, nil, AttemptParams{AttemptID: 8})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "failed to calculate reasoning score", resultText(t, result))

	justification := strings.Repeat("Lobar consolidation with fever. ", 6)
	result, _, err = server.handleSaveReasoning(ctx, nil, SaveReasoningParams{
		AttemptID: 8,
		StudentID: 2,
		CaseID:    "IPD-PNEU-001",
		ProblemRepresentation: &ProblemRepresentationParams{
			Summary:      "Elderly woman with acute onset fever and productive cough",
			Demographics: "78 y/o female",
			Acuity:       "acute",
		},
		DifferentialDiagnoses: []DifferentialParams{
			{Diagnosis: "Pneumonia", SupportingEvidence: []string{"crackles"}},
			{Diagnosis: "Heart failure", AgainstEvidence: []string{"no edema"}},
			{Diagnosis: "Pulmonary embolism"},
		},
		DecisionJustification: &justification,
		EvidenceReferences:    []ReferenceParams{{Source: "BTS CAP guideline"}},
	})
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var saved domain.ClinicalReasoning
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &saved))
	assert.Equal(t, int64(8), saved.AttemptID)
	assert.Equal(t, domain.AcuityAcute, saved.ProblemRepresentation.Acuity)
	require.Len(t, saved.DifferentialDiagnoses, 3)
	assert.NotEmpty(t, saved.DifferentialDiagnoses[2].ID)

	result, _, err = server.handleComputeScore(ctx, nil, AttemptParams{AttemptID: 8})
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var breakdown domain.ReasoningScoreBreakdown
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &breakdown))
	// pr 25+15+10 = 50, ddx 20+20+10+10 = 60, justification 30+30+40 = 100, total 70
	assert.Equal(t, domain.ReasoningScoreBreakdown{ProblemRep: 50, DDx: 60, Justification: 100, Total: 70}, breakdown)

	result, _, err = server.handleGetReasoning(ctx, nil, AttemptParams{AttemptID: 8})
	require.NoError(t, err)
	var stored domain.ClinicalReasoning
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &stored))
	require.NotNil(t, stored.ReasoningScore)
	assert.Equal(t, "70", *stored.ReasoningScore)
}

func TestLiteServer_SaveRejectsMissingAttempt(t *testing.T) {
	server := newTestLiteServer(t)

	result, _, err := server.handleSaveReasoning(context.Background(), nil, SaveReasoningParams{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "attempt_id")
}

func TestSaveReasoningParams_ToInputKeepsOmittedSectionsNil(t *testing.T) {
	input := SaveReasoningParams{AttemptID: 1, DifferentialDiagnoses: []DifferentialParams{}}.toInput()

	assert.Nil(t, input.ProblemRepresentation)
	assert.Nil(t, input.DecisionJustification)
	assert.Nil(t, input.EvidenceReferences)
	assert.NotNil(t, input.DifferentialDiagnoses)
	assert.Empty(t, input.DifferentialDiagnoses)
}
