package state_managers

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/action-verifier/internal/constants"
	"github.com/benmeehan/action-verifier/internal/models"
)

func newTestAudit(t *testing.T) *AuditStateManager {
	t.Helper()
	sm, err := NewAuditStateManager(filepath.Join(t.TempDir(), "audit.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sm.Close() })
	return sm
}

func TestAuditStateManager_AppendAndList(t *testing.T) {
	// Setup
	sm := newTestAudit(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	evidence := models.NewEvidence(models.ScreenshotEvidence{Label: "after", URL: "https://s3/u1/c1/after_1.png"}, constants.MethodRemoteCapture, at)
	confirmation := models.NewEvidence(models.VisualConfirmationEvidence{
		Description:     "cart page",
		Confidence:      0.9,
		MatchedCriteria: []string{"Cart shows 1 item"},
		FailedCriteria:  []string{},
		Provider:        "openai",
	}, constants.MethodVisionModel, at)

	// Execute
	require.NoError(t, sm.Append(models.AuditRecord{
		CorrelationID: "c1",
		UserID:        "u1",
		Action:        models.Action{Kind: constants.CommandTypeClick},
		Result:        models.VerifiedResult{Success: true, Message: "ok", Evidence: []models.Evidence{evidence, confirmation}, Confidence: 0.9},
		RecordedAt:    at,
	}))
	require.NoError(t, sm.Append(models.AuditRecord{CorrelationID: "c1", UserID: "u1", Result: models.VerifiedResult{Message: "second"}, RecordedAt: at}))
	require.NoError(t, sm.Append(models.AuditRecord{CorrelationID: "c10", UserID: "u1", Result: models.VerifiedResult{Message: "other"}}))

	records, err := sm.List("c1")

	// Assert
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ok", records[0].Result.Message)
	assert.Equal(t, "second", records[1].Result.Message)

	require.Len(t, records[0].Result.Evidence, 2)
	assert.Equal(t, evidence.Data, records[0].Result.Evidence[0].Data)
	visual, ok := records[0].Result.Evidence[1].Data.(models.VisualConfirmationEvidence)
	require.True(t, ok)
	assert.Equal(t, "openai", visual.Provider)

	all, err := sm.List("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAuditStateManager_ListDoesNotMatchNestedIDs(t *testing.T) {
	// Setup
	sm := newTestAudit(t)
	require.NoError(t, sm.Append(models.AuditRecord{CorrelationID: "a", Result: models.VerifiedResult{Message: "parent"}}))
	require.NoError(t, sm.Append(models.AuditRecord{CorrelationID: "a/b", Result: models.VerifiedResult{Message: "nested"}}))
	require.NoError(t, sm.Append(models.AuditRecord{CorrelationID: "a%2Fb", Result: models.VerifiedResult{Message: "escaped"}}))

	// Execute
	parent, err := sm.List("a")
	require.NoError(t, err)
	nested, err := sm.List("a/b")
	require.NoError(t, err)

	// Assert
	require.Len(t, parent, 1)
	assert.Equal(t, "parent", parent[0].Result.Message)
	require.Len(t, nested, 1)
	assert.Equal(t, "nested", nested[0].Result.Message)
	assert.Equal(t, "a/b", nested[0].CorrelationID)
}

func TestAuditStateManager_ListUnknown(t *testing.T) {
	sm := newTestAudit(t)

	records, err := sm.List("missing")

	assert.NoError(t, err)
	assert.Empty(t, records)
}
