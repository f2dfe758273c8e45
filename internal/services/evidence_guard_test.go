package services_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/action-verifier/internal/constants"
	"github.com/benmeehan/action-verifier/internal/models"
	"github.com/benmeehan/action-verifier/internal/services"
)

func validScreenshot() models.Evidence {
	return models.NewEvidence(models.ScreenshotEvidence{Label: "after", URL: "https://s3.local/a.png"}, constants.MethodRemoteCapture, time.UnixMilli(1767225600000))
}

func TestEvidenceGuard_Validate(t *testing.T) {
	tests := []struct {
		name      string
		result    models.VerifiedResult
		violation string
	}{
		{
			name:   "failure needs no evidence",
			result: models.VerifiedResult{Success: false, Message: "timed out"},
		},
		{
			name:   "success with evidence",
			result: models.VerifiedResult{Success: true, Message: "ok", Evidence: []models.Evidence{validScreenshot()}},
		},
		{
			name:      "success without evidence",
			result:    models.VerifiedResult{Success: true, Message: "Done!"},
			violation: "success reported without evidence",
		},
		{
			name:      "success with empty evidence",
			result:    models.VerifiedResult{Success: true, Message: "Done!", Evidence: []models.Evidence{}},
			violation: "success reported without evidence",
		},
		{
			name: "element without type",
			result: models.VerifiedResult{Success: true, Evidence: []models.Evidence{
				validScreenshot(),
				{Data: models.OCREvidence{Text: "Order placed"}, Timestamp: 1},
			}},
			violation: "evidence[1]: missing type",
		},
		{
			name: "element without data",
			result: models.VerifiedResult{Success: true, Evidence: []models.Evidence{
				{Type: constants.EvidenceURL, Timestamp: 1},
			}},
			violation: "evidence[0]: missing data",
		},
		{
			name: "element without timestamp",
			result: models.VerifiedResult{Success: true, Evidence: []models.Evidence{
				{Type: constants.EvidenceURL, Data: models.URLEvidence{Actual: "https://x"}},
			}},
			violation: "evidence[0]: missing timestamp",
		},
		{
			name: "type disagrees with data",
			result: models.VerifiedResult{Success: true, Evidence: []models.Evidence{
				{Type: constants.EvidenceOCR, Data: models.URLEvidence{Actual: "https://x"}, Timestamp: 1},
			}},
			violation: "does not match",
		},
	}

	guard := services.NewEvidenceGuard(true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := guard.Validate(tt.result)

			if tt.violation == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.result, got)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, services.ErrGuardViolation)
			var violation *services.GuardViolationError
			require.True(t, errors.As(err, &violation))
			assert.Contains(t, violation.Reason, tt.violation)
			assert.Contains(t, err.Error(), "VIOLATION")
			assert.Contains(t, violation.Payload, `"success":true`)
		})
	}
}

func TestEvidenceGuard_DisabledPassesThrough(t *testing.T) {
	guard := services.NewEvidenceGuard(false)
	result := models.VerifiedResult{Success: true, Message: "Done!"}

	got, err := guard.Validate(result)

	assert.NoError(t, err)
	assert.Equal(t, result, got)
	assert.False(t, guard.Required())

	payload, err := guard.ValidateJSON([]byte(`{"success":true}`))
	assert.NoError(t, err)
	assert.Equal(t, `{"success":true}`, string(payload))
}

func TestEvidenceGuard_ValidateJSON(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"failure without evidence", `{"success":false,"message":"nope"}`, ""},
		{"missing success flag", `{"message":"nope"}`, ""},
		{"valid evidence", `{"success":true,"evidence":[{"type":"url","data":{"actual":"https://x"},"timestamp":1767225600000,"verificationMethod":"expected_url"}]}`, ""},
		{"success without evidence", `{"success":true,"message":"Done!"}`, "without an evidence array"},
		{"evidence not a list", `{"success":true,"evidence":"screenshot.png"}`, "without an evidence array"},
		{"empty evidence", `{"success":true,"evidence":[]}`, "without evidence"},
		{"element not an object", `{"success":true,"evidence":["x"]}`, "evidence[0]: not an object"},
		{"element missing type", `{"success":true,"evidence":[{"data":{},"timestamp":1}]}`, "evidence[0]: missing type"},
		{"element unknown type", `{"success":true,"evidence":[{"type":"hunch","data":{},"timestamp":1}]}`, "evidence[0]: unknown type"},
		{"element null data", `{"success":true,"evidence":[{"type":"ocr","data":null,"timestamp":1}]}`, "evidence[0]: missing data"},
		{"element string timestamp", `{"success":true,"evidence":[{"type":"ocr","data":{},"timestamp":"now"}]}`, "evidence[0]: missing timestamp"},
		{"success not boolean", `{"success":"yes"}`, "success is not a boolean"},
		{"not an object", `[1,2,3]`, "not a JSON object"},
	}

	guard := services.NewEvidenceGuard(true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := guard.ValidateJSON([]byte(tt.payload))

			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.payload, string(got))
				return
			}
			assert.ErrorIs(t, err, services.ErrGuardViolation)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), tt.payload)
		})
	}
}
