package services

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/benmeehan/action-verifier/internal/constants"
	"github.com/benmeehan/action-verifier/internal/models"
	"github.com/benmeehan/action-verifier/internal/utils"
)

var knownEvidenceTypes = utils.SliceToSet([]constants.EvidenceType{
	constants.EvidenceScreenshot,
	constants.EvidenceDOMState,
	constants.EvidenceURL,
	constants.EvidenceOCR,
	constants.EvidenceVisualConfirmation,
})

// EvidenceGuard refuses any successful result that does not carry well-formed evidence.
// It performs no I/O.
type EvidenceGuard struct {
	required bool
}

// NewEvidenceGuard creates a guard. With required=false every result passes unchanged.
func NewEvidenceGuard(required bool) *EvidenceGuard {
	return &EvidenceGuard{required: required}
}

// Required reports whether the guard enforces evidence.
func (g *EvidenceGuard) Required() bool {
	return g.required
}

// Validate returns result unchanged, or a *GuardViolationError when it claims success
// without evidence or carries a malformed evidence element.
func (g *EvidenceGuard) Validate(result models.VerifiedResult) (models.VerifiedResult, error) {
	if !g.required || !result.Success {
		return result, nil
	}

	if len(result.Evidence) == 0 {
		return result, violation("success reported without evidence", result)
	}

	for i, evidence := range result.Evidence {
		if reason := checkEvidence(evidence); reason != "" {
			return result, violation(fmt.Sprintf("evidence[%d]: %s", i, reason), result)
		}
	}
	return result, nil
}

func checkEvidence(e models.Evidence) string {
	if e.Type == "" {
		return "missing type"
	}
	if e.Data == nil {
		return "missing data"
	}
	if e.Timestamp <= 0 {
		return "missing timestamp"
	}
	if e.Data.Kind() != e.Type {
		return fmt.Sprintf("type %q does not match %q data", e.Type, e.Data.Kind())
	}

	switch e.Data.(type) {
	case models.ScreenshotEvidence, models.DOMStateEvidence, models.URLEvidence,
		models.OCREvidence, models.VisualConfirmationEvidence:
		return ""
	default:
		return fmt.Sprintf("unsupported data %T", e.Data)
	}
}

// ValidateJSON applies the same rules to an untyped result object, for callers that
// build results outside this module. The payload is returned unchanged when valid.
func (g *EvidenceGuard) ValidateJSON(payload []byte) ([]byte, error) {
	if !g.required {
		return payload, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var candidate map[string]any
	if err := decoder.Decode(&candidate); err != nil || candidate == nil {
		return nil, &GuardViolationError{Reason: "result is not a JSON object", Payload: string(payload)}
	}

	success, ok := candidate["success"].(bool)
	if _, present := candidate["success"]; present && !ok {
		return nil, &GuardViolationError{Reason: "success is not a boolean", Payload: string(payload)}
	}
	if !success {
		return payload, nil
	}

	evidence, ok := candidate["evidence"].([]any)
	if !ok {
		return nil, &GuardViolationError{Reason: "success reported without an evidence array", Payload: string(payload)}
	}
	if len(evidence) == 0 {
		return nil, &GuardViolationError{Reason: "success reported without evidence", Payload: string(payload)}
	}

	for i, item := range evidence {
		element, ok := item.(map[string]any)
		if !ok {
			return nil, &GuardViolationError{Reason: fmt.Sprintf("evidence[%d]: not an object", i), Payload: string(payload)}
		}
		kind, _ := element["type"].(string)
		if kind == "" {
			return nil, &GuardViolationError{Reason: fmt.Sprintf("evidence[%d]: missing type", i), Payload: string(payload)}
		}
		if _, ok := knownEvidenceTypes[constants.EvidenceType(kind)]; !ok {
			return nil, &GuardViolationError{Reason: fmt.Sprintf("evidence[%d]: unknown type %q", i, kind), Payload: string(payload)}
		}
		if data, present := element["data"]; !present || data == nil {
			return nil, &GuardViolationError{Reason: fmt.Sprintf("evidence[%d]: missing data", i), Payload: string(payload)}
		}
		if _, ok := element["timestamp"].(json.Number); !ok {
			return nil, &GuardViolationError{Reason: fmt.Sprintf("evidence[%d]: missing timestamp", i), Payload: string(payload)}
		}
	}
	return payload, nil
}

func violation(reason string, result models.VerifiedResult) *GuardViolationError {
	payload, err := json.Marshal(result)
	if err != nil {
		payload = []byte(fmt.Sprintf("%+v", result))
	}
	return &GuardViolationError{Reason: reason, Payload: string(payload)}
}
