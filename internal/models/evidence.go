package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/benmeehan/action-verifier/internal/constants"
)

// EvidenceData is the payload of one evidence variant. The set of variants is closed.
type EvidenceData interface {
	Kind() constants.EvidenceType
	sealed()
}

// ScreenshotEvidence references a captured image, preferably by durable URL.
type ScreenshotEvidence struct {
	Label       string `json:"label"`
	URL         string `json:"url,omitempty"`
	InlineImage string `json:"inlineImage,omitempty"`
}

// DOMStateEvidence is a serialized fragment of the page at verification time.
type DOMStateEvidence struct {
	Selector string `json:"selector,omitempty"`
	Snapshot string `json:"snapshot"`
}

// URLEvidence records the URL the device ended up on.
type URLEvidence struct {
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual"`
}

// OCREvidence holds text read off a screenshot.
type OCREvidence struct {
	Text string `json:"text"`
}

// VisualConfirmationEvidence is a vision model's verdict over a screenshot.
type VisualConfirmationEvidence struct {
	Description     string   `json:"description"`
	Confidence      float64  `json:"confidence"`
	MatchedCriteria []string `json:"matchedCriteria"`
	FailedCriteria  []string `json:"failedCriteria"`
	Provider        string   `json:"provider,omitempty"`
	Degraded        bool     `json:"degraded,omitempty"`
}

func (ScreenshotEvidence) Kind() constants.EvidenceType { return constants.EvidenceScreenshot }
func (DOMStateEvidence) Kind() constants.EvidenceType   { return constants.EvidenceDOMState }
func (URLEvidence) Kind() constants.EvidenceType        { return constants.EvidenceURL }
func (OCREvidence) Kind() constants.EvidenceType        { return constants.EvidenceOCR }
func (VisualConfirmationEvidence) Kind() constants.EvidenceType {
	return constants.EvidenceVisualConfirmation
}

func (ScreenshotEvidence) sealed()         {}
func (DOMStateEvidence) sealed()           {}
func (URLEvidence) sealed()                {}
func (OCREvidence) sealed()                {}
func (VisualConfirmationEvidence) sealed() {}

// Evidence is a typed, timestamped proof unit. Timestamp is epoch milliseconds.
type Evidence struct {
	Type               constants.EvidenceType `json:"type"`
	Data               EvidenceData           `json:"data"`
	Timestamp          int64                  `json:"timestamp"`
	VerificationMethod string                 `json:"verificationMethod"`
}

// NewEvidence builds an evidence unit whose type always agrees with its payload.
func NewEvidence(data EvidenceData, method string, at time.Time) Evidence {
	return Evidence{
		Type:               data.Kind(),
		Data:               data,
		Timestamp:          at.UnixMilli(),
		VerificationMethod: method,
	}
}

// UnmarshalJSON decodes the payload into the variant named by the type field.
// Unknown types and null payloads leave Data nil so that validation can report them.
func (e *Evidence) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type               constants.EvidenceType `json:"type"`
		Data               json.RawMessage        `json:"data"`
		Timestamp          int64                  `json:"timestamp"`
		VerificationMethod string                 `json:"verificationMethod"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	e.Type = raw.Type
	e.Timestamp = raw.Timestamp
	e.VerificationMethod = raw.VerificationMethod
	e.Data = nil

	if len(raw.Data) == 0 || string(raw.Data) == "null" {
		return nil
	}

	var data EvidenceData
	switch raw.Type {
	case constants.EvidenceScreenshot:
		var d ScreenshotEvidence
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return fmt.Errorf("decoding %s evidence: %w", raw.Type, err)
		}
		data = d
	case constants.EvidenceDOMState:
		var d DOMStateEvidence
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return fmt.Errorf("decoding %s evidence: %w", raw.Type, err)
		}
		data = d
	case constants.EvidenceURL:
		var d URLEvidence
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return fmt.Errorf("decoding %s evidence: %w", raw.Type, err)
		}
		data = d
	case constants.EvidenceOCR:
		var d OCREvidence
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return fmt.Errorf("decoding %s evidence: %w", raw.Type, err)
		}
		data = d
	case constants.EvidenceVisualConfirmation:
		var d VisualConfirmationEvidence
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return fmt.Errorf("decoding %s evidence: %w", raw.Type, err)
		}
		data = d
	}
	e.Data = data
	return nil
}
