package constants

// EvidenceType names one kind of proof attached to a verified result.
type EvidenceType string

const (
	EvidenceScreenshot         EvidenceType = "screenshot"
	EvidenceDOMState           EvidenceType = "dom_state"
	EvidenceURL                EvidenceType = "url"
	EvidenceOCR                EvidenceType = "ocr"
	EvidenceVisualConfirmation EvidenceType = "visual_confirmation"
)

// Verification method labels recorded on evidence.
const (
	MethodRemoteCapture = "remote_capture"
	MethodVisionModel   = "vision_model"
	MethodExpectedURL   = "expected_url"
)

// Screenshot labels used by the orchestrator.
const (
	LabelBefore = "before"
	LabelAfter  = "after"
)

// DefaultMinConfidence is the floor below which a verified verdict is treated as inconclusive.
const DefaultMinConfidence = 0.6
