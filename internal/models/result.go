package models

// VerifiedResult is the only value allowed to claim that a remote action succeeded.
// Success implies a non-empty Evidence slice; the evidence guard enforces this.
type VerifiedResult struct {
	Success       bool       `json:"success"`
	Message       string     `json:"message"`
	Evidence      []Evidence `json:"evidence,omitempty"`
	Confidence    float64    `json:"confidence"`
	LowConfidence bool       `json:"lowConfidence,omitempty"`
	CorrelationID string     `json:"correlationId,omitempty"`
}

// CaptureResult is the outcome of one screenshot capture.
// Callers should prefer URL over InlineImage when both are set.
type CaptureResult struct {
	Success        bool   `json:"success"`
	URL            string `json:"url,omitempty"`
	InlineImage    string `json:"inlineImage,omitempty"`
	ObjectName     string `json:"objectName,omitempty"`
	UploadFallback bool   `json:"uploadFallback,omitempty"`
	Timestamp      int64  `json:"timestamp"`
	Error          string `json:"error,omitempty"`
}

// ImageRef returns the best available reference to the captured image.
func (c CaptureResult) ImageRef() string {
	if c.URL != "" {
		return c.URL
	}
	return c.InlineImage
}
