package models

// Action is the device-side operation a job asks for, e.g. NAVIGATE with {"url": ...}.
type Action struct {
	Kind    string         `json:"kind"`
	Options map[string]any `json:"options,omitempty"`
}

// ActionJob describes a higher-level action whose outcome must be proven with evidence.
type ActionJob struct {
	UserID        string   `json:"user_id"`
	CorrelationID string   `json:"correlation_id"`
	Action        Action   `json:"action"`
	Description   string   `json:"description"`
	Criteria      []string `json:"criteria"`
	ExpectedURL   string   `json:"expected_url,omitempty"`
	ExpectedText  string   `json:"expected_text,omitempty"`
	Provider      string   `json:"provider,omitempty"` // preferred vision provider
}
