package vision

import "errors"

var (
	// ErrProviderUnreachable marks a transport failure, non-2xx response or unusable response envelope.
	ErrProviderUnreachable = errors.New("vision provider unreachable")
	// ErrMissingAPIKey is returned when a provider's API key environment variable is empty.
	ErrMissingAPIKey = errors.New("missing API key")
	// ErrParseFailure marks a model answer that is not a valid verdict.
	ErrParseFailure = errors.New("unparseable verdict")
	// ErrProviderExhausted is reported when no provider in the chain produced an answer.
	ErrProviderExhausted = errors.New("all vision providers exhausted")
)

// Request asks whether a screenshot satisfies a list of success criteria.
type Request struct {
	Screenshot   string   // URL or base64 data URI
	Criteria     []string // Graded in order
	Action       string   // Human-readable description of the action taken
	ExpectedURL  string   // Optional hint
	ExpectedText string   // Optional hint
}

// Outcome is the terminal state of one verification call.
type Outcome string

const (
	OutcomeVerified Outcome = "verified"
	OutcomeFailed   Outcome = "failed"
	OutcomeDegraded Outcome = "degraded"
)

// Result is the normalized verdict. len(CriteriaResults) always equals len(Request.Criteria).
type Result struct {
	Verified        bool     `json:"verified"`
	CriteriaResults []bool   `json:"criteriaResults"`
	WhatISee        string   `json:"whatISee"`
	MatchedCriteria []string `json:"matchedCriteria"`
	FailedCriteria  []string `json:"failedCriteria"`
	Confidence      float64  `json:"confidence"`
	Details         string   `json:"details"`
	Provider        string   `json:"provider,omitempty"`
	Outcome         Outcome  `json:"outcome"`
}

// Verdict is the JSON object a model is instructed to answer with.
type Verdict struct {
	CriteriaResults []bool   `json:"criteriaResults"`
	OverallSuccess  bool     `json:"overallSuccess"`
	WhatISee        string   `json:"whatISee"`
	MatchedCriteria []string `json:"matchedCriteria"`
	FailedCriteria  []string `json:"failedCriteria"`
	Confidence      float64  `json:"confidence"`
	EvidenceDetails string   `json:"evidenceDetails"`
}
