package models

import "time"

// AuditRecord is one guarded result as persisted in the audit trail.
type AuditRecord struct {
	CorrelationID string         `json:"correlation_id"`
	UserID        string         `json:"user_id"`
	Action        Action         `json:"action"`
	Description   string         `json:"description"`
	Result        VerifiedResult `json:"result"`
	RecordedAt    time.Time      `json:"recorded_at"`
}
