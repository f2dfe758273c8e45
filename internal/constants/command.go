package constants

import "time"

const (
	DefaultPollInterval = 500 * time.Millisecond // Interval between command status reads
	DefaultMaxWait      = 10 * time.Second       // Maximum time to wait for a device to finish a command
)

// Command statuses
const (
	// CommandStatusPending indicates that the command has been created and not yet picked up
	CommandStatusPending = "pending"
	// CommandStatusCompleted indicates that the device finished the command and attached a result
	CommandStatusCompleted = "completed"
	// CommandStatusFailed indicates that the device reported a failure
	CommandStatusFailed = "failed"
)

// Command kinds understood by the browser extension agent.
const (
	CommandTypeScreenshot = "SCREENSHOT"
	CommandTypeNavigate   = "NAVIGATE"
	CommandTypeFillField  = "FILL_FIELD"
	CommandTypeClick      = "CLICK"
)

// Keys used inside command options and results.
const (
	OptionLabel         = "label"          // Screenshot label, e.g. before/after
	OptionCorrelationID = "correlation_id" // Higher-level action the command belongs to
	ResultKeyImage      = "base64"         // Data URI of a captured screenshot
	ResultKeyURL        = "url"            // Page URL the device ended up on
)
