package models

import "time"

// Command is one unit of remote work handed to a device through the shared command store.
// It is created by the dispatcher and only ever completed by the device.
type Command struct {
	ID        string         `json:"id"`
	DeviceID  string         `json:"device_id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	Options   map[string]any `json:"options,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CommandResult is what a device reports back once it has finished a command.
type CommandResult struct {
	CommandID string         `json:"command_id"`
	Status    string         `json:"status"`           // completed or failed
	Result    map[string]any `json:"result,omitempty"` // kind-specific payload, e.g. {"base64": "data:image/png;base64,..."}
	Error     string         `json:"error,omitempty"`  // worker-supplied reason for failed commands
}
