package models

import "time"

// Device represents one running instance of a user's automation agent.
type Device struct {
	ID           string    `json:"device_id"`
	UserID       string    `json:"user_id"`
	Status       string    `json:"status"`
	AgentVersion string    `json:"agent_version,omitempty"`
	LastSeen     time.Time `json:"last_seen"`
}

// Heartbeat is the liveness message a device publishes periodically.
type Heartbeat struct {
	DeviceID     string    `json:"device_id"`
	UserID       string    `json:"user_id"`
	Status       string    `json:"status"`
	AgentVersion string    `json:"agent_version,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ToDevice converts a heartbeat into the device record it refreshes.
func (h Heartbeat) ToDevice() Device {
	lastSeen := h.Timestamp
	if lastSeen.IsZero() {
		lastSeen = time.Now().UTC()
	}
	return Device{
		ID:           h.DeviceID,
		UserID:       h.UserID,
		Status:       h.Status,
		AgentVersion: h.AgentVersion,
		LastSeen:     lastSeen,
	}
}
