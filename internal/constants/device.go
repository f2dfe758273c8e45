package constants

// Device liveness statuses
const (
	DeviceStatusOnline  = "online"
	DeviceStatusOffline = "offline"
)
