// Package store persists devices and commands, the two records the dispatcher shares with remote agents.
package store

import (
	"context"
	"errors"

	"github.com/benmeehan/action-verifier/internal/constants"
	"github.com/benmeehan/action-verifier/internal/models"
)

var (
	// ErrNotFound is returned when a command or device does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCommandTerminal is returned when completing a command that already completed or failed.
	ErrCommandTerminal = errors.New("command already in a terminal state")
	// ErrInvalidStatus is returned when a command is completed with a non-terminal status.
	ErrInvalidStatus = errors.New("invalid terminal status")
	// ErrDeviceOwnership is returned when an upsert would move a device to another user.
	ErrDeviceOwnership = errors.New("device belongs to another user")
	// ErrStaleDevice is returned when an upsert is older than the stored last-seen time.
	ErrStaleDevice = errors.New("device update older than last seen")
)

// DeviceStore tracks agent liveness per user.
type DeviceStore interface {
	// UpsertDevice creates or refreshes a device. A device never changes owner, and an
	// update older than the stored LastSeen is rejected with ErrStaleDevice.
	UpsertDevice(ctx context.Context, device models.Device) error
	// OnlineDevices returns the user's online devices, most recently seen first.
	OnlineDevices(ctx context.Context, userID string) ([]models.Device, error)
}

// CommandStore holds commands. The dispatcher inserts and reads; only devices complete.
type CommandStore interface {
	// InsertCommand stores cmd as pending. An empty ID is replaced by a new UUID.
	InsertCommand(ctx context.Context, cmd *models.Command) error
	GetCommand(ctx context.Context, id string) (models.Command, error)
	CompleteCommand(ctx context.Context, id, status string, result map[string]any, errMsg string) error
}

// Store is a backend that serves both record types.
type Store interface {
	DeviceStore
	CommandStore
	Close() error
}

// IsTerminal reports whether a command status ends its lifecycle.
func IsTerminal(status string) bool {
	return status == constants.CommandStatusCompleted || status == constants.CommandStatusFailed
}
