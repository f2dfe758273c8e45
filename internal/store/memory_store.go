package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/benmeehan/action-verifier/internal/constants"
	"github.com/benmeehan/action-verifier/internal/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process-local Store. Commands are never removed.
type MemoryStore struct {
	devices  cmap.ConcurrentMap[string, models.Device]
	commands cmap.ConcurrentMap[string, models.Command]
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:  cmap.New[models.Device](),
		commands: cmap.New[models.Command](),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) UpsertDevice(ctx context.Context, device models.Device) error {
	if device.ID == "" || device.UserID == "" {
		return fmt.Errorf("device id and user id are required")
	}
	if device.LastSeen.IsZero() {
		device.LastSeen = time.Now().UTC()
	}

	var upsertErr error
	m.devices.Upsert(device.ID, device, func(exist bool, current, incoming models.Device) models.Device {
		switch {
		case !exist:
			return incoming
		case current.UserID != incoming.UserID:
			upsertErr = fmt.Errorf("device %s: %w", incoming.ID, ErrDeviceOwnership)
			return current
		case incoming.LastSeen.Before(current.LastSeen):
			upsertErr = fmt.Errorf("device %s: %w", incoming.ID, ErrStaleDevice)
			return current
		}
		return incoming
	})
	return upsertErr
}

func (m *MemoryStore) OnlineDevices(ctx context.Context, userID string) ([]models.Device, error) {
	devices := make([]models.Device, 0)
	for item := range m.devices.IterBuffered() {
		device := item.Val
		if device.UserID == userID && device.Status == constants.DeviceStatusOnline {
			devices = append(devices, device)
		}
	}
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].LastSeen.After(devices[j].LastSeen)
	})
	return devices, nil
}

func (m *MemoryStore) InsertCommand(ctx context.Context, cmd *models.Command) error {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	cmd.Status = constants.CommandStatusPending
	cmd.CreatedAt = now
	cmd.UpdatedAt = now

	if !m.commands.SetIfAbsent(cmd.ID, *cmd) {
		return fmt.Errorf("inserting command %s: duplicate id", cmd.ID)
	}
	return nil
}

func (m *MemoryStore) GetCommand(ctx context.Context, id string) (models.Command, error) {
	cmd, ok := m.commands.Get(id)
	if !ok {
		return models.Command{}, fmt.Errorf("command %s: %w", id, ErrNotFound)
	}
	return cmd, nil
}

func (m *MemoryStore) CompleteCommand(ctx context.Context, id, status string, result map[string]any, errMsg string) error {
	if !IsTerminal(status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if !m.commands.Has(id) {
		return fmt.Errorf("command %s: %w", id, ErrNotFound)
	}

	var completeErr error
	m.commands.Upsert(id, models.Command{}, func(exist bool, current models.Command, _ models.Command) models.Command {
		if IsTerminal(current.Status) {
			completeErr = fmt.Errorf("command %s: %w", id, ErrCommandTerminal)
			return current
		}
		current.Status = status
		current.Result = result
		current.Error = errMsg
		current.UpdatedAt = time.Now().UTC()
		return current
	})
	return completeErr
}
