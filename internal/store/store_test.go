package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/action-verifier/internal/constants"
	"github.com/benmeehan/action-verifier/internal/models"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "verifier.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func TestStore_OnlineDevices(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			// Setup
			require.NoError(t, s.UpsertDevice(ctx, models.Device{ID: "old", UserID: "u1", Status: constants.DeviceStatusOnline, LastSeen: now.Add(-time.Minute)}))
			require.NoError(t, s.UpsertDevice(ctx, models.Device{ID: "new", UserID: "u1", Status: constants.DeviceStatusOnline, LastSeen: now, AgentVersion: "1.4.0"}))
			require.NoError(t, s.UpsertDevice(ctx, models.Device{ID: "off", UserID: "u1", Status: constants.DeviceStatusOffline, LastSeen: now.Add(time.Minute)}))
			require.NoError(t, s.UpsertDevice(ctx, models.Device{ID: "other", UserID: "u2", Status: constants.DeviceStatusOnline, LastSeen: now.Add(time.Hour)}))

			// Execute
			devices, err := s.OnlineDevices(ctx, "u1")

			// Assert
			require.NoError(t, err)
			require.Len(t, devices, 2)
			assert.Equal(t, "new", devices[0].ID)
			assert.Equal(t, "1.4.0", devices[0].AgentVersion)
			assert.Equal(t, "old", devices[1].ID)
		})
	}
}

func TestStore_UpsertDeviceRefreshesStatus(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.UpsertDevice(ctx, models.Device{ID: "d1", UserID: "u1", Status: constants.DeviceStatusOnline}))
			require.NoError(t, s.UpsertDevice(ctx, models.Device{ID: "d1", UserID: "u1", Status: constants.DeviceStatusOffline}))

			devices, err := s.OnlineDevices(ctx, "u1")
			require.NoError(t, err)
			assert.Empty(t, devices)
		})
	}
}

func TestStore_UpsertDeviceKeepsOwner(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			// Setup
			require.NoError(t, s.UpsertDevice(ctx, models.Device{ID: "laptop", UserID: "alice", Status: constants.DeviceStatusOnline, LastSeen: now}))

			// Execute
			err := s.UpsertDevice(ctx, models.Device{ID: "laptop", UserID: "mallory", Status: constants.DeviceStatusOnline, LastSeen: now.Add(time.Second)})

			// Assert
			assert.ErrorIs(t, err, ErrDeviceOwnership)

			alice, err := s.OnlineDevices(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, alice, 1)
			assert.Equal(t, "laptop", alice[0].ID)

			mallory, err := s.OnlineDevices(ctx, "mallory")
			require.NoError(t, err)
			assert.Empty(t, mallory)
		})
	}
}

func TestStore_UpsertDeviceIgnoresOlderUpdates(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			// Setup
			require.NoError(t, s.UpsertDevice(ctx, models.Device{ID: "d1", UserID: "u1", Status: constants.DeviceStatusOnline, LastSeen: now}))

			// Execute
			err := s.UpsertDevice(ctx, models.Device{ID: "d1", UserID: "u1", Status: constants.DeviceStatusOffline, LastSeen: now.Add(-time.Minute)})

			// Assert
			assert.ErrorIs(t, err, ErrStaleDevice)

			devices, err := s.OnlineDevices(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, devices, 1)
			assert.True(t, devices[0].LastSeen.Equal(now))
		})
	}
}

func TestStore_CommandLifecycle(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			// Setup
			cmd := &models.Command{
				DeviceID: "d1",
				UserID:   "u1",
				Type:     constants.CommandTypeScreenshot,
				Options:  map[string]any{"label": "before"},
			}

			// Execute
			require.NoError(t, s.InsertCommand(ctx, cmd))

			// Assert
			require.NotEmpty(t, cmd.ID)
			stored, err := s.GetCommand(ctx, cmd.ID)
			require.NoError(t, err)
			assert.Equal(t, constants.CommandStatusPending, stored.Status)
			assert.Equal(t, "before", stored.Options["label"])
			assert.Nil(t, stored.Result)

			require.NoError(t, s.CompleteCommand(ctx, cmd.ID, constants.CommandStatusCompleted,
				map[string]any{"base64": "data:image/png;base64,AAAA"}, ""))

			stored, err = s.GetCommand(ctx, cmd.ID)
			require.NoError(t, err)
			assert.Equal(t, constants.CommandStatusCompleted, stored.Status)
			assert.Equal(t, "data:image/png;base64,AAAA", stored.Result["base64"])

			err = s.CompleteCommand(ctx, cmd.ID, constants.CommandStatusFailed, nil, "late")
			assert.ErrorIs(t, err, ErrCommandTerminal)

			stored, err = s.GetCommand(ctx, cmd.ID)
			require.NoError(t, err)
			assert.Equal(t, constants.CommandStatusCompleted, stored.Status)
		})
	}
}

func TestStore_CompleteCommandErrors(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := s.CompleteCommand(ctx, "missing", constants.CommandStatusFailed, nil, "boom")
			assert.ErrorIs(t, err, ErrNotFound)

			cmd := &models.Command{DeviceID: "d1", UserID: "u1", Type: constants.CommandTypeScreenshot}
			require.NoError(t, s.InsertCommand(ctx, cmd))
			err = s.CompleteCommand(ctx, cmd.ID, constants.CommandStatusPending, nil, "")
			assert.ErrorIs(t, err, ErrInvalidStatus)
		})
	}
}

func TestStore_GetCommandNotFound(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetCommand(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestJSONMap_Scan(t *testing.T) {
	var m JSONMap

	require.NoError(t, m.Scan(`{"a":1}`))
	assert.Equal(t, float64(1), m["a"])

	require.NoError(t, m.Scan([]byte(`{"b":"x"}`)))
	assert.Equal(t, "x", m["b"])

	require.NoError(t, m.Scan(nil))
	assert.Nil(t, m)

	assert.Error(t, m.Scan(42))
}
