package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"

	"github.com/benmeehan/action-verifier/internal/constants"
	"github.com/benmeehan/action-verifier/internal/models"
	"github.com/benmeehan/action-verifier/internal/store"
	"github.com/benmeehan/action-verifier/internal/utils"
)

// Dispatcher hands work to a user's device and waits, bounded in time, for the outcome.
type Dispatcher interface {
	// Dispatch creates one command on the user's most recently seen online device and
	// returns its result payload.
	Dispatch(ctx context.Context, userID, kind string, options map[string]any) (map[string]any, error)
	// WaitForCommand polls an existing command until it is terminal or the wait expires.
	WaitForCommand(ctx context.Context, commandID string) (map[string]any, error)
}

// DispatchService implements Dispatcher on top of a device and command store.
// It only inserts and reads commands; completion is left to the device.
type DispatchService struct {
	// Configuration Fields
	pollInterval time.Duration
	maxWait      time.Duration
	deviceTTL    time.Duration
	minVersion   *semver.Constraints

	// Dependencies
	devices  store.DeviceStore
	commands store.CommandStore
	clock    utils.Clock
	logger   zerolog.Logger
}

// NewDispatchService creates a DispatchService. Online devices not seen within deviceTTL are
// skipped; zero keeps every online device eligible. minAgentVersion is either empty, a bare
// version (meaning ">= version") or a semver constraint such as "^1.4".
func NewDispatchService(devices store.DeviceStore, commands store.CommandStore, clock utils.Clock, pollInterval, maxWait, deviceTTL time.Duration, minAgentVersion string, logger zerolog.Logger) (*DispatchService, error) {
	if pollInterval <= 0 {
		pollInterval = constants.DefaultPollInterval
	}
	if maxWait <= 0 {
		maxWait = constants.DefaultMaxWait
	}
	if clock == nil {
		clock = utils.NewRealClock()
	}

	constraint, err := parseVersionConstraint(minAgentVersion)
	if err != nil {
		return nil, err
	}

	return &DispatchService{
		pollInterval: pollInterval,
		maxWait:      maxWait,
		deviceTTL:    deviceTTL,
		minVersion:   constraint,
		devices:      devices,
		commands:     commands,
		clock:        clock,
		logger:       logger,
	}, nil
}

func parseVersionConstraint(raw string) (*semver.Constraints, error) {
	if raw == "" {
		return nil, nil
	}
	if _, err := semver.NewVersion(raw); err == nil {
		raw = ">= " + raw
	}
	constraint, err := semver.NewConstraint(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid min agent version %q: %w", raw, err)
	}
	return constraint, nil
}

// Dispatch implements Dispatcher.
func (ds *DispatchService) Dispatch(ctx context.Context, userID, kind string, options map[string]any) (map[string]any, error) {
	device, err := ds.selectDevice(ctx, userID)
	if err != nil {
		return nil, err
	}

	cmd := &models.Command{
		DeviceID: device.ID,
		UserID:   userID,
		Type:     kind,
		Options:  options,
	}
	if err := ds.commands.InsertCommand(ctx, cmd); err != nil {
		ds.logger.Error().Err(err).Str("user_id", userID).Str("device_id", device.ID).Str("type", kind).Msg("Failed to create command")
		return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	ds.logger.Debug().
		Str("command_id", cmd.ID).
		Str("device_id", device.ID).
		Str("type", kind).
		Msg("Command dispatched, waiting for device")

	return ds.WaitForCommand(ctx, cmd.ID)
}

// selectDevice picks the most recently seen live online device that satisfies the version constraint.
func (ds *DispatchService) selectDevice(ctx context.Context, userID string) (models.Device, error) {
	devices, err := ds.devices.OnlineDevices(ctx, userID)
	if err != nil {
		return models.Device{}, fmt.Errorf("%w: device lookup: %v", ErrDispatchFailed, err)
	}

	for _, device := range devices {
		if ds.deviceTTL > 0 && ds.clock.Now().Sub(device.LastSeen) > ds.deviceTTL {
			ds.logger.Debug().Str("device_id", device.ID).Time("last_seen", device.LastSeen).Msg("Skipping device with expired heartbeat")
			continue
		}
		if ds.minVersion == nil {
			return device, nil
		}
		version, err := semver.NewVersion(device.AgentVersion)
		if err != nil {
			ds.logger.Debug().Str("device_id", device.ID).Str("agent_version", device.AgentVersion).Msg("Skipping device with unparseable agent version")
			continue
		}
		if ds.minVersion.Check(version) {
			return device, nil
		}
	}

	ds.logger.Warn().Str("user_id", userID).Int("online", len(devices)).Msg("No eligible device for user")
	return models.Device{}, fmt.Errorf("%w: user %s", ErrNoDeviceAvailable, userID)
}

// WaitForCommand implements Dispatcher. Status is read every poll interval until the command
// completes with a result, fails, or the maximum wait elapses. A timeout leaves the command
// pending; the device may still finish it later.
func (ds *DispatchService) WaitForCommand(ctx context.Context, commandID string) (map[string]any, error) {
	deadline := ds.clock.Now().Add(ds.maxWait)
	logger := ds.logger.With().Str("command_id", commandID).Logger()

	for {
		cmd, err := ds.commands.GetCommand(ctx, commandID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
		case err != nil:
			logger.Warn().Err(err).Msg("Failed to read command status, retrying")
		case cmd.Status == constants.CommandStatusCompleted && cmd.Result != nil:
			return cmd.Result, nil
		case cmd.Status == constants.CommandStatusFailed:
			logger.Warn().Str("reason", cmd.Error).Msg("Device reported command failure")
			return nil, fmt.Errorf("%w: %s", ErrCommandFailed, cmd.Error)
		}

		if !ds.clock.Now().Before(deadline) {
			logger.Warn().Dur("max_wait", ds.maxWait).Msg("Timed out waiting for device")
			return nil, fmt.Errorf("%w: command %s after %s", ErrTimeout, commandID, ds.maxWait)
		}

		if err := ds.clock.Sleep(ctx, ds.pollInterval); err != nil {
			return nil, err
		}
	}
}
