package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/benmeehan/action-verifier/internal/models"
	"github.com/benmeehan/action-verifier/internal/store"
	"github.com/benmeehan/action-verifier/pkg/mqtt"
)

// RelayService bridges the command store and devices over MQTT. New commands are published
// to {commandsTopic}/{device_id}; results on {resultsTopic}/{device_id} and heartbeats on
// {heartbeatsTopic}/{device_id} are written back to the store.
type RelayService struct {
	// Configuration Fields
	commandsTopic   string
	resultsTopic    string
	heartbeatsTopic string
	qos             int

	// Dependencies
	backing    store.Store
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger

	// Internal state management
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopped  bool
}

var _ store.Store = (*RelayService)(nil)

// NewRelayService initializes a RelayService decorating backing.
func NewRelayService(commandsTopic, resultsTopic, heartbeatsTopic string, qos int, backing store.Store, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *RelayService {
	return &RelayService{
		commandsTopic:   strings.TrimSuffix(commandsTopic, "/"),
		resultsTopic:    strings.TrimSuffix(resultsTopic, "/"),
		heartbeatsTopic: strings.TrimSuffix(heartbeatsTopic, "/"),
		qos:             qos,
		backing:         backing,
		mqttClient:      mqttClient,
		logger:          logger,
		stopChan:        make(chan struct{}),
	}
}

// Start subscribes to device heartbeats and command results.
func (rs *RelayService) Start() error {
	subscriptions := map[string]MQTT.MessageHandler{
		rs.heartbeatsTopic + "/+": rs.HandleHeartbeat,
		rs.resultsTopic + "/+":    rs.HandleResult,
	}

	for topic, handler := range subscriptions {
		token := rs.mqttClient.Subscribe(topic, byte(rs.qos), handler)
		token.Wait()
		if err := token.Error(); err != nil {
			rs.logger.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
			return err
		}
		rs.logger.Info().Str("topic", topic).Msg("Successfully subscribed to MQTT topic")
	}
	return nil
}

// Stop unsubscribes and waits for in-flight handlers.
func (rs *RelayService) Stop() error {
	rs.mu.Lock()
	if !rs.stopped {
		rs.stopped = true
		close(rs.stopChan)
	}
	rs.mu.Unlock()
	rs.wg.Wait()

	token := rs.mqttClient.Unsubscribe(rs.heartbeatsTopic+"/+", rs.resultsTopic+"/+")
	token.Wait()
	if err := token.Error(); err != nil {
		rs.logger.Error().Err(err).Msg("Failed to unsubscribe from MQTT topics")
		return err
	}

	rs.logger.Info().Msg("RelayService stopped successfully")
	return nil
}

// enter registers a handler run unless the service is stopping.
func (rs *RelayService) enter() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	select {
	case <-rs.stopChan:
		return false
	default:
		rs.wg.Add(1)
		return true
	}
}

// HandleHeartbeat refreshes the device record from a heartbeat published on
// {heartbeatsTopic}/{device_id}. The topic names the device; a payload naming another
// device is dropped, as is any heartbeat that would move a device to another user.
func (rs *RelayService) HandleHeartbeat(client MQTT.Client, msg MQTT.Message) {
	if !rs.enter() {
		rs.logger.Warn().Msg("Received heartbeat but service is stopping, ignoring")
		return
	}
	defer rs.wg.Done()

	deviceID := topicDeviceID(msg.Topic())
	logger := rs.logger.With().Str("topic", msg.Topic()).Str("device_id", deviceID).Logger()

	var heartbeat models.Heartbeat
	if err := json.Unmarshal(msg.Payload(), &heartbeat); err != nil {
		logger.Warn().Err(err).Msg("Dropping malformed heartbeat")
		return
	}
	if heartbeat.DeviceID != "" && heartbeat.DeviceID != deviceID {
		logger.Warn().Str("claimed_device_id", heartbeat.DeviceID).Msg("Dropping heartbeat for a device other than its topic")
		return
	}
	heartbeat.DeviceID = deviceID
	if deviceID == "" || heartbeat.UserID == "" {
		logger.Warn().Msg("Dropping heartbeat without device or user id")
		return
	}

	err := rs.backing.UpsertDevice(context.Background(), heartbeat.ToDevice())
	switch {
	case errors.Is(err, store.ErrDeviceOwnership):
		logger.Warn().Str("user_id", heartbeat.UserID).Msg("Dropping heartbeat claiming a device owned by another user")
		return
	case errors.Is(err, store.ErrStaleDevice):
		logger.Debug().Time("timestamp", heartbeat.Timestamp).Msg("Ignoring out-of-order heartbeat")
		return
	case err != nil:
		logger.Error().Err(err).Msg("Failed to record heartbeat")
		return
	}
	logger.Debug().Str("status", heartbeat.Status).Msg("Heartbeat recorded")
}

// topicDeviceID returns the last segment of a per-device topic.
func topicDeviceID(topic string) string {
	return topic[strings.LastIndex(topic, "/")+1:]
}

// HandleResult completes a command from a device result published on {resultsTopic}/{device_id}.
// Results for commands assigned to another device are dropped.
func (rs *RelayService) HandleResult(client MQTT.Client, msg MQTT.Message) {
	if !rs.enter() {
		rs.logger.Warn().Msg("Received command result but service is stopping, ignoring")
		return
	}
	defer rs.wg.Done()

	deviceID := topicDeviceID(msg.Topic())
	logger := rs.logger.With().Str("topic", msg.Topic()).Str("device_id", deviceID).Logger()

	var result models.CommandResult
	if err := json.Unmarshal(msg.Payload(), &result); err != nil {
		logger.Warn().Err(err).Msg("Dropping malformed command result")
		return
	}

	ctx := context.Background()
	cmd, err := rs.backing.GetCommand(ctx, result.CommandID)
	if err != nil {
		logger.Warn().Err(err).Str("command_id", result.CommandID).Msg("Dropping result for unknown command")
		return
	}
	if cmd.DeviceID != deviceID {
		logger.Warn().Str("command_id", result.CommandID).Str("assigned_to", cmd.DeviceID).Msg("Dropping result from a device the command was not sent to")
		return
	}

	if err := rs.backing.CompleteCommand(ctx, result.CommandID, result.Status, result.Result, result.Error); err != nil {
		logger.Warn().Err(err).Str("command_id", result.CommandID).Msg("Failed to complete command")
		return
	}
	logger.Debug().Str("command_id", result.CommandID).Str("status", result.Status).Msg("Command completed by device")
}

// InsertCommand stores cmd and publishes it to the target device. A publish failure is
// returned as an error; the stored command then stays pending.
func (rs *RelayService) InsertCommand(ctx context.Context, cmd *models.Command) error {
	if err := rs.backing.InsertCommand(ctx, cmd); err != nil {
		return err
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding command %s: %w", cmd.ID, err)
	}

	topic := fmt.Sprintf("%s/%s", rs.commandsTopic, cmd.DeviceID)
	token := rs.mqttClient.Publish(topic, byte(rs.qos), false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			rs.logger.Error().Err(err).Str("topic", topic).Str("command_id", cmd.ID).Msg("Failed to publish command")
			return fmt.Errorf("publishing command %s: %w", cmd.ID, err)
		}
	case <-ctx.Done():
		rs.logger.Warn().Str("topic", topic).Msg("Publish operation cancelled")
		return ctx.Err()
	}

	rs.logger.Debug().Str("topic", topic).Str("command_id", cmd.ID).Msg("Command published")
	return nil
}

func (rs *RelayService) GetCommand(ctx context.Context, id string) (models.Command, error) {
	return rs.backing.GetCommand(ctx, id)
}

func (rs *RelayService) CompleteCommand(ctx context.Context, id, status string, result map[string]any, errMsg string) error {
	return rs.backing.CompleteCommand(ctx, id, status, result, errMsg)
}

func (rs *RelayService) UpsertDevice(ctx context.Context, device models.Device) error {
	return rs.backing.UpsertDevice(ctx, device)
}

func (rs *RelayService) OnlineDevices(ctx context.Context, userID string) ([]models.Device, error) {
	return rs.backing.OnlineDevices(ctx, userID)
}

func (rs *RelayService) Close() error {
	return rs.backing.Close()
}
