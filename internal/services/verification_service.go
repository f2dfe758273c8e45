package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/benmeehan/action-verifier/internal/models"
	"github.com/benmeehan/action-verifier/internal/utils"
	"github.com/benmeehan/action-verifier/pkg/mqtt"
)

// publishTimeout bounds a result publish. Results are published even while stopping.
const publishTimeout = 10 * time.Second

// ActionRunner executes one ActionJob end to end. *Orchestrator implements it.
type ActionRunner interface {
	Execute(ctx context.Context, job models.ActionJob, executor ActionExecutor) (models.VerifiedResult, error)
}

// VerificationService accepts ActionJobs over MQTT, runs them on a worker pool and
// publishes each guarded result to {resultsTopic}/{correlation_id}.
type VerificationService struct {
	// Configuration Fields
	jobsTopic    string
	resultsTopic string
	qos          int

	// Dependencies
	runner     ActionRunner
	executor   ActionExecutor
	mqttClient mqtt.MQTTClient
	pool       *utils.WorkerPool
	logger     zerolog.Logger

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc
}

// NewVerificationService initializes a VerificationService with poolSize workers.
func NewVerificationService(jobsTopic, resultsTopic string, qos, poolSize int, runner ActionRunner, executor ActionExecutor, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *VerificationService {
	ctx, cancel := context.WithCancel(context.Background())

	return &VerificationService{
		jobsTopic:    jobsTopic,
		resultsTopic: strings.TrimSuffix(resultsTopic, "/"),
		qos:          qos,
		runner:       runner,
		executor:     executor,
		mqttClient:   mqttClient,
		pool:         utils.NewWorkerPool(poolSize),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start subscribes to the jobs topic.
func (vs *VerificationService) Start() error {
	vs.logger.Info().Str("topic", vs.jobsTopic).Msg("Starting VerificationService and subscribing to MQTT topic")
	token := vs.mqttClient.Subscribe(vs.jobsTopic, byte(vs.qos), vs.HandleJob)
	token.Wait()
	if err := token.Error(); err != nil {
		vs.logger.Error().Err(err).Str("topic", vs.jobsTopic).Msg("Failed to subscribe to MQTT topic")
		return err
	}

	vs.logger.Info().Str("topic", vs.jobsTopic).Msg("Successfully subscribed to MQTT topic")
	return nil
}

// Stop cancels running jobs, drains the pool and unsubscribes.
func (vs *VerificationService) Stop() error {
	vs.cancel()
	vs.pool.Shutdown()

	token := vs.mqttClient.Unsubscribe(vs.jobsTopic)
	token.Wait()
	if err := token.Error(); err != nil {
		vs.logger.Error().Err(err).Str("topic", vs.jobsTopic).Msg("Failed to unsubscribe from MQTT topic")
		return err
	}

	vs.logger.Info().Msg("VerificationService stopped successfully")
	return nil
}

// HandleJob decodes an ActionJob and queues it on the worker pool.
func (vs *VerificationService) HandleJob(client MQTT.Client, msg MQTT.Message) {
	var job models.ActionJob
	if err := json.Unmarshal(msg.Payload(), &job); err != nil {
		vs.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Dropping malformed verification job")
		return
	}
	if job.UserID == "" || job.CorrelationID == "" {
		vs.logger.Warn().Str("topic", msg.Topic()).Msg("Dropping verification job without user or correlation id")
		return
	}

	// Handlers share the client's router goroutine with device results, so never wait here.
	err := vs.pool.TrySubmit(func() {
		vs.RunJob(vs.ctx, job)
	})
	switch {
	case errors.Is(err, utils.ErrPoolBusy):
		vs.logger.Warn().Str("correlation_id", job.CorrelationID).Int("busy_workers", vs.pool.Busy()).Msg("All workers busy, rejecting verification job")
		go vs.reject(job, ErrVerifierBusy)
		return
	case err != nil:
		vs.logger.Warn().Err(err).Str("correlation_id", job.CorrelationID).Msg("Received job but service is stopping, ignoring")
		return
	}
	vs.logger.Debug().Str("correlation_id", job.CorrelationID).Int("busy_workers", vs.pool.Busy()).Msg("Verification job queued")
}

// reject publishes a failure for a job that was never run.
func (vs *VerificationService) reject(job models.ActionJob, cause error) {
	result := models.VerifiedResult{
		Success:       false,
		Message:       cause.Error(),
		CorrelationID: job.CorrelationID,
	}
	if err := vs.publishResult(job.CorrelationID, result); err != nil {
		vs.logger.Error().Err(err).Str("correlation_id", job.CorrelationID).Msg("Failed to publish job rejection")
	}
}

// RunJob executes job and publishes its result. Guard violations are published as failures.
func (vs *VerificationService) RunJob(ctx context.Context, job models.ActionJob) {
	logger := vs.logger.With().Str("correlation_id", job.CorrelationID).Logger()

	result, err := vs.runner.Execute(ctx, job, vs.executor)
	if err != nil {
		var violation *GuardViolationError
		if errors.As(err, &violation) {
			logger.Error().Err(err).Msg("Verification rejected by evidence guard")
		} else {
			logger.Warn().Err(err).Msg("Verification did not complete")
		}
		result = models.VerifiedResult{
			Success:       false,
			Message:       err.Error(),
			CorrelationID: job.CorrelationID,
		}
	}

	if err := vs.publishResult(job.CorrelationID, result); err != nil {
		logger.Error().Err(err).Msg("Failed to publish verification result")
	}
}

func (vs *VerificationService) publishResult(correlationID string, result models.VerifiedResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	topic := fmt.Sprintf("%s/%s", vs.resultsTopic, correlationID)
	token := vs.mqttClient.Publish(topic, byte(vs.qos), false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %s: timed out after %s", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return err
	}

	vs.logger.Info().Str("topic", topic).Bool("success", result.Success).Msg("Verification result published")
	return nil
}
