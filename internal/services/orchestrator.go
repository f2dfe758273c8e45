package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/benmeehan/action-verifier/internal/constants"
	"github.com/benmeehan/action-verifier/internal/models"
	"github.com/benmeehan/action-verifier/internal/utils"
	"github.com/benmeehan/action-verifier/pkg/vision"
)

// ActionExecutor performs the action being verified. The returned map is the device's
// result payload, if any; a "url" entry is recorded as URL evidence.
type ActionExecutor interface {
	Execute(ctx context.Context, job models.ActionJob) (map[string]any, error)
}

// ActionExecutorFunc adapts a function to ActionExecutor.
type ActionExecutorFunc func(ctx context.Context, job models.ActionJob) (map[string]any, error)

func (f ActionExecutorFunc) Execute(ctx context.Context, job models.ActionJob) (map[string]any, error) {
	return f(ctx, job)
}

// RemoteActionExecutor runs Action.Kind on the user's device through the dispatcher.
type RemoteActionExecutor struct {
	dispatcher Dispatcher
}

func NewRemoteActionExecutor(dispatcher Dispatcher) *RemoteActionExecutor {
	return &RemoteActionExecutor{dispatcher: dispatcher}
}

func (e *RemoteActionExecutor) Execute(ctx context.Context, job models.ActionJob) (map[string]any, error) {
	if job.Action.Kind == "" {
		return nil, fmt.Errorf("action kind is required")
	}
	return e.dispatcher.Dispatch(ctx, job.UserID, job.Action.Kind, job.Action.Options)
}

// ScreenshotVerifier grades a screenshot against criteria. *vision.Verifier implements it.
type ScreenshotVerifier interface {
	Verify(ctx context.Context, req vision.Request, preferred string) vision.Result
}

// AuditRecorder persists guarded results.
type AuditRecorder interface {
	Append(record models.AuditRecord) error
}

// Orchestrator runs capture, action, capture, verify and guard for one ActionJob.
type Orchestrator struct {
	minConfidence    float64
	strictConfidence bool

	capturer ScreenshotCapturer
	verifier ScreenshotVerifier
	guard    *EvidenceGuard
	audit    AuditRecorder
	clock    utils.Clock
	logger   zerolog.Logger
}

// OrchestratorOptions tunes the confidence floor.
type OrchestratorOptions struct {
	MinConfidence    float64
	StrictConfidence bool
}

// NewOrchestrator creates an Orchestrator. audit may be nil.
func NewOrchestrator(capturer ScreenshotCapturer, verifier ScreenshotVerifier, guard *EvidenceGuard, audit AuditRecorder, clock utils.Clock, opts OrchestratorOptions, logger zerolog.Logger) *Orchestrator {
	if clock == nil {
		clock = utils.NewRealClock()
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = constants.DefaultMinConfidence
	}
	return &Orchestrator{
		minConfidence:    opts.MinConfidence,
		strictConfidence: opts.StrictConfidence,
		capturer:         capturer,
		verifier:         verifier,
		guard:            guard,
		audit:            audit,
		clock:            clock,
		logger:           logger,
	}
}

// Execute runs job with executor and returns the guarded result. Recoverable failures come
// back as an unsuccessful result with a nil error; only a *GuardViolationError or a
// context error is returned as an error.
func (o *Orchestrator) Execute(ctx context.Context, job models.ActionJob, executor ActionExecutor) (models.VerifiedResult, error) {
	if job.CorrelationID == "" {
		job.CorrelationID = uuid.NewString()
	}
	logger := o.logger.With().Str("correlation_id", job.CorrelationID).Str("user_id", job.UserID).Logger()
	logger.Info().Str("action", job.Action.Kind).Int("criteria", len(job.Criteria)).Msg("Verifying action")

	var evidence []models.Evidence

	before := o.capturer.Capture(ctx, job.UserID, job.CorrelationID, constants.LabelBefore)
	if err := ctx.Err(); err != nil {
		return models.VerifiedResult{}, err
	}
	if before.Success {
		evidence = append(evidence, screenshotEvidence(constants.LabelBefore, before))
	} else {
		logger.Warn().Str("error", before.Error).Msg("Before screenshot failed, continuing without it")
	}

	outcome, err := executor.Execute(ctx, job)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.VerifiedResult{}, ctxErr
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Action failed")
		return o.finish(job, failure(job.CorrelationID, fmt.Sprintf("action failed: %v", err), evidence), logger)
	}

	after := o.capturer.Capture(ctx, job.UserID, job.CorrelationID, constants.LabelAfter)
	if err := ctx.Err(); err != nil {
		return models.VerifiedResult{}, err
	}
	if !after.Success {
		logger.Warn().Str("error", after.Error).Msg("After screenshot failed")
		return o.finish(job, failure(job.CorrelationID, fmt.Sprintf("after screenshot failed: %s", after.Error), evidence), logger)
	}
	evidence = append(evidence, screenshotEvidence(constants.LabelAfter, after))

	verdict := o.verifier.Verify(ctx, vision.Request{
		Screenshot:   after.ImageRef(),
		Criteria:     job.Criteria,
		Action:       job.Description,
		ExpectedURL:  job.ExpectedURL,
		ExpectedText: job.ExpectedText,
	}, job.Provider)
	if err := ctx.Err(); err != nil {
		return models.VerifiedResult{}, err
	}

	verifiedAt := o.clock.Now()
	evidence = append(evidence, models.NewEvidence(models.VisualConfirmationEvidence{
		Description:     verdict.WhatISee,
		Confidence:      verdict.Confidence,
		MatchedCriteria: verdict.MatchedCriteria,
		FailedCriteria:  verdict.FailedCriteria,
		Provider:        verdict.Provider,
		Degraded:        verdict.Outcome == vision.OutcomeDegraded,
	}, constants.MethodVisionModel, verifiedAt))

	var urlMismatch string
	if job.ExpectedURL != "" {
		actual, _ := outcome[constants.ResultKeyURL].(string)
		if actual != "" && actual != job.ExpectedURL {
			logger.Warn().Str("expected", job.ExpectedURL).Str("actual", actual).Msg("Device is not on the expected URL")
			urlMismatch = fmt.Sprintf("device is on %s, expected %s", actual, job.ExpectedURL)
		}
		evidence = append(evidence, models.NewEvidence(models.URLEvidence{Expected: job.ExpectedURL, Actual: actual}, constants.MethodExpectedURL, verifiedAt))
	}

	result := models.VerifiedResult{
		Success:       verdict.Verified,
		Message:       verdictMessage(verdict),
		Evidence:      evidence,
		Confidence:    verdict.Confidence,
		CorrelationID: job.CorrelationID,
	}

	// A URL reported by the device outranks the model's reading of the screenshot.
	if urlMismatch != "" {
		result.Success = false
		result.Message = fmt.Sprintf("not verified: %s (%s)", urlMismatch, result.Message)
		return o.finish(job, result, logger)
	}

	if result.Success && verdict.Confidence < o.minConfidence {
		result.LowConfidence = true
		if o.strictConfidence {
			result.Success = false
			result.Message = fmt.Sprintf("inconclusive: confidence %.2f below %.2f (%s)", verdict.Confidence, o.minConfidence, result.Message)
		}
	}

	return o.finish(job, result, logger)
}

// finish runs the guard and records the outcome.
func (o *Orchestrator) finish(job models.ActionJob, result models.VerifiedResult, logger zerolog.Logger) (models.VerifiedResult, error) {
	guarded, err := o.guard.Validate(result)
	if err != nil {
		var violation *GuardViolationError
		if errors.As(err, &violation) {
			logger.Error().Str("reason", violation.Reason).Str("payload", violation.Payload).Msg("Evidence guard violation")
		}
		return models.VerifiedResult{}, err
	}

	if o.audit != nil {
		record := models.AuditRecord{
			CorrelationID: job.CorrelationID,
			UserID:        job.UserID,
			Action:        job.Action,
			Description:   job.Description,
			Result:        guarded,
			RecordedAt:    o.clock.Now().UTC(),
		}
		if err := o.audit.Append(record); err != nil {
			logger.Warn().Err(err).Msg("Failed to append audit record")
		}
	}

	logger.Info().
		Bool("success", guarded.Success).
		Float64("confidence", guarded.Confidence).
		Bool("low_confidence", guarded.LowConfidence).
		Int("evidence", len(guarded.Evidence)).
		Msg("Action verification finished")
	return guarded, nil
}

func screenshotEvidence(label string, capture models.CaptureResult) models.Evidence {
	data := models.ScreenshotEvidence{Label: label, URL: capture.URL}
	if capture.URL == "" {
		data.InlineImage = capture.InlineImage
	}
	return models.NewEvidence(data, constants.MethodRemoteCapture, time.UnixMilli(capture.Timestamp))
}

func failure(correlationID, message string, evidence []models.Evidence) models.VerifiedResult {
	return models.VerifiedResult{
		Success:       false,
		Message:       message,
		Evidence:      evidence,
		CorrelationID: correlationID,
	}
}

func verdictMessage(verdict vision.Result) string {
	switch verdict.Outcome {
	case vision.OutcomeDegraded:
		return "assumed success: " + verdict.Details
	case vision.OutcomeVerified:
		if len(verdict.MatchedCriteria) == 0 {
			return "verified: " + verdict.Details
		}
		return "verified: " + strings.Join(verdict.MatchedCriteria, "; ")
	default:
		if len(verdict.FailedCriteria) == 0 {
			return "not verified: " + verdict.Details
		}
		return fmt.Sprintf("not verified: failed %s (%s)", strings.Join(verdict.FailedCriteria, "; "), verdict.Details)
	}
}
