package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/benmeehan/action-verifier/internal/constants"
	"github.com/benmeehan/action-verifier/internal/models"
	"github.com/benmeehan/action-verifier/internal/utils"
	"github.com/benmeehan/action-verifier/pkg/httputils"
	"github.com/benmeehan/action-verifier/pkg/s3"
)

// ScreenshotCapturer captures the current display of a user's device.
type ScreenshotCapturer interface {
	Capture(ctx context.Context, userID, correlationID, label string) models.CaptureResult
}

// ScreenshotService captures screenshots through the dispatcher and stores them in object storage.
type ScreenshotService struct {
	bucket string

	dispatcher Dispatcher
	storage    s3.ObjectStorageClient
	clock      utils.Clock
	logger     zerolog.Logger
}

// NewScreenshotService creates a ScreenshotService. A nil storage client disables uploads,
// so every capture falls back to the inline image.
func NewScreenshotService(dispatcher Dispatcher, storage s3.ObjectStorageClient, bucket string, clock utils.Clock, logger zerolog.Logger) *ScreenshotService {
	if clock == nil {
		clock = utils.NewRealClock()
	}
	return &ScreenshotService{
		bucket:     bucket,
		dispatcher: dispatcher,
		storage:    storage,
		clock:      clock,
		logger:     logger,
	}
}

// Capture implements ScreenshotCapturer. Dispatch failures are returned verbatim as an
// unsuccessful result. Upload failures degrade to the inline image with UploadFallback set.
func (ss *ScreenshotService) Capture(ctx context.Context, userID, correlationID, label string) models.CaptureResult {
	logger := ss.logger.With().Str("user_id", userID).Str("correlation_id", correlationID).Str("label", label).Logger()

	payload, err := ss.dispatcher.Dispatch(ctx, userID, constants.CommandTypeScreenshot, map[string]any{
		constants.OptionLabel:         label,
		constants.OptionCorrelationID: correlationID,
	})
	capturedAt := ss.clock.Now()
	if err != nil {
		logger.Warn().Err(err).Msg("Screenshot dispatch failed")
		return models.CaptureResult{Success: false, Timestamp: capturedAt.UnixMilli(), Error: err.Error()}
	}

	encoded, _ := payload[constants.ResultKeyImage].(string)
	image, err := httputils.DecodeDataURI(encoded)
	if err != nil || len(image.Data) == 0 {
		if err == nil {
			err = fmt.Errorf("empty image")
		}
		logger.Error().Err(err).Msg("Device returned an unusable screenshot")
		return models.CaptureResult{Success: false, Timestamp: capturedAt.UnixMilli(), Error: fmt.Sprintf("invalid screenshot payload: %v", err)}
	}

	contentType, ext := detectImageType(image)
	objectName := ObjectName(userID, correlationID, label, capturedAt, ext)

	info, err := ss.upload(ctx, objectName, image.Data, contentType)
	if err != nil {
		logger.Warn().
			Err(err).
			Bool("upload_fallback", true).
			Str("object", objectName).
			Msg("Screenshot upload failed, returning inline image")
		return models.CaptureResult{
			Success:        true,
			InlineImage:    httputils.EncodeDataURI(contentType, image.Data),
			UploadFallback: true,
			Timestamp:      capturedAt.UnixMilli(),
		}
	}

	logger.Info().
		Str("object", info.ObjectName).
		Str("size", humanize.Bytes(uint64(len(image.Data)))).
		Str("content_type", contentType).
		Msg("Screenshot stored")

	return models.CaptureResult{
		Success:    true,
		URL:        info.URL,
		ObjectName: info.ObjectName,
		Timestamp:  capturedAt.UnixMilli(),
	}
}

func (ss *ScreenshotService) upload(ctx context.Context, objectName string, data []byte, contentType string) (s3.UploadInfo, error) {
	if ss.storage == nil {
		return s3.UploadInfo{}, fmt.Errorf("%w: object storage not configured", ErrUploadFailed)
	}
	info, err := ss.storage.UploadObject(ctx, ss.bucket, objectName, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return s3.UploadInfo{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if info.ObjectName == "" {
		info.ObjectName = objectName
	}
	return info, nil
}

// detectImageType sniffs the decoded bytes and falls back to the declared type, then PNG.
func detectImageType(image httputils.DataURI) (string, string) {
	detected := mimetype.Detect(image.Data)
	if strings.HasPrefix(detected.String(), "image/") && detected.Extension() != "" {
		return strings.SplitN(detected.String(), ";", 2)[0], detected.Extension()
	}
	if declared := mimetype.Lookup(image.MediaType); declared != nil && strings.HasPrefix(image.MediaType, "image/") && declared.Extension() != "" {
		return image.MediaType, declared.Extension()
	}
	return "image/png", ".png"
}

// ObjectName returns the storage key {user}/{correlation}/{label}_{epoch ms}_{nonce}{ext}.
// The nonce keeps two captures taken within the same millisecond apart.
func ObjectName(userID, correlationID, label string, at time.Time, ext string) string {
	if label = pathSegment(label); label == "" {
		label = "capture"
	}
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s/%s/%s_%d_%s%s", pathSegment(userID), pathSegment(correlationID), label, at.UnixMilli(), nonce, ext)
}

func pathSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', '\t', '\n':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
}
