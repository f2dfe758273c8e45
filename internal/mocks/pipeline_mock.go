package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/action-verifier/internal/models"
	"github.com/benmeehan/action-verifier/internal/services"
	"github.com/benmeehan/action-verifier/pkg/vision"
)

// MockDispatcher is a mock implementation of services.Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, userID, kind string, options map[string]any) (map[string]any, error) {
	args := m.Called(ctx, userID, kind, options)
	result, _ := args.Get(0).(map[string]any)
	return result, args.Error(1)
}

func (m *MockDispatcher) WaitForCommand(ctx context.Context, commandID string) (map[string]any, error) {
	args := m.Called(ctx, commandID)
	result, _ := args.Get(0).(map[string]any)
	return result, args.Error(1)
}

// MockScreenshotCapturer is a mock implementation of services.ScreenshotCapturer
type MockScreenshotCapturer struct {
	mock.Mock
}

func (m *MockScreenshotCapturer) Capture(ctx context.Context, userID, correlationID, label string) models.CaptureResult {
	args := m.Called(ctx, userID, correlationID, label)
	return args.Get(0).(models.CaptureResult)
}

// MockScreenshotVerifier is a mock implementation of services.ScreenshotVerifier
type MockScreenshotVerifier struct {
	mock.Mock
}

func (m *MockScreenshotVerifier) Verify(ctx context.Context, req vision.Request, preferred string) vision.Result {
	args := m.Called(ctx, req, preferred)
	return args.Get(0).(vision.Result)
}

// MockActionExecutor is a mock implementation of services.ActionExecutor
type MockActionExecutor struct {
	mock.Mock
}

func (m *MockActionExecutor) Execute(ctx context.Context, job models.ActionJob) (map[string]any, error) {
	args := m.Called(ctx, job)
	result, _ := args.Get(0).(map[string]any)
	return result, args.Error(1)
}

// MockAuditRecorder is a mock implementation of services.AuditRecorder
type MockAuditRecorder struct {
	mock.Mock
}

func (m *MockAuditRecorder) Append(record models.AuditRecord) error {
	args := m.Called(record)
	return args.Error(0)
}

// MockActionRunner is a mock implementation of services.ActionRunner
type MockActionRunner struct {
	mock.Mock
}

func (m *MockActionRunner) Execute(ctx context.Context, job models.ActionJob, executor services.ActionExecutor) (models.VerifiedResult, error) {
	args := m.Called(ctx, job, executor)
	return args.Get(0).(models.VerifiedResult), args.Error(1)
}
