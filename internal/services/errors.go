package services

import (
	"errors"
	"fmt"
)

var (
	ErrNoDeviceAvailable = errors.New("no online device available")
	ErrDispatchFailed    = errors.New("dispatch failed")
	ErrTimeout           = errors.New("timed out waiting for device")
	ErrCommandFailed     = errors.New("command failed on device")
	ErrUploadFailed      = errors.New("screenshot upload failed")
	ErrGuardViolation    = errors.New("VIOLATION: success reported without valid evidence")
	ErrVerifierBusy      = errors.New("verifier busy, job rejected")
)

// GuardViolationError is raised when a result claims success without acceptable evidence.
// It is a contract violation by the caller and must not be retried or swallowed.
type GuardViolationError struct {
	Reason  string
	Payload string // JSON of the offending result
}

func (e *GuardViolationError) Error() string {
	return fmt.Sprintf("%s: %s; payload: %s", ErrGuardViolation, e.Reason, e.Payload)
}

func (e *GuardViolationError) Unwrap() error {
	return ErrGuardViolation
}
