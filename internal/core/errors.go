package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport is a failed call for a single operation; later calls may succeed
	ErrTransport = errors.New("transport failure")
	// ErrUnavailable means the backend cannot serve any request (unreachable, unauthorized, unknown model)
	ErrUnavailable = errors.New("backend unavailable")
	// ErrShape means a required field was missing from a response payload
	ErrShape = errors.New("unexpected response shape")
	// ErrContractDrift means a provider answered outside the closed label set
	ErrContractDrift = errors.New("label outside closed set")
)

// StageError records which pipeline stage failed and for which message
type StageError struct {
	Stage     string
	MessageID string
	Err       error
}

func (e *StageError) Error() string {
	if e.MessageID == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s (message %s): %v", e.Stage, e.MessageID, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StatusError is a non-success HTTP response from a remote backend
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// Unwrap maps auth and not-found statuses to ErrUnavailable, everything else to ErrTransport
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return ErrUnavailable
	default:
		return ErrTransport
	}
}

// IsRecoverable reports whether err only affects the current operation.
// Unclassified errors are treated as recoverable; unavailability and cancellation are not.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	return !errors.Is(err, ErrUnavailable) && !errors.Is(err, context.Canceled)
}
