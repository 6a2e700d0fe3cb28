package model

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	// ErrRemoteUnavailable signals that the backend cart API could not be
	// reached or returned an unusable response. Callers fall back to local
	// state; this is never surfaced to UI code.
	ErrRemoteUnavailable = errors.New("remote cart unavailable")

	// ErrUnauthorized signals the bearer token was rejected by the backend.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformedPayload signals the backend response was missing the
	// success/cart envelope fields. Handled identically to unavailability.
	ErrMalformedPayload = errors.New("malformed remote payload")

	// ErrStorage signals the durable store failed (unavailable, quota).
	// In-memory state stays authoritative for the rest of the session.
	ErrStorage = errors.New("storage failure")
)

// SyncError is a structured error carrying an operation code for logging.
// Implements error and supports unwrapping.
type SyncError struct {
	Code    string // e.g. "REMOTE_UNAVAILABLE", "STORAGE"
	Message string
	Err     error // wrapped cause
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewRemoteError wraps a backend failure so callers can errors.Is it
// against ErrRemoteUnavailable.
func NewRemoteError(op string, err error) *SyncError {
	return &SyncError{
		Code:    "REMOTE_UNAVAILABLE",
		Message: fmt.Sprintf("cart %s failed", op),
		Err:     fmt.Errorf("%w: %v", ErrRemoteUnavailable, err),
	}
}

// NewUnauthorizedError wraps a token rejection.
func NewUnauthorizedError(op string) *SyncError {
	return &SyncError{
		Code:    "UNAUTHORIZED",
		Message: fmt.Sprintf("cart %s rejected", op),
		Err:     ErrUnauthorized,
	}
}

// NewPayloadError wraps a malformed envelope.
func NewPayloadError(op string, err error) *SyncError {
	return &SyncError{
		Code:    "MALFORMED_PAYLOAD",
		Message: fmt.Sprintf("cart %s returned unusable body", op),
		Err:     fmt.Errorf("%w: %v", ErrMalformedPayload, err),
	}
}

// NewStorageError wraps a durable-store failure.
func NewStorageError(op string, err error) *SyncError {
	return &SyncError{
		Code:    "STORAGE",
		Message: fmt.Sprintf("local store %s failed", op),
		Err:     fmt.Errorf("%w: %v", ErrStorage, err),
	}
}

// IsCanceled reports whether err is a cancellation rather than a genuine
// failure. Superseded in-flight requests are aborted through their context;
// those aborts must never be logged as errors or trigger fallback logic.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
