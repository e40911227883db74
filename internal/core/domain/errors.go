package domain

import (
	"errors"
	"fmt"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSyncInProgress indicates another invocation holds the sync unit
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrTokenExpired indicates the auth token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the auth token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")

	// ErrRepositoryNotFound indicates no destination is registered for an item type.
	// It is a fatal configuration error and is never retried.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrMalformedRecord indicates an upstream item failed boundary validation
	ErrMalformedRecord = errors.New("malformed record")

	// ErrUnknownEventType indicates an invocation event without a handler
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrServiceUnavailable indicates a backing service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)

// DefaultRetryAfterSeconds is used when a throttled response carries no usable hint.
const DefaultRetryAfterSeconds = 60

// RateLimitError is a throttled upstream call
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %ds", e.RetryAfterSeconds)
}

// UpstreamError is any other upstream failure
type UpstreamError struct {
	Cause error
}

func (e *UpstreamError) Error() string {
	if e.Cause == nil {
		return "upstream error"
	}
	return "upstream error: " + e.Cause.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// StatusError is a non-2xx HTTP response from an upstream API.
type StatusError struct {
	StatusCode int
	RetryAfter string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// PushError is a destination write failure
type PushError struct {
	ItemType string
	Cause    error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("push %s: %v", e.ItemType, e.Cause)
}

func (e *PushError) Unwrap() error {
	return e.Cause
}

// RetryAfter returns the advertised wait when err is a rate-limit error.
func RetryAfter(err error) (int, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfterSeconds, true
	}
	return 0, false
}

// IsRateLimited checks if an error is a rate-limit error.
func IsRateLimited(err error) bool {
	_, ok := RetryAfter(err)
	return ok
}

// IsFatal reports errors that must not be retried by re-invocation.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRepositoryNotFound)
}
