// Package common defines shared constants and sentinel errors used across
// client and server layers of ScanVault. Callers should use errors.Is / errors.As
// to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Identity errors. ErrUnauthenticated means the caller could not be
	// identified, ErrForbidden means a valid caller touched a record it does not own.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")

	// Request validation.
	ErrValidation = errors.New("validation error")

	// ErrInvalidToken is returned for malformed or badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrQuotaExceeded is matched by *QuotaExceededError.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTransient marks network / object-store / API hiccups that are retried
	// on the next worker run or poll, never persisted as a record error.
	ErrTransient = errors.New("transient error")

	// ErrPollTimeout is returned by the client poller after its bounded attempts.
	// It is transient: the record may still complete later.
	ErrPollTimeout = fmt.Errorf("%w: polling attempts exhausted", ErrTransient)

	// ErrCorruptLocalState means an outbox entry lost its payload on disk.
	ErrCorruptLocalState = errors.New("corrupt local state")
)

// QuotaExceededError carries the figures the user needs to decide on an upgrade.
type QuotaExceededError struct {
	Remaining int64
	Limit     int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("token quota exceeded: remaining %d of %d", e.Remaining, e.Limit)
}

// Is lets errors.Is(err, ErrQuotaExceeded) match.
func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// ExtractionError is a terminal failure for one file record. Its message is
// what gets written to the record's error column.
type ExtractionError struct {
	Reason string
	Err    error
}

// NewExtractionError builds an ExtractionError with an optional cause.
func NewExtractionError(reason string, err error) *ExtractionError {
	return &ExtractionError{Reason: reason, Err: err}
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
