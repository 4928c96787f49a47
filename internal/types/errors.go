package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants. Services MUST use these constants instead of
// hardcoded strings; retry decisions key on the code, never on message text.
const (
	// Validation
	ErrCodeValidationInvalidCohort   ErrorCode = "validation_invalid_cohort"
	ErrCodeValidationInvalidProvider ErrorCode = "validation_invalid_provider"
	ErrCodeValidationInvalidTask     ErrorCode = "validation_invalid_task"

	// Transient DB contention. The persistence layer maps driver-level
	// deadlock and serialization failures to this single code so the
	// enqueue retry loop has one thing to check.
	ErrCodeConflictTransient ErrorCode = "conflict_transient"

	// Dedup-key uniqueness violation that survived ON CONFLICT DO NOTHING.
	// This is a data-integrity defect, never a recoverable condition.
	ErrCodeConflictDedupIntegrity ErrorCode = "conflict_dedup_integrity"

	// Internal / infrastructure
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeLockUnavailable    ErrorCode = "lock_store_unavailable"

	// Upstream
	ErrCodeUpstreamCarbon      ErrorCode = "upstream_carbon_unavailable"
	ErrCodeUpstreamBroker      ErrorCode = "upstream_broker_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// AppError is the standard application error type used throughout the
// scheduling core. All domain errors should be expressed as AppError to
// enable consistent classification and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error. This is the standard constructor.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf extracts the ErrorCode from an error chain. Returns
// ErrCodeInternalUnexpected when no AppError is present.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}

// IsValidation reports whether the error chain carries a validation code.
// Validation failures are permanent: redelivering the same input can never
// succeed.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case ErrCodeValidationInvalidCohort, ErrCodeValidationInvalidProvider, ErrCodeValidationInvalidTask:
		return true
	}
	return false
}

// IsTransientConflict reports whether the error chain contains a transient
// contention condition (deadlock or serialization failure) that is safe to
// retry with backoff.
func IsTransientConflict(err error) bool {
	return CodeOf(err) == ErrCodeConflictTransient
}
