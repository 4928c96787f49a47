package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_UnwrapChain(t *testing.T) {
	cause := errors.New("connection reset")
	appErr := NewAppError(ErrCodeInternalDB, "query failed", cause)
	wrapped := fmt.Errorf("enqueue pass: %w", appErr)

	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, ErrCodeInternalDB, CodeOf(wrapped))
	assert.Contains(t, appErr.Error(), "query failed")
	assert.Contains(t, appErr.Error(), string(ErrCodeInternalDB))
}

func TestCodeOf_NonAppError(t *testing.T) {
	assert.Equal(t, ErrCodeInternalUnexpected, CodeOf(errors.New("plain")))
}

func TestIsValidation(t *testing.T) {
	for _, code := range []ErrorCode{
		ErrCodeValidationInvalidCohort,
		ErrCodeValidationInvalidProvider,
		ErrCodeValidationInvalidTask,
	} {
		err := NewAppError(code, "bad input", nil)
		assert.True(t, IsValidation(err), "%s", code)
		assert.True(t, IsValidation(fmt.Errorf("handling: %w", err)), "%s wrapped", code)
	}

	assert.False(t, IsValidation(NewAppError(ErrCodeConflictTransient, "deadlock", nil)))
	assert.False(t, IsValidation(errors.New("plain")))
	assert.False(t, IsValidation(nil))
}

func TestIsTransientConflict(t *testing.T) {
	transient := NewAppError(ErrCodeConflictTransient, "deadlock detected", nil)
	assert.True(t, IsTransientConflict(transient))
	assert.True(t, IsTransientConflict(fmt.Errorf("attempt 1: %w", transient)))

	assert.False(t, IsTransientConflict(NewAppError(ErrCodeConflictDedupIntegrity, "duplicate key", nil)))
	assert.False(t, IsTransientConflict(NewAppError(ErrCodeInternalDB, "timeout", nil)))
	assert.False(t, IsTransientConflict(errors.New("plain")))
	assert.False(t, IsTransientConflict(nil))
}
