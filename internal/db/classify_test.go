package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"valdrix/internal/types"
)

func TestWrapDBError_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorCode
	}{
		{
			name: "deadlock is transient",
			err:  &pgconn.PgError{Code: "40P01", Message: "deadlock detected"},
			want: types.ErrCodeConflictTransient,
		},
		{
			name: "serialization failure is transient",
			err:  &pgconn.PgError{Code: "40001", Message: "could not serialize access"},
			want: types.ErrCodeConflictTransient,
		},
		{
			name: "unique violation is a dedup integrity defect",
			err:  &pgconn.PgError{Code: "23505", Message: "duplicate key value"},
			want: types.ErrCodeConflictDedupIntegrity,
		},
		{
			name: "other sqlstate is a plain database error",
			err:  &pgconn.PgError{Code: "57014", Message: "canceling statement"},
			want: types.ErrCodeInternalDB,
		},
		{
			name: "non-driver error is a plain database error",
			err:  errors.New("connection closed"),
			want: types.ErrCodeInternalDB,
		},
		{
			name: "wrapped driver error is still classified",
			err:  fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}),
			want: types.ErrCodeConflictTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapDBError("bulk insert failed", tt.err)
			assert.Equal(t, tt.want, got.Code)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestWrapDBError_RetryDecision(t *testing.T) {
	// The retry loop keys on IsTransientConflict; only contention codes may
	// pass.
	assert.True(t, types.IsTransientConflict(wrapDBError("x", &pgconn.PgError{Code: "40P01"})))
	assert.False(t, types.IsTransientConflict(wrapDBError("x", &pgconn.PgError{Code: "23505"})))
	assert.False(t, types.IsTransientConflict(wrapDBError("x", errors.New("timeout"))))
}
