package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"valdrix/internal/types"
)

// PostgreSQL SQLSTATE codes that identify transient contention. Retry logic
// keys on the typed classification produced here, never on message text.
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
	sqlstateUniqueViolation      = "23505"
)

// wrapDBError converts a driver-level error into a typed AppError.
//
// Deadlocks and serialization failures become ErrCodeConflictTransient, the
// one code the enqueue retry loop treats as retryable. A unique violation on
// the dedup key becomes ErrCodeConflictDedupIntegrity: the bulk insert uses
// ON CONFLICT DO NOTHING, so a violation that still surfaces means the
// constraint and the insert disagree, which is a data-integrity defect that
// must fail loudly rather than be retried or swallowed. Everything else is a
// plain database error.
func wrapDBError(msg string, err error) *types.AppError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateDeadlockDetected, sqlstateSerializationFailure:
			return types.NewAppError(types.ErrCodeConflictTransient, msg, err)
		case sqlstateUniqueViolation:
			return types.NewAppError(types.ErrCodeConflictDedupIntegrity, msg, err)
		}
	}
	return types.NewAppError(types.ErrCodeInternalDB, msg, err)
}
