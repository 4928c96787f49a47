package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobRepository provides the job-table sweeps that run outside the enqueue
// path: the stuck-job liveness sweep and the terminal-row retention purge.
// It implements the scheduler.StuckJobDB and scheduler.MaintenanceDB
// interfaces.
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new JobRepository backed by the given pool.
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// Begin starts a transaction for one stuck-job sweep.
func (r *JobRepository) Begin(ctx context.Context) (*SweepTx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, wrapDBError("failed to begin sweep transaction", err)
	}
	return &SweepTx{tx: tx}, nil
}

// SweepTx is a single stuck-job sweep's transaction. It implements the
// scheduler.SweepTx interface.
type SweepTx struct {
	tx pgx.Tx
}

// ListStuckPending returns the IDs of jobs still in the pending state whose
// creation timestamp is older than the cutoff, excluding soft-deleted rows.
// The rows are locked for the duration of the sweep transaction.
//
// SQL: SELECT id FROM jobs
//      WHERE status = 'pending' AND created_at < $1 AND deleted_at IS NULL
//      FOR UPDATE SKIP LOCKED
func (t *SweepTx) ListStuckPending(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id
		 FROM jobs
		 WHERE status = 'pending'
		   AND created_at < $1
		   AND deleted_at IS NULL
		 FOR UPDATE SKIP LOCKED`,
		cutoff,
	)
	if err != nil {
		return nil, wrapDBError("failed to list stuck pending jobs", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("failed to scan stuck job id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("error iterating stuck job ids", err)
	}

	return ids, nil
}

// FailJobs transitions the given jobs to failed with an explanatory error
// message. Returns the number of rows updated.
//
// SQL: UPDATE jobs SET status = 'failed', error = $2, updated_at = NOW()
//      WHERE id = ANY($1) AND status = 'pending'
func (t *SweepTx) FailJobs(ctx context.Context, ids []string, message string) (int, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE jobs
		 SET status = 'failed', error = $2, updated_at = NOW()
		 WHERE id = ANY($1) AND status = 'pending'`,
		ids,
		message,
	)
	if err != nil {
		return 0, wrapDBError("failed to fail stuck jobs", err)
	}
	return int(tag.RowsAffected()), nil
}

// Commit commits the sweep transaction.
func (t *SweepTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return wrapDBError("failed to commit sweep transaction", err)
	}
	return nil
}

// Rollback rolls back the sweep transaction. Safe to call after Commit.
func (t *SweepTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		return wrapDBError("failed to roll back sweep transaction", err)
	}
	return nil
}

// PurgeTerminalJobs deletes completed, failed, and dead-letter job rows older
// than the cutoff so the dedup-key unique index does not grow unbounded.
// Returns the number of rows deleted.
//
// SQL: DELETE FROM jobs
//      WHERE status IN ('completed', 'failed', 'dead_letter')
//      AND created_at < $1
func (r *JobRepository) PurgeTerminalJobs(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM jobs
		 WHERE status IN ('completed', 'failed', 'dead_letter')
		   AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, wrapDBError("failed to purge terminal jobs", err)
	}
	return int(tag.RowsAffected()), nil
}
