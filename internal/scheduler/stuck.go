package scheduler

import (
	"context"
	"log/slog"
	"time"

	"valdrix/internal/metrics"
	"valdrix/internal/types"
)

// SweepTx is one stuck-job sweep's transaction. Implemented by db.SweepTx.
type SweepTx interface {
	ListStuckPending(ctx context.Context, cutoff time.Time) ([]string, error)
	FailJobs(ctx context.Context, ids []string, message string) (int, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// StuckJobDB opens stuck-job sweep transactions.
type StuckJobDB interface {
	Begin(ctx context.Context) (SweepTx, error)
}

const stuckFailureMessage = "job exceeded the pending liveness threshold and was failed by the stuck-job sweep"

// StuckJobDetector finds jobs that have sat in pending past the liveness
// threshold and marks them failed so downstream consumers and dashboards see
// them instead of silently losing them.
type StuckJobDetector struct {
	db        StuckJobDB
	metrics   metrics.Recorder
	logger    *slog.Logger
	threshold time.Duration
}

func NewStuckJobDetector(db StuckJobDB, rec metrics.Recorder, logger *slog.Logger, threshold time.Duration) *StuckJobDetector {
	return &StuckJobDetector{db: db, metrics: rec, logger: logger, threshold: threshold}
}

// Sweep runs one stuck-job detection pass anchored at now. Finding zero
// stuck jobs rolls the transaction back without a commit; the pass is
// read-only in that case.
func (d *StuckJobDetector) Sweep(ctx context.Context, now time.Time) error {
	start := time.Now()
	err := d.sweepOnce(ctx, now)
	d.metrics.DispatchDuration(types.TaskStuckJobSweep, time.Since(start))
	d.metrics.DispatchResult(types.TaskStuckJobSweep, err == nil)
	return err
}

func (d *StuckJobDetector) sweepOnce(ctx context.Context, now time.Time) error {
	tx, err := d.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cutoff := now.Add(-d.threshold)
	ids, err := tx.ListStuckPending(ctx, cutoff)
	if err != nil {
		return err
	}

	d.metrics.SetStuckJobs(len(ids))
	if len(ids) == 0 {
		return nil
	}

	failed, err := tx.FailJobs(ctx, ids, stuckFailureMessage)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	d.logger.WarnContext(ctx, "stuck jobs failed by liveness sweep",
		"found", len(ids), "failed", failed, "cutoff", cutoff)
	return nil
}
