package scheduler

import (
	"context"
	"log/slog"
	"time"

	"valdrix/internal/metrics"
	"valdrix/internal/types"
)

// CarbonEvaluator decides whether a region is currently in a low-carbon
// window. Implemented by carbon.Evaluator.
type CarbonEvaluator interface {
	IsLowCarbonWindow(ctx context.Context, region string) bool
}

// RemediationEnqueuer materializes weekly remediation jobs, one per active
// provider connection, with carbon-aware deferral. One pass is one
// transaction with the same claim/insert/retry shape as the cohort enqueuer.
type RemediationEnqueuer struct {
	db         EnqueueDB
	carbon     CarbonEvaluator
	metrics    metrics.Recorder
	logger     *slog.Logger
	chunkSize  int
	claimLimit int
	deferral   time.Duration
	retry      retryPolicy
	nowFn      func() time.Time
}

func NewRemediationEnqueuer(db EnqueueDB, carbon CarbonEvaluator, rec metrics.Recorder, logger *slog.Logger, chunkSize, claimLimit, maxAttempts int, backoffBase, deferral time.Duration) *RemediationEnqueuer {
	return &RemediationEnqueuer{
		db:         db,
		carbon:     carbon,
		metrics:    rec,
		logger:     logger,
		chunkSize:  chunkSize,
		claimLimit: claimLimit,
		deferral:   deferral,
		retry: retryPolicy{
			maxAttempts: maxAttempts,
			backoffBase: backoffBase,
			sleepFn:     time.Sleep,
			metrics:     rec,
			logger:      logger,
		},
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// EnqueueRemediation runs one weekly remediation pass anchored at now. The
// dedup window is the ISO week of now, so replays within the same week are
// no-ops.
func (e *RemediationEnqueuer) EnqueueRemediation(ctx context.Context, now time.Time) error {
	start := e.nowFn()
	err := e.retry.run(ctx, types.TaskRemediationSweep, func() error {
		return e.enqueueOnce(ctx, now)
	})
	e.metrics.DispatchDuration(types.TaskRemediationSweep, e.nowFn().Sub(start))
	e.metrics.DispatchResult(types.TaskRemediationSweep, err == nil)
	return err
}

func (e *RemediationEnqueuer) enqueueOnce(ctx context.Context, now time.Time) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	week := WeekBucket(now)
	claimed, skipped, deferred, inserted := 0, 0, 0, 0

	afterID := ""
	for {
		conns, err := tx.ClaimActiveConnections(ctx, e.claimLimit, afterID)
		if err != nil {
			return err
		}
		if len(conns) == 0 {
			break
		}
		claimed += len(conns)

		jobs := make([]types.QueuedJob, 0, len(conns))
		for _, conn := range conns {
			provider, err := types.NormalizeProvider(conn.Provider)
			if err != nil {
				// A connection with a provider we cannot recognize must not
				// sink the whole pass. Skip it and keep going.
				e.logger.WarnContext(ctx, "skipping connection with unrecognized provider",
					"connection_id", conn.ID, "tenant_id", conn.TenantID, "provider", conn.Provider)
				skipped++
				continue
			}

			scheduledFor := now
			if conn.Region != "" && !e.carbon.IsLowCarbonWindow(ctx, conn.Region) {
				scheduledFor = now.Add(e.deferral)
				deferred++
			}

			jobs = append(jobs, types.QueuedJob{
				TenantID:     conn.TenantID,
				Type:         types.JobRemediation,
				Status:       types.JobStatusPending,
				ScheduledFor: scheduledFor,
				Payload: map[string]any{
					"provider":      string(provider),
					"connection_id": conn.ID,
					"region":        conn.Region,
				},
				DedupKey: RemediationDedupKey(conn.TenantID, provider, conn.ID, week),
			})
		}

		counts, err := insertChunked(ctx, tx, jobs, e.chunkSize, e.logger)
		if err != nil {
			return err
		}
		inserted += counts[types.JobRemediation]

		afterID = conns[len(conns)-1].ID
		if len(conns) < e.claimLimit {
			break
		}
	}

	if claimed == 0 {
		e.logger.InfoContext(ctx, "no active connections to remediate")
		return tx.Commit(ctx)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	e.metrics.JobsEnqueued(types.JobRemediation, "", inserted)
	e.logger.InfoContext(ctx, "remediation enqueue pass complete",
		"week", week, "connections", claimed, "skipped", skipped,
		"deferred", deferred, "inserted", inserted)
	return nil
}
