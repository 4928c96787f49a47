package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"valdrix/internal/entitlement"
	"valdrix/internal/metrics"
	"valdrix/internal/types"
)

// EnqueueTx is one enqueue pass's transaction: claim rows batch by batch,
// insert jobs, commit or roll back. The Claim methods walk an id keyset
// (afterID is the last id of the previous batch, empty for the first);
// callers loop until a batch comes back shorter than the limit, so no
// eligible row is left unclaimed by the batch bound. Implemented by
// db.EnqueueTx.
type EnqueueTx interface {
	ClaimCohortTenants(ctx context.Context, cohort types.TenantCohort, now time.Time, limit int, afterID string) ([]types.Tenant, error)
	ClaimAllTenants(ctx context.Context, limit int, afterID string) ([]types.Tenant, error)
	ClaimActiveConnections(ctx context.Context, limit int, afterID string) ([]types.ProviderConnection, error)
	InsertJobs(ctx context.Context, jobs []types.QueuedJob) (map[types.JobType]int, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// EnqueueDB opens enqueue transactions.
type EnqueueDB interface {
	Begin(ctx context.Context) (EnqueueTx, error)
}

// retryPolicy reruns a whole enqueue pass on transient database conflicts
// (deadlocks, serialization failures) with exponential backoff. Any other
// error aborts immediately.
type retryPolicy struct {
	maxAttempts int
	backoffBase time.Duration
	sleepFn     func(time.Duration)
	metrics     metrics.Recorder
	logger      *slog.Logger
}

func (p retryPolicy) run(ctx context.Context, task types.TaskType, fn func() error) error {
	var err error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !types.IsTransientConflict(err) {
			return err
		}
		p.metrics.ContentionEvent()
		if attempt < p.maxAttempts {
			backoff := p.backoffBase << (attempt - 1)
			p.logger.WarnContext(ctx, "transient conflict during enqueue pass, retrying",
				"task", task, "attempt", attempt, "backoff", backoff, "error", err)
			p.sleepFn(backoff)
		}
	}
	p.logger.ErrorContext(ctx, "enqueue pass exhausted retries",
		"task", task, "attempts", p.maxAttempts, "error", err)
	return err
}

// insertChunked bulk-inserts jobs in fixed-size chunks inside tx. A failing
// chunk does not stop later chunks from being attempted; the first error is
// returned after every chunk has had its shot, so a retryable conflict in
// chunk one still lets chunk two's rows ride along on the retry.
func insertChunked(ctx context.Context, tx EnqueueTx, jobs []types.QueuedJob, chunkSize int, logger *slog.Logger) (map[types.JobType]int, error) {
	inserted := make(map[types.JobType]int)
	var firstErr error

	for start := 0; start < len(jobs); start += chunkSize {
		end := start + chunkSize
		if end > len(jobs) {
			end = len(jobs)
		}
		counts, err := tx.InsertJobs(ctx, jobs[start:end])
		if err != nil {
			logger.WarnContext(ctx, "job chunk insert failed",
				"offset", start, "size", end-start, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for jobType, n := range counts {
			inserted[jobType] += n
		}
	}

	return inserted, firstErr
}

// CohortEnqueuer materializes concrete job rows for a tenant cohort. One
// pass is one transaction: claim the cohort's tenants with skip-locked
// semantics, expand each tenant into its entitled job types, and bulk-insert
// with dedup-key idempotency.
type CohortEnqueuer struct {
	db           EnqueueDB
	entitlements entitlement.Registry
	metrics      metrics.Recorder
	logger       *slog.Logger
	chunkSize    int
	claimLimit   int
	retry        retryPolicy
	nowFn        func() time.Time
}

func NewCohortEnqueuer(db EnqueueDB, entitlements entitlement.Registry, rec metrics.Recorder, logger *slog.Logger, chunkSize, claimLimit, maxAttempts int, backoffBase time.Duration) *CohortEnqueuer {
	return &CohortEnqueuer{
		db:           db,
		entitlements: entitlements,
		metrics:      rec,
		logger:       logger,
		chunkSize:    chunkSize,
		claimLimit:   claimLimit,
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

// EnqueueCohort runs one cohort enqueue pass anchored at now. The bucket is
// derived from now, so a retried or replayed dispatch inside the same window
// produces the same dedup keys and inserts nothing new.
func (e *CohortEnqueuer) EnqueueCohort(ctx context.Context, cohort types.TenantCohort, now time.Time) error {
	start := e.nowFn()
	err := e.retry.run(ctx, types.TaskCohortEnqueue, func() error {
		return e.enqueueCohortOnce(ctx, cohort, now)
	})
	e.metrics.DispatchDuration(types.TaskCohortEnqueue, e.nowFn().Sub(start))
	e.metrics.DispatchResult(types.TaskCohortEnqueue, err == nil)
	return err
}

func (e *CohortEnqueuer) enqueueCohortOnce(ctx context.Context, cohort types.TenantCohort, now time.Time) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	bucket := CohortBucket(cohort, now)
	inserted := make(map[types.JobType]int)
	claimed, candidates := 0, 0

	// Drain the whole cohort: keep claiming id-ordered batches until one
	// comes back short. A single batch bound must never decide which
	// tenants get their window.
	afterID := ""
	for {
		tenants, err := tx.ClaimCohortTenants(ctx, cohort, now, e.claimLimit, afterID)
		if err != nil {
			return err
		}
		if len(tenants) == 0 {
			break
		}
		claimed += len(tenants)

		jobs := make([]types.QueuedJob, 0, len(tenants)*2)
		for _, tenant := range tenants {
			for _, jobType := range e.jobTypesFor(tenant) {
				jobs = append(jobs, types.QueuedJob{
					TenantID:     tenant.ID,
					Type:         jobType,
					Status:       types.JobStatusPending,
					ScheduledFor: bucket,
					Priority:     cohortPriority(cohort),
					DedupKey:     DedupKey(tenant.ID, jobType, bucket),
				})
			}
		}
		candidates += len(jobs)

		counts, err := insertChunked(ctx, tx, jobs, e.chunkSize, e.logger)
		if err != nil {
			return err
		}
		for jobType, n := range counts {
			inserted[jobType] += n
		}

		afterID = tenants[len(tenants)-1].ID
		if len(tenants) < e.claimLimit {
			break
		}
	}

	if claimed == 0 {
		e.logger.InfoContext(ctx, "no tenants claimed for cohort", "cohort", cohort)
		return tx.Commit(ctx)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	total := 0
	for jobType, n := range inserted {
		e.metrics.JobsEnqueued(jobType, cohort, n)
		total += n
	}
	e.logger.InfoContext(ctx, "cohort enqueue pass complete",
		"cohort", cohort, "tenants", claimed, "candidates", candidates, "inserted", total)
	return nil
}

// EnqueueUniform enqueues the given job types for every live tenant,
// deduplicated on the day bucket. Backs the daily billing and acceptance
// sweeps, which do not care about cohorts.
func (e *CohortEnqueuer) EnqueueUniform(ctx context.Context, task types.TaskType, jobTypes []types.JobType, now time.Time) error {
	start := e.nowFn()
	err := e.retry.run(ctx, task, func() error {
		return e.enqueueUniformOnce(ctx, jobTypes, now)
	})
	e.metrics.DispatchDuration(task, e.nowFn().Sub(start))
	e.metrics.DispatchResult(task, err == nil)
	return err
}

func (e *CohortEnqueuer) enqueueUniformOnce(ctx context.Context, jobTypes []types.JobType, now time.Time) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	bucket := DayBucket(now)
	inserted := make(map[types.JobType]int)
	claimed := 0

	afterID := ""
	for {
		tenants, err := tx.ClaimAllTenants(ctx, e.claimLimit, afterID)
		if err != nil {
			return err
		}
		if len(tenants) == 0 {
			break
		}
		claimed += len(tenants)

		jobs := make([]types.QueuedJob, 0, len(tenants)*len(jobTypes))
		for _, tenant := range tenants {
			for _, jobType := range jobTypes {
				jobs = append(jobs, types.QueuedJob{
					TenantID:     tenant.ID,
					Type:         jobType,
					Status:       types.JobStatusPending,
					ScheduledFor: bucket,
					DedupKey:     DedupKey(tenant.ID, jobType, bucket),
				})
			}
		}

		counts, err := insertChunked(ctx, tx, jobs, e.chunkSize, e.logger)
		if err != nil {
			return err
		}
		for jobType, n := range counts {
			inserted[jobType] += n
		}

		afterID = tenants[len(tenants)-1].ID
		if len(tenants) < e.claimLimit {
			break
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	total := 0
	for jobType, n := range inserted {
		e.metrics.JobsEnqueued(jobType, "", n)
		total += n
	}
	e.logger.InfoContext(ctx, "uniform enqueue pass complete",
		"job_types", fmt.Sprintf("%v", jobTypes), "tenants", claimed, "inserted", total)
	return nil
}

// jobTypesFor expands one tenant into the job types its plan entitles it to.
// The zombie scan is the baseline every tenant receives.
func (e *CohortEnqueuer) jobTypesFor(tenant types.Tenant) []types.JobType {
	jobTypes := []types.JobType{types.JobZombieScan}
	if e.entitlements.IsFeatureEnabled(tenant.PlanTier, types.FeatureCostIngestion) {
		jobTypes = append(jobTypes, types.JobCostIngestion)
	}
	if e.entitlements.IsFeatureEnabled(tenant.PlanTier, types.FeatureFinOpsAnalysis) {
		jobTypes = append(jobTypes, types.JobFinOpsAnalysis)
	}
	if e.entitlements.IsFeatureEnabled(tenant.PlanTier, types.FeatureAnomalyDetection) {
		jobTypes = append(jobTypes, types.JobAnomalyDetection)
	}
	return jobTypes
}

func cohortPriority(cohort types.TenantCohort) int {
	switch cohort {
	case types.CohortHighValue:
		return 10
	case types.CohortActive:
		return 5
	default:
		return 1
	}
}
