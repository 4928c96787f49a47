package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"valdrix/internal/types"
)

// EnqueueStore provides the transactional data access the enqueuers need.
// It implements the scheduler.EnqueueDB interface.
type EnqueueStore struct {
	pool *pgxpool.Pool
}

// NewEnqueueStore creates a new EnqueueStore backed by the given pool.
func NewEnqueueStore(pool *pgxpool.Pool) *EnqueueStore {
	return &EnqueueStore{pool: pool}
}

// Begin starts a new database transaction for one enqueue pass.
func (s *EnqueueStore) Begin(ctx context.Context) (*EnqueueTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, wrapDBError("failed to begin enqueue transaction", err)
	}
	return &EnqueueTx{tx: tx}, nil
}

// EnqueueTx is a single enqueue pass's transaction. It implements the
// scheduler.EnqueueTx interface.
type EnqueueTx struct {
	tx pgx.Tx
}

// ClaimCohortTenants selects and row-locks the next batch of tenants
// eligible for the given cohort, skipping rows already locked by a
// concurrent transaction. Rows locked elsewhere are simply excluded from
// this pass; they are picked up on the next cron tick or by whichever
// process holds them. Batches walk the id keyset: afterID is the last id of
// the previous batch, empty for the first, so callers loop until a batch
// comes back short and no eligible tenant is left behind by the LIMIT.
//
// The cohort predicates mirror the classifier: the top-paid tiers are
// high-value regardless of activity, growth tenants split on the 7-day
// activity boundary, and everything else (including inactive growth tenants)
// lands in dormant.
//
// SQL shape:
//
//	SELECT id, plan_tier, last_active_at FROM tenants
//	WHERE deleted_at IS NULL AND id > $2 AND <cohort predicate>
//	ORDER BY id
//	LIMIT $1
//	FOR UPDATE SKIP LOCKED
func (t *EnqueueTx) ClaimCohortTenants(ctx context.Context, cohort types.TenantCohort, now time.Time, limit int, afterID string) ([]types.Tenant, error) {
	var predicate string
	args := []any{limit, afterID}

	activityCutoff := now.Add(-7 * 24 * time.Hour)

	switch cohort {
	case types.CohortHighValue:
		predicate = `plan_tier = ANY($3)`
		args = append(args, tierStrings(types.HighValueTiers))
	case types.CohortActive:
		predicate = `plan_tier = $3 AND last_active_at IS NOT NULL AND last_active_at > $4`
		args = append(args, string(types.PlanGrowth), activityCutoff)
	case types.CohortDormant:
		predicate = `(plan_tier = ANY($3)
		              OR (plan_tier = $4 AND (last_active_at IS NULL OR last_active_at <= $5)))`
		args = append(args,
			[]string{string(types.PlanTrial), string(types.PlanStarter)},
			string(types.PlanGrowth),
			activityCutoff,
		)
	default:
		return nil, types.NewAppError(types.ErrCodeValidationInvalidCohort,
			fmt.Sprintf("cannot claim tenants for cohort %q", cohort), nil)
	}

	rows, err := t.tx.Query(ctx,
		`SELECT id, plan_tier, last_active_at
		 FROM tenants
		 WHERE deleted_at IS NULL AND id > $2 AND `+predicate+`
		 ORDER BY id
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`,
		args...,
	)
	if err != nil {
		return nil, wrapDBError("failed to claim cohort tenants", err)
	}
	defer rows.Close()

	var tenants []types.Tenant
	for rows.Next() {
		var (
			tenant types.Tenant
			tier   string
		)
		if err := rows.Scan(&tenant.ID, &tier, &tenant.LastActiveAt); err != nil {
			return nil, wrapDBError("failed to scan claimed tenant", err)
		}
		tenant.PlanTier = types.PlanTier(tier)
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("error iterating claimed tenants", err)
	}

	return tenants, nil
}

// ClaimAllTenants selects and row-locks the next id-ordered batch of live
// tenants regardless of cohort, with the same keyset walk as
// ClaimCohortTenants. Used by the uniform daily sweeps (billing, acceptance
// capture).
func (t *EnqueueTx) ClaimAllTenants(ctx context.Context, limit int, afterID string) ([]types.Tenant, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, plan_tier, last_active_at
		 FROM tenants
		 WHERE deleted_at IS NULL AND id > $2
		 ORDER BY id
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`,
		limit, afterID,
	)
	if err != nil {
		return nil, wrapDBError("failed to claim tenants", err)
	}
	defer rows.Close()

	var tenants []types.Tenant
	for rows.Next() {
		var (
			tenant types.Tenant
			tier   string
		)
		if err := rows.Scan(&tenant.ID, &tier, &tenant.LastActiveAt); err != nil {
			return nil, wrapDBError("failed to scan claimed tenant", err)
		}
		tenant.PlanTier = types.PlanTier(tier)
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("error iterating claimed tenants", err)
	}

	return tenants, nil
}

// ClaimActiveConnections selects and row-locks the next id-ordered batch of
// active provider connections for the remediation enqueuer, with the same
// skip-locked and keyset-walk semantics as ClaimCohortTenants.
//
// SQL shape:
//
//	SELECT id, tenant_id, provider, COALESCE(region, '')
//	FROM provider_connections
//	WHERE status = 'active' AND deleted_at IS NULL AND id > $2
//	ORDER BY id
//	LIMIT $1
//	FOR UPDATE SKIP LOCKED
func (t *EnqueueTx) ClaimActiveConnections(ctx context.Context, limit int, afterID string) ([]types.ProviderConnection, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, tenant_id, provider, COALESCE(region, '')
		 FROM provider_connections
		 WHERE status = 'active' AND deleted_at IS NULL AND id > $2
		 ORDER BY id
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`,
		limit, afterID,
	)
	if err != nil {
		return nil, wrapDBError("failed to claim active connections", err)
	}
	defer rows.Close()

	var conns []types.ProviderConnection
	for rows.Next() {
		var c types.ProviderConnection
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Provider, &c.Region); err != nil {
			return nil, wrapDBError("failed to scan claimed connection", err)
		}
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("error iterating claimed connections", err)
	}

	return conns, nil
}

// InsertJobs performs one idempotent bulk insert of queued job rows. Rows
// whose dedup key already exists are silently skipped via ON CONFLICT DO
// NOTHING; the returned map counts rows actually inserted, keyed by job
// type. Callers are responsible for chunking; this method issues a single
// statement for the rows it is given.
func (t *EnqueueTx) InsertJobs(ctx context.Context, jobs []types.QueuedJob) (map[types.JobType]int, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	const cols = 8
	placeholders := make([]string, 0, len(jobs))
	args := make([]any, 0, len(jobs)*cols)

	for i, job := range jobs {
		base := i * cols
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))

		id := job.ID
		if id == "" {
			id = uuid.New().String()
		}

		args = append(args,
			id,
			job.TenantID,
			string(job.Type),
			string(types.JobStatusPending),
			job.ScheduledFor,
			job.Payload,
			job.Priority,
			job.DedupKey,
		)
	}

	rows, err := t.tx.Query(ctx,
		`INSERT INTO jobs
		 (id, tenant_id, job_type, status, scheduled_for, payload, priority, dedup_key)
		 VALUES `+strings.Join(placeholders, ", ")+`
		 ON CONFLICT (dedup_key) DO NOTHING
		 RETURNING job_type`,
		args...,
	)
	if err != nil {
		return nil, wrapDBError("failed to bulk insert jobs", err)
	}
	defer rows.Close()

	inserted := make(map[types.JobType]int)
	for rows.Next() {
		var jobType string
		if err := rows.Scan(&jobType); err != nil {
			return nil, wrapDBError("failed to scan inserted job type", err)
		}
		inserted[types.JobType(jobType)]++
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("error iterating inserted jobs", err)
	}

	return inserted, nil
}

// Commit commits the transaction.
func (t *EnqueueTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return wrapDBError("failed to commit enqueue transaction", err)
	}
	return nil
}

// Rollback rolls back the transaction. Safe to call after Commit (no-op).
func (t *EnqueueTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		return wrapDBError("failed to roll back enqueue transaction", err)
	}
	return nil
}

func tierStrings(tiers []types.PlanTier) []string {
	out := make([]string, len(tiers))
	for i, tier := range tiers {
		out[i] = string(tier)
	}
	return out
}
