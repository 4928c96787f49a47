// Package lock implements the short-TTL dispatch lock that keeps multiple
// concurrently-running cron processes from dispatching the same named job in
// the same cycle.
//
// The lock is best-effort, not authoritative: any failure of the lock store
// fails open, because losing dispatch dedup is tolerable (the job table's
// dedup-key uniqueness constraint still prevents duplicate rows) while losing
// scheduling entirely is not. The one scenario this trades away is duplicate
// broker handoff during a lock-store outage, which downstream idempotent
// enqueue absorbs.
package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix is the cache key namespace for dispatch locks.
const keyPrefix = "scheduler:dispatch-lock:"

// lockSentinel is the constant value stored under the lock key. The value is
// never inspected; only key existence matters.
const lockSentinel = "1"

// RedisClient is the subset of the go-redis client the manager uses,
// abstracted for testability.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// Manager acquires per-job-name dispatch locks against a shared Redis cache.
// The TTL is the sole release mechanism; locks are never explicitly deleted,
// which bounds the blast radius of a crashed holder to one TTL window.
type Manager struct {
	client   RedisClient // nil when the lock store is unconfigured
	testMode bool
	logger   *slog.Logger
}

// NewManager creates a dispatch lock manager. The client may be nil when no
// lock store is configured; acquisition then always succeeds. In test mode
// acquisition always succeeds without touching the client, so schedule
// dispatch never blocks on external infrastructure during tests.
func NewManager(client RedisClient, testMode bool, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client:   client,
		testMode: testMode,
		logger:   logger,
	}
}

// TryAcquire attempts an atomic set-if-not-exists with TTL for the given job
// name. It returns true only if this call created the key, or on any of the
// fail-open paths: test mode, unconfigured store, or a lock-store error.
func (m *Manager) TryAcquire(ctx context.Context, jobName string, ttl time.Duration) bool {
	if m.testMode {
		return true
	}
	if m.client == nil {
		return true
	}

	acquired, err := m.client.SetNX(ctx, keyPrefix+jobName, lockSentinel, ttl).Result()
	if err != nil {
		m.logger.WarnContext(ctx, "dispatch lock store unavailable, failing open",
			"job_name", jobName,
			"error", err,
		)
		return true
	}

	return acquired
}
