package lock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

type fakeRedis struct {
	result bool
	err    error
	keys   []string
	ttls   []time.Duration
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, _ any, expiration time.Duration) *redis.BoolCmd {
	f.keys = append(f.keys, key)
	f.ttls = append(f.ttls, expiration)
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(f.result)
	if f.err != nil {
		cmd.SetErr(f.err)
	}
	return cmd
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTryAcquire_Wins(t *testing.T) {
	client := &fakeRedis{result: true}
	m := NewManager(client, false, testLogger())

	ok := m.TryAcquire(context.Background(), "cohort_enqueue:high_value", 180*time.Second)

	assert.True(t, ok)
	assert.Equal(t, []string{"scheduler:dispatch-lock:cohort_enqueue:high_value"}, client.keys)
	assert.Equal(t, []time.Duration{180 * time.Second}, client.ttls)
}

func TestTryAcquire_LosesRace(t *testing.T) {
	client := &fakeRedis{result: false}
	m := NewManager(client, false, testLogger())

	assert.False(t, m.TryAcquire(context.Background(), "stuck_job_sweep", time.Minute))
}

func TestTryAcquire_FailsOpenOnStoreError(t *testing.T) {
	client := &fakeRedis{err: errors.New("connection refused")}
	m := NewManager(client, false, testLogger())

	assert.True(t, m.TryAcquire(context.Background(), "remediation_sweep", time.Minute))
}

func TestTryAcquire_FailsOpenWithoutClient(t *testing.T) {
	m := NewManager(nil, false, testLogger())

	assert.True(t, m.TryAcquire(context.Background(), "billing_sweep", time.Minute))
}

// memoryLockStore honors set-if-absent with TTL against a test-controlled
// clock, so whole lock lifecycles can be driven through TryAcquire.
type memoryLockStore struct {
	now    time.Time
	expiry map[string]time.Time
}

func newMemoryLockStore(now time.Time) *memoryLockStore {
	return &memoryLockStore{now: now, expiry: make(map[string]time.Time)}
}

func (s *memoryLockStore) SetNX(ctx context.Context, key string, _ any, expiration time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if exp, ok := s.expiry[key]; ok && s.now.Before(exp) {
		cmd.SetVal(false)
		return cmd
	}
	s.expiry[key] = s.now.Add(expiration)
	cmd.SetVal(true)
	return cmd
}

func TestTryAcquire_FirstWinsThenTTLExpiry(t *testing.T) {
	// Two callers sharing the same backing cache race for "billing_sweep":
	// exactly one wins within the TTL window. After the TTL elapses a
	// third caller acquires again.
	store := newMemoryLockStore(time.Date(2026, 8, 30, 4, 0, 0, 0, time.UTC))
	first := NewManager(store, false, testLogger())
	second := NewManager(store, false, testLogger())

	ttl := 180 * time.Second
	assert.True(t, first.TryAcquire(context.Background(), "billing_sweep", ttl))
	assert.False(t, second.TryAcquire(context.Background(), "billing_sweep", ttl))

	// Still inside the TTL window: the original holder cannot re-acquire
	// its own lock either.
	store.now = store.now.Add(179 * time.Second)
	assert.False(t, first.TryAcquire(context.Background(), "billing_sweep", ttl))

	store.now = store.now.Add(2 * time.Second)
	third := NewManager(store, false, testLogger())
	assert.True(t, third.TryAcquire(context.Background(), "billing_sweep", ttl))

	// An unrelated job name is a separate lock entirely.
	assert.True(t, second.TryAcquire(context.Background(), "stuck_job_sweep", ttl))
}

func TestTryAcquire_TestModeSkipsStore(t *testing.T) {
	client := &fakeRedis{result: false}
	m := NewManager(client, true, testLogger())

	assert.True(t, m.TryAcquire(context.Background(), "maintenance_sweep", time.Minute))
	assert.Empty(t, client.keys, "test mode must not touch the lock store")
}
