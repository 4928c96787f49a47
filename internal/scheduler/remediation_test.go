package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"valdrix/internal/types"
)

// --- Mocks ---

// mockCarbonEvaluator returns a fixed answer per region; unlisted regions
// default to not-green.
type mockCarbonEvaluator struct {
	green map[string]bool
	calls []string
}

func (m *mockCarbonEvaluator) IsLowCarbonWindow(_ context.Context, region string) bool {
	m.calls = append(m.calls, region)
	return m.green[region]
}

func newTestRemediation(db *mockEnqueueDB, carbon *mockCarbonEvaluator, rec *mockRecorder) (*RemediationEnqueuer, *[]time.Duration) {
	e := NewRemediationEnqueuer(db, carbon, rec, discardLogger(), 500, 1000, 3, time.Second, 4*time.Hour)
	var sleeps []time.Duration
	e.retry.sleepFn = func(d time.Duration) { sleeps = append(sleeps, d) }
	return e, &sleeps
}

// --- Tests ---

func TestEnqueueRemediation_GreenRegionRunsImmediately(t *testing.T) {
	tx := &mockEnqueueTx{conns: []types.ProviderConnection{
		{ID: "conn-1", TenantID: "tenant-1", Provider: "AWS", Region: "eu-west-1"},
	}}
	db := &mockEnqueueDB{txs: []*mockEnqueueTx{tx}}
	carbon := &mockCarbonEvaluator{green: map[string]bool{"eu-west-1": true}}
	e, _ := newTestRemediation(db, carbon, newMockRecorder())

	now := time.Date(2026, 8, 28, 20, 0, 0, 0, time.UTC)
	if err := e.EnqueueRemediation(context.Background(), now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobs := tx.insertCalls[0]
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if !jobs[0].ScheduledFor.Equal(now) {
		t.Errorf("green-region job scheduled for %v, want %v", jobs[0].ScheduledFor, now)
	}
	if got := jobs[0].Payload["provider"]; got != "aws" {
		t.Errorf("payload provider = %v, want normalized aws", got)
	}
	wantKey := "tenant-1:aws:conn-1:remediation:2026-W35"
	if jobs[0].DedupKey != wantKey {
		t.Errorf("dedup key = %q, want %q", jobs[0].DedupKey, wantKey)
	}
}

func TestEnqueueRemediation_DefersOutsideGreenWindow(t *testing.T) {
	tx := &mockEnqueueTx{conns: []types.ProviderConnection{
		{ID: "conn-1", TenantID: "tenant-1", Provider: "azure", Region: "us-east-1"},
	}}
	db := &mockEnqueueDB{txs: []*mockEnqueueTx{tx}}
	carbon := &mockCarbonEvaluator{green: map[string]bool{}}
	e, _ := newTestRemediation(db, carbon, newMockRecorder())

	now := time.Date(2026, 8, 28, 20, 0, 0, 0, time.UTC)
	if err := e.EnqueueRemediation(context.Background(), now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobs := tx.insertCalls[0]
	want := now.Add(4 * time.Hour)
	if !jobs[0].ScheduledFor.Equal(want) {
		t.Errorf("deferred job scheduled for %v, want %v", jobs[0].ScheduledFor, want)
	}
}

func TestEnqueueRemediation_NoRegionNeverDefers(t *testing.T) {
	// A connection without a concrete region has nothing to evaluate
	// against; it runs immediately and the evaluator is never consulted.
	tx := &mockEnqueueTx{conns: []types.ProviderConnection{
		{ID: "conn-1", TenantID: "tenant-1", Provider: "gcp", Region: ""},
	}}
	db := &mockEnqueueDB{txs: []*mockEnqueueTx{tx}}
	carbon := &mockCarbonEvaluator{}
	e, _ := newTestRemediation(db, carbon, newMockRecorder())

	now := time.Date(2026, 8, 28, 20, 0, 0, 0, time.UTC)
	if err := e.EnqueueRemediation(context.Background(), now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !tx.insertCalls[0][0].ScheduledFor.Equal(now) {
		t.Errorf("regionless job was deferred")
	}
	if len(carbon.calls) != 0 {
		t.Errorf("evaluator consulted for regionless connection: %v", carbon.calls)
	}
}

func TestEnqueueRemediation_SkipsUnknownProvider(t *testing.T) {
	// One bad provider among good ones: the bad connection is skipped with
	// a warning, the rest of the batch goes through.
	tx := &mockEnqueueTx{conns: []types.ProviderConnection{
		{ID: "conn-1", TenantID: "tenant-1", Provider: "oracle", Region: "us-east-1"},
		{ID: "conn-2", TenantID: "tenant-1", Provider: "amazon", Region: ""},
	}}
	db := &mockEnqueueDB{txs: []*mockEnqueueTx{tx}}
	e, _ := newTestRemediation(db, &mockCarbonEvaluator{}, newMockRecorder())

	now := time.Date(2026, 8, 28, 20, 0, 0, 0, time.UTC)
	if err := e.EnqueueRemediation(context.Background(), now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobs := tx.insertCalls[0]
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job after skipping unknown provider, got %d", len(jobs))
	}
	if jobs[0].Payload["connection_id"] != "conn-2" {
		t.Errorf("wrong connection survived: %v", jobs[0].Payload)
	}
	if jobs[0].Payload["provider"] != "aws" {
		t.Errorf("alias amazon not normalized: %v", jobs[0].Payload["provider"])
	}
}

func TestEnqueueRemediation_DrainsBeyondClaimLimit(t *testing.T) {
	// Five connections against a claim limit of two: every connection must
	// be remediated in one pass, across successive claim batches.
	conns := make([]types.ProviderConnection, 5)
	for i := range conns {
		conns[i] = types.ProviderConnection{
			ID:       fmt.Sprintf("conn-%d", i+1),
			TenantID: "tenant-1",
			Provider: "aws",
		}
	}
	tx := &mockEnqueueTx{conns: conns}
	db := &mockEnqueueDB{txs: []*mockEnqueueTx{tx}}
	rec := newMockRecorder()
	e := NewRemediationEnqueuer(db, &mockCarbonEvaluator{}, rec, discardLogger(), 500, 2, 3, time.Second, 4*time.Hour)

	now := time.Date(2026, 8, 28, 20, 0, 0, 0, time.UTC)
	if err := e.EnqueueRemediation(context.Background(), now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tx.claimCalls != 3 {
		t.Errorf("claim calls = %d, want 3 batches of 2, 2, 1", tx.claimCalls)
	}
	seen := make(map[any]bool, 5)
	for _, jobs := range tx.insertCalls {
		for _, job := range jobs {
			seen[job.Payload["connection_id"]] = true
		}
	}
	for _, conn := range conns {
		if !seen[conn.ID] {
			t.Errorf("connection %s never got a job", conn.ID)
		}
	}
	if got := rec.enqueued["remediation/"]; got != 5 {
		t.Errorf("remediation count = %d, want 5", got)
	}
}

func TestEnqueueRemediation_RetriesTransientConflicts(t *testing.T) {
	conns := []types.ProviderConnection{{ID: "conn-1", TenantID: "tenant-1", Provider: "aws"}}
	txs := []*mockEnqueueTx{
		{conns: conns, insertErrs: []error{transientErr()}},
		{conns: conns},
	}
	db := &mockEnqueueDB{txs: txs}
	rec := newMockRecorder()
	e, sleeps := newTestRemediation(db, &mockCarbonEvaluator{}, rec)

	now := time.Date(2026, 8, 28, 20, 0, 0, 0, time.UTC)
	if err := e.EnqueueRemediation(context.Background(), now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if db.begun != 2 {
		t.Errorf("expected 2 attempts, got %d", db.begun)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != time.Second {
		t.Errorf("sleeps = %v, want [1s]", *sleeps)
	}
	if !txs[1].committed {
		t.Error("retry attempt was not committed")
	}
}

func TestEnqueueRemediation_NoConnectionsCommitsQuietly(t *testing.T) {
	tx := &mockEnqueueTx{}
	db := &mockEnqueueDB{txs: []*mockEnqueueTx{tx}}
	e, _ := newTestRemediation(db, &mockCarbonEvaluator{}, newMockRecorder())

	if err := e.EnqueueRemediation(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tx.insertCalls) != 0 {
		t.Errorf("expected no inserts, got %d", len(tx.insertCalls))
	}
	if !tx.committed {
		t.Error("empty pass should still commit")
	}
}
