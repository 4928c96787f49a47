package scheduler

import (
	"testing"
	"time"

	"valdrix/internal/types"
)

func TestCohortBucket(t *testing.T) {
	tests := []struct {
		name   string
		cohort types.TenantCohort
		at     time.Time
		want   time.Time
	}{
		{
			name:   "high-value truncates to six-hour boundary",
			cohort: types.CohortHighValue,
			at:     time.Date(2026, 8, 30, 17, 45, 12, 0, time.UTC),
			want:   time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		},
		{
			name:   "high-value on the boundary stays put",
			cohort: types.CohortHighValue,
			at:     time.Date(2026, 8, 30, 18, 0, 0, 0, time.UTC),
			want:   time.Date(2026, 8, 30, 18, 0, 0, 0, time.UTC),
		},
		{
			name:   "active truncates to three-hour boundary",
			cohort: types.CohortActive,
			at:     time.Date(2026, 8, 30, 8, 59, 0, 0, time.UTC),
			want:   time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC),
		},
		{
			name:   "dormant truncates to top of hour",
			cohort: types.CohortDormant,
			at:     time.Date(2026, 8, 30, 3, 59, 59, 0, time.UTC),
			want:   time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CohortBucket(tt.cohort, tt.at)
			if !got.Equal(tt.want) {
				t.Errorf("CohortBucket(%s, %v) = %v, want %v", tt.cohort, tt.at, got, tt.want)
			}
		})
	}
}

func TestCohortBucket_SameWindowSameBucket(t *testing.T) {
	// Two dispatches 4h apart inside the same 6h window must agree.
	a := CohortBucket(types.CohortHighValue, time.Date(2026, 8, 30, 12, 5, 0, 0, time.UTC))
	b := CohortBucket(types.CohortHighValue, time.Date(2026, 8, 30, 16, 55, 0, 0, time.UTC))
	if !a.Equal(b) {
		t.Errorf("buckets differ within one window: %v vs %v", a, b)
	}
}

func TestWeekBucket(t *testing.T) {
	// 2026-01-01 is a Thursday, ISO week 1 of 2026.
	if got := WeekBucket(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)); got != "2026-W01" {
		t.Errorf("WeekBucket = %q, want 2026-W01", got)
	}
	// 2024-12-30 is a Monday belonging to ISO week 1 of 2025.
	if got := WeekBucket(time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)); got != "2025-W01" {
		t.Errorf("WeekBucket = %q, want 2025-W01", got)
	}
}

func TestDedupKey(t *testing.T) {
	bucket := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	got := DedupKey("tenant-1", types.JobCostIngestion, bucket)
	want := "tenant-1:cost_ingestion:2026-08-30T12:00:00Z"
	if got != want {
		t.Errorf("DedupKey = %q, want %q", got, want)
	}
}

func TestRemediationDedupKey(t *testing.T) {
	got := RemediationDedupKey("tenant-1", types.ProviderAWS, "conn-9", "2026-W35")
	want := "tenant-1:aws:conn-9:remediation:2026-W35"
	if got != want {
		t.Errorf("RemediationDedupKey = %q, want %q", got, want)
	}
}
