package scheduler

import (
	"testing"
	"time"

	"valdrix/internal/types"
)

func TestClassify(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name       string
		tier       types.PlanTier
		lastActive *time.Time
		want       types.TenantCohort
	}{
		{
			name: "enterprise is high-value regardless of activity",
			tier: types.PlanEnterprise, lastActive: nil,
			want: types.CohortHighValue,
		},
		{
			name: "pro inactive for a month is still high-value",
			tier: types.PlanPro, lastActive: ago(30 * 24 * time.Hour),
			want: types.CohortHighValue,
		},
		{
			name: "growth active six days ago is active",
			tier: types.PlanGrowth, lastActive: ago(6 * 24 * time.Hour),
			want: types.CohortActive,
		},
		{
			name: "growth inactive exactly seven days is dormant",
			tier: types.PlanGrowth, lastActive: ago(7 * 24 * time.Hour),
			want: types.CohortDormant,
		},
		{
			name: "growth with no activity signal is dormant",
			tier: types.PlanGrowth, lastActive: nil,
			want: types.CohortDormant,
		},
		{
			name: "trial recently active is dormant",
			tier: types.PlanTrial, lastActive: ago(time.Hour),
			want: types.CohortDormant,
		},
		{
			name: "starter with no activity is dormant",
			tier: types.PlanStarter, lastActive: nil,
			want: types.CohortDormant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.tier, tt.lastActive, now)
			if got != tt.want {
				t.Errorf("Classify(%s) = %s, want %s", tt.tier, got, tt.want)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	active := now.Add(-3 * 24 * time.Hour)

	first := Classify(types.PlanGrowth, &active, now)
	for i := 0; i < 100; i++ {
		if got := Classify(types.PlanGrowth, &active, now); got != first {
			t.Fatalf("classification changed between identical calls: %s vs %s", got, first)
		}
	}
}
