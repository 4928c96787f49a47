package scheduler

import (
	"fmt"
	"time"

	"valdrix/internal/types"
)

// CohortBucket truncates t to the boundary of the cohort's dispatch cadence,
// in UTC. Two dispatches falling inside the same window produce the same
// bucket, which is what makes dedup keys collide instead of double-enqueuing.
func CohortBucket(cohort types.TenantCohort, t time.Time) time.Time {
	t = t.UTC()
	hour := t.Hour()
	switch cohort {
	case types.CohortHighValue:
		hour -= hour % 6
	case types.CohortActive:
		hour -= hour % 3
	}
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, time.UTC)
}

// DayBucket truncates t to midnight UTC. Used by the daily uniform sweeps.
func DayBucket(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekBucket renders t's ISO week as "2026-W35". Remediation runs at most
// once per connection per ISO week, so the week string is the dedup window.
func WeekBucket(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// DedupKey composes the idempotency key for a cohort or uniform sweep job.
func DedupKey(tenantID string, jobType types.JobType, bucket time.Time) string {
	return fmt.Sprintf("%s:%s:%s", tenantID, jobType, bucket.UTC().Format(time.RFC3339))
}

// RemediationDedupKey composes the idempotency key for a remediation job,
// scoped to one provider connection and one ISO week.
func RemediationDedupKey(tenantID string, provider types.CloudProvider, connectionID, week string) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", tenantID, provider, connectionID, types.JobRemediation, week)
}
