// Package scheduler implements the distributed job scheduling core: cohort
// classification, the cron-driven dispatcher, the transactional enqueuers,
// and the stuck-job liveness sweep.
package scheduler

import (
	"time"

	"valdrix/internal/types"
)

// DormancyThreshold is how long a tenant can be inactive before dropping to
// the dormant cohort.
const DormancyThreshold = 7 * 24 * time.Hour

// Classify maps a tenant's plan tier and last-activity timestamp to its
// scheduling cohort. Pure and deterministic: no I/O, no clock access beyond
// the provided reference time.
//
// Top-paid tiers are high-value unconditionally; dormancy is never checked
// for them. For everyone else, a missing activity signal or inactivity of at
// least the dormancy threshold means dormant; active growth tenants are the
// only ones classified active.
func Classify(tier types.PlanTier, lastActive *time.Time, now time.Time) types.TenantCohort {
	if tier.IsHighValue() {
		return types.CohortHighValue
	}
	if lastActive == nil || now.Sub(*lastActive) >= DormancyThreshold {
		return types.CohortDormant
	}
	if tier == types.PlanGrowth {
		return types.CohortActive
	}
	return types.CohortDormant
}
