package types

import "strings"

// TenantCohort is the scheduling-priority grouping of a tenant. It is derived
// at dispatch time from plan tier and activity, never stored.
type TenantCohort string

const (
	CohortHighValue TenantCohort = "high_value"
	CohortActive    TenantCohort = "active"
	CohortDormant   TenantCohort = "dormant"
)

// cohortSpellings is the closed set of accepted cohort inputs. Both the
// symbolic name ("HIGH_VALUE") and the value ("high_value") are accepted,
// case-insensitively. Anything outside this set is a validation error.
var cohortSpellings = map[string]TenantCohort{
	"high_value": CohortHighValue,
	"active":     CohortActive,
	"dormant":    CohortDormant,
}

// ParseTenantCohort converts a loose string into a TenantCohort. It accepts
// the symbolic constant name or the lower-case value, case-insensitively, and
// rejects everything else with a validation error.
func ParseTenantCohort(s string) (TenantCohort, error) {
	c, ok := cohortSpellings[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", NewAppError(ErrCodeValidationInvalidCohort,
			"unknown tenant cohort: "+s, nil)
	}
	return c, nil
}

// PlanTier identifies the commercial plan for a tenant.
type PlanTier string

const (
	PlanTrial      PlanTier = "trial"
	PlanStarter    PlanTier = "starter"
	PlanGrowth     PlanTier = "growth"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// HighValueTiers are the tiers that always classify as CohortHighValue,
// regardless of activity. Dormancy is never checked for these.
var HighValueTiers = []PlanTier{PlanEnterprise, PlanPro}

// IsHighValue reports whether the tier is in the top-paid set.
func (t PlanTier) IsHighValue() bool {
	for _, hv := range HighValueTiers {
		if t == hv {
			return true
		}
	}
	return false
}

// JobType identifies the kind of background work a queued job row represents.
type JobType string

const (
	JobCostIngestion     JobType = "cost_ingestion"
	JobZombieScan        JobType = "zombie_scan"
	JobFinOpsAnalysis    JobType = "finops_analysis"
	JobAnomalyDetection  JobType = "anomaly_detection"
	JobRemediation       JobType = "remediation"
	JobAcceptanceCapture JobType = "acceptance_capture"
	JobRecurringBilling  JobType = "recurring_billing"
	JobLicenseGovernance JobType = "license_governance"
	JobEnforcementRecon  JobType = "enforcement_reconciliation"
)

// JobStatus is the lifecycle state of a queued job row. Rows are created
// PENDING by the enqueuers; the job processor moves them forward; the
// stuck-job sweep is the only other writer (PENDING -> FAILED on timeout).
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusRunning    JobStatus = "running"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusDeadLetter JobStatus = "dead_letter"
)

// CloudProvider identifies a normalized cloud provider for a billing
// connection.
type CloudProvider string

const (
	ProviderAWS   CloudProvider = "aws"
	ProviderAzure CloudProvider = "azure"
	ProviderGCP   CloudProvider = "gcp"
)

// providerAliases maps the loose provider spellings seen on stored
// connections to their normalized identifiers.
var providerAliases = map[string]CloudProvider{
	"aws":       ProviderAWS,
	"amazon":    ProviderAWS,
	"azure":     ProviderAzure,
	"microsoft": ProviderAzure,
	"gcp":       ProviderGCP,
	"google":    ProviderGCP,
}

// NormalizeProvider converts a loose provider string into a CloudProvider.
// Unknown providers return a validation error; callers that iterate
// connections skip those with a warning rather than failing the batch.
func NormalizeProvider(s string) (CloudProvider, error) {
	p, ok := providerAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", NewAppError(ErrCodeValidationInvalidProvider,
			"unknown cloud provider: "+s, nil)
	}
	return p, nil
}

// FeatureFlag identifies a plan-gated capability used to decide which
// optional job types a tenant qualifies for.
type FeatureFlag string

const (
	FeatureCostIngestion    FeatureFlag = "cost_ingestion"
	FeatureFinOpsAnalysis   FeatureFlag = "finops_analysis"
	FeatureAnomalyDetection FeatureFlag = "anomaly_detection"
	FeatureRemediation      FeatureFlag = "remediation"
)
