package types

import "time"

// Tenant is the minimal tenant projection the scheduling core works with.
// The full tenant record is owned by the account subsystem; the scheduler
// only needs the classification inputs.
type Tenant struct {
	ID           string
	PlanTier     PlanTier
	LastActiveAt *time.Time
}

// ProviderConnection is an active cloud billing connection belonging to a
// tenant. Remediation jobs are enqueued per connection rather than per
// tenant so the job payload can carry the resolved provider and region.
type ProviderConnection struct {
	ID       string
	TenantID string
	// Provider is the raw stored spelling; normalize with NormalizeProvider
	// before use. Connections that cannot be normalized are skipped.
	Provider string
	// Region is the concrete cloud region, empty when the connection spans
	// regions. Connections without a concrete region are never deferred for
	// carbon reasons.
	Region string
}

// QueuedJob is the durable job row written by the enqueuers and consumed by
// the out-of-scope job processor. The DedupKey carries a unique constraint:
// at most one row ever exists per (tenant, job type, time bucket), no matter
// how many processes race to create it.
type QueuedJob struct {
	ID           string
	TenantID     string
	Type         JobType
	Status       JobStatus
	ScheduledFor time.Time
	CreatedAt    time.Time
	Payload      map[string]any
	Priority     int
	DedupKey     string
}
