package types

import "time"

// TaskType identifies which scheduled service the sweep worker should run
// for a dispatch message. Each constant maps to one service method in the
// worker's task multiplexer.
type TaskType string

const (
	TaskCohortEnqueue    TaskType = "cohort_enqueue"
	TaskRemediationSweep TaskType = "remediation_sweep"
	TaskBillingSweep     TaskType = "billing_sweep"
	TaskAcceptanceSweep  TaskType = "acceptance_sweep"
	TaskStuckJobSweep    TaskType = "stuck_job_sweep"
	TaskMaintenanceSweep TaskType = "maintenance_sweep"
)

// DispatchMessage is the JSON payload the scheduler sends to the dispatch
// queue. It identifies the task to execute, the cohort for cohort enqueues,
// and optionally overrides the reference time for manual invocation or
// backfilling.
//
//	{
//	  "task": "cohort_enqueue",
//	  "cohort": "high_value",
//	  "reference_time": "2026-08-28T06:00:00Z"  // optional
//	}
type DispatchMessage struct {
	Task   TaskType     `json:"task"`
	Cohort TenantCohort `json:"cohort,omitempty"`
	// ReferenceTime allows manual invocation to specify a different "now"
	// for deterministic execution. If nil, time.Now().UTC() is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
	TraceID       string     `json:"trace_id,omitempty"`
}
