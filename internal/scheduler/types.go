package scheduler

import (
	"valdrix/internal/types"
)

// ScheduleEntry binds a cron expression to the task it dispatches. Cohort is
// set only for cohort-enqueue entries.
type ScheduleEntry struct {
	Spec   string
	Task   types.TaskType
	Cohort types.TenantCohort
}

// Schedule is the full dispatch calendar. All expressions are evaluated in
// UTC (the process clock is pinned to UTC at startup).
var Schedule = []ScheduleEntry{
	{Spec: "0 0,6,12,18 * * *", Task: types.TaskCohortEnqueue, Cohort: types.CohortHighValue},
	{Spec: "0 2 * * *", Task: types.TaskCohortEnqueue, Cohort: types.CohortActive},
	{Spec: "0 3 * * 0", Task: types.TaskCohortEnqueue, Cohort: types.CohortDormant},
	{Spec: "0 20 * * 5", Task: types.TaskRemediationSweep},
	{Spec: "0 4 * * *", Task: types.TaskBillingSweep},
	{Spec: "0 5 * * *", Task: types.TaskAcceptanceSweep},
	{Spec: "0 * * * *", Task: types.TaskStuckJobSweep},
	{Spec: "0 3 * * *", Task: types.TaskMaintenanceSweep},
}

// LockName derives the distributed lock key suffix for a schedule entry.
// Cohort-enqueue entries get one lock per cohort so stalls in one cohort's
// dispatch never block the others.
func LockName(task types.TaskType, cohort types.TenantCohort) string {
	if cohort != "" {
		return string(task) + ":" + string(cohort)
	}
	return string(task)
}
