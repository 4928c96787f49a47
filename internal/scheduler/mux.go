package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"valdrix/internal/types"
)

// TaskMux routes a dispatch message to the service that executes it. It is
// the worker-side counterpart of the dispatcher: one message in, one sweep
// out.
type TaskMux struct {
	cohorts     *CohortEnqueuer
	remediation *RemediationEnqueuer
	stuck       *StuckJobDetector
	maintenance *MaintenanceService
	logger      *slog.Logger
	nowFn       func() time.Time
}

func NewTaskMux(cohorts *CohortEnqueuer, remediation *RemediationEnqueuer, stuck *StuckJobDetector, maintenance *MaintenanceService, logger *slog.Logger) *TaskMux {
	return &TaskMux{
		cohorts:     cohorts,
		remediation: remediation,
		stuck:       stuck,
		maintenance: maintenance,
		logger:      logger,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes one dispatch message. An explicit reference time in the
// message overrides the wall clock, which is how operators replay a missed
// window with the bucket semantics of the original tick.
func (m *TaskMux) Handle(ctx context.Context, msg types.DispatchMessage) error {
	now := m.nowFn()
	if msg.ReferenceTime != nil {
		now = msg.ReferenceTime.UTC()
	}

	m.logger.InfoContext(ctx, "handling dispatch message",
		"task", msg.Task, "cohort", msg.Cohort, "trace_id", msg.TraceID, "reference_time", now)

	switch msg.Task {
	case types.TaskCohortEnqueue:
		cohort, err := types.ParseTenantCohort(string(msg.Cohort))
		if err != nil {
			return err
		}
		return m.cohorts.EnqueueCohort(ctx, cohort, now)
	case types.TaskBillingSweep:
		return m.cohorts.EnqueueUniform(ctx, types.TaskBillingSweep,
			[]types.JobType{types.JobRecurringBilling, types.JobLicenseGovernance}, now)
	case types.TaskAcceptanceSweep:
		return m.cohorts.EnqueueUniform(ctx, types.TaskAcceptanceSweep,
			[]types.JobType{types.JobAcceptanceCapture}, now)
	case types.TaskRemediationSweep:
		return m.remediation.EnqueueRemediation(ctx, now)
	case types.TaskStuckJobSweep:
		return m.stuck.Sweep(ctx, now)
	case types.TaskMaintenanceSweep:
		return m.maintenance.Purge(ctx, now)
	default:
		return types.NewAppError(types.ErrCodeValidationInvalidTask,
			fmt.Sprintf("unknown dispatch task %q", msg.Task), nil)
	}
}
