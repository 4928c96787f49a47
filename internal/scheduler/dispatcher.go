package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"valdrix/internal/metrics"
	"valdrix/internal/types"
)

// DispatchSender hands a dispatch message to the message broker.
type DispatchSender interface {
	Send(ctx context.Context, msg types.DispatchMessage) error
}

// LockManager gates each dispatch behind a TTL'd distributed lock.
type LockManager interface {
	TryAcquire(ctx context.Context, jobName string, ttl time.Duration) bool
}

// RunStatus records the outcome of the most recent dispatch attempt for one
// schedule entry. Surfaced on the health endpoint.
type RunStatus struct {
	LastRunTime    time.Time `json:"last_run_time"`
	LastRunSuccess bool      `json:"last_run_success"`
}

// Dispatcher owns the cron runner. On each tick it races for the entry's
// distributed lock and, if it wins, fires a single message at the broker.
// All heavy work happens in the sweep workers; the dispatcher itself only
// ever sends one small message per tick.
type Dispatcher struct {
	sender  DispatchSender
	locks   LockManager
	lockTTL time.Duration
	metrics metrics.Recorder
	logger  *slog.Logger
	cron    *cron.Cron
	nowFn   func() time.Time

	mu     sync.Mutex
	status map[string]RunStatus
}

func NewDispatcher(sender DispatchSender, locks LockManager, lockTTL time.Duration, rec metrics.Recorder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		locks:   locks,
		lockTTL: lockTTL,
		metrics: rec,
		logger:  logger,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		nowFn:   func() time.Time { return time.Now().UTC() },
		status:  make(map[string]RunStatus),
	}
}

// Start registers every schedule entry and starts the cron runner.
func (d *Dispatcher) Start() error {
	for _, entry := range Schedule {
		task, cohort := entry.Task, entry.Cohort
		if _, err := d.cron.AddFunc(entry.Spec, func() {
			d.Dispatch(context.Background(), task, cohort)
		}); err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to register schedule entry", err)
		}
	}
	d.cron.Start()
	d.logger.Info("dispatcher started", "entries", len(Schedule))
	return nil
}

// Stop halts the cron runner and waits for in-flight ticks to drain.
func (d *Dispatcher) Stop() {
	<-d.cron.Stop().Done()
}

// Dispatch attempts one dispatch of the given task. The lock decides whether
// this replica runs the tick; losing the race is a silent no-op. Broker
// failures are logged and counted but never propagate, the next tick is the
// retry.
func (d *Dispatcher) Dispatch(ctx context.Context, task types.TaskType, cohort types.TenantCohort) {
	name := LockName(task, cohort)
	if !d.locks.TryAcquire(ctx, name, d.lockTTL) {
		d.logger.DebugContext(ctx, "dispatch lock held elsewhere, skipping tick", "job", name)
		return
	}

	err := d.sender.Send(ctx, types.DispatchMessage{Task: task, Cohort: cohort})
	if err != nil {
		d.logger.ErrorContext(ctx, "dispatch handoff failed", "job", name, "error", err)
	}
	d.metrics.DispatchResult(task, err == nil)
	d.recordRun(name, err == nil)
}

func (d *Dispatcher) recordRun(name string, success bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status[name] = RunStatus{LastRunTime: d.nowFn(), LastRunSuccess: success}
}

// Status returns a copy of the per-entry run records for health reporting.
func (d *Dispatcher) Status() map[string]RunStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]RunStatus, len(d.status))
	for k, v := range d.status {
		out[k] = v
	}
	return out
}
