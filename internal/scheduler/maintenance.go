package scheduler

import (
	"context"
	"log/slog"
	"time"

	"valdrix/internal/metrics"
	"valdrix/internal/types"
)

// MaintenanceDB deletes terminal job rows past retention.
type MaintenanceDB interface {
	PurgeTerminalJobs(ctx context.Context, cutoff time.Time) (int, error)
}

// MaintenanceService purges completed, failed, and dead-letter job rows
// older than the retention window. Without the purge the dedup-key index
// grows without bound and old keys block legitimate re-enqueues forever.
type MaintenanceService struct {
	db        MaintenanceDB
	metrics   metrics.Recorder
	logger    *slog.Logger
	retention time.Duration
}

func NewMaintenanceService(db MaintenanceDB, rec metrics.Recorder, logger *slog.Logger, retention time.Duration) *MaintenanceService {
	return &MaintenanceService{db: db, metrics: rec, logger: logger, retention: retention}
}

// Purge runs one retention pass anchored at now.
func (s *MaintenanceService) Purge(ctx context.Context, now time.Time) error {
	start := time.Now()
	purged, err := s.db.PurgeTerminalJobs(ctx, now.Add(-s.retention))
	s.metrics.DispatchDuration(types.TaskMaintenanceSweep, time.Since(start))
	s.metrics.DispatchResult(types.TaskMaintenanceSweep, err == nil)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "terminal job rows purged", "purged", purged, "retention", s.retention)
	return nil
}
