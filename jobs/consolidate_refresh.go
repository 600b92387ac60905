package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/shopledger/shopledger/internal/jobs"
)

// ConsolidationRefresher rebuilds the cached consolidated view.
type ConsolidationRefresher interface {
	RefreshConsolidated(ctx context.Context) error
}

// ConsolidationRefreshJob invalidates and rewarms the consolidation cache.
// It runs both on demand (after stock or lifecycle changes) and on cron as a
// safety net against missed events.
type ConsolidationRefreshJob struct {
	Service ConsolidationRefresher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewConsolidationRefreshJob constructs the job handler.
func NewConsolidationRefreshJob(service ConsolidationRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *ConsolidationRefreshJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsolidationRefreshJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle processes TaskConsolidationRefresh tasks.
func (j *ConsolidationRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track("consolidation_refresh")
	if err := j.Service.RefreshConsolidated(ctx); err != nil {
		j.Logger.Error("consolidation refresh failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.Logger.Info("consolidation refresh done")
	return tracker.End(nil)
}
