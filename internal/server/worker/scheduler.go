package worker

import (
	"context"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/logging"
	"github.com/dmitrijs2005/scanvault/internal/server/services"
)

// Job is one scheduled unit of work; *Runner implements it.
type Job interface {
	Run(ctx context.Context) (services.RunSummary, error)
}

// Scheduler triggers a run every interval until ctx is done.
type Scheduler struct {
	runner   Job
	interval time.Duration
	logger   logging.Logger
}

func NewScheduler(runner Job, interval time.Duration, logger logging.Logger) *Scheduler {
	return &Scheduler{runner: runner, interval: interval, logger: logger.With("module", "scheduler")}
}

// Start blocks; call it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "scheduler started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "scheduler stopped")
			return
		case <-ticker.C:
			summary, err := s.runner.Run(ctx)
			if err != nil {
				s.logger.Error(ctx, "scheduled run failed", "error", err)
				continue
			}
			if summary.Attempted > 0 {
				s.logger.Info(ctx, "scheduled run done", "attempted", summary.Attempted, "errored", summary.Errored)
			}
		}
	}
}
