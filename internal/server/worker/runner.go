package worker

import (
	"context"

	"github.com/dmitrijs2005/scanvault/internal/logging"
	"github.com/dmitrijs2005/scanvault/internal/server/services"
	"github.com/google/uuid"
)

// BatchProcessor is satisfied by services.WorkerService.
type BatchProcessor interface {
	ProcessPending(ctx context.Context) (services.RunSummary, error)
}

// Runner wraps a batch run in the lease. A run that finds the lease taken
// returns a summary with Skipped set and touches no records.
type Runner struct {
	processor BatchProcessor
	lease     Lease
	logger    logging.Logger
	newOwner  func() string
}

func NewRunner(processor BatchProcessor, lease Lease, logger logging.Logger) *Runner {
	return &Runner{
		processor: processor,
		lease:     lease,
		logger:    logger.With("module", "runner"),
		newOwner:  uuid.NewString,
	}
}

func (r *Runner) Run(ctx context.Context) (services.RunSummary, error) {
	owner := r.newOwner()

	ok, err := r.lease.Acquire(ctx, owner)
	if err != nil {
		return services.RunSummary{}, err
	}
	if !ok {
		r.logger.Info(ctx, "another run holds the lease, skipping")
		return services.RunSummary{Skipped: true}, nil
	}
	defer func() {
		if err := r.lease.Release(context.WithoutCancel(ctx), owner); err != nil {
			r.logger.Warn(ctx, "lease release failed", "error", err)
		}
	}()

	return r.processor.ProcessPending(ctx)
}
