package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/logging"
	"github.com/dmitrijs2005/scanvault/internal/server/config"
	"github.com/dmitrijs2005/scanvault/internal/server/inference"
	"github.com/dmitrijs2005/scanvault/internal/server/models"
	"github.com/dmitrijs2005/scanvault/internal/server/processing"
	"github.com/dmitrijs2005/scanvault/internal/server/repositories/repomanager"
)

// RunSummary is the aggregate result of one worker run.
type RunSummary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Errored   int `json:"errored"`
	// Deferred records hit a transient failure and stay claimable.
	Deferred int `json:"deferred"`
	// Skipped is set when another run held the lease.
	Skipped bool `json:"skipped,omitempty"`
}

type outcomeKind int

const (
	outcomeSucceeded outcomeKind = iota
	outcomeErrored
	outcomeDeferred
)

type WorkerService struct {
	db                *sql.DB
	repomanager       repomanager.RepositoryManager
	processor         processing.Processor
	batchSize         int
	maxAttempts       int
	staleAfter        time.Duration
	defaultTokenLimit int64
	logger            logging.Logger
}

func NewWorkerService(db *sql.DB, rm repomanager.RepositoryManager, processor processing.Processor, cfg *config.Config, logger logging.Logger) *WorkerService {
	return &WorkerService{
		db:                db,
		repomanager:       rm,
		processor:         processor,
		batchSize:         cfg.WorkerBatchSize,
		maxAttempts:       cfg.WorkerMaxAttempts,
		staleAfter:        cfg.WorkerStaleAfter,
		defaultTokenLimit: cfg.DefaultTokenLimit,
		logger:            logger.With("module", "worker"),
	}
}

// ProcessPending drives up to batchSize records through the engine, one at
// a time. Only failing to list the batch is an error; per-record failures
// are counted in the summary.
func (s *WorkerService) ProcessPending(ctx context.Context) (RunSummary, error) {
	var summary RunSummary

	recs, err := s.repomanager.Files(s.db).SelectUnfinished(ctx, s.batchSize, s.staleAfter)
	if err != nil {
		return summary, fmt.Errorf("select unfinished: %w", err)
	}

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			s.logger.Warn(ctx, "run interrupted", "remaining", len(recs)-summary.Attempted)
			return summary, err
		}

		summary.Attempted++
		switch s.processOne(ctx, rec) {
		case outcomeSucceeded:
			summary.Succeeded++
		case outcomeErrored:
			summary.Errored++
		case outcomeDeferred:
			summary.Deferred++
		}
	}

	s.logger.Info(ctx, "run finished",
		"attempted", summary.Attempted, "succeeded", summary.Succeeded,
		"errored", summary.Errored, "deferred", summary.Deferred)
	return summary, nil
}

func (s *WorkerService) processOne(ctx context.Context, rec *models.FileRecord) outcomeKind {
	log := s.logger.With("file_id", rec.ID, "media_type", rec.MediaType)
	repo := s.repomanager.Files(s.db)

	if rec.Status == models.StatusProcessing {
		log.Info(ctx, "re-claiming record left in processing", "updated_at", rec.UpdatedAt)
	}
	attempts, err := repo.MarkProcessing(ctx, rec.ID)
	if err != nil {
		log.Warn(ctx, "claim failed", "error", err)
		return outcomeDeferred
	}

	// Work from the stored row, not the batch snapshot.
	fresh, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		log.Warn(ctx, "re-read failed", "error", err)
		return outcomeDeferred
	}

	started := time.Now()
	res, err := s.safeProcess(ctx, fresh)

	var outcome models.Outcome
	switch {
	case err == nil:
		outcome = models.CompletedOutcome(res.Text, res.Tokens)
	case ctx.Err() != nil:
		log.Warn(ctx, "run cancelled mid-record", "error", err)
		return outcomeDeferred
	case isRetryable(err) && s.exhausted(attempts):
		outcome = models.ErrorOutcome(fmt.Sprintf("gave up after %d attempts: %s", attempts, failureMessage(err)))
	case isRetryable(err):
		log.Warn(ctx, "transient failure, leaving for next run", "attempts", attempts, "error", err)
		return outcomeDeferred
	default:
		outcome = models.ErrorOutcome(failureMessage(err))
	}

	if err := repo.SaveOutcome(ctx, fresh.ID, outcome); err != nil {
		log.Error(ctx, "saving outcome failed", "error", err)
		return outcomeDeferred
	}

	if outcome.Status == models.StatusError {
		log.Warn(ctx, "extraction failed", "error", *outcome.Error, "took", time.Since(started).String())
		return outcomeErrored
	}

	log.Info(ctx, "extraction completed", "tokens", res.Tokens, "took", time.Since(started).String())

	if res.Tokens > 0 {
		if err := s.repomanager.Budgets(s.db).Debit(ctx, fresh.OwnerID, res.Tokens, s.defaultTokenLimit); err != nil {
			log.Error(ctx, "token debit failed", "user_id", fresh.OwnerID, "tokens", res.Tokens, "error", err)
		}
	}
	return outcomeSucceeded
}

// safeProcess turns a panic in one record into that record's error.
func (s *WorkerService) safeProcess(ctx context.Context, rec *models.FileRecord) (res inference.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processing panicked: %v", r)
		}
	}()
	return s.processor.Process(ctx, rec)
}

// exhausted reports whether a record claimed attempts times has used up its
// retries.
func (s *WorkerService) exhausted(attempts int) bool {
	return s.maxAttempts > 0 && attempts >= s.maxAttempts
}

// isRetryable is true for transient I/O that is not already classified as
// a terminal extraction failure.
func isRetryable(err error) bool {
	var ee *common.ExtractionError
	if errors.As(err, &ee) {
		return false
	}
	return errors.Is(err, common.ErrTransient)
}

func failureMessage(err error) string {
	if errors.Is(err, common.ErrNotFound) {
		return "uploaded file is missing from storage"
	}
	return err.Error()
}
