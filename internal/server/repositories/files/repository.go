// Package files is the File Record Store: one row per uploaded asset with
// its status state machine.
package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/server/models"
)

type Repository interface {
	// Upsert inserts a pending record keyed by storage key. A retry with the
	// same key and owner returns the existing row; a different owner gets
	// common.ErrForbidden.
	Upsert(ctx context.Context, rec *models.FileRecord) (*models.FileRecord, error)
	// InsertCompleted stores a record that needs no extraction.
	InsertCompleted(ctx context.Context, rec *models.FileRecord) (*models.FileRecord, error)
	GetByID(ctx context.Context, id string) (*models.FileRecord, error)
	GetByStorageKey(ctx context.Context, key string) (*models.FileRecord, error)
	// SelectUnfinished returns up to limit claimable records, least claimed
	// first and oldest first within that. Records already processing are
	// included only when their last transition is at least staleAfter old.
	SelectUnfinished(ctx context.Context, limit int, staleAfter time.Duration) ([]*models.FileRecord, error)
	// MarkProcessing claims the record and returns its claim count.
	MarkProcessing(ctx context.Context, id string) (int, error)
	SaveOutcome(ctx context.Context, id string, o models.Outcome) error
	// Requeue moves an errored record back to pending with a fresh claim count.
	Requeue(ctx context.Context, id string) (*models.FileRecord, error)
}
