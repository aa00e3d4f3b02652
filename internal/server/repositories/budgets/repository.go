// Package budgets stores per-user token allowances consumed by extraction.
package budgets

import (
	"context"

	"github.com/dmitrijs2005/scanvault/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrNotFound for users without a row.
	Get(ctx context.Context, userID string) (*models.TokenBudget, error)
	// Debit adds tokens to the user's usage, creating the row with
	// defaultLimit when missing.
	Debit(ctx context.Context, userID string, tokens int64, defaultLimit int64) error
}
