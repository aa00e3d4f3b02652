package budgets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/dbx"
	"github.com/dmitrijs2005/scanvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.TokenBudget, error) {
	query := `SELECT user_id, token_limit, tokens_used FROM token_budgets WHERE user_id = $1`

	b := &models.TokenBudget{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&b.UserID, &b.Limit, &b.Used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select budget: %w", err)
	}
	return b, nil
}

func (r *PostgresRepository) Debit(ctx context.Context, userID string, tokens int64, defaultLimit int64) error {
	if tokens <= 0 {
		return nil
	}

	query := `
		INSERT INTO token_budgets (user_id, token_limit, tokens_used)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET tokens_used = token_budgets.tokens_used + EXCLUDED.tokens_used, updated_at = now()`

	if _, err := r.db.ExecContext(ctx, query, userID, defaultLimit, tokens); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
