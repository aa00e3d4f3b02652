package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/dbx"
	"github.com/dmitrijs2005/scanvault/internal/server/models"
)

const recordColumns = `id, owner_id, storage_key, public_url, media_type, original_name, status,
	extracted_text, tokens_used, error, created_at, updated_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.FileRecord, error) {
	var (
		rec    models.FileRecord
		status string
		text   sql.NullString
		tokens sql.NullInt64
		errMsg sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.StorageKey, &rec.PublicURL, &rec.MediaType, &rec.OriginalName,
		&status, &text, &tokens, &errMsg, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rec.Status = models.Status(status)
	if text.Valid {
		rec.ExtractedText = &text.String
	}
	if tokens.Valid {
		rec.TokensUsed = &tokens.Int64
	}
	if errMsg.Valid {
		rec.Error = &errMsg.String
	}
	return &rec, nil
}

// Upsert relies on the unique storage_key constraint. The no-op DO UPDATE
// makes RETURNING yield the existing row, and the owner guard makes it
// yield nothing when someone else owns the key.
func (r *PostgresRepository) Upsert(ctx context.Context, rec *models.FileRecord) (*models.FileRecord, error) {
	query := `
		INSERT INTO files (id, owner_id, storage_key, public_url, media_type, original_name, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (storage_key)
		DO UPDATE SET storage_key = EXCLUDED.storage_key
			WHERE files.owner_id = EXCLUDED.owner_id
		RETURNING ` + recordColumns

	row := r.db.QueryRowContext(ctx, query,
		rec.ID, rec.OwnerID, rec.StorageKey, rec.PublicURL, rec.MediaType, rec.OriginalName, string(rec.Status))

	out, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) InsertCompleted(ctx context.Context, rec *models.FileRecord) (*models.FileRecord, error) {
	if rec.ExtractedText == nil {
		return nil, fmt.Errorf("%w: completed record without text", common.ErrValidation)
	}

	query := `
		INSERT INTO files (id, owner_id, storage_key, public_url, media_type, original_name, status,
			extracted_text, tokens_used)
		VALUES ($1, $2, $3, $4, $5, $6, 'completed', $7, $8)
		RETURNING ` + recordColumns

	var tokens int64
	if rec.TokensUsed != nil {
		tokens = *rec.TokensUsed
	}

	row := r.db.QueryRowContext(ctx, query,
		rec.ID, rec.OwnerID, rec.StorageKey, rec.PublicURL, rec.MediaType, rec.OriginalName, *rec.ExtractedText, tokens)

	out, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM files WHERE id = $1`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) GetByStorageKey(ctx context.Context, key string) (*models.FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM files WHERE storage_key = $1`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) SelectUnfinished(ctx context.Context, limit int, staleAfter time.Duration) ([]*models.FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM files
		WHERE status IN ('uploaded', 'pending')
		   OR (status = 'processing' AND updated_at <= now() - make_interval(secs => $2))
		ORDER BY attempts ASC, created_at ASC, id ASC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit, staleAfter.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkProcessing claims a record, clears any prior error and counts the
// claim. It returns the number of claims so far, this one included.
func (r *PostgresRepository) MarkProcessing(ctx context.Context, id string) (int, error) {
	query := `UPDATE files SET status = 'processing', error = NULL, attempts = attempts + 1, updated_at = now()
		WHERE id = $1 AND status IN ('uploaded', 'pending', 'processing')
		RETURNING attempts`

	var attempts int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, common.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to mark processing: %w", err)
	}
	return attempts, nil
}

// SaveOutcome is an unconditional overwrite; duplicate runs converge.
func (r *PostgresRepository) SaveOutcome(ctx context.Context, id string, o models.Outcome) error {
	query := `UPDATE files SET status = $2, extracted_text = $3, tokens_used = $4, error = $5, updated_at = now()
		WHERE id = $1`

	return r.execOne(ctx, "failed to save outcome", query, id, string(o.Status), o.Text, o.TokensUsed, o.Error)
}

func (r *PostgresRepository) Requeue(ctx context.Context, id string) (*models.FileRecord, error) {
	query := `UPDATE files
		SET status = 'pending', error = NULL, extracted_text = NULL, tokens_used = NULL, attempts = 0, updated_at = now()
		WHERE id = $1 AND status = 'error'
		RETURNING ` + recordColumns

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to requeue: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, what, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
