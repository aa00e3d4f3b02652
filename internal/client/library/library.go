// Package library is the offline, searchable copy of extracted text kept
// on the device.
package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/client/library/migrations"
	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

type Document struct {
	FileID   string
	LocalID  string
	Name     string
	MimeType string
	Status   string
	Text     string
	Error    string
	SyncedAt time.Time
}

type Library struct {
	db   *sql.DB
	docs *documents
}

// RunMigrations runs on every open, so goose's progress output is silenced.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if needed) the library database at path.
func Open(ctx context.Context, path string) (*Library, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Library{db: db, docs: &documents{db: db}}, nil
}

func (l *Library) Close() error {
	return l.db.Close()
}

func (l *Library) Save(ctx context.Context, doc Document) error {
	if doc.FileID == "" {
		return fmt.Errorf("%w: file id is required", common.ErrValidation)
	}
	return l.docs.upsert(ctx, doc)
}

func (l *Library) Get(ctx context.Context, fileID string) (*Document, error) {
	return l.docs.get(ctx, fileID)
}

// Search matches query against names and text, case-insensitively for
// ASCII, most recently synced first. An empty query lists everything.
func (l *Library) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.docs.search(ctx, strings.TrimSpace(query), limit)
}

func (l *Library) Delete(ctx context.Context, fileID string) error {
	return l.docs.delete(ctx, fileID)
}

type documents struct {
	db dbx.DBTX
}

func (r *documents) upsert(ctx context.Context, d Document) error {
	query := `INSERT INTO documents (file_id, local_id, name, mime_type, status, text, error, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(file_id) DO UPDATE SET
				local_id = excluded.local_id,
				name = excluded.name,
				mime_type = excluded.mime_type,
				status = excluded.status,
				text = excluded.text,
				error = excluded.error,
				synced_at = excluded.synced_at`

	_, err := r.db.ExecContext(ctx, query, d.FileID, d.LocalID, d.Name, d.MimeType, d.Status, d.Text, d.Error, d.SyncedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

const documentColumns = `file_id, local_id, name, mime_type, status, text, error, synced_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(s rowScanner) (*Document, error) {
	var d Document
	if err := s.Scan(&d.FileID, &d.LocalID, &d.Name, &d.MimeType, &d.Status, &d.Text, &d.Error, &d.SyncedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *documents) get(ctx context.Context, fileID string) (*Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE file_id = ?`, fileID)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return d, nil
}

func (r *documents) search(ctx context.Context, q string, limit int) ([]Document, error) {
	pattern := "%" + escapeLike(q) + "%"
	rows, err := r.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE text LIKE ? ESCAPE '\' OR name LIKE ? ESCAPE '\'
		ORDER BY synced_at DESC, file_id
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return out, nil
}

func (r *documents) delete(ctx context.Context, fileID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE file_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
