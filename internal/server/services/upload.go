// Package services holds the server's business logic: the upload
// handshake, status lookups, requeue, transcription and the worker run.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/logging"
	"github.com/dmitrijs2005/scanvault/internal/server/config"
	"github.com/dmitrijs2005/scanvault/internal/server/models"
	"github.com/dmitrijs2005/scanvault/internal/server/objectstore"
	"github.com/dmitrijs2005/scanvault/internal/server/processing"
	"github.com/dmitrijs2005/scanvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// UploadTicket is the capability handed to a client for a direct upload.
type UploadTicket struct {
	UploadURL  string
	StorageKey string
	PublicURL  string
}

// CompleteUpload is the client's "upload finished" notification.
type CompleteUpload struct {
	StorageKey   string
	PublicURL    string
	OriginalName string
	ContentType  string
}

type UploadService struct {
	db                *sql.DB
	repomanager       repomanager.RepositoryManager
	objects           objectstore.Store
	defaultTokenLimit int64
	logger            logging.Logger

	now   func() time.Time
	newID func() string
}

func NewUploadService(db *sql.DB, rm repomanager.RepositoryManager, objects objectstore.Store, cfg *config.Config, logger logging.Logger) *UploadService {
	return &UploadService{
		db:                db,
		repomanager:       rm,
		objects:           objects,
		defaultTokenLimit: cfg.DefaultTokenLimit,
		logger:            logger.With("module", "upload"),
		now:               time.Now,
		newID:             func() string { return uuid.NewString() },
	}
}

// CreateUploadURL mints a presigned PUT under the caller's key prefix. It
// checks nothing beyond identity.
func (s *UploadService) CreateUploadURL(ctx context.Context, userID, filename, contentType string) (*UploadTicket, error) {
	if userID == "" {
		return nil, common.ErrUnauthenticated
	}

	key := objectstore.NewStorageKey(userID, filename, s.now().UTC())

	url, err := s.objects.PresignPut(ctx, key, contentType)
	if err != nil {
		return nil, common.Transient(err)
	}

	return &UploadTicket{UploadURL: url, StorageKey: key, PublicURL: s.objects.PublicURL(key)}, nil
}

// RecordUploadComplete creates the pending record. Retries with the same
// storage key return the existing row without consulting the quota, so a
// retry after a lost response succeeds even once the budget is spent.
func (s *UploadService) RecordUploadComplete(ctx context.Context, userID string, in CompleteUpload) (*models.FileRecord, error) {
	if userID == "" {
		return nil, common.ErrUnauthenticated
	}
	if in.StorageKey == "" || in.ContentType == "" {
		return nil, fmt.Errorf("%w: storageKey and contentType are required", common.ErrValidation)
	}
	if !objectstore.OwnsKey(userID, in.StorageKey) {
		return nil, common.ErrForbidden
	}

	repo := s.repomanager.Files(s.db)

	existing, err := repo.GetByStorageKey(ctx, in.StorageKey)
	switch {
	case err == nil:
		if existing.OwnerID != userID {
			return nil, common.ErrForbidden
		}
		s.logger.Info(ctx, "upload already recorded", "file_id", existing.ID, "user_id", userID)
		return existing, nil
	case !errors.Is(err, common.ErrNotFound):
		return nil, err
	}

	if err := s.checkQuota(ctx, userID); err != nil {
		return nil, err
	}

	name := in.OriginalName
	if name == "" {
		name = path.Base(in.StorageKey)
	}

	// The public URL is derived from the key rather than trusted from the client.
	rec, err := repo.Upsert(ctx, &models.FileRecord{
		ID:           s.newID(),
		OwnerID:      userID,
		StorageKey:   in.StorageKey,
		PublicURL:    s.objects.PublicURL(in.StorageKey),
		MediaType:    processing.NormalizeMediaType(in.ContentType),
		OriginalName: name,
		Status:       models.StatusPending,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "upload recorded", "file_id", rec.ID, "user_id", userID, "media_type", rec.MediaType)
	return rec, nil
}

// UploadText stores text that needs no extraction and completes it at once.
func (s *UploadService) UploadText(ctx context.Context, userID, name, content string) (*models.FileRecord, error) {
	if userID == "" {
		return nil, common.ErrUnauthenticated
	}
	if name == "" {
		name = "note.md"
	}

	mediaType := TextMediaType(name)
	key := objectstore.NewStorageKey(userID, name, s.now().UTC())

	if err := s.objects.Put(ctx, key, mediaType+"; charset=utf-8", strings.NewReader(content)); err != nil {
		return nil, err
	}

	var zero int64
	rec, err := s.repomanager.Files(s.db).InsertCompleted(ctx, &models.FileRecord{
		ID:            s.newID(),
		OwnerID:       userID,
		StorageKey:    key,
		PublicURL:     s.objects.PublicURL(key),
		MediaType:     mediaType,
		OriginalName:  name,
		Status:        models.StatusCompleted,
		ExtractedText: &content,
		TokensUsed:    &zero,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "text stored", "file_id", rec.ID, "user_id", userID, "bytes", len(content))
	return rec, nil
}

// GetStatus is a pure read, owner-checked.
func (s *UploadService) GetStatus(ctx context.Context, userID, fileID string) (*models.FileRecord, error) {
	if userID == "" {
		return nil, common.ErrUnauthenticated
	}
	if _, err := uuid.Parse(fileID); err != nil {
		return nil, common.ErrNotFound
	}

	rec, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != userID {
		return nil, common.ErrForbidden
	}
	return rec, nil
}

// Requeue resets an errored record to pending for the next worker run.
func (s *UploadService) Requeue(ctx context.Context, userID, fileID string) (*models.FileRecord, error) {
	rec, err := s.GetStatus(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	if rec.Status != models.StatusError {
		return nil, fmt.Errorf("%w: only records in error can be retried, status is %s", common.ErrValidation, rec.Status)
	}

	if err := s.checkQuota(ctx, userID); err != nil {
		return nil, err
	}

	out, err := s.repomanager.Files(s.db).Requeue(ctx, fileID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: record changed state concurrently", common.ErrValidation)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "record requeued", "file_id", fileID, "user_id", userID)
	return out, nil
}

func (s *UploadService) checkQuota(ctx context.Context, userID string) error {
	budget, err := s.repomanager.Budgets(s.db).Get(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		budget = &models.TokenBudget{UserID: userID, Limit: s.defaultTokenLimit}
	} else if err != nil {
		return err
	}

	if budget.Exhausted() {
		return &common.QuotaExceededError{Remaining: budget.Remaining(), Limit: budget.Limit}
	}
	return nil
}

// TextMediaType picks text/markdown for markdown names, text/plain otherwise.
func TextMediaType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return "text/markdown"
	default:
		return "text/plain"
	}
}
