package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/dbx"
	"github.com/dmitrijs2005/scanvault/internal/server/inference"
	"github.com/dmitrijs2005/scanvault/internal/server/models"
	"github.com/dmitrijs2005/scanvault/internal/server/repositories/budgets"
	"github.com/dmitrijs2005/scanvault/internal/server/repositories/files"
)

// memFiles is an in-memory files.Repository with the same uniqueness and
// ownership rules as the SQL one. history records every status a row took.
type memFiles struct {
	mu       sync.Mutex
	rows     map[string]*models.FileRecord
	history  map[string][]models.Status
	attempts map[string]int
	clock    time.Time

	markErr error
	saveErr error
}

func newMemFiles() *memFiles {
	return &memFiles{
		rows:     map[string]*models.FileRecord{},
		history:  map[string][]models.Status{},
		attempts: map[string]int{},
		clock:    time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memFiles) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func clone(r *models.FileRecord) *models.FileRecord {
	c := *r
	return &c
}

func (m *memFiles) put(r *models.FileRecord) {
	m.rows[r.ID] = r
	m.history[r.ID] = append(m.history[r.ID], r.Status)
}

func (m *memFiles) Upsert(ctx context.Context, rec *models.FileRecord) (*models.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows {
		if r.StorageKey == rec.StorageKey {
			if r.OwnerID != rec.OwnerID {
				return nil, common.ErrForbidden
			}
			return clone(r), nil
		}
	}
	r := clone(rec)
	r.CreatedAt = m.tick()
	r.UpdatedAt = r.CreatedAt
	m.put(r)
	return clone(r), nil
}

func (m *memFiles) InsertCompleted(ctx context.Context, rec *models.FileRecord) (*models.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := clone(rec)
	r.Status = models.StatusCompleted
	r.CreatedAt = m.tick()
	r.UpdatedAt = r.CreatedAt
	m.put(r)
	return clone(r), nil
}

func (m *memFiles) GetByID(ctx context.Context, id string) (*models.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return clone(r), nil
}

func (m *memFiles) GetByStorageKey(ctx context.Context, key string) (*models.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows {
		if r.StorageKey == key {
			return clone(r), nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memFiles) SelectUnfinished(ctx context.Context, limit int, staleAfter time.Duration) ([]*models.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.FileRecord
	for _, r := range m.rows {
		switch r.Status {
		case models.StatusUploaded, models.StatusPending:
			out = append(out, clone(r))
		case models.StatusProcessing:
			if !r.UpdatedAt.After(m.clock.Add(-staleAfter)) {
				out = append(out, clone(r))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := m.attempts[out[i].ID], m.attempts[out[j].ID]
		if ai != aj {
			return ai < aj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memFiles) MarkProcessing(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.markErr != nil {
		return 0, m.markErr
	}
	r, ok := m.rows[id]
	if !ok || !r.Status.Claimable() {
		return 0, common.ErrNotFound
	}
	r.Status = models.StatusProcessing
	r.Error = nil
	r.UpdatedAt = m.tick()
	m.attempts[id]++
	m.history[id] = append(m.history[id], r.Status)
	return m.attempts[id], nil
}

func (m *memFiles) SaveOutcome(ctx context.Context, id string, o models.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}
	r, ok := m.rows[id]
	if !ok {
		return common.ErrNotFound
	}
	o.Apply(r)
	r.UpdatedAt = m.tick()
	m.history[id] = append(m.history[id], r.Status)
	return nil
}

func (m *memFiles) Requeue(ctx context.Context, id string) (*models.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[id]
	if !ok || r.Status != models.StatusError {
		return nil, common.ErrNotFound
	}
	models.Outcome{Status: models.StatusPending}.Apply(r)
	m.attempts[id] = 0
	r.UpdatedAt = m.tick()
	m.history[id] = append(m.history[id], r.Status)
	return clone(r), nil
}

func (m *memFiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memBudgets struct {
	mu       sync.Mutex
	rows     map[string]*models.TokenBudget
	debitErr error
	getErr   error
}

func newMemBudgets() *memBudgets {
	return &memBudgets{rows: map[string]*models.TokenBudget{}}
}

func (b *memBudgets) Get(ctx context.Context, userID string) (*models.TokenBudget, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, b.getErr
	}
	r, ok := b.rows[userID]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (b *memBudgets) Debit(ctx context.Context, userID string, tokens int64, defaultLimit int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.debitErr != nil {
		return b.debitErr
	}
	r, ok := b.rows[userID]
	if !ok {
		r = &models.TokenBudget{UserID: userID, Limit: defaultLimit}
		b.rows[userID] = r
	}
	r.Used += tokens
	return nil
}

type fakeRepoManager struct {
	files   *memFiles
	budgets *memBudgets
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{files: newMemFiles(), budgets: newMemBudgets()}
}

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeRepoManager) Files(dbx.DBTX) files.Repository              { return f.files }
func (f *fakeRepoManager) Budgets(dbx.DBTX) budgets.Repository          { return f.budgets }

// fakeStore mimics objectstore.S3Store against a map.
type fakeStore struct {
	mu         sync.Mutex
	objects    map[string]string
	types      map[string]string
	presignErr error
	putErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]string{}, types: map[string]string{}}
}

func (f *fakeStore) PresignPut(ctx context.Context, key, contentType string) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "http://minio:9000/scanvault/" + key + "?X-Amz-Signature=sig", nil
}

func (f *fakeStore) PublicURL(key string) string {
	return "http://minio:9000/scanvault/" + key
}

func (f *fakeStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.objects[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

func (f *fakeStore) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	if f.putErr != nil {
		return f.putErr
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = string(b)
	f.types[key] = contentType
	return nil
}

// funcProcessor adapts a function to processing.Processor.
type funcProcessor func(ctx context.Context, rec *models.FileRecord) (inference.Result, error)

func (f funcProcessor) Process(ctx context.Context, rec *models.FileRecord) (inference.Result, error) {
	return f(ctx, rec)
}

// fakeVision answers every image with fixed text and no usage figure.
type fakeVision struct {
	text string
}

func (f *fakeVision) DescribeImage(ctx context.Context, url string) (inference.Result, error) {
	return inference.Result{Text: f.text}, nil
}

func (f *fakeVision) Transcribe(ctx context.Context, filename string, audio io.Reader) (inference.Result, error) {
	return inference.Result{}, errors.New("not used")
}
