// Package outbox is the device-local queue that lets captures be saved
// offline and uploaded later.
//
// Layout on disk:
//
//	<dir>/
//	  queue.json            ordered localIds awaiting drain
//	  entries/
//	    <localId>/
//	      meta.json
//	      content.txt       text captures
//	      payload<ext>      binary captures
//	      thumb.jpg         image preview, when one could be made
//
// Every file is replaced through a temp file and rename. A capture is
// durable once its meta.json exists; appending to the queue comes after,
// and Recover re-queues entries that were saved but never queued.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/client/api"
	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/filex"
	"github.com/dmitrijs2005/scanvault/internal/logging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	entriesDir  = "entries"
	queueFile   = "queue.json"
	metaFile    = "meta.json"
	contentFile = "content.txt"
	thumbFile   = "thumb.jpg"
	payloadBase = "payload"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

type Kind string

const (
	KindText   Kind = "text"
	KindBinary Kind = "binary"
)

// Meta is the persisted state of one entry.
type Meta struct {
	LocalID   string    `json:"localId"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mimeType"`
	Kind      Kind      `json:"kind"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Size      int64     `json:"size"`
	Preview   string    `json:"preview,omitempty"`
	Payload   string    `json:"payload"`
	HasThumb  bool      `json:"hasThumb,omitempty"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`

	// Handshake progress. StorageKey is set once the object is in storage.
	StorageKey   string `json:"storageKey,omitempty"`
	PublicURL    string `json:"publicUrl,omitempty"`
	ServerFileID string `json:"serverFileId,omitempty"`
	ServerStatus string `json:"serverStatus,omitempty"`
	ServerError  string `json:"serverError,omitempty"`
	// Indexed is set once the terminal server text is in the library.
	Indexed bool `json:"indexed,omitempty"`
}

// Capture is what the user saved: a TextCapture or a BinaryCapture.
type Capture interface {
	capture()
}

type TextCapture struct {
	Name string
	Text string
}

// BinaryCapture streams a file into the outbox. MimeType is sniffed from
// the content when empty.
type BinaryCapture struct {
	Name     string
	MimeType string
	Source   io.Reader
}

func (TextCapture) capture()   {}
func (BinaryCapture) capture() {}

// API is the part of the server client the outbox drives.
type API interface {
	CreateUploadURL(ctx context.Context, token, filename, contentType string) (*api.UploadTicket, error)
	UploadToPresignedURL(ctx context.Context, uploadURL string, body io.Reader, size int64, contentType string) error
	RecordUploadComplete(ctx context.Context, token string, in api.CompleteUpload) (*api.FileRef, error)
	UploadText(ctx context.Context, token, name, content string) (*api.FileRef, error)
	GetStatus(ctx context.Context, token, fileID string) (*api.FileStatus, error)
}

type Outbox struct {
	dir    string
	api    API
	logger logging.Logger

	// mu serialises queue read-modify-write within this process.
	mu sync.Mutex

	now   func() time.Time
	newID func() string
}

// Open prepares dir and returns an Outbox over it.
func Open(dir string, client API, logger logging.Logger) (*Outbox, error) {
	dir, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	if _, err := filex.EnsureDir(filepath.Join(dir, entriesDir)); err != nil {
		return nil, err
	}
	return &Outbox{
		dir:    dir,
		api:    client,
		logger: logger.With("module", "outbox"),
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

func (o *Outbox) entryDir(id string) string {
	return filepath.Join(o.dir, entriesDir, id)
}

// Enqueue saves the capture and its preview, then appends it to the
// queue. It never touches the network.
func (o *Outbox) Enqueue(ctx context.Context, c Capture) (string, error) {
	id := o.newID()
	dir := o.entryDir(id)
	if _, err := filex.EnsureDir(dir); err != nil {
		return "", err
	}

	now := o.now().UTC()
	meta := &Meta{LocalID: id, Status: StatusPending, CreatedAt: now, UpdatedAt: now}

	var err error
	switch c := c.(type) {
	case TextCapture:
		err = o.saveText(meta, c)
	case BinaryCapture:
		err = o.saveBinary(ctx, meta, c)
	default:
		err = fmt.Errorf("%w: unknown capture %T", common.ErrValidation, c)
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}

	if err := o.writeMeta(meta); err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}

	if err := o.mutateQueue(func(q []string) []string { return append(q, id) }); err != nil {
		// the capture itself is safe; Recover will queue it
		o.logger.Error(ctx, "queue append failed", "local_id", id, "error", err)
		return id, err
	}

	o.logger.Info(ctx, "capture saved", "local_id", id, "name", meta.Name, "mime_type", meta.MimeType)
	return id, nil
}

func (o *Outbox) saveText(meta *Meta, c TextCapture) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", common.ErrValidation)
	}
	meta.Name = name
	meta.Kind = KindText
	meta.MimeType = textMimeType(name)
	meta.Payload = contentFile
	meta.Size = int64(len(c.Text))
	meta.Preview = TextPreview(name, c.Text)
	return filex.WriteFileAtomic(filepath.Join(o.entryDir(meta.LocalID), contentFile), []byte(c.Text), 0o600)
}

func (o *Outbox) saveBinary(ctx context.Context, meta *Meta, c BinaryCapture) error {
	name := strings.TrimSpace(c.Name)
	if name == "" || c.Source == nil {
		return fmt.Errorf("%w: name and source are required", common.ErrValidation)
	}
	meta.Name = name
	meta.Kind = KindBinary

	dir := o.entryDir(meta.LocalID)
	ext := strings.ToLower(filepath.Ext(name))
	payload := filepath.Join(dir, payloadBase+ext)
	n, err := filex.CopyFileAtomic(payload, c.Source, 0o600)
	if err != nil {
		return err
	}
	meta.Size = n

	meta.MimeType = c.MimeType
	if meta.MimeType == "" {
		m, err := mimetype.DetectFile(payload)
		if err != nil {
			return fmt.Errorf("detect type: %w", err)
		}
		meta.MimeType = m.String()
		if ext == "" {
			ext = m.Extension()
			renamed := filepath.Join(dir, payloadBase+ext)
			if err := os.Rename(payload, renamed); err != nil {
				return err
			}
			payload = renamed
		}
	}
	meta.Payload = payloadBase + ext

	if strings.HasPrefix(meta.MimeType, "image/") {
		if err := writeThumbnail(payload, filepath.Join(dir, thumbFile)); err != nil {
			o.logger.Warn(ctx, "no thumbnail", "local_id", meta.LocalID, "error", err)
		} else {
			meta.HasThumb = true
		}
	}
	return nil
}

func (o *Outbox) writeMeta(m *Meta) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(filepath.Join(o.entryDir(m.LocalID), metaFile), b, 0o600)
}

// Get returns the metadata of one entry. A missing entry is ErrNotFound.
func (o *Outbox) Get(localID string) (*Meta, error) {
	if localID == "" || strings.ContainsAny(localID, `/\`) || localID == "." || localID == ".." {
		return nil, common.ErrNotFound
	}
	b, err := os.ReadFile(filepath.Join(o.entryDir(localID), metaFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("entry %s: %w", localID, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("entry %s: %w: %v", localID, common.ErrCorruptLocalState, err)
	}
	return &m, nil
}

// List returns every entry, oldest first. Unreadable entries are skipped.
func (o *Outbox) List(ctx context.Context) ([]*Meta, error) {
	des, err := os.ReadDir(filepath.Join(o.dir, entriesDir))
	if err != nil {
		return nil, err
	}
	out := make([]*Meta, 0, len(des))
	for _, de := range des {
		if !de.IsDir() {
			continue
		}
		m, err := o.Get(de.Name())
		if err != nil {
			o.logger.Warn(ctx, "skipping unreadable entry", "local_id", de.Name(), "error", err)
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].LocalID < out[j].LocalID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes an entry from the queue and from disk.
func (o *Outbox) Delete(ctx context.Context, localID string) error {
	if _, err := o.Get(localID); err != nil && !errors.Is(err, common.ErrCorruptLocalState) {
		return err
	}
	if err := o.mutateQueue(func(q []string) []string { return without(q, localID) }); err != nil {
		return err
	}
	if err := os.RemoveAll(o.entryDir(localID)); err != nil {
		return err
	}
	o.logger.Info(ctx, "entry deleted", "local_id", localID)
	return nil
}

// Prune deletes entries whose server text is already in the library.
func (o *Outbox) Prune(ctx context.Context) (int, error) {
	metas, err := o.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range metas {
		if m.Status != StatusCompleted || !m.Indexed {
			continue
		}
		if err := o.Delete(ctx, m.LocalID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Recover appends pending entries missing from the queue, oldest first,
// and drops queue ids whose entry directory is gone.
func (o *Outbox) Recover(ctx context.Context) (int, error) {
	metas, err := o.List(ctx)
	if err != nil {
		return 0, err
	}

	added := 0
	err = o.mutateQueue(func(q []string) []string {
		present := make(map[string]bool, len(metas))
		for _, m := range metas {
			present[m.LocalID] = true
		}
		kept := q[:0]
		queued := make(map[string]bool, len(q))
		for _, id := range q {
			if present[id] && !queued[id] {
				kept = append(kept, id)
				queued[id] = true
			}
		}
		for _, m := range metas {
			if m.Status == StatusPending && !queued[m.LocalID] {
				kept = append(kept, m.LocalID)
				added++
			}
		}
		return kept
	})
	if added > 0 {
		o.logger.Info(ctx, "recovered unqueued captures", "count", added)
	}
	return added, err
}

func textMimeType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return "text/markdown"
	default:
		return "text/plain"
	}
}
