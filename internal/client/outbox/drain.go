package outbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/client/api"
	"github.com/dmitrijs2005/scanvault/internal/common"
)

// DefaultDrainDelay separates consecutive DrainOne calls in Run.
const DefaultDrainDelay = 5 * time.Second

type stepOutcome int

const (
	stepEmpty stepOutcome = iota
	stepCompleted
	stepFailed
	stepDropped
)

type drainStep struct {
	localID string
	outcome stepOutcome
	queue   []string
}

// DrainOne uploads the head of the queue. On success the entry is marked
// completed and leaves the queue; on failure it is marked error and moved
// to the tail; an entry whose local payload is gone is marked error and
// dropped for good, as is one whose metadata is missing or corrupt. Only
// failures that concern the whole queue (its file, metadata that cannot be
// read right now, or an Unauthenticated answer) are returned as errors.
func (o *Outbox) DrainOne(ctx context.Context, token string) (bool, error) {
	step, err := o.drainOne(ctx, token)
	return len(step.queue) > 0, err
}

func (o *Outbox) drainOne(ctx context.Context, token string) (drainStep, error) {
	q, err := o.Queue()
	if err != nil || len(q) == 0 {
		return drainStep{}, err
	}
	id := q[0]
	log := o.logger.With("local_id", id)

	meta, err := o.Get(id)
	switch {
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrCorruptLocalState):
		log.Warn(ctx, "dropping queue entry without metadata", "error", err)
		return o.finish(id, stepDropped, without)
	case err != nil:
		// unreadable for now; leave the queue alone
		return drainStep{localID: id, queue: q}, fmt.Errorf("read entry %s: %w", id, err)
	}

	uploadErr := o.upload(ctx, token, meta)
	meta.UpdatedAt = o.now().UTC()

	switch {
	case uploadErr == nil:
		meta.Status = StatusCompleted
		meta.Error = ""
		if err := o.writeMeta(meta); err != nil {
			return drainStep{}, err
		}
		log.Info(ctx, "entry uploaded", "file_id", meta.ServerFileID)
		return o.finish(id, stepCompleted, without)

	case errors.Is(uploadErr, common.ErrCorruptLocalState):
		meta.Status = StatusError
		meta.Error = uploadErr.Error()
		if err := o.writeMeta(meta); err != nil {
			return drainStep{}, err
		}
		log.Error(ctx, "local payload missing, dropping entry", "error", uploadErr)
		return o.finish(id, stepDropped, without)

	case ctx.Err() != nil:
		// interrupted, not failed: keep the head where it is
		return drainStep{localID: id, queue: q}, ctx.Err()

	default:
		meta.Status = StatusError
		meta.Error = uploadErr.Error()
		meta.Attempts++
		if err := o.writeMeta(meta); err != nil {
			return drainStep{}, err
		}
		log.Warn(ctx, "upload failed, moving to tail", "attempts", meta.Attempts, "error", uploadErr)
		step, err := o.finish(id, stepFailed, toTail)
		if err == nil && errors.Is(uploadErr, common.ErrUnauthenticated) {
			err = uploadErr
		}
		return step, err
	}
}

// finish re-reads the queue so captures enqueued during the upload are kept.
func (o *Outbox) finish(id string, outcome stepOutcome, move func([]string, string) []string) (drainStep, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	q, err := o.readQueue()
	if err != nil {
		return drainStep{}, err
	}
	q = move(q, id)
	if err := o.writeQueue(q); err != nil {
		return drainStep{}, err
	}
	return drainStep{localID: id, outcome: outcome, queue: q}, nil
}

func (o *Outbox) upload(ctx context.Context, token string, m *Meta) error {
	if m.Kind == KindText {
		return o.uploadText(ctx, token, m)
	}
	return o.uploadBinary(ctx, token, m)
}

func (o *Outbox) uploadText(ctx context.Context, token string, m *Meta) error {
	b, err := os.ReadFile(filepath.Join(o.entryDir(m.LocalID), contentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s is missing", common.ErrCorruptLocalState, contentFile)
	}
	if err != nil {
		return err
	}

	ref, err := o.api.UploadText(ctx, token, m.Name, string(b))
	if err != nil {
		return err
	}
	m.ServerFileID = ref.FileID
	m.ServerStatus = ref.Status
	return nil
}

func (o *Outbox) uploadBinary(ctx context.Context, token string, m *Meta) error {
	path := filepath.Join(o.entryDir(m.LocalID), m.Payload)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s is missing", common.ErrCorruptLocalState, m.Payload)
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if m.StorageKey == "" {
		ticket, err := o.api.CreateUploadURL(ctx, token, m.Name, m.MimeType)
		if err != nil {
			return err
		}
		if err := o.api.UploadToPresignedURL(ctx, ticket.UploadURL, f, m.Size, m.MimeType); err != nil {
			return err
		}
		// a retry from here only repeats upload-complete
		m.StorageKey = ticket.StorageKey
		m.PublicURL = ticket.PublicURL
		if err := o.writeMeta(m); err != nil {
			return err
		}
	}

	ref, err := o.api.RecordUploadComplete(ctx, token, api.CompleteUpload{
		StorageKey:   m.StorageKey,
		PublicURL:    m.PublicURL,
		OriginalName: m.Name,
		ContentType:  m.MimeType,
	})
	if err != nil {
		return err
	}
	m.ServerFileID = ref.FileID
	m.ServerStatus = ref.Status
	return nil
}

// DrainSummary counts what one Run pass did.
type DrainSummary struct {
	Completed int
	Failed    int
	Dropped   int
	Remaining int
}

// Run drains the queue, waiting delay between entries. The pass ends when
// the queue is empty or every entry left in it has already failed during
// this pass.
func (o *Outbox) Run(ctx context.Context, token string, delay time.Duration) (DrainSummary, error) {
	var sum DrainSummary
	failed := map[string]bool{}

	for {
		step, err := o.drainOne(ctx, token)
		switch step.outcome {
		case stepCompleted:
			sum.Completed++
		case stepFailed:
			sum.Failed++
			failed[step.localID] = true
		case stepDropped:
			sum.Dropped++
		}
		sum.Remaining = len(step.queue)
		if err != nil {
			return sum, err
		}
		if len(step.queue) == 0 || allIn(step.queue, failed) {
			return sum, nil
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return sum, ctx.Err()
		case <-t.C:
		}
	}
}

func allIn(q []string, set map[string]bool) bool {
	for _, id := range q {
		if !set[id] {
			return false
		}
	}
	return true
}
