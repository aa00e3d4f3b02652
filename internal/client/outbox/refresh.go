package outbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/scanvault/internal/client/api"
	"github.com/dmitrijs2005/scanvault/internal/client/library"
	"github.com/dmitrijs2005/scanvault/internal/common"
)

// DocumentSaver is where terminal server text ends up; *library.Library.
type DocumentSaver interface {
	Save(ctx context.Context, doc library.Document) error
}

type RefreshSummary struct {
	Checked  int
	Indexed  int
	Waiting  int
	Failures int
}

// Refresh asks the server once about every uploaded entry whose text is not
// in the library yet, and stores terminal results. It does not wait for
// processing; entries still in flight are picked up on a later call.
func (o *Outbox) Refresh(ctx context.Context, token string, lib DocumentSaver) (RefreshSummary, error) {
	var sum RefreshSummary

	metas, err := o.List(ctx)
	if err != nil {
		return sum, err
	}

	for _, m := range metas {
		if m.ServerFileID == "" || m.Indexed {
			continue
		}
		sum.Checked++

		st, err := o.api.GetStatus(ctx, token, m.ServerFileID)
		switch {
		case err == nil:
		case errors.Is(err, common.ErrUnauthenticated), ctx.Err() != nil:
			return sum, err
		default:
			o.logger.Warn(ctx, "status lookup failed", "local_id", m.LocalID, "error", err)
			sum.Failures++
			continue
		}

		m.ServerStatus = st.Status
		if !st.Terminal() {
			sum.Waiting++
			if err := o.writeMeta(m); err != nil {
				return sum, err
			}
			continue
		}

		doc := library.Document{
			FileID:   m.ServerFileID,
			LocalID:  m.LocalID,
			Name:     m.Name,
			MimeType: m.MimeType,
			Status:   st.Status,
			SyncedAt: o.now().UTC(),
		}
		if st.Text != nil {
			doc.Text = *st.Text
		}
		if st.Error != nil {
			doc.Error = *st.Error
			m.ServerError = *st.Error
		}
		if err := lib.Save(ctx, doc); err != nil {
			return sum, err
		}

		m.Indexed = true
		m.UpdatedAt = o.now().UTC()
		if err := o.writeMeta(m); err != nil {
			return sum, err
		}
		sum.Indexed++
	}
	return sum, nil
}

// ThumbnailPath returns the preview image of an entry, if it has one.
func (o *Outbox) ThumbnailPath(m *Meta) (string, bool) {
	if !m.HasThumb {
		return "", false
	}
	p := filepath.Join(o.entryDir(m.LocalID), thumbFile)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

var _ API = (*api.Client)(nil)
