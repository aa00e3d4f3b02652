// Package processing is the Processing Engine: it routes a file record to
// an extraction strategy by media type and returns text plus a token cost.
package processing

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/logging"
	"github.com/dmitrijs2005/scanvault/internal/server/inference"
	"github.com/dmitrijs2005/scanvault/internal/server/models"
)

// EmptyTextPlaceholder is stored when extraction succeeds with no text.
const EmptyTextPlaceholder = "No text could be extracted from this file."

// maxTextObject caps pass-through reads of text objects.
const maxTextObject = 10 << 20

// ObjectReader is the slice of the object store the engine reads from.
type ObjectReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Processor is what the worker drives.
type Processor interface {
	Process(ctx context.Context, rec *models.FileRecord) (inference.Result, error)
}

type Engine struct {
	objects     ObjectReader
	extractor   inference.Extractor
	transcriber *Transcriber
	logger      logging.Logger
}

func NewEngine(objects ObjectReader, extractor inference.Extractor, transcriber *Transcriber, logger logging.Logger) *Engine {
	return &Engine{
		objects:     objects,
		extractor:   extractor,
		transcriber: transcriber,
		logger:      logger.With("module", "engine"),
	}
}

// Process extracts text for rec. Errors matching common.ErrTransient are
// worth retrying on a later run; anything else is terminal for the record.
func (e *Engine) Process(ctx context.Context, rec *models.FileRecord) (inference.Result, error) {
	mediaType := NormalizeMediaType(rec.MediaType)

	var (
		res inference.Result
		err error
	)
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		res, err = e.extractor.DescribeImage(ctx, rec.PublicURL)
		if err == nil && res.Tokens == 0 {
			res.Tokens = inference.EstimateTokens(res.Text)
		}
	case strings.HasPrefix(mediaType, "audio/"):
		res, err = e.audio(ctx, rec, mediaType)
	case mediaType == "application/pdf":
		err = common.NewExtractionError("PDF text extraction is not supported yet", nil)
	case strings.HasPrefix(mediaType, "text/"):
		res, err = e.text(ctx, rec)
	default:
		err = common.NewExtractionError("unsupported media type: "+rec.MediaType, nil)
	}
	if err != nil {
		return inference.Result{}, err
	}

	if strings.TrimSpace(res.Text) == "" {
		e.logger.Info(ctx, "extraction returned no text", "file_id", rec.ID, "media_type", mediaType)
		res.Text = EmptyTextPlaceholder
	}
	return res, nil
}

func (e *Engine) audio(ctx context.Context, rec *models.FileRecord, mediaType string) (inference.Result, error) {
	body, err := e.objects.Get(ctx, rec.StorageKey)
	if err != nil {
		return inference.Result{}, err
	}
	defer body.Close()

	return e.transcriber.Transcribe(ctx, body, audioExt(rec.StorageKey, mediaType), nil)
}

// text is a pass-through for records that reach the worker anyway.
func (e *Engine) text(ctx context.Context, rec *models.FileRecord) (inference.Result, error) {
	body, err := e.objects.Get(ctx, rec.StorageKey)
	if err != nil {
		return inference.Result{}, err
	}
	defer body.Close()

	b, err := io.ReadAll(io.LimitReader(body, maxTextObject))
	if err != nil {
		return inference.Result{}, common.Transient(fmt.Errorf("read text object: %w", err))
	}
	return inference.Result{Text: string(b)}, nil
}

// NormalizeMediaType lowercases and drops parameters ("; charset=utf-8").
func NormalizeMediaType(s string) string {
	if mt, _, err := mime.ParseMediaType(s); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func audioExt(key, mediaType string) string {
	if ext := path.Ext(key); ext != "" {
		return strings.ToLower(ext)
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".mp3"
}
