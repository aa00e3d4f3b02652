package services

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/logging"
	"github.com/dmitrijs2005/scanvault/internal/server/inference"
	"github.com/dmitrijs2005/scanvault/internal/server/objectstore"
	"github.com/dmitrijs2005/scanvault/internal/server/processing"
)

// TranscriptionService backs the synchronous /transcribe endpoint.
type TranscriptionService struct {
	objects     objectstore.Store
	transcriber *processing.Transcriber
	logger      logging.Logger
}

func NewTranscriptionService(objects objectstore.Store, transcriber *processing.Transcriber, logger logging.Logger) *TranscriptionService {
	return &TranscriptionService{
		objects:     objects,
		transcriber: transcriber,
		logger:      logger.With("module", "transcribe"),
	}
}

// Transcribe resolves blobURL to one of the caller's objects and streams
// its transcript through emit in chunk order. Only objects in our own
// store are fetched.
func (s *TranscriptionService) Transcribe(ctx context.Context, userID, blobURL, extension string, emit processing.EmitFunc) (inference.Result, error) {
	if userID == "" {
		return inference.Result{}, common.ErrUnauthenticated
	}

	key, err := s.keyFromURL(blobURL)
	if err != nil {
		return inference.Result{}, err
	}
	if !objectstore.OwnsKey(userID, key) {
		return inference.Result{}, common.ErrForbidden
	}

	ext := extension
	if ext == "" {
		ext = path.Ext(key)
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	body, err := s.objects.Get(ctx, key)
	if err != nil {
		return inference.Result{}, err
	}
	defer body.Close()

	s.logger.Info(ctx, "transcription started", "user_id", userID, "key", key)
	return s.transcriber.Transcribe(ctx, body, strings.ToLower(ext), emit)
}

func (s *TranscriptionService) keyFromURL(blobURL string) (string, error) {
	u, err := url.Parse(blobURL)
	if err != nil || u.Scheme == "" {
		return "", fmt.Errorf("%w: blobUrl is not a valid URL", common.ErrValidation)
	}
	u.RawQuery = ""
	u.Fragment = ""

	base := s.objects.PublicURL("")
	key, ok := strings.CutPrefix(u.String(), base)
	if !ok || key == "" {
		return "", fmt.Errorf("%w: blobUrl does not point into this store", common.ErrValidation)
	}
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	return key, nil
}
