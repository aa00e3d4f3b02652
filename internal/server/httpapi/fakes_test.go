package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/logging"
	"github.com/dmitrijs2005/scanvault/internal/server/inference"
	"github.com/dmitrijs2005/scanvault/internal/server/models"
	"github.com/dmitrijs2005/scanvault/internal/server/processing"
	"github.com/dmitrijs2005/scanvault/internal/server/services"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// tokenVerifier accepts "tok-<user>".
type tokenVerifier struct{}

func (tokenVerifier) UserID(token string) (string, error) {
	user, ok := strings.CutPrefix(token, "tok-")
	if !ok {
		return "", common.ErrInvalidToken
	}
	return user, nil
}

// fakeUploads embeds the interface; tests override only what they hit.
type fakeUploads struct {
	Uploads

	lastUser     string
	lastComplete services.CompleteUpload

	ticket *services.UploadTicket
	rec    *models.FileRecord
	err    error
}

func (f *fakeUploads) CreateUploadURL(ctx context.Context, userID, filename, contentType string) (*services.UploadTicket, error) {
	f.lastUser = userID
	return f.ticket, f.err
}

func (f *fakeUploads) RecordUploadComplete(ctx context.Context, userID string, in services.CompleteUpload) (*models.FileRecord, error) {
	f.lastUser = userID
	f.lastComplete = in
	return f.rec, f.err
}

func (f *fakeUploads) UploadText(ctx context.Context, userID, name, content string) (*models.FileRecord, error) {
	f.lastUser = userID
	return f.rec, f.err
}

func (f *fakeUploads) GetStatus(ctx context.Context, userID, fileID string) (*models.FileRecord, error) {
	f.lastUser = userID
	return f.rec, f.err
}

func (f *fakeUploads) Requeue(ctx context.Context, userID, fileID string) (*models.FileRecord, error) {
	f.lastUser = userID
	return f.rec, f.err
}

type fakeRuns struct {
	summary services.RunSummary
	err     error
	calls   int
	// during runs inside Run with the context the batch would see.
	during func(ctx context.Context)
}

func (f *fakeRuns) Run(ctx context.Context) (services.RunSummary, error) {
	f.calls++
	if f.during != nil {
		f.during(ctx)
	}
	return f.summary, f.err
}

// fakeTranscriptions emits chunks then returns err.
type fakeTranscriptions struct {
	chunks []string
	err    error
}

func (f *fakeTranscriptions) Transcribe(ctx context.Context, userID, blobURL, extension string, emit processing.EmitFunc) (inference.Result, error) {
	for i, c := range f.chunks {
		if err := emit(i, c); err != nil {
			return inference.Result{}, err
		}
	}
	if f.err != nil {
		return inference.Result{}, f.err
	}
	return inference.Result{Text: processing.JoinTranscripts(f.chunks)}, nil
}

type testEnv struct {
	uploads        *fakeUploads
	runs           *fakeRuns
	transcriptions *fakeTranscriptions
	server         *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		uploads:        &fakeUploads{},
		runs:           &fakeRuns{},
		transcriptions: &fakeTranscriptions{},
	}
	env.server = NewServer(":0", logging.NopLogger{}, tokenVerifier{}, "workerSecret", time.Minute,
		env.uploads, env.runs, env.transcriptions)
	return env
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

var errBoom = errors.New("boom")

func ptr[T any](v T) *T { return &v }
