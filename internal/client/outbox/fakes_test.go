package outbox

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/client/api"
	"github.com/dmitrijs2005/scanvault/internal/client/library"
	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/logging"
	"github.com/stretchr/testify/require"
)

// fakeAPI records calls; failName makes every call for that entry name fail.
type fakeAPI struct {
	mu sync.Mutex

	failName    map[string]error
	putErr      error
	ticketN     int
	completes   []api.CompleteUpload
	texts       map[string]string
	puts        map[string][]byte
	statuses    map[string]*api.FileStatus
	statusErr   error
	completeErr error
	onText      func()
	calls       []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		failName: map[string]error{},
		texts:    map[string]string{},
		puts:     map[string][]byte{},
		statuses: map[string]*api.FileStatus{},
	}
}

func (f *fakeAPI) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) CreateUploadURL(ctx context.Context, token, filename, contentType string) (*api.UploadTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("upload-url " + filename)
	if err := f.failName[filename]; err != nil {
		return nil, err
	}
	f.ticketN++
	key := fmt.Sprintf("users/u1/k%d-%s", f.ticketN, filename)
	return &api.UploadTicket{UploadURL: "http://s3/put/" + key, StorageKey: key, PublicURL: "http://s3/" + key}, nil
}

func (f *fakeAPI) UploadToPresignedURL(ctx context.Context, uploadURL string, body io.Reader, size int64, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("put")
	if f.putErr != nil {
		return f.putErr
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.puts[uploadURL] = b
	return nil
}

func (f *fakeAPI) RecordUploadComplete(ctx context.Context, token string, in api.CompleteUpload) (*api.FileRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("upload-complete " + in.OriginalName)
	if token == "" {
		return nil, common.ErrUnauthenticated
	}
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	f.completes = append(f.completes, in)
	return &api.FileRef{FileID: "srv-" + in.OriginalName, Status: api.StatusPending}, nil
}

func (f *fakeAPI) UploadText(ctx context.Context, token, name, content string) (*api.FileRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("upload-text " + name)
	if f.onText != nil {
		hook := f.onText
		f.onText = nil
		f.mu.Unlock()
		hook()
		f.mu.Lock()
	}
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", common.ErrUnauthenticated)
	}
	if err := f.failName[name]; err != nil {
		return nil, err
	}
	f.texts[name] = content
	return &api.FileRef{FileID: "srv-" + name, Status: api.StatusCompleted, Text: &content}, nil
}

func (f *fakeAPI) GetStatus(ctx context.Context, token, fileID string) (*api.FileStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("status " + fileID)
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	st, ok := f.statuses[fileID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return st, nil
}

type memLibrary struct {
	docs map[string]library.Document
}

func (m *memLibrary) Save(ctx context.Context, doc library.Document) error {
	m.docs[doc.FileID] = doc
	return nil
}

func newTestOutbox(t *testing.T, a API) *Outbox {
	t.Helper()
	o, err := Open(t.TempDir(), a, logging.NopLogger{})
	require.NoError(t, err)

	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	o.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	n := 0
	o.newID = func() string {
		n++
		return fmt.Sprintf("local-%02d", n)
	}
	return o
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func ptr[T any](v T) *T { return &v }
