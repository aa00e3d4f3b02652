package processing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/logging"
	"github.com/dmitrijs2005/scanvault/internal/server/inference"
	"github.com/dmitrijs2005/scanvault/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, objects *fakeObjects, ex *fakeExtractor, tool *fakeTool) *Engine {
	t.Helper()
	tr, _ := newTestTranscriber(t, tool, ex)
	return NewEngine(objects, ex, tr, logging.NopLogger{})
}

func record(mediaType, key string) *models.FileRecord {
	return &models.FileRecord{
		ID:         "f1",
		OwnerID:    "u1",
		StorageKey: key,
		PublicURL:  "https://cdn/" + key,
		MediaType:  mediaType,
		Status:     models.StatusProcessing,
	}
}

func TestProcess_Image(t *testing.T) {
	ex := &fakeExtractor{image: inference.Result{Text: "TOTAL 12.00", Tokens: 812}}
	e := newTestEngine(t, &fakeObjects{}, ex, &fakeTool{})

	res, err := e.Process(context.Background(), record("image/jpeg", "users/u1/receipt.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "TOTAL 12.00", res.Text)
	assert.Equal(t, int64(812), res.Tokens)
	assert.Equal(t, []string{"https://cdn/users/u1/receipt.jpg"}, ex.imageURLs)
}

func TestProcess_ImageEstimatesTokens(t *testing.T) {
	ex := &fakeExtractor{image: inference.Result{Text: "12345678"}}
	e := newTestEngine(t, &fakeObjects{}, ex, &fakeTool{})

	res, err := e.Process(context.Background(), record("IMAGE/PNG; foo=bar", "k.png"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Tokens)
}

func TestProcess_EmptyTextIsNotAnError(t *testing.T) {
	ex := &fakeExtractor{image: inference.Result{Text: "  \n"}}
	e := newTestEngine(t, &fakeObjects{}, ex, &fakeTool{})

	res, err := e.Process(context.Background(), record("image/jpeg", "k.jpg"))
	require.NoError(t, err)
	assert.Equal(t, EmptyTextPlaceholder, res.Text)
}

func TestProcess_ImageFailure(t *testing.T) {
	ex := &fakeExtractor{imageErr: common.Transient(errors.New("502"))}
	e := newTestEngine(t, &fakeObjects{}, ex, &fakeTool{})

	_, err := e.Process(context.Background(), record("image/jpeg", "k.jpg"))
	assert.ErrorIs(t, err, common.ErrTransient)
}

func TestProcess_Audio(t *testing.T) {
	objects := &fakeObjects{data: map[string]string{"users/u1/memo.m4a": "bytes"}}
	ex := &fakeExtractor{texts: map[int]string{0: "hello"}}
	e := newTestEngine(t, objects, ex, &fakeTool{duration: time.Minute})

	res, err := e.Process(context.Background(), record("audio/mp4", "users/u1/memo.m4a"))
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)
	assert.Equal(t, []string{"source.m4a"}, ex.filenames)
}

func TestProcess_AudioMissingObject(t *testing.T) {
	e := newTestEngine(t, &fakeObjects{}, &fakeExtractor{}, &fakeTool{})

	_, err := e.Process(context.Background(), record("audio/mpeg", "gone.mp3"))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestProcess_PDFUnsupported(t *testing.T) {
	e := newTestEngine(t, &fakeObjects{}, &fakeExtractor{}, &fakeTool{})

	_, err := e.Process(context.Background(), record("application/pdf", "doc.pdf"))
	var ee *common.ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Contains(t, ee.Error(), "PDF")
}

func TestProcess_UnsupportedMediaType(t *testing.T) {
	e := newTestEngine(t, &fakeObjects{}, &fakeExtractor{}, &fakeTool{})

	_, err := e.Process(context.Background(), record("application/zip", "a.zip"))
	var ee *common.ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "unsupported media type: application/zip", ee.Error())
}

func TestProcess_TextPassThrough(t *testing.T) {
	objects := &fakeObjects{data: map[string]string{"n.md": "# Hi"}}
	e := newTestEngine(t, objects, &fakeExtractor{}, &fakeTool{})

	res, err := e.Process(context.Background(), record("text/markdown", "n.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Hi", res.Text)
	assert.Zero(t, res.Tokens)
}

func TestAudioExt(t *testing.T) {
	assert.Equal(t, ".m4a", audioExt("users/u1/x.M4A", "audio/mp4"))
	assert.Equal(t, ".mp3", audioExt("users/u1/x", "audio/unknown-thing"))
}

func TestNormalizeMediaType(t *testing.T) {
	assert.Equal(t, "text/plain", NormalizeMediaType("Text/Plain; charset=utf-8"))
	assert.Equal(t, "weird", NormalizeMediaType(" WEIRD "))
}
