package processing

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/server/inference"
)

type segment struct {
	start, length time.Duration
}

type fakeTool struct {
	duration  time.Duration
	probeErr  error
	threshold time.Duration
	segErr    error

	mu       sync.Mutex
	segments []segment
}

func (f *fakeTool) Probe(ctx context.Context, path string) (time.Duration, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	return f.duration, f.probeErr
}

// ExtractSegment writes the chunk index into out so the fake extractor
// knows which chunk it was handed.
func (f *fakeTool) ExtractSegment(ctx context.Context, in, out string, start, length time.Duration) error {
	if f.segErr != nil {
		return f.segErr
	}
	f.mu.Lock()
	f.segments = append(f.segments, segment{start, length})
	f.mu.Unlock()
	return os.WriteFile(out, []byte(strconv.Itoa(int(start/f.threshold))), 0o600)
}

type fakeExtractor struct {
	image    inference.Result
	imageErr error

	texts  map[int]string
	delays map[int]time.Duration
	fail   map[int]bool
	tokens int64

	mu        sync.Mutex
	filenames []string
	imageURLs []string
}

func (f *fakeExtractor) DescribeImage(ctx context.Context, url string) (inference.Result, error) {
	f.mu.Lock()
	f.imageURLs = append(f.imageURLs, url)
	f.mu.Unlock()
	return f.image, f.imageErr
}

func (f *fakeExtractor) Transcribe(ctx context.Context, filename string, audio io.Reader) (inference.Result, error) {
	f.mu.Lock()
	f.filenames = append(f.filenames, filename)
	f.mu.Unlock()

	b, err := io.ReadAll(audio)
	if err != nil {
		return inference.Result{}, err
	}
	idx, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		// not a chunk: single-unit transcription of the raw source
		idx = 0
	}

	if d := f.delays[idx]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return inference.Result{}, ctx.Err()
		}
	}
	if f.fail[idx] {
		return inference.Result{}, common.Transient(errors.New("upstream 503"))
	}
	return inference.Result{Text: f.texts[idx], Tokens: f.tokens}, nil
}

type fakeObjects struct {
	data map[string]string
	err  error
}

func (f *fakeObjects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.data[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(v)), nil
}
