package processing

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/logging"
	"github.com/dmitrijs2005/scanvault/internal/server/inference"
	"github.com/dmitrijs2005/scanvault/internal/server/media"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunkThreshold = 20 * time.Minute
	DefaultChunkStagger   = time.Second
)

// EmitFunc receives chunk transcripts in chunk order as soon as a chunk
// and all chunks before it are done.
type EmitFunc func(index int, text string) error

// ChunkError reports which chunks of a long recording failed.
type ChunkError struct {
	Failed []int
	Err    error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("transcription failed for chunks %v: %v", e.Failed, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Transcriber implements chunked audio transcription.
type Transcriber struct {
	tool      media.Tool
	extractor inference.Extractor
	logger    logging.Logger

	Threshold time.Duration
	Stagger   time.Duration
	// TempDir is the parent for per-job scratch directories; empty means os.TempDir.
	TempDir string
}

func NewTranscriber(tool media.Tool, extractor inference.Extractor, logger logging.Logger) *Transcriber {
	return &Transcriber{
		tool:      tool,
		extractor: extractor,
		logger:    logger.With("module", "transcriber"),
		Threshold: DefaultChunkThreshold,
		Stagger:   DefaultChunkStagger,
	}
}

// Transcribe spools src to a scratch directory, splits it when it exceeds
// the threshold and transcribes the pieces. The scratch directory is
// removed before returning, whatever the outcome.
func (t *Transcriber) Transcribe(ctx context.Context, src io.Reader, ext string, emit EmitFunc) (inference.Result, error) {
	dir, err := os.MkdirTemp(t.TempDir, "transcribe-*")
	if err != nil {
		return inference.Result{}, fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if ext == "" {
		ext = ".mp3"
	}
	in := filepath.Join(dir, "source"+ext)
	if err := spool(src, in); err != nil {
		return inference.Result{}, common.Transient(fmt.Errorf("download audio: %w", err))
	}

	total, err := t.tool.Probe(ctx, in)
	if err != nil {
		return inference.Result{}, common.NewExtractionError("could not read audio duration", err)
	}

	if total <= t.Threshold {
		return t.single(ctx, in, emit)
	}
	return t.chunked(ctx, dir, in, total, emit)
}

func (t *Transcriber) single(ctx context.Context, path string, emit EmitFunc) (inference.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return inference.Result{}, err
	}
	defer f.Close()

	res, err := t.extractor.Transcribe(ctx, filepath.Base(path), f)
	if err != nil {
		return inference.Result{}, err
	}
	if res.Tokens == 0 {
		res.Tokens = inference.EstimateTokens(res.Text)
	}
	if emit != nil {
		if err := emit(0, res.Text); err != nil {
			return inference.Result{}, err
		}
	}
	return res, nil
}

func (t *Transcriber) chunked(ctx context.Context, dir, in string, total time.Duration, emit EmitFunc) (inference.Result, error) {
	n := int((total + t.Threshold - 1) / t.Threshold)

	paths := make([]string, n)
	for i := 0; i < n; i++ {
		start := time.Duration(i) * t.Threshold
		length := min(t.Threshold, total-start)
		paths[i] = filepath.Join(dir, fmt.Sprintf("chunk-%03d.mp3", i))
		if err := t.tool.ExtractSegment(ctx, in, paths[i], start, length); err != nil {
			return inference.Result{}, common.NewExtractionError("audio transcode failed", err)
		}
	}

	t.logger.Info(ctx, "dispatching chunks", "chunks", n, "duration", total.String())

	results := make([]inference.Result, n)
	errs := make([]error, n)
	done := make(chan int, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			defer func() { done <- i }()
			results[i], errs[i] = t.transcribeChunk(ctx, i, paths[i])
			return nil
		})
	}

	ready := make([]bool, n)
	next := 0
	var emitErr error
	for range n {
		i := <-done
		ready[i] = true
		for next < n && ready[next] && errs[next] == nil && emitErr == nil {
			if emit != nil {
				emitErr = emit(next, results[next].Text)
			}
			next++
		}
	}
	_ = g.Wait()

	var failed []int
	var combined error
	for i, err := range errs {
		if err != nil {
			failed = append(failed, i)
			combined = multierr.Append(combined, fmt.Errorf("chunk %d: %w", i, err))
		}
	}
	if len(failed) > 0 {
		sort.Ints(failed)
		return inference.Result{}, common.NewExtractionError("chunked transcription failed", &ChunkError{Failed: failed, Err: combined})
	}
	if emitErr != nil {
		return inference.Result{}, emitErr
	}

	var out inference.Result
	parts := make([]string, n)
	for i, r := range results {
		parts[i] = r.Text
		if r.Tokens > 0 {
			out.Tokens += r.Tokens
		} else {
			out.Tokens += inference.EstimateTokens(r.Text)
		}
	}
	out.Text = JoinTranscripts(parts)
	return out, nil
}

// transcribeChunk waits index*Stagger before calling the API so chunks do
// not hit the rate limit as one burst.
func (t *Transcriber) transcribeChunk(ctx context.Context, index int, path string) (inference.Result, error) {
	if delay := time.Duration(index) * t.Stagger; delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return inference.Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return inference.Result{}, err
	}
	defer f.Close()

	started := time.Now()
	res, err := t.extractor.Transcribe(ctx, filepath.Base(path), f)
	if err != nil {
		t.logger.Warn(ctx, "chunk failed", "chunk", index, "error", err)
		return inference.Result{}, err
	}
	t.logger.Debug(ctx, "chunk done", "chunk", index, "took", time.Since(started).String())
	return res, nil
}

// JoinTranscripts concatenates parts in order, inserting a single space
// only where neither side already has whitespace at the seam.
func JoinTranscripts(parts []string) string {
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if NeedsSeam(b.String(), p) {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return b.String()
}

// NeedsSeam reports whether a space belongs between prev and next.
func NeedsSeam(prev, next string) bool {
	if prev == "" || next == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(prev)
	first, _ := utf8.DecodeRuneInString(next)
	return !unicode.IsSpace(last) && !unicode.IsSpace(first)
}

func spool(src io.Reader, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
