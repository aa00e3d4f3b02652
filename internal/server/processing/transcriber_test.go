package processing

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/common"
	"github.com/dmitrijs2005/scanvault/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTranscriber(t *testing.T, tool *fakeTool, ex *fakeExtractor) (*Transcriber, string) {
	t.Helper()
	tr := NewTranscriber(tool, ex, logging.NopLogger{})
	tr.Threshold = 20 * time.Minute
	tr.Stagger = 0
	tr.TempDir = t.TempDir()
	tool.threshold = tr.Threshold
	return tr, tr.TempDir
}

func assertScratchRemoved(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files left behind")
}

func TestTranscribe_ChunkOrderIndependentOfCompletion(t *testing.T) {
	tool := &fakeTool{duration: 45 * time.Minute}
	ex := &fakeExtractor{
		texts: map[int]string{0: "A ", 1: "B ", 2: "C "},
		// chunk 2 returns first, chunk 0 last
		delays: map[int]time.Duration{0: 80 * time.Millisecond, 1: 40 * time.Millisecond},
	}
	tr, dir := newTestTranscriber(t, tool, ex)

	var emitted []int
	res, err := tr.Transcribe(context.Background(), strings.NewReader("audio"), ".m4a", func(i int, text string) error {
		emitted = append(emitted, i)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "A B C ", res.Text)
	assert.Equal(t, []int{0, 1, 2}, emitted)
	assertScratchRemoved(t, dir)
}

func TestTranscribe_SegmentBoundaries(t *testing.T) {
	tool := &fakeTool{duration: 45 * time.Minute}
	ex := &fakeExtractor{texts: map[int]string{0: "a", 1: "b", 2: "c"}}
	tr, _ := newTestTranscriber(t, tool, ex)

	res, err := tr.Transcribe(context.Background(), strings.NewReader("audio"), ".mp3", nil)
	require.NoError(t, err)
	assert.Equal(t, "a b c", res.Text)

	assert.Equal(t, []segment{
		{0, 20 * time.Minute},
		{20 * time.Minute, 20 * time.Minute},
		{40 * time.Minute, 5 * time.Minute},
	}, tool.segments)
}

func TestTranscribe_TokensSummedOrEstimated(t *testing.T) {
	tool := &fakeTool{duration: 41 * time.Minute}
	ex := &fakeExtractor{texts: map[int]string{0: "abcd", 1: "abcdefgh", 2: "x"}}
	tr, _ := newTestTranscriber(t, tool, ex)

	res, err := tr.Transcribe(context.Background(), strings.NewReader("audio"), ".mp3", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1+2+1), res.Tokens)

	ex.tokens = 10
	res, err = tr.Transcribe(context.Background(), strings.NewReader("audio"), ".mp3", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(30), res.Tokens)
}

func TestTranscribe_FailedChunksAggregated(t *testing.T) {
	tool := &fakeTool{duration: 61 * time.Minute}
	ex := &fakeExtractor{
		texts: map[int]string{0: "a", 1: "b", 2: "c", 3: "d"},
		fail:  map[int]bool{1: true, 3: true},
	}
	tr, dir := newTestTranscriber(t, tool, ex)

	var emitted []int
	_, err := tr.Transcribe(context.Background(), strings.NewReader("audio"), ".mp3", func(i int, _ string) error {
		emitted = append(emitted, i)
		return nil
	})
	require.Error(t, err)

	var ce *ChunkError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []int{1, 3}, ce.Failed)
	assert.Contains(t, err.Error(), "chunk 1")
	assert.Contains(t, err.Error(), "chunk 3")

	var ee *common.ExtractionError
	assert.True(t, errors.As(err, &ee), "chunk failure is terminal")

	// emission stops at the first failed chunk
	assert.Equal(t, []int{0}, emitted)
	assertScratchRemoved(t, dir)
}

func TestTranscribe_ShortAudioSingleCall(t *testing.T) {
	tool := &fakeTool{duration: 5 * time.Minute}
	ex := &fakeExtractor{texts: map[int]string{0: "short memo"}, tokens: 7}
	tr, dir := newTestTranscriber(t, tool, ex)

	res, err := tr.Transcribe(context.Background(), strings.NewReader("raw"), ".m4a", nil)
	require.NoError(t, err)
	assert.Equal(t, "short memo", res.Text)
	assert.Equal(t, int64(7), res.Tokens)
	assert.Equal(t, []string{"source.m4a"}, ex.filenames)
	assert.Empty(t, tool.segments)
	assertScratchRemoved(t, dir)
}

func TestTranscribe_ExactlyThresholdIsSingleUnit(t *testing.T) {
	tool := &fakeTool{duration: 20 * time.Minute}
	ex := &fakeExtractor{texts: map[int]string{0: "x"}}
	tr, _ := newTestTranscriber(t, tool, ex)

	_, err := tr.Transcribe(context.Background(), strings.NewReader("raw"), "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"source.mp3"}, ex.filenames)
}

func TestTranscribe_ProbeAndTranscodeFailures(t *testing.T) {
	t.Run("probe", func(t *testing.T) {
		tool := &fakeTool{probeErr: errors.New("invalid data")}
		tr, dir := newTestTranscriber(t, tool, &fakeExtractor{})
		_, err := tr.Transcribe(context.Background(), strings.NewReader("x"), ".mp3", nil)
		var ee *common.ExtractionError
		require.True(t, errors.As(err, &ee))
		assertScratchRemoved(t, dir)
	})

	t.Run("transcode", func(t *testing.T) {
		tool := &fakeTool{duration: time.Hour, segErr: errors.New("codec")}
		tr, dir := newTestTranscriber(t, tool, &fakeExtractor{})
		_, err := tr.Transcribe(context.Background(), strings.NewReader("x"), ".mp3", nil)
		var ee *common.ExtractionError
		require.True(t, errors.As(err, &ee))
		assert.Contains(t, err.Error(), "codec")
		assertScratchRemoved(t, dir)
	})
}

func TestTranscribe_StaggerHonoursContext(t *testing.T) {
	tool := &fakeTool{duration: 45 * time.Minute}
	ex := &fakeExtractor{texts: map[int]string{0: "a", 1: "b", 2: "c"}}
	tr, dir := newTestTranscriber(t, tool, ex)
	tr.Stagger = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err := tr.Transcribe(ctx, strings.NewReader("x"), ".mp3", nil)
	require.Error(t, err)
	assert.Less(t, time.Since(started), 5*time.Second)

	var ce *ChunkError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []int{1, 2}, ce.Failed)
	assertScratchRemoved(t, dir)
}

func TestTranscribe_EmitErrorStopsStream(t *testing.T) {
	tool := &fakeTool{duration: 45 * time.Minute}
	ex := &fakeExtractor{texts: map[int]string{0: "a", 1: "b", 2: "c"}}
	tr, _ := newTestTranscriber(t, tool, ex)

	calls := 0
	_, err := tr.Transcribe(context.Background(), strings.NewReader("x"), ".mp3", func(int, string) error {
		calls++
		return errors.New("client gone")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestJoinTranscripts(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{[]string{"A ", "B ", "C "}, "A B C "},
		{[]string{"A", "B", "C"}, "A B C"},
		{[]string{"A", " B"}, "A B"},
		{[]string{"", "A", "", "B"}, "A B"},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinTranscripts(tt.in))
	}
}
