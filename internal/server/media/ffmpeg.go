// Package media wraps the ffprobe/ffmpeg binaries used to measure and
// split audio before transcription.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Tool probes and cuts audio files.
type Tool interface {
	Probe(ctx context.Context, path string) (time.Duration, error)
	// ExtractSegment writes [start, start+length) of in to out, transcoded
	// to mono 16 kHz MP3 at 64 kbit/s.
	ExtractSegment(ctx context.Context, in, out string, start, length time.Duration) error
}

// execCommand is a seam for tests.
var execCommand = exec.CommandContext

// FFmpeg shells out to the ffmpeg suite.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
}

func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

func (f *FFmpeg) Probe(ctx context.Context, path string) (time.Duration, error) {
	cmd := execCommand(ctx, f.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := run(cmd)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseDuration(out)
}

func (f *FFmpeg) ExtractSegment(ctx context.Context, in, out string, start, length time.Duration) error {
	cmd := execCommand(ctx, f.FFmpegPath,
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(length),
		"-i", in,
		"-vn", "-ac", "1", "-ar", "16000",
		"-c:a", "libmp3lame", "-b:a", "64k",
		out,
	)
	if _, err := run(cmd); err != nil {
		return fmt.Errorf("ffmpeg segment %s+%s: %w", start, length, err)
	}
	return nil
}

func run(cmd *exec.Cmd) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return stdout.String(), nil
}

// parseDuration reads ffprobe's seconds output ("1234.567000").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if secs < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
