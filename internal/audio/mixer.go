package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"livecast/internal/logging"
)

// Mixer renders, joins and measures mp3 files.
type Mixer interface {
	// Silence writes d of silence to path.
	Silence(ctx context.Context, d time.Duration, path string) error
	// Concat joins inputs in order into out, truncated to maxSeconds when positive.
	Concat(ctx context.Context, inputs []string, out string, maxSeconds float64) error
	// Duration returns the length of path in seconds.
	Duration(ctx context.Context, path string) (float64, error)
}

// runFunc runs bin with args and returns its stdout.
type runFunc func(ctx context.Context, bin string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return nil, fmt.Errorf("%s failed: %w: %s", bin, err, msg)
	}
	return stdout.Bytes(), nil
}

// FFmpegMixer implements Mixer with the ffmpeg and ffprobe binaries.
type FFmpegMixer struct {
	FFmpeg  string
	FFprobe string
	run     runFunc
}

// NewFFmpegMixer creates a mixer; empty names default to ffmpeg and ffprobe on PATH.
func NewFFmpegMixer(ffmpeg, ffprobe string) *FFmpegMixer {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &FFmpegMixer{FFmpeg: ffmpeg, FFprobe: ffprobe, run: runCommand}
}

// Silence writes d of mono silence as mp3.
func (m *FFmpegMixer) Silence(ctx context.Context, d time.Duration, path string) error {
	args := []string{
		"-y", "-loglevel", "error",
		"-f", "lavfi", "-i", "anullsrc=r=24000:cl=mono",
		"-t", formatSeconds(d.Seconds()),
		"-c:a", "libmp3lame", "-q:a", "9",
		path,
	}
	if _, err := m.run(ctx, m.FFmpeg, args...); err != nil {
		return fmt.Errorf("rendering silence: %w", err)
	}
	logging.AudioDebug("Rendered %v of silence to %s", d, path)
	return nil
}

// Concat joins inputs with the concat filter and re-encodes to mp3.
func (m *FFmpegMixer) Concat(ctx context.Context, inputs []string, out string, maxSeconds float64) error {
	if len(inputs) == 0 {
		return fmt.Errorf("concat: no inputs")
	}
	args := []string{"-y", "-loglevel", "error"}
	var filter strings.Builder
	for i, in := range inputs {
		args = append(args, "-i", in)
		fmt.Fprintf(&filter, "[%d:a]", i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=0:a=1[out]", len(inputs))
	args = append(args, "-filter_complex", filter.String(), "-map", "[out]")
	if maxSeconds > 0 {
		args = append(args, "-t", formatSeconds(maxSeconds))
	}
	args = append(args, "-c:a", "libmp3lame", "-q:a", "2", out)

	if _, err := m.run(ctx, m.FFmpeg, args...); err != nil {
		return fmt.Errorf("concatenating audio: %w", err)
	}
	return nil
}

// Duration probes the container duration.
func (m *FFmpegMixer) Duration(ctx context.Context, path string) (float64, error) {
	out, err := m.run(ctx, m.FFprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return 0, fmt.Errorf("probing duration: %w", err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return secs, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
