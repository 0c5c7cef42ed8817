package media

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/logging"
)

// FFprobe obtains a source video's total duration by shelling out to the
// ffprobe binary. A single invocation either succeeds or fails; retries are
// the caller's problem and the caller has chosen not to have them.
type FFprobe struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewFFprobe resolves the ffprobe binary, preferring the configured path.
func NewFFprobe(preferred string, timeout time.Duration, logger *slog.Logger) (*FFprobe, error) {
	binary, err := resolveTool(preferred, "ffprobe")
	if err != nil {
		return nil, err
	}
	logger.Info("probe tool resolved", "binary", binary)
	return &FFprobe{binary: binary, timeout: timeout, logger: logger}, nil
}

// ProbeDuration returns the media duration in seconds, always > 0.
func (f *FFprobe) ProbeDuration(ctx context.Context, filePath string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		filePath,
	}

	cmd := exec.CommandContext(ctx, f.binary, args...)
	var stdout bytes.Buffer
	var stderrBuf bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		f.logger.Warn("probe command failed",
			"path", logging.SanitizePath(filePath),
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrBuf.String(), 512),
		)
		return 0, &ProbeError{Detail: truncate(stderrBuf.String(), 512), Err: err}
	}

	return parseDuration(stdout.String())
}

// parseDuration turns ffprobe's stdout into seconds. Empty, non-numeric, or
// non-positive output all mean the duration is indeterminate.
func parseDuration(out string) (float64, error) {
	text := strings.TrimSpace(out)
	if text == "" {
		return 0, &ProbeError{Detail: "tool reported no duration"}
	}
	seconds, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, &ProbeError{Detail: "non-numeric duration " + strconv.Quote(text), Err: err}
	}
	if seconds <= 0 {
		return 0, &ProbeError{Detail: "tool reported zero duration"}
	}
	return seconds, nil
}
