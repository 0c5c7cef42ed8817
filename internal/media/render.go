package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/clipforge/clipforge/internal/clips"
)

// verticalFilter scales to fill the 9:16 frame then center-crops, so output
// is never letterboxed or distorted.
const verticalFilter = "scale=w=1080:h=1920:force_original_aspect_ratio=increase,crop=1080:1920,setsar=1"

const thumbnailTimeout = 30 * time.Second

// FFmpeg renders planned segments by shelling out to the ffmpeg binary.
// Output names embed job id and segment index, so concurrent jobs can never
// collide in the shared output directory.
type FFmpeg struct {
	binary    string
	outputDir string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewFFmpeg resolves the ffmpeg binary and ensures the output directory
// exists.
func NewFFmpeg(preferred, outputDir string, timeout time.Duration, logger *slog.Logger) (*FFmpeg, error) {
	binary, err := resolveTool(preferred, "ffmpeg")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create output dir: %w", err)
	}
	logger.Info("render tool resolved", "binary", binary, "output_dir", outputDir)
	return &FFmpeg{binary: binary, outputDir: outputDir, timeout: timeout, logger: logger}, nil
}

// Render cuts one segment: seek before input open for speed, bound the read
// by the clip length, scale/crop to vertical, encode with the fast preset.
// The wall clock for the whole invocation is bounded; a timeout is a failure
// like any other.
func (f *FFmpeg) Render(ctx context.Context, req clips.RenderRequest) (clips.Rendered, error) {
	outName := fmt.Sprintf("clip_%s_%d.mp4", req.JobID, req.Index)
	outPath := filepath.Join(f.outputDir, outName)

	args := []string{
		"-ss", formatSeconds(req.Start),
		"-t", formatSeconds(req.Length),
		"-i", req.SourcePath,
		"-vf", verticalFilter,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-crf", "23",
		"-c:a", "aac",
		"-ac", "2",
		"-b:a", "192k",
		"-y", outPath,
	}

	result := f.exec(ctx, f.timeout, args)
	if !result.IsSuccess() {
		return clips.Rendered{}, &RenderError{
			ExitCode:   result.ExitCode,
			StderrTail: result.StderrTail,
			TimedOut:   result.TimedOut,
		}
	}

	// The output must exist and be non-empty before the result is reported.
	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		return clips.Rendered{}, &RenderError{
			ExitCode:   result.ExitCode,
			StderrTail: "tool exited 0 but produced no output",
		}
	}

	f.logger.Info("segment rendered",
		"job_id", req.JobID,
		"clip_index", req.Index,
		"start_s", req.Start,
		"length_s", req.Length,
		"bytes", info.Size(),
		"duration_ms", result.Duration.Milliseconds(),
	)

	return clips.Rendered{
		OutputRef:    "/clips/" + outName,
		ThumbnailRef: f.thumbnail(ctx, req, outName),
	}, nil
}

// thumbnail grabs one scaled frame at the clip start. Thumbnailing is
// best-effort: on failure a deterministic placeholder URL stands in and the
// clip itself is unaffected.
func (f *FFmpeg) thumbnail(ctx context.Context, req clips.RenderRequest, outName string) string {
	thumbName := fmt.Sprintf("thumb_%s_%d.jpg", req.JobID, req.Index)
	thumbPath := filepath.Join(f.outputDir, thumbName)

	args := []string{
		"-ss", formatSeconds(req.Start),
		"-i", req.SourcePath,
		"-frames:v", "1",
		"-vf", "scale=400:-2",
		"-y", thumbPath,
	}

	result := f.exec(ctx, thumbnailTimeout, args)
	if !result.IsSuccess() {
		f.logger.Warn("thumbnail generation failed, using placeholder",
			"job_id", req.JobID,
			"clip_index", req.Index,
			"exit_code", result.ExitCode,
		)
		return fmt.Sprintf("https://picsum.photos/seed/%s-%d/400/700", req.JobID, req.Index)
	}
	return "/clips/" + thumbName
}

type execResult struct {
	RunResult
	TimedOut bool
}

// exec is the core subprocess execution helper.
func (f *FFmpeg) exec(ctx context.Context, timeout time.Duration, args []string) execResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, f.binary, args...)

	// Capture stderr with bounded buffer; ffmpeg writes all diagnostics there.
	var stderrBuf bytes.Buffer
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})
	cmd.Stdout = io.Discard

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	if exitCode != 0 {
		f.logger.Warn("render command failed",
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrBuf.String(), 512),
		)
	}

	return execResult{
		RunResult: RunResult{
			ExitCode:   exitCode,
			StderrTail: stderrBuf.String(),
			Duration:   elapsed,
		},
		TimedOut: ctx.Err() == context.DeadlineExceeded,
	}
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
