// Package media wraps the external ffprobe/ffmpeg binaries behind the probe
// and render contracts the clip pipeline consumes. Every invocation is a
// bounded subprocess with a tail of stderr kept for diagnostics.
package media

import (
	"bytes"
	"fmt"
	"os/exec"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// ProbeError means the source could not be inspected or reported no usable
// duration. Fatal to the owning job; there is no retry.
type ProbeError struct {
	Detail string
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("probe: %s: %v", e.Detail, e.Err)
	}
	return "probe: " + e.Detail
}

func (e *ProbeError) Unwrap() error { return e.Err }

// RenderError carries the transcode tool's diagnostics for a failed or
// timed-out segment.
type RenderError struct {
	ExitCode   int
	StderrTail string
	TimedOut   bool
}

func (e *RenderError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("render timed out: %s", truncate(e.StderrTail, 512))
	}
	return fmt.Sprintf("render exited %d: %s", e.ExitCode, truncate(e.StderrTail, 512))
}

// RunResult is the structured outcome of one tool invocation.
type RunResult struct {
	ExitCode   int
	StdoutText string
	StderrTail string
	Duration   time.Duration
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// resolveTool finds a usable binary, preferring an explicitly configured path.
func resolveTool(preferred string, names ...string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured tool %q not found", preferred)
	}
	for _, name := range names {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no tool found on PATH (tried %v)", names)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
