// Package clips implements the asynchronous clip-generation pipeline: segment
// planning, the per-job orchestrator state machine, and job record storage.
package clips

import (
	"errors"
	"time"
)

const (
	StatusAnalyzing  = "analyzing"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// IsTerminal reports whether a job status admits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusError
}

// Job is one end-to-end request to turn a source video into a pack of clips.
// The orchestrator is the only writer for a job's lifetime; pollers read it
// through the store.
type Job struct {
	ID               string       `json:"id"`
	OwnerID          string       `json:"owner_id"`
	Status           string       `json:"status"`
	Progress         int          `json:"progress"`
	CurrentClipIndex int          `json:"current_clip_index"`
	TotalClips       int          `json:"total_clips"`
	Clips            []ClipResult `json:"clips"`
	Error            string       `json:"error,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// ClipResult is one rendered output. OutputRef points at a file that existed
// and was non-empty when the result was appended.
type ClipResult struct {
	ID                  string  `json:"id"`
	Title               string  `json:"title"`
	SourceOffsetSeconds float64 `json:"source_offset_seconds"`
	LengthSeconds       float64 `json:"length_seconds"`
	OutputRef           string  `json:"output_ref"`
	ThumbnailRef        string  `json:"thumbnail_ref"`
}

// Segment is one planned (start, length) cut. Plans are ephemeral and never
// persisted.
type Segment struct {
	Start  float64
	Length float64
}

var (
	// ErrJobNotFound is returned by stores for unknown job ids.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidRange means the requested window is malformed or outside the
	// source duration.
	ErrInvalidRange = errors.New("invalid time range")

	// ErrInsufficientDuration means the source is shorter than one clip, so
	// no placement exists.
	ErrInsufficientDuration = errors.New("source shorter than clip length")
)
