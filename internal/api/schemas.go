package api

import (
	"time"

	"github.com/clipforge/clipforge/internal/clips"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type SubmitResponse struct {
	JobID string `json:"job_id"`
}

type ClipResponse struct {
	ID                  string  `json:"id"`
	Title               string  `json:"title"`
	SourceOffsetSeconds float64 `json:"source_offset_seconds"`
	LengthSeconds       float64 `json:"length_seconds"`
	VideoURL            string  `json:"video_url"`
	ThumbnailURL        string  `json:"thumbnail_url"`
}

type JobResponse struct {
	ID               string         `json:"id"`
	OwnerID          string         `json:"owner_id"`
	Status           string         `json:"status"`
	Progress         int            `json:"progress"`
	CurrentClipIndex int            `json:"current_clip_index"`
	TotalClips       int            `json:"total_clips"`
	Clips            []ClipResponse `json:"clips"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func JobToResponse(j *clips.Job) JobResponse {
	out := JobResponse{
		ID:               j.ID,
		OwnerID:          j.OwnerID,
		Status:           j.Status,
		Progress:         j.Progress,
		CurrentClipIndex: j.CurrentClipIndex,
		TotalClips:       j.TotalClips,
		Clips:            make([]ClipResponse, len(j.Clips)),
		Error:            j.Error,
		CreatedAt:        j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        j.UpdatedAt.Format(time.RFC3339),
	}
	for i, c := range j.Clips {
		out.Clips[i] = ClipResponse{
			ID:                  c.ID,
			Title:               c.Title,
			SourceOffsetSeconds: c.SourceOffsetSeconds,
			LengthSeconds:       c.LengthSeconds,
			VideoURL:            c.OutputRef,
			ThumbnailURL:        c.ThumbnailRef,
		}
	}
	return out
}
