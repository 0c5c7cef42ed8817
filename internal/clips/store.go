package clips

import "context"

// Store is the system of record for job state. Writes for one job come from
// that job's orchestrator only; reads come from pollers. Implementations must
// keep concurrent writes to distinct jobs independent, and must never move a
// job out of a terminal state: updates against completed/error jobs are
// silently ignored.
type Store interface {
	CreateJob(ctx context.Context, job *Job) error

	// GetJob returns ErrJobNotFound for unknown ids.
	GetJob(ctx context.Context, id string) (*Job, error)

	ListJobs(ctx context.Context, limit int) ([]*Job, error)

	// MarkProcessing transitions analyzing -> processing with the plan size.
	MarkProcessing(ctx context.Context, id string, totalClips int) error

	// AppendClip records one rendered clip along with the counters a poller
	// must observe before the next segment starts rendering.
	AppendClip(ctx context.Context, id string, clip ClipResult, currentClipIndex, progress int) error

	MarkCompleted(ctx context.Context, id string) error

	MarkError(ctx context.Context, id string, detail string) error
}
