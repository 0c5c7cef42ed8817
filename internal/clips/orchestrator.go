package clips

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/logging"
)

// Prober reports the total duration of a local media file, in seconds.
type Prober interface {
	ProbeDuration(ctx context.Context, filePath string) (float64, error)
}

// RenderRequest describes one segment cut. JobID and Index together make the
// output path collision-free across concurrent jobs.
type RenderRequest struct {
	JobID      string
	Index      int
	SourcePath string
	Start      float64
	Length     float64
}

// Rendered locates the artifacts one render produced.
type Rendered struct {
	OutputRef    string
	ThumbnailRef string
}

// Renderer cuts one segment out of the source and writes exactly one output
// file. A failed render fails the whole job; there is no per-segment retry.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (Rendered, error)
}

// Debiter charges the owning user. Called exactly once per completed job,
// never on error.
type Debiter interface {
	Debit(ctx context.Context, ownerID string, amount int) error
}

// Params are the caller-supplied overrides for one job. Zero values mean
// "use the probed duration / configured defaults".
type Params struct {
	WindowStart float64
	WindowEnd   float64
	ClipLength  float64
}

// Policy carries the segment policy constants the orchestrator applies.
type Policy struct {
	ClipCount         int
	ClipLengthDefault float64
	ClipLengthMin     float64
	ClipLengthMax     float64
	ClipCost          int
}

// Orchestrator owns the per-job state machine:
//
//	analyzing -> processing -> completed
//	analyzing -> error
//	processing -> error
//
// It is the sole writer for each job it runs. One background goroutine runs
// per job; jobs share nothing but the store.
type Orchestrator struct {
	store    Store
	prober   Prober
	renderer Renderer
	strategy Strategy
	debiter  Debiter
	policy   Policy
	logger   *slog.Logger
}

func NewOrchestrator(store Store, prober Prober, renderer Renderer, strategy Strategy, debiter Debiter, policy Policy, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		prober:   prober,
		renderer: renderer,
		strategy: strategy,
		debiter:  debiter,
		policy:   policy,
		logger:   logger,
	}
}

// Submit creates the job record and launches the background task. It returns
// as soon as the record exists; the caller must not wait for completion. On
// error no job exists and the caller still owns the source file.
//
// Callers that staged the source under a job-scoped name pass the id they
// used; an empty jobID gets a fresh one.
func (o *Orchestrator) Submit(ctx context.Context, jobID, ownerID, sourcePath string, params Params) (*Job, error) {
	if jobID == "" {
		jobID = uuid.NewString()
	}
	now := time.Now().UTC()
	job := &Job{
		ID:        jobID,
		OwnerID:   ownerID,
		Status:    StatusAnalyzing,
		Clips:     []ClipResult{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}

	// Detached from the request context: the task outlives the submission
	// response and is only ever stopped by its own terminal transition.
	go o.Run(context.Background(), job.ID, ownerID, sourcePath, params)

	return job, nil
}

// Run drives one job to a terminal state. Exported so tests can run the task
// synchronously; production callers go through Submit.
func (o *Orchestrator) Run(ctx context.Context, jobID, ownerID, sourcePath string, params Params) {
	logger := logging.WithJobID(o.logger, jobID)
	start := time.Now()

	// The uploaded source is removed on every terminal transition, success or
	// failure, and removal must never mask the job outcome.
	defer o.removeSource(logger, sourcePath)

	duration, err := o.prober.ProbeDuration(ctx, sourcePath)
	if err != nil {
		logger.Warn("probe failed", "error", err)
		o.fail(ctx, logger, jobID, fmt.Sprintf("probe failed: %v", err))
		return
	}

	windowStart := params.WindowStart
	windowEnd := params.WindowEnd
	if windowEnd <= 0 {
		// Unset window end means the whole source. A supplied end past the
		// probed duration is the caller's error and fails the plan below.
		windowEnd = duration
	}
	clipLength := ClampLength(params.ClipLength, o.policy.ClipLengthDefault, o.policy.ClipLengthMin, o.policy.ClipLengthMax)

	plan, err := o.strategy.Plan(ctx, duration, windowStart, windowEnd, clipLength, o.policy.ClipCount)
	if err != nil {
		logger.Warn("segment planning failed", "error", err, "duration_s", duration)
		o.fail(ctx, logger, jobID, err.Error())
		return
	}

	if err := o.store.MarkProcessing(ctx, jobID, len(plan)); err != nil {
		logger.Error("failed to mark job processing", "error", err)
		o.fail(ctx, logger, jobID, "internal: could not persist job state")
		return
	}
	logger.Info("processing started", "total_clips", len(plan), "duration_s", duration, "clip_length_s", clipLength)

	for i, seg := range plan {
		rendered, err := o.renderer.Render(ctx, RenderRequest{
			JobID:      jobID,
			Index:      i,
			SourcePath: sourcePath,
			Start:      seg.Start,
			Length:     seg.Length,
		})
		if err != nil {
			// Abort the remaining segments: a partial pack is failed, but the
			// clips already produced stay on the record for diagnostics.
			logger.Warn("render failed, aborting job", "clip_index", i, "error", err)
			o.fail(ctx, logger, jobID, fmt.Sprintf("clip %d failed: %v", i+1, err))
			return
		}

		clip := ClipResult{
			ID:                  fmt.Sprintf("%s-%d", jobID, i),
			Title:               fmt.Sprintf("Viral Cut #%d", i+1),
			SourceOffsetSeconds: seg.Start,
			LengthSeconds:       seg.Length,
			OutputRef:           rendered.OutputRef,
			ThumbnailRef:        rendered.ThumbnailRef,
		}
		progress := RoundProgress(i+1, len(plan))
		if err := o.store.AppendClip(ctx, jobID, clip, i+1, progress); err != nil {
			logger.Error("failed to persist clip result", "clip_index", i, "error", err)
			o.fail(ctx, logger, jobID, "internal: could not persist clip result")
			return
		}
		logger.Info("clip rendered", "clip_index", i, "start_s", seg.Start, "progress", progress)
	}

	if err := o.store.MarkCompleted(ctx, jobID); err != nil {
		logger.Error("failed to mark job completed", "error", err)
		o.fail(ctx, logger, jobID, "internal: could not persist completion")
		return
	}

	// The only debit point: exactly once, only after completed.
	if err := o.debiter.Debit(ctx, ownerID, o.policy.ClipCost); err != nil {
		logger.Error("credit debit failed", "owner_id", ownerID, "amount", o.policy.ClipCost, "error", err)
	}

	logger.Info("job completed",
		"clips", len(plan),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, jobID, detail string) {
	if err := o.store.MarkError(ctx, jobID, detail); err != nil {
		logger.Error("failed to mark job errored", "error", err, "detail", detail)
	}
}

func (o *Orchestrator) removeSource(logger *slog.Logger, sourcePath string) {
	if err := os.Remove(sourcePath); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove source file", "path", logging.SanitizePath(sourcePath), "error", err)
	}
}
