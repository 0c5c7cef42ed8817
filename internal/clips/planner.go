package clips

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
)

// ClampLength bounds a requested clip length to the configured policy window.
// Zero or negative requests fall back to the default.
func ClampLength(requested, def, min, max float64) float64 {
	if requested <= 0 {
		requested = def
	}
	if requested < min {
		return min
	}
	if requested > max {
		return max
	}
	return requested
}

// Plan computes clipCount (start, length) segments inside the requested
// window. The result is deterministic: the same inputs always produce the
// same plan.
//
// When the window is longer than one clip, starts are distributed evenly
// across [windowStart, windowEnd-clipLength]. When it is not, every start
// collapses toward windowStart, clamped so start+clipLength never passes
// end-of-file. The overlapping degenerate case is accepted behavior.
func Plan(sourceDuration, windowStart, windowEnd, clipLength float64, clipCount int) ([]Segment, error) {
	if clipCount <= 0 {
		return nil, fmt.Errorf("%w: clip count must be positive", ErrInvalidRange)
	}
	if err := validateWindow(sourceDuration, windowStart, windowEnd); err != nil {
		return nil, err
	}
	if sourceDuration < clipLength {
		return nil, fmt.Errorf("%w: source is %.1fs, clip length is %.1fs", ErrInsufficientDuration, sourceDuration, clipLength)
	}

	r := windowEnd - windowStart
	step := 0.0
	if r > clipLength && clipCount > 1 {
		step = (r - clipLength) / float64(clipCount-1)
	}

	segments := make([]Segment, clipCount)
	for i := 0; i < clipCount; i++ {
		start := windowStart + float64(i)*step
		start = clampStart(start, sourceDuration, clipLength)
		segments[i] = Segment{Start: start, Length: clipLength}
	}
	return segments, nil
}

func validateWindow(sourceDuration, windowStart, windowEnd float64) error {
	if windowStart < 0 {
		return fmt.Errorf("%w: window start %.1fs is negative", ErrInvalidRange, windowStart)
	}
	if windowEnd > sourceDuration {
		return fmt.Errorf("%w: window end %.1fs exceeds source duration %.1fs", ErrInvalidRange, windowEnd, sourceDuration)
	}
	if windowEnd <= windowStart {
		return fmt.Errorf("%w: window end %.1fs is not after start %.1fs", ErrInvalidRange, windowEnd, windowStart)
	}
	return nil
}

// clampStart keeps a seek inside the file: never negative, never so late that
// start+clipLength passes end-of-file.
func clampStart(start, sourceDuration, clipLength float64) float64 {
	limit := sourceDuration - clipLength
	if start > limit {
		start = limit
	}
	if start < 0 {
		start = 0
	}
	return start
}

// Strategy produces a segment plan for a probed source. Implementations must
// be deterministic for a fixed advisor response.
type Strategy interface {
	Plan(ctx context.Context, sourceDuration, windowStart, windowEnd, clipLength float64, clipCount int) ([]Segment, error)
}

// UniformStrategy spaces clips evenly across the requested window.
type UniformStrategy struct{}

func (UniformStrategy) Plan(_ context.Context, sourceDuration, windowStart, windowEnd, clipLength float64, clipCount int) ([]Segment, error) {
	return Plan(sourceDuration, windowStart, windowEnd, clipLength, clipCount)
}

// AdvisedStrategy asks a timestamp advisor for interesting start offsets and
// pads with the uniform distribution when the advisor returns fewer than
// clipCount usable suggestions. The advisor is advisory only: any shortfall
// or failure degrades to uniform spacing, never to a failed plan.
type AdvisedStrategy struct {
	Advisor Advisor
	Logger  *slog.Logger
}

func (s AdvisedStrategy) Plan(ctx context.Context, sourceDuration, windowStart, windowEnd, clipLength float64, clipCount int) ([]Segment, error) {
	uniform, err := Plan(sourceDuration, windowStart, windowEnd, clipLength, clipCount)
	if err != nil {
		return nil, err
	}

	offsets, err := s.Advisor.Suggest(ctx, sourceDuration, clipCount)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("timestamp advisor failed, using uniform plan", "error", err)
		}
		return uniform, nil
	}

	segments := make([]Segment, 0, clipCount)
	for _, off := range offsets {
		if len(segments) == clipCount {
			break
		}
		if off < windowStart || off > windowEnd {
			continue
		}
		segments = append(segments, Segment{
			Start:  clampStart(off, sourceDuration, clipLength),
			Length: clipLength,
		})
	}

	// Pad the shortfall from the tail of the uniform plan.
	for i := len(segments); i < clipCount; i++ {
		segments = append(segments, uniform[i])
	}

	sort.Slice(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })
	return segments, nil
}

// RoundProgress converts completed/total clips into the 0-100 integer pollers
// see.
func RoundProgress(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}
