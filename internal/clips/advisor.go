package clips

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// advisorTailReserveS is how much room a suggested offset must leave before
// end-of-file. Suggestions closer to the end than this are dropped, matching
// the longest clip the planner will place.
const advisorTailReserveS = 60

// Advisor suggests start offsets that are more likely to contain interesting
// moments than uniform spacing. Suggestions are best-effort: implementations
// may return fewer than count offsets.
type Advisor interface {
	Suggest(ctx context.Context, sourceDuration float64, count int) ([]float64, error)
}

// FallbackAdvisor produces deterministic offsets without any external
// capability: offsets[i] = (i+1) * floor(duration / (count+2)). It never
// fails.
type FallbackAdvisor struct{}

func (FallbackAdvisor) Suggest(_ context.Context, sourceDuration float64, count int) ([]float64, error) {
	step := math.Floor(sourceDuration / float64(count+2))
	offsets := make([]float64, count)
	for i := 0; i < count; i++ {
		offsets[i] = float64(i+1) * step
	}
	return offsets, nil
}

// HTTPAdvisor delegates to an external suggestion service and degrades to the
// deterministic fallback when the service is unreachable, errors, or returns
// nothing usable. Suggest therefore never fails.
type HTTPAdvisor struct {
	baseURL    string
	token      string
	httpClient *http.Client
	fallback   FallbackAdvisor
	logger     *slog.Logger
}

func NewHTTPAdvisor(baseURL, token string, logger *slog.Logger) *HTTPAdvisor {
	return &HTTPAdvisor{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type suggestRequest struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Count           int     `json:"count"`
}

type suggestResponse struct {
	Offsets []float64 `json:"offsets"`
}

func (a *HTTPAdvisor) Suggest(ctx context.Context, sourceDuration float64, count int) ([]float64, error) {
	offsets, err := a.fetch(ctx, sourceDuration, count)
	if err != nil {
		a.logger.Warn("suggestion service unavailable, using deterministic fallback", "error", err)
		return a.fallback.Suggest(ctx, sourceDuration, count)
	}

	filtered := make([]float64, 0, count)
	for _, off := range offsets {
		if len(filtered) == count {
			break
		}
		if off < 0 || off >= sourceDuration-advisorTailReserveS {
			continue
		}
		filtered = append(filtered, off)
	}

	a.logger.Info("timestamp suggestions received",
		"requested", count,
		"received", len(offsets),
		"usable", len(filtered),
	)
	return filtered, nil
}

func (a *HTTPAdvisor) fetch(ctx context.Context, sourceDuration float64, count int) ([]float64, error) {
	body, err := json.Marshal(suggestRequest{DurationSeconds: sourceDuration, Count: count})
	if err != nil {
		return nil, fmt.Errorf("marshal suggest payload: %w", err)
	}

	url := a.baseURL + "/api/suggest"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("suggestion service returned HTTP %d", resp.StatusCode)
	}

	var result suggestResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse suggest response: %w", err)
	}
	return result.Offsets, nil
}
