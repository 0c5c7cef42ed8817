// Package billing talks to the external credit ledger. The clip pipeline only
// ever needs one call from it: debit N credits from an owner after a job
// completes.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DebitError represents a rejected or failed debit call.
type DebitError struct {
	StatusCode int
	Body       string
}

func (e *DebitError) Error() string {
	return fmt.Sprintf("credit debit failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx) and network errors.
// Client errors (4xx) are considered permanent.
func (e *DebitError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// HTTPClient debits credits against the ledger service over HTTP.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, token string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type debitRequest struct {
	OwnerID string `json:"owner_id"`
	Amount  int    `json:"amount"`
}

func (c *HTTPClient) Debit(ctx context.Context, ownerID string, amount int) error {
	body, err := json.Marshal(debitRequest{OwnerID: ownerID, Amount: amount})
	if err != nil {
		return fmt.Errorf("marshal debit payload: %w", err)
	}

	url := c.baseURL + "/api/credits/debit"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Info("credits debited", "owner_id", ownerID, "amount", amount)
		return nil
	}

	return &DebitError{StatusCode: resp.StatusCode, Body: string(respBody)}
}

// StubService logs debits instead of performing them. Used when no ledger URL
// is configured, e.g. local development.
type StubService struct {
	logger *slog.Logger
}

func NewStubService(logger *slog.Logger) *StubService {
	return &StubService{logger: logger}
}

func (s *StubService) Debit(_ context.Context, ownerID string, amount int) error {
	s.logger.Info("billing stub: debit requested (no ledger configured)",
		"owner_id", ownerID, "amount", amount)
	return nil
}
