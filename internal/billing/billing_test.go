package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPClient_Debit(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody debitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "ledger-token", discardLogger())
	if err := client.Debit(context.Background(), "owner-1", 10); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	if gotPath != "/api/credits/debit" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer ledger-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.OwnerID != "owner-1" || gotBody.Amount != 10 {
		t.Errorf("payload = %+v, want owner-1/10", gotBody)
	}
}

func TestHTTPClient_DebitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient credits", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", discardLogger())
	err := client.Debit(context.Background(), "owner-1", 10)
	if err == nil {
		t.Fatal("expected error for rejected debit")
	}

	var debitErr *DebitError
	if !errors.As(err, &debitErr) {
		t.Fatalf("error type = %T, want *DebitError", err)
	}
	if debitErr.StatusCode != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", debitErr.StatusCode)
	}
	if debitErr.IsRetryable() {
		t.Error("a 4xx rejection must not be retryable")
	}
}

func TestDebitError_Retryable(t *testing.T) {
	if !(&DebitError{StatusCode: 503}).IsRetryable() {
		t.Error("5xx should be retryable")
	}
	if (&DebitError{StatusCode: 400}).IsRetryable() {
		t.Error("4xx should not be retryable")
	}
}

func TestStubService_AlwaysSucceeds(t *testing.T) {
	stub := NewStubService(discardLogger())
	if err := stub.Debit(context.Background(), "owner-1", 10); err != nil {
		t.Fatalf("stub debit failed: %v", err)
	}
}
