package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/infrastructure/resilience"
)

func TestInferSendsSanitizedTextAndComplianceHeaders(t *testing.T) {
	var captured domain.InferenceRequest
	var headers http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"status":"COMPLETED","fields":{"total":"10.00"},"confidence":0.6,"modelVersion":"m-1"}`))
	}))
	defer server.Close()

	client := New(Config{Endpoint: server.URL, APIKey: "secret", Provider: "acme-ml", Region: "eu-central-1"}, nil)
	entry := "entry-1"
	out, err := client.Infer(context.Background(), domain.InferenceRequest{
		Text:     "Invoice 12****89",
		Metadata: domain.InferenceMetadata{SampleID: "s-1", OrganizationID: "org-1", EntryID: &entry, ContentHash: "abc"},
	})
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	if out.Fields["total"] != "10.00" || *out.Confidence != 0.6 || *out.ModelVersion != "m-1" {
		t.Fatalf("unexpected output %+v", out)
	}
	if captured.Text != "Invoice 12****89" || captured.Metadata.ContentHash != "abc" || *captured.Metadata.EntryID != "entry-1" {
		t.Fatalf("unexpected request %+v", captured)
	}
	if headers.Get("Authorization") != "Bearer secret" || headers.Get("X-Compliance-Provider") != "acme-ml" || headers.Get("X-Compliance-Region") != "eu-central-1" {
		t.Fatalf("unexpected headers %v", headers)
	}
	if got := client.Describe(); got.Provider != "acme-ml" || got.Endpoint != server.URL {
		t.Fatalf("unexpected compliance %+v", got)
	}
}

func TestInferWithoutProviderNeverCallsEndpoint(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := New(Config{Endpoint: server.URL, Provider: "  "}, nil)
	_, err := client.Infer(context.Background(), domain.InferenceRequest{Text: "x"})
	if !domain.IsKind(err, domain.ErrComplianceConfig) {
		t.Fatalf("expected compliance error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("endpoint must not be called")
	}
}

func TestInferErrorKinds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "busy") {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer server.Close()

	busy := New(Config{Endpoint: server.URL + "/busy", Provider: "acme-ml"}, nil)
	_, err := busy.Infer(context.Background(), domain.InferenceRequest{Text: "x"})
	if !domain.IsKind(err, domain.ErrTemporary) || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected temporary error with body, got %v", err)
	}

	rejected := New(Config{Endpoint: server.URL + "/bad", Provider: "acme-ml"}, nil)
	_, err = rejected.Infer(context.Background(), domain.InferenceRequest{Text: "x"})
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestInferNoContentIsNotApplicable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	out, err := New(Config{Endpoint: server.URL, Provider: "acme-ml"}, nil).Infer(context.Background(), domain.InferenceRequest{Text: "x"})
	if out != nil || err != nil {
		t.Fatalf("expected nil result, got %+v, %v", out, err)
	}
}

func TestInferOpenCircuitIsTemporary(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := resilience.SingleAttempt()
	cfg.Breaker.MinRequests = 1
	cfg.Breaker.FailureRatio = 0.5
	client := New(Config{Endpoint: server.URL, Provider: "acme-ml"}, resilience.NewExecutor(cfg))

	for i := 0; i < 3; i++ {
		if _, err := client.Infer(context.Background(), domain.InferenceRequest{Text: "x"}); !domain.IsKind(err, domain.ErrTemporary) {
			t.Fatalf("call %d: expected temporary error, got %v", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("open circuit must short-circuit further calls, got %d calls", calls.Load())
	}
}
