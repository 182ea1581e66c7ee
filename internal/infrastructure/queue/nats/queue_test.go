package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

func TestDecodeSampleUploaded(t *testing.T) {
	cases := []struct {
		payload string
		want    string
		wantErr bool
	}{
		{payload: `{"sampleId":"s-1","publishedAt":"2026-10-16T10:00:00Z"}`, want: "s-1"},
		{payload: " s-2\n", want: "s-2"},
		{payload: `{"sampleId":""}`, wantErr: true},
		{payload: `{broken`, wantErr: true},
		{payload: "  ", wantErr: true},
	}
	for _, tc := range cases {
		got, err := decodeSampleUploaded([]byte(tc.payload))
		if tc.wantErr {
			if err == nil {
				t.Fatalf("decode(%q): expected error", tc.payload)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("decode(%q) = %q, %v", tc.payload, got, err)
		}
	}
}

func TestClassifyPublishError(t *testing.T) {
	if c := classifyPublishError(fmt.Errorf("nats publish: %w", nats.ErrConnectionClosed)); !c.Retryable || !c.RecordFailure {
		t.Fatalf("closed connection should be retryable, got %+v", c)
	}
	if c := classifyPublishError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("cancellation must not count, got %+v", c)
	}
	if c := classifyPublishError(nats.ErrBadSubject); c.Retryable || !c.RecordFailure {
		t.Fatalf("bad subject is permanent, got %+v", c)
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(gobreaker.ErrOpenState); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("open breaker should be temporary, got %v", err)
	}
	permanent := errors.New("bad payload")
	if err := wrapTemporaryIfNeeded(permanent); err != permanent {
		t.Fatalf("permanent errors pass through, got %v", err)
	}
}

func TestOptionsDefaults(t *testing.T) {
	noRetry := false
	got := Options{MaxReconnects: 5, RetryOnFailedConnect: &noRetry}.withDefaults()
	if got.ConnectTimeout <= 0 || got.ReconnectWait <= 0 || got.Logger == nil {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if got.MaxReconnects != 5 || *got.RetryOnFailedConnect {
		t.Fatalf("explicit values overridden: %+v", got)
	}
	if retry := *(Options{}.withDefaults().RetryOnFailedConnect); !retry {
		t.Fatal("connect retries should default to on")
	}
	if n := len(got.natsOptions()); n != 7 {
		t.Fatalf("natsOptions() returned %d options", n)
	}
}
