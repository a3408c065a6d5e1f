package genai

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	cfg := DefaultRetryConfig()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 1500 * time.Millisecond},
		{3, 2250 * time.Millisecond},
		{10, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := cfg.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestWithDefaults(t *testing.T) {
	got := RetryConfig{}.withDefaults()
	if got != DefaultRetryConfig() {
		t.Errorf("zero config = %+v, want defaults", got)
	}
	custom := RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiple: 2, AttemptTimeout: time.Second}
	if custom.withDefaults() != custom {
		t.Error("explicit values should be kept")
	}
}

func TestCategorize(t *testing.T) {
	bg := context.Background()
	tests := []struct {
		name      string
		err       error
		category  string
		retryable bool
	}{
		{"bad request", apiError(400), "bad_request", false},
		{"unauthorized", apiError(401), "unauthorized", false},
		{"not found", apiError(404), "not_found", false},
		{"too large", apiError(413), "payload_too_large", false},
		{"rate limit", apiError(429), "rate_limit", true},
		{"server", apiError(502), "server_error", true},
		{"wrapped server", fmt.Errorf("call: %w", apiError(500)), "server_error", true},
		{"attempt timeout", context.DeadlineExceeded, "timeout", true},
		{"empty", ErrNoChoicesReturned, "empty_response", true},
		{"unknown", errors.New("boom"), "unknown", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := categorize(bg, tt.err)
			if ce.Category != tt.category || ce.Retryable != tt.retryable {
				t.Errorf("categorize(%v) = %s/%v, want %s/%v", tt.err, ce.Category, ce.Retryable, tt.category, tt.retryable)
			}
			if !errors.Is(ce, tt.err) {
				t.Error("CallError should unwrap to the original error")
			}
		})
	}
}

func TestCategorizeCanceledParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ce := categorize(ctx, apiError(503))
	if ce.Retryable {
		t.Error("errors after the caller gave up must not be retried")
	}
}

func TestIsModelNotFound(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrFatal, categorize(context.Background(), apiError(404)))
	if !IsModelNotFound(err) {
		t.Error("expected model-not-found")
	}
	if IsModelNotFound(fmt.Errorf("%w: %w", ErrFatal, categorize(context.Background(), apiError(400)))) {
		t.Error("400 is not model-not-found")
	}
}
