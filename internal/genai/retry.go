package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/openai/openai-go"
)

var (
	// ErrFatal marks a backend failure that retrying cannot fix.
	ErrFatal = errors.New("genai: fatal backend error")
	// ErrRetriesExhausted marks a transient failure that outlived the retry budget.
	ErrRetriesExhausted = errors.New("genai: retries exhausted")
)

// RetryConfig defines the bounded retry policy for backend calls.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
	// AttemptTimeout bounds a single backend call.
	AttemptTimeout time.Duration
}

// DefaultRetryConfig returns the production retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     4,
		InitialDelay:    1 * time.Second,
		MaxDelay:        10 * time.Second,
		BackoffMultiple: 1.5,
		AttemptTimeout:  20 * time.Second,
	}
}

func (r RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = def.MaxAttempts
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = def.InitialDelay
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = def.MaxDelay
	}
	if r.BackoffMultiple < 1 {
		r.BackoffMultiple = def.BackoffMultiple
	}
	if r.AttemptTimeout <= 0 {
		r.AttemptTimeout = def.AttemptTimeout
	}
	return r
}

// Backoff returns the wait before the attempt following attempt (1-based).
func (r RetryConfig) Backoff(attempt int) time.Duration {
	delay := float64(r.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= r.BackoffMultiple
		if delay >= float64(r.MaxDelay) {
			return r.MaxDelay
		}
	}
	return time.Duration(delay)
}

// CallError is a categorized backend failure.
type CallError struct {
	Err        error
	Category   string
	StatusCode int
	Retryable  bool
}

func (e *CallError) Error() string {
	return fmt.Sprintf("[%s] status=%d retryable=%v: %v", e.Category, e.StatusCode, e.Retryable, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// categorize decides whether err is worth retrying. parent is the caller's context:
// once it is done no further attempt can succeed.
func categorize(parent context.Context, err error) *CallError {
	ce := &CallError{Err: err, Category: "unknown", Retryable: true}

	if parent.Err() != nil {
		ce.Category = "canceled"
		ce.Retryable = false
		return ce
	}

	var apierr *openai.Error
	if errors.As(err, &apierr) {
		ce.StatusCode = apierr.StatusCode
		switch code := apierr.StatusCode; {
		case code == 400:
			ce.Category = "bad_request"
			ce.Retryable = false
		case code == 401:
			ce.Category = "unauthorized"
			ce.Retryable = false
		case code == 403:
			ce.Category = "forbidden"
			ce.Retryable = false
		case code == 404:
			ce.Category = "not_found"
			ce.Retryable = false
		case code == 413:
			ce.Category = "payload_too_large"
			ce.Retryable = false
		case code == 422:
			ce.Category = "unprocessable"
			ce.Retryable = false
		case code == 408 || code == 409:
			ce.Category = "conflict_or_timeout"
		case code == 429:
			ce.Category = "rate_limit"
		case code >= 500:
			ce.Category = "server_error"
		default:
			ce.Category = "unknown_api_error"
			ce.Retryable = false
		}
		return ce
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		ce.Category = "timeout"
	case errors.Is(err, context.Canceled):
		ce.Category = "canceled"
		ce.Retryable = false
	case errors.Is(err, ErrNoChoicesReturned):
		ce.Category = "empty_response"
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			ce.Category = "network_error"
		}
	}
	return ce
}

// IsModelNotFound reports whether err came from the backend rejecting the model name.
func IsModelNotFound(err error) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.Category == "not_found"
}

// completeWithRetry runs completeOnce under the retry policy. Fatal failures wrap
// ErrFatal; a transient failure on the last attempt wraps ErrRetriesExhausted.
func (c *Client) completeWithRetry(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	var last *CallError
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.retry.AttemptTimeout)
		text, err := c.completeOnce(attemptCtx, params)
		cancel()
		if err == nil {
			if attempt > 1 {
				slog.Info("genai.completeWithRetry: succeeded after retry", "model", params.Model, "attempt", attempt)
			}
			return text, nil
		}

		last = categorize(ctx, err)
		slog.Warn("genai.completeWithRetry: attempt failed",
			"model", params.Model, "attempt", attempt, "max_attempts", c.retry.MaxAttempts,
			"category", last.Category, "status", last.StatusCode, "retryable", last.Retryable)

		if !last.Retryable {
			return "", fmt.Errorf("%w: %w", ErrFatal, last)
		}
		if attempt == c.retry.MaxAttempts {
			break
		}

		delay := c.retry.Backoff(attempt)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", ErrFatal, categorize(ctx, ctx.Err()))
		case <-time.After(delay):
		}
	}
	return "", fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.retry.MaxAttempts, last)
}
