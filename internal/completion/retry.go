package completion

import (
	"context"
	"errors"
	"time"

	"github.com/sashabaranov/go-openai"
)

// isRetryableHTTPStatus classifies retryable HTTP status codes.
func isRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// isRetryable reports whether a provider error is worth another attempt
// against the same backend.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return isRetryableHTTPStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return isRetryableHTTPStatus(reqErr.HTTPStatusCode)
	}
	return false
}

// exponentialBackoff computes a deterministic capped backoff duration.
func exponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// withRetry runs fn up to attempts times, sleeping between retryable
// failures. Non-retryable errors and context cancellation end the loop
// immediately.
func withRetry(ctx context.Context, attempts int, base, cap time.Duration, fn func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(exponentialBackoff(attempt, base, cap)):
		}
	}
	return "", lastErr
}
