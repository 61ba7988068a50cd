package hyperliquid

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited marks an HTTP 429 from the venue.
var ErrRateLimited = errors.New("rate limited")

const (
	retryBase     = 10 * time.Second
	retryCap      = 120 * time.Second
	retryAttempts = 10
)

// withRetry runs fn, retrying rate-limit failures with exponential backoff
// (10s base, 120s cap, 10 attempts). Other errors propagate immediately.
func withRetry[T any](ctx context.Context, log logFunc, what string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBase << uint(attempt-1)
			if delay > retryCap {
				delay = retryCap
			}
			log("retrying %s in %s (attempt %d/%d)", what, delay, attempt+1, retryAttempts)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !errors.Is(err, ErrRateLimited) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%s: retries exhausted: %w", what, lastErr)
}

type logFunc func(format string, args ...interface{})
