package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/chronograph-db/chronograph/internal/chrono/core"
)

// withRetry runs fn until it succeeds, fails with a non-conflict error, or
// spends the retry budget. Only conflicts are retried; every other failure
// is definitive for the attempted input. fn must re-read any state it
// depends on, since a conflict means that state changed.
func (e *Engine) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := e.calculateBackoff(attempt)
			e.logger.Debug("retrying after version conflict",
				"op", op,
				"attempt", attempt,
				"backoff_ms", backoff.Milliseconds(),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !core.IsConflict(lastErr) {
			return lastErr
		}
	}

	e.logger.Warn("retry budget exhausted", "op", op, "attempts", e.cfg.MaxRetries+1)
	return &core.ConcurrencyExhaustedError{Attempts: e.cfg.MaxRetries + 1, Last: lastErr}
}

// calculateBackoff returns the delay before the given retry attempt.
func (e *Engine) calculateBackoff(attempt int) time.Duration {
	// Exponential backoff: base * 2^attempt
	backoff := e.cfg.RetryBackoff * time.Duration(1<<attempt)

	// Cap at max
	if backoff > e.cfg.MaxRetryBackoff {
		backoff = e.cfg.MaxRetryBackoff
	}

	// Add jitter: ±jitter%
	jitterRange := float64(backoff) * e.cfg.RetryJitter
	jitter := (rand.Float64()*2 - 1) * jitterRange
	backoff = time.Duration(float64(backoff) + jitter)

	if backoff < 0 {
		backoff = e.cfg.RetryBackoff
	}

	return backoff
}
