package utils

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Backoff computes the delay before retry attempt n (1-based):
// min(Cap, Base*n) plus a random jitter in [0, Jitter). The linear ramp with a
// cap and jitter avoids hammering a single upstream in lockstep.
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter time.Duration
}

// Delay returns the sleep duration after the n-th failed attempt.
func (b Backoff) Delay(n int) time.Duration {
	d := b.Base * time.Duration(n)
	if d > b.Cap {
		d = b.Cap
	}
	if b.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(b.Jitter)))
	}
	return d
}

// RetryConfig holds the parameters for the retry strategy.
type RetryConfig struct {
	MaxAttempts int
	Backoff     Backoff
	Logger      *Logger
}

// Do executes fn up to MaxAttempts times, sleeping per the backoff policy
// between attempts. The context bounds the waits; fn is expected to enforce
// its own per-attempt deadline.
func (r *RetryConfig) Do(ctx context.Context, operationName string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt < r.MaxAttempts {
			delay := r.Backoff.Delay(attempt)
			r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v — retrying in %v",
				operationName, attempt, r.MaxAttempts, lastErr, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%s aborted after %d attempts: %w", operationName, attempt, ctx.Err())
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, r.MaxAttempts, lastErr)
}
