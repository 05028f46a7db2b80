// Package retry wraps blocking calls with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds a retried call
type Policy struct {
	// Attempts is the total number of calls, including the first one
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Retryable classifies errors. Nil retries every error except
	// cancellation. An attempt that ran out of its own deadline is retried
	// while ctx is still live.
	Retryable func(error) bool
	// Hint may return a server-suggested delay (e.g. Retry-After) that
	// replaces the computed backoff. It is still capped by MaxDelay.
	Hint      func(error) (time.Duration, bool)
	// Sleep waits between attempts. Tests replace it to avoid real delays.
	Sleep     func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy is three attempts starting at 500ms, capped at 5s
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Do calls fn until it succeeds, the policy is exhausted, the error is not
// retryable, or ctx is done. Only ctx decides whether a deadline is final:
// fn may derive a shorter per-attempt context, and its expiry is retried.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	made := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return zero, err
		}

		result, err := fn(ctx)
		made++
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts || !p.shouldRetry(ctx, err) {
			break
		}
		if err := p.sleep(ctx, p.delay(attempt, err)); err != nil {
			return zero, fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}

	if made == 1 {
		return zero, lastErr
	}
	return zero, fmt.Errorf("after %d attempts: %w", made, lastErr)
}

// Backoff returns the delay before the attempt following the given one:
// attempt 1 -> base, attempt 2 -> base*2, ... capped at MaxDelay
func (p Policy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && delay > p.MaxDelay/2 {
			return p.MaxDelay
		}
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p Policy) delay(attempt int, err error) time.Duration {
	if p.Hint != nil {
		if d, ok := p.Hint(err); ok && d > 0 {
			if p.MaxDelay > 0 && d > p.MaxDelay {
				return p.MaxDelay
			}
			return d
		}
	}
	return p.Backoff(attempt)
}

func (p Policy) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
