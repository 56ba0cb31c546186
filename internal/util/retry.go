package util

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Backoff configures RetryWithBackoff. The delay before attempt n (n >= 1) is
// Base * 2^(n-1), capped at Max, plus up to Jitter of random delay.
type Backoff struct {
	MaxTries int
	Base     time.Duration
	Max      time.Duration
	Jitter   time.Duration

	// Retryable decides whether an error is worth another attempt.
	// A nil Retryable retries every non-context error.
	Retryable func(error) bool
}

// Delay returns the wait before the given retry attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 || b.Base <= 0 {
		return 0
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			d = b.Max
			break
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(b.Jitter) + 1))
	}
	return d
}

// RetryWithBackoff calls fn until it succeeds and sleeps between attempts
// and stops early on errors that the policy does not consider retryable.
// The returned error is the last error observed.
func RetryWithBackoff[T any](ctx context.Context, policy Backoff, fn func(context.Context, int) (T, error)) (T, error) {
	maxTries := policy.MaxTries
	if maxTries <= 0 {
		maxTries = 1
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < maxTries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, policy.Delay(attempt)); err != nil {
				return zero, err
			}
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if policy.Retryable != nil && !policy.Retryable(err) {
			return zero, err
		}
		if policy.Retryable == nil && isContextErr(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
