// Package retry runs operations with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"alertagent/internal/apperr"
)

// Policy bounds a retried operation.
type Policy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration

	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy is 3 attempts, 1s base delay, capped at 60s.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Base: time.Second, Max: 60 * time.Second}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns a permanent error, ctx ends, or the
// attempts are exhausted. Rate limit errors carrying a retry_after hint wait
// that long instead of the computed backoff. Exhaustion returns a retry error
// wrapping the last failure.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base
	b.MaxInterval = p.Max
	b.MaxElapsedTime = 0
	b.Reset()

	var last error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		last = err
		if attempt == p.Attempts {
			break
		}

		wait := b.NextBackOff()
		if ra, ok := apperr.RetryAfter(err); ok {
			wait = ra
		}
		if p.Max > 0 && wait > p.Max {
			wait = p.Max
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return apperr.Retry("Operation failed after retries", p.Attempts, last)
}

// Value is Do for operations that return a result.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
