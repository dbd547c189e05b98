package retry

import (
	"context"
	"errors"
	"time"
)

// Policy describes a bounded retry schedule shared by outbound call sites.
// Delay returns the wait before attempt n+1 (n is zero-based) and must be
// strictly increasing so repeated failures back off.
type Policy struct {
	MaxAttempts int
	Delay       func(attempt int) time.Duration
}

// LinearBackoff returns a policy waiting base*1, base*2, ... between attempts.
func LinearBackoff(maxAttempts int, base time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Delay: func(attempt int) time.Duration {
			return base * time.Duration(attempt+1)
		},
	}
}

// Retryable marks an error as transient. Do returns non-retryable errors
// immediately instead of burning remaining attempts.
type Retryable interface {
	Retryable() bool
}

// Do runs fn up to p.MaxAttempts times, sleeping p.Delay between failures.
// It returns nil on the first success, the last error on exhaustion, or the
// context error if ctx is done while waiting.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		var r Retryable
		if errors.As(lastErr, &r) && !r.Retryable() {
			return lastErr
		}

		if attempt == p.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
