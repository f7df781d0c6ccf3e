// Package retry implements bounded retries with exponential backoff.
//
// The escrow gateway is the main consumer: transient transport failures
// are worth a few more attempts, while a definitive rejection from the
// escrow service must stop the loop immediately (wrap it with Permanent).
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// PermanentError marks an error as not retryable.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do stops retrying and returns it as-is.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do calls fn up to maxAttempts times, sleeping between attempts with
// exponential backoff and ±25% jitter. It returns nil as soon as fn
// succeeds, the unwrapped error when fn returns a *PermanentError, and
// the last error once attempts are exhausted. Cancelling ctx aborts the
// backoff sleep and returns ctx.Err().
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(lastErr, &pe) {
			return pe.Err
		}
		if attempt == maxAttempts {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(baseDelay, attempt)):
		}
	}
}

// backoff returns the sleep before the next attempt: baseDelay doubled
// per completed attempt, jittered by ±25% so concurrent resolvers don't
// retry in lockstep.
func backoff(baseDelay time.Duration, attempt int) time.Duration {
	d := baseDelay << (attempt - 1)
	if d <= 0 {
		return 0
	}
	jitter := d / 4
	return d - jitter + rand.N(2*jitter+1)
}
