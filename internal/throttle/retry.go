package throttle

import (
	"context"
	"fmt"
	"time"
)

// Retry runs an operation with exponential back-off.
type Retry struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Retryable decides whether an error deserves another attempt. Nil retries everything.
	Retryable func(error) bool
	Sleep     Sleeper
}

// Do executes fn until it succeeds, the error is not retryable, attempts run
// out, or ctx is cancelled.
func (r Retry) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	delay := r.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if r.Retryable != nil && !r.Retryable(lastErr) {
			return lastErr
		}
		if attempt < attempts {
			if err := sleep(ctx, delay); err != nil {
				return fmt.Errorf("%s: %w", operation, err)
			}
			delay *= 2
		}
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}
