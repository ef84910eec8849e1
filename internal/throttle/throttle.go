// Package throttle paces calls to upstream APIs.
package throttle

import (
	"context"
	"sync"
	"time"
)

// Limiter blocks until the caller may issue its next request.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper backed by a timer.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// FixedDelay enforces a minimum interval between consecutive calls. The first
// call passes immediately.
type FixedDelay struct {
	delay time.Duration
	now   func() time.Time
	sleep Sleeper

	mu   sync.Mutex
	last time.Time
}

// Option customises a FixedDelay.
type Option func(*FixedDelay)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(f *FixedDelay) { f.now = now }
}

// WithSleeper injects the wait implementation.
func WithSleeper(s Sleeper) Option {
	return func(f *FixedDelay) { f.sleep = s }
}

// NewFixedDelay builds a limiter spacing calls by delay.
func NewFixedDelay(delay time.Duration, opts ...Option) *FixedDelay {
	f := &FixedDelay{delay: delay, now: time.Now, sleep: SleepContext}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Delay returns the configured interval.
func (f *FixedDelay) Delay() time.Duration {
	return f.delay
}

// Wait blocks until delay has elapsed since the previous call returned.
func (f *FixedDelay) Wait(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if !f.last.IsZero() && f.delay > 0 {
		if remaining := f.delay - f.now().Sub(f.last); remaining > 0 {
			if err := f.sleep(ctx, remaining); err != nil {
				return err
			}
		}
	}
	f.last = f.now()
	return nil
}

// Unlimited never waits.
type Unlimited struct{}

// Wait only reports context cancellation.
func (Unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}
