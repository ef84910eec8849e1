package throttle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func TestFixedDelaySpacesCalls(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	lim := NewFixedDelay(500*time.Millisecond, WithClock(clock.Now), WithSleeper(clock.Sleep))
	ctx := context.Background()

	require.NoError(t, lim.Wait(ctx))
	assert.Empty(t, clock.slept, "first call is immediate")

	clock.now = clock.now.Add(200 * time.Millisecond)
	require.NoError(t, lim.Wait(ctx))
	assert.Equal(t, []time.Duration{300 * time.Millisecond}, clock.slept)

	clock.now = clock.now.Add(2 * time.Second)
	require.NoError(t, lim.Wait(ctx))
	assert.Len(t, clock.slept, 1, "no wait once the interval has passed")
}

func TestFixedDelayHonoursCancellation(t *testing.T) {
	t.Parallel()

	lim := NewFixedDelay(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, lim.Wait(ctx))
	cancel()
	assert.ErrorIs(t, lim.Wait(ctx), context.Canceled)
}

func TestUnlimited(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Unlimited{}.Wait(context.Background()))
}

func TestRetryBacksOff(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	calls := 0
	r := Retry{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, Sleep: clock.Sleep}

	err := r.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, clock.slept)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permanent")
	calls := 0
	r := Retry{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}

	err := r.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryWrapsExhaustedError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	r := Retry{MaxAttempts: 2, Sleep: func(context.Context, time.Duration) error { return nil }}
	err := r.Do(context.Background(), "fetch", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fetch failed after 2 attempts")
}
