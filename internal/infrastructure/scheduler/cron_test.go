package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleValidatesSpecAndNames(t *testing.T) {
	t.Parallel()

	c := NewCronScheduler(nil, nil)
	noop := func(context.Context) {}

	require.NoError(t, c.Schedule("0 */6 * * *", "ingestion", noop))
	require.Error(t, c.Schedule("0 */6 * * *", "ingestion", noop), "duplicate name")
	require.Error(t, c.Schedule("not a spec", "sweep", noop))
	require.Error(t, c.Schedule("@hourly", "nil-job", nil))
}

func TestStartStopAndNext(t *testing.T) {
	t.Parallel()

	c := NewCronScheduler(nil, nil)
	require.NoError(t, c.Schedule("@every 1h", "ingestion", func(context.Context) {}))

	_, ok := c.Next("missing")
	assert.False(t, ok)

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Start(context.Background()), "second start is a no-op")

	next, ok := c.Next("ingestion")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Hour), next, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx), "second stop is a no-op")
}
