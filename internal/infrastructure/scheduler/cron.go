package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"PropertyScanner/internal/ports"
)

// CronScheduler runs jobs on cron expressions. A job still running when its
// next tick fires is skipped rather than overlapped.
type CronScheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu     sync.Mutex
	base   context.Context
	cancel context.CancelFunc
	jobs   map[string]cron.EntryID
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler evaluating expressions in loc, UTC
// when loc is nil.
func NewCronScheduler(logger *slog.Logger, loc *time.Location) *CronScheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger: logger}
	return &CronScheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		jobs:   map[string]cron.EntryID{},
	}
}

// Schedule registers job under name. The job receives a context that is
// cancelled when the scheduler stops.
func (c *CronScheduler) Schedule(spec, name string, job func(ctx context.Context)) error {
	if job == nil {
		return fmt.Errorf("job %s is nil", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.jobs[name]; exists {
		return fmt.Errorf("job %s already scheduled", name)
	}

	id, err := c.cron.AddFunc(spec, func() {
		ctx := c.jobContext()
		started := time.Now()
		c.logger.Info("job started", "job", name)
		job(ctx)
		c.logger.Info("job finished", "job", name, "elapsed", time.Since(started))
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	c.jobs[name] = id
	return nil
}

// Start begins firing scheduled jobs.
func (c *CronScheduler) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return nil
	}
	c.base, c.cancel = context.WithCancel(ctx)
	c.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for running jobs until ctx expires.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}

	done := c.cron.Stop()
	cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}

// Next reports when the named job fires next.
func (c *CronScheduler) Next(name string) (time.Time, bool) {
	c.mu.Lock()
	id, ok := c.jobs[name]
	c.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return c.cron.Entry(id).Next, true
}

func (c *CronScheduler) jobContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.base == nil {
		return context.Background()
	}
	return c.base
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
