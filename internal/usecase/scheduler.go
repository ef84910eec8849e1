package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/ports"
)

// SchedulerDeps wires the cron driver with the use cases it triggers.
type SchedulerDeps struct {
	Driver      ports.Scheduler
	Manager     *Manager
	Maintenance *Maintenance
	Notifier    ports.Notifier
	IngestSpec  string
	SweepSpec   string
	RunTimeout  time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

// Scheduler registers recurring ingestion and stale sweeps.
type Scheduler struct {
	deps SchedulerDeps
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Scheduler{deps: deps}
}

// Start registers the jobs with the driver and starts it.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.deps.Driver == nil {
		return nil
	}

	if s.deps.Manager != nil && s.deps.IngestSpec != "" {
		if err := s.deps.Driver.Schedule(s.deps.IngestSpec, "ingestion", func(ctx context.Context) {
			_, _ = s.RunIngestion(ctx)
		}); err != nil {
			return fmt.Errorf("schedule ingestion: %w", err)
		}
	}
	if s.deps.Maintenance != nil && s.deps.SweepSpec != "" {
		if err := s.deps.Driver.Schedule(s.deps.SweepSpec, "stale-sweep", func(ctx context.Context) {
			_ = s.RunSweep(ctx)
		}); err != nil {
			return fmt.Errorf("schedule sweep: %w", err)
		}
	}

	return s.deps.Driver.Start(ctx)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.deps.Driver == nil {
		return nil
	}

	return s.deps.Driver.Stop(ctx)
}

// RunIngestion executes one bounded ingestion run and publishes its summary.
func (s *Scheduler) RunIngestion(ctx context.Context) ([]domain.IngestionResult, error) {
	if s.deps.Manager == nil {
		return nil, nil
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	started := s.deps.Now()
	results, err := s.deps.Manager.RunIngestion(ctx, "")
	if err != nil {
		s.deps.Logger.Error("scheduled ingestion failed", "error", err)
		return nil, err
	}

	if s.deps.Notifier != nil {
		summary := FormatSummary(results, s.deps.Now().Sub(started))
		// The run budget may be spent; the summary still goes out.
		notifyCtx, cancelNotify := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancelNotify()
		if err := s.deps.Notifier.PublishSummary(notifyCtx, summary); err != nil {
			s.deps.Logger.Warn("publish summary failed", "error", err)
		}
	}
	return results, nil
}

// RunSweep executes one bounded stale sweep.
func (s *Scheduler) RunSweep(ctx context.Context) error {
	if s.deps.Maintenance == nil {
		return nil
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if _, err := s.deps.Maintenance.Sweep(ctx); err != nil {
		s.deps.Logger.Warn("stale sweep failed", "error", err)
		return err
	}
	return nil
}

func (s *Scheduler) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.deps.RunTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.deps.RunTimeout)
}

// FormatSummary renders run results as a Markdown digest.
func FormatSummary(results []domain.IngestionResult, elapsed time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*PropertyScanner run* (%s)\n", elapsed.Round(time.Second))
	if len(results) == 0 {
		b.WriteString("No adapters ran.")
		return b.String()
	}

	var created, updated, failed int
	for _, r := range results {
		created += r.Created
		updated += r.Updated
		failed += len(r.Errors)
		fmt.Fprintf(&b, "• %s (phase %d): %d created, %d updated, %d skipped",
			r.Source, r.Phase, r.Created, r.Updated, r.Skipped)
		if len(r.Errors) > 0 {
			fmt.Fprintf(&b, ", %d errors (first: %s)", len(r.Errors), r.Errors[0])
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Total: %d created, %d updated, %d errors", created, updated, failed)
	return b.String()
}
