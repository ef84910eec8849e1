package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/ports"
)

// Maintenance holds the housekeeping jobs that run outside ingestion.
type Maintenance struct {
	store      ports.RecordStore
	logger     *slog.Logger
	now        func() time.Time
	staleAfter time.Duration
}

// NewMaintenance builds the housekeeping use case.
func NewMaintenance(store ports.RecordStore, staleAfter time.Duration, logger *slog.Logger, now func() time.Time) *Maintenance {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if now == nil {
		now = time.Now
	}
	return &Maintenance{store: store, logger: logger, now: now, staleAfter: staleAfter}
}

// Sweep flags records that no Phase-1 run has seen within staleAfter. Records
// are never deleted.
func (m *Maintenance) Sweep(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, errors.New("record store is not configured")
	}
	if m.staleAfter <= 0 {
		return 0, nil
	}

	cutoff := m.now().Add(-m.staleAfter)
	records, err := m.store.Select(ctx, ports.Filter{IngestedBefore: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("select stale candidates: %w", err)
	}

	marked := 0
	var errs []error
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := m.store.Update(ctx, rec.ID, domain.Patch{domain.FieldIsStale: true}); err != nil {
			errs = append(errs, fmt.Errorf("mark %s stale: %w", rec.ExternalID, err))
			continue
		}
		marked++
	}

	m.logger.Info("stale sweep finished", "cutoff", cutoff, "marked", marked, "errors", len(errs))
	return marked, errors.Join(errs...)
}

// RepairListings restores the listing-type and price invariant on stored
// records, stale ones included.
func (m *Maintenance) RepairListings(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, errors.New("record store is not configured")
	}

	records, err := m.store.Select(ctx, ports.Filter{IncludeStale: true})
	if err != nil {
		return 0, fmt.Errorf("select records: %w", err)
	}

	repaired := 0
	var errs []error
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		patch := domain.ListingRepair(rec)
		if patch.IsEmpty() {
			continue
		}
		if err := m.store.Update(ctx, rec.ID, patch); err != nil {
			errs = append(errs, fmt.Errorf("repair %s: %w", rec.ExternalID, err))
			continue
		}
		m.logger.Debug("listing repaired", "external_id", rec.ExternalID, "fields", patch.Fields())
		repaired++
	}

	m.logger.Info("listing repair finished", "scanned", len(records), "repaired", repaired, "errors", len(errs))
	return repaired, errors.Join(errs...)
}
