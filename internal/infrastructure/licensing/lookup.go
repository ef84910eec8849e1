// Package licensing matches stored properties against HMO register licences.
package licensing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/matching"
	"PropertyScanner/internal/ports"
)

// SourceName is the adapter name.
const SourceName = "licensing"

// EntrySource yields the licences of every configured register.
type EntrySource interface {
	Entries(ctx context.Context) ([]domain.LicenceEntry, error)
}

// Lookup is a Phase-3 enrichment adapter.
type Lookup struct {
	entries    EntrySource
	skipSource string
	now        func() time.Time
	logger     *slog.Logger
}

var (
	_ ports.EnrichmentAdapter = (*Lookup)(nil)
	_ ports.Configurable      = (*Lookup)(nil)
	_ ports.Prerequisite      = (*Lookup)(nil)
)

// NewLookup builds the adapter. Records whose source is registerSource
// already carry their licence and are not looked up.
func NewLookup(entries EntrySource, registerSource string, logger *slog.Logger, now func() time.Time) *Lookup {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if now == nil {
		now = time.Now
	}
	return &Lookup{entries: entries, skipSource: registerSource, now: now, logger: logger}
}

func (l *Lookup) Name() string { return SourceName }

func (l *Lookup) Cursor() domain.Field { return domain.FieldLicenceCheckedAt }

// Configured reports whether a register dataset is wired.
func (l *Lookup) Configured() bool {
	if l.entries == nil {
		return false
	}
	if c, ok := l.entries.(ports.Configurable); ok {
		return c.Configured()
	}
	return true
}

// Fetch is a no-op.
func (l *Lookup) Fetch(context.Context, domain.SourceQuery) ([]domain.PropertyRecord, error) {
	return nil, nil
}

// Eligible keeps addressed, postcoded records that did not come from a register.
func (l *Lookup) Eligible(rec domain.PropertyRecord) bool {
	if rec.Source == l.skipSource {
		return false
	}
	return strings.TrimSpace(rec.Address) != "" && strings.TrimSpace(rec.Postcode) != ""
}

func (l *Lookup) Requires() (present, missing []domain.Field) {
	return []domain.Field{domain.FieldAddress, domain.FieldPostcode}, nil
}

// Enrich looks for a licence at the record's address within the same postcode.
func (l *Lookup) Enrich(ctx context.Context, rec domain.PropertyRecord) (domain.Patch, error) {
	if !l.Configured() {
		return domain.Patch{}, nil
	}

	all, err := l.entries.Entries(ctx)
	if err != nil {
		if len(all) == 0 {
			return nil, fmt.Errorf("load register entries: %w", err)
		}
		l.logger.Warn("some registers unavailable", "error", err)
	}

	pc := domain.NormalizePostcode(rec.Postcode)
	var (
		candidates []domain.LicenceEntry
		addresses  []string
	)
	for _, e := range all {
		if domain.NormalizePostcode(e.Postcode) != pc {
			continue
		}
		candidates = append(candidates, e)
		addresses = append(addresses, e.Address)
	}

	idx, kind := matching.FindAddress(rec.Address, addresses)
	if kind == matching.MatchNone {
		l.logger.Debug("no licence found", "external_id", rec.ExternalID, "candidates", len(candidates))
		return domain.Patch{}, nil
	}

	entry := candidates[idx]
	status := entry.LicenceStatus(l.now())
	licensed := status == "licensed" || status == "temporary_exemption"
	l.logger.Debug("licence matched", "external_id", rec.ExternalID, "licence", entry.LicenceNumber, "match", kind.String())

	patch := domain.Patch{
		domain.FieldLicensedHMO:   licensed,
		domain.FieldLicenceNumber: entry.LicenceNumber,
		domain.FieldLicenceStatus: status,
	}
	if licensed {
		patch[domain.FieldHMOStatus] = "licensed"
	}
	if entry.Expiry != nil {
		patch[domain.FieldLicenceExpiry] = *entry.Expiry
	}
	if entry.MaxOccupants != nil {
		patch[domain.FieldLicenceMaxOccupants] = *entry.MaxOccupants
	}
	return patch, nil
}
