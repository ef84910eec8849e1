package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"PropertyScanner/internal/cache"
	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/ports"
	"PropertyScanner/internal/scanner"
)

// SourceName is the adapter and record source name for register rows.
const SourceName = "hmo-register"

// RegisterConfig pairs a register with the scanner strategy that reads it.
type RegisterConfig struct {
	Register scanner.Register
	Scanner  string
}

// RegisterSource is the Phase-1 adapter over every configured HMO register.
// Scanned registers are cached so the licensing lookup can reuse them.
type RegisterSource struct {
	registry  *scanner.Registry
	registers []RegisterConfig
	cache     *cache.TTL[string, []domain.LicenceEntry]
	now       func() time.Time
	logger    *slog.Logger
}

var _ ports.SourceAdapter = (*RegisterSource)(nil)
var _ ports.Configurable = (*RegisterSource)(nil)

// NewRegisterSource wires the scanner registry with config-defined registers.
func NewRegisterSource(reg *scanner.Registry, registers []RegisterConfig, cacheTTL time.Duration, log *slog.Logger) *RegisterSource {
	if cacheTTL <= 0 {
		cacheTTL = 6 * time.Hour
	}
	return &RegisterSource{
		registry:  reg,
		registers: registers,
		cache:     cache.NewTTL[string, []domain.LicenceEntry](cacheTTL),
		now:       time.Now,
		logger:    log,
	}
}

// Name identifies the adapter.
func (s *RegisterSource) Name() string {
	return SourceName
}

// Configured reports whether any register is listed.
func (s *RegisterSource) Configured() bool {
	return len(s.registers) > 0
}

// Fetch scans the registers selected by query and converts each licence into
// a property record. A query Area keeps only the register whose name or
// council matches it; a query Postcode keeps licences in the same district.
func (s *RegisterSource) Fetch(ctx context.Context, query domain.SourceQuery) ([]domain.PropertyRecord, error) {
	var (
		records []domain.PropertyRecord
		errs    []error
	)
	outward := ""
	if query.Postcode != "" {
		outward = domain.OutwardCode(query.Postcode)
	}

	now := s.now()
	for _, rc := range s.registers {
		if query.Area != "" && domain.Slug(query.Area) != domain.Slug(rc.Register.Name) && domain.Slug(query.Area) != domain.Slug(rc.Register.Council) {
			continue
		}

		entries, err := s.scan(ctx, rc)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for _, e := range entries {
			if outward != "" && domain.OutwardCode(e.Postcode) != outward {
				continue
			}
			records = append(records, entryRecord(e, rc.Register.URL, now))
		}
	}

	s.debug("register fetch done", "records", len(records), "errors", len(errs))
	return records, errors.Join(errs...)
}

// Entries returns the licences of every register. Registers that fail are
// skipped and reported in the error alongside the entries that were read.
func (s *RegisterSource) Entries(ctx context.Context) ([]domain.LicenceEntry, error) {
	var (
		all  []domain.LicenceEntry
		errs []error
	)
	for _, rc := range s.registers {
		entries, err := s.scan(ctx, rc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		all = append(all, entries...)
	}
	return all, errors.Join(errs...)
}

func (s *RegisterSource) scan(ctx context.Context, rc RegisterConfig) ([]domain.LicenceEntry, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	return s.cache.GetOrLoad(rc.Register.Name, func() ([]domain.LicenceEntry, error) {
		strategy, err := s.registry.Resolve(rc.Scanner)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", rc.Register.Name, err)
		}

		s.debug("scan register", "register", rc.Register.Name, "scanner", rc.Scanner)
		entries, err := strategy.Scan(ctx, scanner.Request{Register: rc.Register})
		if err != nil {
			return nil, fmt.Errorf("scan register %s: %w", rc.Register.Name, err)
		}
		s.debug("register produced licences", "register", rc.Register.Name, "count", len(entries))
		return entries, nil
	})
}

func entryRecord(e domain.LicenceEntry, registerURL string, now time.Time) domain.PropertyRecord {
	status := e.LicenceStatus(now)
	licensed := status == "licensed" || status == "temporary_exemption"
	hmoStatus := "licensed"
	if !licensed {
		hmoStatus = status
	}

	return domain.PropertyRecord{
		ExternalID:          e.ExternalID(),
		Source:              SourceName,
		SourceURL:           registerURL,
		Address:             e.Address,
		Postcode:            e.Postcode,
		HMOStatus:           hmoStatus,
		LicensedHMO:         domain.Ptr(licensed),
		LicenceNumber:       e.LicenceNumber,
		LicenceStatus:       status,
		LicenceExpiry:       e.Expiry,
		LicenceMaxOccupants: e.MaxOccupants,
	}
}

func (s *RegisterSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
