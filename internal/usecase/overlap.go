package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/listingmatch"
	"PropertyScanner/internal/matching"
	"PropertyScanner/internal/ports"
)

// OverlapMatch links a register record to the marketplace record it matched.
type OverlapMatch struct {
	RegisterID string
	ListingID  string
	Address    string
	Score      int
}

// OverlapReport summarises how many licensed HMOs are also advertised.
type OverlapReport struct {
	RegisterRecords int
	Matched         int
	Ratio           float64
	Matches         []OverlapMatch
}

// Overlap compares register records against stored marketplace listings.
type Overlap struct {
	store           ports.RecordStore
	registerSources []string
	listingSources  []string
	scorer          matching.Scorer
	logger          *slog.Logger
}

// NewOverlap builds the analytics use case.
func NewOverlap(store ports.RecordStore, registerSources, listingSources []string, logger *slog.Logger) *Overlap {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Overlap{
		store:           store,
		registerSources: registerSources,
		listingSources:  listingSources,
		scorer:          matching.NewScorer(),
		logger:          logger,
	}
}

// Run counts register records that have a marketplace match in the same
// postcode.
func (o *Overlap) Run(ctx context.Context) (OverlapReport, error) {
	if o.store == nil {
		return OverlapReport{}, errors.New("record store is not configured")
	}

	registers, err := o.load(ctx, o.registerSources)
	if err != nil {
		return OverlapReport{}, err
	}
	listings, err := o.load(ctx, o.listingSources)
	if err != nil {
		return OverlapReport{}, err
	}

	byPostcode := map[string][]domain.PropertyRecord{}
	for _, l := range listings {
		key := domain.NormalizePostcode(l.Postcode)
		if key == "" {
			continue
		}
		byPostcode[key] = append(byPostcode[key], l)
	}

	report := OverlapReport{RegisterRecords: len(registers)}
	for _, reg := range registers {
		pool := byPostcode[domain.NormalizePostcode(reg.Postcode)]
		if len(pool) == 0 {
			continue
		}
		candidates := make([]matching.Candidate, len(pool))
		for i, l := range pool {
			candidates[i] = listingmatch.CandidateFromRecord(l)
		}
		idx, score, ok := o.scorer.Best(listingmatch.CandidateFromRecord(reg), candidates)
		if !ok {
			continue
		}
		report.Matched++
		report.Matches = append(report.Matches, OverlapMatch{
			RegisterID: reg.ExternalID,
			ListingID:  pool[idx].ExternalID,
			Address:    reg.Address,
			Score:      score,
		})
	}
	if report.RegisterRecords > 0 {
		report.Ratio = float64(report.Matched) / float64(report.RegisterRecords)
	}

	o.logger.Info("overlap computed", "register_records", report.RegisterRecords, "matched", report.Matched, "ratio", report.Ratio)
	return report, nil
}

func (o *Overlap) load(ctx context.Context, sources []string) ([]domain.PropertyRecord, error) {
	var out []domain.PropertyRecord
	for _, src := range sources {
		recs, err := o.store.Select(ctx, ports.Filter{Source: src})
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", src, err)
		}
		out = append(out, recs...)
	}
	return out, nil
}
