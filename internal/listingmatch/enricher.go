package listingmatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/ports"
)

// EnricherName is the adapter name of the listing-match enrichment.
const EnricherName = "listing-match"

// Enricher recovers photos, floor plans and live rent for stored records
// from the best matching marketplace listing.
type Enricher struct {
	matcher *Matcher
	delay   time.Duration
}

var (
	_ ports.EnrichmentAdapter = (*Enricher)(nil)
	_ ports.Configurable      = (*Enricher)(nil)
	_ ports.Throttled         = (*Enricher)(nil)
	_ ports.Prerequisite      = (*Enricher)(nil)
)

// NewEnricher wraps a matcher as a Phase-2 adapter.
func NewEnricher(m *Matcher, delay time.Duration) *Enricher {
	return &Enricher{matcher: m, delay: delay}
}

func (e *Enricher) Name() string { return EnricherName }

func (e *Enricher) Configured() bool { return e.matcher != nil && e.matcher.Configured() }

func (e *Enricher) RequestDelay() time.Duration { return e.delay }

func (e *Enricher) Cursor() domain.Field { return domain.FieldListingMatchedAt }

// Fetch is a no-op.
func (e *Enricher) Fetch(context.Context, domain.SourceQuery) ([]domain.PropertyRecord, error) {
	return nil, nil
}

// Eligible keeps records with a postcode and no images yet.
func (e *Enricher) Eligible(rec domain.PropertyRecord) bool {
	return len(rec.Images) == 0 && strings.TrimSpace(rec.Postcode) != ""
}

func (e *Enricher) Requires() (present, missing []domain.Field) {
	return []domain.Field{domain.FieldPostcode}, []domain.Field{domain.FieldImages}
}

// Enrich looks the record up and copies listing media. A rental without a
// stored price also takes the listing's asking rent.
func (e *Enricher) Enrich(ctx context.Context, rec domain.PropertyRecord) (domain.Patch, error) {
	if !e.Configured() {
		return domain.Patch{}, nil
	}

	q := QueryFromRecord(rec)
	match, err := e.matcher.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", rec.ExternalID, err)
	}
	if !match.Found {
		return domain.Patch{}, nil
	}

	patch := domain.Patch{}
	if len(match.Images) > 0 {
		patch[domain.FieldImages] = match.Images
		patch[domain.FieldPrimaryImage] = e.matcher.BestImage(match, q)
	}
	if len(match.FloorPlans) > 0 {
		patch[domain.FieldFloorPlans] = match.FloorPlans
	}
	if rec.ListingType == domain.ListingRent && rec.PricePCM == nil && match.Price != nil {
		patch[domain.FieldPricePCM] = *match.Price
	}
	return patch, nil
}
