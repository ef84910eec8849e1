package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/ports"
)

func phaseOne(rec domain.PropertyRecord) domain.PropertyRecord {
	rec.SourceHash = domain.Fingerprint(rec)
	return rec
}

func TestMemoryUpsertOutcomes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	rec := phaseOne(domain.PropertyRecord{
		ExternalID: "listings:1",
		Address:    "12 Hyde Park Road",
		Postcode:   "LS6 1AB",
		Bedrooms:   domain.Ptr(4),
	})

	outcome, err := store.Upsert(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCreated, outcome)

	outcome, err = store.Upsert(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnchanged, outcome)

	rec.Bedrooms = domain.Ptr(5)
	outcome, err = store.Upsert(ctx, phaseOne(rec))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUpdated, outcome)

	assert.Equal(t, 1, store.Len())
	stored, ok := store.GetByExternalID("listings:1")
	require.True(t, ok)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, 5, *stored.Bedrooms)
}

func TestMemoryUpsertRequiresIdentity(t *testing.T) {
	t.Parallel()

	_, err := NewMemoryStore().Upsert(context.Background(), domain.PropertyRecord{ExternalID: "  "})
	assert.ErrorIs(t, err, domain.ErrNoIdentity)
}

func TestMemoryUpsertKeepsEnrichmentAndReplacesEconomics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.Upsert(ctx, domain.PropertyRecord{
		ExternalID:    "listings:1",
		Address:       "12 Hyde Park Road",
		ListingType:   domain.ListingPurchase,
		PurchasePrice: domain.Ptr(250000.0),
	})
	require.NoError(t, err)

	stored, _ := store.GetByExternalID("listings:1")
	require.NoError(t, store.Update(ctx, stored.ID, domain.Patch{
		domain.FieldEPCRating:      "C",
		domain.FieldEstimatedValue: 260000.0,
	}))

	_, err = store.Upsert(ctx, domain.PropertyRecord{
		ExternalID:  "listings:1",
		ListingType: domain.ListingRent,
		PricePCM:    domain.Ptr(1200.0),
	})
	require.NoError(t, err)

	got, _ := store.GetByExternalID("listings:1")
	assert.Equal(t, "12 Hyde Park Road", got.Address, "empty incoming address keeps the stored one")
	assert.Equal(t, "C", got.EPCRating)
	assert.Equal(t, 260000.0, *got.EstimatedValue)
	assert.Equal(t, domain.ListingRent, got.ListingType)
	assert.Equal(t, 1200.0, *got.PricePCM)
	assert.Nil(t, got.PurchasePrice, "listing economics are replaced verbatim")
}

func TestMemoryUpsertWithoutPriceKeepsRecoveredRent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	listing := phaseOne(domain.PropertyRecord{
		ExternalID:  "listings:7",
		Address:     "3 Brudenell Grove",
		Postcode:    "LS6 1HR",
		ListingType: domain.ListingRent,
	})
	_, err := store.Upsert(ctx, listing)
	require.NoError(t, err)

	stored, _ := store.GetByExternalID("listings:7")
	require.NoError(t, store.Update(ctx, stored.ID, domain.Patch{
		domain.FieldPricePCM: 950.0,
		domain.FieldImages:   []string{"a.jpg"},
	}))

	outcome, err := store.Upsert(ctx, listing)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnchanged, outcome)

	got, _ := store.GetByExternalID("listings:7")
	require.NotNil(t, got.PricePCM)
	assert.Equal(t, 950.0, *got.PricePCM)
	assert.Equal(t, domain.ListingRent, got.ListingType)
	assert.Equal(t, []string{"a.jpg"}, got.Images)
}

func TestMemoryUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.Upsert(ctx, domain.PropertyRecord{ExternalID: "x", EPCRating: "D"})
	require.NoError(t, err)
	rec, _ := store.GetByExternalID("x")

	err = store.Update(ctx, "missing", domain.Patch{domain.FieldEPCRating: "C"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = store.Update(ctx, rec.ID, domain.Patch{domain.FieldExternalID: "y"})
	require.Error(t, err)

	err = store.Update(ctx, rec.ID, domain.Patch{domain.FieldBedrooms: "four"})
	require.Error(t, err)
	unchanged, _ := store.Get(rec.ID)
	assert.Nil(t, unchanged.Bedrooms)

	require.NoError(t, store.Update(ctx, rec.ID, domain.Patch{domain.FieldEPCRating: nil}))
	cleared, _ := store.Get(rec.ID)
	assert.Empty(t, cleared.EPCRating)
}

func TestMemoryReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.Upsert(ctx, domain.PropertyRecord{ExternalID: "x", Images: []string{"a.jpg"}})
	require.NoError(t, err)

	recs, err := store.Select(ctx, ports.Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	recs[0].Images[0] = "mutated.jpg"

	again, _ := store.GetByExternalID("x")
	assert.Equal(t, []string{"a.jpg"}, again.Images)
}

func TestMemorySelectFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := old.Add(48 * time.Hour)

	seed := []domain.PropertyRecord{
		{ExternalID: "a", Source: "listings", Postcode: "LS6 1AB", LastIngestedAt: &old, GeocodedAt: &recent},
		{ExternalID: "b", Source: "listings", Postcode: "ls61ab", LastIngestedAt: &recent, Latitude: domain.Ptr(53.8), GeocodedAt: &old},
		{ExternalID: "c", Source: "hmo-register", Postcode: "M14 5RT", LastIngestedAt: &recent},
		{ExternalID: "d", Source: "listings", Postcode: "LS6 1AB", IsStale: true},
	}
	for _, rec := range seed {
		_, err := store.Upsert(ctx, rec)
		require.NoError(t, err)
	}

	ids := func(f ports.Filter) []string {
		recs, err := store.Select(ctx, f)
		require.NoError(t, err)
		out := make([]string, len(recs))
		for i, r := range recs {
			out[i] = r.ExternalID
		}
		return out
	}

	assert.Equal(t, []string{"a", "b", "c"}, ids(ports.Filter{}))
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(ports.Filter{IncludeStale: true}))
	assert.Equal(t, []string{"a", "b"}, ids(ports.Filter{Postcode: "LS6 1AB"}))
	assert.Equal(t, []string{"c"}, ids(ports.Filter{Source: "hmo-register"}))
	assert.Equal(t, []string{"a", "c"}, ids(ports.Filter{Missing: []domain.Field{domain.FieldLatitude}}))
	assert.Equal(t, []string{"b"}, ids(ports.Filter{Present: []domain.Field{domain.FieldLatitude}}))
	assert.Equal(t, []string{"a"}, ids(ports.Filter{IngestedBefore: &recent}))

	// Null cursors first, then oldest.
	assert.Equal(t, []string{"c", "b", "a"}, ids(ports.Filter{CursorField: domain.FieldGeocodedAt, CursorBefore: recent.Add(time.Hour)}))
	assert.Equal(t, []string{"c", "b"}, ids(ports.Filter{CursorField: domain.FieldGeocodedAt, CursorBefore: recent}))
	assert.Equal(t, []string{"c"}, ids(ports.Filter{CursorField: domain.FieldGeocodedAt}))
	assert.Equal(t, []string{"c", "b"}, ids(ports.Filter{CursorField: domain.FieldGeocodedAt, CursorBefore: recent.Add(time.Hour), Limit: 2}))

	_, err := store.Select(ctx, ports.Filter{Missing: []domain.Field{"bogus"}})
	require.Error(t, err)
}
