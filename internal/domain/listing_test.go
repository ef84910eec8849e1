package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepairMisclassifiedRentListing(t *testing.T) {
	t.Parallel()

	rec := PropertyRecord{
		SourceURL:     "https://www.example-homes.co.uk/to-rent/details/123",
		ListingType:   ListingPurchase,
		PurchasePrice: Ptr(1200.0),
	}
	assert.False(t, ValidListing(rec))

	changed := RepairListingType(&rec)
	assert.True(t, changed)
	assert.Equal(t, ListingRent, rec.ListingType)
	if assert.NotNil(t, rec.PricePCM) {
		assert.Equal(t, 1200.0, *rec.PricePCM)
	}
	assert.Nil(t, rec.PurchasePrice)
	assert.True(t, ValidListing(rec))
}

func TestRepairMisclassifiedSaleListing(t *testing.T) {
	t.Parallel()

	rec := PropertyRecord{
		SourceURL:   "https://www.example-homes.co.uk/property-for-sale/9",
		ListingType: ListingRent,
		PricePCM:    Ptr(325000.0),
	}

	patch := ListingRepair(rec)
	assert.Equal(t, Patch{
		FieldListingType:   ListingPurchase,
		FieldPurchasePrice: 325000.0,
		FieldPricePCM:      nil,
	}, patch)
}

func TestRepairLeavesConsistentRecordAlone(t *testing.T) {
	t.Parallel()

	rec := PropertyRecord{
		SourceURL:   "https://www.example-homes.co.uk/to-rent/details/5",
		ListingType: ListingRent,
		PricePCM:    Ptr(950.0),
	}
	assert.True(t, ValidListing(rec))
	assert.False(t, RepairListingType(&rec))
}

func TestRepairInfersTypeFromPriceWhenUntyped(t *testing.T) {
	t.Parallel()

	rec := PropertyRecord{PricePCM: Ptr(700.0)}
	assert.True(t, RepairListingType(&rec))
	assert.Equal(t, ListingRent, rec.ListingType)

	untyped := PropertyRecord{}
	assert.True(t, ListingRepair(untyped).IsEmpty())
}

func TestListingTypeFromURL(t *testing.T) {
	t.Parallel()

	cases := map[string]ListingType{
		"https://x/to-rent/1":          ListingRent,
		"https://x/PROPERTY-TO-RENT/1": ListingRent,
		"https://x/for-sale/2":         ListingPurchase,
		"https://x/details/3":          "",
		"":                             "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, ListingTypeFromURL(raw), raw)
	}
}
