package domain

import "strings"

var (
	rentURLMarkers     = []string{"/to-rent/", "/property-to-rent/", "/to-let/"}
	purchaseURLMarkers = []string{"/for-sale/", "/property-for-sale/"}
)

// ListingTypeFromURL infers the listing type from a marketplace URL path.
// It returns "" when the URL carries no marker.
func ListingTypeFromURL(raw string) ListingType {
	lower := strings.ToLower(raw)
	for _, m := range rentURLMarkers {
		if strings.Contains(lower, m) {
			return ListingRent
		}
	}
	for _, m := range purchaseURLMarkers {
		if strings.Contains(lower, m) {
			return ListingPurchase
		}
	}
	return ""
}

// ValidListing checks the listing-type and price invariant.
func ValidListing(r PropertyRecord) bool {
	if inferred := ListingTypeFromURL(r.SourceURL); inferred != "" && inferred != r.ListingType {
		return false
	}
	switch r.ListingType {
	case ListingRent:
		return r.PricePCM != nil && r.PurchasePrice == nil
	case ListingPurchase:
		return r.PurchasePrice != nil && r.PricePCM == nil
	case "":
		return r.PricePCM == nil || r.PurchasePrice == nil
	}
	return false
}

// ListingRepair computes the patch that restores the listing invariant. The
// source URL wins over the stored type; the price moves to the column that
// matches the corrected type. An empty patch means the record is consistent.
func ListingRepair(r PropertyRecord) Patch {
	target := ListingTypeFromURL(r.SourceURL)
	if target == "" {
		target = r.ListingType
	}
	if target == "" {
		switch {
		case r.PricePCM != nil && r.PurchasePrice == nil:
			target = ListingRent
		case r.PurchasePrice != nil && r.PricePCM == nil:
			target = ListingPurchase
		default:
			return Patch{}
		}
	}

	patch := Patch{}
	if r.ListingType != target {
		patch[FieldListingType] = target
	}

	switch target {
	case ListingRent:
		if r.PurchasePrice != nil {
			if r.PricePCM == nil {
				patch[FieldPricePCM] = *r.PurchasePrice
			}
			patch[FieldPurchasePrice] = nil
		}
	case ListingPurchase:
		if r.PricePCM != nil {
			if r.PurchasePrice == nil {
				patch[FieldPurchasePrice] = *r.PricePCM
			}
			patch[FieldPricePCM] = nil
		}
	}
	return patch
}

// RepairListingType applies ListingRepair in place and reports whether the
// record changed.
func RepairListingType(r *PropertyRecord) bool {
	patch := ListingRepair(*r)
	if patch.IsEmpty() {
		return false
	}
	// Repair patches only carry values of the record's own types.
	_ = r.Apply(patch)
	return true
}
