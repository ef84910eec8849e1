package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Tier identifies which pipeline stage owns a field.
type Tier int

const (
	// TierSystem covers freshness metadata and maintenance jobs. It may write any field.
	TierSystem Tier = iota
	TierCore
	TierMarket
	TierOwnership
	TierDerived
)

func (t Tier) String() string {
	switch t {
	case TierSystem:
		return "system"
	case TierCore:
		return "core"
	case TierMarket:
		return "market"
	case TierOwnership:
		return "ownership"
	case TierDerived:
		return "derived"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// TierForPhase maps a pipeline phase number to the tier its adapters write as.
func TierForPhase(phase int) Tier {
	switch phase {
	case 1:
		return TierCore
	case 2:
		return TierMarket
	case 3:
		return TierOwnership
	case 4:
		return TierDerived
	}
	return TierSystem
}

// Ownership describes who may write a field.
//
// The owner tier may refresh a populated value. Any other enrichment tier may
// only fill the field while it is empty. Replace marks Phase-1 columns that an
// upsert overwrites verbatim instead of coalescing with the stored value, when
// the incoming row carries a price (see ReplacesEconomics).
type Ownership struct {
	Tier    Tier
	Replace bool
}

// ReplacesEconomics reports whether upserting rec overwrites the Replace
// columns. A row without any price coalesces them like every other column, so
// a price recovered by enrichment survives a re-ingest of the same listing.
func ReplacesEconomics(rec PropertyRecord) bool {
	return rec.PricePCM != nil || rec.PurchasePrice != nil
}

// FieldOwners is the merge precedence table.
var FieldOwners = map[Field]Ownership{
	FieldSource:    {Tier: TierCore},
	FieldSourceURL: {Tier: TierCore},
	FieldAddress:   {Tier: TierCore},
	FieldPostcode:  {Tier: TierCore},
	FieldLatitude:  {Tier: TierCore},
	FieldLongitude: {Tier: TierCore},
	FieldUPRN:      {Tier: TierCore},

	FieldListingType:   {Tier: TierCore, Replace: true},
	FieldPricePCM:      {Tier: TierCore, Replace: true},
	FieldPurchasePrice: {Tier: TierCore, Replace: true},

	FieldBedrooms:     {Tier: TierCore},
	FieldBathrooms:    {Tier: TierCore},
	FieldPropertyType: {Tier: TierCore},
	FieldFloorArea:    {Tier: TierCore},
	FieldImages:       {Tier: TierCore},
	FieldFloorPlans:   {Tier: TierCore},
	FieldPrimaryImage: {Tier: TierCore},
	FieldHMOStatus:    {Tier: TierCore},
	FieldLicensedHMO:  {Tier: TierCore},

	FieldEstimatedValue:   {Tier: TierMarket},
	FieldRentEstimate:     {Tier: TierMarket},
	FieldRentalYield:      {Tier: TierMarket},
	FieldLastSoldPrice:    {Tier: TierMarket},
	FieldBroadbandMaxMbps: {Tier: TierMarket},

	FieldLicenceNumber:       {Tier: TierOwnership},
	FieldLicenceStatus:       {Tier: TierOwnership},
	FieldLicenceExpiry:       {Tier: TierOwnership},
	FieldLicenceMaxOccupants: {Tier: TierOwnership},
	FieldOwnerName:           {Tier: TierOwnership},
	FieldOwnerType:           {Tier: TierOwnership},
	FieldTitleNumber:         {Tier: TierOwnership},
	FieldTenure:              {Tier: TierOwnership},
	FieldCompanyNumber:       {Tier: TierCore},
	FieldCompanyName:         {Tier: TierOwnership},
	FieldCompanyStatus:       {Tier: TierOwnership},
	FieldDirectors:           {Tier: TierOwnership},
	FieldEPCRating:           {Tier: TierOwnership},
	FieldEPCScore:            {Tier: TierOwnership},
	FieldEPCCertificateURL:   {Tier: TierOwnership},
	FieldEPCExpiry:           {Tier: TierOwnership},
	FieldArticle4:            {Tier: TierOwnership},
	FieldConservationArea:    {Tier: TierOwnership},
	FieldPlanningConstraints: {Tier: TierOwnership},

	FieldHMOScore: {Tier: TierDerived},

	FieldSourceHash:          {Tier: TierSystem},
	FieldLastSynced:          {Tier: TierSystem},
	FieldLastIngestedAt:      {Tier: TierSystem},
	FieldIsStale:             {Tier: TierSystem},
	FieldGeocodedAt:          {Tier: TierSystem},
	FieldValuationEnrichedAt: {Tier: TierSystem},
	FieldListingMatchedAt:    {Tier: TierSystem},
	FieldLicenceCheckedAt:    {Tier: TierSystem},
	FieldCompanyEnrichedAt:   {Tier: TierSystem},
	FieldTitleEnrichedAt:     {Tier: TierSystem},
	FieldEPCEnrichedAt:       {Tier: TierSystem},
	FieldPlanningEnrichedAt:  {Tier: TierSystem},
	FieldClassifiedAt:        {Tier: TierSystem},
}

// Merge returns the subset of patch that tier is allowed to write onto rec and
// that actually changes it. Identity columns are never patched. Fields with a
// value of the wrong type are dropped and reported in the returned error; the
// returned patch is still usable.
func Merge(rec PropertyRecord, patch Patch, tier Tier) (Patch, error) {
	out := Patch{}
	var errs []error

	for _, f := range patch.Fields() {
		v := patch[f]
		own, ok := FieldOwners[f]
		if !ok {
			if f != FieldID && f != FieldExternalID {
				errs = append(errs, fmt.Errorf("field %s has no owner", f))
			}
			continue
		}

		current, populated := rec.Get(f)
		mayOverwrite := tier == TierSystem || own.Tier == tier

		if isNil(v) {
			if populated && mayOverwrite {
				out[f] = nil
			}
			continue
		}

		var scratch PropertyRecord
		if err := scratch.Apply(Patch{f: v}); err != nil {
			errs = append(errs, err)
			continue
		}
		next, nextPopulated := scratch.Get(f)
		if !nextPopulated {
			// Empty strings and slices carry no information.
			continue
		}

		if populated {
			if valuesEqual(current, next) || !mayOverwrite {
				continue
			}
		}
		out[f] = v
	}

	return out, errors.Join(errs...)
}

// Fingerprint hashes the Phase-1 content of a record so that re-ingesting an
// identical upstream row can be detected and reported as unchanged.
func Fingerprint(rec PropertyRecord) string {
	values := make([]any, 0, len(fieldsOrder))
	for _, f := range fieldsOrder {
		own, ok := FieldOwners[f]
		if !ok || own.Tier == TierSystem {
			continue
		}
		v, populated := rec.Get(f)
		if !populated {
			values = append(values, nil)
			continue
		}
		values = append(values, []any{string(f), v})
	}

	raw, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
