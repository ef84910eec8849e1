package domain

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Field is a property column name. Patches and filters are keyed by it.
type Field string

const (
	FieldID         Field = "id"
	FieldExternalID Field = "external_id"
	FieldSource     Field = "source"
	FieldSourceURL  Field = "source_url"

	FieldAddress   Field = "address"
	FieldPostcode  Field = "postcode"
	FieldLatitude  Field = "latitude"
	FieldLongitude Field = "longitude"
	FieldUPRN      Field = "uprn"

	FieldListingType   Field = "listing_type"
	FieldPricePCM      Field = "price_pcm"
	FieldPurchasePrice Field = "purchase_price"

	FieldBedrooms     Field = "bedrooms"
	FieldBathrooms    Field = "bathrooms"
	FieldPropertyType Field = "property_type"
	FieldFloorArea    Field = "floor_area_sqm"

	FieldHMOStatus           Field = "hmo_status"
	FieldLicensedHMO         Field = "licensed_hmo"
	FieldLicenceNumber       Field = "licence_number"
	FieldLicenceStatus       Field = "licence_status"
	FieldLicenceExpiry       Field = "licence_expiry"
	FieldLicenceMaxOccupants Field = "licence_max_occupants"
	FieldHMOScore            Field = "hmo_score"

	FieldOwnerName     Field = "owner_name"
	FieldOwnerType     Field = "owner_type"
	FieldTitleNumber   Field = "title_number"
	FieldTenure        Field = "tenure"
	FieldCompanyNumber Field = "company_number"
	FieldCompanyName   Field = "company_name"
	FieldCompanyStatus Field = "company_status"
	FieldDirectors     Field = "directors"

	FieldEPCRating         Field = "epc_rating"
	FieldEPCScore          Field = "epc_score"
	FieldEPCCertificateURL Field = "epc_certificate_url"
	FieldEPCExpiry         Field = "epc_expiry"

	FieldArticle4            Field = "article4"
	FieldConservationArea    Field = "conservation_area"
	FieldPlanningConstraints Field = "planning_constraints"
	FieldBroadbandMaxMbps    Field = "broadband_max_mbps"

	FieldEstimatedValue Field = "estimated_value"
	FieldRentEstimate   Field = "rent_estimate"
	FieldRentalYield    Field = "rental_yield"
	FieldLastSoldPrice  Field = "last_sold_price"

	FieldImages       Field = "images"
	FieldFloorPlans   Field = "floor_plans"
	FieldPrimaryImage Field = "primary_image"

	FieldSourceHash     Field = "source_hash"
	FieldLastSynced     Field = "last_synced"
	FieldLastIngestedAt Field = "last_ingested_at"
	FieldIsStale        Field = "is_stale"

	FieldGeocodedAt          Field = "geocoded_at"
	FieldValuationEnrichedAt Field = "propertydata_enriched_at"
	FieldListingMatchedAt    Field = "listing_matched_at"
	FieldLicenceCheckedAt    Field = "licence_checked_at"
	FieldCompanyEnrichedAt   Field = "company_enriched_at"
	FieldTitleEnrichedAt     Field = "title_enriched_at"
	FieldEPCEnrichedAt       Field = "epc_enriched_at"
	FieldPlanningEnrichedAt  Field = "planning_enriched_at"
	FieldClassifiedAt        Field = "classified_at"
)

var (
	recordType  = reflect.TypeOf(PropertyRecord{})
	fieldIndex  = map[Field]int{}
	fieldsOrder []Field
)

func init() {
	for i := 0; i < recordType.NumField(); i++ {
		tag := recordType.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		fieldIndex[Field(tag)] = i
		fieldsOrder = append(fieldsOrder, Field(tag))
	}
}

// Fields lists every column in declaration order.
func Fields() []Field {
	out := make([]Field, len(fieldsOrder))
	copy(out, fieldsOrder)
	return out
}

// KnownField reports whether f names a record column.
func KnownField(f Field) bool {
	_, ok := fieldIndex[f]
	return ok
}

// Get returns the dereferenced value of f and whether it is populated.
// Empty strings, empty slices and nil pointers count as unpopulated.
func (r PropertyRecord) Get(f Field) (any, bool) {
	idx, ok := fieldIndex[f]
	if !ok {
		return nil, false
	}
	v := reflect.ValueOf(r).Field(idx)
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil, false
		}
		return v.Elem().Interface(), true
	case reflect.Slice:
		if v.Len() == 0 {
			return nil, false
		}
		return v.Interface(), true
	case reflect.String:
		return v.Interface(), v.Len() > 0
	default:
		return v.Interface(), true
	}
}

// Apply writes every patch entry onto the record. A nil value clears the field.
func (r *PropertyRecord) Apply(p Patch) error {
	rv := reflect.ValueOf(r).Elem()
	for _, f := range p.Fields() {
		idx, ok := fieldIndex[f]
		if !ok {
			return fmt.Errorf("apply %s: unknown field", f)
		}
		if err := setField(rv.Field(idx), p[f]); err != nil {
			return fmt.Errorf("apply %s: %w", f, err)
		}
	}
	return nil
}

func setField(dst reflect.Value, value any) error {
	if isNil(value) {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	target := dst.Type()
	if target.Kind() == reflect.Pointer {
		target = target.Elem()
	}

	src := reflect.ValueOf(value)
	if src.Kind() == reflect.Pointer {
		src = src.Elem()
	}

	if (target.Kind() == reflect.String) != (src.Kind() == reflect.String) {
		return fmt.Errorf("cannot use %s as %s", src.Type(), target)
	}
	if !src.Type().ConvertibleTo(target) {
		return fmt.Errorf("cannot use %s as %s", src.Type(), target)
	}

	converted := src.Convert(target)
	if target.Kind() == reflect.Slice {
		cp := reflect.MakeSlice(target, converted.Len(), converted.Len())
		reflect.Copy(cp, converted)
		converted = cp
	}

	if dst.Kind() == reflect.Pointer {
		ptr := reflect.New(target)
		ptr.Elem().Set(converted)
		dst.Set(ptr)
		return nil
	}
	dst.Set(converted)
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func valuesEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// Patch is a partial record keyed by column. An absent key leaves the stored
// value untouched; a nil value is an explicit null.
type Patch map[Field]any

// IsEmpty reports whether the patch addresses no field.
func (p Patch) IsEmpty() bool {
	return len(p) == 0
}

// Fields returns the addressed fields sorted by name.
func (p Patch) Fields() []Field {
	out := make([]Field, 0, len(p))
	for f := range p {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns a shallow copy.
func (p Patch) Clone() Patch {
	out := make(Patch, len(p))
	for f, v := range p {
		out[f] = v
	}
	return out
}

// Touches reports whether the patch addresses any field other than those listed.
func (p Patch) Touches(ignore ...Field) bool {
	skip := make(map[Field]struct{}, len(ignore))
	for _, f := range ignore {
		skip[f] = struct{}{}
	}
	for f := range p {
		if _, ok := skip[f]; !ok {
			return true
		}
	}
	return false
}
