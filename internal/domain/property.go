package domain

import "time"

// ListingType distinguishes rental listings from sales.
type ListingType string

const (
	ListingRent     ListingType = "rent"
	ListingPurchase ListingType = "purchase"
)

// PropertyRecord is the canonical entity assembled from every upstream source.
// Pointer fields are optional: nil means "unknown", which is different from an
// explicit zero or false.
type PropertyRecord struct {
	ID         string `db:"id"`
	ExternalID string `db:"external_id"`
	Source     string `db:"source"`
	SourceURL  string `db:"source_url"`

	Address   string   `db:"address"`
	Postcode  string   `db:"postcode"`
	Latitude  *float64 `db:"latitude"`
	Longitude *float64 `db:"longitude"`
	UPRN      string   `db:"uprn"`

	ListingType   ListingType `db:"listing_type"`
	PricePCM      *float64    `db:"price_pcm"`
	PurchasePrice *float64    `db:"purchase_price"`

	Bedrooms     *int     `db:"bedrooms"`
	Bathrooms    *int     `db:"bathrooms"`
	PropertyType string   `db:"property_type"`
	FloorAreaSqm *float64 `db:"floor_area_sqm"`

	HMOStatus           string     `db:"hmo_status"`
	LicensedHMO         *bool      `db:"licensed_hmo"`
	LicenceNumber       string     `db:"licence_number"`
	LicenceStatus       string     `db:"licence_status"`
	LicenceExpiry       *time.Time `db:"licence_expiry"`
	LicenceMaxOccupants *int       `db:"licence_max_occupants"`
	HMOScore            *int       `db:"hmo_score"`

	OwnerName     string   `db:"owner_name"`
	OwnerType     string   `db:"owner_type"`
	TitleNumber   string   `db:"title_number"`
	Tenure        string   `db:"tenure"`
	CompanyNumber string   `db:"company_number"`
	CompanyName   string   `db:"company_name"`
	CompanyStatus string   `db:"company_status"`
	Directors     []string `db:"directors"`

	EPCRating         string     `db:"epc_rating"`
	EPCScore          *int       `db:"epc_score"`
	EPCCertificateURL string     `db:"epc_certificate_url"`
	EPCExpiry         *time.Time `db:"epc_expiry"`

	Article4            *bool    `db:"article4"`
	ConservationArea    *bool    `db:"conservation_area"`
	PlanningConstraints []string `db:"planning_constraints"`
	BroadbandMaxMbps    *float64 `db:"broadband_max_mbps"`

	EstimatedValue *float64 `db:"estimated_value"`
	RentEstimate   *float64 `db:"rent_estimate"`
	RentalYield    *float64 `db:"rental_yield"`
	LastSoldPrice  *float64 `db:"last_sold_price"`

	Images       []string `db:"images"`
	FloorPlans   []string `db:"floor_plans"`
	PrimaryImage string   `db:"primary_image"`

	SourceHash     string     `db:"source_hash"`
	LastSynced     *time.Time `db:"last_synced"`
	LastIngestedAt *time.Time `db:"last_ingested_at"`
	IsStale        bool       `db:"is_stale"`

	GeocodedAt          *time.Time `db:"geocoded_at"`
	ValuationEnrichedAt *time.Time `db:"propertydata_enriched_at"`
	ListingMatchedAt    *time.Time `db:"listing_matched_at"`
	LicenceCheckedAt    *time.Time `db:"licence_checked_at"`
	CompanyEnrichedAt   *time.Time `db:"company_enriched_at"`
	TitleEnrichedAt     *time.Time `db:"title_enriched_at"`
	EPCEnrichedAt       *time.Time `db:"epc_enriched_at"`
	PlanningEnrichedAt  *time.Time `db:"planning_enriched_at"`
	ClassifiedAt        *time.Time `db:"classified_at"`
}

// HasCoordinates reports whether both latitude and longitude are known.
func (r PropertyRecord) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Listing is a live marketplace listing returned by a listings search.
type Listing struct {
	ID          string
	URL         string
	Address     string
	Postcode    string
	Latitude    *float64
	Longitude   *float64
	Bedrooms    *int
	ListingType ListingType
	Price       *float64
	Images      []string
	FloorPlans  []string
	Status      string
}

// SourceQuery parameterises a Phase-1 fetch.
type SourceQuery struct {
	Postcode    string
	Area        string
	RadiusMiles float64
	PageSize    int
	ListingType ListingType
}

// UpsertOutcome tells the manager what an upsert did to the store.
type UpsertOutcome int

const (
	OutcomeCreated UpsertOutcome = iota
	OutcomeUpdated
	OutcomeUnchanged
)

func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// IngestionResult summarises one source's contribution to a run.
type IngestionResult struct {
	Source  string
	Phase   int
	Created int
	Updated int
	Skipped int
	Errors  []string
}

// Ptr returns a pointer to v. Handy for building records.
func Ptr[T any](v T) *T {
	return &v
}
