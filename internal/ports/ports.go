package ports

import (
	"context"
	"time"

	"PropertyScanner/internal/domain"
)

// SourceAdapter pulls property records from one upstream source.
type SourceAdapter interface {
	Name() string
	Fetch(ctx context.Context, query domain.SourceQuery) ([]domain.PropertyRecord, error)
}

// EnrichmentAdapter turns an existing record into a partial patch. An adapter
// that has no credentials or finds no match returns an empty patch and no error.
type EnrichmentAdapter interface {
	SourceAdapter
	// Eligible reports whether the record carries the inputs the adapter needs.
	Eligible(rec domain.PropertyRecord) bool
	// Cursor names the timestamp column marking when the adapter last visited a record.
	Cursor() domain.Field
	Enrich(ctx context.Context, rec domain.PropertyRecord) (domain.Patch, error)
}

// Configurable is implemented by adapters that may run without credentials.
type Configurable interface {
	Configured() bool
}

// Prerequisite is implemented by enrichment adapters whose Eligible depends on
// columns being populated (present) or empty (missing). The manager adds them
// to the candidate query.
type Prerequisite interface {
	Requires() (present, missing []domain.Field)
}

// Throttled is implemented by adapters that need their own request spacing.
type Throttled interface {
	RequestDelay() time.Duration
}

// Filter selects records from the store.
type Filter struct {
	IncludeStale bool
	Source       string
	Postcode     string
	Missing      []domain.Field
	Present      []domain.Field
	// CursorField, when set, keeps records whose cursor is null or before CursorBefore.
	CursorField    domain.Field
	CursorBefore   time.Time
	IngestedBefore *time.Time
	Limit          int
}

// RecordStore persists canonical records. Upsert deduplicates on external_id.
type RecordStore interface {
	Upsert(ctx context.Context, rec domain.PropertyRecord) (domain.UpsertOutcome, error)
	Update(ctx context.Context, id string, patch domain.Patch) error
	Select(ctx context.Context, filter Filter) ([]domain.PropertyRecord, error)
}

// ListingQuery searches a marketplace around a postcode.
type ListingQuery struct {
	Postcode    string
	RadiusMiles float64
	ListingType domain.ListingType
	Bedrooms    *int
	PageSize    int
}

// ListingSearcher finds live marketplace listings.
type ListingSearcher interface {
	Search(ctx context.Context, query ListingQuery) ([]domain.Listing, error)
}

// Notifier streams run summaries to an operator channel.
type Notifier interface {
	PublishSummary(ctx context.Context, summary string) error
}

// Metrics records ingestion outcomes.
type Metrics interface {
	ObserveResult(result domain.IngestionResult)
	ObserveRun(elapsed time.Duration)
}

// Scheduler controls when jobs execute.
type Scheduler interface {
	Schedule(spec, name string, job func(ctx context.Context)) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
