// Package listingmatch links stored properties to live marketplace listings.
package listingmatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PropertyScanner/internal/cache"
	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/matching"
	"PropertyScanner/internal/ports"
	"PropertyScanner/internal/throttle"
)

const (
	defaultRadiusMiles  = 0.25
	defaultPageSize     = 50
	defaultStaticMapURL = "https://maps.googleapis.com/maps/api/staticmap"
	defaultPlaceholder  = "/static/img/property-placeholder.png"
)

// Config holds the matcher's endpoints and fallbacks.
type Config struct {
	// SearchBaseURL is the marketplace search page used for fallback links.
	SearchBaseURL string
	MapsAPIKey    string
	StaticMapURL  string
	Placeholder   string
	RadiusMiles   float64
	PageSize      int
	CacheTTL      time.Duration
}

// Query describes the property to look up.
type Query struct {
	Address     string
	Postcode    string
	Bedrooms    *int
	Latitude    *float64
	Longitude   *float64
	ListingType domain.ListingType
}

// QueryFromRecord builds a lookup for a stored property.
func QueryFromRecord(rec domain.PropertyRecord) Query {
	return Query{
		Address:     rec.Address,
		Postcode:    rec.Postcode,
		Bedrooms:    rec.Bedrooms,
		Latitude:    rec.Latitude,
		Longitude:   rec.Longitude,
		ListingType: rec.ListingType,
	}
}

func (q Query) candidate() matching.Candidate {
	c := matching.Candidate{Address: q.Address, Bedrooms: q.Bedrooms}
	if q.Latitude != nil && q.Longitude != nil {
		c.Coord = &matching.Coord{Lat: *q.Latitude, Lng: *q.Longitude}
	}
	return c
}

// CandidateFromRecord exposes a stored property to the shared scorer.
func CandidateFromRecord(rec domain.PropertyRecord) matching.Candidate {
	return QueryFromRecord(rec).candidate()
}

// CandidateFromListing exposes a marketplace listing to the shared scorer.
func CandidateFromListing(l domain.Listing) matching.Candidate {
	c := matching.Candidate{Address: l.Address, Bedrooms: l.Bedrooms}
	if l.Latitude != nil && l.Longitude != nil {
		c.Coord = &matching.Coord{Lat: *l.Latitude, Lng: *l.Longitude}
	}
	return c
}

// Match is the outcome of a lookup. When Found is false, URL points at a
// search-results page instead of a listing.
type Match struct {
	Found      bool
	Listing    *domain.Listing
	URL        string
	Images     []string
	FloorPlans []string
	Price      *float64
	Score      int
	Confidence float64
}

// BookingURL returns the link a user should follow for the property.
func (m Match) BookingURL() string {
	return m.URL
}

// Matcher finds the best live listing for a property.
type Matcher struct {
	searcher ports.ListingSearcher
	scorer   matching.Scorer
	cfg      Config
	cache    *cache.TTL[string, []domain.Listing]
	limiter  throttle.Limiter
	logger   *slog.Logger
}

// Option customises a Matcher.
type Option func(*Matcher)

// WithLimiter spaces listing searches.
func WithLimiter(l throttle.Limiter) Option {
	return func(m *Matcher) { m.limiter = l }
}

// WithClock injects the cache time source.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) {
		m.cache = cache.NewTTL[string, []domain.Listing](m.cfg.CacheTTL, cache.WithClock(now), cache.WithMaxEntries(1024))
	}
}

// NewMatcher builds a matcher. A nil searcher makes every lookup fall back to
// a search-results link.
func NewMatcher(searcher ports.ListingSearcher, cfg Config, logger *slog.Logger, opts ...Option) *Matcher {
	if cfg.RadiusMiles <= 0 {
		cfg.RadiusMiles = defaultRadiusMiles
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.StaticMapURL == "" {
		cfg.StaticMapURL = defaultStaticMapURL
	}
	if cfg.Placeholder == "" {
		cfg.Placeholder = defaultPlaceholder
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	m := &Matcher{
		searcher: searcher,
		scorer:   matching.NewScorer(),
		cfg:      cfg,
		limiter:  throttle.Unlimited{},
		logger:   logger,
	}
	m.cache = cache.NewTTL[string, []domain.Listing](cfg.CacheTTL, cache.WithMaxEntries(1024))
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Configured reports whether a listings API is wired.
func (m *Matcher) Configured() bool {
	return m.searcher != nil
}

// Find looks up q. On a search failure the fallback match is still returned
// together with the error.
func (m *Matcher) Find(ctx context.Context, q Query) (Match, error) {
	if m.searcher == nil || strings.TrimSpace(q.Postcode) == "" {
		return m.fallback(q), nil
	}

	listings, err := m.listings(ctx, q)
	if err != nil {
		return m.fallback(q), err
	}
	return m.pick(q, listings), nil
}

// FindBatch resolves every query, searching each postcode once. Results keep
// the order of queries.
func (m *Matcher) FindBatch(ctx context.Context, queries []Query) ([]Match, error) {
	out := make([]Match, len(queries))
	groups := map[string][]int{}
	var order []string
	for i, q := range queries {
		key := searchKey(q)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	var errs []string
	for _, key := range order {
		idxs := groups[key]
		first := queries[idxs[0]]
		if m.searcher == nil || strings.TrimSpace(first.Postcode) == "" {
			for _, i := range idxs {
				out[i] = m.fallback(queries[i])
			}
			continue
		}

		listings, err := m.listings(ctx, first)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", first.Postcode, err))
			for _, i := range idxs {
				out[i] = m.fallback(queries[i])
			}
			continue
		}
		for _, i := range idxs {
			out[i] = m.pick(queries[i], listings)
		}
	}

	if len(errs) > 0 {
		return out, fmt.Errorf("listing search failed for %s", strings.Join(errs, "; "))
	}
	return out, nil
}

// BestImage picks the image to show for a property: the listing photo, then a
// static map when coordinates and a maps key exist, then the placeholder.
func (m *Matcher) BestImage(match Match, q Query) string {
	if len(match.Images) > 0 {
		return match.Images[0]
	}
	if u := m.StaticMapURL(q); u != "" {
		return u
	}
	return m.cfg.Placeholder
}

// StaticMapURL renders a map tile URL centred on the property, or "" when
// coordinates or the maps key are missing.
func (m *Matcher) StaticMapURL(q Query) string {
	if q.Latitude == nil || q.Longitude == nil || m.cfg.MapsAPIKey == "" {
		return ""
	}
	center := strconv.FormatFloat(*q.Latitude, 'f', 6, 64) + "," + strconv.FormatFloat(*q.Longitude, 'f', 6, 64)
	v := url.Values{}
	v.Set("center", center)
	v.Set("zoom", "17")
	v.Set("size", "640x400")
	v.Set("markers", center)
	v.Set("key", m.cfg.MapsAPIKey)
	return m.cfg.StaticMapURL + "?" + v.Encode()
}

// SearchURL builds the marketplace search-results link for q.
func (m *Matcher) SearchURL(q Query) string {
	base := strings.TrimRight(m.cfg.SearchBaseURL, "/")
	switch q.ListingType {
	case domain.ListingRent:
		base += "/to-rent/"
	case domain.ListingPurchase:
		base += "/for-sale/"
	}
	v := url.Values{}
	v.Set("searchLocation", domain.FormatPostcode(q.Postcode))
	v.Set("radius", strconv.FormatFloat(m.cfg.RadiusMiles, 'f', -1, 64))
	return base + "?" + v.Encode()
}

func (m *Matcher) fallback(q Query) Match {
	return Match{URL: m.SearchURL(q)}
}

func (m *Matcher) pick(q Query, listings []domain.Listing) Match {
	candidates := make([]matching.Candidate, len(listings))
	for i, l := range listings {
		candidates[i] = CandidateFromListing(l)
	}

	idx, score, ok := m.scorer.Best(q.candidate(), candidates)
	if !ok {
		m.logger.Debug("no listing above threshold", "postcode", q.Postcode, "candidates", len(listings))
		return m.fallback(q)
	}

	l := listings[idx]
	return Match{
		Found:      true,
		Listing:    &l,
		URL:        l.URL,
		Images:     l.Images,
		FloorPlans: l.FloorPlans,
		Price:      l.Price,
		Score:      score,
		Confidence: matching.Confidence(score),
	}
}

func (m *Matcher) listings(ctx context.Context, q Query) ([]domain.Listing, error) {
	return m.cache.GetOrLoad(searchKey(q), func() ([]domain.Listing, error) {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		found, err := m.searcher.Search(ctx, ports.ListingQuery{
			Postcode:    domain.FormatPostcode(q.Postcode),
			RadiusMiles: m.cfg.RadiusMiles,
			ListingType: q.ListingType,
			PageSize:    m.cfg.PageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("search listings: %w", err)
		}
		active := found[:0:0]
		for _, l := range found {
			if isActive(l.Status) {
				active = append(active, l)
			}
		}
		m.logger.Debug("listings searched", "postcode", q.Postcode, "found", len(found), "active", len(active))
		return active, nil
	})
}

func isActive(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "active", "available", "live":
		return true
	}
	return false
}

func searchKey(q Query) string {
	return domain.NormalizePostcode(q.Postcode) + "|" + string(q.ListingType)
}
