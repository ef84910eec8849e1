// Package geocoding resolves coordinates for records that lack them.
package geocoding

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"googlemaps.github.io/maps"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/ports"
)

// SourceName is the adapter name.
const SourceName = "geocoding"

// Config holds the Google Maps credentials.
type Config struct {
	APIKey       string
	BaseURL      string
	RequestDelay time.Duration
	HTTPClient   *http.Client
}

// Geocoder is a Phase-2 enrichment adapter backed by the Geocoding API.
type Geocoder struct {
	client *maps.Client
	delay  time.Duration
	logger *slog.Logger
}

var (
	_ ports.EnrichmentAdapter = (*Geocoder)(nil)
	_ ports.Configurable      = (*Geocoder)(nil)
	_ ports.Throttled         = (*Geocoder)(nil)
	_ ports.Prerequisite      = (*Geocoder)(nil)
)

// New builds the adapter. Without an API key it stays unconfigured.
func New(cfg Config, logger *slog.Logger) (*Geocoder, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	g := &Geocoder{delay: cfg.RequestDelay, logger: logger}
	if cfg.APIKey == "" {
		return g, nil
	}

	opts := []maps.ClientOption{maps.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, maps.WithHTTPClient(cfg.HTTPClient))
	}
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *Geocoder) Name() string { return SourceName }

func (g *Geocoder) Configured() bool { return g.client != nil }

func (g *Geocoder) RequestDelay() time.Duration { return g.delay }

func (g *Geocoder) Cursor() domain.Field { return domain.FieldGeocodedAt }

// Fetch is a no-op: geocoding only enriches existing records.
func (g *Geocoder) Fetch(context.Context, domain.SourceQuery) ([]domain.PropertyRecord, error) {
	return nil, nil
}

// Eligible keeps records with an address or postcode but no coordinates.
func (g *Geocoder) Eligible(rec domain.PropertyRecord) bool {
	if rec.HasCoordinates() {
		return false
	}
	return strings.TrimSpace(rec.Address) != "" || strings.TrimSpace(rec.Postcode) != ""
}

func (g *Geocoder) Requires() (present, missing []domain.Field) {
	return nil, []domain.Field{domain.FieldLatitude}
}

// Enrich geocodes the record's address. ZERO_RESULTS yields an empty patch.
func (g *Geocoder) Enrich(ctx context.Context, rec domain.PropertyRecord) (domain.Patch, error) {
	if g.client == nil {
		return domain.Patch{}, nil
	}

	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Address:    lookupAddress(rec),
		Region:     "uk",
		Components: map[maps.Component]string{maps.ComponentCountry: "GB"},
	})
	if err != nil {
		return nil, fmt.Errorf("geocode %s: %w", rec.ExternalID, err)
	}
	if len(results) == 0 {
		g.logger.Debug("no geocoding result", "external_id", rec.ExternalID)
		return domain.Patch{}, nil
	}

	best := results[0]
	patch := domain.Patch{
		domain.FieldLatitude:  best.Geometry.Location.Lat,
		domain.FieldLongitude: best.Geometry.Location.Lng,
	}
	if strings.TrimSpace(rec.Postcode) == "" {
		if pc := postalCode(best.AddressComponents); pc != "" {
			patch[domain.FieldPostcode] = pc
		}
	}
	return patch, nil
}

func lookupAddress(rec domain.PropertyRecord) string {
	addr := strings.TrimSpace(rec.Address)
	pc := strings.TrimSpace(rec.Postcode)
	switch {
	case addr == "":
		return pc
	case pc == "" || strings.Contains(domain.NormalizePostcode(addr), domain.NormalizePostcode(pc)):
		return addr
	}
	return addr + ", " + pc
}

func postalCode(components []maps.AddressComponent) string {
	for _, c := range components {
		for _, t := range c.Types {
			if t == "postal_code" {
				return domain.FormatPostcode(c.LongName)
			}
		}
	}
	return ""
}
