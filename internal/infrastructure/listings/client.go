// Package listings talks to the marketplace listing-search API. It is both a
// Phase-1 source and the searcher behind the listing matcher.
package listings

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/infrastructure/httpx"
	"PropertyScanner/internal/ports"
)

// SourceName is the adapter and record source name.
const SourceName = "listings"

// Config holds the listings API endpoint and credentials.
type Config struct {
	BaseURL      string
	APIKey       string
	RadiusMiles  float64
	PageSize     int
	RequestDelay time.Duration
}

// Client implements the listings source adapter.
type Client struct {
	api    *httpx.Client
	cfg    Config
	logger *slog.Logger
}

var (
	_ ports.SourceAdapter   = (*Client)(nil)
	_ ports.ListingSearcher = (*Client)(nil)
	_ ports.Configurable    = (*Client)(nil)
	_ ports.Throttled       = (*Client)(nil)
)

// New builds a listings client. Extra options reach the HTTP layer.
func New(cfg Config, logger *slog.Logger, opts ...httpx.Option) *Client {
	if cfg.RadiusMiles <= 0 {
		cfg.RadiusMiles = 0.5
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts = append([]httpx.Option{httpx.WithAuth(httpx.Bearer(cfg.APIKey))}, opts...)
	return &Client{
		api:    httpx.New(cfg.BaseURL, opts...),
		cfg:    cfg,
		logger: logger,
	}
}

// Name identifies the adapter.
func (c *Client) Name() string {
	return SourceName
}

// Configured reports whether an endpoint and key are set.
func (c *Client) Configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.APIKey != ""
}

// RequestDelay spaces listing requests.
func (c *Client) RequestDelay() time.Duration {
	return c.cfg.RequestDelay
}

type listingDTO struct {
	ID           string   `json:"id"`
	URL          string   `json:"url"`
	Address      string   `json:"address"`
	Postcode     string   `json:"postcode"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Bedrooms     *int     `json:"bedrooms"`
	Bathrooms    *int     `json:"bathrooms"`
	PropertyType string   `json:"property_type"`
	FloorAreaSqm *float64 `json:"floor_area_sqm"`
	ListingType  string   `json:"listing_type"`
	Price        *float64 `json:"price"`
	Images       []string `json:"images"`
	FloorPlans   []string `json:"floor_plans"`
	Status       string   `json:"status"`
}

type searchResponse struct {
	Listings []listingDTO `json:"listings"`
}

// Fetch searches around the query postcode. A query without a listing type
// searches rentals and sales.
func (c *Client) Fetch(ctx context.Context, query domain.SourceQuery) ([]domain.PropertyRecord, error) {
	if !c.Configured() {
		return nil, domain.ErrNotConfigured
	}

	types := []domain.ListingType{query.ListingType}
	if query.ListingType == "" {
		types = []domain.ListingType{domain.ListingRent, domain.ListingPurchase}
	}

	var records []domain.PropertyRecord
	for _, lt := range types {
		dtos, err := c.search(ctx, ports.ListingQuery{
			Postcode:    query.Postcode,
			RadiusMiles: query.RadiusMiles,
			ListingType: lt,
			PageSize:    query.PageSize,
		})
		if err != nil {
			return records, err
		}
		for _, d := range dtos {
			if d.ID == "" {
				continue
			}
			records = append(records, toRecord(d, lt))
		}
	}

	c.logger.Debug("listings fetched", "postcode", query.Postcode, "records", len(records))
	return records, nil
}

// Search returns live listings for the listing matcher.
func (c *Client) Search(ctx context.Context, query ports.ListingQuery) ([]domain.Listing, error) {
	if !c.Configured() {
		return nil, domain.ErrNotConfigured
	}
	dtos, err := c.search(ctx, query)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Listing, 0, len(dtos))
	for _, d := range dtos {
		lt := listingType(d.ListingType, query.ListingType)
		out = append(out, domain.Listing{
			ID:          d.ID,
			URL:         d.URL,
			Address:     d.Address,
			Postcode:    domain.FormatPostcode(d.Postcode),
			Latitude:    d.Latitude,
			Longitude:   d.Longitude,
			Bedrooms:    d.Bedrooms,
			ListingType: lt,
			Price:       d.Price,
			Images:      d.Images,
			FloorPlans:  d.FloorPlans,
			Status:      d.Status,
		})
	}
	return out, nil
}

func (c *Client) search(ctx context.Context, query ports.ListingQuery) ([]listingDTO, error) {
	radius := query.RadiusMiles
	if radius <= 0 {
		radius = c.cfg.RadiusMiles
	}
	size := query.PageSize
	if size <= 0 {
		size = c.cfg.PageSize
	}

	params := url.Values{}
	if pc := strings.TrimSpace(query.Postcode); pc != "" {
		params.Set("postcode", domain.FormatPostcode(pc))
	}
	params.Set("radius", strconv.FormatFloat(radius, 'f', -1, 64))
	params.Set("page_size", strconv.Itoa(size))
	switch query.ListingType {
	case domain.ListingRent:
		params.Set("type", "rent")
	case domain.ListingPurchase:
		params.Set("type", "sale")
	}
	if query.Bedrooms != nil {
		params.Set("bedrooms", strconv.Itoa(*query.Bedrooms))
	}

	var resp searchResponse
	if err := c.api.GetJSON(ctx, "/listings", params, &resp); err != nil {
		return nil, fmt.Errorf("search listings %s: %w", query.Postcode, err)
	}
	return resp.Listings, nil
}

func listingType(raw string, requested domain.ListingType) domain.ListingType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "rent", "rental", "to-rent", "let":
		return domain.ListingRent
	case "sale", "purchase", "for-sale", "buy":
		return domain.ListingPurchase
	}
	return requested
}

func toRecord(d listingDTO, requested domain.ListingType) domain.PropertyRecord {
	rec := domain.PropertyRecord{
		ExternalID:   SourceName + ":" + d.ID,
		Source:       SourceName,
		SourceURL:    d.URL,
		Address:      strings.TrimSpace(d.Address),
		Postcode:     domain.FormatPostcode(d.Postcode),
		Latitude:     d.Latitude,
		Longitude:    d.Longitude,
		Bedrooms:     d.Bedrooms,
		Bathrooms:    d.Bathrooms,
		PropertyType: strings.ToLower(strings.TrimSpace(d.PropertyType)),
		FloorAreaSqm: d.FloorAreaSqm,
		ListingType:  listingType(d.ListingType, requested),
		Images:       d.Images,
		FloorPlans:   d.FloorPlans,
	}
	if rec.Postcode == "" {
		rec.Postcode = domain.ExtractPostcode(rec.Address)
	}

	switch rec.ListingType {
	case domain.ListingRent:
		rec.PricePCM = d.Price
	case domain.ListingPurchase:
		rec.PurchasePrice = d.Price
	}
	if len(d.Images) > 0 {
		rec.PrimaryImage = d.Images[0]
	}
	return rec
}
