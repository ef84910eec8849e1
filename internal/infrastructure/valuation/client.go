// Package valuation enriches records with postcode-level market analytics.
package valuation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PropertyScanner/internal/cache"
	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/infrastructure/httpx"
	"PropertyScanner/internal/matching"
	"PropertyScanner/internal/ports"
)

// SourceName is the adapter name.
const SourceName = "valuation"

const sqmToSqft = 10.7639

// Config holds the analytics API endpoint and key.
type Config struct {
	BaseURL      string
	APIKey       string
	CacheTTL     time.Duration
	RequestDelay time.Duration
}

// Client is a Phase-2 enrichment adapter. Responses are cached per postcode.
type Client struct {
	api    *httpx.Client
	cfg    Config
	cache  *cache.TTL[string, json.RawMessage]
	logger *slog.Logger
}

var (
	_ ports.EnrichmentAdapter = (*Client)(nil)
	_ ports.Configurable      = (*Client)(nil)
	_ ports.Throttled         = (*Client)(nil)
	_ ports.Prerequisite      = (*Client)(nil)
)

// Option customises the client.
type Option func(*Client)

// WithClock injects the cache time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.cache = cache.NewTTL[string, json.RawMessage](c.cfg.CacheTTL, cache.WithClock(now), cache.WithMaxEntries(4096))
	}
}

// WithHTTP passes options to the HTTP layer.
func WithHTTP(opts ...httpx.Option) Option {
	return func(c *Client) {
		all := append([]httpx.Option{httpx.WithAuth(httpx.QueryKey("key", c.cfg.APIKey))}, opts...)
		c.api = httpx.New(c.cfg.BaseURL, all...)
	}
}

// New builds the adapter.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Client{
		api:    httpx.New(cfg.BaseURL, httpx.WithAuth(httpx.QueryKey("key", cfg.APIKey))),
		cfg:    cfg,
		cache:  cache.NewTTL[string, json.RawMessage](cfg.CacheTTL, cache.WithMaxEntries(4096)),
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return SourceName }

func (c *Client) Configured() bool { return c.cfg.BaseURL != "" && c.cfg.APIKey != "" }

func (c *Client) RequestDelay() time.Duration { return c.cfg.RequestDelay }

func (c *Client) Cursor() domain.Field { return domain.FieldValuationEnrichedAt }

// Fetch is a no-op: valuation only enriches existing records.
func (c *Client) Fetch(context.Context, domain.SourceQuery) ([]domain.PropertyRecord, error) {
	return nil, nil
}

// Eligible keeps records with a postcode.
func (c *Client) Eligible(rec domain.PropertyRecord) bool {
	return strings.TrimSpace(rec.Postcode) != ""
}

func (c *Client) Requires() (present, missing []domain.Field) {
	return []domain.Field{domain.FieldPostcode}, nil
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
	Data    json.RawMessage `json:"data"`
}

type saleResult struct {
	Estimate *float64 `json:"estimate"`
}

type rentsData struct {
	LongLet struct {
		Average *float64 `json:"average"`
		Unit    string   `json:"unit"`
	} `json:"long_let"`
}

type yieldsData struct {
	LongLet struct {
		GrossYield string `json:"gross_yield"`
	} `json:"long_let"`
}

type soldData struct {
	RawData []struct {
		Address string  `json:"address"`
		Price   float64 `json:"price"`
		Date    string  `json:"date"`
	} `json:"raw_data"`
}

// Enrich sets estimated value, rent estimate, gross yield and last sold
// price. A metric the API has no data for is left out of the patch.
func (c *Client) Enrich(ctx context.Context, rec domain.PropertyRecord) (domain.Patch, error) {
	if !c.Configured() {
		return domain.Patch{}, nil
	}

	pc := domain.FormatPostcode(rec.Postcode)
	patch := domain.Patch{}
	var errs []error

	if rec.Bedrooms != nil {
		if v, err := c.estimate(ctx, pc, rec); err != nil {
			errs = append(errs, err)
		} else if v != nil {
			patch[domain.FieldEstimatedValue] = *v
		}
	}
	if v, err := c.rent(ctx, pc, rec.Bedrooms); err != nil {
		errs = append(errs, err)
	} else if v != nil {
		patch[domain.FieldRentEstimate] = *v
	}
	if v, err := c.yield(ctx, pc); err != nil {
		errs = append(errs, err)
	} else if v != nil {
		patch[domain.FieldRentalYield] = *v
	}
	if v, err := c.lastSold(ctx, pc, rec.Address); err != nil {
		errs = append(errs, err)
	} else if v != nil {
		patch[domain.FieldLastSoldPrice] = *v
	}

	if len(patch) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("valuation %s: %w", pc, errors.Join(errs...))
	}
	if len(errs) > 0 {
		c.logger.Warn("partial valuation", "postcode", pc, "error", errors.Join(errs...))
	}
	return patch, nil
}

func (c *Client) estimate(ctx context.Context, pc string, rec domain.PropertyRecord) (*float64, error) {
	params := url.Values{}
	params.Set("postcode", pc)
	params.Set("bedrooms", strconv.Itoa(*rec.Bedrooms))
	if rec.PropertyType != "" {
		params.Set("property_type", rec.PropertyType)
	}
	if rec.FloorAreaSqm != nil {
		params.Set("internal_area", strconv.Itoa(int(math.Round(*rec.FloorAreaSqm*sqmToSqft))))
	}

	raw, err := c.call(ctx, "/valuation-sale", params, true)
	if err != nil || raw == nil {
		return nil, err
	}
	var res saleResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: valuation-sale: %v", domain.ErrMalformed, err)
	}
	return res.Estimate, nil
}

func (c *Client) rent(ctx context.Context, pc string, bedrooms *int) (*float64, error) {
	params := url.Values{}
	params.Set("postcode", pc)
	if bedrooms != nil {
		params.Set("bedrooms", strconv.Itoa(*bedrooms))
	}

	raw, err := c.call(ctx, "/rents", params, false)
	if err != nil || raw == nil {
		return nil, err
	}
	var data rentsData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: rents: %v", domain.ErrMalformed, err)
	}
	avg := data.LongLet.Average
	if avg == nil {
		return nil, nil
	}
	monthly := *avg
	if strings.Contains(strings.ToLower(data.LongLet.Unit), "week") {
		monthly = math.Round(*avg * 52 / 12)
	}
	return &monthly, nil
}

func (c *Client) yield(ctx context.Context, pc string) (*float64, error) {
	raw, err := c.call(ctx, "/yields", url.Values{"postcode": {pc}}, false)
	if err != nil || raw == nil {
		return nil, err
	}
	var data yieldsData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: yields: %v", domain.ErrMalformed, err)
	}
	return parsePercent(data.LongLet.GrossYield), nil
}

func (c *Client) lastSold(ctx context.Context, pc, address string) (*float64, error) {
	if strings.TrimSpace(address) == "" {
		return nil, nil
	}
	raw, err := c.call(ctx, "/sold-prices", url.Values{"postcode": {pc}}, false)
	if err != nil || raw == nil {
		return nil, err
	}
	var data soldData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: sold-prices: %v", domain.ErrMalformed, err)
	}

	addresses := make([]string, len(data.RawData))
	for i, row := range data.RawData {
		addresses[i] = row.Address
	}
	idx, kind := matching.FindAddress(address, addresses)
	if kind == matching.MatchNone {
		return nil, nil
	}
	price := data.RawData[idx].Price
	return &price, nil
}

// call returns the result (or data) member of a successful response, nil
// when the API reports no data, and caches by path and query.
func (c *Client) call(ctx context.Context, path string, params url.Values, result bool) (json.RawMessage, error) {
	key := path + "?" + params.Encode()
	raw, err := c.cache.GetOrLoad(key, func() (json.RawMessage, error) {
		var env envelope
		if err := c.api.GetJSON(ctx, path, params, &env); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return json.RawMessage{}, nil
			}
			return nil, err
		}
		if !strings.EqualFold(env.Status, "success") {
			c.logger.Debug("no analytics data", "path", path, "postcode", params.Get("postcode"), "message", env.Message)
			return json.RawMessage{}, nil
		}
		if result {
			return env.Result, nil
		}
		return env.Data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strings.TrimPrefix(path, "/"), err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

func parsePercent(raw string) *float64 {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
