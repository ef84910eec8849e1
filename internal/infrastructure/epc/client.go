// Package epc reads energy performance certificates for stored properties.
package epc

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
	"PropertyScanner/internal/matching"
	"PropertyScanner/internal/ports"
)

// SourceName is the adapter name.
const SourceName = "epc"

// certificateValidity is how long a certificate lasts when the register
// gives no expiry.
const certificateValidity = 10

const defaultCertificateURL = "https://find-energy-certificate.service.gov.uk/energy-certificate/"

// Config holds the EPC register credentials.
type Config struct {
	BaseURL        string
	Email          string
	APIKey         string
	CertificateURL string
	RequestDelay   time.Duration
}

// Client is a Phase-3 enrichment adapter.
type Client struct {
	api    *httpx.Client
	cfg    Config
	logger *slog.Logger
}

var (
	_ ports.EnrichmentAdapter = (*Client)(nil)
	_ ports.Configurable      = (*Client)(nil)
	_ ports.Throttled         = (*Client)(nil)
	_ ports.Prerequisite      = (*Client)(nil)
)

// New builds the adapter with basic auth email:key.
func New(cfg Config, logger *slog.Logger, opts ...httpx.Option) *Client {
	if cfg.CertificateURL == "" {
		cfg.CertificateURL = defaultCertificateURL
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts = append([]httpx.Option{httpx.WithAuth(httpx.Basic(cfg.Email, cfg.APIKey))}, opts...)
	return &Client{api: httpx.New(cfg.BaseURL, opts...), cfg: cfg, logger: logger}
}

func (c *Client) Name() string { return SourceName }

func (c *Client) Configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.Email != "" && c.cfg.APIKey != ""
}

func (c *Client) RequestDelay() time.Duration { return c.cfg.RequestDelay }

func (c *Client) Cursor() domain.Field { return domain.FieldEPCEnrichedAt }

// Fetch is a no-op.
func (c *Client) Fetch(context.Context, domain.SourceQuery) ([]domain.PropertyRecord, error) {
	return nil, nil
}

// Eligible keeps records with an address and a postcode.
func (c *Client) Eligible(rec domain.PropertyRecord) bool {
	return strings.TrimSpace(rec.Address) != "" && strings.TrimSpace(rec.Postcode) != ""
}

func (c *Client) Requires() (present, missing []domain.Field) {
	return []domain.Field{domain.FieldAddress, domain.FieldPostcode}, nil
}

type row struct {
	LMKKey         string `json:"lmk-key"`
	Address        string `json:"address"`
	Postcode       string `json:"postcode"`
	Rating         string `json:"current-energy-rating"`
	Efficiency     string `json:"current-energy-efficiency"`
	LodgementDate  string `json:"lodgement-date"`
	ExpiryDate     string `json:"expiry-date"`
	TotalFloorArea string `json:"total-floor-area"`
	CertificateURL string `json:"certificate-url"`
	CertificateRRN string `json:"certificate-number"`
}

type searchResponse struct {
	Rows []row `json:"rows"`
}

// Enrich picks the certificate whose address matches the record best, the
// most recently lodged one among equals.
func (c *Client) Enrich(ctx context.Context, rec domain.PropertyRecord) (domain.Patch, error) {
	if !c.Configured() {
		return domain.Patch{}, nil
	}

	params := url.Values{}
	params.Set("postcode", domain.FormatPostcode(rec.Postcode))
	params.Set("address", rec.Address)
	params.Set("size", "100")

	var resp searchResponse
	if err := c.api.GetJSON(ctx, "/domestic/search", params, &resp); err != nil {
		return nil, fmt.Errorf("epc search %s: %w", rec.Postcode, err)
	}

	best, ok := bestRow(rec.Address, resp.Rows)
	if !ok {
		c.logger.Debug("no epc for address", "external_id", rec.ExternalID, "rows", len(resp.Rows))
		return domain.Patch{}, nil
	}

	rating, ok := NormalizeRating(best.Rating)
	if !ok {
		c.logger.Debug("epc without a valid rating", "external_id", rec.ExternalID, "rating", best.Rating)
		return domain.Patch{}, nil
	}

	patch := domain.Patch{domain.FieldEPCRating: rating}
	if score, err := strconv.Atoi(strings.TrimSpace(best.Efficiency)); err == nil && score >= 0 {
		patch[domain.FieldEPCScore] = score
	}
	if u := c.certificateURL(best); u != "" {
		patch[domain.FieldEPCCertificateURL] = u
	}
	if exp := expiry(best); exp != nil {
		patch[domain.FieldEPCExpiry] = *exp
	}
	if area, err := strconv.ParseFloat(strings.TrimSpace(best.TotalFloorArea), 64); err == nil && area > 0 {
		patch[domain.FieldFloorArea] = area
	}
	return patch, nil
}

func (c *Client) certificateURL(r row) string {
	if r.CertificateURL != "" {
		return r.CertificateURL
	}
	id := r.CertificateRRN
	if id == "" {
		id = r.LMKKey
	}
	if id == "" {
		return ""
	}
	return strings.TrimRight(c.cfg.CertificateURL, "/") + "/" + url.PathEscape(id)
}

func bestRow(address string, rows []row) (row, bool) {
	bestKind := matching.MatchNone
	var (
		best  row
		found bool
	)
	for _, r := range rows {
		kind := matching.CompareAddresses(address, r.Address)
		if kind == matching.MatchNone || kind < bestKind {
			continue
		}
		if kind > bestKind || !found || lodged(r).After(lodged(best)) {
			best, bestKind, found = r, kind, true
		}
	}
	return best, found
}

// NormalizeRating upper-cases a rating and accepts only A to G.
func NormalizeRating(raw string) (string, bool) {
	r := strings.ToUpper(strings.TrimSpace(raw))
	if len(r) != 1 || r[0] < 'A' || r[0] > 'G' {
		return "", false
	}
	return r, true
}

func lodged(r row) time.Time {
	t, _ := parseDate(r.LodgementDate)
	return t
}

func expiry(r row) *time.Time {
	if t, ok := parseDate(r.ExpiryDate); ok {
		return &t
	}
	if t, ok := parseDate(r.LodgementDate); ok {
		exp := t.AddDate(certificateValidity, 0, 0)
		return &exp
	}
	return nil
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
