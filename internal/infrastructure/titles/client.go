// Package titles looks up registered land titles around a property.
package titles

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/infrastructure/httpx"
	"PropertyScanner/internal/ports"
)

// SourceName is the adapter name.
const SourceName = "titles"

// searchOffset is the half-width in degrees of the square searched around a point.
const searchOffset = 0.0001

// Config holds the title database endpoint and token.
type Config struct {
	BaseURL      string
	APIKey       string
	RequestDelay time.Duration
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

// New builds the adapter.
func New(cfg Config, logger *slog.Logger, opts ...httpx.Option) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts = append([]httpx.Option{httpx.WithAuth(httpx.Bearer(cfg.APIKey))}, opts...)
	return &Client{api: httpx.New(cfg.BaseURL, opts...), cfg: cfg, logger: logger}
}

func (c *Client) Name() string { return SourceName }

func (c *Client) Configured() bool { return c.cfg.BaseURL != "" && c.cfg.APIKey != "" }

func (c *Client) RequestDelay() time.Duration { return c.cfg.RequestDelay }

func (c *Client) Cursor() domain.Field { return domain.FieldTitleEnrichedAt }

// Fetch is a no-op.
func (c *Client) Fetch(context.Context, domain.SourceQuery) ([]domain.PropertyRecord, error) {
	return nil, nil
}

// Eligible keeps records with coordinates.
func (c *Client) Eligible(rec domain.PropertyRecord) bool {
	return rec.HasCoordinates()
}

func (c *Client) Requires() (present, missing []domain.Field) {
	return []domain.Field{domain.FieldLatitude, domain.FieldLongitude}, nil
}

// Polygon is a GeoJSON polygon.
type Polygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// SquareAround returns the closed ring of a square centred on lat/lng.
func SquareAround(lat, lng float64) Polygon {
	d := searchOffset
	return Polygon{
		Type: "Polygon",
		Coordinates: [][][2]float64{{
			{lng - d, lat - d},
			{lng + d, lat - d},
			{lng + d, lat + d},
			{lng - d, lat + d},
			{lng - d, lat - d},
		}},
	}
}

type searchRequest struct {
	Polygon Polygon `json:"polygon"`
}

type searchResponse struct {
	Titles []struct {
		TitleNumber string `json:"title_number"`
	} `json:"titles"`
}

type titleResponse struct {
	TitleNumber       string `json:"title_number"`
	Tenure            string `json:"tenure"`
	OwnershipCategory string `json:"ownership_category"`
	Proprietors       []struct {
		Name                      string `json:"name"`
		ProprietorshipCategory    string `json:"proprietorship_category"`
		CompanyRegistrationNumber string `json:"company_registration_number"`
	} `json:"proprietors"`
}

// Enrich finds the title under the record's coordinates and reads its
// first proprietor. No title in the square yields an empty patch.
func (c *Client) Enrich(ctx context.Context, rec domain.PropertyRecord) (domain.Patch, error) {
	if !c.Configured() || !rec.HasCoordinates() {
		return domain.Patch{}, nil
	}

	var found searchResponse
	req := searchRequest{Polygon: SquareAround(*rec.Latitude, *rec.Longitude)}
	if err := c.api.PostJSON(ctx, "/titles/search", req, &found); err != nil {
		return nil, fmt.Errorf("search titles: %w", err)
	}
	if len(found.Titles) == 0 || found.Titles[0].TitleNumber == "" {
		c.logger.Debug("no title in search area", "external_id", rec.ExternalID)
		return domain.Patch{}, nil
	}

	number := found.Titles[0].TitleNumber
	var title titleResponse
	if err := c.api.GetJSON(ctx, "/titles/"+url.PathEscape(number), nil, &title); err != nil {
		return nil, fmt.Errorf("title %s: %w", number, err)
	}

	patch := domain.Patch{domain.FieldTitleNumber: number}
	if t := NormalizeTenure(title.Tenure); t != "" {
		patch[domain.FieldTenure] = t
	}

	categories := []string{title.OwnershipCategory}
	if len(title.Proprietors) > 0 {
		p := title.Proprietors[0]
		if name := strings.TrimSpace(p.Name); name != "" {
			patch[domain.FieldOwnerName] = name
		}
		if crn := strings.TrimSpace(p.CompanyRegistrationNumber); crn != "" {
			patch[domain.FieldCompanyNumber] = crn
		}
		categories = append(categories, p.ProprietorshipCategory, p.Name)
	}
	patch[domain.FieldOwnerType] = OwnerType(categories...)
	return patch, nil
}

// NormalizeTenure maps tenure text to freehold or leasehold.
func NormalizeTenure(raw string) string {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "freehold"):
		return "freehold"
	case strings.Contains(s, "leasehold"):
		return "leasehold"
	}
	return strings.TrimSpace(s)
}

var ownerKeywords = []struct {
	kind  string
	words []string
}{
	{"social", []string{"council", "authority", "housing association", "registered provider"}},
	{"company", []string{"company", "limited", "ltd", "plc", "llp", "corporate"}},
	{"individual", []string{"individual", "private"}},
}

// OwnerType classifies proprietorship text as company, social, individual
// or unknown. Social keywords win over company keywords.
func OwnerType(texts ...string) string {
	joined := strings.ToLower(strings.Join(texts, " "))
	for _, k := range ownerKeywords {
		for _, w := range k.words {
			if containsWord(joined, w) {
				return k.kind
			}
		}
	}
	return "unknown"
}

func containsWord(s, w string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], w)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(w)
		if (start == 0 || !isLetter(s[start-1])) && (end == len(s) || !isLetter(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z'
}
