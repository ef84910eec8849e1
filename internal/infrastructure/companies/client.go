// Package companies enriches company-owned properties from the company registry.
package companies

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
const SourceName = "companies"

// MaxDirectors caps the officer list stored on a record.
const MaxDirectors = 10

// Config holds the registry endpoint and API key.
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

// New builds the adapter. The API key is sent as the basic-auth user name.
func New(cfg Config, logger *slog.Logger, opts ...httpx.Option) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts = append([]httpx.Option{httpx.WithAuth(httpx.Basic(cfg.APIKey, ""))}, opts...)
	return &Client{api: httpx.New(cfg.BaseURL, opts...), cfg: cfg, logger: logger}
}

func (c *Client) Name() string { return SourceName }

func (c *Client) Configured() bool { return c.cfg.BaseURL != "" && c.cfg.APIKey != "" }

func (c *Client) RequestDelay() time.Duration { return c.cfg.RequestDelay }

func (c *Client) Cursor() domain.Field { return domain.FieldCompanyEnrichedAt }

// Fetch is a no-op.
func (c *Client) Fetch(context.Context, domain.SourceQuery) ([]domain.PropertyRecord, error) {
	return nil, nil
}

// Eligible keeps records that name a company.
func (c *Client) Eligible(rec domain.PropertyRecord) bool {
	return strings.TrimSpace(rec.CompanyNumber) != ""
}

func (c *Client) Requires() (present, missing []domain.Field) {
	return []domain.Field{domain.FieldCompanyNumber}, nil
}

type companyProfile struct {
	CompanyName   string `json:"company_name"`
	CompanyNumber string `json:"company_number"`
	CompanyStatus string `json:"company_status"`
}

type officerList struct {
	Items []struct {
		Name        string `json:"name"`
		OfficerRole string `json:"officer_role"`
		ResignedOn  string `json:"resigned_on"`
	} `json:"items"`
}

// Enrich reads the company profile and its serving officers. An officer
// lookup failure keeps the profile fields.
func (c *Client) Enrich(ctx context.Context, rec domain.PropertyRecord) (domain.Patch, error) {
	if !c.Configured() {
		return domain.Patch{}, nil
	}

	number := NormalizeNumber(rec.CompanyNumber)
	path := "/company/" + url.PathEscape(number)

	var profile companyProfile
	if err := c.api.GetJSON(ctx, path, nil, &profile); err != nil {
		return nil, fmt.Errorf("company %s: %w", number, err)
	}

	patch := domain.Patch{
		domain.FieldCompanyStatus: NormalizeStatus(profile.CompanyStatus),
	}
	if name := strings.TrimSpace(profile.CompanyName); name != "" {
		patch[domain.FieldCompanyName] = name
	}

	var officers officerList
	if err := c.api.GetJSON(ctx, path+"/officers", nil, &officers); err != nil {
		c.logger.Warn("officer lookup failed", "company", number, "error", err)
		return patch, nil
	}

	var directors []string
	for _, o := range officers.Items {
		if strings.TrimSpace(o.ResignedOn) != "" || strings.TrimSpace(o.Name) == "" {
			continue
		}
		directors = append(directors, strings.TrimSpace(o.Name))
		if len(directors) == MaxDirectors {
			break
		}
	}
	if len(directors) > 0 {
		patch[domain.FieldDirectors] = directors
	}
	return patch, nil
}

// NormalizeNumber upper-cases a registration number and left-pads numeric
// ones to eight digits.
func NormalizeNumber(raw string) string {
	n := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if n != "" && len(n) < 8 && strings.Trim(n, "0123456789") == "" {
		n = strings.Repeat("0", 8-len(n)) + n
	}
	return n
}

// NormalizeStatus folds the registry's status vocabulary into
// active, dissolved, liquidation, administration or other.
func NormalizeStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active", "open", "registered":
		return "active"
	case "dissolved", "closed", "converted-closed", "removed":
		return "dissolved"
	case "liquidation":
		return "liquidation"
	case "administration":
		return "administration"
	}
	return "other"
}
