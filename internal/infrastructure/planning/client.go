// Package planning reads planning constraints that cover a property's location.
package planning

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"time"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/infrastructure/httpx"
	"PropertyScanner/internal/ports"
)

// SourceName is the adapter name.
const SourceName = "planning"

const (
	DatasetArticle4     = "article-4-direction-area"
	DatasetConservation = "conservation-area"
)

// DefaultDatasets are the constraint layers queried when none are configured.
var DefaultDatasets = []string{
	DatasetArticle4,
	DatasetConservation,
	"listed-building-outline",
	"tree-preservation-zone",
	"flood-risk-zone",
}

// Config holds the planning data endpoint.
type Config struct {
	BaseURL      string
	Datasets     []string
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

// New builds the adapter. The planning API needs no credentials.
func New(cfg Config, logger *slog.Logger, opts ...httpx.Option) *Client {
	if len(cfg.Datasets) == 0 {
		cfg.Datasets = DefaultDatasets
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{api: httpx.New(cfg.BaseURL, opts...), cfg: cfg, logger: logger}
}

func (c *Client) Name() string { return SourceName }

func (c *Client) Configured() bool { return c.cfg.BaseURL != "" }

func (c *Client) RequestDelay() time.Duration { return c.cfg.RequestDelay }

func (c *Client) Cursor() domain.Field { return domain.FieldPlanningEnrichedAt }

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

type entityResponse struct {
	Entities []struct {
		Dataset   string `json:"dataset"`
		Name      string `json:"name"`
		Reference string `json:"reference"`
	} `json:"entities"`
}

// Enrich lists the constraint datasets intersecting the record's point.
// Article 4 and conservation flags are written as explicit false when no
// area covers the point.
func (c *Client) Enrich(ctx context.Context, rec domain.PropertyRecord) (domain.Patch, error) {
	if !c.Configured() || !rec.HasCoordinates() {
		return domain.Patch{}, nil
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(*rec.Latitude, 'f', 6, 64))
	params.Set("longitude", strconv.FormatFloat(*rec.Longitude, 'f', 6, 64))
	for _, ds := range c.cfg.Datasets {
		params.Add("dataset", ds)
	}

	var resp entityResponse
	if err := c.api.GetJSON(ctx, "/entity.json", params, &resp); err != nil {
		return nil, fmt.Errorf("planning entities: %w", err)
	}

	seen := map[string]struct{}{}
	for _, e := range resp.Entities {
		if e.Dataset != "" {
			seen[e.Dataset] = struct{}{}
		}
	}
	constraints := make([]string, 0, len(seen))
	for ds := range seen {
		constraints = append(constraints, ds)
	}
	sort.Strings(constraints)

	_, article4 := seen[DatasetArticle4]
	_, conservation := seen[DatasetConservation]
	c.logger.Debug("planning constraints", "external_id", rec.ExternalID, "constraints", constraints)

	return domain.Patch{
		domain.FieldArticle4:            article4,
		domain.FieldConservationArea:    conservation,
		domain.FieldPlanningConstraints: constraints,
	}, nil
}
