package titles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/infrastructure/httpx"
	"PropertyScanner/internal/throttle"
)

func located() domain.PropertyRecord {
	return domain.PropertyRecord{ExternalID: "listings:1", Latitude: domain.Ptr(53.81), Longitude: domain.Ptr(-1.56)}
}

func TestEnrichSearchesSquareAndReadsTitle(t *testing.T) {
	t.Parallel()

	var polygon Polygon
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/titles/search":
			var body searchRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			polygon = body.Polygon
			_, _ = w.Write([]byte(`{"titles":[{"title_number":"WYK123"},{"title_number":"WYK999"}]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/titles/WYK123":
			_, _ = w.Write([]byte(`{"title_number":"WYK123","tenure":"Freehold","proprietors":[
				{"name":"HYDE LETTINGS LIMITED","proprietorship_category":"Limited Company or Public Limited Company","company_registration_number":"01234567"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "tok"}, nil, httpx.WithRetry(throttle.Retry{MaxAttempts: 1}))
	patch, err := c.Enrich(context.Background(), located())
	require.NoError(t, err)

	assert.Equal(t, "Polygon", polygon.Type)
	require.Len(t, polygon.Coordinates, 1)
	ring := polygon.Coordinates[0]
	require.Len(t, ring, 5)
	assert.Equal(t, ring[0], ring[4])
	assert.InDelta(t, -1.5601, ring[0][0], 1e-9)
	assert.InDelta(t, 53.8099, ring[0][1], 1e-9)
	assert.InDelta(t, 53.8101, ring[2][1], 1e-9)

	assert.Equal(t, "WYK123", patch[domain.FieldTitleNumber])
	assert.Equal(t, "freehold", patch[domain.FieldTenure])
	assert.Equal(t, "HYDE LETTINGS LIMITED", patch[domain.FieldOwnerName])
	assert.Equal(t, "company", patch[domain.FieldOwnerType])
	assert.Equal(t, "01234567", patch[domain.FieldCompanyNumber])
}

func TestEnrichWithoutTitle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"titles":[]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "tok"}, nil)
	patch, err := c.Enrich(context.Background(), located())
	require.NoError(t, err)
	assert.True(t, patch.IsEmpty())
}

func TestOwnerType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "company", OwnerType("Limited Company or Public Limited Company"))
	assert.Equal(t, "company", OwnerType("", "ACME LTD"))
	assert.Equal(t, "company", OwnerType("Limited Liability Partnership", "X LLP"))
	assert.Equal(t, "social", OwnerType("Local Authority"))
	assert.Equal(t, "social", OwnerType("Registered Provider", "Leeds Housing Association Limited"))
	assert.Equal(t, "individual", OwnerType("Private individual"))
	assert.Equal(t, "unknown", OwnerType("", "JOHN SMITH"))
	assert.Equal(t, "unknown", OwnerType("Deltdale Trust"))
}

func TestNormalizeTenure(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "freehold", NormalizeTenure("Freehold"))
	assert.Equal(t, "leasehold", NormalizeTenure("LEASEHOLD (99 years)"))
	assert.Equal(t, "", NormalizeTenure(""))
}

func TestTitlesEligibility(t *testing.T) {
	t.Parallel()

	c := New(Config{}, nil)
	assert.False(t, c.Configured())
	assert.Equal(t, domain.FieldTitleEnrichedAt, c.Cursor())
	assert.True(t, c.Eligible(located()))
	assert.False(t, c.Eligible(domain.PropertyRecord{Address: "no coords"}))
}
