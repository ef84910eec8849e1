package epc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/infrastructure/httpx"
	"PropertyScanner/internal/throttle"
)

const rowsBody = `{"rows":[
  {"lmk-key":"old","address":"12 Hyde Park Road","postcode":"LS6 1AB","current-energy-rating":"e","current-energy-efficiency":"48","lodgement-date":"2012-02-01"},
  {"lmk-key":"new","address":"12 Hyde Park Road","postcode":"LS6 1AB","current-energy-rating":"c","current-energy-efficiency":"71","lodgement-date":"2020-06-15","total-floor-area":"118.5"},
  {"lmk-key":"other","address":"14 Hyde Park Road","postcode":"LS6 1AB","current-energy-rating":"A","current-energy-efficiency":"95","lodgement-date":"2024-01-01"}
]}`

func newTestClient(t *testing.T, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "me@example.com", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/domestic/search", r.URL.Path)
		assert.Equal(t, "LS6 1AB", r.URL.Query().Get("postcode"))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:        srv.URL,
		Email:          "me@example.com",
		APIKey:         "secret",
		CertificateURL: "https://certs.example/energy-certificate/",
	}, nil, httpx.WithRetry(throttle.Retry{MaxAttempts: 1}))
}

func hydePark() domain.PropertyRecord {
	return domain.PropertyRecord{ExternalID: "listings:1", Address: "12 Hyde Park Road, Leeds", Postcode: "ls6 1ab"}
}

func TestEnrichPicksLatestMatchingCertificate(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, rowsBody)
	patch, err := c.Enrich(context.Background(), hydePark())
	require.NoError(t, err)

	assert.Equal(t, "C", patch[domain.FieldEPCRating])
	assert.Equal(t, 71, patch[domain.FieldEPCScore])
	assert.Equal(t, "https://certs.example/energy-certificate/new", patch[domain.FieldEPCCertificateURL])
	assert.Equal(t, time.Date(2030, 6, 15, 0, 0, 0, 0, time.UTC), patch[domain.FieldEPCExpiry])
	assert.Equal(t, 118.5, patch[domain.FieldFloorArea])
}

func TestInvalidRatingIsEmptyPatch(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, `{"rows":[{"lmk-key":"z","address":"12 Hyde Park Road","current-energy-rating":"Z","lodgement-date":"2020-01-01"}]}`)
	patch, err := c.Enrich(context.Background(), hydePark())
	require.NoError(t, err)
	assert.True(t, patch.IsEmpty())
}

func TestNoMatchingAddress(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, `{"rows":[{"lmk-key":"x","address":"3 Cliff Road","current-energy-rating":"B"}]}`)
	patch, err := c.Enrich(context.Background(), hydePark())
	require.NoError(t, err)
	assert.True(t, patch.IsEmpty())
}

func TestNormalizeRating(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{"a": "A", " g ": "G", "D": "D"} {
		got, ok := NormalizeRating(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"", "Z", "H", "AB", "1"} {
		_, ok := NormalizeRating(in)
		assert.False(t, ok, in)
	}
}

func TestEPCConfig(t *testing.T) {
	t.Parallel()

	c := New(Config{BaseURL: "http://unused.invalid", Email: "me@example.com"}, nil)
	assert.False(t, c.Configured())
	assert.Equal(t, domain.FieldEPCEnrichedAt, c.Cursor())
	assert.False(t, c.Eligible(domain.PropertyRecord{Address: "1 A St"}))

	patch, err := c.Enrich(context.Background(), hydePark())
	require.NoError(t, err)
	assert.True(t, patch.IsEmpty())
}
