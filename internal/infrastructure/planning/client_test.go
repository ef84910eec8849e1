package planning

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/infrastructure/httpx"
	"PropertyScanner/internal/throttle"
)

func point() domain.PropertyRecord {
	return domain.PropertyRecord{Latitude: domain.Ptr(53.812345), Longitude: domain.Ptr(-1.567891)}
}

func newTestClient(t *testing.T, body string, datasets *[]string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entity.json", r.URL.Path)
		assert.Equal(t, "53.812345", r.URL.Query().Get("latitude"))
		assert.Equal(t, "-1.567891", r.URL.Query().Get("longitude"))
		*datasets = r.URL.Query()["dataset"]
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL}, nil, httpx.WithRetry(throttle.Retry{MaxAttempts: 1}))
}

func TestEnrichFlagsConstraints(t *testing.T) {
	t.Parallel()

	var datasets []string
	c := newTestClient(t, `{"entities":[
		{"dataset":"conservation-area","name":"Headingley"},
		{"dataset":"article-4-direction-area","name":"Leeds HMO Article 4"},
		{"dataset":"conservation-area","name":"Hyde Park"}
	]}`, &datasets)

	patch, err := c.Enrich(context.Background(), point())
	require.NoError(t, err)
	assert.Equal(t, DefaultDatasets, datasets)
	assert.Equal(t, true, patch[domain.FieldArticle4])
	assert.Equal(t, true, patch[domain.FieldConservationArea])
	assert.Equal(t, []string{"article-4-direction-area", "conservation-area"}, patch[domain.FieldPlanningConstraints])
}

func TestEnrichWritesExplicitFalse(t *testing.T) {
	t.Parallel()

	var datasets []string
	c := newTestClient(t, `{"entities":[]}`, &datasets)

	patch, err := c.Enrich(context.Background(), point())
	require.NoError(t, err)
	assert.Equal(t, false, patch[domain.FieldArticle4])
	assert.Equal(t, false, patch[domain.FieldConservationArea])
	assert.Empty(t, patch[domain.FieldPlanningConstraints])
}

func TestPlanningConfig(t *testing.T) {
	t.Parallel()

	c := New(Config{}, nil)
	assert.False(t, c.Configured())
	assert.Equal(t, domain.FieldPlanningEnrichedAt, c.Cursor())
	assert.True(t, c.Eligible(point()))
	assert.False(t, c.Eligible(domain.PropertyRecord{Address: "1 A St"}))
}
