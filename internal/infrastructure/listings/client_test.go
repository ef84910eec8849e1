package listings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/infrastructure/httpx"
	"PropertyScanner/internal/ports"
	"PropertyScanner/internal/throttle"
)

const rentBody = `{"listings":[
  {"id":"r1","url":"https://market.example/to-rent/details/r1","address":"12 Hyde Park Road, Leeds","postcode":"ls61ab",
   "latitude":53.81,"longitude":-1.57,"bedrooms":5,"bathrooms":2,"property_type":"Terraced","listing_type":"rent",
   "price":2600,"images":["https://img.example/r1-a.jpg","https://img.example/r1-b.jpg"],"floor_plans":["https://img.example/r1-fp.png"],"status":"available"},
  {"id":"","address":"no id"}
]}`

const saleBody = `{"listings":[
  {"id":"s1","url":"https://market.example/for-sale/details/s1","address":"4 Cliff Road, Leeds LS6 2EZ",
   "listing_type":"sale","price":325000,"status":"under offer"}
]}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "tok"}, nil, httpx.WithRetry(throttle.Retry{MaxAttempts: 1}))
}

func TestFetchSearchesBothListingTypes(t *testing.T) {
	t.Parallel()

	var types []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/listings", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "LS6 1AB", r.URL.Query().Get("postcode"))
		assert.Equal(t, "0.5", r.URL.Query().Get("radius"))
		assert.Equal(t, "50", r.URL.Query().Get("page_size"))
		types = append(types, r.URL.Query().Get("type"))
		if r.URL.Query().Get("type") == "rent" {
			_, _ = w.Write([]byte(rentBody))
			return
		}
		_, _ = w.Write([]byte(saleBody))
	})

	records, err := c.Fetch(context.Background(), domain.SourceQuery{Postcode: "ls6 1ab"})
	require.NoError(t, err)
	assert.Equal(t, []string{"rent", "sale"}, types)
	require.Len(t, records, 2)

	rent := records[0]
	assert.Equal(t, "listings:r1", rent.ExternalID)
	assert.Equal(t, SourceName, rent.Source)
	assert.Equal(t, "LS6 1AB", rent.Postcode)
	assert.Equal(t, domain.ListingRent, rent.ListingType)
	require.NotNil(t, rent.PricePCM)
	assert.Equal(t, 2600.0, *rent.PricePCM)
	assert.Nil(t, rent.PurchasePrice)
	assert.Equal(t, "terraced", rent.PropertyType)
	assert.Equal(t, "https://img.example/r1-a.jpg", rent.PrimaryImage)
	assert.Len(t, rent.FloorPlans, 1)

	sale := records[1]
	assert.Equal(t, domain.ListingPurchase, sale.ListingType)
	require.NotNil(t, sale.PurchasePrice)
	assert.Equal(t, 325000.0, *sale.PurchasePrice)
	assert.Nil(t, sale.PricePCM)
	assert.Equal(t, "LS6 2EZ", sale.Postcode)
	assert.True(t, domain.ValidListing(sale))
}

func TestSearchKeepsStatusForMatcher(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sale", r.URL.Query().Get("type"))
		assert.Equal(t, "3", r.URL.Query().Get("bedrooms"))
		_, _ = w.Write([]byte(saleBody))
	})

	found, err := c.Search(context.Background(), ports.ListingQuery{
		Postcode:    "LS6 2EZ",
		ListingType: domain.ListingPurchase,
		Bedrooms:    domain.Ptr(3),
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "under offer", found[0].Status)
	assert.Equal(t, domain.ListingPurchase, found[0].ListingType)
}

func TestUnconfiguredClient(t *testing.T) {
	t.Parallel()

	c := New(Config{BaseURL: "http://unused.invalid"}, nil)
	assert.False(t, c.Configured())

	_, err := c.Fetch(context.Background(), domain.SourceQuery{Postcode: "LS6 1AB"})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	_, err = c.Search(context.Background(), ports.ListingQuery{Postcode: "LS6 1AB"})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestFetchReportsUpstreamFailure(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})

	_, err := c.Fetch(context.Background(), domain.SourceQuery{Postcode: "LS6 1AB", ListingType: domain.ListingRent})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
