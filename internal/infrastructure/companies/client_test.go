package companies

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/infrastructure/httpx"
	"PropertyScanner/internal/throttle"
)

func officersJSON(active, resigned int) string {
	var items []string
	for i := 0; i < active; i++ {
		items = append(items, fmt.Sprintf(`{"name":"DIRECTOR, Active %d","officer_role":"director"}`, i))
	}
	for i := 0; i < resigned; i++ {
		items = append(items, fmt.Sprintf(`{"name":"GONE, Former %d","officer_role":"director","resigned_on":"2020-01-01"}`, i))
	}
	return `{"items":[` + strings.Join(items, ",") + `]}`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "key"}, nil, httpx.WithRetry(throttle.Retry{MaxAttempts: 1}))
}

func TestEnrichReadsProfileAndActiveOfficers(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		switch r.URL.Path {
		case "/company/01234567":
			_, _ = w.Write([]byte(`{"company_name":" HYDE LETTINGS LTD ","company_number":"01234567","company_status":"voluntary-arrangement"}`))
		case "/company/01234567/officers":
			_, _ = w.Write([]byte(officersJSON(12, 3)))
		default:
			http.NotFound(w, r)
		}
	})

	rec := domain.PropertyRecord{CompanyNumber: "1234567"}
	require.True(t, c.Eligible(rec))

	patch, err := c.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "HYDE LETTINGS LTD", patch[domain.FieldCompanyName])
	assert.Equal(t, "other", patch[domain.FieldCompanyStatus])
	directors, ok := patch[domain.FieldDirectors].([]string)
	require.True(t, ok)
	assert.Len(t, directors, MaxDirectors)
	for _, d := range directors {
		assert.NotContains(t, d, "GONE")
	}
}

func TestOfficerFailureKeepsProfile(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/officers") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"company_name":"SC LETS","company_status":"active"}`))
	})

	patch, err := c.Enrich(context.Background(), domain.PropertyRecord{CompanyNumber: "sc123456"})
	require.NoError(t, err)
	assert.Equal(t, "active", patch[domain.FieldCompanyStatus])
	assert.NotContains(t, patch, domain.FieldDirectors)
}

func TestUnknownCompanyIsNotFound(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := c.Enrich(context.Background(), domain.PropertyRecord{CompanyNumber: "99999999"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNormalizeStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"active":                 "active",
		"Open":                   "active",
		"registered":             "active",
		"dissolved":              "dissolved",
		"converted-closed":       "dissolved",
		"closed":                 "dissolved",
		"removed":                "dissolved",
		"liquidation":            "liquidation",
		"administration":         "administration",
		"receivership":           "other",
		"insolvency-proceedings": "other",
		"voluntary-arrangement":  "other",
		"":                       "other",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeStatus(in), in)
	}
}

func TestNormalizeNumber(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "01234567", NormalizeNumber(" 1234567 "))
	assert.Equal(t, "SC123456", NormalizeNumber("sc123456"))
	assert.Equal(t, "", NormalizeNumber(""))
}

func TestUnconfiguredCompanies(t *testing.T) {
	t.Parallel()

	c := New(Config{BaseURL: "http://unused.invalid"}, nil)
	assert.False(t, c.Configured())
	assert.Equal(t, domain.FieldCompanyEnrichedAt, c.Cursor())
	assert.False(t, c.Eligible(domain.PropertyRecord{}))

	patch, err := c.Enrich(context.Background(), domain.PropertyRecord{CompanyNumber: "1"})
	require.NoError(t, err)
	assert.True(t, patch.IsEmpty())
}
