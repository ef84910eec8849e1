package licensing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PropertyScanner/internal/domain"
)

type stubEntries struct {
	entries []domain.LicenceEntry
	err     error
	calls   int
}

func (s *stubEntries) Entries(context.Context) ([]domain.LicenceEntry, error) {
	s.calls++
	return s.entries, s.err
}

var now = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func registerEntries() []domain.LicenceEntry {
	expiry := time.Date(2028, 3, 31, 0, 0, 0, 0, time.UTC)
	lapsed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []domain.LicenceEntry{
		{Council: "Leeds", LicenceNumber: "A1", Address: "12 Hyde Park Road, Leeds", Postcode: "LS6 1AB", Expiry: &expiry, MaxOccupants: domain.Ptr(6)},
		{Council: "Leeds", LicenceNumber: "A2", Address: "12 Hyde Park Road, Leeds", Postcode: "LS6 9ZZ"},
		{Council: "Leeds", LicenceNumber: "B7", Address: "4 Cliff Road", Postcode: "LS6 2EZ", Expiry: &lapsed},
	}
}

func TestEnrichMatchesWithinPostcode(t *testing.T) {
	t.Parallel()

	l := NewLookup(&stubEntries{entries: registerEntries()}, "hmo-register", nil, func() time.Time { return now })
	rec := domain.PropertyRecord{Source: "listings", Address: "12 Hyde Park Rd", Postcode: "ls61ab"}
	require.True(t, l.Eligible(rec))

	patch, err := l.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "A1", patch[domain.FieldLicenceNumber])
	assert.Equal(t, true, patch[domain.FieldLicensedHMO])
	assert.Equal(t, "licensed", patch[domain.FieldLicenceStatus])
	assert.Equal(t, "licensed", patch[domain.FieldHMOStatus])
	assert.Equal(t, 6, patch[domain.FieldLicenceMaxOccupants])
	assert.Equal(t, time.Date(2028, 3, 31, 0, 0, 0, 0, time.UTC), patch[domain.FieldLicenceExpiry])
}

func TestEnrichReportsLapsedLicence(t *testing.T) {
	t.Parallel()

	l := NewLookup(&stubEntries{entries: registerEntries()}, "hmo-register", nil, func() time.Time { return now })
	patch, err := l.Enrich(context.Background(), domain.PropertyRecord{Address: "Flat 1, 4 Cliff Road", Postcode: "LS6 2EZ"})
	require.NoError(t, err)
	assert.Equal(t, false, patch[domain.FieldLicensedHMO])
	assert.Equal(t, "expired", patch[domain.FieldLicenceStatus])
	assert.NotContains(t, patch, domain.FieldHMOStatus)
}

func TestEnrichWithoutMatch(t *testing.T) {
	t.Parallel()

	l := NewLookup(&stubEntries{entries: registerEntries()}, "hmo-register", nil, nil)
	patch, err := l.Enrich(context.Background(), domain.PropertyRecord{Address: "99 Other Street", Postcode: "LS6 1AB"})
	require.NoError(t, err)
	assert.True(t, patch.IsEmpty())
}

func TestEnrichSurvivesPartialRegisterFailure(t *testing.T) {
	t.Parallel()

	src := &stubEntries{entries: registerEntries(), err: errors.New("york register down")}
	l := NewLookup(src, "hmo-register", nil, func() time.Time { return now })
	patch, err := l.Enrich(context.Background(), domain.PropertyRecord{Address: "12 Hyde Park Road", Postcode: "LS6 1AB"})
	require.NoError(t, err)
	assert.Equal(t, "A1", patch[domain.FieldLicenceNumber])

	l = NewLookup(&stubEntries{err: errors.New("all down")}, "hmo-register", nil, nil)
	_, err = l.Enrich(context.Background(), domain.PropertyRecord{Address: "12 Hyde Park Road", Postcode: "LS6 1AB"})
	assert.Error(t, err)
}

func TestEligibilityAndConfig(t *testing.T) {
	t.Parallel()

	l := NewLookup(nil, "hmo-register", nil, nil)
	assert.False(t, l.Configured())
	assert.Equal(t, domain.FieldLicenceCheckedAt, l.Cursor())

	l = NewLookup(&stubEntries{}, "hmo-register", nil, nil)
	assert.True(t, l.Configured())
	assert.False(t, l.Eligible(domain.PropertyRecord{Source: "hmo-register", Address: "1 A St", Postcode: "LS6 1AB"}))
	assert.False(t, l.Eligible(domain.PropertyRecord{Address: "1 A St"}))
}
