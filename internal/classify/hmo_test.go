package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PropertyScanner/internal/domain"
)

func studentHouse() domain.PropertyRecord {
	return domain.PropertyRecord{
		Bedrooms:     domain.Ptr(6),
		Bathrooms:    domain.Ptr(2),
		PropertyType: "Terraced house",
		FloorAreaSqm: domain.Ptr(130.0),
	}
}

func TestScoreComponents(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 75, Score(studentHouse()))

	flat := domain.PropertyRecord{Bedrooms: domain.Ptr(2), PropertyType: "Flat"}
	assert.Equal(t, 0, Score(flat))

	restricted := studentHouse()
	restricted.Article4 = domain.Ptr(true)
	assert.Equal(t, 65, Score(restricted))

	licensed := studentHouse()
	licensed.LicensedHMO = domain.Ptr(true)
	licensed.Bathrooms = domain.Ptr(4)
	assert.Equal(t, 100, Score(licensed))
}

func TestEnrichFlagsPotentialHMO(t *testing.T) {
	t.Parallel()

	patch, err := Classifier{}.Enrich(context.Background(), studentHouse())
	require.NoError(t, err)
	assert.Equal(t, 75, patch[domain.FieldHMOScore])
	assert.Equal(t, "potential", patch[domain.FieldHMOStatus])
}

func TestEnrichLeavesLicensedStatus(t *testing.T) {
	t.Parallel()

	rec := studentHouse()
	rec.LicensedHMO = domain.Ptr(true)
	patch, err := Classifier{}.Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.NotContains(t, patch, domain.FieldHMOStatus)

	small := domain.PropertyRecord{Bedrooms: domain.Ptr(3), PropertyType: "semi-detached"}
	patch, err = Classifier{}.Enrich(context.Background(), small)
	require.NoError(t, err)
	assert.Equal(t, 30, patch[domain.FieldHMOScore])
	assert.NotContains(t, patch, domain.FieldHMOStatus)
}

func TestClassifierEligibility(t *testing.T) {
	t.Parallel()

	c := Classifier{}
	assert.Equal(t, domain.FieldClassifiedAt, c.Cursor())
	assert.True(t, c.Eligible(studentHouse()))
	assert.False(t, c.Eligible(domain.PropertyRecord{Address: "no bedrooms"}))
}
