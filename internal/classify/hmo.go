// Package classify scores how suitable a property is for multiple occupation.
package classify

import (
	"context"
	"strings"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/ports"
)

// SourceName is the adapter name.
const SourceName = "hmo-classifier"

// PotentialThreshold is the score from which an unlicensed property is
// flagged as a potential HMO.
const PotentialThreshold = 60

// Classifier is the Phase-4 derived adapter. It makes no network calls.
type Classifier struct{}

var (
	_ ports.EnrichmentAdapter = Classifier{}
	_ ports.Prerequisite      = Classifier{}
)

func (Classifier) Name() string { return SourceName }

func (Classifier) Cursor() domain.Field { return domain.FieldClassifiedAt }

// Fetch is a no-op.
func (Classifier) Fetch(context.Context, domain.SourceQuery) ([]domain.PropertyRecord, error) {
	return nil, nil
}

// Eligible keeps records with a bedroom count.
func (Classifier) Eligible(rec domain.PropertyRecord) bool {
	return rec.Bedrooms != nil
}

func (Classifier) Requires() (present, missing []domain.Field) {
	return []domain.Field{domain.FieldBedrooms}, nil
}

// Enrich writes hmo_score and marks high-scoring unlicensed records as
// potential HMOs.
func (Classifier) Enrich(_ context.Context, rec domain.PropertyRecord) (domain.Patch, error) {
	score := Score(rec)
	patch := domain.Patch{domain.FieldHMOScore: score}
	if score >= PotentialThreshold && !licensed(rec) {
		patch[domain.FieldHMOStatus] = "potential"
	}
	return patch, nil
}

// Score rates a record from 0 to 100.
func Score(rec domain.PropertyRecord) int {
	score := 0

	if rec.Bedrooms != nil {
		switch b := *rec.Bedrooms; {
		case b >= 5:
			score += 35
		case b == 4:
			score += 25
		case b == 3:
			score += 15
		}
	}

	if rec.Bathrooms != nil {
		switch b := *rec.Bathrooms; {
		case b >= 3:
			score += 15
		case b == 2:
			score += 10
		}
	}

	score += propertyTypePoints(rec.PropertyType)

	if rec.FloorAreaSqm != nil {
		switch a := *rec.FloorAreaSqm; {
		case a >= 120:
			score += 15
		case a >= 90:
			score += 10
		}
	}

	if licensed(rec) {
		score += 20
	}
	if rec.Article4 != nil && *rec.Article4 {
		score -= 10
	}

	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}

func licensed(rec domain.PropertyRecord) bool {
	if rec.LicensedHMO != nil {
		return *rec.LicensedHMO
	}
	return rec.HMOStatus == "licensed"
}

func propertyTypePoints(raw string) int {
	t := strings.ToLower(raw)
	switch {
	case t == "":
		return 0
	case strings.Contains(t, "flat"), strings.Contains(t, "apartment"), strings.Contains(t, "maisonette"), strings.Contains(t, "studio"):
		return 0
	case strings.Contains(t, "terrace"), strings.Contains(t, "detached"), strings.Contains(t, "house"), strings.Contains(t, "townhouse"):
		return 15
	}
	return 5
}
