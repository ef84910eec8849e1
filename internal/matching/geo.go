package matching

import "github.com/umahmood/haversine"

// Score bands and bonuses shared by every caller that reconciles two sources.
const (
	// MatchThreshold is the minimum additive score for a candidate to count.
	MatchThreshold = 50

	HighConfidenceMeters   = 15.0
	MediumConfidenceMeters = 30.0

	HighConfidenceBonus   = 50
	MediumConfidenceBonus = 40
	BedroomBonus          = 15
	StreetNumberBonus     = 20

	// MaxScore is the best achievable score.
	MaxScore = HighConfidenceBonus + BedroomBonus + StreetNumberBonus
)

// Coord is a WGS84 latitude/longitude pair.
type Coord struct {
	Lat float64
	Lng float64
}

// DistanceMeters returns the great-circle distance between a and b using a
// mean Earth radius of 6,371,000 m.
func DistanceMeters(a, b Coord) float64 {
	_, km := haversine.Distance(
		haversine.Coord{Lat: a.Lat, Lon: a.Lng},
		haversine.Coord{Lat: b.Lat, Lon: b.Lng},
	)
	return km * 1000
}

// GeoBonus maps a distance to its score band. Band edges are inclusive.
func GeoBonus(meters float64) int {
	switch {
	case meters < 0:
		return 0
	case meters <= HighConfidenceMeters:
		return HighConfidenceBonus
	case meters <= MediumConfidenceMeters:
		return MediumConfidenceBonus
	}
	return 0
}
