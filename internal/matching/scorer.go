package matching

// Candidate is the slice of a property description the scorer looks at.
type Candidate struct {
	Address  string
	Coord    *Coord
	Bedrooms *int
}

// Scorer combines distance, bedroom equality and street-number equality into
// an additive score.
type Scorer struct {
	Threshold int
}

// NewScorer returns a scorer using MatchThreshold.
func NewScorer() Scorer {
	return Scorer{Threshold: MatchThreshold}
}

// Score grades candidate against target. Missing data contributes nothing.
func (s Scorer) Score(target, candidate Candidate) int {
	score := 0
	if target.Coord != nil && candidate.Coord != nil {
		score += GeoBonus(DistanceMeters(*target.Coord, *candidate.Coord))
	}
	if target.Bedrooms != nil && candidate.Bedrooms != nil && *target.Bedrooms == *candidate.Bedrooms {
		score += BedroomBonus
	}
	if n := StreetNumber(target.Address); n != "" && n == StreetNumber(candidate.Address) {
		score += StreetNumberBonus
	}
	return score
}

// Best returns the index and score of the highest-scoring candidate at or
// above the threshold. Ties keep the earlier candidate.
func (s Scorer) Best(target Candidate, candidates []Candidate) (int, int, bool) {
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = MatchThreshold
	}

	bestIdx, bestScore := -1, -1
	for i, c := range candidates {
		score := s.Score(target, c)
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	if bestIdx < 0 || bestScore < threshold {
		return -1, 0, false
	}
	return bestIdx, bestScore, true
}

// Confidence converts a score into a 0..1 value.
func Confidence(score int) float64 {
	c := float64(score) / float64(MaxScore)
	if c > 1 {
		return 1
	}
	if c < 0 {
		return 0
	}
	return c
}
