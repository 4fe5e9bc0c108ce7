package engine

// Series holds the recorded cooperation and inspection fractions.
// Index i belongs to round threshold+i; burn-in rounds are never written.
type Series struct {
	Coop []float64 `json:"coop_level"`
	Insp []float64 `json:"insp_level"`

	threshold int
}

// NewSeries allocates a series for one run.
func NewSeries(threshold, generations int) Series {
	return Series{
		Coop:      make([]float64, generations),
		Insp:      make([]float64, generations),
		threshold: threshold,
	}
}

// Record stores the census of a round. It reports whether the round was
// past the burn-in and therefore written.
func (s *Series) Record(round int, c Census) bool {
	i := round - s.threshold
	if i < 0 || i >= len(s.Coop) {
		return false
	}
	s.Coop[i] = c.CoopFraction()
	s.Insp[i] = c.InspFraction()
	return true
}
