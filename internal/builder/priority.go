package builder

import (
	"math"
	"slices"
)

// ranks orders the distinct trigger times of a run chronologically.
type ranks struct {
	index map[float64]int
	n     int
}

func newRanks(times []float64) ranks {
	sorted := slices.Clone(times)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	r := ranks{index: make(map[float64]int, len(sorted)), n: len(sorted)}
	for i, t := range sorted {
		r.index[t] = i
	}
	return r
}

// priority is highest (20) for the chronologically central event and falls
// to -20 at either end of the run.
func (r ranks) priority(t float64) int {
	rank, ok := r.index[t]
	if !ok || r.n < 2 {
		return 20
	}
	centre := float64(r.n-1) / 2
	spread := math.Abs(float64(rank)-centre) / float64(r.n-1)
	return 20 - int(math.Round(80*spread))
}
