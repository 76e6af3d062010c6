package opt

import (
	"math"
	"math/rand"
)

// RandomSearch evaluates uniform samples within the bounds and keeps the
// best. It serves as a cheap maximizer baseline and as the fallback when a
// population-based optimizer is not worth its overhead.
type RandomSearch struct {
	samples int
	seed    int64
}

// NewRandomSearch creates a random-search optimizer drawing the given
// number of samples.
func NewRandomSearch(samples int, seed int64) Optimizer {
	return &RandomSearch{samples: samples, seed: seed}
}

// Run executes the random search.
func (r *RandomSearch) Run(eval Objective, lower, upper []float64, dim int) ([]float64, float64) {
	rng := rand.New(rand.NewSource(r.seed))
	best := make([]float64, dim)
	bestCost := math.Inf(1)
	for s := 0; s < r.samples; s++ {
		x := make([]float64, dim)
		for i := 0; i < dim; i++ {
			x[i] = lower[i] + rng.Float64()*(upper[i]-lower[i])
		}
		cost := eval(x)
		if cost < bestCost {
			bestCost = cost
			copy(best, x)
		}
	}
	return best, bestCost
}
