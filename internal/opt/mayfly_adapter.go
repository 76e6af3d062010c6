package opt

import (
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the external Mayfly library to conform to our
// Optimizer interface. The library only supports one scalar bound pair for
// all dimensions, so the swarm searches the unit cube and the adapter maps
// each coordinate into its own [lower, upper] interval inside the
// objective closure.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library
func (m *MayflyAdapter) Run(eval Objective, lower, upper []float64, dim int) ([]float64, float64) {
	scale := func(unit []float64) []float64 {
		x := make([]float64, dim)
		for i := 0; i < dim; i++ {
			u := unit[i]
			if u < 0 {
				u = 0
			} else if u > 1 {
				u = 1
			}
			x[i] = lower[i] + u*(upper[i]-lower[i])
		}
		return x
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(unit []float64) float64 {
		return eval(scale(unit))
	}
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1

	// Set random seed for reproducibility
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		// Fall back to the interval midpoints if optimization fails
		mid := make([]float64, dim)
		for i := range mid {
			mid[i] = 0.5
		}
		x := scale(mid)
		return x, eval(x)
	}

	best := scale(result.GlobalBest.Position)
	return best, result.GlobalBest.Cost
}
