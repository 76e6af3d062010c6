package opt

// Objective is a cost function over a parameter vector; lower is better.
type Objective func([]float64) float64

// Optimizer defines an optimization algorithm interface
type Optimizer interface {
	// Run executes the optimization
	// eval: objective function to minimize
	// lower, upper: per-dimension parameter bounds
	// dim: dimensionality of parameter space
	// Returns: best parameters and best cost
	Run(eval Objective, lower, upper []float64, dim int) ([]float64, float64)
}
