package gp

import (
	"fmt"
	"math"
)

// GP is a lightweight Gaussian-process regressor with an RBF kernel. The
// prediction is a kernel-weighted average of the training targets; the
// variance shrinks with kernel mass near x. Dimensions where either point
// is NaN (inactive hyperparameters) do not contribute to the distance.
type GP struct {
	x     [][]float64
	y     []float64
	sigma float64
}

// New returns an untrained GP with the given kernel width.
func New(sigma float64) *GP {
	if sigma <= 0 {
		sigma = 1.0
	}
	return &GP{sigma: sigma}
}

// Train replaces the training set. Inputs are copied.
func (g *GP) Train(X [][]float64, y []float64) error {
	if len(X) != len(y) {
		return fmt.Errorf("gp: got %d inputs for %d targets", len(X), len(y))
	}
	g.x = make([][]float64, len(X))
	for i, row := range X {
		g.x[i] = append([]float64(nil), row...)
	}
	g.y = append([]float64(nil), y...)
	return nil
}

// Predict returns the mean and variance at x. An untrained GP returns the
// flat prior (0, 1).
func (g *GP) Predict(x []float64) (float64, float64) {
	if len(g.x) == 0 {
		return 0, 1
	}
	n := float64(len(g.x))
	k := make([]float64, len(g.x))
	var mean float64
	for i, xi := range g.x {
		k[i] = g.kernel(x, xi)
		mean += k[i] * g.y[i]
	}
	mean /= n

	variance := 1.0
	var mass float64
	for i := range k {
		for j := range k {
			mass += k[i] * k[j]
		}
	}
	variance -= mass / (n * n)
	if variance < 0 {
		variance = 0
	}
	return mean, variance
}

// kernel is the RBF kernel over the dimensions active in both points.
func (g *GP) kernel(a, b []float64) float64 {
	var sum float64
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Exp(-sum / (2 * g.sigma * g.sigma))
}
