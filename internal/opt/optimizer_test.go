package opt

import (
	"math"
	"testing"
)

// quadratic has its minimum at (3, -2).
func quadratic(x []float64) float64 {
	a := x[0] - 3
	b := x[1] + 2
	return a*a + b*b
}

func TestMayflyAsymmetricBounds(t *testing.T) {
	// Per-dimension bounds: the optimum sits inside both intervals.
	lower := []float64{0, -10}
	upper := []float64{10, 0}

	optimizer := NewMayfly(100, 20, 42)
	best, cost := optimizer.Run(quadratic, lower, upper, 2)

	if len(best) != 2 {
		t.Fatalf("expected 2 parameters, got %d", len(best))
	}
	for i := range best {
		if best[i] < lower[i] || best[i] > upper[i] {
			t.Errorf("parameter %d = %f outside [%f, %f]", i, best[i], lower[i], upper[i])
		}
	}
	if cost > 0.5 {
		t.Errorf("expected cost near 0, got %f", cost)
	}
	if math.Abs(best[0]-3) > 1.0 || math.Abs(best[1]+2) > 1.0 {
		t.Errorf("best = %v, expected near (3, -2)", best)
	}
}

func TestMayflyDeterministic(t *testing.T) {
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	// popSize must be >= 20 for mayfly v0.1.0
	run := func() float64 {
		optimizer := NewMayfly(50, 20, 123)
		_, cost := optimizer.Run(quadratic, lower, upper, 2)
		return cost
	}
	if c1, c2 := run(), run(); c1 != c2 {
		t.Errorf("non-deterministic: cost1=%f, cost2=%f", c1, c2)
	}
}

func TestRandomSearchStaysInBounds(t *testing.T) {
	lower := []float64{1, 2, 3}
	upper := []float64{2, 3, 4}

	optimizer := NewRandomSearch(200, 7)
	best, cost := optimizer.Run(quadratic, lower, upper, 3)

	for i := range best {
		if best[i] < lower[i] || best[i] > upper[i] {
			t.Errorf("parameter %d = %f outside [%f, %f]", i, best[i], lower[i], upper[i])
		}
	}
	if math.IsInf(cost, 1) {
		t.Error("random search returned no evaluated point")
	}
}

func TestRandomSearchImprovesWithSamples(t *testing.T) {
	lower := []float64{-10, -10}
	upper := []float64{10, 10}

	_, few := NewRandomSearch(5, 42).Run(quadratic, lower, upper, 2)
	_, many := NewRandomSearch(5000, 42).Run(quadratic, lower, upper, 2)

	if many > few {
		t.Errorf("more samples should not worsen the result: %f > %f", many, few)
	}
}

func TestRandomSearchDeterministic(t *testing.T) {
	lower := []float64{-1, -1}
	upper := []float64{1, 1}

	run := func() float64 {
		_, cost := NewRandomSearch(100, 9).Run(quadratic, lower, upper, 2)
		return cost
	}
	if c1, c2 := run(), run(); c1 != c2 {
		t.Errorf("non-deterministic: cost1=%f, cost2=%f", c1, c2)
	}
}
