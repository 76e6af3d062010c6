package acq

import (
	"math"
	"math/rand"
	"testing"
)

// stubModel returns fixed predictions per input's first coordinate.
type stubModel struct {
	means     map[float64]float64
	variances map[float64]float64
}

func (m *stubModel) Train(X [][]float64, y []float64) error { return nil }

func (m *stubModel) Predict(x []float64) (float64, float64) {
	return m.means[x[0]], m.variances[x[0]]
}

func TestExpectedImprovementPrefersLowerMean(t *testing.T) {
	model := &stubModel{
		means:     map[float64]float64{1: 0.2, 2: 0.8},
		variances: map[float64]float64{1: 0.1, 2: 0.1},
	}
	ei := NewExpectedImprovement(0)
	ei.Update(model, Context{Best: 1.0})

	scores := ei.Score([][]float64{{1}, {2}})
	if scores[0] <= scores[1] {
		t.Errorf("lower mean should score higher: %f vs %f", scores[0], scores[1])
	}
}

func TestExpectedImprovementZeroVariance(t *testing.T) {
	model := &stubModel{
		means:     map[float64]float64{1: 0.5, 2: 2.0},
		variances: map[float64]float64{1: 0, 2: 0},
	}
	ei := NewExpectedImprovement(0)
	ei.Update(model, Context{Best: 1.0})

	scores := ei.Score([][]float64{{1}, {2}})
	if math.Abs(scores[0]-0.5) > 1e-12 {
		t.Errorf("deterministic improvement = %f, want 0.5", scores[0])
	}
	if scores[1] != 0 {
		t.Errorf("deterministic non-improvement = %f, want 0", scores[1])
	}
}

func TestNonFiniteScoresMapToWorst(t *testing.T) {
	model := &stubModel{
		means:     map[float64]float64{1: math.NaN(), 2: math.Inf(1)},
		variances: map[float64]float64{1: 1, 2: 1},
	}

	ei := NewExpectedImprovement(0)
	ei.Update(model, Context{Best: 1.0})
	for i, s := range ei.Score([][]float64{{1}, {2}}) {
		if s != WorstScore {
			t.Errorf("EI score %d = %f, want WorstScore", i, s)
		}
	}

	cb := NewConfidenceBound(1.0)
	cb.Update(model, Context{})
	if s := cb.Score([][]float64{{1}})[0]; s != WorstScore {
		t.Errorf("CB score = %f, want WorstScore", s)
	}
}

func TestThompsonSamplingDeterministicGivenSeed(t *testing.T) {
	model := &stubModel{
		means:     map[float64]float64{1: 0.3, 2: 0.7},
		variances: map[float64]float64{1: 0.2, 2: 0.2},
	}
	X := [][]float64{{1}, {2}}

	ts1 := NewThompsonSampling(rand.New(rand.NewSource(5)))
	ts1.Update(model, Context{})
	s1 := ts1.Score(X)

	ts2 := NewThompsonSampling(rand.New(rand.NewSource(5)))
	ts2.Update(model, Context{})
	s2 := ts2.Score(X)

	for i := range s1 {
		if s1[i] != s2[i] {
			t.Errorf("non-deterministic TS score %d: %f vs %f", i, s1[i], s2[i])
		}
	}
}

func TestThompsonSamplingZeroVariance(t *testing.T) {
	model := &stubModel{
		means:     map[float64]float64{1: 0.3, 2: 0.7},
		variances: map[float64]float64{1: 0, 2: 0},
	}
	ts := NewThompsonSampling(rand.New(rand.NewSource(1)))
	ts.Update(model, Context{})

	scores := ts.Score([][]float64{{1}, {2}})
	if scores[0] != -0.3 || scores[1] != -0.7 {
		t.Errorf("zero-variance TS = %v, want [-0.3 -0.7]", scores)
	}
	if scores[0] <= scores[1] {
		t.Errorf("lower mean should score higher: %f vs %f", scores[0], scores[1])
	}
}

func TestConfidenceBoundRewardsUncertainty(t *testing.T) {
	model := &stubModel{
		means:     map[float64]float64{1: 0.5, 2: 0.5},
		variances: map[float64]float64{1: 0.0, 2: 1.0},
	}
	cb := NewConfidenceBound(1.0)
	cb.Update(model, Context{})

	scores := cb.Score([][]float64{{1}, {2}})
	if scores[1] <= scores[0] {
		t.Errorf("uncertain candidate should score higher: %f vs %f", scores[1], scores[0])
	}
}
