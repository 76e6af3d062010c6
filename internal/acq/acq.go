package acq

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aron-barm/SMAC3/internal/surrogate"
)

// WorstScore is assigned to candidates whose score is not finite, so a
// numerically degenerate prediction never aborts the optimization.
const WorstScore = -math.MaxFloat64

// Context carries the state an acquisition function needs besides the model.
type Context struct {
	// Best is the lowest observed cost so far (the incumbent value).
	Best float64

	// Xi is the minimum-improvement margin used by improvement-based
	// functions.
	Xi float64

	// Rand drives stochastic functions such as Thompson sampling.
	Rand *rand.Rand
}

// Function scores candidate configurations. Higher scores mark
// configurations more worth evaluating next.
type Function interface {
	// Update is called after the model is (re)fitted and before Score.
	Update(m surrogate.Model, ctx Context)

	// Score returns one finite score per candidate; candidates whose raw
	// score is not finite receive WorstScore.
	Score(X [][]float64) []float64
}

// ExpectedImprovement scores by the expected margin below the incumbent.
type ExpectedImprovement struct {
	model surrogate.Model
	best  float64
	xi    float64
}

// NewExpectedImprovement returns an EI function with margin xi.
func NewExpectedImprovement(xi float64) *ExpectedImprovement {
	return &ExpectedImprovement{best: math.Inf(1), xi: xi}
}

func (e *ExpectedImprovement) Update(m surrogate.Model, ctx Context) {
	e.model = m
	e.best = ctx.Best
	if ctx.Xi != 0 {
		e.xi = ctx.Xi
	}
}

func (e *ExpectedImprovement) Score(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		mean, variance := e.model.Predict(x)
		sigma := math.Sqrt(variance)
		diff := e.best - mean - e.xi
		var ei float64
		if sigma == 0 {
			ei = math.Max(0, diff)
		} else {
			z := diff / sigma
			ei = diff*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
		}
		out[i] = sanitize(ei)
	}
	return out
}

// ThompsonSampling scores by a random draw from the posterior; the draw is
// negated so that lower sampled costs score higher.
type ThompsonSampling struct {
	model surrogate.Model
	rng   *rand.Rand
}

// NewThompsonSampling returns a TS function using rng for posterior draws.
func NewThompsonSampling(rng *rand.Rand) *ThompsonSampling {
	return &ThompsonSampling{rng: rng}
}

func (t *ThompsonSampling) Update(m surrogate.Model, ctx Context) {
	t.model = m
	if ctx.Rand != nil {
		t.rng = ctx.Rand
	}
}

func (t *ThompsonSampling) Score(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		mean, variance := t.model.Predict(x)
		draw := mean + math.Sqrt(variance)*t.rng.NormFloat64()
		out[i] = sanitize(-draw)
	}
	return out
}

// ConfidenceBound scores by the negated lower confidence bound
// mean − beta·sigma.
type ConfidenceBound struct {
	model surrogate.Model
	beta  float64
}

// NewConfidenceBound returns a CB function with exploration weight beta.
func NewConfidenceBound(beta float64) *ConfidenceBound {
	return &ConfidenceBound{beta: beta}
}

func (c *ConfidenceBound) Update(m surrogate.Model, ctx Context) {
	c.model = m
}

func (c *ConfidenceBound) Score(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		mean, variance := c.model.Predict(x)
		out[i] = sanitize(-(mean - c.beta*math.Sqrt(variance)))
	}
	return out
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return WorstScore
	}
	return v
}
