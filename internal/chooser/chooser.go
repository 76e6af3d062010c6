package chooser

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"github.com/aron-barm/SMAC3/internal/acq"
	"github.com/aron-barm/SMAC3/internal/gp"
	"github.com/aron-barm/SMAC3/internal/history"
	"github.com/aron-barm/SMAC3/internal/opt"
	"github.com/aron-barm/SMAC3/internal/region"
	"github.com/aron-barm/SMAC3/internal/space"
	"github.com/aron-barm/SMAC3/internal/subspace"
	"github.com/aron-barm/SMAC3/internal/surrogate"
)

// Strategy identifies the active local-search variant.
type Strategy int

const (
	// RegionSearch optimizes inside a subregion extracted from the global
	// tree ensemble.
	RegionSearch Strategy = iota

	// TrustRegion optimizes inside an adaptively sized box centered on the
	// best point.
	TrustRegion
)

func (s Strategy) String() string {
	switch s {
	case RegionSearch:
		return "region-search"
	case TrustRegion:
		return "trust-region"
	default:
		return "unknown"
	}
}

// SwitchState holds the counters the switching heuristic accumulates over
// the run. It lives for the whole optimization and is reset only on an
// explicit restart.
type SwitchState struct {
	Active     Strategy
	FailRegion int
	FailTrust  int
	BestValue  float64
	BestPoint  []float64
}

// Options configures the switching chooser.
type Options struct {
	// MinSamplesModel is the minimum observation count a budget level needs
	// before the global model can train on it.
	MinSamplesModel int

	// MinConfigsLocal is the minimum point count of an extracted subregion.
	// Zero means 5 per dimension.
	MinConfigsLocal int

	// MaxLocalFrac bounds the subregion to this fraction of all
	// observations.
	MaxLocalFrac float64

	// FracToStart gates local-region construction: it begins once the
	// sample count reaches MinConfigsLocal / FracToStart.
	FracToStart float64

	// Switching enables the trust-region strategy; when false the chooser
	// stays in region search for the whole run.
	Switching bool

	// Probes is the number of random probe points used to seed a fresh
	// trust region with the largest extractable subregion.
	Probes int

	// GlobalCandidates is the number of full-space samples scored by the
	// global acquisition per trial, and GlobalTopK the number kept.
	GlobalCandidates int
	GlobalTopK       int

	// GlobalRefineSamples sizes the random-search refinement of the global
	// challenger's numeric coordinates. Zero disables refinement.
	GlobalRefineSamples int

	RegionSearch subspace.RegionSearchOptions
	TrustRegion  subspace.TrustRegionOptions
}

// DefaultOptions returns the chooser defaults.
func DefaultOptions() Options {
	return Options{
		MinSamplesModel:     1,
		MaxLocalFrac:        0.5,
		FracToStart:         0.8,
		Switching:           true,
		Probes:              20,
		GlobalCandidates:    1000,
		GlobalTopK:          10,
		GlobalRefineSamples: 200,
		RegionSearch:        subspace.DefaultRegionSearchOptions(),
		TrustRegion:         subspace.DefaultTrustRegionOptions(),
	}
}

// Chooser proposes the next candidate configurations for a black-box
// optimization loop. It trains a tree-ensemble global model on the history,
// extracts a promising subregion around the best global candidate, and
// delegates candidate generation to a local optimizer: either a
// region-search instance over the extracted subregion or a trust-region
// controller, selected per trial by the switching heuristic.
type Chooser struct {
	space  *space.Space
	global surrogate.Ensemble
	hist   *history.History
	rng    *rand.Rand
	opts   Options

	state SwitchState
	turbo *subspace.TrustRegionController

	// trial counts region-search trials; the switch draw runs every D of
	// them. fed marks how much history the trust region has absorbed.
	trial int
	fed   int
}

// New builds a chooser over the given space and history. The global model
// must expose its trees through the surrogate.Ensemble contract; anything
// else is a configuration error.
func New(sp *space.Space, global surrogate.Model, hist *history.History, rng *rand.Rand, opts Options) (*Chooser, error) {
	ens, ok := global.(surrogate.Ensemble)
	if !ok {
		return nil, fmt.Errorf("chooser: global model %T does not expose ensemble trees", global)
	}
	if opts.MinConfigsLocal <= 0 {
		opts.MinConfigsLocal = 5 * sp.Dim()
	}
	if opts.MaxLocalFrac <= 0 {
		opts.MaxLocalFrac = 0.5
	}
	if opts.FracToStart <= 0 {
		opts.FracToStart = 0.8
	}
	if opts.Probes <= 0 {
		opts.Probes = 20
	}
	if opts.GlobalCandidates < 1 {
		opts.GlobalCandidates = 1
	}
	if opts.GlobalTopK < 1 {
		opts.GlobalTopK = 1
	}
	return &Chooser{
		space:  sp,
		global: ens,
		hist:   hist,
		rng:    rng,
		opts:   opts,
		state:  SwitchState{Active: RegionSearch, BestValue: math.Inf(1)},
	}, nil
}

// State returns a copy of the switching state.
func (c *Chooser) State() SwitchState { return c.state }

// RecordObservation appends an evaluated configuration to the history.
func (c *Chooser) RecordObservation(x []float64, yRaw, budget float64) history.Record {
	return c.hist.Add(x, yRaw, budget)
}

// Restore primes the chooser's incumbent from a restored history, used when
// resuming a run. Strategy-internal state is rebuilt as trials proceed.
func (c *Chooser) Restore() {
	if x, y, ok := c.hist.Best(); ok {
		c.state.BestValue = y
		c.state.BestPoint = append([]float64(nil), x...)
	}
	c.fed = c.hist.Len()
}

// GenerateChallengers produces this trial's ordered candidate sequence. At
// least one candidate is always returned; with an empty history it is a
// single random configuration.
func (c *Chooser) GenerateChallengers() (*subspace.Challengers, error) {
	if c.state.Active == TrustRegion {
		if c.turbo == nil {
			// No live controller (e.g. after a resume); rebuild through
			// the region-search path.
			c.state.Active = RegionSearch
		} else {
			return c.trustRegionTrial()
		}
	}
	return c.regionSearchTrial()
}

// trustRegionTrial adjusts the controller's length against the newest
// observations, absorbs them, and either keeps delegating, restarts the
// controller, or hands the trial over to region search.
func (c *Chooser) trustRegionTrial() (*subspace.Challengers, error) {
	newX, newY := c.unseen()
	if len(newX) > 0 {
		// The streak test compares latest against the pre-absorption best,
		// so the length adjustment must run before Refresh.
		if !c.turbo.PendingInit() {
			c.turbo.AdjustLength(newY)
		}
		if err := c.turbo.Refresh(newX, newY); err != nil {
			return nil, err
		}
	}

	if !c.turbo.Exhausted() {
		return c.turbo.GenerateChallengers()
	}

	// The region has collapsed. Decide between handing control back to
	// region search and restarting the trust region from scratch.
	dim := c.space.Dim()
	improvement := c.turbo.BestValue() - c.state.BestValue
	if improvement < 0 {
		prevBest := c.state.BestValue
		prevPoint := c.state.BestPoint
		c.state.BestValue = c.turbo.BestValue()
		c.state.BestPoint = append([]float64(nil), c.turbo.BestPoint()...)
		if improvement < -1e-3*math.Abs(prevBest) || pointShift(prevPoint, c.state.BestPoint) >= ssThreshold(dim) {
			return c.switchToRegionSearch("trust region improved elsewhere")
		}
	}

	c.state.FailTrust++
	if c.rng.Float64() < 0.1*float64(c.state.FailTrust) {
		return c.switchToRegionSearch("trust region stagnated")
	}

	X, yRaw := c.allObservations()
	c.turbo.Restart(X, yRaw)
	slog.Debug("trust region restarted", "failCount", c.state.FailTrust)
	return c.turbo.GenerateChallengers()
}

func (c *Chooser) switchToRegionSearch(reason string) (*subspace.Challengers, error) {
	c.state.Active = RegionSearch
	c.state.FailRegion /= 2
	c.turbo = nil
	slog.Info("switching strategy", "to", RegionSearch.String(), "reason", reason)
	return c.regionSearchTrial()
}

// regionSearchTrial trains the global model, updates the switching
// bookkeeping, optionally switches to a trust region, and otherwise builds
// this trial's local region around the best global candidate.
func (c *Chooser) regionSearchTrial() (*subspace.Challengers, error) {
	if c.hist.Len() == 0 {
		return subspace.NewChallengers(c.space.Sample(c.rng, 1)), nil
	}

	X, Y, yRaw, budget, ok := c.hist.Training(c.opts.MinSamplesModel)
	if !ok {
		return subspace.NewChallengers(c.space.Sample(c.rng, 1)), nil
	}

	dim := c.space.Dim()
	minLocal := c.opts.MinConfigsLocal

	if err := c.global.Train(X, Y); err != nil {
		return nil, fmt.Errorf("chooser: global model training: %w", err)
	}
	c.updateIncumbent(X, yRaw, dim)

	// Too few samples for a meaningful subregion: search the full space
	// with a GP fitted to the raw costs.
	if float64(len(X)) < float64(minLocal)/c.opts.FracToStart && !c.space.HasConditions() {
		rs, err := subspace.NewRegionSearch(
			c.space, fullRegion(c.space), gp.New(0), acq.NewExpectedImprovement(0),
			c.rng, nil, nil, X, yRaw, c.opts.RegionSearch,
		)
		if err != nil {
			return nil, err
		}
		return rs.GenerateChallengers()
	}

	c.trial++
	if c.opts.Switching && c.trial%dim == 0 {
		if c.rng.Float64() < c.switchProbability(dim) {
			return c.switchToTrustRegion(X, yRaw, minLocal)
		}
	}

	globals := c.globalChallengers(X, Y)
	challenger := globals[0]

	subX, subYRaw, ok := c.matchingSubset(X, yRaw, challenger)
	if !ok {
		slog.Debug("too few observations match the challenger's active pattern; returning global candidates",
			"budget", budget)
		return subspace.NewChallengers(globals), nil
	}

	numMin := minLocal
	var incumbent []float64
	var activeDims []int
	if c.space.HasConditions() {
		activeDims = activeContDims(c.space, challenger)
		numMin = minLocal * len(activeDims) / dim
		if numMin < 1 {
			numMin = 1
		}
		incumbent = challenger
	}
	numMax := math.MaxInt
	if float64(len(subX))*c.opts.MaxLocalFrac > float64(2*numMin) {
		numMax = int(float64(len(subX)) * c.opts.MaxLocalFrac)
	}

	reg, mask := subspace.Extract(subX, challenger, c.global, numMin, numMax, fullRegion(c.space), c.rng)
	var localX [][]float64
	var localYRaw []float64
	for i, in := range mask {
		if in {
			localX = append(localX, subX[i])
			localYRaw = append(localYRaw, subYRaw[i])
		}
	}

	rs, err := subspace.NewRegionSearch(
		c.space, reg, gp.New(0), acq.NewExpectedImprovement(0),
		c.rng, incumbent, activeDims, localX, history.ScaleCosts(localYRaw),
		c.opts.RegionSearch,
	)
	if err != nil {
		return nil, err
	}
	return rs.GenerateChallengers()
}

// updateIncumbent increments the region-search fail counter and applies the
// improvement test against the best raw cost at the model's budget level.
func (c *Chooser) updateIncumbent(X [][]float64, yRaw []float64, dim int) {
	c.state.FailRegion++
	bestIdx := 0
	for i, v := range yRaw {
		if v < yRaw[bestIdx] {
			bestIdx = i
		}
	}
	incY := yRaw[bestIdx]
	if c.state.BestPoint == nil {
		c.state.BestValue = incY
		c.state.BestPoint = append([]float64(nil), X[bestIdx]...)
		return
	}
	improvement := incY - c.state.BestValue
	if improvement >= 0 {
		return
	}
	prevBest := c.state.BestValue
	prevPoint := c.state.BestPoint
	c.state.BestValue = incY
	c.state.BestPoint = append([]float64(nil), X[bestIdx]...)
	if improvement < -1e-2*math.Abs(prevBest) || pointShift(prevPoint, c.state.BestPoint) >= ssThreshold(dim) {
		c.state.FailRegion -= dim
		if c.state.FailRegion < 0 {
			c.state.FailRegion = 0
		}
	}
}

// switchToTrustRegion seeds a fresh controller with the largest subregion
// extractable from random probe points, primed with the observations the
// winning extraction selected, and hands this trial to it.
func (c *Chooser) switchToTrustRegion(X [][]float64, yRaw []float64, minLocal int) (*subspace.Challengers, error) {
	c.state.Active = TrustRegion
	c.state.FailTrust /= 2

	seed, mask := c.probeSeedRegion(X, minLocal)
	var seedX [][]float64
	var seedY []float64
	for i, in := range mask {
		if in {
			seedX = append(seedX, X[i])
			seedY = append(seedY, yRaw[i])
		}
	}
	c.turbo = subspace.NewTrustRegionController(
		c.space, gp.New(0), acq.NewThompsonSampling(c.rng), c.rng,
		seed, seedX, seedY, c.opts.TrustRegion,
	)
	c.fed = c.hist.Len()
	slog.Info("switching strategy", "to", TrustRegion.String(),
		"failCount", c.state.FailRegion, "seedVolume", seed.Volume())
	return c.turbo.GenerateChallengers()
}

// probeSeedRegion extracts a subregion around each random probe point and
// keeps the one with maximal volume, together with its membership mask
// over X.
func (c *Chooser) probeSeedRegion(X [][]float64, minLocal int) (*region.Region, []bool) {
	best := fullRegion(c.space)
	bestMask := make([]bool, len(X))
	for i := range bestMask {
		bestMask[i] = true
	}
	bestVol := -1.0
	for _, probe := range c.space.Sample(c.rng, c.opts.Probes) {
		reg, mask := subspace.Extract(X, probe, c.global, minLocal, math.MaxInt, fullRegion(c.space), c.rng)
		if v := reg.Volume(); v > bestVol {
			bestVol = v
			best = reg
			bestMask = mask
		}
	}
	return best, bestMask
}

// switchProbability grows in steps of 0.1 per dim whole region-search
// failures; partial multiples do not count.
func (c *Chooser) switchProbability(dim int) float64 {
	return 0.1 * float64(c.state.FailRegion/dim)
}

// globalChallengers scores full-space samples with the global acquisition
// and returns the top candidates, the best one refined by random search
// over its numeric coordinates.
func (c *Chooser) globalChallengers(X [][]float64, Y []float64) [][]float64 {
	cb := acq.NewConfidenceBound(1.0)
	cb.Update(c.global, acq.Context{Best: minOf(Y), Rand: c.rng})

	cands := c.space.Sample(c.rng, c.opts.GlobalCandidates)
	scores := cb.Score(cands)
	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	top := make([][]float64, 0, c.opts.GlobalTopK)
	for _, i := range order {
		top = append(top, cands[i])
		if len(top) == c.opts.GlobalTopK {
			break
		}
	}

	if c.opts.GlobalRefineSamples > 0 {
		if refined, score, ok := c.refineGlobal(cb, top[0]); ok && score > scores[order[0]] {
			top[0] = refined
		}
	}
	return top
}

// refineGlobal random-searches the numeric coordinates of base, keeping its
// activation pattern and categorical values fixed.
func (c *Chooser) refineGlobal(cb acq.Function, base []float64) ([]float64, float64, bool) {
	var dims []int
	for _, d := range c.space.ContDims() {
		if !math.IsNaN(base[d]) {
			dims = append(dims, d)
		}
	}
	if len(dims) == 0 {
		return nil, 0, false
	}
	lower := make([]float64, len(dims))
	upper := make([]float64, len(dims))
	for i := range dims {
		upper[i] = 1
	}
	assemble := func(v []float64) []float64 {
		x := append([]float64(nil), base...)
		for i, d := range dims {
			x[d] = v[i]
		}
		return x
	}
	objective := func(v []float64) float64 {
		return -cb.Score([][]float64{assemble(v)})[0]
	}
	search := opt.NewRandomSearch(c.opts.GlobalRefineSamples, c.rng.Int63())
	pos, cost := search.Run(objective, lower, upper, len(dims))
	return assemble(pos), -cost, true
}

// matchingSubset filters the rows whose active-dimension pattern matches the
// challenger's, requiring active categorical dimensions to hold the
// challenger's value. Unconditional spaces pass everything through. ok is
// false when too few rows match; callers then fall back to the global
// candidates.
func (c *Chooser) matchingSubset(X [][]float64, yRaw []float64, challenger []float64) ([][]float64, []float64, bool) {
	if !c.space.HasConditions() {
		return X, yRaw, true
	}
	catDim := make(map[int]bool, len(c.space.CatDims()))
	for _, d := range c.space.CatDims() {
		catDim[d] = true
	}
	var subX [][]float64
	var subY []float64
	for i, row := range X {
		if matchesPattern(row, challenger, catDim) {
			subX = append(subX, row)
			subY = append(subY, yRaw[i])
		}
	}
	threshold := len(activeContDims(c.space, challenger))
	if threshold < 5 {
		threshold = 5
	}
	if len(subX) <= threshold {
		return nil, nil, false
	}
	return subX, subY, true
}

func matchesPattern(row, challenger []float64, catDim map[int]bool) bool {
	for d := range challenger {
		activeRow := !math.IsNaN(row[d])
		activeCh := !math.IsNaN(challenger[d])
		if activeRow != activeCh {
			return false
		}
		if activeCh && catDim[d] && row[d] != challenger[d] {
			return false
		}
	}
	return true
}

// activeContDims lists the numeric dimensions active in x.
func activeContDims(sp *space.Space, x []float64) []int {
	var out []int
	for _, d := range sp.ContDims() {
		if !math.IsNaN(x[d]) {
			out = append(out, d)
		}
	}
	return out
}

// unseen returns the observations recorded since the trust region last
// absorbed history.
func (c *Chooser) unseen() ([][]float64, []float64) {
	records := c.hist.Records()
	var X [][]float64
	var y []float64
	for _, r := range records[c.fed:] {
		X = append(X, r.X)
		y = append(y, r.YRaw)
	}
	c.fed = len(records)
	return X, y
}

func (c *Chooser) allObservations() ([][]float64, []float64) {
	records := c.hist.Records()
	X := make([][]float64, len(records))
	y := make([]float64, len(records))
	for i, r := range records {
		X[i] = r.X
		y[i] = r.YRaw
	}
	return X, y
}

// ssThreshold is the point-shift volume threshold 0.1^dim: a new best point
// whose coordinate differences multiply to at least this counts as having
// moved to a different part of the space.
func ssThreshold(dim int) float64 {
	return math.Pow(0.1, float64(dim))
}

// pointShift is the absolute product of per-dimension differences between
// two points; NaN dimensions contribute nothing.
func pointShift(a, b []float64) float64 {
	if a == nil || b == nil {
		return 0
	}
	prod := 1.0
	for i := range a {
		d := a[i] - b[i]
		if math.IsNaN(d) {
			continue
		}
		prod *= d
	}
	return math.Abs(prod)
}

func fullRegion(sp *space.Space) *region.Region {
	cards := make([]int, len(sp.CatDims()))
	for i, d := range sp.CatDims() {
		cards[i] = sp.Cardinality(d)
	}
	return region.Full(sp.ContDims(), sp.CatDims(), cards)
}

func minOf(y []float64) float64 {
	best := math.Inf(1)
	for _, v := range y {
		if v < best {
			best = v
		}
	}
	return best
}
