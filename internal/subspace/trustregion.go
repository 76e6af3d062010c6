package subspace

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"github.com/aron-barm/SMAC3/internal/acq"
	"github.com/aron-barm/SMAC3/internal/region"
	"github.com/aron-barm/SMAC3/internal/space"
	"github.com/aron-barm/SMAC3/internal/surrogate"
)

// TrustRegionOptions tunes the trust-region variant.
type TrustRegionOptions struct {
	// Length is the initial edge length of the trust region in the unit
	// cube.
	Length float64

	// LengthMin is the exhaustion threshold: once the length shrinks below
	// it the controller reports itself exhausted.
	LengthMin float64

	// LengthMax caps growth; it never exceeds the full-space extent.
	LengthMax float64

	// StreakTol is the success/failure streak length that doubles/halves
	// the region.
	StreakTol int

	// ImprovementTol is the relative margin a new observation must beat
	// the best seen value by to count as a success.
	ImprovementTol float64

	// InitPoints is the number of random configurations evaluated inside a
	// fresh region before model-based candidates are produced.
	InitPoints int

	// Candidates is the number of samples scored per candidate batch.
	Candidates int

	// TopK is the maximum sequence length returned.
	TopK int
}

// DefaultTrustRegionOptions returns the trust-region defaults.
func DefaultTrustRegionOptions() TrustRegionOptions {
	return TrustRegionOptions{
		Length:         0.8,
		LengthMin:      2e-4,
		LengthMax:      1.0,
		StreakTol:      3,
		ImprovementTol: 1e-3,
		InitPoints:     3,
		Candidates:     500,
		TopK:           10,
	}
}

// TrustRegionController searches a box of adaptive edge length centered on
// the best point seen inside it. Successive improvements grow the box,
// successive failures shrink it; once the length falls below LengthMin the
// controller reports itself exhausted and must be restarted.
type TrustRegionController struct {
	space *space.Space
	model surrogate.Model
	acqFn acq.Function
	rng   *rand.Rand
	opts  TrustRegionOptions

	length     float64
	succStreak int
	failStreak int

	reg       *region.Region
	seed      *region.Region
	x         [][]float64
	y         []float64
	bestX     []float64
	bestY     float64
	initQueue [][]float64
}

// NewTrustRegionController builds a controller over the given seed region
// (nil means the full space) primed with the supplied observations. The
// trust region never extends past the seed's bounds; only a Restart lifts
// them back to the full space.
func NewTrustRegionController(
	sp *space.Space,
	model surrogate.Model,
	acqFn acq.Function,
	rng *rand.Rand,
	seed *region.Region,
	X [][]float64,
	y []float64,
	opts TrustRegionOptions,
) *TrustRegionController {
	if opts.Candidates < 1 {
		opts.Candidates = 1
	}
	if opts.TopK < 1 {
		opts.TopK = 1
	}
	c := &TrustRegionController{
		space:  sp,
		model:  model,
		acqFn:  acqFn,
		rng:    rng,
		opts:   opts,
		length: opts.Length,
		bestY:  math.Inf(1),
	}
	if seed != nil {
		c.reg = seed.Clone()
	} else {
		c.reg = fullRegion(sp)
	}
	c.seed = c.reg.Clone()
	c.absorb(X, y)
	c.recenter()
	c.refit()
	c.initQueue = c.samplePoints(opts.InitPoints)
	return c
}

// Length returns the current edge length.
func (c *TrustRegionController) Length() float64 { return c.length }

// Exhausted reports whether the region has shrunk below LengthMin.
func (c *TrustRegionController) Exhausted() bool { return c.length < c.opts.LengthMin }

// BestValue returns the best raw cost seen inside this trust region.
func (c *TrustRegionController) BestValue() float64 { return c.bestY }

// BestPoint returns the configuration of the best value, or nil.
func (c *TrustRegionController) BestPoint() []float64 { return c.bestX }

// PendingInit reports whether initial random configurations are still
// queued for evaluation.
func (c *TrustRegionController) PendingInit() bool { return len(c.initQueue) > 0 }

// Region returns the current trust region.
func (c *TrustRegionController) Region() *region.Region { return c.reg }

// Refresh appends new observations, recenters the region on the best point
// and refits the local model.
func (c *TrustRegionController) Refresh(X [][]float64, y []float64) error {
	if len(X) != len(y) {
		return fmt.Errorf("trust region: got %d inputs for %d targets", len(X), len(y))
	}
	c.absorb(X, y)
	c.recenter()
	c.refit()
	return nil
}

// AdjustLength updates the success/failure streaks against the newest
// observed values and doubles or halves the edge length once a streak
// reaches StreakTol. Growth is capped at LengthMax; shrinking below
// LengthMin flags exhaustion rather than clamping.
//
// The improvement test compares against the best value absorbed so far, so
// callers must invoke it before feeding latest into Refresh.
func (c *TrustRegionController) AdjustLength(latest []float64) {
	if len(latest) == 0 {
		return
	}
	if minOf(latest) < c.bestY-c.opts.ImprovementTol*math.Abs(c.bestY) {
		c.succStreak++
		c.failStreak = 0
	} else {
		c.failStreak++
		c.succStreak = 0
	}
	if c.succStreak == c.opts.StreakTol {
		c.length = math.Min(2*c.length, c.opts.LengthMax)
		c.succStreak = 0
		slog.Debug("trust region grown", "length", c.length)
	} else if c.failStreak == c.opts.StreakTol {
		c.length /= 2
		c.failStreak = 0
		slog.Debug("trust region shrunk", "length", c.length)
	}
}

// Restart reinitializes the length, recenters a fresh region on the best
// point of the supplied history and refits the local model to the points
// inside it.
func (c *TrustRegionController) Restart(X [][]float64, yRaw []float64) {
	c.length = c.opts.Length
	c.succStreak = 0
	c.failStreak = 0
	c.x = nil
	c.y = nil
	c.bestX = nil
	c.bestY = math.Inf(1)
	c.reg = fullRegion(c.space)
	c.seed = c.reg.Clone()
	c.absorb(X, yRaw)
	c.recenter()

	// Keep only the history inside the fresh region for the local model.
	var subX [][]float64
	var subY []float64
	for i, row := range c.x {
		if c.reg.Contains(row) {
			subX = append(subX, row)
			subY = append(subY, c.y[i])
		}
	}
	c.x = subX
	c.y = subY
	c.refit()
	c.initQueue = c.samplePoints(c.opts.InitPoints)
	slog.Debug("trust region restarted", "length", c.length, "points", len(c.x))
}

// GenerateChallengers returns queued initial configurations first, then
// Thompson-style candidates ordered by descending acquisition score.
func (c *TrustRegionController) GenerateChallengers() (*Challengers, error) {
	if len(c.initQueue) > 0 {
		next := c.initQueue[0]
		c.initQueue = c.initQueue[1:]
		return NewChallengers([][]float64{next}), nil
	}
	cands := c.samplePoints(c.opts.Candidates)
	c.acqFn.Update(c.model, acq.Context{Best: c.bestY, Rand: c.rng})
	scores := c.acqFn.Score(cands)

	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	items := make([][]float64, 0, c.opts.TopK)
	for _, i := range order {
		items = append(items, cands[i])
		if len(items) == c.opts.TopK {
			break
		}
	}
	return NewChallengers(items), nil
}

func (c *TrustRegionController) absorb(X [][]float64, y []float64) {
	for i, row := range X {
		cp := append([]float64(nil), row...)
		c.x = append(c.x, cp)
		c.y = append(c.y, y[i])
		if y[i] < c.bestY {
			c.bestY = y[i]
			c.bestX = cp
		}
	}
}

// recenter rebuilds the numeric intervals as a length-sized box around the
// best point, clipped to the seed region's bounds. Categorical retained
// sets carry over unchanged.
func (c *TrustRegionController) recenter() {
	half := c.length / 2
	for i, d := range c.reg.ContDims {
		bound := c.seed.Cont[i]
		center := (bound.Lower + bound.Upper) / 2
		if c.bestX != nil && !math.IsNaN(c.bestX[d]) {
			center = math.Min(math.Max(c.bestX[d], bound.Lower), bound.Upper)
		}
		c.reg.Cont[i] = region.Interval{
			Lower: math.Max(bound.Lower, center-half),
			Upper: math.Min(bound.Upper, center+half),
		}
	}
}

func (c *TrustRegionController) refit() {
	if len(c.x) == 0 {
		return
	}
	if err := c.model.Train(c.x, c.y); err != nil {
		slog.Warn("trust region model fit failed", "error", err)
	}
}

func (c *TrustRegionController) samplePoints(n int) [][]float64 {
	dim := c.space.Dim()
	out := make([][]float64, n)
	for k := range out {
		x := make([]float64, dim)
		for i, d := range c.reg.ContDims {
			iv := c.reg.Cont[i]
			x[d] = iv.Lower + c.rng.Float64()*iv.Width()
		}
		for i, d := range c.reg.CatDims {
			set := c.reg.Cat[i]
			x[d] = float64(set[c.rng.Intn(len(set))])
		}
		c.space.ApplyConditions(x)
		out[k] = x
	}
	return out
}

func fullRegion(sp *space.Space) *region.Region {
	cards := make([]int, len(sp.CatDims()))
	for i, d := range sp.CatDims() {
		cards[i] = sp.Cardinality(d)
	}
	return region.Full(sp.ContDims(), sp.CatDims(), cards)
}
