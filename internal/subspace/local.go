package subspace

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/aron-barm/SMAC3/internal/acq"
	"github.com/aron-barm/SMAC3/internal/opt"
	"github.com/aron-barm/SMAC3/internal/region"
	"github.com/aron-barm/SMAC3/internal/space"
	"github.com/aron-barm/SMAC3/internal/surrogate"
)

// Challengers is a finite, restartable sequence of candidate
// configurations ordered by descending acquisition score.
type Challengers struct {
	items [][]float64
	pos   int
}

// NewChallengers wraps the given ordered candidates.
func NewChallengers(items [][]float64) *Challengers {
	return &Challengers{items: items}
}

// Next returns the next candidate, or false when the sequence is drained.
func (c *Challengers) Next() ([]float64, bool) {
	if c.pos >= len(c.items) {
		return nil, false
	}
	x := c.items[c.pos]
	c.pos++
	return x, true
}

// Reset rewinds the sequence to its first candidate.
func (c *Challengers) Reset() { c.pos = 0 }

// Len returns the number of candidates.
func (c *Challengers) Len() int { return len(c.items) }

// LocalOptimizer is the shared contract of the two local search variants.
// The chooser selects the active variant through its strategy field.
type LocalOptimizer interface {
	// GenerateChallengers produces the next ordered candidate sequence.
	// At least one candidate is always produced.
	GenerateChallengers() (*Challengers, error)

	// Region returns the subregion this optimizer searches.
	Region() *region.Region

	// Refresh refits the local model to the given observations.
	Refresh(X [][]float64, y []float64) error
}

// RegionSearchOptions tunes candidate generation of the region-search
// variant.
type RegionSearchOptions struct {
	// Candidates is the number of uniform samples scored per call.
	Candidates int

	// TopK is the maximum sequence length returned.
	TopK int

	// MayflyIters and MayflyPop configure the swarm refinement of the top
	// candidate's numeric coordinates.
	MayflyIters int
	MayflyPop   int
}

// DefaultRegionSearchOptions returns the candidate-generation defaults.
func DefaultRegionSearchOptions() RegionSearchOptions {
	return RegionSearchOptions{
		Candidates:  500,
		TopK:        10,
		MayflyIters: 30,
		MayflyPop:   20,
	}
}

// RegionSearch maximizes a local acquisition function over a bounded
// subregion. It owns the region, a local surrogate fitted to the history
// subset inside it, and the acquisition function.
type RegionSearch struct {
	space      *space.Space
	reg        *region.Region
	model      surrogate.Model
	acqFn      acq.Function
	rng        *rand.Rand
	incumbent  []float64
	activeDims []int
	opts       RegionSearchOptions
}

// NewRegionSearch builds a region-search optimizer and fits the local
// model to the supplied observation subset. incumbent may be nil; when the
// space is conditional it anchors the candidates' activation pattern, and
// activeDims lists the numeric dimensions to vary (nil varies every region
// dimension).
func NewRegionSearch(
	sp *space.Space,
	reg *region.Region,
	model surrogate.Model,
	acqFn acq.Function,
	rng *rand.Rand,
	incumbent []float64,
	activeDims []int,
	X [][]float64,
	y []float64,
	opts RegionSearchOptions,
) (*RegionSearch, error) {
	if opts.Candidates < 1 {
		opts.Candidates = 1
	}
	if opts.TopK < 1 {
		opts.TopK = 1
	}
	rs := &RegionSearch{
		space:      sp,
		reg:        reg,
		model:      model,
		acqFn:      acqFn,
		rng:        rng,
		incumbent:  incumbent,
		activeDims: activeDims,
		opts:       opts,
	}
	if err := rs.Refresh(X, y); err != nil {
		return nil, err
	}
	return rs, nil
}

// Region returns the owned subregion.
func (r *RegionSearch) Region() *region.Region { return r.reg }

// Refresh refits the local model and re-arms the acquisition function.
func (r *RegionSearch) Refresh(X [][]float64, y []float64) error {
	if len(X) > 0 {
		if err := r.model.Train(X, y); err != nil {
			return fmt.Errorf("region search: %w", err)
		}
	}
	r.acqFn.Update(r.model, acq.Context{Best: minOf(y), Rand: r.rng})
	return nil
}

// GenerateChallengers scores uniform samples from the region, refines the
// best candidate's numeric coordinates with the swarm optimizer, and
// returns the top candidates by descending score.
func (r *RegionSearch) GenerateChallengers() (*Challengers, error) {
	cands := r.sample(r.opts.Candidates)
	scores := r.acqFn.Score(cands)

	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	items := make([][]float64, 0, r.opts.TopK+1)
	for _, i := range order {
		items = append(items, cands[i])
		if len(items) == r.opts.TopK {
			break
		}
	}

	if refined, score, ok := r.refine(items[0]); ok && score > scores[order[0]] {
		items = append([][]float64{refined}, items...)
		if len(items) > r.opts.TopK {
			items = items[:r.opts.TopK]
		}
	}
	return NewChallengers(items), nil
}

// refine runs the mayfly swarm over the numeric coordinates of base inside
// the region, maximizing the acquisition score.
func (r *RegionSearch) refine(base []float64) ([]float64, float64, bool) {
	dims := r.varyDims()
	if len(dims) == 0 {
		return nil, 0, false
	}
	lower := make([]float64, len(dims))
	upper := make([]float64, len(dims))
	for i, d := range dims {
		pos := r.reg.ContIndex(d)
		if pos < 0 {
			return nil, 0, false
		}
		lower[i] = r.reg.Cont[pos].Lower
		upper[i] = r.reg.Cont[pos].Upper
	}
	assemble := func(v []float64) []float64 {
		x := append([]float64(nil), base...)
		for i, d := range dims {
			x[d] = v[i]
		}
		return x
	}
	objective := func(v []float64) float64 {
		return -r.acqFn.Score([][]float64{assemble(v)})[0]
	}
	mf := opt.NewMayfly(r.opts.MayflyIters, r.opts.MayflyPop, r.rng.Int63())
	pos, cost := mf.Run(objective, lower, upper, len(dims))
	return assemble(pos), -cost, true
}

func (r *RegionSearch) varyDims() []int {
	if r.activeDims != nil {
		return r.activeDims
	}
	return r.reg.ContDims
}

// sample draws n candidates inside the region. With an incumbent the
// candidates copy its activation pattern and categorical values and vary
// only the numeric dimensions; without one, every region dimension is
// sampled. The incumbent itself is included when it lies in the region.
func (r *RegionSearch) sample(n int) [][]float64 {
	dim := r.space.Dim()
	out := make([][]float64, 0, n)
	if r.incumbent != nil && r.reg.Contains(r.incumbent) {
		out = append(out, append([]float64(nil), r.incumbent...))
	}
	for len(out) < n {
		var x []float64
		if r.incumbent != nil {
			x = append([]float64(nil), r.incumbent...)
			for _, d := range r.varyDims() {
				pos := r.reg.ContIndex(d)
				if pos < 0 {
					continue
				}
				iv := r.reg.Cont[pos]
				x[d] = iv.Lower + r.rng.Float64()*iv.Width()
			}
		} else {
			x = make([]float64, dim)
			for i, d := range r.reg.ContDims {
				iv := r.reg.Cont[i]
				x[d] = iv.Lower + r.rng.Float64()*iv.Width()
			}
			for i, d := range r.reg.CatDims {
				set := r.reg.Cat[i]
				x[d] = float64(set[r.rng.Intn(len(set))])
			}
			r.space.ApplyConditions(x)
		}
		out = append(out, x)
	}
	return out
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
