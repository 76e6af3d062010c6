package space

import (
	"fmt"
	"math"
	"math/rand"
)

// Kind identifies the domain type of a hyperparameter.
type Kind int

const (
	Float Kind = iota
	Integer
	Categorical
)

// Hyperparameter describes a single tunable dimension.
type Hyperparameter struct {
	Name string
	Kind Kind

	// Lower and Upper bound numeric domains (inclusive).
	Lower, Upper float64

	// Log switches numeric sampling and encoding to log scale.
	Log bool

	// Choices holds the categorical domain; Lower/Upper are ignored.
	Choices []string
}

// Condition activates Child only when Parent takes one of Values.
// Parent must be a categorical hyperparameter; Values are choice indices.
type Condition struct {
	Child  int
	Parent int
	Values []int
}

// Space is an immutable configuration space. Vectors are encoded in the
// unit cube: numeric dimensions map to [0,1] (log domain if requested) and
// categorical dimensions carry the choice index as a float64. Inactive
// dimensions of conditional spaces are encoded as NaN.
type Space struct {
	params   []Hyperparameter
	conds    []Condition
	contDims []int
	catDims  []int
}

// New validates the hyperparameters and conditions and builds a Space.
func New(params []Hyperparameter, conds []Condition) (*Space, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("space: no hyperparameters given")
	}
	s := &Space{params: params, conds: conds}
	for i, p := range params {
		switch p.Kind {
		case Float, Integer:
			if !(p.Lower < p.Upper) {
				return nil, fmt.Errorf("space: %q has empty range [%g, %g]", p.Name, p.Lower, p.Upper)
			}
			if p.Log && p.Lower <= 0 {
				return nil, fmt.Errorf("space: %q is log-scaled but lower bound %g <= 0", p.Name, p.Lower)
			}
			s.contDims = append(s.contDims, i)
		case Categorical:
			if len(p.Choices) == 0 {
				return nil, fmt.Errorf("space: %q has no choices", p.Name)
			}
			s.catDims = append(s.catDims, i)
		default:
			return nil, fmt.Errorf("space: %q has unknown kind %d", p.Name, p.Kind)
		}
	}
	for _, c := range conds {
		if c.Child < 0 || c.Child >= len(params) || c.Parent < 0 || c.Parent >= len(params) {
			return nil, fmt.Errorf("space: condition references dimension out of range")
		}
		if params[c.Parent].Kind != Categorical {
			return nil, fmt.Errorf("space: condition parent %q is not categorical", params[c.Parent].Name)
		}
		if len(c.Values) == 0 {
			return nil, fmt.Errorf("space: condition on %q has no activating values", params[c.Child].Name)
		}
	}
	return s, nil
}

// Dim returns the number of dimensions.
func (s *Space) Dim() int { return len(s.params) }

// Params returns the hyperparameter definitions.
func (s *Space) Params() []Hyperparameter { return s.params }

// ContDims returns the indices of numeric dimensions.
func (s *Space) ContDims() []int { return s.contDims }

// CatDims returns the indices of categorical dimensions.
func (s *Space) CatDims() []int { return s.catDims }

// Cardinality returns the number of choices of a categorical dimension,
// or 0 for numeric dimensions.
func (s *Space) Cardinality(dim int) int {
	if s.params[dim].Kind != Categorical {
		return 0
	}
	return len(s.params[dim].Choices)
}

// HasConditions reports whether any dimension is conditionally active.
func (s *Space) HasConditions() bool { return len(s.conds) > 0 }

// Sample draws n encoded configurations using the supplied generator.
// Inactive conditional dimensions are set to NaN.
func (s *Space) Sample(rng *rand.Rand, n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		x := make([]float64, len(s.params))
		for d, p := range s.params {
			if p.Kind == Categorical {
				x[d] = float64(rng.Intn(len(p.Choices)))
			} else {
				x[d] = rng.Float64()
			}
		}
		s.ApplyConditions(x)
		out[i] = x
	}
	return out
}

// ApplyConditions overwrites inactive dimensions of x with NaN, in place.
// A child is inactive when its parent is inactive or takes a value outside
// the activating set.
func (s *Space) ApplyConditions(x []float64) {
	if len(s.conds) == 0 {
		return
	}
	// Conditions may chain; iterate until no dimension flips.
	for changed := true; changed; {
		changed = false
		for _, c := range s.conds {
			if math.IsNaN(x[c.Child]) {
				continue
			}
			pv := x[c.Parent]
			active := false
			if !math.IsNaN(pv) {
				for _, v := range c.Values {
					if int(pv) == v {
						active = true
						break
					}
				}
			}
			if !active {
				x[c.Child] = math.NaN()
				changed = true
			}
		}
	}
}

// ActiveMask reports per dimension whether x carries a concrete value.
func (s *Space) ActiveMask(x []float64) []bool {
	mask := make([]bool, len(x))
	for i, v := range x {
		mask[i] = !math.IsNaN(v)
	}
	return mask
}

// Denormalize maps an encoded vector to native parameter values: numeric
// dimensions to their original scale (integers rounded), categorical
// dimensions to the choice index. Inactive dimensions stay NaN.
func (s *Space) Denormalize(x []float64) []float64 {
	out := make([]float64, len(x))
	for d, p := range s.params {
		v := x[d]
		if math.IsNaN(v) {
			out[d] = v
			continue
		}
		switch p.Kind {
		case Categorical:
			out[d] = v
		case Integer:
			out[d] = math.Round(s.toNative(p, v))
		default:
			out[d] = s.toNative(p, v)
		}
	}
	return out
}

func (s *Space) toNative(p Hyperparameter, unit float64) float64 {
	unit = clamp(unit, 0, 1)
	if p.Log {
		lo, hi := math.Log(p.Lower), math.Log(p.Upper)
		return math.Exp(lo + unit*(hi-lo))
	}
	return p.Lower + unit*(p.Upper-p.Lower)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
