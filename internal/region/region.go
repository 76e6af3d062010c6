package region

import "math"

// Interval is a closed range on one numeric dimension of the unit cube.
type Interval struct {
	Lower, Upper float64
}

// Width returns the interval length.
func (iv Interval) Width() float64 { return iv.Upper - iv.Lower }

// Region is an axis-aligned subregion of the configuration space:
// per-dimension intervals for the numeric dimensions and retained value
// sets for the categorical dimensions. ContDims and CatDims index into the
// full configuration vector; Cont and Cat run parallel to them.
type Region struct {
	ContDims []int
	CatDims  []int
	Cont     []Interval
	Cat      [][]int
}

// Full builds the full-space region: unit intervals on every numeric
// dimension and complete value sets on every categorical dimension.
// cards runs parallel to catDims and holds each dimension's cardinality.
func Full(contDims, catDims []int, cards []int) *Region {
	r := &Region{
		ContDims: contDims,
		CatDims:  catDims,
		Cont:     make([]Interval, len(contDims)),
		Cat:      make([][]int, len(catDims)),
	}
	for i := range r.Cont {
		r.Cont[i] = Interval{Lower: 0, Upper: 1}
	}
	for i, card := range cards {
		all := make([]int, card)
		for v := range all {
			all[v] = v
		}
		r.Cat[i] = all
	}
	return r
}

// Clone deep-copies the region.
func (r *Region) Clone() *Region {
	c := &Region{
		ContDims: r.ContDims,
		CatDims:  r.CatDims,
		Cont:     append([]Interval(nil), r.Cont...),
		Cat:      make([][]int, len(r.Cat)),
	}
	for i, set := range r.Cat {
		c.Cat[i] = append([]int(nil), set...)
	}
	return c
}

// Volume returns the product of the numeric interval widths. Categorical
// dimensions do not contribute; a space without numeric dimensions has
// volume 1.
func (r *Region) Volume() float64 {
	v := 1.0
	for _, iv := range r.Cont {
		v *= iv.Width()
	}
	return v
}

// Contains reports whether x lies inside the region. NaN (inactive)
// dimensions are ignored.
func (r *Region) Contains(x []float64) bool {
	for i, d := range r.ContDims {
		v := x[d]
		if math.IsNaN(v) {
			continue
		}
		if v < r.Cont[i].Lower || v > r.Cont[i].Upper {
			return false
		}
	}
	for i, d := range r.CatDims {
		v := x[d]
		if math.IsNaN(v) {
			continue
		}
		if !containsInt(r.Cat[i], int(v)) {
			return false
		}
	}
	return true
}

// ContIndex returns the position of dim within ContDims, or -1.
func (r *Region) ContIndex(dim int) int { return indexOf(r.ContDims, dim) }

// CatIndex returns the position of dim within CatDims, or -1.
func (r *Region) CatIndex(dim int) int { return indexOf(r.CatDims, dim) }

func indexOf(dims []int, dim int) int {
	for i, d := range dims {
		if d == dim {
			return i
		}
	}
	return -1
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Intersect returns the elements of set also present in split, preserving
// set order.
func Intersect(set, split []int) []int {
	var out []int
	for _, v := range set {
		if containsInt(split, v) {
			out = append(out, v)
		}
	}
	return out
}

// Difference returns the elements of set not present in split, preserving
// set order.
func Difference(set, split []int) []int {
	var out []int
	for _, v := range set {
		if !containsInt(split, v) {
			out = append(out, v)
		}
	}
	return out
}
