package subspace

import (
	"log/slog"
	"math"
	"math/rand"

	"github.com/aron-barm/SMAC3/internal/region"
	"github.com/aron-barm/SMAC3/internal/surrogate"
)

// Extract shrinks the full-space region around challenger by walking every
// tree of the ensemble. One cursor per tree starts at the root; on each
// pass the trees are visited in a fresh random order and each unfrozen
// cursor consumes one split. A split shrinks the region (and the shared
// membership mask over X) toward the challenger's side only while the
// shrunk mask still holds more than numMin points; otherwise the tree
// freezes. Splits on dimensions already entirely on one side of the region
// advance the cursor without shrinking.
//
// If the final mask holds more than numMax points a second pass runs with
// the minimum check disabled, descending further until the count drops to
// numMax or every tree reaches a leaf. That pass only narrows the mask and
// advances cursors; it never modifies the returned geometric bounds, so the
// mask may select a strict subset of the points inside the bounds. Callers
// relying on numMax must filter by the mask.
//
// Degenerate inputs (numMin > numMax, or numMin >= len(X)) return the full
// region with an all-true mask.
func Extract(X [][]float64, challenger []float64, ens surrogate.Ensemble, numMin, numMax int, full *region.Region, rng *rand.Rand) (*region.Region, []bool) {
	mask := make([]bool, len(X))
	for i := range mask {
		mask[i] = true
	}
	reg := full.Clone()
	if numMin > numMax || numMin >= len(X) {
		return reg, mask
	}

	trees := ens.Trees()
	cursors := append([]surrogate.TreeNode(nil), trees...)
	frozen := make([]bool, len(trees))

	dim := len(challenger)
	contPos := make([]int, dim)
	catPos := make([]int, dim)
	for d := 0; d < dim; d++ {
		contPos[d] = -1
		catPos[d] = -1
	}
	for i, d := range reg.ContDims {
		contPos[d] = i
	}
	for i, d := range reg.CatDims {
		catPos[d] = i
	}

	count := func(m []bool) int {
		n := 0
		for _, b := range m {
			if b {
				n++
			}
		}
		return n
	}

	// filter returns mask ∧ pred(X[:,f]) and its population.
	filter := func(f int, pred func(float64) bool) ([]bool, int) {
		out := make([]bool, len(mask))
		n := 0
		for i, b := range mask {
			if b && pred(X[i][f]) {
				out[i] = true
				n++
			}
		}
		return out, n
	}

	pass := func(checkMin bool) {
		for _, i := range rng.Perm(len(trees)) {
			if frozen[i] {
				continue
			}
			nd := cursors[i]
			if nd.Leaf() {
				frozen[i] = true
				continue
			}
			f := nd.Feature()

			if cats := nd.Categories(); cats != nil {
				pos := catPos[f]
				if pos < 0 {
					// Dimension not tracked by the region; just follow the challenger.
					cursors[i] = catChild(nd, challenger[f], cats)
					continue
				}
				retained := reg.Cat[pos]
				inter := region.Intersect(retained, cats)
				switch {
				case len(inter) == len(retained):
					// The whole retained set falls into the left child.
					cursors[i] = nd.Left()
				case len(inter) == 0:
					cursors[i] = nd.Right()
				default:
					var child surrogate.TreeNode
					var tempSet []int
					var tempMask []bool
					var n int
					if valueInSet(challenger[f], cats) {
						child = nd.Left()
						tempSet = inter
						tempMask, n = filter(f, func(v float64) bool { return valueInSet(v, cats) })
					} else {
						child = nd.Right()
						tempSet = region.Difference(retained, cats)
						tempMask, n = filter(f, func(v float64) bool { return !math.IsNaN(v) && !valueInSet(v, cats) })
					}
					switch {
					case checkMin && n > numMin:
						reg.Cat[pos] = tempSet
						mask = tempMask
						cursors[i] = child
					case checkMin:
						frozen[i] = true
					default:
						mask = tempMask
						cursors[i] = child
					}
				}
				continue
			}

			v := nd.Threshold()
			pos := contPos[f]
			if pos < 0 {
				cursors[i] = contChild(nd, challenger[f], v)
				continue
			}
			iv := reg.Cont[pos]
			if v < iv.Lower || v > iv.Upper {
				// Split lies outside the current interval; no information gained.
				cursors[i] = contChild(nd, challenger[f], v)
				continue
			}
			var child surrogate.TreeNode
			var temp region.Interval
			var tempMask []bool
			var n int
			if !math.IsNaN(challenger[f]) && challenger[f] > v {
				child = nd.Right()
				temp = region.Interval{Lower: v, Upper: iv.Upper}
				tempMask, n = filter(f, func(x float64) bool { return x >= v })
			} else {
				child = nd.Left()
				temp = region.Interval{Lower: iv.Lower, Upper: v}
				tempMask, n = filter(f, func(x float64) bool { return x <= v })
			}
			switch {
			case checkMin && n > numMin:
				reg.Cont[pos] = temp
				mask = tempMask
				cursors[i] = child
			case checkMin:
				frozen[i] = true
			default:
				mask = tempMask
				cursors[i] = child
			}
		}
	}

	allFrozen := func() bool {
		for _, f := range frozen {
			if !f {
				return false
			}
		}
		return true
	}

	for !allFrozen() {
		pass(true)
	}

	if count(mask) > numMax {
		for i := range frozen {
			frozen[i] = false
		}
		for count(mask) > numMax && !allFrozen() {
			pass(false)
		}
	}

	slog.Debug("subregion extracted",
		"points", count(mask),
		"total", len(X),
		"volume", reg.Volume(),
	)
	return reg, mask
}

func valueInSet(v float64, set []int) bool {
	if math.IsNaN(v) {
		return false
	}
	iv := int(v)
	for _, s := range set {
		if s == iv {
			return true
		}
	}
	return false
}

func catChild(nd surrogate.TreeNode, v float64, cats []int) surrogate.TreeNode {
	if valueInSet(v, cats) {
		return nd.Left()
	}
	return nd.Right()
}

func contChild(nd surrogate.TreeNode, v, threshold float64) surrogate.TreeNode {
	if !math.IsNaN(v) && v > threshold {
		return nd.Right()
	}
	return nd.Left()
}
