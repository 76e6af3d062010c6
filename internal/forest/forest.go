package forest

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aron-barm/SMAC3/internal/surrogate"
)

// Options controls forest training.
type Options struct {
	// Trees is the ensemble size.
	Trees int

	// MaxDepth limits tree depth.
	MaxDepth int

	// MinLeaf is the minimum number of rows per leaf.
	MinLeaf int

	// FeatureFrac is the fraction of dimensions considered per split.
	FeatureFrac float64

	// Bootstrap resamples rows with replacement per tree.
	Bootstrap bool
}

// DefaultOptions returns the training defaults.
func DefaultOptions() Options {
	return Options{
		Trees:       10,
		MaxDepth:    20,
		MinLeaf:     2,
		FeatureFrac: 1.0,
		Bootstrap:   true,
	}
}

// Forest is a regression forest over encoded configuration vectors. It
// implements surrogate.Ensemble: mean prediction averages the trees and
// variance is the spread of per-tree predictions. Rows with NaN at the
// split feature always descend right.
type Forest struct {
	opts    Options
	rng     *rand.Rand
	isCat   map[int]bool
	trees   []*tree
	trained bool
}

// New builds an untrained forest. catDims lists the categorical dimensions;
// rng drives bootstrap and feature subsampling.
func New(opts Options, catDims []int, rng *rand.Rand) *Forest {
	isCat := make(map[int]bool, len(catDims))
	for _, d := range catDims {
		isCat[d] = true
	}
	return &Forest{opts: opts, rng: rng, isCat: isCat}
}

// Train fits the ensemble, replacing any previous fit.
func (f *Forest) Train(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("forest: need matching non-empty X (%d) and y (%d)", len(X), len(y))
	}
	rows, cols := len(X), len(X[0])
	data := mat.NewDense(rows, cols, nil)
	for i, row := range X {
		if len(row) != cols {
			return fmt.Errorf("forest: row %d has %d dims, want %d", i, len(row), cols)
		}
		data.SetRow(i, row)
	}
	f.trees = make([]*tree, f.opts.Trees)
	for t := range f.trees {
		idx := make([]int, rows)
		if f.opts.Bootstrap {
			for i := range idx {
				idx[i] = f.rng.Intn(rows)
			}
		} else {
			for i := range idx {
				idx[i] = i
			}
		}
		tr := &tree{}
		f.buildNode(tr, data, y, idx, 0)
		f.trees[t] = tr
	}
	f.trained = true
	return nil
}

// Predict returns the mean and variance of the per-tree predictions.
func (f *Forest) Predict(x []float64) (float64, float64) {
	if !f.trained {
		return 0, 1
	}
	preds := make([]float64, len(f.trees))
	for i, tr := range f.trees {
		preds[i] = tr.predict(x)
	}
	mean := stat.Mean(preds, nil)
	if len(preds) < 2 {
		return mean, 0
	}
	return mean, stat.Variance(preds, nil)
}

// Trees returns read-only root handles, one per tree.
func (f *Forest) Trees() []surrogate.TreeNode {
	out := make([]surrogate.TreeNode, len(f.trees))
	for i, tr := range f.trees {
		out[i] = nodeView{t: tr, idx: 0}
	}
	return out
}

// node is one arena entry. feature == -1 marks a leaf.
type node struct {
	feature   int
	threshold float64
	cats      []int
	left      int32
	right     int32
	value     float64
}

type tree struct {
	nodes []node
}

func (t *tree) predict(x []float64) float64 {
	i := int32(0)
	for {
		n := &t.nodes[i]
		if n.feature < 0 {
			return n.value
		}
		if goesLeft(n, x[n.feature]) {
			i = n.left
		} else {
			i = n.right
		}
	}
}

func goesLeft(n *node, v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if n.cats != nil {
		iv := int(v)
		for _, c := range n.cats {
			if c == iv {
				return true
			}
		}
		return false
	}
	return v <= n.threshold
}

// nodeView adapts an arena index to the surrogate.TreeNode contract.
type nodeView struct {
	t   *tree
	idx int32
}

func (v nodeView) Leaf() bool         { return v.t.nodes[v.idx].feature < 0 }
func (v nodeView) Feature() int       { return v.t.nodes[v.idx].feature }
func (v nodeView) Threshold() float64 { return v.t.nodes[v.idx].threshold }
func (v nodeView) Categories() []int  { return v.t.nodes[v.idx].cats }

func (v nodeView) Left() surrogate.TreeNode {
	return nodeView{t: v.t, idx: v.t.nodes[v.idx].left}
}

func (v nodeView) Right() surrogate.TreeNode {
	return nodeView{t: v.t, idx: v.t.nodes[v.idx].right}
}

// buildNode appends the subtree over idx to the arena and returns its index.
func (f *Forest) buildNode(tr *tree, data *mat.Dense, y []float64, idx []int, depth int) int32 {
	self := int32(len(tr.nodes))
	tr.nodes = append(tr.nodes, node{feature: -1, value: meanAt(y, idx)})

	if depth >= f.opts.MaxDepth || len(idx) < 2*f.opts.MinLeaf || constantAt(y, idx) {
		return self
	}

	sp, ok := f.bestSplit(data, y, idx)
	if !ok {
		return self
	}

	var leftIdx, rightIdx []int
	probe := node{feature: sp.feature, threshold: sp.threshold, cats: sp.cats}
	for _, i := range idx {
		if goesLeft(&probe, data.At(i, sp.feature)) {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}
	if len(leftIdx) < f.opts.MinLeaf || len(rightIdx) < f.opts.MinLeaf {
		return self
	}

	left := f.buildNode(tr, data, y, leftIdx, depth+1)
	right := f.buildNode(tr, data, y, rightIdx, depth+1)

	n := &tr.nodes[self]
	n.feature = sp.feature
	n.threshold = sp.threshold
	n.cats = sp.cats
	n.left = left
	n.right = right
	return self
}

type split struct {
	feature   int
	threshold float64
	cats      []int
	sse       float64
}

// bestSplit scans a random feature subset for the split minimizing the
// summed squared error of the two children.
func (f *Forest) bestSplit(data *mat.Dense, y []float64, idx []int) (split, bool) {
	_, cols := data.Dims()
	nFeat := int(math.Ceil(f.opts.FeatureFrac * float64(cols)))
	if nFeat < 1 {
		nFeat = 1
	}
	perm := f.rng.Perm(cols)[:nFeat]

	best := split{sse: math.Inf(1)}
	found := false
	for _, d := range perm {
		var cand split
		var ok bool
		if f.isCat[d] {
			cand, ok = categoricalSplit(data, y, idx, d)
		} else {
			cand, ok = continuousSplit(data, y, idx, d)
		}
		if ok && cand.sse < best.sse {
			best = cand
			found = true
		}
	}
	return best, found
}

func continuousSplit(data *mat.Dense, y []float64, idx []int, d int) (split, bool) {
	type pair struct{ v, y float64 }
	var pts []pair
	var nanSum, nanSq float64
	var nanN int
	for _, i := range idx {
		v := data.At(i, d)
		if math.IsNaN(v) {
			nanSum += y[i]
			nanSq += y[i] * y[i]
			nanN++
			continue
		}
		pts = append(pts, pair{v: v, y: y[i]})
	}
	if len(pts) < 2 {
		return split{}, false
	}
	sort.Slice(pts, func(a, b int) bool { return pts[a].v < pts[b].v })

	var totalSum, totalSq float64
	for _, p := range pts {
		totalSum += p.y
		totalSq += p.y * p.y
	}
	best := split{feature: d, sse: math.Inf(1)}
	found := false
	var leftSum, leftSq float64
	for k := 0; k < len(pts)-1; k++ {
		leftSum += pts[k].y
		leftSq += pts[k].y * pts[k].y
		if pts[k].v == pts[k+1].v {
			continue
		}
		nl := float64(k + 1)
		nr := float64(len(pts)-k-1) + float64(nanN)
		rs := totalSum - leftSum + nanSum
		rq := totalSq - leftSq + nanSq
		sse := (leftSq - leftSum*leftSum/nl) + (rq - rs*rs/nr)
		if sse < best.sse {
			best.sse = sse
			best.threshold = (pts[k].v + pts[k+1].v) / 2
			found = true
		}
	}
	return best, found
}

// categoricalSplit orders the categories by mean target and scans prefix
// subsets as left-going value sets.
func categoricalSplit(data *mat.Dense, y []float64, idx []int, d int) (split, bool) {
	sums := map[int]float64{}
	sqs := map[int]float64{}
	counts := map[int]int{}
	var nanSum, nanSq float64
	var nanN int
	for _, i := range idx {
		v := data.At(i, d)
		if math.IsNaN(v) {
			nanSum += y[i]
			nanSq += y[i] * y[i]
			nanN++
			continue
		}
		c := int(v)
		sums[c] += y[i]
		sqs[c] += y[i] * y[i]
		counts[c]++
	}
	if len(counts) < 2 {
		return split{}, false
	}
	cats := make([]int, 0, len(counts))
	for c := range counts {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(a, b int) bool {
		ma := sums[cats[a]] / float64(counts[cats[a]])
		mb := sums[cats[b]] / float64(counts[cats[b]])
		if ma == mb {
			return cats[a] < cats[b]
		}
		return ma < mb
	})

	var totalSum, totalSq float64
	var totalN int
	for _, c := range cats {
		totalSum += sums[c]
		totalSq += sqs[c]
		totalN += counts[c]
	}
	best := split{feature: d, sse: math.Inf(1)}
	found := false
	var leftSum, leftSq float64
	var leftN int
	for k := 0; k < len(cats)-1; k++ {
		leftSum += sums[cats[k]]
		leftSq += sqs[cats[k]]
		leftN += counts[cats[k]]
		nl := float64(leftN)
		nr := float64(totalN-leftN) + float64(nanN)
		rs := totalSum - leftSum + nanSum
		rq := totalSq - leftSq + nanSq
		sse := (leftSq - leftSum*leftSum/nl) + (rq - rs*rs/nr)
		if sse < best.sse {
			best.sse = sse
			best.cats = append([]int(nil), cats[:k+1]...)
			found = true
		}
	}
	return best, found
}

func meanAt(y []float64, idx []int) float64 {
	var s float64
	for _, i := range idx {
		s += y[i]
	}
	return s / float64(len(idx))
}

func constantAt(y []float64, idx []int) bool {
	for _, i := range idx[1:] {
		if y[i] != y[idx[0]] {
			return false
		}
	}
	return true
}
