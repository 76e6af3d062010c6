package subspace

import (
	"math"
	"math/rand"
	"testing"

	"github.com/aron-barm/SMAC3/internal/forest"
	"github.com/aron-barm/SMAC3/internal/region"
	"github.com/aron-barm/SMAC3/internal/surrogate"
)

// fakeNode is a hand-built tree for controlled traversal tests.
type fakeNode struct {
	feature   int
	threshold float64
	cats      []int
	left      *fakeNode
	right     *fakeNode
}

func (n *fakeNode) Leaf() bool         { return n.left == nil }
func (n *fakeNode) Feature() int       { return n.feature }
func (n *fakeNode) Threshold() float64 { return n.threshold }
func (n *fakeNode) Categories() []int  { return n.cats }

func (n *fakeNode) Left() surrogate.TreeNode  { return n.left }
func (n *fakeNode) Right() surrogate.TreeNode { return n.right }

type fakeEnsemble struct {
	roots []surrogate.TreeNode
}

func (f *fakeEnsemble) Train(X [][]float64, y []float64) error { return nil }
func (f *fakeEnsemble) Predict(x []float64) (float64, float64) { return 0, 0 }
func (f *fakeEnsemble) Trees() []surrogate.TreeNode            { return f.roots }

func leaf() *fakeNode { return &fakeNode{feature: -1} }

// gridX returns n points evenly spread on one dimension.
func gridX(n int) [][]float64 {
	X := make([][]float64, n)
	for i := range X {
		X[i] = []float64{(float64(i) + 0.5) / float64(n)}
	}
	return X
}

func maskCount(mask []bool) int {
	n := 0
	for _, b := range mask {
		if b {
			n++
		}
	}
	return n
}

func TestExtractDegenerateInputs(t *testing.T) {
	X := gridX(10)
	ens := &fakeEnsemble{roots: []surrogate.TreeNode{leaf()}}
	full := region.Full([]int{0}, nil, nil)
	rng := rand.New(rand.NewSource(1))

	tests := []struct {
		name   string
		numMin int
		numMax int
	}{
		{"numMin above numMax", 5, 2},
		{"numMin above observation count", 10, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, mask := Extract(X, []float64{0.5}, ens, tt.numMin, tt.numMax, full, rng)
			if reg.Cont[0] != (region.Interval{Lower: 0, Upper: 1}) {
				t.Errorf("expected full region, got %v", reg.Cont[0])
			}
			if maskCount(mask) != len(X) {
				t.Errorf("expected all-true mask, got %d of %d", maskCount(mask), len(X))
			}
		})
	}
}

func TestExtractShrinksTowardChallenger(t *testing.T) {
	// One tree: split at 0.5, both children leaves. Challenger on the right.
	root := &fakeNode{feature: 0, threshold: 0.5, left: leaf(), right: leaf()}
	ens := &fakeEnsemble{roots: []surrogate.TreeNode{root}}
	X := gridX(10)
	full := region.Full([]int{0}, nil, nil)

	reg, mask := Extract(X, []float64{0.9}, ens, 3, 1000, full, rand.New(rand.NewSource(1)))

	if reg.Cont[0].Lower != 0.5 || reg.Cont[0].Upper != 1 {
		t.Errorf("region = %v, want [0.5, 1]", reg.Cont[0])
	}
	for i, x := range X {
		want := x[0] >= 0.5
		if mask[i] != want {
			t.Errorf("mask[%d] for x=%f is %v, want %v", i, x[0], mask[i], want)
		}
	}
}

func TestExtractFreezesAtMinCount(t *testing.T) {
	// Splitting at 0.8 would leave only 2 points on the right, violating
	// numMin=3, so the tree freezes without shrinking.
	root := &fakeNode{feature: 0, threshold: 0.8, left: leaf(), right: leaf()}
	ens := &fakeEnsemble{roots: []surrogate.TreeNode{root}}
	X := gridX(10)
	full := region.Full([]int{0}, nil, nil)

	reg, mask := Extract(X, []float64{0.9}, ens, 3, 1000, full, rand.New(rand.NewSource(1)))

	if reg.Cont[0] != (region.Interval{Lower: 0, Upper: 1}) {
		t.Errorf("region shrunk despite numMin violation: %v", reg.Cont[0])
	}
	if maskCount(mask) != len(X) {
		t.Errorf("mask narrowed despite numMin violation: %d of %d", maskCount(mask), len(X))
	}
}

func TestExtractMaxPassNarrowsMaskOnly(t *testing.T) {
	// Split at 0.5 commits (5 of 10 > numMin=3); the deeper split at 0.7
	// would leave 3 points, not > 3, so pass one freezes there. The mask
	// still holds 5 > numMax=4 points, so the max pass descends the frozen
	// split anyway, narrowing the mask to 3 but leaving the committed
	// bounds alone.
	deep := &fakeNode{feature: 0, threshold: 0.7, left: leaf(), right: leaf()}
	root := &fakeNode{feature: 0, threshold: 0.5, left: leaf(), right: deep}
	ens := &fakeEnsemble{roots: []surrogate.TreeNode{root}}
	X := gridX(10)
	full := region.Full([]int{0}, nil, nil)

	reg, mask := Extract(X, []float64{0.9}, ens, 3, 4, full, rand.New(rand.NewSource(1)))

	if reg.Cont[0].Lower != 0.5 || reg.Cont[0].Upper != 1 {
		t.Errorf("max pass modified bounds: %v, want [0.5, 1]", reg.Cont[0])
	}
	if got := maskCount(mask); got != 3 {
		t.Errorf("mask count after max pass = %d, want 3", got)
	}
	for i, x := range X {
		if mask[i] && x[0] < 0.7 {
			t.Errorf("mask kept point %f outside the max-pass split", x[0])
		}
	}
}

func TestExtractCategoricalSplit(t *testing.T) {
	// Categorical split keeping {0, 1} on the left; challenger holds 0.
	root := &fakeNode{feature: 1, cats: []int{0, 1}, left: leaf(), right: leaf()}
	ens := &fakeEnsemble{roots: []surrogate.TreeNode{root}}

	var X [][]float64
	for i := 0; i < 12; i++ {
		X = append(X, []float64{(float64(i) + 0.5) / 12, float64(i % 3)})
	}
	full := region.Full([]int{0}, []int{1}, []int{3})

	reg, mask := Extract(X, []float64{0.5, 0}, ens, 3, 1000, full, rand.New(rand.NewSource(1)))

	if len(reg.Cat[0]) != 2 || reg.Cat[0][0] != 0 || reg.Cat[0][1] != 1 {
		t.Errorf("retained set = %v, want [0 1]", reg.Cat[0])
	}
	for i, x := range X {
		want := x[1] != 2
		if mask[i] != want {
			t.Errorf("mask[%d] for category %v is %v, want %v", i, x[1], mask[i], want)
		}
	}
}

func TestExtractWithTrainedForest(t *testing.T) {
	// 2-D space, 20 uniform observations, numMin=5: the returned region
	// must hold at least 5 points and strictly less volume than the full
	// space, with bounds inside the unit cube.
	rng := rand.New(rand.NewSource(21))
	var X [][]float64
	var y []float64
	for i := 0; i < 20; i++ {
		x := []float64{rng.Float64(), rng.Float64()}
		X = append(X, x)
		y = append(y, x[0]*x[0]+x[1])
	}
	bestIdx := 0
	for i := range y {
		if y[i] < y[bestIdx] {
			bestIdx = i
		}
	}

	f := forest.New(forest.DefaultOptions(), nil, rng)
	if err := f.Train(X, y); err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	full := region.Full([]int{0, 1}, nil, nil)
	reg, mask := Extract(X, X[bestIdx], f, 5, 1000, full, rng)

	if got := maskCount(mask); got < 5 {
		t.Errorf("membership count = %d, want >= 5", got)
	}
	if reg.Volume() >= 1 {
		t.Errorf("volume = %f, want < 1 (some split must commit)", reg.Volume())
	}
	for i, iv := range reg.Cont {
		if iv.Lower < 0 || iv.Upper > 1 || iv.Lower > iv.Upper {
			t.Errorf("interval %d = %v outside the full space", i, iv)
		}
	}
	// Without a max pass the mask must select exactly the points inside
	// the returned bounds.
	for i, x := range X {
		if mask[i] != reg.Contains(x) {
			t.Errorf("mask[%d] = %v but Contains(%v) = %v", i, mask[i], x, reg.Contains(x))
		}
	}
	if !reg.Contains(X[bestIdx]) {
		t.Error("challenger fell outside the extracted region")
	}
}

func TestExtractIgnoresNaNRows(t *testing.T) {
	root := &fakeNode{feature: 0, threshold: 0.5, left: leaf(), right: leaf()}
	ens := &fakeEnsemble{roots: []surrogate.TreeNode{root}}

	X := gridX(10)
	X = append(X, []float64{math.NaN()}, []float64{math.NaN()})
	full := region.Full([]int{0}, nil, nil)

	_, mask := Extract(X, []float64{0.9}, ens, 3, 1000, full, rand.New(rand.NewSource(1)))

	for i := 10; i < 12; i++ {
		if mask[i] {
			t.Errorf("row %d with NaN split value kept in mask", i)
		}
	}
}
