package subspace

import (
	"math"
	"math/rand"
	"testing"

	"github.com/aron-barm/SMAC3/internal/acq"
	"github.com/aron-barm/SMAC3/internal/gp"
	"github.com/aron-barm/SMAC3/internal/region"
)

func newTestController(t *testing.T, opts TrustRegionOptions, X [][]float64, y []float64) *TrustRegionController {
	t.Helper()
	sp := testSpace1D(t)
	rng := rand.New(rand.NewSource(11))
	return NewTrustRegionController(sp, gp.New(0), acq.NewThompsonSampling(rng), rng, nil, X, y, opts)
}

func TestTrustRegionShrinksOnFailureStreaks(t *testing.T) {
	opts := DefaultTrustRegionOptions()
	opts.Length = 1.0
	opts.LengthMin = 2e-4
	opts.StreakTol = 3
	opts.InitPoints = 0

	c := newTestController(t, opts, [][]float64{{0.5}}, []float64{1.0})

	// 10 consecutive non-improving observations: halvings after failures
	// 3, 6 and 9.
	for i := 0; i < 10; i++ {
		c.AdjustLength([]float64{2.0})
	}
	want := 1.0 / 8
	if c.Length() != want {
		t.Errorf("length after 10 failures = %f, want %f (halved 3 times)", c.Length(), want)
	}
	if c.Length() < opts.LengthMin {
		t.Errorf("length %f fell below LengthMin %f", c.Length(), opts.LengthMin)
	}
	if c.Exhausted() {
		t.Error("controller reported exhausted above LengthMin")
	}
}

func TestTrustRegionGrowthCappedAtLengthMax(t *testing.T) {
	opts := DefaultTrustRegionOptions()
	opts.Length = 0.8
	opts.StreakTol = 3
	opts.InitPoints = 0

	c := newTestController(t, opts, [][]float64{{0.5}}, []float64{1.0})

	for i := 0; i < 3; i++ {
		c.AdjustLength([]float64{0.1}) // clear improvements
	}
	if c.Length() != opts.LengthMax {
		t.Errorf("length after success streak = %f, want capped at %f", c.Length(), opts.LengthMax)
	}
}

func TestTrustRegionDeterministicAdjustment(t *testing.T) {
	opts := DefaultTrustRegionOptions()
	opts.InitPoints = 0

	run := func() float64 {
		c := newTestController(t, opts, [][]float64{{0.5}}, []float64{1.0})
		for i := 0; i < 7; i++ {
			c.AdjustLength([]float64{1.0}) // identical repeated input, never improving
		}
		return c.Length()
	}
	if l1, l2 := run(), run(); l1 != l2 {
		t.Errorf("identical inputs produced different lengths: %f vs %f", l1, l2)
	}
}

func TestTrustRegionExhaustion(t *testing.T) {
	opts := DefaultTrustRegionOptions()
	opts.Length = 1e-5
	opts.LengthMin = 2e-4
	opts.InitPoints = 0

	c := newTestController(t, opts, [][]float64{{0.5}}, []float64{1.0})
	if !c.Exhausted() {
		t.Error("controller with length below LengthMin should report exhausted")
	}
}

func TestTrustRegionRecentersOnBestPoint(t *testing.T) {
	opts := DefaultTrustRegionOptions()
	opts.Length = 0.4
	opts.InitPoints = 0

	c := newTestController(t, opts,
		[][]float64{{0.2}, {0.6}, {0.9}},
		[]float64{3.0, 1.0, 2.0},
	)

	iv := c.Region().Cont[0]
	if math.Abs(iv.Lower-0.4) > 1e-12 || math.Abs(iv.Upper-0.8) > 1e-12 {
		t.Errorf("region = [%f, %f], want [0.4, 0.8] around best point 0.6", iv.Lower, iv.Upper)
	}
	if c.BestValue() != 1.0 {
		t.Errorf("BestValue() = %f, want 1.0", c.BestValue())
	}
}

func TestTrustRegionRestartResetsState(t *testing.T) {
	opts := DefaultTrustRegionOptions()
	opts.Length = 0.8
	opts.StreakTol = 1
	opts.InitPoints = 2

	c := newTestController(t, opts, [][]float64{{0.5}}, []float64{1.0})
	c.AdjustLength([]float64{2.0})
	c.AdjustLength([]float64{2.0})
	if c.Length() >= opts.Length {
		t.Fatalf("setup failed: length did not shrink (%f)", c.Length())
	}

	c.Restart([][]float64{{0.3}, {0.7}}, []float64{0.5, 2.0})

	if c.Length() != opts.Length {
		t.Errorf("length after restart = %f, want %f", c.Length(), opts.Length)
	}
	if c.BestValue() != 0.5 {
		t.Errorf("best value after restart = %f, want 0.5", c.BestValue())
	}
	if !c.PendingInit() {
		t.Error("restart should queue fresh initial points")
	}
}

func TestTrustRegionStaysInsideSeedBounds(t *testing.T) {
	sp := testSpace1D(t)
	rng := rand.New(rand.NewSource(11))
	opts := DefaultTrustRegionOptions()
	opts.Length = 0.8
	opts.InitPoints = 0

	seed := &region.Region{
		ContDims: []int{0},
		Cont:     []region.Interval{{Lower: 0.4, Upper: 0.5}},
	}
	c := NewTrustRegionController(sp, gp.New(0), acq.NewThompsonSampling(rng), rng,
		seed, [][]float64{{0.45}, {0.42}}, []float64{1.0, 2.0}, opts)

	iv := c.Region().Cont[0]
	if iv.Lower < 0.4 || iv.Upper > 0.5 {
		t.Errorf("region = [%f, %f] escaped the seed bounds [0.4, 0.5]", iv.Lower, iv.Upper)
	}

	// New observations keep the box clipped, even with the best point at an
	// edge of the seed.
	if err := c.Refresh([][]float64{{0.5}}, []float64{0.5}); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	iv = c.Region().Cont[0]
	if iv.Lower < 0.4 || iv.Upper > 0.5 {
		t.Errorf("region = [%f, %f] escaped the seed bounds after Refresh", iv.Lower, iv.Upper)
	}

	// A restart lifts the bounds back to the full space.
	c.Restart([][]float64{{0.45}}, []float64{1.0})
	iv = c.Region().Cont[0]
	if iv.Upper <= 0.5 {
		t.Errorf("region upper = %f after restart, want above the old seed bound", iv.Upper)
	}
}

func TestTrustRegionInitQueueDrainsFirst(t *testing.T) {
	opts := DefaultTrustRegionOptions()
	opts.InitPoints = 2
	opts.Candidates = 20

	c := newTestController(t, opts, [][]float64{{0.5}}, []float64{1.0})

	for i := 0; i < 2; i++ {
		if !c.PendingInit() {
			t.Fatalf("expected pending init points before draw %d", i)
		}
		ch, err := c.GenerateChallengers()
		if err != nil {
			t.Fatalf("GenerateChallengers failed: %v", err)
		}
		if ch.Len() != 1 {
			t.Errorf("init draw %d returned %d candidates, want 1", i, ch.Len())
		}
	}
	if c.PendingInit() {
		t.Error("init queue should be drained")
	}

	ch, err := c.GenerateChallengers()
	if err != nil {
		t.Fatalf("GenerateChallengers failed: %v", err)
	}
	if ch.Len() < 1 {
		t.Error("model-based generation produced no candidates")
	}
	region := c.Region()
	for x, ok := ch.Next(); ok; x, ok = ch.Next() {
		if !region.Contains(x) {
			t.Errorf("candidate %v outside the trust region", x)
		}
	}
}
