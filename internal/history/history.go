package history

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Record is one evaluated configuration. X is the encoded vector with NaN
// marking inactive dimensions; YRaw is the untransformed cost; Budget is
// the fidelity the evaluation ran at.
type Record struct {
	ID     string    `json:"id"`
	X      []float64 `json:"x"`
	YRaw   float64   `json:"yRaw"`
	Budget float64   `json:"budget"`
	At     time.Time `json:"at"`
}

// History is the append-only store of evaluated configurations. It is
// mutated only between trials by the surrounding loop.
type History struct {
	records []Record
}

// New returns an empty history.
func New() *History {
	return &History{}
}

// Add appends an observation and returns the stored record.
func (h *History) Add(x []float64, yRaw, budget float64) Record {
	rec := Record{
		ID:     uuid.New().String(),
		X:      append([]float64(nil), x...),
		YRaw:   yRaw,
		Budget: budget,
		At:     time.Now(),
	}
	h.records = append(h.records, rec)
	return rec
}

// Restore replaces the history contents, used when resuming from a
// checkpoint.
func (h *History) Restore(records []Record) {
	h.records = append([]Record(nil), records...)
}

// Len returns the number of observations.
func (h *History) Len() int { return len(h.records) }

// Records returns the stored records in insertion order.
func (h *History) Records() []Record { return h.records }

// Budgets returns the distinct budget levels, highest first.
func (h *History) Budgets() []float64 {
	seen := map[float64]bool{}
	var out []float64
	for _, r := range h.records {
		if !seen[r.Budget] {
			seen[r.Budget] = true
			out = append(out, r.Budget)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out
}

// Training returns the observations of the highest budget level holding at
// least minSamples points: the encoded inputs, the min-max scaled costs
// used for the global model, the raw costs, and the chosen budget. ok is
// false when no budget level qualifies.
func (h *History) Training(minSamples int) (X [][]float64, Y []float64, yRaw []float64, budget float64, ok bool) {
	for _, b := range h.Budgets() {
		var bx [][]float64
		var by []float64
		for _, r := range h.records {
			if r.Budget == b {
				bx = append(bx, r.X)
				by = append(by, r.YRaw)
			}
		}
		if len(bx) >= minSamples {
			return bx, ScaleCosts(by), by, b, true
		}
	}
	return nil, nil, nil, 0, false
}

// Best returns the configuration with the lowest raw cost across all
// budgets.
func (h *History) Best() (x []float64, yRaw float64, ok bool) {
	best := math.Inf(1)
	for _, r := range h.records {
		if r.YRaw < best {
			best = r.YRaw
			x = r.X
			ok = true
		}
	}
	return x, best, ok
}

// ScaleCosts min-max normalizes raw costs to [0,1]; a constant series maps
// to all zeros.
func ScaleCosts(raw []float64) []float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range raw {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	out := make([]float64, len(raw))
	if hi <= lo {
		return out
	}
	for i, v := range raw {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
