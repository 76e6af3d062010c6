package main

import (
	"fmt"
	"math"
	"sort"

	"github.com/aron-barm/SMAC3/internal/run"
	"github.com/aron-barm/SMAC3/internal/space"
)

// benchmark bundles a synthetic objective with its configuration space.
type benchmark struct {
	objective run.Objective
	build     func() (*space.Space, error)
}

var benchmarks = map[string]benchmark{
	"rosenbrock": {
		objective: rosenbrock,
		build: func() (*space.Space, error) {
			return space.New([]space.Hyperparameter{
				{Name: "x1", Kind: space.Float, Lower: -5, Upper: 10},
				{Name: "x2", Kind: space.Float, Lower: -5, Upper: 10},
			}, nil)
		},
	},
	"branin": {
		objective: branin,
		build: func() (*space.Space, error) {
			return space.New([]space.Hyperparameter{
				{Name: "x1", Kind: space.Float, Lower: -5, Upper: 10},
				{Name: "x2", Kind: space.Float, Lower: 0, Upper: 15},
			}, nil)
		},
	},
	"sphere": {
		objective: sphere,
		build: func() (*space.Space, error) {
			params := make([]space.Hyperparameter, 5)
			for i := range params {
				params[i] = space.Hyperparameter{
					Name:  fmt.Sprintf("x%d", i+1),
					Kind:  space.Float,
					Lower: -5.12,
					Upper: 5.12,
				}
			}
			return space.New(params, nil)
		},
	},
}

// buildBenchmark resolves a named synthetic objective and its space.
func buildBenchmark(name string) (run.Objective, *space.Space, error) {
	b, ok := benchmarks[name]
	if !ok {
		names := make([]string, 0, len(benchmarks))
		for n := range benchmarks {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, nil, fmt.Errorf("unknown function %q (available: %v)", name, names)
	}
	sp, err := b.build()
	if err != nil {
		return nil, nil, err
	}
	return b.objective, sp, nil
}

// formatParams renders native parameter values as name=value pairs.
func formatParams(params []space.Hyperparameter, values []float64) string {
	out := ""
	for i, p := range params {
		if i > 0 {
			out += ", "
		}
		if p.Kind == space.Categorical && !math.IsNaN(values[i]) {
			out += fmt.Sprintf("%s=%s", p.Name, p.Choices[int(values[i])])
			continue
		}
		out += fmt.Sprintf("%s=%.4g", p.Name, values[i])
	}
	return out
}

// rosenbrock is the 2-D banana function; minimum 0 at (1, 1).
func rosenbrock(x []float64) float64 {
	a := 1 - x[0]
	b := x[1] - x[0]*x[0]
	return a*a + 100*b*b
}

// branin has three global minima of value ~0.397887.
func branin(x []float64) float64 {
	const (
		a = 1.0
		r = 6.0
		s = 10.0
	)
	b := 5.1 / (4 * math.Pi * math.Pi)
	c := 5 / math.Pi
	t := 1 / (8 * math.Pi)
	inner := x[1] - b*x[0]*x[0] + c*x[0] - r
	return a*inner*inner + s*(1-t)*math.Cos(x[0]) + s
}

// sphere is the 5-D quadratic bowl; minimum 0 at the origin.
func sphere(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum
}
