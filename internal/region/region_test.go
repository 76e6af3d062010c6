package region

import (
	"math"
	"reflect"
	"testing"
)

func TestFull(t *testing.T) {
	r := Full([]int{0, 2}, []int{1}, []int{3})

	if len(r.Cont) != 2 {
		t.Fatalf("expected 2 intervals, got %d", len(r.Cont))
	}
	for i, iv := range r.Cont {
		if iv.Lower != 0 || iv.Upper != 1 {
			t.Errorf("interval %d = [%f, %f], want [0, 1]", i, iv.Lower, iv.Upper)
		}
	}
	if !reflect.DeepEqual(r.Cat[0], []int{0, 1, 2}) {
		t.Errorf("retained set = %v, want [0 1 2]", r.Cat[0])
	}
	if r.Volume() != 1 {
		t.Errorf("full region volume = %f, want 1", r.Volume())
	}
}

func TestCloneIndependence(t *testing.T) {
	r := Full([]int{0}, []int{1}, []int{2})
	c := r.Clone()

	c.Cont[0] = Interval{Lower: 0.2, Upper: 0.5}
	c.Cat[0] = []int{1}

	if r.Cont[0].Lower != 0 || r.Cont[0].Upper != 1 {
		t.Errorf("clone mutation leaked into original interval: %v", r.Cont[0])
	}
	if len(r.Cat[0]) != 2 {
		t.Errorf("clone mutation leaked into original retained set: %v", r.Cat[0])
	}
}

func TestVolume(t *testing.T) {
	r := Full([]int{0, 1}, nil, nil)
	r.Cont[0] = Interval{Lower: 0.25, Upper: 0.75}
	r.Cont[1] = Interval{Lower: 0, Upper: 0.1}

	want := 0.5 * 0.1
	if math.Abs(r.Volume()-want) > 1e-12 {
		t.Errorf("Volume() = %f, want %f", r.Volume(), want)
	}
}

func TestContains(t *testing.T) {
	r := Full([]int{0}, []int{1}, []int{3})
	r.Cont[0] = Interval{Lower: 0.2, Upper: 0.8}
	r.Cat[0] = []int{0, 2}

	tests := []struct {
		name string
		x    []float64
		want bool
	}{
		{"inside", []float64{0.5, 0}, true},
		{"below interval", []float64{0.1, 0}, false},
		{"above interval", []float64{0.9, 2}, false},
		{"dropped category", []float64{0.5, 1}, false},
		{"inactive dims ignored", []float64{math.NaN(), math.NaN()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Contains(tt.x); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.x, got, tt.want)
			}
		})
	}
}

func TestIndexLookup(t *testing.T) {
	r := Full([]int{0, 3}, []int{1}, []int{2})
	if r.ContIndex(3) != 1 {
		t.Errorf("ContIndex(3) = %d, want 1", r.ContIndex(3))
	}
	if r.ContIndex(1) != -1 {
		t.Errorf("ContIndex(1) = %d, want -1", r.ContIndex(1))
	}
	if r.CatIndex(1) != 0 {
		t.Errorf("CatIndex(1) = %d, want 0", r.CatIndex(1))
	}
}

func TestSetArithmetic(t *testing.T) {
	set := []int{0, 1, 2, 3}
	split := []int{1, 3, 5}

	if got := Intersect(set, split); !reflect.DeepEqual(got, []int{1, 3}) {
		t.Errorf("Intersect = %v, want [1 3]", got)
	}
	if got := Difference(set, split); !reflect.DeepEqual(got, []int{0, 2}) {
		t.Errorf("Difference = %v, want [0 2]", got)
	}
	if got := Intersect(set, nil); got != nil {
		t.Errorf("Intersect with empty split = %v, want nil", got)
	}
}
