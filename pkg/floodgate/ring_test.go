package floodgate

import (
	"math"
	"testing"
)

func TestFloatRingWraps(t *testing.T) {
	r := newFloatRing(3)

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}

	r.Push(1)
	r.Push(2)
	r.Push(3)
	r.Push(4) // evicts 1

	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}

	want := []float64{2, 3, 4}
	got := r.Values()
	if len(got) != len(want) {
		t.Fatalf("Values() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFloatRingMeanVariance(t *testing.T) {
	tests := []struct {
		name         string
		values       []float64
		wantMean     float64
		wantVariance float64
	}{
		{
			name:         "empty ring",
			values:       nil,
			wantMean:     0,
			wantVariance: 0,
		},
		{
			name:         "single value",
			values:       []float64{5},
			wantMean:     5,
			wantVariance: 0,
		},
		{
			name:         "uniform values",
			values:       []float64{2, 2, 2, 2},
			wantMean:     2,
			wantVariance: 0,
		},
		{
			name:         "spread values",
			values:       []float64{1, 3},
			wantMean:     2,
			wantVariance: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFloatRing(10)
			for _, v := range tt.values {
				r.Push(v)
			}
			mean, variance := r.MeanVariance()
			if math.Abs(mean-tt.wantMean) > 1e-9 {
				t.Errorf("mean = %v, want %v", mean, tt.wantMean)
			}
			if math.Abs(variance-tt.wantVariance) > 1e-9 {
				t.Errorf("variance = %v, want %v", variance, tt.wantVariance)
			}
		})
	}
}

func TestStringRingDistinct(t *testing.T) {
	r := newStringRing(3)
	r.Push("a")
	r.Push("b")
	r.Push("a")

	if got := r.Distinct(); got != 2 {
		t.Errorf("Distinct() = %d, want 2", got)
	}

	// Wrapping evicts the oldest "a"; "c" joins "a", "b" slots.
	r.Push("c")
	if got := r.Distinct(); got != 3 {
		t.Errorf("Distinct() after wrap = %d, want 3", got)
	}
	if got := r.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
}
