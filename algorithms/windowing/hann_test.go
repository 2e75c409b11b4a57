package windowing

import (
	"math"
	"testing"
)

func TestHannCoefficients(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		symmetric bool
		want      []float64
	}{
		{"periodic", 4, false, []float64{0, 0.5, 1, 0.5}},
		{"symmetric", 3, true, []float64{0, 1, 0}},
		{"single", 1, false, []float64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHann(tt.size, tt.symmetric)
			ones := make([]float64, tt.size)
			for i := range ones {
				ones[i] = 1
			}
			got := make([]float64, tt.size)
			if err := h.ApplyTo(got, ones); err != nil {
				t.Fatalf("ApplyTo: %v", err)
			}
			for i := range tt.want {
				if math.Abs(got[i]-tt.want[i]) > 1e-12 {
					t.Fatalf("coefficients = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestHannSizeMismatch(t *testing.T) {
	h := NewPeriodicHann(8)
	if err := h.ApplyTo(make([]float64, 8), make([]float64, 4)); err == nil {
		t.Fatal("expected error for mismatched frame length")
	}
	if h.GetSize() != 8 {
		t.Errorf("GetSize = %d, want 8", h.GetSize())
	}
}
