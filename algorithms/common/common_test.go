package common

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestStatistics(t *testing.T) {
	data := []float64{1, 2, 3, 4}

	if got := Mean(data); got != 2.5 {
		t.Errorf("Mean = %v, want 2.5", got)
	}
	if got := PopulationStdDev(data); !almostEqual(got, math.Sqrt(1.25), 1e-12) {
		t.Errorf("PopulationStdDev = %v, want %v", got, math.Sqrt(1.25))
	}
	if got := Max(data); got != 4 {
		t.Errorf("Max = %v, want 4", got)
	}
	if got := Min(data); got != 1 {
		t.Errorf("Min = %v, want 1", got)
	}
	if got := Argmax([]float64{3, 7, 7, 1}); got != 1 {
		t.Errorf("Argmax = %d, want 1", got)
	}
	if got := Argmax(nil); got != -1 {
		t.Errorf("Argmax(nil) = %d, want -1", got)
	}
	if got := RMS([]float64{3, -3}); got != 3 {
		t.Errorf("RMS = %v, want 3", got)
	}
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v, want 0", got)
	}
}

func TestClampAndRound(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{"inside", 0.4, 0.4},
		{"below", -1, 0},
		{"above", 1.5, 1},
		{"nan", math.NaN(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clamp(tt.value, 0, 1); got != tt.want {
				t.Errorf("Clamp(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}

	if got := Round(0.126, 2); got != 0.13 {
		t.Errorf("Round(0.126, 2) = %v, want 0.13", got)
	}
	if got := Round(1.5, 0); got != 2 {
		t.Errorf("Round(1.5, 0) = %v, want 2", got)
	}
}

func TestPeakNormalize(t *testing.T) {
	in := []float64{0.25, -0.5, 0.1}
	out := PeakNormalize(in)

	if out[1] != -1 || out[0] != 0.5 {
		t.Errorf("PeakNormalize = %v", out)
	}
	if in[1] != -0.5 {
		t.Error("PeakNormalize mutated its input")
	}

	silent := PeakNormalize([]float64{0, 0})
	if silent[0] != 0 || silent[1] != 0 {
		t.Errorf("silent input changed: %v", silent)
	}
}

func TestMinMaxNormalize2D(t *testing.T) {
	out := MinMaxNormalize2D([][]float64{{-80, 0}, {-40, -20}})
	if !almostEqual(out[0][0], 0, 1e-9) || !almostEqual(out[0][1], 1, 1e-9) || !almostEqual(out[1][0], 0.5, 1e-9) {
		t.Errorf("MinMaxNormalize2D = %v", out)
	}

	constant := MinMaxNormalize2D([][]float64{{3, 3}, {3, 3}})
	for _, row := range constant {
		for _, v := range row {
			if v != 0 {
				t.Fatalf("constant matrix should normalise to zeros, got %v", constant)
			}
		}
	}
}

func TestResizeBilinear(t *testing.T) {
	data := [][]float64{{0, 1}, {2, 3}}

	same := ResizeBilinear(data, 2, 2)
	for i := range data {
		for j := range data[i] {
			if same[i][j] != data[i][j] {
				t.Fatalf("identity resize changed values: %v", same)
			}
		}
	}

	up := ResizeBilinear(data, 4, 6)
	if len(up) != 4 || len(up[0]) != 6 {
		t.Fatalf("shape = %dx%d, want 4x6", len(up), len(up[0]))
	}
	for _, row := range up {
		for _, v := range row {
			if v < 0 || v > 3 {
				t.Fatalf("interpolated value %v outside input range", v)
			}
		}
	}
	if up[0][0] != 0 || up[3][5] != 3 {
		t.Errorf("corners = %v, %v; want 0, 3", up[0][0], up[3][5])
	}
}

func TestFraming(t *testing.T) {
	if got := FrameCount(10, 4, 2); got != 4 {
		t.Errorf("FrameCount = %d, want 4", got)
	}
	if got := FrameCount(3, 4, 2); got != 0 {
		t.Errorf("FrameCount short = %d, want 0", got)
	}

	signal := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	frames := CenteredFrames(signal, 4, 2)
	if len(frames) != 6 {
		t.Fatalf("CenteredFrames returned %d frames, want 6", len(frames))
	}
	if frames[0][0] != 0 || frames[0][2] != 1 {
		t.Errorf("first frame = %v, want zero padded start", frames[0])
	}

	edge := PadEdge([]float64{1, 2, 3}, 2)
	want := []float64{1, 1, 1, 2, 3, 3, 3}
	for i := range want {
		if edge[i] != want[i] {
			t.Fatalf("PadEdge = %v, want %v", edge, want)
		}
	}
}
