package common

import (
	"math"
)

// MinMaxEpsilon guards the min-max denominator against constant input.
const MinMaxEpsilon = 1e-8

// PeakNormalize scales the signal so its largest absolute sample is 1.
// Silent input is returned as a copy, unchanged.
func PeakNormalize(signal []float64) []float64 {
	normalized := make([]float64, len(signal))
	copy(normalized, signal)

	peak := 0.0
	for _, val := range signal {
		if abs := math.Abs(val); abs > peak {
			peak = abs
		}
	}

	if peak < 1e-10 {
		return normalized
	}

	for i := range normalized {
		normalized[i] /= peak
	}

	return normalized
}

// MinMaxNormalize2D maps a matrix onto [0, 1] using (x-min)/(max-min+eps).
// A constant matrix maps to all zeros.
func MinMaxNormalize2D(matrix [][]float64) [][]float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range matrix {
		for _, v := range row {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}

	out := make([][]float64, len(matrix))
	denominator := hi - lo + MinMaxEpsilon
	for i, row := range matrix {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = Clamp((v-lo)/denominator, 0, 1)
		}
	}

	return out
}
