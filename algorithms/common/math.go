package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical functions used across algorithms using gonum for robustness

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// PopulationStdDev calculates the standard deviation with a divisor of N
// (numpy's default), not the sample estimate.
func PopulationStdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	_, variance := stat.PopMeanVariance(data, nil)
	return math.Sqrt(variance)
}

// Max returns the largest value, 0 for empty input.
func Max(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Max(data)
}

// Min returns the smallest value, 0 for empty input.
func Min(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Min(data)
}

// Argmax returns the index of the first maximum, -1 for empty input.
func Argmax(data []float64) int {
	if len(data) == 0 {
		return -1
	}
	return floats.MaxIdx(data)
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}

	sumSquares := 0.0
	for _, val := range data {
		sumSquares += val * val
	}

	return math.Sqrt(sumSquares / float64(len(data)))
}

// Column extracts column j of a row-major matrix.
func Column(matrix [][]float64, j int) []float64 {
	col := make([]float64, 0, len(matrix))
	for _, row := range matrix {
		if j < len(row) {
			col = append(col, row[j])
		}
	}
	return col
}

// Clamp restricts value to the range [min, max]
func Clamp(value, min, max float64) float64 {
	if math.IsNaN(value) {
		return min
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Round rounds half away from zero to the given number of decimals.
func Round(value float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(value*scale) / scale
}
