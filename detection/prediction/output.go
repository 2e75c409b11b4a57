package prediction

import (
	"errors"
	"fmt"
	"math"
)

// SimplexTolerance is the allowed deviation of a probability vector's sum
// from 1.
const SimplexTolerance = 1e-3

// PositiveClassIndex is the output index holding the gunshot class.
const PositiveClassIndex = 1

// InterpretOutput maps a raw model output to the gunshot probability. A
// single value is taken as a sigmoid output. Two or more values are used as
// is when they already form a probability simplex, otherwise softmax is
// applied first; index 1 is the positive class.
func InterpretOutput(raw []float32) (float64, error) {
	if len(raw) == 0 {
		return 0, errors.New("model produced no output")
	}

	values := make([]float64, len(raw))
	for i, v := range raw {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("model output %d is not finite", i)
		}
		values[i] = f
	}

	if len(values) == 1 {
		return ClampProbability(values[0]), nil
	}

	if !IsSimplex(values) {
		values = Softmax(values)
	}
	return ClampProbability(values[PositiveClassIndex]), nil
}

// IsSimplex reports whether every value is in [0, 1] and the sum is within
// SimplexTolerance of 1.
func IsSimplex(values []float64) bool {
	sum := 0.0
	for _, v := range values {
		if v < 0 || v > 1 {
			return false
		}
		sum += v
	}
	return math.Abs(sum-1) <= SimplexTolerance
}

// Softmax returns exp(v-max)/sum for numerical stability.
func Softmax(values []float64) []float64 {
	peak := math.Inf(-1)
	for _, v := range values {
		peak = math.Max(peak, v)
	}

	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		out[i] = math.Exp(v - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
