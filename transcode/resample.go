package transcode

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono samples from fromRate to toRate. The output holds
// round(len*toRate/fromRate) samples; equal rates return a copy.
func Resample(samples []float64, fromRate, toRate int) ([]float64, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid resample rates: %d -> %d", fromRate, toRate)
	}

	if fromRate == toRate || len(samples) == 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(fromRate),
		OutputRate: float64(toRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	out, err := r.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("resample failed: %w", err)
	}

	// a zero tail pushes the filter delay out of the resampler
	tail, err := r.Process(make([]float64, fromRate/10+1))
	if err != nil {
		return nil, fmt.Errorf("resample flush failed: %w", err)
	}
	out = append(out, tail...)

	return fitLength(out, ResampledLength(len(samples), fromRate, toRate)), nil
}

// ResampledLength is the number of samples n input samples occupy at toRate.
func ResampledLength(n, fromRate, toRate int) int {
	if fromRate <= 0 {
		return 0
	}
	return int(math.Round(float64(n) * float64(toRate) / float64(fromRate)))
}

func fitLength(samples []float64, n int) []float64 {
	if len(samples) >= n {
		return samples[:n]
	}
	out := make([]float64, n)
	copy(out, samples)
	return out
}
