package windowing

import (
	"fmt"
	"math"
)

// Hann represents a Hann window function. The coefficients are computed once
// and never mutated, so one window may be shared by concurrent workers.
type Hann struct {
	size         int
	symmetric    bool
	coefficients []float64
}

// NewHann creates a new Hann window
func NewHann(size int, symmetric bool) *Hann {
	h := &Hann{
		size:      size,
		symmetric: symmetric,
	}
	h.generate()
	return h
}

// NewPeriodicHann creates the DFT-even window used for spectral analysis.
func NewPeriodicHann(size int) *Hann {
	return NewHann(size, false)
}

func (h *Hann) generate() {
	h.coefficients = make([]float64, h.size)
	if h.size == 1 {
		h.coefficients[0] = 1
		return
	}

	denominator := float64(h.size)
	if h.symmetric {
		denominator = float64(h.size - 1)
	}

	for i := range h.size {
		h.coefficients[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/denominator))
	}
}

// ApplyTo writes src multiplied by the window into dst.
func (h *Hann) ApplyTo(dst, src []float64) error {
	if len(src) != h.size || len(dst) != h.size {
		return fmt.Errorf("frame length (%d -> %d) doesn't match window size (%d)", len(src), len(dst), h.size)
	}

	for i, c := range h.coefficients {
		dst[i] = src[i] * c
	}

	return nil
}

// GetSize returns the window size
func (h *Hann) GetSize() int {
	return h.size
}
