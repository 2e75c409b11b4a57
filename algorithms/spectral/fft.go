package spectral

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/RyanBlaney/sonido-gunshot/algorithms/common"
)

// FFT provides Fast Fourier Transform functionality
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the Fast Fourier Transform using mjibson/go-dsp.
// go-dsp handles all sizes, including non-power-of-2.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}

	return fft.FFTReal(x)
}

// HalfMagnitude returns the magnitudes of the first len(x)/2 bins, the
// non-negative frequencies excluding Nyquist.
func (f *FFT) HalfMagnitude(x []float64) []float64 {
	spectrum := f.Compute(x)
	half := len(spectrum) / 2
	mags := make([]float64, half)
	for i := range half {
		mags[i] = cmplx.Abs(spectrum[i])
	}
	return mags
}

// PeakFrequency returns the frequency of the strongest bin in the lower half
// of the full-length transform. The bin index is scaled by sampleRate/(N-1),
// which keeps values comparable with descriptors produced by earlier tooling.
func (f *FFT) PeakFrequency(signal []float64, sampleRate int) float64 {
	if len(signal) < 2 || sampleRate <= 0 {
		return 0
	}

	mags := f.HalfMagnitude(signal)
	idx := common.Argmax(mags)
	if idx < 0 {
		return 0
	}

	return float64(idx) * float64(sampleRate) / float64(len(signal)-1)
}

// FFTFrequencies returns the centre frequency of each of the fftSize/2+1
// one-sided bins.
func FFTFrequencies(sampleRate, fftSize int) []float64 {
	bins := fftSize/2 + 1
	freqs := make([]float64, bins)
	for i := range bins {
		freqs[i] = float64(i) * float64(sampleRate) / float64(fftSize)
	}
	return freqs
}
