package spectral

// SpectralCentroid computes the spectral centroid (center of mass) of a
// magnitude spectrum.
type SpectralCentroid struct {
	sampleRate int
	freqBins   []float64
}

// NewSpectralCentroid creates a calculator for one-sided spectra of an
// fftSize-point transform.
func NewSpectralCentroid(sampleRate, fftSize int) *SpectralCentroid {
	return &SpectralCentroid{
		sampleRate: sampleRate,
		freqBins:   FFTFrequencies(sampleRate, fftSize),
	}
}

// Compute calculates spectral centroid for a single magnitude spectrum
func (sc *SpectralCentroid) Compute(spectrum []float64) float64 {
	numerator := 0.0
	denominator := 0.0

	for i := 0; i < len(spectrum) && i < len(sc.freqBins); i++ {
		numerator += sc.freqBins[i] * spectrum[i]
		denominator += spectrum[i]
	}

	if denominator == 0 {
		return 0
	}

	return numerator / denominator
}

// ComputeFrames processes multiple frames
func (sc *SpectralCentroid) ComputeFrames(spectrogram [][]float64) []float64 {
	centroids := make([]float64, len(spectrogram))

	for t, spectrum := range spectrogram {
		centroids[t] = sc.Compute(spectrum)
	}

	return centroids
}
