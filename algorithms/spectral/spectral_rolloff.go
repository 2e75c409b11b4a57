package spectral

// DefaultRolloffPercent is the fraction of spectral magnitude below the
// rolloff frequency.
const DefaultRolloffPercent = 0.85

// SpectralRolloff computes spectral rolloff frequency
type SpectralRolloff struct {
	freqBins []float64
}

// NewSpectralRolloff creates a calculator for one-sided spectra of an
// fftSize-point transform.
func NewSpectralRolloff(sampleRate, fftSize int) *SpectralRolloff {
	return &SpectralRolloff{
		freqBins: FFTFrequencies(sampleRate, fftSize),
	}
}

// Compute returns the lowest bin frequency at which the cumulative magnitude
// reaches percent of the total. Silent frames report 0 Hz.
func (sr *SpectralRolloff) Compute(spectrum []float64, percent float64) float64 {
	n := min(len(spectrum), len(sr.freqBins))
	if n == 0 {
		return 0
	}

	total := 0.0
	for i := range n {
		total += spectrum[i]
	}

	if total == 0 {
		return 0
	}

	target := percent * total
	cumulative := 0.0

	for i := range n {
		cumulative += spectrum[i]
		if cumulative >= target {
			return sr.freqBins[i]
		}
	}

	return sr.freqBins[n-1]
}

// ComputeFrames processes multiple frames
func (sr *SpectralRolloff) ComputeFrames(spectrogram [][]float64, percent float64) []float64 {
	rolloffs := make([]float64, len(spectrogram))

	for t, spectrum := range spectrogram {
		rolloffs[t] = sr.Compute(spectrum, percent)
	}

	return rolloffs
}
