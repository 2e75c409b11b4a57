package spectral

import (
	"math"
)

const (
	slaneyFreqStep   = 200.0 / 3
	slaneyMinLogHz   = 1000.0
	slaneyMinLogMel  = slaneyMinLogHz / slaneyFreqStep
	slaneyLogStepDen = 27.0
)

var slaneyLogStep = math.Log(6.4) / slaneyLogStepDen

// MelScale provides mel frequency conversion utilities. The default is the
// Slaney (Auditory Toolbox) scale, linear below 1 kHz and logarithmic above.
type MelScale struct {
	htk bool
}

// NewMelScale creates a Slaney mel scale converter
func NewMelScale() *MelScale {
	return &MelScale{}
}

// NewHTKMelScale creates a converter using the HTK formula
// 2595*log10(1+hz/700).
func NewHTKMelScale() *MelScale {
	return &MelScale{htk: true}
}

// HzToMel converts frequency in Hz to mel scale
func (ms *MelScale) HzToMel(hz float64) float64 {
	if ms.htk {
		return 2595.0 * math.Log10(1.0+hz/700.0)
	}

	if hz < slaneyMinLogHz {
		return hz / slaneyFreqStep
	}
	return slaneyMinLogMel + math.Log(hz/slaneyMinLogHz)/slaneyLogStep
}

// MelToHz converts mel scale to frequency in Hz
func (ms *MelScale) MelToHz(mel float64) float64 {
	if ms.htk {
		return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
	}

	if mel < slaneyMinLogMel {
		return mel * slaneyFreqStep
	}
	return slaneyMinLogHz * math.Exp(slaneyLogStep*(mel-slaneyMinLogMel))
}

// MelFrequencies returns n frequencies in Hz evenly spaced on the mel scale
// between lowFreq and highFreq inclusive.
func (ms *MelScale) MelFrequencies(n int, lowFreq, highFreq float64) []float64 {
	if n <= 0 {
		return nil
	}

	lowMel := ms.HzToMel(lowFreq)
	highMel := ms.HzToMel(highFreq)

	freqs := make([]float64, n)
	if n == 1 {
		freqs[0] = ms.MelToHz(lowMel)
		return freqs
	}

	step := (highMel - lowMel) / float64(n-1)
	for i := range freqs {
		freqs[i] = ms.MelToHz(lowMel + float64(i)*step)
	}
	return freqs
}

// CreateMelFilterBank creates a numFilters x (fftSize/2+1) bank of
// triangular filters evaluated on continuous bin frequencies. Each filter is
// area normalised by 2/(upper-lower) so the bank approximates constant
// energy per channel.
func (ms *MelScale) CreateMelFilterBank(numFilters int, fftSize int, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	if numFilters <= 0 || fftSize <= 0 || sampleRate <= 0 {
		return nil
	}

	if highFreq <= 0 {
		highFreq = float64(sampleRate) / 2
	}

	fftFreqs := FFTFrequencies(sampleRate, fftSize)
	melFreqs := ms.MelFrequencies(numFilters+2, lowFreq, highFreq)

	filterBank := make([][]float64, numFilters)
	for i := range filterBank {
		filterBank[i] = make([]float64, len(fftFreqs))

		lower, centre, upper := melFreqs[i], melFreqs[i+1], melFreqs[i+2]
		riseWidth := centre - lower
		fallWidth := upper - centre
		enorm := 2.0 / (upper - lower)

		for k, f := range fftFreqs {
			rising := (f - lower) / riseWidth
			falling := (upper - f) / fallWidth
			if w := math.Min(rising, falling); w > 0 {
				filterBank[i][k] = w * enorm
			}
		}
	}

	return filterBank
}

// ApplyFilterBank applies mel filter bank to power spectrum
func (ms *MelScale) ApplyFilterBank(powerSpectrum []float64, filterBank [][]float64) []float64 {
	if len(filterBank) == 0 || len(powerSpectrum) == 0 {
		return []float64{}
	}

	melSpectrum := make([]float64, len(filterBank))

	for i, filter := range filterBank {
		sum := 0.0
		for j := 0; j < len(filter) && j < len(powerSpectrum); j++ {
			sum += powerSpectrum[j] * filter[j]
		}
		melSpectrum[i] = sum
	}

	return melSpectrum
}

// MelSpectrogram projects every power frame through the filter bank,
// returning a frames x filters matrix.
func (ms *MelScale) MelSpectrogram(powerFrames [][]float64, filterBank [][]float64) [][]float64 {
	melSpectrogram := make([][]float64, len(powerFrames))
	for t, frame := range powerFrames {
		melSpectrogram[t] = ms.ApplyFilterBank(frame, filterBank)
	}
	return melSpectrogram
}
