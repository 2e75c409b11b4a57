package spectral

import (
	"math"
	"slices"
)

// SpectralContrast measures the difference between peaks and valleys in
// octave bands. Band k>0 spans [fmin*2^(k-1), fmin*2^k]; band 0 covers
// everything below fmin and the last band runs to Nyquist.
type SpectralContrast struct {
	numBands int
	quantile float64
	bands    []contrastBand
}

type contrastBand struct {
	lo, hi int // inclusive bin range of the values that are sorted
	count  int // bins used to size the quantile
}

// NewSpectralContrast creates a calculator with numBands octave bands above
// fmin, plus the sub-fmin band. The default analysis uses fmin 200 Hz, six
// octaves and quantile 0.02.
func NewSpectralContrast(sampleRate, fftSize int, fmin float64, numOctaves int, quantile float64) *SpectralContrast {
	freqs := FFTFrequencies(sampleRate, fftSize)

	edges := make([]float64, numOctaves+2)
	for i := 1; i < len(edges); i++ {
		edges[i] = fmin * math.Pow(2, float64(i-1))
	}

	sc := &SpectralContrast{
		numBands: numOctaves + 1,
		quantile: quantile,
		bands:    make([]contrastBand, numOctaves+1),
	}

	for k := range sc.bands {
		low, high := edges[k], edges[k+1]

		first, last := -1, -1
		for i, f := range freqs {
			if f >= low && f <= high {
				if first < 0 {
					first = i
				}
				last = i
			}
		}
		if first < 0 {
			sc.bands[k] = contrastBand{lo: 0, hi: -1}
			continue
		}

		if k > 0 && first > 0 {
			first--
		}
		if k == numOctaves {
			last = len(freqs) - 1
		}

		band := contrastBand{lo: first, hi: last, count: last - first + 1}
		if k < numOctaves {
			band.hi--
		}
		sc.bands[k] = band
	}

	return sc
}

// NumBands returns the number of contrast values per frame.
func (sc *SpectralContrast) NumBands() int {
	return sc.numBands
}

// ComputeFrames returns a frames x bands contrast matrix in decibels. Peak and
// valley energies are each converted to dB across the whole input before
// subtracting.
func (sc *SpectralContrast) ComputeFrames(spectrogram [][]float64) [][]float64 {
	peaks := make([][]float64, len(spectrogram))
	valleys := make([][]float64, len(spectrogram))

	for t, spectrum := range spectrogram {
		peaks[t] = make([]float64, sc.numBands)
		valleys[t] = make([]float64, sc.numBands)
		for k, band := range sc.bands {
			peaks[t][k], valleys[t][k] = sc.bandExtremes(spectrum, band)
		}
	}

	params := DefaultDecibelParams()
	peakDB := PowerToDB(peaks, params)
	valleyDB := PowerToDB(valleys, params)

	contrast := make([][]float64, len(spectrogram))
	for t := range contrast {
		contrast[t] = make([]float64, sc.numBands)
		for k := range contrast[t] {
			contrast[t][k] = peakDB[t][k] - valleyDB[t][k]
		}
	}
	return contrast
}

func (sc *SpectralContrast) bandExtremes(spectrum []float64, band contrastBand) (peak, valley float64) {
	hi := min(band.hi, len(spectrum)-1)
	if band.lo > hi {
		return 0, 0
	}

	sorted := slices.Clone(spectrum[band.lo : hi+1])
	slices.Sort(sorted)

	n := max(1, int(math.RoundToEven(sc.quantile*float64(band.count))))
	n = min(n, len(sorted))

	for i := range n {
		valley += sorted[i]
		peak += sorted[len(sorted)-1-i]
	}
	return peak / float64(n), valley / float64(n)
}
