package spectral

import (
	"fmt"
	"math"
)

// MFCC computes Mel-Frequency Cepstral Coefficients from magnitude frames.
// The filter bank and DCT matrix are built once by the constructor and never
// mutated, so an MFCC value is safe for concurrent use.
type MFCC struct {
	numCoefficients int
	numMelFilters   int
	sampleRate      int
	fftSize         int
	lowFreq         float64
	highFreq        float64

	melScale   *MelScale
	filterBank [][]float64
	dctMatrix  [][]float64
}

// MFCCParams contains parameters for MFCC computation
type MFCCParams struct {
	NumCoefficients int     `json:"num_coefficients"` // Number of MFCC coefficients (default: 20)
	NumMelFilters   int     `json:"num_mel_filters"`  // Number of mel filter bank filters (default: 128)
	LowFreq         float64 `json:"low_freq"`         // Low frequency bound (default: 0)
	HighFreq        float64 `json:"high_freq"`        // High frequency bound (default: sampleRate/2)
}

// NewMFCC creates a new MFCC computer with 128 mel filters spanning
// 0 Hz to Nyquist.
func NewMFCC(sampleRate, fftSize, numCoefficients int) (*MFCC, error) {
	return NewMFCCWithParams(sampleRate, fftSize, MFCCParams{
		NumCoefficients: numCoefficients,
		NumMelFilters:   128,
	})
}

// NewMFCCWithParams creates a new MFCC computer with custom parameters
func NewMFCCWithParams(sampleRate, fftSize int, params MFCCParams) (*MFCC, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if fftSize <= 0 {
		return nil, fmt.Errorf("invalid FFT size: %d", fftSize)
	}

	if params.NumCoefficients <= 0 {
		params.NumCoefficients = 20
	}
	if params.NumMelFilters <= 0 {
		params.NumMelFilters = 128
	}
	if params.HighFreq <= 0 {
		params.HighFreq = float64(sampleRate) / 2.0
	}
	if params.NumCoefficients > params.NumMelFilters {
		return nil, fmt.Errorf("%d coefficients requested from %d mel filters", params.NumCoefficients, params.NumMelFilters)
	}

	mfcc := &MFCC{
		numCoefficients: params.NumCoefficients,
		numMelFilters:   params.NumMelFilters,
		sampleRate:      sampleRate,
		fftSize:         fftSize,
		lowFreq:         params.LowFreq,
		highFreq:        params.HighFreq,
		melScale:        NewMelScale(),
	}

	mfcc.filterBank = mfcc.melScale.CreateMelFilterBank(
		mfcc.numMelFilters,
		fftSize,
		sampleRate,
		mfcc.lowFreq,
		mfcc.highFreq,
	)
	if len(mfcc.filterBank) == 0 {
		return nil, fmt.Errorf("failed to create mel filter bank")
	}

	mfcc.dctMatrix = orthoDCTMatrix(mfcc.numCoefficients, mfcc.numMelFilters)

	return mfcc, nil
}

// ComputeFrames converts a frames x bins magnitude spectrogram into a
// frames x coefficients matrix. The log mel spectrogram is taken over the
// whole input so the 80 dB floor is relative to its loudest cell.
func (mfcc *MFCC) ComputeFrames(spectrogram [][]float64) ([][]float64, error) {
	if len(spectrogram) == 0 {
		return nil, fmt.Errorf("empty spectrogram")
	}

	expectedBins := mfcc.fftSize/2 + 1
	power := make([][]float64, len(spectrogram))
	for t, frame := range spectrogram {
		if len(frame) != expectedBins {
			return nil, fmt.Errorf("frame %d has %d bins, expected %d", t, len(frame), expectedBins)
		}
		power[t] = make([]float64, len(frame))
		for i, mag := range frame {
			power[t][i] = mag * mag
		}
	}

	melFrames := mfcc.melScale.MelSpectrogram(power, mfcc.filterBank)
	logMel := PowerToDB(melFrames, DefaultDecibelParams())

	coeffs := make([][]float64, len(logMel))
	for t, frame := range logMel {
		coeffs[t] = mfcc.applyDCT(frame)
	}

	return coeffs, nil
}

// NumCoefficients returns the number of coefficients per frame.
func (mfcc *MFCC) NumCoefficients() int {
	return mfcc.numCoefficients
}

// orthoDCTMatrix builds an orthonormal DCT-II basis.
func orthoDCTMatrix(numCoefficients, numInputs int) [][]float64 {
	matrix := make([][]float64, numCoefficients)

	for k := range numCoefficients {
		matrix[k] = make([]float64, numInputs)

		scale := math.Sqrt(2.0 / float64(numInputs))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(numInputs))
		}

		for n := range numInputs {
			matrix[k][n] = scale * math.Cos(math.Pi*float64(k)*(float64(n)+0.5)/float64(numInputs))
		}
	}

	return matrix
}

func (mfcc *MFCC) applyDCT(logMelSpectrum []float64) []float64 {
	mfccCoeffs := make([]float64, mfcc.numCoefficients)

	for k, basis := range mfcc.dctMatrix {
		sum := 0.0
		for n := 0; n < len(logMelSpectrum) && n < len(basis); n++ {
			sum += logMelSpectrum[n] * basis[n]
		}
		mfccCoeffs[k] = sum
	}

	return mfccCoeffs
}
