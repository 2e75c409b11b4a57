package extractors

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-gunshot/algorithms/chroma"
	"github.com/RyanBlaney/sonido-gunshot/algorithms/common"
	"github.com/RyanBlaney/sonido-gunshot/algorithms/spectral"
	"github.com/RyanBlaney/sonido-gunshot/algorithms/temporal"
	"github.com/RyanBlaney/sonido-gunshot/logging"
)

const (
	contrastFMin     = 200.0
	contrastOctaves  = 6
	contrastQuantile = 0.02
)

// ClassicParams are the extraction settings a classical model was trained
// with.
type ClassicParams struct {
	NMFCC       int     `json:"n_mfcc" yaml:"n_mfcc"`
	NFFT        int     `json:"n_fft" yaml:"n_fft"`
	HopLength   int     `json:"hop_length" yaml:"hop_length"`
	MaxDuration float64 `json:"max_duration" yaml:"max_duration"`
}

// DefaultClassicParams returns 40 MFCCs, 2048-point frames at hop 512 and a
// 3 second window.
func DefaultClassicParams() ClassicParams {
	return ClassicParams{
		NMFCC:       40,
		NFFT:        2048,
		HopLength:   512,
		MaxDuration: 3.0,
	}
}

// ClassicDimension is the vector length produced for nMFCC coefficients:
// four MFCC statistics per coefficient plus 48 fixed statistics.
func ClassicDimension(nMFCC int) int {
	return 4*nMFCC + 3 + 2 + 2 + 2*chroma.NumPitchClasses + 2*(contrastOctaves+1) + 3
}

// ClassicBuilder produces the fixed-order feature vector scored by
// classical models. The order of the blocks is part of the model contract:
//
//	MFCC mean, std, max, min (each nMFCC)
//	centroid mean, std, max
//	rolloff mean, std
//	zero-crossing mean, std
//	chroma mean (12), chroma std (12)
//	contrast mean (7), contrast std (7)
//	RMS mean, std, max
type ClassicBuilder struct {
	logger logging.Logger
}

// NewClassicBuilder creates a classic feature vector builder
func NewClassicBuilder() *ClassicBuilder {
	return &ClassicBuilder{
		logger: logging.WithFields(logging.Fields{
			"component": "classic_feature_builder",
		}),
	}
}

// Build truncates samples to params.MaxDuration, peak-normalises them and
// returns the feature vector.
func (b *ClassicBuilder) Build(samples []float64, sampleRate int, params ClassicParams) ([]float64, error) {
	if len(samples) == 0 || sampleRate <= 0 {
		return nil, &ExtractionError{Stage: "input", Err: fmt.Errorf("empty waveform or invalid sample rate %d", sampleRate)}
	}
	if params.NMFCC <= 0 || params.NFFT <= 0 || params.HopLength <= 0 {
		return nil, &ExtractionError{Stage: "input", Err: fmt.Errorf("invalid extraction parameters %+v", params)}
	}
	if contrastFMin*math.Pow(2, contrastOctaves-1) >= float64(sampleRate)/2 {
		return nil, &ExtractionError{Stage: "contrast", Err: fmt.Errorf("octave bands exceed Nyquist at %d Hz", sampleRate)}
	}

	if params.MaxDuration > 0 {
		limit := int(params.MaxDuration * float64(sampleRate))
		if len(samples) > limit {
			samples = samples[:limit]
		}
	}
	y := common.PeakNormalize(samples)

	stft, err := spectral.NewSTFT().Compute(y, spectral.STFTConfig{
		WindowSize: params.NFFT,
		HopSize:    params.HopLength,
		SampleRate: sampleRate,
		Center:     true,
	})
	if err != nil {
		return nil, &ExtractionError{Stage: "stft", Err: err}
	}

	mfcc, err := spectral.NewMFCC(sampleRate, params.NFFT, params.NMFCC)
	if err != nil {
		return nil, &ExtractionError{Stage: "mfcc", Err: err}
	}
	mfccFrames, err := mfcc.ComputeFrames(stft.Magnitude)
	if err != nil {
		return nil, &ExtractionError{Stage: "mfcc", Err: err}
	}

	centroid := spectral.NewSpectralCentroid(sampleRate, params.NFFT).ComputeFrames(stft.Magnitude)
	rolloff := spectral.NewSpectralRolloff(sampleRate, params.NFFT).ComputeFrames(stft.Magnitude, spectral.DefaultRolloffPercent)
	zcr := spectral.NewZeroCrossingRate(params.NFFT, params.HopLength).ComputeFrames(y)
	chromagram := chroma.NewChromaSTFTDefault(sampleRate, params.NFFT).ComputeFrames(stft.Magnitude)
	contrast := spectral.NewSpectralContrast(sampleRate, params.NFFT, contrastFMin, contrastOctaves, contrastQuantile).
		ComputeFrames(stft.Magnitude)
	rms := temporal.NewEnvelope().ComputeRMS(y, params.NFFT, params.HopLength, true)

	vector := make([]float64, 0, ClassicDimension(params.NMFCC))

	vector = appendColumnStats(vector, mfccFrames, params.NMFCC, common.Mean)
	vector = appendColumnStats(vector, mfccFrames, params.NMFCC, common.PopulationStdDev)
	vector = appendColumnStats(vector, mfccFrames, params.NMFCC, common.Max)
	vector = appendColumnStats(vector, mfccFrames, params.NMFCC, common.Min)

	vector = append(vector, common.Mean(centroid), common.PopulationStdDev(centroid), common.Max(centroid))
	vector = append(vector, common.Mean(rolloff), common.PopulationStdDev(rolloff))
	vector = append(vector, common.Mean(zcr), common.PopulationStdDev(zcr))

	vector = appendColumnStats(vector, chromagram, chroma.NumPitchClasses, common.Mean)
	vector = appendColumnStats(vector, chromagram, chroma.NumPitchClasses, common.PopulationStdDev)

	vector = appendColumnStats(vector, contrast, contrastOctaves+1, common.Mean)
	vector = appendColumnStats(vector, contrast, contrastOctaves+1, common.PopulationStdDev)

	vector = append(vector, common.Mean(rms), common.PopulationStdDev(rms), common.Max(rms))

	b.logger.Debug("Built classic feature vector", logging.Fields{
		"function":    "Build",
		"dimension":   len(vector),
		"time_frames": stft.TimeFrames,
	})

	return vector, nil
}

func appendColumnStats(dst []float64, matrix [][]float64, columns int, stat func([]float64) float64) []float64 {
	for j := range columns {
		dst = append(dst, stat(common.Column(matrix, j)))
	}
	return dst
}
