package extractors

import (
	"github.com/RyanBlaney/sonido-gunshot/algorithms/common"
	"github.com/RyanBlaney/sonido-gunshot/algorithms/spectral"
	"github.com/RyanBlaney/sonido-gunshot/algorithms/temporal"
	"github.com/RyanBlaney/sonido-gunshot/logging"
)

// ExtractionParams controls the framewise analysis behind a descriptor.
type ExtractionParams struct {
	NFFT           int     `json:"n_fft"`
	HopLength      int     `json:"hop_length"`
	NMFCC          int     `json:"n_mfcc"`
	MaxOnsets      int     `json:"max_onsets"`
	RolloffPercent float64 `json:"rolloff_percent"`
}

// DefaultExtractionParams returns 2048-point frames at hop 512, 13 MFCCs,
// 10 reported onsets and an 85% rolloff.
func DefaultExtractionParams() ExtractionParams {
	return ExtractionParams{
		NFFT:           2048,
		HopLength:      512,
		NMFCC:          13,
		MaxOnsets:      10,
		RolloffPercent: spectral.DefaultRolloffPercent,
	}
}

// Extractor builds AudioDescriptors. It holds no per-request state and is
// safe for concurrent use.
type Extractor struct {
	params ExtractionParams
	logger logging.Logger
}

// NewExtractor creates a descriptor extractor. Zero fields in params take
// their defaults.
func NewExtractor(params ExtractionParams) *Extractor {
	defaults := DefaultExtractionParams()
	if params.NFFT <= 0 {
		params.NFFT = defaults.NFFT
	}
	if params.HopLength <= 0 {
		params.HopLength = defaults.HopLength
	}
	if params.NMFCC <= 0 {
		params.NMFCC = defaults.NMFCC
	}
	if params.MaxOnsets <= 0 {
		params.MaxOnsets = defaults.MaxOnsets
	}
	if params.RolloffPercent <= 0 || params.RolloffPercent > 1 {
		params.RolloffPercent = defaults.RolloffPercent
	}

	return &Extractor{
		params: params,
		logger: logging.WithFields(logging.Fields{
			"component": "feature_extractor",
		}),
	}
}

// Params returns the effective extraction parameters.
func (e *Extractor) Params() ExtractionParams {
	return e.params
}

// Extract computes the descriptor of w. It fails with a DecodeError when the
// waveform is empty or not finite.
func (e *Extractor) Extract(w Waveform) (*AudioDescriptor, error) {
	logger := e.logger.WithFields(logging.Fields{
		"function": "Extract",
		"source":   w.Source,
	})

	if err := w.Validate(); err != nil {
		logger.Error(err, "Rejected waveform")
		return nil, err
	}

	sr := w.SampleRate
	nfft, hop := e.params.NFFT, e.params.HopLength

	stft, err := spectral.NewSTFT().Compute(w.Samples, spectral.STFTConfig{
		WindowSize: nfft,
		HopSize:    hop,
		SampleRate: sr,
		Center:     true,
	})
	if err != nil {
		return nil, &ExtractionError{Stage: "stft", Err: err}
	}

	mfcc, err := spectral.NewMFCC(sr, nfft, e.params.NMFCC)
	if err != nil {
		return nil, &ExtractionError{Stage: "mfcc", Err: err}
	}
	mfccFrames, err := mfcc.ComputeFrames(stft.Magnitude)
	if err != nil {
		return nil, &ExtractionError{Stage: "mfcc", Err: err}
	}

	mfccMeans := make([]float64, e.params.NMFCC)
	for k := range mfccMeans {
		mfccMeans[k] = common.Mean(common.Column(mfccFrames, k))
	}

	onsets := temporal.NewOnsetDetection(nfft, hop, temporal.DefaultPeakPickParams()).
		DetectTimes(w.Samples, sr)

	channels := w.Channels
	if channels <= 0 {
		channels = 1
	}

	desc := &AudioDescriptor{
		Duration:         w.Duration(),
		SampleRate:       sr,
		Channels:         channels,
		Energy:           common.Mean(temporal.NewEnvelope().ComputeRMS(w.Samples, nfft, hop, true)),
		PeakFrequency:    spectral.NewFFT().PeakFrequency(w.Samples, sr),
		SpectralCentroid: common.Mean(spectral.NewSpectralCentroid(sr, nfft).ComputeFrames(stft.Magnitude)),
		SpectralRolloff:  common.Mean(spectral.NewSpectralRolloff(sr, nfft).ComputeFrames(stft.Magnitude, e.params.RolloffPercent)),
		ZeroCrossingRate: common.Mean(spectral.NewZeroCrossingRate(nfft, hop).ComputeFrames(w.Samples)),
		MFCC:             mfccMeans,
		OnsetCount:       len(onsets),
		OnsetTimes:       onsets[:min(len(onsets), e.params.MaxOnsets)],
		Source:           w.Source,
	}

	logger.Debug("Extracted audio descriptor", logging.Fields{
		"duration":    desc.Duration,
		"energy":      desc.Energy,
		"onset_count": desc.OnsetCount,
	})

	return desc, nil
}
