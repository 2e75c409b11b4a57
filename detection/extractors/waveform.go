package extractors

import (
	"errors"
	"math"
)

// Waveform is decoded mono PCM in [-1, 1] plus its sample rate.
type Waveform struct {
	Samples    []float64
	SampleRate int
	// Channels is the channel count of the source before downmixing.
	Channels int
	Source   string
}

// Duration returns the length in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Validate returns a DecodeError if no features can be computed from w.
func (w Waveform) Validate() error {
	if len(w.Samples) == 0 {
		return &DecodeError{Source: w.Source, Reason: "empty waveform"}
	}
	if w.SampleRate <= 0 {
		return &DecodeError{Source: w.Source, Reason: "invalid sample rate"}
	}
	for _, s := range w.Samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return &DecodeError{Source: w.Source, Err: errors.New("waveform contains non-finite samples")}
		}
	}
	return nil
}
