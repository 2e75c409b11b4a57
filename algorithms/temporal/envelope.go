package temporal

import (
	"github.com/RyanBlaney/sonido-gunshot/algorithms/common"
)

// Envelope provides amplitude envelope extraction
type Envelope struct{}

// NewEnvelope creates a new envelope extractor
func NewEnvelope() *Envelope {
	return &Envelope{}
}

// ComputeRMS computes the RMS envelope with given frame and hop sizes. With
// center set, frames are centred on multiples of hopSize using zero padding.
func (e *Envelope) ComputeRMS(signal []float64, frameSize, hopSize int, center bool) []float64 {
	if frameSize <= 0 || hopSize <= 0 || len(signal) == 0 {
		return []float64{}
	}

	if center {
		signal = common.PadCenter(signal, frameSize/2)
	}

	numFrames := common.FrameCount(len(signal), frameSize, hopSize)
	envelope := make([]float64, numFrames)

	for i := range numFrames {
		start := i * hopSize
		envelope[i] = common.RMS(signal[start : start+frameSize])
	}

	return envelope
}
