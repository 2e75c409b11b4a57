package spectral

import (
	"math"

	"github.com/RyanBlaney/sonido-gunshot/algorithms/common"
)

// zeroThreshold treats samples this close to zero as zero, which counts as
// positive.
const zeroThreshold = 1e-10

// ZeroCrossingRate computes the fraction of sign changes per frame.
type ZeroCrossingRate struct {
	frameSize int
	hopSize   int
}

// NewZeroCrossingRate creates a calculator with the given framing. Frames are
// centred with edge padding.
func NewZeroCrossingRate(frameSize, hopSize int) *ZeroCrossingRate {
	return &ZeroCrossingRate{
		frameSize: frameSize,
		hopSize:   hopSize,
	}
}

// Compute returns sign changes divided by frame length for a single frame.
func (zcr *ZeroCrossingRate) Compute(frame []float64) float64 {
	if len(frame) < 2 {
		return 0.0
	}

	crossings := 0
	prev := signBit(frame[0])
	for _, v := range frame[1:] {
		cur := signBit(v)
		if cur != prev {
			crossings++
		}
		prev = cur
	}

	return float64(crossings) / float64(len(frame))
}

// ComputeFrames returns the per-frame rate over the whole signal.
func (zcr *ZeroCrossingRate) ComputeFrames(signal []float64) []float64 {
	padded := common.PadEdge(signal, zcr.frameSize/2)
	n := common.FrameCount(len(padded), zcr.frameSize, zcr.hopSize)

	rates := make([]float64, n)
	for i := range n {
		start := i * zcr.hopSize
		rates[i] = zcr.Compute(padded[start : start+zcr.frameSize])
	}
	return rates
}

func signBit(v float64) bool {
	if math.Abs(v) <= zeroThreshold {
		return false
	}
	return math.Signbit(v)
}
