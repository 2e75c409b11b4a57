package temporal

import (
	"github.com/RyanBlaney/sonido-gunshot/algorithms/common"
)

// PeakPickParams are the peak picking windows in seconds plus the threshold
// offset applied to the normalised novelty curve.
type PeakPickParams struct {
	PreMax  float64 // look-back for the local maximum
	PostMax float64 // look-ahead for the local maximum
	PreAvg  float64 // look-back for the moving average
	PostAvg float64 // look-ahead for the moving average
	Delta   float64 // required margin above the moving average
	Wait    float64 // minimum spacing between onsets
}

// DefaultPeakPickParams returns pre_max 30 ms, averages over 100 ms each
// side, delta 0.07 and wait 30 ms.
func DefaultPeakPickParams() PeakPickParams {
	return PeakPickParams{
		PreMax:  0.03,
		PostMax: 0.0,
		PreAvg:  0.10,
		PostAvg: 0.10,
		Delta:   0.07,
		Wait:    0.03,
	}
}

// OnsetDetection detects abrupt energy increases from the RMS envelope.
type OnsetDetection struct {
	frameSize int
	hopSize   int
	params    PeakPickParams
	envelope  *Envelope
}

// NewOnsetDetection creates a new onset detector
func NewOnsetDetection(frameSize, hopSize int, params PeakPickParams) *OnsetDetection {
	return &OnsetDetection{
		frameSize: frameSize,
		hopSize:   hopSize,
		params:    params,
		envelope:  NewEnvelope(),
	}
}

// Novelty returns the half-wave rectified first difference of the RMS
// envelope, scaled to [0, 1].
func (od *OnsetDetection) Novelty(signal []float64) []float64 {
	rms := od.envelope.ComputeRMS(signal, od.frameSize, od.hopSize, true)
	if len(rms) == 0 {
		return rms
	}

	novelty := make([]float64, len(rms))
	for i := 1; i < len(rms); i++ {
		novelty[i] = max(0, rms[i]-rms[i-1])
	}

	lo, hi := common.Min(novelty), common.Max(novelty)
	if hi-lo <= 0 {
		clear(novelty)
		return novelty
	}
	for i, v := range novelty {
		novelty[i] = (v - lo) / (hi - lo)
	}
	return novelty
}

// DetectFrames returns the frame indices of detected onsets in order.
func (od *OnsetDetection) DetectFrames(signal []float64, sampleRate int) []int {
	if sampleRate <= 0 || od.hopSize <= 0 {
		return []int{}
	}
	return od.PeakPick(od.Novelty(signal), sampleRate)
}

// DetectTimes returns onset times in seconds.
func (od *OnsetDetection) DetectTimes(signal []float64, sampleRate int) []float64 {
	frames := od.DetectFrames(signal, sampleRate)
	times := make([]float64, len(frames))
	for i, f := range frames {
		times[i] = float64(f*od.hopSize) / float64(sampleRate)
	}
	return times
}

// PeakPick selects frames that are local maxima within the max window,
// exceed the local mean by Delta, and follow the previous onset by more
// than Wait.
func (od *OnsetDetection) PeakPick(x []float64, sampleRate int) []int {
	toFrames := func(seconds float64) int {
		return int(seconds * float64(sampleRate) / float64(od.hopSize))
	}

	preMax := toFrames(od.params.PreMax)
	postMax := toFrames(od.params.PostMax) + 1
	preAvg := toFrames(od.params.PreAvg)
	postAvg := toFrames(od.params.PostAvg) + 1
	wait := toFrames(od.params.Wait)

	peaks := []int{}
	last := -wait - 1

	for n := range x {
		maxStart, maxEnd := max(0, n-preMax), min(len(x), n+postMax)
		if x[n] < common.Max(x[maxStart:maxEnd]) {
			continue
		}

		avgStart, avgEnd := max(0, n-preAvg), min(len(x), n+postAvg)
		if x[n] < common.Mean(x[avgStart:avgEnd])+od.params.Delta {
			continue
		}

		if n <= last+wait {
			continue
		}

		peaks = append(peaks, n)
		last = n
	}

	return peaks
}
