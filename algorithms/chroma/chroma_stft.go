package chroma

import (
	"math"

	"github.com/RyanBlaney/sonido-gunshot/algorithms/spectral"
)

// NumPitchClasses is the chroma dimension, C through B.
const NumPitchClasses = 12

// ChromaSTFT folds an STFT power spectrum onto 12 pitch classes. Bins are
// assigned to the nearest equal-tempered semitone; index 0 is C.
type ChromaSTFT struct {
	tuningFreq float64 // A4 frequency (default 440 Hz)
	minFreq    float64
	maxFreq    float64
	mapping    []int // bin -> pitch class, -1 outside [minFreq, maxFreq]
}

// NewChromaSTFT creates a chromagram calculator for spectra of an
// fftSize-point transform.
func NewChromaSTFT(sampleRate, fftSize int, tuningFreq float64) *ChromaSTFT {
	cs := &ChromaSTFT{
		tuningFreq: tuningFreq,
		minFreq:    80.0,   // Approximate E2
		maxFreq:    8000.0, // High enough for harmonics
	}
	cs.mapping = cs.chromaMapping(spectral.FFTFrequencies(sampleRate, fftSize))
	return cs
}

// NewChromaSTFTDefault creates chromagram with standard A4=440Hz tuning
func NewChromaSTFTDefault(sampleRate, fftSize int) *ChromaSTFT {
	return NewChromaSTFT(sampleRate, fftSize, 440.0)
}

// ComputeFrames converts a frames x bins magnitude spectrogram into a
// frames x 12 chromagram. Each frame is scaled so its largest class is 1;
// silent frames stay zero.
func (cs *ChromaSTFT) ComputeFrames(magnitude [][]float64) [][]float64 {
	chromagram := make([][]float64, len(magnitude))

	for t, frame := range magnitude {
		chromagram[t] = make([]float64, NumPitchClasses)

		for f := 0; f < len(frame) && f < len(cs.mapping); f++ {
			if bin := cs.mapping[f]; bin >= 0 {
				chromagram[t][bin] += frame[f] * frame[f]
			}
		}

		normalizeMax(chromagram[t])
	}

	return chromagram
}

func (cs *ChromaSTFT) chromaMapping(freqs []float64) []int {
	mapping := make([]int, len(freqs))

	for f, frequency := range freqs {
		if frequency < cs.minFreq || frequency > cs.maxFreq {
			mapping[f] = -1
			continue
		}

		// MIDI 60 is C4, so MIDI mod 12 puts C at 0
		midiNote := 69.0 + 12.0*math.Log2(frequency/cs.tuningFreq)
		mapping[f] = ((int(math.Round(midiNote)) % NumPitchClasses) + NumPitchClasses) % NumPitchClasses
	}

	return mapping
}

func normalizeMax(frame []float64) {
	peak := 0.0
	for _, v := range frame {
		peak = math.Max(peak, math.Abs(v))
	}
	if peak <= 1e-10 {
		return
	}
	for i := range frame {
		frame[i] /= peak
	}
}
