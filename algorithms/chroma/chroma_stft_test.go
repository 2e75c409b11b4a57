package chroma

import (
	"math"
	"testing"

	"github.com/RyanBlaney/sonido-gunshot/algorithms/spectral"
)

func TestChromaA440(t *testing.T) {
	const sampleRate, fftSize = 22050, 2048

	signal := make([]float64, sampleRate/2)
	for i := range signal {
		signal[i] = math.Sin(2 * math.Pi * 440 * float64(i) / sampleRate)
	}

	result, err := spectral.NewSTFT().Compute(signal, spectral.STFTConfig{
		WindowSize: fftSize, HopSize: 512, SampleRate: sampleRate, Center: true,
	})
	if err != nil {
		t.Fatalf("STFT: %v", err)
	}

	chromagram := NewChromaSTFTDefault(sampleRate, fftSize).ComputeFrames(result.Magnitude)
	frame := chromagram[len(chromagram)/2]
	if len(frame) != NumPitchClasses {
		t.Fatalf("frame has %d classes, want %d", len(frame), NumPitchClasses)
	}

	best := 0
	for i, v := range frame {
		if v > frame[best] {
			best = i
		}
		if v < 0 || v > 1 {
			t.Fatalf("chroma value %v outside [0,1]", v)
		}
	}
	if best != 9 {
		t.Errorf("dominant class = %d, want 9 (A)", best)
	}
	if frame[best] != 1 {
		t.Errorf("max normalised frame peak = %v, want 1", frame[best])
	}
}

func TestChromaSilentFrame(t *testing.T) {
	cs := NewChromaSTFTDefault(22050, 2048)
	chromagram := cs.ComputeFrames([][]float64{make([]float64, 1025)})
	for _, v := range chromagram[0] {
		if v != 0 {
			t.Fatalf("silent frame produced %v", chromagram[0])
		}
	}
}
