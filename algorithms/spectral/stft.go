package spectral

import (
	"fmt"
	"math/cmplx"
	"runtime"
	"sync"

	"github.com/RyanBlaney/sonido-gunshot/algorithms/common"
	"github.com/RyanBlaney/sonido-gunshot/algorithms/windowing"
)

// STFT provides Short-Time Fourier Transform functionality
type STFT struct {
	fft *FFT
}

// STFTConfig controls framing of the transform.
type STFTConfig struct {
	WindowSize int
	HopSize    int
	SampleRate int
	// Center pads WindowSize/2 zeros on both sides so frame t is centred on
	// sample t*HopSize.
	Center bool
}

// STFTResult holds the result of STFT analysis
type STFTResult struct {
	Magnitude      [][]float64 `json:"magnitude"`       // Time x Frequency magnitude matrix
	TimeFrames     int         `json:"time_frames"`     // Number of time frames
	FreqBins       int         `json:"freq_bins"`       // Number of frequency bins
	SampleRate     int         `json:"sample_rate"`     // Sample rate
	WindowSize     int         `json:"window_size"`     // FFT window size
	HopSize        int         `json:"hop_size"`        // Hop size between frames
	FreqResolution float64     `json:"freq_resolution"` // Frequency resolution (Hz/bin)
	TimeResolution float64     `json:"time_resolution"` // Time resolution (seconds/frame)
}

// NewSTFT creates a new STFT calculator
func NewSTFT() *STFT {
	return &STFT{
		fft: NewFFT(),
	}
}

// Compute computes a periodic-Hann STFT with parallel frame processing.
func (s *STFT) Compute(signal []float64, cfg STFTConfig) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	if cfg.WindowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}

	if cfg.HopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}

	if cfg.Center {
		signal = common.PadCenter(signal, cfg.WindowSize/2)
	}

	numFrames := common.FrameCount(len(signal), cfg.WindowSize, cfg.HopSize)
	if numFrames <= 0 {
		return nil, fmt.Errorf("signal too short for given window size and hop size")
	}

	window := windowing.NewPeriodicHann(cfg.WindowSize)
	freqBins := cfg.WindowSize/2 + 1

	magnitude := make([][]float64, numFrames)
	for i := range numFrames {
		magnitude[i] = make([]float64, freqBins)
	}

	numWorkers := s.getOptimalWorkerCount(numFrames)
	jobs := make(chan int, numFrames)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		frameErr error
	)

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Reuse frame buffer for this worker
			frameBuffer := make([]float64, cfg.WindowSize)

			for frameIdx := range jobs {
				start := frameIdx * cfg.HopSize
				if err := window.ApplyTo(frameBuffer, signal[start:start+cfg.WindowSize]); err != nil {
					errOnce.Do(func() { frameErr = err })
					continue
				}

				fftResult := s.fft.Compute(frameBuffer)
				row := magnitude[frameIdx]
				for i := range freqBins {
					row[i] = cmplx.Abs(fftResult[i])
				}
			}
		}()
	}

	for frameIdx := range numFrames {
		jobs <- frameIdx
	}
	close(jobs)

	wg.Wait()

	if frameErr != nil {
		return nil, fmt.Errorf("failed to window frame: %w", frameErr)
	}

	sampleRate := cfg.SampleRate
	result := &STFTResult{
		Magnitude:  magnitude,
		TimeFrames: numFrames,
		FreqBins:   freqBins,
		SampleRate: sampleRate,
		WindowSize: cfg.WindowSize,
		HopSize:    cfg.HopSize,
	}
	if sampleRate > 0 {
		result.FreqResolution = float64(sampleRate) / float64(cfg.WindowSize)
		result.TimeResolution = float64(cfg.HopSize) / float64(sampleRate)
	}

	return result, nil
}

// Power returns the squared magnitude spectrogram.
func (r *STFTResult) Power() [][]float64 {
	power := make([][]float64, len(r.Magnitude))
	for t, frame := range r.Magnitude {
		power[t] = make([]float64, len(frame))
		for f, mag := range frame {
			power[t][f] = mag * mag
		}
	}
	return power
}

// getOptimalWorkerCount determines the optimal number of workers based on workload
func (s *STFT) getOptimalWorkerCount(numFrames int) int {
	numCPU := runtime.NumCPU()

	// For small workloads, don't over-parallelize
	if numFrames < 100 {
		return max(1, min(numCPU/2, numFrames))
	}

	// For medium workloads, use most CPUs
	if numFrames < 1000 {
		return min(numCPU, 8)
	}

	return numCPU
}
