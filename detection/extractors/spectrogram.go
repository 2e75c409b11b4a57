package extractors

import (
	"fmt"

	"github.com/RyanBlaney/sonido-gunshot/algorithms/common"
	"github.com/RyanBlaney/sonido-gunshot/algorithms/spectral"
)

const maxMelBands = 128

// SpectrogramTensor is a Height x Width x Channels float32 tensor in
// row-major HWC order with every value in [0, 1].
type SpectrogramTensor struct {
	Height   int
	Width    int
	Channels int
	Data     []float32
}

// At returns the value at row h, column w, channel c.
func (t *SpectrogramTensor) At(h, w, c int) float32 {
	return t.Data[(h*t.Width+w)*t.Channels+c]
}

// Shape returns (height, width, channels).
func (t *SpectrogramTensor) Shape() [3]int {
	return [3]int{t.Height, t.Width, t.Channels}
}

// SpectrogramPreprocessor turns a waveform into the normalised log-mel
// tensor expected by spectrogram models. It has no hidden state.
type SpectrogramPreprocessor struct {
	nfft int
	hop  int
}

// NewSpectrogramPreprocessor creates a preprocessor with the given framing
func NewSpectrogramPreprocessor(nfft, hop int) *SpectrogramPreprocessor {
	if nfft <= 0 {
		nfft = 2048
	}
	if hop <= 0 {
		hop = 512
	}
	return &SpectrogramPreprocessor{nfft: nfft, hop: hop}
}

// Build returns a tensor of exactly (height, width, channels). Mel bands are
// capped at min(128, height); the dB spectrogram (relative to its maximum)
// is min-max scaled to [0, 1] and resized bilinearly with mel bands as rows
// and time frames as columns. The single plane is copied into every channel.
func (p *SpectrogramPreprocessor) Build(samples []float64, sampleRate, height, width, channels int) (*SpectrogramTensor, error) {
	if height <= 0 || width <= 0 || channels <= 0 {
		return nil, &ExtractionError{Stage: "spectrogram", Err: fmt.Errorf("invalid target shape (%d, %d, %d)", height, width, channels)}
	}
	if len(samples) == 0 || sampleRate <= 0 {
		return nil, &ExtractionError{Stage: "spectrogram", Err: fmt.Errorf("empty waveform or invalid sample rate %d", sampleRate)}
	}

	stft, err := spectral.NewSTFT().Compute(samples, spectral.STFTConfig{
		WindowSize: p.nfft,
		HopSize:    p.hop,
		SampleRate: sampleRate,
		Center:     true,
	})
	if err != nil {
		return nil, &ExtractionError{Stage: "spectrogram", Err: err}
	}

	melScale := spectral.NewMelScale()
	nMels := min(maxMelBands, height)
	filterBank := melScale.CreateMelFilterBank(nMels, p.nfft, sampleRate, 0, float64(sampleRate)/2)

	// frames x mels, transposed below to mels x frames
	mel := melScale.MelSpectrogram(stft.Power(), filterBank)
	db := spectral.PowerToDB(transpose(mel), spectral.DecibelParams{
		RefMax: true,
		Amin:   1e-10,
		TopDB:  80,
	})

	normalized := common.MinMaxNormalize2D(db)
	resized := common.ResizeBilinear(normalized, height, width)

	tensor := &SpectrogramTensor{
		Height:   height,
		Width:    width,
		Channels: channels,
		Data:     make([]float32, height*width*channels),
	}

	idx := 0
	for _, row := range resized {
		for _, v := range row {
			value := float32(common.Clamp(v, 0, 1))
			for range channels {
				tensor.Data[idx] = value
				idx++
			}
		}
	}

	return tensor, nil
}

func transpose(matrix [][]float64) [][]float64 {
	if len(matrix) == 0 {
		return nil
	}
	out := make([][]float64, len(matrix[0]))
	for j := range out {
		out[j] = make([]float64, len(matrix))
		for i, row := range matrix {
			out[j][i] = row[j]
		}
	}
	return out
}
