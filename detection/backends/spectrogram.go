package backends

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/RyanBlaney/sonido-gunshot/detection/extractors"
	"github.com/RyanBlaney/sonido-gunshot/detection/prediction"
	"github.com/RyanBlaney/sonido-gunshot/logging"
)

// ErrRuntimeUnavailable is returned by a Runtime whose compute library is
// not installed.
var ErrRuntimeUnavailable = errors.New("tensor runtime unavailable")

// Default tensor bundle file names.
const (
	DefaultArchitectureFile = "config.json"
	DefaultWeightsFile      = "model.onnx"
)

// Runtime is a tensor-compute library able to load spectrogram models.
type Runtime interface {
	Name() string
	// Available reports ErrRuntimeUnavailable (possibly wrapped) when the
	// library cannot be used.
	Available() error
	Load(arch Architecture, weightsPath string) (TensorModel, error)
}

// TensorModel is a loaded network. Run must be safe for concurrent use.
type TensorModel interface {
	// InputShape is (height, width, channels); zero entries are dynamic.
	InputShape() [3]int
	Run(input *extractors.SpectrogramTensor) ([]float32, error)
	Close() error
}

// SpectrogramConfig locates a tensor bundle.
type SpectrogramConfig struct {
	Dir              string
	ArchitectureFile string
	WeightsFile      string
	NFFT             int
	HopLength        int
}

func (c SpectrogramConfig) path(name, fallback string) string {
	if name == "" {
		name = fallback
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Dir, name)
}

// ArchitecturePath is the descriptor location.
func (c SpectrogramConfig) ArchitecturePath() string {
	return c.path(c.ArchitectureFile, DefaultArchitectureFile)
}

// WeightsPath is the weights location.
func (c SpectrogramConfig) WeightsPath() string {
	return c.path(c.WeightsFile, DefaultWeightsFile)
}

// SpectrogramBackend scores a log-mel tensor with a neural network.
type SpectrogramBackend struct {
	arch         Architecture
	model        TensorModel
	runtime      string
	shape        [3]int
	preprocessor *extractors.SpectrogramPreprocessor
	weightsPath  string
}

// LoadSpectrogram probes rt and loads the bundle described by cfg. Every
// failure is an ArtifactError.
func LoadSpectrogram(cfg SpectrogramConfig, rt Runtime) (*SpectrogramBackend, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "spectrogram_backend",
		"function":  "LoadSpectrogram",
	})

	weightsPath := cfg.WeightsPath()
	artifactErr := func(path string, err error) error {
		return &prediction.ArtifactError{Backend: KindSpectrogram.String(), Path: path, Err: err}
	}

	if rt == nil {
		return nil, artifactErr(weightsPath, ErrRuntimeUnavailable)
	}
	if err := rt.Available(); err != nil {
		return nil, artifactErr(weightsPath, err)
	}

	archPath := cfg.ArchitecturePath()
	arch, err := LoadArchitecture(archPath)
	if err != nil {
		return nil, artifactErr(archPath, err)
	}

	model, err := rt.Load(*arch, weightsPath)
	if err != nil {
		return nil, artifactErr(weightsPath, err)
	}

	shape, err := resolveShape(model.InputShape(), arch)
	if err != nil {
		model.Close()
		return nil, artifactErr(archPath, err)
	}

	logger.Info("Spectrogram model loaded", logging.Fields{
		"runtime":      rt.Name(),
		"weights_path": weightsPath,
		"input_shape":  shape,
	})

	return &SpectrogramBackend{
		arch:         *arch,
		model:        model,
		runtime:      rt.Name(),
		shape:        shape,
		preprocessor: extractors.NewSpectrogramPreprocessor(cfg.NFFT, cfg.HopLength),
		weightsPath:  weightsPath,
	}, nil
}

// resolveShape prefers the runtime's static shape over the descriptor.
func resolveShape(declared [3]int, arch *Architecture) ([3]int, error) {
	if declared[0] > 0 && declared[1] > 0 && declared[2] > 0 {
		return declared, nil
	}
	return arch.Shape()
}

func (b *SpectrogramBackend) Kind() Kind { return KindSpectrogram }

func (b *SpectrogramBackend) Info() Info {
	name := b.arch.Name
	if name == "" {
		name = "gunshot_cnn"
	}
	modelType := b.arch.Type
	if modelType == "" {
		modelType = "cnn"
	}
	return Info{
		Kind:       KindSpectrogram,
		Name:       name,
		Version:    b.arch.Version,
		Type:       modelType,
		Framework:  b.runtime,
		ModelPath:  b.weightsPath,
		InputShape: b.shape,
	}
}

// Predict builds the spectrogram tensor at the model's input shape and
// interprets the network output.
func (b *SpectrogramBackend) Predict(ctx context.Context, in Input) (prediction.Result, error) {
	return guard(KindSpectrogram.String(), func() (prediction.Result, error) {
		if err := ctx.Err(); err != nil {
			return prediction.Result{}, err
		}

		tensor, err := b.preprocessor.Build(in.Waveform.Samples, in.Waveform.SampleRate, b.shape[0], b.shape[1], b.shape[2])
		if err != nil {
			return prediction.Result{}, &prediction.InferenceError{Backend: KindSpectrogram.String(), Err: err}
		}

		raw, err := b.model.Run(tensor)
		if err != nil {
			return prediction.Result{}, &prediction.InferenceError{Backend: KindSpectrogram.String(), Err: err}
		}

		p, err := prediction.InterpretOutput(raw)
		if err != nil {
			return prediction.Result{}, &prediction.InferenceError{
				Backend: KindSpectrogram.String(),
				Err:     fmt.Errorf("output of %d values: %w", len(raw), err),
			}
		}

		return prediction.FromTensorProbability(p, in.Waveform.Duration(), b.Info().Type), nil
	})
}

// Close releases the loaded model.
func (b *SpectrogramBackend) Close() error {
	return b.model.Close()
}
