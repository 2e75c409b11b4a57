package backends

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/RyanBlaney/sonido-gunshot/algorithms/common"
	"github.com/RyanBlaney/sonido-gunshot/detection/extractors"
	"github.com/RyanBlaney/sonido-gunshot/detection/prediction"
	"github.com/RyanBlaney/sonido-gunshot/logging"
	"github.com/RyanBlaney/sonido-gunshot/transcode"
)

// Default classical bundle file names.
const (
	DefaultClassicalModelFile    = "gunshot_detector.msgpack"
	DefaultClassicalMetadataFile = "model_metadata.json"
	DefaultClassicalScalerFile   = "scaler.msgpack"
)

// ClassicalConfig locates a classical bundle.
type ClassicalConfig struct {
	Dir          string
	ModelFile    string
	MetadataFile string
	ScalerFile   string
}

func (c ClassicalConfig) path(name, fallback string) string {
	if name == "" {
		name = fallback
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Dir, name)
}

// ModelPath is the classifier blob location.
func (c ClassicalConfig) ModelPath() string {
	return c.path(c.ModelFile, DefaultClassicalModelFile)
}

// MetadataPath is the metadata document location.
func (c ClassicalConfig) MetadataPath() string {
	return c.path(c.MetadataFile, DefaultClassicalMetadataFile)
}

// ScalerPath is the optional scaler blob location.
func (c ClassicalConfig) ScalerPath() string {
	return c.path(c.ScalerFile, DefaultClassicalScalerFile)
}

// ClassicalBackend scores the classic feature vector with a pre-trained
// classifier.
type ClassicalBackend struct {
	classifier Classifier
	scaler     *Scaler
	metadata   Metadata
	builder    *extractors.ClassicBuilder
	modelPath  string
}

// LoadClassical reads and cross-checks a classical bundle. Every failure is
// an ArtifactError.
func LoadClassical(cfg ClassicalConfig) (*ClassicalBackend, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "classical_backend",
		"function":  "LoadClassical",
	})

	artifactErr := func(path string, err error) error {
		return &prediction.ArtifactError{Backend: KindClassical.String(), Path: path, Err: err}
	}

	metaPath := cfg.MetadataPath()
	metadata, err := LoadMetadata(metaPath)
	if err != nil {
		return nil, artifactErr(metaPath, err)
	}

	modelPath := cfg.ModelPath()
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, artifactErr(modelPath, err)
	}
	classifier, err := DecodeClassifier(data)
	if err != nil {
		return nil, artifactErr(modelPath, err)
	}
	if classifier.NumFeatures() != metadata.FeatureDim {
		return nil, artifactErr(modelPath, fmt.Errorf("classifier expects %d features, metadata feature_dim is %d",
			classifier.NumFeatures(), metadata.FeatureDim))
	}

	var scaler *Scaler
	scalerPath := cfg.ScalerPath()
	switch data, err := os.ReadFile(scalerPath); {
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("No scaler found, using raw features", logging.Fields{"path": scalerPath})
	case err != nil:
		return nil, artifactErr(scalerPath, err)
	default:
		scaler, err = DecodeScaler(data)
		if err != nil {
			return nil, artifactErr(scalerPath, err)
		}
		if scaler.Dim() != metadata.FeatureDim {
			return nil, artifactErr(scalerPath, fmt.Errorf("scaler has %d features, metadata feature_dim is %d",
				scaler.Dim(), metadata.FeatureDim))
		}
	}

	if metadata.ModelType == "" {
		metadata.ModelType = classifier.Type()
	}

	logger.Info("Classical model loaded", logging.Fields{
		"model_path":  modelPath,
		"model_type":  metadata.ModelType,
		"feature_dim": metadata.FeatureDim,
		"scaled":      scaler != nil,
	})

	return &ClassicalBackend{
		classifier: classifier,
		scaler:     scaler,
		metadata:   *metadata,
		builder:    extractors.NewClassicBuilder(),
		modelPath:  modelPath,
	}, nil
}

func (b *ClassicalBackend) Kind() Kind { return KindClassical }

func (b *ClassicalBackend) Info() Info {
	name := b.metadata.Name
	if name == "" {
		name = "gunshot_classifier"
	}
	return Info{
		Kind:       KindClassical,
		Name:       name,
		Version:    b.metadata.Version,
		Type:       b.metadata.ModelType,
		Framework:  "sklearn",
		ModelPath:  b.modelPath,
		FeatureDim: b.metadata.FeatureDim,
	}
}

// Metadata returns the bundle metadata.
func (b *ClassicalBackend) Metadata() Metadata { return b.metadata }

// Params returns the vector builder parameters derived from the metadata.
func (b *ClassicalBackend) Params() extractors.ClassicParams {
	params := extractors.DefaultClassicParams()
	params.NMFCC = b.metadata.NMFCC
	params.NFFT = b.metadata.NFFT
	params.HopLength = b.metadata.HopLength
	if b.metadata.MaxDuration > 0 {
		params.MaxDuration = b.metadata.MaxDuration
	}
	return params
}

// Predict rebuilds the classic vector at the bundle's sample rate and scores
// it. A vector whose length differs from feature_dim is an ArtifactError.
func (b *ClassicalBackend) Predict(ctx context.Context, in Input) (prediction.Result, error) {
	return guard(KindClassical.String(), func() (prediction.Result, error) {
		if err := ctx.Err(); err != nil {
			return prediction.Result{}, err
		}

		samples := in.Waveform.Samples
		if in.Waveform.SampleRate != b.metadata.SampleRate {
			resampled, err := transcode.Resample(samples, in.Waveform.SampleRate, b.metadata.SampleRate)
			if err != nil {
				return prediction.Result{}, &prediction.InferenceError{Backend: KindClassical.String(), Err: err}
			}
			samples = resampled
		}

		vector, err := b.builder.Build(samples, b.metadata.SampleRate, b.Params())
		if err != nil {
			return prediction.Result{}, &prediction.InferenceError{Backend: KindClassical.String(), Err: err}
		}
		if len(vector) != b.metadata.FeatureDim {
			return prediction.Result{}, &prediction.ArtifactError{
				Backend: KindClassical.String(),
				Path:    b.modelPath,
				Err:     fmt.Errorf("feature vector has %d values, metadata feature_dim is %d", len(vector), b.metadata.FeatureDim),
			}
		}

		if b.scaler != nil {
			if vector, err = b.scaler.Transform(vector); err != nil {
				return prediction.Result{}, &prediction.ArtifactError{Backend: KindClassical.String(), Path: b.modelPath, Err: err}
			}
		}

		proba, err := b.classifier.PredictProba(vector)
		if err != nil {
			return prediction.Result{}, &prediction.InferenceError{Backend: KindClassical.String(), Err: err}
		}

		positive := PositiveIndex(b.classifier)
		if positive < 0 || positive >= len(proba) {
			return prediction.Result{}, &prediction.InferenceError{
				Backend: KindClassical.String(),
				Err:     fmt.Errorf("classifier returned %d probabilities", len(proba)),
			}
		}

		detected := common.Argmax(proba) == positive
		return prediction.FromClassifier(proba[positive], detected, in.Waveform.Duration(), b.metadata.ModelType), nil
	})
}

func (b *ClassicalBackend) Close() error { return nil }
