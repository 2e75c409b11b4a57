package backends

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/sonido-gunshot/detection/extractors"
	"github.com/RyanBlaney/sonido-gunshot/detection/prediction"
)

// Kind identifies one of the three backend families.
type Kind int

const (
	KindRule Kind = iota
	KindClassical
	KindSpectrogram
)

func (k Kind) String() string {
	switch k {
	case KindSpectrogram:
		return "spectrogram"
	case KindClassical:
		return "classical"
	default:
		return "rule"
	}
}

// Method returns the result tag for answers produced by this kind.
func (k Kind) Method() string {
	switch k {
	case KindSpectrogram:
		return prediction.MethodSpectrogram
	case KindClassical:
		return prediction.MethodClassical
	default:
		return prediction.MethodRules
	}
}

// Info describes a loaded backend.
type Info struct {
	Kind      Kind   `json:"-"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	Type      string `json:"type"`
	Framework string `json:"framework"`
	ModelPath string `json:"model_path,omitempty"`
	// InputShape is (height, width, channels) for spectrogram models.
	InputShape [3]int `json:"input_shape,omitzero"`
	// FeatureDim is the vector length for classical models.
	FeatureDim int `json:"feature_dim,omitempty"`
}

// Input is everything a backend may need for one request.
type Input struct {
	Descriptor *extractors.AudioDescriptor
	Waveform   extractors.Waveform
}

// Backend is one loaded tier. Predict must be safe for concurrent use and
// must not mutate the backend.
type Backend interface {
	Kind() Kind
	Info() Info
	Predict(ctx context.Context, in Input) (prediction.Result, error)
	Close() error
}

// guard converts a panic inside fn into an InferenceError.
func guard(backend string, fn func() (prediction.Result, error)) (result prediction.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &prediction.InferenceError{Backend: backend, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return fn()
}
