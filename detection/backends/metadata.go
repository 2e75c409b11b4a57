package backends

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Metadata describes a classical bundle. JSON documents decode as YAML.
type Metadata struct {
	Name        string  `yaml:"name" json:"name"`
	Version     string  `yaml:"version" json:"version"`
	SampleRate  int     `yaml:"sample_rate" json:"sample_rate"`
	NMFCC       int     `yaml:"n_mfcc" json:"n_mfcc"`
	NFFT        int     `yaml:"n_fft" json:"n_fft"`
	HopLength   int     `yaml:"hop_length" json:"hop_length"`
	FeatureDim  int     `yaml:"feature_dim" json:"feature_dim"`
	ModelType   string  `yaml:"model_type" json:"model_type"`
	MaxDuration float64 `yaml:"max_duration" json:"max_duration"`
}

// Validate rejects metadata that cannot drive the vector builder.
func (m *Metadata) Validate() error {
	switch {
	case m.SampleRate <= 0:
		return fmt.Errorf("invalid sample_rate %d", m.SampleRate)
	case m.NMFCC <= 0:
		return fmt.Errorf("invalid n_mfcc %d", m.NMFCC)
	case m.NFFT <= 0 || m.HopLength <= 0:
		return fmt.Errorf("invalid n_fft/hop_length %d/%d", m.NFFT, m.HopLength)
	case m.FeatureDim <= 0:
		return fmt.Errorf("invalid feature_dim %d", m.FeatureDim)
	}
	return nil
}

// Architecture describes a spectrogram tensor bundle.
type Architecture struct {
	Name       string `yaml:"name" json:"name"`
	Version    string `yaml:"version" json:"version"`
	Type       string `yaml:"type" json:"type"`
	InputName  string `yaml:"input_name" json:"input_name"`
	OutputName string `yaml:"output_name" json:"output_name"`
	// InputShape is [height, width, channels].
	InputShape []int `yaml:"input_shape" json:"input_shape"`
	NumOutputs int   `yaml:"num_outputs" json:"num_outputs"`
}

// Shape returns InputShape as a fixed array after checking it.
func (a *Architecture) Shape() ([3]int, error) {
	var shape [3]int
	if len(a.InputShape) != 3 {
		return shape, fmt.Errorf("input_shape must have 3 dimensions, got %v", a.InputShape)
	}
	for i, d := range a.InputShape {
		if d <= 0 {
			return shape, fmt.Errorf("input_shape dimension %d is %d", i, d)
		}
		shape[i] = d
	}
	return shape, nil
}

// readDocument decodes a JSON or YAML file into out.
func readDocument(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("empty document")
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// LoadMetadata reads and validates a classical metadata document.
func LoadMetadata(path string) (*Metadata, error) {
	var m Metadata
	if err := readDocument(path, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadArchitecture reads a tensor architecture descriptor.
func LoadArchitecture(path string) (*Architecture, error) {
	var a Architecture
	if err := readDocument(path, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
