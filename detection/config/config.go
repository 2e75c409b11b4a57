// Package config loads gunshot detection settings from an optional YAML
// file and GUNSHOT_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-gunshot/detection/backends"
	"github.com/RyanBlaney/sonido-gunshot/detection/extractors"
	"github.com/RyanBlaney/sonido-gunshot/logging"
	"github.com/RyanBlaney/sonido-gunshot/transcode"
)

// EnvPrefix prefixes every environment override, e.g.
// GUNSHOT_CLASSICAL_DIR=/srv/models.
const EnvPrefix = "GUNSHOT"

// Config is the full set of detection settings.
type Config struct {
	// SampleRate is the rate clips are decoded at; 0 keeps the source rate.
	SampleRate  int               `json:"sample_rate" yaml:"sample_rate" mapstructure:"sample_rate"`
	LogLevel    string            `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	Extraction  ExtractionConfig  `json:"extraction" yaml:"extraction" mapstructure:"extraction"`
	Spectrogram SpectrogramConfig `json:"spectrogram" yaml:"spectrogram" mapstructure:"spectrogram"`
	Classical   ClassicalConfig   `json:"classical" yaml:"classical" mapstructure:"classical"`
	Decoder     DecoderConfig     `json:"decoder" yaml:"decoder" mapstructure:"decoder"`
	Batch       BatchConfig       `json:"batch" yaml:"batch" mapstructure:"batch"`
}

// ExtractionConfig sets the framing and feature sizes of the descriptor.
type ExtractionConfig struct {
	NFFT           int     `json:"n_fft" yaml:"n_fft" mapstructure:"n_fft"`
	HopLength      int     `json:"hop_length" yaml:"hop_length" mapstructure:"hop_length"`
	NMFCC          int     `json:"n_mfcc" yaml:"n_mfcc" mapstructure:"n_mfcc"`
	MaxOnsets      int     `json:"max_onsets" yaml:"max_onsets" mapstructure:"max_onsets"`
	RolloffPercent float64 `json:"rolloff_percent" yaml:"rolloff_percent" mapstructure:"rolloff_percent"`
}

// SpectrogramConfig locates the tensor bundle and the runtime library.
type SpectrogramConfig struct {
	Enabled          bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Dir              string `json:"dir" yaml:"dir" mapstructure:"dir"`
	ArchitectureFile string `json:"architecture_file" yaml:"architecture_file" mapstructure:"architecture_file"`
	WeightsFile      string `json:"weights_file" yaml:"weights_file" mapstructure:"weights_file"`
	// RuntimeLibrary is the ONNX Runtime shared library path.
	RuntimeLibrary string `json:"runtime_library" yaml:"runtime_library" mapstructure:"runtime_library"`
}

// ClassicalConfig locates the classical model bundle.
type ClassicalConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Dir          string `json:"dir" yaml:"dir" mapstructure:"dir"`
	ModelFile    string `json:"model_file" yaml:"model_file" mapstructure:"model_file"`
	MetadataFile string `json:"metadata_file" yaml:"metadata_file" mapstructure:"metadata_file"`
	ScalerFile   string `json:"scaler_file" yaml:"scaler_file" mapstructure:"scaler_file"`
}

// DecoderConfig controls the ffmpeg decoder. MaxDuration caps the decoded
// clip length.
type DecoderConfig struct {
	FFmpegPath  string        `json:"ffmpeg_path" yaml:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	FFprobePath string        `json:"ffprobe_path" yaml:"ffprobe_path" mapstructure:"ffprobe_path"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	MaxDuration time.Duration `json:"max_duration" yaml:"max_duration" mapstructure:"max_duration"`
}

// BatchConfig bounds batch concurrency.
type BatchConfig struct {
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	extraction := extractors.DefaultExtractionParams()
	return &Config{
		SampleRate: 22050,
		LogLevel:   "info",
		Extraction: ExtractionConfig{
			NFFT:           extraction.NFFT,
			HopLength:      extraction.HopLength,
			NMFCC:          extraction.NMFCC,
			MaxOnsets:      extraction.MaxOnsets,
			RolloffPercent: extraction.RolloffPercent,
		},
		Spectrogram: SpectrogramConfig{
			Enabled:          true,
			Dir:              "models/spectrogram",
			ArchitectureFile: backends.DefaultArchitectureFile,
			WeightsFile:      backends.DefaultWeightsFile,
		},
		Classical: ClassicalConfig{
			Enabled:      true,
			Dir:          "models",
			ModelFile:    backends.DefaultClassicalModelFile,
			MetadataFile: backends.DefaultClassicalMetadataFile,
			ScalerFile:   backends.DefaultClassicalScalerFile,
		},
		Decoder: DecoderConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
			Timeout:     30 * time.Second,
			MaxDuration: 5 * time.Minute,
		},
		Batch: BatchConfig{
			Workers: 4,
		},
	}
}

// setDefaults registers every key so environment overrides apply even when
// the file omits them.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("sample_rate", cfg.SampleRate)
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetDefault("extraction.n_fft", cfg.Extraction.NFFT)
	v.SetDefault("extraction.hop_length", cfg.Extraction.HopLength)
	v.SetDefault("extraction.n_mfcc", cfg.Extraction.NMFCC)
	v.SetDefault("extraction.max_onsets", cfg.Extraction.MaxOnsets)
	v.SetDefault("extraction.rolloff_percent", cfg.Extraction.RolloffPercent)

	v.SetDefault("spectrogram.enabled", cfg.Spectrogram.Enabled)
	v.SetDefault("spectrogram.dir", cfg.Spectrogram.Dir)
	v.SetDefault("spectrogram.architecture_file", cfg.Spectrogram.ArchitectureFile)
	v.SetDefault("spectrogram.weights_file", cfg.Spectrogram.WeightsFile)
	v.SetDefault("spectrogram.runtime_library", cfg.Spectrogram.RuntimeLibrary)

	v.SetDefault("classical.enabled", cfg.Classical.Enabled)
	v.SetDefault("classical.dir", cfg.Classical.Dir)
	v.SetDefault("classical.model_file", cfg.Classical.ModelFile)
	v.SetDefault("classical.metadata_file", cfg.Classical.MetadataFile)
	v.SetDefault("classical.scaler_file", cfg.Classical.ScalerFile)

	v.SetDefault("decoder.ffmpeg_path", cfg.Decoder.FFmpegPath)
	v.SetDefault("decoder.ffprobe_path", cfg.Decoder.FFprobePath)
	v.SetDefault("decoder.timeout", cfg.Decoder.Timeout)
	v.SetDefault("decoder.max_duration", cfg.Decoder.MaxDuration)

	v.SetDefault("batch.workers", cfg.Batch.Workers)
}

// Load reads path (optional) and environment overrides on top of the
// defaults.
func Load(path string) (*Config, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "config",
		"function":  "Load",
	})

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		logger.Debug("Config file loaded", logging.Fields{"path": path})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("sample_rate must not be negative: %d", c.SampleRate))
	}
	if c.Extraction.NFFT <= 0 || c.Extraction.HopLength <= 0 {
		errs = append(errs, fmt.Errorf("extraction n_fft and hop_length must be positive"))
	}
	if c.Extraction.NMFCC <= 0 {
		errs = append(errs, fmt.Errorf("extraction n_mfcc must be positive: %d", c.Extraction.NMFCC))
	}
	if c.Extraction.RolloffPercent <= 0 || c.Extraction.RolloffPercent >= 1 {
		errs = append(errs, fmt.Errorf("extraction rolloff_percent must be in (0, 1): %v", c.Extraction.RolloffPercent))
	}
	if c.Batch.Workers <= 0 {
		errs = append(errs, fmt.Errorf("batch workers must be positive: %d", c.Batch.Workers))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := transcode.ValidateConfig(c.DecoderSettings()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ExtractionParams converts the extraction section.
func (c *Config) ExtractionParams() extractors.ExtractionParams {
	return extractors.ExtractionParams{
		NFFT:           c.Extraction.NFFT,
		HopLength:      c.Extraction.HopLength,
		NMFCC:          c.Extraction.NMFCC,
		MaxOnsets:      c.Extraction.MaxOnsets,
		RolloffPercent: c.Extraction.RolloffPercent,
	}
}

// SpectrogramBundle locates the tensor bundle.
func (c *Config) SpectrogramBundle() backends.SpectrogramConfig {
	return backends.SpectrogramConfig{
		Dir:              c.Spectrogram.Dir,
		ArchitectureFile: c.Spectrogram.ArchitectureFile,
		WeightsFile:      c.Spectrogram.WeightsFile,
		NFFT:             c.Extraction.NFFT,
		HopLength:        c.Extraction.HopLength,
	}
}

// ClassicalBundle locates the classical bundle.
func (c *Config) ClassicalBundle() backends.ClassicalConfig {
	return backends.ClassicalConfig{
		Dir:          c.Classical.Dir,
		ModelFile:    c.Classical.ModelFile,
		MetadataFile: c.Classical.MetadataFile,
		ScalerFile:   c.Classical.ScalerFile,
	}
}

// DecoderSettings converts the decoder section.
func (c *Config) DecoderSettings() *transcode.DecoderConfig {
	return &transcode.DecoderConfig{
		TargetSampleRate: c.SampleRate,
		MaxDuration:      c.Decoder.MaxDuration,
		FFmpegPath:       c.Decoder.FFmpegPath,
		FFprobePath:      c.Decoder.FFprobePath,
		Timeout:          c.Decoder.Timeout,
	}
}
