package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-gunshot/logging"
)

// AudioData is a decoded mono clip at its source sample rate (or the
// configured target rate).
type AudioData struct {
	PCM        []float64      `json:"-"`
	SampleRate int            `json:"sample_rate"`
	Channels   int            `json:"channels"` // channel count of the source
	Duration   time.Duration  `json:"duration"`
	Source     string         `json:"source,omitempty"`
	Metadata   *AudioMetadata `json:"metadata,omitempty"`
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	// TargetSampleRate resamples in ffmpeg when > 0; 0 keeps the source rate.
	TargetSampleRate int           `json:"target_sample_rate" yaml:"target_sample_rate" mapstructure:"target_sample_rate"`
	MaxDuration      time.Duration `json:"max_duration" yaml:"max_duration" mapstructure:"max_duration"`
	FFmpegPath       string        `json:"ffmpeg_path" yaml:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	FFprobePath      string        `json:"ffprobe_path" yaml:"ffprobe_path" mapstructure:"ffprobe_path"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 0,
		MaxDuration:      5 * time.Minute,
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		Timeout:          30 * time.Second,
	}
}

// Decoder handles audio decoding using FFmpeg
type Decoder struct {
	config *DecoderConfig
}

// AudioMetadata holds detected audio properties from FFprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// NewDecoder creates a new audio decoder. Empty tool paths fall back to
// the defaults; an invalid configuration is rejected.
func NewDecoder(config *DecoderConfig) (*Decoder, error) {
	if config == nil {
		config = DefaultDecoderConfig()
	}

	cfg := *config
	defaults := DefaultDecoderConfig()
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = defaults.FFmpegPath
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = defaults.FFprobePath
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &Decoder{config: &cfg}, nil
}

// Config returns the decoder configuration.
func (d *Decoder) Config() DecoderConfig {
	return *d.config
}

// DecodeFile decodes an audio file to mono PCM.
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeFile",
		"filename":  filename,
	})

	logger.Debug("Starting audio file decode")

	metadata, err := d.probe(ctx, []string{filename}, nil)
	if err != nil {
		logger.Error(err, "Failed to probe audio file")
		return nil, err
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
	})

	output, err := d.runFFmpeg(ctx, filename, nil, metadata, logger)
	if err != nil {
		return nil, err
	}

	return d.processFFmpegOutput(output, metadata, filename, logger)
}

// DecodeBytes decodes an in-memory audio file to mono PCM.
func (d *Decoder) DecodeBytes(ctx context.Context, data []byte, source string) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeBytes",
		"data_size": len(data),
	})

	if len(data) == 0 {
		return nil, errors.New("empty audio data")
	}

	metadata, err := d.probe(ctx, []string{"pipe:0"}, data)
	if err != nil {
		logger.Error(err, "Failed to probe audio metadata")
		return nil, err
	}

	output, err := d.runFFmpeg(ctx, "pipe:0", data, metadata, logger)
	if err != nil {
		return nil, err
	}

	return d.processFFmpegOutput(output, metadata, source, logger)
}

// DecodeReader reads r fully and decodes it.
func (d *Decoder) DecodeReader(ctx context.Context, reader io.Reader, source string) (*AudioData, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	return d.DecodeBytes(ctx, data, source)
}

func (d *Decoder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.config.Timeout > 0 {
		return context.WithTimeout(ctx, d.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// probe uses ffprobe to read the first audio stream's properties.
func (d *Decoder) probe(ctx context.Context, input []string, stdin []byte) (*AudioMetadata, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0",
	}
	args = append(args, input...)

	cmd := exec.CommandContext(ctx, d.config.FFprobePath, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return ParseProbeOutput(output)
}

// ParseProbeOutput parses ffprobe's JSON stream report.
func ParseProbeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			Duration      string `json:"duration"`
			BitRate       string `json:"bit_rate"`
			CodecLongName string `json:"codec_long_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(probe.Streams) == 0 {
		return nil, errors.New("no audio streams found")
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", stream.CodecType)
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %q", stream.SampleRate)
	}

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	duration, _ := strconv.ParseFloat(stream.Duration, 64)
	bitrate, _ := strconv.Atoi(stream.BitRate)

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     stream.CodecLongName,
	}, nil
}

func (d *Decoder) runFFmpeg(ctx context.Context, input string, stdin []byte, metadata *AudioMetadata, logger logging.Logger) ([]byte, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	args := append([]string{"-i", input}, d.BuildFFmpegArgs(metadata)...)
	args = append(args, "pipe:1")

	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			logger.Error(err, "Ffmpeg decode failed", logging.Fields{
				"stderr": string(exitError.Stderr),
			})
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}
	return output, nil
}

// OutputSampleRate is the rate the decoder emits for a source of metadata.
func (d *Decoder) OutputSampleRate(metadata *AudioMetadata) int {
	if d.config.TargetSampleRate > 0 {
		return d.config.TargetSampleRate
	}
	return metadata.SampleRate
}

// BuildFFmpegArgs returns the output arguments: raw f64le mono at the
// output sample rate, optionally limited in duration.
func (d *Decoder) BuildFFmpegArgs(metadata *AudioMetadata) []string {
	args := []string{
		"-f", "f64le",
		"-ac", "1",
		"-ar", strconv.Itoa(d.OutputSampleRate(metadata)),
	}

	if d.config.TargetSampleRate > 0 && metadata.SampleRate != d.config.TargetSampleRate {
		args = append(args, "-af", "aresample=resampler=soxr:precision=28")
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds()))
	}

	return append(args, "-v", "error")
}

func (d *Decoder) processFFmpegOutput(output []byte, metadata *AudioMetadata, source string, logger logging.Logger) (*AudioData, error) {
	samples := BytesToFloat64(output)
	if len(samples) == 0 {
		return nil, errors.New("no audio samples decoded")
	}

	sampleRate := d.OutputSampleRate(metadata)
	duration := time.Duration(len(samples)) * time.Second / time.Duration(sampleRate)

	logger.Debug("FFmpeg decode completed successfully", logging.Fields{
		"output_samples":     len(samples),
		"output_sample_rate": sampleRate,
		"output_duration":    duration.Seconds(),
	})

	return &AudioData{
		PCM:        samples,
		SampleRate: sampleRate,
		Channels:   metadata.Channels,
		Duration:   duration,
		Source:     source,
		Metadata:   metadata,
	}, nil
}

// BytesToFloat64 converts raw little-endian float64 bytes, dropping any
// trailing partial sample.
func BytesToFloat64(data []byte) []float64 {
	sampleCount := len(data) / 8
	if sampleCount == 0 {
		return nil
	}

	samples := make([]float64, sampleCount)
	for i := range sampleCount {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// ValidateConfig checks the decoder settings. The ffmpeg binaries are not
// executed; a missing tool surfaces as a decode error.
func ValidateConfig(config *DecoderConfig) error {
	var errs []error
	if config.TargetSampleRate < 0 {
		errs = append(errs, fmt.Errorf("target sample rate must not be negative: %d", config.TargetSampleRate))
	}
	if config.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("max duration must not be negative: %s", config.MaxDuration))
	}
	if config.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative: %s", config.Timeout))
	}
	if config.FFmpegPath == "" || config.FFprobePath == "" {
		errs = append(errs, errors.New("ffmpeg and ffprobe paths are required"))
	}
	return errors.Join(errs...)
}

// SupportedExtensions lists the file extensions directory analysis picks up.
func SupportedExtensions() []string {
	return []string{".wav", ".mp3", ".m4a", ".flac", ".ogg"}
}
