// Package detection ties decoding, feature extraction and the model loader
// into file, batch and directory analysis of gunshot audio.
package detection

import (
	"context"
	"io"
	"io/fs"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-gunshot/detection/backends"
	"github.com/RyanBlaney/sonido-gunshot/detection/extractors"
	"github.com/RyanBlaney/sonido-gunshot/detection/prediction"
	"github.com/RyanBlaney/sonido-gunshot/logging"
	"github.com/RyanBlaney/sonido-gunshot/transcode"
)

// Decoder turns an audio file or stream into mono PCM.
type Decoder interface {
	DecodeFile(ctx context.Context, path string) (*transcode.AudioData, error)
	DecodeReader(ctx context.Context, r io.Reader, source string) (*transcode.AudioData, error)
}

// Predictor answers one request. *loader.ModelLoader implements it.
type Predictor interface {
	Predict(ctx context.Context, in backends.Input) prediction.Result
}

// AudioFeatures is the summary of the clip included in a report.
type AudioFeatures struct {
	Duration      float64 `json:"duration"`
	SampleRate    int     `json:"sample_rate"`
	Channels      int     `json:"channels"`
	PeakFrequency float64 `json:"peak_frequency"`
	Energy        float64 `json:"energy"`
}

// Report is the outcome of analysing one clip.
type Report struct {
	ID            uuid.UUID                   `json:"id"`
	Source        string                      `json:"source"`
	Analysis      prediction.Result           `json:"analysis"`
	AudioFeatures AudioFeatures               `json:"audio_features"`
	Descriptor    *extractors.AudioDescriptor `json:"descriptor,omitempty"`
	Detections    []prediction.Detection      `json:"detections"`
	AnalyzedAt    time.Time                   `json:"analyzed_at"`
	// Latency is the analysis time in seconds.
	Latency float64 `json:"latency"`
}

// BatchItem is one file of a batch; exactly one of Report and Error is set.
type BatchItem struct {
	Source string  `json:"source"`
	Report *Report `json:"report,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Summary aggregates a batch.
type Summary struct {
	Total         int            `json:"total"`
	Analyzed      int            `json:"analyzed"`
	Failed        int            `json:"failed"`
	Detected      int            `json:"detected"`
	DetectionRate float64        `json:"detection_rate"`
	RiskLevels    map[string]int `json:"risk_levels"`
	Methods       map[string]int `json:"methods"`
}

// Analyzer runs the full pipeline. It is safe for concurrent use.
type Analyzer struct {
	decoder   Decoder
	extractor *extractors.Extractor
	predictor Predictor
	workers   int
	logger    logging.Logger
}

// NewAnalyzer wires the pipeline; workers bounds batch concurrency.
func NewAnalyzer(decoder Decoder, extractor *extractors.Extractor, predictor Predictor, workers int) *Analyzer {
	if extractor == nil {
		extractor = extractors.NewExtractor(extractors.DefaultExtractionParams())
	}
	return &Analyzer{
		decoder:   decoder,
		extractor: extractor,
		predictor: predictor,
		workers:   max(workers, 1),
		logger: logging.WithFields(logging.Fields{
			"component": "analyzer",
		}),
	}
}

// AnalyzeFile decodes path and analyses it. Decoding failures are returned
// as *extractors.DecodeError.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*Report, error) {
	start := time.Now()

	audio, err := a.decoder.DecodeFile(ctx, path)
	if err != nil {
		return nil, &extractors.DecodeError{Source: path, Reason: "decode failed", Err: err}
	}

	return a.analyze(ctx, waveform(audio, path), start)
}

// AnalyzeReader decodes an audio stream, such as stdin, and analyses it.
func (a *Analyzer) AnalyzeReader(ctx context.Context, r io.Reader, source string) (*Report, error) {
	start := time.Now()

	audio, err := a.decoder.DecodeReader(ctx, r, source)
	if err != nil {
		return nil, &extractors.DecodeError{Source: source, Reason: "decode failed", Err: err}
	}
	return a.analyze(ctx, waveform(audio, source), start)
}

func waveform(audio *transcode.AudioData, source string) extractors.Waveform {
	return extractors.Waveform{
		Samples:    audio.PCM,
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
		Source:     source,
	}
}

// AnalyzeWaveform analyses already decoded audio.
func (a *Analyzer) AnalyzeWaveform(ctx context.Context, w extractors.Waveform) (*Report, error) {
	return a.analyze(ctx, w, time.Now())
}

func (a *Analyzer) analyze(ctx context.Context, w extractors.Waveform, start time.Time) (*Report, error) {
	logger := a.logger.WithFields(logging.Fields{
		"function": "analyze",
		"source":   w.Source,
	})

	desc, err := a.extractor.Extract(w)
	if err != nil {
		return nil, err
	}

	result := a.predictor.Predict(ctx, backends.Input{Descriptor: desc, Waveform: w})

	report := &Report{
		ID:       uuid.New(),
		Source:   w.Source,
		Analysis: result,
		AudioFeatures: AudioFeatures{
			Duration:      desc.Duration,
			SampleRate:    desc.SampleRate,
			Channels:      desc.Channels,
			PeakFrequency: desc.PeakFrequency,
			Energy:        desc.Energy,
		},
		Descriptor: desc,
		Detections: result.Detections,
		AnalyzedAt: time.Now().UTC(),
		Latency:    prediction.Round2(time.Since(start).Seconds()),
	}

	logger.Debug("Analysis completed", logging.Fields{
		"detected":   result.Detected,
		"method":     result.Method,
		"risk_level": result.RiskLevel,
		"latency":    report.Latency,
	})

	return report, nil
}

// AnalyzeBatch analyses paths on a bounded worker pool. Items keep the
// order of paths; a failing file is reported in its item and does not stop
// the batch.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, paths []string) []BatchItem {
	items := make([]BatchItem, len(paths))

	var g errgroup.Group
	g.SetLimit(a.workers)

	for i, path := range paths {
		g.Go(func() error {
			items[i].Source = path
			if err := ctx.Err(); err != nil {
				items[i].Error = err.Error()
				return nil
			}

			report, err := a.AnalyzeFile(ctx, path)
			if err != nil {
				a.logger.Warn("File analysis failed", logging.Fields{
					"source": path,
					"error":  err.Error(),
				})
				items[i].Error = err.Error()
				return nil
			}
			items[i].Report = report
			return nil
		})
	}
	_ = g.Wait()

	return items
}

// AnalyzeDirectory analyses every supported audio file below dir.
func (a *Analyzer) AnalyzeDirectory(ctx context.Context, dir string) ([]BatchItem, error) {
	paths, err := CollectAudioFiles(dir)
	if err != nil {
		return nil, err
	}

	a.logger.Info("Analysing directory", logging.Fields{
		"dir":   dir,
		"files": len(paths),
	})

	return a.AnalyzeBatch(ctx, paths), nil
}

// CollectAudioFiles walks dir and returns the sorted paths whose extension
// is one of transcode.SupportedExtensions.
func CollectAudioFiles(dir string) ([]string, error) {
	extensions := transcode.SupportedExtensions()

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if slices.Contains(extensions, strings.ToLower(filepath.Ext(path))) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)
	return paths, nil
}

// Summarize aggregates batch items. The detection rate is detected over
// analysed files.
func Summarize(items []BatchItem) Summary {
	summary := Summary{
		Total:      len(items),
		RiskLevels: map[string]int{},
		Methods:    map[string]int{},
	}

	for _, item := range items {
		if item.Report == nil {
			summary.Failed++
			continue
		}
		summary.Analyzed++
		result := item.Report.Analysis
		if result.Detected {
			summary.Detected++
		}
		summary.RiskLevels[string(result.RiskLevel)]++
		summary.Methods[result.Method]++
	}

	if summary.Analyzed > 0 {
		summary.DetectionRate = prediction.Round2(float64(summary.Detected) / float64(summary.Analyzed))
	}
	return summary
}
