package detection

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/RyanBlaney/sonido-gunshot/detection/extractors"
	"github.com/RyanBlaney/sonido-gunshot/detection/loader"
	"github.com/RyanBlaney/sonido-gunshot/detection/prediction"
	"github.com/RyanBlaney/sonido-gunshot/detection/rules"
	"github.com/RyanBlaney/sonido-gunshot/transcode"
)

// fakeDecoder serves synthetic clips keyed by base name.
type fakeDecoder struct {
	clips map[string][]float64
}

func (d *fakeDecoder) DecodeFile(_ context.Context, path string) (*transcode.AudioData, error) {
	pcm, ok := d.clips[filepath.Base(path)]
	if !ok {
		return nil, errors.New("unsupported file")
	}
	return &transcode.AudioData{PCM: pcm, SampleRate: 22050, Channels: 1}, nil
}

// DecodeReader treats the stream contents as a clip name.
func (d *fakeDecoder) DecodeReader(ctx context.Context, r io.Reader, _ string) (*transcode.AudioData, error) {
	name, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return d.DecodeFile(ctx, string(name))
}

func noise(n int, amplitude float64) []float64 {
	r := rand.New(rand.NewPCG(1, 2))
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * (2*r.Float64() - 1)
	}
	return out
}

func tone(n int, freq, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/22050)
	}
	return out
}

func newRuleAnalyzer(t *testing.T, clips map[string][]float64) *Analyzer {
	t.Helper()
	l := loader.New(loader.Options{
		Rules: rules.NewEngineWithJitter(func() float64 { return 0 }),
	})
	l.Load(context.Background())
	t.Cleanup(func() { _ = l.Close() })

	return NewAnalyzer(&fakeDecoder{clips: clips}, nil, l, 2)
}

func TestAnalyzeFile(t *testing.T) {
	a := newRuleAnalyzer(t, map[string][]float64{
		"quiet.wav": tone(22050, 300, 0.01),
	})

	report, err := a.AnalyzeFile(context.Background(), "clips/quiet.wav")
	if err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}

	if report.Source != "clips/quiet.wav" || report.ID.String() == "" {
		t.Errorf("unexpected report identity: %+v", report)
	}
	if report.Analysis.Method != prediction.MethodRules {
		t.Errorf("method = %q", report.Analysis.Method)
	}
	if report.AudioFeatures.Duration != 1 || report.AudioFeatures.SampleRate != 22050 {
		t.Errorf("unexpected features: %+v", report.AudioFeatures)
	}
	if report.Analysis.Probability < 0 || report.Analysis.Probability > 1 {
		t.Errorf("probability out of range: %v", report.Analysis.Probability)
	}
}

func TestAnalyzeFileDecodeError(t *testing.T) {
	a := newRuleAnalyzer(t, nil)

	_, err := a.AnalyzeFile(context.Background(), "missing.wav")
	var decodeErr *extractors.DecodeError
	if !errors.As(err, &decodeErr) || decodeErr.Source != "missing.wav" {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestAnalyzeReader(t *testing.T) {
	a := newRuleAnalyzer(t, map[string][]float64{
		"quiet.wav": tone(22050, 300, 0.01),
	})

	report, err := a.AnalyzeReader(context.Background(), strings.NewReader("quiet.wav"), "stdin")
	if err != nil {
		t.Fatalf("AnalyzeReader: %v", err)
	}
	if report.Source != "stdin" || report.AudioFeatures.Duration != 1 {
		t.Errorf("unexpected report: %+v", report)
	}

	_, err = a.AnalyzeReader(context.Background(), strings.NewReader("garbage"), "stdin")
	var decodeErr *extractors.DecodeError
	if !errors.As(err, &decodeErr) || decodeErr.Source != "stdin" {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestAnalyzeWaveformEmpty(t *testing.T) {
	a := newRuleAnalyzer(t, nil)

	_, err := a.AnalyzeWaveform(context.Background(), extractors.Waveform{SampleRate: 22050})
	var decodeErr *extractors.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestAnalyzeBatch(t *testing.T) {
	a := newRuleAnalyzer(t, map[string][]float64{
		"a.wav": tone(22050, 300, 0.01),
		"b.wav": noise(22050, 0.9),
		"c.wav": tone(11025, 1000, 0.5),
	})

	paths := []string{"a.wav", "broken.wav", "b.wav", "c.wav"}
	items := a.AnalyzeBatch(context.Background(), paths)

	if len(items) != len(paths) {
		t.Fatalf("got %d items", len(items))
	}
	for i, item := range items {
		if item.Source != paths[i] {
			t.Errorf("item %d source = %q, want %q", i, item.Source, paths[i])
		}
	}
	if items[1].Error == "" || items[1].Report != nil {
		t.Errorf("broken file should fail: %+v", items[1])
	}

	summary := Summarize(items)
	if summary.Total != 4 || summary.Analyzed != 3 || summary.Failed != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.Methods[prediction.MethodRules] != 3 {
		t.Errorf("methods = %v", summary.Methods)
	}
	if summary.DetectionRate < 0 || summary.DetectionRate > 1 {
		t.Errorf("detection rate = %v", summary.DetectionRate)
	}
}

func TestAnalyzeBatchCancelled(t *testing.T) {
	a := newRuleAnalyzer(t, map[string][]float64{"a.wav": tone(22050, 300, 0.1)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := a.AnalyzeBatch(ctx, []string{"a.wav", "a.wav"})
	for _, item := range items {
		if item.Error == "" {
			t.Errorf("cancelled batch should report errors: %+v", item)
		}
	}
}

func TestCollectAudioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.WAV", "a.mp3", "notes.txt", "sub/c.flac", "sub/d.ogg", "sub/e.m4a", "sub/f.aac"} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := CollectAudioFiles(dir)
	if err != nil {
		t.Fatalf("CollectAudioFiles: %v", err)
	}

	var names []string
	for _, p := range paths {
		rel, _ := filepath.Rel(dir, p)
		names = append(names, filepath.ToSlash(rel))
	}
	want := []string{"a.mp3", "b.WAV", "sub/c.flac", "sub/d.ogg", "sub/e.m4a"}
	if !slices.Equal(names, want) {
		t.Errorf("CollectAudioFiles = %v, want %v", names, want)
	}

	if _, err := CollectAudioFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Total != 0 || s.DetectionRate != 0 {
		t.Errorf("unexpected summary: %+v", s)
	}
}
