package loader

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/RyanBlaney/sonido-gunshot/detection/backends"
	"github.com/RyanBlaney/sonido-gunshot/detection/extractors"
	"github.com/RyanBlaney/sonido-gunshot/detection/prediction"
	"github.com/RyanBlaney/sonido-gunshot/detection/rules"
)

type fakeRuntime struct {
	unavailable bool
	model       *fakeModel
}

func (r *fakeRuntime) Name() string { return "fake" }
func (r *fakeRuntime) Available() error {
	if r.unavailable {
		return backends.ErrRuntimeUnavailable
	}
	return nil
}
func (r *fakeRuntime) Load(_ backends.Architecture, _ string) (backends.TensorModel, error) {
	return r.model, nil
}

type fakeModel struct {
	output []float32
	panics bool
	closed atomic.Bool
}

func (m *fakeModel) InputShape() [3]int { return [3]int{32, 32, 1} }
func (m *fakeModel) Run(_ *extractors.SpectrogramTensor) ([]float32, error) {
	if m.panics {
		panic("bad kernel")
	}
	return m.output, nil
}
func (m *fakeModel) Close() error {
	m.closed.Store(true)
	return nil
}

func writeSpectrogramBundle(t *testing.T, dir string) {
	t.Helper()
	arch := []byte(`{"name": "gunshot_cnn", "version": "1.0", "type": "cnn", "input_shape": [32, 32, 1]}`)
	if err := os.WriteFile(filepath.Join(dir, backends.DefaultArchitectureFile), arch, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, backends.DefaultWeightsFile), []byte("w"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeClassicalBundle(t *testing.T, dir string, nMFCC int) {
	t.Helper()
	dim := extractors.ClassicDimension(13)

	model, err := backends.EncodeClassifier(backends.ClassifierExport{
		ModelType: backends.ModelLogisticRegression,
		Classes:   []int{0, 1},
		NFeatures: dim,
		Coef:      make([]float64, dim),
		Intercept: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, backends.DefaultClassicalModelFile), model, 0o644); err != nil {
		t.Fatal(err)
	}

	meta, _ := json.Marshal(backends.Metadata{
		SampleRate: 22050,
		NMFCC:      nMFCC,
		NFFT:       2048,
		HopLength:  512,
		FeatureDim: dim,
		ModelType:  backends.ModelLogisticRegression,
	})
	if err := os.WriteFile(filepath.Join(dir, backends.DefaultClassicalMetadataFile), meta, 0o644); err != nil {
		t.Fatal(err)
	}
}

func testInput() backends.Input {
	samples := make([]float64, 22050)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*1500*float64(i)/22050)
	}
	return backends.Input{
		// scores 1.0 under the rule engine
		Descriptor: &extractors.AudioDescriptor{
			Duration:         1,
			SampleRate:       22050,
			Energy:           0.8,
			PeakFrequency:    1500,
			ZeroCrossingRate: 0.2,
			SpectralCentroid: 2500,
		},
		Waveform: extractors.Waveform{Samples: samples, SampleRate: 22050, Channels: 1},
	}
}

func newLoader(specDir, classicalDir string, rt backends.Runtime) *ModelLoader {
	return New(Options{
		SpectrogramEnabled: true,
		Spectrogram:        backends.SpectrogramConfig{Dir: specDir},
		Runtime:            rt,
		ClassicalEnabled:   true,
		Classical:          backends.ClassicalConfig{Dir: classicalDir},
		Rules:              rules.NewEngineWithJitter(func() float64 { return 0 }),
	})
}

func TestFirstSuccess(t *testing.T) {
	rule := backends.NewRuleBackend(nil)
	fail := func(context.Context) (backends.Backend, error) { return nil, errors.New("boom") }
	ok := func(context.Context) (backends.Backend, error) { return rule, nil }

	calls := 0
	never := func(context.Context) (backends.Backend, error) {
		calls++
		return rule, nil
	}

	got, failures, err := FirstSuccess(context.Background(),
		Attempt{Kind: backends.KindSpectrogram, Path: "a", Load: fail},
		Attempt{Kind: backends.KindRule, Load: ok},
		Attempt{Kind: backends.KindRule, Load: never},
	)
	if err != nil || got != rule {
		t.Fatalf("FirstSuccess = %v, %v", got, err)
	}
	if len(failures) != 1 || failures[0].Path != "a" || calls != 0 {
		t.Errorf("unexpected failures %v or later attempt ran (%d)", failures, calls)
	}

	if _, _, err := FirstSuccess(context.Background(), Attempt{Load: fail}); !errors.Is(err, ErrNoBackend) {
		t.Errorf("expected ErrNoBackend, got %v", err)
	}
}

func TestUnloadedAnswersWithRules(t *testing.T) {
	l := newLoader(t.TempDir(), t.TempDir(), nil)
	if l.IsLoaded() || l.State() != StateUnloaded {
		t.Fatal("new loader should be unloaded")
	}

	result := l.Predict(context.Background(), testInput())
	if result.Method != prediction.MethodRules || !result.Detected {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestLoadWithoutArtifactsEndsOnRules(t *testing.T) {
	l := newLoader(t.TempDir(), t.TempDir(), nil)
	info := l.Load(context.Background())

	if !l.IsLoaded() || l.Kind() != backends.KindRule {
		t.Fatalf("expected Ready(rule), got %v/%v", l.State(), l.Kind())
	}
	if !info.Loaded || info.Framework != "rules" || info.Method != prediction.MethodRules {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.ModelPath != backends.RuleModelPath {
		t.Errorf("model_path = %q, want %q", info.ModelPath, backends.RuleModelPath)
	}
	if !strings.Contains(info.LoadError, "spectrogram") || !strings.Contains(info.LoadError, "classical") {
		t.Errorf("load_error should name both failed tiers: %q", info.LoadError)
	}
	if len(info.Failures) != 2 {
		t.Errorf("failures = %+v", info.Failures)
	}
}

func TestLoadPrefersSpectrogram(t *testing.T) {
	specDir, classicalDir := t.TempDir(), t.TempDir()
	writeSpectrogramBundle(t, specDir)
	writeClassicalBundle(t, classicalDir, 13)

	l := newLoader(specDir, classicalDir, &fakeRuntime{model: &fakeModel{output: []float32{0.2, 0.8}}})
	info := l.Load(context.Background())

	if l.Kind() != backends.KindSpectrogram || info.Framework != "fake" || info.LoadError != "" {
		t.Fatalf("unexpected info: %+v", info)
	}

	result := l.Predict(context.Background(), testInput())
	if result.Method != prediction.MethodSpectrogram || result.Probability != 0.8 || result.RiskLevel != prediction.RiskHigh {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestUnavailableRuntimeFallsToClassical(t *testing.T) {
	specDir, classicalDir := t.TempDir(), t.TempDir()
	writeSpectrogramBundle(t, specDir)
	writeClassicalBundle(t, classicalDir, 13)

	l := newLoader(specDir, classicalDir, &fakeRuntime{unavailable: true})
	info := l.Load(context.Background())

	if l.Kind() != backends.KindClassical || info.Framework != "sklearn" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if !strings.Contains(info.LoadError, "spectrogram") {
		t.Errorf("load_error = %q", info.LoadError)
	}

	result := l.Predict(context.Background(), testInput())
	if result.Method != prediction.MethodClassical || !result.Detected {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestDisabledTiersAreSkipped(t *testing.T) {
	specDir, classicalDir := t.TempDir(), t.TempDir()
	writeSpectrogramBundle(t, specDir)
	writeClassicalBundle(t, classicalDir, 13)

	l := New(Options{
		Spectrogram:      backends.SpectrogramConfig{Dir: specDir},
		Runtime:          &fakeRuntime{model: &fakeModel{output: []float32{0.9}}},
		ClassicalEnabled: true,
		Classical:        backends.ClassicalConfig{Dir: classicalDir},
	})
	info := l.Load(context.Background())
	if l.Kind() != backends.KindClassical || info.LoadError != "" {
		t.Errorf("expected classical without failures, got %+v", info)
	}
}

func TestFeatureDimMismatchFallsBackPerRequest(t *testing.T) {
	classicalDir := t.TempDir()
	writeClassicalBundle(t, classicalDir, 20)

	l := newLoader(t.TempDir(), classicalDir, nil)
	l.Load(context.Background())
	if l.Kind() != backends.KindClassical {
		t.Fatalf("expected classical backend, got %v", l.Kind())
	}

	for range 2 {
		result := l.Predict(context.Background(), testInput())
		if result.Method != prediction.MethodRules {
			t.Errorf("expected rule fallback, got %+v", result)
		}
		if result.Error != "" {
			t.Errorf("fallback result should not carry an error: %q", result.Error)
		}
	}

	if l.Kind() != backends.KindClassical {
		t.Error("fallback must not demote the active backend")
	}
}

func TestInferencePanicFallsBackPerRequest(t *testing.T) {
	specDir := t.TempDir()
	writeSpectrogramBundle(t, specDir)

	l := newLoader(specDir, t.TempDir(), &fakeRuntime{model: &fakeModel{panics: true}})
	l.Load(context.Background())

	result := l.Predict(context.Background(), testInput())
	if result.Method != prediction.MethodRules {
		t.Errorf("expected rule fallback, got %+v", result)
	}
	if l.Kind() != backends.KindSpectrogram {
		t.Error("fallback must not demote the active backend")
	}
}

func TestReloadSwapsBackend(t *testing.T) {
	specDir, classicalDir := t.TempDir(), t.TempDir()
	writeSpectrogramBundle(t, specDir)

	first := &fakeModel{output: []float32{0.1}}
	rt := &fakeRuntime{model: first}
	l := newLoader(specDir, classicalDir, rt)
	l.Load(context.Background())
	if l.Kind() != backends.KindSpectrogram {
		t.Fatalf("expected spectrogram, got %v", l.Kind())
	}

	// runtime disappears, classical bundle appears
	rt.unavailable = true
	writeClassicalBundle(t, classicalDir, 13)

	info := l.Reload(context.Background())
	if l.Kind() != backends.KindClassical || info.Backend != "classical" {
		t.Fatalf("expected classical after reload, got %+v", info)
	}
	if !first.closed.Load() {
		t.Error("previous model should be closed after reload")
	}
}

func TestConcurrentPredictDuringReload(t *testing.T) {
	specDir, classicalDir := t.TempDir(), t.TempDir()
	writeSpectrogramBundle(t, specDir)
	writeClassicalBundle(t, classicalDir, 13)

	l := newLoader(specDir, classicalDir, &fakeRuntime{model: &fakeModel{output: []float32{0.2, 0.8}}})
	l.Load(context.Background())

	valid := map[string]bool{
		prediction.MethodSpectrogram: true,
		prediction.MethodClassical:   true,
		prediction.MethodRules:       true,
	}

	ctx := context.Background()
	in := testInput()
	var wg sync.WaitGroup
	errs := make(chan string, 64)

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 5 {
				result := l.Predict(ctx, in)
				if !valid[result.Method] || result.Probability < 0 || result.Probability > 1 {
					errs <- result.Method
				}
			}
		}()
	}

	for range 3 {
		l.Reload(ctx)
	}
	wg.Wait()
	close(errs)

	for method := range errs {
		t.Errorf("invalid result method %q", method)
	}
	if !l.IsLoaded() {
		t.Error("loader should stay loaded")
	}
}

func TestClose(t *testing.T) {
	specDir := t.TempDir()
	writeSpectrogramBundle(t, specDir)
	model := &fakeModel{output: []float32{0.5}}

	l := newLoader(specDir, t.TempDir(), &fakeRuntime{model: model})
	l.Load(context.Background())

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !model.closed.Load() || l.IsLoaded() {
		t.Error("Close should release the model and unload")
	}
	if got := l.Predict(context.Background(), testInput()); got.Method != prediction.MethodRules {
		t.Errorf("closed loader should answer with rules, got %q", got.Method)
	}
}
