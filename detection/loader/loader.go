// Package loader owns the active detection backend. It loads the first
// usable tier of spectrogram model, classical model and rules, swaps it
// atomically on reload, and answers every request, falling back to the
// rule engine for a single request when a model backend fails.
package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RyanBlaney/sonido-gunshot/detection/backends"
	"github.com/RyanBlaney/sonido-gunshot/detection/prediction"
	"github.com/RyanBlaney/sonido-gunshot/detection/rules"
	"github.com/RyanBlaney/sonido-gunshot/logging"
	"github.com/RyanBlaney/sonido-gunshot/observe"
)

// State is the loader lifecycle.
type State int32

const (
	StateUnloaded State = iota
	StateProbing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateProbing:
		return "probing"
	case StateReady:
		return "ready"
	default:
		return "unloaded"
	}
}

// Options configures the cascade.
type Options struct {
	SpectrogramEnabled bool
	Spectrogram        backends.SpectrogramConfig
	Runtime            backends.Runtime

	ClassicalEnabled bool
	Classical        backends.ClassicalConfig

	// Rules is the engine used by the rule tier and by fallbacks; nil uses
	// a default engine.
	Rules *rules.Engine
	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics
}

// Info is the management view of the loader.
type Info struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	Type      string        `json:"type"`
	Framework string        `json:"framework"`
	Loaded    bool          `json:"loaded"`
	LoadError string        `json:"load_error,omitempty"`
	ModelPath string        `json:"model_path,omitempty"`
	Backend   string        `json:"backend"`
	State     string        `json:"state"`
	Method    string        `json:"method"`
	LoadedAt  time.Time     `json:"loaded_at,omitzero"`
	Details   backends.Info `json:"details"`
	Failures  []FailureInfo `json:"failures,omitempty"`
}

// FailureInfo describes one tier that did not load.
type FailureInfo struct {
	Backend string `json:"backend"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error"`
}

// snapshot is one published handle. It is never mutated after publication
// except for retirement.
type snapshot struct {
	backend  backends.Backend
	failures []AttemptError
	loadedAt time.Time

	mu      sync.RWMutex
	retired bool
}

// acquire pins the snapshot for one request; false means it was retired.
func (s *snapshot) acquire() bool {
	s.mu.RLock()
	if s.retired {
		s.mu.RUnlock()
		return false
	}
	return true
}

func (s *snapshot) release() { s.mu.RUnlock() }

// retire waits for pinned requests to finish, then closes the backend.
func (s *snapshot) retire() error {
	s.mu.Lock()
	s.retired = true
	s.mu.Unlock()
	return s.backend.Close()
}

// ModelLoader is the process-wide owner of the active backend. Predict is
// safe for concurrent use with itself and with Reload.
type ModelLoader struct {
	opts    Options
	rules   *backends.RuleBackend
	metrics *observe.Metrics
	logger  logging.Logger

	reloadMu sync.Mutex
	state    atomic.Int32
	current  atomic.Pointer[snapshot]
}

// New creates an unloaded loader.
func New(opts Options) *ModelLoader {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &ModelLoader{
		opts:    opts,
		rules:   backends.NewRuleBackend(opts.Rules),
		metrics: metrics,
		logger: logging.WithFields(logging.Fields{
			"component": "model_loader",
		}),
	}
}

// State returns the lifecycle state.
func (l *ModelLoader) State() State {
	return State(l.state.Load())
}

// Load runs the cascade and publishes the result. It always ends Ready.
func (l *ModelLoader) Load(ctx context.Context) Info {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()

	return l.load(ctx)
}

// Reload re-runs the cascade and swaps the active handle. Requests already
// running finish on the previous backend before it is closed.
func (l *ModelLoader) Reload(ctx context.Context) Info {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()

	l.logger.Info("Reloading models")
	return l.load(ctx)
}

func (l *ModelLoader) load(ctx context.Context) Info {
	logger := l.logger.WithFields(logging.Fields{
		"function": "load",
	})

	previous := l.current.Load()
	if previous == nil {
		l.state.Store(int32(StateProbing))
	}

	backend, failures, err := FirstSuccess(ctx, l.attempts()...)
	if err != nil {
		// the rule tier cannot fail, so this is unreachable in practice
		logger.Error(err, "Cascade produced no backend")
		backend = l.rules
	}

	for _, f := range failures {
		logger.Warn("Backend unavailable, trying next tier", logging.Fields{
			"backend":       f.Kind.String(),
			"artifact_path": f.Path,
			"error":         f.Err.Error(),
		})
	}

	next := &snapshot{backend: backend, failures: failures, loadedAt: time.Now()}
	l.current.Store(next)
	l.state.Store(int32(StateReady))

	if previous != nil {
		if err := previous.retire(); err != nil {
			logger.Warn("Failed to close previous backend", logging.Fields{
				"backend": previous.backend.Kind().String(),
				"error":   err.Error(),
			})
		}
	}

	info := l.infoFor(next)
	logger.Info("Model ready", logging.Fields{
		"backend":    info.Backend,
		"name":       info.Name,
		"framework":  info.Framework,
		"model_path": info.ModelPath,
	})
	return info
}

func (l *ModelLoader) attempts() []Attempt {
	var attempts []Attempt

	if l.opts.SpectrogramEnabled {
		cfg := l.opts.Spectrogram
		attempts = append(attempts, Attempt{
			Kind: backends.KindSpectrogram,
			Path: cfg.WeightsPath(),
			Load: func(ctx context.Context) (backends.Backend, error) {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				b, err := backends.LoadSpectrogram(cfg, l.opts.Runtime)
				l.metrics.RecordLoad(ctx, backends.KindSpectrogram.String(), err)
				if err != nil {
					return nil, err
				}
				return b, nil
			},
		})
	}

	if l.opts.ClassicalEnabled {
		cfg := l.opts.Classical
		attempts = append(attempts, Attempt{
			Kind: backends.KindClassical,
			Path: cfg.ModelPath(),
			Load: func(ctx context.Context) (backends.Backend, error) {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				b, err := backends.LoadClassical(cfg)
				l.metrics.RecordLoad(ctx, backends.KindClassical.String(), err)
				if err != nil {
					return nil, err
				}
				return b, nil
			},
		})
	}

	return append(attempts, Attempt{
		Kind: backends.KindRule,
		Load: func(ctx context.Context) (backends.Backend, error) {
			l.metrics.RecordLoad(ctx, backends.KindRule.String(), nil)
			return l.rules, nil
		},
	})
}

// IsLoaded reports whether a backend has been published.
func (l *ModelLoader) IsLoaded() bool {
	return l.State() == StateReady
}

// Kind returns the active backend kind; rules before the first load.
func (l *ModelLoader) Kind() backends.Kind {
	if snap := l.current.Load(); snap != nil {
		return snap.backend.Kind()
	}
	return backends.KindRule
}

// Info describes the active backend.
func (l *ModelLoader) Info() Info {
	snap := l.current.Load()
	if snap == nil {
		info := l.rules.Info()
		return Info{
			Name:      info.Name,
			Version:   info.Version,
			Type:      info.Type,
			Framework: info.Framework,
			ModelPath: info.ModelPath,
			Backend:   info.Kind.String(),
			State:     l.State().String(),
			Method:    info.Kind.Method(),
			Details:   info,
		}
	}
	return l.infoFor(snap)
}

func (l *ModelLoader) infoFor(snap *snapshot) Info {
	details := snap.backend.Info()
	info := Info{
		Name:      details.Name,
		Version:   details.Version,
		Type:      details.Type,
		Framework: details.Framework,
		Loaded:    true,
		LoadError: joinFailures(snap.failures),
		ModelPath: details.ModelPath,
		Backend:   details.Kind.String(),
		State:     StateReady.String(),
		Method:    details.Kind.Method(),
		LoadedAt:  snap.loadedAt,
		Details:   details,
	}
	for _, f := range snap.failures {
		info.Failures = append(info.Failures, FailureInfo{
			Backend: f.Kind.String(),
			Path:    f.Path,
			Error:   f.Err.Error(),
		})
	}
	return info
}

// pin returns the current snapshot pinned for one request, or nil before
// the first load.
func (l *ModelLoader) pin() *snapshot {
	for {
		snap := l.current.Load()
		if snap == nil {
			return nil
		}
		if snap.acquire() {
			return snap
		}
	}
}

// Predict answers one request with the active backend. A model backend
// failure is logged and the request is answered by the rule engine; the
// active backend stays in place.
func (l *ModelLoader) Predict(ctx context.Context, in backends.Input) prediction.Result {
	start := time.Now()

	result := l.predict(ctx, in)

	l.metrics.RecordPrediction(ctx, result.Method, result.Detected, time.Since(start))
	return result
}

func (l *ModelLoader) predict(ctx context.Context, in backends.Input) prediction.Result {
	snap := l.pin()
	if snap == nil {
		return l.rules.Answer(in)
	}
	defer snap.release()

	if snap.backend.Kind() == backends.KindRule {
		return l.rules.Answer(in)
	}

	result, err := snap.backend.Predict(ctx, in)
	if err == nil {
		return result
	}

	info := snap.backend.Info()
	l.logger.Warn("Backend prediction failed, answering with rules", logging.Fields{
		"backend":       info.Kind.String(),
		"artifact_path": info.ModelPath,
		"error":         err.Error(),
	})
	l.metrics.RecordFallback(ctx, info.Kind.String(), fallbackReason(err))

	return l.rules.Answer(in)
}

func fallbackReason(err error) string {
	var artifactErr *prediction.ArtifactError
	var inferenceErr *prediction.InferenceError
	switch {
	case errors.As(err, &artifactErr):
		return "artifact"
	case errors.As(err, &inferenceErr):
		return "inference"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context"
	default:
		return "other"
	}
}

// Close retires the active backend.
func (l *ModelLoader) Close() error {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()

	snap := l.current.Swap(nil)
	l.state.Store(int32(StateUnloaded))
	if snap == nil {
		return nil
	}
	return snap.retire()
}
