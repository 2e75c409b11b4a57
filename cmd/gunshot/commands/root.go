package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-gunshot/detection"
	"github.com/RyanBlaney/sonido-gunshot/detection/config"
	"github.com/RyanBlaney/sonido-gunshot/detection/extractors"
	"github.com/RyanBlaney/sonido-gunshot/detection/loader"
	"github.com/RyanBlaney/sonido-gunshot/logging"
	"github.com/RyanBlaney/sonido-gunshot/runtime/onnxrt"
	"github.com/RyanBlaney/sonido-gunshot/transcode"
)

var (
	// Global flags
	configPath string
	envFile    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "gunshot",
	Short: "Detect gunshots in audio recordings",
	Long: `gunshot - analyse audio files for gunshots.

The detector loads the best available model at startup:
  1. a spectrogram network (ONNX Runtime must be installed)
  2. a classical model exported to msgpack
  3. the built-in rule engine

Settings come from an optional YAML file (--config) and GUNSHOT_*
environment variables, e.g. GUNSHOT_CLASSICAL_DIR=/srv/models.
A .env file is read first when present.

Examples:
  gunshot analyze clip.wav
  ffmpeg -i clip.mp4 -f wav - | gunshot analyze - --json
  gunshot batch recordings/ --output results.json
  gunshot model info`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries results only
		logging.SetGlobalLogger(logging.NewDefaultLoggerWithOutput(cmd.ErrOrStderr(), cmd.ErrOrStderr()))
		return loadEnv(envFile)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(modelCmd)
}

// loadEnv reads a dotenv file; a missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// app is the wired pipeline for one CLI invocation.
type app struct {
	cfg      *config.Config
	loader   *loader.ModelLoader
	analyzer *detection.Analyzer
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(level)
	return cfg, nil
}

func newLoader(cfg *config.Config) *loader.ModelLoader {
	return loader.New(loader.Options{
		SpectrogramEnabled: cfg.Spectrogram.Enabled,
		Spectrogram:        cfg.SpectrogramBundle(),
		Runtime:            onnxrt.New(cfg.Spectrogram.RuntimeLibrary),
		ClassicalEnabled:   cfg.Classical.Enabled,
		Classical:          cfg.ClassicalBundle(),
	})
}

// newApp loads configuration and models.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg)
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	decoder, err := transcode.NewDecoder(cfg.DecoderSettings())
	if err != nil {
		return nil, err
	}

	l := newLoader(cfg)
	l.Load(ctx)

	analyzer := detection.NewAnalyzer(
		decoder,
		extractors.NewExtractor(cfg.ExtractionParams()),
		l,
		cfg.Batch.Workers,
	)

	return &app{cfg: cfg, loader: l, analyzer: analyzer}, nil
}

func (a *app) Close() error {
	return a.loader.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
