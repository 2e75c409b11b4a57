package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-gunshot/detection"
)

var (
	batchOutput  string
	batchWorkers int
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Analyse every audio file below a directory",
	Long: `Recursively collect .wav, .mp3, .m4a, .flac and .ogg files, analyse
them on a worker pool and print a summary. Files that fail to decode are
reported without stopping the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "write results as JSON to this file")
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 0, "concurrent files (default from config)")
}

type batchResult struct {
	Summary detection.Summary     `json:"summary"`
	Items   []detection.BatchItem `json:"items"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if batchWorkers > 0 {
		cfg.Batch.Workers = batchWorkers
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.analyzer.AnalyzeDirectory(ctx, args[0])
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No audio files found.")
		return nil
	}

	for _, item := range items {
		if item.Report == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", item.Source, item.Error)
			continue
		}
		printReport(cmd.OutOrStdout(), item.Report)
	}

	summary := detection.Summarize(items)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nSummary:")
	fmt.Fprintf(out, "  Files:          %d (%d failed)\n", summary.Total, summary.Failed)
	fmt.Fprintf(out, "  Detected:       %d\n", summary.Detected)
	fmt.Fprintf(out, "  Detection rate: %.1f%%\n", summary.DetectionRate*100)

	if batchOutput == "" {
		return nil
	}

	f, err := os.Create(batchOutput)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", batchOutput, err)
	}
	defer f.Close()

	if err := writeJSON(f, batchResult{Summary: summary, Items: items}); err != nil {
		return fmt.Errorf("failed to write %s: %w", batchOutput, err)
	}
	fmt.Fprintf(out, "Results written to %s\n", batchOutput)
	return nil
}
