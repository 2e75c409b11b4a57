package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-gunshot/detection"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file|->...",
	Short: "Analyse audio files",
	Long: `Decode each file, extract its features and report whether a gunshot
was detected, with the risk level and the backend that answered.
A file named "-" is read from standard input.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print full JSON reports")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var failed int
	for _, path := range args {
		var report *detection.Report
		if path == "-" {
			report, err = a.analyzer.AnalyzeReader(ctx, cmd.InOrStdin(), "stdin")
		} else {
			report, err = a.analyzer.AnalyzeFile(ctx, path)
		}
		if err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			continue
		}

		if analyzeJSON {
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			continue
		}
		printReport(cmd.OutOrStdout(), report)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func printReport(w io.Writer, r *detection.Report) {
	status := "no gunshot"
	if r.Analysis.Detected {
		status = "GUNSHOT"
	}
	fmt.Fprintf(w, "%s: %s (confidence %.2f, risk %s, method %s, %.2fs)\n",
		r.Source, status, r.Analysis.Confidence, r.Analysis.RiskLevel, r.Analysis.Method, r.Latency)
	for _, d := range r.Detections {
		fmt.Fprintf(w, "  at %.2fs confidence %.2f\n", d.Timestamp, d.Confidence)
	}
}
