package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-gunshot/detection/backends"
)

var modelStrict bool

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect the detection model",
}

var modelInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the active backend and why other tiers did not load",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		l := newLoader(cfg)
		defer l.Close()

		return writeJSON(cmd.OutOrStdout(), l.Load(cmd.Context()))
	},
}

var modelCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load the models and report the active tier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		l := newLoader(cfg)
		defer l.Close()

		info := l.Load(cmd.Context())
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "backend: %s\n", info.Backend)
		fmt.Fprintf(out, "loaded:  %t\n", info.Loaded)
		for _, f := range info.Failures {
			fmt.Fprintf(out, "  %s unavailable: %s\n", f.Backend, f.Error)
		}

		if modelStrict && l.Kind() == backends.KindRule {
			return fmt.Errorf("no trained model could be loaded")
		}
		return nil
	},
}

func init() {
	modelCheckCmd.Flags().BoolVar(&modelStrict, "strict", false, "fail when only the rule engine is available")

	modelCmd.AddCommand(modelInfoCmd)
	modelCmd.AddCommand(modelCheckCmd)
}
