package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nomaai/deidgo/internal/config"
	"github.com/nomaai/deidgo/internal/engine"
	"github.com/nomaai/deidgo/internal/lint"
	"github.com/nomaai/deidgo/internal/report"
	"github.com/spf13/cobra"
)

var (
	runContinueOnError bool
	runSerial          bool
	runtimeIOPath      string
)

var runCmd = &cobra.Command{
	Use:   "run <config>",
	Short: "Run the de-identification pipeline for a configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := args[0]

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		issues := lint.Lint(cfg)
		if printIssues(issues) {
			return fmt.Errorf("lint errors present, refusing to run")
		}

		e, err := engine.New(cfg, engine.WithSerial(runSerial), engine.WithContinueOnError(runContinueOnError))
		if err != nil {
			return fmt.Errorf("initialize engine: %w", err)
		}

		rep, err := e.Run(context.Background())
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}

		if runtimeIOPath != "" {
			path, err := report.Save(rep, runtimeIOPath)
			if err != nil {
				return fmt.Errorf("save report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", path)
		}

		for name, result := range rep.Results {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, result.Status)
			if result.Error != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", result.Error)
			}
		}

		if !rep.Success {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVarP(&runContinueOnError, "continue-on-error", "c", false, "keep running unaffected tables after a failure")
	runCmd.Flags().BoolVar(&runSerial, "serial", false, "force single-threaded, deterministic execution")
	runCmd.Flags().StringVar(&runtimeIOPath, "runtime-io-path", "", "directory to write the timestamped run report to")
	rootCmd.AddCommand(runCmd)
}
