package main

import (
	"context"
	"fmt"

	"github.com/nomaai/deidgo/internal/config"
	"github.com/nomaai/deidgo/internal/engine"
	"github.com/nomaai/deidgo/internal/ioadapter"
	"github.com/spf13/cobra"
)

var reverseOutputPath string

var reverseCmd = &cobra.Command{
	Use:   "reverse <config>",
	Short: "Reconstruct original values from a de-identified output using the same reference store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if reverseOutputPath == "" {
			return fmt.Errorf("--reverse-output-path is required")
		}

		cfg, err := config.Load(args[0])
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		e, err := engine.New(cfg)
		if err != nil {
			return fmt.Errorf("initialize engine: %w", err)
		}

		destCfg := ioadapter.Config{}
		for k, v := range cfg.IO.Data.OutputConfig.Config {
			destCfg[k] = v
		}
		destCfg["base_path"] = reverseOutputPath
		dest, err := ioadapter.NewTableStore(cfg.IO.Data.OutputConfig.IOType, destCfg)
		if err != nil {
			return fmt.Errorf("open reverse output store: %w", err)
		}

		rep, err := e.Reverse(context.Background(), e.Output, dest)
		if err != nil {
			return fmt.Errorf("reverse: %w", err)
		}

		for name, result := range rep.Results {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, result.Status)
			if result.UnresolvedSurrogates > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  %d surrogate(s) had no reference entry and were left unchanged\n", result.UnresolvedSurrogates)
			}
		}
		if !rep.Success {
			return fmt.Errorf("reverse run completed with errors")
		}
		return nil
	},
}

func init() {
	reverseCmd.Flags().StringVar(&reverseOutputPath, "reverse-output-path", "", "directory to write reconstructed tables to")
	rootCmd.AddCommand(reverseCmd)
}
