package main

import (
	"context"
	"fmt"

	"github.com/nomaai/deidgo/internal/config"
	"github.com/nomaai/deidgo/internal/engine"
	"github.com/nomaai/deidgo/internal/ioadapter"
	"github.com/nomaai/deidgo/internal/verify"
	"github.com/spf13/cobra"
)

var verifyReverseOutputPath string

var verifyCmd = &cobra.Command{
	Use:   "verify <config>",
	Short: "Compare a reverse run's output against the original input",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if verifyReverseOutputPath == "" {
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

		reversedCfg := ioadapter.Config{}
		for k, v := range cfg.IO.Data.InputConfig.Config {
			reversedCfg[k] = v
		}
		reversedCfg["base_path"] = verifyReverseOutputPath
		reversed, err := ioadapter.NewTableStore(cfg.IO.Data.InputConfig.IOType, reversedCfg)
		if err != nil {
			return fmt.Errorf("open reversed output store: %w", err)
		}

		ctx := context.Background()
		result := verify.Result{Tables: map[string]verify.TableResult{}}
		hasError := false
		for name := range cfg.Tables {
			segments, err := e.Input.ListSegments(ctx, name)
			if err != nil {
				return fmt.Errorf("table %q: list original segments: %w", name, err)
			}
			for _, seg := range segments {
				original, err := e.Input.ReadSegment(ctx, name, seg)
				if err != nil {
					return fmt.Errorf("table %q: read original segment %q: %w", name, seg, err)
				}
				reconstructed, err := reversed.ReadSegment(ctx, name, seg)
				if err != nil {
					return fmt.Errorf("table %q: read reversed segment %q: %w", name, seg, err)
				}
				tableResult := verify.CompareTable(original, reconstructed, e.Pipelines[name].DroppedColumns())
				result.Tables[name] = tableResult
				if tableResult.Status == verify.StatusError {
					hasError = true
				}
			}
		}

		for name, tableResult := range result.Tables {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, tableResult.Status)
			for _, col := range tableResult.PerColumn {
				if col.Status != verify.StatusPass {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s (%s)\n", col.Name, col.Status, col.Message)
				}
			}
		}

		if hasError {
			return fmt.Errorf("verification found round-trip errors")
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyReverseOutputPath, "reverse-output-path", "", "directory the reverse command wrote reconstructed tables to")
	rootCmd.AddCommand(verifyCmd)
}
