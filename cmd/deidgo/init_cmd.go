package main

import (
	"fmt"
	"os"

	"github.com/nomaai/deidgo/internal/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [output-path]",
	Short: "Write a sample configuration file to get started",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outputPath := "sample_config.yaml"
		if len(args) == 1 {
			outputPath = args[0]
		}

		if _, err := os.Stat(outputPath); err == nil && !initForce {
			return fmt.Errorf("%s already exists, use --force to overwrite", outputPath)
		}

		if err := os.WriteFile(outputPath, []byte(config.Sample()), 0o644); err != nil {
			return fmt.Errorf("write sample config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote sample configuration to %s\n", outputPath)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
	rootCmd.AddCommand(initCmd)
}
