package main

import (
	"fmt"

	"github.com/nomaai/deidgo/internal/config"
	"github.com/spf13/cobra"
)

var checkSyntaxCmd = &cobra.Command{
	Use:   "check-syntax <config>",
	Short: "Parse and merge a configuration file without running or linting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return fmt.Errorf("syntax error: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d table(s), OK\n", args[0], len(cfg.Tables))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkSyntaxCmd)
}
