package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var formatYAMLCmd = &cobra.Command{
	Use:   "format-yaml <path>",
	Short: "Rewrite a YAML file with consistent key ordering and indentation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %q: %w", path, err)
		}

		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %q: %w", path, err)
		}

		out, err := yaml.Marshal(&doc)
		if err != nil {
			return fmt.Errorf("format %q: %w", path, err)
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return fmt.Errorf("write %q: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "formatted %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(formatYAMLCmd)
}
