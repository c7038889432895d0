package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "deidgo",
	Short: "De-identify tabular data against a YAML pipeline configuration",
}
