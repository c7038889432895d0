// Command deidgo is the CLI front-end for the de-identification
// engine: load a YAML pipeline configuration, lint it, run it forward
// or in reverse, and verify a reverse run's round-trip fidelity. Each
// subcommand lives in its own file and registers itself onto a
// package-level rootCmd from its own init().
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
