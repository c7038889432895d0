package main

import (
	"fmt"
	"os"

	"github.com/nomaai/deidgo/internal/config"
	"github.com/nomaai/deidgo/internal/lint"
	"github.com/spf13/cobra"
)

var lintWatch bool

var lintCmd = &cobra.Command{
	Use:   "lint <config>",
	Short: "Run static rules over a configuration file without running the engine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		issues := lint.Lint(cfg)
		lintReport(cmd, issues)

		if !lintWatch {
			if hasLintError(issues) {
				os.Exit(1)
			}
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "watching %s for changes, press ctrl-c to stop\n", args[0])
		return config.WatchConfig(args[0], nil, func(cfg *config.ClearedConfig, err error) {
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "reload failed: %v\n", err)
				return
			}
			lintReport(cmd, lint.Lint(cfg))
		})
	},
}

func init() {
	lintCmd.Flags().BoolVar(&lintWatch, "watch", false, "re-lint on every save until interrupted")
	rootCmd.AddCommand(lintCmd)
}

func lintReport(cmd *cobra.Command, issues []lint.Issue) {
	if len(issues) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no issues found")
		return
	}
	printIssues(issues)
}

func hasLintError(issues []lint.Issue) bool {
	for _, i := range issues {
		if i.Severity == lint.SeverityError {
			return true
		}
	}
	return false
}

// printIssues prints one line per issue (rule, severity, line,
// message) and reports whether any issue was a hard error: lint
// warnings exit clean, lint errors do not.
func printIssues(issues []lint.Issue) bool {
	hasError := false
	for _, i := range issues {
		if i.Line > 0 {
			fmt.Printf("%s [%s] line %d: %s\n", i.Rule, i.Severity, i.Line, i.Message)
		} else {
			fmt.Printf("%s [%s]: %s\n", i.Rule, i.Severity, i.Message)
		}
		if i.Severity == lint.SeverityError {
			hasError = true
		}
	}
	return hasError
}
