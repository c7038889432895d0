// Package lint implements static configuration rules: each rule runs
// independently over a loaded config.ClearedConfig and reports Issues
// with a source line, so a config can be checked before anything is
// executed.
package lint

import (
	"fmt"
	"strings"

	"github.com/nomaai/deidgo/internal/config"
)

// Severity distinguishes a hard failure from an advisory warning.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding from one rule.
type Issue struct {
	Rule     string
	Message  string
	Line     int
	Severity Severity
}

// Rule is one independently-runnable check.
type Rule struct {
	ID   string
	Name string
	Run  func(cfg *config.ClearedConfig) []Issue
}

// Rules is every registered rule, run in this order.
var Rules = []Rule{
	{"cleared-001", "required-keys", ruleRequiredKeys},
	{"cleared-002", "datetime-requires-timeshift", ruleDatetimeRequiresTimeshift},
	{"cleared-003", "unique-transformer-uids", ruleUniqueTransformerUIDs},
	{"cleared-004", "valid-table-dependencies", ruleValidTableDependencies},
	{"cleared-005", "valid-transformer-dependencies", ruleValidTransformerDependencies},
	{"cleared-006", "no-circular-dependencies", ruleNoCircularDependencies},
	{"cleared-007", "uid-format", ruleUIDFormat},
	{"cleared-008", "datetime-timeshift-defined", ruleDatetimeTimeshiftDefined},
	{"cleared-009", "timeshift-risk", ruleTimeshiftRisk},
	{"cleared-010", "dropper-order", ruleDropperOrder},
	{"cleared-011", "timeshift-range", ruleTimeshiftRange},
	{"cleared-012", "required-transformer-configs", ruleRequiredTransformerConfigs},
	{"cleared-014", "multiple-transformers-same-column", ruleMultipleTransformersSameColumn},
	{"cleared-016", "value-cast-appropriateness", ruleValueCastAppropriateness},
	{"cleared-018", "output-paths-system-directories", ruleOutputPathsSystemDirectories},
	{"cleared-020", "config-complexity", ruleConfigComplexity},
}

// Lint runs every rule over cfg and returns the surviving issues,
// filtering out any whose reported line carries a
// `disable-line rule:<id>` suppression comment in cfg.SourceLines.
func Lint(cfg *config.ClearedConfig) []Issue {
	var all []Issue
	for _, r := range Rules {
		for _, issue := range r.Run(cfg) {
			if issue.Rule == "" {
				issue.Rule = r.ID
			}
			if !suppressed(cfg, issue) {
				all = append(all, issue)
			}
		}
	}
	return all
}

func suppressed(cfg *config.ClearedConfig, issue Issue) bool {
	if issue.Line <= 0 || issue.Line > len(cfg.SourceLines) {
		return false
	}
	line := cfg.SourceLines[issue.Line-1]
	idx := strings.Index(line, "disable-line")
	if idx < 0 {
		return false
	}
	marker := fmt.Sprintf("rule:%s", issue.Rule)
	return strings.Contains(line[idx:], marker)
}
