// Package report holds the run-report envelope internal/engine
// produces and persists: a flat JSON-tagged struct written with
// encoding/json, in the same result/run-log shape a sync job would
// report.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PipelineResult is one table's outcome within a run, keyed by table
// name in RunReport.Results.
type PipelineResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	// UnresolvedSurrogates counts cells a reverse run left unchanged
	// because their surrogate had no entry in the reference store.
	UnresolvedSurrogates int `json:"unresolved_surrogates,omitempty"`
}

// RunReport is the JSON object a run produces: overall success, the
// table execution order actually used, and a per-table result.
type RunReport struct {
	Success        bool                      `json:"success"`
	ExecutionOrder []string                  `json:"execution_order"`
	Results        map[string]PipelineResult `json:"results"`
}

// Save writes rep as `<runtimeIOPath>/status_<unix_ts>.json` and
// returns the path written.
func Save(rep *RunReport, runtimeIOPath string) (string, error) {
	if err := os.MkdirAll(runtimeIOPath, 0o755); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	path := filepath.Join(runtimeIOPath, fmt.Sprintf("status_%d.json", time.Now().Unix()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return path, nil
}
