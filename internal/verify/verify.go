// Package verify implements a reverse-and-compare flow: given a
// table's original (pre-de-identification) frame and the frame
// reconstructed by internal/transform.Pipeline.Reverse, it reports
// per-column pass/warning/error status in the same flat JSON-tagged
// struct idiom internal/report uses.
package verify

import (
	"fmt"

	"github.com/nomaai/deidgo/internal/table"
)

// Status is one column's or table's verification outcome.
type Status string

const (
	StatusPass    Status = "pass"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// ColumnResult reports one column's round-trip comparison.
type ColumnResult struct {
	Name               string  `json:"name"`
	Status             Status  `json:"status"`
	Message            string  `json:"message,omitempty"`
	OriginalLength     int     `json:"original_length"`
	ReversedLength     int     `json:"reversed_length"`
	MismatchCount      int     `json:"mismatch_count"`
	MismatchPercentage float64 `json:"mismatch_percentage"`
	SampleIndices      []int   `json:"sample_indices"`
}

// TableResult is one table's aggregated verification outcome.
type TableResult struct {
	Status    Status         `json:"status"`
	Totals    map[string]int `json:"totals"`
	PerColumn []ColumnResult `json:"per_column"`
}

// Result is the top-level verification report, one entry per table.
type Result struct {
	Tables  map[string]TableResult `json:"tables"`
	Summary string                 `json:"summary"`
}

const maxSampleIndices = 100

// CompareTable compares original against reversed column-by-column.
// droppedColumns names columns the forward pipeline removed
// irreversibly (internal/transform.Pipeline.DroppedColumns) — these
// are reported as StatusWarning rather than StatusError, since their
// absence from reversed is expected, not a round-trip failure.
func CompareTable(original, reversed *table.Frame, droppedColumns []string) TableResult {
	dropped := make(map[string]bool, len(droppedColumns))
	for _, c := range droppedColumns {
		dropped[c] = true
	}

	var columns []ColumnResult
	worstOverall := StatusPass
	for _, name := range original.Columns {
		if dropped[name] {
			columns = append(columns, ColumnResult{
				Name:    name,
				Status:  StatusWarning,
				Message: "column was dropped and cannot be reversed",
			})
			worstOverall = worsen(worstOverall, StatusWarning)
			continue
		}
		result := compareColumn(name, original, reversed)
		columns = append(columns, result)
		worstOverall = worsen(worstOverall, result.Status)
	}

	return TableResult{
		Status: worstOverall,
		Totals: map[string]int{
			"columns":         len(columns),
			"original_rows":   original.Len(),
			"reversed_rows":   reversed.Len(),
			"dropped_columns": len(droppedColumns),
		},
		PerColumn: columns,
	}
}

func compareColumn(name string, original, reversed *table.Frame) ColumnResult {
	originalValues, ok := original.Column(name)
	if !ok {
		return ColumnResult{Name: name, Status: StatusError, Message: "column missing from original frame"}
	}
	reversedValues, ok := reversed.Column(name)
	if !ok {
		return ColumnResult{
			Name:           name,
			Status:         StatusError,
			Message:        "column missing from reversed frame",
			OriginalLength: len(originalValues),
		}
	}

	result := ColumnResult{
		Name:           name,
		OriginalLength: len(originalValues),
		ReversedLength: len(reversedValues),
	}
	if len(originalValues) != len(reversedValues) {
		result.Status = StatusError
		result.Message = fmt.Sprintf("row count mismatch: original %d, reversed %d", len(originalValues), len(reversedValues))
		return result
	}

	var sampleIndices []int
	for i := range originalValues {
		if fmt.Sprint(originalValues[i]) == fmt.Sprint(reversedValues[i]) {
			continue
		}
		result.MismatchCount++
		if len(sampleIndices) < maxSampleIndices {
			sampleIndices = append(sampleIndices, i)
		}
	}
	result.SampleIndices = sampleIndices
	if len(originalValues) > 0 {
		result.MismatchPercentage = 100 * float64(result.MismatchCount) / float64(len(originalValues))
	}
	if result.MismatchCount == 0 {
		result.Status = StatusPass
	} else {
		result.Status = StatusError
		result.Message = fmt.Sprintf("%d of %d values did not round-trip", result.MismatchCount, len(originalValues))
	}
	return result
}

func worsen(current, candidate Status) Status {
	rank := map[Status]int{StatusPass: 0, StatusWarning: 1, StatusError: 2}
	if rank[candidate] > rank[current] {
		return candidate
	}
	return current
}
