// Package transform implements the three de-identification
// transformers: ID (value → dense surrogate), DateTime (per-entity
// temporal shift), and ColumnDropper (column removal, irreversible).
// Transformers are a closed Go sum type — a decoder switch, not a
// runtime registry — since the set of transformer kinds is fixed,
// unlike internal/ioadapter's backends, which are the system's one
// real plugin point.
//
// Each transformer operates on a whole segment Frame at once and
// round-trips through internal/refstore, rather than being a one-way
// streaming step over individual records.
package transform

import (
	"context"
	"fmt"

	"github.com/nomaai/deidgo/internal/filter"
	"github.com/nomaai/deidgo/internal/identifier"
	"github.com/nomaai/deidgo/internal/refstore"
	"github.com/nomaai/deidgo/internal/table"
)

// Transformer is one column-level de-identification step in a table's
// transformer DAG.
type Transformer interface {
	// UID is the transformer's own identity within the table, used for
	// declaring DependsOn edges between transformers of the same table.
	UID() string
	// Identifier names the column this transformer reads/writes and the
	// reference-store uid it shares identity with, if any.
	Identifier() identifier.Identifier
	// Apply runs the forward de-identification pass over f in place.
	Apply(ctx context.Context, f *table.Frame, refs *refstore.Store) error
	// Reverse attempts to reconstruct the original values. Irreversible
	// transformers (ColumnDropper) return ErrIrreversible.
	Reverse(ctx context.Context, f *table.Frame, refs *refstore.Store) error
	// DependsOn lists the UIDs of transformers (in the same table) that
	// must run before this one.
	DependsOn() []string
}

// ErrIrreversible is returned by Reverse on transformers that cannot
// reconstruct their input: droppers are reported as dropped, not
// reversed.
var ErrIrreversible = fmt.Errorf("transformer is not reversible")

// Config is the raw, already-YAML-decoded configuration for a single
// transformer entry.
type Config struct {
	UIDValue       string         `yaml:"uid"`
	Method         string         `yaml:"method"`
	Column         string         `yaml:"column"`
	Columns        []string       `yaml:"columns"`
	Identifier     string         `yaml:"identifier"`
	Cast           string         `yaml:"cast"`
	Filter         string         `yaml:"filter"`
	DependsOn      []string       `yaml:"depends_on"`
	TimeShift      *TimeShiftSpec `yaml:"time_shift"`
	IDConfig       *IdentityRef   `yaml:"idconfig"`
	DatetimeColumn string         `yaml:"datetime_column"`
}

// IdentityRef names the entity-identity column and reference uid a
// DateTimeTransformer keys its per-entity shift on.
type IdentityRef struct {
	Name string `yaml:"name"`
	UID  string `yaml:"uid"`
}

// TimeShiftSpec configures a DateTimeTransformer's per-entity offset
// sampling: every method draws uniformly from [MinRange, MaxRange]
// once per entity.
type TimeShiftSpec struct {
	Method   string  `yaml:"method"`
	MinRange float64 `yaml:"min_range"`
	MaxRange float64 `yaml:"max_range"`
}

// Decode builds the concrete Transformer named by cfg.Method. Unknown
// methods are a hard configuration error — there is no fallback
// generic transformer.
func Decode(cfg Config) (Transformer, error) {
	if cfg.UIDValue == "" {
		return nil, fmt.Errorf("transformer config missing uid")
	}
	if cfg.Column == "" && len(cfg.Columns) == 0 && cfg.DatetimeColumn == "" {
		return nil, fmt.Errorf("transformer %q missing column(s)", cfg.UIDValue)
	}

	var pred filter.Predicate
	if cfg.Filter != "" {
		p, err := filter.Parse(cfg.Filter)
		if err != nil {
			return nil, fmt.Errorf("transformer %q filter: %w", cfg.UIDValue, err)
		}
		pred = p
	}

	switch cfg.Method {
	case "id":
		return newIDTransformer(cfg, pred)
	case "datetime":
		return newDateTimeTransformer(cfg, pred)
	case "drop_column", "column_dropper":
		return newColumnDropperTransformer(cfg)
	default:
		return nil, fmt.Errorf("transformer %q: unknown method %q", cfg.UIDValue, cfg.Method)
	}
}

// rowMap converts row i of f into the map[string]any shape the filter
// package evaluates predicates against.
func rowMap(f *table.Frame, i int) map[string]any {
	m := make(map[string]any, len(f.Columns))
	for j, col := range f.Columns {
		m[col] = f.Rows[i][j]
	}
	return m
}

// matchingRows returns the indices of f's rows that pred selects. A
// nil pred matches every row, since a filter is optional.
func matchingRows(f *table.Frame, pred filter.Predicate) ([]int, error) {
	if pred == nil {
		all := make([]int, f.Len())
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	var idx []int
	for i := range f.Rows {
		ok, err := pred.Eval(rowMap(f, i))
		if err != nil {
			return nil, fmt.Errorf("evaluate filter on row %d: %w", i, err)
		}
		if ok {
			idx = append(idx, i)
		}
	}
	return idx, nil
}
