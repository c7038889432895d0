package transform

import (
	"context"
	"fmt"

	"github.com/nomaai/deidgo/internal/identifier"
	"github.com/nomaai/deidgo/internal/refstore"
	"github.com/nomaai/deidgo/internal/table"
)

// ColumnDropperTransformer removes one or more columns outright.
// Irreversible: Reverse always returns ErrIrreversible, and the
// reverse pipeline reports the column as dropped rather than
// attempting reconstruction.
type ColumnDropperTransformer struct {
	uid     string
	columns []string
	deps    []string
}

func newColumnDropperTransformer(cfg Config) (*ColumnDropperTransformer, error) {
	cols := cfg.Columns
	if len(cols) == 0 && cfg.Column != "" {
		cols = []string{cfg.Column}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("transformer %q: column_dropper requires column(s)", cfg.UIDValue)
	}
	return &ColumnDropperTransformer{uid: cfg.UIDValue, columns: cols, deps: cfg.DependsOn}, nil
}

func (t *ColumnDropperTransformer) UID() string { return t.uid }

// Identifier returns the zero value: droppers do not participate in
// the reference-mapping identity system.
func (t *ColumnDropperTransformer) Identifier() identifier.Identifier { return identifier.Identifier{} }

func (t *ColumnDropperTransformer) DependsOn() []string { return t.deps }

func (t *ColumnDropperTransformer) Apply(_ context.Context, f *table.Frame, _ *refstore.Store) error {
	for _, col := range t.columns {
		if !f.HasColumn(col) {
			return fmt.Errorf("column dropper %q: column %q not present", t.uid, col)
		}
	}
	dropped := f
	for _, col := range t.columns {
		dropped = dropped.DropColumn(col)
	}
	*f = *dropped
	return nil
}

func (t *ColumnDropperTransformer) Reverse(_ context.Context, _ *table.Frame, _ *refstore.Store) error {
	return fmt.Errorf("column dropper %q: %w", t.uid, ErrIrreversible)
}

// Columns returns the column names this dropper removes, used by the
// reverse pipeline to report them as irreversibly dropped.
func (t *ColumnDropperTransformer) Columns() []string { return t.columns }
