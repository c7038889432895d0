package transform

import (
	"context"
	"fmt"

	"github.com/nomaai/deidgo/internal/filter"
	"github.com/nomaai/deidgo/internal/identifier"
	"github.com/nomaai/deidgo/internal/refstore"
	"github.com/nomaai/deidgo/internal/table"
)

// DateTimeTransformer shifts a datetime column by a per-entity offset
// that is sampled once and reused for every value belonging to the
// same identifier uid, so relative orderings between that entity's
// timestamps are preserved. The entity is identified by a separate
// column in the same row (entityColumn) — typically the column an
// IDTransformer in the same table surrogates — not by the datetime
// value itself, since two different entities can share a timestamp
// but must never share a shift.
type DateTimeTransformer struct {
	uid          string
	id           identifier.Identifier
	entityColumn string
	cast         identifier.ValueCast
	pred         filter.Predicate
	deps         []string
	shift        refstore.ShiftSpec
}

func newDateTimeTransformer(cfg Config, pred filter.Predicate) (*DateTimeTransformer, error) {
	if cfg.TimeShift == nil {
		return nil, fmt.Errorf("transformer %q: datetime method requires time_shift", cfg.UIDValue)
	}
	if cfg.IDConfig == nil || cfg.IDConfig.Name == "" {
		return nil, fmt.Errorf("transformer %q: datetime method requires idconfig", cfg.UIDValue)
	}
	datetimeColumn := cfg.DatetimeColumn
	if datetimeColumn == "" {
		datetimeColumn = cfg.Column
	}
	if datetimeColumn == "" {
		return nil, fmt.Errorf("transformer %q: datetime method requires datetime_column", cfg.UIDValue)
	}
	cast := identifier.CastDateTime
	if cfg.Cast != "" {
		cast = identifier.ValueCast(cfg.Cast)
	}
	if err := validateCast("datetime", cast); err != nil {
		return nil, fmt.Errorf("transformer %q: %w", cfg.UIDValue, err)
	}
	idUID := cfg.IDConfig.UID
	if idUID == "" {
		idUID = cfg.Identifier
	}
	if idUID == "" {
		idUID = cfg.IDConfig.Name
	}
	method := refstore.ShiftMethod(cfg.TimeShift.Method)
	switch method {
	case refstore.ShiftByYears, refstore.ShiftByMonths, refstore.ShiftByWeeks,
		refstore.ShiftByDays, refstore.ShiftByHours, refstore.RandomDays, refstore.RandomHours:
	default:
		return nil, fmt.Errorf("transformer %q: unknown time_shift method %q", cfg.UIDValue, cfg.TimeShift.Method)
	}
	return &DateTimeTransformer{
		uid:          cfg.UIDValue,
		id:           identifier.Identifier{Name: datetimeColumn, UID: idUID},
		entityColumn: cfg.IDConfig.Name,
		cast:         cast,
		pred:         pred,
		deps:         cfg.DependsOn,
		shift: refstore.ShiftSpec{
			Method:   method,
			MinRange: cfg.TimeShift.MinRange,
			MaxRange: cfg.TimeShift.MaxRange,
		},
	}, nil
}

func (t *DateTimeTransformer) UID() string                      { return t.uid }
func (t *DateTimeTransformer) Identifier() identifier.Identifier { return t.id }
func (t *DateTimeTransformer) DependsOn() []string               { return t.deps }

func (t *DateTimeTransformer) Apply(ctx context.Context, f *table.Frame, refs *refstore.Store) error {
	return t.run(ctx, f, refs, 1)
}

// Reverse applies the negated shift, reconstructing the pre-shift
// timestamp. It keys the shift lookup on whatever value currently
// occupies the entity column, which must match what Apply saw there.
// Pipeline.Reverse runs transformers in reverse topological order, so
// when this datetime transformer depends on the entity's ID
// transformer, the entity column still holds the same surrogate here
// that Apply keyed its shift on — the ID transformer's own Reverse
// restores it afterward, not before.
func (t *DateTimeTransformer) Reverse(ctx context.Context, f *table.Frame, refs *refstore.Store) error {
	return t.run(ctx, f, refs, -1)
}

func (t *DateTimeTransformer) run(ctx context.Context, f *table.Frame, refs *refstore.Store, sign float64) error {
	if !f.HasColumn(t.id.Name) {
		return fmt.Errorf("datetime transformer %q: column %q not present", t.uid, t.id.Name)
	}
	if !f.HasColumn(t.entityColumn) {
		return fmt.Errorf("datetime transformer %q: entity column %q not present", t.uid, t.entityColumn)
	}
	rows, err := matchingRows(f, t.pred)
	if err != nil {
		return fmt.Errorf("datetime transformer %q: %w", t.uid, err)
	}
	colIdx := f.ColumnIndex(t.id.Name)
	entityIdx := f.ColumnIndex(t.entityColumn)

	for _, i := range rows {
		v := f.Rows[i][colIdx]
		if v == nil {
			continue
		}
		ts, err := parseDateTime(v)
		if err != nil {
			return fmt.Errorf("datetime transformer %q: row %d: %w", t.uid, i, err)
		}
		entityKey := fmt.Sprint(f.Rows[i][entityIdx])
		offset, err := refs.AppendOrLookupShift(ctx, t.id.UID, entityKey, t.shift)
		if err != nil {
			return fmt.Errorf("datetime transformer %q: shift lookup for row %d: %w", t.uid, i, err)
		}
		f.Rows[i][colIdx] = refstore.ApplyCalendarShift(ts, t.shift.Method, sign*offset)
	}
	return nil
}
