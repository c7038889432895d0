package transform

import (
	"context"
	"fmt"

	"github.com/nomaai/deidgo/internal/filter"
	"github.com/nomaai/deidgo/internal/identifier"
	"github.com/nomaai/deidgo/internal/refstore"
	"github.com/nomaai/deidgo/internal/table"
)

// UnresolvedSurrogate is one cell Reverse could not resolve: its
// surrogate has no entry in the reference store, so the cell is left
// unchanged rather than aborting the table's reverse pass.
type UnresolvedSurrogate struct {
	Column string
	Row    int
	Value  string
}

// IDTransformer replaces a column's values with dense positive-integer
// surrogates, stable across runs and shared across every column/table
// declaring the same identifier uid.
type IDTransformer struct {
	uid        string
	id         identifier.Identifier
	cast       identifier.ValueCast
	pred       filter.Predicate
	deps       []string
	unresolved []UnresolvedSurrogate
}

func newIDTransformer(cfg Config, pred filter.Predicate) (*IDTransformer, error) {
	cast := identifier.CastInteger
	if cfg.Cast != "" {
		cast = identifier.ValueCast(cfg.Cast)
	}
	if err := validateCast("id", cast); err != nil {
		return nil, fmt.Errorf("transformer %q: %w", cfg.UIDValue, err)
	}
	idUID := cfg.Identifier
	if idUID == "" {
		idUID = cfg.Column
	}
	return &IDTransformer{
		uid:  cfg.UIDValue,
		id:   identifier.Identifier{Name: cfg.Column, UID: idUID},
		cast: cast,
		pred: pred,
		deps: cfg.DependsOn,
	}, nil
}

func (t *IDTransformer) UID() string { return t.uid }
func (t *IDTransformer) Identifier() identifier.Identifier { return t.id }
func (t *IDTransformer) DependsOn() []string { return t.deps }

// UnresolvedSurrogates reports every cell that the Reverse calls made
// on this transformer so far left unchanged because its surrogate was
// not found in the reference store; entries accumulate across calls.
func (t *IDTransformer) UnresolvedSurrogates() []UnresolvedSurrogate { return t.unresolved }

func (t *IDTransformer) Apply(ctx context.Context, f *table.Frame, refs *refstore.Store) error {
	if !f.HasColumn(t.id.Name) {
		return fmt.Errorf("id transformer %q: column %q not present", t.uid, t.id.Name)
	}
	rows, err := matchingRows(f, t.pred)
	if err != nil {
		return fmt.Errorf("id transformer %q: %w", t.uid, err)
	}
	idx := f.ColumnIndex(t.id.Name)

	for _, i := range rows {
		v := f.Rows[i][idx]
		if v == nil {
			continue
		}
		key := fmt.Sprint(v)
		deid, err := refs.AppendOrLookup(ctx, t.id.UID, key)
		if err != nil {
			return fmt.Errorf("id transformer %q: surrogate lookup for row %d: %w", t.uid, i, err)
		}
		out, err := castSurrogate(deid, t.cast)
		if err != nil {
			return fmt.Errorf("id transformer %q: %w", t.uid, err)
		}
		f.Rows[i][idx] = out
	}
	return nil
}

// Reverse reconstructs original values from surrogates. A surrogate
// with no entry in the reference store is left unchanged in place and
// recorded in UnresolvedSurrogates rather than failing the table's
// whole reverse pass.
func (t *IDTransformer) Reverse(ctx context.Context, f *table.Frame, refs *refstore.Store) error {
	if !f.HasColumn(t.id.Name) {
		return fmt.Errorf("id transformer %q: column %q not present", t.uid, t.id.Name)
	}
	rows, err := matchingRows(f, t.pred)
	if err != nil {
		return fmt.Errorf("id transformer %q: %w", t.uid, err)
	}
	idx := f.ColumnIndex(t.id.Name)

	for _, i := range rows {
		v := f.Rows[i][idx]
		if v == nil {
			continue
		}
		deid := fmt.Sprint(v)
		original, ok, err := refs.LookupDeid(ctx, t.id.UID, deid)
		if err != nil {
			return fmt.Errorf("id transformer %q: reverse lookup for row %d: %w", t.uid, i, err)
		}
		if !ok {
			t.unresolved = append(t.unresolved, UnresolvedSurrogate{Column: t.id.Name, Row: i, Value: deid})
			continue
		}
		f.Rows[i][idx] = original
	}
	return nil
}
