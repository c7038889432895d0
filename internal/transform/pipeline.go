package transform

import (
	"context"
	"fmt"

	"github.com/nomaai/deidgo/internal/refstore"
	"github.com/nomaai/deidgo/internal/table"
)

// Pipeline runs one table's transformer DAG, in dependency order, over
// every segment of that table. Ties in the topological order are
// broken by declaration order, so re-running the same config against
// the same data always executes transformers in the same sequence.
type Pipeline struct {
	Table        string
	Transformers []Transformer
	order        []int // precomputed topological order, indices into Transformers
}

// NewPipeline validates the transformer DAG (unique UIDs, known
// dependencies, no cycles) and precomputes its topological order.
func NewPipeline(tableName string, transformers []Transformer) (*Pipeline, error) {
	order, err := topoSort(transformers)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", tableName, err)
	}
	return &Pipeline{Table: tableName, Transformers: transformers, order: order}, nil
}

// topoSort computes a declaration-order-stable topological sort over
// transformers' DependsOn edges (Kahn's algorithm, scanning ready
// nodes in declaration order every step).
func topoSort(transformers []Transformer) ([]int, error) {
	n := len(transformers)
	indexByUID := make(map[string]int, n)
	for i, t := range transformers {
		if _, dup := indexByUID[t.UID()]; dup {
			return nil, fmt.Errorf("duplicate transformer uid %q", t.UID())
		}
		indexByUID[t.UID()] = i
	}

	indegree := make([]int, n)
	dependents := make([][]int, n) // dependents[i] = nodes that depend on i
	for i, t := range transformers {
		for _, dep := range t.DependsOn() {
			j, ok := indexByUID[dep]
			if !ok {
				return nil, fmt.Errorf("transformer %q depends on unknown uid %q", t.UID(), dep)
			}
			dependents[j] = append(dependents[j], i)
			indegree[i]++
		}
	}

	var order []int
	done := make([]bool, n)
	for len(order) < n {
		progressed := false
		for i := 0; i < n; i++ {
			if done[i] || indegree[i] > 0 {
				continue
			}
			order = append(order, i)
			done[i] = true
			progressed = true
			for _, dep := range dependents[i] {
				indegree[dep]--
			}
		}
		if !progressed {
			return nil, fmt.Errorf("circular dependency among transformers")
		}
	}
	return order, nil
}

// Transform runs every transformer over f in topological order,
// mutating it in place.
func (p *Pipeline) Transform(ctx context.Context, f *table.Frame, refs *refstore.Store) error {
	for _, i := range p.order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Transformers[i].Apply(ctx, f, refs); err != nil {
			return fmt.Errorf("table %q: transformer %q: %w", p.Table, p.Transformers[i].UID(), err)
		}
	}
	return nil
}

// TransformAll runs Transform across every segment; each segment is
// processed and persisted independently.
func (p *Pipeline) TransformAll(ctx context.Context, segments []*table.Frame, refs *refstore.Store) error {
	for idx, f := range segments {
		if err := p.Transform(ctx, f, refs); err != nil {
			return fmt.Errorf("segment %d: %w", idx, err)
		}
	}
	return nil
}

// DroppedColumns reports the columns removed by any ColumnDropperTransformer
// in this pipeline — the reverse pipeline surfaces these as
// irreversibly lost rather than attempting to reconstruct them.
func (p *Pipeline) DroppedColumns() []string {
	var dropped []string
	for _, t := range p.Transformers {
		if d, ok := t.(*ColumnDropperTransformer); ok {
			dropped = append(dropped, d.Columns()...)
		}
	}
	return dropped
}

// UnresolvedSurrogates reports every cell any IDTransformer in this
// pipeline has left unchanged, across all Reverse calls so far, because
// its surrogate was not found in the reference store.
func (p *Pipeline) UnresolvedSurrogates() []UnresolvedSurrogate {
	var out []UnresolvedSurrogate
	for _, t := range p.Transformers {
		if id, ok := t.(*IDTransformer); ok {
			out = append(out, id.UnresolvedSurrogates()...)
		}
	}
	return out
}

// Reverse runs every reversible transformer over f in reverse
// topological order, restoring original values where possible.
// Irreversible transformers (column droppers) are skipped; their
// columns are reported via DroppedColumns instead of erroring the
// whole reversal.
func (p *Pipeline) Reverse(ctx context.Context, f *table.Frame, refs *refstore.Store) error {
	for i := len(p.order) - 1; i >= 0; i-- {
		t := p.Transformers[p.order[i]]
		if _, irreversible := t.(*ColumnDropperTransformer); irreversible {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.Reverse(ctx, f, refs); err != nil {
			return fmt.Errorf("table %q: transformer %q: %w", p.Table, t.UID(), err)
		}
	}
	return nil
}
