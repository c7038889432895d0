// Package engine owns the table-level DAG: it builds one
// internal/transform.Pipeline per table from a loaded
// config.ClearedConfig, orders tables topologically (ties broken
// alphabetically — config.ClearedConfig.Tables is a Go map and does
// not preserve declaration order the way its Transformers slices do;
// see DESIGN.md), and runs them concurrently layer-by-layer unless
// Serial is set. Orchestration follows an older single-job
// source-transform-destination pattern generalized to a DAG of
// tables, with cron-based scheduled reruns.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nomaai/deidgo/internal/config"
	"github.com/nomaai/deidgo/internal/ioadapter"
	"github.com/nomaai/deidgo/internal/refstore"
	"github.com/nomaai/deidgo/internal/report"
	"github.com/nomaai/deidgo/internal/table"
	"github.com/nomaai/deidgo/internal/transform"
	"github.com/robfig/cron/v3"
)

// Engine runs a config's table DAG against its configured stores.
type Engine struct {
	Config    *config.ClearedConfig
	Input     ioadapter.TableStore
	Output    ioadapter.TableStore
	Refs      *refstore.Store
	Pipelines map[string]*transform.Pipeline

	order  []string
	layers [][]string

	// Serial forces single-threaded, deterministic execution, mainly
	// useful for tests.
	Serial bool
	// ContinueOnError keeps scheduling tables whose dependencies
	// succeeded even after a sibling table fails.
	ContinueOnError bool
}

// Option configures an Engine at construction time.
type Option func(*Engine)

func WithSerial(serial bool) Option { return func(e *Engine) { e.Serial = serial } }

func WithContinueOnError(continueOnError bool) Option {
	return func(e *Engine) { e.ContinueOnError = continueOnError }
}

// New builds an Engine from a fully-resolved config: it opens the
// input/output/reference stores, decodes every table's transformer
// list into a Pipeline, and computes the table execution order.
func New(cfg *config.ClearedConfig, opts ...Option) (*Engine, error) {
	input, err := ioadapter.NewTableStore(cfg.IO.Data.InputConfig.IOType, ioadapter.Config(cfg.IO.Data.InputConfig.Config))
	if err != nil {
		return nil, fmt.Errorf("%w: input store: %v", ErrStoreUnavailable, err)
	}
	output, err := ioadapter.NewTableStore(cfg.IO.Data.OutputConfig.IOType, ioadapter.Config(cfg.IO.Data.OutputConfig.Config))
	if err != nil {
		return nil, fmt.Errorf("%w: output store: %v", ErrStoreUnavailable, err)
	}
	refBackend, err := ioadapter.NewRefStore(cfg.IO.Reference.Config.IOType, ioadapter.Config(cfg.IO.Reference.Config.Config))
	if err != nil {
		return nil, fmt.Errorf("%w: reference store: %v", ErrStoreUnavailable, err)
	}

	pipelines := make(map[string]*transform.Pipeline, len(cfg.Tables))
	for name, t := range cfg.Tables {
		transformers := make([]transform.Transformer, 0, len(t.Transformers))
		for _, tc := range t.Transformers {
			tr, err := transform.Decode(toTransformConfig(tc, cfg.DeIDConfig.TimeShift))
			if err != nil {
				return nil, fmt.Errorf("%w: table %q: %v", ErrValidation, name, err)
			}
			transformers = append(transformers, tr)
		}
		pipeline, err := transform.NewPipeline(name, transformers)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPipelineError, err)
		}
		pipelines[name] = pipeline
	}

	order, layers, err := topoSortTables(cfg.Tables)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Config:    cfg,
		Input:     input,
		Output:    output,
		Refs:      refstore.New(refBackend),
		Pipelines: pipelines,
		order:     order,
		layers:    layers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func toTransformConfig(tc config.TransformerConfig, defaultShift *config.TimeShiftConfig) transform.Config {
	shift := tc.TimeShift
	if shift == nil && tc.Method == "datetime" {
		shift = defaultShift
	}
	var spec *transform.TimeShiftSpec
	if shift != nil {
		spec = &transform.TimeShiftSpec{
			Method:   shift.Method,
			MinRange: shift.MinRange,
			MaxRange: shift.MaxRange,
		}
	}
	var idConfig *transform.IdentityRef
	if tc.IDConfig != nil {
		idConfig = &transform.IdentityRef{Name: tc.IDConfig.Name, UID: tc.IDConfig.UID}
	}
	return transform.Config{
		UIDValue:       tc.UID,
		Method:         tc.Method,
		Column:         tc.Column,
		Columns:        tc.Columns,
		Identifier:     tc.Identifier,
		Cast:           tc.Cast,
		Filter:         tc.Filter,
		DependsOn:      tc.DependsOn,
		TimeShift:      spec,
		IDConfig:       idConfig,
		DatetimeColumn: tc.DatetimeColumn,
	}
}

// topoSortTables computes the table DAG's topological order and its
// concurrency layers (each layer is a set of tables with no
// dependency between them, safe to run in parallel), breaking ties
// alphabetically.
func topoSortTables(tables map[string]config.TableConfig) ([]string, [][]string, error) {
	names := make([]string, 0, len(tables))
	for n := range tables {
		names = append(names, n)
	}
	sort.Strings(names)

	indegree := make(map[string]int, len(names))
	dependents := make(map[string][]string, len(names))
	for _, n := range names {
		indegree[n] = 0
	}
	for _, n := range names {
		for _, dep := range tables[n].DependsOn {
			if _, ok := tables[dep]; !ok {
				return nil, nil, fmt.Errorf("%w: table %q depends_on unknown table %q", ErrValidation, n, dep)
			}
			dependents[dep] = append(dependents[dep], n)
			indegree[n]++
		}
	}

	var order []string
	var layers [][]string
	done := make(map[string]bool, len(names))
	for len(order) < len(names) {
		var layer []string
		for _, n := range names {
			if !done[n] && indegree[n] == 0 {
				layer = append(layer, n)
			}
		}
		if len(layer) == 0 {
			return nil, nil, fmt.Errorf("%w: circular dependency among tables", ErrValidation)
		}
		for _, n := range layer {
			done[n] = true
		}
		order = append(order, layer...)
		for _, n := range layer {
			for _, dep := range dependents[n] {
				indegree[dep]--
			}
		}
		layers = append(layers, layer)
	}
	return order, layers, nil
}

// Run executes every table's pipeline in dependency order: tables
// within one concurrency layer run in parallel unless Serial is set. A
// table whose direct dependency failed or was skipped is itself marked
// skipped rather than attempted. References are flushed once at the
// end, even after an aborted run, so partial progress survives for a
// rerun.
func (e *Engine) Run(ctx context.Context) (*report.RunReport, error) {
	results := make(map[string]report.PipelineResult, len(e.order))
	failed := make(map[string]bool, len(e.order))
	success := true
	abort := false

	for _, layer := range e.layers {
		if abort || ctx.Err() != nil {
			for _, name := range layer {
				results[name] = report.PipelineResult{Status: "skipped"}
				failed[name] = true
			}
			continue
		}

		runnable := make([]string, 0, len(layer))
		for _, name := range layer {
			if e.dependencyFailed(name, failed) {
				results[name] = report.PipelineResult{Status: "skipped"}
				failed[name] = true
				continue
			}
			runnable = append(runnable, name)
		}

		for name, err := range e.runLayer(ctx, runnable) {
			if err != nil {
				results[name] = report.PipelineResult{Status: "error", Error: err.Error()}
				success = false
				failed[name] = true
				if !e.ContinueOnError {
					abort = true
				}
				continue
			}
			results[name] = report.PipelineResult{Status: "success"}
		}
	}

	if err := e.Refs.Save(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &report.RunReport{Success: success, ExecutionOrder: e.order, Results: results}, nil
}

func (e *Engine) dependencyFailed(name string, failed map[string]bool) bool {
	for _, dep := range e.Config.Tables[name].DependsOn {
		if failed[dep] {
			return true
		}
	}
	return false
}

// runLayer runs names concurrently (or sequentially if Serial),
// returning each table's error keyed by name.
func (e *Engine) runLayer(ctx context.Context, names []string) map[string]error {
	outcomes := make(map[string]error, len(names))
	if e.Serial {
		for _, name := range names {
			outcomes[name] = e.runTable(ctx, name)
		}
		return outcomes
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			err := e.runTable(ctx, name)
			mu.Lock()
			outcomes[name] = err
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return outcomes
}

func (e *Engine) runTable(ctx context.Context, name string) error {
	segNames, err := e.Input.ListSegments(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: list segments: %v", ErrTableNotFound, err)
	}
	segments := make([]*table.Frame, len(segNames))
	for i, seg := range segNames {
		f, err := e.Input.ReadSegment(ctx, name, seg)
		if err != nil {
			return fmt.Errorf("%w: read segment %q: %v", ErrTableNotFound, seg, err)
		}
		segments[i] = f
	}

	if err := e.Pipelines[name].TransformAll(ctx, segments, e.Refs); err != nil {
		return fmt.Errorf("%w: %v", ErrPipelineError, err)
	}

	for i, seg := range segNames {
		if err := e.Output.WriteSegment(ctx, name, seg, segments[i]); err != nil {
			return fmt.Errorf("%w: write segment %q: %v", ErrWrite, seg, err)
		}
	}
	return nil
}

// Reverse runs every table's pipeline in reverse mode against source
// (ordinarily the de-identified Output store), writing reconstructed
// segments to dest. It runs in reverse table order, though table-level
// dependencies only constrain forward scheduling; the reverse pass has
// no cross-table data dependency since all identity state lives in the
// shared reference store.
func (e *Engine) Reverse(ctx context.Context, source, dest ioadapter.TableStore) (*report.RunReport, error) {
	results := make(map[string]report.PipelineResult, len(e.order))
	success := true
	reverseOrder := make([]string, len(e.order))
	for i, name := range e.order {
		reverseOrder[len(e.order)-1-i] = name
	}

	for _, name := range reverseOrder {
		if ctx.Err() != nil {
			results[name] = report.PipelineResult{Status: "skipped"}
			continue
		}
		if err := e.reverseTable(ctx, name, source, dest); err != nil {
			results[name] = report.PipelineResult{Status: "error", Error: err.Error()}
			success = false
			continue
		}
		results[name] = report.PipelineResult{
			Status:               "success",
			UnresolvedSurrogates: len(e.Pipelines[name].UnresolvedSurrogates()),
		}
	}

	return &report.RunReport{Success: success, ExecutionOrder: reverseOrder, Results: results}, nil
}

func (e *Engine) reverseTable(ctx context.Context, name string, source, dest ioadapter.TableStore) error {
	segNames, err := source.ListSegments(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: list segments: %v", ErrTableNotFound, err)
	}
	for _, seg := range segNames {
		f, err := source.ReadSegment(ctx, name, seg)
		if err != nil {
			return fmt.Errorf("%w: read segment %q: %v", ErrTableNotFound, seg, err)
		}
		if err := e.Pipelines[name].Reverse(ctx, f, e.Refs); err != nil {
			return fmt.Errorf("%w: %v", ErrPipelineError, err)
		}
		if err := dest.WriteSegment(ctx, name, seg, f); err != nil {
			return fmt.Errorf("%w: write segment %q: %v", ErrWrite, seg, err)
		}
	}
	return nil
}

// ScheduleRepeatingRun runs Run on cronExpr's schedule until the
// returned *cron.Cron is stopped, reporting each run's outcome to
// onComplete.
func (e *Engine) ScheduleRepeatingRun(cronExpr string, onComplete func(*report.RunReport, error)) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(cronExpr, func() {
		rep, err := e.Run(context.Background())
		onComplete(rep, err)
	}); err != nil {
		return nil, fmt.Errorf("schedule repeating run: invalid cron expression %q: %w", cronExpr, err)
	}
	c.Start()
	return c, nil
}
