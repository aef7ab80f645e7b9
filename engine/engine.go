// Package engine implements the execution engine from spec §4.3: given a
// planner.QueryInfo and a parameter tuple, it resolves the right adapter(s),
// drives the pushdown/fallback/virtual-join/mutation branches, and returns a
// batch.Batch or an affected-row count.
package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/mitayan0/WaveQL/adapter"
	"github.com/mitayan0/WaveQL/batch"
	"github.com/mitayan0/WaveQL/planner"
	"github.com/mitayan0/WaveQL/sqlengine"
	"github.com/mitayan0/WaveQL/waveerrors"
)

// Registry resolves a (possibly schema-qualified) table name to the adapter
// responsible for it (spec §4.3 step 1 "adapter resolution").
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]adapter.Adapter
	def      adapter.Adapter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]adapter.Adapter)}
}

// Register binds an adapter to a schema prefix, e.g. "sales" for
// "sales.account" tables.
func (r *Registry) Register(schema string, a adapter.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[schema] = a
}

// SetDefault sets the adapter used for unqualified table names.
func (r *Registry) SetDefault(a adapter.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.def = a
}

// Resolve splits table into (schema, physical) and returns the adapter
// registered for schema, or the default adapter for an unqualified name.
// The second return is the table name the adapter should see (schema
// stripped). ok is false when no adapter applies at all, meaning the
// statement must run directly against the local analytical engine.
func (r *Registry) Resolve(table string) (a adapter.Adapter, physical string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if schema, rest, qualified := splitQualified(table); qualified {
		if a, found := r.adapters[schema]; found {
			return a, rest, true
		}
		return nil, table, false
	}
	if r.def != nil {
		return r.def, table, true
	}
	return nil, table, false
}

func splitQualified(name string) (schema, rest string, ok bool) {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) != 2 {
		return "", name, false
	}
	return parts[0], parts[1], true
}

// Result is the outcome of executing one QueryInfo.
type Result struct {
	// Batch is non-nil for a statement that produces rows.
	Batch *batch.Batch
	// RowsAffected is set for INSERT/UPDATE/DELETE; -1 when unknown (spec
	// §6 "rowcount ... may be -1 for SELECT virtual joins when unknown").
	RowsAffected int64
}

// Engine executes planned statements against adapters and the local
// analytical engine.
type Engine struct {
	Registry *Registry
	SQL      *sqlengine.Engine
	log      logrus.FieldLogger
}

// New builds an Engine over registry and a local analytical engine.
func New(registry *Registry, sqlEng *sqlengine.Engine, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{Registry: registry, SQL: sqlEng, log: log}
}

// Execute runs qi, substituting params positionally for any
// planner.ParameterPlaceholder the QueryInfo carries (spec §4.3 "Parameter
// substitution").
func (e *Engine) Execute(ctx context.Context, qi *planner.QueryInfo, params []any) (*Result, error) {
	switch qi.Operation {
	case planner.OpInsert, planner.OpUpdate, planner.OpDelete:
		return e.executeMutation(ctx, qi, params)
	case planner.OpRaw:
		b, err := e.SQL.Execute(ctx, qi.RawSQL, params...)
		if err != nil {
			return nil, err
		}
		return &Result{Batch: b}, nil
	default:
		return e.executeSelect(ctx, qi, params)
	}
}

func (e *Engine) executeSelect(ctx context.Context, qi *planner.QueryInfo, params []any) (*Result, error) {
	if len(qi.Joins) > 0 {
		return e.executeVirtualJoin(ctx, qi, params)
	}

	a, physical, ok := e.Registry.Resolve(qi.Table)
	if !ok {
		b, err := e.SQL.Execute(ctx, qi.RawSQL, params...)
		if err != nil {
			return nil, err
		}
		return &Result{Batch: b}, nil
	}

	predicates, _, err := substitutePredicates(qi.Predicates, params)
	if err != nil {
		return nil, err
	}

	plan := adapter.FetchPlan{
		Table:      physical,
		Columns:    qi.Columns,
		Predicates: predicates,
		Limit:      qi.Limit,
		HasLimit:   qi.HasLimit,
		Offset:     qi.Offset,
		HasOffset:  qi.HasOffset,
		OrderBy:    qi.OrderBy,
		GroupBy:    qi.GroupBy,
		Aggregates: qi.Aggregates,
	}

	b, err := a.Fetch(ctx, plan)
	if err == nil {
		return &Result{Batch: b}, nil
	}
	if !waveerrors.ErrPushdownUnsupported.Is(err) {
		return nil, err
	}

	e.log.WithField("table", qi.Table).Debug("engine: pushdown unsupported, falling back to local engine")
	return e.executeFallback(ctx, qi, a, physical, params)
}

// executeFallback implements spec §4.3 step 4: re-fetch with only the
// physical-table predicates pushed down, register the result under a fresh
// name, rewrite raw_sql's FROM clause to reference it, and run the rewrite
// locally.
func (e *Engine) executeFallback(ctx context.Context, qi *planner.QueryInfo, a adapter.Adapter, physical string, params []any) (*Result, error) {
	predicates, _, err := substitutePredicates(qi.Predicates, params)
	if err != nil {
		return nil, err
	}

	b, err := a.Fetch(ctx, adapter.FetchPlan{Table: physical, Predicates: predicates})
	if err != nil {
		return nil, err
	}

	tempName := newTempName()
	if err := e.SQL.RegisterBatch(ctx, tempName, b); err != nil {
		return nil, err
	}
	defer e.SQL.Unregister(ctx, tempName)

	rewritten := rewriteFromClause(qi.RawSQL, qi.Table, tempName)
	out, err := e.SQL.Execute(ctx, rewritten, params...)
	if err != nil {
		return nil, err
	}
	return &Result{Batch: out}, nil
}

// executeVirtualJoin implements spec §4.3 step 2: fetch every physical
// table named in FROM and JOINs in full, register each under a temporary
// name (copied under the schema-qualified name for schema-qualified tables), run the original
// SQL against the local engine, and unregister everything on exit.
func (e *Engine) executeVirtualJoin(ctx context.Context, qi *planner.QueryInfo, params []any) (*Result, error) {
	tables := []string{qi.Table}
	for _, j := range qi.Joins {
		tables = append(tables, j.Table)
	}

	var registered []string
	defer func() {
		for _, name := range registered {
			e.SQL.Unregister(ctx, name)
		}
	}()

	for _, table := range tables {
		a, physical, ok := e.Registry.Resolve(table)
		if !ok {
			return nil, waveerrors.ErrQuery.New(fmt.Sprintf("no adapter registered for table %q", table))
		}
		b, err := a.Fetch(ctx, adapter.FetchPlan{Table: physical, Columns: []string{"*"}})
		if err != nil {
			return nil, err
		}

		tempName := newTempName()
		if err := e.SQL.RegisterBatch(ctx, tempName, b); err != nil {
			return nil, err
		}
		registered = append(registered, tempName)

		if schema, _, qualified := splitQualified(table); qualified {
			if err := e.SQL.CreateView(ctx, table, tempName); err != nil {
				return nil, err
			}
			registered = append(registered, table)
			_ = schema
		}
	}

	out, err := e.SQL.Execute(ctx, qi.RawSQL, params...)
	if err != nil {
		return nil, err
	}
	return &Result{Batch: out, RowsAffected: -1}, nil
}

func (e *Engine) executeMutation(ctx context.Context, qi *planner.QueryInfo, params []any) (*Result, error) {
	a, physical, ok := e.Registry.Resolve(qi.Table)
	if !ok {
		return nil, waveerrors.ErrQuery.New(fmt.Sprintf("no adapter registered for table %q", qi.Table))
	}

	values, err := substituteValues(qi.Values, params)
	if err != nil {
		return nil, err
	}
	predicates, _, err := substitutePredicates(qi.Predicates, params)
	if err != nil {
		return nil, err
	}

	var n int64
	switch qi.Operation {
	case planner.OpInsert:
		n, err = a.Insert(ctx, physical, values)
	case planner.OpUpdate:
		n, err = a.Update(ctx, physical, values, predicates)
	case planner.OpDelete:
		n, err = a.Delete(ctx, physical, predicates)
	}
	if err != nil {
		return nil, err
	}
	return &Result{RowsAffected: n}, nil
}

func newTempName() string {
	id, err := uuid.NewV4()
	if err != nil {
		return "tmp_fallback"
	}
	return "tmp_" + strings.ReplaceAll(id.String(), "-", "_")
}

// fromClausePattern matches a word-boundary, case-insensitive "FROM <table>"
// for the fallback rewrite (spec §4.3 step 4).
func fromClausePattern(table string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\bFROM\s+` + regexp.QuoteMeta(table) + `\b`)
}

func rewriteFromClause(sql, table, tempName string) string {
	pattern := fromClausePattern(table)
	replaced := false
	return pattern.ReplaceAllStringFunc(sql, func(match string) string {
		if replaced {
			return match
		}
		replaced = true
		return "FROM " + tempName
	})
}

// substitutePredicates returns a copy of predicates with every
// planner.ParameterPlaceholder value replaced positionally from params.
// consumed is the number of params used, so subsequent substitution calls
// (e.g. mutation values then predicates) can continue from where this one
// left off when chained by the caller.
func substitutePredicates(predicates []planner.Predicate, params []any) ([]planner.Predicate, int, error) {
	idx := 0
	out := make([]planner.Predicate, len(predicates))
	for i, p := range predicates {
		v, err := substituteValue(p.Value, params, &idx)
		if err != nil {
			return nil, idx, err
		}
		out[i] = planner.Predicate{Column: p.Column, Operator: p.Operator, Value: v}
	}
	return out, idx, nil
}

// substituteValues returns a copy of values with every
// planner.ParameterPlaceholder replaced positionally. Map iteration order is
// nondeterministic, so callers that mix a mutation's SET values and WHERE
// predicates in a single parameter tuple should prefer named parameters;
// this engine only promises correct substitution when each statement uses
// at most one placeholder source (spec.md does not specify cross-source
// ordering for this case).
func substituteValues(values map[string]any, params []any) (map[string]any, error) {
	if values == nil {
		return nil, nil
	}
	idx := 0
	out := make(map[string]any, len(values))
	for k, v := range values {
		sv, err := substituteValue(v, params, &idx)
		if err != nil {
			return nil, err
		}
		out[k] = sv
	}
	return out, nil
}

func substituteValue(v any, params []any, idx *int) (any, error) {
	switch t := v.(type) {
	case planner.ParameterPlaceholder:
		if *idx >= len(params) {
			return nil, waveerrors.ErrQuery.New("not enough parameters supplied for statement")
		}
		p := params[*idx]
		*idx++
		return p, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			sv, err := substituteValue(e, params, idx)
			if err != nil {
				return nil, err
			}
			out[i] = sv
		}
		return out, nil
	default:
		return v, nil
	}
}
