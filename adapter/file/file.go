// Package file implements the local CSV/JSON adapter from spec §6: each
// logical table names one file on disk, parsed into a batch and registered
// as a real table in the adapter's own embedded analytical engine, so every
// operator a SELECT can carry — predicates, GROUP BY, aggregates, ORDER BY
// — is pushed down as actual SQL rather than filtered client-side (spec §6
// "Files: the adapter composes a SQL against the embedded analytical
// engine").
package file

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mitayan0/WaveQL/adapter"
	"github.com/mitayan0/WaveQL/batch"
	"github.com/mitayan0/WaveQL/planner"
	"github.com/mitayan0/WaveQL/schemacache"
	"github.com/mitayan0/WaveQL/sqlengine"
	"github.com/mitayan0/WaveQL/waveerrors"
)

const defaultSchemaTTL = 300_000_000_000 // 5 minutes, expressed in time.Duration's ns units

// Format is the closed set of file formats the adapter reads.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// TableConfig binds one logical table name to a file on disk.
type TableConfig struct {
	Path      string
	Format    Format
	HasHeader bool // CSV only; when false the first row is data and columns are named col0, col1, ...
}

// Config configures the adapter.
type Config struct {
	Name   string
	Tables map[string]TableConfig
}

// Adapter implements adapter.Adapter by parsing whole files into batches and
// registering them as real tables in a private *sqlengine.Engine, so Fetch
// can run the statement's actual SQL (predicates, GROUP BY, aggregates,
// ORDER BY, LIMIT/OFFSET) against SQLite instead of hand-filtering rows.
// There is no remote source here, so every call is local and synchronous.
type Adapter struct {
	cfg   Config
	sql   *sqlengine.Engine
	cache *schemacache.Cache
	log   logrus.FieldLogger
}

// New builds a file adapter, opening its own embedded analytical engine.
// cache may be nil to disable schema caching.
func New(cfg Config, cache *schemacache.Cache, log logrus.FieldLogger) (*Adapter, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	eng, err := sqlengine.New()
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, sql: eng, cache: cache, log: log}, nil
}

// Close releases the adapter's embedded analytical engine.
func (a *Adapter) Close() error {
	return a.sql.Close()
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		SupportsPredicatePushdown: true,
		SupportsInsert:            true,
	}
}

func (a *Adapter) table(name string) (TableConfig, error) {
	tc, ok := a.cfg.Tables[name]
	if !ok {
		return TableConfig{}, waveerrors.ErrQuery.New(fmt.Sprintf("unknown table %q", name))
	}
	return tc, nil
}

func (a *Adapter) Fetch(ctx context.Context, plan adapter.FetchPlan) (*batch.Batch, error) {
	tc, err := a.table(plan.Table)
	if err != nil {
		return nil, err
	}

	b, err := readFile(tc)
	if err != nil {
		return nil, waveerrors.ErrAdapter.New(err.Error())
	}

	if err := a.sql.RegisterBatch(ctx, plan.Table, b); err != nil {
		return nil, err
	}
	defer a.sql.Unregister(ctx, plan.Table)

	query, args := buildSelectSQL(plan.Table, plan)
	return a.sql.Execute(ctx, query, args...)
}

// buildSelectSQL renders plan as a parameterised SELECT against table,
// honouring every pushable operator (spec §6 "all operators are pushable"):
// projection (or GROUP BY + aggregates), predicates, ORDER BY, LIMIT/OFFSET.
func buildSelectSQL(table string, plan adapter.FetchPlan) (string, []any) {
	var b strings.Builder
	var args []any

	b.WriteString("SELECT ")
	switch {
	case len(plan.Aggregates) > 0 || len(plan.GroupBy) > 0:
		items := make([]string, 0, len(plan.GroupBy)+len(plan.Aggregates))
		items = append(items, plan.GroupBy...)
		for _, agg := range plan.Aggregates {
			alias := agg.Alias
			if alias == "" {
				alias = strings.ToLower(string(agg.Func))
			}
			items = append(items, fmt.Sprintf("%s(%s) AS %s", agg.Func, agg.Column, alias))
		}
		b.WriteString(strings.Join(items, ", "))
	case len(plan.Columns) == 0 || plan.Columns[0] == "*":
		b.WriteString("*")
	default:
		b.WriteString(strings.Join(plan.Columns, ", "))
	}

	fmt.Fprintf(&b, ` FROM "%s"`, table)

	if where, whereArgs := buildWhere(plan.Predicates); where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
		args = append(args, whereArgs...)
	}

	if len(plan.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(plan.GroupBy, ", "))
	}

	if len(plan.OrderBy) > 0 {
		terms := make([]string, len(plan.OrderBy))
		for i, o := range plan.OrderBy {
			terms[i] = fmt.Sprintf("%s %s", o.Column, o.Direction)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(terms, ", "))
	}

	if plan.HasLimit {
		fmt.Fprintf(&b, " LIMIT %d", plan.Limit)
	}
	if plan.HasOffset {
		fmt.Fprintf(&b, " OFFSET %d", plan.Offset)
	}

	return b.String(), args
}

func buildWhere(predicates []planner.Predicate) (string, []any) {
	clauses := make([]string, 0, len(predicates))
	var args []any
	for _, p := range predicates {
		switch p.Operator {
		case planner.OpIsNull:
			clauses = append(clauses, p.Column+" IS NULL")
		case planner.OpIsNotNull:
			clauses = append(clauses, p.Column+" IS NOT NULL")
		case planner.OpIn:
			values, _ := p.Value.([]any)
			placeholders := make([]string, len(values))
			for i, v := range values {
				placeholders[i] = "?"
				args = append(args, v)
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", p.Column, strings.Join(placeholders, ", ")))
		default:
			clauses = append(clauses, fmt.Sprintf("%s %s ?", p.Column, p.Operator))
			args = append(args, p.Value)
		}
	}
	return strings.Join(clauses, " AND "), args
}

// Insert appends one row to a CSV table (spec §6 "write only for CSV
// (append row)"). Non-CSV tables reject inserts.
func (a *Adapter) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	tc, err := a.table(table)
	if err != nil {
		return 0, err
	}
	if tc.Format != FormatCSV {
		return 0, waveerrors.ErrUnsupportedOperation.New(a.Name(), "insert on non-CSV table "+table)
	}

	existing, err := readFile(tc)
	if err != nil {
		return 0, waveerrors.ErrAdapter.New(err.Error())
	}
	names := existing.Schema().Names()

	f, err := os.OpenFile(tc.Path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return 0, waveerrors.ErrAdapter.New(err.Error())
	}
	defer f.Close()

	w := csv.NewWriter(f)
	row := make([]string, len(names))
	for i, name := range names {
		row[i] = fmt.Sprint(values[name])
	}
	if err := w.Write(row); err != nil {
		return 0, waveerrors.ErrAdapter.New(err.Error())
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, waveerrors.ErrAdapter.New(err.Error())
	}
	return 1, nil
}

func (a *Adapter) Update(ctx context.Context, table string, values map[string]any, predicates []planner.Predicate) (int64, error) {
	return 0, waveerrors.ErrUnsupportedOperation.New(a.Name(), "update")
}

func (a *Adapter) Delete(ctx context.Context, table string, predicates []planner.Predicate) (int64, error) {
	return 0, waveerrors.ErrUnsupportedOperation.New(a.Name(), "delete")
}

func (a *Adapter) GetSchema(ctx context.Context, table string) (batch.Schema, error) {
	if a.cache != nil {
		if s, ok := a.cache.Get(a.Name(), table); ok {
			return s, nil
		}
	}
	tc, err := a.table(table)
	if err != nil {
		return nil, err
	}
	b, err := readFile(tc)
	if err != nil {
		return nil, waveerrors.ErrSchema.New(err.Error())
	}
	if a.cache != nil {
		a.cache.Set(a.Name(), table, b.Schema(), defaultSchemaTTL)
	}
	return b.Schema(), nil
}

func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(a.cfg.Tables))
	for name := range a.cfg.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func readFile(tc TableConfig) (*batch.Batch, error) {
	switch tc.Format {
	case FormatJSON:
		return readJSON(tc.Path)
	default:
		return readCSV(tc)
	}
}

func readCSV(tc TableConfig) (*batch.Batch, error) {
	f, err := os.Open(tc.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return batch.Empty(nil), nil
	}

	hasHeader := tc.HasHeader
	header := records[0]
	dataStart := 0
	if hasHeader {
		dataStart = 1
	} else {
		header = make([]string, len(records[0]))
		for i := range header {
			header[i] = fmt.Sprintf("col%d", i)
		}
	}

	width := len(header)
	cols := make([][]string, width)
	for _, row := range records[dataStart:] {
		for c := 0; c < width && c < len(row); c++ {
			cols[c] = append(cols[c], row[c])
		}
	}

	schema := make(batch.Schema, width)
	typed := make([][]any, width)
	for c := 0; c < width; c++ {
		dt := inferCSVType(cols[c])
		schema[c] = batch.ColumnInfo{Name: header[c], DataType: dt, Nullable: true}
		typed[c] = convertCSVColumn(cols[c], dt)
	}
	return batch.Build(schema, typed)
}

func inferCSVType(values []string) batch.DataType {
	allInt, allFloat := true, true
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			allFloat = false
		}
	}
	switch {
	case allInt:
		return batch.Integer
	case allFloat:
		return batch.Floating
	default:
		return batch.String
	}
}

func convertCSVColumn(values []string, dt batch.DataType) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if v == "" {
			out[i] = nil
			continue
		}
		switch dt {
		case batch.Integer:
			n, _ := strconv.ParseInt(v, 10, 64)
			out[i] = n
		case batch.Floating:
			f, _ := strconv.ParseFloat(v, 64)
			out[i] = f
		default:
			out[i] = v
		}
	}
	return out
}

func readJSON(path string) (*batch.Batch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var names []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)

	schema := make(batch.Schema, len(names))
	cols := make([][]any, len(names))
	for i, name := range names {
		schema[i] = batch.ColumnInfo{Name: name, DataType: inferJSONType(rows, name), Nullable: true}
		col := make([]any, len(rows))
		for r, row := range rows {
			col[r] = row[name]
		}
		cols[i] = col
	}
	return batch.Build(schema, cols)
}

func inferJSONType(rows []map[string]any, name string) batch.DataType {
	for _, row := range rows {
		switch row[name].(type) {
		case float64:
			return batch.Floating
		case bool:
			return batch.Boolean
		case string:
			return batch.String
		}
	}
	return batch.String
}
