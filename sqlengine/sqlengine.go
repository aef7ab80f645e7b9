// Package sqlengine binds the "embeddable columnar SQL engine" the spec
// treats as an external black box (spec §1 "Out of scope") to a concrete,
// in-pack dependency: modernc.org/sqlite, the pure-Go SQLite driver used by
// hazyhaar-GoClode and sqldef-sqldef. Each registered batch becomes a real
// in-memory SQLite table; fallback and virtual-join SQL execute against it
// through database/sql (SPEC_FULL.md §3).
package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mitayan0/WaveQL/batch"
	"github.com/mitayan0/WaveQL/waveerrors"
)

// Engine is a single in-memory SQLite connection used as the local
// analytical engine for one cursor. Per spec §5 "the local analytical
// engine's connection is per-cursor... and NOT safe to share across
// threads; the engine takes a lock around each of its calls", Engine
// serialises every call with an internal mutex rather than relying on
// SQLite's own locking.
type Engine struct {
	mu       sync.Mutex
	db       *sql.DB
	attached map[string]bool
}

// New opens a fresh in-memory SQLite database.
func New() (*Engine, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, waveerrors.ErrQuery.New(err.Error())
	}
	db.SetMaxOpenConns(1) // a single logical connection per cursor (spec §5)
	return &Engine{db: db, attached: map[string]bool{}}, nil
}

// Close releases the underlying SQLite connection.
func (e *Engine) Close() error {
	return e.db.Close()
}

func sqliteType(t batch.DataType) string {
	switch t {
	case batch.Integer, batch.Boolean:
		return "INTEGER"
	case batch.Floating:
		return "REAL"
	case batch.Binary:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// RegisterBatch materialises b as a table named name (optionally
// db-qualified, e.g. "sales.account"), replacing any existing table of that
// name. This is the engine side of "register a columnar batch under a
// name" (spec §1).
func (e *Engine) RegisterBatch(ctx context.Context, name string, b *batch.Batch) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureSchemaLocked(ctx, name); err != nil {
		return err
	}

	quoted := quoteQualified(name)
	schema := b.Schema()

	var cols strings.Builder
	for i, c := range schema {
		if i > 0 {
			cols.WriteString(", ")
		}
		fmt.Fprintf(&cols, "%s %s", quoteIdent(c.Name), sqliteType(c.DataType))
	}

	if _, err := e.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoted)); err != nil {
		return waveerrors.ErrQuery.New(err.Error())
	}
	createSQL := fmt.Sprintf(`CREATE TABLE %s (%s)`, quoted, cols.String())
	if _, err := e.db.ExecContext(ctx, createSQL); err != nil {
		return waveerrors.ErrQuery.New(err.Error())
	}

	if b.RowCount() == 0 {
		return nil
	}

	placeholders := make([]string, len(schema))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf(`INSERT INTO %s VALUES (%s)`, quoted, strings.Join(placeholders, ", "))

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return waveerrors.ErrQuery.New(err.Error())
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return waveerrors.ErrQuery.New(err.Error())
	}
	defer stmt.Close()

	for r := 0; r < b.RowCount(); r++ {
		row := b.Row(r)
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			tx.Rollback()
			return waveerrors.ErrQuery.New(err.Error())
		}
	}
	if err := tx.Commit(); err != nil {
		return waveerrors.ErrQuery.New(err.Error())
	}
	return nil
}

// CreateView makes sourceName's rows reachable under qualifiedName — the
// mechanism the virtual-join branch uses to alias a temporary per-adapter
// batch to its statement-visible schema-qualified table name (spec §4.3
// step 2). SQLite resolves the tables a view reads inside the view's own
// attached database, so a view in the schema database could not see a
// table in main; the rows are therefore copied into a table named
// qualifiedName (CREATE TABLE ... AS SELECT). It fails if qualifiedName
// already exists.
func (e *Engine) CreateView(ctx context.Context, qualifiedName, sourceName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureSchemaLocked(ctx, qualifiedName); err != nil {
		return err
	}
	viewSQL := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM %s`, quoteQualified(qualifiedName), quoteQualified(sourceName))
	if _, err := e.db.ExecContext(ctx, viewSQL); err != nil {
		return waveerrors.ErrQuery.New(err.Error())
	}
	return nil
}

// Unregister drops a table or view, tolerating its absence. Called on every
// exit path of fallback/virtual-join execution (spec §8 "rewrite safety").
func (e *Engine) Unregister(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	quoted := quoteQualified(name)
	// SQLite rejects DROP VIEW on a table name and DROP TABLE on a view
	// name, so each statement may fail for the other kind; only a failure
	// of both is an error.
	_, viewErr := e.db.ExecContext(ctx, fmt.Sprintf(`DROP VIEW IF EXISTS %s`, quoted))
	_, tableErr := e.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoted))
	if viewErr != nil && tableErr != nil {
		return waveerrors.ErrQuery.New(tableErr.Error())
	}
	return nil
}

// Execute runs arbitrary SQL and returns the result as a Batch. Any failure
// here — including a rewrite that produced invalid SQL — surfaces as
// waveerrors.ErrQuery with the original error as cause (spec §7 "Fatal"
// clause).
func (e *Engine) Execute(ctx context.Context, query string, args ...any) (*batch.Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, waveerrors.ErrQuery.Wrap(err, err.Error())
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return nil, waveerrors.ErrQuery.Wrap(err, err.Error())
	}

	columns := make([][]any, len(colNames))
	for rows.Next() {
		scanDest := make([]any, len(colNames))
		scanPtrs := make([]any, len(colNames))
		for i := range scanDest {
			scanPtrs[i] = &scanDest[i]
		}
		if err := rows.Scan(scanPtrs...); err != nil {
			return nil, waveerrors.ErrQuery.Wrap(err, err.Error())
		}
		for i, v := range scanDest {
			columns[i] = append(columns[i], normalizeSQLiteValue(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, waveerrors.ErrQuery.Wrap(err, err.Error())
	}

	schema := make(batch.Schema, len(colNames))
	for i, name := range colNames {
		schema[i] = batch.ColumnInfo{Name: name, DataType: inferColumnType(columns[i]), Nullable: true}
	}

	b, err := batch.Build(schema, columns)
	if err != nil {
		return nil, waveerrors.ErrQuery.Wrap(err, err.Error())
	}
	return b, nil
}

func normalizeSQLiteValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return v
	}
}

func inferColumnType(values []any) batch.DataType {
	for _, v := range values {
		switch v.(type) {
		case int64, int:
			return batch.Integer
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

// ensureSchemaLocked ATTACHes an in-memory database for name's schema
// prefix (e.g. "sales" in "sales.account") if it hasn't been already.
// SQLite has no notion of multiple schemas within one file the way
// Postgres/MySQL do; ATTACH DATABASE is the idiomatic substitute and is
// exactly what the virtual-join branch needs: "create the containing
// schema" (spec §4.3 step 2). Callers must already hold e.mu.
func (e *Engine) ensureSchemaLocked(ctx context.Context, qualifiedName string) error {
	schema, _, ok := splitQualified(qualifiedName)
	if !ok || schema == "main" {
		return nil
	}
	if e.attached[schema] {
		return nil
	}
	attachSQL := fmt.Sprintf(`ATTACH DATABASE ':memory:' AS %s`, quoteIdent(schema))
	if _, err := e.db.ExecContext(ctx, attachSQL); err != nil {
		return waveerrors.ErrQuery.New(err.Error())
	}
	e.attached[schema] = true
	return nil
}

func splitQualified(name string) (schema, table string, ok bool) {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) != 2 {
		return "", name, false
	}
	return parts[0], parts[1], true
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteQualified(name string) string {
	schema, table, ok := splitQualified(name)
	if !ok {
		return quoteIdent(table)
	}
	return quoteIdent(schema) + "." + quoteIdent(table)
}
