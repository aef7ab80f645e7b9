package waveql

import (
	"context"
	"database/sql"
)

// ColumnDescription is one entry of a Cursor's Description, mirroring the
// Python DB-API's (name, type_code, ...) tuple (spec §6 "Cursor API").
type ColumnDescription struct {
	Name string
	Type string
}

// DefaultArraySize is fetchmany's row count when called with no argument
// (spec §6 "arraysize (default 100)").
const DefaultArraySize = 100

// Cursor adapts *sql.Rows to the DB-API-shaped surface spec §6 names
// explicitly: fetchone/fetchmany(n)/fetchall, description, arraysize. It is
// a convenience wrapper; callers that only need Go idioms can use *sql.Rows
// directly — database/sql's own Query/Scan/Next already implement the same
// state machine.
type Cursor struct {
	rows      *sql.Rows
	cols      []string
	types     []*sql.ColumnType
	ArraySize int
	closed    bool
}

// NewCursor wraps rows, which must come from a *sql.DB registered with the
// "waveql" driver.
func NewCursor(rows *sql.Rows) (*Cursor, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	return &Cursor{rows: rows, cols: cols, types: types, ArraySize: DefaultArraySize}, nil
}

// Description returns the (name, type) pairs for the result's columns.
func (c *Cursor) Description() []ColumnDescription {
	desc := make([]ColumnDescription, len(c.cols))
	for i, name := range c.cols {
		desc[i] = ColumnDescription{Name: name, Type: c.types[i].DatabaseTypeName()}
	}
	return desc
}

func (c *Cursor) scanRow() ([]any, error) {
	raw := make([]any, len(c.cols))
	ptrs := make([]any, len(c.cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return raw, nil
}

// FetchOne returns the next row, or (nil, nil) once exhausted.
func (c *Cursor) FetchOne() ([]any, error) {
	if c.closed || !c.rows.Next() {
		return nil, c.rows.Err()
	}
	return c.scanRow()
}

// FetchMany returns up to n rows (ArraySize if n <= 0), or fewer if the
// result is exhausted first.
func (c *Cursor) FetchMany(n int) ([][]any, error) {
	if n <= 0 {
		n = c.ArraySize
	}
	out := make([][]any, 0, n)
	for i := 0; i < n; i++ {
		row, err := c.FetchOne()
		if err != nil {
			return out, err
		}
		if row == nil {
			break
		}
		out = append(out, row)
	}
	return out, nil
}

// FetchAll drains every remaining row.
func (c *Cursor) FetchAll() ([][]any, error) {
	var out [][]any
	for {
		row, err := c.FetchOne()
		if err != nil {
			return out, err
		}
		if row == nil {
			return out, nil
		}
		out = append(out, row)
	}
}

// Close releases the underlying *sql.Rows.
func (c *Cursor) Close() error {
	c.closed = true
	return c.rows.Close()
}

// ExecuteMany runs query once per element of paramSets, mirroring the
// DB-API's cursor.executemany (spec §6 "Cursor API"). The statement is
// prepared once against db and reused for every parameter tuple, going
// through the same Stmt.ExecContext plumbing a single Exec would; the
// result is the sum of each execution's affected row count.
func ExecuteMany(ctx context.Context, db *sql.DB, query string, paramSets [][]any) (int64, error) {
	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var total int64
	for _, params := range paramSets {
		res, err := stmt.ExecContext(ctx, params...)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
