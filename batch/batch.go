// Package batch defines the columnar batch that flows between adapters,
// the execution engine, and the cursor — the single unit of currency the
// rest of the system exchanges (spec.md §3 "Columnar batch").
package batch

import "fmt"

// DataType is the closed set of semantic column types the planner, adapters,
// and the local analytical engine agree on. It is deliberately coarser than
// SQLite's own type affinities so every adapter can map its native types
// onto it without loss of the distinctions the engine cares about.
type DataType int

const (
	String DataType = iota
	Integer
	Floating
	Boolean
	Date
	DateTime
	Reference
	Binary
)

func (t DataType) String() string {
	switch t {
	case String:
		return "string"
	case Integer:
		return "integer"
	case Floating:
		return "floating"
	case Boolean:
		return "boolean"
	case Date:
		return "date"
	case DateTime:
		return "datetime"
	case Reference:
		return "reference"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// ColumnInfo describes one column of a table or batch.
type ColumnInfo struct {
	Name         string
	DataType     DataType
	Nullable     bool
	IsPrimaryKey bool
}

// Schema is an ordered list of ColumnInfo; column order is significant and
// is preserved end to end from adapter to cursor.
type Schema []ColumnInfo

// IndexOf returns the position of name in the schema, or -1.
func (s Schema) IndexOf(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the schema's column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Batch is an immutable columnar result: one Schema plus one equal-length
// column slice per field. Batches are never mutated after Build returns;
// every column contains exactly RowCount entries, each either a typed Go
// value (string, int64, float64, bool, []byte) or nil.
type Batch struct {
	schema  Schema
	columns [][]any
	rows    int
}

// Build constructs a Batch, validating that every column slice has the same
// length as the schema and as each other. columns[i] must correspond to
// schema[i].
func Build(schema Schema, columns [][]any) (*Batch, error) {
	if len(columns) != len(schema) {
		return nil, fmt.Errorf("batch: %d columns declared in schema but %d column slices given", len(schema), len(columns))
	}
	rows := 0
	if len(columns) > 0 {
		rows = len(columns[0])
	}
	for i, col := range columns {
		if len(col) != rows {
			return nil, fmt.Errorf("batch: column %q has %d rows, want %d", schema[i].Name, len(col), rows)
		}
	}
	return &Batch{schema: schema, columns: columns, rows: rows}, nil
}

// Empty returns a zero-row batch with the given schema.
func Empty(schema Schema) *Batch {
	cols := make([][]any, len(schema))
	for i := range cols {
		cols[i] = []any{}
	}
	b, _ := Build(schema, cols)
	return b
}

// Schema returns the batch's column schema.
func (b *Batch) Schema() Schema { return b.schema }

// RowCount returns the number of rows in the batch.
func (b *Batch) RowCount() int { return b.rows }

// Column returns the values of the i-th column.
func (b *Batch) Column(i int) []any { return b.columns[i] }

// ColumnByName returns the values of the named column, or nil if absent.
func (b *Batch) ColumnByName(name string) []any {
	i := b.schema.IndexOf(name)
	if i < 0 {
		return nil
	}
	return b.columns[i]
}

// Row materialises row i as a slice ordered per the schema.
func (b *Batch) Row(i int) []any {
	row := make([]any, len(b.columns))
	for c := range b.columns {
		row[c] = b.columns[c][i]
	}
	return row
}

// Slice returns a new Batch containing only rows [from, to). Used to apply
// LIMIT/OFFSET after predicates and ordering are already resolved.
func (b *Batch) Slice(from, to int) *Batch {
	if from < 0 {
		from = 0
	}
	if to > b.rows {
		to = b.rows
	}
	if from > to {
		from = to
	}
	cols := make([][]any, len(b.columns))
	for i, col := range b.columns {
		cols[i] = col[from:to]
	}
	out, _ := Build(b.schema, cols)
	return out
}

// Concat concatenates same-schema batches in order, used by the parallel
// page fetcher to preserve cross-page ordering on completion.
func Concat(batches ...*Batch) (*Batch, error) {
	if len(batches) == 0 {
		return nil, fmt.Errorf("batch: Concat requires at least one batch")
	}
	schema := batches[0].schema
	cols := make([][]any, len(schema))
	for _, b := range batches {
		if len(b.schema) != len(schema) {
			return nil, fmt.Errorf("batch: Concat schema mismatch")
		}
		for i := range cols {
			cols[i] = append(cols[i], b.columns[i]...)
		}
	}
	return Build(schema, cols)
}
