// Package planner turns a SQL string into a QueryInfo: an immutable,
// neutral record of what a statement asks for, distilled for pushdown.
// See spec §3 (data model) and §4.1 (planner behaviour).
package planner

// Operation is the closed set of statement kinds the planner recognises.
type Operation int

const (
	// OpRaw is the catch-all: anything the planner didn't recognise, or
	// recognised but failed to parse. raw_sql is always set for OpRaw.
	OpRaw Operation = iota
	OpSelect
	OpInsert
	OpUpdate
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpSelect:
		return "SELECT"
	case OpInsert:
		return "INSERT"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	default:
		return "RAW"
	}
}

// Operator is the closed set of predicate comparison operators.
type Operator string

const (
	OpEq         Operator = "="
	OpNeq        Operator = "!="
	OpLt         Operator = "<"
	OpLte        Operator = "<="
	OpGt         Operator = ">"
	OpGte        Operator = ">="
	OpLike       Operator = "LIKE"
	OpIn         Operator = "IN"
	OpIsNull     Operator = "IS NULL"
	OpIsNotNull  Operator = "IS NOT NULL"
)

// ParameterPlaceholder is the sentinel value substituted for a `?` bind
// parameter at execute time; QueryInfo.Predicates / Values may carry it in
// place of a literal.
type ParameterPlaceholder struct{}

// Predicate is one WHERE-clause leaf: (column, operator, value). Value is a
// scalar literal, a []any for IN, nil for IS [NOT] NULL, or a
// ParameterPlaceholder for an unbound `?`.
type Predicate struct {
	Column   string
	Operator Operator
	Value    any
}

// AggregateFunc is the closed set of aggregate functions the planner
// recognises in a projection.
type AggregateFunc string

const (
	AggCount AggregateFunc = "COUNT"
	AggSum   AggregateFunc = "SUM"
	AggAvg   AggregateFunc = "AVG"
	AggMin   AggregateFunc = "MIN"
	AggMax   AggregateFunc = "MAX"
)

// Aggregate is one aggregate projection item, e.g. SUM(amount) AS total.
// COUNT(*) is represented with Column == "*".
type Aggregate struct {
	Func   AggregateFunc
	Column string
	Alias  string
}

// OrderDirection is ASC or DESC.
type OrderDirection string

const (
	Asc  OrderDirection = "ASC"
	Desc OrderDirection = "DESC"
)

// OrderTerm is one ORDER BY item.
type OrderTerm struct {
	Column    string
	Direction OrderDirection
}

// JoinKind is the closed set of JOIN kinds the planner records.
type JoinKind string

const (
	JoinInner JoinKind = "INNER"
	JoinLeft  JoinKind = "LEFT"
	JoinRight JoinKind = "RIGHT"
	JoinOuter JoinKind = "OUTER"
)

// Join is one JOIN clause: its kind and the joined table name (as written,
// including any alias-qualified form; the engine resolves it).
type Join struct {
	Kind  JoinKind
	Table string
}

// QueryInfo is the planner's sole output: an immutable per-statement record.
// Any column named in Predicates/OrderBy/GroupBy/Aggregates is emitted
// verbatim from the source SQL; the planner does not validate that it
// resolves against the table — the adapter does (spec §3 invariant).
type QueryInfo struct {
	Operation Operation

	// Table is the statement's physical routing table, possibly qualified
	// as "schema.name". For SELECT with JOINs this is the table in FROM;
	// every joined table additionally appears in Joins.
	Table string

	// Columns is the ordered projection list: ["*"] for SELECT *, or a
	// mix of column names and canonical "FUNC(col)"/alias forms.
	Columns []string

	Predicates []Predicate
	Values     map[string]any
	OrderBy    []OrderTerm
	GroupBy    []string
	Aggregates []Aggregate
	Joins      []Join

	// Limit/Offset are non-negative when present; HasLimit/HasOffset
	// distinguish "absent" from "explicitly zero".
	Limit    int
	HasLimit bool

	Offset    int
	HasOffset bool

	// RawSQL is the verbatim (trimmed) input statement. For OpRaw it is
	// the only populated field besides Operation.
	RawSQL string

	// IsExplain is true when the statement was `EXPLAIN <inner>`; all other
	// fields reflect the recursively parsed inner statement.
	IsExplain bool
}
