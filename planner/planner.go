package planner

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	vt "github.com/dolthub/vitess/go/vt/sqlparser"
)

// Planner parses SQL text into QueryInfo. It is grounded on the real parser
// the teacher's own sql/parse package tests against
// (github.com/dolthub/vitess/go/vt/sqlparser) with a best-effort RAW
// fallback for anything that parser rejects or that this planner doesn't
// yet model — the planner must never raise on malformed input (spec §4.1).
type Planner struct {
	log logrus.FieldLogger
}

// New returns a Planner. A nil logger falls back to logrus's standard
// logger, same default the teacher's components use.
func New(log logrus.FieldLogger) *Planner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Planner{log: log}
}

// Parse turns sql into a QueryInfo. It never returns an error: any parse
// failure yields an Operation: OpRaw QueryInfo with RawSQL set.
func (p *Planner) Parse(sql string) (info *QueryInfo) {
	trimmed := strings.TrimSpace(sql)

	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", r).Debug("planner: recovered while parsing, falling back to RAW")
			info = &QueryInfo{Operation: OpRaw, RawSQL: trimmed}
		}
	}()

	return p.parse(trimmed)
}

func (p *Planner) parse(trimmed string) *QueryInfo {
	// EXPLAIN is handled as a textual prefix rather than relying on the
	// parser's own Explain AST shape, mirroring query_planner.py's
	// tolerance of both sqlglot's Explain and Command representations:
	// whichever shape the grammar hands us, we just need the inner SQL.
	if rest, ok := stripExplainPrefix(trimmed); ok {
		inner := p.parse(rest)
		inner.IsExplain = true
		return inner
	}

	stmt, err := vt.Parse(trimmed)
	if err != nil {
		p.log.WithError(err).Debug("planner: parse failed, falling back to RAW")
		return &QueryInfo{Operation: OpRaw, RawSQL: trimmed}
	}

	switch s := stmt.(type) {
	case *vt.Select:
		return p.parseSelect(s, trimmed)
	case *vt.Insert:
		return p.parseInsert(s, trimmed)
	case *vt.Update:
		return p.parseUpdate(s, trimmed)
	case *vt.Delete:
		return p.parseDelete(s, trimmed)
	default:
		return &QueryInfo{Operation: OpRaw, RawSQL: trimmed}
	}
}

func stripExplainPrefix(sql string) (string, bool) {
	const kw = "EXPLAIN"
	if len(sql) < len(kw) || !strings.EqualFold(sql[:len(kw)], kw) {
		return "", false
	}
	rest := strings.TrimSpace(sql[len(kw):])
	if rest == "" {
		return "", false
	}
	return rest, true
}

func (p *Planner) parseSelect(s *vt.Select, raw string) *QueryInfo {
	info := &QueryInfo{Operation: OpSelect, RawSQL: raw}

	info.Table = routingTable(s.From)
	info.Joins = extractJoins(s.From)
	info.Columns, info.Aggregates = extractProjection(s.SelectExprs)

	if s.Where != nil && s.Where.Expr != nil {
		info.Predicates = extractPredicates(s.Where.Expr)
	}

	for _, g := range s.GroupBy {
		info.GroupBy = append(info.GroupBy, exprSQL(g))
	}

	for _, o := range s.OrderBy {
		dir := Asc
		if strings.EqualFold(o.Direction, vt.DescScr) {
			dir = Desc
		}
		info.OrderBy = append(info.OrderBy, OrderTerm{Column: exprSQL(o.Expr), Direction: dir})
	}

	if s.Limit != nil {
		if s.Limit.Rowcount != nil {
			if n, ok := intLiteral(s.Limit.Rowcount); ok {
				info.Limit = n
				info.HasLimit = true
			}
		}
		if s.Limit.Offset != nil {
			if n, ok := intLiteral(s.Limit.Offset); ok {
				info.Offset = n
				info.HasOffset = true
			}
		}
	}

	return info
}

// routingTable picks the first non-CTE physical table in FROM, matching
// query_planner.py's CTE-skipping walk. With the plain vitess grammar
// (no WITH-clause modelling) every AliasedTableExpr wrapping a TableName is
// already a physical table, so this reduces to "first FROM item".
func routingTable(from vt.TableExprs) string {
	for _, te := range from {
		if name, ok := tableExprName(te); ok {
			return name
		}
	}
	return ""
}

func tableExprName(te vt.TableExpr) (string, bool) {
	switch t := te.(type) {
	case *vt.AliasedTableExpr:
		if tn, ok := t.Expr.(vt.TableName); ok {
			return tableNameString(tn), true
		}
		return "", false
	case *vt.JoinTableExpr:
		return tableExprName(t.LeftExpr)
	case *vt.ParenTableExpr:
		if len(t.Exprs) > 0 {
			return tableExprName(t.Exprs[0])
		}
	}
	return "", false
}

func tableNameString(tn vt.TableName) string {
	if !tn.Qualifier.IsEmpty() {
		return tn.Qualifier.String() + "." + tn.Name.String()
	}
	return tn.Name.String()
}

func extractJoins(from vt.TableExprs) []Join {
	var joins []Join
	var walk func(te vt.TableExpr)
	walk = func(te vt.TableExpr) {
		switch t := te.(type) {
		case *vt.JoinTableExpr:
			walk(t.LeftExpr)
			kind := joinKind(t.Join)
			if name, ok := tableExprName(t.RightExpr); ok {
				joins = append(joins, Join{Kind: kind, Table: name})
			}
			walk(t.RightExpr)
		case *vt.ParenTableExpr:
			for _, e := range t.Exprs {
				walk(e)
			}
		}
	}
	for _, te := range from {
		walk(te)
	}
	return joins
}

func joinKind(join string) JoinKind {
	switch strings.ToLower(strings.TrimSpace(join)) {
	case vt.LeftJoinStr, "left outer join":
		return JoinLeft
	case vt.RightJoinStr, "right outer join":
		return JoinRight
	case "full join", "full outer join":
		return JoinOuter
	default:
		return JoinInner
	}
}

func extractProjection(exprs vt.SelectExprs) ([]string, []Aggregate) {
	var columns []string
	var aggregates []Aggregate

	for _, e := range exprs {
		switch se := e.(type) {
		case *vt.StarExpr:
			columns = append(columns, "*")
		case *vt.AliasedExpr:
			alias := se.As.String()
			if fn, col, ok := aggFunc(se.Expr); ok {
				agg := Aggregate{Func: fn, Column: col, Alias: alias}
				aggregates = append(aggregates, agg)
				if alias != "" {
					columns = append(columns, alias)
				} else {
					columns = append(columns, string(fn)+"("+col+")")
				}
				continue
			}
			if alias != "" {
				columns = append(columns, alias)
			} else {
				columns = append(columns, exprSQL(se.Expr))
			}
		}
	}
	return columns, aggregates
}

var aggFuncNames = map[string]AggregateFunc{
	"count": AggCount,
	"sum":   AggSum,
	"avg":   AggAvg,
	"min":   AggMin,
	"max":   AggMax,
}

func aggFunc(e vt.Expr) (AggregateFunc, string, bool) {
	fe, ok := e.(*vt.FuncExpr)
	if !ok {
		return "", "", false
	}
	fn, ok := aggFuncNames[strings.ToLower(fe.Name.String())]
	if !ok {
		return "", "", false
	}
	col := "*"
	if len(fe.Exprs) > 0 {
		if ae, ok := fe.Exprs[0].(*vt.AliasedExpr); ok {
			col = exprSQL(ae.Expr)
		}
	}
	return fn, col, true
}

// extractPredicates walks a WHERE condition tree and emits a Predicate per
// leaf connected by AND at the top level; any OR above a comparison blocks
// extraction of that entire subtree (spec §3, §8 "predicate soundness for
// disjunctions" — the statement keeps those conditions only in RawSQL for
// the engine's fallback path to evaluate).
func extractPredicates(e vt.Expr) []Predicate {
	switch expr := e.(type) {
	case *vt.AndExpr:
		return append(extractPredicates(expr.Left), extractPredicates(expr.Right)...)
	case *vt.ParenExpr:
		return extractPredicates(expr.Expr)
	case *vt.ComparisonExpr:
		return comparisonPredicate(expr)
	case *vt.IsExpr:
		return isPredicate(expr)
	default:
		// OrExpr, NotExpr, RangeCond, function predicates, etc. are left
		// unmodelled for pushdown and remain only in RawSQL.
		return nil
	}
}

func comparisonPredicate(expr *vt.ComparisonExpr) []Predicate {
	col, ok := colName(expr.Left)
	if !ok {
		return nil
	}

	switch strings.ToLower(expr.Operator) {
	case vt.EqualStr:
		return []Predicate{{Column: col, Operator: OpEq, Value: literalValue(expr.Right)}}
	case vt.NotEqualStr:
		return []Predicate{{Column: col, Operator: OpNeq, Value: literalValue(expr.Right)}}
	case vt.LessThanStr:
		return []Predicate{{Column: col, Operator: OpLt, Value: literalValue(expr.Right)}}
	case vt.LessEqualStr:
		return []Predicate{{Column: col, Operator: OpLte, Value: literalValue(expr.Right)}}
	case vt.GreaterThanStr:
		return []Predicate{{Column: col, Operator: OpGt, Value: literalValue(expr.Right)}}
	case vt.GreaterEqualStr:
		return []Predicate{{Column: col, Operator: OpGte, Value: literalValue(expr.Right)}}
	case vt.LikeStr:
		return []Predicate{{Column: col, Operator: OpLike, Value: literalValue(expr.Right)}}
	case vt.InStr:
		return []Predicate{{Column: col, Operator: OpIn, Value: tupleValues(expr.Right)}}
	default:
		return nil
	}
}

func isPredicate(expr *vt.IsExpr) []Predicate {
	col, ok := colName(expr.Expr)
	if !ok {
		return nil
	}
	switch strings.ToLower(expr.Operator) {
	case vt.IsNullStr:
		return []Predicate{{Column: col, Operator: OpIsNull, Value: nil}}
	case vt.IsNotNullStr:
		return []Predicate{{Column: col, Operator: OpIsNotNull, Value: nil}}
	default:
		return nil
	}
}

func colName(e vt.Expr) (string, bool) {
	cn, ok := e.(*vt.ColName)
	if !ok {
		return "", false
	}
	return exprSQL(cn), true
}

func tupleValues(e vt.Expr) []any {
	tuple, ok := e.(vt.ValTuple)
	if !ok {
		return nil
	}
	vals := make([]any, 0, len(tuple))
	for _, v := range tuple {
		vals = append(vals, literalValue(v))
	}
	return vals
}

// literalValue extracts a Go scalar (preserving type: int64, float64, bool,
// string, nil) or a ParameterPlaceholder from an Expr literal node.
func literalValue(e vt.Expr) any {
	switch v := e.(type) {
	case *vt.SQLVal:
		switch v.Type {
		case vt.IntVal:
			if n, err := strconv.ParseInt(string(v.Val), 10, 64); err == nil {
				return n
			}
			return string(v.Val)
		case vt.FloatVal:
			if f, err := strconv.ParseFloat(string(v.Val), 64); err == nil {
				return f
			}
			return string(v.Val)
		case vt.ValArg:
			return ParameterPlaceholder{}
		default: // StrVal, HexVal, BitVal, HexNum
			return string(v.Val)
		}
	case vt.BoolVal:
		return bool(v)
	case *vt.NullVal:
		return nil
	case vt.ListArg:
		return ParameterPlaceholder{}
	default:
		return exprSQL(e)
	}
}

func intLiteral(e vt.Expr) (int, bool) {
	v, ok := e.(*vt.SQLVal)
	if !ok || v.Type != vt.IntVal {
		return 0, false
	}
	n, err := strconv.Atoi(string(v.Val))
	if err != nil {
		return 0, false
	}
	return n, true
}

// exprSQL renders an expression verbatim, preserving quoting and
// schema-prefixes as spec §4.1 requires ("the planner preserves quoting and
// schema-prefixes; the adapter normalises them").
func exprSQL(e vt.SQLNode) string {
	buf := vt.NewTrackedBuffer(nil)
	e.Format(buf)
	return buf.String()
}

func (p *Planner) parseInsert(s *vt.Insert, raw string) *QueryInfo {
	info := &QueryInfo{Operation: OpInsert, RawSQL: raw, Values: map[string]any{}}
	info.Table = tableNameString(s.Table)

	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = c.String()
	}

	// Only the first VALUES tuple is extracted (open question decision,
	// see SPEC_FULL.md §7): multi-row INSERT stays in RawSQL only.
	values, ok := s.Rows.(vt.Values)
	if !ok || len(values) == 0 {
		return info
	}
	row := values[0]
	for i, e := range row {
		val := literalValue(e)
		if i < len(cols) {
			info.Values[cols[i]] = val
		} else {
			info.Values[strconv.Itoa(i)] = val
		}
	}
	return info
}

func (p *Planner) parseUpdate(s *vt.Update, raw string) *QueryInfo {
	info := &QueryInfo{Operation: OpUpdate, RawSQL: raw, Values: map[string]any{}}
	info.Table = routingTable(s.TableExprs)

	for _, ue := range s.Exprs {
		info.Values[exprSQL(ue.Name)] = literalValue(ue.Expr)
	}

	if s.Where != nil && s.Where.Expr != nil {
		info.Predicates = extractPredicates(s.Where.Expr)
	}
	return info
}

func (p *Planner) parseDelete(s *vt.Delete, raw string) *QueryInfo {
	info := &QueryInfo{Operation: OpDelete, RawSQL: raw}
	info.Table = routingTable(s.TableExprs)

	if s.Where != nil && s.Where.Expr != nil {
		info.Predicates = extractPredicates(s.Where.Expr)
	}
	return info
}
