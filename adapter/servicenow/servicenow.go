// Package servicenow implements the ITSM "Table API" wire format from
// spec §6: GET /api/now/table/{name} for reads, /api/now/stats/{name} for
// aggregations, POST/PATCH/DELETE on /api/now/table/{name}[/{id}] for
// writes, and the synthetic sys_attachment_content table for binary
// attachment bytes.
package servicenow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mitayan0/WaveQL/adapter"
	"github.com/mitayan0/WaveQL/adapter/httpbase"
	"github.com/mitayan0/WaveQL/batch"
	"github.com/mitayan0/WaveQL/pagefetch"
	"github.com/mitayan0/WaveQL/planner"
	"github.com/mitayan0/WaveQL/schemacache"
	"github.com/mitayan0/WaveQL/waveerrors"
)

const defaultSchemaTTL = 300_000_000_000 // 5 minutes, expressed in time.Duration's ns units

// attachmentTable is the synthetic two-column table
// (sys_id, content []byte) backing ServiceNow's binary attachment endpoint
// (spec §6, SPEC_FULL.md §5).
const attachmentTable = "sys_attachment_content"

// Config configures the adapter.
type Config struct {
	Name        string
	BaseURL     string
	Tables      []string
	PageSize    int
	MaxParallel int
}

// Adapter implements adapter.Adapter against a ServiceNow-style Table API.
type Adapter struct {
	cfg     Config
	client  *httpbase.Client
	cache   *schemacache.Cache
	fetcher *pagefetch.Fetcher
	log     logrus.FieldLogger
}

// New builds a ServiceNow adapter. cache may be nil to disable schema
// caching.
func New(cfg Config, client *httpbase.Client, cache *schemacache.Cache, log logrus.FieldLogger) *Adapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Adapter{cfg: cfg, client: client, cache: cache, fetcher: pagefetch.New(cfg.PageSize, cfg.MaxParallel), log: log}
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		SupportsPredicatePushdown: true,
		SupportsInsert:            true,
		SupportsUpdate:            true,
		SupportsDelete:            true,
	}
}

func (a *Adapter) Fetch(ctx context.Context, plan adapter.FetchPlan) (*batch.Batch, error) {
	if plan.Table == attachmentTable {
		return a.fetchAttachment(ctx, plan.Predicates)
	}
	if len(plan.Aggregates) > 0 || len(plan.GroupBy) > 0 {
		return a.fetchStats(ctx, plan)
	}

	query := encodeCondition(plan.Predicates)
	if len(plan.OrderBy) > 0 {
		query = appendOrderBy(query, plan.OrderBy)
	}
	fetchPage := func(ctx context.Context, page int) (*batch.Batch, error) {
		q := url.Values{}
		if query != "" {
			q.Set("sysparm_query", query)
		}
		if len(plan.Columns) > 0 && plan.Columns[0] != "*" {
			q.Set("sysparm_fields", strings.Join(plan.Columns, ","))
		}
		q.Set("sysparm_limit", strconv.Itoa(a.cfg.PageSize))
		q.Set("sysparm_offset", strconv.Itoa(page*a.cfg.PageSize))
		q.Set("sysparm_display_value", "false")

		var envelope struct {
			Result []map[string]any `json:"result"`
		}
		_, _, err := a.client.Do(ctx, http.MethodGet, "/api/now/table/"+plan.Table, q, nil, &envelope)
		if err != nil {
			return nil, err
		}
		return rowsToBatch(envelope.Result)
	}

	hasLimit := plan.HasLimit
	limit := plan.Limit
	if plan.HasOffset && hasLimit {
		limit += plan.Offset
	}
	result, err := a.fetcher.Fetch(ctx, hasLimit, limit, fetchPage)
	if err != nil {
		return nil, err
	}
	if plan.HasOffset {
		end := result.RowCount()
		if plan.HasLimit && plan.Offset+plan.Limit < end {
			end = plan.Offset + plan.Limit
		}
		result = result.Slice(plan.Offset, end)
	}
	return result, nil
}

// fetchStats implements the /api/now/stats/{name} aggregation endpoint
// (spec §6). ServiceNow reports sums/counts/etc as strings grouped under a
// "stats" object, one per distinct group_by combination when group_by is
// set.
func (a *Adapter) fetchStats(ctx context.Context, plan adapter.FetchPlan) (*batch.Batch, error) {
	q := url.Values{}
	if query := encodeCondition(plan.Predicates); query != "" {
		q.Set("sysparm_query", query)
	}
	for _, agg := range plan.Aggregates {
		switch agg.Func {
		case planner.AggCount:
			q.Set("sysparm_count", "true")
		case planner.AggSum:
			addCSV(q, "sysparm_sum_fields", agg.Column)
		case planner.AggAvg:
			addCSV(q, "sysparm_avg_fields", agg.Column)
		case planner.AggMin:
			addCSV(q, "sysparm_min_fields", agg.Column)
		case planner.AggMax:
			addCSV(q, "sysparm_max_fields", agg.Column)
		}
	}
	if len(plan.GroupBy) > 0 {
		q.Set("sysparm_group_by", strings.Join(plan.GroupBy, ","))
	}
	if len(plan.OrderBy) > 0 {
		terms := make([]string, len(plan.OrderBy))
		for i, o := range plan.OrderBy {
			terms[i] = o.Column
			if o.Direction == planner.Desc {
				terms[i] = "-" + terms[i]
			}
		}
		q.Set("sysparm_order_by", strings.Join(terms, ","))
	}

	_, raw, err := a.client.Do(ctx, http.MethodGet, "/api/now/stats/"+plan.Table, q, nil, nil)
	if err != nil {
		return nil, err
	}
	return parseStatsResponse(raw, plan)
}

// statsGroup is one element of a grouped /api/now/stats/{name} response:
// a set of group_by field values plus the aggregate stats for that group.
type statsGroup struct {
	GroupByFields []struct {
		Field string `json:"field"`
		Value string `json:"value"`
	} `json:"groupby_fields"`
	Stats map[string]string `json:"stats"`
}

// parseStatsResponse handles both of ServiceNow's stats response shapes:
// a single "result" object (no group_by) or an array of groups (group_by
// set), returning one batch row per group.
func parseStatsResponse(raw []byte, plan adapter.FetchPlan) (*batch.Batch, error) {
	var asArray struct {
		Result []statsGroup `json:"result"`
	}
	var asObject struct {
		Result statsGroup `json:"result"`
	}

	groups := []statsGroup{}
	if err := json.Unmarshal(raw, &asArray); err == nil && len(asArray.Result) > 0 {
		groups = asArray.Result
	} else if err := json.Unmarshal(raw, &asObject); err == nil {
		groups = []statsGroup{asObject.Result}
	} else {
		return nil, waveerrors.ErrAdapter.New("unrecognised stats response shape")
	}

	names := make([]string, 0, len(plan.GroupBy)+len(plan.Aggregates))
	names = append(names, plan.GroupBy...)
	for _, agg := range plan.Aggregates {
		name := agg.Alias
		if name == "" {
			name = string(agg.Func)
		}
		names = append(names, name)
	}

	schema := make(batch.Schema, len(names))
	for i, n := range names {
		schema[i] = batch.ColumnInfo{Name: n, DataType: batch.String, Nullable: true}
	}
	cols := make([][]any, len(names))
	for i := range cols {
		cols[i] = make([]any, 0, len(groups))
	}

	for _, g := range groups {
		groupValues := map[string]string{}
		for _, gf := range g.GroupByFields {
			groupValues[gf.Field] = gf.Value
		}
		col := 0
		for range plan.GroupBy {
			field := plan.GroupBy[col]
			cols[col] = append(cols[col], groupValues[field])
			col++
		}
		for _, agg := range plan.Aggregates {
			key := strings.ToLower(string(agg.Func))
			cols[col] = append(cols[col], g.Stats[key])
			col++
		}
	}
	return batch.Build(schema, cols)
}

func (a *Adapter) fetchAttachment(ctx context.Context, predicates []planner.Predicate) (*batch.Batch, error) {
	var sysID string
	for _, p := range predicates {
		if p.Column == "sys_id" && p.Operator == planner.OpEq {
			sysID = fmt.Sprint(p.Value)
		}
	}
	if sysID == "" {
		return nil, waveerrors.ErrQuery.New(fmt.Sprintf("%s requires a sys_id = ... predicate", attachmentTable))
	}

	_, raw, err := a.client.Do(ctx, http.MethodGet, "/api/now/attachment/"+sysID+"/file", nil, nil, nil)
	if err != nil {
		return nil, err
	}

	schema := batch.Schema{
		{Name: "sys_id", DataType: batch.String},
		{Name: "content", DataType: batch.Binary},
	}
	return batch.Build(schema, [][]any{{sysID}, {raw}})
}

func (a *Adapter) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	_, _, err := a.client.Do(ctx, http.MethodPost, "/api/now/table/"+table, nil, values, nil)
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func (a *Adapter) Update(ctx context.Context, table string, values map[string]any, predicates []planner.Predicate) (int64, error) {
	id, err := requireSysID(predicates)
	if err != nil {
		return 0, err
	}
	_, _, err = a.client.Do(ctx, http.MethodPatch, "/api/now/table/"+table+"/"+id, nil, values, nil)
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func (a *Adapter) Delete(ctx context.Context, table string, predicates []planner.Predicate) (int64, error) {
	id, err := requireSysID(predicates)
	if err != nil {
		return 0, err
	}
	_, _, err = a.client.Do(ctx, http.MethodDelete, "/api/now/table/"+table+"/"+id, nil, nil, nil)
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func (a *Adapter) GetSchema(ctx context.Context, table string) (batch.Schema, error) {
	if table == attachmentTable {
		return batch.Schema{{Name: "sys_id", DataType: batch.String}, {Name: "content", DataType: batch.Binary}}, nil
	}
	if a.cache != nil {
		if s, ok := a.cache.Get(a.Name(), table); ok {
			return s, nil
		}
	}
	q := url.Values{}
	q.Set("sysparm_limit", "1")
	var envelope struct {
		Result []map[string]any `json:"result"`
	}
	_, _, err := a.client.Do(ctx, http.MethodGet, "/api/now/table/"+table, q, nil, &envelope)
	if err != nil {
		return nil, waveerrors.ErrSchema.New(err.Error())
	}
	b, err := rowsToBatch(envelope.Result)
	if err != nil {
		return nil, waveerrors.ErrSchema.New(err.Error())
	}
	if a.cache != nil {
		a.cache.Set(a.Name(), table, b.Schema(), defaultSchemaTTL)
	}
	return b.Schema(), nil
}

func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	out := append([]string{attachmentTable}, a.cfg.Tables...)
	return out, nil
}

func requireSysID(predicates []planner.Predicate) (string, error) {
	for _, p := range predicates {
		if p.Column == "sys_id" && p.Operator == planner.OpEq {
			return fmt.Sprint(p.Value), nil
		}
	}
	return "", waveerrors.ErrQuery.New("mutation requires an equality predicate on sys_id")
}

func addCSV(q url.Values, key, field string) {
	existing := q.Get(key)
	if existing == "" {
		q.Set(key, field)
		return
	}
	q.Set(key, existing+","+field)
}

// encodeCondition joins predicates into ServiceNow's "^"-delimited encoded
// query syntax (spec §6 "Multiple conditions joined by ^").
func encodeCondition(predicates []planner.Predicate) string {
	parts := make([]string, 0, len(predicates))
	for _, p := range predicates {
		switch p.Operator {
		case planner.OpEq:
			parts = append(parts, fmt.Sprintf("%s=%v", p.Column, p.Value))
		case planner.OpNeq:
			parts = append(parts, fmt.Sprintf("%s!=%v", p.Column, p.Value))
		case planner.OpLt:
			parts = append(parts, fmt.Sprintf("%s<%v", p.Column, p.Value))
		case planner.OpLte:
			parts = append(parts, fmt.Sprintf("%s<=%v", p.Column, p.Value))
		case planner.OpGt:
			parts = append(parts, fmt.Sprintf("%s>%v", p.Column, p.Value))
		case planner.OpGte:
			parts = append(parts, fmt.Sprintf("%s>=%v", p.Column, p.Value))
		case planner.OpLike:
			clean := strings.Trim(fmt.Sprint(p.Value), "%")
			parts = append(parts, fmt.Sprintf("%sLIKE%s", p.Column, clean))
		case planner.OpIn:
			values, _ := p.Value.([]any)
			strs := make([]string, len(values))
			for i, v := range values {
				strs[i] = fmt.Sprint(v)
			}
			parts = append(parts, fmt.Sprintf("%sIN%s", p.Column, strings.Join(strs, ",")))
		case planner.OpIsNull:
			parts = append(parts, p.Column+"ISEMPTY")
		case planner.OpIsNotNull:
			parts = append(parts, p.Column+"ISNOTEMPTY")
		}
	}
	return strings.Join(parts, "^")
}

// appendOrderBy embeds ORDER BY terms into ServiceNow's "^"-delimited
// encoded query syntax using the ORDERBY/ORDERBYDESC keywords (spec §6;
// the same sysparm_query the table's WHERE conditions are encoded into).
func appendOrderBy(query string, orderBy []planner.OrderTerm) string {
	terms := make([]string, len(orderBy))
	for i, o := range orderBy {
		if o.Direction == planner.Desc {
			terms[i] = "ORDERBYDESC" + o.Column
		} else {
			terms[i] = "ORDERBY" + o.Column
		}
	}
	if query == "" {
		return strings.Join(terms, "^")
	}
	return query + "^" + strings.Join(terms, "^")
}

func rowsToBatch(rows []map[string]any) (*batch.Batch, error) {
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
	schema := make(batch.Schema, len(names))
	cols := make([][]any, len(names))
	// ServiceNow's Table API returns every field as a string regardless of
	// its underlying type; the engine's fallback/virtual-join SQL still
	// works against TEXT columns, so no type inference is attempted here.
	for i, name := range names {
		schema[i] = batch.ColumnInfo{Name: name, DataType: batch.String, Nullable: true}
		col := make([]any, len(rows))
		for r, row := range rows {
			col[r] = row[name]
		}
		cols[i] = col
	}
	return batch.Build(schema, cols)
}
