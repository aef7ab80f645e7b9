// Package jira implements the JQL-like ticketing wire format from spec §6:
// POST /rest/api/3/search with a JQL body, startAt/maxResults paging until
// total is reached, and POST/PUT/DELETE on /rest/api/3/issue[/{key}] for
// writes.
package jira

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mitayan0/WaveQL/adapter"
	"github.com/mitayan0/WaveQL/adapter/httpbase"
	"github.com/mitayan0/WaveQL/batch"
	"github.com/mitayan0/WaveQL/planner"
	"github.com/mitayan0/WaveQL/schemacache"
	"github.com/mitayan0/WaveQL/waveerrors"
)

const defaultSchemaTTL = 300_000_000_000 // 5 minutes, expressed in time.Duration's ns units

// Config configures the adapter. Issues are the only table with real JQL
// search semantics; Endpoints names the simple list endpoints (projects,
// users, issue types) that take no filter.
type Config struct {
	Name        string
	BaseURL     string
	MaxResults  int
	Endpoints   map[string]string // table name -> simple GET path
	IssuesTable string            // defaults to "issue"
}

// Adapter implements adapter.Adapter against Jira's REST v3 API.
type Adapter struct {
	cfg    Config
	client *httpbase.Client
	cache  *schemacache.Cache
	log    logrus.FieldLogger
}

// New builds a Jira adapter. cache may be nil to disable schema caching.
func New(cfg Config, client *httpbase.Client, cache *schemacache.Cache, log logrus.FieldLogger) *Adapter {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 50
	}
	if cfg.IssuesTable == "" {
		cfg.IssuesTable = "issue"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Adapter{cfg: cfg, client: client, cache: cache, log: log}
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

type searchRequest struct {
	JQL        string   `json:"jql"`
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields,omitempty"`
}

type searchResponse struct {
	StartAt    int              `json:"startAt"`
	MaxResults int              `json:"maxResults"`
	Total      int              `json:"total"`
	Issues     []map[string]any `json:"issues"`
}

func (a *Adapter) Fetch(ctx context.Context, plan adapter.FetchPlan) (*batch.Batch, error) {
	if plan.Table != a.cfg.IssuesTable {
		return a.fetchSimpleEndpoint(ctx, plan)
	}
	if len(plan.Aggregates) > 0 || len(plan.GroupBy) > 0 {
		return nil, waveerrors.ErrPushdownUnsupported.New("jira adapter cannot compute aggregates")
	}

	jql := toJQL(plan.Predicates, plan.OrderBy)
	maxResults := a.cfg.MaxResults
	if plan.HasLimit && plan.Limit < maxResults {
		maxResults = plan.Limit
	}

	var allIssues []map[string]any
	startAt := 0
	for {
		req := searchRequest{JQL: jql, StartAt: startAt, MaxResults: maxResults}
		if len(plan.Columns) > 0 && plan.Columns[0] != "*" {
			req.Fields = plan.Columns
		}
		var resp searchResponse
		_, _, err := a.client.Do(ctx, http.MethodPost, "/rest/api/3/search", nil, req, &resp)
		if err != nil {
			return nil, err
		}
		allIssues = append(allIssues, resp.Issues...)
		startAt += len(resp.Issues)

		if plan.HasLimit && len(allIssues) >= plan.Limit {
			break
		}
		if len(resp.Issues) == 0 || startAt >= resp.Total {
			break
		}
	}

	if plan.HasLimit && len(allIssues) > plan.Limit {
		allIssues = allIssues[:plan.Limit]
	}
	return rowsToBatch(allIssues)
}

func (a *Adapter) fetchSimpleEndpoint(ctx context.Context, plan adapter.FetchPlan) (*batch.Batch, error) {
	path, ok := a.cfg.Endpoints[plan.Table]
	if !ok {
		return nil, waveerrors.ErrQuery.New(fmt.Sprintf("unknown table %q", plan.Table))
	}
	if len(plan.Predicates) > 0 || len(plan.Aggregates) > 0 || len(plan.GroupBy) > 0 ||
		len(plan.OrderBy) > 0 || plan.HasLimit || plan.HasOffset {
		return nil, waveerrors.ErrPushdownUnsupported.New("simple jira endpoints accept no filter, aggregation, ordering or paging")
	}
	var values []map[string]any
	_, _, err := a.client.Do(ctx, http.MethodGet, path, nil, nil, &values)
	if err != nil {
		return nil, err
	}
	return rowsToBatch(values)
}

func (a *Adapter) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	if table != a.cfg.IssuesTable {
		return 0, waveerrors.ErrUnsupportedOperation.New(a.Name(), "insert on "+table)
	}
	_, _, err := a.client.Do(ctx, http.MethodPost, "/rest/api/3/issue", nil, map[string]any{"fields": values}, nil)
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func (a *Adapter) Update(ctx context.Context, table string, values map[string]any, predicates []planner.Predicate) (int64, error) {
	if table != a.cfg.IssuesTable {
		return 0, waveerrors.ErrUnsupportedOperation.New(a.Name(), "update on "+table)
	}
	key, err := requireKeyPredicate(predicates)
	if err != nil {
		return 0, err
	}
	_, _, err = a.client.Do(ctx, http.MethodPut, "/rest/api/3/issue/"+key, nil, map[string]any{"fields": values}, nil)
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func (a *Adapter) Delete(ctx context.Context, table string, predicates []planner.Predicate) (int64, error) {
	if table != a.cfg.IssuesTable {
		return 0, waveerrors.ErrUnsupportedOperation.New(a.Name(), "delete on "+table)
	}
	key, err := requireKeyPredicate(predicates)
	if err != nil {
		return 0, err
	}
	_, _, err = a.client.Do(ctx, http.MethodDelete, "/rest/api/3/issue/"+key, nil, nil, nil)
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func (a *Adapter) GetSchema(ctx context.Context, table string) (batch.Schema, error) {
	if a.cache != nil {
		if s, ok := a.cache.Get(a.Name(), table); ok {
			return s, nil
		}
	}

	if table != a.cfg.IssuesTable {
		path, ok := a.cfg.Endpoints[table]
		if !ok {
			return nil, waveerrors.ErrSchema.New(fmt.Sprintf("unknown table %q", table))
		}
		var values []map[string]any
		if _, _, err := a.client.Do(ctx, http.MethodGet, path, nil, nil, &values); err != nil {
			return nil, waveerrors.ErrSchema.New(err.Error())
		}
		b, err := rowsToBatch(values)
		if err != nil {
			return nil, waveerrors.ErrSchema.New(err.Error())
		}
		if a.cache != nil {
			a.cache.Set(a.Name(), table, b.Schema(), defaultSchemaTTL)
		}
		return b.Schema(), nil
	}

	var resp searchResponse
	_, _, err := a.client.Do(ctx, http.MethodPost, "/rest/api/3/search", nil, searchRequest{JQL: "", StartAt: 0, MaxResults: 1}, &resp)
	if err != nil {
		return nil, waveerrors.ErrSchema.New(err.Error())
	}
	b, err := rowsToBatch(resp.Issues)
	if err != nil {
		return nil, waveerrors.ErrSchema.New(err.Error())
	}
	if a.cache != nil {
		a.cache.Set(a.Name(), table, b.Schema(), defaultSchemaTTL)
	}
	return b.Schema(), nil
}

func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	names := []string{a.cfg.IssuesTable}
	for name := range a.cfg.Endpoints {
		names = append(names, name)
	}
	return names, nil
}

func requireKeyPredicate(predicates []planner.Predicate) (string, error) {
	for _, p := range predicates {
		if p.Column == "key" && p.Operator == planner.OpEq {
			return fmt.Sprint(p.Value), nil
		}
	}
	return "", waveerrors.ErrQuery.New("mutation on issue requires an equality predicate on key")
}

// toJQL renders predicates and an ORDER BY clause into a JQL string.
// Equality, comparison, LIKE (~), IN, and IS [NOT] NULL all have direct JQL
// equivalents.
func toJQL(predicates []planner.Predicate, orderBy []planner.OrderTerm) string {
	clauses := make([]string, 0, len(predicates))
	for _, p := range predicates {
		switch p.Operator {
		case planner.OpEq:
			clauses = append(clauses, fmt.Sprintf("%s = %s", p.Column, jqlLiteral(p.Value)))
		case planner.OpNeq:
			clauses = append(clauses, fmt.Sprintf("%s != %s", p.Column, jqlLiteral(p.Value)))
		case planner.OpLt:
			clauses = append(clauses, fmt.Sprintf("%s < %s", p.Column, jqlLiteral(p.Value)))
		case planner.OpLte:
			clauses = append(clauses, fmt.Sprintf("%s <= %s", p.Column, jqlLiteral(p.Value)))
		case planner.OpGt:
			clauses = append(clauses, fmt.Sprintf("%s > %s", p.Column, jqlLiteral(p.Value)))
		case planner.OpGte:
			clauses = append(clauses, fmt.Sprintf("%s >= %s", p.Column, jqlLiteral(p.Value)))
		case planner.OpLike:
			clauses = append(clauses, fmt.Sprintf("%s ~ %s", p.Column, jqlLiteral(likeToJQL(p.Value))))
		case planner.OpIn:
			values, _ := p.Value.([]any)
			strs := make([]string, len(values))
			for i, v := range values {
				strs[i] = jqlLiteral(v)
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", p.Column, strings.Join(strs, ", ")))
		case planner.OpIsNull:
			clauses = append(clauses, p.Column+" IS EMPTY")
		case planner.OpIsNotNull:
			clauses = append(clauses, p.Column+" IS NOT EMPTY")
		}
	}
	jql := strings.Join(clauses, " AND ")
	if len(orderBy) > 0 {
		terms := make([]string, len(orderBy))
		for i, o := range orderBy {
			terms[i] = fmt.Sprintf("%s %s", o.Column, o.Direction)
		}
		jql += " ORDER BY " + strings.Join(terms, ", ")
	}
	return jql
}

// likeToJQL translates SQL LIKE wildcards into JQL's "~" text-search
// syntax: "%" (any run of characters) is dropped since "~" already matches
// a substring, and "_" (any single character) becomes JQL's "?" wildcard.
func likeToJQL(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.ReplaceAll(s, "%", "")
	s = strings.ReplaceAll(s, "_", "?")
	return s
}

func jqlLiteral(v any) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	default:
		return fmt.Sprint(t)
	}
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
	for i, name := range names {
		schema[i] = batch.ColumnInfo{Name: name, DataType: inferType(rows, name), Nullable: true}
		col := make([]any, len(rows))
		for r, row := range rows {
			col[r] = row[name]
		}
		cols[i] = col
	}
	return batch.Build(schema, cols)
}

func inferType(rows []map[string]any, name string) batch.DataType {
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
