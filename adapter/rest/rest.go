// Package rest implements the generic REST adapter from spec §6: a
// per-endpoint configuration of path, id field, and filter capability, with
// equality predicates pushed down as query parameters where the endpoint
// supports it and evaluated client-side otherwise.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/mitayan0/WaveQL/adapter"
	"github.com/mitayan0/WaveQL/adapter/httpbase"
	"github.com/mitayan0/WaveQL/batch"
	"github.com/mitayan0/WaveQL/pagefetch"
	"github.com/mitayan0/WaveQL/planner"
	"github.com/mitayan0/WaveQL/schemacache"
	"github.com/mitayan0/WaveQL/waveerrors"
)

// FilterFormat is the closed set of ways an endpoint accepts filters.
type FilterFormat string

const (
	// FilterQuery means equality predicates become query parameters.
	FilterQuery FilterFormat = "query"
	// FilterNone means the endpoint accepts no server-side filter at all;
	// every predicate is evaluated client-side.
	FilterNone FilterFormat = "none"
)

// EndpointConfig describes one logical table's REST binding (spec §6
// "Generic REST: per-endpoint config {path, id_field, filter_format,
// supports_filter}").
type EndpointConfig struct {
	Path           string
	IDField        string
	FilterFormat   FilterFormat
	SupportsFilter bool
}

// Config configures the adapter.
type Config struct {
	Name        string
	BaseURL     string
	Endpoints   map[string]EndpointConfig
	PageSize    int
	MaxParallel int
}

// Adapter implements adapter.Adapter against a collection of per-table REST
// endpoints sharing one base URL.
type Adapter struct {
	cfg     Config
	client  *httpbase.Client
	cache   *schemacache.Cache
	fetcher *pagefetch.Fetcher
	log     logrus.FieldLogger
}

// New builds a REST adapter. cache may be nil to disable schema caching.
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
	return &Adapter{
		cfg:     cfg,
		client:  client,
		cache:   cache,
		fetcher: pagefetch.New(cfg.PageSize, cfg.MaxParallel),
		log:     log,
	}
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		SupportsPredicatePushdown: true,
		SupportsInsert:            true,
		SupportsUpdate:            true,
		SupportsDelete:            true,
		SupportsBatch:             false,
	}
}

func (a *Adapter) endpoint(table string) (EndpointConfig, error) {
	ep, ok := a.cfg.Endpoints[table]
	if !ok {
		return EndpointConfig{}, waveerrors.ErrQuery.New(fmt.Sprintf("unknown table %q", table))
	}
	return ep, nil
}

// Fetch implements adapter.Adapter. Aggregation and GROUP BY are never
// supported by the generic REST binding, so they always raise
// PushdownUnsupported and let the engine fall back to the local analytical
// engine (spec §4.3 step 3).
func (a *Adapter) Fetch(ctx context.Context, plan adapter.FetchPlan) (*batch.Batch, error) {
	ep, err := a.endpoint(plan.Table)
	if err != nil {
		return nil, err
	}
	if len(plan.Aggregates) > 0 || len(plan.GroupBy) > 0 || len(plan.OrderBy) > 0 {
		return nil, waveerrors.ErrPushdownUnsupported.New("generic REST adapter supports neither aggregation nor server-side ordering")
	}

	baseQuery := url.Values{}
	var clientPredicates []planner.Predicate
	for _, p := range plan.Predicates {
		if p.Operator == planner.OpEq && ep.SupportsFilter && ep.FilterFormat == FilterQuery {
			baseQuery.Set(p.Column, fmt.Sprint(p.Value))
			continue
		}
		clientPredicates = append(clientPredicates, p)
	}

	fetchPage := func(ctx context.Context, page int) (*batch.Batch, error) {
		q := cloneValues(baseQuery)
		q.Set("limit", strconv.Itoa(a.cfg.PageSize))
		q.Set("offset", strconv.Itoa(page*a.cfg.PageSize))
		var rows []map[string]any
		_, _, err := a.client.Do(ctx, http.MethodGet, ep.Path, q, nil, &rows)
		if err != nil {
			return nil, err
		}
		return rowsToBatch(rows)
	}

	// LIMIT only bounds the page fetch when every predicate was pushed to the
	// endpoint; otherwise it is applied below, after client-side filtering.
	hasLimit := plan.HasLimit && len(clientPredicates) == 0
	limit := plan.Limit
	if plan.HasOffset && hasLimit {
		limit += plan.Offset
	}

	result, err := a.fetcher.Fetch(ctx, hasLimit, limit, fetchPage)
	if err != nil {
		return nil, err
	}

	result, err = adapter.ApplyPredicates(result, clientPredicates)
	if err != nil {
		return nil, err
	}

	if plan.HasOffset {
		end := result.RowCount()
		if plan.HasLimit && plan.Offset+plan.Limit < end {
			end = plan.Offset + plan.Limit
		}
		result = result.Slice(plan.Offset, end)
	} else if plan.HasLimit && result.RowCount() > plan.Limit {
		result = result.Slice(0, plan.Limit)
	}
	return result, nil
}

func (a *Adapter) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	ep, err := a.endpoint(table)
	if err != nil {
		return 0, err
	}
	_, _, err = a.client.Do(ctx, http.MethodPost, ep.Path, nil, values, nil)
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func (a *Adapter) Update(ctx context.Context, table string, values map[string]any, predicates []planner.Predicate) (int64, error) {
	ep, err := a.endpoint(table)
	if err != nil {
		return 0, err
	}
	id, err := requireIDPredicate(ep, predicates)
	if err != nil {
		return 0, err
	}
	path := fmt.Sprintf("%s/%v", ep.Path, id)
	_, _, err = a.client.Do(ctx, http.MethodPatch, path, nil, values, nil)
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func (a *Adapter) Delete(ctx context.Context, table string, predicates []planner.Predicate) (int64, error) {
	ep, err := a.endpoint(table)
	if err != nil {
		return 0, err
	}
	id, err := requireIDPredicate(ep, predicates)
	if err != nil {
		return 0, err
	}
	path := fmt.Sprintf("%s/%v", ep.Path, id)
	_, _, err = a.client.Do(ctx, http.MethodDelete, path, nil, nil, nil)
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
	ep, err := a.endpoint(table)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("limit", "1")
	var rows []map[string]any
	_, _, err = a.client.Do(ctx, http.MethodGet, ep.Path, q, nil, &rows)
	if err != nil {
		return nil, waveerrors.ErrSchema.New(err.Error())
	}
	b, err := rowsToBatch(rows)
	if err != nil {
		return nil, waveerrors.ErrSchema.New(err.Error())
	}
	if a.cache != nil {
		a.cache.Set(a.Name(), table, b.Schema(), defaultSchemaTTL)
	}
	return b.Schema(), nil
}

func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(a.cfg.Endpoints))
	for name := range a.cfg.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func requireIDPredicate(ep EndpointConfig, predicates []planner.Predicate) (any, error) {
	for _, p := range predicates {
		if p.Column == ep.IDField && p.Operator == planner.OpEq {
			return p.Value, nil
		}
	}
	return nil, waveerrors.ErrQuery.New(fmt.Sprintf("mutation on %q requires an equality predicate on %q", ep.Path, ep.IDField))
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// rowsToBatch infers a schema from the union of keys across rows (sorted for
// determinism) and builds a Batch, matching how a schemaless JSON REST
// response becomes a columnar result.
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
	sort.Strings(names)

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

const defaultSchemaTTL = 300_000_000_000 // 5 minutes, expressed in time.Duration's ns units
