package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitayan0/WaveQL/adapter"
	"github.com/mitayan0/WaveQL/batch"
	"github.com/mitayan0/WaveQL/planner"
	"github.com/mitayan0/WaveQL/sqlengine"
	"github.com/mitayan0/WaveQL/waveerrors"
)

// fakeAdapter is a minimal in-memory adapter.Adapter used to exercise the
// engine's branches without a real HTTP source.
type fakeAdapter struct {
	name         string
	rows         *batch.Batch
	pushdownOK   bool
	insertCalls  []map[string]any
	updateCalls  []map[string]any
	deleteCalls  [][]planner.Predicate
	affectedRows int64
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{SupportsPredicatePushdown: f.pushdownOK, SupportsInsert: true, SupportsUpdate: true, SupportsDelete: true}
}

func (f *fakeAdapter) Fetch(ctx context.Context, plan adapter.FetchPlan) (*batch.Batch, error) {
	if !f.pushdownOK && len(plan.Predicates) > 0 && len(plan.Aggregates) > 0 {
		return nil, waveerrors.ErrPushdownUnsupported.New("aggregates unsupported")
	}
	return f.rows, nil
}

func (f *fakeAdapter) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	f.insertCalls = append(f.insertCalls, values)
	return f.affectedRows, nil
}

func (f *fakeAdapter) Update(ctx context.Context, table string, values map[string]any, predicates []planner.Predicate) (int64, error) {
	f.updateCalls = append(f.updateCalls, values)
	return f.affectedRows, nil
}

func (f *fakeAdapter) Delete(ctx context.Context, table string, predicates []planner.Predicate) (int64, error) {
	f.deleteCalls = append(f.deleteCalls, predicates)
	return f.affectedRows, nil
}

func (f *fakeAdapter) GetSchema(ctx context.Context, table string) (batch.Schema, error) {
	return f.rows.Schema(), nil
}

func (f *fakeAdapter) ListTables(ctx context.Context) ([]string, error) {
	return []string{"account"}, nil
}

func sampleRows() *batch.Batch {
	schema := batch.Schema{
		{Name: "id", DataType: batch.Integer},
		{Name: "name", DataType: batch.String},
	}
	b, _ := batch.Build(schema, [][]any{
		{int64(1), int64(2)},
		{"acme", "globex"},
	})
	return b
}

func newTestEngine(t *testing.T, reg *Registry) *Engine {
	t.Helper()
	sqlEng, err := sqlengine.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlEng.Close() })
	return New(reg, sqlEng, nil)
}

func TestExecutePushdownReturnsAdapterBatchDirectly(t *testing.T) {
	reg := NewRegistry()
	a := &fakeAdapter{name: "crm", rows: sampleRows(), pushdownOK: true}
	reg.SetDefault(a)
	e := newTestEngine(t, reg)

	qi := &planner.QueryInfo{Operation: planner.OpSelect, Table: "account", Columns: []string{"*"}, RawSQL: "SELECT * FROM account"}
	res, err := e.Execute(context.Background(), qi, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Batch.RowCount())
}

func TestExecuteMutationInsertCallsAdapter(t *testing.T) {
	reg := NewRegistry()
	a := &fakeAdapter{name: "crm", rows: sampleRows(), affectedRows: 1}
	reg.SetDefault(a)
	e := newTestEngine(t, reg)

	qi := &planner.QueryInfo{
		Operation: planner.OpInsert,
		Table:     "account",
		Values:    map[string]any{"name": planner.ParameterPlaceholder{}},
	}
	res, err := e.Execute(context.Background(), qi, []any{"acme"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.RowsAffected)
	require.Len(t, a.insertCalls, 1)
	assert.Equal(t, "acme", a.insertCalls[0]["name"])
}

func TestExecuteMutationMissingParameterIsQueryError(t *testing.T) {
	reg := NewRegistry()
	a := &fakeAdapter{name: "crm", rows: sampleRows()}
	reg.SetDefault(a)
	e := newTestEngine(t, reg)

	qi := &planner.QueryInfo{
		Operation: planner.OpInsert,
		Table:     "account",
		Values:    map[string]any{"name": planner.ParameterPlaceholder{}},
	}
	_, err := e.Execute(context.Background(), qi, nil)
	require.Error(t, err)
	assert.True(t, waveerrors.ErrQuery.Is(err))
}

func TestExecuteUnresolvedTableIsQueryError(t *testing.T) {
	reg := NewRegistry()
	e := newTestEngine(t, reg)

	qi := &planner.QueryInfo{Operation: planner.OpDelete, Table: "account", Predicates: []planner.Predicate{{Column: "id", Operator: planner.OpEq, Value: int64(1)}}}
	_, err := e.Execute(context.Background(), qi, nil)
	require.Error(t, err)
	assert.True(t, waveerrors.ErrQuery.Is(err))
}

func TestRewriteFromClauseReplacesFirstOccurrenceOnly(t *testing.T) {
	sql := "SELECT * FROM account WHERE name NOT IN (SELECT name FROM account)"
	got := rewriteFromClause(sql, "account", "tmp_abc")
	assert.Equal(t, "SELECT * FROM tmp_abc WHERE name NOT IN (SELECT name FROM account)", got)
}

func TestExecuteRawFallsBackToLocalEngineWithNoAdapter(t *testing.T) {
	reg := NewRegistry()
	e := newTestEngine(t, reg)

	qi := &planner.QueryInfo{Operation: planner.OpRaw, RawSQL: "SELECT 1 AS one"}
	res, err := e.Execute(context.Background(), qi, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Batch.RowCount())
	assert.EqualValues(t, 1, res.Batch.Column(0)[0])
}

// registeredTableCount reports how many real tables (temp or otherwise)
// currently exist in e's local engine, used to assert that fallback and
// virtual-join leave no registered table behind (spec §8 "rewrite safety").
func registeredTableCount(t *testing.T, e *Engine) int {
	t.Helper()
	b, err := e.SQL.Execute(context.Background(), `SELECT count(*) FROM sqlite_master WHERE type IN ('table', 'view')`)
	require.NoError(t, err)
	n, _ := b.Column(0)[0].(int64)
	return int(n)
}

func TestExecuteFallbackUnregistersTempTableOnSuccess(t *testing.T) {
	reg := NewRegistry()
	a := &fakeAdapter{name: "crm", rows: sampleRows(), pushdownOK: false}
	reg.SetDefault(a)
	e := newTestEngine(t, reg)

	before := registeredTableCount(t, e)

	qi := &planner.QueryInfo{
		Operation:  planner.OpSelect,
		Table:      "account",
		Predicates: []planner.Predicate{{Column: "id", Operator: planner.OpEq, Value: int64(1)}},
		Aggregates: []planner.Aggregate{{Func: planner.AggCount, Column: "*", Alias: "cnt"}},
		RawSQL:     "SELECT COUNT(*) AS cnt FROM account WHERE id = 1",
	}
	res, err := e.Execute(context.Background(), qi, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Batch.RowCount())
	assert.EqualValues(t, 1, res.Batch.ColumnByName("cnt")[0])

	assert.Equal(t, before, registeredTableCount(t, e), "fallback must unregister its temp table on success")
}

func TestExecuteFallbackUnregistersTempTableOnError(t *testing.T) {
	reg := NewRegistry()
	a := &fakeAdapter{name: "crm", rows: sampleRows(), pushdownOK: false}
	reg.SetDefault(a)
	e := newTestEngine(t, reg)

	before := registeredTableCount(t, e)

	qi := &planner.QueryInfo{
		Operation:  planner.OpSelect,
		Table:      "account",
		Predicates: []planner.Predicate{{Column: "id", Operator: planner.OpEq, Value: int64(1)}},
		Aggregates: []planner.Aggregate{{Func: planner.AggCount, Column: "*", Alias: "cnt"}},
		RawSQL:     "SELECT COUNT(*) AS cnt FROM account WHERE nonexistent_column = 1",
	}
	_, err := e.Execute(context.Background(), qi, nil)
	require.Error(t, err)
	assert.True(t, waveerrors.ErrQuery.Is(err))

	assert.Equal(t, before, registeredTableCount(t, e), "fallback must unregister its temp table even when the rewritten SQL fails")
}

func TestExecuteVirtualJoinRegistersBothTablesAndUnregistersOnSuccess(t *testing.T) {
	accountSchema := batch.Schema{
		{Name: "id", DataType: batch.Integer},
		{Name: "name", DataType: batch.String},
	}
	accountRows, err := batch.Build(accountSchema, [][]any{
		{int64(1), int64(2)},
		{"acme", "globex"},
	})
	require.NoError(t, err)

	invoiceSchema := batch.Schema{
		{Name: "account_id", DataType: batch.Integer},
		{Name: "amount", DataType: batch.Integer},
	}
	invoiceRows, err := batch.Build(invoiceSchema, [][]any{
		{int64(1), int64(2)},
		{int64(100), int64(200)},
	})
	require.NoError(t, err)

	reg := NewRegistry()
	reg.Register("crm", &fakeAdapter{name: "crm", rows: accountRows, pushdownOK: true})
	reg.Register("billing", &fakeAdapter{name: "billing", rows: invoiceRows, pushdownOK: true})
	e := newTestEngine(t, reg)

	before := registeredTableCount(t, e)

	qi := &planner.QueryInfo{
		Operation: planner.OpSelect,
		Table:     "crm.account",
		Joins:     []planner.Join{{Kind: planner.JoinInner, Table: "billing.invoice"}},
		RawSQL: "SELECT crm.account.name AS name, billing.invoice.amount AS amount " +
			"FROM crm.account JOIN billing.invoice ON crm.account.id = billing.invoice.account_id " +
			"ORDER BY crm.account.id",
	}
	res, err := e.Execute(context.Background(), qi, nil)
	require.NoError(t, err)
	require.Equal(t, 2, res.Batch.RowCount())
	assert.EqualValues(t, -1, res.RowsAffected)
	assert.Equal(t, "acme", res.Batch.ColumnByName("name")[0])
	assert.EqualValues(t, 100, res.Batch.ColumnByName("amount")[0])
	assert.Equal(t, "globex", res.Batch.ColumnByName("name")[1])
	assert.EqualValues(t, 200, res.Batch.ColumnByName("amount")[1])

	assert.Equal(t, before, registeredTableCount(t, e), "virtual join must unregister every table/view it created on success")
}

func TestExecuteVirtualJoinUnregistersOnError(t *testing.T) {
	accountRows := sampleRows()
	reg := NewRegistry()
	reg.Register("crm", &fakeAdapter{name: "crm", rows: accountRows, pushdownOK: true})
	reg.Register("billing", &fakeAdapter{name: "billing", rows: accountRows, pushdownOK: true})
	e := newTestEngine(t, reg)

	before := registeredTableCount(t, e)

	qi := &planner.QueryInfo{
		Operation: planner.OpSelect,
		Table:     "crm.account",
		Joins:     []planner.Join{{Kind: planner.JoinInner, Table: "billing.invoice"}},
		RawSQL:    "SELECT crm.account.nonexistent_column FROM crm.account JOIN billing.invoice ON crm.account.id = billing.invoice.id",
	}
	_, err := e.Execute(context.Background(), qi, nil)
	require.Error(t, err)
	assert.True(t, waveerrors.ErrQuery.Is(err))

	assert.Equal(t, before, registeredTableCount(t, e), "virtual join must unregister every table/view it created even when the join SQL fails")
}
