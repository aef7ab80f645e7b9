package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitayan0/WaveQL/adapter"
	"github.com/mitayan0/WaveQL/planner"
	"github.com/mitayan0/WaveQL/schemacache"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestAdapter(t *testing.T, tables map[string]TableConfig) *Adapter {
	t.Helper()
	a, err := New(Config{Name: "files", Tables: tables}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestFetchCSVInfersTypesAndFilters(t *testing.T) {
	path := writeTempFile(t, "accounts.csv", "id,name,amount\n1,acme,10.5\n2,globex,20\n")
	a := newTestAdapter(t, map[string]TableConfig{
		"account": {Path: path, Format: FormatCSV, HasHeader: true},
	})

	b, err := a.Fetch(context.Background(), adapter.FetchPlan{
		Table:      "account",
		Predicates: []planner.Predicate{{Column: "name", Operator: planner.OpEq, Value: "acme"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, b.RowCount())
	assert.EqualValues(t, 1, b.ColumnByName("id")[0])
	assert.InDelta(t, 10.5, b.ColumnByName("amount")[0], 0.0001)
}

func TestFetchCSVPushesDownOrderBy(t *testing.T) {
	path := writeTempFile(t, "accounts.csv", "id,name,amount\n1,acme,10.5\n2,globex,20\n3,initech,5\n")
	a := newTestAdapter(t, map[string]TableConfig{
		"account": {Path: path, Format: FormatCSV, HasHeader: true},
	})

	b, err := a.Fetch(context.Background(), adapter.FetchPlan{
		Table:   "account",
		OrderBy: []planner.OrderTerm{{Column: "amount", Direction: planner.Asc}},
	})
	require.NoError(t, err)
	require.Equal(t, 3, b.RowCount())
	assert.EqualValues(t, 3, b.ColumnByName("id")[0])
	assert.EqualValues(t, 1, b.ColumnByName("id")[1])
	assert.EqualValues(t, 2, b.ColumnByName("id")[2])
}

func TestFetchCSVComputesGroupedAggregate(t *testing.T) {
	path := writeTempFile(t, "accounts.csv", "region,amount\neast,10\neast,20\nwest,5\n")
	a := newTestAdapter(t, map[string]TableConfig{
		"account": {Path: path, Format: FormatCSV, HasHeader: true},
	})

	b, err := a.Fetch(context.Background(), adapter.FetchPlan{
		Table:      "account",
		GroupBy:    []string{"region"},
		Aggregates: []planner.Aggregate{{Func: planner.AggSum, Column: "amount", Alias: "total"}},
		OrderBy:    []planner.OrderTerm{{Column: "region", Direction: planner.Asc}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, b.RowCount())
	assert.Equal(t, "east", b.ColumnByName("region")[0])
	assert.EqualValues(t, 30, b.ColumnByName("total")[0])
	assert.Equal(t, "west", b.ColumnByName("region")[1])
	assert.EqualValues(t, 5, b.ColumnByName("total")[1])
}

func TestInsertAppendsCSVRow(t *testing.T) {
	path := writeTempFile(t, "accounts.csv", "id,name\n1,acme\n")
	a := newTestAdapter(t, map[string]TableConfig{
		"account": {Path: path, Format: FormatCSV, HasHeader: true},
	})

	n, err := a.Insert(context.Background(), "account", map[string]any{"id": "2", "name": "globex"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	b, err := a.Fetch(context.Background(), adapter.FetchPlan{Table: "account"})
	require.NoError(t, err)
	assert.Equal(t, 2, b.RowCount())
}

func TestFetchJSONReadsArrayOfObjects(t *testing.T) {
	path := writeTempFile(t, "accounts.json", `[{"id":1,"name":"acme"},{"id":2,"name":"globex"}]`)
	a := newTestAdapter(t, map[string]TableConfig{
		"account": {Path: path, Format: FormatJSON},
	})

	b, err := a.Fetch(context.Background(), adapter.FetchPlan{Table: "account"})
	require.NoError(t, err)
	assert.Equal(t, 2, b.RowCount())
}

func TestUpdateUnsupported(t *testing.T) {
	a := newTestAdapter(t, map[string]TableConfig{})
	_, err := a.Update(context.Background(), "account", nil, nil)
	require.Error(t, err)
}

func TestGetSchemaUsesCache(t *testing.T) {
	path := writeTempFile(t, "accounts.csv", "id,name\n1,acme\n")
	cache := schemacache.New()
	a, err := New(Config{Name: "files", Tables: map[string]TableConfig{
		"account": {Path: path, Format: FormatCSV, HasHeader: true},
	}}, cache, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	schema, err := a.GetSchema(context.Background(), "account")
	require.NoError(t, err)
	require.NotEmpty(t, schema)

	require.NoError(t, os.Remove(path))

	cached, err := a.GetSchema(context.Background(), "account")
	require.NoError(t, err)
	assert.Equal(t, schema, cached)
}
