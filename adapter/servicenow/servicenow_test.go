package servicenow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitayan0/WaveQL/adapter"
	"github.com/mitayan0/WaveQL/adapter/httpbase"
	"github.com/mitayan0/WaveQL/httppool"
	"github.com/mitayan0/WaveQL/planner"
	"github.com/mitayan0/WaveQL/retry"
)

func newTestAdapter(t *testing.T, server *httptest.Server) *Adapter {
	t.Helper()
	pool := httppool.New(httppool.DefaultConfig(), nil)
	t.Cleanup(pool.Close)
	retryCtl := retry.New(retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond}, nil)
	client, err := httpbase.New(server.URL, pool, retryCtl, nil)
	require.NoError(t, err)
	return New(Config{Name: "snow", BaseURL: server.URL, Tables: []string{"incident"}}, client, nil, nil)
}

func TestFetchEncodesConditionsWithCaret(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("sysparm_query")
		json.NewEncoder(w).Encode(map[string]any{"result": []map[string]any{{"sys_id": "1", "priority": "1"}}})
	}))
	defer server.Close()

	a := newTestAdapter(t, server)
	_, err := a.Fetch(context.Background(), adapter.FetchPlan{
		Table: "incident",
		Predicates: []planner.Predicate{
			{Column: "priority", Operator: planner.OpEq, Value: "1"},
			{Column: "state", Operator: planner.OpNeq, Value: "closed"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "priority=1^state!=closed", gotQuery)
}

func TestFetchStripsLikeWildcards(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("sysparm_query")
		json.NewEncoder(w).Encode(map[string]any{"result": []map[string]any{}})
	}))
	defer server.Close()

	a := newTestAdapter(t, server)
	_, err := a.Fetch(context.Background(), adapter.FetchPlan{
		Table:      "incident",
		Predicates: []planner.Predicate{{Column: "short_description", Operator: planner.OpLike, Value: "%network%"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "short_descriptionLIKEnetwork", gotQuery)
}

func TestFetchPushesDownOrderBy(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("sysparm_query")
		json.NewEncoder(w).Encode(map[string]any{"result": []map[string]any{}})
	}))
	defer server.Close()

	a := newTestAdapter(t, server)
	_, err := a.Fetch(context.Background(), adapter.FetchPlan{
		Table:   "incident",
		OrderBy: []planner.OrderTerm{{Column: "priority", Direction: planner.Desc}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDERBYDESCpriority", gotQuery)
}

func TestFetchAttachmentRequiresSysID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request: %s", r.URL.Path)
	}))
	defer server.Close()

	a := newTestAdapter(t, server)
	_, err := a.Fetch(context.Background(), adapter.FetchPlan{Table: attachmentTable})
	require.Error(t, err)
}

func TestFetchAttachmentReturnsTwoColumnBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("binary-bytes"))
	}))
	defer server.Close()

	a := newTestAdapter(t, server)
	b, err := a.Fetch(context.Background(), adapter.FetchPlan{
		Table:      attachmentTable,
		Predicates: []planner.Predicate{{Column: "sys_id", Operator: planner.OpEq, Value: "abc123"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, b.RowCount())
	assert.Equal(t, "abc123", b.ColumnByName("sys_id")[0])
	assert.Equal(t, []byte("binary-bytes"), b.ColumnByName("content")[0])
}

func TestUpdateRequiresSysIDPredicate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request")
	}))
	defer server.Close()

	a := newTestAdapter(t, server)
	_, err := a.Update(context.Background(), "incident", map[string]any{"state": "closed"}, nil)
	require.Error(t, err)
}
