package jira

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
	return New(Config{Name: "jira", BaseURL: server.URL}, client, nil, nil)
}

func TestFetchIssuesBuildsJQLAndPages(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		json.NewDecoder(r.Body).Decode(&req)
		calls++
		if req.StartAt == 0 {
			json.NewEncoder(w).Encode(searchResponse{StartAt: 0, MaxResults: 2, Total: 3, Issues: []map[string]any{
				{"key": "A-1"}, {"key": "A-2"},
			}})
			return
		}
		json.NewEncoder(w).Encode(searchResponse{StartAt: 2, MaxResults: 2, Total: 3, Issues: []map[string]any{
			{"key": "A-3"},
		}})
	}))
	defer server.Close()

	a := newTestAdapter(t, server)
	a.cfg.MaxResults = 2
	b, err := a.Fetch(context.Background(), adapter.FetchPlan{
		Table:      "issue",
		Predicates: []planner.Predicate{{Column: "project", Operator: planner.OpEq, Value: "WAVE"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, b.RowCount())
	assert.Equal(t, 2, calls)
}

func TestToJQLRendersEqualityAndOrder(t *testing.T) {
	jql := toJQL(
		[]planner.Predicate{{Column: "project", Operator: planner.OpEq, Value: "WAVE"}},
		[]planner.OrderTerm{{Column: "created", Direction: planner.Desc}},
	)
	assert.Equal(t, `project = "WAVE" ORDER BY created DESC`, jql)
}

func TestToJQLStripsLikeWildcards(t *testing.T) {
	jql := toJQL(
		[]planner.Predicate{{Column: "summary", Operator: planner.OpLike, Value: "%lap_top%"}},
		nil,
	)
	assert.Equal(t, `summary ~ "lap?top"`, jql)
}

func TestUpdateRequiresKeyPredicate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request")
	}))
	defer server.Close()

	a := newTestAdapter(t, server)
	_, err := a.Update(context.Background(), "issue", map[string]any{"summary": "x"}, nil)
	require.Error(t, err)
}
