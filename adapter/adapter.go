// Package adapter declares the fetch/mutate contract every source
// implements (spec §4.2): the file, REST, ServiceNow, and Jira adapters in
// the sibling packages all satisfy it. This replaces the original's
// duck-typed BaseAdapter subclassing with an explicit Go interface plus an
// enumerated capability struct, per SPEC_FULL.md §2 "Runtime duck-typed
// adapters become an explicit adapter contract".
package adapter

import (
	"context"

	"github.com/mitayan0/WaveQL/batch"
	"github.com/mitayan0/WaveQL/planner"
)

// FetchPlan mirrors the subset of a QueryInfo relevant to a read: the
// engine builds one per pushdown attempt.
type FetchPlan struct {
	Table      string
	Columns    []string
	Predicates []planner.Predicate
	Limit      int
	HasLimit   bool
	Offset     int
	HasOffset  bool
	OrderBy    []planner.OrderTerm
	GroupBy    []string
	Aggregates []planner.Aggregate
}

// Capabilities is the enumerated, inspectable set of optional operations an
// adapter supports. The engine branches on these flags, never on the
// absence of a method (SPEC_FULL.md §2).
type Capabilities struct {
	SupportsPredicatePushdown bool
	SupportsInsert            bool
	SupportsUpdate            bool
	SupportsDelete            bool
	SupportsBatch             bool
}

// Adapter is the contract every source implementation satisfies.
//
// Pushdown is best-effort: when an adapter cannot honour some part of plan
// (an aggregation it can't compute, an ORDER BY it can't apply, and so on)
// it MUST return ErrPushdownUnsupported rather than silently dropping that
// part of the plan and returning wrong rows (spec §4.2).
type Adapter interface {
	// Name identifies the adapter for schema-cache keys and logging.
	Name() string

	Capabilities() Capabilities

	// Fetch reads rows honouring as much of plan as the adapter can. On
	// partial or total pushdown failure it returns an error satisfying
	// waveerrors.ErrPushdownUnsupported.Is; the engine handles that
	// internally via the fallback path and it must never reach a caller.
	Fetch(ctx context.Context, plan FetchPlan) (*batch.Batch, error)

	// Insert inserts a single row. Returns waveerrors.ErrQuery if a
	// required identifying field is missing, or an error satisfying
	// ErrUnsupportedOperation.Is if Capabilities().SupportsInsert is false.
	Insert(ctx context.Context, table string, values map[string]any) (rowsAffected int64, err error)

	// Update applies values to rows matching predicates. Adapters MUST
	// reject calls missing the resource's required identifying predicate
	// with waveerrors.ErrQuery (spec §4.2).
	Update(ctx context.Context, table string, values map[string]any, predicates []planner.Predicate) (rowsAffected int64, err error)

	// Delete removes rows matching predicates, same identifying-predicate
	// requirement as Update.
	Delete(ctx context.Context, table string, predicates []planner.Predicate) (rowsAffected int64, err error)

	// GetSchema discovers a table's columns, using the schema cache when
	// one is configured.
	GetSchema(ctx context.Context, table string) (batch.Schema, error)

	// ListTables enumerates the resources this adapter exposes.
	ListTables(ctx context.Context) ([]string, error)
}
