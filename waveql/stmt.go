// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package waveql

import (
	"context"
	"database/sql/driver"
	"time"

	"github.com/mitayan0/WaveQL/auth"
	"github.com/mitayan0/WaveQL/planner"
)

// Stmt is a prepared statement: the raw SQL text plus the connection it will
// execute against. WaveQL has no server-side prepare (spec §4.1 "the planner
// runs fresh for every execute"), so Prepare only stores queryStr.
type Stmt struct {
	conn     *Conn
	queryStr string
}

// Close does nothing; there is no server-side resource to release.
func (s *Stmt) Close() error {
	return nil
}

// NumInput reports that the driver does not know its placeholder count
// up front — the planner discovers placeholders while parsing.
func (s *Stmt) NumInput() int {
	return -1
}

// Exec executes a statement that doesn't return rows, such as INSERT,
// UPDATE, or DELETE.
func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.exec(context.Background(), valuesToParams(args))
}

// Query executes a statement that may return rows, such as SELECT.
func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.query(context.Background(), valuesToParams(args))
}

// ExecContext executes a statement that doesn't return rows.
func (s *Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.exec(ctx, namedValuesToParams(args))
}

// QueryContext executes a statement that may return rows.
func (s *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.query(ctx, namedValuesToParams(args))
}

func (s *Stmt) exec(ctx context.Context, params []any) (driver.Result, error) {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	qi := planner.New(nil).Parse(s.queryStr)
	if err := s.checkPermission(qi); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.conn.eng.Execute(ctx, qi, params)
	s.audit(start, err)
	if err != nil {
		return nil, err
	}
	return &Result{rowsAffected: res.RowsAffected}, nil
}

func (s *Stmt) query(ctx context.Context, params []any) (driver.Rows, error) {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	qi := planner.New(nil).Parse(s.queryStr)
	if err := s.checkPermission(qi); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.conn.eng.Execute(ctx, qi, params)
	s.audit(start, err)
	if err != nil {
		return nil, err
	}
	b := res.Batch
	if b == nil {
		b = emptyBatch()
	}
	return &Rows{b: b}, nil
}

// checkPermission enforces the connection's Auth before the engine sees the
// statement (spec §6 leaves credential acquisition out of scope; this is
// the authorization check left on this side of that boundary).
func (s *Stmt) checkPermission(qi *planner.QueryInfo) error {
	if s.conn.auth == nil {
		return nil
	}
	return s.conn.auth.Allowed(s.conn.user, auth.PermissionFor(qi.Operation))
}

func (s *Stmt) audit(start time.Time, err error) {
	if s.conn.audit == nil {
		return
	}
	s.conn.audit.Query(s.conn.user, s.queryStr, time.Since(start), err)
}
