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
	"database/sql/driver"
	"sync"

	"github.com/mitayan0/WaveQL/auth"
	"github.com/mitayan0/WaveQL/engine"
	"github.com/mitayan0/WaveQL/sqlengine"
)

// Conn is one connection: a local analytical engine instance plus the
// adapter registry it executes against. Per spec §5 "the local analytical
// engine's connection is per-cursor (or per-connection)", each Conn owns
// its own *sqlengine.Engine; the adapter Registry is shared (spec §5
// "Adapter instances are safe for concurrent read calls").
type Conn struct {
	registry *engine.Registry
	eng      *engine.Engine
	sql      *sqlengine.Engine

	user  string
	auth  auth.Auth
	audit auth.AuditMethod

	// mu serialises execute on this connection (spec §5 "execute MUST
	// complete before another execute begins on the same cursor").
	mu sync.Mutex
}

// newConn builds a Conn over registry with a fresh local analytical engine,
// gated by a (user, password) pair against auther. A nil auther defaults to
// auth.None{} (spec §6 treats credential acquisition internals as out of
// scope; this is the minimal gate left once that's assumed done upstream).
func newConn(registry *engine.Registry, user, password string, auther auth.Auth, audit auth.AuditMethod) (*Conn, error) {
	if auther == nil {
		auther = &auth.None{}
	}
	if err := auther.Authenticate(user, password); err != nil {
		return nil, err
	}

	sqlEng, err := sqlengine.New()
	if err != nil {
		return nil, err
	}
	return &Conn{
		registry: registry,
		eng:      engine.New(registry, sqlEng, nil),
		sql:      sqlEng,
		user:     user,
		auth:     auther,
		audit:    audit,
	}, nil
}

// Prepare validates nothing up front (the planner never fails to produce a
// QueryInfo; unparseable SQL becomes OpRaw) and returns a Stmt bound to
// queryStr.
func (c *Conn) Prepare(queryStr string) (driver.Stmt, error) {
	return &Stmt{conn: c, queryStr: queryStr}, nil
}

// Close releases the connection's local analytical engine.
func (c *Conn) Close() error {
	return c.sql.Close()
}

// Begin returns a no-op transaction; cross-adapter transactional writes are
// explicitly out of scope (SPEC_FULL.md §6 Non-goals).
func (c *Conn) Begin() (driver.Tx, error) {
	return noopTx{}, nil
}

type noopTx struct{}

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }
