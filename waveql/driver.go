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
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"

	"github.com/mitayan0/WaveQL/adapter"
	"github.com/mitayan0/WaveQL/auth"
	"github.com/mitayan0/WaveQL/engine"
	"github.com/mitayan0/WaveQL/waveerrors"
)

// AdapterFactory builds the adapter that serves a DSN's scheme (spec §6
// "Connection string ... scheme selects the adapter"). Callers wire one
// scheme per adapter package they use (e.g. "servicenow" -> servicenow.New).
type AdapterFactory func(dsn *DSN) (adapter.Adapter, error)

var (
	factoriesMu sync.Mutex
	factories   = map[string]AdapterFactory{}
)

// RegisterAdapter binds scheme to factory so Open("scheme://...") resolves
// to an adapter built from that DSN. Mirrors database/sql.Register's
// init()-time registration idiom.
func RegisterAdapter(scheme string, factory AdapterFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[scheme] = factory
}

func lookupAdapter(scheme string) (AdapterFactory, bool) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	f, ok := factories[scheme]
	return f, ok
}

// Driver implements database/sql/driver.Driver, routing each DSN scheme to
// its registered adapter (spec §6 "External interfaces").
type Driver struct {
	mu    sync.Mutex
	Auth  auth.Auth
	Audit auth.AuditMethod
}

var defaultDriver = &Driver{}

func init() {
	sql.Register("waveql", defaultDriver)
}

// SetAuth configures the Auth the default "waveql" driver checks DSN
// credentials and statement permissions against. A nil Auth (the default)
// is treated as auth.None{} — everyone authenticates, everyone may do
// anything.
func SetAuth(a auth.Auth) {
	defaultDriver.mu.Lock()
	defer defaultDriver.mu.Unlock()
	defaultDriver.Auth = a
}

// SetAudit configures the AuditMethod the default "waveql" driver reports
// authentication/authorization/query events to.
func SetAudit(m auth.AuditMethod) {
	defaultDriver.mu.Lock()
	defer defaultDriver.mu.Unlock()
	defaultDriver.Audit = m
}

// Open parses name as a WaveQL connection string, resolves its adapter,
// authenticates the DSN's credentials, and returns a ready Conn.
func (d *Driver) Open(name string) (driver.Conn, error) {
	dsn, err := ParseDSN(name)
	if err != nil {
		return nil, err
	}

	factory, ok := lookupAdapter(dsn.Scheme)
	if !ok {
		return nil, waveerrors.ErrConfiguration.New(fmt.Sprintf("no adapter registered for scheme %q", dsn.Scheme))
	}
	a, err := factory(dsn)
	if err != nil {
		return nil, err
	}

	registry := engine.NewRegistry()
	registry.SetDefault(a)

	d.mu.Lock()
	auther, audit := d.Auth, d.Audit
	d.mu.Unlock()

	return newConn(registry, dsn.Username, dsn.Password, auther, audit)
}

// OpenConnector satisfies driver.DriverContext, allowing sql.OpenDB(connector)
// to bypass the package-level factory registry for programmatic setups that
// build their own multi-adapter engine.Registry directly.
func (d *Driver) OpenConnector(name string) (driver.Connector, error) {
	return &connector{driver: d, name: name}, nil
}

type connector struct {
	driver *Driver
	name   string
}

func (c *connector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.name)
}

func (c *connector) Driver() driver.Driver {
	return c.driver
}
