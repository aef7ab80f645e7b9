// Package waveql is the root package: connection-string parsing and the
// database/sql driver that fronts the execution engine, adapted from the
// teacher's driver package (spec §6 "External interfaces").
package waveql

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mitayan0/WaveQL/waveerrors"
)

// DSN is a parsed connection string: scheme://[user:pass@]host[:port][/path][?k=v&...]
// (spec §6 "Connection string"). scheme selects the adapter; for the
// special case scheme "file", Path carries the literal filesystem path and
// Host/Port/Username/Password are unused.
type DSN struct {
	Scheme   string
	Host     string
	Port     string
	Path     string
	Username string
	Password string
	Params   map[string]string
}

// ParseDSN parses a WaveQL connection string.
func ParseDSN(raw string) (*DSN, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, waveerrors.ErrConfiguration.New(fmt.Sprintf("invalid connection string: %s", err))
	}
	if u.Scheme == "" {
		return nil, waveerrors.ErrConfiguration.New("connection string has no scheme")
	}

	dsn := &DSN{Scheme: strings.ToLower(u.Scheme), Params: map[string]string{}}
	for k, v := range u.Query() {
		if len(v) > 0 {
			dsn.Params[k] = v[0]
		}
	}

	if dsn.Scheme == "file" {
		// file://<path>: keep the literal path, including a leading slash
		// when the DSN encodes an absolute path as file:///abs/path.
		dsn.Path = u.Opaque
		if dsn.Path == "" {
			dsn.Path = u.Path
		}
		return dsn, nil
	}

	dsn.Host = u.Hostname()
	dsn.Port = u.Port()
	dsn.Path = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		dsn.Username = u.User.Username()
		dsn.Password, _ = u.User.Password()
	}
	return dsn, nil
}

// BaseURL reconstructs the scheme://host[:port] prefix adapters bind their
// HTTP client to.
func (d *DSN) BaseURL(scheme string) string {
	host := d.Host
	if d.Port != "" {
		host = host + ":" + d.Port
	}
	return scheme + "://" + host
}
