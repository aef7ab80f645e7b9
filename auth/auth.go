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

// Package auth gates connections opened against a WaveQL DSN: it checks the
// DSN's embedded credentials and the read/write permission a statement
// needs before the engine runs it. There is no wire protocol to
// authenticate here (spec §6 treats credential acquisition internals as
// out of scope) — this package covers what's left of that surface: does
// this user/password pair check out, and is this user allowed to run this
// kind of statement.
package auth

import (
	"strings"

	"gopkg.in/src-d/go-errors.v1"

	"github.com/mitayan0/WaveQL/planner"
)

// Permission holds permissions required by a statement or granted to a user.
type Permission int

const (
	// ReadPerm means that it reads.
	ReadPerm Permission = 1 << iota
	// WritePerm means that it writes.
	WritePerm
)

var (
	// AllPermissions hold all defined permissions.
	AllPermissions = ReadPerm | WritePerm
	// DefaultPermissions are the permissions granted to a user if not defined.
	DefaultPermissions = ReadPerm

	// PermissionNames is used to translate from human to machine
	// representations.
	PermissionNames = map[string]Permission{
		"read":  ReadPerm,
		"write": WritePerm,
	}

	// ErrNotAuthorized is returned when the user is not allowed to use a
	// permission.
	ErrNotAuthorized = errors.NewKind("not authorized")
	// ErrNoPermission is returned when the user lacks needed permissions.
	ErrNoPermission = errors.NewKind("user does not have permission: %s")
	// ErrBadCredentials is returned when a user/password pair doesn't match.
	ErrBadCredentials = errors.NewKind("bad credentials for user %s")
)

// String returns all the permissions set to on.
func (p Permission) String() string {
	var str []string
	for k, v := range PermissionNames {
		if p&v != 0 {
			str = append(str, k)
		}
	}

	return strings.Join(str, ", ")
}

// PermissionFor reports the permission a planned statement needs: a SELECT
// needs ReadPerm, everything else (INSERT/UPDATE/DELETE, and raw SQL that
// fell through the planner, which may itself be a write) needs WritePerm.
func PermissionFor(op planner.Operation) Permission {
	if op == planner.OpSelect {
		return ReadPerm
	}
	return WritePerm
}

// Auth authenticates a DSN's credentials and checks a user's permissions.
type Auth interface {
	// Authenticate validates user/password, returning ErrBadCredentials on
	// mismatch.
	Authenticate(user, password string) error
	// Allowed checks user's permissions against needed permission. If the
	// user does not have enough permissions it returns ErrNotAuthorized
	// wrapping ErrNoPermission.
	Allowed(user string, permission Permission) error
}
