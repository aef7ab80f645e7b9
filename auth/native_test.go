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

package auth_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mitayan0/WaveQL/auth"
)

const userFile = `
[
	{
		"name": "root",
		"password": "hunter2",
		"Permissions": ["read", "write"]
	},
	{
		"name": "reader",
		"password": "hunter2",
		"Permissions": ["read"]
	},
	{
		"name": "defaulted"
	}
]`

func TestNativeSingleAuthenticatesOnlyMatchingPassword(t *testing.T) {
	a := auth.NewNativeSingle("root", "hunter2", auth.AllPermissions)
	require.NoError(t, a.Authenticate("root", "hunter2"))
	require.Error(t, a.Authenticate("root", "wrong"))
	require.Error(t, a.Authenticate("nobody", "hunter2"))
}

func TestNativeSingleAllowedChecksGrantedPermissions(t *testing.T) {
	a := auth.NewNativeSingle("reader", "x", auth.ReadPerm)
	require.NoError(t, a.Allowed("reader", auth.ReadPerm))
	require.Error(t, a.Allowed("reader", auth.WritePerm))
}

func TestNewNativeFileLoadsUsersAndDefaultsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(userFile), 0644))

	a, err := auth.NewNativeFile(path)
	require.NoError(t, err)

	require.NoError(t, a.Authenticate("root", "hunter2"))
	require.NoError(t, a.Allowed("root", auth.WritePerm))

	require.NoError(t, a.Allowed("reader", auth.ReadPerm))
	require.Error(t, a.Allowed("reader", auth.WritePerm))

	require.NoError(t, a.Allowed("defaulted", auth.DefaultPermissions))
}

func TestNewNativeFileRejectsDuplicateUser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.json")
	dup := `[{"name": "root", "password": "a"}, {"name": "root", "password": "b"}]`
	require.NoError(t, os.WriteFile(path, []byte(dup), 0644))

	_, err := auth.NewNativeFile(path)
	require.Error(t, err)
}

func TestNativePasswordIsDeterministic(t *testing.T) {
	hashed := auth.NativePassword("hunter2")
	require.Equal(t, hashed, auth.NativePassword("hunter2"))
}
