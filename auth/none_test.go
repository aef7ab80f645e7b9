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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mitayan0/WaveQL/auth"
)

func TestNoneAlwaysAuthenticates(t *testing.T) {
	a := new(auth.None)
	require.NoError(t, a.Authenticate("root", ""))
	require.NoError(t, a.Authenticate("anyone", "anything"))
}

func TestNoneAlwaysAllows(t *testing.T) {
	a := new(auth.None)
	require.NoError(t, a.Allowed("anyone", auth.ReadPerm))
	require.NoError(t, a.Allowed("anyone", auth.WritePerm))
}
