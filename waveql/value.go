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
)

// valuesToParams converts legacy []driver.Value bind arguments into the
// positional []any params engine.Execute substitutes for
// planner.ParameterPlaceholder (spec §4.3 "Parameter substitution").
func valuesToParams(args []driver.Value) []any {
	params := make([]any, len(args))
	for i, v := range args {
		params[i] = v
	}
	return params
}

// namedValuesToParams converts modern []driver.NamedValue bind arguments to
// positional params. WaveQL has no named-parameter syntax (spec §3 only
// defines positional `?`), so values are taken in Ordinal order and names
// are ignored.
func namedValuesToParams(args []driver.NamedValue) []any {
	params := make([]any, len(args))
	for _, v := range args {
		idx := v.Ordinal - 1
		if idx < 0 || idx >= len(params) {
			continue
		}
		params[idx] = v.Value
	}
	return params
}
