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

import "errors"

// Result is the outcome of an INSERT/UPDATE/DELETE (spec §6 "rowcount").
type Result struct {
	rowsAffected int64
}

// RowsAffected returns the number of rows the statement affected.
func (r *Result) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// LastInsertId is never known: adapters surface no auto-increment identity
// (spec §6 Non-goals).
func (r *Result) LastInsertId() (int64, error) {
	return 0, errors.New("waveql: LastInsertId is not supported")
}
