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
	"io"

	"github.com/mitayan0/WaveQL/batch"
)

func emptyBatch() *batch.Batch {
	return batch.Empty(nil)
}

// Rows is an iterator over a *batch.Batch (spec §6 "fetchone/fetchmany/
// fetchall iterate the batch produced by execute").
type Rows struct {
	b   *batch.Batch
	pos int
}

// Columns returns the result's column names, in projection order.
func (r *Rows) Columns() []string {
	return r.b.Schema().Names()
}

// Close releases the rows. The underlying batch is already fully materialised
// in memory, so Close is a no-op beyond marking exhaustion.
func (r *Rows) Close() error {
	r.pos = r.b.RowCount()
	return nil
}

// Next populates dest with the next row, returning io.EOF once exhausted.
func (r *Rows) Next(dest []driver.Value) error {
	if r.pos >= r.b.RowCount() {
		return io.EOF
	}
	row := r.b.Row(r.pos)
	for i, v := range row {
		dest[i] = v
	}
	r.pos++
	return nil
}
