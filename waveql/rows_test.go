package waveql

import (
	"database/sql/driver"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitayan0/WaveQL/batch"
)

func sampleRowsBatch(t *testing.T) *batch.Batch {
	t.Helper()
	b, err := batch.Build(batch.Schema{
		{Name: "id", DataType: batch.Integer},
		{Name: "name", DataType: batch.String},
	}, [][]any{
		{int64(1), int64(2)},
		{"acme", "globex"},
	})
	require.NoError(t, err)
	return b
}

func TestRowsIteratesThenEOF(t *testing.T) {
	r := &Rows{b: sampleRowsBatch(t)}
	assert.Equal(t, []string{"id", "name"}, r.Columns())

	dest := make([]driver.Value, 2)
	require.NoError(t, r.Next(dest))
	assert.EqualValues(t, 1, dest[0])
	assert.Equal(t, "acme", dest[1])

	require.NoError(t, r.Next(dest))
	assert.EqualValues(t, 2, dest[0])

	assert.Equal(t, io.EOF, r.Next(dest))
}

func TestRowsCloseExhausts(t *testing.T) {
	r := &Rows{b: sampleRowsBatch(t)}
	require.NoError(t, r.Close())
	dest := make([]driver.Value, 2)
	assert.Equal(t, io.EOF, r.Next(dest))
}
