package waveql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultRowsAffected(t *testing.T) {
	r := &Result{rowsAffected: 3}
	n, err := r.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestResultLastInsertIdUnsupported(t *testing.T) {
	r := &Result{rowsAffected: 1}
	_, err := r.LastInsertId()
	require.Error(t, err)
}
