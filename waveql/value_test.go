package waveql

import (
	"database/sql/driver"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValuesToParamsPreservesOrder(t *testing.T) {
	params := valuesToParams([]driver.Value{"acme", int64(1)})
	assert.Equal(t, []any{"acme", int64(1)}, params)
}

func TestNamedValuesToParamsUsesOrdinal(t *testing.T) {
	params := namedValuesToParams([]driver.NamedValue{
		{Ordinal: 2, Value: "second"},
		{Ordinal: 1, Value: "first"},
	})
	assert.Equal(t, []any{"first", "second"}, params)
}
