package waveql

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitayan0/WaveQL/adapter"
	"github.com/mitayan0/WaveQL/adapter/file"
)

func init() {
	RegisterAdapter("wavetest", func(dsn *DSN) (adapter.Adapter, error) {
		return file.New(file.Config{
			Name: "wavetest",
			Tables: map[string]file.TableConfig{
				"account": {Path: dsn.Params["path"], Format: file.FormatCSV, HasHeader: true},
			},
		}, nil, nil)
	})
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "account.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDriverOpenQueryRoundTrips(t *testing.T) {
	path := writeCSV(t, "id,name\n1,acme\n2,globex\n")
	db, err := sql.Open("waveql", "wavetest://x?path="+path)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query("SELECT * FROM account WHERE name = ?", "acme")
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"id", "name"}, cols)

	require.True(t, rows.Next())
	var id int64
	var name string
	require.NoError(t, rows.Scan(&id, &name))
	assert.EqualValues(t, 1, id)
	assert.Equal(t, "acme", name)
	assert.False(t, rows.Next())
}

func TestDriverOpenUnknownSchemeFails(t *testing.T) {
	_, err := sql.Open("waveql", "nope://host")
	require.NoError(t, err) // sql.Open defers Open() until first use
	db, _ := sql.Open("waveql", "nope://host")
	defer db.Close()
	err = db.Ping()
	require.Error(t, err)
}
