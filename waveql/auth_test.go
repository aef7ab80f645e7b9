package waveql

import (
	"database/sql"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitayan0/WaveQL/auth"
)

func TestDriverRejectsBadCredentials(t *testing.T) {
	path := writeCSV(t, "id,name\n1,acme\n")
	SetAuth(auth.NewNativeSingle("root", "hunter2", auth.AllPermissions))
	defer SetAuth(nil)

	db, err := sql.Open("waveql", "wavetest://root:wrong@x?path="+path)
	require.NoError(t, err)
	defer db.Close()

	err = db.Ping()
	require.Error(t, err)
}

func TestDriverDeniesWriteForReadOnlyUser(t *testing.T) {
	path := writeCSV(t, "id,name\n1,acme\n")
	SetAuth(auth.NewNativeSingle("reader", "hunter2", auth.ReadPerm))
	defer SetAuth(nil)

	db, err := sql.Open("waveql", "wavetest://reader:hunter2@x?path="+path)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query("SELECT * FROM account")
	require.NoError(t, err)
	rows.Close()

	_, err = db.Exec("INSERT INTO account (id, name) VALUES (2, 'globex')")
	require.Error(t, err)
}

func TestDriverAuditsQueries(t *testing.T) {
	path := writeCSV(t, "id,name\n1,acme\n")
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)
	SetAuth(nil)
	SetAudit(auth.NewAuditLog(logger))
	defer SetAudit(nil)

	db, err := sql.Open("waveql", "wavetest://root:x@x?path="+path)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query("SELECT * FROM account")
	require.NoError(t, err)
	rows.Close()

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Data["action"] == "query" {
			found = true
			assert.Equal(t, true, e.Data["success"])
			assert.IsType(t, time.Duration(0), e.Data["duration"])
		}
	}
	assert.True(t, found)
}
