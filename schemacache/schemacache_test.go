package schemacache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitayan0/WaveQL/batch"
)

func TestGetMissesWhenAbsent(t *testing.T) {
	c := New()
	_, ok := c.Get("servicenow", "incident")
	assert.False(t, ok)
}

func TestSetThenGetHits(t *testing.T) {
	c := New()
	schema := batch.Schema{{Name: "sys_id", DataType: batch.String}}
	c.Set("servicenow", "incident", schema, time.Hour)

	got, ok := c.Get("servicenow", "incident")
	require.True(t, ok)
	assert.Equal(t, schema, got)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := New()
	fakeNow := time.Now()
	c.now = func() time.Time { return fakeNow }

	c.Set("servicenow", "incident", batch.Schema{{Name: "sys_id"}}, time.Minute)
	fakeNow = fakeNow.Add(2 * time.Minute)

	_, ok := c.Get("servicenow", "incident")
	assert.False(t, ok, "entries older than their TTL must be treated as absent")
}

func TestInvalidateForcesRefetch(t *testing.T) {
	c := New()
	c.Set("jira", "issues", batch.Schema{{Name: "key"}}, time.Hour)
	c.Invalidate("jira", "issues")

	_, ok := c.Get("jira", "issues")
	assert.False(t, ok, "a Get following Invalidate must miss")
}
