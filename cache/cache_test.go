package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/rewardrunner/models"
)

func report(account string, finished time.Time) *models.RunReport {
	return &models.RunReport{RunID: account + "-run", Account: account, FinishedAt: finished}
}

func TestReports_PutGetReplaces(t *testing.T) {
	c := New(10, time.Hour)
	defer c.Stop()

	base := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	c.Put(report("alice", base))
	c.Put(&models.RunReport{RunID: "second", Account: "alice", FinishedAt: base.Add(time.Hour)})

	got, ok := c.Get("alice")
	require.True(t, ok)
	assert.Equal(t, "second", got.RunID)
	assert.Equal(t, 1, c.Len())

	_, ok = c.Get("bob")
	assert.False(t, ok)
}

func TestReports_EvictsOldestAtCapacity(t *testing.T) {
	c := New(2, time.Hour)
	defer c.Stop()

	clock := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return clock }

	c.Put(report("a", clock))
	clock = clock.Add(time.Minute)
	c.Put(report("b", clock))
	clock = clock.Add(time.Minute)
	c.Put(report("c", clock))

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestReports_ListNewestFirstAndExpiry(t *testing.T) {
	c := New(10, time.Hour)
	defer c.Stop()

	clock := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return clock }

	c.Put(report("old", clock.Add(-time.Hour)))
	clock = clock.Add(30 * time.Minute)
	c.Put(report("new", clock))

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].Account)

	clock = clock.Add(45 * time.Minute)
	list = c.List()
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].Account)

	c.evictExpired()
	assert.Equal(t, 1, c.Len())
}

func TestReports_PutNil(t *testing.T) {
	c := New(1, time.Hour)
	defer c.Stop()
	c.Put(nil)
	assert.Zero(t, c.Len())
}
