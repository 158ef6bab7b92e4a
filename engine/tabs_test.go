package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/rewardrunner/models"
)

const dashboard = "https://rewards.example.com/"

func newTestManager(b *fakeBrowser, maxTabs int) *TabManager {
	return NewTabManager(TabManagerConfig{
		MaxTabs:           maxTabs,
		NavigationTimeout: time.Second,
		NewTabTimeout:     30 * time.Millisecond,
		PollInterval:      5 * time.Millisecond,
	}, b)
}

func TestTabManager_EnsureOpensTabWhenNone(t *testing.T) {
	b := newFakeBrowser()
	m := newTestManager(b, 3)

	tab, err := m.Ensure(context.Background(), nil, dashboard)
	require.NoError(t, err)
	assert.Equal(t, dashboard, tab.URL())
	assert.Equal(t, 1, b.openCount())
}

func TestTabManager_EnsureReusesMatchingTab(t *testing.T) {
	b := newFakeBrowser()
	m := newTestManager(b, 3)
	existing := b.open(dashboard + "?tab=earn")

	tab, err := m.Ensure(context.Background(), existing, dashboard)
	require.NoError(t, err)
	assert.Same(t, existing, tab)
	assert.Equal(t, 0, existing.navigations)
}

func TestTabManager_EnsureNavigatesWrongTab(t *testing.T) {
	b := newFakeBrowser()
	m := newTestManager(b, 3)
	existing := b.open("https://elsewhere.example.com/")

	tab, err := m.Ensure(context.Background(), existing, dashboard)
	require.NoError(t, err)
	assert.Same(t, existing, tab)
	assert.Equal(t, dashboard, existing.URL())
}

func TestTabManager_EnsureReopensWhenNavigationFails(t *testing.T) {
	b := newFakeBrowser()
	m := newTestManager(b, 3)
	existing := b.open("https://elsewhere.example.com/")
	existing.navErr = errors.New("net::ERR_ABORTED")

	tab, err := m.Ensure(context.Background(), existing, dashboard)
	require.NoError(t, err)
	assert.NotEqual(t, existing.ID(), tab.ID())
	assert.True(t, existing.Closed())
	assert.Equal(t, 1, m.Stats().Retired)
}

func TestTabManager_EnsureReplacesUnhealthyTab(t *testing.T) {
	b := newFakeBrowser()
	m := newTestManager(b, 3)
	existing := b.open(dashboard)
	for i := 0; i < 3; i++ {
		m.Report(existing, false)
	}

	tab, err := m.Ensure(context.Background(), existing, dashboard)
	require.NoError(t, err)
	assert.NotEqual(t, existing.ID(), tab.ID())
	assert.True(t, existing.Closed())
}

func TestTabManager_EnsurePropagatesOpenFailure(t *testing.T) {
	b := newFakeBrowser()
	b.newErr = errors.New("browser gone")
	m := newTestManager(b, 3)

	_, err := m.Ensure(context.Background(), nil, dashboard)
	require.Error(t, err)
}

func TestTabManager_EnsureClosesTabWhoseNavigationFailed(t *testing.T) {
	b := newFakeBrowser()
	b.navErr = context.DeadlineExceeded
	m := newTestManager(b, 3)

	for i := 0; i < 3; i++ {
		tab, err := m.Ensure(context.Background(), nil, dashboard)
		require.Error(t, err)
		assert.Nil(t, tab)
		assert.Equal(t, models.ErrCodeTimeout, models.CodeOf(err))
		assert.Zero(t, b.openCount(), "attempt %d left a tab open", i+1)
	}
	assert.Zero(t, m.Stats().OpenTabs)
}

func TestTabManager_TrimClosesOldestButKeepsWorkingTab(t *testing.T) {
	b := newFakeBrowser()
	m := newTestManager(b, 2)

	keep := b.open(dashboard)
	second := b.open("https://a.example.com/")
	third := b.open("https://b.example.com/")
	fourth := b.open("https://c.example.com/")

	require.NoError(t, m.Trim(context.Background(), keep))

	assert.False(t, keep.Closed(), "working tab is never closed")
	assert.True(t, second.Closed())
	assert.True(t, third.Closed())
	assert.False(t, fourth.Closed())
	assert.Equal(t, 2, b.openCount())
}

func TestTabManager_LatestFindsNewTab(t *testing.T) {
	b := newFakeBrowser()
	m := newTestManager(b, 3)
	working := b.open(dashboard)

	known, err := m.Known(context.Background())
	require.NoError(t, err)

	opened := b.open("https://quiz.example.com/")
	got := m.Latest(context.Background(), known, working)
	assert.Equal(t, opened.ID(), got.ID())
}

func TestTabManager_LatestFallsBack(t *testing.T) {
	b := newFakeBrowser()
	m := newTestManager(b, 3)
	working := b.open(dashboard)

	known, err := m.Known(context.Background())
	require.NoError(t, err)

	got := m.Latest(context.Background(), known, working)
	assert.Equal(t, working.ID(), got.ID())
}

func TestTabManager_CloseSkipsKeep(t *testing.T) {
	b := newFakeBrowser()
	m := newTestManager(b, 3)
	working := b.open(dashboard)
	other := b.open("https://x.example.com/")

	m.Close(working, working)
	m.Close(other, working)

	assert.False(t, working.Closed())
	assert.True(t, other.Closed())
}
