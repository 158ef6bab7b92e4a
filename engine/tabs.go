package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/rewardrunner/models"
)

// TabHandle wraps a tab with health tracking metadata.
type TabHandle struct {
	tab      Tab
	seq      int64
	errScore float64
	useCount int
	created  time.Time
	mu       sync.Mutex
}

// RecordSuccess decreases the error score (min 0).
func (h *TabHandle) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

// RecordFailure increases the error score.
func (h *TabHandle) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore += 1.0
}

// health returns the current error score and use count.
func (h *TabHandle) health() (float64, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errScore, h.useCount
}

// ShouldRetire returns true if the tab should be replaced based on health metrics.
func (h *TabHandle) ShouldRetire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.errScore >= 3.0 {
		return true
	}
	if h.useCount >= 50 {
		return true
	}
	if time.Since(h.created) >= 50*time.Minute {
		return true
	}
	return false
}

// TabManagerConfig holds configuration for the tab manager.
type TabManagerConfig struct {
	MaxTabs           int
	NavigationTimeout time.Duration
	NewTabTimeout     time.Duration
	PollInterval      time.Duration
}

// TabManager keeps the runner's working tab on the expected page and bounds
// the number of open tabs. Tabs are ordered by the time the manager first
// saw them; the oldest are closed first when the cap is exceeded.
type TabManager struct {
	cfg      TabManagerConfig
	provider TabProvider

	mu      sync.Mutex
	handles map[string]*TabHandle
	nextSeq int64
	open    atomic.Int32
	retired atomic.Int32
}

// NewTabManager creates a TabManager over provider.
func NewTabManager(cfg TabManagerConfig, provider TabProvider) *TabManager {
	if cfg.MaxTabs < 1 {
		cfg.MaxTabs = 1
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.NewTabTimeout <= 0 {
		cfg.NewTabTimeout = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &TabManager{
		cfg:      cfg,
		provider: provider,
		handles:  make(map[string]*TabHandle),
	}
}

// Ensure returns a tab showing expectedURL. The given tab is reused when it
// is open, healthy and already on (or navigable to) expectedURL; otherwise
// it is retired and a fresh tab is opened.
func (m *TabManager) Ensure(ctx context.Context, tab Tab, expectedURL string) (Tab, error) {
	if tab != nil && !tab.Closed() {
		h := m.track(tab)
		if h.ShouldRetire() {
			errScore, useCount := h.health()
			slog.Debug("tabs: retiring unhealthy tab", "id", tab.ID(),
				"errScore", errScore, "useCount", useCount)
			m.retire(tab)
		} else {
			if strings.HasPrefix(tab.URL(), expectedURL) {
				return tab, nil
			}
			if err := m.navigate(ctx, tab, expectedURL); err == nil {
				return tab, nil
			} else if ctx.Err() != nil {
				return nil, ctx.Err()
			} else {
				slog.Warn("tabs: navigation failed, reopening tab",
					"id", tab.ID(), "url", expectedURL, "error", err)
				m.retire(tab)
			}
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigationTimeout)
	defer cancel()

	fresh, err := m.provider.NewTab(navCtx, expectedURL)
	if err != nil {
		// The provider may hand back a tab whose navigation failed.
		if fresh != nil {
			if cerr := fresh.Close(); cerr != nil {
				slog.Debug("tabs: failed to close tab after open error", "id", fresh.ID(), "error", cerr)
			}
		}
		return nil, categorizeError(err, "failed to open tab")
	}
	m.track(fresh)
	if err := fresh.WaitStable(navCtx); err != nil {
		slog.Debug("tabs: DOM did not settle on new tab, proceeding", "error", err)
	}
	return fresh, nil
}

// Known returns the ids of all currently open tabs.
func (m *TabManager) Known(ctx context.Context) (map[string]struct{}, error) {
	tabs, err := m.provider.Tabs(ctx)
	if err != nil {
		return nil, categorizeError(err, "failed to list tabs")
	}
	known := make(map[string]struct{}, len(tabs))
	for _, t := range tabs {
		m.track(t)
		known[t.ID()] = struct{}{}
	}
	return known, nil
}

// Latest waits up to NewTabTimeout for a tab that is not in known and
// returns it. If none appears the fallback tab is returned.
func (m *TabManager) Latest(ctx context.Context, known map[string]struct{}, fallback Tab) Tab {
	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.NewTabTimeout)
	defer cancel()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if tabs, err := m.provider.Tabs(waitCtx); err == nil {
			var newest Tab
			var newestSeq int64 = -1
			for _, t := range tabs {
				if _, seen := known[t.ID()]; seen || t.Closed() {
					continue
				}
				if h := m.track(t); h.seq > newestSeq {
					newest, newestSeq = t, h.seq
				}
			}
			if newest != nil {
				if err := newest.WaitStable(waitCtx); err != nil {
					slog.Debug("tabs: DOM did not settle on activity tab, proceeding", "error", err)
				}
				return newest
			}
		}

		select {
		case <-waitCtx.Done():
			return fallback
		case <-ticker.C:
		}
	}
}

// Trim closes the oldest tabs until at most MaxTabs remain. keep is never closed.
func (m *TabManager) Trim(ctx context.Context, keep Tab) error {
	tabs, err := m.provider.Tabs(ctx)
	if err != nil {
		return categorizeError(err, "failed to list tabs")
	}

	type ordered struct {
		tab Tab
		seq int64
	}
	live := make([]ordered, 0, len(tabs))
	for _, t := range tabs {
		if t.Closed() {
			continue
		}
		live = append(live, ordered{tab: t, seq: m.track(t).seq})
	}
	m.open.Store(int32(len(live)))
	sort.Slice(live, func(i, j int) bool { return live[i].seq < live[j].seq })

	excess := len(live) - m.cfg.MaxTabs
	for _, o := range live {
		if excess <= 0 {
			break
		}
		if keep != nil && o.tab.ID() == keep.ID() {
			continue
		}
		slog.Debug("tabs: closing old tab", "id", o.tab.ID(), "url", o.tab.URL())
		m.retire(o.tab)
		excess--
	}
	return nil
}

// Report feeds an activity outcome into the tab's health score.
func (m *TabManager) Report(tab Tab, success bool) {
	if tab == nil {
		return
	}
	h := m.track(tab)
	if success {
		h.RecordSuccess()
	} else {
		h.RecordFailure()
	}
}

// Close closes tab unless it is keep, and forgets it.
func (m *TabManager) Close(tab, keep Tab) {
	if tab == nil || (keep != nil && tab.ID() == keep.ID()) {
		return
	}
	m.forget(tab)
	if err := tab.Close(); err != nil {
		slog.Debug("tabs: close failed", "id", tab.ID(), "error", err)
	}
}

// Stats returns a snapshot of the manager's state.
func (m *TabManager) Stats() models.TabStats {
	return models.TabStats{
		MaxTabs:  m.cfg.MaxTabs,
		OpenTabs: int(m.open.Load()),
		Retired:  int(m.retired.Load()),
	}
}

func (m *TabManager) navigate(ctx context.Context, tab Tab, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigationTimeout)
	defer cancel()

	if err := tab.Navigate(navCtx, url); err != nil {
		return categorizeError(err, fmt.Sprintf("navigation to %s failed", url))
	}
	if err := tab.WaitStable(navCtx); err != nil {
		slog.Debug("tabs: DOM did not settle, proceeding with current DOM", "error", err)
	}
	return nil
}

// track returns the handle for tab, registering it on first sight.
func (m *TabManager) track(tab Tab) *TabHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[tab.ID()]
	if !ok {
		h = &TabHandle{tab: tab, seq: m.nextSeq, created: time.Now()}
		m.nextSeq++
		m.handles[tab.ID()] = h
	}
	return h
}

func (m *TabManager) forget(tab Tab) {
	m.mu.Lock()
	delete(m.handles, tab.ID())
	m.mu.Unlock()
}

// retire closes and forgets a tab.
func (m *TabManager) retire(tab Tab) {
	m.forget(tab)
	m.retired.Add(1)
	if err := tab.Close(); err != nil {
		slog.Debug("tabs: close failed", "id", tab.ID(), "error", err)
	}
}
