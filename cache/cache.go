// Package cache keeps the most recent run report per account in memory for
// the status API.
package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/use-agent/rewardrunner/models"
)

// entry holds a stored report with its insertion timestamp.
type entry struct {
	report    *models.RunReport
	createdAt time.Time
}

// Reports is an in-memory store of run reports keyed by account.
// It is safe for concurrent use.
type Reports struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Reports store holding at most maxEntries accounts. A
// background goroutine evicts reports older than ttl every hour.
func New(maxEntries int, ttl time.Duration) *Reports {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	c := &Reports{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		done:       make(chan struct{}),
	}

	go c.cleanupLoop()
	return c
}

// Put stores report as the latest for its account. At capacity the oldest
// stored report is evicted to make room.
func (c *Reports) Put(report *models.RunReport) {
	if report == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[report.Account]; !exists && len(c.store) >= c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.store {
			if oldestKey == "" || e.createdAt.Before(oldest) {
				oldestKey, oldest = k, e.createdAt
			}
		}
		delete(c.store, oldestKey)
	}

	c.store[report.Account] = &entry{report: report, createdAt: c.now()}
}

// Get returns the latest unexpired report for account.
func (c *Reports) Get(account string) (*models.RunReport, bool) {
	c.mu.RLock()
	e, ok := c.store[account]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.createdAt) > c.ttl {
		return nil, false
	}
	return e.report, true
}

// List returns all unexpired reports, most recently finished first.
func (c *Reports) List() []*models.RunReport {
	now := c.now()
	c.mu.RLock()
	out := make([]*models.RunReport, 0, len(c.store))
	for _, e := range c.store {
		if now.Sub(e.createdAt) <= c.ttl {
			out = append(out, e.report)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FinishedAt.Equal(out[j].FinishedAt) {
			return out[i].FinishedAt.After(out[j].FinishedAt)
		}
		return out[i].Account < out[j].Account
	})
	return out
}

// Len returns the number of stored reports, expired or not.
func (c *Reports) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stop terminates the cleanup goroutine.
func (c *Reports) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Reports) evictExpired() {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
	c.mu.Unlock()
}

// cleanupLoop evicts expired reports every hour.
func (c *Reports) cleanupLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}
