package engine

import (
	"sync"
	"time"
)

// QuarantineEntry is the failure streak of one activity. It is the unit a
// QuarantineStore persists.
type QuarantineEntry struct {
	Failures    int
	LastFailure time.Time

	// Until is set once Failures reaches the threshold.
	Until time.Time
}

// Quarantine remembers activities that keep failing. Once an activity fails
// threshold runs in a row it is skipped until the TTL expires, after which
// its streak starts over. Streaks span process runs through Restore and
// Snapshot. Expired entries are cleaned up periodically.
type Quarantine struct {
	mu        sync.Mutex
	entries   map[string]*QuarantineEntry
	threshold int
	ttl       time.Duration
	now       func() time.Time
	done      chan struct{}
	stopOnce  sync.Once
}

// NewQuarantine creates a Quarantine and starts a background goroutine that
// prunes expired entries every hour.
func NewQuarantine(threshold int, ttl time.Duration) *Quarantine {
	if threshold < 1 {
		threshold = 1
	}
	q := &Quarantine{
		entries:   make(map[string]*QuarantineEntry),
		threshold: threshold,
		ttl:       ttl,
		now:       time.Now,
		done:      make(chan struct{}),
	}
	go q.cleanupLoop()
	return q
}

// Quarantined reports whether key is currently being skipped.
func (q *Quarantine) Quarantined(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[key]
	if !ok || e.Until.IsZero() {
		return false
	}
	if q.now().After(e.Until) {
		delete(q.entries, key)
		return false
	}
	return true
}

// RecordFailure counts a failed run and reports whether key is now quarantined.
func (q *Quarantine) RecordFailure(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[key]
	if !ok {
		e = &QuarantineEntry{}
		q.entries[key] = e
	}
	e.Failures++
	e.LastFailure = q.now()
	if e.Failures >= q.threshold {
		e.Until = e.LastFailure.Add(q.ttl)
		return true
	}
	return false
}

// RecordSuccess clears any failure history for key.
func (q *Quarantine) RecordSuccess(key string) {
	q.mu.Lock()
	delete(q.entries, key)
	q.mu.Unlock()
}

// Restore replaces the in-memory entries with saved ones. Entries whose
// quarantine has already expired are dropped.
func (q *Quarantine) Restore(entries map[string]QuarantineEntry) {
	now := q.now()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = make(map[string]*QuarantineEntry, len(entries))
	for key, e := range entries {
		if e.Failures <= 0 || (!e.Until.IsZero() && now.After(e.Until)) {
			continue
		}
		q.entries[key] = &e
	}
}

// Snapshot returns a copy of the live entries.
func (q *Quarantine) Snapshot() map[string]QuarantineEntry {
	now := q.now()
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]QuarantineEntry, len(q.entries))
	for key, e := range q.entries {
		if !e.Until.IsZero() && now.After(e.Until) {
			continue
		}
		out[key] = *e
	}
	return out
}

// Stop terminates the background cleanup goroutine.
func (q *Quarantine) Stop() {
	q.stopOnce.Do(func() { close(q.done) })
}

// cleanupLoop runs every hour, deleting expired entries.
func (q *Quarantine) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-q.done:
			return
		case <-ticker.C:
			now := q.now()
			q.mu.Lock()
			for key, e := range q.entries {
				if !e.Until.IsZero() && now.After(e.Until) {
					delete(q.entries, key)
				}
			}
			q.mu.Unlock()
		}
	}
}
