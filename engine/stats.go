package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/rewardrunner/models"
)

// Tracker accumulates per-kind attempt statistics for the duration of a run.
// It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	records map[models.Kind]*models.StatRecord
	now     func() time.Time
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		records: make(map[models.Kind]*models.StatRecord),
		now:     time.Now,
	}
}

// Attempt is one in-flight activity execution. Exactly one of Success,
// Failure or Abandon takes effect; later calls are ignored.
type Attempt struct {
	tracker *Tracker
	kind    models.Kind
	started time.Time
	once    sync.Once
}

// Start records a new attempt for kind.
func (t *Tracker) Start(kind models.Kind) *Attempt {
	t.mu.Lock()
	r := t.recordLocked(kind)
	r.Attempts++
	t.mu.Unlock()

	recordAttempt(kind)
	return &Attempt{tracker: t, kind: kind, started: t.now()}
}

// Success marks the attempt as successful.
func (a *Attempt) Success() {
	a.once.Do(func() {
		d := a.tracker.now().Sub(a.started)
		a.tracker.mu.Lock()
		r := a.tracker.recordLocked(a.kind)
		r.Successes++
		r.TotalDuration += d
		a.tracker.mu.Unlock()

		recordSuccess(a.kind, d)
	})
}

// Failure marks the attempt as failed with err.
func (a *Attempt) Failure(err error) {
	a.once.Do(func() {
		d := a.tracker.now().Sub(a.started)
		a.tracker.mu.Lock()
		r := a.tracker.recordLocked(a.kind)
		r.Failures++
		r.TotalDuration += d
		if err != nil {
			r.LastError = err.Error()
		}
		a.tracker.mu.Unlock()

		recordFailure(a.kind, models.CodeOf(err), d)
	})
}

// Abandon withdraws the attempt, e.g. when the run was cancelled under it.
// The Prometheus attempts counter keeps it.
func (a *Attempt) Abandon() {
	a.once.Do(func() {
		a.tracker.mu.Lock()
		r := a.tracker.recordLocked(a.kind)
		r.Attempts--
		a.tracker.mu.Unlock()
	})
}

// Snapshot returns a copy of all records sorted by kind.
func (t *Tracker) Snapshot() []models.StatRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.StatRecord, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Summary renders the snapshot as a single log-friendly line, e.g.
// "quiz 2/3 ok avg=12s; url_reward 4/4 ok avg=3s".
func (t *Tracker) Summary() string {
	records := t.Snapshot()
	if len(records) == 0 {
		return "no activities attempted"
	}
	parts := make([]string, 0, len(records))
	for _, r := range records {
		parts = append(parts, fmt.Sprintf("%s %d/%d ok avg=%s",
			r.Kind, r.Successes, r.Attempts, r.AverageDuration().Round(time.Second)))
	}
	return strings.Join(parts, "; ")
}

// recordLocked returns the record for kind, creating it. Caller must hold t.mu.
func (t *Tracker) recordLocked(kind models.Kind) *models.StatRecord {
	r, ok := t.records[kind]
	if !ok {
		r = &models.StatRecord{Kind: kind}
		t.records[kind] = r
	}
	return r
}
