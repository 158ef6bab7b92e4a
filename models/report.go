package models

import "time"

// StatRecord accumulates outcomes for one activity kind over a run.
type StatRecord struct {
	Kind          Kind          `json:"kind"`
	Attempts      int           `json:"attempts"`
	Successes     int           `json:"successes"`
	Failures      int           `json:"failures"`
	TotalDuration time.Duration `json:"total_duration"`
	LastError     string        `json:"last_error,omitempty"`
}

// AverageDuration is the mean time spent per finished attempt.
func (r StatRecord) AverageDuration() time.Duration {
	finished := r.Successes + r.Failures
	if finished == 0 {
		return 0
	}
	return r.TotalDuration / time.Duration(finished)
}

// SuccessRate is the fraction of finished attempts that succeeded (0-1).
func (r StatRecord) SuccessRate() float64 {
	finished := r.Successes + r.Failures
	if finished == 0 {
		return 0
	}
	return float64(r.Successes) / float64(finished)
}

// RunReport is the end-of-run summary handed to reporting components.
type RunReport struct {
	RunID        string       `json:"run_id"`
	Account      string       `json:"account"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
	Processed    int          `json:"processed"`
	Succeeded    int          `json:"succeeded"`
	Failed       int          `json:"failed"`
	Skipped      int          `json:"skipped"`
	Stats        []StatRecord `json:"stats"`
	PointsBefore int          `json:"points_before"`
	PointsAfter  int          `json:"points_after"`
	Error        *ErrorDetail `json:"error,omitempty"`
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status           string   `json:"status"` // "healthy" or "degraded"
	Uptime           string   `json:"uptime"`
	TabStats         TabStats `json:"tab_stats"`
	ThrottleMultiple float64  `json:"throttle_multiplier"`
	ActiveAccount    string   `json:"active_account,omitempty"`
	Version          string   `json:"version"`
}

// TabStats reports the state of the browser tabs managed by the runner.
type TabStats struct {
	MaxTabs  int `json:"max_tabs"`
	OpenTabs int `json:"open_tabs"`
	Retired  int `json:"retired"`
}

// RunsResponse is the response for GET /api/v1/runs.
type RunsResponse struct {
	Success bool         `json:"success"`
	Runs    []*RunReport `json:"runs,omitempty"`
	Run     *RunReport   `json:"run,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}
