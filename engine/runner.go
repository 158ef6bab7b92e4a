package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/rewardrunner/models"
)

// RunnerConfig identifies the account being processed and bounds the waits
// made for each activity.
type RunnerConfig struct {
	Account string

	// Day is the job-state day key, e.g. "2026-10-16".
	Day string

	// DashboardURL is where the working tab returns between activities.
	DashboardURL string

	ActivityTimeout time.Duration
	ElementTimeout  time.Duration
}

// Deps are the collaborators a Runner drives.
type Deps struct {
	Tabs       *TabManager
	Throttle   *Throttle
	Retry      RetryPolicy
	Stats      *Tracker
	Jobs       JobStore
	Handlers   Handlers
	Quarantine *Quarantine // optional

	// QuarantineStore, when set with Quarantine, carries failure streaks
	// from one run to the next.
	QuarantineStore QuarantineStore
}

// Runner walks an ordered list of activities on one browser context.
// Activities are processed strictly in order; a failure is recorded and the
// runner moves on to the next activity.
type Runner struct {
	cfg  RunnerConfig
	deps Deps

	// tab is the working tab kept on the dashboard between activities.
	tab Tab
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeSkipped
	outcomeFailed

	// outcomeInterrupted is an activity cut short by cancellation. It is
	// neither processed nor failed.
	outcomeInterrupted
)

// quarantineSaveTimeout bounds the save made at the end of a run, which
// also happens after cancellation.
const quarantineSaveTimeout = 5 * time.Second

// NewRunner creates a Runner. Stats and Throttle are created with defaults
// when nil.
func NewRunner(cfg RunnerConfig, deps Deps) *Runner {
	if cfg.Day == "" {
		cfg.Day = time.Now().Format(time.DateOnly)
	}
	if cfg.ElementTimeout <= 0 {
		cfg.ElementTimeout = 10 * time.Second
	}
	if deps.Stats == nil {
		deps.Stats = NewTracker()
	}
	if deps.Throttle == nil {
		deps.Throttle = NewThrottle(ThrottleConfig{})
	}
	if deps.Retry.MaxAttempts == 0 {
		deps.Retry = DefaultRetryPolicy()
	}
	return &Runner{cfg: cfg, deps: deps}
}

// Tab returns the current working tab, which may be nil before the first run.
func (r *Runner) Tab() Tab { return r.tab }

// SetTab seeds the working tab, e.g. the tab the dashboard was read from.
func (r *Runner) SetTab(tab Tab) { r.tab = tab }

// Stats exposes the runner's tracker.
func (r *Runner) Stats() *Tracker { return r.deps.Stats }

// Run processes activities in order and returns the run report. The error
// is non-nil only when ctx ends the run early; the partial report is still
// returned in that case.
func (r *Runner) Run(ctx context.Context, activities []models.Activity) (*models.RunReport, error) {
	report := &models.RunReport{
		RunID:     uuid.NewString(),
		Account:   r.cfg.Account,
		StartedAt: time.Now(),
	}
	r.loadQuarantine(ctx)
	finish := func() {
		report.FinishedAt = time.Now()
		report.Stats = r.deps.Stats.Snapshot()
		r.saveQuarantine(ctx)
	}

	slog.Info("activity run starting",
		"account", r.cfg.Account,
		"run_id", report.RunID,
		"activities", len(activities),
	)

	for i, a := range activities {
		if err := ctx.Err(); err != nil {
			finish()
			return report, err
		}

		log := slog.With(
			"account", r.cfg.Account,
			"index", i,
			"offer_id", a.OfferID,
			"name", a.Name,
			"kind", a.Kind(),
		)

		res, err := r.process(ctx, a, log)
		switch res {
		case outcomeDone:
			report.Processed++
			report.Succeeded++
		case outcomeSkipped:
			report.Skipped++
		case outcomeFailed:
			report.Processed++
			report.Failed++
		}
		if err != nil && ctx.Err() != nil {
			finish()
			report.Error = &models.ErrorDetail{
				Code:    models.CodeOf(categorizeError(ctx.Err(), "run interrupted")),
				Message: "run interrupted: " + ctx.Err().Error(),
			}
			return report, ctx.Err()
		}
	}

	finish()
	slog.Info("activity run finished",
		"account", r.cfg.Account,
		"run_id", report.RunID,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"stats", r.deps.Stats.Summary(),
	)
	return report, nil
}

// process runs one activity end to end. Errors are logged and recorded here;
// the returned error only matters to the caller when ctx is done.
func (r *Runner) process(ctx context.Context, a models.Activity, log *slog.Logger) (outcome, error) {
	kind := a.Kind()

	if !a.Pending() {
		log.Debug("activity already complete or worth no points, skipping")
		return outcomeSkipped, nil
	}
	if kind == models.KindUnsupported {
		log.Info("activity type not supported, skipping", "promotion_type", a.PromotionType)
		return outcomeSkipped, nil
	}
	handler, ok := r.deps.Handlers[kind]
	if !ok {
		log.Warn("no handler registered for activity kind, skipping")
		return outcomeSkipped, nil
	}
	if r.deps.Quarantine != nil && r.deps.Quarantine.Quarantined(a.Key()) {
		log.Info("activity is quarantined after repeated failures, skipping")
		return outcomeSkipped, nil
	}
	if r.deps.Jobs != nil {
		done, err := r.deps.Jobs.IsDone(ctx, r.cfg.Account, r.cfg.Day, a.Key())
		if err != nil {
			log.Warn("job state lookup failed, running activity anyway", "error", err)
		} else if done {
			log.Debug("activity already recorded as done today, skipping")
			return outcomeSkipped, nil
		}
	}

	attempt := r.deps.Stats.Start(kind)
	err := r.deps.Retry.Do(ctx, func(ctx context.Context, n int) error {
		err := r.attempt(ctx, a, handler)
		if err != nil && ctx.Err() == nil {
			r.deps.Throttle.RecordFailure()
			log.Warn("activity attempt failed", "attempt", n, "error", err)
		}
		return err
	}, models.IsTransient)

	if err != nil && ctx.Err() != nil {
		attempt.Abandon()
		log.Info("activity interrupted by cancellation")
		return outcomeInterrupted, err
	}
	if err != nil {
		attempt.Failure(err)
		if r.deps.Quarantine != nil && r.deps.Quarantine.RecordFailure(a.Key()) {
			log.Warn("activity quarantined after repeated failures")
		}
		log.Error("activity failed, continuing with next",
			"code", models.CodeOf(err),
			"error", err,
		)
		return outcomeFailed, err
	}

	attempt.Success()
	r.deps.Throttle.RecordSuccess()
	if r.deps.Quarantine != nil {
		r.deps.Quarantine.RecordSuccess(a.Key())
	}
	if r.deps.Jobs != nil {
		if err := r.deps.Jobs.MarkDone(ctx, r.cfg.Account, r.cfg.Day, a.Key()); err != nil {
			log.Warn("failed to record activity as done", "error", err)
		}
	}
	log.Info("activity completed")
	return outcomeDone, nil
}

// loadQuarantine seeds the quarantine with the account's saved streaks.
func (r *Runner) loadQuarantine(ctx context.Context) {
	if r.deps.Quarantine == nil || r.deps.QuarantineStore == nil {
		return
	}
	entries, err := r.deps.QuarantineStore.LoadQuarantine(ctx, r.cfg.Account)
	if err != nil {
		slog.Warn("failed to load quarantine, starting empty", "account", r.cfg.Account, "error", err)
		return
	}
	r.deps.Quarantine.Restore(entries)
}

// saveQuarantine persists the streaks, even when ctx is already cancelled.
func (r *Runner) saveQuarantine(ctx context.Context) {
	if r.deps.Quarantine == nil || r.deps.QuarantineStore == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), quarantineSaveTimeout)
	defer cancel()
	if err := r.deps.QuarantineStore.SaveQuarantine(saveCtx, r.cfg.Account, r.deps.Quarantine.Snapshot()); err != nil {
		slog.Warn("failed to save quarantine", "account", r.cfg.Account, "error", err)
	}
}

// attempt makes one pass: return to the dashboard, pace, click the card and
// run the handler on the tab the click opened.
func (r *Runner) attempt(ctx context.Context, a models.Activity, handler Handler) error {
	tab, err := r.deps.Tabs.Ensure(ctx, r.tab, r.cfg.DashboardURL)
	if err != nil {
		return err
	}
	r.tab = tab

	if err := r.deps.Tabs.Trim(ctx, tab); err != nil {
		slog.Debug("tab trim failed", "error", err)
	}

	if err := r.deps.Throttle.Wait(ctx); err != nil {
		return err
	}

	selector, err := r.locate(ctx, tab, a)
	if err != nil {
		return err
	}

	known, err := r.deps.Tabs.Known(ctx)
	if err != nil {
		return err
	}

	if err := tab.Click(ctx, selector); err != nil {
		return categorizeClick(err)
	}

	activityTab := r.deps.Tabs.Latest(ctx, known, tab)
	defer r.deps.Tabs.Close(activityTab, tab)

	err = RunWithTimeout(ctx, r.cfg.ActivityTimeout, func(ctx context.Context) error {
		return handler.Handle(ctx, activityTab, a)
	})
	r.deps.Tabs.Report(tab, err == nil)
	if err != nil {
		var re *models.RunError
		if errors.As(err, &re) || errors.Is(err, context.Canceled) {
			return err
		}
		return models.NewRunError(models.ErrCodeHandler, "activity handler failed", err)
	}
	return nil
}

// locate waits for the first selector that attaches. Each candidate gets the
// full element timeout.
func (r *Runner) locate(ctx context.Context, tab Tab, a models.Activity) (string, error) {
	selectors, err := Selectors(a)
	if err != nil {
		return "", err
	}

	var lastErr error
	for _, sel := range selectors {
		waitCtx, cancel := context.WithTimeout(ctx, r.cfg.ElementTimeout)
		lastErr = tab.WaitSelector(waitCtx, sel)
		cancel()
		if lastErr == nil {
			return sel, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Debug("selector did not attach", "selector", sel, "error", lastErr)
	}
	return "", models.NewRunError(models.ErrCodeSelectorNotFound,
		"activity card not found on dashboard", lastErr)
}

func categorizeClick(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return models.NewRunError(models.ErrCodeHandler, "failed to click activity card", err)
}
