package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/rewardrunner/activities"
	"github.com/use-agent/rewardrunner/browser"
	"github.com/use-agent/rewardrunner/cache"
	"github.com/use-agent/rewardrunner/config"
	"github.com/use-agent/rewardrunner/dashboard"
	"github.com/use-agent/rewardrunner/engine"
	"github.com/use-agent/rewardrunner/jobstate"
	"github.com/use-agent/rewardrunner/models"
	"github.com/use-agent/rewardrunner/webhook"
)

// accountRunner holds the process-wide collaborators shared by every
// account. Browser, tabs, throttle and stats are created per account.
type accountRunner struct {
	cfg      *config.Config
	store    jobstate.Store
	reports  *cache.Reports
	notifier *webhook.Notifier
	queries  activities.QuerySource
	mon      *monitor
}

// run processes one account on its own browser profile.
func (r *accountRunner) run(ctx context.Context, account config.Account) error {
	log := slog.With("account", account.Email)
	profile := account.ProfilePath(r.cfg.Browser.SessionDir)

	b, err := browser.Launch(r.cfg.Browser, profile)
	if err != nil {
		return err
	}
	defer b.Close()

	rc := r.cfg.Runner
	tabs := engine.NewTabManager(engine.TabManagerConfig{
		MaxTabs:           rc.MaxTabs,
		NavigationTimeout: rc.NavigationTimeout,
		NewTabTimeout:     rc.NewTabTimeout,
	}, b)

	tc := r.cfg.Throttle
	throttle := engine.NewThrottle(engine.ThrottleConfig{
		MinDelay:         tc.MinDelay,
		MaxDelay:         tc.MaxDelay,
		MinMultiplier:    tc.MinMultiplier,
		MaxMultiplier:    tc.MaxMultiplier,
		Growth:           tc.Growth,
		Decay:            tc.Decay,
		ActionsPerSecond: tc.ActionsPerSecond,
		Burst:            tc.Burst,
	})

	quarantine := engine.NewQuarantine(rc.QuarantineThreshold, rc.QuarantineTTL)
	defer quarantine.Stop()

	r.mon.set(account.Email, tabs, throttle)
	defer r.mon.clear()

	registry := activities.NewRegistry(activities.Config{
		ElementTimeout: rc.ElementTimeout,
		ActionDelayMin: rc.ActionDelayMin,
		ActionDelayMax: rc.ActionDelayMax,
		DwellMin:       rc.DwellMin,
		DwellMax:       rc.DwellMax,
		SearchURL:      rc.SearchURL,
	}, throttle, r.queries)

	now := time.Now()
	runner := engine.NewRunner(engine.RunnerConfig{
		Account:         account.Email,
		Day:             now.Format(time.DateOnly),
		DashboardURL:    rc.DashboardURL,
		ActivityTimeout: rc.ActivityTimeout,
		ElementTimeout:  rc.ElementTimeout,
	}, engine.Deps{
		Tabs:            tabs,
		Throttle:        throttle,
		Retry:           retryPolicy(r.cfg.Retry),
		Stats:           engine.NewTracker(),
		Jobs:            r.store,
		Handlers:        registry.Handlers(),
		Quarantine:      quarantine,
		QuarantineStore: r.store,
	})

	// ── Read the dashboard on the working tab ───────────────────────
	reader := dashboard.NewReader(rc.DashboardURL, rc.NavigationTimeout)
	tab, err := tabs.Ensure(ctx, nil, rc.DashboardURL)
	if err != nil {
		return fmt.Errorf("open dashboard tab: %w", err)
	}
	before, err := reader.Read(ctx, tab)
	if err != nil {
		return err
	}
	pending := dashboard.Collect(before, now)
	log.Info("dashboard read",
		"points", before.UserStatus.AvailablePoints,
		"activities", len(pending),
	)

	// ── Run ─────────────────────────────────────────────────────────
	runner.SetTab(tab)
	report, runErr := runner.Run(ctx, pending)
	report.PointsBefore = before.UserStatus.AvailablePoints
	report.PointsAfter = report.PointsBefore

	if runErr == nil {
		if tab, err := tabs.Ensure(ctx, runner.Tab(), rc.DashboardURL); err == nil {
			if after, err := reader.Read(ctx, tab); err == nil {
				report.PointsAfter = after.UserStatus.AvailablePoints
			} else {
				log.Warn("failed to re-read dashboard", "error", err)
			}
		}
	}

	// ── Report ──────────────────────────────────────────────────────
	r.reports.Put(report)
	r.notifier.DeliverAsync(webhook.NewRunCompleted(report))

	log.Info("account finished",
		"run_id", report.RunID,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"earned", report.PointsAfter-report.PointsBefore,
		"duration", report.Duration(),
	)
	return runErr
}

func retryPolicy(c config.RetryConfig) engine.RetryPolicy {
	return engine.RetryPolicy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay,
		MaxDelay:    c.MaxDelay,
		Multiplier:  c.Multiplier,
		Jitter:      c.Jitter,
	}
}

// monitor exposes the account currently running to the status server.
type monitor struct {
	maxTabs int

	mu       sync.RWMutex
	account  string
	tabs     *engine.TabManager
	throttle *engine.Throttle
}

func newMonitor(maxTabs int) *monitor {
	return &monitor{maxTabs: maxTabs}
}

func (m *monitor) set(account string, tabs *engine.TabManager, throttle *engine.Throttle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account, m.tabs, m.throttle = account, tabs, throttle
}

func (m *monitor) clear() { m.set("", nil, nil) }

func (m *monitor) TabStats() models.TabStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tabs == nil {
		return models.TabStats{MaxTabs: m.maxTabs}
	}
	return m.tabs.Stats()
}

func (m *monitor) ThrottleMultiplier() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.throttle == nil {
		return 1
	}
	return m.throttle.Multiplier()
}

func (m *monitor) ActiveAccount() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.account
}
