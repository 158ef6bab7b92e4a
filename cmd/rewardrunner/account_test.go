package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/use-agent/rewardrunner/config"
	"github.com/use-agent/rewardrunner/engine"
	"github.com/use-agent/rewardrunner/models"
)

func TestMonitorIdle(t *testing.T) {
	m := newMonitor(3)

	assert.Equal(t, models.TabStats{MaxTabs: 3}, m.TabStats())
	assert.Equal(t, 1.0, m.ThrottleMultiplier())
	assert.Empty(t, m.ActiveAccount())
}

func TestMonitorTracksActiveAccount(t *testing.T) {
	m := newMonitor(3)
	tabs := engine.NewTabManager(engine.TabManagerConfig{MaxTabs: 2}, nil)
	throttle := engine.NewThrottle(engine.ThrottleConfig{MaxMultiplier: 4})
	throttle.RecordFailure()

	m.set("a@example.com", tabs, throttle)
	assert.Equal(t, "a@example.com", m.ActiveAccount())
	assert.Equal(t, 2, m.TabStats().MaxTabs)
	assert.Greater(t, m.ThrottleMultiplier(), 1.0)

	m.clear()
	assert.Empty(t, m.ActiveAccount())
	assert.Equal(t, 3, m.TabStats().MaxTabs)
}

func TestRetryPolicyFromConfig(t *testing.T) {
	p := retryPolicy(config.RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxDelay:    time.Minute,
		Multiplier:  3,
		Jitter:      0.1,
	})
	assert.Equal(t, engine.RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxDelay:    time.Minute,
		Multiplier:  3,
		Jitter:      0.1,
	}, p)
}
