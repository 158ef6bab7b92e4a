package engine

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ThrottleConfig holds configuration for the adaptive throttle.
type ThrottleConfig struct {
	MinDelay      time.Duration
	MaxDelay      time.Duration
	MinMultiplier float64
	MaxMultiplier float64
	Growth        float64 // applied on every failure, > 1
	Decay         float64 // applied on every success, 0-1

	ActionsPerSecond float64 // <= 0 disables the rate ceiling
	Burst            int
}

// Throttle paces UI and network actions. A multiplier grows after failures
// and decays after successes, and always stays within
// [MinMultiplier, MaxMultiplier]. It scales the base delay window applied
// before every throttled action.
type Throttle struct {
	cfg     ThrottleConfig
	limiter *rate.Limiter

	mu            sync.Mutex
	multiplier    float64
	successStreak int
	failureStreak int
}

// NewThrottle creates a Throttle, normalising out-of-range settings.
func NewThrottle(cfg ThrottleConfig) *Throttle {
	if cfg.MinMultiplier <= 0 {
		cfg.MinMultiplier = 1
	}
	if cfg.MaxMultiplier < cfg.MinMultiplier {
		cfg.MaxMultiplier = cfg.MinMultiplier
	}
	if cfg.Growth <= 1 {
		cfg.Growth = 1.5
	}
	if cfg.Decay <= 0 || cfg.Decay >= 1 {
		cfg.Decay = 0.85
	}
	if cfg.MinDelay < 0 {
		cfg.MinDelay = 0
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}

	limit := rate.Inf
	if cfg.ActionsPerSecond > 0 {
		limit = rate.Limit(cfg.ActionsPerSecond)
	}

	return &Throttle{
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		multiplier: cfg.MinMultiplier,
	}
}

// RecordSuccess decays the multiplier towards the lower bound.
func (t *Throttle) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successStreak++
	t.failureStreak = 0
	t.multiplier = t.clamp(t.multiplier * t.cfg.Decay)
	recordMultiplier(t.multiplier)
}

// RecordFailure grows the multiplier towards the upper bound.
func (t *Throttle) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failureStreak++
	t.successStreak = 0
	t.multiplier = t.clamp(t.multiplier * t.cfg.Growth)
	recordMultiplier(t.multiplier)
}

// Record is a convenience wrapper around RecordSuccess/RecordFailure.
func (t *Throttle) Record(ok bool) {
	if ok {
		t.RecordSuccess()
	} else {
		t.RecordFailure()
	}
}

// Multiplier returns the current delay multiplier.
func (t *Throttle) Multiplier() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.multiplier
}

// Streaks returns the current consecutive success and failure counts.
func (t *Throttle) Streaks() (successes, failures int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.successStreak, t.failureStreak
}

// Delay picks a random duration in [min*m, max*m] for the current multiplier m.
func (t *Throttle) Delay(min, max time.Duration) time.Duration {
	if max < min {
		min, max = max, min
	}
	m := t.Multiplier()
	lo := time.Duration(float64(min) * m)
	hi := time.Duration(float64(max) * m)
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}

// Wait blocks for a throttled delay from the configured base window.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.WaitRange(ctx, t.cfg.MinDelay, t.cfg.MaxDelay)
}

// WaitRange takes a token from the action rate limiter and then sleeps for a
// throttled delay drawn from [min, max].
func (t *Throttle) WaitRange(ctx context.Context, min, max time.Duration) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	d := t.Delay(min, max)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// clamp bounds m to the configured range. Caller must hold t.mu.
func (t *Throttle) clamp(m float64) float64 {
	if math.IsNaN(m) {
		return t.cfg.MinMultiplier
	}
	return math.Min(t.cfg.MaxMultiplier, math.Max(t.cfg.MinMultiplier, m))
}
