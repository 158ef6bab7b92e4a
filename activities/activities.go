// Package activities holds the handlers for each kind of rewards activity.
// A handler runs on the tab the activity card opened and returns once the
// activity is finished or it gives up.
package activities

import (
	"context"
	"time"

	"github.com/use-agent/rewardrunner/engine"
	"github.com/use-agent/rewardrunner/models"
)

// Config bounds the waits and pacing applied inside handlers.
type Config struct {
	// ElementTimeout bounds every wait for a single element.
	ElementTimeout time.Duration

	// ActionDelayMin and ActionDelayMax form the base pause before each
	// click or keystroke burst. The throttle multiplier scales it.
	ActionDelayMin time.Duration
	ActionDelayMax time.Duration

	// DwellMin and DwellMax bound how long a visited page is kept open.
	DwellMin time.Duration
	DwellMax time.Duration

	// MaxQuestions caps quiz loops when the page does not report a count.
	MaxQuestions int

	// SearchURL is opened when a search activity lands off the search page.
	SearchURL string
}

// DefaultConfig returns the handler defaults.
func DefaultConfig() Config {
	return Config{
		ElementTimeout: 10 * time.Second,
		ActionDelayMin: 500 * time.Millisecond,
		ActionDelayMax: 1500 * time.Millisecond,
		DwellMin:       5 * time.Second,
		DwellMax:       10 * time.Second,
		MaxQuestions:   10,
		SearchURL:      "https://www.bing.com/",
	}
}

// QuerySource supplies the search terms typed by search activities.
type QuerySource interface {
	Query(ctx context.Context, a models.Activity) string
}

// Registry builds the handler set for the runner.
type Registry struct {
	cfg      Config
	throttle *engine.Throttle
	queries  QuerySource
}

// NewRegistry creates a Registry. queries may be nil, in which case search
// activities use the query embedded in the activity.
func NewRegistry(cfg Config, throttle *engine.Throttle, queries QuerySource) *Registry {
	def := DefaultConfig()
	if cfg.ElementTimeout <= 0 {
		cfg.ElementTimeout = def.ElementTimeout
	}
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = def.MaxQuestions
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = def.SearchURL
	}
	if cfg.ActionDelayMax < cfg.ActionDelayMin {
		cfg.ActionDelayMax = cfg.ActionDelayMin
	}
	if cfg.DwellMax < cfg.DwellMin {
		cfg.DwellMax = cfg.DwellMin
	}
	if throttle == nil {
		throttle = engine.NewThrottle(engine.ThrottleConfig{})
	}
	return &Registry{cfg: cfg, throttle: throttle, queries: queries}
}

// Handlers returns one handler per supported activity kind.
func (r *Registry) Handlers() engine.Handlers {
	return engine.Handlers{
		models.KindURLReward:    engine.HandlerFunc(r.urlReward),
		models.KindSearchOnBing: engine.HandlerFunc(r.searchOnBing),
		models.KindPoll:         engine.HandlerFunc(r.poll),
		models.KindABC:          engine.HandlerFunc(r.abc),
		models.KindThisOrThat:   engine.HandlerFunc(r.thisOrThat),
		models.KindQuiz:         engine.HandlerFunc(r.quiz),
	}
}
