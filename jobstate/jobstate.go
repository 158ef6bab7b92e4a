// Package jobstate records which activities were completed per account and
// day, so a rerun on the same day skips finished work.
package jobstate

import (
	"context"
	"fmt"
	"time"

	"github.com/use-agent/rewardrunner/config"
	"github.com/use-agent/rewardrunner/engine"
)

// Store is an engine.JobStore with housekeeping. It also keeps each
// account's quarantine streaks so they outlive a process run.
type Store interface {
	engine.JobStore
	engine.QuarantineStore

	// Prune removes records for days before cutoff and returns how many
	// were removed. Quarantine streaks whose last failure is older than
	// cutoff go with them.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

// Open returns the backend selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	case "redis":
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.Retention,
		})
	default:
		return nil, fmt.Errorf("jobstate: unknown backend %q", cfg.Backend)
	}
}

// dayOf formats cutoff the way day keys are stored.
func dayOf(t time.Time) string {
	return t.Format(time.DateOnly)
}
