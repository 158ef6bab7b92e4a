package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/rewardrunner/config"
	"github.com/use-agent/rewardrunner/models"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per identity (API key or client IP).
// Buckets idle for an hour are evicted every five minutes.
type RateLimiter struct {
	cfg config.RateLimitConfig

	mu       sync.Mutex
	limiters map[string]*limiterEntry

	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a RateLimiter and starts its eviction loop.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	rl := &RateLimiter{
		cfg:      cfg,
		limiters: make(map[string]*limiterEntry),
		done:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow takes a token for identity.
func (rl *RateLimiter) Allow(identity string) bool {
	rl.mu.Lock()
	entry, ok := rl.limiters[identity]
	if !ok {
		limit := rate.Inf
		if rl.cfg.RequestsPerSecond > 0 {
			limit = rate.Limit(rl.cfg.RequestsPerSecond)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(limit, rl.cfg.Burst)}
		rl.limiters[identity] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// Middleware returns the gin handler. The API key set by Auth is preferred
// as identity; the client IP is used otherwise.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.GetString(apiKeyContextKey)
		if identity == "" {
			identity = c.ClientIP()
		}

		if !rl.Allow(identity) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.RunsResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}
		c.Next()
	}
}

// Stop terminates the eviction loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-1 * time.Hour)
			rl.mu.Lock()
			for id, entry := range rl.limiters {
				if entry.lastSeen.Before(cutoff) {
					delete(rl.limiters, id)
				}
			}
			rl.mu.Unlock()
		}
	}
}
