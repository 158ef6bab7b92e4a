package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/use-agent/rewardrunner/api/handler"
	"github.com/use-agent/rewardrunner/api/middleware"
	"github.com/use-agent/rewardrunner/cache"
	"github.com/use-agent/rewardrunner/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	Runs:    Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so probes and scrapers always work.
// The returned limiter must be stopped on shutdown.
func NewRouter(sp handler.StatusProvider, reports *cache.Reports, cfg *config.Config, startTime time.Time) (*gin.Engine, *middleware.RateLimiter) {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(sp, startTime))

	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	runs := v1.Group("/runs")
	if cfg.Auth.Enabled {
		runs.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	runs.Use(limiter.Middleware())

	runs.GET("", handler.ListRuns(reports))
	runs.GET("/:account", handler.GetRun(reports))

	return r, limiter
}
