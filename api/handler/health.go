package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/rewardrunner/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// degradedMultiplier is the throttle multiplier at which the runner is
// considered to be backing off hard.
const degradedMultiplier = 2.0

// StatusProvider exposes the live state of the account currently running.
type StatusProvider interface {
	TabStats() models.TabStats
	ThrottleMultiplier() float64
	ActiveAccount() string
}

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when the throttle is backing off or more tabs are open
// than the cap allows.
func Health(sp StatusProvider, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sp.TabStats()
		multiplier := sp.ThrottleMultiplier()

		status := "healthy"
		if multiplier >= degradedMultiplier || (stats.MaxTabs > 0 && stats.OpenTabs > stats.MaxTabs) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:           status,
			Uptime:           time.Since(startTime).Round(time.Second).String(),
			TabStats:         stats,
			ThrottleMultiple: multiplier,
			ActiveAccount:    sp.ActiveAccount(),
			Version:          Version,
		})
	}
}
