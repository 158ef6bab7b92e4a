package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/rewardrunner/cache"
	"github.com/use-agent/rewardrunner/models"
)

// ListRuns returns a handler for GET /api/v1/runs: the latest report of
// every account, most recent first.
func ListRuns(reports *cache.Reports) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.RunsResponse{
			Success: true,
			Runs:    reports.List(),
		})
	}
}

// GetRun returns a handler for GET /api/v1/runs/:account.
func GetRun(reports *cache.Reports) gin.HandlerFunc {
	return func(c *gin.Context) {
		account := strings.TrimSpace(c.Param("account"))
		if account == "" {
			c.JSON(http.StatusBadRequest, models.RunsResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "account is required",
				},
			})
			return
		}

		report, ok := reports.Get(account)
		if !ok {
			c.JSON(http.StatusNotFound, models.RunsResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeNotFound,
					Message: "no run recorded for " + account,
				},
			})
			return
		}

		c.JSON(http.StatusOK, models.RunsResponse{Success: true, Run: report})
	}
}
