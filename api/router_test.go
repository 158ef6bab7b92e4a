package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/rewardrunner/cache"
	"github.com/use-agent/rewardrunner/config"
	"github.com/use-agent/rewardrunner/models"
)

type fakeStatus struct {
	tabs       models.TabStats
	multiplier float64
	account    string
}

func (f fakeStatus) TabStats() models.TabStats   { return f.tabs }
func (f fakeStatus) ThrottleMultiplier() float64 { return f.multiplier }
func (f fakeStatus) ActiveAccount() string       { return f.account }

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Server.Mode = gin.TestMode
	cfg.Auth = config.AuthConfig{}
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100}
	return cfg
}

func newTestRouter(t *testing.T, cfg *config.Config, sp fakeStatus, reports *cache.Reports) *gin.Engine {
	t.Helper()
	r, limiter := NewRouter(sp, reports, cfg, time.Now().Add(-time.Minute))
	t.Cleanup(limiter.Stop)
	return r
}

func do(r http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	reports := cache.New(10, time.Hour)
	defer reports.Stop()

	sp := fakeStatus{
		tabs:       models.TabStats{MaxTabs: 3, OpenTabs: 2},
		multiplier: 1.2,
		account:    "alice@example.com",
	}
	w := do(newTestRouter(t, testConfig(), sp, reports), http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 2, resp.TabStats.OpenTabs)
	assert.Equal(t, 1.2, resp.ThrottleMultiple)
	assert.Equal(t, "alice@example.com", resp.ActiveAccount)
}

func TestHealth_DegradedWhileBackingOff(t *testing.T) {
	reports := cache.New(10, time.Hour)
	defer reports.Stop()

	w := do(newTestRouter(t, testConfig(), fakeStatus{multiplier: 3}, reports), http.MethodGet, "/api/v1/health", nil)
	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestRuns(t *testing.T) {
	reports := cache.New(10, time.Hour)
	defer reports.Stop()
	reports.Put(&models.RunReport{RunID: "r1", Account: "alice", Succeeded: 4, FinishedAt: time.Now()})

	r := newTestRouter(t, testConfig(), fakeStatus{}, reports)

	w := do(r, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list models.RunsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.True(t, list.Success)
	require.Len(t, list.Runs, 1)
	assert.Equal(t, "r1", list.Runs[0].RunID)

	w = do(r, http.MethodGet, "/api/v1/runs/alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var one models.RunsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &one))
	require.NotNil(t, one.Run)
	assert.Equal(t, 4, one.Run.Succeeded)

	w = do(r, http.MethodGet, "/api/v1/runs/bob", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	var missing models.RunsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &missing))
	assert.Equal(t, models.ErrCodeNotFound, missing.Error.Code)
}

func TestRuns_Auth(t *testing.T) {
	reports := cache.New(10, time.Hour)
	defer reports.Stop()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKeys: []string{"k1", "k2"}}
	r := newTestRouter(t, cfg, fakeStatus{}, reports)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/v1/runs", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/v1/runs", map[string]string{"X-API-Key": "nope"}).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/runs", map[string]string{"X-API-Key": "k2"}).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/runs", map[string]string{"Authorization": "Bearer k1"}).Code)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/health", nil).Code, "health stays open")
}

func TestRuns_RateLimited(t *testing.T) {
	reports := cache.New(10, time.Hour)
	defer reports.Stop()

	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}
	r := newTestRouter(t, cfg, fakeStatus{}, reports)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/runs", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/runs", nil).Code)
	w := do(r, http.MethodGet, "/api/v1/runs", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reports := cache.New(10, time.Hour)
	defer reports.Stop()

	w := do(newTestRouter(t, testConfig(), fakeStatus{}, reports), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
