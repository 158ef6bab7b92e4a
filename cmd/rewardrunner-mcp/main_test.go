package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/rewardrunner/models"
)

func testServer(t *testing.T) (*client, chan string) {
	t.Helper()
	keys := make(chan string, 8)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("X-API-Key")
		_ = json.NewEncoder(w).Encode(models.HealthResponse{
			Status:           "healthy",
			Uptime:           "1m0s",
			TabStats:         models.TabStats{MaxTabs: 3, OpenTabs: 1},
			ThrottleMultiple: 1.5,
			ActiveAccount:    "a@example.com",
			Version:          "0.1.0",
		})
	})
	start := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	run := &models.RunReport{
		RunID:        "run-1",
		Account:      "a@example.com",
		StartedAt:    start,
		FinishedAt:   start.Add(2 * time.Minute),
		Processed:    3,
		Succeeded:    2,
		Failed:       1,
		PointsBefore: 100,
		PointsAfter:  130,
		Stats: []models.StatRecord{
			{Kind: models.KindQuiz, Attempts: 2, Successes: 1, Failures: 1, LastError: "[TIMEOUT] quiz stalled"},
		},
	}
	mux.HandleFunc("/api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.RunsResponse{Success: true, Runs: []*models.RunReport{run}})
	})
	mux.HandleFunc("/api/v1/runs/a@example.com", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.RunsResponse{Success: true, Run: run})
	})
	mux.HandleFunc("/api/v1/runs/missing@example.com", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(models.RunsResponse{
			Error: &models.ErrorDetail{Code: models.ErrCodeNotFound, Message: "no run recorded for missing@example.com"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &client{baseURL: srv.URL, apiKey: "secret", http: srv.Client()}, keys
}

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestHealthTool(t *testing.T) {
	c, keys := testServer(t)

	out, isErr := callTool(t, handleHealth(c), nil)
	assert.False(t, isErr)
	assert.Contains(t, out, "Status: healthy")
	assert.Contains(t, out, "Tabs: 1 open / 3 max")
	assert.Contains(t, out, "Throttle multiplier: 1.50")
	assert.Contains(t, out, "Active account: a@example.com")
	assert.Equal(t, "secret", <-keys)
}

func TestListRunsTool(t *testing.T) {
	c, _ := testServer(t)

	out, isErr := callTool(t, handleListRuns(c), nil)
	assert.False(t, isErr)
	assert.Contains(t, out, "1 run(s)")
	assert.Contains(t, out, "Points: 100 -> 130 (+30)")
	assert.NotContains(t, out, "last error")
}

func TestGetRunTool(t *testing.T) {
	c, _ := testServer(t)

	out, isErr := callTool(t, handleGetRun(c), map[string]any{"account": "a@example.com"})
	assert.False(t, isErr)
	assert.Contains(t, out, "Run: run-1")
	assert.Contains(t, out, "took 2m0s")
	assert.Contains(t, out, "last error: [TIMEOUT] quiz stalled")

	out, isErr = callTool(t, handleGetRun(c), map[string]any{"account": "missing@example.com"})
	assert.True(t, isErr)
	assert.Contains(t, out, "[NOT_FOUND]")

	out, isErr = callTool(t, handleGetRun(c), map[string]any{})
	assert.True(t, isErr)
	assert.Equal(t, "account is required", out)
}

func TestHealthToolUnreachable(t *testing.T) {
	c := &client{baseURL: "http://127.0.0.1:1", http: &http.Client{Timeout: time.Second}}

	out, isErr := callTool(t, handleHealth(c), nil)
	assert.True(t, isErr)
	assert.Contains(t, out, "API request failed")
}
