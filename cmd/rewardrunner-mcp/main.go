package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/rewardrunner/models"
)

func main() {
	apiURL := os.Getenv("REWARDS_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	// Only required when the status server has auth enabled.
	apiKey := os.Getenv("REWARDS_API_KEY")

	c := &client{
		baseURL: strings.TrimRight(apiURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	s := server.NewMCPServer(
		"rewardrunner",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	healthTool := mcp.NewTool("get_health",
		mcp.WithDescription("Report the runner's health: uptime, open browser tabs, throttle multiplier and the account currently being processed."),
	)
	s.AddTool(healthTool, handleHealth(c))

	listRunsTool := mcp.NewTool("list_runs",
		mcp.WithDescription("List the latest run report of every account, newest first."),
	)
	s.AddTool(listRunsTool, handleListRuns(c))

	getRunTool := mcp.NewTool("get_run",
		mcp.WithDescription("Get the latest run report for one account, including per-kind activity statistics."),
		mcp.WithString("account",
			mcp.Required(),
			mcp.Description("The account email the run was made for"),
		),
	)
	s.AddTool(getRunTool, handleGetRun(c))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// client calls the rewardrunner status API.
type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// get fetches path and decodes the JSON body into out. Non-2xx responses
// are decoded as well so callers can surface the API's error detail.
func (c *client) get(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}

func handleHealth(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var h models.HealthResponse
		if _, err := c.get(ctx, "/api/v1/health", &h); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatHealth(&h)), nil
	}
}

func handleListRuns(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var resp models.RunsResponse
		if _, err := c.get(ctx, "/api/v1/runs", &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(errorText(resp.Error, "list runs failed")), nil
		}
		if len(resp.Runs) == 0 {
			return mcp.NewToolResultText("No runs recorded yet."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%d run(s)\n", len(resp.Runs))
		for _, run := range resp.Runs {
			sb.WriteString("\n")
			sb.WriteString(formatRun(run, false))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleGetRun(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		account, err := request.RequireString("account")
		if err != nil {
			return mcp.NewToolResultError("account is required"), nil
		}

		var resp models.RunsResponse
		if _, err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(account), &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success || resp.Run == nil {
			return mcp.NewToolResultError(errorText(resp.Error, "run not found")), nil
		}
		return mcp.NewToolResultText(formatRun(resp.Run, true)), nil
	}
}

func formatHealth(h *models.HealthResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Status: %s (version %s)\n", h.Status, h.Version)
	fmt.Fprintf(&sb, "Uptime: %s\n", h.Uptime)
	fmt.Fprintf(&sb, "Tabs: %d open / %d max (%d retired)\n",
		h.TabStats.OpenTabs, h.TabStats.MaxTabs, h.TabStats.Retired)
	fmt.Fprintf(&sb, "Throttle multiplier: %.2f\n", h.ThrottleMultiple)
	if h.ActiveAccount != "" {
		fmt.Fprintf(&sb, "Active account: %s\n", h.ActiveAccount)
	} else {
		sb.WriteString("Active account: none\n")
	}
	return sb.String()
}

func formatRun(r *models.RunReport, withStats bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Account: %s\nRun: %s\n", r.Account, r.RunID)
	fmt.Fprintf(&sb, "Finished: %s (took %s)\n",
		r.FinishedAt.Format(time.RFC3339), r.Duration().Round(time.Second))
	fmt.Fprintf(&sb, "Processed: %d, succeeded: %d, failed: %d, skipped: %d\n",
		r.Processed, r.Succeeded, r.Failed, r.Skipped)
	fmt.Fprintf(&sb, "Points: %d -> %d (+%d)\n",
		r.PointsBefore, r.PointsAfter, r.PointsAfter-r.PointsBefore)
	if r.Error != nil {
		fmt.Fprintf(&sb, "Interrupted: [%s] %s\n", r.Error.Code, r.Error.Message)
	}
	if withStats && len(r.Stats) > 0 {
		sb.WriteString("\nKind            attempts  ok  failed  avg\n")
		for _, s := range r.Stats {
			fmt.Fprintf(&sb, "%-15s %8d %3d %7d  %s\n",
				s.Kind, s.Attempts, s.Successes, s.Failures, s.AverageDuration().Round(time.Millisecond))
			if s.LastError != "" {
				fmt.Fprintf(&sb, "  last error: %s\n", s.LastError)
			}
		}
	}
	return sb.String()
}

func errorText(detail *models.ErrorDetail, fallback string) string {
	if detail == nil {
		return fallback
	}
	return fmt.Sprintf("[%s] %s", detail.Code, detail.Message)
}
