package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/rewardrunner/api"
	"github.com/use-agent/rewardrunner/cache"
	"github.com/use-agent/rewardrunner/config"
	"github.com/use-agent/rewardrunner/jobstate"
	"github.com/use-agent/rewardrunner/queries"
	"github.com/use-agent/rewardrunner/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("rewardrunner starting",
		"accountsFile", cfg.Runner.AccountsFile,
		"store", cfg.Store.Backend,
		"maxTabs", cfg.Runner.MaxTabs,
		"server", cfg.Server.Enabled,
	)

	accounts, err := config.LoadAccounts(cfg.Runner.AccountsFile)
	if err != nil {
		slog.Error("failed to load accounts", "error", err)
		os.Exit(1)
	}
	if len(accounts) == 0 {
		slog.Warn("no enabled accounts, nothing to do")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 3. Open the job-state store ─────────────────────────────────
	store, err := jobstate.Open(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open job store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if cfg.Store.Retention > 0 {
		n, err := store.Prune(ctx, time.Now().Add(-cfg.Store.Retention))
		if err != nil {
			slog.Warn("failed to prune job store", "error", err)
		} else if n > 0 {
			slog.Info("pruned job store", "removed", n)
		}
	}

	// ── 4. Reporting: report cache and webhook ──────────────────────
	reports := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	defer reports.Stop()
	notifier := webhook.New(cfg.Webhook.URL, cfg.Webhook.Secret)

	// ── 5. Search query source ──────────────────────────────────────
	// A nil source leaves search activities on their embedded query.
	var source *queries.Source
	if s, err := queries.New(cfg.Queries, cfg.Browser.Proxy); err != nil {
		slog.Warn("trending query source unavailable", "error", err)
	} else {
		source = s
	}

	// ── 6. Optional status server ───────────────────────────────────
	mon := newMonitor(cfg.Runner.MaxTabs)
	var srv *http.Server
	if cfg.Server.Enabled {
		router, limiter := api.NewRouter(mon, reports, cfg, time.Now())
		defer limiter.Stop()

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv = &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("status server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("status server error", "error", err)
			}
		}()
	}

	// ── 7. Process accounts one at a time ───────────────────────────
	r := &accountRunner{
		cfg:      cfg,
		store:    store,
		reports:  reports,
		notifier: notifier,
		mon:      mon,
	}
	if source != nil {
		r.queries = source
	}

	failed := 0
	for _, account := range accounts {
		if ctx.Err() != nil {
			break
		}
		if err := r.run(ctx, account); err != nil {
			failed++
			slog.Error("account run failed", "account", account.Email, "error", err)
		}
	}

	if ctx.Err() != nil {
		slog.Info("shutdown signal received, stopping early")
	}

	// ── 8. Graceful shutdown ────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	if err := notifier.Wait(shutdownCtx); err != nil {
		slog.Warn("webhook deliveries still pending at shutdown", "error", err)
	}

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("status server forced shutdown", "error", err)
		} else {
			slog.Info("status server drained gracefully")
		}
	}

	slog.Info("rewardrunner stopped", "accounts", len(accounts), "failed", failed)
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
