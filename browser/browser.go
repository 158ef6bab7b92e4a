// Package browser implements the runner's tab abstraction on top of a
// Chromium instance driven by rod. Each account gets its own browser
// process with a persistent profile directory so its session survives
// between runs.
package browser

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/rewardrunner/config"
	"github.com/use-agent/rewardrunner/engine"
	"github.com/use-agent/rewardrunner/models"
)

// Browser owns one Chromium process and tracks the tabs it has handed out.
// It is safe for concurrent use.
type Browser struct {
	cfg      config.BrowserConfig
	launcher *launcher.Launcher
	browser  *rod.Browser

	mu   sync.Mutex
	tabs map[proto.TargetTargetID]*tab
}

// Launch starts a browser on profileDir and connects to it.
func Launch(cfg config.BrowserConfig, profileDir string) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox).
		UserDataDir(profileDir)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// Stealth flags. Popups must stay enabled: activity cards open new tabs.
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL, "profile", profileDir)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewRunError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	return &Browser{
		cfg:      cfg,
		launcher: l,
		browser:  b,
		tabs:     make(map[proto.TargetTargetID]*tab),
	}, nil
}

// Tabs lists the open page targets, oldest first as reported by the browser.
func (b *Browser) Tabs(ctx context.Context) ([]engine.Tab, error) {
	pages, err := b.browser.Context(ctx).Pages()
	if err != nil {
		return nil, categorizeError(err, "failed to list tabs")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	live := make(map[proto.TargetTargetID]struct{}, len(pages))
	out := make([]engine.Tab, 0, len(pages))
	for _, p := range pages {
		live[p.TargetID] = struct{}{}
		t, ok := b.tabs[p.TargetID]
		if !ok {
			// Opened by the page itself (e.g. an activity card link).
			t = newTab(p.Context(context.Background()), nil)
			b.tabs[p.TargetID] = t
		}
		if t.Closed() {
			continue
		}
		out = append(out, t)
	}
	for id, t := range b.tabs {
		if _, ok := live[id]; !ok {
			t.markClosed()
			delete(b.tabs, id)
		}
	}
	return out, nil
}

// NewTab opens a tab, installs stealth and request blocking, then navigates
// to url.
func (b *Browser) NewTab(ctx context.Context, url string) (engine.Tab, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeBrowserCrash, "failed to open tab", err)
	}
	// Drop the request context from the stored page so later calls bind
	// their own.
	page = page.Context(context.Background())

	t := newTab(page, b.prepare(page))

	b.mu.Lock()
	b.tabs[page.TargetID] = t
	b.mu.Unlock()

	if url != "" {
		if err := t.Navigate(ctx, url); err != nil {
			return t, err
		}
	}
	return t, nil
}

// prepare applies stealth, headers and blocking to a fresh page. These only
// affect navigations that happen afterwards.
func (b *Browser) prepare(page *rod.Page) *rod.HijackRouter {
	if b.cfg.Stealth {
		if err := injectStealth(page); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}
	if err := (proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(extraHeaders)}).Call(page); err != nil {
		slog.Debug("failed to set extra headers", "error", err)
	}
	return setupHijack(page, b.cfg.BlockedResourceTypes, b.cfg.BlockAds)
}

// Close closes all tabs and kills the browser process. The profile
// directory is left in place.
func (b *Browser) Close() {
	slog.Info("browser shutting down")
	b.mu.Lock()
	for id, t := range b.tabs {
		t.stopRouter()
		delete(b.tabs, id)
	}
	b.mu.Unlock()

	if err := b.browser.Close(); err != nil {
		slog.Debug("browser close failed", "error", err)
	}
	b.launcher.Kill()
	slog.Info("browser shutdown complete")
}
