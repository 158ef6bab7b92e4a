package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Runner    RunnerConfig
	Throttle  ThrottleConfig
	Retry     RetryConfig
	Store     StoreConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Cache     CacheConfig
	Queries   QueriesConfig
	Log       LogConfig
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Enabled bool   // default: true
	Host    string // default: "127.0.0.1"
	Port    int    // default: 8080
	Mode    string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is passed to the browser and the query client.
	Proxy string

	// SessionDir is the root directory holding one Chrome profile per account.
	SessionDir string // default: "./sessions"

	// Stealth injects the stealth script into every new tab.
	Stealth bool // default: true

	// BlockedResourceTypes lists resource types to block on activity tabs.
	// default: ["Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds blocks requests to well-known ad and tracking domains.
	BlockAds bool // default: true
}

// RunnerConfig controls the activity runner.
type RunnerConfig struct {
	// AccountsFile is the YAML file listing the accounts to process.
	AccountsFile string // default: "./accounts.yaml"

	// DashboardURL is the page the working tab must stay on between activities.
	DashboardURL string // default: "https://rewards.bing.com/"

	// MaxTabs caps the number of open tabs; older tabs are closed first.
	MaxTabs int // default: 3

	// ActivityTimeout bounds a single handler execution.
	ActivityTimeout time.Duration // default: 2m

	// ElementTimeout bounds waits for an element to attach.
	ElementTimeout time.Duration // default: 10s

	// NavigationTimeout bounds tab navigation and DOM stability waits.
	NavigationTimeout time.Duration // default: 30s

	// NewTabTimeout bounds the wait for the tab opened by an activity click.
	NewTabTimeout time.Duration // default: 5s

	// QuarantineThreshold is the number of failed runs after which an offer is skipped.
	QuarantineThreshold int // default: 3

	// QuarantineTTL is how long a quarantined offer stays skipped.
	QuarantineTTL time.Duration // default: 6h

	// ActionDelayMin and ActionDelayMax bound the pause before each click
	// inside an activity.
	ActionDelayMin time.Duration // default: 500ms
	ActionDelayMax time.Duration // default: 1.5s

	// DwellMin and DwellMax bound how long visited pages stay open.
	DwellMin time.Duration // default: 5s
	DwellMax time.Duration // default: 10s

	// SearchURL is opened by search activities that land off the search page.
	SearchURL string // default: "https://www.bing.com/"
}

// ThrottleConfig controls the adaptive pacing between actions.
type ThrottleConfig struct {
	MinDelay      time.Duration // default: 2s
	MaxDelay      time.Duration // default: 5s
	MinMultiplier float64       // default: 1.0
	MaxMultiplier float64       // default: 4.0
	Growth        float64       // default: 1.5
	Decay         float64       // default: 0.85

	// ActionsPerSecond is the hard ceiling on throttled actions.
	ActionsPerSecond float64 // default: 1
	Burst            int     // default: 2
}

// RetryConfig controls the per-activity retry policy.
type RetryConfig struct {
	MaxAttempts int           // default: 3
	BaseDelay   time.Duration // default: 1s
	MaxDelay    time.Duration // default: 30s
	Multiplier  float64       // default: 2
	Jitter      float64       // default: 0.2
}

// StoreConfig selects and configures the job-state backend.
type StoreConfig struct {
	// Backend is "sqlite" or "redis".
	Backend string // default: "sqlite"

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string // default: "./sessions/job-state.db"

	// RedisAddr is the address for the redis backend.
	RedisAddr string // default: "127.0.0.1:6379"

	// RedisPassword authenticates against redis.
	RedisPassword string

	// RedisDB selects the redis logical database.
	RedisDB int // default: 0

	// Retention is how long completed job records are kept.
	Retention time.Duration // default: 72h
}

// AuthConfig controls API key authentication on the status server.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting on the status server.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// WebhookConfig controls end-of-run report delivery.
type WebhookConfig struct {
	// URL receives a run.completed event per account. Empty disables delivery.
	URL string

	// Secret signs webhook bodies with HMAC-SHA256 when set.
	Secret string
}

// CacheConfig controls the in-memory run report store.
type CacheConfig struct {
	// MaxEntries is the maximum number of retained run reports.
	MaxEntries int // default: 100

	// TTL is how long a report is kept after it is stored.
	TTL time.Duration // default: 24h
}

// QueriesConfig controls the trending search query source.
type QueriesConfig struct {
	// TrendsURL is the daily trends RSS feed.
	TrendsURL string // default: "https://trends.google.com/trending/rss"

	// Geo is the trends region.
	Geo string // default: "US"

	// Timeout bounds one feed fetch.
	Timeout time.Duration // default: 15s

	// RefreshInterval is how long a fetched feed is reused.
	RefreshInterval time.Duration // default: 6h
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled: envBoolOr("REWARDS_SERVER_ENABLED", true),
			Host:    envOr("REWARDS_HOST", "127.0.0.1"),
			Port:    envIntOr("REWARDS_PORT", 8080),
			Mode:    envOr("REWARDS_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("REWARDS_HEADLESS", true),
			NoSandbox:  envBoolOr("REWARDS_NO_SANDBOX", false),
			BrowserBin: os.Getenv("REWARDS_BROWSER_BIN"),
			Proxy:      os.Getenv("REWARDS_PROXY"),
			SessionDir: envOr("REWARDS_SESSION_DIR", "./sessions"),
			Stealth:    envBoolOr("REWARDS_STEALTH", true),
			BlockedResourceTypes: envSliceOr("REWARDS_BLOCKED_RESOURCES", []string{
				"Font", "Media",
			}),
			BlockAds: envBoolOr("REWARDS_BLOCK_ADS", true),
		},
		Runner: RunnerConfig{
			AccountsFile:        envOr("REWARDS_ACCOUNTS_FILE", "./accounts.yaml"),
			DashboardURL:        envOr("REWARDS_DASHBOARD_URL", "https://rewards.bing.com/"),
			MaxTabs:             envIntOr("REWARDS_MAX_TABS", 3),
			ActivityTimeout:     envDurationOr("REWARDS_ACTIVITY_TIMEOUT", 2*time.Minute),
			ElementTimeout:      envDurationOr("REWARDS_ELEMENT_TIMEOUT", 10*time.Second),
			NavigationTimeout:   envDurationOr("REWARDS_NAV_TIMEOUT", 30*time.Second),
			NewTabTimeout:       envDurationOr("REWARDS_NEW_TAB_TIMEOUT", 5*time.Second),
			QuarantineThreshold: envIntOr("REWARDS_QUARANTINE_THRESHOLD", 3),
			QuarantineTTL:       envDurationOr("REWARDS_QUARANTINE_TTL", 6*time.Hour),
			ActionDelayMin:      envDurationOr("REWARDS_ACTION_DELAY_MIN", 500*time.Millisecond),
			ActionDelayMax:      envDurationOr("REWARDS_ACTION_DELAY_MAX", 1500*time.Millisecond),
			DwellMin:            envDurationOr("REWARDS_DWELL_MIN", 5*time.Second),
			DwellMax:            envDurationOr("REWARDS_DWELL_MAX", 10*time.Second),
			SearchURL:           envOr("REWARDS_SEARCH_URL", "https://www.bing.com/"),
		},
		Throttle: ThrottleConfig{
			MinDelay:         envDurationOr("REWARDS_THROTTLE_MIN_DELAY", 2*time.Second),
			MaxDelay:         envDurationOr("REWARDS_THROTTLE_MAX_DELAY", 5*time.Second),
			MinMultiplier:    envFloatOr("REWARDS_THROTTLE_MIN_MULTIPLIER", 1.0),
			MaxMultiplier:    envFloatOr("REWARDS_THROTTLE_MAX_MULTIPLIER", 4.0),
			Growth:           envFloatOr("REWARDS_THROTTLE_GROWTH", 1.5),
			Decay:            envFloatOr("REWARDS_THROTTLE_DECAY", 0.85),
			ActionsPerSecond: envFloatOr("REWARDS_THROTTLE_RPS", 1.0),
			Burst:            envIntOr("REWARDS_THROTTLE_BURST", 2),
		},
		Retry: RetryConfig{
			MaxAttempts: envIntOr("REWARDS_RETRY_ATTEMPTS", 3),
			BaseDelay:   envDurationOr("REWARDS_RETRY_BASE_DELAY", time.Second),
			MaxDelay:    envDurationOr("REWARDS_RETRY_MAX_DELAY", 30*time.Second),
			Multiplier:  envFloatOr("REWARDS_RETRY_MULTIPLIER", 2.0),
			Jitter:      envFloatOr("REWARDS_RETRY_JITTER", 0.2),
		},
		Store: StoreConfig{
			Backend:       envOr("REWARDS_STORE", "sqlite"),
			SQLitePath:    envOr("REWARDS_SQLITE_PATH", "./sessions/job-state.db"),
			RedisAddr:     envOr("REWARDS_REDIS_ADDR", "127.0.0.1:6379"),
			RedisPassword: os.Getenv("REWARDS_REDIS_PASSWORD"),
			RedisDB:       envIntOr("REWARDS_REDIS_DB", 0),
			Retention:     envDurationOr("REWARDS_STORE_RETENTION", 72*time.Hour),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("REWARDS_AUTH_ENABLED", false),
			APIKeys: envSliceOr("REWARDS_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("REWARDS_RATE_RPS", 5.0),
			Burst:             envIntOr("REWARDS_RATE_BURST", 10),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("REWARDS_WEBHOOK_URL"),
			Secret: os.Getenv("REWARDS_WEBHOOK_SECRET"),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("REWARDS_REPORT_CACHE", 100),
			TTL:        envDurationOr("REWARDS_REPORT_TTL", 24*time.Hour),
		},
		Queries: QueriesConfig{
			TrendsURL:       envOr("REWARDS_TRENDS_URL", "https://trends.google.com/trending/rss"),
			Geo:             envOr("REWARDS_TRENDS_GEO", "US"),
			Timeout:         envDurationOr("REWARDS_TRENDS_TIMEOUT", 15*time.Second),
			RefreshInterval: envDurationOr("REWARDS_TRENDS_REFRESH", 6*time.Hour),
		},
		Log: LogConfig{
			Level:  envOr("REWARDS_LOG_LEVEL", "info"),
			Format: envOr("REWARDS_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
