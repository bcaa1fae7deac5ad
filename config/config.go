package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Browser    BrowserConfig
	Scraper    ScraperConfig
	Collector  CollectorConfig
	Classifier ClassifierConfig
	Queue      QueueConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Cache      CacheConfig
	Webhook    WebhookConfig
	Log        LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity, i.e. the number of collection
	// runs that may execute at once.
	MaxPages int // default: 4

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// ControlURL connects to an already running browser instead of launching one.
	ControlURL string
}

// ScraperConfig controls page preparation before a collection run.
type ScraperConfig struct {
	// DefaultTimeout bounds a whole scrape job (navigation + collection).
	DefaultTimeout time.Duration // default: 5m

	// MaxTimeout is the maximum allowed timeout from the client.
	MaxTimeout time.Duration // default: 15m

	// NavigationTimeout is the max time for page.Navigate alone.
	NavigationTimeout time.Duration // default: 30s

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// Stealth injects anti-automation evasions before navigation.
	Stealth bool // default: true

	// AuthToken is the session cookie sent to the social network; profile
	// timelines are mostly hidden from logged-out visitors.
	AuthToken string

	// CookieDomain is the domain the auth cookie is bound to.
	CookieDomain string // default: ".x.com"

	// BaseURL is used to build profile URLs from bare handles.
	BaseURL string // default: "https://x.com"
}

// CollectorConfig holds the scroll/scan timing of the post collector.
type CollectorConfig struct {
	DefaultTarget int // default: 50
	MaxTarget     int // default: 500

	InitialScroll int           // default: 300
	InitialSettle time.Duration // default: 1s
	RetryScroll   int           // default: 500
	RetrySettle   time.Duration // default: 1.5s

	ScrollBase   int           // default: 600
	ScrollJitter int           // default: 200
	ScrollSettle time.Duration // default: 800ms

	CycleDelayBase   time.Duration // default: 800ms
	CycleDelayJitter time.Duration // default: 500ms

	StuckRecoverAt int // default: 3
	StuckLimit     int // default: 5

	ProgressEvery int // default: 5
}

// ClassifierConfig controls the remote classification service client.
type ClassifierConfig struct {
	// Endpoint receives the profile JSON via POST.
	Endpoint string // default: "http://127.0.0.1:5000/api/analyze"

	// StatusEndpoint is probed by the health handler. Empty disables the probe.
	StatusEndpoint string // default: "http://127.0.0.1:5000/api/status"

	Timeout time.Duration // default: 120s

	// RequestsPerSecond paces outbound classification calls.
	RequestsPerSecond float64 // default: 1
}

// QueueConfig controls the analysis work queue.
type QueueConfig struct {
	// Policy is "fifo" (process every request) or "latest" (only the
	// newest pending request is processed, older ones are dropped).
	Policy string // default: "fifo"

	// Capacity bounds the number of pending requests.
	Capacity int // default: 64
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// CacheConfig controls the collected-profile cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached profiles.
	MaxEntries int // default: 200
}

// WebhookConfig controls event relaying to external consumers.
type WebhookConfig struct {
	// Secret signs webhook bodies with HMAC-SHA256 when non-empty.
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is loaded first when present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	return &Config{
		Server: ServerConfig{
			Host: envOr("BOTWATCH_HOST", "0.0.0.0"),
			Port: envIntOr("BOTWATCH_PORT", 8080),
			Mode: envOr("BOTWATCH_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("BOTWATCH_HEADLESS", true),
			MaxPages:     envIntOr("BOTWATCH_MAX_PAGES", 4),
			DefaultProxy: os.Getenv("BOTWATCH_PROXY"),
			NoSandbox:    envBoolOr("BOTWATCH_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("BOTWATCH_BROWSER_BIN"),
			ControlURL:   os.Getenv("BOTWATCH_CONTROL_URL"),
		},
		Scraper: ScraperConfig{
			DefaultTimeout:    envDurationOr("BOTWATCH_DEFAULT_TIMEOUT", 5*time.Minute),
			MaxTimeout:        envDurationOr("BOTWATCH_MAX_TIMEOUT", 15*time.Minute),
			NavigationTimeout: envDurationOr("BOTWATCH_NAV_TIMEOUT", 30*time.Second),
			BlockedResourceTypes: envSliceOr("BOTWATCH_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			Stealth:      envBoolOr("BOTWATCH_STEALTH", true),
			AuthToken:    os.Getenv("BOTWATCH_AUTH_TOKEN"),
			CookieDomain: envOr("BOTWATCH_COOKIE_DOMAIN", ".x.com"),
			BaseURL:      envOr("BOTWATCH_BASE_URL", "https://x.com"),
		},
		Collector: CollectorConfig{
			DefaultTarget:    envIntOr("BOTWATCH_DEFAULT_TARGET", 50),
			MaxTarget:        envIntOr("BOTWATCH_MAX_TARGET", 500),
			InitialScroll:    envIntOr("BOTWATCH_INITIAL_SCROLL", 300),
			InitialSettle:    envDurationOr("BOTWATCH_INITIAL_SETTLE", time.Second),
			RetryScroll:      envIntOr("BOTWATCH_RETRY_SCROLL", 500),
			RetrySettle:      envDurationOr("BOTWATCH_RETRY_SETTLE", 1500*time.Millisecond),
			ScrollBase:       envIntOr("BOTWATCH_SCROLL_BASE", 600),
			ScrollJitter:     envIntOr("BOTWATCH_SCROLL_JITTER", 200),
			ScrollSettle:     envDurationOr("BOTWATCH_SCROLL_SETTLE", 800*time.Millisecond),
			CycleDelayBase:   envDurationOr("BOTWATCH_CYCLE_DELAY", 800*time.Millisecond),
			CycleDelayJitter: envDurationOr("BOTWATCH_CYCLE_JITTER", 500*time.Millisecond),
			StuckRecoverAt:   envIntOr("BOTWATCH_STUCK_RECOVER_AT", 3),
			StuckLimit:       envIntOr("BOTWATCH_STUCK_LIMIT", 5),
			ProgressEvery:    envIntOr("BOTWATCH_PROGRESS_EVERY", 5),
		},
		Classifier: ClassifierConfig{
			Endpoint:          envOr("BOTWATCH_CLASSIFIER_URL", "http://127.0.0.1:5000/api/analyze"),
			StatusEndpoint:    envOr("BOTWATCH_CLASSIFIER_STATUS_URL", "http://127.0.0.1:5000/api/status"),
			Timeout:           envDurationOr("BOTWATCH_CLASSIFIER_TIMEOUT", 120*time.Second),
			RequestsPerSecond: envFloatOr("BOTWATCH_CLASSIFIER_RPS", 1.0),
		},
		Queue: QueueConfig{
			Policy:   envOr("BOTWATCH_QUEUE_POLICY", "fifo"),
			Capacity: envIntOr("BOTWATCH_QUEUE_CAPACITY", 64),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("BOTWATCH_AUTH_ENABLED", false),
			APIKeys: envSliceOr("BOTWATCH_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("BOTWATCH_RATE_RPS", 5.0),
			Burst:             envIntOr("BOTWATCH_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("BOTWATCH_CACHE_MAX_ENTRIES", 200),
		},
		Webhook: WebhookConfig{
			Secret: os.Getenv("BOTWATCH_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("BOTWATCH_LOG_LEVEL", "info"),
			Format: envOr("BOTWATCH_LOG_FORMAT", "json"),
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
