// Package config loads runtime configuration from environment variables
// under the BROWSERSTREAM_ prefix, falling back to defaults for anything
// unset or malformed.
package config

import (
	"os"
	"strconv"
	"time"
)

// BrowserConfig controls how the Chromium instance is launched or attached.
type BrowserConfig struct {
	CDPURL         string // BROWSERSTREAM_CDP_URL: attach to an already-running Chromium instead of launching one
	BinaryPath     string // BROWSERSTREAM_BROWSER_BIN
	Headless       bool   // BROWSERSTREAM_HEADLESS, default true
	NoSandbox      bool   // BROWSERSTREAM_NO_SANDBOX
	Stealth        bool   // BROWSERSTREAM_STEALTH: inject go-rod/stealth's evasion script on every new page
	ViewportWidth  int    // BROWSERSTREAM_VIEWPORT_WIDTH, default 1280
	ViewportHeight int    // BROWSERSTREAM_VIEWPORT_HEIGHT, default 960
}

// StabilityConfig controls the debounce/hard-cap constants the stability
// waiter uses. Overridable so tests can shrink them.
type StabilityConfig struct {
	DebounceMS time.Duration
	HardCapMS  time.Duration
}

// WaitForConfig holds browser_wait_for's defaults. DefaultTimeout is used
// when the caller supplies no timeout. PollInterval is loaded but not read
// by the orchestrator, whose WaitFor always polls every 500ms.
type WaitForConfig struct {
	DefaultTimeout time.Duration
	PollInterval   time.Duration
}

// LogConfig controls slog handler construction.
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// DebugServerConfig controls the ambient gin debug/health surface.
// Disabled unless Addr is non-empty.
type DebugServerConfig struct {
	Addr              string
	RequestsPerSecond float64
	Burst             int
}

// Config aggregates all runtime configuration.
type Config struct {
	Browser     BrowserConfig
	Stability   StabilityConfig
	WaitFor     WaitForConfig
	Log         LogConfig
	DebugServer DebugServerConfig
}

// Load reads Config from the environment, falling back to defaults tuned
// for local development against a headless Chromium.
func Load() *Config {
	return &Config{
		Browser: BrowserConfig{
			CDPURL:         envOr("BROWSERSTREAM_CDP_URL", ""),
			BinaryPath:     envOr("BROWSERSTREAM_BROWSER_BIN", ""),
			Headless:       envBoolOr("BROWSERSTREAM_HEADLESS", true),
			NoSandbox:      envBoolOr("BROWSERSTREAM_NO_SANDBOX", false),
			Stealth:        envBoolOr("BROWSERSTREAM_STEALTH", false),
			ViewportWidth:  envIntOr("BROWSERSTREAM_VIEWPORT_WIDTH", 1280),
			ViewportHeight: envIntOr("BROWSERSTREAM_VIEWPORT_HEIGHT", 960),
		},
		Stability: StabilityConfig{
			DebounceMS: envDurationOr("BROWSERSTREAM_DEBOUNCE_MS", 200*time.Millisecond),
			HardCapMS:  envDurationOr("BROWSERSTREAM_HARD_CAP_MS", 3000*time.Millisecond),
		},
		WaitFor: WaitForConfig{
			DefaultTimeout: envDurationOr("BROWSERSTREAM_WAIT_FOR_TIMEOUT", 10*time.Second),
			PollInterval:   envDurationOr("BROWSERSTREAM_WAIT_FOR_POLL_INTERVAL", 500*time.Millisecond),
		},
		Log: LogConfig{
			Level:  envOr("BROWSERSTREAM_LOG_LEVEL", "info"),
			Format: envOr("BROWSERSTREAM_LOG_FORMAT", "json"),
		},
		DebugServer: DebugServerConfig{
			Addr:              envOr("BROWSERSTREAM_DEBUG_ADDR", ""),
			RequestsPerSecond: envFloatOr("BROWSERSTREAM_DEBUG_RATE_RPS", 5),
			Burst:             envIntOr("BROWSERSTREAM_DEBUG_RATE_BURST", 10),
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
