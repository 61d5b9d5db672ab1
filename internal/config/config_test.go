package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if !cfg.Browser.Headless {
		t.Errorf("expected headless default true")
	}
	if cfg.Browser.ViewportWidth != 1280 || cfg.Browser.ViewportHeight != 960 {
		t.Errorf("unexpected viewport default: %+v", cfg.Browser)
	}
	if cfg.Stability.DebounceMS != 200*time.Millisecond {
		t.Errorf("unexpected debounce default: %v", cfg.Stability.DebounceMS)
	}
	if cfg.Stability.HardCapMS != 3000*time.Millisecond {
		t.Errorf("unexpected hard cap default: %v", cfg.Stability.HardCapMS)
	}
	if cfg.WaitFor.DefaultTimeout != 10*time.Second {
		t.Errorf("unexpected wait_for timeout default: %v", cfg.WaitFor.DefaultTimeout)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("unexpected log format default: %q", cfg.Log.Format)
	}
	if cfg.DebugServer.Addr != "" {
		t.Errorf("expected debug server disabled by default, got addr %q", cfg.DebugServer.Addr)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BROWSERSTREAM_HEADLESS", "false")
	t.Setenv("BROWSERSTREAM_STEALTH", "true")
	t.Setenv("BROWSERSTREAM_CDP_URL", "ws://127.0.0.1:9222/devtools/browser/abc")
	t.Setenv("BROWSERSTREAM_DEBOUNCE_MS", "50ms")
	t.Setenv("BROWSERSTREAM_DEBUG_ADDR", "127.0.0.1:7766")
	t.Setenv("BROWSERSTREAM_DEBUG_RATE_RPS", "2.5")

	cfg := Load()

	if cfg.Browser.Headless {
		t.Errorf("expected headless overridden to false")
	}
	if !cfg.Browser.Stealth {
		t.Errorf("expected stealth overridden to true")
	}
	if cfg.Browser.CDPURL != "ws://127.0.0.1:9222/devtools/browser/abc" {
		t.Errorf("unexpected cdp url: %q", cfg.Browser.CDPURL)
	}
	if cfg.Stability.DebounceMS != 50*time.Millisecond {
		t.Errorf("unexpected overridden debounce: %v", cfg.Stability.DebounceMS)
	}
	if cfg.DebugServer.Addr != "127.0.0.1:7766" {
		t.Errorf("unexpected debug addr: %q", cfg.DebugServer.Addr)
	}
	if cfg.DebugServer.RequestsPerSecond != 2.5 {
		t.Errorf("unexpected debug rps: %v", cfg.DebugServer.RequestsPerSecond)
	}
}

func TestLoad_MalformedEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("BROWSERSTREAM_HEADLESS", "not-a-bool")
	t.Setenv("BROWSERSTREAM_VIEWPORT_WIDTH", "not-an-int")
	t.Setenv("BROWSERSTREAM_DEBOUNCE_MS", "not-a-duration")

	cfg := Load()

	if !cfg.Browser.Headless {
		t.Errorf("expected malformed bool to fall back to default true")
	}
	if cfg.Browser.ViewportWidth != 1280 {
		t.Errorf("expected malformed int to fall back to default 1280, got %d", cfg.Browser.ViewportWidth)
	}
	if cfg.Stability.DebounceMS != 200*time.Millisecond {
		t.Errorf("expected malformed duration to fall back to default, got %v", cfg.Stability.DebounceMS)
	}
}
