// Command browser-stream launches (or attaches to) a Chromium instance
// and serves the browser-automation tool set over MCP stdio.
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/browser-stream/internal/cdp"
	"github.com/use-agent/browser-stream/internal/config"
	"github.com/use-agent/browser-stream/internal/debugserver"
	"github.com/use-agent/browser-stream/internal/registry"
	"github.com/use-agent/browser-stream/mcpserver"
)

func main() {
	cdpURL := flag.String("cdp-url", "", "websocket URL of an already-running Chromium instance to attach to")
	flag.Parse()

	cfg := config.Load()
	initLogger(cfg.Log)

	if *cdpURL != "" {
		cfg.Browser.CDPURL = *cdpURL
	}

	slog.Info("browser-stream starting",
		"headless", cfg.Browser.Headless,
		"stealth", cfg.Browser.Stealth,
		"attach", cfg.Browser.CDPURL != "",
	)

	browser, page, err := launchOrAttach(cfg.Browser)
	if err != nil {
		slog.Error("failed to launch or attach to browser", "error", err)
		os.Exit(1)
	}
	defer browser.Close()

	ch, err := cdp.NewRodChannel(page)
	if err != nil {
		slog.Error("failed to enable CDP domains", "error", err)
		os.Exit(1)
	}
	defer ch.Close()

	reg := registry.New()

	if cfg.DebugServer.Addr != "" {
		debugSrv := debugserver.New(cfg.DebugServer.Addr, ch, reg, cfg.DebugServer.RequestsPerSecond, cfg.DebugServer.Burst)
		go func() {
			slog.Info("debug server listening", "addr", cfg.DebugServer.Addr)
			if err := debugSrv.ListenAndServe(); err != nil {
				slog.Error("debug server error", "error", err)
			}
		}()
	}

	s := mcpserver.New(ch, reg, cfg)

	done := make(chan error, 1)
	go func() {
		done <- server.ServeStdio(s)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
		_ = ch.Close()
	case err := <-done:
		if err != nil {
			slog.Error("MCP server error", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("browser-stream stopped")
}

// launchOrAttach either connects to an existing Chromium over cfg.CDPURL
// or launches a new instance (headless unless cfg.Headless is false) via
// go-rod/rod/lib/launcher,
// opening a single page at the configured viewport and optionally
// injecting go-rod/stealth's evasion script.
func launchOrAttach(cfg config.BrowserConfig) (*rod.Browser, *rod.Page, error) {
	var browser *rod.Browser

	if cfg.CDPURL != "" {
		browser = rod.New().ControlURL(cfg.CDPURL)
	} else {
		l := launcher.New().
			Headless(cfg.Headless).
			NoSandbox(cfg.NoSandbox).
			Set(flags.Flag("no-first-run")).
			Set(flags.Flag("no-default-browser-check")).
			Delete(flags.Flag("enable-automation"))

		if cfg.BinaryPath != "" {
			l = l.Bin(cfg.BinaryPath)
		}

		controlURL, err := l.Launch()
		if err != nil {
			return nil, nil, err
		}
		browser = rod.New().ControlURL(controlURL)
	}

	if err := browser.Connect(); err != nil {
		return nil, nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, nil, err
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  cfg.ViewportWidth,
		Height: cfg.ViewportHeight,
	}); err != nil {
		slog.Warn("failed to set viewport, continuing with browser default", "error", err)
	}

	if cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	return browser, page, nil
}

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
