// Package mcpserver registers the eight browser-automation tool calls
// against an MCP stdio server using the standard
// server.NewMCPServer/mcp.NewTool/s.AddTool/server.ServeStdio shape.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/browser-stream/internal/browsererr"
	"github.com/use-agent/browser-stream/internal/cdp"
	"github.com/use-agent/browser-stream/internal/config"
	"github.com/use-agent/browser-stream/internal/content"
	"github.com/use-agent/browser-stream/internal/model"
	"github.com/use-agent/browser-stream/internal/orchestrator"
	"github.com/use-agent/browser-stream/internal/registry"
	"github.com/use-agent/browser-stream/internal/snapshot"
)

// New builds an MCP server with all eight browser tools wired against a
// live channel and ref registry. ch must already have its required
// domains enabled before any tool call arrives. reg is owned
// by the caller so the ambient debug server can introspect
// the same live ref counts the orchestrator is mutating.
func New(ch cdp.Channel, reg *registry.Registry, cfg *config.Config) *server.MCPServer {
	orch := orchestrator.New(ch, reg, cfg.Stability)
	reader := content.New()

	s := server.NewMCPServer(
		"browser-stream",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("browser_navigate",
		mcp.WithDescription("Navigate the current page to a URL and return a fresh snapshot once the load event fires."),
		mcp.WithString("url", mcp.Required(), mcp.Description("The URL to navigate to")),
	), handleNavigate(orch))

	s.AddTool(mcp.NewTool("browser_snapshot",
		mcp.WithDescription("Capture the current page's interactive elements as a compact-line accessibility snapshot."),
	), handleSnapshot(ch, reg))

	s.AddTool(mcp.NewTool("browser_click",
		mcp.WithDescription("Click an interactive element identified by its snapshot ref."),
		mcp.WithString("ref", mcp.Required(), mcp.Description("The @eN ref from the most recent snapshot")),
	), handleClick(orch))

	s.AddTool(mcp.NewTool("browser_fill",
		mcp.WithDescription("Fill a text input, textarea, or contentEditable element with a value."),
		mcp.WithString("ref", mcp.Required(), mcp.Description("The @eN ref from the most recent snapshot")),
		mcp.WithString("value", mcp.Required(), mcp.Description("The text to write into the element")),
	), handleFill(orch))

	s.AddTool(mcp.NewTool("browser_press_key",
		mcp.WithDescription("Dispatch a keyboard key (optionally with modifiers, e.g. \"ctrl+a\") to the focused element."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Key, optionally modifier-prefixed: \"Key[+Mods]*\"")),
	), handlePressKey(orch))

	s.AddTool(mcp.NewTool("browser_scroll",
		mcp.WithDescription("Scroll the page or a scrollable ancestor of a ref in a direction or by an amount."),
		mcp.WithString("ref", mcp.Description("Optional @eN ref to scroll an ancestor container of")),
		mcp.WithString("direction", mcp.Enum("up", "down"), mcp.Description("Scroll direction")),
		mcp.WithString("amount", mcp.Description("\"page\", \"to-top\", \"to-bottom\", or a pixel count as a string")),
	), handleScroll(orch))

	s.AddTool(mcp.NewTool("browser_wait_for",
		mcp.WithDescription("Poll the page until text appears or a ref becomes resolvable, up to a timeout."),
		mcp.WithString("text", mcp.Description("Case-insensitive substring to wait for in the title, element names, or values")),
		mcp.WithString("ref", mcp.Description("Optional @eN ref to wait until resolvable")),
		mcp.WithNumber("timeout", mcp.Description("Timeout in milliseconds (default 10000)")),
	), handleWaitFor(orch, cfg))

	s.AddTool(mcp.NewTool("browser_read_content",
		mcp.WithDescription("Extract the current page's main article as sanitized Markdown, without mutating the page."),
	), handleReadContent(ch, reader))

	return s
}

func handleNavigate(orch *orchestrator.Orchestrator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		return jsonResult(orch.Navigate(ctx, url))
	}
}

func handleSnapshot(ch cdp.Channel, reg *registry.Registry) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		started := time.Now()
		data, err := snapshot.Take(ctx, ch, reg, snapshot.Options{})
		if err != nil {
			res := snapshotErrorResult(err, started)
			slog.Warn("action failed", "action", "snapshot", "errors", res.Errors, "timingMs", res.TimingMs)
			return jsonResult(res)
		}
		res := toSnapshotResult(data, started)
		slog.Info("action completed", "action", "snapshot", "timingMs", res.TimingMs)
		return jsonResult(res)
	}
}

func handleClick(orch *orchestrator.Orchestrator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref, err := req.RequireString("ref")
		if err != nil {
			return mcp.NewToolResultError("ref is required"), nil
		}
		return jsonResult(orch.Click(ctx, ref))
	}
}

func handleFill(orch *orchestrator.Orchestrator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref, err := req.RequireString("ref")
		if err != nil {
			return mcp.NewToolResultError("ref is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcp.NewToolResultError("value is required"), nil
		}
		return jsonResult(orch.Fill(ctx, ref, value))
	}
}

func handlePressKey(orch *orchestrator.Orchestrator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcp.NewToolResultError("key is required"), nil
		}
		return jsonResult(orch.PressKey(ctx, key))
	}
}

func handleScroll(orch *orchestrator.Orchestrator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref := req.GetString("ref", "")
		direction := req.GetString("direction", "down")
		amount := parseScrollAmount(req.GetArguments()["amount"])

		return jsonResult(orch.Scroll(ctx, orchestrator.ScrollInput{
			Ref:       ref,
			Direction: direction,
			Amount:    amount,
		}))
	}
}

// parseScrollAmount accepts either a kind string ("page", "to-top",
// "to-bottom"), a pixel count written as a string, or a bare number of
// pixels, since JSON numbers arrive as float64 through the MCP argument
// map. Anything else falls back to "page".
func parseScrollAmount(raw any) orchestrator.ScrollAmount {
	switch v := raw.(type) {
	case string:
		switch v {
		case "to-top", "to-bottom", "page":
			return orchestrator.ScrollAmount{Kind: v}
		case "":
			return orchestrator.ScrollAmount{Kind: "page"}
		}
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return orchestrator.ScrollAmount{Kind: "number", Number: n}
		}
		return orchestrator.ScrollAmount{Kind: "page"}
	case float64:
		return orchestrator.ScrollAmount{Kind: "number", Number: v}
	default:
		return orchestrator.ScrollAmount{Kind: "page"}
	}
}

func handleWaitFor(orch *orchestrator.Orchestrator, cfg *config.Config) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text := req.GetString("text", "")
		ref := req.GetString("ref", "")

		timeout := cfg.WaitFor.DefaultTimeout
		if raw, ok := req.GetArguments()["timeout"].(float64); ok && raw > 0 {
			timeout = time.Duration(raw) * time.Millisecond
		}

		return jsonResult(orch.WaitFor(ctx, orchestrator.WaitForInput{
			Text:    text,
			Ref:     ref,
			Timeout: timeout,
		}))
	}
}

func handleReadContent(ch cdp.Channel, reader *content.Reader) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(reader.Read(ctx, ch))
	}
}

func toSnapshotResult(data model.SnapshotData, started time.Time) model.SnapshotResult {
	return model.SnapshotDataToResult(data, time.Since(started).Milliseconds())
}

func snapshotErrorResult(err error, started time.Time) model.SnapshotResult {
	detail := model.ErrorDetail{Code: browsererr.CodeActionFailed, Message: err.Error()}
	if be, ok := err.(*browsererr.BrowserError); ok {
		d := be.ToDetail()
		detail = model.ErrorDetail{Code: d.Code, Message: d.Message}
	}
	return model.SnapshotResult{
		Version:  1,
		OK:       false,
		Errors:   []model.ErrorDetail{detail},
		TimingMs: time.Since(started).Milliseconds(),
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError("failed to marshal result: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
