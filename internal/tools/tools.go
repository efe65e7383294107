// Package tools registers the MCP tool surface. Every handler routes through
// the dispatch pipeline; handlers never talk to the YouTube API directly.
package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tubegate/tubegate/internal/cache"
	"github.com/tubegate/tubegate/internal/dispatch"
	"github.com/tubegate/tubegate/internal/observability"
	"github.com/tubegate/tubegate/internal/ratelimit"
	"github.com/tubegate/tubegate/internal/seclog"
	"github.com/tubegate/tubegate/internal/youtube"
)

// Deps are the collaborators shared by all tool handlers.
type Deps struct {
	Dispatch *dispatch.Dispatcher
	API      youtube.API

	// Stats sources for get_server_stats.
	Limiter *ratelimit.Limiter
	Cache   *cache.Cache
	SecLog  *seclog.Logger
	Metrics *observability.Metrics

	Logger *slog.Logger
}

// Register adds every tool to the MCP server.
func Register(server *mcp.Server, deps Deps) {
	registerVideoTools(server, deps)
	registerChannelTools(server, deps)
	registerSearchTools(server, deps)
	registerPlaylistTools(server, deps)
	registerCaptionTools(server, deps)
	registerStatsTools(server, deps)
}

// errResult renders a dispatch error as a tool-level failure with the
// structured error payload. Protocol-level errors are reserved for transport
// problems.
func errResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(dispatch.PayloadJSON(err))}},
	}
}

// run executes a tool through the pipeline and decodes the JSON payload into
// the typed output.
func run[T any](ctx context.Context, deps Deps, req dispatch.Request, fn dispatch.Func) (*mcp.CallToolResult, T, error) {
	var out T
	payload, err := deps.Dispatch.Execute(ctx, req, fn)
	if err != nil {
		return errResult(err), out, nil
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		deps.Logger.Error("decoding tool payload", "tool", req.Tool, "error", err)
		return errResult(dispatch.NewError(dispatch.KindInternal, "internal error")), out, nil
	}
	return nil, out, nil
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
