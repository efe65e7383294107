package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tubegate/tubegate/internal/cache"
	"github.com/tubegate/tubegate/internal/dispatch"
	"github.com/tubegate/tubegate/internal/observability"
	"github.com/tubegate/tubegate/internal/ratelimit"
	"github.com/tubegate/tubegate/internal/seclog"
)

// StatsInput optionally scopes rate-limit usage to one caller identity.
type StatsInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"Report rate-limit usage for this user identity"`
	APIKey string `json:"api_key,omitempty" jsonschema:"Report rate-limit usage for this API key identity"`
	IP     string `json:"ip,omitempty" jsonschema:"Report rate-limit usage for this IP identity"`
}

// StatsOutput aggregates the operational counters of the server.
type StatsOutput struct {
	Counters          observability.MetricsSnapshot `json:"counters"`
	Cache             cache.Stats                   `json:"cache"`
	Security          seclog.Stats                  `json:"security"`
	TrackedIdentities int                           `json:"tracked_identities"`
	Usage             *ratelimit.Usage              `json:"usage,omitempty"`
}

func registerStatsTools(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_server_stats",
		Description: "Get server operational statistics: tool call counters, cache hit rates, rate limiter state, and security event totals.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input StatsInput) (*mcp.CallToolResult, *StatsOutput, error) {
		return run[*StatsOutput](ctx, deps, dispatch.Request{
			Tool: "get_server_stats",
			Args: map[string]string{"user_id": input.UserID, "api_key": input.APIKey, "ip": input.IP},
		}, func(ctx context.Context, args map[string]string) (any, error) {
			out := &StatsOutput{
				Counters:          deps.Metrics.Snapshot(),
				Cache:             deps.Cache.Snapshot(ctx),
				Security:          deps.SecLog.Snapshot(),
				TrackedIdentities: deps.Limiter.TrackedIdentities(),
			}
			id := ratelimit.Identity{UserID: args["user_id"], APIKey: args["api_key"], IP: args["ip"]}
			if id != (ratelimit.Identity{}) {
				usage := deps.Limiter.Stats(id)
				out.Usage = &usage
			}
			return out, nil
		})
	})
}
