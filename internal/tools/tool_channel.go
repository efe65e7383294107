package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tubegate/tubegate/internal/cache"
	"github.com/tubegate/tubegate/internal/dispatch"
	"github.com/tubegate/tubegate/internal/youtube"
)

// ChannelInput identifies a channel by ID, @handle, or URL.
type ChannelInput struct {
	Channel string `json:"channel" jsonschema:"Channel ID (UC...), @handle, or channel URL"`
}

func registerChannelTools(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_channel_info",
		Description: "Get metadata for a YouTube channel: title, description, country, subscriber/video/view counts, and the uploads playlist ID.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input ChannelInput) (*mcp.CallToolResult, *youtube.Channel, error) {
		ref, err := youtube.ValidateChannel(input.Channel)
		if err != nil {
			return errResult(err), nil, nil
		}
		return run[*youtube.Channel](ctx, deps, dispatch.Request{
			Tool:      "get_channel_info",
			Args:      map[string]string{"id": ref.ID, "handle": ref.Handle},
			Class:     cache.ClassChannel,
			Cacheable: true,
		}, func(ctx context.Context, args map[string]string) (any, error) {
			return deps.API.ChannelInfo(ctx, youtube.ChannelRef{ID: args["id"], Handle: args["handle"]})
		})
	})
}
