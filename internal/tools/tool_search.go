package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tubegate/tubegate/internal/cache"
	"github.com/tubegate/tubegate/internal/dispatch"
	"github.com/tubegate/tubegate/internal/youtube"
)

// SearchInput holds video search parameters.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"Search keywords"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Results to return (default 10, max 50)"`
	Order      string `json:"order,omitempty" jsonschema:"Result ordering: relevance (default), date, rating, title, viewCount"`
	RegionCode string `json:"region_code,omitempty" jsonschema:"ISO 3166-1 alpha-2 region bias (e.g. US, DE)"`
}

// SearchOutput wraps the result list.
type SearchOutput struct {
	Results []youtube.SearchResult `json:"results"`
}

func registerSearchTools(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_videos",
		Description: "Search YouTube for videos. Returns video ID, title, description, channel, and publish date per hit.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, *SearchOutput, error) {
		query, err := youtube.ValidateQuery(input.Query)
		if err != nil {
			return errResult(err), nil, nil
		}
		limit, err := youtube.ValidateMaxResults(input.MaxResults)
		if err != nil {
			return errResult(err), nil, nil
		}
		order, err := youtube.ValidateOrder(input.Order)
		if err != nil {
			return errResult(err), nil, nil
		}

		return run[*SearchOutput](ctx, deps, dispatch.Request{
			Tool: "search_videos",
			Args: map[string]string{
				"query":       query,
				"max_results": itoa(limit),
				"order":       order,
				"region":      input.RegionCode,
			},
			Class:     cache.ClassSearch,
			Cacheable: true,
		}, func(ctx context.Context, args map[string]string) (any, error) {
			results, err := deps.API.Search(ctx, youtube.SearchQuery{
				Query:      args["query"],
				MaxResults: limit,
				Order:      args["order"],
				RegionCode: args["region"],
			})
			if err != nil {
				return nil, err
			}
			return &SearchOutput{Results: results}, nil
		})
	})
}
