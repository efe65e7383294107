package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tubegate/tubegate/internal/cache"
	"github.com/tubegate/tubegate/internal/dispatch"
	"github.com/tubegate/tubegate/internal/youtube"
)

// VideoInput identifies a video by ID or URL.
type VideoInput struct {
	Video string `json:"video" jsonschema:"YouTube video ID or URL (watch, youtu.be, shorts, embed forms all accepted)"`
}

// TranscriptInput requests a transcript, optionally in a given language.
type TranscriptInput struct {
	Video    string `json:"video" jsonschema:"YouTube video ID or URL"`
	Language string `json:"language,omitempty" jsonschema:"Preferred transcript language code (e.g. en, pt-BR). Default: best available track"`
}

// CommentsInput requests a page of top-level comments.
type CommentsInput struct {
	Video      string `json:"video" jsonschema:"YouTube video ID or URL"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Comments per page (default 10, max 50)"`
	PageToken  string `json:"page_token,omitempty" jsonschema:"Cursor from a previous call to fetch the next page"`
}

func registerVideoTools(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_video_info",
		Description: "Get metadata for a YouTube video: title, description, channel, publish date, duration, view/like/comment counts, and tags.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input VideoInput) (*mcp.CallToolResult, *youtube.VideoInfo, error) {
		videoID, err := youtube.ValidateVideoID(input.Video)
		if err != nil {
			return errResult(err), nil, nil
		}
		return run[*youtube.VideoInfo](ctx, deps, dispatch.Request{
			Tool:      "get_video_info",
			Args:      map[string]string{"video": videoID},
			Class:     cache.ClassVideo,
			Cacheable: true,
		}, func(ctx context.Context, args map[string]string) (any, error) {
			return deps.API.VideoInfo(ctx, args["video"])
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_video_transcript",
		Description: "Get the transcript of a YouTube video as timed segments plus full text. Prefers human-made caption tracks over auto-generated ones.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input TranscriptInput) (*mcp.CallToolResult, *youtube.Transcript, error) {
		videoID, err := youtube.ValidateVideoID(input.Video)
		if err != nil {
			return errResult(err), nil, nil
		}
		lang, err := youtube.ValidateLanguage(input.Language)
		if err != nil {
			return errResult(err), nil, nil
		}
		return run[*youtube.Transcript](ctx, deps, dispatch.Request{
			Tool:      "get_video_transcript",
			Args:      map[string]string{"video": videoID, "language": lang},
			Class:     cache.ClassTranscript,
			Cacheable: true,
		}, func(ctx context.Context, args map[string]string) (any, error) {
			return deps.API.Transcript(ctx, args["video"], args["language"])
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_video_comments",
		Description: "Get a page of top-level comments on a YouTube video, newest first, with a cursor for the next page.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input CommentsInput) (*mcp.CallToolResult, *youtube.CommentPage, error) {
		videoID, err := youtube.ValidateVideoID(input.Video)
		if err != nil {
			return errResult(err), nil, nil
		}
		limit, err := youtube.ValidateMaxResults(input.MaxResults)
		if err != nil {
			return errResult(err), nil, nil
		}
		return run[*youtube.CommentPage](ctx, deps, dispatch.Request{
			Tool: "get_video_comments",
			Args: map[string]string{
				"video":       videoID,
				"max_results": itoa(limit),
				"page_token":  input.PageToken,
			},
			Class:     cache.ClassComments,
			Cacheable: true,
		}, func(ctx context.Context, args map[string]string) (any, error) {
			return deps.API.Comments(ctx, args["video"], limit, args["page_token"])
		})
	})
}
