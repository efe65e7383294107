package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tubegate/tubegate/internal/cache"
	"github.com/tubegate/tubegate/internal/dispatch"
	"github.com/tubegate/tubegate/internal/youtube"
)

// CaptionDownloadInput requests a raw caption track.
type CaptionDownloadInput struct {
	Video    string `json:"video" jsonschema:"YouTube video ID or URL"`
	Language string `json:"language,omitempty" jsonschema:"Caption track language code. Default: best available track"`
	Format   string `json:"format,omitempty" jsonschema:"Subtitle format: srt (default), ttml, vtt"`
}

// CaptionListOutput wraps the track list.
type CaptionListOutput struct {
	Captions []youtube.Caption `json:"captions"`
}

// CaptionDownloadOutput carries one raw subtitle document.
type CaptionDownloadOutput struct {
	VideoID string `json:"video_id"`
	Format  string `json:"format"`
	Body    string `json:"body"`
}

var captionFormats = map[string]bool{"srt": true, "ttml": true, "vtt": true}

func registerCaptionTools(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_captions",
		Description: "List the caption tracks available on a YouTube video, including language and whether the track is auto-generated.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input VideoInput) (*mcp.CallToolResult, *CaptionListOutput, error) {
		videoID, err := youtube.ValidateVideoID(input.Video)
		if err != nil {
			return errResult(err), nil, nil
		}
		return run[*CaptionListOutput](ctx, deps, dispatch.Request{
			Tool:      "list_captions",
			Args:      map[string]string{"video": videoID},
			Class:     cache.ClassTranscript,
			Cacheable: true,
		}, func(ctx context.Context, args map[string]string) (any, error) {
			captions, err := deps.API.ListCaptions(ctx, args["video"])
			if err != nil {
				return nil, err
			}
			return &CaptionListOutput{Captions: captions}, nil
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "download_caption",
		Description: "Download a raw caption track (SRT, TTML, or VTT) from a video. Requires a completed OAuth authorization.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input CaptionDownloadInput) (*mcp.CallToolResult, *CaptionDownloadOutput, error) {
		videoID, err := youtube.ValidateVideoID(input.Video)
		if err != nil {
			return errResult(err), nil, nil
		}
		lang, err := youtube.ValidateLanguage(input.Language)
		if err != nil {
			return errResult(err), nil, nil
		}
		format := input.Format
		if format == "" {
			format = "srt"
		}
		if !captionFormats[format] {
			return errResult(dispatch.NewError(dispatch.KindValidation,
				fmt.Sprintf("unknown caption format %q", format))), nil, nil
		}
		return run[*CaptionDownloadOutput](ctx, deps, dispatch.Request{
			Tool:      "download_caption",
			Args:      map[string]string{"video": videoID, "language": lang, "format": format},
			Class:     cache.ClassTranscript,
			Cacheable: true,
		}, func(ctx context.Context, args map[string]string) (any, error) {
			body, err := deps.API.DownloadCaption(ctx, args["video"], args["language"], args["format"])
			if err != nil {
				return nil, err
			}
			return &CaptionDownloadOutput{VideoID: args["video"], Format: args["format"], Body: body}, nil
		})
	})
}
