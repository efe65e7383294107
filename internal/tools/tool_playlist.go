package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tubegate/tubegate/internal/dispatch"
	"github.com/tubegate/tubegate/internal/youtube"
)

// CreatePlaylistInput holds the fields for a new playlist.
type CreatePlaylistInput struct {
	Title       string `json:"title" jsonschema:"Playlist title"`
	Description string `json:"description,omitempty" jsonschema:"Playlist description"`
	Privacy     string `json:"privacy,omitempty" jsonschema:"Privacy status: private (default), public, unlisted"`
}

// UpdatePlaylistInput modifies playlist metadata. Empty fields keep the
// current value.
type UpdatePlaylistInput struct {
	PlaylistID  string `json:"playlist_id" jsonschema:"Playlist ID"`
	Title       string `json:"title,omitempty" jsonschema:"New title"`
	Description string `json:"description,omitempty" jsonschema:"New description"`
	Privacy     string `json:"privacy,omitempty" jsonschema:"New privacy status: private, public, unlisted"`
}

// PlaylistIDInput identifies a playlist.
type PlaylistIDInput struct {
	PlaylistID string `json:"playlist_id" jsonschema:"Playlist ID"`
}

// PlaylistVideoInput identifies a video within a playlist.
type PlaylistVideoInput struct {
	PlaylistID string `json:"playlist_id" jsonschema:"Playlist ID"`
	Video      string `json:"video" jsonschema:"Video ID or URL"`
	Position   *int   `json:"position,omitempty" jsonschema:"Zero-based position. For add_playlist_video: omit to append. For reorder_playlist: required target position"`
}

// DeletedOutput confirms a removal.
type DeletedOutput struct {
	Success bool   `json:"success"`
	Deleted string `json:"deleted"`
}

func registerPlaylistTools(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_playlist",
		Description: "Create a playlist on the authorized YouTube account. Requires a completed OAuth authorization.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input CreatePlaylistInput) (*mcp.CallToolResult, *youtube.Playlist, error) {
		if input.Title == "" {
			return errResult(dispatch.NewError(dispatch.KindValidation, "title is required")), nil, nil
		}
		privacy, err := youtube.ValidatePrivacy(input.Privacy)
		if err != nil {
			return errResult(err), nil, nil
		}
		return run[*youtube.Playlist](ctx, deps, dispatch.Request{
			Tool: "create_playlist",
			Args: map[string]string{
				"title":       input.Title,
				"description": input.Description,
				"privacy":     privacy,
			},
		}, func(ctx context.Context, args map[string]string) (any, error) {
			return deps.API.CreatePlaylist(ctx, args["title"], args["description"], args["privacy"])
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_playlist",
		Description: "Update the title, description, or privacy of a playlist on the authorized account. Empty fields keep the current value.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input UpdatePlaylistInput) (*mcp.CallToolResult, *youtube.Playlist, error) {
		playlistID, err := youtube.ValidatePlaylistID(input.PlaylistID)
		if err != nil {
			return errResult(err), nil, nil
		}
		privacy := input.Privacy
		if privacy != "" {
			if privacy, err = youtube.ValidatePrivacy(privacy); err != nil {
				return errResult(err), nil, nil
			}
		}
		return run[*youtube.Playlist](ctx, deps, dispatch.Request{
			Tool: "update_playlist",
			Args: map[string]string{
				"playlist_id": playlistID,
				"title":       input.Title,
				"description": input.Description,
				"privacy":     privacy,
			},
		}, func(ctx context.Context, args map[string]string) (any, error) {
			return deps.API.UpdatePlaylist(ctx, args["playlist_id"], args["title"], args["description"], args["privacy"])
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_playlist",
		Description: "Delete a playlist from the authorized account.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input PlaylistIDInput) (*mcp.CallToolResult, *DeletedOutput, error) {
		playlistID, err := youtube.ValidatePlaylistID(input.PlaylistID)
		if err != nil {
			return errResult(err), nil, nil
		}
		return run[*DeletedOutput](ctx, deps, dispatch.Request{
			Tool: "delete_playlist",
			Args: map[string]string{"playlist_id": playlistID},
		}, func(ctx context.Context, args map[string]string) (any, error) {
			if err := deps.API.DeletePlaylist(ctx, args["playlist_id"]); err != nil {
				return nil, err
			}
			return &DeletedOutput{Success: true, Deleted: args["playlist_id"]}, nil
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_playlist_video",
		Description: "Add a video to a playlist on the authorized account, appending or at a given position.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input PlaylistVideoInput) (*mcp.CallToolResult, *youtube.PlaylistItem, error) {
		playlistID, videoID, rerr := validatePlaylistVideo(input)
		if rerr != nil {
			return errResult(rerr), nil, nil
		}
		position := int64(-1) // append
		if input.Position != nil {
			if *input.Position < 0 {
				return errResult(dispatch.NewError(dispatch.KindValidation, "position must not be negative")), nil, nil
			}
			position = int64(*input.Position)
		}
		return run[*youtube.PlaylistItem](ctx, deps, dispatch.Request{
			Tool: "add_playlist_video",
			Args: map[string]string{"playlist_id": playlistID, "video": videoID},
		}, func(ctx context.Context, args map[string]string) (any, error) {
			return deps.API.AddPlaylistVideo(ctx, args["playlist_id"], args["video"], position)
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_playlist_video",
		Description: "Remove all entries for a video from a playlist on the authorized account.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input PlaylistVideoInput) (*mcp.CallToolResult, *DeletedOutput, error) {
		playlistID, videoID, rerr := validatePlaylistVideo(input)
		if rerr != nil {
			return errResult(rerr), nil, nil
		}
		return run[*DeletedOutput](ctx, deps, dispatch.Request{
			Tool: "remove_playlist_video",
			Args: map[string]string{"playlist_id": playlistID, "video": videoID},
		}, func(ctx context.Context, args map[string]string) (any, error) {
			if err := deps.API.RemovePlaylistVideo(ctx, args["playlist_id"], args["video"]); err != nil {
				return nil, err
			}
			return &DeletedOutput{Success: true, Deleted: args["video"]}, nil
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reorder_playlist",
		Description: "Move a video to a new position within a playlist on the authorized account.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input PlaylistVideoInput) (*mcp.CallToolResult, *youtube.PlaylistItem, error) {
		playlistID, videoID, rerr := validatePlaylistVideo(input)
		if rerr != nil {
			return errResult(rerr), nil, nil
		}
		if input.Position == nil || *input.Position < 0 {
			return errResult(dispatch.NewError(dispatch.KindValidation, "position is required and must not be negative")), nil, nil
		}
		position := int64(*input.Position)
		return run[*youtube.PlaylistItem](ctx, deps, dispatch.Request{
			Tool: "reorder_playlist",
			Args: map[string]string{"playlist_id": playlistID, "video": videoID},
		}, func(ctx context.Context, args map[string]string) (any, error) {
			return deps.API.ReorderPlaylist(ctx, args["playlist_id"], args["video"], position)
		})
	})
}

func validatePlaylistVideo(input PlaylistVideoInput) (playlistID, videoID string, err error) {
	if playlistID, err = youtube.ValidatePlaylistID(input.PlaylistID); err != nil {
		return "", "", err
	}
	if videoID, err = youtube.ValidateVideoID(input.Video); err != nil {
		return "", "", err
	}
	return playlistID, videoID, nil
}
