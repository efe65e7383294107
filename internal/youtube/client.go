// Package youtube wraps the YouTube Data API v3 behind a narrow interface.
// Read operations authenticate with the configured API key; mutating
// operations (playlists, caption downloads) require a delegated OAuth token.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/tubegate/tubegate/internal/config"
	"github.com/tubegate/tubegate/internal/observability"
)

var (
	// ErrNotFound indicates the requested video, channel, or playlist does
	// not exist or is not visible to the caller.
	ErrNotFound = errors.New("youtube: not found")
	// ErrNoTranscript indicates the video has no caption track matching the
	// request.
	ErrNoTranscript = errors.New("youtube: no transcript available")
	// ErrQuotaExceeded indicates the daily API quota is spent. Not retried.
	ErrQuotaExceeded = errors.New("youtube: quota exceeded")
)

// TokenProvider supplies a delegated OAuth token for mutating calls.
type TokenProvider interface {
	Credential(ctx context.Context) (*oauth2.Token, error)
}

// API is the surface the dispatch layer calls. Implemented by Client and by
// fakes in tests.
type API interface {
	VideoInfo(ctx context.Context, videoID string) (*VideoInfo, error)
	Transcript(ctx context.Context, videoID, language string) (*Transcript, error)
	Comments(ctx context.Context, videoID string, maxResults int64, pageToken string) (*CommentPage, error)
	Search(ctx context.Context, q SearchQuery) ([]SearchResult, error)
	ChannelInfo(ctx context.Context, ref ChannelRef) (*Channel, error)

	CreatePlaylist(ctx context.Context, title, description, privacy string) (*Playlist, error)
	UpdatePlaylist(ctx context.Context, playlistID, title, description, privacy string) (*Playlist, error)
	DeletePlaylist(ctx context.Context, playlistID string) error
	AddPlaylistVideo(ctx context.Context, playlistID, videoID string, position int64) (*PlaylistItem, error)
	RemovePlaylistVideo(ctx context.Context, playlistID, videoID string) error
	ReorderPlaylist(ctx context.Context, playlistID, videoID string, position int64) (*PlaylistItem, error)

	ListCaptions(ctx context.Context, videoID string) ([]Caption, error)
	DownloadCaption(ctx context.Context, videoID, language, format string) (string, error)
}

// Client implements API against the real Data API.
type Client struct {
	read   *yt.Service
	tokens TokenProvider

	regionCode  string
	timeout     time.Duration
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration

	extraOpts []option.ClientOption

	logger  *slog.Logger
	metrics *observability.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithServiceOptions appends extra client options for the underlying
// services. Tests use this to point at a fake endpoint.
func WithServiceOptions(opts ...option.ClientOption) Option {
	return func(c *Client) { c.extraOpts = append(c.extraOpts, opts...) }
}

// WithSleep overrides the backoff sleep for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// New builds a Client from config. tokens may be nil, in which case mutating
// operations fail with the token provider error surface of oauth.
func New(ctx context.Context, cfg config.YouTubeConfig, tokens TokenProvider, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) (*Client, error) {
	timeout, err := config.ParseDuration(cfg.Timeout, 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("parsing youtube.timeout: %w", err)
	}
	base, err := config.ParseDuration(cfg.BackoffBase, 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("parsing youtube.backoff_base: %w", err)
	}
	maxBackoff, err := config.ParseDuration(cfg.BackoffMax, 8*time.Second)
	if err != nil {
		return nil, fmt.Errorf("parsing youtube.backoff_max: %w", err)
	}

	c := &Client{
		tokens:      tokens,
		regionCode:  cfg.RegionCode,
		timeout:     timeout,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: base,
		backoffMax:  maxBackoff,
		logger:      logger.With("component", "youtube"),
		metrics:     metrics,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	for _, opt := range opts {
		opt(c)
	}

	readOpts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey.Value())}, c.extraOpts...)
	svc, err := yt.NewService(ctx, readOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating youtube service: %w", err)
	}
	c.read = svc
	return c, nil
}

// writeService builds a service authorized with the caller's OAuth token.
// Built per call so token refresh in the provider always takes effect.
func (c *Client) writeService(ctx context.Context) (*yt.Service, error) {
	tok, err := c.tokens.Credential(ctx)
	if err != nil {
		return nil, err
	}
	writeOpts := append([]option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(tok)),
	}, c.extraOpts...)
	svc, err := yt.NewService(ctx, writeOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating authorized youtube service: %w", err)
	}
	return svc, nil
}

// withRetry runs fn with timeout, backoff, and jitter. Only transient
// failures are retried.
func (c *Client) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			c.metrics.IncAPIRetry()
			backoff := c.backoffBase << (attempt - 1)
			if backoff > c.backoffMax {
				backoff = c.backoffMax
			}
			backoff += time.Duration(rand.Int63n(int64(c.backoffBase)))
			c.logger.Warn("retrying api call", "op", op, "attempt", attempt+1, "backoff", backoff, "error", lastErr)
			if err := c.sleep(ctx, backoff); err != nil {
				return err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = classifyAPIError(err)
		if !isTransient(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%s: retries exhausted: %w", op, lastErr)
}

// classifyAPIError maps Data API errors onto the package error surface.
func classifyAPIError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 404:
			return fmt.Errorf("%w: %s", ErrNotFound, gerr.Message)
		case 403:
			for _, e := range gerr.Errors {
				if e.Reason == "quotaExceeded" || e.Reason == "dailyLimitExceeded" {
					return fmt.Errorf("%w: %s", ErrQuotaExceeded, gerr.Message)
				}
			}
		}
	}
	return err
}

func isTransient(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 429 || gerr.Code >= 500
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// VideoInfo fetches snippet, statistics, and contentDetails for one video.
func (c *Client) VideoInfo(ctx context.Context, videoID string) (*VideoInfo, error) {
	var resp *yt.VideoListResponse
	err := c.withRetry(ctx, "videos.list", func(ctx context.Context) error {
		var err error
		resp, err = c.read.Videos.
			List([]string{"snippet", "statistics", "contentDetails"}).
			Id(videoID).
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: video %s", ErrNotFound, videoID)
	}

	v := resp.Items[0]
	info := &VideoInfo{
		ID:           v.Id,
		Title:        v.Snippet.Title,
		Description:  v.Snippet.Description,
		ChannelID:    v.Snippet.ChannelId,
		ChannelTitle: v.Snippet.ChannelTitle,
		Tags:         v.Snippet.Tags,
		CategoryID:   v.Snippet.CategoryId,
	}
	info.PublishedAt, _ = time.Parse(time.RFC3339, v.Snippet.PublishedAt)
	if v.ContentDetails != nil {
		info.Duration = v.ContentDetails.Duration
	}
	if v.Statistics != nil {
		info.ViewCount = v.Statistics.ViewCount
		info.LikeCount = v.Statistics.LikeCount
		info.CommentCount = v.Statistics.CommentCount
	}
	if v.Snippet.Thumbnails != nil && v.Snippet.Thumbnails.High != nil {
		info.ThumbnailURL = v.Snippet.Thumbnails.High.Url
	}
	return info, nil
}

// Comments fetches one page of top-level comments, newest first.
func (c *Client) Comments(ctx context.Context, videoID string, maxResults int64, pageToken string) (*CommentPage, error) {
	var resp *yt.CommentThreadListResponse
	err := c.withRetry(ctx, "commentThreads.list", func(ctx context.Context) error {
		call := c.read.CommentThreads.
			List([]string{"snippet"}).
			VideoId(videoID).
			Order("time").
			MaxResults(maxResults).
			TextFormat("plainText").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		var err error
		resp, err = call.Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	page := &CommentPage{
		Comments:      make([]Comment, 0, len(resp.Items)),
		NextPageToken: resp.NextPageToken,
	}
	for _, item := range resp.Items {
		if item.Snippet == nil || item.Snippet.TopLevelComment == nil {
			continue
		}
		top := item.Snippet.TopLevelComment.Snippet
		cm := Comment{
			ID:         item.Id,
			Author:     top.AuthorDisplayName,
			Text:       top.TextDisplay,
			LikeCount:  top.LikeCount,
			ReplyCount: item.Snippet.TotalReplyCount,
		}
		cm.PublishedAt, _ = time.Parse(time.RFC3339, top.PublishedAt)
		page.Comments = append(page.Comments, cm)
	}
	return page, nil
}

// Search runs a video search.
func (c *Client) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	var resp *yt.SearchListResponse
	err := c.withRetry(ctx, "search.list", func(ctx context.Context) error {
		call := c.read.Search.
			List([]string{"snippet"}).
			Q(q.Query).
			Type("video").
			Order(q.Order).
			MaxResults(q.MaxResults).
			Context(ctx)
		region := q.RegionCode
		if region == "" {
			region = c.regionCode
		}
		if region != "" {
			call = call.RegionCode(region)
		}
		var err error
		resp, err = call.Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		r := SearchResult{
			VideoID:      item.Id.VideoId,
			Title:        item.Snippet.Title,
			Description:  item.Snippet.Description,
			ChannelID:    item.Snippet.ChannelId,
			ChannelTitle: item.Snippet.ChannelTitle,
		}
		r.PublishedAt, _ = time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.Medium != nil {
			r.ThumbnailURL = item.Snippet.Thumbnails.Medium.Url
		}
		results = append(results, r)
	}
	return results, nil
}

// ChannelInfo resolves a channel by ID or handle and returns its metadata.
func (c *Client) ChannelInfo(ctx context.Context, ref ChannelRef) (*Channel, error) {
	var resp *yt.ChannelListResponse
	err := c.withRetry(ctx, "channels.list", func(ctx context.Context) error {
		call := c.read.Channels.
			List([]string{"snippet", "statistics", "contentDetails"}).
			Context(ctx)
		if ref.ID != "" {
			call = call.Id(ref.ID)
		} else {
			call = call.ForHandle(ref.Handle)
		}
		var err error
		resp, err = call.Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: channel %s%s", ErrNotFound, ref.ID, ref.Handle)
	}

	ch := resp.Items[0]
	out := &Channel{
		ID:          ch.Id,
		Title:       ch.Snippet.Title,
		Description: ch.Snippet.Description,
		CustomURL:   ch.Snippet.CustomUrl,
		Country:     ch.Snippet.Country,
	}
	out.PublishedAt, _ = time.Parse(time.RFC3339, ch.Snippet.PublishedAt)
	if ch.Statistics != nil {
		out.SubscriberCount = ch.Statistics.SubscriberCount
		out.VideoCount = ch.Statistics.VideoCount
		out.ViewCount = ch.Statistics.ViewCount
	}
	if ch.ContentDetails != nil && ch.ContentDetails.RelatedPlaylists != nil {
		out.UploadsPlaylist = ch.ContentDetails.RelatedPlaylists.Uploads
	}
	return out, nil
}

// CreatePlaylist creates a playlist on the authorized account.
func (c *Client) CreatePlaylist(ctx context.Context, title, description, privacy string) (*Playlist, error) {
	svc, err := c.writeService(ctx)
	if err != nil {
		return nil, err
	}

	var created *yt.Playlist
	err = c.withRetry(ctx, "playlists.insert", func(ctx context.Context) error {
		var err error
		created, err = svc.Playlists.Insert([]string{"snippet", "status"}, &yt.Playlist{
			Snippet: &yt.PlaylistSnippet{Title: title, Description: description},
			Status:  &yt.PlaylistStatus{PrivacyStatus: privacy},
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("playlist created", "playlist_id", created.Id, "title", title)
	return playlistFromAPI(created), nil
}

// UpdatePlaylist modifies playlist metadata. Empty fields keep the current
// value.
func (c *Client) UpdatePlaylist(ctx context.Context, playlistID, title, description, privacy string) (*Playlist, error) {
	svc, err := c.writeService(ctx)
	if err != nil {
		return nil, err
	}

	var current *yt.Playlist
	err = c.withRetry(ctx, "playlists.list", func(ctx context.Context) error {
		resp, err := svc.Playlists.
			List([]string{"snippet", "status", "contentDetails"}).
			Id(playlistID).
			Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return fmt.Errorf("%w: playlist %s", ErrNotFound, playlistID)
		}
		current = resp.Items[0]
		return nil
	})
	if err != nil {
		return nil, err
	}

	if title != "" {
		current.Snippet.Title = title
	}
	if description != "" {
		current.Snippet.Description = description
	}
	if privacy != "" {
		if current.Status == nil {
			current.Status = &yt.PlaylistStatus{}
		}
		current.Status.PrivacyStatus = privacy
	}

	var updated *yt.Playlist
	err = c.withRetry(ctx, "playlists.update", func(ctx context.Context) error {
		var err error
		updated, err = svc.Playlists.
			Update([]string{"snippet", "status"}, current).
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return playlistFromAPI(updated), nil
}

// DeletePlaylist removes a playlist.
func (c *Client) DeletePlaylist(ctx context.Context, playlistID string) error {
	svc, err := c.writeService(ctx)
	if err != nil {
		return err
	}
	err = c.withRetry(ctx, "playlists.delete", func(ctx context.Context) error {
		return svc.Playlists.Delete(playlistID).Context(ctx).Do()
	})
	if err == nil {
		c.logger.Info("playlist deleted", "playlist_id", playlistID)
	}
	return err
}

// AddPlaylistVideo inserts a video into a playlist. position < 0 appends.
func (c *Client) AddPlaylistVideo(ctx context.Context, playlistID, videoID string, position int64) (*PlaylistItem, error) {
	svc, err := c.writeService(ctx)
	if err != nil {
		return nil, err
	}

	snippet := &yt.PlaylistItemSnippet{
		PlaylistId: playlistID,
		ResourceId: &yt.ResourceId{Kind: "youtube#video", VideoId: videoID},
	}
	if position >= 0 {
		snippet.Position = position
		snippet.ForceSendFields = append(snippet.ForceSendFields, "Position")
	}

	var inserted *yt.PlaylistItem
	err = c.withRetry(ctx, "playlistItems.insert", func(ctx context.Context) error {
		var err error
		inserted, err = svc.PlaylistItems.
			Insert([]string{"snippet"}, &yt.PlaylistItem{Snippet: snippet}).
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return playlistItemFromAPI(inserted), nil
}

// RemovePlaylistVideo deletes every entry for videoID from the playlist.
func (c *Client) RemovePlaylistVideo(ctx context.Context, playlistID, videoID string) error {
	svc, err := c.writeService(ctx)
	if err != nil {
		return err
	}

	items, err := c.findPlaylistEntries(ctx, svc, playlistID, videoID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: video %s in playlist %s", ErrNotFound, videoID, playlistID)
	}

	for _, item := range items {
		id := item.ID
		err := c.withRetry(ctx, "playlistItems.delete", func(ctx context.Context) error {
			return svc.PlaylistItems.Delete(id).Context(ctx).Do()
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ReorderPlaylist moves the first entry for videoID to position.
func (c *Client) ReorderPlaylist(ctx context.Context, playlistID, videoID string, position int64) (*PlaylistItem, error) {
	svc, err := c.writeService(ctx)
	if err != nil {
		return nil, err
	}

	items, err := c.findPlaylistEntries(ctx, svc, playlistID, videoID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: video %s in playlist %s", ErrNotFound, videoID, playlistID)
	}

	snippet := &yt.PlaylistItemSnippet{
		PlaylistId: playlistID,
		ResourceId: &yt.ResourceId{Kind: "youtube#video", VideoId: videoID},
		Position:   position,
	}
	snippet.ForceSendFields = append(snippet.ForceSendFields, "Position")

	var updated *yt.PlaylistItem
	err = c.withRetry(ctx, "playlistItems.update", func(ctx context.Context) error {
		var err error
		updated, err = svc.PlaylistItems.
			Update([]string{"snippet"}, &yt.PlaylistItem{Id: items[0].ID, Snippet: snippet}).
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return playlistItemFromAPI(updated), nil
}

// findPlaylistEntries pages through a playlist collecting entries for one
// video.
func (c *Client) findPlaylistEntries(ctx context.Context, svc *yt.Service, playlistID, videoID string) ([]PlaylistItem, error) {
	var found []PlaylistItem
	pageToken := ""
	for {
		var resp *yt.PlaylistItemListResponse
		err := c.withRetry(ctx, "playlistItems.list", func(ctx context.Context) error {
			call := svc.PlaylistItems.
				List([]string{"snippet"}).
				PlaylistId(playlistID).
				MaxResults(MaxResultsCap).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			if item.Snippet != nil && item.Snippet.ResourceId != nil &&
				item.Snippet.ResourceId.VideoId == videoID {
				found = append(found, *playlistItemFromAPI(item))
			}
		}
		if resp.NextPageToken == "" {
			return found, nil
		}
		pageToken = resp.NextPageToken
	}
}

// ListCaptions lists the caption tracks on a video.
func (c *Client) ListCaptions(ctx context.Context, videoID string) ([]Caption, error) {
	var resp *yt.CaptionListResponse
	err := c.withRetry(ctx, "captions.list", func(ctx context.Context) error {
		var err error
		resp, err = c.read.Captions.
			List([]string{"snippet"}, videoID).
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]Caption, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Snippet == nil {
			continue
		}
		out = append(out, Caption{
			ID:        item.Id,
			Language:  item.Snippet.Language,
			Name:      item.Snippet.Name,
			Kind:      item.Snippet.TrackKind,
			Generated: item.Snippet.TrackKind == "asr",
		})
	}
	return out, nil
}

// DownloadCaption fetches a caption track as raw subtitle text. format is a
// Data API tfmt value ("srt", "ttml", "vtt"); empty means srt.
func (c *Client) DownloadCaption(ctx context.Context, videoID, language, format string) (string, error) {
	track, err := c.pickCaptionTrack(ctx, videoID, language)
	if err != nil {
		return "", err
	}
	if format == "" {
		format = "srt"
	}

	svc, err := c.writeService(ctx)
	if err != nil {
		return "", err
	}

	var body string
	err = c.withRetry(ctx, "captions.download", func(ctx context.Context) error {
		resp, err := svc.Captions.Download(track.ID).Tfmt(format).Context(ctx).Download()
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		var sb strings.Builder
		if _, err := copyBounded(&sb, resp.Body); err != nil {
			return err
		}
		body = sb.String()
		return nil
	})
	if err != nil {
		return "", err
	}
	return body, nil
}

// Transcript downloads the best caption track and decodes it into segments.
func (c *Client) Transcript(ctx context.Context, videoID, language string) (*Transcript, error) {
	track, err := c.pickCaptionTrack(ctx, videoID, language)
	if err != nil {
		return nil, err
	}

	raw, err := c.DownloadCaption(ctx, videoID, track.Language, "srt")
	if err != nil {
		return nil, err
	}

	segments, err := parseSRT(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding transcript: %w", err)
	}
	return &Transcript{
		VideoID:   videoID,
		Language:  track.Language,
		Generated: track.Generated,
		Segments:  segments,
	}, nil
}

// pickCaptionTrack chooses the track for a language. Manual tracks win over
// auto-generated ones; empty language means first manual track, then first
// overall.
func (c *Client) pickCaptionTrack(ctx context.Context, videoID, language string) (*Caption, error) {
	tracks, err := c.ListCaptions(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: video %s", ErrNoTranscript, videoID)
	}

	lang := strings.ToLower(strings.SplitN(language, "-", 2)[0])
	var fallback *Caption
	for i := range tracks {
		t := &tracks[i]
		trackLang := strings.ToLower(strings.SplitN(t.Language, "-", 2)[0])
		if lang != "" && trackLang != lang {
			continue
		}
		if !t.Generated {
			return t, nil
		}
		if fallback == nil {
			fallback = t
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, fmt.Errorf("%w: no %q track on video %s", ErrNoTranscript, language, videoID)
}

func playlistFromAPI(p *yt.Playlist) *Playlist {
	out := &Playlist{ID: p.Id}
	if p.Snippet != nil {
		out.Title = p.Snippet.Title
		out.Description = p.Snippet.Description
		out.PublishedAt, _ = time.Parse(time.RFC3339, p.Snippet.PublishedAt)
	}
	if p.Status != nil {
		out.Privacy = p.Status.PrivacyStatus
	}
	if p.ContentDetails != nil {
		out.ItemCount = p.ContentDetails.ItemCount
	}
	return out
}

func playlistItemFromAPI(item *yt.PlaylistItem) *PlaylistItem {
	out := &PlaylistItem{ID: item.Id}
	if item.Snippet != nil {
		out.Title = item.Snippet.Title
		out.Position = item.Snippet.Position
		if item.Snippet.ResourceId != nil {
			out.VideoID = item.Snippet.ResourceId.VideoId
		}
	}
	return out
}
