package youtube

import "time"

// VideoInfo is the metadata subset returned for a single video.
type VideoInfo struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title"`
	PublishedAt  time.Time `json:"published_at"`
	Duration     string    `json:"duration"`
	Tags         []string  `json:"tags,omitempty"`
	CategoryID   string    `json:"category_id,omitempty"`
	ViewCount    uint64    `json:"view_count"`
	LikeCount    uint64    `json:"like_count"`
	CommentCount uint64    `json:"comment_count"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}

// Channel is the metadata subset returned for a channel.
type Channel struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	CustomURL       string    `json:"custom_url,omitempty"`
	Country         string    `json:"country,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	SubscriberCount uint64    `json:"subscriber_count"`
	VideoCount      uint64    `json:"video_count"`
	ViewCount       uint64    `json:"view_count"`
	UploadsPlaylist string    `json:"uploads_playlist,omitempty"`
}

// SearchResult is one hit from a video search.
type SearchResult struct {
	VideoID      string    `json:"video_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title"`
	PublishedAt  time.Time `json:"published_at"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}

// Comment is a top-level comment with its reply count.
type Comment struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	Text        string    `json:"text"`
	LikeCount   int64     `json:"like_count"`
	ReplyCount  int64     `json:"reply_count"`
	PublishedAt time.Time `json:"published_at"`
}

// CommentPage is one page of comments plus the cursor for the next.
type CommentPage struct {
	Comments      []Comment `json:"comments"`
	NextPageToken string    `json:"next_page_token,omitempty"`
}

// TranscriptSegment is one timed line of a transcript.
type TranscriptSegment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// Transcript is a full caption track decoded into segments.
type Transcript struct {
	VideoID   string              `json:"video_id"`
	Language  string              `json:"language"`
	Generated bool                `json:"generated"`
	Segments  []TranscriptSegment `json:"segments"`
}

// Text joins all segments into a single plain-text transcript.
func (t *Transcript) Text() string {
	out := make([]byte, 0, 256)
	for i, s := range t.Segments {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, s.Text...)
	}
	return string(out)
}

// Caption describes one caption track on a video.
type Caption struct {
	ID        string `json:"id"`
	Language  string `json:"language"`
	Name      string `json:"name,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Generated bool   `json:"generated"`
}

// Playlist is the metadata subset returned for playlist operations.
type Playlist struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Privacy     string    `json:"privacy"`
	ItemCount   int64     `json:"item_count"`
	PublishedAt time.Time `json:"published_at"`
}

// PlaylistItem is one entry in a playlist.
type PlaylistItem struct {
	ID       string `json:"id"`
	VideoID  string `json:"video_id"`
	Title    string `json:"title,omitempty"`
	Position int64  `json:"position"`
}

// SearchQuery holds the validated parameters for a video search.
type SearchQuery struct {
	Query      string
	MaxResults int64
	Order      string
	RegionCode string
}
