package models

// MediaType enumerates the attachment kinds X exposes on a post
type MediaType string

const (
	MediaPhoto MediaType = "photo"
	MediaVideo MediaType = "video"
	MediaGIF   MediaType = "gif"
)

// MediaTypeFromX maps X's entity type names onto MediaType. Names already in
// MediaType form, as written by the fetch command, map onto themselves.
func MediaTypeFromX(kind string) MediaType {
	switch kind {
	case "video":
		return MediaVideo
	case "animated_gif", "gif":
		return MediaGIF
	default:
		return MediaPhoto
	}
}

// Bookmark represents a single bookmarked post
type Bookmark struct {
	ID           string        `json:"id"`
	Text         string        `json:"text"`
	AuthorName   string        `json:"authorName"`
	AuthorHandle string        `json:"authorHandle"`
	CreatedAt    string        `json:"createdAt"`
	URL          string        `json:"url"`
	Media        []MediaItem   `json:"media"`
	QuotedTweet  *Bookmark     `json:"quotedTweet,omitempty"`
	Metrics      *TweetMetrics `json:"metrics,omitempty"`
}

// MediaItem represents an attachment on a bookmark
type MediaItem struct {
	Type    MediaType `json:"type"`
	URL     string    `json:"url"`
	AltText string    `json:"altText,omitempty"`
}

// TweetMetrics contains engagement counters
type TweetMetrics struct {
	Likes    int64  `json:"likes"`
	Retweets int64  `json:"retweets"`
	Replies  int64  `json:"replies"`
	Views    *int64 `json:"views,omitempty"`
}

// FetchOptions controls a single page request
type FetchOptions struct {
	Limit  int
	Cursor string
}

// FetchResult is a single page of bookmarks
type FetchResult struct {
	Bookmarks []Bookmark
	Cursor    string
	HasMore   bool
}
