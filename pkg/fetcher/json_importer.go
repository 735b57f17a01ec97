package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/denysvitali/tweetvault/internal/models"
)

// JSONImporter reads bookmarks from a JSON file. It accepts X's archive export,
// simplified records and the output of the fetch command.
type JSONImporter struct {
	path string

	once      sync.Once
	bookmarks []models.Bookmark
	loadErr   error
}

// NewJSONImporter creates an importer for the file at path
func NewJSONImporter(path string) *JSONImporter {
	return &JSONImporter{path: path}
}

// Fetch returns a slice of the file. The cursor is the integer offset of the next page.
func (j *JSONImporter) Fetch(ctx context.Context, opts models.FetchOptions) (*models.FetchResult, error) {
	j.once.Do(func() {
		j.bookmarks, j.loadErr = j.load()
	})
	if j.loadErr != nil {
		return nil, j.loadErr
	}

	total := len(j.bookmarks)
	limit := opts.Limit
	if limit <= 0 {
		limit = total
	}

	offset := 0
	if opts.Cursor != "" {
		n, err := strconv.Atoi(opts.Cursor)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid cursor %q", opts.Cursor)
		}
		offset = n
	}

	start := min(offset, total)
	end := min(offset+limit, total)

	result := &models.FetchResult{
		Bookmarks: j.bookmarks[start:end],
		HasMore:   offset+limit < total,
	}
	if result.HasMore {
		result.Cursor = strconv.Itoa(offset + limit)
	}
	return result, nil
}

func (j *JSONImporter) load() ([]models.Bookmark, error) {
	raw, err := os.ReadFile(j.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", j.path, err)
	}
	return ParseBookmarksJSON(raw)
}

// ParseBookmarksJSON decodes either a top-level array or an object with a
// "bookmarks" array and normalizes each record
func ParseBookmarksJSON(raw []byte) ([]models.Bookmark, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber() // keep snowflake ids exact

	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse bookmarks JSON: %w", err)
	}

	var records []any
	switch v := data.(type) {
	case []any:
		records = v
	case map[string]any:
		records, _ = v["bookmarks"].([]any)
	}

	bookmarks := make([]models.Bookmark, 0, len(records))
	for _, r := range records {
		if m, ok := r.(map[string]any); ok {
			bookmarks = append(bookmarks, normalizeBookmark(m))
		}
	}
	return bookmarks, nil
}

func normalizeBookmark(raw map[string]any) models.Bookmark {
	tweet := raw
	if nested, ok := raw["tweet"].(map[string]any); ok {
		tweet = nested
	}
	user, _ := tweet["user"].(map[string]any)

	idStr := str(tweet["id_str"])
	restID := str(tweet["rest_id"])

	url := str(tweet["url"])
	if url == "" {
		switch {
		case idStr != "":
			url = "https://x.com/i/status/" + idStr
		case restID != "":
			url = "https://x.com/i/status/" + restID
		}
	}

	bm := models.Bookmark{
		ID:           firstNonEmpty(str(tweet["id"]), idStr, restID),
		Text:         firstNonEmpty(str(tweet["full_text"]), str(tweet["text"])),
		AuthorName:   firstNonEmpty(str(user["name"]), str(tweet["author_name"]), str(tweet["authorName"])),
		AuthorHandle: firstNonEmpty(str(user["screen_name"]), str(tweet["author_handle"]), str(tweet["authorHandle"])),
		CreatedAt:    firstNonEmpty(str(tweet["created_at"]), str(tweet["createdAt"])),
		URL:          url,
		Media:        parseMedia(tweet),
		Metrics:      parseMetrics(tweet),
	}

	for _, key := range []string{"quotedTweet", "quoted_status"} {
		if quoted, ok := tweet[key].(map[string]any); ok {
			q := normalizeBookmark(quoted)
			bm.QuotedTweet = &q
			break
		}
	}
	return bm
}

func parseMedia(tweet map[string]any) []models.MediaItem {
	var list []any
	if entities, ok := tweet["extended_entities"].(map[string]any); ok {
		list, _ = entities["media"].([]any)
	} else if entities, ok := tweet["entities"].(map[string]any); ok {
		list, _ = entities["media"].([]any)
	} else {
		// Records previously written by the fetch command
		list, _ = tweet["media"].([]any)
	}

	media := []models.MediaItem{}
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		media = append(media, models.MediaItem{
			Type:    models.MediaTypeFromX(str(m["type"])),
			URL:     firstNonEmpty(str(m["media_url_https"]), str(m["url"])),
			AltText: firstNonEmpty(str(m["ext_alt_text"]), str(m["altText"])),
		})
	}
	return media
}

func parseMetrics(tweet map[string]any) *models.TweetMetrics {
	if tweet["favorite_count"] != nil {
		metrics := &models.TweetMetrics{
			Likes:    num(tweet["favorite_count"]),
			Retweets: num(tweet["retweet_count"]),
			Replies:  num(tweet["reply_count"]),
		}
		switch v := tweet["views"].(type) {
		case map[string]any:
			if c, ok := v["count"]; ok {
				views := num(c)
				metrics.Views = &views
			}
		case nil:
		default:
			views := num(v)
			metrics.Views = &views
		}
		return metrics
	}

	if m, ok := tweet["metrics"].(map[string]any); ok {
		metrics := &models.TweetMetrics{
			Likes:    num(m["likes"]),
			Retweets: num(m["retweets"]),
			Replies:  num(m["replies"]),
		}
		if v, ok := m["views"]; ok && v != nil {
			views := num(v)
			metrics.Views = &views
		}
		return metrics
	}

	return nil
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func num(v any) int64 {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return int64(f)
		}
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
