package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/tweetvault/internal/models"
)

// pagedFetcher serves total bookmarks with integer cursors and records the requests
type pagedFetcher struct {
	total    int
	requests []models.FetchOptions
	failAt   int
}

func (p *pagedFetcher) Fetch(ctx context.Context, opts models.FetchOptions) (*models.FetchResult, error) {
	p.requests = append(p.requests, opts)
	if p.failAt > 0 && len(p.requests) == p.failAt {
		return nil, errors.New("boom")
	}

	offset := 0
	if opts.Cursor != "" {
		offset, _ = strconv.Atoi(opts.Cursor)
	}
	end := min(offset+opts.Limit, p.total)

	res := &models.FetchResult{}
	for i := offset; i < end; i++ {
		res.Bookmarks = append(res.Bookmarks, models.Bookmark{ID: strconv.Itoa(i)})
	}
	if end < p.total {
		res.Cursor = strconv.Itoa(end)
		res.HasMore = true
	}
	return res, nil
}

func TestCollect(t *testing.T) {
	ctx := context.Background()

	t.Run("stops at limit", func(t *testing.T) {
		f := &pagedFetcher{total: 100}
		var totals []int
		got, err := Collect(ctx, f, 45, 20, func(total int) { totals = append(totals, total) })
		require.NoError(t, err)

		assert.Len(t, got, 45)
		assert.Equal(t, []int{20, 40, 45}, totals)
		require.Len(t, f.requests, 3)
		assert.Equal(t, 5, f.requests[2].Limit)
		assert.Equal(t, "40", f.requests[2].Cursor)
	})

	t.Run("stops when the cursor runs out", func(t *testing.T) {
		f := &pagedFetcher{total: 30}
		got, err := Collect(ctx, f, 100, 20, nil)
		require.NoError(t, err)
		assert.Len(t, got, 30)
		assert.Len(t, f.requests, 2)
	})

	t.Run("stops on an empty page", func(t *testing.T) {
		f := &pagedFetcher{total: 0}
		got, err := Collect(ctx, f, 100, 20, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Len(t, f.requests, 1)
	})

	t.Run("page error keeps what was collected", func(t *testing.T) {
		f := &pagedFetcher{total: 100, failAt: 2}
		got, err := Collect(ctx, f, 100, 20, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 20 bookmarks")
		assert.Len(t, got, 20)
	})

	t.Run("default page size", func(t *testing.T) {
		f := &pagedFetcher{total: 100}
		_, err := Collect(ctx, f, 25, 0, nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultPageSize, f.requests[0].Limit)
	})
}

func writeJSON(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bookmarks.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestJSONImporter(t *testing.T) {
	ctx := context.Background()

	t.Run("archive export records", func(t *testing.T) {
		path := writeJSON(t, `[
  {"tweet": {
    "id_str": "1790000000000000001",
    "full_text": "Go generics in practice",
    "created_at": "Wed Oct 10 20:19:24 +0000 2018",
    "favorite_count": "12", "retweet_count": 3, "reply_count": 1,
    "views": {"count": "900"},
    "user": {"name": "Gopher", "screen_name": "golang"},
    "extended_entities": {"media": [
      {"type": "photo", "media_url_https": "https://pbs.twimg.com/a.jpg", "ext_alt_text": "diagram"},
      {"type": "animated_gif", "media_url_https": "https://pbs.twimg.com/b.mp4"}
    ]}
  }}
]`)
		res, err := NewJSONImporter(path).Fetch(ctx, models.FetchOptions{})
		require.NoError(t, err)
		require.Len(t, res.Bookmarks, 1)

		bm := res.Bookmarks[0]
		assert.Equal(t, "1790000000000000001", bm.ID)
		assert.Equal(t, "Go generics in practice", bm.Text)
		assert.Equal(t, "Gopher", bm.AuthorName)
		assert.Equal(t, "golang", bm.AuthorHandle)
		assert.Equal(t, "https://x.com/i/status/1790000000000000001", bm.URL)
		require.Len(t, bm.Media, 2)
		assert.Equal(t, models.MediaPhoto, bm.Media[0].Type)
		assert.Equal(t, "diagram", bm.Media[0].AltText)
		assert.Equal(t, models.MediaGIF, bm.Media[1].Type)
		require.NotNil(t, bm.Metrics)
		assert.Equal(t, int64(12), bm.Metrics.Likes)
		assert.Equal(t, int64(3), bm.Metrics.Retweets)
		require.NotNil(t, bm.Metrics.Views)
		assert.Equal(t, int64(900), *bm.Metrics.Views)
	})

	t.Run("simplified records under bookmarks key", func(t *testing.T) {
		path := writeJSON(t, `{"bookmarks": [
  {"id": 1790000000000000002, "text": "hello", "author_name": "A", "author_handle": "a", "createdAt": "2024-01-02"},
  {"rest_id": "3", "text": "no author"}
]}`)
		res, err := NewJSONImporter(path).Fetch(ctx, models.FetchOptions{})
		require.NoError(t, err)
		require.Len(t, res.Bookmarks, 2)

		assert.Equal(t, "1790000000000000002", res.Bookmarks[0].ID, "large ids keep every digit")
		assert.Equal(t, "a", res.Bookmarks[0].AuthorHandle)
		assert.Equal(t, "2024-01-02", res.Bookmarks[0].CreatedAt)
		assert.Empty(t, res.Bookmarks[0].URL)
		assert.Nil(t, res.Bookmarks[0].Metrics)
		assert.NotNil(t, res.Bookmarks[0].Media)

		assert.Equal(t, "3", res.Bookmarks[1].ID)
		assert.Equal(t, "https://x.com/i/status/3", res.Bookmarks[1].URL)
	})

	t.Run("records written by fetch", func(t *testing.T) {
		path := writeJSON(t, `[{"id": "9", "text": "t", "authorName": "N", "authorHandle": "h",
  "url": "https://x.com/h/status/9",
  "media": [{"type": "video", "url": "https://video.twimg.com/v.mp4", "altText": "clip"}],
  "metrics": {"likes": 5, "retweets": 1, "replies": 0, "views": 42}}]`)
		res, err := NewJSONImporter(path).Fetch(ctx, models.FetchOptions{})
		require.NoError(t, err)
		require.Len(t, res.Bookmarks, 1)

		bm := res.Bookmarks[0]
		assert.Equal(t, "N", bm.AuthorName)
		assert.Equal(t, "https://x.com/h/status/9", bm.URL)
		require.Len(t, bm.Media, 1)
		assert.Equal(t, models.MediaVideo, bm.Media[0].Type)
		assert.Equal(t, "clip", bm.Media[0].AltText)
		require.NotNil(t, bm.Metrics)
		assert.Equal(t, int64(5), bm.Metrics.Likes)
		assert.Equal(t, int64(42), *bm.Metrics.Views)
	})

	t.Run("offset paging", func(t *testing.T) {
		path := writeJSON(t, `[{"id":"1"},{"id":"2"},{"id":"3"},{"id":"4"},{"id":"5"}]`)
		imp := NewJSONImporter(path)

		got, err := Collect(ctx, imp, 10, 2, nil)
		require.NoError(t, err)
		require.Len(t, got, 5)
		assert.Equal(t, "5", got[4].ID)

		page, err := imp.Fetch(ctx, models.FetchOptions{Limit: 2, Cursor: "2"})
		require.NoError(t, err)
		assert.Equal(t, "4", page.Cursor)
		assert.True(t, page.HasMore)

		page, err = imp.Fetch(ctx, models.FetchOptions{Limit: 2, Cursor: "4"})
		require.NoError(t, err)
		assert.False(t, page.HasMore)
		assert.Empty(t, page.Cursor)
	})

	t.Run("invalid cursor", func(t *testing.T) {
		path := writeJSON(t, `[]`)
		_, err := NewJSONImporter(path).Fetch(ctx, models.FetchOptions{Cursor: "abc"})
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewJSONImporter(filepath.Join(t.TempDir(), "nope.json")).Fetch(ctx, models.FetchOptions{})
		assert.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		path := writeJSON(t, `{not json`)
		_, err := NewJSONImporter(path).Fetch(ctx, models.FetchOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse bookmarks JSON")
	})
}

func TestFetchOutputReimports(t *testing.T) {
	views := int64(40)
	fetched := []models.Bookmark{{
		ID: "1790000000000000001", Text: "look at this", AuthorName: "Ada", AuthorHandle: "ada",
		CreatedAt: "Wed Oct 10 20:19:24 +0000 2018", URL: "https://x.com/ada/status/1790000000000000001",
		Media: []models.MediaItem{
			{Type: models.MediaGIF, URL: "https://video.twimg.com/a.mp4"},
			{Type: models.MediaVideo, URL: "https://video.twimg.com/b.mp4"},
			{Type: models.MediaPhoto, URL: "https://pbs.twimg.com/c.jpg", AltText: "chart"},
		},
		Metrics: &models.TweetMetrics{Likes: 3, Retweets: 2, Replies: 1, Views: &views},
		QuotedTweet: &models.Bookmark{
			ID: "5", Text: "original take", AuthorHandle: "carol", URL: "https://x.com/carol/status/5",
			Media: []models.MediaItem{{Type: models.MediaGIF, URL: "https://video.twimg.com/q.mp4"}},
		},
	}}

	raw, err := json.Marshal(fetched)
	require.NoError(t, err)

	got, err := ParseBookmarksJSON(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)

	bm := got[0]
	assert.Equal(t, fetched[0].ID, bm.ID)
	assert.Equal(t, fetched[0].Media, bm.Media)
	assert.Equal(t, fetched[0].Metrics, bm.Metrics)

	require.NotNil(t, bm.QuotedTweet)
	assert.Equal(t, "carol", bm.QuotedTweet.AuthorHandle)
	assert.Equal(t, "original take", bm.QuotedTweet.Text)
	assert.Equal(t, "https://x.com/carol/status/5", bm.QuotedTweet.URL)
	assert.Equal(t, []models.MediaItem{{Type: models.MediaGIF, URL: "https://video.twimg.com/q.mp4"}}, bm.QuotedTweet.Media)
	assert.Nil(t, bm.QuotedTweet.Metrics)
}

func TestJSONImporterNullFavoriteCount(t *testing.T) {
	got, err := ParseBookmarksJSON([]byte(`[{"id_str": "7", "full_text": "hi", "favorite_count": null}]`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Metrics)
}
