package fetcher

import (
	"context"
	"fmt"

	"github.com/denysvitali/tweetvault/internal/models"
)

// DefaultPageSize is the page size X's web client uses for the bookmarks timeline
const DefaultPageSize = 20

// Fetcher returns bookmarks one page at a time
type Fetcher interface {
	Fetch(ctx context.Context, opts models.FetchOptions) (*models.FetchResult, error)
}

// Collect pages through f until limit bookmarks are gathered, the cursor runs out
// or a page comes back empty. onPage is called after every page with the running total.
func Collect(ctx context.Context, f Fetcher, limit, pageSize int, onPage func(total int)) ([]models.Bookmark, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var (
		bookmarks []models.Bookmark
		cursor    string
	)

	for len(bookmarks) < limit {
		page, err := f.Fetch(ctx, models.FetchOptions{
			Limit:  min(pageSize, limit-len(bookmarks)),
			Cursor: cursor,
		})
		if err != nil {
			return bookmarks, fmt.Errorf("failed to fetch page after %d bookmarks: %w", len(bookmarks), err)
		}

		bookmarks = append(bookmarks, page.Bookmarks...)
		if onPage != nil {
			onPage(len(bookmarks))
		}

		if !page.HasMore || page.Cursor == "" || len(page.Bookmarks) == 0 {
			break
		}
		cursor = page.Cursor
	}

	return bookmarks, nil
}
