package classifier

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/tweetvault/internal/models"
)

// Cache remembers classifications by bookmark id. Returned items carry an
// empty Bookmark.
type Cache interface {
	Lookup(ctx context.Context, ids []string) (map[string]models.ClassifiedBookmark, error)
	Save(ctx context.Context, provider, model string, items []models.ClassifiedBookmark) error
}

// Cached skips bookmarks the cache already knows and stores new results
type Cached struct {
	inner    BookmarkClassifier
	cache    Cache
	provider string
	model    string
	logger   *logrus.Logger
}

// NewCached wraps inner with cache. provider and model are stored alongside each entry.
func NewCached(inner BookmarkClassifier, cache Cache, provider, model string, logger *logrus.Logger) *Cached {
	return &Cached{inner: inner, cache: cache, provider: provider, model: model, logger: logger}
}

// Classify returns cached and fresh classifications in input order
func (c *Cached) Classify(ctx context.Context, bookmarks []models.Bookmark, opts Options) (*models.ClassificationResult, error) {
	ids := make([]string, len(bookmarks))
	for i, b := range bookmarks {
		ids[i] = b.ID
	}

	hits, err := c.cache.Lookup(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to read classification cache: %w", err)
	}

	var misses []models.Bookmark
	for _, b := range bookmarks {
		if _, ok := hits[b.ID]; !ok {
			misses = append(misses, b)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"cached": len(bookmarks) - len(misses),
		"misses": len(misses),
	}).Info("Checked classification cache")

	fresh := &models.ClassificationResult{}
	if len(misses) > 0 {
		fresh, err = c.inner.Classify(ctx, misses, opts)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Save(ctx, c.provider, c.model, fresh.Items); err != nil {
			c.logger.WithError(err).Warn("Failed to save classifications to cache")
		}
	}

	classified := make(map[string]models.ClassifiedBookmark, len(fresh.Items))
	for _, item := range fresh.Items {
		classified[item.Bookmark.ID] = item
	}

	result := &models.ClassificationResult{
		Items:      []models.ClassifiedBookmark{},
		Categories: []string{},
	}
	for _, b := range bookmarks {
		if item, ok := hits[b.ID]; ok {
			item.Bookmark = b
			result.Items = append(result.Items, item)
			result.AddCategory(item.Category)
		} else if item, ok := classified[b.ID]; ok {
			result.Items = append(result.Items, item)
			result.AddCategory(item.Category)
		}
	}
	for _, cat := range fresh.Categories {
		result.AddCategory(cat)
	}

	return result, nil
}
