package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/denysvitali/tweetvault/internal/models"
)

// Options tune a single Classify call
type Options struct {
	// Categories restricts the model to a fixed set
	Categories []string
	// Language for the generated summaries
	Language string
	// BatchSize is the number of bookmarks per request. Zero picks the provider default.
	BatchSize int
}

// BookmarkClassifier labels bookmarks with categories, tags and summaries
type BookmarkClassifier interface {
	Classify(ctx context.Context, bookmarks []models.Bookmark, opts Options) (*models.ClassificationResult, error)
}

// Config describes how the Classifier talks to its model
type Config struct {
	Provider          string
	APIKey            string
	Model             string
	BaseURL           string
	Concurrency       int
	RequestsPerMinute int
}

// Classifier splits bookmarks into batches and asks the model to classify each one
type Classifier struct {
	completer   Completer
	settings    ProviderSettings
	concurrency int
	limiter     *rate.Limiter
	logger      *logrus.Logger
	tracer      trace.Tracer
}

// New resolves the provider and creates the matching SDK client
func New(ctx context.Context, cfg Config, logger *logrus.Logger) (*Classifier, error) {
	settings, err := ResolveProvider(cfg.Provider, cfg.BaseURL, cfg.Model)
	if err != nil {
		return nil, err
	}

	completer, err := NewCompleter(ctx, settings, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	return NewWithCompleter(completer, settings, cfg, logger), nil
}

// NewWithCompleter creates a classifier around an existing completer
func NewWithCompleter(completer Completer, settings ProviderSettings, cfg Config, logger *logrus.Logger) *Classifier {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &Classifier{
		completer:   completer,
		settings:    settings,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
		tracer:      otel.Tracer("tweetvault"),
	}
}

// Settings returns the resolved provider endpoint
func (c *Classifier) Settings() ProviderSettings {
	return c.settings
}

// Classify runs every batch and merges the results in input order
func (c *Classifier) Classify(ctx context.Context, bookmarks []models.Bookmark, opts Options) (*models.ClassificationResult, error) {
	ctx, span := c.tracer.Start(ctx, "classify")
	defer span.End()

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize(c.settings.Name)
	}

	var batches [][]models.Bookmark
	for i := 0; i < len(bookmarks); i += batchSize {
		batches = append(batches, bookmarks[i:min(i+batchSize, len(bookmarks))])
	}

	span.SetAttributes(
		attribute.String("provider", c.settings.Name),
		attribute.String("model", c.settings.Model),
		attribute.Int("bookmarks", len(bookmarks)),
		attribute.Int("batches", len(batches)),
	)

	results := make([]*models.ClassificationResult, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			res, err := c.classifyBatch(gctx, batch, opts)
			if err != nil {
				return fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	merged := &models.ClassificationResult{
		Items:      []models.ClassifiedBookmark{},
		Categories: []string{},
	}
	for _, res := range results {
		merged.Items = append(merged.Items, res.Items...)
		for _, cat := range res.Categories {
			merged.AddCategory(cat)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"provider":   c.settings.Name,
		"classified": len(merged.Items),
		"categories": len(merged.Categories),
	}).Info("Classification finished")

	return merged, nil
}

func (c *Classifier) classifyBatch(ctx context.Context, batch []models.Bookmark, opts Options) (*models.ClassificationResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	prompt := BuildPrompt(batch, opts)
	c.logger.WithFields(logrus.Fields{
		"provider":      c.settings.Name,
		"batch_size":    len(batch),
		"prompt_length": len(prompt),
	}).Debug("Calling model for classification")

	text, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	res, err := ParseReply(text, batch)
	if err != nil {
		c.logger.WithError(err).WithField("response", truncate(text, 300)).Error("Failed to parse model response")
		return nil, err
	}
	return res, nil
}
