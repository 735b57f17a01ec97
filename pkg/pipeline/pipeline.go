package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/denysvitali/tweetvault/internal/models"
	"github.com/denysvitali/tweetvault/pkg/classifier"
	"github.com/denysvitali/tweetvault/pkg/config"
	"github.com/denysvitali/tweetvault/pkg/fetcher"
	"github.com/denysvitali/tweetvault/pkg/generator"
	"github.com/denysvitali/tweetvault/pkg/store"
)

const totalSteps = 3

var (
	// ErrNoInput is returned when neither a JSON file nor a cookie is configured
	ErrNoInput = errors.New("no cookie or input file, use --cookie or --input")
	// ErrNoBookmarks is returned when the source yields nothing to classify
	ErrNoBookmarks = errors.New("no bookmarks found")
	// ErrAPIKeyRequired is returned for providers that need a key when none is set
	ErrAPIKeyRequired = errors.New("API key required")
)

// Options is everything a pipeline run needs
type Options struct {
	Fetch  config.FetchConfig
	AI     config.AIConfig
	Output config.OutputConfig
	Cache  config.CacheConfig

	// Categories restricts classification to a fixed set
	Categories []string
	// SaveClassified writes a JSON snapshot of the classification when set
	SaveClassified string
}

// Result summarizes a completed run
type Result struct {
	Bookmarks      int
	Classification *models.ClassificationResult
	Vault          *models.GenerateResult
}

// ProgressFunc receives a report at every step transition
type ProgressFunc func(models.SyncProgress)

// Pipeline runs fetch, classify and generate in sequence
type Pipeline struct {
	logger     *logrus.Logger
	tracer     trace.Tracer
	fetcher    fetcher.Fetcher
	classifier classifier.BookmarkClassifier
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithFetcher replaces the fetcher chosen from Options.Fetch
func WithFetcher(f fetcher.Fetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// WithClassifier replaces the classifier built from Options.AI
func WithClassifier(c classifier.BookmarkClassifier) Option {
	return func(p *Pipeline) { p.classifier = c }
}

// New creates a pipeline
func New(logger *logrus.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{logger: logger, tracer: otel.Tracer("tweetvault")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the full sync
func (p *Pipeline) Run(ctx context.Context, opts Options, onProgress ProgressFunc) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline")
	defer span.End()

	bookmarks, err := p.Fetch(ctx, opts, onProgress)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(bookmarks) == 0 {
		span.RecordError(ErrNoBookmarks)
		return nil, ErrNoBookmarks
	}

	classified, err := p.Classify(ctx, opts, bookmarks, onProgress)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if opts.SaveClassified != "" {
		if err := SaveJSON(opts.SaveClassified, classified); err != nil {
			p.logger.WithError(err).Warn("Failed to save classification snapshot")
		}
	}

	vault, err := p.Generate(ctx, opts, classified.Items, onProgress)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("bookmarks", len(bookmarks)),
		attribute.Int("files_created", vault.FilesCreated),
	)

	return &Result{
		Bookmarks:      len(bookmarks),
		Classification: classified,
		Vault:          vault,
	}, nil
}

// Fetch runs step 1. A JSON import is read whole; the cookie source stops at Fetch.Limit.
func (p *Pipeline) Fetch(ctx context.Context, opts Options, onProgress ProgressFunc) ([]models.Bookmark, error) {
	ctx, span := p.tracer.Start(ctx, "fetch")
	defer span.End()

	report(onProgress, 1, "Fetching bookmarks...")

	if p.fetcher != nil {
		bookmarks, err := fetcher.Collect(ctx, p.fetcher, opts.Fetch.Limit, opts.Fetch.PageSize, nil)
		if err != nil {
			return nil, err
		}
		report(onProgress, 1, fmt.Sprintf("Fetched %d bookmarks", len(bookmarks)))
		return bookmarks, nil
	}

	switch {
	case opts.Fetch.JSONPath != "":
		span.SetAttributes(attribute.String("source", "json"))
		page, err := fetcher.NewJSONImporter(opts.Fetch.JSONPath).Fetch(ctx, models.FetchOptions{})
		if err != nil {
			return nil, fmt.Errorf("fetch error: %w", err)
		}
		report(onProgress, 1, fmt.Sprintf("Imported %d bookmarks", len(page.Bookmarks)))
		return page.Bookmarks, nil

	case opts.Fetch.Cookie != "":
		span.SetAttributes(attribute.String("source", "cookie"))
		f, err := fetcher.NewCookieFetcher(opts.Fetch.Cookie, fetcher.CookieOptions{
			BaseURL: opts.Fetch.BaseURL,
			QueryID: opts.Fetch.QueryID,
		}, p.logger)
		if err != nil {
			return nil, err
		}

		bookmarks, err := fetcher.Collect(ctx, f, opts.Fetch.Limit, opts.Fetch.PageSize, func(total int) {
			report(onProgress, 1, fmt.Sprintf("Fetched %d bookmarks...", total))
		})
		if err != nil {
			return nil, fmt.Errorf("fetch error: %w", err)
		}
		report(onProgress, 1, fmt.Sprintf("Fetched %d bookmarks", len(bookmarks)))
		return bookmarks, nil

	default:
		return nil, ErrNoInput
	}
}

// Classify runs step 2
func (p *Pipeline) Classify(ctx context.Context, opts Options, bookmarks []models.Bookmark, onProgress ProgressFunc) (*models.ClassificationResult, error) {
	report(onProgress, 2, fmt.Sprintf("Classifying %d bookmarks with AI...", len(bookmarks)))

	c, closeFn, err := p.buildClassifier(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	res, err := c.Classify(ctx, bookmarks, classifier.Options{
		Categories: opts.Categories,
		Language:   opts.Output.Language,
		BatchSize:  opts.AI.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	report(onProgress, 2, fmt.Sprintf("Classified into %d categories", len(res.Categories)))
	return res, nil
}

// Generate runs step 3
func (p *Pipeline) Generate(ctx context.Context, opts Options, items []models.ClassifiedBookmark, onProgress ProgressFunc) (*models.GenerateResult, error) {
	report(onProgress, 3, "Generating Obsidian vault...")

	g := generator.New(generator.Options{
		VaultName:    opts.Output.VaultName,
		IncludeMedia: opts.Output.IncludeMedia,
		CreateIndex:  opts.Output.CreateIndex,
	}, p.logger)

	res, err := g.Generate(ctx, items, opts.Output.Dir)
	if err != nil {
		return nil, err
	}

	report(onProgress, 3, fmt.Sprintf("Generated %d files", res.FilesCreated))
	return res, nil
}

func (p *Pipeline) buildClassifier(ctx context.Context, opts Options) (classifier.BookmarkClassifier, func(), error) {
	noop := func() {}
	if p.classifier != nil {
		return p.classifier, noop, nil
	}

	if classifier.RequiresAPIKey(opts.AI.Provider) && opts.AI.APIKey == "" {
		return nil, noop, fmt.Errorf("%w for %s, use --api-key or set ai.api_key in config", ErrAPIKeyRequired, opts.AI.Provider)
	}

	c, err := classifier.New(ctx, classifier.Config{
		Provider:          opts.AI.Provider,
		APIKey:            opts.AI.APIKey,
		Model:             opts.AI.Model,
		BaseURL:           opts.AI.BaseURL,
		Concurrency:       opts.AI.Concurrency,
		RequestsPerMinute: opts.AI.RequestsPerMinute,
	}, p.logger)
	if err != nil {
		return nil, noop, err
	}

	if !opts.Cache.Enabled || opts.Cache.Path == "" {
		return c, noop, nil
	}

	st, err := store.Open(opts.Cache.Path, p.logger)
	if err != nil {
		p.logger.WithError(err).Warn("Classification cache unavailable, continuing without it")
		return c, noop, nil
	}

	settings := c.Settings()
	closeFn := func() {
		if err := st.Close(); err != nil {
			p.logger.WithError(err).Warn("Failed to close classification cache")
		}
	}
	return classifier.NewCached(c, st, settings.Name, settings.Model, p.logger), closeFn, nil
}

// SaveJSON writes v as indented JSON, creating parent directories
func SaveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func report(onProgress ProgressFunc, step int, detail string) {
	if onProgress != nil {
		onProgress(models.SyncProgress{Step: step, Total: totalSteps, Detail: detail})
	}
}
