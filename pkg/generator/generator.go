package generator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/denysvitali/tweetvault/internal/models"
)

const (
	// DefaultVaultName titles the root index when none is configured
	DefaultVaultName = "TweetVault"

	uncategorized = "Uncategorized"
	indexFile     = "_index.md"
)

// Options controls the vault layout
type Options struct {
	VaultName    string
	IncludeMedia bool
	CreateIndex  bool
}

// Generator writes classified bookmarks as an Obsidian vault
type Generator struct {
	opts   Options
	logger *logrus.Logger
	tracer trace.Tracer
}

// New creates a vault generator
func New(opts Options, logger *logrus.Logger) *Generator {
	if opts.VaultName == "" {
		opts.VaultName = DefaultVaultName
	}
	return &Generator{opts: opts, logger: logger, tracer: otel.Tracer("tweetvault")}
}

// Generate writes one note per item into a folder per category, plus index notes
// when enabled. Every written file counts toward FilesCreated.
func (g *Generator) Generate(ctx context.Context, items []models.ClassifiedBookmark, outputDir string) (*models.GenerateResult, error) {
	_, span := g.tracer.Start(ctx, "generate_vault")
	defer span.End()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	groups := groupByCategory(items)
	result := &models.GenerateResult{
		CategoriesCreated: make([]string, 0, len(groups)),
		OutputDir:         outputDir,
	}

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := filepath.Join(outputDir, group.folder)
		if err := os.MkdirAll(dir, 0755); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to create category directory %s: %w", group.folder, err)
		}

		for _, item := range group.items {
			content, err := RenderNote(item, g.opts.IncludeMedia)
			if err != nil {
				return nil, err
			}
			if err := writeFile(filepath.Join(dir, NoteName(item)+".md"), content); err != nil {
				span.RecordError(err)
				return nil, err
			}
			result.FilesCreated++
		}

		if g.opts.CreateIndex {
			content, err := RenderCategoryIndex(group.name, group.items)
			if err != nil {
				return nil, err
			}
			if err := writeFile(filepath.Join(dir, indexFile), content); err != nil {
				span.RecordError(err)
				return nil, err
			}
			result.FilesCreated++
		}

		result.CategoriesCreated = append(result.CategoriesCreated, group.name)
	}

	if g.opts.CreateIndex {
		content, err := renderVaultIndex(g.opts.VaultName, groups)
		if err != nil {
			return nil, err
		}
		if err := writeFile(filepath.Join(outputDir, indexFile), content); err != nil {
			span.RecordError(err)
			return nil, err
		}
		result.FilesCreated++
	}

	span.SetAttributes(
		attribute.Int("files_created", result.FilesCreated),
		attribute.Int("categories", len(result.CategoriesCreated)),
	)
	g.logger.WithFields(logrus.Fields{
		"output_dir":    outputDir,
		"files_created": result.FilesCreated,
		"categories":    len(result.CategoriesCreated),
	}).Info("Vault generated")

	return result, nil
}

// groupByCategory keeps categories in first-seen order
func groupByCategory(items []models.ClassifiedBookmark) []categoryGroup {
	var groups []categoryGroup
	index := map[string]int{}

	for _, item := range items {
		name, folder := item.Category, SanitizePath(item.Category)
		if !validFolder(folder) {
			name, folder = uncategorized, uncategorized
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, categoryGroup{name: name, folder: folder})
		}
		groups[i].items = append(groups[i].items, item)
	}
	return groups
}

// validFolder rejects names that would leave the vault or land on its root.
// Categories come from model output and are not trusted.
func validFolder(folder string) bool {
	return folder != "" && folder != "." && folder != ".."
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
