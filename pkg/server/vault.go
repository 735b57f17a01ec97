package server

import (
	"context"
	"os"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ListVault lists the top level of a generated vault. Directories come first with a
// trailing slash, and each group is sorted case-insensitively. A missing directory
// yields an empty listing.
func ListVault(ctx context.Context, dir string) ([]string, error) {
	_, span := otel.Tracer("tweetvault").Start(ctx, "list_vault")
	defer span.End()

	span.SetAttributes(attribute.String("output_dir", dir))

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var directories, files []string
	for _, entry := range entries {
		if entry.IsDir() {
			directories = append(directories, entry.Name()+"/")
		} else {
			files = append(files, entry.Name())
		}
	}

	byFold := func(names []string) {
		sort.Slice(names, func(i, j int) bool {
			return strings.ToLower(names[i]) < strings.ToLower(names[j])
		})
	}
	byFold(directories)
	byFold(files)

	return append(append([]string{}, directories...), files...), nil
}
