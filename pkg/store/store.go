package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/denysvitali/tweetvault/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// lookupChunk keeps IN lists below SQLite's bound parameter limit
const lookupChunk = 500

// Store persists classifications so re-syncs only send new bookmarks to the model
type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

// Open creates the database at path if needed and applies the schema
func Open(path string, logger *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; modernc serializes anyway
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.WithField("path", path).Debug("Classification cache opened")
	return &Store{db: db, logger: logger}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close releases the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the stored classifications for ids. Missing ids are absent from
// the map and the returned items carry only the bookmark id.
func (s *Store) Lookup(ctx context.Context, ids []string) (map[string]models.ClassifiedBookmark, error) {
	out := make(map[string]models.ClassifiedBookmark, len(ids))

	for start := 0; start < len(ids); start += lookupChunk {
		chunk := ids[start:min(start+lookupChunk, len(ids))]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := `SELECT bookmark_id, category, subcategory, tags, summary FROM classifications WHERE bookmark_id IN (?` +
			strings.Repeat(",?", len(chunk)-1) + `)`

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query classifications: %w", err)
		}

		for rows.Next() {
			var (
				item     models.ClassifiedBookmark
				tagsJSON string
			)
			if err := rows.Scan(&item.Bookmark.ID, &item.Category, &item.Subcategory, &tagsJSON, &item.Summary); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan classification: %w", err)
			}
			if err := json.Unmarshal([]byte(tagsJSON), &item.Tags); err != nil || item.Tags == nil {
				item.Tags = []string{}
			}
			out[item.Bookmark.ID] = item
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to read classifications: %w", err)
		}
		rows.Close()
	}

	return out, nil
}

// Save upserts items in one transaction
func (s *Store) Save(ctx context.Context, provider, model string, items []models.ClassifiedBookmark) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO classifications (bookmark_id, category, subcategory, tags, summary, provider, model, classified_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(bookmark_id) DO UPDATE SET
    category = excluded.category,
    subcategory = excluded.subcategory,
    tags = excluded.tags,
    summary = excluded.summary,
    provider = excluded.provider,
    model = excluded.model,
    classified_at = excluded.classified_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, item := range items {
		tags := item.Tags
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("failed to encode tags: %w", err)
		}

		if _, err := stmt.ExecContext(ctx,
			item.Bookmark.ID, item.Category, item.Subcategory, string(tagsJSON), item.Summary, provider, model, now,
		); err != nil {
			return fmt.Errorf("failed to save classification %s: %w", item.Bookmark.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit classifications: %w", err)
	}

	s.logger.WithField("count", len(items)).Debug("Saved classifications")
	return nil
}

// Count returns the number of cached classifications
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM classifications`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count classifications: %w", err)
	}
	return n, nil
}
