package generator

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/denysvitali/tweetvault/internal/models"
)

var unsafePathChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// dateLayouts are tried in order. X uses the Ruby layout.
var dateLayouts = []string{
	time.RubyDate,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
}

type noteFrontmatter struct {
	Title       string   `yaml:"title"`
	Author      string   `yaml:"author"`
	AuthorName  string   `yaml:"author_name"`
	Date        string   `yaml:"date,omitempty"`
	URL         string   `yaml:"url"`
	Category    string   `yaml:"category"`
	Subcategory string   `yaml:"subcategory,omitempty"`
	Tags        []string `yaml:"tags,flow"`
}

type categoryFrontmatter struct {
	Title string `yaml:"title"`
	Type  string `yaml:"type"`
	Count int    `yaml:"count"`
}

type vaultFrontmatter struct {
	Title string `yaml:"title"`
	Type  string `yaml:"type"`
}

// SanitizePath replaces characters that are invalid in file names on common filesystems
func SanitizePath(name string) string {
	return strings.TrimSpace(unsafePathChars.ReplaceAllString(name, "_"))
}

// NoteName is the note's file name without extension
func NoteName(item models.ClassifiedBookmark) string {
	handle := item.Bookmark.AuthorHandle
	if handle == "" {
		handle = "unknown"
	}
	return SanitizePath(handle + "-" + item.Bookmark.ID)
}

// FormatDate renders X timestamps as YYYY-MM-DD and leaves anything else untouched
func FormatDate(raw string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format("2006-01-02")
		}
	}
	return raw
}

func frontmatter(v any) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	return "---\n" + string(out) + "---\n", nil
}

// RenderNote renders a single bookmark note
func RenderNote(item models.ClassifiedBookmark, includeMedia bool) (string, error) {
	bm := item.Bookmark

	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}

	fm := noteFrontmatter{
		Title:       "Tweet by @" + bm.AuthorHandle,
		Author:      "@" + bm.AuthorHandle,
		AuthorName:  bm.AuthorName,
		URL:         bm.URL,
		Category:    item.Category,
		Subcategory: item.Subcategory,
		Tags:        tags,
	}
	if bm.CreatedAt != "" {
		fm.Date = FormatDate(bm.CreatedAt)
	}

	head, err := frontmatter(fm)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(head)
	sb.WriteString("\n")
	writeQuoted(&sb, item.Summary)
	sb.WriteString("\n")
	sb.WriteString(bm.Text)
	sb.WriteString("\n\n")

	if bm.QuotedTweet != nil {
		q := bm.QuotedTweet
		fmt.Fprintf(&sb, "> [!quote] @%s\n", q.AuthorHandle)
		writeQuoted(&sb, q.Text)
		sb.WriteString("\n")
	}

	if includeMedia && len(bm.Media) > 0 {
		sb.WriteString("## Media\n")
		for _, m := range bm.Media {
			if m.Type == models.MediaPhoto {
				alt := m.AltText
				if alt == "" {
					alt = "image"
				}
				fmt.Fprintf(&sb, "![%s](%s)\n", alt, m.URL)
			} else {
				fmt.Fprintf(&sb, "- [%s](%s)\n", m.Type, m.URL)
			}
		}
		sb.WriteString("\n")
	}

	if bm.Metrics != nil {
		m := bm.Metrics
		fmt.Fprintf(&sb, "---\n*%d likes · %d retweets · %d replies", m.Likes, m.Retweets, m.Replies)
		if m.Views != nil {
			fmt.Fprintf(&sb, " · %d views", *m.Views)
		}
		sb.WriteString("*\n\n")
	}

	fmt.Fprintf(&sb, "[View on X](%s)", bm.URL)
	return sb.String(), nil
}

// writeQuoted prefixes every line of text with "> "
func writeQuoted(sb *strings.Builder, text string) {
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(sb, "> %s\n", line)
	}
}

// RenderCategoryIndex renders the _index.md note of a category folder
func RenderCategoryIndex(category string, items []models.ClassifiedBookmark) (string, error) {
	head, err := frontmatter(categoryFrontmatter{Title: category, Type: "category-index", Count: len(items)})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(head)
	fmt.Fprintf(&sb, "\n# %s\n\n%d bookmarks in this category.\n\n", category, len(items))
	for _, item := range items {
		fmt.Fprintf(&sb, "- [[%s|@%s]]: %s\n", NoteName(item), item.Bookmark.AuthorHandle, item.Summary)
	}
	return strings.TrimSuffix(sb.String(), "\n"), nil
}

type categoryGroup struct {
	name   string
	folder string
	items  []models.ClassifiedBookmark
}

func renderVaultIndex(name string, groups []categoryGroup) (string, error) {
	head, err := frontmatter(vaultFrontmatter{Title: name, Type: "vault-index"})
	if err != nil {
		return "", err
	}

	total := 0
	for _, g := range groups {
		total += len(g.items)
	}

	var sb strings.Builder
	sb.WriteString(head)
	fmt.Fprintf(&sb, "\n# %s\n\n%d bookmarks across %d categories.\n\n", name, total, len(groups))
	for _, g := range groups {
		fmt.Fprintf(&sb, "- **[[%s/_index|%s]]** (%d)\n", g.folder, g.name, len(g.items))
	}
	return strings.TrimSuffix(sb.String(), "\n"), nil
}
