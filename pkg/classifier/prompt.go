package classifier

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/denysvitali/tweetvault/internal/models"
)

const maxTextRunes = 500

const classificationPrompt = `You are a bookmark classifier. Given a list of tweets/posts, classify each one into a category and subcategory, assign relevant tags, and write a brief summary.

Respond in JSON format:
{
  "items": [
    {
      "id": "tweet_id",
      "category": "Main Category",
      "subcategory": "Sub Category (optional)",
      "tags": ["tag1", "tag2"],
      "summary": "One sentence summary"
    }
  ],
  "categories": ["Category1", "Category2"]
}

Categories should be broad topics like: Tech, AI/ML, Design, Business, Life, Science, Programming, etc.
Keep categories concise and reusable. Aim for 5-15 total categories.

Tweets to classify:
`

// Replies are often wrapped in markdown fences or prose
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// BuildPrompt renders the classification request for one batch
func BuildPrompt(batch []models.Bookmark, opts Options) string {
	lines := make([]string, 0, len(batch))
	for _, b := range batch {
		lines = append(lines, fmt.Sprintf("[ID: %s] @%s: %s", b.ID, b.AuthorHandle, truncate(b.Text, maxTextRunes)))
	}

	var sb strings.Builder
	sb.WriteString(classificationPrompt)
	sb.WriteString(strings.Join(lines, "\n\n"))
	if len(opts.Categories) > 0 {
		sb.WriteString("\n\nUse these categories: ")
		sb.WriteString(strings.Join(opts.Categories, ", "))
	}
	if opts.Language != "" {
		sb.WriteString("\n\nRespond with summaries in ")
		sb.WriteString(opts.Language)
		sb.WriteString(".")
	}
	return sb.String()
}

type classificationReply struct {
	Items []struct {
		ID          json.RawMessage `json:"id"`
		Category    string          `json:"category"`
		Subcategory string          `json:"subcategory"`
		Tags        []string        `json:"tags"`
		Summary     string          `json:"summary"`
	} `json:"items"`
	Categories []string `json:"categories"`
}

// ParseReply extracts the classification for batch from a model reply.
// Items whose id is not part of the batch are dropped.
func ParseReply(text string, batch []models.Bookmark) (*models.ClassificationResult, error) {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return nil, fmt.Errorf("failed to parse AI response as JSON")
	}

	var reply classificationReply
	if err := json.Unmarshal([]byte(match), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse AI response as JSON: %w", err)
	}

	byID := make(map[string]models.Bookmark, len(batch))
	for _, b := range batch {
		byID[b.ID] = b
	}

	result := &models.ClassificationResult{
		Items:      []models.ClassifiedBookmark{},
		Categories: []string{},
	}
	for _, item := range reply.Items {
		bookmark, ok := byID[rawID(item.ID)]
		if !ok {
			continue
		}
		tags := item.Tags
		if tags == nil {
			tags = []string{}
		}
		result.Items = append(result.Items, models.ClassifiedBookmark{
			Bookmark:    bookmark,
			Category:    item.Category,
			Subcategory: item.Subcategory,
			Tags:        tags,
			Summary:     item.Summary,
		})
		result.AddCategory(item.Category)
	}
	for _, c := range reply.Categories {
		result.AddCategory(c)
	}

	return result, nil
}

// rawID accepts ids echoed back either as strings or as bare numbers
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
