package bridge

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/denysvitali/tweetvault/internal/models"
)

const (
	generatedMarker  = "Generated"
	categoriesMarker = "Categories:"
)

var progressPattern = regexp.MustCompile(`Step (\d+)/(\d+): (.+)$`)

// ParseOutput scrapes the sync summary printed on the CLI's stdout.
// Missing or malformed lines leave the zero value in place.
func ParseOutput(stdout string) models.SyncResult {
	result := models.SyncResult{Categories: []string{}}

	lines := splitLines(stdout)

	if line, ok := firstLineContaining(lines, generatedMarker); ok {
		result.FilesCreated = countAfter(line, generatedMarker)
	}

	if line, ok := firstLineContaining(lines, categoriesMarker); ok {
		parts := strings.Split(line, categoriesMarker)
		for _, c := range strings.Split(parts[1], ",") {
			c = strings.TrimSpace(c)
			if c != "" {
				result.Categories = append(result.Categories, c)
			}
		}
	}

	return result
}

// ParseProgress recognizes a "Step N/M: detail" line from the CLI's stderr
func ParseProgress(line string) (models.SyncProgress, bool) {
	m := progressPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return models.SyncProgress{}, false
	}
	step, _ := strconv.Atoi(m[1])
	total, _ := strconv.Atoi(m[2])
	return models.SyncProgress{
		Step:   step,
		Total:  total,
		Detail: strings.TrimSpace(m[3]),
	}, true
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func firstLineContaining(lines []string, marker string) (string, bool) {
	for _, l := range lines {
		if strings.Contains(l, marker) {
			return l, true
		}
	}
	return "", false
}

// countAfter parses the token that follows marker, e.g. "Generated 12 files" -> 12
func countAfter(line, marker string) uint32 {
	fields := strings.Fields(line)
	for i, f := range fields {
		if !strings.Contains(f, marker) || i+1 >= len(fields) {
			continue
		}
		n, err := strconv.ParseUint(fields[i+1], 10, 32)
		if err != nil {
			return 0
		}
		return uint32(n)
	}
	return 0
}
