package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// FallbackQueryID is used whenever the current Bookmarks query id cannot be discovered
const FallbackQueryID = "-LGfdImKeQz0xS_jjUwzlA"

var (
	mainBundlePattern = regexp.MustCompile(`(?i)https?://[^"' ]+/responsive-web/client-web/main\.[a-z0-9]+\.js`)
	queryIDPattern    = regexp.MustCompile(`queryId:"([^"]+)",operationName:"Bookmarks"`)
	queryIDAltPattern = regexp.MustCompile(`\{queryId:"([^"]+)"[^}]*operationName:"Bookmarks"`)
)

// QueryIDResolver discovers the rotating Bookmarks query id from the web
// client's main bundle
type QueryIDResolver struct {
	homeURL string
	client  *http.Client
	logger  *logrus.Logger

	mu     sync.Mutex
	cached string
}

// NewQueryIDResolver creates a resolver that loads homeURL to find the bundle
func NewQueryIDResolver(homeURL string, client *http.Client, logger *logrus.Logger) *QueryIDResolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &QueryIDResolver{homeURL: homeURL, client: client, logger: logger}
}

// Resolve never fails: on any error it returns FallbackQueryID. Only a
// discovered id is cached.
func (r *QueryIDResolver) Resolve(ctx context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != "" {
		return r.cached
	}

	id, err := r.discover(ctx)
	if err != nil {
		r.logger.WithError(err).Warnf("Could not discover Bookmarks query id, using %s", FallbackQueryID)
		return FallbackQueryID
	}

	r.logger.WithField("query_id", id).Debug("Discovered Bookmarks query id")
	r.cached = id
	return id
}

func (r *QueryIDResolver) discover(ctx context.Context) (string, error) {
	html, err := r.get(ctx, r.homeURL)
	if err != nil {
		return "", fmt.Errorf("failed to load homepage: %w", err)
	}

	bundleURL := findMainBundle(html)
	if bundleURL == "" {
		return "", fmt.Errorf("main bundle not found")
	}

	js, err := r.get(ctx, bundleURL)
	if err != nil {
		return "", fmt.Errorf("failed to load main bundle: %w", err)
	}

	return extractQueryID(js)
}

func (r *QueryIDResolver) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

func findMainBundle(html []byte) string {
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html)); err == nil {
		var found string
		doc.Find("script[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			src, _ := s.Attr("src")
			if mainBundlePattern.MatchString(src) {
				found = src
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}

	// Preload links and inline loaders also reference the bundle
	return string(mainBundlePattern.Find(html))
}

func extractQueryID(js []byte) (string, error) {
	if m := queryIDPattern.FindSubmatch(js); m != nil {
		return string(m[1]), nil
	}
	if m := queryIDAltPattern.FindSubmatch(js); m != nil {
		return string(m[1]), nil
	}
	return "", fmt.Errorf("bookmarks query id not found in bundle")
}
