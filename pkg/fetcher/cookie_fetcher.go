package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/denysvitali/tweetvault/internal/models"
)

const (
	// DefaultBaseURL is where the web client talks to the GraphQL API
	DefaultBaseURL = "https://x.com"

	bearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"
	userAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

var csrfPattern = regexp.MustCompile(`ct0=([^;]+)`)

// features mirrors the flags the web client sends with the Bookmarks query
var features = map[string]bool{
	"graphql_timeline_v2_bookmark_timeline":                             true,
	"responsive_web_graphql_exclude_directive_enabled":                  true,
	"verified_phone_label_enabled":                                      false,
	"responsive_web_graphql_timeline_navigation_enabled":                true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled": false,
	"creator_subscriptions_tweet_preview_api_enabled":                   true,
	"communities_web_enable_tweet_community_results_fetch":              true,
	"c9s_tweet_anatomy_moderator_badge_enabled":                         true,
	"tweetypie_unmention_optimization_enabled":                          true,
	"responsive_web_edit_tweet_api_enabled":                             true,
	"longform_notetweets_consumption_enabled":                           true,
	"responsive_web_media_download_video_enabled":                       false,
	"responsive_web_enhance_cards_enabled":                              false,
}

// CookieOptions configures a CookieFetcher
type CookieOptions struct {
	// BaseURL overrides DefaultBaseURL
	BaseURL string
	// QueryID pins the Bookmarks query id. When empty the resolver is asked.
	QueryID string
	// Resolver looks up the rotating query id. Defaults to a resolver against BaseURL.
	Resolver *QueryIDResolver
	// RequestsPerSecond paces GraphQL calls. Zero means one request per second.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// CookieFetcher reads bookmarks through X's internal GraphQL API using a
// browser session cookie
type CookieFetcher struct {
	cookie    string
	csrfToken string
	baseURL   string
	queryID   string
	resolver  *QueryIDResolver
	client    *http.Client
	limiter   *rate.Limiter
	logger    *logrus.Logger
}

// NewCookieFetcher validates the cookie and builds a fetcher
func NewCookieFetcher(cookie string, opts CookieOptions, logger *logrus.Logger) (*CookieFetcher, error) {
	match := csrfPattern.FindStringSubmatch(cookie)
	if match == nil {
		return nil, fmt.Errorf("invalid cookie: missing ct0 (CSRF token), include the full cookie string from your browser")
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resolver := opts.Resolver
	if resolver == nil && opts.QueryID == "" {
		resolver = NewQueryIDResolver(baseURL, client, logger)
	}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	return &CookieFetcher{
		cookie:    cookie,
		csrfToken: match[1],
		baseURL:   baseURL,
		queryID:   opts.QueryID,
		resolver:  resolver,
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		logger:    logger,
	}, nil
}

// Fetch requests one page of the bookmarks timeline
func (f *CookieFetcher) Fetch(ctx context.Context, opts models.FetchOptions) (*models.FetchResult, error) {
	count := opts.Limit
	if count <= 0 {
		count = DefaultPageSize
	}

	queryID := f.queryID
	if queryID == "" {
		queryID = f.resolver.Resolve(ctx)
	}

	variables := map[string]any{
		"count":                  count,
		"includePromotedContent": false,
	}
	if opts.Cursor != "" {
		variables["cursor"] = opts.Cursor
	}

	varsJSON, err := json.Marshal(variables)
	if err != nil {
		return nil, fmt.Errorf("failed to encode variables: %w", err)
	}
	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("failed to encode features: %w", err)
	}

	params := url.Values{}
	params.Set("variables", string(varsJSON))
	params.Set("features", string(featuresJSON))
	endpoint := fmt.Sprintf("%s/i/api/graphql/%s/Bookmarks?%s", f.baseURL, queryID, params.Encode())

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	req.Header.Set("Cookie", f.cookie)
	req.Header.Set("X-Csrf-Token", f.csrfToken)
	req.Header.Set("X-Twitter-Active-User", "yes")
	req.Header.Set("X-Twitter-Auth-Type", "OAuth2Session")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	f.logger.WithFields(logrus.Fields{
		"query_id": queryID,
		"count":    count,
		"cursor":   opts.Cursor != "",
	}).Debug("Requesting bookmarks page")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request bookmarks: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("X API error %d: %s", resp.StatusCode, truncateRunes(string(body), 200))
	}

	return ParseTimelineResponse(body)
}

type timelineResponse struct {
	Data struct {
		BookmarkTimelineV2 *timelineContainer `json:"bookmark_timeline_v2"`
		SearchByRawQuery   *struct {
			BookmarksSearchTimeline *timelineContainer `json:"bookmarks_search_timeline"`
		} `json:"search_by_raw_query"`
	} `json:"data"`
}

type timelineContainer struct {
	Timeline struct {
		Instructions []timelineInstruction `json:"instructions"`
	} `json:"timeline"`
}

type timelineInstruction struct {
	Type    string          `json:"type"`
	Entries []timelineEntry `json:"entries"`
}

type timelineEntry struct {
	EntryID string `json:"entryId"`
	Content struct {
		Value       string `json:"value"`
		ItemContent *struct {
			TweetResults struct {
				Result *tweetResult `json:"result"`
			} `json:"tweet_results"`
		} `json:"itemContent"`
	} `json:"content"`
}

type tweetResult struct {
	Typename string       `json:"__typename"`
	RestID   string       `json:"rest_id"`
	Tweet    *tweetResult `json:"tweet"`
	Core     *struct {
		UserResults struct {
			Result *struct {
				Core   *userFields `json:"core"`
				Legacy *userFields `json:"legacy"`
			} `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
	Legacy *tweetLegacy `json:"legacy"`
}

type userFields struct {
	Name       string `json:"name"`
	ScreenName string `json:"screen_name"`
}

type tweetLegacy struct {
	FullText         string `json:"full_text"`
	CreatedAt        string `json:"created_at"`
	FavoriteCount    int64  `json:"favorite_count"`
	RetweetCount     int64  `json:"retweet_count"`
	ReplyCount       int64  `json:"reply_count"`
	ExtendedEntities *struct {
		Media []struct {
			Type          string `json:"type"`
			MediaURLHTTPS string `json:"media_url_https"`
			ExtAltText    string `json:"ext_alt_text"`
		} `json:"media"`
	} `json:"extended_entities"`
}

// ParseTimelineResponse extracts bookmarks and the bottom cursor from a
// Bookmarks GraphQL response body
func ParseTimelineResponse(body []byte) (*models.FetchResult, error) {
	var resp timelineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse X API response: %w", err)
	}

	container := resp.Data.BookmarkTimelineV2
	if container == nil && resp.Data.SearchByRawQuery != nil {
		container = resp.Data.SearchByRawQuery.BookmarksSearchTimeline
	}

	result := &models.FetchResult{Bookmarks: []models.Bookmark{}}
	if container == nil {
		return result, nil
	}

	var entries []timelineEntry
	for _, inst := range container.Timeline.Instructions {
		if inst.Type == "TimelineAddEntries" {
			entries = inst.Entries
			break
		}
	}

	for _, entry := range entries {
		switch {
		case strings.HasPrefix(entry.EntryID, "tweet-"):
			if entry.Content.ItemContent == nil {
				continue
			}
			if bm, ok := parseTweetResult(entry.Content.ItemContent.TweetResults.Result); ok {
				result.Bookmarks = append(result.Bookmarks, bm)
			}
		case strings.HasPrefix(entry.EntryID, "cursor-bottom-"):
			result.Cursor = entry.Content.Value
		}
	}

	result.HasMore = result.Cursor != ""
	return result, nil
}

func parseTweetResult(result *tweetResult) (models.Bookmark, bool) {
	if result == nil {
		return models.Bookmark{}, false
	}
	if result.Typename == "TweetWithVisibilityResults" {
		result = result.Tweet
	}
	if result == nil || result.Legacy == nil {
		return models.Bookmark{}, false
	}

	var name, handle string
	if result.Core != nil && result.Core.UserResults.Result != nil {
		user := result.Core.UserResults.Result
		// Newer responses carry the user's names under core, older ones under legacy
		for _, fields := range []*userFields{user.Core, user.Legacy} {
			if fields == nil {
				continue
			}
			if name == "" {
				name = fields.Name
			}
			if handle == "" {
				handle = fields.ScreenName
			}
		}
	}

	legacy := result.Legacy
	link := "https://x.com/i/status/" + result.RestID
	if handle != "" {
		link = fmt.Sprintf("https://x.com/%s/status/%s", handle, result.RestID)
	}

	media := []models.MediaItem{}
	if legacy.ExtendedEntities != nil {
		for _, m := range legacy.ExtendedEntities.Media {
			media = append(media, models.MediaItem{
				Type:    models.MediaTypeFromX(m.Type),
				URL:     m.MediaURLHTTPS,
				AltText: m.ExtAltText,
			})
		}
	}

	return models.Bookmark{
		ID:           result.RestID,
		Text:         legacy.FullText,
		AuthorName:   name,
		AuthorHandle: handle,
		CreatedAt:    legacy.CreatedAt,
		URL:          link,
		Media:        media,
		Metrics: &models.TweetMetrics{
			Likes:    legacy.FavoriteCount,
			Retweets: legacy.RetweetCount,
			Replies:  legacy.ReplyCount,
		},
	}, true
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
