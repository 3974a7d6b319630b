package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"unifeed/internal/feed"
)

const redditAPIURL = "https://www.reddit.com"

// RedditAdapter reads the public listing API for a set of subreddits.
// Reddit requires a descriptive User-Agent; requests without one get
// throttled aggressively, so the agent string is treated as the
// adapter's credential.
type RedditAdapter struct {
	apiURL     string
	userAgent  string
	subreddits []string
	httpClient *http.Client
}

type redditListing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	SelfText    string  `json:"selftext"`
	Permalink   string  `json:"permalink"`
	Score       int64   `json:"score"`
	NumComments int64   `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}

func NewRedditAdapter(userAgent string, subreddits []string) *RedditAdapter {
	return &RedditAdapter{
		apiURL:     redditAPIURL,
		userAgent:  userAgent,
		subreddits: subreddits,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *RedditAdapter) Source() string {
	return feed.SourceReddit
}

func (r *RedditAdapter) Fetch(ctx context.Context, opts FetchOptions) ([]feed.Item, error) {
	items := make([]feed.Item, 0, opts.Limit)
	malformed := 0

	for _, subreddit := range r.subreddits {
		if len(items) >= opts.Limit {
			break
		}

		after := ""
		for len(items) < opts.Limit {
			listing, err := r.fetchListing(ctx, subreddit, after)
			if err != nil {
				return nil, err
			}
			if len(listing.Data.Children) == 0 {
				break
			}

			for _, child := range listing.Data.Children {
				if len(items) >= opts.Limit {
					break
				}
				item, ok := r.convertPost(child.Data)
				if !ok {
					malformed++
					continue
				}
				if !opts.Since.IsZero() && item.PublishedAt.Before(opts.Since) {
					continue
				}
				items = append(items, item)
			}

			after = listing.Data.After
			if after == "" {
				break
			}
		}
	}

	if malformed > 0 {
		slog.Warn("Reddit adapter skipped malformed posts", "source", r.Source(), "count", malformed)
	}
	slog.Debug("Reddit adapter finished fetch", "source", r.Source(), "items", len(items))

	return items, nil
}

func (r *RedditAdapter) fetchListing(ctx context.Context, subreddit, after string) (*redditListing, error) {
	q := url.Values{}
	q.Set("limit", "100")
	q.Set("raw_json", "1")
	if after != "" {
		q.Set("after", after)
	}
	endpoint := fmt.Sprintf("%s/r/%s/new.json?%s", r.apiURL, url.PathEscape(subreddit), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewSourceError(r.Source(), KindUnavailable, err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, NewSourceError(r.Source(), KindUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, NewSourceError(r.Source(), KindUnauthenticated, fmt.Errorf("status %d from r/%s", resp.StatusCode, subreddit))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewSourceError(r.Source(), KindRateLimited, fmt.Errorf("status %d from r/%s", resp.StatusCode, subreddit))
	case resp.StatusCode != http.StatusOK:
		return nil, NewSourceError(r.Source(), KindUnavailable, fmt.Errorf("unexpected status %d from r/%s", resp.StatusCode, subreddit))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewSourceError(r.Source(), KindUnavailable, err)
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, NewSourceError(r.Source(), KindUnavailable, fmt.Errorf("failed to unmarshal listing: %w", err))
	}

	return &listing, nil
}

func (r *RedditAdapter) convertPost(post redditPost) (feed.Item, bool) {
	if post.Name == "" || post.CreatedUTC == 0 {
		return feed.Item{}, false
	}

	link := post.Permalink
	if link != "" {
		link = "https://www.reddit.com" + link
	}
	if link == "" {
		return feed.Item{}, false
	}

	return feed.Item{
		Source:          r.Source(),
		ExternalID:      post.Name,
		Author:          post.Author,
		Title:           post.Title,
		Body:            truncate(post.SelfText, 500),
		URL:             link,
		PublishedAt:     time.Unix(int64(post.CreatedUTC), 0).UTC(),
		EngagementScore: post.Score + post.NumComments,
	}, true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
