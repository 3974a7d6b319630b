package sources

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"unifeed/internal/feed"
)

// RSSAdapter aggregates one or more syndication feeds into the link
// source. Entries without a parseable timestamp are dropped as
// malformed; a feed that cannot be fetched aborts the whole fetch so a
// source's contribution stays all-or-nothing.
type RSSAdapter struct {
	feedURLs []string
	parser   *gofeed.Parser
}

func NewRSSAdapter(feedURLs []string) *RSSAdapter {
	return &RSSAdapter{
		feedURLs: feedURLs,
		parser:   gofeed.NewParser(),
	}
}

func (r *RSSAdapter) Source() string {
	return feed.SourceRSS
}

func (r *RSSAdapter) Fetch(ctx context.Context, opts FetchOptions) ([]feed.Item, error) {
	items := make([]feed.Item, 0, opts.Limit)
	malformed := 0

	for _, feedURL := range r.feedURLs {
		if len(items) >= opts.Limit {
			break
		}

		parsed, err := r.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			return nil, NewSourceError(r.Source(), KindUnavailable, fmt.Errorf("failed to parse feed %s: %w", feedURL, err))
		}

		for _, entry := range parsed.Items {
			if len(items) >= opts.Limit {
				break
			}
			item, ok := r.convertEntry(entry)
			if !ok {
				malformed++
				continue
			}
			if !opts.Since.IsZero() && item.PublishedAt.Before(opts.Since) {
				continue
			}
			items = append(items, item)
		}
	}

	if malformed > 0 {
		slog.Warn("RSS adapter skipped malformed entries", "source", r.Source(), "count", malformed)
	}
	slog.Debug("RSS adapter finished fetch", "source", r.Source(), "feeds", len(r.feedURLs), "items", len(items))

	return items, nil
}

func (r *RSSAdapter) convertEntry(entry *gofeed.Item) (feed.Item, bool) {
	published := entry.PublishedParsed
	if published == nil {
		published = entry.UpdatedParsed
	}
	if published == nil {
		return feed.Item{}, false
	}

	externalID := entry.GUID
	if externalID == "" {
		externalID = entry.Link
	}
	if externalID == "" || entry.Link == "" {
		return feed.Item{}, false
	}

	author := ""
	if entry.Author != nil {
		author = entry.Author.Name
		if author == "" {
			author = entry.Author.Email
		}
	}

	body := entry.Description
	if body == "" {
		body = entry.Content
	}

	return feed.Item{
		Source:      r.Source(),
		ExternalID:  externalID,
		Author:      author,
		Title:       entry.Title,
		Body:        stripHTML(body),
		URL:         entry.Link,
		PublishedAt: published.UTC(),
	}, true
}

var htmlStripper = bluemonday.StrictPolicy()

// stripHTML removes tags, decodes entities and bounds the length.
func stripHTML(s string) string {
	s = htmlStripper.Sanitize(s)
	s = html.UnescapeString(s)
	s = strings.TrimSpace(s)
	if len(s) > 500 {
		s = s[:497] + "..."
	}
	return s
}
