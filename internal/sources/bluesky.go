package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"

	"unifeed/internal/feed"
)

const blueskyPDSHost = "https://bsky.social"

// BlueskyAdapter reads an author feed over the atproto XRPC API. A
// session is created per fetch so an abandoned fetch leaves no state
// behind on the adapter.
type BlueskyAdapter struct {
	host       string
	identifier string
	password   string
	actor      string
}

func NewBlueskyAdapter(identifier, password, actor string) *BlueskyAdapter {
	if actor == "" {
		actor = identifier
	}
	return &BlueskyAdapter{
		host:       blueskyPDSHost,
		identifier: identifier,
		password:   password,
		actor:      actor,
	}
}

func (b *BlueskyAdapter) Source() string {
	return feed.SourceBluesky
}

func (b *BlueskyAdapter) Fetch(ctx context.Context, opts FetchOptions) ([]feed.Item, error) {
	client, err := b.createSession(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]feed.Item, 0, opts.Limit)
	malformed := 0
	cursor := ""

	for len(items) < opts.Limit {
		pageSize := int64(opts.Limit - len(items))
		if pageSize > 100 {
			pageSize = 100
		}

		out, err := bsky.FeedGetAuthorFeed(ctx, client, b.actor, cursor, "posts_no_replies", false, pageSize)
		if err != nil {
			return nil, b.classify(err)
		}
		if len(out.Feed) == 0 {
			break
		}

		for _, view := range out.Feed {
			if len(items) >= opts.Limit {
				break
			}
			item, ok := b.convertPost(view)
			if !ok {
				malformed++
				continue
			}
			if !opts.Since.IsZero() && item.PublishedAt.Before(opts.Since) {
				continue
			}
			items = append(items, item)
		}

		if out.Cursor == nil || *out.Cursor == "" {
			break
		}
		cursor = *out.Cursor
	}

	if malformed > 0 {
		slog.Warn("Bluesky adapter skipped malformed posts", "source", b.Source(), "count", malformed)
	}
	slog.Debug("Bluesky adapter finished fetch", "source", b.Source(), "actor", b.actor, "items", len(items))

	return items, nil
}

func (b *BlueskyAdapter) createSession(ctx context.Context) (*xrpc.Client, error) {
	client := &xrpc.Client{Host: b.host}

	auth, err := atproto.ServerCreateSession(ctx, client, &atproto.ServerCreateSession_Input{
		Identifier: b.identifier,
		Password:   b.password,
	})
	if err != nil {
		var xe *xrpc.Error
		if errors.As(err, &xe) && xe.StatusCode == http.StatusTooManyRequests {
			return nil, NewSourceError(b.Source(), KindRateLimited, err)
		}
		return nil, NewSourceError(b.Source(), KindUnauthenticated, fmt.Errorf("failed to create session: %w", err))
	}

	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  auth.AccessJwt,
		RefreshJwt: auth.RefreshJwt,
		Handle:     auth.Handle,
		Did:        auth.Did,
	}

	return client, nil
}

func (b *BlueskyAdapter) classify(err error) error {
	var xe *xrpc.Error
	if errors.As(err, &xe) {
		switch xe.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return NewSourceError(b.Source(), KindUnauthenticated, err)
		case http.StatusTooManyRequests:
			return NewSourceError(b.Source(), KindRateLimited, err)
		}
	}
	return NewSourceError(b.Source(), KindUnavailable, err)
}

func (b *BlueskyAdapter) convertPost(view *bsky.FeedDefs_FeedViewPost) (feed.Item, bool) {
	if view == nil || view.Post == nil || view.Post.Record == nil {
		return feed.Item{}, false
	}
	post := view.Post

	record, ok := post.Record.Val.(*bsky.FeedPost)
	if !ok {
		return feed.Item{}, false
	}

	createdAt, err := time.Parse(time.RFC3339, record.CreatedAt)
	if err != nil {
		return feed.Item{}, false
	}

	handle := ""
	if post.Author != nil {
		handle = post.Author.Handle
	}

	var engagement int64
	for _, count := range []*int64{post.LikeCount, post.RepostCount, post.ReplyCount} {
		if count != nil {
			engagement += *count
		}
	}

	title := record.Text
	if len(title) > 80 {
		title = title[:77] + "..."
	}

	return feed.Item{
		Source:          b.Source(),
		ExternalID:      post.Uri,
		Author:          handle,
		Title:           title,
		Body:            record.Text,
		URL:             postWebURL(post.Uri, handle),
		PublishedAt:     createdAt.UTC(),
		EngagementScore: engagement,
	}, true
}

// postWebURL maps an at:// record URI to the public app URL.
func postWebURL(uri, handle string) string {
	parts := strings.Split(uri, "/")
	if len(parts) == 0 || handle == "" {
		return uri
	}
	rkey := parts[len(parts)-1]
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", handle, rkey)
}
