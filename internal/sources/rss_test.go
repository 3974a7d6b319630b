package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unifeed/internal/feed"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Feed</title>
    <link>https://example.com</link>
    <item>
      <title>Fresh entry</title>
      <link>https://example.com/fresh</link>
      <guid>entry-fresh</guid>
      <description>&lt;p&gt;Some &lt;b&gt;rich&lt;/b&gt; text&lt;/p&gt;</description>
      <pubDate>Mon, 02 Jun 2025 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>No timestamp</title>
      <link>https://example.com/undated</link>
      <guid>entry-undated</guid>
      <description>dropped as malformed</description>
    </item>
    <item>
      <title>Older entry</title>
      <link>https://example.com/older</link>
      <pubDate>Sun, 01 Jun 2025 10:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

func rssTestAdapter(t *testing.T, handler http.HandlerFunc) *RSSAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewRSSAdapter([]string{server.URL})
}

func TestRSSFetch(t *testing.T) {
	adapter := rssTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFixture)
	})

	items, err := adapter.Fetch(context.Background(), FetchOptions{Limit: 25})
	require.NoError(t, err)
	require.Len(t, items, 2, "entry without a timestamp is malformed and skipped")

	first := items[0]
	assert.Equal(t, feed.SourceRSS, first.Source)
	assert.Equal(t, "entry-fresh", first.ExternalID)
	assert.Equal(t, "https://example.com/fresh", first.URL)
	assert.Equal(t, "Some rich text", first.Body, "markup is stripped and entities decoded")
	assert.Zero(t, first.EngagementScore)

	second := items[1]
	assert.Equal(t, "https://example.com/older", second.ExternalID, "link stands in for a missing guid")
}

func TestRSSFetchHonorsLimit(t *testing.T) {
	adapter := rssTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssFixture)
	})

	items, err := adapter.Fetch(context.Background(), FetchOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestRSSFetchUnreachableFeed(t *testing.T) {
	adapter := rssTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	items, err := adapter.Fetch(context.Background(), FetchOptions{Limit: 25})
	require.Error(t, err)
	assert.Nil(t, items, "failed fetch must not return partial results")
	assert.True(t, IsKind(err, KindUnavailable))
}

func TestRSSFetchOneBadFeedAbortsAll(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssFixture)
	}))
	t.Cleanup(good.Close)
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(bad.Close)

	adapter := NewRSSAdapter([]string{good.URL, bad.URL})

	items, err := adapter.Fetch(context.Background(), FetchOptions{Limit: 25})
	require.Error(t, err)
	assert.Nil(t, items)
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello", "hello"},
		{"tags removed", "<p>hello <b>world</b></p>", "hello world"},
		{"entities decoded", "fish &amp; chips", "fish & chips"},
		{"whitespace trimmed", "  padded  ", "padded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripHTML(tt.in))
		})
	}
}
