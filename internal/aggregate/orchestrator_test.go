package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unifeed/internal/feed"
	"unifeed/internal/registry"
	"unifeed/internal/sources"
)

type stubAdapter struct {
	source string
	items  []feed.Item
	err    error
	delay  time.Duration
}

func (s *stubAdapter) Source() string { return s.source }

func (s *stubAdapter) Fetch(ctx context.Context, opts sources.FetchOptions) ([]feed.Item, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

func enabled(source string, adapter sources.Adapter) registry.Decision {
	return registry.Decision{Source: source, Enabled: true, Adapter: adapter}
}

func disabled(source, reason string) registry.Decision {
	return registry.Decision{Source: source, Reason: reason}
}

func defaultOpts() Options {
	return Options{Limit: 25, PerSourceTimeout: time.Second, TotalBudget: 5 * time.Second}
}

func item(source, id string, published time.Time, engagement int64) feed.Item {
	return feed.Item{
		Source:          source,
		ExternalID:      id,
		URL:             "https://example.com/" + id,
		PublishedAt:     published,
		EngagementScore: engagement,
	}
}

func TestRunMergesAndSorts(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	o := NewOrchestrator([]registry.Decision{
		enabled(feed.SourceReddit, &stubAdapter{
			source: feed.SourceReddit,
			items: []feed.Item{
				item(feed.SourceReddit, "r1", base.Add(-time.Hour), 10),
				item(feed.SourceReddit, "r2", base, 5),
			},
		}),
		enabled(feed.SourceRSS, &stubAdapter{
			source: feed.SourceRSS,
			items: []feed.Item{
				item(feed.SourceRSS, "l1", base.Add(time.Hour), 0),
			},
		}),
	}, defaultOpts())

	env, err := o.Run(context.Background())
	require.NoError(t, err)

	got := make([]string, len(env.Items))
	for i, it := range env.Items {
		got[i] = it.Key()
	}
	assert.Equal(t, []string{"rss/l1", "reddit/r2", "reddit/r1"}, got)

	assert.Equal(t, feed.SchemaVersion, env.SchemaVersion)
	assert.False(t, env.GeneratedAt.IsZero())
	require.NoError(t, env.Validate())
}

func TestRunDedupesKeepFirst(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := item(feed.SourceRSS, "dup", base, 0)
	first.Title = "kept"
	second := item(feed.SourceRSS, "dup", base, 0)
	second.Title = "dropped"

	o := NewOrchestrator([]registry.Decision{
		enabled(feed.SourceRSS, &stubAdapter{
			source: feed.SourceRSS,
			items:  []feed.Item{first, second},
		}),
	}, defaultOpts())

	env, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, env.Items, 1)
	assert.Equal(t, "kept", env.Items[0].Title)
}

func TestRunSurvivesSourceFailure(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	o := NewOrchestrator([]registry.Decision{
		enabled(feed.SourceReddit, &stubAdapter{
			source: feed.SourceReddit,
			err:    sources.NewSourceError(feed.SourceReddit, sources.KindRateLimited, errors.New("status 429")),
		}),
		enabled(feed.SourceRSS, &stubAdapter{
			source: feed.SourceRSS,
			items:  []feed.Item{item(feed.SourceRSS, "l1", base, 0)},
		}),
	}, defaultOpts())

	env, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, env.Items, 1)

	reddit := env.SourceStatuses[feed.SourceReddit]
	assert.True(t, reddit.Enabled)
	assert.False(t, reddit.Succeeded)
	assert.Contains(t, reddit.Error, "status 429")
	assert.Zero(t, reddit.ItemCount)

	rss := env.SourceStatuses[feed.SourceRSS]
	assert.True(t, rss.Succeeded)
	assert.Equal(t, 1, rss.ItemCount)
}

func TestRunPerSourceTimeout(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	opts := defaultOpts()
	opts.PerSourceTimeout = 30 * time.Millisecond

	o := NewOrchestrator([]registry.Decision{
		enabled(feed.SourceBluesky, &stubAdapter{
			source: feed.SourceBluesky,
			delay:  time.Second,
		}),
		enabled(feed.SourceRSS, &stubAdapter{
			source: feed.SourceRSS,
			items:  []feed.Item{item(feed.SourceRSS, "l1", base, 0)},
		}),
	}, opts)

	env, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, env.Items, 1)

	bluesky := env.SourceStatuses[feed.SourceBluesky]
	assert.False(t, bluesky.Succeeded)
	assert.Contains(t, bluesky.Error, "timed out")
}

func TestRunTotalBudget(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	opts := defaultOpts()
	opts.TotalBudget = 50 * time.Millisecond

	o := NewOrchestrator([]registry.Decision{
		enabled(feed.SourceBluesky, &stubAdapter{
			source: feed.SourceBluesky,
			delay:  2 * time.Second,
			items:  []feed.Item{item(feed.SourceBluesky, "late", base, 0)},
		}),
		enabled(feed.SourceRSS, &stubAdapter{
			source: feed.SourceRSS,
			items:  []feed.Item{item(feed.SourceRSS, "l1", base, 0)},
		}),
	}, opts)

	start := time.Now()
	env, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second, "run should not wait out the slow source")

	require.Len(t, env.Items, 1)
	assert.Equal(t, "rss/l1", env.Items[0].Key())

	bluesky := env.SourceStatuses[feed.SourceBluesky]
	assert.False(t, bluesky.Succeeded)
	assert.Contains(t, bluesky.Error, "total budget")
}

func TestRunNothingEnabled(t *testing.T) {
	o := NewOrchestrator([]registry.Decision{
		disabled(feed.SourceReddit, "missing credentials: UNIFEED_REDDIT_USER_AGENT"),
		disabled(feed.SourceBluesky, "disabled by policy"),
		disabled(feed.SourceRSS, "no feed urls configured"),
	}, defaultOpts())

	env, err := o.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, env.Validate())
	assert.Empty(t, env.Items)

	require.Len(t, env.SourceStatuses, 3)
	for source, status := range env.SourceStatuses {
		assert.False(t, status.Enabled, "source %s", source)
		assert.NotEmpty(t, status.Reason, "source %s", source)
	}
}

func TestRunStatusPerConfiguredSource(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	o := NewOrchestrator([]registry.Decision{
		disabled(feed.SourceReddit, "disabled by policy"),
		enabled(feed.SourceRSS, &stubAdapter{
			source: feed.SourceRSS,
			items:  []feed.Item{item(feed.SourceRSS, "l1", base, 0)},
		}),
	}, defaultOpts())

	env, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, env.SourceStatuses, 2)
	assert.Equal(t, "disabled by policy", env.SourceStatuses[feed.SourceReddit].Reason)
	assert.True(t, env.SourceStatuses[feed.SourceRSS].Succeeded)
}

func TestRunRejectsBadWiring(t *testing.T) {
	tests := []struct {
		name      string
		decisions []registry.Decision
		opts      Options
	}{
		{
			name:      "enabled source without adapter",
			decisions: []registry.Decision{{Source: feed.SourceRSS, Enabled: true}},
			opts:      defaultOpts(),
		},
		{
			name:      "zero limit",
			decisions: nil,
			opts:      Options{PerSourceTimeout: time.Second, TotalBudget: time.Second},
		},
		{
			name:      "zero per-source timeout",
			decisions: nil,
			opts:      Options{Limit: 25, TotalBudget: time.Second},
		},
		{
			name:      "zero total budget",
			decisions: nil,
			opts:      Options{Limit: 25, PerSourceTimeout: time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrchestrator(tt.decisions, tt.opts).Run(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestRunIsStateless(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	o := NewOrchestrator([]registry.Decision{
		enabled(feed.SourceRSS, &stubAdapter{
			source: feed.SourceRSS,
			items:  []feed.Item{item(feed.SourceRSS, "l1", base, 0)},
		}),
	}, defaultOpts())

	first, err := o.Run(context.Background())
	require.NoError(t, err)
	second, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, 1, second.SourceStatuses[feed.SourceRSS].ItemCount)
}
