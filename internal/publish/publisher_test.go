package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unifeed/internal/blob"
	"unifeed/internal/feed"
)

const (
	testContainer = "feeds"
	testLatestKey = "latest.json"
)

// flakyStore fails a set number of Put or Rename calls before behaving.
type flakyStore struct {
	blob.Store
	failPuts    int
	failRenames int
}

func (s *flakyStore) Put(ctx context.Context, container, key string, data []byte) error {
	if s.failPuts > 0 {
		s.failPuts--
		return errors.New("simulated write failure")
	}
	return s.Store.Put(ctx, container, key, data)
}

func (s *flakyStore) Rename(ctx context.Context, container, oldKey, newKey string) error {
	if s.failRenames > 0 {
		s.failRenames--
		return errors.New("simulated rename failure")
	}
	return s.Store.Rename(ctx, container, oldKey, newKey)
}

func testEnvelope(t *testing.T) *feed.Envelope {
	t.Helper()
	env := feed.NewEnvelope()
	env.GeneratedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	env.Items = []feed.Item{
		{
			Source:      feed.SourceRSS,
			ExternalID:  "item-1",
			Title:       "hello",
			URL:         "https://example.com/1",
			PublishedAt: env.GeneratedAt,
		},
	}
	env.SourceStatuses[feed.SourceRSS] = feed.SourceStatus{
		Source: feed.SourceRSS, Enabled: true, Succeeded: true, ItemCount: 1,
	}
	return env
}

func TestPublishWritesSnapshot(t *testing.T) {
	store := blob.NewMemoryStore()
	p := New(store, testContainer, testLatestKey)

	env := testEnvelope(t)
	require.NoError(t, p.Publish(context.Background(), env))

	data, err := store.Get(context.Background(), testContainer, testLatestKey)
	require.NoError(t, err)

	decoded, err := feed.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, env.Items, decoded.Items)

	staged, err := store.Exists(context.Background(), testContainer, testLatestKey+".staging")
	require.NoError(t, err)
	assert.False(t, staged, "staging key should be consumed by promotion")
}

func TestPublishWritesDatedCopy(t *testing.T) {
	store := blob.NewMemoryStore()
	p := New(store, testContainer, testLatestKey)

	require.NoError(t, p.Publish(context.Background(), testEnvelope(t)))

	exists, err := store.Exists(context.Background(), testContainer, "2025-06-01.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPublishRetriesTransientFailures(t *testing.T) {
	store := &flakyStore{Store: blob.NewMemoryStore(), failPuts: 2}
	p := New(store, testContainer, testLatestKey)

	require.NoError(t, p.Publish(context.Background(), testEnvelope(t)))

	_, err := store.Get(context.Background(), testContainer, testLatestKey)
	assert.NoError(t, err)
}

func TestPublishFailureKeepsPreviousSnapshot(t *testing.T) {
	mem := blob.NewMemoryStore()

	previous := []byte(`{"schema_version":1,"generated_at":"2025-05-31T00:00:00Z","items":[],"source_statuses":{}}`)
	require.NoError(t, mem.Put(context.Background(), testContainer, testLatestKey, previous))

	store := &flakyStore{Store: mem, failRenames: 10}
	p := New(store, testContainer, testLatestKey)

	err := p.Publish(context.Background(), testEnvelope(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "promote")

	data, getErr := mem.Get(context.Background(), testContainer, testLatestKey)
	require.NoError(t, getErr)
	assert.Equal(t, previous, data, "failed publish must not touch the live snapshot")
}

func TestPublishGivesUpAfterMaxAttempts(t *testing.T) {
	store := &flakyStore{Store: blob.NewMemoryStore(), failPuts: 10}
	p := New(store, testContainer, testLatestKey)

	err := p.Publish(context.Background(), testEnvelope(t))
	require.Error(t, err)

	// 3 attempts consumed, the rest untouched.
	assert.Equal(t, 7, store.failPuts)
}
