package publish

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"unifeed/internal/blob"
	"unifeed/internal/feed"
)

const (
	maxAttempts     = 3
	initialInterval = 500 * time.Millisecond
	maxInterval     = 5 * time.Second
)

// Publisher writes envelopes with a write-then-publish pattern: the
// serialized envelope lands on a staging key, is read back and verified,
// and only then atomically renamed onto the latest key. Readers see the
// previous complete snapshot or the new complete snapshot, nothing in
// between. A failed publish leaves the previous snapshot untouched.
type Publisher struct {
	store     blob.Store
	container string
	latestKey string
}

func New(store blob.Store, container, latestKey string) *Publisher {
	return &Publisher{
		store:     store,
		container: container,
		latestKey: latestKey,
	}
}

func (p *Publisher) Publish(ctx context.Context, env *feed.Envelope) error {
	payload, err := feed.Encode(env)
	if err != nil {
		return fmt.Errorf("failed to serialize envelope: %w", err)
	}

	stagingKey := p.latestKey + ".staging"

	if err := p.retry(ctx, "stage", func() error {
		return p.stage(ctx, stagingKey, payload)
	}); err != nil {
		return fmt.Errorf("failed to stage snapshot: %w", err)
	}

	if err := p.retry(ctx, "promote", func() error {
		return p.store.Rename(ctx, p.container, stagingKey, p.latestKey)
	}); err != nil {
		return fmt.Errorf("failed to promote snapshot: %w", err)
	}

	slog.Info("Published feed snapshot",
		"container", p.container, "key", p.latestKey,
		"items", len(env.Items), "bytes", len(payload))

	// Dated copy for operators digging through history. Best effort;
	// the canonical snapshot is already live.
	datedKey := env.GeneratedAt.UTC().Format("2006-01-02") + ".json"
	if err := p.store.Put(ctx, p.container, datedKey, payload); err != nil {
		slog.Warn("Failed to write dated snapshot copy", "key", datedKey, "error", err)
	}

	return nil
}

// stage writes the staging blob and reads it back to verify the store
// holds the complete payload before promotion.
func (p *Publisher) stage(ctx context.Context, stagingKey string, payload []byte) error {
	if err := p.store.Put(ctx, p.container, stagingKey, payload); err != nil {
		return err
	}

	stored, err := p.store.Get(ctx, p.container, stagingKey)
	if err != nil {
		return fmt.Errorf("failed to read back staged snapshot: %w", err)
	}
	if !bytes.Equal(stored, payload) {
		return fmt.Errorf("staged snapshot verification failed: got %d bytes, want %d", len(stored), len(payload))
	}

	return nil
}

func (p *Publisher) retry(ctx context.Context, step string, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initialInterval
	exp.MaxInterval = maxInterval
	exp.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithContext(exp, ctx)
	b = backoff.WithMaxRetries(b, maxAttempts-1)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err != nil && attempt < maxAttempts {
			slog.Warn("Publish step failed, retrying",
				"step", step, "attempt", attempt, "max_attempts", maxAttempts, "error", err)
		}
		return err
	}, b)
}
