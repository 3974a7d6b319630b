package reader

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"unifeed/internal/blob"
	"unifeed/internal/feed"
)

//go:embed snapshot.json
var bundledSnapshot []byte

const cacheKey = "envelope"

// Reader is the read path behind the presentation layer. Load never
// fails the caller: it walks storage, then the bundled snapshot, then
// an empty envelope, and always returns something renderable. The chain
// is read-only; a broken snapshot is never repaired in place.
type Reader struct {
	store     blob.Store
	container string
	latestKey string
	cache     *gocache.Cache
}

func New(store blob.Store, container, latestKey string, cacheTTL time.Duration) *Reader {
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Reader{
		store:     store,
		container: container,
		latestKey: latestKey,
		cache:     gocache.New(cacheTTL, cacheTTL/2),
	}
}

func (r *Reader) Load(ctx context.Context) *feed.Envelope {
	if cached, found := r.cache.Get(cacheKey); found {
		return cached.(*feed.Envelope)
	}

	if env := r.loadStored(ctx); env != nil {
		r.cache.Set(cacheKey, env, gocache.DefaultExpiration)
		return env
	}

	if env := r.loadBundled(); env != nil {
		slog.Info("Serving bundled fallback snapshot")
		return env
	}

	slog.Warn("No usable snapshot anywhere, serving empty envelope")
	return feed.NewEnvelope()
}

func (r *Reader) loadStored(ctx context.Context) *feed.Envelope {
	data, err := r.store.Get(ctx, r.container, r.latestKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			slog.Info("No published snapshot yet", "container", r.container, "key", r.latestKey)
		} else {
			slog.Warn("Failed to read published snapshot", "key", r.latestKey, "error", err)
		}
		return nil
	}

	env, err := feed.Decode(data)
	if err != nil {
		var schemaErr *feed.ErrSchemaVersion
		if errors.As(err, &schemaErr) {
			slog.Warn("Published snapshot has unsupported schema version", "version", schemaErr.Got)
		} else {
			slog.Warn("Published snapshot is corrupt", "key", r.latestKey, "error", err)
		}
		return nil
	}

	return env
}

func (r *Reader) loadBundled() *feed.Envelope {
	env, err := feed.Decode(bundledSnapshot)
	if err != nil {
		slog.Error("Bundled snapshot is invalid", "error", err)
		return nil
	}
	return env
}
