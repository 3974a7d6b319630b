package sources

import (
	"context"
	"time"

	"unifeed/internal/feed"
)

// FetchOptions bound a single fetch. Since is optional; the zero value
// means no lower bound.
type FetchOptions struct {
	Limit int
	Since time.Time
}

// Adapter fetches raw items from one provider and normalizes them into
// the common item schema. Adding a provider means adding an adapter, not
// touching the orchestrator.
//
// A fetch is all-or-nothing: on error no items are returned, and the
// adapter must not mutate any state visible outside the call, so an
// abandoned fetch is always safe. Individual malformed items are skipped
// and logged inside the adapter, never fatal to the fetch.
type Adapter interface {
	Source() string
	Fetch(ctx context.Context, opts FetchOptions) ([]feed.Item, error)
}
