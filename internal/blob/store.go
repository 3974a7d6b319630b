package blob

import (
	"context"
	"errors"
)

// ErrNotFound reports an absent key. Every backend maps its native
// not-found condition to this sentinel.
var ErrNotFound = errors.New("blob not found")

// Store is the durable storage boundary. Get, Put and Exists are atomic
// at single-key granularity; Rename atomically repoints newKey to
// oldKey's content within one container, replacing any previous value.
type Store interface {
	Get(ctx context.Context, container, key string) ([]byte, error)
	Put(ctx context.Context, container, key string, data []byte) error
	Exists(ctx context.Context, container, key string) (bool, error)
	Rename(ctx context.Context, container, oldKey, newKey string) error
	Close(ctx context.Context) error
}
