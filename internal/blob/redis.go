package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

func init() {
	RegisterFactory("redis", func(addr string) (Store, error) { return NewRedisStore(addr) })
}

// RedisStore maps (container, key) to a single redis key. RENAME is
// atomic server-side, which gives the publisher its repoint primitive
// for free.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) (*RedisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	slog.Info("Initializing redis blob store", "addr", addr)

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func redisKey(container, key string) string {
	return "unifeed:" + container + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, container, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, redisKey(container, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read blob %s/%s: %w", container, key, err)
	}
	return data, nil
}

func (s *RedisStore) Put(ctx context.Context, container, key string, data []byte) error {
	if err := s.client.Set(ctx, redisKey(container, key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write blob %s/%s: %w", container, key, err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, container, key string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKey(container, key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blob %s/%s: %w", container, key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Rename(ctx context.Context, container, oldKey, newKey string) error {
	err := s.client.Rename(ctx, redisKey(container, oldKey), redisKey(container, newKey)).Err()
	if err != nil {
		if err.Error() == "ERR no such key" {
			return ErrNotFound
		}
		return fmt.Errorf("failed to rename blob %s/%s: %w", container, oldKey, err)
	}
	return nil
}

func (s *RedisStore) Close(ctx context.Context) error {
	return s.client.Close()
}
