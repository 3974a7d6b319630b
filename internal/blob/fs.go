package blob

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

func init() {
	RegisterFactory("fs", func(path string) (Store, error) { return NewFSStore(path) })
}

// FSStore keeps one directory per container. Writes land in a temporary
// file first and are moved into place with os.Rename, so readers only
// ever see complete blobs.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		root = "./data"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	slog.Info("Initializing filesystem blob store", "root", root)
	return &FSStore{root: root}, nil
}

func (s *FSStore) path(container, key string) string {
	return filepath.Join(s.root, sanitizeSegment(container), sanitizeSegment(key))
}

func (s *FSStore) Get(ctx context.Context, container, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(container, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read blob %s/%s: %w", container, key, err)
	}
	return data, nil
}

func (s *FSStore) Put(ctx context.Context, container, key string, data []byte) error {
	dir := filepath.Join(s.root, sanitizeSegment(container))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create container %s: %w", container, err)
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return fmt.Errorf("failed to create temp blob: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write blob %s/%s: %w", container, key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close blob %s/%s: %w", container, key, err)
	}

	if err := os.Rename(tmpName, s.path(container, key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to place blob %s/%s: %w", container, key, err)
	}
	return nil
}

func (s *FSStore) Exists(ctx context.Context, container, key string) (bool, error) {
	_, err := os.Stat(s.path(container, key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat blob %s/%s: %w", container, key, err)
	}
	return true, nil
}

func (s *FSStore) Rename(ctx context.Context, container, oldKey, newKey string) error {
	err := os.Rename(s.path(container, oldKey), s.path(container, newKey))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to rename blob %s/%s: %w", container, oldKey, err)
	}
	return nil
}

func (s *FSStore) Close(ctx context.Context) error {
	return nil
}

// sanitizeSegment keeps container and key names inside their directory.
func sanitizeSegment(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "..", "_")
	return s
}
