package blob

import (
	"context"
	"fmt"

	"unifeed/internal/config"
)

var factoryFuncs = map[string]func(string) (Store, error){}

func RegisterFactory(storeType string, fn func(string) (Store, error)) {
	factoryFuncs[storeType] = fn
}

func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	storeType := cfg.Type
	if storeType == "" {
		storeType = "fs"
	}

	fn, exists := factoryFuncs[storeType]
	if !exists {
		return nil, fmt.Errorf("unsupported storage type: %s", storeType)
	}

	return fn(cfg.Path)
}
