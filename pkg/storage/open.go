package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/0xmhha/wallet-activity/internal/constants"
)

// Options selects and configures a BlobStore backend
type Options struct {
	// Backend is one of "pebble", "redis", "memory"
	Backend  string
	Path     string
	ReadOnly bool
	Redis    RedisConfig
}

// Open creates the BlobStore for the configured backend
func Open(ctx context.Context, opts Options, logger *zap.Logger) (BlobStore, error) {
	switch opts.Backend {
	case constants.BackendPebble, "":
		cfg := DefaultConfig(opts.Path)
		cfg.ReadOnly = opts.ReadOnly
		return NewPebbleStore(cfg, logger)
	case constants.BackendRedis:
		return NewRedisStore(ctx, opts.Redis, logger)
	case constants.BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
