package activity

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/0xmhha/wallet-activity/pkg/storage"
)

// Store loads and saves the whole activity cache under a single blob key
type Store struct {
	blobs  storage.BlobStore
	key    string
	logger *zap.Logger
}

// NewStore creates a cache store over blobs
func NewStore(blobs storage.BlobStore, key string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{blobs: blobs, key: key, logger: logger}
}

// Load reads the persisted cache. It never fails: a missing, unreadable or
// corrupt blob yields an empty cache.
func (s *Store) Load(ctx context.Context) Cache {
	data, err := s.blobs.ReadBlob(ctx, s.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to read activity cache, starting empty",
				zap.String("key", s.key),
				zap.Error(err))
		}
		return make(Cache)
	}

	cache, err := DecodeCache(data)
	if err != nil {
		s.logger.Warn("discarding unreadable activity cache",
			zap.String("key", s.key),
			zap.Int("bytes", len(data)),
			zap.Error(err))
		return make(Cache)
	}

	s.logger.Info("loaded activity cache",
		zap.String("key", s.key),
		zap.Int("wallets", len(cache)))
	return cache
}

// Save writes the full cache
func (s *Store) Save(ctx context.Context, cache Cache) error {
	data, err := EncodeCache(cache)
	if err != nil {
		return err
	}
	if err := s.blobs.WriteBlob(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to write activity cache: %w", err)
	}
	return nil
}
