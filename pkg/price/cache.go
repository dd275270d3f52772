// Package price serves USD token prices behind a short-lived in-memory cache.
package price

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/0xmhha/wallet-activity/internal/constants"
)

// NativeToken identifies the chain's native coin
const NativeToken = "eth"

// Fetcher looks up the current USD price of a token
type Fetcher interface {
	FetchPrice(ctx context.Context, token string) (float64, error)
}

type entry struct {
	price  float64
	expiry time.Time
}

// Cache memoizes prices for a fixed TTL
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

// CacheConfig configures a Cache
type CacheConfig struct {
	TTL    time.Duration
	Logger *zap.Logger

	// Now overrides the clock in tests
	Now func() time.Time
}

// NewCache creates a price cache in front of fetcher
func NewCache(fetcher Fetcher, cfg CacheConfig) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = constants.DefaultPriceTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Cache{
		fetcher: fetcher,
		ttl:     cfg.TTL,
		now:     cfg.Now,
		logger:  cfg.Logger,
		entries: make(map[string]entry),
	}
}

// GetPrice returns the token's USD price. A failed lookup yields 0 and is
// not cached.
func (c *Cache) GetPrice(ctx context.Context, token string) float64 {
	key := strings.ToLower(token)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expiry) {
		return e.price
	}

	detached := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		price, err := c.fetcher.FetchPrice(detached, key)
		if err != nil {
			return 0.0, err
		}
		c.mu.Lock()
		c.entries[key] = entry{price: price, expiry: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return price, nil
	})
	if err != nil {
		c.logger.Warn("failed to fetch token price",
			zap.String("token", key),
			zap.Error(err))
		return 0
	}
	return v.(float64)
}
