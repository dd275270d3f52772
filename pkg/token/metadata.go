// Package token caches ERC-20 display metadata read from the chain.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/0xmhha/wallet-activity/internal/constants"
	walletabi "github.com/0xmhha/wallet-activity/pkg/abi"
	"github.com/0xmhha/wallet-activity/pkg/retry"
	"github.com/0xmhha/wallet-activity/pkg/storage"
)

// Caller executes read-only contract calls
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// Metadata is the display metadata of a token
type Metadata struct {
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

// Unknown is returned when a token's metadata cannot be read
var Unknown = Metadata{Name: constants.UnknownTokenName, Decimals: constants.DefaultTokenDecimals}

// MetadataCache serves token metadata, reading each token from the chain at
// most once. Entries never expire and are persisted on every addition.
type MetadataCache struct {
	caller Caller
	blobs  storage.BlobStore
	key    string
	retry  retry.Config
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]Metadata

	saveMu sync.Mutex
	group  singleflight.Group
}

// NewMetadataCache loads the persisted metadata. A missing or corrupt blob
// starts an empty cache.
func NewMetadataCache(ctx context.Context, caller Caller, blobs storage.BlobStore, key string, retryCfg retry.Config, logger *zap.Logger) *MetadataCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if key == "" {
		key = constants.DefaultTokenMetadataKey
	}
	c := &MetadataCache{
		caller:  caller,
		blobs:   blobs,
		key:     key,
		retry:   retryCfg,
		logger:  logger,
		entries: make(map[string]Metadata),
	}
	c.load(ctx)
	return c
}

func (c *MetadataCache) load(ctx context.Context) {
	data, err := c.blobs.ReadBlob(ctx, c.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("failed to read token metadata cache", zap.Error(err))
		}
		return
	}
	var entries map[string]Metadata
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("discarding unreadable token metadata cache", zap.Error(err))
		return
	}
	for addr, md := range entries {
		c.entries[strings.ToLower(addr)] = md
	}
}

// GetMetadata returns the token's metadata. When the chain cannot be read
// it returns Unknown, which is not cached.
func (c *MetadataCache) GetMetadata(ctx context.Context, token common.Address) Metadata {
	key := strings.ToLower(token.Hex())

	c.mu.RLock()
	md, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return md
	}

	// Callers that join the flight must not inherit the leader's cancellation
	detached := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		md, err := c.read(detached, token)
		if err != nil {
			return nil, err
		}
		c.store(detached, key, md)
		return md, nil
	})
	if err != nil {
		c.logger.Warn("failed to read token metadata",
			zap.String("token", token.Hex()),
			zap.Error(err))
		return Unknown
	}
	return v.(Metadata)
}

// read calls name() and decimals() in parallel
func (c *MetadataCache) read(ctx context.Context, token common.Address) (Metadata, error) {
	parsed, err := walletabi.ERC20Metadata()
	if err != nil {
		return Metadata{}, err
	}

	var md Metadata
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := c.call(gctx, token, "name")
		if err != nil {
			return err
		}
		return parsed.UnpackIntoInterface(&md.Name, "name", out)
	})
	g.Go(func() error {
		out, err := c.call(gctx, token, "decimals")
		if err != nil {
			return err
		}
		return parsed.UnpackIntoInterface(&md.Decimals, "decimals", out)
	})
	if err := g.Wait(); err != nil {
		return Metadata{}, err
	}
	return md, nil
}

func (c *MetadataCache) call(ctx context.Context, token common.Address, method string) ([]byte, error) {
	parsed, err := walletabi.ERC20Metadata()
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, err
	}
	out, err := retry.Do(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data})
	})
	if err != nil {
		return nil, fmt.Errorf("%s(): %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s(): empty result, not a contract", method)
	}
	return out, nil
}

func (c *MetadataCache) store(ctx context.Context, key string, md Metadata) {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	c.entries[key] = md
	snapshot := make(map[string]Metadata, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err == nil {
		err = c.blobs.WriteBlob(ctx, c.key, data)
	}
	if err != nil {
		c.logger.Error("failed to persist token metadata cache", zap.Error(err))
	}
}
