package activity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/0xmhha/wallet-activity/pkg/types"
)

// cacheVersion is the schema version of the persisted cache document
const cacheVersion = 1

// ErrUnsupportedVersion is returned when decoding a document of another schema version
var ErrUnsupportedVersion = errors.New("unsupported cache version")

// CacheEntry is the cached activity of one wallet. Entries are replaced
// wholesale on refresh and never mutated after being stored.
type CacheEntry struct {
	LastBlockFetched uint64
	Expiry           time.Time
	// Events are sorted by descending block number and unique by ItemKey
	Events []types.ActivityItem
}

// Fresh reports whether the entry can be served without refetching
func (e *CacheEntry) Fresh(now time.Time) bool {
	return e != nil && now.Before(e.Expiry)
}

// Cache maps lowercase wallet addresses to their entries
type Cache map[string]*CacheEntry

// Clone returns a shallow copy; entries are shared since they are immutable
func (c Cache) Clone() Cache {
	out := make(Cache, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// cacheDocument is the persisted form of a Cache.
// Block numbers and amounts are hex-encoded so no value passes through a float.
type cacheDocument struct {
	Version int                   `json:"version"`
	Wallets map[string]*entryJSON `json:"wallets"`
}

type entryJSON struct {
	LastBlockFetched hexutil.Uint64       `json:"lastBlockFetched"`
	Expiry           time.Time            `json:"expiry"`
	Events           []types.ActivityItem `json:"events"`
}

// EncodeCache serializes the cache into the versioned document format
func EncodeCache(c Cache) ([]byte, error) {
	doc := cacheDocument{
		Version: cacheVersion,
		Wallets: make(map[string]*entryJSON, len(c)),
	}
	for addr, entry := range c {
		if entry == nil {
			continue
		}
		events := entry.Events
		if events == nil {
			events = []types.ActivityItem{}
		}
		doc.Wallets[addr] = &entryJSON{
			LastBlockFetched: hexutil.Uint64(entry.LastBlockFetched),
			Expiry:           entry.Expiry.UTC(),
			Events:           events,
		}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache: %w", err)
	}
	return data, nil
}

// DecodeCache parses a document produced by EncodeCache.
// Wallet keys are normalized to lowercase 0x form. Invalid addresses and keys
// that collide after normalization are rejected. Events are re-sorted and
// deduplicated the same way Merge does it.
func DecodeCache(data []byte) (Cache, error) {
	var doc cacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode cache: %w", err)
	}
	if doc.Version != cacheVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}

	cache := make(Cache, len(doc.Wallets))
	seen := make(map[string]struct{}, len(doc.Wallets))
	for addr, entry := range doc.Wallets {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid wallet key %q", addr)
		}
		key := strings.ToLower(common.HexToAddress(addr).Hex())
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate wallet key %q", addr)
		}
		seen[key] = struct{}{}
		if entry == nil {
			continue
		}
		cache[key] = &CacheEntry{
			LastBlockFetched: uint64(entry.LastBlockFetched),
			Expiry:           entry.Expiry,
			Events:           Merge(entry.Events, nil),
		}
	}
	return cache, nil
}
