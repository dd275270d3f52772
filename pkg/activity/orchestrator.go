// Package activity keeps the per-wallet activity cache: it decides when a
// wallet must be refreshed from the node, merges new events into the cached
// history and persists the result.
package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/0xmhha/wallet-activity/internal/constants"
	"github.com/0xmhha/wallet-activity/internal/logger"
	walletabi "github.com/0xmhha/wallet-activity/pkg/abi"
	"github.com/0xmhha/wallet-activity/pkg/events"
	"github.com/0xmhha/wallet-activity/pkg/retry"
	"github.com/0xmhha/wallet-activity/pkg/types"
)

// maxSupersededRestarts bounds how often one refresh starts over after the
// wallet changed underneath it
const maxSupersededRestarts = 3

// ErrInvalidAddress is returned for wallet addresses that are not 20-byte hex
var ErrInvalidAddress = errors.New("invalid wallet address")

// EventSource is the chain node the orchestrator reads from.
// Retryable failures must be marked with retry.Transient.
type EventSource interface {
	GetEvents(ctx context.Context, contract common.Address, event gethabi.Event, from, to uint64) ([]ethtypes.Log, error)
	GetCurrentBlockHeight(ctx context.Context) (uint64, error)
}

// State is the cache state of one wallet
type State int

const (
	StateAbsent State = iota
	StateStale
	StateFresh
	StateFetching
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "ABSENT"
	case StateStale:
		return "STALE"
	case StateFresh:
		return "FRESH"
	case StateFetching:
		return "FETCHING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds orchestrator configuration
type Config struct {
	// TTL is how long a refreshed entry is served without refetching
	TTL time.Duration

	// LookbackBlocks bounds how far behind the head a refresh scans
	LookbackBlocks uint64

	// Retry is the policy applied to every remote call
	Retry retry.Config

	// Metrics are optional; unregistered metrics are used when nil
	Metrics *Metrics

	Logger *zap.Logger

	// Now is swapped out by tests
	Now func() time.Time
}

// Orchestrator serves wallet activity from the cache and refreshes it on demand.
// At most one refresh per wallet is in flight; concurrent callers share it.
type Orchestrator struct {
	source  EventSource
	store   *Store
	cfg     Config
	logger  *zap.Logger
	metrics *Metrics

	mu       sync.RWMutex
	cache    Cache
	fetching map[string]struct{}

	// generations counts invalidations per key; a refresh that started
	// under an older generation never commits
	generations map[string]uint64

	// saveMu orders cache mutations with their writes to storage
	saveMu sync.Mutex
	group  singleflight.Group
}

// NewOrchestrator loads the persisted cache and returns a ready orchestrator
func NewOrchestrator(ctx context.Context, source EventSource, store *Store, cfg Config) (*Orchestrator, error) {
	if source == nil {
		return nil, fmt.Errorf("event source cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = constants.DefaultCacheTTL
	}
	if cfg.LookbackBlocks == 0 {
		cfg.LookbackBlocks = constants.DefaultLookbackBlocks
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(prometheus.NewRegistry())
	}

	o := &Orchestrator{
		source:      source,
		store:       store,
		cfg:         cfg,
		logger:      logger.WithComponent(cfg.Logger, "activity"),
		metrics:     cfg.Metrics,
		cache:       store.Load(ctx),
		fetching:    make(map[string]struct{}),
		generations: make(map[string]uint64),
	}
	o.metrics.CachedWallets.Set(float64(len(o.cache)))
	return o, nil
}

// NormalizeAddress validates a wallet address and returns it with its cache key
func NormalizeAddress(address string) (common.Address, string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return common.Address{}, "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	addr := common.HexToAddress(address)
	return addr, strings.ToLower(addr.Hex()), nil
}

// Get returns the activity of a wallet, newest first. A fresh cache entry is
// returned without network access unless force is set. Abandoning the call
// through ctx does not stop a refresh that has already started.
func (o *Orchestrator) Get(ctx context.Context, address string, force bool) ([]types.ActivityItem, error) {
	addr, key, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	if !force {
		if entry := o.entry(key); entry.Fresh(o.cfg.Now()) {
			o.metrics.CacheHits.Inc()
			return cloneItems(entry.Events), nil
		}
	}
	o.metrics.CacheMisses.Inc()
	if o.isFetching(key) {
		o.metrics.Coalesced.Inc()
	}

	detached := logger.WithLogger(context.WithoutCancel(ctx), o.logger)
	ch := o.group.DoChan(key, func() (interface{}, error) {
		return o.refresh(detached, addr, key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneItems(res.Val.([]types.ActivityItem)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops a wallet's entry and persists the cache. The next Get
// fetches the full lookback window. A refresh already in flight discards
// its result and starts over from the emptied entry.
func (o *Orchestrator) Invalidate(ctx context.Context, address string) error {
	_, key, err := NormalizeAddress(address)
	if err != nil {
		return err
	}

	o.saveMu.Lock()
	defer o.saveMu.Unlock()

	o.mu.Lock()
	o.generations[key]++
	_, existed := o.cache[key]
	delete(o.cache, key)
	snapshot := o.cache.Clone()
	o.mu.Unlock()

	if !existed {
		return nil
	}
	o.metrics.CachedWallets.Set(float64(len(snapshot)))
	if err := o.store.Save(ctx, snapshot); err != nil {
		o.metrics.PersistErrors.Inc()
		return err
	}
	o.logger.Info("invalidated wallet activity", logger.Wallet(key))
	return nil
}

// State reports the cache state of a wallet
func (o *Orchestrator) State(address string) State {
	_, key, err := NormalizeAddress(address)
	if err != nil {
		return StateAbsent
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if _, ok := o.fetching[key]; ok {
		return StateFetching
	}
	entry, ok := o.cache[key]
	if !ok {
		return StateAbsent
	}
	if entry.Fresh(o.cfg.Now()) {
		return StateFresh
	}
	return StateStale
}

// Entry returns a copy of a wallet's cache entry
func (o *Orchestrator) Entry(address string) (CacheEntry, bool) {
	_, key, err := NormalizeAddress(address)
	if err != nil {
		return CacheEntry{}, false
	}
	entry := o.entry(key)
	if entry == nil {
		return CacheEntry{}, false
	}
	out := *entry
	out.Events = cloneItems(entry.Events)
	return out, true
}

func (o *Orchestrator) entry(key string) *CacheEntry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cache[key]
}

// snapshot returns the wallet's entry together with its generation
func (o *Orchestrator) snapshot(key string) (*CacheEntry, uint64) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cache[key], o.generations[key]
}

func (o *Orchestrator) isFetching(key string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.fetching[key]
	return ok
}

func (o *Orchestrator) setFetching(key string, on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if on {
		o.fetching[key] = struct{}{}
	} else {
		delete(o.fetching, key)
	}
}

// window returns the inclusive block range to scan. scan is false when the
// entry is already caught up with head.
func (o *Orchestrator) window(prev *CacheEntry, head uint64) (from uint64, scan bool) {
	if head > o.cfg.LookbackBlocks {
		from = head - o.cfg.LookbackBlocks
	}
	if prev != nil && prev.LastBlockFetched+1 > from {
		from = prev.LastBlockFetched + 1
	}
	return from, from <= head
}

// refresh fetches the wallet's new events, merges and stores them.
// On failure the cache is left untouched.
func (o *Orchestrator) refresh(ctx context.Context, wallet common.Address, key string) ([]types.ActivityItem, error) {
	o.setFetching(key, true)
	defer o.setFetching(key, false)

	start := time.Now()
	var (
		items     []types.ActivityItem
		committed bool
		err       error
	)
	for attempt := 0; ; attempt++ {
		items, committed, err = o.fetchAndMerge(ctx, wallet, key)
		if err != nil || committed {
			break
		}
		if attempt == maxSupersededRestarts {
			o.logger.Warn("wallet refresh kept being superseded, returning uncommitted result",
				logger.Wallet(key))
			break
		}
		o.logger.Debug("wallet changed during refresh, starting over", logger.Wallet(key))
	}
	o.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		o.metrics.Fetches.WithLabelValues("failure").Inc()
		o.logger.Warn("wallet refresh failed",
			logger.Wallet(key),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, err
	}
	o.metrics.Fetches.WithLabelValues("success").Inc()
	return items, nil
}

// fetchAndMerge scans the window after the wallet's entry and commits the
// merged result. committed is false when the entry was invalidated or
// advanced past head while the scan ran.
func (o *Orchestrator) fetchAndMerge(ctx context.Context, wallet common.Address, key string) ([]types.ActivityItem, bool, error) {
	prev, gen := o.snapshot(key)

	head, err := retry.Do(ctx, o.retryConfig("block_height"), o.source.GetCurrentBlockHeight)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get current block height: %w", err)
	}

	from, scan := o.window(prev, head)

	var fresh []types.ActivityItem
	if scan {
		batches, err := o.fetchBatches(ctx, wallet, from, head)
		if err != nil {
			return nil, false, err
		}
		fresh, err = events.Normalize(batches)
		if err != nil {
			return nil, false, fmt.Errorf("failed to normalize events: %w", err)
		}
		o.metrics.FetchedEvents.Add(float64(len(fresh)))
	}

	var cached []types.ActivityItem
	lastBlock := head
	if prev != nil {
		cached = prev.Events
		if prev.LastBlockFetched > lastBlock {
			lastBlock = prev.LastBlockFetched
		}
	}

	entry := &CacheEntry{
		LastBlockFetched: lastBlock,
		Expiry:           o.cfg.Now().Add(o.cfg.TTL),
		Events:           Merge(fresh, cached),
	}
	if !o.commit(ctx, key, gen, entry) {
		return entry.Events, false, nil
	}

	o.logger.Debug("refreshed wallet activity",
		logger.Wallet(key),
		logger.BlockRange(from, head),
		zap.Bool("scanned", scan),
		zap.Int("new", len(fresh)),
		zap.Int("total", len(entry.Events)))

	return entry.Events, true, nil
}

// fetchBatches queries every contract event kind in parallel
func (o *Orchestrator) fetchBatches(ctx context.Context, wallet common.Address, from, to uint64) (events.Batches, error) {
	kinds := events.RawKinds()
	results := make([][]events.RawEvent, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			abiEvent, err := walletabi.CustodialEvent(kind.EventName())
			if err != nil {
				return err
			}
			logs, err := retry.Do(gctx, o.retryConfig(kind.EventName()), func(ctx context.Context) ([]ethtypes.Log, error) {
				return o.source.GetEvents(ctx, wallet, abiEvent, from, to)
			})
			if err != nil {
				return fmt.Errorf("failed to fetch %s events: %w", kind, err)
			}
			raws, err := events.ParseLogs(kind, logs)
			if err != nil {
				return fmt.Errorf("failed to decode %s events: %w", kind, err)
			}
			results[i] = raws
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batches := make(events.Batches, len(kinds))
	for i, kind := range kinds {
		batches[kind] = results[i]
	}
	return batches, nil
}

// commit replaces the wallet's entry and writes the cache through to storage.
// It refuses entries built under an older generation and entries that would
// move LastBlockFetched backwards. A failed write is logged; the in-memory
// entry is kept.
func (o *Orchestrator) commit(ctx context.Context, key string, gen uint64, entry *CacheEntry) bool {
	o.saveMu.Lock()
	defer o.saveMu.Unlock()

	o.mu.Lock()
	if o.generations[key] != gen {
		o.mu.Unlock()
		return false
	}
	if cur := o.cache[key]; cur != nil && entry.LastBlockFetched < cur.LastBlockFetched {
		o.mu.Unlock()
		return false
	}
	o.cache[key] = entry
	snapshot := o.cache.Clone()
	o.mu.Unlock()

	o.metrics.CachedWallets.Set(float64(len(snapshot)))
	if err := o.store.Save(ctx, snapshot); err != nil {
		o.metrics.PersistErrors.Inc()
		o.logger.Error("failed to persist activity cache",
			logger.Wallet(key),
			zap.Error(err))
	}
	return true
}

func (o *Orchestrator) retryConfig(operation string) retry.Config {
	cfg := o.cfg.Retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		o.metrics.Retries.WithLabelValues(operation).Inc()
		o.logger.Warn("retrying remote call",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	return cfg
}

func cloneItems(items []types.ActivityItem) []types.ActivityItem {
	if items == nil {
		return []types.ActivityItem{}
	}
	return append([]types.ActivityItem(nil), items...)
}
