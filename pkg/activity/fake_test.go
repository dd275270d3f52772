package activity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/wallet-activity/pkg/retry"
	"github.com/0xmhha/wallet-activity/pkg/storage"
)

// fakeSource serves canned logs per event name and records every query
type fakeSource struct {
	mu      sync.Mutex
	head    uint64
	logs    map[string][]ethtypes.Log
	queries []query

	// headErrs are returned, in order, by GetCurrentBlockHeight before succeeding
	headErrs []error
	// eventErr is returned by every GetEvents call when set
	eventErr error
	// gate blocks GetCurrentBlockHeight until closed
	gate chan struct{}

	heightCalls atomic.Int32
	// active and maxActive track overlapping GetCurrentBlockHeight calls
	active    atomic.Int32
	maxActive atomic.Int32
}

type query struct {
	event    string
	contract common.Address
	from, to uint64
}

func newFakeSource(head uint64) *fakeSource {
	return &fakeSource{head: head, logs: make(map[string][]ethtypes.Log)}
}

func (f *fakeSource) setLogs(event string, logs ...ethtypes.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[event] = logs
}

func (f *fakeSource) setHead(head uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head = head
}

func (f *fakeSource) GetCurrentBlockHeight(ctx context.Context) (uint64, error) {
	f.heightCalls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.maxActive.Load()
		if n <= peak || f.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.headErrs) > 0 {
		err := f.headErrs[0]
		f.headErrs = f.headErrs[1:]
		return 0, err
	}
	return f.head, nil
}

func (f *fakeSource) GetEvents(ctx context.Context, contract common.Address, event gethabi.Event, from, to uint64) ([]ethtypes.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query{event: event.Name, contract: contract, from: from, to: to})
	if f.eventErr != nil {
		return nil, f.eventErr
	}
	var out []ethtypes.Log
	for _, log := range f.logs[event.Name] {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

func (f *fakeSource) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fakeSource) lastQueries() []query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]query(nil), f.queries...)
}

// failingBlobs wraps a store and fails every write
type failingBlobs struct {
	storage.BlobStore
}

func (failingBlobs) WriteBlob(ctx context.Context, key string, value []byte) error {
	return errors.New("disk full")
}

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 1, 27, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}
}

type harness struct {
	orch   *Orchestrator
	source *fakeSource
	blobs  storage.BlobStore
	store  *Store
	clock  *clock
}

func newHarness(t *testing.T, source *fakeSource, blobs storage.BlobStore) *harness {
	t.Helper()
	if blobs == nil {
		blobs = storage.NewMemoryStore()
	}
	store := NewStore(blobs, "wallet_activity_cache", nil)
	clk := newClock()
	orch, err := NewOrchestrator(context.Background(), source, store, Config{
		TTL:            5 * time.Minute,
		LookbackBlocks: 1000,
		Retry:          fastRetry(),
		Metrics:        NewMetrics(prometheus.NewRegistry()),
		Now:            clk.Now,
	})
	require.NoError(t, err)
	return &harness{orch: orch, source: source, blobs: blobs, store: store, clock: clk}
}
