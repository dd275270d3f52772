package price

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/wallet-activity/pkg/retry"
)

type stubFetcher struct {
	prices map[string]float64
	err    error
	calls  atomic.Int32
}

func (s *stubFetcher) FetchPrice(ctx context.Context, token string) (float64, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.err != nil {
		return 0, s.err
	}
	return s.prices[token], nil
}

func TestCache_ServesWithinTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	fetcher := &stubFetcher{prices: map[string]float64{"eth": 3000}}
	cache := NewCache(fetcher, CacheConfig{TTL: 5 * time.Minute, Now: func() time.Time { return now }})

	ctx := context.Background()
	assert.Equal(t, 3000.0, cache.GetPrice(ctx, "ETH"))
	fetcher.prices["eth"] = 3100
	now = now.Add(4 * time.Minute)
	assert.Equal(t, 3000.0, cache.GetPrice(ctx, "eth"))
	assert.Equal(t, int32(1), fetcher.calls.Load())

	now = now.Add(time.Minute)
	assert.Equal(t, 3100.0, cache.GetPrice(ctx, "eth"), "expired at exactly the TTL")
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestCache_FailureYieldsZeroUncached(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("unavailable")}
	cache := NewCache(fetcher, CacheConfig{})

	ctx := context.Background()
	assert.Zero(t, cache.GetPrice(ctx, "eth"))

	fetcher.err = nil
	fetcher.prices = map[string]float64{"eth": 2500}
	assert.Equal(t, 2500.0, cache.GetPrice(ctx, "eth"))
}

func TestCache_FetchOutlivesCanceledCaller(t *testing.T) {
	fetcher := &stubFetcher{prices: map[string]float64{"eth": 2900}}
	cache := NewCache(fetcher, CacheConfig{TTL: time.Minute})

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, 2900.0, cache.GetPrice(canceled, "eth"))
	assert.Equal(t, 2900.0, cache.GetPrice(context.Background(), "eth"))
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func newTestFetcher(t *testing.T, handler http.HandlerFunc) *CoinGeckoFetcher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewCoinGeckoFetcher(CoinGeckoConfig{
		BaseURL:           server.URL,
		APIKey:            "demo-key",
		RequestsPerMinute: 60_000,
		Retry:             retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
}

func TestCoinGecko_NativePrice(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		assert.Equal(t, "demo-key", r.Header.Get("x-cg-demo-api-key"))
		_, _ = w.Write([]byte(`{"ethereum":{"usd":3456.78}}`))
	})

	price, err := f.FetchPrice(context.Background(), NativeToken)
	require.NoError(t, err)
	assert.Equal(t, 3456.78, price)
}

func TestCoinGecko_TokenPrice(t *testing.T) {
	const usdc = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/token_price/ethereum", r.URL.Path)
		assert.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", r.URL.Query().Get("contract_addresses"))
		_, _ = w.Write([]byte(`{"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48":{"usd":0.9998}}`))
	})

	price, err := f.FetchPrice(context.Background(), usdc)
	require.NoError(t, err)
	assert.Equal(t, 0.9998, price)
}

func TestCoinGecko_Errors(t *testing.T) {
	t.Run("unknown token", func(t *testing.T) {
		f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})
		_, err := f.FetchPrice(context.Background(), "0x0000000000000000000000000000000000000001")
		assert.ErrorIs(t, err, ErrPriceNotFound)
	})

	t.Run("invalid address", func(t *testing.T) {
		f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})
		_, err := f.FetchPrice(context.Background(), "usdc")
		assert.Error(t, err)
	})

	t.Run("client error is not retried", func(t *testing.T) {
		var hits atomic.Int32
		f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			http.Error(w, `{"error":"invalid vs_currency"}`, http.StatusBadRequest)
		})
		_, err := f.FetchPrice(context.Background(), NativeToken)
		require.Error(t, err)
		assert.False(t, retry.IsTransient(err))
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("rate limit is retried", func(t *testing.T) {
		var hits atomic.Int32
		f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = w.Write([]byte(`{"ethereum":{"usd":3000}}`))
		})
		price, err := f.FetchPrice(context.Background(), NativeToken)
		require.NoError(t, err)
		assert.Equal(t, 3000.0, price)
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("server errors exhaust retries", func(t *testing.T) {
		var hits atomic.Int32
		f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := f.FetchPrice(context.Background(), NativeToken)
		assert.ErrorIs(t, err, retry.ErrRetryExhausted)
		assert.Equal(t, int32(3), hits.Load())
	})
}
