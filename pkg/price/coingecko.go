package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/wallet-activity/internal/constants"
	"github.com/0xmhha/wallet-activity/pkg/retry"
)

const (
	nativeCoinID = "ethereum"
	platformID   = "ethereum"
	vsCurrency   = "usd"
)

// ErrPriceNotFound is returned when the API has no price for a token
var ErrPriceNotFound = errors.New("price not found")

// CoinGeckoConfig configures a CoinGeckoFetcher
type CoinGeckoConfig struct {
	BaseURL string

	// APIKey is optional; the public API is used without one
	APIKey string

	Timeout time.Duration

	// RequestsPerMinute paces outgoing requests (default: 25)
	RequestsPerMinute int

	Retry      retry.Config
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// CoinGeckoFetcher fetches USD prices from the CoinGecko simple price API
type CoinGeckoFetcher struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retry.Config
	logger     *zap.Logger
}

// NewCoinGeckoFetcher creates a fetcher
func NewCoinGeckoFetcher(cfg CoinGeckoConfig) *CoinGeckoFetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = constants.DefaultCoinGeckoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultPriceTimeout
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 25
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := cfg.Logger.With(zap.String("component", "coingecko"))
	retryCfg := cfg.Retry
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("price request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
	}

	return &CoinGeckoFetcher{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1),
		retry:      retryCfg,
		logger:     logger,
	}
}

// FetchPrice implements Fetcher. token is NativeToken or an ERC-20 address.
func (f *CoinGeckoFetcher) FetchPrice(ctx context.Context, token string) (float64, error) {
	if strings.EqualFold(token, NativeToken) {
		return f.nativePrice(ctx)
	}
	if !common.IsHexAddress(token) {
		return 0, fmt.Errorf("invalid token address %q", token)
	}
	return f.tokenPrice(ctx, strings.ToLower(token))
}

func (f *CoinGeckoFetcher) nativePrice(ctx context.Context) (float64, error) {
	params := url.Values{
		"ids":           {nativeCoinID},
		"vs_currencies": {vsCurrency},
	}
	var resp map[string]map[string]float64
	if err := f.doRequest(ctx, "/simple/price", params, &resp); err != nil {
		return 0, err
	}
	return lookup(resp, nativeCoinID)
}

func (f *CoinGeckoFetcher) tokenPrice(ctx context.Context, address string) (float64, error) {
	params := url.Values{
		"contract_addresses": {address},
		"vs_currencies":      {vsCurrency},
	}
	var resp map[string]map[string]float64
	if err := f.doRequest(ctx, "/simple/token_price/"+platformID, params, &resp); err != nil {
		return 0, err
	}
	return lookup(resp, address)
}

func lookup(resp map[string]map[string]float64, id string) (float64, error) {
	for key, quotes := range resp {
		if !strings.EqualFold(key, id) {
			continue
		}
		if price, ok := quotes[vsCurrency]; ok {
			return price, nil
		}
	}
	return 0, fmt.Errorf("%s: %w", id, ErrPriceNotFound)
}

func (f *CoinGeckoFetcher) doRequest(ctx context.Context, path string, params url.Values, result any) error {
	fullURL := f.baseURL + path + "?" + params.Encode()
	return retry.DoVoid(ctx, f.retry, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		return f.doSingleRequest(ctx, fullURL, result)
	})
}

func (f *CoinGeckoFetcher) doSingleRequest(ctx context.Context, fullURL string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", f.apiKey)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return retry.Transient(fmt.Errorf("http request failed: %w", err))
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.Warn("failed to close response body", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return retry.Transient(errors.New("rate limited (HTTP 429)"))
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return retry.Transient(fmt.Errorf("server error (HTTP %d)", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("client error (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
