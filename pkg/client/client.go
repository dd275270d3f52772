package client

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client wraps the Ethereum JSON-RPC client with pacing and failure classification.
// Every error it returns is either marked transient (retry.IsTransient) or permanent.
type Client struct {
	ethClient *ethclient.Client
	rpcClient *rpc.Client
	endpoint  string
	logger    *zap.Logger
	limiter   *rate.Limiter
}

// Config holds client configuration
type Config struct {
	Endpoint string
	Timeout  time.Duration
	// RequestsPerSecond paces outbound calls; 0 disables pacing
	RequestsPerSecond float64
	Burst             int
	Logger            *zap.Logger
}

// NewClient creates a new Ethereum client
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Create RPC client with timeout
	ctx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	client := &Client{
		ethClient: ethclient.NewClient(rpcClient),
		rpcClient: rpcClient,
		endpoint:  cfg.Endpoint,
		logger:    logger,
		limiter:   newLimiter(cfg.RequestsPerSecond, cfg.Burst),
	}

	// Verify connection
	if err := client.Ping(ctx); err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to ping RPC endpoint: %w", err)
	}

	logger.Info("connected to Ethereum RPC",
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("requests_per_second", cfg.RequestsPerSecond))

	return client, nil
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// wait blocks until the pacing limiter admits one more call
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// Ping verifies the connection to the RPC endpoint
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ethClient.ChainID(ctx)
	return err
}

// Close closes the client connection
func (c *Client) Close() {
	if c.ethClient != nil {
		c.ethClient.Close()
	}
}

// Endpoint returns the node URL the client is connected to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// GetCurrentBlockHeight returns the latest block number
func (c *Client) GetCurrentBlockHeight(ctx context.Context) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	blockNumber, err := c.ethClient.BlockNumber(ctx)
	if err != nil {
		return 0, Classify(fmt.Errorf("failed to get latest block number: %w", err))
	}
	return blockNumber, nil
}

// GetEvents returns the logs of one event emitted by contract within the
// inclusive block range [from, to]
func (c *Client) GetEvents(ctx context.Context, contract common.Address, event abi.Event, from, to uint64) ([]types.Log, error) {
	if from > to {
		return nil, fmt.Errorf("invalid block range %d-%d", from, to)
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{event.ID}},
	}

	logs, err := c.ethClient.FilterLogs(ctx, query)
	if err != nil {
		return nil, Classify(fmt.Errorf("failed to get %s logs for %s in blocks %d-%d: %w",
			event.Name, contract.Hex(), from, to, err))
	}

	c.logger.Debug("fetched logs",
		zap.String("event", event.Name),
		zap.String("contract", contract.Hex()),
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Int("count", len(logs)))

	return logs, nil
}

// CallContract executes a read-only call at the latest block
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.ethClient.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, Classify(fmt.Errorf("call to %s failed: %w", addressOf(msg.To), err))
	}
	return out, nil
}

func addressOf(to *common.Address) string {
	if to == nil {
		return "<create>"
	}
	return to.Hex()
}
