package constants

import "time"

// API Server Constants
const (
	// DefaultAPIHost is the default API server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default API server port
	DefaultAPIPort = 8080

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout.
	// Activity requests can wait on a full retry cycle against the node.
	DefaultWriteTimeout = 5 * time.Minute

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxHeaderBytes is the default maximum request header size (1 MB)
	DefaultMaxHeaderBytes = 1 << 20 // 1 MB

	// DefaultRateLimitPerSecond is the default rate limit (requests per second)
	DefaultRateLimitPerSecond = 50

	// DefaultRateLimitBurst is the default rate limit burst size
	DefaultRateLimitBurst = 100
)

// RPC Constants
const (
	// DefaultRPCTimeout is the default dial timeout for the node connection
	DefaultRPCTimeout = 30 * time.Second

	// DefaultRPCRequestsPerSecond paces outbound calls to the node (0 disables pacing)
	DefaultRPCRequestsPerSecond = 25

	// DefaultRPCBurst is the outbound pacing burst
	DefaultRPCBurst = 10
)

// Retry Constants
const (
	// DefaultRetryMaxAttempts is the total number of attempts for a transient failure
	DefaultRetryMaxAttempts = 10

	// DefaultRetryBaseDelay is the base of the exponential backoff
	DefaultRetryBaseDelay = 1 * time.Second

	// DefaultRetryMaxDelay caps a single backoff delay
	DefaultRetryMaxDelay = 30 * time.Second

	// DefaultRetryJitter bounds the random jitter added to each delay
	DefaultRetryJitter = 1 * time.Second
)

// Activity Cache Constants
const (
	// DefaultCacheTTL is how long a wallet's activity is served without refetching
	DefaultCacheTTL = 5 * time.Minute

	// DefaultLookbackBlocks is the widest block span scanned by a single refresh
	DefaultLookbackBlocks = 50_000

	// DefaultActivityCacheKey is the storage key holding the serialized activity cache
	DefaultActivityCacheKey = "wallet_activity_cache"

	// DefaultTokenMetadataKey is the storage key holding the token metadata cache
	DefaultTokenMetadataKey = "token_metadata_cache"
)

// Price Constants
const (
	// DefaultPriceTTL is how long a fetched price is reused
	DefaultPriceTTL = 5 * time.Minute

	// DefaultCoinGeckoURL is the CoinGecko public API base URL
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

	// DefaultPriceTimeout bounds a single price request
	DefaultPriceTimeout = 10 * time.Second
)

// Token Constants
const (
	// UnknownTokenName is reported when a token's name cannot be read
	UnknownTokenName = "UNK"

	// DefaultTokenDecimals is assumed when a token's decimals cannot be read
	DefaultTokenDecimals = 18
)

// Database Constants
const (
	// BackendPebble stores blobs in a local PebbleDB directory
	BackendPebble = "pebble"

	// BackendRedis stores blobs in Redis
	BackendRedis = "redis"

	// BackendMemory keeps blobs in process memory (tests, ephemeral runs)
	BackendMemory = "memory"

	// DefaultDatabasePath is the default PebbleDB directory
	DefaultDatabasePath = "./data"

	// DefaultRedisKeyPrefix is prepended to all Redis keys
	DefaultRedisKeyPrefix = "activity"
)
